package iptvorg

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapetech/epgnorm/internal/category"
	"github.com/snapetech/epgnorm/internal/m3u"
)

func TestNormName(t *testing.T) {
	cases := []struct{ in, want string }{
		{"TF1", "tf1"},
		{"TF1 HD", "tf1 hd"},
		{"FR: TF1", "fr tf1"},
		{"France 24", "france 24"},
		{"TV5 Monde", "tv5 monde"},
	}
	for _, c := range cases {
		if got := normName(c.in); got != c.want {
			t.Errorf("normName(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestStripForMatch(t *testing.T) {
	cases := []struct{ in, want string }{
		{"FR: TF1 HD", "tf1"},
		{"BE: RTBF La Une", "rtbf la une"},
		{"MA: 2M Maroc FHD", "2m maroc"},
		{"France 2", "france 2"},
	}
	for _, c := range cases {
		if got := stripForMatch(c.in); got != c.want {
			t.Errorf("stripForMatch(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestShortCode(t *testing.T) {
	cases := []struct{ in, want string }{
		{"TF1.fr", "tf1"},
		{"France24.fr@English", "france24"},
		{"2M.ma", "2m"},
		{"x", ""}, // too short
	}
	for _, c := range cases {
		if got := shortCode(c.in); got != c.want {
			t.Errorf("shortCode(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func testDB() *DB {
	return NewDB(
		[]Channel{
			{ID: "TF1.fr", Name: "TF1", Country: "FR", Languages: []string{"fra"}, Categories: []string{"general"}},
			{ID: "beINSports1.qa", Name: "beIN Sports 1", Country: "QA", Languages: []string{"ara"}, Categories: []string{"sports"}},
			{ID: "ESPN.us", Name: "ESPN", Country: "US", Languages: []string{"spa"}, Categories: []string{"sports"}},
			{ID: "NHK.jp", Name: "NHK", Country: "JP", Languages: []string{"jpn"}, Categories: []string{"general"}},
			{ID: "2M.ma", Name: "2M Maroc", AltNames: []string{"2M"}, Country: "MA", Categories: []string{"general"}},
			{ID: "Adult.fr", Name: "Adult", Country: "FR", IsNSFW: true},
		},
		[]Stream{
			{Channel: "TF1.fr", URL: "http://s/tf1"},
			{Channel: "TF1.fr", URL: "http://s/tf1-backup"},
			{Channel: "ESPN.us", URL: "http://s/espn"},
			{Channel: "NHK.jp", URL: "http://s/nhk"},
			{Channel: "2M.ma", URL: "http://s/2m"},
			{Channel: "Adult.fr", URL: "http://s/adult"},
		},
		[]Logo{{Channel: "TF1.fr", URL: "http://logo/tf1.png"}},
	)
}

func TestEntries_filter(t *testing.T) {
	got := testDB().Entries(DefaultFilter())
	var ids []string
	for _, e := range got {
		ids = append(ids, e.ID)
	}
	// beIN has no stream, NHK matches nothing, Adult is NSFW.
	assert.Equal(t, []string{"TF1.fr", "ESPN.us", "2M.ma"}, ids)
	assert.Equal(t, m3u.Entry{
		ID:         "TF1.fr",
		TVGID:      "TF1.fr",
		Name:       "TF1",
		LogoURL:    "http://logo/tf1.png",
		Categories: []string{"general"},
		Languages:  []string{"fra"},
		Country:    "fr",
		StreamURL:  "http://s/tf1",
	}, got[0])

	all := testDB().Entries(Filter{})
	assert.Len(t, all, 6-1, "empty filter keeps everything except NSFW")
}

func TestGroup(t *testing.T) {
	groups := Group(testDB().Entries(DefaultFilter()))
	require.Len(t, groups[category.Sport], 1)
	assert.Equal(t, "ESPN.us", groups[category.Sport][0].ID)
	assert.Len(t, groups[category.Entertainment], 2)
	assert.Empty(t, groups[category.Kids])
}

func TestEnrichTVGID(t *testing.T) {
	db := testDB()
	cases := []struct {
		tvgID, name, wantID, wantMethod string
	}{
		{"", "TF1", "TF1.fr", "iptvorg_name_exact"},
		{"", "FR: TF1 HD", "TF1.fr", "iptvorg_name_stripped"},
		{"", "2M", "2M.ma", "iptvorg_name_exact"},
		{"espn.xx", "Sports channel", "ESPN.us", "iptvorg_shortcode"},
		{"", "Unknown Channel XYZ", "", ""},
	}
	for _, c := range cases {
		gotID, gotMethod := db.EnrichTVGID(c.tvgID, c.name)
		if gotID != c.wantID || gotMethod != c.wantMethod {
			t.Errorf("EnrichTVGID(%q, %q) = (%q, %q), want (%q, %q)",
				c.tvgID, c.name, gotID, gotMethod, c.wantID, c.wantMethod)
		}
	}

	entries := []m3u.Entry{{Name: "FR: TF1 HD"}, {Name: "Other", TVGID: "keep"}, {Name: "Nope"}}
	assert.Equal(t, 1, db.Enrich(entries))
	assert.Equal(t, "TF1.fr", entries[0].TVGID)
	assert.Equal(t, "keep", entries[1].TVGID)
}

func TestClient_Directory(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/channels.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":"TF1.fr","name":"TF1","country":"FR","languages":["fra"],"categories":["general"]},
			{"id":"NHK.jp","name":"NHK","country":"JP","languages":["jpn"]}]`))
	})
	mux.HandleFunc("/streams.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"channel":"TF1.fr","url":"http://s/tf1"},{"channel":"NHK.jp","url":"http://s/nhk"}]`))
	})
	// logos.json is missing: the directory still builds.
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := &Client{BaseURL: srv.URL, Filter: DefaultFilter()}
	entries, err := c.Directory(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "http://s/tf1", entries[0].StreamURL)
	assert.Empty(t, entries[0].LogoURL)
}

func TestClient_channelsRequired(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	_, err := (&Client{BaseURL: srv.URL}).Fetch(context.Background())
	assert.Error(t, err)
}
