package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapetech/epgnorm/internal/category"
)

func queryFixture() *Result {
	at := func(day, hour int) time.Time { return time.Date(2024, 1, day, hour, 0, 0, 0, time.UTC) }
	return &Result{
		Mode:     ModeXMLTV,
		Channels: []Channel{{ID: "a", Name: "Alpha"}, {ID: "b", Name: "Beta"}},
		Programs: []Program{
			{ID: "1", Title: "Morning News", ChannelID: "a", ChannelName: "Alpha", Category: category.News, Start: at(1, 8), End: at(1, 9)},
			{ID: "2", Title: "Ligue 1", ChannelID: "b", ChannelName: "Beta", Category: category.Sport, Start: at(1, 10), End: at(1, 12)},
			{ID: "3", Title: "Film du soir", ChannelID: "a", ChannelName: "Alpha", Category: category.Cinema, Start: at(1, 21), End: at(1, 23), Description: "Un thriller"},
			{ID: "4", Title: "Late News", ChannelID: "b", ChannelName: "Beta", Category: category.News, Start: at(2, 8), End: at(2, 9)},
			{ID: "5", Title: "Rerun", ChannelID: "a", ChannelName: "Alpha", Category: category.Entertainment, Start: at(0, 20), End: at(0, 21)},
		},
	}
}

func ids(ps []Program) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.ID)
	}
	return out
}

func TestFilter(t *testing.T) {
	res := queryFixture()
	now := time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		q    Query
		want []string
	}{
		{"all", Query{}, []string{"1", "2", "3", "4", "5"}},
		{"category", Query{Category: category.News}, []string{"1", "4"}},
		{"search title", Query{Search: "news"}, []string{"1", "4"}},
		{"search description", Query{Search: "THRILLER"}, []string{"3"}},
		{"search channel", Query{Search: "beta"}, []string{"2", "4"}},
		{"channel by name", Query{Channel: "alpha"}, []string{"1", "3", "5"}},
		{"channel by id", Query{Channel: "b"}, []string{"2", "4"}},
		{"live", Query{LiveOnly: true}, []string{"2"}},
		{"today", Query{Day: Today}, []string{"1", "2", "3"}},
		{"tomorrow", Query{Day: Tomorrow}, []string{"4"}},
		{"yesterday", Query{Day: Yesterday}, []string{"5"}},
		{"limit", Query{Limit: 2}, []string{"1", "2"}},
		{"combined", Query{Category: category.News, Day: Today}, []string{"1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(res.Filter(tt.q, now, nil)))
		})
	}
}

func TestFilter_recomputesLiveness(t *testing.T) {
	res := queryFixture()
	got := res.Filter(Query{Channel: "b"}, time.Date(2024, 1, 2, 8, 30, 0, 0, time.UTC), nil)
	require.Len(t, got, 2)
	assert.False(t, got[0].IsLive)
	assert.True(t, got[1].IsLive)
	assert.False(t, res.Programs[3].IsLive, "Filter must not mutate the result")
}

func TestFilter_dayInZone(t *testing.T) {
	paris, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)
	res := queryFixture()
	// 23:30 UTC on Jan 1 is already Jan 2 in Paris.
	now := time.Date(2024, 1, 1, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, []string{"4"}, ids(res.Filter(Query{Day: Today}, now, paris)))
}

func TestParseDay(t *testing.T) {
	d, err := ParseDay(" Today ")
	require.NoError(t, err)
	assert.Equal(t, Today, d)
	d, err = ParseDay("")
	require.NoError(t, err)
	assert.Equal(t, AnyDay, d)
	_, err = ParseDay("next-week")
	assert.Error(t, err)
}

func TestSummary(t *testing.T) {
	res := queryFixture()
	s := res.Summary(time.Date(2024, 1, 1, 8, 30, 0, 0, time.UTC))
	assert.Equal(t, Summary{TotalChannels: 2, TotalPrograms: 5, LivePrograms: 1}, s)
	var nilRes *Result
	assert.Equal(t, Summary{}, nilRes.Summary(time.Now()))
	assert.True(t, nilRes.Empty())
}
