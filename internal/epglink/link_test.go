package epglink

import (
	"strings"
	"testing"

	"github.com/snapetech/epgnorm/internal/m3u"
	"github.com/snapetech/epgnorm/internal/xmltv"
)

func TestNormalizeName(t *testing.T) {
	tests := map[string]string{
		"TF1 HD":             "tf1",
		"France 2 FR":        "2",
		"Canal+ Sport":       "canalplussport",
		"BFM TV (FR) FHD":    "bfm",
		"  M6   Music  4K  ": "m6music",
		"2M Maroc MA":        "2mmaroc",
		"Télé Monte-Carlo":   "telemontecarlo",
		"France Ô":           "o",
		"":                   "",
	}
	for in, want := range tests {
		if got := NormalizeName(in); got != want {
			t.Fatalf("NormalizeName(%q)=%q want %q", in, got, want)
		}
	}
}

func TestLoadAliasOverrides(t *testing.T) {
	a, err := LoadAliasOverrides(strings.NewReader(`{"name_to_xmltv_id":{"TF1 HD":"TF1.fr","":"x","Empty":" "}}`))
	if err != nil {
		t.Fatalf("LoadAliasOverrides: %v", err)
	}
	if len(a.NameToXMLTVID) != 1 || a.NameToXMLTVID["tf1"] != "TF1.fr" {
		t.Fatalf("aliases=%v", a.NameToXMLTVID)
	}
}

func TestMatchDirectoryDeterministicTiers(t *testing.T) {
	channels := []xmltv.RawChannel{
		{ID: "TF1.fr", DisplayName: "TF1"},
		{ID: "M6.fr", DisplayName: "M6"},
		{ID: "Arte.fr", DisplayName: "Arte"},
	}
	entries := []m3u.Entry{
		{ID: "1", Name: "TF1 HD", TVGID: "tf1.FR"},
		{ID: "2", Name: "Metropole Six"}, // alias exact
		{ID: "3", Name: "ARTE HD"},       // name exact
		{ID: "4", Name: "Mystery Channel"},
	}
	aliases := AliasOverrides{NameToXMLTVID: map[string]string{
		NormalizeName("Metropole Six"): "M6.fr",
	}}
	rep := MatchDirectory(entries, channels, aliases)
	if rep.Matched != 3 || rep.Unmatched != 1 {
		t.Fatalf("matched=%d unmatched=%d want 3/1", rep.Matched, rep.Unmatched)
	}
	got := map[string]MatchMethod{}
	for _, row := range rep.Rows {
		got[row.EntryID] = row.Method
	}
	if got["1"] != MatchTVGIDExact || got["2"] != MatchAliasExact || got["3"] != MatchNormalizedNameExact {
		t.Fatalf("methods=%v", got)
	}
	if rows := rep.UnmatchedRows(); len(rows) != 1 || rows[0].EntryID != "4" {
		t.Fatalf("unmatched rows=%+v", rows)
	}
	if s := rep.SummaryString(); !strings.HasPrefix(s, "EPG matches: 3/4 (75.0%)") {
		t.Fatalf("summary=%q", s)
	}
	if idx := rep.ByXMLTVID(); idx["Arte.fr"] != "3" || idx["TF1.fr"] != "1" {
		t.Fatalf("ByXMLTVID=%v", idx)
	}
}

func TestMatchDirectoryAmbiguousName(t *testing.T) {
	channels := []xmltv.RawChannel{
		{ID: "a", DisplayName: "Sport 1"},
		{ID: "b", DisplayName: "Sport 1 HD"},
	}
	rep := MatchDirectory([]m3u.Entry{{ID: "x", Name: "SPORT 1"}}, channels, AliasOverrides{})
	if rep.Matched != 0 || rep.Rows[0].Reason != "ambiguous normalized name" {
		t.Fatalf("rows=%+v", rep.Rows)
	}
}

func TestApplyMatches(t *testing.T) {
	entries := []m3u.Entry{
		{ID: "1", Name: "TF1", TVGID: "tf1.fr"},
		{ID: "2", Name: "M6"},
		{ID: "3", Name: "Mystery"},
	}
	rep := Report{Rows: []ChannelMatch{
		{EntryID: "1", Matched: true, MatchedXMLTV: "OTHER"},
		{EntryID: "2", Matched: true, MatchedXMLTV: "M6.fr", Method: MatchAliasExact},
		{EntryID: "3", Matched: false},
	}}
	out, applied := ApplyMatches(entries, rep)
	if applied != 1 {
		t.Fatalf("applied=%d want 1", applied)
	}
	if out[0].TVGID != "tf1.fr" || out[1].TVGID != "M6.fr" || out[2].TVGID != "" {
		t.Fatalf("out=%+v", out)
	}
	if entries[1].TVGID != "" {
		t.Fatal("input entries must not be modified")
	}
}
