// Package epglink joins guide data to channels: programmes to XMLTV channels
// (Correlator) and directory entries (M3U or iptv-org) to XMLTV channel ids.
package epglink

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/snapetech/epgnorm/internal/m3u"
	"github.com/snapetech/epgnorm/internal/xmltv"
)

type AliasOverrides struct {
	// Map of normalized directory channel name -> XMLTV channel ID.
	NameToXMLTVID map[string]string `json:"name_to_xmltv_id,omitempty"`
}

type MatchMethod string

const (
	MatchTVGIDExact          MatchMethod = "tvg_id_exact"
	MatchAliasExact          MatchMethod = "alias_exact"
	MatchNormalizedNameExact MatchMethod = "name_exact"
)

type ChannelMatch struct {
	EntryID      string      `json:"entry_id"`
	Name         string      `json:"name"`
	TVGID        string      `json:"tvg_id,omitempty"`
	Matched      bool        `json:"matched"`
	MatchedXMLTV string      `json:"matched_xmltv_id,omitempty"`
	Method       MatchMethod `json:"method,omitempty"`
	Normalized   string      `json:"normalized_name,omitempty"`
	Reason       string      `json:"reason,omitempty"`
}

type Report struct {
	TotalChannels int            `json:"total_channels"`
	Matched       int            `json:"matched"`
	Unmatched     int            `json:"unmatched"`
	Methods       map[string]int `json:"methods"`
	Rows          []ChannelMatch `json:"rows"`
}

// noise tokens carry quality or region markers, not channel identity.
var noise = map[string]struct{}{
	"hd": {}, "uhd": {}, "fhd": {}, "sd": {}, "4k": {}, "hq": {},
	"fr": {}, "france": {}, "be": {}, "ch": {}, "ca": {}, "ma": {},
	"tv": {}, "backup": {}, "raw": {}, "vip": {},
}

// NormalizeName reduces a channel name to a matching key: accents folded,
// '+' spelled "plus", noise tokens dropped, everything else that is not a
// letter or digit removed. "Télé Monte-Carlo HD" and "TELE MONTE CARLO"
// share a key.
func NormalizeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range norm.NFD.String(strings.ToLower(s)) {
		switch {
		case unicode.Is(unicode.Mn, r):
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			b.WriteRune(r)
		case r == '+':
			b.WriteString(" plus ")
		default:
			b.WriteByte(' ')
		}
	}
	var key strings.Builder
	for _, tok := range strings.Fields(b.String()) {
		if _, drop := noise[tok]; !drop {
			key.WriteString(tok)
		}
	}
	return key.String()
}

func LoadAliasOverrides(r io.Reader) (AliasOverrides, error) {
	var raw AliasOverrides
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return AliasOverrides{}, err
	}
	out := AliasOverrides{NameToXMLTVID: make(map[string]string, len(raw.NameToXMLTVID))}
	for name, id := range raw.NameToXMLTVID {
		key, id := NormalizeName(name), strings.TrimSpace(id)
		if key != "" && id != "" {
			out.NameToXMLTVID[key] = id
		}
	}
	return out, nil
}

// channelIndex answers directory lookups against one guide's channels.
type channelIndex struct {
	ids map[string]string // lower-cased id -> id
	// names maps a normalized id or display name to its channel id; ""
	// marks a key shared by two channels.
	names map[string]string
}

func indexChannels(channels []xmltv.RawChannel) channelIndex {
	idx := channelIndex{
		ids:   make(map[string]string, len(channels)),
		names: make(map[string]string, 2*len(channels)),
	}
	for _, ch := range channels {
		if k := strings.ToLower(strings.TrimSpace(ch.ID)); k != "" {
			idx.ids[k] = ch.ID
		}
		for _, n := range [...]string{ch.ID, ch.DisplayName} {
			key := NormalizeName(n)
			if key == "" {
				continue
			}
			if prev, seen := idx.names[key]; seen && prev != ch.ID {
				idx.names[key] = ""
			} else if !seen {
				idx.names[key] = ch.ID
			}
		}
	}
	return idx
}

// match resolves one entry: tvg-id, then alias, then unique normalized name.
func (idx channelIndex) match(e m3u.Entry, aliases AliasOverrides) ChannelMatch {
	row := ChannelMatch{EntryID: e.ID, Name: e.Name, TVGID: e.TVGID, Normalized: NormalizeName(e.Name)}
	hit := func(id string, m MatchMethod) ChannelMatch {
		row.Matched, row.MatchedXMLTV, row.Method = true, id, m
		return row
	}
	if id, ok := idx.ids[strings.ToLower(strings.TrimSpace(e.TVGID))]; ok {
		return hit(id, MatchTVGIDExact)
	}
	if row.Normalized == "" {
		row.Reason = "no deterministic match"
		return row
	}
	if id := aliases.NameToXMLTVID[row.Normalized]; id != "" {
		return hit(id, MatchAliasExact)
	}
	switch id, ok := idx.names[row.Normalized]; {
	case ok && id != "":
		return hit(id, MatchNormalizedNameExact)
	case ok:
		row.Reason = "ambiguous normalized name"
	default:
		row.Reason = "no deterministic match"
	}
	return row
}

// MatchDirectory links directory entries (playlist or iptv-org) to XMLTV
// channels. Matched rows sort first, then by name.
func MatchDirectory(entries []m3u.Entry, channels []xmltv.RawChannel, aliases AliasOverrides) Report {
	idx := indexChannels(channels)
	rep := Report{
		TotalChannels: len(entries),
		Methods:       map[string]int{},
		Rows:          make([]ChannelMatch, 0, len(entries)),
	}
	for _, e := range entries {
		row := idx.match(e, aliases)
		if row.Matched {
			rep.Matched++
			rep.Methods[string(row.Method)]++
		}
		rep.Rows = append(rep.Rows, row)
	}
	rep.Unmatched = rep.TotalChannels - rep.Matched
	sort.SliceStable(rep.Rows, func(i, j int) bool {
		a, b := rep.Rows[i], rep.Rows[j]
		if a.Matched != b.Matched {
			return a.Matched
		}
		return strings.ToLower(a.Name) < strings.ToLower(b.Name)
	})
	return rep
}

// ByXMLTVID indexes matched rows' entry ids by the XMLTV id they linked to.
// When several entries link to one id the first row wins.
func (r Report) ByXMLTVID() map[string]string {
	out := make(map[string]string, r.Matched)
	for _, row := range r.Rows {
		if !row.Matched {
			continue
		}
		if _, ok := out[row.MatchedXMLTV]; !ok {
			out[row.MatchedXMLTV] = row.EntryID
		}
	}
	return out
}

func (r Report) UnmatchedRows() []ChannelMatch {
	out := make([]ChannelMatch, 0, r.Unmatched)
	for _, row := range r.Rows {
		if !row.Matched {
			out = append(out, row)
		}
	}
	return out
}

func (r Report) SummaryString() string {
	methods := make([]string, 0, len(r.Methods))
	for k := range r.Methods {
		methods = append(methods, k)
	}
	sort.Strings(methods)
	var b strings.Builder
	fmt.Fprintf(&b, "EPG matches: %d/%d (%.1f%%)", r.Matched, r.TotalChannels, pct(r.Matched, r.TotalChannels))
	if len(methods) > 0 {
		b.WriteString(" [")
		for i, k := range methods {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%d", k, r.Methods[k])
		}
		b.WriteString("]")
	}
	return b.String()
}

// ApplyMatches returns a copy of entries with TVGID filled from matched rows.
// Entries that already carry a TVGID are left as they are.
func ApplyMatches(entries []m3u.Entry, rep Report) (out []m3u.Entry, applied int) {
	byEntry := make(map[string]ChannelMatch, len(rep.Rows))
	for _, row := range rep.Rows {
		byEntry[row.EntryID] = row
	}
	out = make([]m3u.Entry, len(entries))
	copy(out, entries)
	for i := range out {
		if strings.TrimSpace(out[i].TVGID) != "" {
			continue
		}
		row, ok := byEntry[out[i].ID]
		if !ok || !row.Matched {
			continue
		}
		out[i].TVGID = row.MatchedXMLTV
		applied++
	}
	return out, applied
}

func pct(a, b int) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) * 100 / float64(b)
}
