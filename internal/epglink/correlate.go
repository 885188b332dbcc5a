package epglink

import (
	"fmt"
	"strings"

	"github.com/snapetech/epgnorm/internal/xmltv"
)

// Pair is a programme and the channel it resolved to. Channel is nil when no
// channel matched; such programmes are kept, never dropped.
type Pair struct {
	Programme xmltv.RawProgramme
	Channel   *xmltv.RawChannel
}

// Correlator joins programmes to channels and caps each channel's share.
// capPerChannel <= 0 disables the cap.
type Correlator interface {
	Correlate(channels []xmltv.RawChannel, programmes []xmltv.RawProgramme, capPerChannel int) []Pair
}

// NewCorrelator returns the strategy named by kind ("exact" or "fuzzy").
func NewCorrelator(kind string) (Correlator, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "exact":
		return ExactCorrelator{}, nil
	case "fuzzy":
		return &FuzzyCorrelator{}, nil
	}
	return nil, fmt.Errorf("epglink: unknown correlator %q", kind)
}

// ExactCorrelator matches programme channel ids to channel ids verbatim.
type ExactCorrelator struct{}

func (ExactCorrelator) Correlate(channels []xmltv.RawChannel, programmes []xmltv.RawProgramme, capPerChannel int) []Pair {
	byID := indexByID(channels)
	return capped(programmes, capPerChannel, func(id string) *xmltv.RawChannel {
		return byID[id]
	})
}

// FuzzyCorrelator falls back to case-insensitive substring matching (either
// direction) between the programme's channel token and each channel's id or
// display name when the ids disagree. Channels are tried in document order,
// so the first containing channel wins. Lookups are memoised per token.
type FuzzyCorrelator struct{}

func (*FuzzyCorrelator) Correlate(channels []xmltv.RawChannel, programmes []xmltv.RawProgramme, capPerChannel int) []Pair {
	byID := indexByID(channels)
	memo := make(map[string]*xmltv.RawChannel)
	return capped(programmes, capPerChannel, func(id string) *xmltv.RawChannel {
		if ch, ok := byID[id]; ok {
			return ch
		}
		if ch, ok := memo[id]; ok {
			return ch
		}
		ch := substringMatch(channels, id)
		memo[id] = ch
		return ch
	})
}

func substringMatch(channels []xmltv.RawChannel, token string) *xmltv.RawChannel {
	tok := strings.ToLower(strings.TrimSpace(token))
	if tok == "" {
		return nil
	}
	for i := range channels {
		for _, cand := range []string{channels[i].DisplayName, channels[i].ID} {
			c := strings.ToLower(strings.TrimSpace(cand))
			if c == "" {
				continue
			}
			if strings.Contains(c, tok) || strings.Contains(tok, c) {
				return &channels[i]
			}
		}
	}
	return nil
}

func indexByID(channels []xmltv.RawChannel) map[string]*xmltv.RawChannel {
	byID := make(map[string]*xmltv.RawChannel, len(channels))
	for i := range channels {
		if _, dup := byID[channels[i].ID]; !dup {
			byID[channels[i].ID] = &channels[i]
		}
	}
	return byID
}

// capped resolves each programme and keeps at most capPerChannel programmes per
// channel, in encounter order. The key is the resolved channel id; unresolved
// programmes are keyed by their lower-cased channel token.
func capped(programmes []xmltv.RawProgramme, capPerChannel int, resolve func(string) *xmltv.RawChannel) []Pair {
	out := make([]Pair, 0, len(programmes))
	counts := make(map[string]int)
	for _, p := range programmes {
		ch := resolve(p.ChannelID)
		key := "?" + strings.ToLower(p.ChannelID)
		if ch != nil {
			key = "=" + ch.ID
		}
		if capPerChannel > 0 && counts[key] >= capPerChannel {
			continue
		}
		counts[key]++
		out = append(out, Pair{Programme: p, Channel: ch})
	}
	return out
}
