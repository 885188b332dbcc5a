// Package iptvorg builds a channel directory from the iptv-org public API
// (channels.json, streams.json and logos.json).
//
// # What it does
//
// The three documents are downloaded in parallel and joined on the channel id.
// Channels are kept when they have a stream and match the configured
// languages, countries, or a sports category. The result is a list of
// m3u.Entry values so the pipeline treats it exactly like a playlist.
//
// # Matching strategy
//
// EnrichTVGID assigns iptv-org ids to playlist entries that have none:
//
//  1. Exact normalised name match (channel.name or alt_names[]).
//  2. Normalised name match after stripping country prefix ("FR: ", "BE: ", etc.)
//     and quality markers (HD, 4K, RAW).
//  3. Short-code match against the first segment of channel.id
//     (e.g. "tf1" in "TF1.fr").
package iptvorg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/snapetech/epgnorm/internal/category"
	"github.com/snapetech/epgnorm/internal/fetch"
	"github.com/snapetech/epgnorm/internal/m3u"
)

// DefaultBaseURL is the public API root.
const DefaultBaseURL = "https://iptv-org.github.io/api"

var (
	// DefaultLanguages are ISO 639-2 codes of francophone, arabophone and
	// anglophone channels.
	DefaultLanguages = []string{"fra", "fre", "ara", "eng"}
	// DefaultCountries covers France, its neighbours and francophone and
	// sub-Saharan Africa.
	DefaultCountries = []string{
		"fr", "be", "ch", "ca", "dz", "ma", "tn", "sn", "ci", "cm", "cd",
		"bf", "ml", "ne", "tg", "bj", "gn", "rw", "bi", "td", "cf", "ga",
		"cg", "mg", "km", "sc", "mu", "dj", "za", "ng", "ke", "gh", "ug",
		"tz", "et", "zw", "zm", "mw", "ao", "mz", "na", "bw", "ls", "sz",
	}
)

// Channel is one record from channels.json.
type Channel struct {
	ID         string   `json:"id"`        // e.g. "TF1.fr"
	Name       string   `json:"name"`      // e.g. "TF1"
	AltNames   []string `json:"alt_names"` // alternative display names
	Country    string   `json:"country"`   // ISO 3166-1 alpha-2, e.g. "FR"
	Categories []string `json:"categories"`
	Languages  []string `json:"languages"`
	IsNSFW     bool     `json:"is_nsfw"`
	// Older API versions carried the logo inline.
	Logo string `json:"logo"`
}

// Stream is one record from streams.json.
type Stream struct {
	Channel string `json:"channel"`
	URL     string `json:"url"`
}

// Logo is one record from logos.json.
type Logo struct {
	Channel string `json:"channel"`
	URL     string `json:"url"`
}

// Filter selects channels. A channel passes when it matches any of the three
// criteria and, with RequireStream, has a stream.
type Filter struct {
	Languages     []string
	Countries     []string
	IncludeSports bool
	RequireStream bool
	IncludeNSFW   bool
}

// DefaultFilter mirrors the francophone/African/sports selection.
func DefaultFilter() Filter {
	return Filter{
		Languages:     DefaultLanguages,
		Countries:     DefaultCountries,
		IncludeSports: true,
		RequireStream: true,
	}
}

// Client downloads and joins the API documents.
type Client struct {
	BaseURL string
	Fetcher *fetch.Fetcher
	Filter  Filter
	Log     logrus.FieldLogger
}

func (c *Client) log() logrus.FieldLogger {
	if c.Log != nil {
		return c.Log
	}
	return logrus.StandardLogger().WithField("component", "iptvorg")
}

// DB is the joined listing with lookup indices.
type DB struct {
	Channels []Channel
	streams  map[string]string // channel id -> first stream URL
	logos    map[string]string // channel id -> first logo URL

	byNormName  map[string][]string // normalised name → []channel.ID (may have multiple)
	byShortCode map[string][]string // short code (first segment of id) → []channel.ID
}

// Len returns the number of channels in the DB.
func (db *DB) Len() int { return len(db.Channels) }

// Fetch downloads the three documents concurrently. channels.json is
// required; a failed streams.json or logos.json only leaves those maps empty.
func (c *Client) Fetch(ctx context.Context) (*DB, error) {
	base := strings.TrimSuffix(c.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	f := c.Fetcher
	if f == nil {
		f = &fetch.Fetcher{}
	}
	var (
		channels []Channel
		streams  []Stream
		logos    []Logo
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return getJSON(gctx, f, base+"/channels.json", &channels)
	})
	g.Go(func() error {
		if err := getJSON(gctx, f, base+"/streams.json", &streams); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			c.log().WithError(err).Warn("iptvorg: streams.json unavailable")
		}
		return nil
	})
	g.Go(func() error {
		if err := getJSON(gctx, f, base+"/logos.json", &logos); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			c.log().WithError(err).Warn("iptvorg: logos.json unavailable")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	db := NewDB(channels, streams, logos)
	c.log().WithFields(logrus.Fields{
		"channels": len(channels),
		"streams":  len(db.streams),
		"logos":    len(db.logos),
	}).Info("iptvorg: fetched")
	return db, nil
}

// Directory fetches the API and returns the filtered entries. It has the
// shape of refresh.DirectoryFunc.
func (c *Client) Directory(ctx context.Context) ([]m3u.Entry, error) {
	db, err := c.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	return db.Entries(c.Filter), nil
}

func getJSON(ctx context.Context, f *fetch.Fetcher, url string, v any) error {
	r, err := f.Get(ctx, url, fetch.Validators{})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("iptvorg: parse %s: %w", url, err)
	}
	return nil
}

// NewDB joins the documents; the first stream and logo per channel win.
func NewDB(channels []Channel, streams []Stream, logos []Logo) *DB {
	db := &DB{
		Channels: channels,
		streams:  make(map[string]string, len(streams)),
		logos:    make(map[string]string, len(logos)),
	}
	for _, s := range streams {
		if s.Channel != "" && s.URL != "" {
			if _, ok := db.streams[s.Channel]; !ok {
				db.streams[s.Channel] = s.URL
			}
		}
	}
	for _, l := range logos {
		if l.Channel != "" && l.URL != "" {
			if _, ok := db.logos[l.Channel]; !ok {
				db.logos[l.Channel] = l.URL
			}
		}
	}
	db.buildIndices()
	return db
}

// Entries returns the channels passing f, in API order.
func (db *DB) Entries(f Filter) []m3u.Entry {
	langs := lowerSet(f.Languages)
	countries := lowerSet(f.Countries)
	out := make([]m3u.Entry, 0)
	for _, ch := range db.Channels {
		if ch.IsNSFW && !f.IncludeNSFW {
			continue
		}
		stream, hasStream := db.streams[ch.ID]
		if f.RequireStream && !hasStream {
			continue
		}
		if !f.matches(ch, langs, countries) {
			continue
		}
		logo := db.logos[ch.ID]
		if logo == "" {
			logo = ch.Logo
		}
		out = append(out, m3u.Entry{
			ID:         ch.ID,
			TVGID:      ch.ID,
			Name:       ch.Name,
			LogoURL:    logo,
			Categories: ch.Categories,
			Languages:  ch.Languages,
			Country:    strings.ToLower(ch.Country),
			StreamURL:  stream,
		})
	}
	return out
}

func (f Filter) matches(ch Channel, langs, countries map[string]bool) bool {
	if len(langs) == 0 && len(countries) == 0 && !f.IncludeSports {
		return true
	}
	for _, l := range ch.Languages {
		if langs[strings.ToLower(l)] {
			return true
		}
	}
	if countries[strings.ToLower(ch.Country)] {
		return true
	}
	if f.IncludeSports {
		for _, c := range ch.Categories {
			if strings.Contains(strings.ToLower(c), "sport") {
				return true
			}
		}
	}
	return false
}

func lowerSet(vals []string) map[string]bool {
	m := make(map[string]bool, len(vals))
	for _, v := range vals {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			m[v] = true
		}
	}
	return m
}

// Group sorts entries into the programme categories by their iptv-org
// categories. An entry may appear in several groups.
func Group(entries []m3u.Entry) map[category.Category][]m3u.Entry {
	return category.Categorize(entries, func(e m3u.Entry) []string { return e.Categories })
}

// EnrichTVGID attempts to find an iptv-org channel ID for a channel identified by
// its current tvg-id (may be empty) and display name.
// Returns the iptv-org channel ID (e.g. "TF1.fr") and the match method, or ("", "").
func (db *DB) EnrichTVGID(currentTVGID, displayName string) (channelID string, method string) {
	if displayName != "" {
		n := normName(displayName)
		if ids := db.byNormName[n]; len(ids) == 1 {
			return ids[0], "iptvorg_name_exact"
		}
	}

	stripped := stripForMatch(displayName)
	if stripped != "" && stripped != normName(displayName) {
		if ids := db.byNormName[stripped]; len(ids) == 1 {
			return ids[0], "iptvorg_name_stripped"
		}
	}

	if currentTVGID != "" {
		sc := shortCode(currentTVGID)
		if sc != "" {
			if ids := db.byShortCode[sc]; len(ids) == 1 {
				return ids[0], "iptvorg_shortcode"
			}
		}
	}

	return "", ""
}

// Enrich fills TVGID on entries that lack one and returns how many it set.
// entries is modified in place.
func (db *DB) Enrich(entries []m3u.Entry) int {
	n := 0
	for i := range entries {
		if entries[i].TVGID != "" {
			continue
		}
		if id, _ := db.EnrichTVGID("", entries[i].Name); id != "" {
			entries[i].TVGID = id
			n++
		}
	}
	return n
}

// --- index build -------------------------------------------------------------

func (db *DB) buildIndices() {
	db.byNormName = make(map[string][]string, len(db.Channels)*2)
	db.byShortCode = make(map[string][]string, len(db.Channels))

	for _, ch := range db.Channels {
		id := ch.ID
		names := append([]string{ch.Name}, ch.AltNames...)
		for _, n := range names {
			k := normName(n)
			if k != "" {
				db.byNormName[k] = appendUniq(db.byNormName[k], id)
			}
			ks := stripForMatch(n)
			if ks != "" && ks != k {
				db.byNormName[ks] = appendUniq(db.byNormName[ks], id)
			}
		}
		sc := shortCode(id)
		if sc != "" {
			db.byShortCode[sc] = appendUniq(db.byShortCode[sc], id)
		}
	}
}

func appendUniq(s []string, v string) []string {
	for _, x := range s {
		if x == v {
			return s
		}
	}
	return append(s, v)
}

// --- normalisation -----------------------------------------------------------

// qualityMarkerRe strips common quality/re-encode suffixes used in IPTV feeds.
var qualityMarkerRe = regexp.MustCompile(
	`(?i)\s*(HD2?|UHD|4K|8K|SD|RAW|FHD|ᴴᴰ|ᵁᴴᴰ|ᴿᴬᵂ)\s*$`,
)

// countryPrefixMatchRe strips "FR: ", "BE: ", "UK: " etc from the start of names.
var countryPrefixMatchRe = regexp.MustCompile(`(?i)^[A-Z]{1,5}:\s*`)

var nonAlphanumRe = regexp.MustCompile(`[^a-z0-9 ]`)

func normName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = nonAlphanumRe.ReplaceAllString(s, " ")
	for strings.Contains(s, "  ") {
		s = strings.ReplaceAll(s, "  ", " ")
	}
	return strings.TrimSpace(s)
}

func stripForMatch(s string) string {
	s = strings.TrimSpace(s)
	s = countryPrefixMatchRe.ReplaceAllString(s, "")
	s = qualityMarkerRe.ReplaceAllString(s, "")
	return normName(s)
}

// shortCode is the id without its country suffix: "TF1.fr" → "tf1".
func shortCode(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	if at := strings.IndexByte(id, '@'); at >= 0 {
		id = id[:at]
	}
	if dot := strings.LastIndexByte(id, '.'); dot >= 0 {
		id = id[:dot]
	}
	if slash := strings.LastIndexByte(id, '/'); slash >= 0 {
		id = id[slash+1:]
	}
	id = strings.TrimSpace(id)
	if len(id) < 2 || len(id) > 20 {
		return ""
	}
	return id
}
