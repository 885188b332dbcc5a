// Package m3u parses extended M3U playlists into channel directory entries.
package m3u

import (
	"bufio"
	"bytes"
	"hash/fnv"
	"io"
	"regexp"
	"strconv"
	"strings"
)

const maxLineSize = 1 << 20 // 1 MiB per line

// Entry is one playlist channel.
type Entry struct {
	ID         string   `json:"id"`
	TVGID      string   `json:"tvgId,omitempty"`
	Name       string   `json:"name"`
	LogoURL    string   `json:"logoUrl,omitempty"`
	Group      string   `json:"group,omitempty"`
	Categories []string `json:"categories,omitempty"`
	Languages  []string `json:"languages,omitempty"`
	Country    string   `json:"country,omitempty"`
	StreamURL  string   `json:"streamUrl"`
}

var attrRe = regexp.MustCompile(`([A-Za-z0-9_-]+)="([^"]*)"`)

type state int

const (
	awaitingMetadata state = iota
	awaitingURL
)

// Parse reads a playlist. A metadata line left without a URL at end of input
// is discarded.
func Parse(r io.Reader) ([]Entry, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(nil, maxLineSize)
	var (
		entries []Entry
		extinf  string
		st      = awaitingMetadata
	)
	for sc.Scan() {
		line := strings.TrimSpace(strings.TrimPrefix(sc.Text(), "\ufeff"))
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#EXTINF:") {
			// A second metadata line replaces a pending one.
			extinf = line
			st = awaitingURL
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue
		}
		if st == awaitingURL {
			entries = append(entries, entryFromEXTINF(extinf, line))
			extinf = ""
			st = awaitingMetadata
		}
	}
	return entries, sc.Err()
}

// ParseBytes parses a playlist held in memory.
func ParseBytes(data []byte) ([]Entry, error) {
	return Parse(bytes.NewReader(data))
}

func entryFromEXTINF(extinf, url string) Entry {
	attrs := attributes(extinf)
	e := Entry{
		TVGID:     attrs["tvg-id"],
		Name:      displayName(extinf),
		LogoURL:   attrs["tvg-logo"],
		Group:     attrs["group-title"],
		Country:   attrs["tvg-country"],
		StreamURL: url,
	}
	if e.Name == "" {
		e.Name = attrs["tvg-name"]
	}
	e.Categories = splitList(e.Group)
	e.Languages = splitList(attrs["tvg-language"])
	e.ID = e.TVGID
	if e.ID == "" {
		e.ID = stableID(url, extinf)
	}
	return e
}

func attributes(extinf string) map[string]string {
	out := make(map[string]string, 6)
	for _, m := range attrRe.FindAllStringSubmatch(extinf, -1) {
		out[strings.ToLower(m[1])] = strings.TrimSpace(m[2])
	}
	return out
}

// displayName is the text after the last comma on the line. Commas inside
// quoted attribute values do not count.
func displayName(extinf string) string {
	last, quoted := -1, false
	for i := 0; i < len(extinf); i++ {
		switch extinf[i] {
		case '"':
			quoted = !quoted
		case ',':
			if !quoted {
				last = i
			}
		}
	}
	if last < 0 {
		return ""
	}
	return strings.TrimSpace(extinf[last+1:])
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ";") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// stableID derives an id from the URL and #EXTINF line so re-parses agree.
func stableID(url, extinf string) string {
	h := fnv.New64a()
	h.Write([]byte(url))
	h.Write([]byte{0})
	h.Write([]byte(extinf))
	return "id_" + strconv.FormatUint(h.Sum64(), 16)
}
