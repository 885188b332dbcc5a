// Package xmltv reads XMLTV guide documents into flat channel and programme
// records. Two strategies share the DocumentParser interface: a structural
// decode of the whole <tv> tree, and a block scanner that tolerates documents
// the structural decoder rejects.
package xmltv

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/language"
)

// RawChannel is a <channel> element.
type RawChannel struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	LogoURL     string `json:"logoUrl,omitempty"`
}

// RawProgramme is a <programme> element. Start <= Stop always holds for
// records returned by a parser.
type RawProgramme struct {
	ChannelID       string
	Start           time.Time
	Stop            time.Time
	StartRaw        string
	Title           string
	Description     string
	RawCategoryText string
	Actors          []string
}

// Stats counts records seen and dropped while parsing.
type Stats struct {
	Channels   int
	Programmes int
	// Dropped by reason: "missing_field", "bad_timestamp", "inverted".
	Dropped map[string]int
}

func (s *Stats) drop(reason string) {
	if s.Dropped == nil {
		s.Dropped = make(map[string]int)
	}
	s.Dropped[reason]++
}

// DroppedTotal sums all drop reasons.
func (s Stats) DroppedTotal() int {
	n := 0
	for _, v := range s.Dropped {
		n += v
	}
	return n
}

// Document is a parsed guide.
type Document struct {
	Channels   []RawChannel
	Programmes []RawProgramme
	Stats      Stats
}

// DocumentParser turns an XMLTV byte stream into a Document.
type DocumentParser interface {
	Parse(r io.Reader) (*Document, error)
}

// Options configure both parser strategies.
type Options struct {
	Codec Codec
	// PreferLangs selects among repeated localized title/desc nodes.
	PreferLangs []language.Tag
	Log         logrus.FieldLogger
}

func (o Options) log() logrus.FieldLogger {
	if o.Log != nil {
		return o.Log
	}
	return logrus.StandardLogger().WithField("component", "xmltv")
}

// New returns the parser named by kind ("structural" or "scan").
func New(kind string, opts Options) (DocumentParser, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "structural":
		return &StructuralParser{Options: opts}, nil
	case "scan", "resilient":
		return &ScanParser{Options: opts}, nil
	}
	return nil, fmt.Errorf("xmltv: unknown parser %q", kind)
}

// buildProgramme applies the shared per-record rules: timestamps must parse
// and start must not be after stop. ok=false means the record is dropped.
func buildProgramme(c Codec, st *Stats, channel, start, stop string) (RawProgramme, bool) {
	if channel == "" || start == "" || stop == "" {
		st.drop("missing_field")
		return RawProgramme{}, false
	}
	s, err := c.Parse(start)
	if err != nil {
		st.drop("bad_timestamp")
		return RawProgramme{}, false
	}
	e, err := c.Parse(stop)
	if err != nil {
		st.drop("bad_timestamp")
		return RawProgramme{}, false
	}
	if s.After(e) {
		st.drop("inverted")
		return RawProgramme{}, false
	}
	return RawProgramme{ChannelID: channel, Start: s, Stop: e, StartRaw: strings.TrimSpace(start)}, true
}
