package pipeline

import (
	"time"

	"github.com/snapetech/epgnorm/internal/category"
)

// Mode selects how input bytes are interpreted.
type Mode string

const (
	ModeXMLTV Mode = "xmltv"
	ModeM3U   Mode = "m3u"
)

// Program is one normalized programme record.
type Program struct {
	ID              string            `json:"id"`
	Title           string            `json:"title"`
	ChannelID       string            `json:"channelId"`
	ChannelName     string            `json:"channelName"`
	Category        category.Category `json:"category"`
	Start           time.Time         `json:"start"`
	End             time.Time         `json:"end"`
	DurationMinutes int               `json:"durationMinutes"`
	Description     string            `json:"description"`
	LogoURL         *string           `json:"logoUrl"`
	IsLive          bool              `json:"isLive"`
	Actors          []string          `json:"actors"`

	// Display renderings in the configured display zone.
	Date      string `json:"date,omitempty"`
	StartTime string `json:"startTime,omitempty"`
	EndTime   string `json:"endTime,omitempty"`
}

// LiveAt reports whether now falls within [Start, End].
func (p Program) LiveAt(now time.Time) bool {
	return !now.Before(p.Start) && !now.After(p.End)
}

// Channel is one entry of the published channel listing.
type Channel struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	LogoURL    *string  `json:"logo"`
	Group      string   `json:"group,omitempty"`
	Categories []string `json:"categories,omitempty"`
	Languages  []string `json:"languages,omitempty"`
	Country    string   `json:"country,omitempty"`
	StreamURL  string   `json:"streamUrl,omitempty"`
}

// Stats describes one run.
type Stats struct {
	Format          string `json:"format"`
	Channels        int    `json:"channels"`
	Parsed          int    `json:"parsed"`
	Dropped         int    `json:"dropped"`
	OutsideWindow   int    `json:"outsideWindow"`
	Capped          int    `json:"capped"`
	Unresolved      int    `json:"unresolved"`
	DirectoryLinked int    `json:"directoryLinked,omitempty"`
	Programs        int    `json:"programs"`
	Live            int    `json:"live"`
}

// Result is the complete output of a run. It is never modified after Run
// returns it.
type Result struct {
	RunID       string    `json:"runId"`
	Source      string    `json:"source,omitempty"`
	Mode        Mode      `json:"mode"`
	GeneratedAt time.Time `json:"generatedAt"`
	Channels    []Channel `json:"channels"`
	Programs    []Program `json:"programs"`
	Stats       Stats     `json:"stats"`
}

// Empty reports whether the run produced nothing to show. It is not an error
// by itself.
func (r *Result) Empty() bool {
	return r == nil || (len(r.Programs) == 0 && len(r.Channels) == 0) ||
		(r.Mode == ModeXMLTV && len(r.Programs) == 0)
}
