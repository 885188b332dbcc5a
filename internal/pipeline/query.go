package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/snapetech/epgnorm/internal/category"
)

// Day restricts a query to one calendar day relative to now.
type Day string

const (
	AnyDay    Day = ""
	Yesterday Day = "yesterday"
	Today     Day = "today"
	Tomorrow  Day = "tomorrow"
)

// ParseDay validates a day filter value.
func ParseDay(s string) (Day, error) {
	switch d := Day(strings.ToLower(strings.TrimSpace(s))); d {
	case AnyDay, Yesterday, Today, Tomorrow:
		return d, nil
	}
	return "", fmt.Errorf("pipeline: unknown day %q", s)
}

// Query filters published programmes. Zero fields match everything.
type Query struct {
	Category category.Category
	// Search matches title, channel name or description, case-insensitively.
	Search   string
	Day      Day
	LiveOnly bool
	Channel  string
	Limit    int
}

// Filter returns the programmes matching q. Liveness and day boundaries are
// evaluated at now in loc (nil = UTC).
func (r *Result) Filter(q Query, now time.Time, loc *time.Location) []Program {
	if r == nil {
		return nil
	}
	if loc == nil {
		loc = time.UTC
	}
	var dayStart, dayEnd time.Time
	if q.Day != AnyDay {
		y, m, d := now.In(loc).Date()
		base := time.Date(y, m, d, 0, 0, 0, 0, loc)
		switch q.Day {
		case Yesterday:
			base = base.AddDate(0, 0, -1)
		case Tomorrow:
			base = base.AddDate(0, 0, 1)
		}
		dayStart, dayEnd = base, base.AddDate(0, 0, 1)
	}
	search := strings.ToLower(strings.TrimSpace(q.Search))
	out := make([]Program, 0)
	for _, p := range r.Programs {
		if q.Category != "" && p.Category != q.Category {
			continue
		}
		if q.Channel != "" && !strings.EqualFold(p.ChannelName, q.Channel) && !strings.EqualFold(p.ChannelID, q.Channel) {
			continue
		}
		if q.LiveOnly && !p.LiveAt(now) {
			continue
		}
		if q.Day != AnyDay && (p.Start.Before(dayStart) || !p.Start.Before(dayEnd)) {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(p.Title), search) &&
			!strings.Contains(strings.ToLower(p.ChannelName), search) &&
			!strings.Contains(strings.ToLower(p.Description), search) {
			continue
		}
		p.IsLive = p.LiveAt(now)
		out = append(out, p)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out
}

// Summary counts channels, programmes and programmes live at now.
type Summary struct {
	TotalChannels int `json:"totalChannels"`
	TotalPrograms int `json:"totalPrograms"`
	LivePrograms  int `json:"livePrograms"`
}

func (r *Result) Summary(now time.Time) Summary {
	if r == nil {
		return Summary{}
	}
	s := Summary{TotalChannels: len(r.Channels), TotalPrograms: len(r.Programs)}
	for _, p := range r.Programs {
		if p.LiveAt(now) {
			s.LivePrograms++
		}
	}
	return s
}
