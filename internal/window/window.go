// Package window keeps programmes whose airing interval intersects a
// retention window around "now".
package window

import (
	"fmt"
	"strings"
	"time"

	"github.com/snapetech/epgnorm/internal/xmltv"
)

// Unbounded disables one side of a Window.
const Unbounded time.Duration = -1

// Window is [now-Past, now+Future]. Past = 0 keeps only current and upcoming
// programmes.
type Window struct {
	Past   time.Duration
	Future time.Duration
}

// All keeps everything.
var All = Window{Past: Unbounded, Future: Unbounded}

// Contains reports whether [start, stop] intersects the window at now. Both
// bounds are inclusive.
func (w Window) Contains(start, stop, now time.Time) bool {
	if w.Past >= 0 && stop.Before(now.Add(-w.Past)) {
		return false
	}
	if w.Future >= 0 && start.After(now.Add(w.Future)) {
		return false
	}
	return true
}

// Filter returns the programmes inside the window, in input order.
func (w Window) Filter(programmes []xmltv.RawProgramme, now time.Time) []xmltv.RawProgramme {
	out := make([]xmltv.RawProgramme, 0, len(programmes))
	for _, p := range programmes {
		if w.Contains(p.Start, p.Stop, now) {
			out = append(out, p)
		}
	}
	return out
}

func (w Window) String() string {
	return fmt.Sprintf("past=%s future=%s", side(w.Past), side(w.Future))
}

func side(d time.Duration) string {
	if d < 0 {
		return "unbounded"
	}
	return d.String()
}

// ParseHorizon reads a horizon setting. "", "unbounded", "none" and "-1" mean
// Unbounded.
func ParseHorizon(s string) (time.Duration, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "unbounded", "none", "-1":
		return Unbounded, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("window: horizon %q: %w", s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("window: horizon %q is negative", s)
	}
	return d, nil
}
