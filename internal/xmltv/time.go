package xmltv

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // NAIVE_TZ / DISPLAY_TZ must resolve on hosts without zoneinfo

	"github.com/snapetech/epgnorm/internal/epgerr"
)

// Wire layouts. XMLTV timestamps are "YYYYMMDDHHMMSS" with an optional " +HHMM".
const (
	stampLayout       = "20060102150405"
	stampOffsetLayout = "20060102150405 -0700"
)

// Display layouts for the date-only and time-only renderings used in listings.
const (
	DisplayDate = "02/01/2006"
	DisplayTime = "15:04"
)

// Codec converts XMLTV timestamps to instants. Zone is used for stamps that
// carry no UTC offset; it must be chosen explicitly (see config NAIVE_TZ).
type Codec struct {
	Zone *time.Location
}

// ParseZone resolves the NAIVE_TZ / DISPLAY_TZ setting: "local", "utc" or an IANA name.
func ParseZone(name string) (*time.Location, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "local":
		return time.Local, nil
	case "utc", "z":
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(strings.TrimSpace(name))
	if err != nil {
		return nil, fmt.Errorf("xmltv: zone %q: %w", name, err)
	}
	return loc, nil
}

// Parse reads the fixed-width fields of raw. With a trailing ±HHMM the fields
// are taken as UTC and the offset is subtracted; otherwise they are composed in
// c.Zone. A suffix that is not a valid offset is ignored.
func (c Codec) Parse(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) < 14 {
		return time.Time{}, fmt.Errorf("%w: %q too short", epgerr.ErrMalformedTimestamp, raw)
	}
	var f [6]int
	widths := [6]int{4, 2, 2, 2, 2, 2}
	pos := 0
	for i, w := range widths {
		n, err := strconv.Atoi(raw[pos : pos+w])
		if err != nil || strings.ContainsAny(raw[pos:pos+w], "+- ") {
			return time.Time{}, fmt.Errorf("%w: %q", epgerr.ErrMalformedTimestamp, raw)
		}
		f[i] = n
		pos += w
	}
	if off, ok := parseOffset(raw[14:]); ok {
		t := time.Date(f[0], time.Month(f[1]), f[2], f[3], f[4], f[5], 0, time.UTC)
		return t.Add(-time.Duration(off) * time.Minute), nil
	}
	loc := c.Zone
	if loc == nil {
		loc = time.Local
	}
	return time.Date(f[0], time.Month(f[1]), f[2], f[3], f[4], f[5], 0, loc), nil
}

// parseOffset reads " +HHMM" / "-HHMM" and returns the offset in minutes.
func parseOffset(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if len(s) != 5 || (s[0] != '+' && s[0] != '-') {
		return 0, false
	}
	hh, err1 := strconv.Atoi(s[1:3])
	mm, err2 := strconv.Atoi(s[3:5])
	if err1 != nil || err2 != nil || strings.ContainsAny(s[1:], "+-") {
		return 0, false
	}
	off := hh*60 + mm
	if s[0] == '-' {
		off = -off
	}
	return off, true
}

// Format renders t as an offset-less stamp in c.Zone, the inverse of Parse for
// stamps without an offset.
func (c Codec) Format(t time.Time) string {
	loc := c.Zone
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(stampLayout)
}

// FormatOffset renders t with an explicit offset in minutes east of UTC.
func FormatOffset(t time.Time, offsetMinutes int) string {
	return t.In(time.FixedZone("", offsetMinutes*60)).Format(stampOffsetLayout)
}

// FormatDisplay renders t with layout in loc (nil = UTC).
func FormatDisplay(t time.Time, layout string, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(layout)
}
