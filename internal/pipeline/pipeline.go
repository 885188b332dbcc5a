// Package pipeline turns raw guide or playlist bytes into a published Result:
// decode, parse, window, correlate and cap, categorise, normalise.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/snapetech/epgnorm/internal/category"
	"github.com/snapetech/epgnorm/internal/compress"
	"github.com/snapetech/epgnorm/internal/epgerr"
	"github.com/snapetech/epgnorm/internal/epglink"
	"github.com/snapetech/epgnorm/internal/logo"
	"github.com/snapetech/epgnorm/internal/m3u"
	"github.com/snapetech/epgnorm/internal/window"
	"github.com/snapetech/epgnorm/internal/xmltv"
)

// DefaultUnknownChannel names programmes whose channel did not resolve.
const DefaultUnknownChannel = "Inconnu"

// Input is one run's raw material.
type Input struct {
	Source string
	Data   []byte
	Mode   Mode
	// Directory optionally enriches XMLTV channels (stream URLs, categories,
	// missing logos) through epglink.MatchDirectory. In M3U mode the entries
	// are listed after the playlist's own.
	Directory []m3u.Entry
}

// Options configure a Pipeline. Zero values fall back to the defaults noted.
type Options struct {
	Parser         xmltv.DocumentParser // default: structural, host zone
	Correlator     epglink.Correlator   // default: exact
	Window         window.Window
	CapPerChannel  int  // <= 0: unlimited
	MaxPrograms    int  // <= 0: unlimited
	SortByStart    bool // sort by start before capping
	UnknownChannel string
	CategorySource category.Source
	Logos          *logo.Resolver
	DisplayZone    *time.Location
	MaxBytes       int64 // cap on decoded size
	FailOnEmpty    bool
	Aliases        epglink.AliasOverrides
	Log            logrus.FieldLogger
}

// Pipeline runs synchronously on the calling goroutine and holds no state
// between runs, so one value can serve concurrent callers.
type Pipeline struct {
	opts Options
}

func New(opts Options) *Pipeline {
	if opts.Parser == nil {
		opts.Parser = &xmltv.StructuralParser{}
	}
	if opts.Correlator == nil {
		opts.Correlator = epglink.ExactCorrelator{}
	}
	if opts.UnknownChannel == "" {
		opts.UnknownChannel = DefaultUnknownChannel
	}
	if opts.CategorySource == "" {
		opts.CategorySource = category.FromAuto
	}
	if opts.Logos == nil {
		opts.Logos = logo.NewResolver("france", "fr")
	}
	if opts.DisplayZone == nil {
		opts.DisplayZone = time.UTC
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger().WithField("component", "pipeline")
	}
	return &Pipeline{opts: opts}
}

// Run processes in against the instant now. Whole-document failures return
// an error and no Result.
func (p *Pipeline) Run(ctx context.Context, in Input, now time.Time) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, format, err := compress.Decode(in.Data, p.opts.MaxBytes)
	if err != nil {
		return nil, err
	}
	res := &Result{
		RunID:       uuid.NewString(),
		Source:      in.Source,
		Mode:        in.Mode,
		GeneratedAt: now,
		Channels:    []Channel{},
		Programs:    []Program{},
	}
	res.Stats.Format = string(format)

	switch in.Mode {
	case ModeM3U:
		err = p.runM3U(data, in.Directory, res)
	case ModeXMLTV, "":
		res.Mode = ModeXMLTV
		err = p.runXMLTV(ctx, data, in.Directory, now, res)
	default:
		err = fmt.Errorf("pipeline: unknown mode %q", in.Mode)
	}
	if err != nil {
		return nil, err
	}
	res.Stats.Channels = len(res.Channels)
	res.Stats.Programs = len(res.Programs)
	if p.opts.FailOnEmpty && res.Empty() {
		return nil, fmt.Errorf("%w: %s produced no records", epgerr.ErrNoData, in.Source)
	}
	p.opts.Log.WithFields(logrus.Fields{
		"run":      res.RunID,
		"source":   in.Source,
		"format":   res.Stats.Format,
		"channels": res.Stats.Channels,
		"programs": res.Stats.Programs,
		"dropped":  res.Stats.Dropped,
	}).Info("pipeline: run complete")
	return res, nil
}

// runM3U lists the playlist's channels followed by any directory entries.
func (p *Pipeline) runM3U(data []byte, directory []m3u.Entry, res *Result) error {
	entries, err := m3u.ParseBytes(data)
	if err != nil {
		return fmt.Errorf("%w: m3u: %w", epgerr.ErrInvalidDocument, err)
	}
	for _, e := range entries {
		res.Channels = append(res.Channels, p.channelFromEntry(e))
	}
	res.Channels = append(res.Channels, p.Directory(directory)...)
	return nil
}

func (p *Pipeline) runXMLTV(ctx context.Context, data []byte, directory []m3u.Entry, now time.Time, res *Result) error {
	doc, err := p.opts.Parser.Parse(bytes.NewReader(data))
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	res.Stats.Parsed = len(doc.Programmes)
	res.Stats.Dropped = doc.Stats.DroppedTotal()

	progs := p.opts.Window.Filter(doc.Programmes, now)
	res.Stats.OutsideWindow = len(doc.Programmes) - len(progs)
	if p.opts.SortByStart {
		sort.SliceStable(progs, func(i, j int) bool { return progs[i].Start.Before(progs[j].Start) })
	}
	pairs := p.opts.Correlator.Correlate(doc.Channels, progs, p.opts.CapPerChannel)
	res.Stats.Capped = len(progs) - len(pairs)

	if p.opts.MaxPrograms > 0 && len(pairs) > p.opts.MaxPrograms {
		pairs = pairs[:p.opts.MaxPrograms]
	}
	res.Programs = make([]Program, 0, len(pairs))
	for i, pair := range pairs {
		prog := p.normalize(pair, i, now)
		if pair.Channel == nil {
			res.Stats.Unresolved++
		}
		if prog.IsLive {
			res.Stats.Live++
		}
		res.Programs = append(res.Programs, prog)
	}

	var byXMLTV map[string]m3u.Entry
	if len(directory) > 0 {
		rep := epglink.MatchDirectory(directory, doc.Channels, p.opts.Aliases)
		res.Stats.DirectoryLinked = rep.Matched
		entries := make(map[string]m3u.Entry, len(directory))
		for _, e := range directory {
			entries[e.ID] = e
		}
		byXMLTV = make(map[string]m3u.Entry, rep.Matched)
		for xmlID, entryID := range rep.ByXMLTVID() {
			byXMLTV[xmlID] = entries[entryID]
		}
	}
	res.Channels = make([]Channel, 0, len(doc.Channels))
	for _, c := range doc.Channels {
		ch := Channel{ID: c.ID, Name: c.DisplayName}
		if c.LogoURL != "" {
			ch.LogoURL = strPtr(c.LogoURL)
		}
		if e, ok := byXMLTV[c.ID]; ok {
			ch.Group, ch.Categories, ch.Languages = e.Group, e.Categories, e.Languages
			ch.Country, ch.StreamURL = e.Country, e.StreamURL
			if ch.LogoURL == nil && e.LogoURL != "" {
				ch.LogoURL = strPtr(e.LogoURL)
			}
		}
		res.Channels = append(res.Channels, ch)
	}
	return nil
}

// normalize builds the published record for the idx-th correlated pair.
func (p *Pipeline) normalize(pair epglink.Pair, idx int, now time.Time) Program {
	raw := pair.Programme
	prog := Program{
		ID:              raw.ChannelID + "-" + raw.StartRaw + "-" + strconv.Itoa(idx),
		Title:           raw.Title,
		ChannelID:       raw.ChannelID,
		ChannelName:     p.opts.UnknownChannel,
		Category:        category.Resolve(raw.RawCategoryText, raw.Description, p.opts.CategorySource),
		Start:           raw.Start,
		End:             raw.Stop,
		DurationMinutes: int(math.Round(raw.Stop.Sub(raw.Start).Minutes())),
		Description:     raw.Description,
		Actors:          raw.Actors,
		Date:            xmltv.FormatDisplay(raw.Start, xmltv.DisplayDate, p.opts.DisplayZone),
		StartTime:       xmltv.FormatDisplay(raw.Start, xmltv.DisplayTime, p.opts.DisplayZone),
		EndTime:         xmltv.FormatDisplay(raw.Stop, xmltv.DisplayTime, p.opts.DisplayZone),
	}
	if prog.Actors == nil {
		prog.Actors = []string{}
	}
	if ch := pair.Channel; ch != nil {
		if ch.DisplayName != "" {
			prog.ChannelName = ch.DisplayName
		}
		if u, ok := p.opts.Logos.Resolve(ch.DisplayName); ok {
			prog.LogoURL = strPtr(u)
		} else if ch.LogoURL != "" {
			prog.LogoURL = strPtr(ch.LogoURL)
		}
	}
	prog.IsLive = prog.LiveAt(now)
	return prog
}

func (p *Pipeline) channelFromEntry(e m3u.Entry) Channel {
	ch := Channel{
		ID:         e.ID,
		Name:       e.Name,
		Group:      e.Group,
		Categories: e.Categories,
		Languages:  e.Languages,
		Country:    e.Country,
		StreamURL:  e.StreamURL,
	}
	if e.LogoURL != "" {
		ch.LogoURL = strPtr(e.LogoURL)
	} else if u, ok := p.opts.Logos.Resolve(e.Name); ok {
		ch.LogoURL = strPtr(u)
	}
	return ch
}

// Directory converts directory entries to published channels, the way an M3U
// run does.
func (p *Pipeline) Directory(entries []m3u.Entry) []Channel {
	out := make([]Channel, 0, len(entries))
	for _, e := range entries {
		out = append(out, p.channelFromEntry(e))
	}
	return out
}

func strPtr(s string) *string { return &s }
