// Package refresh keeps a published pipeline result current: it fetches the
// configured sources, runs the pipeline, caches and persists the result, and
// serves the latest complete result to readers.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/snapetech/epgnorm/internal/cache"
	"github.com/snapetech/epgnorm/internal/compress"
	"github.com/snapetech/epgnorm/internal/fetch"
	"github.com/snapetech/epgnorm/internal/m3u"
	"github.com/snapetech/epgnorm/internal/metrics"
	"github.com/snapetech/epgnorm/internal/pipeline"
	"github.com/snapetech/epgnorm/internal/safeurl"
	"github.com/snapetech/epgnorm/internal/store"
)

// DirectoryFunc loads an extra channel directory (e.g. iptv-org) per run.
type DirectoryFunc func(ctx context.Context) ([]m3u.Entry, error)

// Sink receives every published result.
type Sink interface {
	Replace(ctx context.Context, res *pipeline.Result) error
}

type Options struct {
	// Guide is the XMLTV URL or path. When empty the run lists channels only
	// (M3U mode) from Playlist and Directory.
	Guide    string
	Playlist string
	// Directory is consulted on every run when set.
	Directory DirectoryFunc

	Pipeline *pipeline.Pipeline
	Fetcher  *fetch.Fetcher
	State    *fetch.State // conditional-GET validators; nil keeps them in memory

	CacheTTL time.Duration // <= 0: results never expire on their own
	Interval time.Duration // Loop period; <= 0 disables the loop

	Store        Sink
	SnapshotPath string
	Metrics      *metrics.Recorder
	Clock        func() time.Time
	Log          logrus.FieldLogger
}

// Status is what /api/status reports.
type Status struct {
	Guide       string    `json:"guide,omitempty"`
	Playlist    string    `json:"playlist,omitempty"`
	RunID       string    `json:"runId,omitempty"`
	GeneratedAt time.Time `json:"generatedAt,omitempty"`
	Channels    int       `json:"channels"`
	Programs    int       `json:"programs"`
	LastAttempt time.Time `json:"lastAttempt,omitempty"`
	LastError   string    `json:"lastError,omitempty"`
	Refreshing  bool      `json:"refreshing"`
	CacheAge    string    `json:"cacheAge,omitempty"`
}

// Service is safe for concurrent use. Runs for the same sources are
// collapsed into one; a run that started earlier than the published result
// never replaces it.
type Service struct {
	opts  Options
	key   string
	cache *cache.TTL[*pipeline.Result]
	group singleflight.Group
	state *fetch.State
	now   func() time.Time
	log   logrus.FieldLogger

	bodyMu sync.Mutex
	bodies map[string][]byte // last body per source, reused on 304

	mu          sync.RWMutex
	current     *pipeline.Result
	started     time.Time
	lastAttempt time.Time
	lastErr     error
	refreshing  bool
}

func New(opts Options) (*Service, error) {
	if opts.Guide == "" && opts.Playlist == "" && opts.Directory == nil {
		return nil, errors.New("refresh: no guide, playlist or directory configured")
	}
	if opts.Pipeline == nil {
		opts.Pipeline = pipeline.New(pipeline.Options{})
	}
	if opts.Fetcher == nil {
		opts.Fetcher = &fetch.Fetcher{}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger().WithField("component", "refresh")
	}
	state := opts.State
	if state == nil {
		state, _ = fetch.LoadState("")
	}
	return &Service{
		opts:   opts,
		key:    opts.Guide + "|" + opts.Playlist,
		cache:  cache.New[*pipeline.Result](opts.CacheTTL, opts.Clock),
		state:  state,
		now:    opts.Clock,
		log:    opts.Log,
		bodies: make(map[string][]byte),
	}, nil
}

// Restore publishes a previously persisted result, if any, so readers have
// data before the first run completes. It is not cached: the first Get still
// triggers a run.
func (s *Service) Restore(res *pipeline.Result) {
	if res == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		s.current = res
		s.opts.Metrics.Published(res)
	}
}

// Current returns the published result, or nil before the first success.
func (s *Service) Current() *pipeline.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Get returns the cached result when fresh, otherwise refreshes.
func (s *Service) Get(ctx context.Context) (*pipeline.Result, error) {
	if res, ok := s.cache.Get(s.key); ok {
		return res, nil
	}
	return s.Refresh(ctx, false)
}

// Refresh runs the pipeline now. force forgets the stored conditional-GET
// validators so every source is downloaded in full. Concurrent callers share
// one run; a caller whose ctx ends returns early while the run continues.
func (s *Service) Refresh(ctx context.Context, force bool) (*pipeline.Result, error) {
	if force {
		s.cache.Invalidate(s.key)
	}
	// The shared run outlives any one caller: joined callers must not see the
	// first caller's cancellation.
	done := s.group.DoChan(s.key, func() (any, error) {
		return s.run(context.WithoutCancel(ctx), force)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		if r.Shared {
			s.log.Debug("refresh: joined in-flight run")
		}
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*pipeline.Result), nil
	}
}

// Loop refreshes immediately and then every Interval until ctx ends. Run
// failures are logged and kept in Status; the previous result stays published.
func (s *Service) Loop(ctx context.Context) error {
	if _, err := s.Refresh(ctx, false); err != nil {
		s.log.WithError(err).Warn("refresh: initial run failed")
	}
	if s.opts.Interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	t := time.NewTicker(s.opts.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			// The cache would otherwise answer until its TTL elapses.
			s.cache.Invalidate(s.key)
			if _, err := s.Refresh(ctx, false); err != nil {
				s.log.WithError(err).Warn("refresh: periodic run failed")
			}
		}
	}
}

func (s *Service) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Status{
		Guide:       safeurl.Redact(s.opts.Guide),
		Playlist:    safeurl.Redact(s.opts.Playlist),
		LastAttempt: s.lastAttempt,
		Refreshing:  s.refreshing,
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	if s.current != nil {
		st.RunID = s.current.RunID
		st.GeneratedAt = s.current.GeneratedAt
		st.Channels = len(s.current.Channels)
		st.Programs = len(s.current.Programs)
	}
	if age, ok := s.cache.Age(s.key); ok {
		st.CacheAge = age.Truncate(time.Second).String()
	}
	return st
}

func (s *Service) run(ctx context.Context, force bool) (*pipeline.Result, error) {
	started := s.now()
	s.mu.Lock()
	s.refreshing = true
	s.lastAttempt = started
	s.mu.Unlock()

	res, mode, err := s.execute(ctx, force, started)
	s.opts.Metrics.ObserveRun(mode, res, err, s.now().Sub(started))

	s.mu.Lock()
	s.refreshing = false
	s.lastErr = err
	s.mu.Unlock()
	if err != nil {
		s.log.WithError(err).WithField("guide", safeurl.Redact(s.opts.Guide)).Error("refresh: run failed")
		return nil, err
	}
	s.publish(ctx, res, started)
	return res, nil
}

func (s *Service) execute(ctx context.Context, force bool, now time.Time) (*pipeline.Result, pipeline.Mode, error) {
	var directory []m3u.Entry
	if s.opts.Playlist != "" && s.opts.Guide != "" {
		body, err := s.fetch(ctx, s.opts.Playlist, force)
		if err != nil {
			return nil, pipeline.ModeXMLTV, err
		}
		plain, _, err := compress.Decode(body, s.opts.Fetcher.MaxBytes)
		if err != nil {
			return nil, pipeline.ModeXMLTV, err
		}
		entries, err := m3u.ParseBytes(plain)
		if err != nil {
			return nil, pipeline.ModeXMLTV, fmt.Errorf("refresh: playlist %s: %w", safeurl.Redact(s.opts.Playlist), err)
		}
		directory = entries
	}
	if s.opts.Directory != nil {
		entries, err := s.opts.Directory(ctx)
		if err != nil {
			return nil, pipeline.ModeXMLTV, fmt.Errorf("refresh: directory: %w", err)
		}
		directory = append(directory, entries...)
	}

	in := pipeline.Input{Source: s.opts.Guide, Mode: pipeline.ModeXMLTV, Directory: directory}
	src := s.opts.Guide
	if src == "" {
		in.Source, in.Mode, src = s.opts.Playlist, pipeline.ModeM3U, s.opts.Playlist
	}
	if src != "" {
		body, err := s.fetch(ctx, src, force)
		if err != nil {
			return nil, in.Mode, err
		}
		in.Data = body
	}
	res, err := s.opts.Pipeline.Run(ctx, in, now)
	return res, in.Mode, err
}

// fetch downloads src, reusing the last body when the server answers 304.
func (s *Service) fetch(ctx context.Context, src string, force bool) ([]byte, error) {
	s.bodyMu.Lock()
	prev, havePrev := s.bodies[src]
	s.bodyMu.Unlock()

	var v fetch.Validators
	switch {
	case force:
		if err := s.state.Forget(src); err != nil {
			s.log.WithError(err).Warn("refresh: clearing fetch state")
		}
	case havePrev:
		v = s.state.Validators(src)
	}
	r, err := s.opts.Fetcher.Get(ctx, src, v)
	if errors.Is(err, fetch.ErrNotModified) {
		s.opts.Metrics.Fetched(0, true)
		s.log.WithField("source", safeurl.Redact(src)).Debug("refresh: not modified, reusing body")
		return prev, nil
	}
	if err != nil {
		return nil, err
	}
	s.opts.Metrics.Fetched(len(r.Body), false)
	if changed, err := s.state.Record(src, r, s.now()); err != nil {
		s.log.WithError(err).Warn("refresh: saving fetch state")
	} else if !changed {
		s.log.WithField("source", safeurl.Redact(src)).Debug("refresh: content unchanged")
	}
	s.bodyMu.Lock()
	s.bodies[src] = r.Body
	s.bodyMu.Unlock()
	return r.Body, nil
}

// publish swaps res in unless a run that started later already published.
func (s *Service) publish(ctx context.Context, res *pipeline.Result, started time.Time) bool {
	s.mu.Lock()
	if s.current != nil && started.Before(s.started) {
		s.mu.Unlock()
		s.log.WithField("run", res.RunID).Debug("refresh: discarding result older than published one")
		return false
	}
	s.current, s.started = res, started
	s.mu.Unlock()

	s.cache.Set(s.key, res)
	s.opts.Metrics.Published(res)
	if s.opts.Store != nil {
		if err := s.opts.Store.Replace(ctx, res); err != nil {
			s.log.WithError(err).Warn("refresh: store replace failed")
		}
	}
	if s.opts.SnapshotPath != "" {
		if err := store.WriteSnapshot(s.opts.SnapshotPath, res); err != nil {
			s.log.WithError(err).Warn("refresh: snapshot write failed")
		}
	}
	s.log.WithFields(logrus.Fields{
		"run":      res.RunID,
		"channels": len(res.Channels),
		"programs": len(res.Programs),
	}).Info("refresh: published")
	return true
}
