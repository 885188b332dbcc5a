package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/snapetech/epgnorm/internal/api"
	"github.com/snapetech/epgnorm/internal/category"
	"github.com/snapetech/epgnorm/internal/compress"
	"github.com/snapetech/epgnorm/internal/config"
	"github.com/snapetech/epgnorm/internal/epglink"
	"github.com/snapetech/epgnorm/internal/fetch"
	"github.com/snapetech/epgnorm/internal/health"
	"github.com/snapetech/epgnorm/internal/httpclient"
	"github.com/snapetech/epgnorm/internal/iptvorg"
	"github.com/snapetech/epgnorm/internal/m3u"
	"github.com/snapetech/epgnorm/internal/metrics"
	"github.com/snapetech/epgnorm/internal/pipeline"
	"github.com/snapetech/epgnorm/internal/refresh"
	"github.com/snapetech/epgnorm/internal/store"
)

func buildQuery(cat, day, search, channel string, live bool, limit int) (pipeline.Query, error) {
	var q pipeline.Query
	if c := strings.TrimSpace(cat); c != "" && !strings.EqualFold(c, "all") {
		parsed, err := category.Parse(c)
		if err != nil {
			return q, err
		}
		q.Category = parsed
	}
	d, err := pipeline.ParseDay(day)
	if err != nil {
		return q, err
	}
	if limit < 0 {
		return q, errors.New("limit must be >= 0")
	}
	q.Day = d
	q.Search = search
	q.Channel = strings.TrimSpace(channel)
	q.LiveOnly = live
	q.Limit = limit
	return q, nil
}

// newService wires fetch, pipeline, directory and persistence into a refresh
// service. The returned func closes the database, if one was opened.
func newService(ctx context.Context, cfg *config.Config, log logrus.FieldLogger, rec *metrics.Recorder) (*refresh.Service, *store.SQLite, func(), error) {
	popts, err := cfg.PipelineOptions(log)
	if err != nil {
		return nil, nil, nil, err
	}
	f := cfg.Fetcher(log)
	state, err := fetch.LoadState(cfg.StateFile)
	if err != nil {
		return nil, nil, nil, err
	}
	opts := refresh.Options{
		Guide:        cfg.GuideSource(),
		Playlist:     cfg.PlaylistSource(),
		Pipeline:     pipeline.New(popts),
		Fetcher:      f,
		State:        state,
		CacheTTL:     cfg.CacheTTL,
		Interval:     cfg.RefreshInterval,
		SnapshotPath: cfg.SnapshotPath,
		Metrics:      rec,
		Log:          log.WithField("component", "refresh"),
	}
	if c := cfg.IPTVOrg(f, log); c != nil {
		opts.Directory = c.Directory
	}
	cleanup := func() {}
	var db *store.SQLite
	if cfg.DBPath != "" {
		db, err = store.Open(ctx, cfg.DBPath)
		if err != nil {
			return nil, nil, nil, err
		}
		opts.Store = db
		cleanup = func() {
			if err := db.Close(); err != nil {
				log.WithError(err).Warn("store: close")
			}
		}
	}
	svc, err := refresh.New(opts)
	if err != nil {
		cleanup()
		return nil, nil, nil, err
	}
	return svc, db, cleanup, nil
}

// runOnce refreshes once, filters by q and writes the result as JSON to out
// ("-" = stdout).
func runOnce(ctx context.Context, cfg *config.Config, log logrus.FieldLogger, q pipeline.Query, out string, pretty bool) error {
	svc, _, cleanup, err := newService(ctx, cfg, log, nil)
	if err != nil {
		return err
	}
	defer cleanup()
	res, err := svc.Refresh(ctx, false)
	if err != nil {
		return err
	}
	zone, err := cfg.DisplayZone()
	if err != nil {
		return err
	}

	view := *res
	if q != (pipeline.Query{}) {
		view.Programs = res.Filter(q, time.Now(), zone)
	}
	if view.Programs == nil {
		view.Programs = []pipeline.Program{}
	}
	if view.Channels == nil {
		view.Channels = []pipeline.Channel{}
	}
	b, err := encode(&view, pretty)
	if err != nil {
		return err
	}
	if out == "" || out == "-" {
		_, err = os.Stdout.Write(b)
		return err
	}
	if err := os.WriteFile(out, b, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	log.WithFields(logrus.Fields{"path": out, "programs": len(view.Programs), "channels": len(view.Channels)}).Info("run: wrote result")
	return nil
}

func encode(v any, pretty bool) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	if pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// restore publishes the last persisted result so the API answers before the
// first refresh finishes. The snapshot file is preferred over the database.
func restore(ctx context.Context, svc *refresh.Service, cfg *config.Config, db *store.SQLite, log logrus.FieldLogger) {
	var (
		res *pipeline.Result
		err error
	)
	switch {
	case cfg.SnapshotPath != "":
		res, err = store.ReadSnapshot(cfg.SnapshotPath)
	case db != nil:
		res, err = db.Load(ctx)
	default:
		return
	}
	if errors.Is(err, store.ErrNoSnapshot) {
		return
	}
	if err != nil {
		log.WithError(err).Warn("serve: restore failed")
		return
	}
	svc.Restore(res)
	log.WithFields(logrus.Fields{"run": res.RunID, "programs": len(res.Programs)}).Info("serve: restored last result")
}

// serve runs the refresh loop and the API until ctx ends.
func serve(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.New(reg)

	svc, db, cleanup, err := newService(ctx, cfg, log, rec)
	if err != nil {
		return err
	}
	defer cleanup()
	restore(ctx, svc, cfg, db, log)

	zone, err := cfg.DisplayZone()
	if err != nil {
		return err
	}
	apiSrv := &api.Server{
		Source:      svc,
		DisplayZone: zone,
		Metrics:     rec,
		Log:         log.WithField("component", "api"),
	}
	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           apiSrv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := svc.Loop(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		log.WithField("addr", cfg.Addr).Info("serve: listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// check probes each configured source and, when server is set, a running API.
// Every failure is reported; the returned error joins them.
func check(ctx context.Context, cfg *config.Config, log logrus.FieldLogger, server string, timeout time.Duration, w io.Writer) error {
	client := httpclient.WithTimeout(timeout)
	var sources []string
	if s := cfg.GuideSource(); s != "" {
		sources = append(sources, s)
	}
	if s := cfg.PlaylistSource(); s != "" {
		sources = append(sources, s)
	}
	if cfg.IPTVOrgEnabled {
		sources = append(sources, strings.TrimSuffix(cfg.IPTVOrgBaseURL, "/")+"/channels.json")
	}
	if len(sources) == 0 && server == "" && cfg.DBPath == "" {
		return errors.New("nothing to check: configure a source or pass --server")
	}

	var errs []error
	for _, src := range sources {
		cctx, cancel := context.WithTimeout(ctx, timeout)
		rep, err := health.CheckSource(cctx, client, src)
		cancel()
		if err != nil {
			fmt.Fprintf(w, "FAIL %s: %v\n", src, err)
			errs = append(errs, err)
			continue
		}
		fmt.Fprintf(w, "OK   %s (format=%s status=%d)\n", src, rep.Format, rep.StatusCode)
	}
	if server != "" {
		cctx, cancel := context.WithTimeout(ctx, timeout)
		err := health.CheckEndpoints(cctx, server)
		cancel()
		if err != nil {
			fmt.Fprintf(w, "FAIL %s: %v\n", server, err)
			errs = append(errs, fmt.Errorf("server %s: %w", server, err))
		} else {
			fmt.Fprintf(w, "OK   %s\n", server)
		}
	}
	if cfg.DBPath != "" {
		if err := checkStore(ctx, cfg.DBPath, w); err != nil {
			fmt.Fprintf(w, "FAIL %s: %v\n", cfg.DBPath, err)
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	log.WithField("checked", len(sources)).Info("check: all sources OK")
	return nil
}

func checkStore(ctx context.Context, path string, w io.Writer) error {
	db, err := store.Open(ctx, path)
	if err != nil {
		return err
	}
	defer db.Close()
	channels, programs, err := db.Counts(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "OK   %s (channels=%d programs=%d)\n", path, channels, programs)
	return nil
}

// link matches the playlist and iptv-org entries against the guide's channels
// and writes the report.
func link(ctx context.Context, cfg *config.Config, log logrus.FieldLogger, w io.Writer, asJSON, unmatched bool) error {
	guide := cfg.GuideSource()
	if guide == "" {
		return fmt.Errorf("link needs %sXMLTV_URL or %sXMLTV_FILE", config.Prefix, config.Prefix)
	}
	popts, err := cfg.PipelineOptions(log)
	if err != nil {
		return err
	}
	f := cfg.Fetcher(log)

	body, err := fetchPlain(ctx, f, guide, cfg.MaxBytes)
	if err != nil {
		return err
	}
	doc, err := popts.Parser.Parse(bytes.NewReader(body))
	if err != nil {
		return err
	}

	var entries []m3u.Entry
	if pl := cfg.PlaylistSource(); pl != "" {
		body, err := fetchPlain(ctx, f, pl, cfg.MaxBytes)
		if err != nil {
			return err
		}
		if entries, err = m3u.ParseBytes(body); err != nil {
			return fmt.Errorf("playlist %s: %w", pl, err)
		}
	}
	if c := cfg.IPTVOrg(f, log); c != nil {
		db, err := c.Fetch(ctx)
		if err != nil {
			return err
		}
		if n := db.Enrich(entries); n > 0 {
			log.WithField("enriched", n).Info("link: filled tvg-id from iptv-org")
		}
		entries = append(entries, db.Entries(c.Filter)...)
	}
	if len(entries) == 0 {
		return errors.New("link: no playlist or directory entries to match")
	}

	rep := epglink.MatchDirectory(entries, doc.Channels, popts.Aliases)
	if err := writeReport(w, rep, asJSON, unmatched); err != nil || asJSON {
		return err
	}
	_, fillable := epglink.ApplyMatches(entries, rep)
	fmt.Fprintf(w, "tvg-id fillable by name: %d\n", fillable)
	if groups := groupSummary(iptvorg.Group(entries)); groups != "" {
		fmt.Fprintf(w, "directory by category: %s\n", groups)
	}
	return nil
}

func groupSummary(groups map[category.Category][]m3u.Entry) string {
	var parts []string
	for _, c := range category.All {
		if n := len(groups[c]); n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", c, n))
		}
	}
	return strings.Join(parts, " ")
}

func writeReport(w io.Writer, rep epglink.Report, asJSON, unmatched bool) error {
	if asJSON {
		b, err := encode(rep, true)
		if err != nil {
			return err
		}
		_, err = w.Write(b)
		return err
	}
	fmt.Fprintln(w, rep.SummaryString())
	if unmatched {
		for _, row := range rep.UnmatchedRows() {
			fmt.Fprintf(w, "  %s\t%s\t%s\n", row.Name, row.TVGID, row.Reason)
		}
	}
	return nil
}

func fetchPlain(ctx context.Context, f *fetch.Fetcher, src string, maxBytes int64) ([]byte, error) {
	r, err := f.Get(ctx, src, fetch.Validators{})
	if err != nil {
		return nil, err
	}
	body, _, err := compress.Decode(r.Body, maxBytes)
	return body, err
}
