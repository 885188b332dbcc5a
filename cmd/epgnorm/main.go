// Command epgnorm: normalize an XMLTV guide (or M3U playlist) into a windowed,
// per-channel-capped programme listing, once or as a refreshing HTTP service.
//
//	run    One pass: fetch, normalize, write JSON to stdout or -out, persist if configured.
//	serve  Refresh on an interval and serve /api/epg, /api/channels, /api/status, /metrics.
//	check  Probe the configured sources (and optionally a running server).
//	link   Report how playlist / iptv-org channels match XMLTV channel ids.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/snapetech/epgnorm/internal/config"
	"github.com/snapetech/epgnorm/internal/logging"
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s <run|serve|check|link> [flags]\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  run    Fetch and normalize once, write JSON (use --out, --category, --day, --q, --live, --limit)\n")
	fmt.Fprintf(os.Stderr, "  serve  Refresh every EPGNORM_REFRESH_INTERVAL and serve the JSON API on EPGNORM_ADDR\n")
	fmt.Fprintf(os.Stderr, "  check  Check that the guide/playlist sources answer and decode (--server to probe a running API)\n")
	fmt.Fprintf(os.Stderr, "  link   Match playlist and iptv-org channels to guide channel ids and print the report\n")
	fmt.Fprintf(os.Stderr, "Settings come from EPGNORM_* environment variables and ./.env.\n")
}

func main() {
	_ = config.LoadEnvFile(".env")

	runCmd := pflag.NewFlagSet("run", pflag.ExitOnError)
	runOut := runCmd.StringP("out", "o", "-", "Output path for the JSON result (- = stdout)")
	runPretty := runCmd.Bool("pretty", false, "Indent JSON output")
	runCategory := runCmd.String("category", "", "Only programmes of this category (sport, cinema, series, news, entertainment, documentary, kids)")
	runDay := runCmd.String("day", "", "today, tomorrow or yesterday in EPGNORM_DISPLAY_TZ")
	runSearch := runCmd.String("q", "", "Case-insensitive search in title, channel name and description")
	runChannel := runCmd.String("channel", "", "Only programmes of this channel id")
	runLive := runCmd.Bool("live", false, "Only programmes airing now")
	runLimit := runCmd.Int("limit", 0, "Maximum programmes to write (0 = all)")

	serveCmd := pflag.NewFlagSet("serve", pflag.ExitOnError)
	serveAddr := serveCmd.String("addr", "", "Listen address (default: EPGNORM_ADDR)")
	serveInterval := serveCmd.Duration("refresh", 0, "Refresh interval (default: EPGNORM_REFRESH_INTERVAL)")

	checkCmd := pflag.NewFlagSet("check", pflag.ExitOnError)
	checkServer := checkCmd.String("server", "", "Base URL of a running epgnorm serve to probe (e.g. http://localhost:3001)")
	checkTimeout := checkCmd.Duration("timeout", 30*time.Second, "Timeout per check")

	linkCmd := pflag.NewFlagSet("link", pflag.ExitOnError)
	linkJSON := linkCmd.Bool("json", false, "Write the full report as JSON instead of a summary")
	linkUnmatched := linkCmd.Bool("unmatched", false, "List unmatched channels after the summary")

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg := config.Load()
	log, closer, err := logging.Setup(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()
	entry := log.WithField("cmd", os.Args[1])

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch os.Args[1] {
	case "run":
		_ = runCmd.Parse(os.Args[2:])
		q, err := buildQuery(*runCategory, *runDay, *runSearch, *runChannel, *runLive, *runLimit)
		if err != nil {
			fail(entry, err, closer)
		}
		if err := cfg.Validate(); err != nil {
			fail(entry, err, closer)
		}
		if err := runOnce(ctx, cfg, entry, q, *runOut, *runPretty); err != nil {
			fail(entry, err, closer)
		}

	case "serve":
		_ = serveCmd.Parse(os.Args[2:])
		if *serveAddr != "" {
			cfg.Addr = *serveAddr
		}
		if *serveInterval > 0 {
			cfg.RefreshInterval = *serveInterval
		}
		if err := cfg.Validate(); err != nil {
			fail(entry, err, closer)
		}
		if err := serve(ctx, cfg, entry); err != nil {
			fail(entry, err, closer)
		}

	case "check":
		_ = checkCmd.Parse(os.Args[2:])
		if err := check(ctx, cfg, entry, *checkServer, *checkTimeout, os.Stdout); err != nil {
			fail(entry, err, closer)
		}

	case "link":
		_ = linkCmd.Parse(os.Args[2:])
		if err := cfg.Validate(); err != nil {
			fail(entry, err, closer)
		}
		if err := link(ctx, cfg, entry, os.Stdout, *linkJSON, *linkUnmatched); err != nil {
			fail(entry, err, closer)
		}

	default:
		usage()
		os.Exit(1)
	}
}

// fail logs err, closes the log file and exits.
func fail(log logrus.FieldLogger, err error, closer io.Closer) {
	log.WithError(err).Error("epgnorm: failed")
	_ = closer.Close()
	os.Exit(1)
}
