// Package metrics holds the Prometheus instrumentation for pipeline runs,
// upstream fetches and the HTTP API.
//
// Exposed series:
//
//	epgnorm_runs_total{mode,result}
//	epgnorm_run_duration_seconds{mode}
//	epgnorm_dropped_records_total{stage}
//	epgnorm_published_programs
//	epgnorm_published_channels
//	epgnorm_fetch_bytes_total
//	epgnorm_fetch_not_modified_total
//	epgnorm_http_requests_total{route,method,status}
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/snapetech/epgnorm/internal/pipeline"
)

// Recorder owns one set of collectors. A nil *Recorder records nothing.
type Recorder struct {
	runs         *prometheus.CounterVec
	runDuration  *prometheus.HistogramVec
	dropped      *prometheus.CounterVec
	programs     prometheus.Gauge
	channels     prometheus.Gauge
	fetchBytes   prometheus.Counter
	notModified  prometheus.Counter
	httpRequests *prometheus.CounterVec
	gatherer     prometheus.Gatherer
}

// New registers the collectors with reg. Pass prometheus.NewRegistry() in
// tests; registering twice on the same registry panics.
func New(reg *prometheus.Registry) *Recorder {
	r := &Recorder{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "epgnorm_runs_total",
			Help: "Pipeline runs by input mode and result.",
		}, []string{"mode", "result"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "epgnorm_run_duration_seconds",
			Help:    "Wall time of a pipeline run including fetch.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"mode"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "epgnorm_dropped_records_total",
			Help: "Programme records removed by stage.",
		}, []string{"stage"}),
		programs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "epgnorm_published_programs",
			Help: "Programmes in the currently published result.",
		}),
		channels: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "epgnorm_published_channels",
			Help: "Channels in the currently published result.",
		}),
		fetchBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "epgnorm_fetch_bytes_total",
			Help: "Bytes read from upstream sources.",
		}),
		notModified: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "epgnorm_fetch_not_modified_total",
			Help: "Upstream fetches answered with 304 Not Modified.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "epgnorm_http_requests_total",
			Help: "API requests by route template, method and status.",
		}, []string{"route", "method", "status"}),
		gatherer: reg,
	}
	reg.MustRegister(r.runs, r.runDuration, r.dropped, r.programs, r.channels,
		r.fetchBytes, r.notModified, r.httpRequests)
	return r
}

// ObserveRun records one finished run. res is nil when the run failed.
func (r *Recorder) ObserveRun(mode pipeline.Mode, res *pipeline.Result, err error, took time.Duration) {
	if r == nil {
		return
	}
	if mode == "" {
		mode = pipeline.ModeXMLTV
	}
	result := "ok"
	switch {
	case err != nil:
		result = "error"
	case res.Empty():
		result = "empty"
	}
	r.runs.WithLabelValues(string(mode), result).Inc()
	r.runDuration.WithLabelValues(string(mode)).Observe(took.Seconds())
	if res == nil {
		return
	}
	r.dropped.WithLabelValues("parse").Add(float64(res.Stats.Dropped))
	r.dropped.WithLabelValues("window").Add(float64(res.Stats.OutsideWindow))
	r.dropped.WithLabelValues("cap").Add(float64(res.Stats.Capped))
}

// Published sets the gauges to the result now being served.
func (r *Recorder) Published(res *pipeline.Result) {
	if r == nil || res == nil {
		return
	}
	r.programs.Set(float64(len(res.Programs)))
	r.channels.Set(float64(len(res.Channels)))
}

// Fetched records one upstream response.
func (r *Recorder) Fetched(n int, notModified bool) {
	if r == nil {
		return
	}
	if notModified {
		r.notModified.Inc()
		return
	}
	r.fetchBytes.Add(float64(n))
}

// Handler serves the registry in the text exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}

// Middleware counts requests by their mux route template, which keeps label
// cardinality bounded.
func (r *Recorder) Middleware(next http.Handler) http.Handler {
	if r == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, req)
		route := "unmatched"
		if cur := mux.CurrentRoute(req); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		r.httpRequests.WithLabelValues(route, req.Method, strconv.Itoa(rw.status)).Inc()
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
