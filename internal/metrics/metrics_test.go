package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapetech/epgnorm/internal/pipeline"
)

func TestNew_doubleRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}

func TestObserveRun(t *testing.T) {
	r := New(prometheus.NewRegistry())
	res := &pipeline.Result{
		Mode:     pipeline.ModeXMLTV,
		Programs: []pipeline.Program{{ID: "a"}},
		Stats:    pipeline.Stats{Dropped: 2, OutsideWindow: 3, Capped: 4},
	}
	r.ObserveRun(pipeline.ModeXMLTV, res, nil, time.Second)
	r.ObserveRun(pipeline.ModeXMLTV, nil, errors.New("boom"), time.Second)
	r.ObserveRun(pipeline.ModeM3U, &pipeline.Result{Mode: pipeline.ModeM3U}, nil, time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.runs.WithLabelValues("xmltv", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.runs.WithLabelValues("xmltv", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.runs.WithLabelValues("m3u", "empty")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.dropped.WithLabelValues("parse")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.dropped.WithLabelValues("window")))
	assert.Equal(t, 4.0, testutil.ToFloat64(r.dropped.WithLabelValues("cap")))

	r.Published(res)
	assert.Equal(t, 1.0, testutil.ToFloat64(r.programs))

	r.Fetched(100, false)
	r.Fetched(0, true)
	assert.Equal(t, 100.0, testutil.ToFloat64(r.fetchBytes))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.notModified))
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	r.ObserveRun(pipeline.ModeXMLTV, nil, nil, 0)
	r.Published(&pipeline.Result{})
	r.Fetched(1, false)
	h := r.Middleware(http.NotFoundHandler())
	assert.NotNil(t, h)
}

func TestMiddlewareAndHandler(t *testing.T) {
	r := New(prometheus.NewRegistry())
	router := mux.NewRouter()
	router.Use(r.Middleware)
	router.HandleFunc("/api/items/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}).Methods(http.MethodGet)
	router.Handle("/metrics", r.Handler())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/items/42", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(r.httpRequests.WithLabelValues("/api/items/{id}", "GET", "418")))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.True(t, strings.Contains(string(body), "epgnorm_http_requests_total"), "exposition missing request counter")
}
