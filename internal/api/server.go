// Package api serves the published guide over HTTP.
//
//	GET  /api/epg       programmes, filtered by category, q, day, live, channel, limit
//	GET  /api/channels  channel listing
//	GET  /api/status    refresh status and summary counts
//	POST /api/refresh   run the pipeline now (?force=1 forgets stored validators)
//	GET  /healthz
//	GET  /metrics
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/snapetech/epgnorm/internal/category"
	"github.com/snapetech/epgnorm/internal/epgerr"
	"github.com/snapetech/epgnorm/internal/metrics"
	"github.com/snapetech/epgnorm/internal/pipeline"
	"github.com/snapetech/epgnorm/internal/refresh"
)

// CacheControl is sent on guide responses so shared caches can serve them
// while a refresh is in progress.
const CacheControl = "s-maxage=3600, stale-while-revalidate"

// Source is the part of refresh.Service the handlers need.
type Source interface {
	Get(ctx context.Context) (*pipeline.Result, error)
	Current() *pipeline.Result
	Refresh(ctx context.Context, force bool) (*pipeline.Result, error)
	Status() refresh.Status
}

type Server struct {
	Source Source
	// DisplayZone decides day boundaries for ?day=; nil means UTC.
	DisplayZone *time.Location
	Metrics     *metrics.Recorder
	Clock       func() time.Time
	Log         logrus.FieldLogger
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.Metrics.Middleware, cors)
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/epg", s.handleEPG).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/channels", s.handleChannels).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/refresh", s.handleRefresh).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", s.Metrics.Handler()).Methods(http.MethodGet)
	return r
}

func (s *Server) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}

func (s *Server) log() logrus.FieldLogger {
	if s.Log != nil {
		return s.Log
	}
	return logrus.StandardLogger().WithField("component", "api")
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Headers", "authorization, x-client-info, apikey, content-type")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type programsResponse struct {
	Success     bool               `json:"success"`
	RunID       string             `json:"runId"`
	GeneratedAt time.Time          `json:"generatedAt"`
	Programs    []pipeline.Program `json:"programs"`
	Total       int                `json:"total"`
	Summary     pipeline.Summary   `json:"summary"`
}

type channelsResponse struct {
	Success  bool               `json:"success"`
	Channels []pipeline.Channel `json:"channels"`
	Total    int                `json:"total"`
}

type statusResponse struct {
	refresh.Status
	Summary pipeline.Summary `json:"summary"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (s *Server) handleEPG(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	res, err := s.result(r.Context())
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	now := s.now()
	progs := res.Filter(q, now, s.DisplayZone)
	w.Header().Set("Cache-Control", CacheControl)
	s.writeJSON(w, http.StatusOK, programsResponse{
		Success:     true,
		RunID:       res.RunID,
		GeneratedAt: res.GeneratedAt,
		Programs:    progs,
		Total:       len(progs),
		Summary:     res.Summary(now),
	})
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	res, err := s.result(r.Context())
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	w.Header().Set("Cache-Control", CacheControl)
	s.writeJSON(w, http.StatusOK, channelsResponse{Success: true, Channels: res.Channels, Total: len(res.Channels)})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, statusResponse{
		Status:  s.Source.Status(),
		Summary: s.Source.Current().Summary(s.now()),
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	res, err := s.Source.Refresh(r.Context(), force)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"runId":    res.RunID,
		"channels": len(res.Channels),
		"programs": len(res.Programs),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if s.Source.Current() == nil {
		http.Error(w, "no data published yet", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// result prefers the cached or freshly refreshed result and falls back to the
// published one when the refresh fails.
func (s *Server) result(ctx context.Context) (*pipeline.Result, error) {
	res, err := s.Source.Get(ctx)
	if err == nil {
		return res, nil
	}
	if cur := s.Source.Current(); cur != nil {
		s.log().WithError(err).Warn("api: refresh failed, serving published result")
		return cur, nil
	}
	return nil, err
}

func parseQuery(r *http.Request) (pipeline.Query, error) {
	v := r.URL.Query()
	var q pipeline.Query
	if c := strings.TrimSpace(v.Get("category")); c != "" && !strings.EqualFold(c, "all") {
		cat, err := category.Parse(c)
		if err != nil {
			return q, err
		}
		q.Category = cat
	}
	day, err := pipeline.ParseDay(v.Get("day"))
	if err != nil {
		return q, err
	}
	q.Day = day
	q.Search = v.Get("q")
	q.Channel = strings.TrimSpace(v.Get("channel"))
	if l := v.Get("live"); l != "" {
		if q.LiveOnly, err = strconv.ParseBool(l); err != nil {
			return q, errors.New("live: want a boolean")
		}
	}
	if l := v.Get("limit"); l != "" {
		if q.Limit, err = strconv.Atoi(l); err != nil || q.Limit < 0 {
			return q, errors.New("limit: want a non-negative integer")
		}
	}
	return q, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, epgerr.ErrUpstreamFetch):
		return http.StatusBadGateway
	case errors.Is(err, epgerr.ErrNoData):
		return http.StatusNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log().WithError(err).Warn("api: encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, errorResponse{Success: false, Error: err.Error()})
}
