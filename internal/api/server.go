// Package api exposes the monitoring pipeline and session store over a
// JSON HTTP API. The pipeline itself stays single-threaded; the API
// only reads published snapshots and the database.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/pulse.report/internal/config"
	"github.com/banshee-data/pulse.report/internal/db"
	"github.com/banshee-data/pulse.report/internal/httputil"
	"github.com/banshee-data/pulse.report/internal/monitoring"
	"github.com/banshee-data/pulse.report/internal/ppg"
	"github.com/banshee-data/pulse.report/internal/version"
)

// Server serves vitals snapshots, session history, and runtime tuning.
type Server struct {
	pipeline *ppg.Pipeline
	store    *db.DB

	mu     sync.RWMutex
	tuning *config.TuningConfig
}

// NewServer wires the API to a running pipeline and the session store.
// store may be nil when persistence is disabled.
func NewServer(pipeline *ppg.Pipeline, store *db.DB, tuning *config.TuningConfig) *Server {
	if tuning == nil {
		tuning = config.EmptyTuningConfig()
	}
	return &Server{pipeline: pipeline, store: store, tuning: tuning}
}

// Tuning returns the current tuning config (after any runtime updates).
func (s *Server) Tuning() *config.TuningConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tuning
}

// ServeMux returns the route table.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/vitals/latest", s.latestVitals)
	mux.HandleFunc("/api/vitals/params", s.params)
	mux.HandleFunc("/api/vitals/rr", s.rrIntervals)
	mux.HandleFunc("/api/vitals/signal", s.signalWindow)
	mux.HandleFunc("/api/vitals/reset", s.reset)
	mux.HandleFunc("/api/sessions", s.listSessions)
	mux.HandleFunc("/api/sessions/", s.sessionSnapshots)
	mux.HandleFunc("/healthz", s.healthz)
	return mux
}

// LogRequests wraps a handler and logs each request with its duration.
func LogRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf("%s %s %d %s", r.Method, r.URL.Path, lrw.statusCode, time.Since(start))
	})
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]string{
		"status":  "ok",
		"version": version.Version,
		"git_sha": version.GitSHA,
	})
}

// latestVitals returns the most recent published snapshot, or 204 when
// the session has produced none yet.
func (s *Server) latestVitals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	snap, ok := s.pipeline.Latest()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	httputil.WriteJSONOK(w, snap)
}

// rrIntervals exposes the detector's current valid inter-beat
// intervals, mostly for debugging and the trend-plot tool.
func (s *Server) rrIntervals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"rr_ms": s.pipeline.RRIntervals(),
	})
}

// signalWindow returns a copy of the recent buffered samples for
// waveform inspection. The pipeline hands out the copy under its own
// lock, so this is safe against the consumer loop.
func (s *Server) signalWindow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"samples": s.pipeline.SignalWindow(),
	})
}

// reset asks the consumer loop to clear estimator state before the
// next sample, picking up any tuning staged through params.
func (s *Server) reset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	s.pipeline.RequestReset()
	httputil.WriteJSONOK(w, map[string]string{"status": "reset requested"})
}

// params reads (GET) or partially updates (POST) the tuning config.
// Updates take effect at the next session reset; the running pipeline
// is never reconfigured mid-sample.
func (s *Server) params(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.mu.RLock()
		defer s.mu.RUnlock()
		httputil.WriteJSONOK(w, s.tuning)
	case http.MethodPost:
		var patch config.TuningConfig
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			httputil.BadRequest(w, "invalid JSON body: "+err.Error())
			return
		}
		if err := patch.Validate(); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		s.mu.Lock()
		s.tuning = s.tuning.Merge(&patch)
		merged := s.tuning
		s.mu.Unlock()
		s.pipeline.Retune(merged.PipelineConfig())
		httputil.WriteJSONOK(w, merged)
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.store == nil {
		httputil.NotFound(w, "persistence disabled")
		return
	}
	limit := 0
	if q := r.URL.Query().Get("limit"); q != "" {
		if v, err := strconv.Atoi(q); err == nil && v > 0 {
			limit = v
		}
	}
	sessions, err := s.store.Sessions(limit)
	if err != nil {
		httputil.InternalServerError(w, "failed to list sessions: "+err.Error())
		return
	}
	httputil.WriteJSONOK(w, sessions)
}

// sessionSnapshots handles /api/sessions/{id}/snapshots.
func (s *Server) sessionSnapshots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.store == nil {
		httputil.NotFound(w, "persistence disabled")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "snapshots" {
		httputil.NotFound(w, "unknown resource")
		return
	}
	sessionID := parts[0]

	limit := 0
	if q := r.URL.Query().Get("limit"); q != "" {
		if v, err := strconv.Atoi(q); err == nil && v > 0 {
			limit = v
		}
	}

	rows, err := s.store.SessionSnapshots(sessionID, limit)
	if err != nil {
		httputil.InternalServerError(w, "failed to load snapshots: "+err.Error())
		return
	}
	httputil.WriteJSONOK(w, rows)
}
