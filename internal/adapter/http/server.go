package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/couchcryptid/wind-estimation-service/internal/adapter/geojson"
	"github.com/couchcryptid/wind-estimation-service/internal/domain"
	"github.com/couchcryptid/wind-estimation-service/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ResultProvider returns the most recent completed run.
type ResultProvider interface {
	Latest() (pipeline.Result, bool)
}

// RunStore serves previously stored runs.
type RunStore interface {
	ListRuns(ctx context.Context) ([]domain.Run, error)
	ListObservations(ctx context.Context, runID string) ([]domain.Observation, error)
}

// Server exposes health, readiness, metrics, and observation endpoints.
type Server struct {
	httpServer *http.Server
	results    ResultProvider
	runs       RunStore
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics,
// /observations, and /observations.geojson routes. When runs is non-nil it
// also serves /runs and /runs/{id}/observations.
func NewServer(addr string, ready sharedobs.ReadinessChecker, results ResultProvider, runs RunStore, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		results: results,
		runs:    runs,
		logger:  logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /observations", s.handleObservations)
	mux.HandleFunc("GET /observations.geojson", s.handleObservationsGeoJSON)
	if runs != nil {
		mux.HandleFunc("GET /runs", s.handleRuns)
		mux.HandleFunc("GET /runs/{id}/observations", s.handleRunObservations)
	}

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleObservations(w http.ResponseWriter, _ *http.Request) {
	res, ok := s.results.Latest()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "no estimation run has completed yet")
		return
	}
	w.Header().Set("X-Run-ID", res.Run.ID)
	sharedobs.WriteJSON(w, http.StatusOK, nonNil(res.Estimate.Observations))
}

func (s *Server) handleObservationsGeoJSON(w http.ResponseWriter, _ *http.Request) {
	res, ok := s.results.Latest()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "no estimation run has completed yet")
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.Header().Set("X-Run-ID", res.Run.ID)
	if err := geojson.Encode(w, res.Run, res.Estimate.Observations); err != nil {
		s.logger.Error("write geojson", "error", err)
	}
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.runs.ListRuns(r.Context())
	if err != nil {
		s.logger.Error("list runs", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, nonNil(runs))
}

func (s *Server) handleRunObservations(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	obs, err := s.runs.ListObservations(r.Context(), id)
	switch {
	case errors.Is(err, domain.ErrRunNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		s.logger.Error("list observations", "run_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list observations")
		return
	}
	w.Header().Set("X-Run-ID", id)
	sharedobs.WriteJSON(w, http.StatusOK, nonNil(obs))
}

// nonNil keeps empty results encoding as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func writeError(w http.ResponseWriter, status int, msg string) {
	sharedobs.WriteJSON(w, status, map[string]string{"error": msg})
}
