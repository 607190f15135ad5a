// Package httpapi exposes the HTTP surface that triggers an ingestion
// cycle and reports its outcome, plus the ambient health/readiness/metrics
// endpoints every service in this codebase carries.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CycleRunner runs one ingestion cycle on demand.
type CycleRunner interface {
	RunCycle(ctx context.Context) (CycleResult, error)
}

// CycleResult mirrors pipeline.Result without importing the pipeline
// package directly, keeping httpapi's dependency surface to the interface
// it actually needs.
type CycleResult struct {
	RunID         string
	Sources       []string
	RawEvents     int
	UnifiedEvents int
	DeadLetters   int
	DurationSec   float64
}

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// SourceHealthReporter backs the supplemented /sources/health endpoint.
type SourceHealthReporter interface {
	SourceHealth(ctx context.Context, since time.Time) ([]SourceHealthRow, error)
}

// SourceHealthRow is one source's recent fetch summary.
type SourceHealthRow struct {
	Source      string     `json:"source"`
	EventCount  int        `json:"event_count"`
	LastFetchAt *time.Time `json:"last_fetch_at,omitempty"`
}

// UnifiedEventReader looks up one unified event by id, backed by the
// warehouse's cached reader.
type UnifiedEventReader interface {
	GetUnifiedEvent(ctx context.Context, unifiedEventID string) (UnifiedEvent, bool, error)
}

// UnifiedEvent is the read shape GET /events/{id} returns.
type UnifiedEvent struct {
	UnifiedEventID       string    `json:"unified_event_id"`
	OriginTimeUTC        time.Time `json:"origin_time_utc"`
	Latitude             float64   `json:"latitude"`
	Longitude            float64   `json:"longitude"`
	DepthKM              float64   `json:"depth_km"`
	MagnitudeValue       float64   `json:"magnitude_value"`
	MagnitudeType        string    `json:"magnitude_type"`
	Place                string    `json:"place"`
	Region               string    `json:"region"`
	Status               string    `json:"status"`
	NumSources           int       `json:"num_sources"`
	PreferredSource      string    `json:"preferred_source"`
	SourceEventUIDs      []string  `json:"source_event_uids"`
	MagnitudeStd         float64   `json:"magnitude_std"`
	LocationSpreadKM     float64   `json:"location_spread_km"`
	SourceAgreementScore float64   `json:"source_agreement_score"`
}

// Server exposes the /ingest trigger plus health, readiness, metrics and
// source-health endpoints.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /ingest, /health, /readyz, /metrics,
// /sources/health, and /events/{id} routes.
func NewServer(addr string, runner CycleRunner, ready ReadinessChecker, sources SourceHealthReporter, events UnifiedEventReader, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}

	mux.HandleFunc("POST /ingest", s.handleIngest(runner))
	mux.HandleFunc("GET /health", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /sources/health", handleSourceHealth(sources))
	mux.HandleFunc("GET /events/{id}", handleGetEvent(events))

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

func (s *Server) handleIngest(runner CycleRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := runner.RunCycle(r.Context())
		if err != nil {
			s.logger.Error("ingest cycle failed", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"run_id":         result.RunID,
			"sources":        result.Sources,
			"raw_events":     result.RawEvents,
			"unified_events": result.UnifiedEvents,
			"dead_letters":   result.DeadLetters,
			"duration_s":     result.DurationSec,
		})
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func handleSourceHealth(sources SourceHealthReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		since := time.Now().UTC().Add(-24 * time.Hour)
		rows, err := sources.SourceHealth(r.Context(), since)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"since": since, "sources": rows})
	}
}

func handleGetEvent(events UnifiedEventReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		event, found, err := events.GetUnifiedEvent(r.Context(), id)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		if !found {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "unified event not found"})
			return
		}
		writeJSON(w, http.StatusOK, event)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response encoding
}
