// Package httpserver provides the HTTP control surface of the content
// pipeline service.
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/helixir/content-pipeline-service/internal/domain"
	"github.com/helixir/content-pipeline-service/internal/observability"
)

// RunService is the orchestrator surface exposed over HTTP.
type RunService interface {
	Submit(ctx context.Context, topic string, cfg domain.RunConfig) (uuid.UUID, error)
	Resume(ctx context.Context, runID uuid.UUID) error
	Cancel(ctx context.Context, runID uuid.UUID) error
	GetStatus(ctx context.Context, runID uuid.UUID) (domain.RunStatus, error)
	ListRuns(ctx context.Context, filter domain.RunFilter) ([]domain.RunStatus, error)
}

// MemoryService is the content store surface exposed over HTTP.
type MemoryService interface {
	Get(ctx context.Context, hash string) (*domain.MemoryRecord, error)
	Delete(ctx context.Context, hash string) error
	Stats(ctx context.Context) (domain.MemoryStats, error)
	SearchSimilar(ctx context.Context, embedding []float32, k int, minScore float64) ([]domain.ScoredRecord, error)
}

// Pinger reports database reachability. *database.DB satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP REST API server.
type Server struct {
	router      chi.Router
	httpServer  *http.Server
	runs        RunService
	memory      MemoryService
	db          Pinger
	metrics     *observability.Metrics
	metricsPath string
	validate    *validator.Validate
	logger      zerolog.Logger
}

// Config holds HTTP server configuration.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	// MetricsPath exposes the Prometheus registry when non-empty.
	MetricsPath string
}

// NewServer creates a new HTTP server. db may be nil when no store is backed
// by PostgreSQL; readiness then only reflects the process itself.
func NewServer(
	cfg Config,
	runs RunService,
	memory MemoryService,
	db Pinger,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Server {
	s := &Server{
		runs:        runs,
		memory:      memory,
		db:          db,
		metrics:     metrics,
		metricsPath: cfg.MetricsPath,
		validate:    newValidator(),
		logger:      observability.WithComponent(logger, "http-server"),
	}

	s.router = s.buildRouter()

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// Handler returns the root handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// buildRouter creates the chi router with all middleware and routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(metricsMiddleware(s.metrics))

	r.Get("/health", s.healthHandler)
	r.Get("/healthz", s.healthHandler)
	r.Get("/readyz", s.readinessHandler)
	if s.metricsPath != "" {
		r.Handle(s.metricsPath, promhttp.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(jsonContentTypeMiddleware)

		r.Post("/runs", s.submitRun)
		r.Get("/runs", s.listRuns)
		r.Get("/runs/{runID}", s.getRun)
		r.Post("/runs/{runID}/cancel", s.cancelRun)
		r.Post("/runs/{runID}/resume", s.resumeRun)

		r.Get("/memory/stats", s.memoryStats)
		r.Post("/memory/search", s.searchMemory)
		r.Get("/memory/{hash}", s.getMemory)
		r.Delete("/memory/{hash}", s.deleteMemory)
	})

	return r
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.httpServer.Addr).Msg("HTTP server starting")
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// healthHandler returns basic liveness status.
func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readinessHandler reports whether the service can serve traffic.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	if err := s.db.Ping(r.Context()); err != nil {
		s.logger.Warn().Err(err).Msg("readiness check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "not_ready",
			"database": "unhealthy",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ready",
		"database": "healthy",
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Best-effort; headers already sent.
		_ = err
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{
		"error": message,
	})
}
