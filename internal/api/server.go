// Package api exposes ingestion, session management and analytics over
// HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/lvonguyen/cdrforge/internal/analytics"
	"github.com/lvonguyen/cdrforge/internal/cdr"
	"github.com/lvonguyen/cdrforge/internal/observability"
	"github.com/lvonguyen/cdrforge/internal/pipeline"
)

// Store is the subset of the session store the API reads from directly.
type Store interface {
	Session(ctx context.Context, id string) (*cdr.Session, error)
	Sessions(ctx context.Context) ([]cdr.Session, error)
	Report(ctx context.Context, id string) (*cdr.NormalizationReport, error)
	DeleteSession(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
}

// ReadyCheck reports whether a dependency is usable.
type ReadyCheck func(ctx context.Context) error

// Deps are the server's collaborators.
type Deps struct {
	Pipeline *pipeline.Pipeline
	Store    Store
	Engine   *analytics.Engine
	Logger   *zap.Logger
	Metrics  *observability.Metrics

	// MetricsHandler serves /metrics; nil disables the route.
	MetricsHandler http.Handler

	// RateLimit wraps the /api/v1 routes when set.
	RateLimit func(http.Handler) http.Handler

	// ReadyChecks are run by /ready in addition to the store ping.
	ReadyChecks map[string]ReadyCheck
}

// Options holds request handling limits.
type Options struct {
	Version        string
	RequestTimeout time.Duration
	MaxUploadBytes int64
}

// Server is the HTTP API.
type Server struct {
	deps   Deps
	opts   Options
	logger *zap.Logger
	router chi.Router
}

// NewServer builds the router.
func NewServer(deps Deps, opts Options) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 64 << 20
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	s := &Server{deps: deps, opts: opts, logger: deps.Logger}
	s.router = s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.opts.RequestTimeout))

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	if s.deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", s.deps.MetricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		if s.deps.RateLimit != nil {
			r.Use(s.deps.RateLimit)
		}

		r.Post("/detect", s.handleDetect)

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", s.handleListSessions)
			r.Post("/", s.handleCreateSession)
			r.Get("/{id}", s.handleGetSession)
			r.Delete("/{id}", s.handleDeleteSession)
			r.Get("/{id}/report", s.handleGetReport)
			r.Get("/{id}/analytics/{name}", s.handleSessionAnalytics)
			r.Get("/{id}/export", s.handleExport)
		})

		r.Get("/analytics", s.handleListAnalyses)
		r.Post("/analytics/{name}", s.handleRunAnalytics)
	})

	return r
}

// Health and readiness handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "version": s.opts.Version})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	ready := true

	record := func(name string, err error) {
		if err != nil {
			ready = false
			checks[name] = err.Error()
			return
		}
		checks[name] = "ok"
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if s.deps.Store != nil {
		record("store", s.deps.Store.Ping(ctx))
	}
	for name, check := range s.deps.ReadyChecks {
		record(name, check(ctx))
	}

	status, code := "ready", http.StatusOK
	if !ready {
		status, code = "not_ready", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{"status": status, "checks": checks})
}
