package api

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/foxzi/tplsync/internal/apply"
	"github.com/foxzi/tplsync/internal/config"
	"github.com/foxzi/tplsync/internal/metrics"
	"github.com/foxzi/tplsync/internal/repository"
	"github.com/foxzi/tplsync/internal/syncer"
)

// Trigger queues a background sync
type Trigger interface {
	Trigger() bool
}

// Server is the HTTP API server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server

	templates   *repository.TemplateRepository
	configs     *repository.ConfigRepository
	comparisons *repository.ComparisonRepository
	runs        *repository.SyncRunRepository
	syncer      *syncer.Syncer
	applier     *apply.Applier
	worker      Trigger

	config    *config.ServerConfig
	metrics   config.MetricsConfig
	logger    *slog.Logger
	version   string
	startTime time.Time
}

// ServerOptions contains all options for creating a server
type ServerOptions struct {
	DB      *sql.DB
	Syncer  *syncer.Syncer
	Applier *apply.Applier
	// Worker may be nil, in which case POST /sync runs synchronously
	Worker  Trigger
	Config  *config.ServerConfig
	Metrics config.MetricsConfig
	Logger  *slog.Logger
	Version string
}

// NewServer creates a new API server
func NewServer(opts ServerOptions) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		templates:   repository.NewTemplateRepository(opts.DB),
		configs:     repository.NewConfigRepository(opts.DB),
		comparisons: repository.NewComparisonRepository(opts.DB),
		runs:        repository.NewSyncRunRepository(opts.DB),
		syncer:      opts.Syncer,
		applier:     opts.Applier,
		worker:      opts.Worker,
		config:      opts.Config,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
		version:     opts.Version,
		startTime:   time.Now(),
	}
	if s.version == "" {
		s.version = "dev"
	}

	s.setupRoutes()
	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	// Middleware
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Recoverer)
	if s.metrics.Enabled {
		s.router.Use(metrics.HTTPMiddleware)
	}

	// Health check (no auth required)
	s.router.Get("/health", s.handleHealth)

	if s.metrics.Enabled {
		s.router.Get(s.metrics.Path, s.handleMetrics)
	}

	// API v1 routes (auth required)
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/templates", s.handleListTemplates)
		r.Get("/templates/{id}", s.handleGetTemplate)

		r.Get("/comparisons", s.handleListComparisons)
		r.Route("/comparisons/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetComparison)
			r.Put("/choices", s.handleSubmitChoices)
			r.Get("/preview", s.handlePreview)
			r.Get("/diff", s.handleDiff)
			r.Post("/apply", s.handleApply)
			r.Post("/recompute", s.handleRecompute)
		})

		r.Post("/sync", s.handleSync)
		r.Get("/sync/runs", s.handleListRuns)
		r.Get("/sync/runs/{id}", s.handleGetRun)
	})
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:         s.config.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP API server", "addr", s.config.ListenAddr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP API server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
