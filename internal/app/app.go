package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/foxzi/tplsync/internal/api"
	"github.com/foxzi/tplsync/internal/apply"
	"github.com/foxzi/tplsync/internal/backup"
	"github.com/foxzi/tplsync/internal/catalog"
	"github.com/foxzi/tplsync/internal/cleanup"
	"github.com/foxzi/tplsync/internal/config"
	"github.com/foxzi/tplsync/internal/db"
	"github.com/foxzi/tplsync/internal/metrics"
	"github.com/foxzi/tplsync/internal/repository"
	"github.com/foxzi/tplsync/internal/scanner"
	"github.com/foxzi/tplsync/internal/syncer"
	"github.com/foxzi/tplsync/internal/worker"
)

// Components are the services shared by the server and the one-shot commands
type Components struct {
	Config  *config.Config
	DB      *db.DB
	Index   *backup.Index
	Catalog *catalog.Client
	Backups *backup.Manager
	Syncer  *syncer.Syncer
	Applier *apply.Applier
	Cleaner *cleanup.Cleaner
	Logger  *slog.Logger
}

// Open opens the record store and the backup index, runs migrations and
// wires the services on top of them
func Open(cfg *config.Config, logger *slog.Logger) (*Components, error) {
	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(); err != nil {
		database.Close()
		return nil, err
	}

	index, err := backup.OpenIndex(cfg.Templates.BackupIndex)
	if err != nil {
		database.Close()
		return nil, err
	}

	cat := catalog.NewClient(cfg.Community, logger)
	backups := backup.NewManager(cfg.Templates.BackupDirectory, index, logger)

	return &Components{
		Config:  cfg,
		DB:      database,
		Index:   index,
		Catalog: cat,
		Backups: backups,
		Syncer:  syncer.New(database.DB, scanner.New(cfg.Templates.Directory, logger), cat, logger),
		Applier: apply.New(database.DB, backup.Files{}, backups, logger),
		Cleaner: cleanup.NewCleaner(database.DB, backups, cleanup.Config{
			RunMaxAge:   time.Duration(cfg.Sync.RetentionDays) * 24 * time.Hour,
			KeepBackups: cfg.Templates.KeepBackups,
			Interval:    24 * time.Hour,
		}, logger),
		Logger: logger,
	}, nil
}

// Close closes the backup index and the record store
func (c *Components) Close() error {
	var firstErr error
	if err := c.Index.Close(); err != nil {
		firstErr = fmt.Errorf("failed to close backup index: %w", err)
	}
	if err := c.DB.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to close database: %w", err)
	}
	return firstErr
}

// Stats implements metrics.StatsProvider
func (c *Components) Stats(ctx context.Context) (*metrics.StoreStats, error) {
	templates, err := repository.NewTemplateRepository(c.DB.DB).CountBySource()
	if err != nil {
		return nil, err
	}
	comparisons, err := repository.NewComparisonRepository(c.DB.DB).CountByStatus()
	if err != nil {
		return nil, err
	}
	backups, err := c.Index.Stats(ctx)
	if err != nil {
		return nil, err
	}

	return &metrics.StoreStats{
		Templates:   templates,
		Comparisons: comparisons,
		Backups:     backups.Total,
		BackupBytes: backups.Bytes,
	}, nil
}

// App is the main application
type App struct {
	*Components
	metrics   *metrics.Metrics
	collector *metrics.Collector
	worker    *worker.Worker
	apiServer *api.Server
}

// New creates a new application
func New(cfg *config.Config, version string) (*App, error) {
	logger := SetupLogger(cfg.Logging)

	c, err := Open(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	a := &App{Components: c}

	if cfg.Metrics.Enabled {
		a.metrics = metrics.New()
		metrics.SetGlobal(a.metrics)
		a.collector = metrics.NewCollector(a.metrics, c, 0)
	}

	var trigger api.Trigger
	if cfg.Sync.Enabled {
		a.worker = worker.New(c.Syncer, logger, worker.Config{
			Interval:     cfg.Sync.Interval,
			RunOnStartup: cfg.Sync.RunOnStartup,
		})
		trigger = a.worker
	}

	a.apiServer = api.NewServer(api.ServerOptions{
		DB:      c.DB.DB,
		Syncer:  c.Syncer,
		Applier: c.Applier,
		Worker:  trigger,
		Config:  &cfg.Server,
		Metrics: cfg.Metrics,
		Logger:  logger.With("component", "api"),
		Version: version,
	})

	return a, nil
}

// Run starts all components and waits for shutdown
func (a *App) Run(ctx context.Context) error {
	a.Logger.Info("starting tplsync",
		"api_addr", a.Config.Server.ListenAddr,
		"templates", a.Config.Templates.Directory,
		"backups", a.Config.Templates.BackupDirectory,
		"feed", a.Config.Community.FeedURL,
		"sync_enabled", a.Config.Sync.Enabled,
	)

	// Create context that listens for signals
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if a.collector != nil {
		a.collector.Start(ctx)
	}
	if a.worker != nil {
		a.worker.Start()
	}
	a.Cleaner.Start(ctx)

	errCh := make(chan error, 1)

	// Start API server
	go func() {
		if err := a.apiServer.ListenAndServe(); err != nil {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		a.Logger.Info("shutdown signal received")
	case err := <-errCh:
		a.Logger.Error("server error", "error", err)
		cancel()
	}

	// Graceful shutdown
	return a.Shutdown(context.Background())
}

// Shutdown gracefully shuts down all components
func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.Info("shutting down")

	// Create timeout context
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
		a.Logger.Error("api server shutdown error", "error", err)
	}

	// Waits for a sync in progress
	if a.worker != nil {
		a.worker.Stop()
	}
	a.Cleaner.Stop()
	if a.collector != nil {
		a.collector.Stop()
	}

	if err := a.Close(); err != nil {
		a.Logger.Error("storage close error", "error", err)
	}

	a.Logger.Info("shutdown complete")
	return nil
}

// SetupLogger creates a logger based on configuration
func SetupLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
