package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/foxzi/tplsync/internal/models"
)

// Runner performs one full sync
type Runner interface {
	RunAll(ctx context.Context) ([]*models.SyncJobRun, error)
}

// Config holds worker configuration
type Config struct {
	Interval     time.Duration
	RunOnStartup bool
}

// DefaultConfig returns default worker configuration
func DefaultConfig() Config {
	return Config{
		Interval: 6 * time.Hour,
	}
}

// Worker runs local and community sync in the background, on a fixed
// interval and on demand
type Worker struct {
	runner   Runner
	logger   *slog.Logger
	interval time.Duration
	startup  bool

	trigger chan struct{}

	mu      sync.Mutex
	running bool
	lastRun time.Time
	lastErr error

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new worker
func New(runner Runner, logger *slog.Logger, cfg Config) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}

	return &Worker{
		runner:   runner,
		logger:   logger.With("component", "worker"),
		interval: cfg.Interval,
		startup:  cfg.RunOnStartup,
		trigger:  make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start starts the worker
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.run()
	w.logger.Info("worker started", "interval", w.interval, "run_on_startup", w.startup)
}

// Stop stops the worker gracefully, waiting for a sync in progress
func (w *Worker) Stop() {
	w.logger.Info("stopping worker...")
	w.cancel()
	w.wg.Wait()
	w.logger.Info("worker stopped")
}

// Trigger requests a sync as soon as the worker is idle. Requests made while
// one is already pending are merged; the return value reports whether this
// call queued a new one.
func (w *Worker) Trigger() bool {
	select {
	case w.trigger <- struct{}{}:
		w.logger.Debug("sync triggered")
		return true
	default:
		return false
	}
}

// Running reports whether a sync is in progress
func (w *Worker) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// LastRun returns when the last sync finished and its error
func (w *Worker) LastRun() (time.Time, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastRun, w.lastErr
}

func (w *Worker) run() {
	defer w.wg.Done()

	if w.startup {
		w.sync()
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.sync()
		case <-w.trigger:
			w.sync()
		}
	}
}

func (w *Worker) sync() {
	w.mu.Lock()
	w.running = true
	w.mu.Unlock()

	start := time.Now()
	runs, err := w.runner.RunAll(w.ctx)

	w.mu.Lock()
	w.running = false
	w.lastRun = time.Now()
	w.lastErr = err
	w.mu.Unlock()

	if err != nil {
		if w.ctx.Err() != nil {
			w.logger.Info("sync interrupted by shutdown")
			return
		}
		w.logger.Error("sync failed", "error", err, "duration", time.Since(start))
		return
	}

	for _, run := range runs {
		w.logger.Info("sync finished",
			"job_type", run.JobType,
			"status", run.Status,
			"results", run.Results,
			"duration", run.Duration(),
		)
	}
}
