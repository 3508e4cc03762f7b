package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/foxzi/tplsync/internal/backup"
	"github.com/foxzi/tplsync/internal/repository"
)

// Config contains cleanup settings
type Config struct {
	// Sync job runs older than RunMaxAge are deleted; zero keeps them all
	RunMaxAge time.Duration

	// Backups beyond the newest KeepBackups per template are deleted; zero keeps them all
	KeepBackups int

	// Interval of the background loop
	Interval time.Duration
}

// Report describes what a cleanup removed, or would remove on a dry run
type Report struct {
	DryRun        bool             `json:"dry_run"`
	RunsDeleted   int64            `json:"runs_deleted"`
	BackupsPruned []*backup.Record `json:"backups_pruned"`
	Orphans       []string         `json:"orphans"`
}

// Cleaner removes old sync runs and surplus backups
type Cleaner struct {
	runs    *repository.SyncRunRepository
	backups *backup.Manager
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time
	started bool
	wg      sync.WaitGroup
	done    chan struct{}
}

// NewCleaner creates a new cleaner
func NewCleaner(db *sql.DB, backups *backup.Manager, cfg Config, logger *slog.Logger) *Cleaner {
	return &Cleaner{
		runs:    repository.NewSyncRunRepository(db),
		backups: backups,
		cfg:     cfg,
		logger:  logger.With("component", "cleanup"),
		now:     time.Now,
		done:    make(chan struct{}),
	}
}

// Run performs one cleanup. With dryRun nothing is deleted and the report
// lists what would be.
func (c *Cleaner) Run(ctx context.Context, dryRun bool) (*Report, error) {
	report := &Report{DryRun: dryRun}

	if c.cfg.RunMaxAge > 0 {
		before := c.now().Add(-c.cfg.RunMaxAge)
		if dryRun {
			n, err := c.runs.CountOlderThan(before)
			if err != nil {
				return nil, fmt.Errorf("failed to count sync runs: %w", err)
			}
			report.RunsDeleted = int64(n)
		} else {
			n, err := c.runs.DeleteOlderThan(before)
			if err != nil {
				return nil, fmt.Errorf("failed to delete sync runs: %w", err)
			}
			report.RunsDeleted = n
		}
	}

	if c.backups != nil && c.cfg.KeepBackups > 0 {
		pruned, err := c.backups.PruneAll(ctx, c.cfg.KeepBackups, dryRun)
		if err != nil {
			return nil, fmt.Errorf("failed to prune backups: %w", err)
		}
		report.BackupsPruned = pruned
	}

	if c.backups != nil {
		orphans, err := c.backups.Orphans(ctx)
		if err != nil {
			return nil, err
		}
		report.Orphans = orphans
	}

	return report, nil
}

// Start starts the background cleanup loop. It does nothing without an interval.
func (c *Cleaner) Start(ctx context.Context) {
	if c.cfg.Interval <= 0 {
		return
	}

	c.started = true
	c.wg.Add(1)
	go c.loop(ctx)

	c.logger.Info("cleaner started",
		"run_max_age", c.cfg.RunMaxAge,
		"keep_backups", c.cfg.KeepBackups,
		"interval", c.cfg.Interval,
	)
}

// Stop stops the cleaner and waits for the loop to finish. It is a no-op
// when the loop was never started.
func (c *Cleaner) Stop() {
	if !c.started {
		return
	}
	close(c.done)
	c.wg.Wait()
	c.logger.Info("cleaner stopped")
}

func (c *Cleaner) loop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	c.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
			c.runOnce(ctx)
		}
	}
}

func (c *Cleaner) runOnce(ctx context.Context) {
	report, err := c.Run(ctx, false)
	if err != nil {
		c.logger.Error("cleanup failed", "error", err)
		return
	}

	if report.RunsDeleted > 0 || len(report.BackupsPruned) > 0 {
		c.logger.Info("cleanup finished",
			"runs_deleted", report.RunsDeleted,
			"backups_pruned", len(report.BackupsPruned),
		)
	}
	if len(report.Orphans) > 0 {
		c.logger.Warn("unindexed backup files found", "count", len(report.Orphans))
	}
}
