package apply

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/foxzi/tplsync/internal/backup"
	"github.com/foxzi/tplsync/internal/metrics"
	"github.com/foxzi/tplsync/internal/models"
	"github.com/foxzi/tplsync/internal/reconcile"
	"github.com/foxzi/tplsync/internal/repository"
	"github.com/foxzi/tplsync/internal/template"
)

// FileStore writes merged templates
type FileStore interface {
	Exists(path string) bool
	Write(path, text string) error
	Remove(path string) error
}

// Outcome describes a successful apply
type Outcome struct {
	Comparison *models.Comparison `json:"comparison"`
	Template   *models.Template   `json:"template"`
	Backup     *backup.Record     `json:"backup,omitempty"`
	Changes    int                `json:"changes"`
}

// Applier writes reviewed comparisons back to the local template files.
// Callers serialize applies of the same comparison.
type Applier struct {
	db          *sql.DB
	templates   *repository.TemplateRepository
	comparisons *repository.ComparisonRepository
	files       FileStore
	backups     *backup.Manager
	logger      *slog.Logger
}

// New creates an applier
func New(db *sql.DB, files FileStore, backups *backup.Manager, logger *slog.Logger) *Applier {
	return &Applier{
		db:          db,
		templates:   repository.NewTemplateRepository(db),
		comparisons: repository.NewComparisonRepository(db),
		files:       files,
		backups:     backups,
		logger:      logger.With("component", "apply"),
	}
}

// load returns a comparison and its local template
func (a *Applier) load(id string) (*models.Comparison, *models.Template, error) {
	c, err := a.comparisons.GetByID(id)
	if err != nil {
		return nil, nil, err
	}
	if c == nil {
		return nil, nil, ErrNotFound
	}

	local, err := a.templates.GetByID(c.LocalTemplateID)
	if err != nil {
		return nil, nil, err
	}
	return c, local, nil
}

func validate(c *models.Comparison, local *models.Template) error {
	if !c.IsReviewed() {
		return &ValidationError{Reason: ErrNotReviewed}
	}
	if len(c.UserChoices) == 0 {
		return &ValidationError{Reason: ErrNoChoices}
	}
	if local == nil || strings.TrimSpace(local.LocalPath) == "" {
		return &ValidationError{Reason: ErrMissingPath}
	}
	return nil
}

// Apply merges the chosen community values into the local template, backs up
// the current file, writes the merged document and marks the comparison
// applied. Either all of it happens or none of it: the record updates run in
// a transaction that is committed only after the file was written.
func (a *Applier) Apply(ctx context.Context, comparisonID string) (*Outcome, error) {
	out, err := a.apply(ctx, comparisonID)
	metrics.IncApplies(result(err))
	return out, err
}

func result(err error) string {
	var backupErr *BackupError
	var writeErr *WriteError
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrValidation):
		return "validation_failed"
	case errors.As(err, &backupErr):
		return "backup_failed"
	case errors.As(err, &writeErr):
		return "write_failed"
	default:
		return "error"
	}
}

func (a *Applier) apply(ctx context.Context, comparisonID string) (*Outcome, error) {
	c, local, err := a.load(comparisonID)
	if err != nil {
		return nil, err
	}
	if err := validate(c, local); err != nil {
		a.logger.Warn("apply rejected", "comparison", c.ID, "reason", err)
		return nil, err
	}

	if err := a.backups.EnsureDir(); err != nil {
		return nil, &BackupError{Path: a.backups.Dir(), Err: err}
	}

	merged, err := reconcile.Merge(local.XMLContent, c.Differences, c.Selection())
	if err != nil {
		return nil, fmt.Errorf("failed to merge %s: %w", local.Name, err)
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	for field, value := range merged.Fields {
		local.SetField(field, value)
	}
	local.XMLContent = merged.XML
	local.LastUpdatedAt = &now
	if err := repository.NewTemplateRepository(tx).Update(local); err != nil {
		return nil, err
	}

	var entries []template.ConfigEntry
	if rec, err := template.Extract(merged.XML); err == nil && rec != nil {
		entries, _ = template.Dedupe(rec.Configs)
	}
	if err := repository.NewConfigRepository(tx).Replace(local.ID, entries); err != nil {
		return nil, err
	}

	c.Status = models.ComparisonApplied
	c.AppliedAt = &now
	if err := repository.NewComparisonRepository(tx).Update(c); err != nil {
		return nil, err
	}

	var rec *backup.Record
	if a.files.Exists(local.LocalPath) {
		name := strings.TrimSuffix(filepath.Base(local.LocalPath), ".xml")
		rec, err = a.backups.Create(local.ID, name, local.LocalPath)
		if err != nil {
			return nil, &BackupError{Path: local.LocalPath, Err: err}
		}
		a.logger.Info("template backed up", "template", local.Name, "backup", rec.BackupPath)
	}

	if err := a.files.Write(local.LocalPath, merged.XML); err != nil {
		if rec != nil {
			if derr := a.backups.Discard(rec); derr != nil {
				a.logger.Warn("failed to discard backup", "backup", rec.BackupPath, "error", derr)
			}
		}
		return nil, &WriteError{Path: local.LocalPath, Err: err}
	}

	if err := tx.Commit(); err != nil {
		a.revert(local.LocalPath, rec)
		return nil, fmt.Errorf("failed to commit apply: %w", err)
	}

	if rec != nil {
		if err := a.backups.Register(ctx, rec); err != nil {
			a.logger.Warn("failed to index backup", "backup", rec.BackupPath, "error", err)
		}
	}

	changes := len(merged.Plan.Fields) + len(merged.Plan.Configs) + len(merged.Plan.Added) + len(merged.Plan.Removed)
	a.logger.Info("changes applied",
		"comparison", c.ID,
		"template", local.Name,
		"path", local.LocalPath,
		"changes", changes,
	)

	return &Outcome{
		Comparison: c,
		Template:   local,
		Backup:     rec,
		Changes:    changes,
	}, nil
}

// revert undoes a written file after the record update failed: the backup is
// restored, or the file is removed when there was nothing to back up.
func (a *Applier) revert(path string, rec *backup.Record) {
	if rec == nil {
		if err := a.files.Remove(path); err != nil {
			a.logger.Error("failed to remove template after commit failure", "path", path, "error", err)
		}
		return
	}
	if err := a.backups.Restore(rec); err != nil {
		a.logger.Error("failed to restore template after commit failure",
			"path", path, "backup", rec.BackupPath, "error", err)
	}
}

// Preview returns what Apply would change. It only needs stored choices, not
// a reviewed status. A comparison without choices or one that cannot be
// merged yields an empty preview.
func (a *Applier) Preview(ctx context.Context, comparisonID string) (*reconcile.Preview, error) {
	c, local, err := a.load(comparisonID)
	if err != nil {
		return nil, err
	}
	return a.preview(c, local), nil
}

func (a *Applier) preview(c *models.Comparison, local *models.Template) *reconcile.Preview {
	if len(c.UserChoices) == 0 || local == nil {
		return reconcile.EmptyPreview()
	}

	p, err := reconcile.BuildPreview(local.XMLContent, c.Differences, c.Selection())
	if err != nil {
		a.logger.Warn("preview failed", "comparison", c.ID, "error", err)
		return reconcile.EmptyPreview()
	}
	return p
}
