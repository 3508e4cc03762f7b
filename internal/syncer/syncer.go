package syncer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/foxzi/tplsync/internal/catalog"
	"github.com/foxzi/tplsync/internal/metrics"
	"github.com/foxzi/tplsync/internal/models"
	"github.com/foxzi/tplsync/internal/reconcile"
	"github.com/foxzi/tplsync/internal/repository"
	"github.com/foxzi/tplsync/internal/scanner"
	"github.com/foxzi/tplsync/internal/template"
)

// Catalog finds the community counterpart of a repository. Implementations
// return catalog.ErrNotFound when the catalog has no entry.
type Catalog interface {
	FindTemplate(ctx context.Context, repository string) (*models.Template, error)
}

// Results counts what a sync run did, keyed by action
type Results map[string]int

// Syncer keeps the record store in step with the template directory and the
// community catalog
type Syncer struct {
	db          *sql.DB
	templates   *repository.TemplateRepository
	comparisons *repository.ComparisonRepository
	runs        *repository.SyncRunRepository
	scanner     *scanner.Scanner
	catalog     Catalog
	calculator  *reconcile.Calculator
	logger      *slog.Logger
}

// New creates a syncer
func New(db *sql.DB, scan *scanner.Scanner, cat Catalog, logger *slog.Logger) *Syncer {
	return &Syncer{
		db:          db,
		templates:   repository.NewTemplateRepository(db),
		comparisons: repository.NewComparisonRepository(db),
		runs:        repository.NewSyncRunRepository(db),
		scanner:     scan,
		catalog:     cat,
		calculator:  reconcile.NewCalculator(logger),
		logger:      logger.With("component", "syncer"),
	}
}

// withTx runs fn inside a transaction, committing when it returns nil
func (s *Syncer) withTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// replaceConfigs stores the configs found in t's XML, last occurrence of a
// name winning. A template whose XML cannot be parsed keeps no configs.
func (s *Syncer) replaceConfigs(q repository.Querier, t *models.Template) error {
	var entries []template.ConfigEntry
	if t.XMLContent != "" {
		rec, err := template.Extract(t.XMLContent)
		if err != nil {
			s.logger.Warn("failed to extract configs", "template", t.Name, "error", err)
		} else if rec != nil {
			var removed int
			entries, removed = template.Dedupe(rec.Configs)
			if removed > 0 {
				s.logger.Warn("duplicate configs removed", "template", t.Name, "removed", removed)
			}
		}
	}

	if err := repository.NewConfigRepository(q).Replace(t.ID, entries); err != nil {
		return fmt.Errorf("failed to sync configs for %s: %w", t.Name, err)
	}
	return nil
}

// SyncLocal upserts a local record for every template file in the directory
// and marks records whose file disappeared as inactive. The whole sync is one
// transaction.
func (s *Syncer) SyncLocal(ctx context.Context) (Results, error) {
	files, err := s.scanner.Scan()
	if err != nil {
		return nil, err
	}

	results := Results{"created": 0, "updated": 0, "removed": 0}

	err = s.withTx(func(tx *sql.Tx) error {
		templates := repository.NewTemplateRepository(tx)

		existing, _, err := templates.List(models.TemplateListFilter{Source: models.SourceLocal})
		if err != nil {
			return fmt.Errorf("failed to list local templates: %w", err)
		}

		seen := make(map[string]bool, len(files))
		for _, f := range files {
			if err := ctx.Err(); err != nil {
				return err
			}

			repo := f.Record.Fields.Repository
			if repo == "" {
				s.logger.Warn("skipping template without repository", "path", f.Path)
				continue
			}
			if seen[repo] {
				s.logger.Warn("repository found in more than one file", "repository", repo, "path", f.Path)
			}
			seen[repo] = true

			action, err := s.upsertLocal(tx, templates, f)
			if err != nil {
				return err
			}
			if action != "" {
				results[action]++
			}
		}

		for _, t := range existing {
			if seen[t.Repository] || t.Status == models.TemplateStatusInactive {
				continue
			}
			if err := templates.UpdateStatus(t.ID, models.TemplateStatusInactive); err != nil {
				return fmt.Errorf("failed to deactivate %s: %w", t.Name, err)
			}
			results["removed"]++
			s.logger.Info("template marked inactive", "template", t.Name, "repository", t.Repository)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.AddTemplatesSynced(models.SourceLocal, "created", results["created"])
	metrics.AddTemplatesSynced(models.SourceLocal, "updated", results["updated"])
	metrics.AddTemplatesSynced(models.SourceLocal, "removed", results["removed"])

	s.logger.Info("local sync completed",
		"created", results["created"],
		"updated", results["updated"],
		"removed", results["removed"],
	)
	return results, nil
}

// upsertLocal creates or refreshes the record of one file and returns
// "created", "updated" or "" when nothing changed
func (s *Syncer) upsertLocal(q repository.Querier, templates *repository.TemplateRepository, f scanner.File) (string, error) {
	repo := f.Record.Fields.Repository
	t, err := templates.GetByRepository(repo, models.SourceLocal)
	if err != nil {
		return "", fmt.Errorf("failed to look up %s: %w", repo, err)
	}

	modified := f.ModifiedAt
	if t == nil {
		t = &models.Template{
			XMLContent:    f.XML,
			Source:        models.SourceLocal,
			LocalPath:     f.Path,
			Status:        models.TemplateStatusActive,
			LastUpdatedAt: &modified,
		}
		t.SetFields(f.Record.Fields)
		if err := templates.Create(t); err != nil {
			return "", err
		}
		if err := s.replaceConfigs(q, t); err != nil {
			return "", err
		}
		s.logger.Info("template created", "template", t.Name, "path", f.Path)
		return "created", nil
	}

	if t.XMLContent == f.XML && t.LocalPath == f.Path && t.Status == models.TemplateStatusActive {
		return "", nil
	}

	t.SetFields(f.Record.Fields)
	t.XMLContent = f.XML
	t.LocalPath = f.Path
	t.Status = models.TemplateStatusActive
	t.LastUpdatedAt = &modified
	if err := templates.Update(t); err != nil {
		return "", err
	}
	if err := s.replaceConfigs(q, t); err != nil {
		return "", err
	}
	s.logger.Info("template updated", "template", t.Name, "path", f.Path)
	return "updated", nil
}

// SyncCommunity looks up every syncable local template in the catalog,
// upserts its community counterpart and refreshes the comparison. Failures
// for one template are counted and do not stop the run; an unreachable feed
// does.
func (s *Syncer) SyncCommunity(ctx context.Context) (Results, error) {
	locals, err := s.templates.ListSyncable()
	if err != nil {
		return nil, fmt.Errorf("failed to list local templates: %w", err)
	}

	results := Results{"created": 0, "updated": 0, "errors": 0, "not_found": 0}

	for i := range locals {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		local := &locals[i]
		community, err := s.catalog.FindTemplate(ctx, local.Repository)
		switch {
		case errors.Is(err, catalog.ErrNotFound):
			s.logger.Debug("no community template found", "repository", local.Repository)
			if err := s.templates.SetNotInCommunity(local.ID, true); err != nil {
				s.logger.Error("failed to flag template", "template", local.Name, "error", err)
				results["errors"]++
				continue
			}
			results["not_found"]++
			continue
		case errors.Is(err, catalog.ErrFeedUnavailable), errors.Is(err, catalog.ErrFeedParse):
			return results, err
		case err != nil:
			s.logger.Error("failed to fetch community template", "repository", local.Repository, "error", err)
			results["errors"]++
			continue
		}

		action, err := s.syncCommunityTemplate(local, community)
		if err != nil {
			s.logger.Error("failed to sync community template", "repository", local.Repository, "error", err)
			results["errors"]++
			continue
		}
		results[action]++
	}

	metrics.AddTemplatesSynced(models.SourceCommunity, "created", results["created"])
	metrics.AddTemplatesSynced(models.SourceCommunity, "updated", results["updated"])

	s.logger.Info("community sync completed",
		"created", results["created"],
		"updated", results["updated"],
		"not_found", results["not_found"],
		"errors", results["errors"],
	)
	return results, nil
}

func (s *Syncer) syncCommunityTemplate(local, fetched *models.Template) (string, error) {
	action := "updated"

	err := s.withTx(func(tx *sql.Tx) error {
		templates := repository.NewTemplateRepository(tx)

		community, err := templates.GetByRepository(fetched.Repository, models.SourceCommunity)
		if err != nil {
			return err
		}

		now := time.Now()
		if fetched.LastUpdatedAt == nil {
			fetched.LastUpdatedAt = &now
		}

		if community == nil {
			community = fetched
			if err := templates.Create(community); err != nil {
				return err
			}
			action = "created"
		} else {
			community.SetFields(fetched.Fields())
			community.XMLContent = fetched.XMLContent
			community.CommunityRepository = fetched.CommunityRepository
			community.Status = models.TemplateStatusActive
			community.LastUpdatedAt = fetched.LastUpdatedAt
			if err := templates.Update(community); err != nil {
				return err
			}
		}
		if err := s.replaceConfigs(tx, community); err != nil {
			return err
		}

		if local.CommunityRepository != community.Repository {
			local.CommunityRepository = community.Repository
			if err := templates.Update(local); err != nil {
				return err
			}
		}

		_, _, err = s.compare(tx, local, community)
		return err
	})
	return action, err
}

// matchingCommunity returns the community record paired with a local one
func (s *Syncer) matchingCommunity(q repository.Querier, local *models.Template) (*models.Template, error) {
	templates := repository.NewTemplateRepository(q)
	if local.CommunityRepository != "" {
		t, err := templates.GetByRepository(local.CommunityRepository, models.SourceCommunity)
		if err != nil || t != nil {
			return t, err
		}
	}
	return templates.GetByRepository(local.Repository, models.SourceCommunity)
}

// FindOrCreateComparison returns the comparison of a pair, creating a pending
// one when none exists. The boolean reports creation.
func FindOrCreateComparison(q repository.Querier, local, community *models.Template) (*models.Comparison, bool, error) {
	comparisons := repository.NewComparisonRepository(q)

	c, err := comparisons.GetByPair(local.ID, community.ID)
	if err != nil {
		return nil, false, err
	}
	if c != nil {
		return c, false, nil
	}

	c = &models.Comparison{
		LocalTemplateID:     local.ID,
		CommunityTemplateID: community.ID,
		Status:              models.ComparisonPending,
		LocalName:           local.Name,
	}
	if err := comparisons.Create(c); err != nil {
		return nil, false, err
	}
	return c, true, nil
}

// compare finds or creates the pair's comparison and recomputes it
func (s *Syncer) compare(q repository.Querier, local, community *models.Template) (*models.Comparison, bool, error) {
	c, created, err := FindOrCreateComparison(q, local, community)
	if err != nil {
		return nil, false, err
	}
	if err := s.recompute(q, c, local, community); err != nil {
		return nil, false, err
	}
	return c, created, nil
}

// recompute replaces the difference map and stamps last_compared_at. Stored
// choices and edits are kept for keys that still exist.
func (s *Syncer) recompute(q repository.Querier, c *models.Comparison, local, community *models.Template) error {
	diffs := s.calculator.Calculate(
		&reconcile.Source{Fields: local.Fields(), XML: local.XMLContent},
		&reconcile.Source{Fields: community.Fields(), XML: community.XMLContent, Community: true},
	)

	now := time.Now()
	c.Differences = diffs
	c.LastComparedAt = &now
	if choices, err := reconcile.FilterChoices(diffs, c.UserChoices); err == nil {
		c.UserChoices = choices
	}
	c.ManualEdits = reconcile.FilterEdits(diffs, c.ManualEdits)

	if err := repository.NewComparisonRepository(q).Update(c); err != nil {
		return err
	}

	counts := make(map[string]int)
	for kind, n := range diffs.Count() {
		counts[string(kind)] = n
	}
	metrics.ObserveComparison(counts)

	s.logger.Debug("differences computed", "template", local.Name, "differences", len(diffs))
	return nil
}

// UpdateComparisons recomputes the comparison of one local template, or of
// every active local template when templateID is empty. Templates without a
// community counterpart are skipped.
func (s *Syncer) UpdateComparisons(ctx context.Context, templateID string) (Results, error) {
	var locals []models.Template
	if templateID != "" {
		t, err := s.templates.GetByID(templateID)
		if err != nil {
			return nil, err
		}
		if t == nil {
			return nil, fmt.Errorf("template not found: %s", templateID)
		}
		if !t.IsLocal() {
			return nil, fmt.Errorf("template %s is not a local template", templateID)
		}
		locals = []models.Template{*t}
	} else {
		var err error
		locals, _, err = s.templates.List(models.TemplateListFilter{
			Source: models.SourceLocal,
			Status: models.TemplateStatusActive,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list local templates: %w", err)
		}
	}

	results := Results{"created": 0, "updated": 0, "errors": 0}
	for i := range locals {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		local := &locals[i]
		err := s.withTx(func(tx *sql.Tx) error {
			community, err := s.matchingCommunity(tx, local)
			if err != nil || community == nil {
				return err
			}
			_, created, err := s.compare(tx, local, community)
			if err != nil {
				return err
			}
			if created {
				results["created"]++
			} else {
				results["updated"]++
			}
			return nil
		})
		if err != nil {
			s.logger.Error("failed to update comparison", "template", local.Name, "error", err)
			results["errors"]++
		}
	}

	s.logger.Info("comparison update completed",
		"created", results["created"],
		"updated", results["updated"],
		"errors", results["errors"],
	)
	return results, nil
}

// Recompute recomputes one comparison from the current records
func (s *Syncer) Recompute(ctx context.Context, comparisonID string) (*models.Comparison, error) {
	c, err := s.comparisons.GetByID(comparisonID)
	if err != nil || c == nil {
		return nil, err
	}

	local, err := s.templates.GetByID(c.LocalTemplateID)
	if err != nil {
		return nil, err
	}
	community, err := s.templates.GetByID(c.CommunityTemplateID)
	if err != nil {
		return nil, err
	}
	if local == nil || community == nil {
		return nil, fmt.Errorf("comparison %s refers to a missing template", comparisonID)
	}

	if err := s.recompute(s.db, c, local, community); err != nil {
		return nil, err
	}
	return c, nil
}

// Review stores the submitted choices and manual edits, restricted to keys
// the difference map knows, and marks the comparison reviewed. An invalid
// choice value rejects the whole submission.
func (s *Syncer) Review(ctx context.Context, comparisonID string, choices, edits map[string]string) (*models.Comparison, error) {
	c, err := s.comparisons.GetByID(comparisonID)
	if err != nil || c == nil {
		return nil, err
	}

	filtered, err := reconcile.FilterChoices(c.Differences, choices)
	if err != nil {
		return nil, err
	}

	c.UserChoices = filtered
	c.ManualEdits = reconcile.FilterEdits(c.Differences, edits)
	c.Status = models.ComparisonReviewed
	if err := s.comparisons.Update(c); err != nil {
		return nil, err
	}

	s.logger.Info("comparison reviewed",
		"comparison", c.ID,
		"template", c.LocalName,
		"choices", len(c.UserChoices),
		"edits", len(c.ManualEdits),
	)
	return c, nil
}
