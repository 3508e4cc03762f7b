package backup

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const timestampFormat = "20060102_150405"

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Manager creates, restores and prunes template backups. The index is
// optional; without it backups are written but not catalogued.
type Manager struct {
	dir    string
	files  Files
	index  *Index
	logger *slog.Logger
	now    func() time.Time
}

// NewManager creates a backup manager writing into dir
func NewManager(dir string, index *Index, logger *slog.Logger) *Manager {
	return &Manager{
		dir:    dir,
		index:  index,
		logger: logger.With("component", "backup"),
		now:    time.Now,
	}
}

// Dir returns the backup directory
func (m *Manager) Dir() string {
	return m.dir
}

// Index returns the backup index, which may be nil
func (m *Manager) Index() *Index {
	return m.index
}

// EnsureDir creates the backup directory
func (m *Manager) EnsureDir() error {
	return m.files.EnsureDir(m.dir)
}

// fileName returns "<name>_backup_<YYYYmmdd_HHMMSS>.xml"
func fileName(name string, at time.Time) string {
	safe := strings.Trim(unsafeName.ReplaceAllString(name, "_"), "_")
	if safe == "" {
		safe = "template"
	}
	return fmt.Sprintf("%s_backup_%s.xml", safe, at.Format(timestampFormat))
}

// Create copies the file at path into the backup directory. The record is
// not indexed; call Register once the change it protects has been committed.
func (m *Manager) Create(templateID, name, path string) (*Record, error) {
	at := m.now()
	target := filepath.Join(m.dir, fileName(name, at))

	if m.files.Exists(target) {
		base := strings.TrimSuffix(target, ".xml")
		for n := 1; ; n++ {
			candidate := fmt.Sprintf("%s_%d.xml", base, n)
			if !m.files.Exists(candidate) {
				m.logger.Warn("backup already exists, using suffix",
					"template", name,
					"existing", target,
					"backup", candidate,
				)
				target = candidate
				break
			}
		}
	}

	checksum, size, err := m.files.Copy(path, target)
	if err != nil {
		return nil, err
	}

	return &Record{
		TemplateID:   templateID,
		TemplateName: name,
		OriginalPath: path,
		BackupPath:   target,
		Checksum:     checksum,
		Size:         size,
		CreatedAt:    at,
	}, nil
}

// Register adds a backup to the index. It is a no-op without an index.
func (m *Manager) Register(ctx context.Context, rec *Record) error {
	if m.index == nil {
		return nil
	}
	return m.index.Add(ctx, rec)
}

// Restore writes the backup content back to its original path after
// verifying the checksum
func (m *Manager) Restore(rec *Record) error {
	content, err := m.files.Read(rec.BackupPath)
	if err != nil {
		return err
	}
	if rec.Checksum != "" && Checksum([]byte(content)) != rec.Checksum {
		return fmt.Errorf("backup %s does not match its checksum", rec.BackupPath)
	}
	return m.files.Write(rec.OriginalPath, content)
}

// Discard removes an unregistered backup file
func (m *Manager) Discard(rec *Record) error {
	return m.files.Remove(rec.BackupPath)
}

// List returns a template's indexed backups, newest first
func (m *Manager) List(ctx context.Context, templateID string) ([]*Record, error) {
	if m.index == nil {
		return nil, nil
	}
	return m.index.ListByTemplate(ctx, templateID)
}

// Prune keeps the newest keep backups of a template and deletes the rest,
// both files and index entries. With dryRun nothing is deleted.
func (m *Manager) Prune(ctx context.Context, templateID string, keep int, dryRun bool) ([]*Record, error) {
	if m.index == nil {
		return nil, nil
	}

	records, err := m.index.ListByTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if len(records) <= keep {
		return nil, nil
	}

	stale := records[keep:]
	if dryRun {
		return stale, nil
	}

	for _, rec := range stale {
		if err := m.files.Remove(rec.BackupPath); err != nil {
			return nil, err
		}
		if err := m.index.Delete(ctx, rec.ID); err != nil {
			return nil, err
		}
		m.logger.Debug("backup pruned", "template", rec.TemplateName, "backup", rec.BackupPath)
	}
	return stale, nil
}

// PruneAll applies Prune to every template found in the index
func (m *Manager) PruneAll(ctx context.Context, keep int, dryRun bool) ([]*Record, error) {
	if m.index == nil {
		return nil, nil
	}

	all, err := m.index.List(ctx, ListFilter{})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var pruned []*Record
	for _, rec := range all {
		if seen[rec.TemplateID] {
			continue
		}
		seen[rec.TemplateID] = true

		stale, err := m.Prune(ctx, rec.TemplateID, keep, dryRun)
		if err != nil {
			return pruned, err
		}
		pruned = append(pruned, stale...)
	}
	return pruned, nil
}

// Orphans returns files in the backup directory that no index entry refers to
func (m *Manager) Orphans(ctx context.Context) ([]string, error) {
	if m.index == nil {
		return nil, nil
	}

	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	all, err := m.index.List(ctx, ListFilter{})
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(all))
	for _, rec := range all {
		known[filepath.Base(rec.BackupPath)] = true
	}

	var orphans []string
	for _, e := range entries {
		if e.IsDir() || !strings.Contains(e.Name(), "_backup_") || known[e.Name()] {
			continue
		}
		orphans = append(orphans, filepath.Join(m.dir, e.Name()))
	}
	return orphans, nil
}
