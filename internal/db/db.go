package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// MemoryPath opens a private in-memory database
const MemoryPath = ":memory:"

type DB struct {
	*sql.DB
}

func New(path string) (*DB, error) {
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	if path == MemoryPath {
		dsn = path
	} else {
		// Ensure directory exists
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection keeps an in-memory database shared and
	// serializes writers on a file database.
	db.SetMaxOpenConns(1)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return &DB{db}, nil
}

func (db *DB) Migrate() error {
	migrations := []string{
		migrationTemplates,
		migrationTemplateConfigs,
		migrationTemplateComparisons,
		migrationSyncJobRuns,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

const migrationTemplates = `
CREATE TABLE IF NOT EXISTS templates (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    repository TEXT NOT NULL,
    network TEXT,
    category TEXT,
    banner TEXT,
    webui TEXT,
    description TEXT,
    template_version TEXT,
    xml_content TEXT,
    source TEXT NOT NULL DEFAULT 'local',
    local_path TEXT,
    status TEXT NOT NULL DEFAULT 'active',
    not_in_community INTEGER NOT NULL DEFAULT 0,
    community_repository TEXT,
    last_updated_at TIMESTAMP,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(repository, source)
);
CREATE INDEX IF NOT EXISTS idx_templates_source ON templates(source);
CREATE INDEX IF NOT EXISTS idx_templates_status ON templates(status);
CREATE INDEX IF NOT EXISTS idx_templates_name ON templates(name);
`

const migrationTemplateConfigs = `
CREATE TABLE IF NOT EXISTS template_configs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    template_id TEXT NOT NULL REFERENCES templates(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    config_type TEXT,
    target TEXT,
    default_value TEXT,
    actual_value TEXT,
    mode TEXT,
    description TEXT,
    required INTEGER NOT NULL DEFAULT 0,
    display TEXT NOT NULL DEFAULT 'always',
    order_index INTEGER NOT NULL DEFAULT 0,
    UNIQUE(template_id, name)
);
CREATE INDEX IF NOT EXISTS idx_template_configs_template ON template_configs(template_id);
`

const migrationTemplateComparisons = `
CREATE TABLE IF NOT EXISTS template_comparisons (
    id TEXT PRIMARY KEY,
    local_template_id TEXT NOT NULL REFERENCES templates(id) ON DELETE CASCADE,
    community_template_id TEXT NOT NULL REFERENCES templates(id) ON DELETE CASCADE,
    status TEXT NOT NULL DEFAULT 'pending',
    differences JSON,
    user_choices JSON,
    manual_edits JSON,
    last_compared_at TIMESTAMP,
    applied_at TIMESTAMP,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(local_template_id, community_template_id)
);
CREATE INDEX IF NOT EXISTS idx_template_comparisons_status ON template_comparisons(status);
`

const migrationSyncJobRuns = `
CREATE TABLE IF NOT EXISTS sync_job_runs (
    id TEXT PRIMARY KEY,
    job_type TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'running',
    started_at TIMESTAMP NOT NULL,
    completed_at TIMESTAMP,
    results JSON,
    error_message TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_sync_job_runs_type ON sync_job_runs(job_type);
CREATE INDEX IF NOT EXISTS idx_sync_job_runs_started ON sync_job_runs(started_at);
`
