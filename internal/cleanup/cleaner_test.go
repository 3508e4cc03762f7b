package cleanup

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/foxzi/tplsync/internal/backup"
	"github.com/foxzi/tplsync/internal/db"
	"github.com/foxzi/tplsync/internal/models"
	"github.com/foxzi/tplsync/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	cleaner *Cleaner
	runs    *repository.SyncRunRepository
	backups *backup.Manager
	dir     string
}

func setup(t *testing.T, cfg Config) *fixture {
	t.Helper()

	database, err := db.New(db.MemoryPath)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := database.Migrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	root := t.TempDir()
	index, err := backup.OpenIndex(filepath.Join(root, "backups.db"))
	if err != nil {
		t.Fatalf("OpenIndex() error = %v", err)
	}
	t.Cleanup(func() { index.Close() })

	dir := filepath.Join(root, "backups")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}

	f := &fixture{
		runs:    repository.NewSyncRunRepository(database.DB),
		backups: backup.NewManager(dir, index, testLogger()),
		dir:     dir,
	}
	f.cleaner = NewCleaner(database.DB, f.backups, cfg, testLogger())

	for _, jobType := range []string{models.JobTypeLocalSync, models.JobTypeCommunitySync} {
		run, err := f.runs.Start(jobType)
		if err != nil {
			t.Fatal(err)
		}
		if err := f.runs.Finish(run, map[string]int{"created": 1}, nil); err != nil {
			t.Fatal(err)
		}
	}

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		path := filepath.Join(dir, fmt.Sprintf("duplicati_backup_2026010%d_120000.xml", i+1))
		if err := os.WriteFile(path, []byte("<Container/>"), 0644); err != nil {
			t.Fatal(err)
		}
		rec := &backup.Record{
			TemplateID:   "t1",
			TemplateName: "duplicati",
			BackupPath:   path,
			CreatedAt:    base.Add(time.Duration(i) * 24 * time.Hour),
		}
		if err := f.backups.Register(context.Background(), rec); err != nil {
			t.Fatal(err)
		}
	}

	if err := os.WriteFile(filepath.Join(dir, "stray_backup_20250101_000000.xml"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	return f
}

func (f *fixture) runCount(t *testing.T) int {
	t.Helper()
	_, total, err := f.runs.List(models.SyncRunFilter{})
	if err != nil {
		t.Fatal(err)
	}
	return total
}

func TestCleaner_Run(t *testing.T) {
	tests := []struct {
		name        string
		dryRun      bool
		wantRuns    int
		wantBackups int
	}{
		{name: "dry run", dryRun: true, wantRuns: 2, wantBackups: 3},
		{name: "delete", dryRun: false, wantRuns: 0, wantBackups: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t, Config{RunMaxAge: 30 * 24 * time.Hour, KeepBackups: 1})
			f.cleaner.now = func() time.Time { return time.Now().Add(40 * 24 * time.Hour) }
			ctx := context.Background()

			report, err := f.cleaner.Run(ctx, tt.dryRun)
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if report.DryRun != tt.dryRun {
				t.Errorf("DryRun = %v", report.DryRun)
			}
			if report.RunsDeleted != 2 {
				t.Errorf("RunsDeleted = %d, want 2", report.RunsDeleted)
			}
			if len(report.BackupsPruned) != 2 {
				t.Errorf("BackupsPruned = %d, want 2", len(report.BackupsPruned))
			}
			if len(report.Orphans) != 1 || filepath.Base(report.Orphans[0]) != "stray_backup_20250101_000000.xml" {
				t.Errorf("Orphans = %v", report.Orphans)
			}

			if got := f.runCount(t); got != tt.wantRuns {
				t.Errorf("runs left = %d, want %d", got, tt.wantRuns)
			}
			list, _ := f.backups.List(ctx, "t1")
			if len(list) != tt.wantBackups {
				t.Errorf("indexed backups left = %d, want %d", len(list), tt.wantBackups)
			}
			if !tt.dryRun && len(list) == 1 && filepath.Base(list[0].BackupPath) != "duplicati_backup_20260103_120000.xml" {
				t.Errorf("kept %s, want the newest backup", list[0].BackupPath)
			}
		})
	}
}

func TestCleaner_RecentRunsKept(t *testing.T) {
	f := setup(t, Config{RunMaxAge: 30 * 24 * time.Hour})

	report, err := f.cleaner.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.RunsDeleted != 0 {
		t.Errorf("RunsDeleted = %d, want 0", report.RunsDeleted)
	}
	if len(report.BackupsPruned) != 0 {
		t.Errorf("BackupsPruned = %d without keep_backups", len(report.BackupsPruned))
	}
	if got := f.runCount(t); got != 2 {
		t.Errorf("runs left = %d, want 2", got)
	}
}

func TestCleaner_StartStop(t *testing.T) {
	f := setup(t, Config{RunMaxAge: time.Hour, Interval: time.Hour})
	f.cleaner.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	f.cleaner.Start(context.Background())
	deadline := time.Now().Add(5 * time.Second)
	for f.runCount(t) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("background cleanup did not run")
		}
		time.Sleep(10 * time.Millisecond)
	}
	f.cleaner.Stop()
}
