package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/foxzi/tplsync/internal/cleanup"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Clean up old sync runs and template backups",
	RunE:  runCleanup,
}

var (
	cleanupRunsDays   int
	cleanupKeepBackup int
	cleanupDryRun     bool
)

func init() {
	cleanupCmd.Flags().IntVar(&cleanupRunsDays, "runs-days", 0, "Delete sync runs older than N days (default sync.retention_days)")
	cleanupCmd.Flags().IntVar(&cleanupKeepBackup, "keep-backups", 0, "Keep only the newest N backups per template (default templates.keep_backups)")
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "Show what would be deleted without actually deleting")
	rootCmd.AddCommand(cleanupCmd)
}

func runCleanup(cmd *cobra.Command, args []string) error {
	c, err := openComponents()
	if err != nil {
		return err
	}
	defer c.Close()

	days := c.Config.Sync.RetentionDays
	if cleanupRunsDays > 0 {
		days = cleanupRunsDays
	}
	keep := c.Config.Templates.KeepBackups
	if cleanupKeepBackup > 0 {
		keep = cleanupKeepBackup
	}

	if cleanupDryRun {
		fmt.Println("Dry run mode - no data will be deleted")
		fmt.Println()
	}

	cleaner := cleanup.NewCleaner(c.DB.DB, c.Backups, cleanup.Config{
		RunMaxAge:   time.Duration(days) * 24 * time.Hour,
		KeepBackups: keep,
	}, c.Logger)

	report, err := cleaner.Run(context.Background(), cleanupDryRun)
	if err != nil {
		return err
	}

	fmt.Printf("Sync runs older than %d days: %d\n", days, report.RunsDeleted)
	fmt.Printf("Backups beyond the newest %d per template: %d\n", keep, len(report.BackupsPruned))
	for _, rec := range report.BackupsPruned {
		fmt.Printf("  %s\n", rec.BackupPath)
	}
	if len(report.Orphans) > 0 {
		fmt.Printf("Unindexed backup files (not deleted): %d\n", len(report.Orphans))
		for _, path := range report.Orphans {
			fmt.Printf("  %s\n", path)
		}
	}

	if !cleanupDryRun {
		fmt.Println("\nCleanup completed")
	}
	return nil
}
