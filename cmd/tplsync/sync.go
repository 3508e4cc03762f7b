package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/foxzi/tplsync/internal/models"
	"github.com/foxzi/tplsync/internal/repository"
)

var syncCmd = &cobra.Command{
	Use:       "sync [local|community|comparisons|all]",
	Short:     "Run a sync job",
	Long:      `Run a local scan, a community sync, a comparison update or all of them. Without an argument a local scan followed by a community sync is run.`,
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"local", "community", "comparisons", "all"},
	RunE:      runSync,
}

var compareCmd = &cobra.Command{
	Use:   "compare <template-id>",
	Short: "Recompute the comparison of a local template",
	Args:  cobra.ExactArgs(1),
	RunE:  runCompare,
}

func init() {
	rootCmd.AddCommand(syncCmd, compareCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	c, err := openComponents()
	if err != nil {
		return err
	}
	defer c.Close()

	job := "all"
	if len(args) == 1 {
		job = args[0]
	}

	ctx := context.Background()
	var runs []*models.SyncJobRun
	var runErr error

	switch job {
	case "local":
		run, err := c.Syncer.RunLocal(ctx)
		runs, runErr = []*models.SyncJobRun{run}, err
	case "community":
		run, err := c.Syncer.RunCommunity(ctx)
		runs, runErr = []*models.SyncJobRun{run}, err
	case "comparisons":
		run, err := c.Syncer.RunComparisons(ctx, "")
		runs, runErr = []*models.SyncJobRun{run}, err
	default:
		runs, runErr = c.Syncer.RunAll(ctx)
	}

	printRuns(runs)
	return runErr
}

func runCompare(cmd *cobra.Command, args []string) error {
	c, err := openComponents()
	if err != nil {
		return err
	}
	defer c.Close()

	run, err := c.Syncer.RunComparisons(context.Background(), args[0])
	if err != nil {
		return err
	}
	printRuns([]*models.SyncJobRun{run})

	comparison, err := repository.NewComparisonRepository(c.DB.DB).GetByLocalTemplate(args[0])
	if err != nil {
		return err
	}
	if comparison == nil {
		fmt.Println("\nNo community counterpart found")
		return nil
	}

	fmt.Printf("\nComparison %s (%s)\n", comparison.ID, comparison.Status)
	if !comparison.HasDifferences() {
		fmt.Println("  No differences")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  KEY\tKIND")
	for _, key := range comparison.Differences.Keys() {
		fmt.Fprintf(w, "  %s\t%s\n", key, key.Kind)
	}
	return w.Flush()
}

func printRuns(runs []*models.SyncJobRun) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "JOB\tSTATUS\tDURATION\tRESULTS")
	for _, run := range runs {
		if run == nil {
			continue
		}
		results := formatResults(run.Results)
		if run.ErrorMessage != "" {
			results += " error=" + run.ErrorMessage
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", run.JobType, run.Status, run.Duration().Round(time.Millisecond), results)
	}
	w.Flush()
}

func formatResults(results map[string]int) string {
	keys := make([]string, 0, len(results))
	for k := range results {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, results[k]))
	}
	return strings.Join(parts, " ")
}
