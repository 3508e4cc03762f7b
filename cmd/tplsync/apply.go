package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/foxzi/tplsync/internal/apply"
	"github.com/foxzi/tplsync/internal/reconcile"
	"github.com/foxzi/tplsync/internal/template"
)

var previewJSON bool

var previewCmd = &cobra.Command{
	Use:   "preview <comparison-id>",
	Short: "Show what applying a reviewed comparison would change",
	Args:  cobra.ExactArgs(1),
	RunE:  runPreview,
}

var applyCmd = &cobra.Command{
	Use:   "apply <comparison-id>",
	Short: "Back up the local template and write the reviewed changes",
	Args:  cobra.ExactArgs(1),
	RunE:  runApply,
}

func init() {
	previewCmd.Flags().BoolVar(&previewJSON, "json", false, "print the preview as JSON")
	rootCmd.AddCommand(previewCmd, applyCmd)
}

func runPreview(cmd *cobra.Command, args []string) error {
	c, err := openComponents()
	if err != nil {
		return err
	}
	defer c.Close()

	diff, err := c.Applier.PreviewDiff(context.Background(), args[0])
	if err != nil {
		return applyError(err)
	}

	if previewJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(diff)
	}

	if !diff.HasChanges {
		fmt.Println("No changes (submit at least one community choice first)")
		return nil
	}

	printSummary(diff.Summary)
	fmt.Println()
	fmt.Print(diff.Diff)
	return nil
}

func runApply(cmd *cobra.Command, args []string) error {
	c, err := openComponents()
	if err != nil {
		return err
	}
	defer c.Close()

	out, err := c.Applier.Apply(context.Background(), args[0])
	if err != nil {
		return applyError(err)
	}

	fmt.Printf("Applied %d change(s) to %s\n", out.Changes, out.Template.LocalPath)
	if out.Backup != nil {
		fmt.Printf("  Backup: %s\n", out.Backup.BackupPath)
	}
	return nil
}

func printSummary(p *reconcile.Preview) {
	if p == nil {
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CHANGE\tFROM\tTO")

	fields := make([]template.Field, 0, len(p.BasicFields))
	for f := range p.BasicFields {
		fields = append(fields, f)
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i] < fields[j] })
	for _, f := range fields {
		change := p.BasicFields[f]
		fmt.Fprintf(w, "%s\t%s\t%s\n", f, change.From, change.To)
	}

	names := make([]string, 0, len(p.Configs))
	for name := range p.Configs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		cfg := p.Configs[name]
		if cfg.Action != reconcile.ActionModify {
			fmt.Fprintf(w, "config %s\t%s\t\n", name, cfg.Action)
			continue
		}
		attrs := make([]template.Attribute, 0, len(cfg.Changes))
		for attr := range cfg.Changes {
			attrs = append(attrs, attr)
		}
		sort.Slice(attrs, func(i, j int) bool { return attrs[i] < attrs[j] })
		for _, attr := range attrs {
			change := cfg.Changes[attr]
			fmt.Fprintf(w, "config %s %s\t%s\t%s\n", name, attr, change.From, change.To)
		}
	}
	w.Flush()
}

// applyError adds a hint to validation failures
func applyError(err error) error {
	if errors.Is(err, apply.ErrNotReviewed) {
		return fmt.Errorf("%w: submit choices first", err)
	}
	return err
}
