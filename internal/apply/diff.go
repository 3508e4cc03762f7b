package apply

import (
	"context"
	"fmt"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/foxzi/tplsync/internal/reconcile"
	"github.com/foxzi/tplsync/internal/template"
)

// Diff is a line diff between the local template and the merge preview
type Diff struct {
	Original   string             `json:"original"`
	Updated    string             `json:"updated"`
	Diff       string             `json:"diff"`
	Summary    *reconcile.Preview `json:"summary"`
	HasChanges bool               `json:"has_changes"`
}

// PreviewDiff renders the preview as a unified diff. Both documents are
// re-indented with two spaces first so that the diff shows content changes
// rather than formatting.
func (a *Applier) PreviewDiff(ctx context.Context, comparisonID string) (*Diff, error) {
	c, local, err := a.load(comparisonID)
	if err != nil {
		return nil, err
	}

	preview := a.preview(c, local)

	original := ""
	if local != nil {
		original = indent(local.XMLContent)
	}
	updated := original
	if !preview.Empty() && preview.XML != "" {
		updated = indent(preview.XML)
	}

	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(original),
		B:        difflib.SplitLines(updated),
		FromFile: "local",
		ToFile:   "merged",
		Context:  3,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build diff: %w", err)
	}

	return &Diff{
		Original:   original,
		Updated:    updated,
		Diff:       text,
		Summary:    preview,
		HasChanges: original != updated,
	}, nil
}

// indent re-indents xml, returning it unchanged when it cannot be parsed
func indent(xml string) string {
	doc, err := template.Parse(xml)
	if err != nil {
		return xml
	}
	out, err := doc.Indented()
	if err != nil {
		return xml
	}
	return out
}
