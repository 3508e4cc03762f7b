package models

import (
	"time"

	"github.com/foxzi/tplsync/internal/reconcile"
)

// Comparison statuses
const (
	ComparisonPending  = "pending"
	ComparisonReviewed = "reviewed"
	ComparisonApplied  = "applied"
)

// Comparison pairs a local template with its community counterpart
type Comparison struct {
	ID                  string                `json:"id"`
	LocalTemplateID     string                `json:"local_template_id"`
	CommunityTemplateID string                `json:"community_template_id"`
	LocalName           string                `json:"local_name,omitempty"` // joined field
	Status              string                `json:"status"`               // pending, reviewed, applied
	Differences         reconcile.Differences `json:"differences"`
	UserChoices         map[string]string     `json:"user_choices"`
	ManualEdits         map[string]string     `json:"manual_edits"`
	LastComparedAt      *time.Time            `json:"last_compared_at,omitempty"`
	AppliedAt           *time.Time            `json:"applied_at,omitempty"`
	CreatedAt           time.Time             `json:"created_at"`
	UpdatedAt           time.Time             `json:"updated_at"`
}

// HasDifferences reports whether the difference map is non-empty
func (c *Comparison) HasDifferences() bool {
	return len(c.Differences) > 0
}

// IsReviewed reports whether choices have been submitted and not yet applied
func (c *Comparison) IsReviewed() bool {
	return c.Status == ComparisonReviewed
}

// Selection resolves the stored choices against the stored differences
func (c *Comparison) Selection() *reconcile.Selection {
	return reconcile.NewSelection(c.Differences, c.UserChoices, c.ManualEdits)
}

// ComparisonListFilter for filtering comparisons
type ComparisonListFilter struct {
	Status          string
	LocalTemplateID string
	Limit           int
	Offset          int
}
