package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/foxzi/tplsync/internal/models"
	"github.com/foxzi/tplsync/internal/reconcile"
)

type ComparisonRepository struct {
	db Querier
}

func NewComparisonRepository(db Querier) *ComparisonRepository {
	return &ComparisonRepository{db: db}
}

const comparisonColumns = `
	c.id, c.local_template_id, c.community_template_id, COALESCE(t.name, ''), c.status,
	c.differences, c.user_choices, c.manual_edits, c.last_compared_at, c.applied_at,
	c.created_at, c.updated_at`

const comparisonFrom = `
	FROM template_comparisons c
	LEFT JOIN templates t ON c.local_template_id = t.id`

func scanComparison(row rowScanner) (*models.Comparison, error) {
	c := &models.Comparison{}
	var differences, choices, edits sql.NullString
	var lastComparedAt, appliedAt sql.NullTime

	err := row.Scan(
		&c.ID, &c.LocalTemplateID, &c.CommunityTemplateID, &c.LocalName, &c.Status,
		&differences, &choices, &edits, &lastComparedAt, &appliedAt,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Differences = reconcile.Differences{}
	c.UserChoices = map[string]string{}
	c.ManualEdits = map[string]string{}
	if err := decodeJSON(differences, &c.Differences); err != nil {
		return nil, err
	}
	if err := decodeJSON(choices, &c.UserChoices); err != nil {
		return nil, err
	}
	if err := decodeJSON(edits, &c.ManualEdits); err != nil {
		return nil, err
	}
	if lastComparedAt.Valid {
		c.LastComparedAt = &lastComparedAt.Time
	}
	if appliedAt.Valid {
		c.AppliedAt = &appliedAt.Time
	}
	return c, nil
}

// Create inserts a new comparison. The (local, community) pair is unique.
func (r *ComparisonRepository) Create(c *models.Comparison) error {
	c.ID = uuid.New().String()
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	if c.Status == "" {
		c.Status = models.ComparisonPending
	}

	differences, choices, edits, err := encodeComparison(c)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(`
		INSERT INTO template_comparisons (id, local_template_id, community_template_id, status,
			differences, user_choices, manual_edits, last_compared_at, applied_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.LocalTemplateID, c.CommunityTemplateID, c.Status,
		differences, choices, edits, c.LastComparedAt, c.AppliedAt, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create comparison: %w", err)
	}
	return nil
}

// Update saves the status, maps and timestamps of a comparison
func (r *ComparisonRepository) Update(c *models.Comparison) error {
	c.UpdatedAt = time.Now()

	differences, choices, edits, err := encodeComparison(c)
	if err != nil {
		return err
	}

	result, err := r.db.Exec(`
		UPDATE template_comparisons SET status = ?, differences = ?, user_choices = ?, manual_edits = ?,
			last_compared_at = ?, applied_at = ?, updated_at = ?
		WHERE id = ?`,
		c.Status, differences, choices, edits,
		c.LastComparedAt, c.AppliedAt, c.UpdatedAt, c.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update comparison: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("comparison not found: %s", c.ID)
	}
	return nil
}

func encodeComparison(c *models.Comparison) (differences, choices, edits string, err error) {
	if c.Differences == nil {
		c.Differences = reconcile.Differences{}
	}
	if c.UserChoices == nil {
		c.UserChoices = map[string]string{}
	}
	if c.ManualEdits == nil {
		c.ManualEdits = map[string]string{}
	}
	if differences, err = encodeJSON(c.Differences); err != nil {
		return
	}
	if choices, err = encodeJSON(c.UserChoices); err != nil {
		return
	}
	edits, err = encodeJSON(c.ManualEdits)
	return
}

// GetByID returns a comparison by ID
func (r *ComparisonRepository) GetByID(id string) (*models.Comparison, error) {
	c, err := scanComparison(r.db.QueryRow(`SELECT `+comparisonColumns+comparisonFrom+` WHERE c.id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// GetByPair returns the comparison of a local and community template
func (r *ComparisonRepository) GetByPair(localID, communityID string) (*models.Comparison, error) {
	c, err := scanComparison(r.db.QueryRow(
		`SELECT `+comparisonColumns+comparisonFrom+` WHERE c.local_template_id = ? AND c.community_template_id = ?`,
		localID, communityID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// GetByLocalTemplate returns the most recently compared comparison of a local template
func (r *ComparisonRepository) GetByLocalTemplate(localID string) (*models.Comparison, error) {
	c, err := scanComparison(r.db.QueryRow(
		`SELECT `+comparisonColumns+comparisonFrom+` WHERE c.local_template_id = ?
		ORDER BY c.last_compared_at DESC, c.created_at DESC LIMIT 1`,
		localID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// List returns comparisons with optional filtering
func (r *ComparisonRepository) List(filter models.ComparisonListFilter) ([]models.Comparison, int, error) {
	where := " WHERE 1=1"
	args := []any{}

	if filter.Status != "" {
		where += " AND c.status = ?"
		args = append(args, filter.Status)
	}
	if filter.LocalTemplateID != "" {
		where += " AND c.local_template_id = ?"
		args = append(args, filter.LocalTemplateID)
	}

	var total int
	if err := r.db.QueryRow("SELECT COUNT(*)"+comparisonFrom+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + comparisonColumns + comparisonFrom + where + " ORDER BY c.updated_at DESC, c.id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		if filter.Limit <= 0 {
			query += " LIMIT -1"
		}
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	comparisons := []models.Comparison{}
	for rows.Next() {
		c, err := scanComparison(rows)
		if err != nil {
			return nil, 0, err
		}
		comparisons = append(comparisons, *c)
	}

	return comparisons, total, rows.Err()
}

// CountByStatus returns the number of comparisons per status
func (r *ComparisonRepository) CountByStatus() (map[string]int, error) {
	rows, err := r.db.Query(`SELECT status, COUNT(*) FROM template_comparisons GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// Delete deletes a comparison
func (r *ComparisonRepository) Delete(id string) error {
	_, err := r.db.Exec("DELETE FROM template_comparisons WHERE id = ?", id)
	return err
}
