package repository

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/foxzi/tplsync/internal/models"
)

type TemplateRepository struct {
	db Querier
}

func NewTemplateRepository(db Querier) *TemplateRepository {
	return &TemplateRepository{db: db}
}

const templateColumns = `
	id, name, repository, COALESCE(network, ''), COALESCE(category, ''), COALESCE(banner, ''),
	COALESCE(webui, ''), COALESCE(description, ''), COALESCE(template_version, ''),
	COALESCE(xml_content, ''), source, COALESCE(local_path, ''), status, not_in_community,
	COALESCE(community_repository, ''), last_updated_at, created_at, updated_at`

var templateSortColumns = map[string]string{
	"name":       "name",
	"repository": "repository",
	"category":   "category",
	"updated_at": "updated_at",
	"created_at": "created_at",
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row rowScanner) (*models.Template, error) {
	t := &models.Template{}
	var lastUpdatedAt sql.NullTime
	err := row.Scan(
		&t.ID, &t.Name, &t.Repository, &t.Network, &t.Category, &t.Banner,
		&t.WebUI, &t.Description, &t.TemplateVersion,
		&t.XMLContent, &t.Source, &t.LocalPath, &t.Status, &t.NotInCommunity,
		&t.CommunityRepository, &lastUpdatedAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastUpdatedAt.Valid {
		t.LastUpdatedAt = &lastUpdatedAt.Time
	}
	return t, nil
}

// Create inserts a new template
func (r *TemplateRepository) Create(t *models.Template) error {
	t.ID = uuid.New().String()
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	if t.Source == "" {
		t.Source = models.SourceLocal
	}
	if t.Status == "" {
		t.Status = models.TemplateStatusActive
	}

	_, err := r.db.Exec(`
		INSERT INTO templates (id, name, repository, network, category, banner, webui, description,
			template_version, xml_content, source, local_path, status, not_in_community,
			community_repository, last_updated_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.Repository, t.Network, t.Category, t.Banner, t.WebUI, t.Description,
		t.TemplateVersion, t.XMLContent, t.Source, t.LocalPath, t.Status, t.NotInCommunity,
		t.CommunityRepository, t.LastUpdatedAt, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create template: %w", err)
	}
	return nil
}

// Update saves every mutable column of a template
func (r *TemplateRepository) Update(t *models.Template) error {
	t.UpdatedAt = time.Now()

	result, err := r.db.Exec(`
		UPDATE templates SET name = ?, repository = ?, network = ?, category = ?, banner = ?,
			webui = ?, description = ?, template_version = ?, xml_content = ?, local_path = ?,
			status = ?, not_in_community = ?, community_repository = ?, last_updated_at = ?,
			updated_at = ?
		WHERE id = ?`,
		t.Name, t.Repository, t.Network, t.Category, t.Banner,
		t.WebUI, t.Description, t.TemplateVersion, t.XMLContent, t.LocalPath,
		t.Status, t.NotInCommunity, t.CommunityRepository, t.LastUpdatedAt,
		t.UpdatedAt, t.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update template: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("template not found: %s", t.ID)
	}
	return nil
}

// GetByID returns a template by ID
func (r *TemplateRepository) GetByID(id string) (*models.Template, error) {
	t, err := scanTemplate(r.db.QueryRow(`SELECT `+templateColumns+` FROM templates WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// GetByRepository returns the template of a source with the given repository
func (r *TemplateRepository) GetByRepository(repository, source string) (*models.Template, error) {
	t, err := scanTemplate(r.db.QueryRow(
		`SELECT `+templateColumns+` FROM templates WHERE repository = ? AND source = ?`,
		repository, source,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// List returns templates with optional filtering
func (r *TemplateRepository) List(filter models.TemplateListFilter) ([]models.Template, int, error) {
	where := " WHERE 1=1"
	args := []any{}

	if filter.Source != "" {
		where += " AND source = ?"
		args = append(args, filter.Source)
	}
	if filter.Status != "" {
		where += " AND status = ?"
		args = append(args, filter.Status)
	}
	if filter.Search != "" {
		where += " AND (name LIKE ? OR repository LIKE ? OR description LIKE ?)"
		pattern := "%" + filter.Search + "%"
		args = append(args, pattern, pattern, pattern)
	}

	var total int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM templates"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	sortColumn, ok := templateSortColumns[filter.Sort]
	if !ok {
		sortColumn = "name"
	}
	direction := "ASC"
	if strings.EqualFold(filter.Direction, "desc") {
		direction = "DESC"
	}

	query := `SELECT ` + templateColumns + ` FROM templates` + where +
		fmt.Sprintf(" ORDER BY %s %s, id ASC", sortColumn, direction)

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

	templates := []models.Template{}
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, 0, err
		}
		templates = append(templates, *t)
	}

	return templates, total, rows.Err()
}

// ListSyncable returns active local templates that are not flagged as missing
// from the community catalog
func (r *TemplateRepository) ListSyncable() ([]models.Template, error) {
	templates, _, err := r.List(models.TemplateListFilter{
		Source: models.SourceLocal,
		Status: models.TemplateStatusActive,
	})
	if err != nil {
		return nil, err
	}

	result := templates[:0]
	for _, t := range templates {
		if t.ShouldSyncWithCommunity() {
			result = append(result, t)
		}
	}
	return result, nil
}

// UpdateStatus sets a template's status
func (r *TemplateRepository) UpdateStatus(id, status string) error {
	_, err := r.db.Exec(`UPDATE templates SET status = ?, updated_at = ? WHERE id = ?`, status, time.Now(), id)
	return err
}

// SetNotInCommunity flags a local template whose repository has no catalog entry
func (r *TemplateRepository) SetNotInCommunity(id string, notInCommunity bool) error {
	_, err := r.db.Exec(`UPDATE templates SET not_in_community = ?, updated_at = ? WHERE id = ?`,
		notInCommunity, time.Now(), id)
	return err
}

// CountBySource returns the number of templates per source and status
func (r *TemplateRepository) CountBySource() (map[string]int, error) {
	rows, err := r.db.Query(`SELECT source, status, COUNT(*) FROM templates GROUP BY source, status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var source, status string
		var n int
		if err := rows.Scan(&source, &status, &n); err != nil {
			return nil, err
		}
		counts[source+"_"+status] = n
	}
	return counts, rows.Err()
}

// Delete deletes a template together with its configs and comparisons
func (r *TemplateRepository) Delete(id string) error {
	_, err := r.db.Exec("DELETE FROM templates WHERE id = ?", id)
	return err
}
