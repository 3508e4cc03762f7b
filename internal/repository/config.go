package repository

import (
	"fmt"

	"github.com/foxzi/tplsync/internal/models"
	"github.com/foxzi/tplsync/internal/template"
)

type ConfigRepository struct {
	db Querier
}

func NewConfigRepository(db Querier) *ConfigRepository {
	return &ConfigRepository{db: db}
}

// ListByTemplate returns a template's configs in document order
func (r *ConfigRepository) ListByTemplate(templateID string) ([]models.TemplateConfig, error) {
	rows, err := r.db.Query(`
		SELECT id, template_id, name, COALESCE(config_type, ''), COALESCE(target, ''),
			COALESCE(default_value, ''), COALESCE(actual_value, ''), COALESCE(mode, ''),
			COALESCE(description, ''), required, display, order_index
		FROM template_configs WHERE template_id = ?
		ORDER BY order_index, id`, templateID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	configs := []models.TemplateConfig{}
	for rows.Next() {
		var c models.TemplateConfig
		if err := rows.Scan(
			&c.ID, &c.TemplateID, &c.Name, &c.ConfigType, &c.Target,
			&c.DefaultValue, &c.ActualValue, &c.Mode,
			&c.Description, &c.Required, &c.Display, &c.OrderIndex,
		); err != nil {
			return nil, err
		}
		configs = append(configs, c)
	}
	return configs, rows.Err()
}

// Replace deletes a template's configs and inserts entries in their place.
// Entries must already be de-duplicated. Run it inside a transaction to make
// the swap atomic.
func (r *ConfigRepository) Replace(templateID string, entries []template.ConfigEntry) error {
	if _, err := r.db.Exec("DELETE FROM template_configs WHERE template_id = ?", templateID); err != nil {
		return fmt.Errorf("failed to delete configs: %w", err)
	}

	for _, e := range entries {
		display := e.Display
		if display == "" {
			display = template.DefaultDisplay
		}
		_, err := r.db.Exec(`
			INSERT INTO template_configs (template_id, name, config_type, target, default_value,
				actual_value, mode, description, required, display, order_index)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			templateID, e.Name, e.ConfigType, e.Target, e.DefaultValue,
			e.ActualValue, e.Mode, e.Description, e.Required, display, e.OrderIndex,
		)
		if err != nil {
			return fmt.Errorf("failed to insert config %s: %w", e.Name, err)
		}
	}
	return nil
}

// Count returns the number of configs of a template
func (r *ConfigRepository) Count(templateID string) (int, error) {
	var n int
	err := r.db.QueryRow("SELECT COUNT(*) FROM template_configs WHERE template_id = ?", templateID).Scan(&n)
	return n, err
}
