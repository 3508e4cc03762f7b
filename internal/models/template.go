package models

import (
	"time"

	"github.com/foxzi/tplsync/internal/template"
)

// Template sources
const (
	SourceLocal     = "local"
	SourceCommunity = "community"
)

// Template statuses
const (
	TemplateStatusActive   = "active"
	TemplateStatusInactive = "inactive"
)

// Template is a container template record. Scalar fields are denormalized
// copies of values inside XMLContent.
type Template struct {
	ID                  string     `json:"id"`
	Name                string     `json:"name"`
	Repository          string     `json:"repository"`
	Network             string     `json:"network"`
	Category            string     `json:"category"`
	Banner              string     `json:"banner"`
	WebUI               string     `json:"webui"`
	Description         string     `json:"description"`
	TemplateVersion     string     `json:"template_version"`
	XMLContent          string     `json:"xml_content,omitempty"`
	Source              string     `json:"source"` // local, community
	LocalPath           string     `json:"local_path,omitempty"`
	Status              string     `json:"status"` // active, inactive
	NotInCommunity      bool       `json:"not_in_community"`
	CommunityRepository string     `json:"community_repository,omitempty"`
	LastUpdatedAt       *time.Time `json:"last_updated_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// IsLocal reports whether the template comes from the local directory
func (t *Template) IsLocal() bool {
	return t.Source == SourceLocal
}

// IsCommunity reports whether the template comes from the community catalog
func (t *Template) IsCommunity() bool {
	return t.Source == SourceCommunity
}

// ShouldSyncWithCommunity reports whether community sync should look the template up
func (t *Template) ShouldSyncWithCommunity() bool {
	return t.IsLocal() && t.Status == TemplateStatusActive && !t.NotInCommunity
}

// Fields returns the scalar fields
func (t *Template) Fields() template.Fields {
	return template.Fields{
		Name:            t.Name,
		Repository:      t.Repository,
		Network:         t.Network,
		Category:        t.Category,
		Banner:          t.Banner,
		WebUI:           t.WebUI,
		Description:     t.Description,
		TemplateVersion: t.TemplateVersion,
	}
}

// SetFields replaces the scalar fields
func (t *Template) SetFields(f template.Fields) {
	t.Name = f.Name
	t.Repository = f.Repository
	t.Network = f.Network
	t.Category = f.Category
	t.Banner = f.Banner
	t.WebUI = f.WebUI
	t.Description = f.Description
	t.TemplateVersion = f.TemplateVersion
}

// SetField updates one scalar field
func (t *Template) SetField(field template.Field, value string) {
	f := t.Fields()
	f.Set(field, value)
	t.SetFields(f)
}

// TemplateConfig is a persisted config entry of a template
type TemplateConfig struct {
	ID         int64  `json:"id"`
	TemplateID string `json:"template_id"`
	template.ConfigEntry
}

// TemplateListFilter for filtering template list
type TemplateListFilter struct {
	Source    string
	Status    string
	Search    string
	Sort      string // name, repository, category, updated_at
	Direction string // asc, desc
	Limit     int
	Offset    int
}
