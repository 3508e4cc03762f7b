package reconcile

import (
	"github.com/foxzi/tplsync/internal/template"
)

// ConfigAction tags a config change in a preview
type ConfigAction string

const (
	ActionModify ConfigAction = "modify"
	ActionAdd    ConfigAction = "add"
	ActionRemove ConfigAction = "remove"
)

// FieldChange is a before/after pair in a preview
type FieldChange struct {
	Label string `json:"field_name,omitempty"`
	From  string `json:"from"`
	To    string `json:"to"`
}

// ConfigPreview describes what happens to one config
type ConfigPreview struct {
	Action  ConfigAction                       `json:"action"`
	Changes map[template.Attribute]FieldChange `json:"changes,omitempty"`
	Config  *template.ConfigEntry              `json:"config,omitempty"`
}

// Preview summarizes a merge without persisting anything
type Preview struct {
	BasicFields map[template.Field]FieldChange `json:"basic_fields"`
	Configs     map[string]ConfigPreview       `json:"configs"`
	XML         string                         `json:"xml_preview"`
}

// EmptyPreview returns a preview with no changes
func EmptyPreview() *Preview {
	return &Preview{
		BasicFields: map[template.Field]FieldChange{},
		Configs:     map[string]ConfigPreview{},
	}
}

// Empty reports whether the preview contains no changes
func (p *Preview) Empty() bool {
	return len(p.BasicFields) == 0 && len(p.Configs) == 0
}

// BuildPreview runs the merge on a private copy of localXML and describes
// the result. Nothing is written anywhere.
func BuildPreview(localXML string, diffs Differences, sel *Selection) (*Preview, error) {
	if sel.Empty() {
		return EmptyPreview(), nil
	}

	res, err := Merge(localXML, diffs, sel)
	if err != nil {
		return nil, err
	}

	preview := EmptyPreview()
	preview.XML = res.XML

	for _, u := range res.Plan.Fields {
		preview.BasicFields[u.Field] = FieldChange{Label: u.Label, From: u.From, To: u.To}
	}

	for _, u := range res.Plan.Configs {
		changes := make(map[template.Attribute]FieldChange, len(u.Changes))
		for _, c := range u.Changes {
			changes[c.Attr] = FieldChange{From: c.From, To: c.To}
		}
		preview.Configs[u.Name] = ConfigPreview{Action: ActionModify, Changes: changes}
	}

	for i := range res.Plan.Added {
		entry := res.Plan.Added[i]
		preview.Configs[entry.Name] = ConfigPreview{Action: ActionAdd, Config: &entry}
	}

	for i := range res.Plan.Removed {
		entry := res.Plan.Removed[i]
		preview.Configs[entry.Name] = ConfigPreview{Action: ActionRemove, Config: &entry}
	}

	return preview, nil
}
