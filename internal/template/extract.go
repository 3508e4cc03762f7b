package template

import "strings"

// Record is the comparable content extracted from a template document
type Record struct {
	Fields  Fields        `json:"fields"`
	Configs []ConfigEntry `json:"configs"`
}

// Extract parses xml and extracts its fields and configs. A well-formed
// document without a Container element yields a nil record and no error.
func Extract(xml string) (*Record, error) {
	doc, err := Parse(xml)
	if err != nil {
		return nil, err
	}
	return doc.Record(), nil
}

// Record extracts the document's fields and configs, or nil when the document
// has no Container element. Configs are returned raw: duplicates are kept.
func (d *Document) Record() *Record {
	if !d.HasContainer() {
		return nil
	}

	rec := &Record{Configs: d.Configs()}
	for field := range fieldElements {
		value, _ := d.FieldText(field)
		rec.Fields.Set(field, value)
	}
	return rec
}

// ExtractConfigs returns the configs of xml for comparison, indexed by name.
// When community is set, a blank actual value falls back to the default,
// which is the value a community install would deploy.
func ExtractConfigs(xml string, community bool) (map[string]ConfigEntry, error) {
	doc, err := Parse(xml)
	if err != nil {
		return nil, err
	}

	configs := doc.Configs()
	if community {
		for i := range configs {
			if configs[i].ActualValue == "" && strings.TrimSpace(configs[i].DefaultValue) != "" {
				configs[i].ActualValue = configs[i].DefaultValue
			}
		}
	}
	return ConfigMap(configs), nil
}

func trim(s string) string {
	return strings.TrimSpace(s)
}
