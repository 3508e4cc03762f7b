package reconcile

import (
	"github.com/foxzi/tplsync/internal/template"
)

// FieldUpdate is a resolved scalar field write
type FieldUpdate struct {
	Field template.Field
	Label string
	From  string
	// To is the value written into the document, after category conversion
	To string
}

// AttrUpdate is a resolved config attribute write
type AttrUpdate struct {
	Attr template.Attribute
	From string
	To   string
}

// ConfigUpdate groups the attribute writes of one existing config
type ConfigUpdate struct {
	Name    string
	Changes []AttrUpdate
}

// Plan is the set of document edits resolved from a difference map and a
// selection. Every slice is ordered by key.
type Plan struct {
	Fields  []FieldUpdate
	Configs []ConfigUpdate
	Added   []template.ConfigEntry
	Removed []template.ConfigEntry
}

// Empty reports whether the plan changes nothing
func (p *Plan) Empty() bool {
	return len(p.Fields) == 0 && len(p.Configs) == 0 && len(p.Added) == 0 && len(p.Removed) == 0
}

// Resolve computes the effective edits for every entry of diffs. Entries are
// independent of each other and touch disjoint parts of the document.
func Resolve(diffs Differences, sel *Selection) *Plan {
	plan := &Plan{}

	for _, key := range diffs.Keys() {
		switch d := diffs[key].(type) {
		case BasicField:
			if sel.Choice(key) != ChoiceCommunity {
				continue
			}
			value := d.Community
			if edit, ok := sel.Edit(key); ok {
				value = edit
			}
			if d.Field == template.FieldCategory {
				value = UnraidCategory(value)
			}
			plan.Fields = append(plan.Fields, FieldUpdate{
				Field: d.Field,
				Label: d.Label,
				From:  d.Local,
				To:    value,
			})

		case ConfigChange:
			update := ConfigUpdate{Name: d.ConfigName}
			for _, attr := range d.Attributes() {
				ak := AttrKey{Key: key, Attr: attr}
				if sel.AttrChoice(ak) != ChoiceCommunity {
					continue
				}
				pair := d.Fields[attr]
				value, ok := sel.resolveAttr(ak, pair.Community)
				if !ok {
					continue
				}
				update.Changes = append(update.Changes, AttrUpdate{
					Attr: attr,
					From: pair.Local,
					To:   value,
				})
			}
			if len(update.Changes) > 0 {
				plan.Configs = append(plan.Configs, update)
			}

		case NewConfig:
			if sel.Choice(key) != ChoiceCommunity {
				continue
			}
			plan.Added = append(plan.Added, sel.newConfigEntry(d))

		case RemovedConfig:
			if sel.Choice(key) != ChoiceCommunity {
				continue
			}
			entry := d.Local
			entry.Name = d.ConfigName
			plan.Removed = append(plan.Removed, entry)
		}
	}

	return plan
}

// Apply performs the plan on doc and returns the scalar fields actually
// written. Fields whose element is missing from doc are skipped.
func (p *Plan) Apply(doc *template.Document) (map[template.Field]string, error) {
	written := make(map[template.Field]string)

	for _, u := range p.Fields {
		if doc.SetFieldText(u.Field, u.To) {
			written[u.Field] = u.To
		}
	}

	for _, u := range p.Configs {
		for _, c := range u.Changes {
			doc.SetConfigValue(u.Name, c.Attr, c.To)
		}
	}

	for _, entry := range p.Added {
		if err := doc.AppendConfig(entry); err != nil {
			return nil, err
		}
	}

	for _, entry := range p.Removed {
		doc.RemoveConfig(entry.Name)
	}

	return written, nil
}

// Result is the outcome of a merge
type Result struct {
	XML    string
	Fields map[template.Field]string
	Plan   *Plan
}

// Merge applies the selection to a fresh parse of localXML and serializes the
// result. A local document that cannot be parsed is an error: there is no
// base to merge into.
func Merge(localXML string, diffs Differences, sel *Selection) (*Result, error) {
	doc, err := template.Parse(localXML)
	if err != nil {
		return nil, err
	}

	plan := Resolve(diffs, sel)
	fields, err := plan.Apply(doc)
	if err != nil {
		return nil, err
	}

	out, err := doc.Serialize()
	if err != nil {
		return nil, err
	}

	return &Result{
		XML:    out,
		Fields: fields,
		Plan:   plan,
	}, nil
}
