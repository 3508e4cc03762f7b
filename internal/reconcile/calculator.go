package reconcile

import (
	"log/slog"

	"github.com/foxzi/tplsync/internal/template"
)

// Source is one side of a comparison: the denormalized record fields plus
// the document they were extracted from.
type Source struct {
	Fields    template.Fields
	XML       string
	Community bool
}

// Calculator computes difference maps between a local template and its
// community counterpart
type Calculator struct {
	logger *slog.Logger
}

// NewCalculator creates a new calculator
func NewCalculator(logger *slog.Logger) *Calculator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Calculator{
		logger: logger.With("component", "calculator"),
	}
}

// Calculate compares local with community. Either side may be nil, in which
// case the map is empty. Malformed XML on a side only empties that side's
// config set; scalar fields are still compared.
func (c *Calculator) Calculate(local, community *Source) Differences {
	diffs := make(Differences)
	if local == nil || community == nil {
		return diffs
	}

	for _, field := range template.ComparedFields {
		localRaw := local.Fields.Get(field)
		communityRaw := community.Fields.Get(field)
		if localRaw == communityRaw {
			continue
		}

		localValue := normalizeField(field, localRaw)
		communityValue := normalizeField(field, communityRaw)
		if localValue == communityValue {
			continue
		}

		diffs.Add(BasicField{
			Field:     field,
			Label:     humanize(string(field)),
			Local:     localValue,
			Community: communityValue,
		})
	}

	localConfigs := c.configs(local)
	communityConfigs := c.configs(community)

	for name, localEntry := range localConfigs {
		communityEntry, ok := communityConfigs[name]
		if !ok {
			diffs.Add(RemovedConfig{
				ConfigName: name,
				Label:      "Removed Config: " + name,
				Local:      localEntry,
			})
			continue
		}

		fields := compareConfig(localEntry, communityEntry)
		if len(fields) == 0 {
			continue
		}
		diffs.Add(ConfigChange{
			ConfigName: name,
			Local:      localEntry,
			Community:  communityEntry,
			Fields:     fields,
		})
	}

	for name, communityEntry := range communityConfigs {
		if _, ok := localConfigs[name]; ok {
			continue
		}
		diffs.Add(NewConfig{
			ConfigName: name,
			Label:      "New Config: " + name,
			Community:  communityEntry,
		})
	}

	return diffs
}

func (c *Calculator) configs(src *Source) map[string]template.ConfigEntry {
	if src.XML == "" {
		return map[string]template.ConfigEntry{}
	}
	configs, err := template.ExtractConfigs(src.XML, src.Community)
	if err != nil {
		c.logger.Warn("failed to extract configs, comparing without them",
			"name", src.Fields.Name,
			"community", src.Community,
			"error", err,
		)
		return map[string]template.ConfigEntry{}
	}
	return configs
}

// compareConfig returns the attributes whose values differ after blank
// normalization. Values keep their raw form.
func compareConfig(local, community template.ConfigEntry) map[template.Attribute]ValuePair {
	fields := make(map[template.Attribute]ValuePair)
	for _, attr := range template.ComparedAttributes {
		localValue := local.Value(attr)
		communityValue := community.Value(attr)
		if localValue == communityValue {
			continue
		}
		if NormalizeBlank(localValue) == NormalizeBlank(communityValue) {
			continue
		}
		fields[attr] = ValuePair{Local: localValue, Community: communityValue}
	}
	return fields
}
