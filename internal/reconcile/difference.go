package reconcile

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/foxzi/tplsync/internal/template"
)

// Difference is one entry of a difference map. The concrete variants are
// BasicField, ConfigChange, NewConfig and RemovedConfig.
type Difference interface {
	Key() Key
	isDifference()
}

// ValuePair holds the local and community side of a changed value
type ValuePair struct {
	Local     string `json:"local"`
	Community string `json:"community"`
}

// BasicField is a changed scalar field. Values are normalized.
type BasicField struct {
	Field     template.Field `json:"field"`
	Label     string         `json:"field_name"`
	Local     string         `json:"local"`
	Community string         `json:"community"`
}

func (d BasicField) Key() Key { return BasicKey(d.Field) }
func (BasicField) isDifference() {}

func (d BasicField) MarshalJSON() ([]byte, error) {
	type alias BasicField
	return json.Marshal(struct {
		Type Kind `json:"type"`
		alias
	}{KindBasicField, alias(d)})
}

// ConfigChange is a config present on both sides with at least one differing attribute
type ConfigChange struct {
	ConfigName string                           `json:"config_name"`
	Local      template.ConfigEntry             `json:"local"`
	Community  template.ConfigEntry             `json:"community"`
	Fields     map[template.Attribute]ValuePair `json:"field_differences"`
}

func (d ConfigChange) Key() Key { return ConfigKey(d.ConfigName) }
func (ConfigChange) isDifference() {}

func (d ConfigChange) MarshalJSON() ([]byte, error) {
	type alias ConfigChange
	return json.Marshal(struct {
		Type Kind `json:"type"`
		alias
	}{KindConfig, alias(d)})
}

// Attributes returns the differing attributes in a stable order
func (d ConfigChange) Attributes() []template.Attribute {
	attrs := make([]template.Attribute, 0, len(d.Fields))
	for _, attr := range template.ComparedAttributes {
		if _, ok := d.Fields[attr]; ok {
			attrs = append(attrs, attr)
		}
	}
	return attrs
}

// NewConfig is a config present only in the community template
type NewConfig struct {
	ConfigName string               `json:"config_name"`
	Label      string               `json:"field_name"`
	Community  template.ConfigEntry `json:"community"`
}

func (d NewConfig) Key() Key { return NewConfigKey(d.ConfigName) }
func (NewConfig) isDifference() {}

func (d NewConfig) MarshalJSON() ([]byte, error) {
	type alias NewConfig
	return json.Marshal(struct {
		Type Kind `json:"type"`
		alias
	}{KindNewConfig, alias(d)})
}

// RemovedConfig is a config present only in the local template
type RemovedConfig struct {
	ConfigName string               `json:"config_name"`
	Label      string               `json:"field_name"`
	Local      template.ConfigEntry `json:"local"`
}

func (d RemovedConfig) Key() Key { return RemovedConfigKey(d.ConfigName) }
func (RemovedConfig) isDifference() {}

func (d RemovedConfig) MarshalJSON() ([]byte, error) {
	type alias RemovedConfig
	return json.Marshal(struct {
		Type Kind `json:"type"`
		alias
	}{KindRemovedConfig, alias(d)})
}

// Differences is a difference map. Absence of a key means there is no
// user-visible difference for that field or config.
type Differences map[Key]Difference

// Add stores d under its own key
func (ds Differences) Add(d Difference) {
	ds[d.Key()] = d
}

// Keys returns the keys sorted by their flat form
func (ds Differences) Keys() []Key {
	keys := make([]Key, 0, len(ds))
	for k := range ds {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})
	return keys
}

// Count returns the number of entries per kind
func (ds Differences) Count() map[Kind]int {
	counts := make(map[Kind]int)
	for k := range ds {
		counts[k.Kind]++
	}
	return counts
}

type flatRef struct {
	key  Key
	attr template.Attribute
}

// index maps every flat key accepted in a choice or edit map to its
// structured form. Entry keys take precedence over attribute keys that
// happen to flatten to the same string.
func (ds Differences) index() map[string]flatRef {
	idx := make(map[string]flatRef, len(ds))
	for k := range ds {
		idx[k.String()] = flatRef{key: k}
	}
	for k, d := range ds {
		var attrs []template.Attribute
		switch v := d.(type) {
		case ConfigChange:
			attrs = v.Attributes()
		case NewConfig:
			attrs = template.BuildAttributes
		}
		for _, attr := range attrs {
			flat := AttrKey{Key: k, Attr: attr}.String()
			if _, taken := idx[flat]; !taken {
				idx[flat] = flatRef{key: k, attr: attr}
			}
		}
	}
	return idx
}

// MarshalJSON encodes the map with flat string keys and a type tag per entry
func (ds Differences) MarshalJSON() ([]byte, error) {
	flat := make(map[string]Difference, len(ds))
	for k, d := range ds {
		flat[k.String()] = d
	}
	return json.Marshal(flat)
}

// UnmarshalJSON decodes a map produced by MarshalJSON
func (ds *Differences) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	result := make(Differences, len(raw))
	for flat, msg := range raw {
		var head struct {
			Type Kind `json:"type"`
		}
		if err := json.Unmarshal(msg, &head); err != nil {
			return fmt.Errorf("failed to decode difference %q: %w", flat, err)
		}

		switch head.Type {
		case KindBasicField:
			var d BasicField
			if err := json.Unmarshal(msg, &d); err != nil {
				return fmt.Errorf("failed to decode difference %q: %w", flat, err)
			}
			if d.Field == "" {
				d.Field = template.Field(flat)
			}
			result.Add(d)
		case KindConfig:
			var d ConfigChange
			if err := json.Unmarshal(msg, &d); err != nil {
				return fmt.Errorf("failed to decode difference %q: %w", flat, err)
			}
			result.Add(d)
		case KindNewConfig:
			var d NewConfig
			if err := json.Unmarshal(msg, &d); err != nil {
				return fmt.Errorf("failed to decode difference %q: %w", flat, err)
			}
			result.Add(d)
		case KindRemovedConfig:
			var d RemovedConfig
			if err := json.Unmarshal(msg, &d); err != nil {
				return fmt.Errorf("failed to decode difference %q: %w", flat, err)
			}
			result.Add(d)
		default:
			return fmt.Errorf("unknown difference type %q for %q", head.Type, flat)
		}
	}

	*ds = result
	return nil
}
