package reconcile

import "github.com/foxzi/tplsync/internal/template"

// Kind identifies a difference variant
type Kind string

const (
	KindBasicField    Kind = "basic_field"
	KindConfig        Kind = "config"
	KindNewConfig     Kind = "new_config"
	KindRemovedConfig Kind = "removed_config"
)

// Key identifies one entry of a difference map. Name is the field name for
// basic fields and the config name otherwise.
type Key struct {
	Kind Kind
	Name string
}

// BasicKey returns the key of a basic field difference
func BasicKey(field template.Field) Key {
	return Key{Kind: KindBasicField, Name: string(field)}
}

// ConfigKey returns the key of a changed config
func ConfigKey(name string) Key {
	return Key{Kind: KindConfig, Name: name}
}

// NewConfigKey returns the key of a config present only in the community template
func NewConfigKey(name string) Key {
	return Key{Kind: KindNewConfig, Name: name}
}

// RemovedConfigKey returns the key of a config present only in the local template
func RemovedConfigKey(name string) Key {
	return Key{Kind: KindRemovedConfig, Name: name}
}

// String flattens the key for storage and the API: "network",
// "config_WebUI", "new_config_Backups", "removed_config_Backups".
func (k Key) String() string {
	if k.Kind == KindBasicField {
		return k.Name
	}
	return string(k.Kind) + "_" + k.Name
}

// AttrKey addresses one attribute of a config difference
type AttrKey struct {
	Key  Key
	Attr template.Attribute
}

// String flattens the key as "<config_key>_<attribute>"
func (k AttrKey) String() string {
	return k.Key.String() + "_" + string(k.Attr)
}
