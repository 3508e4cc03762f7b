package template

import "strconv"

// Config types seen in container templates. The set is open: any other value
// found in a document is carried through unchanged.
const (
	ConfigTypePort     = "Port"
	ConfigTypePath     = "Path"
	ConfigTypeVariable = "Variable"
	ConfigTypeLabel    = "Label"
	ConfigTypeDevice   = "Device"
)

// DefaultDisplay is used when a Config element has no Display attribute
const DefaultDisplay = "always"

// Attribute names one value of a config entry
type Attribute string

const (
	AttrName         Attribute = "name"
	AttrConfigType   Attribute = "config_type"
	AttrTarget       Attribute = "target"
	AttrDefaultValue Attribute = "default_value"
	AttrActualValue  Attribute = "actual_value"
	AttrMode         Attribute = "mode"
	AttrDescription  Attribute = "description"
	AttrRequired     Attribute = "required"
	AttrDisplay      Attribute = "display"
)

// ComparedAttributes are the config attributes compared between two templates
var ComparedAttributes = []Attribute{
	AttrTarget,
	AttrDefaultValue,
	AttrActualValue,
	AttrMode,
	AttrDescription,
	AttrRequired,
	AttrDisplay,
}

// BuildAttributes are the attributes written when a config element is created.
// Name is always taken from the entry itself.
var BuildAttributes = []Attribute{
	AttrConfigType,
	AttrTarget,
	AttrDefaultValue,
	AttrMode,
	AttrDescription,
	AttrRequired,
	AttrDisplay,
	AttrActualValue,
}

var attributeXML = map[Attribute]string{
	AttrName:         "Name",
	AttrConfigType:   "Type",
	AttrTarget:       "Target",
	AttrDefaultValue: "Default",
	AttrMode:         "Mode",
	AttrDescription:  "Description",
	AttrRequired:     "Required",
	AttrDisplay:      "Display",
}

// XMLName returns the XML attribute holding the value. Actual value lives in
// the element text and has no attribute name.
func (a Attribute) XMLName() string {
	return attributeXML[a]
}

// IsText reports whether the value is stored as element text
func (a Attribute) IsText() bool {
	return a == AttrActualValue
}

// ParseAttribute returns the attribute with the given name
func ParseAttribute(name string) (Attribute, bool) {
	a := Attribute(name)
	if a == AttrActualValue {
		return a, true
	}
	_, ok := attributeXML[a]
	return a, ok
}

// ConfigEntry is one named configuration slot of a template
type ConfigEntry struct {
	Name         string `json:"name"`
	ConfigType   string `json:"config_type"`
	Target       string `json:"target"`
	DefaultValue string `json:"default_value"`
	ActualValue  string `json:"actual_value"`
	Mode         string `json:"mode"`
	Description  string `json:"description"`
	Required     bool   `json:"required"`
	Display      string `json:"display"`
	OrderIndex   int    `json:"order_index"`
}

// Value returns an attribute as a string. Required renders as "true"/"false".
func (c *ConfigEntry) Value(attr Attribute) string {
	switch attr {
	case AttrName:
		return c.Name
	case AttrConfigType:
		return c.ConfigType
	case AttrTarget:
		return c.Target
	case AttrDefaultValue:
		return c.DefaultValue
	case AttrActualValue:
		return c.ActualValue
	case AttrMode:
		return c.Mode
	case AttrDescription:
		return c.Description
	case AttrRequired:
		return strconv.FormatBool(c.Required)
	case AttrDisplay:
		return c.Display
	}
	return ""
}

// SetValue assigns an attribute from its string form
func (c *ConfigEntry) SetValue(attr Attribute, value string) {
	switch attr {
	case AttrName:
		c.Name = value
	case AttrConfigType:
		c.ConfigType = value
	case AttrTarget:
		c.Target = value
	case AttrDefaultValue:
		c.DefaultValue = value
	case AttrActualValue:
		c.ActualValue = value
	case AttrMode:
		c.Mode = value
	case AttrDescription:
		c.Description = value
	case AttrRequired:
		c.Required = value == "true"
	case AttrDisplay:
		c.Display = value
	}
}

// Dedupe drops nameless entries and keeps the last occurrence of every name.
// Survivors keep their relative document order. It returns the number of
// duplicates removed.
func Dedupe(configs []ConfigEntry) ([]ConfigEntry, int) {
	last := make(map[string]int, len(configs))
	named := 0
	for i, c := range configs {
		if c.Name == "" {
			continue
		}
		named++
		last[c.Name] = i
	}

	result := make([]ConfigEntry, 0, len(last))
	for i, c := range configs {
		if c.Name == "" || last[c.Name] != i {
			continue
		}
		result = append(result, c)
	}
	return result, named - len(result)
}

// ConfigMap indexes entries by name, last occurrence wins
func ConfigMap(configs []ConfigEntry) map[string]ConfigEntry {
	m := make(map[string]ConfigEntry, len(configs))
	for _, c := range configs {
		if c.Name == "" {
			continue
		}
		m[c.Name] = c
	}
	return m
}
