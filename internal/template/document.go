package template

import (
	"errors"
	"fmt"

	"github.com/beevik/etree"
)

const (
	containerTag = "Container"
	configTag    = "Config"
)

// ErrNoContainer is returned when a document has no Container element
var ErrNoContainer = errors.New("document has no Container element")

// ParseError reports a template document that could not be parsed
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse template XML: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Document is a parsed container template. Every Parse call returns an
// independent handle, so mutating one document never affects another.
type Document struct {
	doc *etree.Document
}

// Parse parses template XML
func Parse(xml string) (*Document, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(xml); err != nil {
		return nil, &ParseError{Err: err}
	}
	if doc.Root() == nil {
		return nil, &ParseError{Err: errors.New("document has no root element")}
	}
	return &Document{doc: doc}, nil
}

// HasContainer reports whether the document holds a Container element
func (d *Document) HasContainer() bool {
	return d.container() != nil
}

func (d *Document) container() *etree.Element {
	return d.doc.FindElement("//" + containerTag)
}

// FieldText returns the trimmed text of the container child mapped to field.
// The boolean is false when the element does not exist.
func (d *Document) FieldText(field Field) (string, bool) {
	el := d.fieldElement(field)
	if el == nil {
		return "", false
	}
	return trim(el.Text()), true
}

// SetFieldText replaces the text of the element mapped to field. Missing
// elements are never created; the return value reports whether the write
// happened.
func (d *Document) SetFieldText(field Field, value string) bool {
	el := d.fieldElement(field)
	if el == nil {
		return false
	}
	el.SetText(value)
	return true
}

func (d *Document) fieldElement(field Field) *etree.Element {
	name := field.Element()
	if name == "" {
		return nil
	}
	container := d.container()
	if container == nil {
		return nil
	}
	return container.SelectElement(name)
}

// Configs returns every Config element in document order, at any depth
func (d *Document) Configs() []ConfigEntry {
	elements := d.doc.FindElements("//" + configTag)
	configs := make([]ConfigEntry, 0, len(elements))
	for i, el := range elements {
		configs = append(configs, configFromElement(el, i))
	}
	return configs
}

func configFromElement(el *etree.Element, index int) ConfigEntry {
	return ConfigEntry{
		Name:         el.SelectAttrValue(AttrName.XMLName(), ""),
		ConfigType:   el.SelectAttrValue(AttrConfigType.XMLName(), ""),
		Target:       el.SelectAttrValue(AttrTarget.XMLName(), ""),
		DefaultValue: el.SelectAttrValue(AttrDefaultValue.XMLName(), ""),
		ActualValue:  trim(el.Text()),
		Mode:         el.SelectAttrValue(AttrMode.XMLName(), ""),
		Description:  el.SelectAttrValue(AttrDescription.XMLName(), ""),
		Required:     el.SelectAttrValue(AttrRequired.XMLName(), "") == "true",
		Display:      el.SelectAttrValue(AttrDisplay.XMLName(), DefaultDisplay),
		OrderIndex:   index,
	}
}

func (d *Document) findConfig(name string) *etree.Element {
	for _, el := range d.doc.FindElements("//" + configTag) {
		if attr := el.SelectAttr(AttrName.XMLName()); attr != nil && attr.Value == name {
			return el
		}
	}
	return nil
}

// SetConfigValue writes one attribute of the first Config element named name.
// It reports false when no such element exists.
func (d *Document) SetConfigValue(name string, attr Attribute, value string) bool {
	el := d.findConfig(name)
	if el == nil {
		return false
	}
	if attr.IsText() {
		el.SetText(value)
		return true
	}
	key := attr.XMLName()
	if key == "" {
		return false
	}
	el.CreateAttr(key, value)
	return true
}

// AppendConfig adds a Config element as the last child of the container.
// Attributes are written in BuildAttributes order and empty values other than
// Required are omitted.
func (d *Document) AppendConfig(entry ConfigEntry) error {
	container := d.container()
	if container == nil {
		return ErrNoContainer
	}

	el := container.CreateElement(configTag)
	el.CreateAttr(AttrName.XMLName(), entry.Name)
	for _, attr := range BuildAttributes {
		value := entry.Value(attr)
		if attr.IsText() {
			if value != "" {
				el.SetText(value)
			}
			continue
		}
		if value == "" && attr != AttrRequired {
			continue
		}
		el.CreateAttr(attr.XMLName(), value)
	}
	return nil
}

// RemoveConfig removes the first Config element named name
func (d *Document) RemoveConfig(name string) bool {
	el := d.findConfig(name)
	if el == nil || el.Parent() == nil {
		return false
	}
	el.Parent().RemoveChild(el)
	return true
}

// Serialize renders the document as XML text
func (d *Document) Serialize() (string, error) {
	out, err := d.doc.WriteToString()
	if err != nil {
		return "", fmt.Errorf("failed to serialize template: %w", err)
	}
	return out, nil
}

// Indented serializes a copy of the document re-indented with two spaces.
// The document itself is left untouched.
func (d *Document) Indented() (string, error) {
	cp := d.doc.Copy()
	cp.Indent(2)
	out, err := cp.WriteToString()
	if err != nil {
		return "", fmt.Errorf("failed to serialize template: %w", err)
	}
	return out, nil
}
