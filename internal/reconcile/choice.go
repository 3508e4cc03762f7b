package reconcile

import (
	"errors"
	"fmt"
	"sort"

	"github.com/foxzi/tplsync/internal/template"
)

// Choice selects which side of a difference to keep
type Choice string

const (
	ChoiceLocal     Choice = "local"
	ChoiceCommunity Choice = "community"
)

// ErrInvalidChoice is returned for choice values other than local or community
var ErrInvalidChoice = errors.New("invalid choice")

// ParseChoice validates a choice value
func ParseChoice(s string) (Choice, error) {
	switch c := Choice(s); c {
	case ChoiceLocal, ChoiceCommunity:
		return c, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidChoice, s)
}

// Selection holds the user's choices and manual edits resolved against a
// difference map. Flat keys that do not address an entry of the map are
// dropped.
type Selection struct {
	choices     map[Key]Choice
	attrChoices map[AttrKey]Choice
	edits       map[Key]string
	attrEdits   map[AttrKey]string
}

// NewSelection builds a selection from flat choice and edit maps. Invalid
// choice values are ignored.
func NewSelection(diffs Differences, choices, edits map[string]string) *Selection {
	s := &Selection{
		choices:     make(map[Key]Choice),
		attrChoices: make(map[AttrKey]Choice),
		edits:       make(map[Key]string),
		attrEdits:   make(map[AttrKey]string),
	}

	idx := diffs.index()
	for flat, value := range choices {
		ref, ok := idx[flat]
		if !ok {
			continue
		}
		choice, err := ParseChoice(value)
		if err != nil {
			continue
		}
		if ref.attr == "" {
			s.choices[ref.key] = choice
		} else {
			s.attrChoices[AttrKey{Key: ref.key, Attr: ref.attr}] = choice
		}
	}
	for flat, value := range edits {
		ref, ok := idx[flat]
		if !ok {
			continue
		}
		if ref.attr == "" {
			s.edits[ref.key] = value
		} else {
			s.attrEdits[AttrKey{Key: ref.key, Attr: ref.attr}] = value
		}
	}

	return s
}

// Empty reports whether no choice addresses the difference map
func (s *Selection) Empty() bool {
	return s == nil || (len(s.choices) == 0 && len(s.attrChoices) == 0)
}

// Choice returns the choice recorded for k, defaulting to local
func (s *Selection) Choice(k Key) Choice {
	if s != nil {
		if c, ok := s.choices[k]; ok {
			return c
		}
	}
	return ChoiceLocal
}

// AttrChoice resolves the choice for one attribute: the explicit attribute
// choice, else the general choice of its config, else local.
func (s *Selection) AttrChoice(k AttrKey) Choice {
	if s != nil {
		if c, ok := s.attrChoices[k]; ok {
			return c
		}
	}
	return s.Choice(k.Key)
}

// Edit returns the manual edit recorded for k. A present edit wins even when
// blank, which is how a value is cleared.
func (s *Selection) Edit(k Key) (string, bool) {
	if s == nil {
		return "", false
	}
	v, ok := s.edits[k]
	return v, ok
}

// AttrEdit returns the manual edit recorded for one attribute
func (s *Selection) AttrEdit(k AttrKey) (string, bool) {
	if s == nil {
		return "", false
	}
	v, ok := s.attrEdits[k]
	return v, ok
}

// FilterChoices validates a flat choice map against diffs. Keys that address
// no entry are dropped; a key with an invalid value is an error.
func FilterChoices(diffs Differences, choices map[string]string) (map[string]string, error) {
	idx := diffs.index()
	result := make(map[string]string, len(choices))
	for _, flat := range sortedKeys(choices) {
		if _, ok := idx[flat]; !ok {
			continue
		}
		choice, err := ParseChoice(choices[flat])
		if err != nil {
			return nil, fmt.Errorf("choice for %s: %w", flat, err)
		}
		result[flat] = string(choice)
	}
	return result, nil
}

// FilterEdits drops manual edits that address no entry of diffs. Blank values
// are kept.
func FilterEdits(diffs Differences, edits map[string]string) map[string]string {
	idx := diffs.index()
	result := make(map[string]string, len(edits))
	for flat, value := range edits {
		if _, ok := idx[flat]; !ok {
			continue
		}
		result[flat] = value
	}
	return result
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// resolveAttr returns the value written for one config attribute when the
// community side is chosen. Without a manual edit a blank community value
// writes nothing and the local attribute stays.
func (s *Selection) resolveAttr(k AttrKey, community string) (string, bool) {
	if edit, ok := s.AttrEdit(k); ok {
		return edit, true
	}
	if NormalizeBlank(community) == "" {
		return "", false
	}
	return community, true
}

// newConfigEntry builds the entry appended for a new config, applying
// per-attribute manual edits over the community entry
func (s *Selection) newConfigEntry(d NewConfig) template.ConfigEntry {
	entry := d.Community
	entry.Name = d.ConfigName
	for _, attr := range template.BuildAttributes {
		if edit, ok := s.AttrEdit(AttrKey{Key: d.Key(), Attr: attr}); ok {
			entry.SetValue(attr, edit)
		}
	}
	return entry
}
