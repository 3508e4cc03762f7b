package reconcile

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/foxzi/tplsync/internal/template"
)

var (
	markupTag          = regexp.MustCompile(`\[[^\]]*\]`)
	whitespaceRun      = regexp.MustCompile(`\s+`)
	trailingSeparators = regexp.MustCompile(`[-:]+$`)
)

// NormalizeBlank trims surrounding whitespace. An empty result means "no value".
func NormalizeBlank(v string) string {
	return strings.TrimSpace(v)
}

// NormalizeCategory converts a category to its community (hyphen) form.
// Only the first whitespace-delimited token is kept, colons become hyphens
// and trailing separators are dropped:
//
//	"Tools:Utilities spotlight:" -> "Tools-Utilities"
//	"Downloaders:"               -> "Downloaders"
func NormalizeCategory(v string) string {
	tokens := strings.Fields(v)
	if len(tokens) == 0 {
		return ""
	}
	category := strings.ReplaceAll(tokens[0], ":", "-")
	return trailingSeparators.ReplaceAllString(category, "")
}

// StripMarkup removes [tag] pseudo-markup and collapses whitespace. It is
// used on comparison input only; stored descriptions keep their markup.
func StripMarkup(v string) string {
	stripped := markupTag.ReplaceAllString(v, "")
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(stripped, " "))
}

// UnraidCategory converts a hyphen-form category back to the colon form used
// in local templates. Single-token categories get a trailing colon.
// Categories whose names contain literal hyphens do not survive the round
// trip; consumers rely on this mapping as is.
func UnraidCategory(v string) string {
	if v == "" {
		return v
	}
	category := strings.ReplaceAll(v, "-", ":")
	if !strings.Contains(category, ":") {
		category += ":"
	}
	return category
}

// normalizeField applies the comparison normalization for a scalar field
func normalizeField(field template.Field, v string) string {
	normalized := NormalizeBlank(v)
	if normalized == "" {
		return ""
	}

	switch field {
	case template.FieldCategory:
		return NormalizeCategory(normalized)
	case template.FieldDescription:
		return StripMarkup(normalized)
	default:
		return normalized
	}
}

// humanize renders a field name as a label: "template_version" -> "Template version"
func humanize(name string) string {
	s := strings.ToLower(strings.ReplaceAll(name, "_", " "))
	first, rest, found := strings.Cut(s, " ")
	if first == "" {
		return s
	}
	label := cases.Title(language.English).String(first)
	if found {
		label += " " + rest
	}
	return label
}
