package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"

	"github.com/foxzi/tplsync/internal/models"
)

// Text is a feed value that may be encoded as a string, number, bool or a
// list of strings. Lists are joined with a single space.
type Text string

func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*t = ""
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(s)
	case '[':
		var items []Text
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		parts := make([]string, 0, len(items))
		for _, item := range items {
			if item != "" {
				parts = append(parts, string(item))
			}
		}
		*t = Text(strings.Join(parts, " "))
	case '{':
		*t = ""
	default:
		*t = Text(string(data))
	}
	return nil
}

func (t Text) String() string {
	return strings.TrimSpace(string(t))
}

// ConfigItem is one Config entry of a feed application. The feed writes
// attributes either under "@attributes" or inline next to the value.
type ConfigItem struct {
	Attributes map[string]string
	Value      string
}

func (c *ConfigItem) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	c.Attributes = make(map[string]string)
	for key, value := range raw {
		switch key {
		case "@attributes":
			var attrs map[string]Text
			if err := json.Unmarshal(value, &attrs); err != nil {
				return err
			}
			for k, v := range attrs {
				c.Attributes[k] = string(v)
			}
		case "value", "content":
			var text Text
			if err := json.Unmarshal(value, &text); err != nil {
				return err
			}
			c.Value = string(text)
		default:
			var text Text
			if err := json.Unmarshal(value, &text); err != nil {
				return err
			}
			c.Attributes[key] = string(text)
		}
	}
	return nil
}

// ConfigList accepts either a single Config object or an array of them
type ConfigList []ConfigItem

func (l *ConfigList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*l = nil
		return nil
	}
	if data[0] == '{' {
		var item ConfigItem
		if err := json.Unmarshal(data, &item); err != nil {
			return err
		}
		*l = ConfigList{item}
		return nil
	}

	var items []ConfigItem
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	*l = items
	return nil
}

// App is one application of the Community Applications feed
type App struct {
	Name        Text       `json:"Name"`
	Repository  Text       `json:"Repository"`
	Registry    Text       `json:"Registry"`
	Network     Text       `json:"Network"`
	Privileged  Text       `json:"Privileged"`
	Support     Text       `json:"Support"`
	Project     Text       `json:"Project"`
	Overview    Text       `json:"Overview"`
	Category    Text       `json:"Category"`
	WebUI       Text       `json:"WebUI"`
	Icon        Text       `json:"Icon"`
	TemplateURL Text       `json:"TemplateURL"`
	Date        Text       `json:"Date"`
	Template    Text       `json:"template"`
	Config      ConfigList `json:"Config"`
}

// Feed is the decoded catalog feed
type Feed struct {
	Applications []App `json:"applications"`
}

var registryPrefix = regexp.MustCompile(`^(docker\.io/|ghcr\.io/|lscr\.io/)`)

// NormalizeRepository case-folds a repository and strips known registry hosts
// and a trailing ":latest" tag, so that local and feed repositories match
func NormalizeRepository(repo string) string {
	repo = strings.ToLower(strings.TrimSpace(repo))
	repo = registryPrefix.ReplaceAllString(repo, "")
	return strings.TrimSuffix(repo, ":latest")
}

// Matches reports whether the app contains query in its name, repository,
// overview or category, ignoring case
func (a *App) Matches(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return false
	}
	for _, v := range []Text{a.Name, a.Repository, a.Overview, a.Category} {
		if strings.Contains(strings.ToLower(string(v)), q) {
			return true
		}
	}
	return false
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
}

// UpdatedAt parses the app's Date, which the feed writes either as a date
// string or as a unix timestamp
func (a *App) UpdatedAt() *time.Time {
	date := a.Date.String()
	if date == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, date); err == nil {
			return &t
		}
	}
	if secs, err := strconv.ParseInt(date, 10, 64); err == nil {
		t := time.Unix(secs, 0).UTC()
		return &t
	}
	return nil
}

// ToTemplate converts an app into a community template record carrying body
// as its XML content
func (a *App) ToTemplate(body string) *models.Template {
	return &models.Template{
		Name:                a.Name.String(),
		Repository:          a.Repository.String(),
		Network:             a.Network.String(),
		Category:            a.Category.String(),
		Banner:              a.Icon.String(),
		WebUI:               a.WebUI.String(),
		Description:         a.Overview.String(),
		TemplateVersion:     a.Date.String(),
		XMLContent:          body,
		Source:              models.SourceCommunity,
		Status:              models.TemplateStatusActive,
		CommunityRepository: a.Repository.String(),
		LastUpdatedAt:       a.UpdatedAt(),
	}
}

// BuildXML synthesizes a template document from the app's fields, for
// applications whose feed entry carries no template body
func (a *App) BuildXML() (string, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0"`)

	container := doc.CreateElement("Container")
	container.CreateAttr("version", "2")
	container.CreateElement("Name").SetText(a.Name.String())
	container.CreateElement("Repository").SetText(a.Repository.String())

	optional := []struct {
		tag   string
		value Text
	}{
		{"Registry", a.Registry},
		{"Network", a.Network},
		{"Privileged", a.Privileged},
		{"Support", a.Support},
		{"Project", a.Project},
		{"Overview", a.Overview},
		{"Category", a.Category},
		{"WebUI", a.WebUI},
		{"Icon", a.Icon},
		{"TemplateURL", a.TemplateURL},
		{"Date", a.Date},
	}
	for _, o := range optional {
		if v := o.value.String(); v != "" {
			container.CreateElement(o.tag).SetText(v)
		}
	}

	for _, item := range a.Config {
		el := container.CreateElement("Config")
		keys := make([]string, 0, len(item.Attributes))
		for k := range item.Attributes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		// Name first, the rest sorted
		if name, ok := item.Attributes["Name"]; ok {
			el.CreateAttr("Name", name)
		}
		for _, k := range keys {
			if k != "Name" {
				el.CreateAttr(k, item.Attributes[k])
			}
		}
		if item.Value != "" {
			el.SetText(item.Value)
		}
	}

	doc.Indent(2)
	out, err := doc.WriteToString()
	if err != nil {
		return "", fmt.Errorf("failed to build template XML: %w", err)
	}
	return out, nil
}
