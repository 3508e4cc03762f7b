package template

// Field names a scalar value of a container template
type Field string

const (
	FieldName            Field = "name"
	FieldRepository      Field = "repository"
	FieldNetwork         Field = "network"
	FieldCategory        Field = "category"
	FieldBanner          Field = "banner"
	FieldWebUI           Field = "webui"
	FieldDescription     Field = "description"
	FieldTemplateVersion Field = "template_version"
)

// ComparedFields is the ordered set of scalar fields compared between a local
// template and its community counterpart. Repository is the match key and is
// never compared.
var ComparedFields = []Field{
	FieldName,
	FieldNetwork,
	FieldCategory,
	FieldBanner,
	FieldWebUI,
	FieldDescription,
	FieldTemplateVersion,
}

var fieldElements = map[Field]string{
	FieldName:            "Name",
	FieldRepository:      "Repository",
	FieldNetwork:         "Network",
	FieldCategory:        "Category",
	FieldBanner:          "Icon",
	FieldWebUI:           "WebUI",
	FieldDescription:     "Overview",
	FieldTemplateVersion: "Date",
}

// Element returns the XML element name holding the field, or "" for unknown fields
func (f Field) Element() string {
	return fieldElements[f]
}

// ParseField returns the field with the given name
func ParseField(name string) (Field, bool) {
	f := Field(name)
	_, ok := fieldElements[f]
	return f, ok
}

// Fields holds the scalar values of a container template
type Fields struct {
	Name            string `json:"name"`
	Repository      string `json:"repository"`
	Network         string `json:"network"`
	Category        string `json:"category"`
	Banner          string `json:"banner"`
	WebUI           string `json:"webui"`
	Description     string `json:"description"`
	TemplateVersion string `json:"template_version"`
}

// Get returns the value of a field
func (f *Fields) Get(field Field) string {
	switch field {
	case FieldName:
		return f.Name
	case FieldRepository:
		return f.Repository
	case FieldNetwork:
		return f.Network
	case FieldCategory:
		return f.Category
	case FieldBanner:
		return f.Banner
	case FieldWebUI:
		return f.WebUI
	case FieldDescription:
		return f.Description
	case FieldTemplateVersion:
		return f.TemplateVersion
	}
	return ""
}

// Set assigns the value of a field. Unknown fields are ignored.
func (f *Fields) Set(field Field, value string) {
	switch field {
	case FieldName:
		f.Name = value
	case FieldRepository:
		f.Repository = value
	case FieldNetwork:
		f.Network = value
	case FieldCategory:
		f.Category = value
	case FieldBanner:
		f.Banner = value
	case FieldWebUI:
		f.WebUI = value
	case FieldDescription:
		f.Description = value
	case FieldTemplateVersion:
		f.TemplateVersion = value
	}
}
