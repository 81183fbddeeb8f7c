package collection

import (
	"encoding/json"

	"gopkg.in/yaml.v3"

	"github.com/dossiers/dossiers/internal/platform/i18n"
)

// Descriptor is the localized admin view of a collection, as served to the
// admin UI and printed by the schema command.
type Descriptor struct {
	Slug           string            `json:"slug" yaml:"slug"`
	Locale         string            `json:"locale" yaml:"locale"`
	Singular       string            `json:"singular" yaml:"singular"`
	Plural         string            `json:"plural" yaml:"plural"`
	Group          string            `json:"group,omitempty" yaml:"group,omitempty"`
	UseAsTitle     string            `json:"use_as_title,omitempty" yaml:"useAsTitle,omitempty"`
	DefaultColumns []string          `json:"default_columns,omitempty" yaml:"defaultColumns,omitempty"`
	Fields         []FieldDescriptor `json:"fields" yaml:"fields"`
}

type FieldDescriptor struct {
	Name             string            `json:"name,omitempty" yaml:"name,omitempty"`
	Type             FieldType         `json:"type" yaml:"type"`
	Label            string            `json:"label,omitempty" yaml:"label,omitempty"`
	Singular         string            `json:"singular,omitempty" yaml:"singular,omitempty"`
	Plural           string            `json:"plural,omitempty" yaml:"plural,omitempty"`
	Required         bool              `json:"required,omitempty" yaml:"required,omitempty"`
	Unique           bool              `json:"unique,omitempty" yaml:"unique,omitempty"`
	MinRows          int               `json:"min_rows,omitempty" yaml:"minRows,omitempty"`
	Width            string            `json:"width,omitempty" yaml:"width,omitempty"`
	Description      string            `json:"description,omitempty" yaml:"description,omitempty"`
	Placeholder      string            `json:"placeholder,omitempty" yaml:"placeholder,omitempty"`
	ReadOnly         bool              `json:"read_only,omitempty" yaml:"readOnly,omitempty"`
	Step             float64           `json:"step,omitempty" yaml:"step,omitempty"`
	Rows             int               `json:"rows,omitempty" yaml:"rows,omitempty"`
	InitCollapsed    bool              `json:"init_collapsed,omitempty" yaml:"initCollapsed,omitempty"`
	PickerAppearance string            `json:"picker_appearance,omitempty" yaml:"pickerAppearance,omitempty"`
	DisplayFormat    string            `json:"display_format,omitempty" yaml:"displayFormat,omitempty"`
	RowLabel         string            `json:"row_label,omitempty" yaml:"rowLabel,omitempty"`
	Component        string            `json:"component,omitempty" yaml:"component,omitempty"`
	Computed         bool              `json:"computed,omitempty" yaml:"computed,omitempty"`
	Fields           []FieldDescriptor `json:"fields,omitempty" yaml:"fields,omitempty"`
	Tabs             []TabDescriptor   `json:"tabs,omitempty" yaml:"tabs,omitempty"`
}

type TabDescriptor struct {
	Label  string            `json:"label" yaml:"label"`
	Fields []FieldDescriptor `json:"fields" yaml:"fields"`
}

// Describe renders the collection for locale. Unknown locales fall back
// to i18n.Fallback.
func (c *Config) Describe(locale string) *Descriptor {
	if !i18n.IsSupported(locale) {
		locale = i18n.Fallback
	}
	return &Descriptor{
		Slug:           c.Slug,
		Locale:         locale,
		Singular:       c.Labels.Singular.Get(locale),
		Plural:         c.Labels.Plural.Get(locale),
		Group:          c.Admin.Group.Get(locale),
		UseAsTitle:     c.Admin.UseAsTitle,
		DefaultColumns: c.Admin.DefaultColumns,
		Fields:         describeFields(c.Fields, locale),
	}
}

func describeFields(fields []Field, locale string) []FieldDescriptor {
	out := make([]FieldDescriptor, 0, len(fields))
	for _, f := range fields {
		d := FieldDescriptor{
			Name:          f.Name,
			Type:          f.Type,
			Label:         f.Label.Get(locale),
			Required:      f.Required,
			Unique:        f.Unique,
			MinRows:       f.MinRows,
			Width:         f.Admin.Width,
			Description:   f.Admin.Description.Get(locale),
			Placeholder:   f.Admin.Placeholder.Get(locale),
			ReadOnly:      f.Admin.ReadOnly,
			Step:          f.Admin.Step,
			Rows:          f.Admin.Rows,
			InitCollapsed: f.Admin.InitCollapsed,
			RowLabel:      f.Admin.Components.RowLabel,
			Component:     f.Admin.Components.Field,
			Computed:      len(f.Hooks.BeforeChange) > 0 && f.Admin.ReadOnly,
		}
		if f.Labels != nil {
			d.Singular = f.Labels.Singular.Get(locale)
			d.Plural = f.Labels.Plural.Get(locale)
		}
		if f.Admin.Date != nil {
			d.PickerAppearance = f.Admin.Date.PickerAppearance
			d.DisplayFormat = f.Admin.Date.DisplayFormat
		}
		if len(f.Fields) > 0 {
			d.Fields = describeFields(f.Fields, locale)
		}
		for _, tab := range f.Tabs {
			d.Tabs = append(d.Tabs, TabDescriptor{
				Label:  tab.Label.Get(locale),
				Fields: describeFields(tab.Fields, locale),
			})
		}
		out = append(out, d)
	}
	return out
}

// YAML encodes the descriptor as YAML.
func (d *Descriptor) YAML() ([]byte, error) {
	return yaml.Marshal(d)
}

// JSON encodes the descriptor as indented JSON.
func (d *Descriptor) JSON() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}
