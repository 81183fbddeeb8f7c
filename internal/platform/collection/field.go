// Package collection is the field-configuration runtime: collections are
// declared as trees of fields, and this package interprets those trees to
// run before-change hooks, validate documents, label repeating rows and
// describe the admin form.
//
// Documents are plain decoded JSON (map[string]any). Layout fields (row,
// tabs) carry no data of their own: their children live on the parent
// level. ui fields are component slots and never hold data.
package collection

import (
	"context"

	"github.com/dossiers/dossiers/internal/platform/auth"
	"github.com/dossiers/dossiers/internal/platform/i18n"
)

type FieldType string

const (
	TypeText     FieldType = "text"
	TypeTextarea FieldType = "textarea"
	TypeNumber   FieldType = "number"
	TypeDate     FieldType = "date"
	TypeArray    FieldType = "array"
	TypeRow      FieldType = "row"
	TypeTabs     FieldType = "tabs"
	TypeUI       FieldType = "ui"
)

// Operation identifies the write a hook runs for.
type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
)

// Field is one node of a collection's field tree.
type Field struct {
	Name     string
	Type     FieldType
	Label    i18n.Text
	Labels   *Labels
	Required bool
	Unique   bool
	MinRows  int
	Fields   []Field
	Tabs     []Tab
	Admin    Admin
	Hooks    Hooks
}

// Tab groups fields under a tab of a tabs field.
type Tab struct {
	Label  i18n.Text
	Fields []Field
}

// Labels names the rows of an array field or the documents of a collection.
type Labels struct {
	Singular i18n.Text
	Plural   i18n.Text
}

type DateOptions struct {
	PickerAppearance string
	DisplayFormat    string
}

type Components struct {
	RowLabel string
	Field    string
}

// Admin carries presentation hints; none of them affect stored data.
type Admin struct {
	Width         string
	Description   i18n.Text
	Placeholder   i18n.Text
	ReadOnly      bool
	Step          float64
	Rows          int
	InitCollapsed bool
	Date          *DateOptions
	Components    Components
}

type Hooks struct {
	BeforeChange []FieldHook
}

// HookArgs is what a field hook sees. SiblingData is the data level the
// field lives on (a row for fields inside arrays); Data is the whole
// document.
type HookArgs struct {
	Value       any
	SiblingData map[string]any
	Data        map[string]any
	Path        string
	Operation   Operation
	User        *auth.User
}

// FieldHook returns the value to store for the field. Returning nil clears
// the field.
type FieldHook func(ctx context.Context, args HookArgs) (any, error)

// CollectionAdmin configures the collection list view.
type CollectionAdmin struct {
	UseAsTitle     string
	DefaultColumns []string
	Group          i18n.Text
}

// Config declares a collection.
type Config struct {
	Slug   string
	Labels Labels
	Admin  CollectionAdmin
	Fields []Field
}

// HasData reports whether the field stores a value under its own name.
func (f Field) HasData() bool {
	switch f.Type {
	case TypeRow, TypeTabs, TypeUI:
		return false
	}
	return f.Name != ""
}

// DataFields flattens layout fields and returns the data-bearing fields of
// one level, in declaration order.
func DataFields(fields []Field) []Field {
	var out []Field
	for _, f := range fields {
		switch f.Type {
		case TypeRow:
			out = append(out, DataFields(f.Fields)...)
		case TypeTabs:
			for _, tab := range f.Tabs {
				out = append(out, DataFields(tab.Fields)...)
			}
		case TypeUI:
		default:
			if f.Name != "" {
				out = append(out, f)
			}
		}
	}
	return out
}

// SystemFields are the keys the server owns on every stored document.
// Values sent for them by clients are discarded.
var SystemFields = []string{"id", "versionId", "createdAt", "updatedAt"}

// StripSystemFields removes the server-owned keys from doc.
func StripSystemFields(doc map[string]any) {
	for _, k := range SystemFields {
		delete(doc, k)
	}
}

// DataFields returns the top-level data fields of the collection.
func (c *Config) DataFields() []Field {
	return DataFields(c.Fields)
}

// Field finds the field at a dotted data path. Numeric segments (array row
// indices) are skipped.
func (c *Config) Field(path string) (Field, bool) {
	level := c.Fields
	var found Field
	ok := false
	for _, seg := range SplitPath(path) {
		if isIndex(seg) {
			continue
		}
		ok = false
		for _, f := range DataFields(level) {
			if f.Name == seg {
				found, ok = f, true
				level = f.Fields
				break
			}
		}
		if !ok {
			return Field{}, false
		}
	}
	return found, ok
}

// UniqueFields lists the names of top-level fields declared unique.
func (c *Config) UniqueFields() []string {
	var out []string
	for _, f := range c.DataFields() {
		if f.Unique {
			out = append(out, f.Name)
		}
	}
	return out
}

// Walk visits every data field declared in the collection, depth first,
// with its schema path (array fields are reported before their children).
func (c *Config) Walk(fn func(path string, f Field)) {
	walkFields(c.Fields, "", fn)
}

func walkFields(fields []Field, prefix string, fn func(string, Field)) {
	for _, f := range DataFields(fields) {
		p := JoinPath(prefix, f.Name)
		fn(p, f)
		if f.Type == TypeArray {
			walkFields(f.Fields, p, fn)
		}
	}
}
