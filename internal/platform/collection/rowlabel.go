package collection

import "fmt"

// RowLabelFunc summarises one row of an array field. rowNumber is 1-based.
type RowLabelFunc func(row map[string]any, rowNumber int, locale string) string

// RowLabelRegistry maps the RowLabel component names declared in Admin to
// their implementation.
type RowLabelRegistry map[string]RowLabelFunc

// LabelledArray is an array field of a document with its rows labelled.
type LabelledArray struct {
	Field string        `json:"field"`
	Path  string        `json:"path"`
	Label string        `json:"label"`
	Rows  []LabelledRow `json:"rows"`
}

// LabelledRow is one labelled row, with the arrays nested inside it.
type LabelledRow struct {
	Path   string          `json:"path"`
	Label  string          `json:"label"`
	Arrays []LabelledArray `json:"arrays,omitempty"`
}

// FallbackRowLabel is the label used when a row has nothing salient to show:
// the singular type name and the zero-padded row number.
func FallbackRowLabel(singular string, rowNumber int) string {
	return fmt.Sprintf("%s %02d", singular, rowNumber)
}

// RowLabels labels every row of every array field in doc. Arrays whose
// RowLabel component is missing from reg use FallbackRowLabel.
func (c *Config) RowLabels(doc map[string]any, reg RowLabelRegistry, locale string) []LabelledArray {
	return labelLevel(c.Fields, doc, "", reg, locale)
}

func labelLevel(fields []Field, level map[string]any, prefix string, reg RowLabelRegistry, locale string) []LabelledArray {
	var out []LabelledArray
	for _, f := range DataFields(fields) {
		if f.Type != TypeArray {
			continue
		}
		p := JoinPath(prefix, f.Name)
		arr := LabelledArray{Field: f.Name, Path: p, Label: f.pluralLabel(locale), Rows: []LabelledRow{}}

		list, _ := level[f.Name].([]any)
		fn := reg[f.Admin.Components.RowLabel]
		for i, item := range list {
			row, _ := item.(map[string]any)
			n := i + 1
			var label string
			if fn != nil {
				label = fn(row, n, locale)
			} else {
				label = FallbackRowLabel(f.singularLabel(locale), n)
			}
			lr := LabelledRow{Path: IndexPath(p, i), Label: label}
			if row != nil {
				lr.Arrays = labelLevel(f.Fields, row, lr.Path, reg, locale)
			}
			arr.Rows = append(arr.Rows, lr)
		}
		out = append(out, arr)
	}
	return out
}

func (f Field) singularLabel(locale string) string {
	if f.Labels != nil {
		if s := f.Labels.Singular.Get(locale); s != "" {
			return s
		}
	}
	if s := f.Label.Get(locale); s != "" {
		return s
	}
	return f.Name
}

func (f Field) pluralLabel(locale string) string {
	if f.Labels != nil {
		if s := f.Labels.Plural.Get(locale); s != "" {
			return s
		}
	}
	if s := f.Label.Get(locale); s != "" {
		return s
	}
	return f.Name
}
