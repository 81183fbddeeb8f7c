package collection

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/dossiers/dossiers/internal/platform/auth"
	"github.com/dossiers/dossiers/internal/platform/i18n"
)

func testConfig() *Config {
	return &Config{
		Slug:   "orders",
		Labels: Labels{Singular: i18n.T("Commande", "Order"), Plural: i18n.T("Commandes", "Orders")},
		Admin:  CollectionAdmin{UseAsTitle: "ref", DefaultColumns: []string{"ref", "total"}, Group: i18n.T("Ventes", "Sales")},
		Fields: []Field{
			{
				Type: TypeTabs,
				Tabs: []Tab{
					{
						Label: i18n.T("Général", "General"),
						Fields: []Field{
							{
								Type: TypeRow,
								Fields: []Field{
									{Name: "ref", Type: TypeText, Label: i18n.T("Référence", "Reference"), Required: true, Unique: true},
									{Name: "qty", Type: TypeNumber, Required: true},
									{Name: "price", Type: TypeNumber},
									{
										Name:  "total",
										Type:  TypeNumber,
										Admin: Admin{ReadOnly: true},
										Hooks: Hooks{BeforeChange: []FieldHook{
											func(_ context.Context, args HookArgs) (any, error) {
												q, ok1 := ToFloat(args.SiblingData["qty"])
												p, ok2 := ToFloat(args.SiblingData["price"])
												if !ok1 || !ok2 {
													return nil, nil
												}
												return q * p, nil
											},
										}},
									},
								},
							},
						},
					},
					{
						Label: i18n.T("Lignes", "Lines"),
						Fields: []Field{
							{
								Name:    "lines",
								Type:    TypeArray,
								Labels:  &Labels{Singular: i18n.T("Ligne", "Line"), Plural: i18n.T("Lignes", "Lines")},
								MinRows: 2,
								Admin:   Admin{Components: Components{RowLabel: "LineRowLabel"}},
								Fields: []Field{
									{Name: "sku", Type: TypeText, Required: true},
									{Name: "shipped", Type: TypeDate},
									{
										Name: "clerk",
										Type: TypeText,
										Hooks: Hooks{BeforeChange: []FieldHook{
											func(_ context.Context, args HookArgs) (any, error) {
												if args.User == nil {
													return "system", nil
												}
												return args.User.Email, nil
											},
										}},
									},
									{
										Name:   "notes",
										Type:   TypeArray,
										Fields: []Field{{Name: "text", Type: TypeTextarea, Hooks: Hooks{BeforeChange: []FieldHook{SanitizeText}}}},
									},
								},
							},
						},
					},
					{Label: i18n.T("Vide", "Empty")},
				},
			},
			{Name: "print", Type: TypeUI, Admin: Admin{Components: Components{Field: "PrintButton"}}},
		},
	}
}

func TestDataFields_FlattensLayout(t *testing.T) {
	var names []string
	for _, f := range testConfig().DataFields() {
		names = append(names, f.Name)
	}
	want := []string{"ref", "qty", "price", "total", "lines"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("data fields mismatch (-want +got):\n%s", diff)
	}
}

func TestConfig_Field(t *testing.T) {
	cfg := testConfig()
	tests := []struct {
		path string
		want FieldType
		ok   bool
	}{
		{"ref", TypeText, true},
		{"lines", TypeArray, true},
		{"lines.0.sku", TypeText, true},
		{"lines.3.notes.1.text", TypeTextarea, true},
		{"lines.sku", TypeText, true},
		{"print", "", false},
		{"missing", "", false},
		{"ref.nested", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			f, ok := cfg.Field(tt.path)
			if ok != tt.ok {
				t.Fatalf("Field(%q) ok = %v, want %v", tt.path, ok, tt.ok)
			}
			if ok && f.Type != tt.want {
				t.Errorf("Field(%q).Type = %s, want %s", tt.path, f.Type, tt.want)
			}
		})
	}
}

func TestConfig_UniqueFields(t *testing.T) {
	if diff := cmp.Diff([]string{"ref"}, testConfig().UniqueFields()); diff != "" {
		t.Errorf("unique fields mismatch:\n%s", diff)
	}
}

func TestConfig_Walk(t *testing.T) {
	var paths []string
	testConfig().Walk(func(p string, _ Field) { paths = append(paths, p) })
	want := []string{"ref", "qty", "price", "total", "lines", "lines.sku", "lines.shipped", "lines.clerk", "lines.notes", "lines.notes.text"}
	if diff := cmp.Diff(want, paths); diff != "" {
		t.Errorf("walk mismatch:\n%s", diff)
	}
}

func TestBeforeChange_ComputesSiblingValues(t *testing.T) {
	doc := map[string]any{"ref": "A1", "qty": 3.0, "price": 2.5}
	if err := testConfig().BeforeChange(context.Background(), doc, OperationCreate, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc["total"] != 7.5 {
		t.Errorf("expected total 7.5, got %v", doc["total"])
	}

	delete(doc, "price")
	if err := testConfig().BeforeChange(context.Background(), doc, OperationUpdate, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v, ok := doc["total"]; !ok || v != nil {
		t.Errorf("expected total cleared, got %v (present=%v)", v, ok)
	}
}

func TestBeforeChange_RunsPerRow(t *testing.T) {
	doc := map[string]any{
		"lines": []any{
			map[string]any{"sku": "X", "notes": []any{map[string]any{"text": "<b>fragile</b> & heavy"}}},
			map[string]any{"sku": "Y", "clerk": "forged"},
			"not-a-row",
		},
	}
	user := &auth.User{ID: "u1", Email: "clerk@example.com"}
	if err := testConfig().BeforeChange(context.Background(), doc, OperationCreate, user); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, p := range []string{"lines.0.clerk", "lines.1.clerk"} {
		v, ok := Lookup(doc, p)
		if !ok || v != "clerk@example.com" {
			t.Errorf("%s = %v, want clerk@example.com", p, v)
		}
	}
	v, _ := Lookup(doc, "lines.0.notes.0.text")
	if v != "fragile & heavy" {
		t.Errorf("expected sanitized text, got %q", v)
	}
}

func TestSanitizeText_StableAcrossSaves(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"plain text", "  pansement sec  ", "pansement sec"},
		{"ampersand and comparison", "tension < 12 & pouls > 60", "tension < 12 & pouls > 60"},
		{"markup", "<b>fragile</b> & heavy", "fragile & heavy"},
		{"encoded script", "&lt;script&gt;alert(1)&lt;/script&gt;", ""},
		{"encoded tags around text", "&lt;i&gt;douleur&lt;/i&gt; modérée", "douleur modérée"},
		{"double encoded", "&amp;lt;b&amp;gt;note&amp;lt;/b&amp;gt;", "note"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first, err := SanitizeText(context.Background(), HookArgs{Value: tt.in})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if first != tt.want {
				t.Errorf("first save = %q, want %q", first, tt.want)
			}
			second, _ := SanitizeText(context.Background(), HookArgs{Value: first})
			if second != first {
				t.Errorf("second save = %q, want %q", second, first)
			}
		})
	}
}

func TestBeforeChange_HookError(t *testing.T) {
	cfg := &Config{Fields: []Field{{
		Name: "x",
		Type: TypeText,
		Hooks: Hooks{BeforeChange: []FieldHook{func(context.Context, HookArgs) (any, error) {
			return nil, errors.New("boom")
		}}},
	}}}
	err := cfg.BeforeChange(context.Background(), map[string]any{}, OperationCreate, nil)
	if err == nil || !strings.Contains(err.Error(), "x") {
		t.Fatalf("expected wrapped hook error naming the field, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		doc  map[string]any
		want []FieldError
	}{
		{
			name: "valid without lines",
			doc:  map[string]any{"ref": "A1", "qty": 1.0},
		},
		{
			name: "missing required",
			doc:  map[string]any{"ref": "  "},
			want: []FieldError{{Path: "ref", Message: "is required"}, {Path: "qty", Message: "is required"}},
		},
		{
			name: "wrong types",
			doc:  map[string]any{"ref": 12.0, "qty": "three"},
			want: []FieldError{{Path: "ref", Message: "must be a string"}, {Path: "qty", Message: "must be a number"}},
		},
		{
			name: "min rows and nested",
			doc: map[string]any{"ref": "A1", "qty": 1.0, "lines": []any{
				map[string]any{"shipped": "not a date"},
			}},
			want: []FieldError{
				{Path: "lines", Message: "requires at least 2 row(s)"},
				{Path: "lines.0.sku", Message: "is required"},
				{Path: "lines.0.shipped", Message: "must be a date"},
			},
		},
		{
			name: "dates accepted",
			doc: map[string]any{"ref": "A1", "qty": 1.0, "lines": []any{
				map[string]any{"sku": "a", "shipped": "2024-03-01"},
				map[string]any{"sku": "b", "shipped": "2024-03-01T10:00:00.000Z"},
			}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := testConfig().Validate(tt.doc)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ValidationError, got %v", err)
			}
			if !errors.Is(err, ErrValidation) {
				t.Error("expected errors.Is(err, ErrValidation)")
			}
			if diff := cmp.Diff(tt.want, verr.Errors); diff != "" {
				t.Errorf("errors mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLookup(t *testing.T) {
	doc := map[string]any{"a": []any{map[string]any{"b": "x"}}}
	if v, ok := Lookup(doc, "a.0.b"); !ok || v != "x" {
		t.Errorf("Lookup a.0.b = %v, %v", v, ok)
	}
	for _, p := range []string{"a.1.b", "a.x.b", "a.0.c", "z"} {
		if _, ok := Lookup(doc, p); ok {
			t.Errorf("Lookup(%q) should fail", p)
		}
	}
}

func TestSplitAndJoinPath(t *testing.T) {
	if diff := cmp.Diff([]string{"a", "0", "b"}, SplitPath("a..0.b.")); diff != "" {
		t.Errorf("SplitPath mismatch:\n%s", diff)
	}
	if SplitPath("") != nil {
		t.Error("SplitPath(\"\") should be nil")
	}
	if got := JoinPath("", "a", "", "b"); got != "a.b" {
		t.Errorf("JoinPath = %q", got)
	}
	if got := IndexPath("lines", 4); got != "lines.4" {
		t.Errorf("IndexPath = %q", got)
	}
}

func TestRowLabels(t *testing.T) {
	reg := RowLabelRegistry{
		"LineRowLabel": func(row map[string]any, n int, _ string) string {
			if sku, _ := row["sku"].(string); sku != "" {
				return sku
			}
			return FallbackRowLabel("Line", n)
		},
	}
	doc := map[string]any{"lines": []any{
		map[string]any{"sku": "X", "notes": []any{map[string]any{"text": "a"}}},
		map[string]any{},
	}}

	got := testConfig().RowLabels(doc, reg, i18n.French)
	want := []LabelledArray{{
		Field: "lines",
		Path:  "lines",
		Label: "Lignes",
		Rows: []LabelledRow{
			{
				Path:  "lines.0",
				Label: "X",
				Arrays: []LabelledArray{{
					Field: "notes",
					Path:  "lines.0.notes",
					Label: "notes",
					Rows:  []LabelledRow{{Path: "lines.0.notes.0", Label: "notes 01"}},
				}},
			},
			{
				Path:   "lines.1",
				Label:  "Line 02",
				Arrays: []LabelledArray{{Field: "notes", Path: "lines.1.notes", Label: "notes", Rows: []LabelledRow{}}},
			},
		},
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("row labels mismatch (-want +got):\n%s", diff)
	}
}

func TestFallbackRowLabel(t *testing.T) {
	tests := map[int]string{1: "Soin 01", 9: "Soin 09", 12: "Soin 12", 100: "Soin 100"}
	for n, want := range tests {
		if got := FallbackRowLabel("Soin", n); got != want {
			t.Errorf("FallbackRowLabel(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestDescribe(t *testing.T) {
	d := testConfig().Describe(i18n.English)
	if d.Plural != "Orders" || d.Group != "Sales" || d.UseAsTitle != "ref" {
		t.Errorf("unexpected header %+v", d)
	}
	if len(d.Fields) != 2 || d.Fields[0].Type != TypeTabs || len(d.Fields[0].Tabs) != 3 {
		t.Fatalf("unexpected layout %+v", d.Fields)
	}
	if d.Fields[0].Tabs[2].Fields == nil || len(d.Fields[0].Tabs[2].Fields) != 0 {
		t.Errorf("empty tab should describe an empty field list")
	}
	total := d.Fields[0].Tabs[0].Fields[0].Fields[3]
	if total.Name != "total" || !total.Computed {
		t.Errorf("expected computed total, got %+v", total)
	}
	if d.Fields[1].Component != "PrintButton" {
		t.Errorf("expected ui component, got %+v", d.Fields[1])
	}

	if fr := testConfig().Describe("de"); fr.Locale != i18n.French || fr.Plural != "Commandes" {
		t.Errorf("unsupported locale should fall back to French, got %s / %s", fr.Locale, fr.Plural)
	}
}

func TestDescriptor_Encodings(t *testing.T) {
	d := testConfig().Describe(i18n.French)
	y, err := d.YAML()
	if err != nil {
		t.Fatalf("YAML: %v", err)
	}
	if !strings.Contains(string(y), "slug: orders") || !strings.Contains(string(y), "useAsTitle: ref") {
		t.Errorf("unexpected yaml:\n%s", y)
	}
	j, err := d.JSON()
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}
	if !strings.Contains(string(j), `"row_label": "LineRowLabel"`) {
		t.Errorf("unexpected json:\n%s", j)
	}
}
