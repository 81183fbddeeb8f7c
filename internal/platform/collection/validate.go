package collection

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dossiers/dossiers/internal/platform/i18n"
)

// ErrValidation is matched by every *ValidationError.
var ErrValidation = errors.New("validation failed")

// FieldError is a single failed constraint.
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ValidationError collects every failed constraint of a document.
type ValidationError struct {
	Errors []FieldError `json:"errors"`
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		msgs[i] = fe.Path + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Validate checks doc against the declared constraints: required fields,
// value types, and minimum row counts. Uniqueness is left to storage.
func (c *Config) Validate(doc map[string]any) error {
	var errs []FieldError
	validateLevel(c.Fields, doc, "", &errs)
	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

func validateLevel(fields []Field, level map[string]any, prefix string, errs *[]FieldError) {
	for _, f := range DataFields(fields) {
		p := JoinPath(prefix, f.Name)
		v, present := level[f.Name]
		if !present || v == nil {
			if f.Required {
				*errs = append(*errs, FieldError{Path: p, Message: "is required"})
			}
			continue
		}

		switch f.Type {
		case TypeText, TypeTextarea:
			s, ok := v.(string)
			if !ok {
				*errs = append(*errs, FieldError{Path: p, Message: "must be a string"})
				continue
			}
			if f.Required && strings.TrimSpace(s) == "" {
				*errs = append(*errs, FieldError{Path: p, Message: "is required"})
			}
		case TypeNumber:
			if _, ok := ToFloat(v); !ok {
				*errs = append(*errs, FieldError{Path: p, Message: "must be a number"})
			}
		case TypeDate:
			if !isDate(v) {
				*errs = append(*errs, FieldError{Path: p, Message: "must be a date"})
			}
		case TypeArray:
			list, ok := v.([]any)
			if !ok {
				*errs = append(*errs, FieldError{Path: p, Message: "must be a list"})
				continue
			}
			// An empty optional array satisfies minRows.
			if len(list) == 0 {
				if f.Required {
					*errs = append(*errs, FieldError{Path: p, Message: "is required"})
				}
				continue
			}
			if f.MinRows > 0 && len(list) < f.MinRows {
				*errs = append(*errs, FieldError{Path: p, Message: fmt.Sprintf("requires at least %d row(s)", f.MinRows)})
			}
			for i, item := range list {
				row, ok := item.(map[string]any)
				if !ok {
					*errs = append(*errs, FieldError{Path: IndexPath(p, i), Message: "must be an object"})
					continue
				}
				validateLevel(f.Fields, row, IndexPath(p, i), errs)
			}
		}
	}
}

// ToFloat converts the numeric encodings a decoded document may carry.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func isDate(v any) bool {
	switch d := v.(type) {
	case time.Time:
		return true
	case *time.Time:
		return d != nil
	case string:
		_, ok := i18n.ParseDate(d)
		return ok
	}
	return false
}
