package patient

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/dossiers/dossiers/internal/platform/collection"
	"github.com/dossiers/dossiers/internal/platform/i18n"
)

// ToDocument renders p as the decoded-JSON document the collection runtime
// runs hooks and validation on.
func ToDocument(p *Patient) (map[string]any, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode patient: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("decode patient document: %w", err)
	}
	return doc, nil
}

// FromDocument decodes a document into a Patient. Dates may be RFC 3339
// timestamps or bare YYYY-MM-DD days.
func FromDocument(doc map[string]any) (*Patient, error) {
	var p Patient
	if err := decode(doc, &p, false); err != nil {
		return nil, fmt.Errorf("decode patient: %w", err)
	}
	return &p, nil
}

// decode maps a document onto out through its json tags. weak enables
// mapstructure's string/number coercions. Empty strings decode as absent
// values, so an unfilled date or measurement stays nil.
func decode(input any, out any, weak bool) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           out,
		WeaklyTypedInput: weak,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			dateHook,
			mapstructure.TextUnmarshallerHookFunc(),
		),
	})
	if err != nil {
		return err
	}
	return dec.Decode(dropEmptyStrings(input))
}

// dropEmptyStrings copies v without the map entries holding "".
func dropEmptyStrings(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, x := range t {
			if s, ok := x.(string); ok && s == "" {
				continue
			}
			out[k] = dropEmptyStrings(x)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = dropEmptyStrings(x)
		}
		return out
	}
	return v
}

var timeType = reflect.TypeOf(time.Time{})

func dateHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != timeType || from.Kind() != reflect.String {
		return data, nil
	}
	s := data.(string)
	if s == "" {
		return time.Time{}, nil
	}
	t, ok := i18n.ParseDate(s)
	if !ok {
		return nil, fmt.Errorf("invalid date %q", s)
	}
	return t, nil
}

var indexBrackets = strings.NewReplacer("[", ".", "]", "")

// decodeFieldErrors turns a mapstructure failure into field errors keyed by
// document path ("treatments[0].physician" becomes "treatments.0.physician").
func decodeFieldErrors(err error) []collection.FieldError {
	var merr *mapstructure.Error
	if !errors.As(err, &merr) {
		return []collection.FieldError{{Message: err.Error()}}
	}
	out := make([]collection.FieldError, 0, len(merr.Errors))
	for _, msg := range merr.Errors {
		fe := collection.FieldError{Message: msg}
		if _, rest, ok := strings.Cut(msg, "'"); ok {
			if name, _, ok := strings.Cut(rest, "'"); ok {
				fe.Path = indexBrackets.Replace(name)
			}
		}
		out = append(out, fe)
	}
	return out
}
