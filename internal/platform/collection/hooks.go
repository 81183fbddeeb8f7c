package collection

import (
	"context"
	"fmt"

	"github.com/dossiers/dossiers/internal/platform/auth"
)

// BeforeChange runs every field's before-change hooks over doc, in place.
// Hooks of fields inside arrays run once per row with that row as sibling
// data. Rows are processed before the array field's own hooks.
func (c *Config) BeforeChange(ctx context.Context, doc map[string]any, op Operation, user *auth.User) error {
	if doc == nil {
		return nil
	}
	return runHooks(ctx, c.Fields, doc, doc, "", op, user)
}

func runHooks(ctx context.Context, fields []Field, level, doc map[string]any, prefix string, op Operation, user *auth.User) error {
	for _, f := range DataFields(fields) {
		p := JoinPath(prefix, f.Name)

		if f.Type == TypeArray {
			if list, ok := level[f.Name].([]any); ok {
				for i, item := range list {
					row, ok := item.(map[string]any)
					if !ok {
						continue
					}
					if err := runHooks(ctx, f.Fields, row, doc, IndexPath(p, i), op, user); err != nil {
						return err
					}
				}
			}
		}

		for _, hook := range f.Hooks.BeforeChange {
			v, err := hook(ctx, HookArgs{
				Value:       level[f.Name],
				SiblingData: level,
				Data:        doc,
				Path:        p,
				Operation:   op,
				User:        user,
			})
			if err != nil {
				return fmt.Errorf("before change hook on %s: %w", p, err)
			}
			level[f.Name] = v
		}
	}
	return nil
}
