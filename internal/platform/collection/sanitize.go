package collection

import (
	"context"
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	textPolicyOnce sync.Once
	textPolicy     *bluemonday.Policy
)

func textSanitizer() *bluemonday.Policy {
	textPolicyOnce.Do(func() {
		textPolicy = bluemonday.StrictPolicy()
	})
	return textPolicy
}

// maxSanitizePasses bounds the fixed-point loop in SanitizeText. Each pass
// peels one level of entity encoding.
const maxSanitizePasses = 8

// SanitizeText strips markup from free text and stores it as plain text.
// Entity-encoded markup is decoded and stripped too, so running the hook on
// its own output returns the same string.
func SanitizeText(_ context.Context, args HookArgs) (any, error) {
	s, ok := args.Value.(string)
	if !ok {
		return args.Value, nil
	}
	return sanitizePlain(s), nil
}

func sanitizePlain(s string) string {
	out := strings.TrimSpace(s)
	for range maxSanitizePasses {
		next := strings.TrimSpace(html.UnescapeString(textSanitizer().Sanitize(out)))
		if next == out {
			return out
		}
		out = next
	}
	return out
}
