package collection

import (
	"strconv"
	"strings"
)

// SplitPath splits a dotted form path. Empty segments are dropped.
func SplitPath(path string) []string {
	if path == "" {
		return nil
	}
	raw := strings.Split(path, ".")
	out := raw[:0]
	for _, s := range raw {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// JoinPath appends segments to a dotted path.
func JoinPath(prefix string, segs ...string) string {
	parts := make([]string, 0, len(segs)+1)
	if prefix != "" {
		parts = append(parts, prefix)
	}
	for _, s := range segs {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ".")
}

// IndexPath is JoinPath for an array row.
func IndexPath(prefix string, i int) string {
	return JoinPath(prefix, strconv.Itoa(i))
}

// Lookup resolves a dotted path against a decoded document. Numeric
// segments index into arrays.
func Lookup(doc map[string]any, path string) (any, bool) {
	var cur any = doc
	for _, seg := range SplitPath(path) {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

func isIndex(seg string) bool {
	if seg == "" {
		return false
	}
	for _, r := range seg {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
