// Package sanitize normalizes raw string fields reported by field agents
// before they reach the reconciliation pipeline.
package sanitize

import "strings"

// MaxFieldLength is the longest value kept for any reported string field,
// measured in code points.
const MaxFieldLength = 255

// Clean trims surrounding whitespace and truncates the value to
// MaxFieldLength code points. An empty result means the field is absent.
// Deterministic, no side effects.
func Clean(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	runes := []rune(s)
	if len(runes) > MaxFieldLength {
		s = string(runes[:MaxFieldLength])
	}
	return s
}

// CleanOptional is Clean for optional fields: an empty result becomes nil
// so callers can distinguish "absent" from "empty string".
func CleanOptional(s string) *string {
	cleaned := Clean(s)
	if cleaned == "" {
		return nil
	}
	return &cleaned
}

// CleanSlice cleans every element and drops the ones that end up absent.
func CleanSlice(values []string) []string {
	var out []string
	for _, v := range values {
		if cleaned := Clean(v); cleaned != "" {
			out = append(out, cleaned)
		}
	}
	return out
}
