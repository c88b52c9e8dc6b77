package payroll

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize canonicalizes a name for rate lookups: lowercase, trim, strip
// combining marks, keep only [a-z0-9] and spaces, collapse whitespace.
//
// It is total and idempotent. Normalize("Renée  O'Brien") == "renee obrien".
func Normalize(raw string) NormalizedKey {
	s := strings.TrimSpace(strings.ToLower(raw))

	// A fresh transformer per call: transformers carry state.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))
	if stripped, _, err := transform.String(t, s); err == nil {
		s = stripped
	}

	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		case unicode.IsSpace(r):
			space = true
		}
	}
	return NormalizedKey(b.String())
}
