// Package region turns free-form country and region names into comparison
// tokens.
package region

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Normalize lower-cases s and removes every whitespace rune, so
// " United  Kingdom " and "unitedkingdom" produce the same token.
func Normalize(s string) string {
	// cases.Caser is stateful, so each call gets its own.
	lower := cases.Lower(language.Und).String(s)
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, lower)
}

// Equal reports whether a and b normalize to the same token.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}
