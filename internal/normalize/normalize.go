// Package normalize folds free-text labels into a canonical form so that
// labels from two systems can be compared by substring containment.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var lower = cases.Lower(language.Und)

// Label returns the canonical form of s: NFKC folded, lower-cased, with every
// character that is not a letter, digit or whitespace removed, whitespace runs
// collapsed to a single space and the result trimmed.
//
// Typographic dashes (U+2012 through U+2015) separate words and are treated as
// whitespace. The ASCII hyphen and apostrophes are dropped like any other
// punctuation. Label is idempotent.
func Label(s string) string {
	if s == "" {
		return ""
	}
	folded := lower.String(norm.NFKC.String(s))

	var b strings.Builder
	b.Grow(len(folded))
	pendingSpace := false
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(r)
		case unicode.IsSpace(r) || isWordDash(r):
			pendingSpace = true
		}
	}
	return b.String()
}

func isWordDash(r rune) bool {
	return r >= '\u2012' && r <= '\u2015'
}
