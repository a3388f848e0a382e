// Package normalize turns raw free-text game titles into the canonical
// comparison keys the matcher and the catalog agree on.
package normalize

import (
	"errors"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ErrEmptyInput is returned for empty or whitespace-only titles. Session
// processing maps it to a skipped row, it is never fatal.
var ErrEmptyInput = errors.New("normalize: empty input")

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize lower-cases, folds diacritics, drops punctuation that carries
// no disambiguating meaning and collapses whitespace. It is deterministic
// and idempotent: Normalize(Normalize(x)) == Normalize(x).
func Normalize(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", ErrEmptyInput
	}

	folded, _, err := transform.String(stripMarks, raw)
	if err != nil {
		// Fall back to the raw text; the matcher still works, just
		// with accents intact.
		folded = raw
	}

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range strings.ToLower(folded) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '\'' || r == '’':
			// Apostrophes are dropped outright: "Assassin's" == "Assassins"
		default:
			// Colons, hyphens, slashes and the rest separate words
			b.WriteRune(' ')
		}
	}

	key := strings.Join(strings.Fields(b.String()), " ")
	if key == "" {
		return "", ErrEmptyInput
	}
	return key, nil
}

// Tokens splits a normalized key into its comparison tokens.
func Tokens(key string) []string {
	return strings.Fields(key)
}
