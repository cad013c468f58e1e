// SPDX-License-Identifier: MIT

package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Token normalizes a string token for matching:
// - trims Unicode whitespace + invisible edge characters
// - lowercases for case-insensitive comparisons
func Token(s string) string {
	return strings.ToLower(strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) ||
			r == '\u200B' || // Zero Width Space
			r == '\u200C' || // Zero Width Non-Joiner
			r == '\u200D' || // Zero Width Joiner
			r == '\uFEFF' // Zero Width Non-Breaking Space (BOM)
	}))
}

var folder = cases.Fold()

// Fold normalizes a string for keyword comparison across scripts and
// composed forms: NFKC normalization followed by Unicode case folding.
// "Straße" and "STRASSE" fold to the same value, as do composed and
// decomposed accents.
func Fold(s string) string {
	return folder.String(norm.NFKC.String(s))
}

// Company normalizes a company name for blacklist and apply-once matching.
// Inner whitespace runs collapse to a single space so "Acme  Corp" and
// "Acme Corp" compare equal.
func Company(s string) string {
	return strings.Join(strings.Fields(Token(s)), " ")
}

// Question normalizes a form question for saved-answer lookup. Punctuation
// is stripped so "Years of experience?" and "years of experience" share a key.
func Question(s string) string {
	folded := Fold(s)
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// MapHash takes any map[string]interface{} (search parameters, request
// fingerprints), deterministically marshals it using Go's built-in sorted
// json.Marshal algorithm, and returns a SHA-256 hexadecimal string.
// Used for stable cache keys and idempotency bindings.
func MapHash(m map[string]interface{}) (string, error) {
	if len(m) == 0 {
		return "", nil // Empty map has no hash signature
	}

	// Go 1.14+ json.Marshal guarantees deterministic map key sorting.
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}

	hash := sha256.Sum256(b)
	return hex.EncodeToString(hash[:]), nil
}
