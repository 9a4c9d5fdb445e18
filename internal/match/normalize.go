package match

import (
	"strings"
	"unicode"
)

// Mode selects the normalization policy used for a search pass.
type Mode int

const (
	// CaseSensitive strips punctuation and collapses whitespace but leaves
	// letter case untouched.
	CaseSensitive Mode = iota
	// CaseInsensitive additionally folds the input to lower case.
	CaseInsensitive
)

func (m Mode) String() string {
	if m == CaseInsensitive {
		return "case_insensitive"
	}
	return "case_sensitive"
}

// Normalize canonicalizes text for comparison: every character that is not an
// ASCII letter, digit, or whitespace is dropped, runs of whitespace collapse
// to a single space, and the ends are trimmed. CaseInsensitive mode
// lower-cases first. The function is pure and idempotent.
func Normalize(text string, mode Mode) string {
	if mode == CaseInsensitive {
		text = strings.ToLower(text)
	}
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
