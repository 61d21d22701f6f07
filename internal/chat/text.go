package chat

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// NormalizeText trims surrounding whitespace and converts text to Unicode
// NFC, so visually identical messages are stored byte-identically.
func NormalizeText(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}

// Preview shortens s to at most n runes, marking the cut with "…".
func Preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n-1]) + "…"
}
