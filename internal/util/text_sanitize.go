package util

import "strings"

// SanitizeText strips runes that Postgres text columns reject. PDF extractors
// in particular leak NUL and other C0 controls into extracted text; tab and
// newline whitespace survive, everything else below 0x20 and DEL is dropped.
func SanitizeText(s string) string {
	if s == "" {
		return s
	}
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', '\t':
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(cleaned)
}
