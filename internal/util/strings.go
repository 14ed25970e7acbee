package util

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// ToValidUTF8 returns s as valid UTF-8. Invalid input is decoded as Latin-1,
// the usual encoding of legacy inventory exports, so names like "Gerät" keep
// their umlauts instead of turning into replacement characters.
func ToValidUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	if decoded, err := charmap.ISO8859_1.NewDecoder().String(s); err == nil {
		return decoded
	}
	runes := make([]rune, len(s))
	for i := 0; i < len(s); i++ {
		runes[i] = rune(s[i])
	}
	return string(runes)
}

// CellText prepares a value for a single table cell: valid UTF-8, control
// characters and line breaks folded into spaces.
func CellText(s string) string {
	s = ToValidUTF8(s)
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s)
}

// Truncate shortens s to at most width runes, marking the cut with "…".
func Truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= width {
		return s
	}
	runes := []rune(s)
	if width == 1 {
		return "…"
	}
	return string(runes[:width-1]) + "…"
}
