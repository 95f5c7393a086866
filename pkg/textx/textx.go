// Package textx provides small text utilities used across the project.
package textx

import (
	"strings"
	"unicode/utf8"
)

// SanitizeText removes control characters except tab/newline/CR and trims spaces.
func SanitizeText(s string) string {
	// strip control chars outside tab/newline/carriage return
	var b strings.Builder
	for _, r := range s {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// TailString keeps at most max trailing bytes of b and decodes them as UTF-8,
// replacing invalid sequences (including a rune cut in half by the byte cap)
// with the Unicode replacement character.
func TailString(b []byte, max int) string {
	if max < 0 {
		max = 0
	}
	if len(b) > max {
		b = b[len(b)-max:]
	}
	if utf8.Valid(b) {
		return string(b)
	}
	return strings.ToValidUTF8(string(b), string(utf8.RuneError))
}
