package logutil

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// maxLogValue caps how much of a client-supplied value reaches the logs.
const maxLogValue = 256

// Sanitize makes a client-supplied string safe to log: line breaks and
// tabs become spaces, other control characters are dropped and the result
// is truncated.
func Sanitize(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '\n', r == '\r', r == '\t':
			return ' '
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, s)
	if len(s) > maxLogValue {
		cut := maxLogValue
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut] + "..."
	}
	return s
}
