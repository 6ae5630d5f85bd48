package state

import "unicode/utf8"

// ellipsis marks text that was cut.
const ellipsis = "…"

// Truncate keeps at most limit runes of s, marking the cut with an ellipsis.
// A non-positive limit disables truncation.
func Truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	if limit <= 1 {
		return string(runes[:limit])
	}
	return string(runes[:limit-1]) + ellipsis
}
