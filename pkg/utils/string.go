package utils

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// SanitizeString sanitizes a string for safe use
func SanitizeString(s string) string {
	// Remove control characters
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, s)

	return strings.TrimSpace(s)
}

// TruncateString truncates a string to max runes
func TruncateString(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// DisplayNameOr returns a sanitized display name, or fallback when nothing
// printable is left.
func DisplayNameOr(name, fallback string, maxLen int) string {
	name = SanitizeString(strings.ReplaceAll(strings.ReplaceAll(name, "\n", " "), "\t", " "))
	if name == "" {
		return fallback
	}
	return TruncateString(name, maxLen)
}
