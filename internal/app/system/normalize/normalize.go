// Package normalize provides helper functions for consistent string normalization
// across the application. Use these helpers instead of scattered strings.ToLower
// and strings.TrimSpace calls so stored values and lookups always agree.
package normalize

import (
	"strings"
	"unicode"
)

// Email normalizes an email address by trimming whitespace and converting to lowercase.
// This is the canonical way to normalize emails before storage or comparison.
func Email(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Name normalizes a display name by trimming and collapsing inner whitespace.
func Name(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Role normalizes a role value to its stored upper-case form.
func Role(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Country normalizes an ISO country code to lowercase.
func Country(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// DNI trims a national identity document number.
// Inner characters are left untouched so validation can reject them.
func DNI(s string) string {
	return strings.TrimSpace(s)
}

// Phone strips the formatting characters phone inputs commonly add
// (spaces, dashes, dots, parentheses and a leading plus sign).
func Phone(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "+")
	return strings.Map(func(r rune) rune {
		switch {
		case unicode.IsSpace(r), r == '-', r == '.', r == '(', r == ')':
			return -1
		}
		return r
	}, s)
}

// Provider normalizes an OAuth provider id ("Google " → "google").
func Provider(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
