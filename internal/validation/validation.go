package validation

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	DefaultMaxMessageLength = 4000
	MaxDisplayNameLength    = 80
	MaxMajorLength          = 120
)

var groupIDRe = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,127}$`)

// NormalizeText trims the surrounding whitespace of a message body.
func NormalizeText(s string) string {
	return strings.TrimSpace(s)
}

// TextTooLong reports whether s has more than max characters.
func TextTooLong(s string, max int) bool {
	if max <= 0 {
		max = DefaultMaxMessageLength
	}
	return utf8.RuneCountInString(s) > max
}

// ValidateGroupID accepts identifiers in the form the directory derives.
func ValidateGroupID(id string) bool {
	return groupIDRe.MatchString(id)
}

// TrimAndLimit trims s and cuts it to at most max characters.
func TrimAndLimit(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:max]))
}
