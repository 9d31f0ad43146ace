package http

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Input validation constants
const (
	MaxIDLength           = 128
	MaxPhoneLength        = 32
	MaxTemplateNameLength = 512
	MaxTemplateParams     = 10
	MaxTestInput          = 1024
	MaxLogTail            = 50
)

var (
	idPattern    = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)
	phonePattern = regexp.MustCompile(`^\+?[0-9 ()-]+$`)
)

// ValidID checks that a flow id or lead id is safe to use as a record key
func ValidID(s string) bool {
	if s == "" || len(s) > MaxIDLength || strings.Contains(s, "..") {
		return false
	}
	return idPattern.MatchString(s)
}

// ValidPhone accepts digits with an optional leading plus and common separators
func ValidPhone(s string) bool {
	if s == "" || len(s) > MaxPhoneLength {
		return false
	}
	return phonePattern.MatchString(s)
}

// SanitizeString removes null bytes and invalid UTF-8
func SanitizeString(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")

	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for _, r := range s {
			if r != utf8.RuneError {
				v = append(v, r)
			}
		}
		s = string(v)
	}
	return s
}

// TruncateString truncates s to at most maxLen runes
func TruncateString(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen])
}

// ValidateLength checks if string is within bounds
func ValidateLength(s string, min, max int) bool {
	l := utf8.RuneCountInString(s)
	return l >= min && l <= max
}
