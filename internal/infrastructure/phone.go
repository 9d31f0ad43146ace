package infrastructure

import "strings"

// DefaultCountryCode is prepended to bare 10-digit national numbers
const DefaultCountryCode = "91"

// NormalizeWAPhone canonicalizes a phone number for the messaging API:
// digits only, no leading zeros, country code added to 10-digit numbers.
// "0091-9876543210" becomes "919876543210". The result is stable under
// repeated normalization.
func NormalizeWAPhone(phone string) string {
	if phone == "" {
		return ""
	}
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := strings.TrimLeft(b.String(), "0")
	if len(digits) == 10 {
		digits = DefaultCountryCode + digits
	}
	return digits
}

// ConversationKey normalizes a phone number for conversation lookups.
// It keeps digits and a leading plus sign and never inserts a country code.
func ConversationKey(phone string) string {
	phone = strings.TrimSpace(phone)
	var b strings.Builder
	if strings.HasPrefix(phone, "+") {
		b.WriteByte('+')
	}
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 1 && strings.HasPrefix(b.String(), "+") {
		return ""
	}
	return b.String()
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}
