package utils

import (
	"regexp"
	"strings"
)

var e164Parts = regexp.MustCompile(`^(\+)(\d{1,3})(\d{3})(\d+)$`)

// MaskPhoneNumber masks a phone number for logging
// Example: +919876543210 -> +919876••3210
func MaskPhoneNumber(phone string) string {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return ""
	}

	// Keep country code and the first three digits, mask the middle, keep the last four.
	if matches := e164Parts.FindStringSubmatch(phone); len(matches) == 5 {
		lastDigits := matches[4]
		if len(lastDigits) >= 4 {
			last4 := lastDigits[len(lastDigits)-4:]
			masked := strings.Repeat("•", len(lastDigits)-4)
			return "+" + matches[2] + matches[3] + masked + last4
		}
	}

	if len(phone) > 4 {
		return strings.Repeat("•", len(phone)-4) + phone[len(phone)-4:]
	}
	return strings.Repeat("•", len(phone))
}
