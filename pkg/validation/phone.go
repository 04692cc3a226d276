package validation

import (
	"fmt"
	"regexp"
	"strings"
)

var e164Regex = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)

func ValidateE164(phone string) error {
	if phone == "" {
		return fmt.Errorf("phone number is required")
	}

	phone = strings.TrimSpace(phone)

	if !e164Regex.MatchString(phone) {
		return fmt.Errorf("phone number must be in E.164 format (e.g., +919876543210)")
	}

	return nil
}

// NormalizeE164 accepts Indian national formats (10 digits, 91-prefixed,
// 0-prefixed) as well as full E.164 numbers.
func NormalizeE164(phone string) (string, error) {
	phone = strings.TrimSpace(phone)
	phone = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(phone)

	if !strings.HasPrefix(phone, "+") {
		switch {
		case strings.HasPrefix(phone, "91") && len(phone) == 12:
			phone = "+" + phone
		case strings.HasPrefix(phone, "0") && len(phone) == 11:
			phone = "+91" + phone[1:]
		case len(phone) == 10:
			phone = "+91" + phone
		default:
			return "", fmt.Errorf("cannot normalize phone number: %s", phone)
		}
	}

	if err := ValidateE164(phone); err != nil {
		return "", err
	}

	return phone, nil
}

// SplitNumbers splits a comma- or newline-separated list, dropping blanks.
func SplitNumbers(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == '\n' || r == '\r'
	})
	numbers := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			numbers = append(numbers, f)
		}
	}
	return numbers
}
