package payment

import (
	"regexp"
	"strings"
	"unicode"
)

const countryCode = "254"

var normalizedPhone = regexp.MustCompile(`^254\d{9}$`)

// NormalizePhone rewrites a Kenyan subscriber number into the 254XXXXXXXXX
// form the gateway expects. Input that matches no rule is returned with
// separators removed and nothing else changed.
func NormalizePhone(raw string) string {
	phone := strings.TrimPrefix(stripSeparators(raw), "+")

	switch {
	case len(phone) >= 2 && phone[0] == '0' && strings.ContainsRune("167", rune(phone[1])):
		return countryCode + phone[1:]
	case !strings.HasPrefix(phone, countryCode):
		return countryCode + phone
	default:
		return phone
	}
}

func isValidPhone(phone string) bool {
	return normalizedPhone.MatchString(phone)
}

func stripSeparators(raw string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '-' || r == '(' || r == ')' {
			return -1
		}
		return r
	}, raw)
}
