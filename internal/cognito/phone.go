package cognito

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// DefaultRegion is used for numbers written without a country code.
const DefaultRegion = "US"

// IsPhoneNumber reports whether raw looks like a phone number rather than an
// email or free text: digits with common separators and 10 to 15 digits.
func IsPhoneNumber(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false
	}
	digits := 0
	for i, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '+' && i == 0:
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		default:
			return false
		}
	}
	return digits >= 10 && digits <= 15
}

// NormalizePhone returns the E.164 form of raw, or "" when raw is not a
// phone number. Numbers without a country code are read as US numbers.
func NormalizePhone(raw string) string {
	return NormalizePhoneIn(raw, DefaultRegion)
}

// NormalizePhoneIn is NormalizePhone with an explicit default region.
func NormalizePhoneIn(raw, region string) string {
	if !IsPhoneNumber(raw) {
		return ""
	}
	if region == "" {
		region = DefaultRegion
	}
	num, err := phonenumbers.Parse(strings.TrimSpace(raw), region)
	if err != nil {
		return ""
	}
	return phonenumbers.Format(num, phonenumbers.E164)
}
