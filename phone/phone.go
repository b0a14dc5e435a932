// Package phone normalizes Kenyan mobile numbers to the 254XXXXXXXXX form
// expected by the M-Pesa login endpoints.
package phone

import "strings"

const countryCode = "254"

// Normalize strips every non-digit character from raw and rewrites local
// Kenyan formats to the international 254 prefix. The first matching rule
// wins; input that matches no rule is returned as bare digits.
func Normalize(raw string) string {
	digits := Digits(raw)

	switch {
	case strings.HasPrefix(digits, "0") && len(digits) == 10:
		return countryCode + digits[1:]
	case strings.HasPrefix(digits, "7") && len(digits) == 9:
		return countryCode + digits
	case strings.HasPrefix(digits, countryCode) && len(digits) == 12:
		return digits
	case len(digits) == 9:
		return countryCode + digits
	}

	return digits
}

// Digits returns raw with every byte outside '0'..'9' removed.
func Digits(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for i := 0; i < len(raw); i++ {
		if c := raw[i]; c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Valid reports whether n is already in the 254XXXXXXXXX form.
func Valid(n string) bool {
	return len(n) == 12 && strings.HasPrefix(n, countryCode) && Digits(n) == n
}
