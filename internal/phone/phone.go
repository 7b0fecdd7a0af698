// Package phone normalises subscriber numbers into the digits-only
// international form used as the identity key.
package phone

import (
	"errors"
	"strings"
)

const (
	minDigits = 8
	maxDigits = 15
)

// ErrInvalid is returned for input that cannot be a phone number.
var ErrInvalid = errors.New("invalid phone number")

// Normalize strips formatting and replaces a national trunk prefix "0" with
// countryCode, e.g. "0912 345 678" -> "84912345678". A leading "+" is dropped.
func Normalize(raw, countryCode string) (string, error) {
	var b strings.Builder
	for i, r := range strings.TrimSpace(raw) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0, r == ' ', r == '-', r == '(', r == ')', r == '.':
		default:
			return "", ErrInvalid
		}
	}
	digits := b.String()
	if strings.HasPrefix(digits, "0") {
		digits = countryCode + strings.TrimLeft(digits, "0")
	}
	if len(digits) < minDigits || len(digits) > maxDigits {
		return "", ErrInvalid
	}
	return digits, nil
}

// Mask hides all but the last three digits for logging.
func Mask(number string) string {
	if len(number) <= 3 {
		return strings.Repeat("*", len(number))
	}
	return strings.Repeat("*", len(number)-3) + number[len(number)-3:]
}
