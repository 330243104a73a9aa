// Package phone canonicalizes WhatsApp phone identifiers.
package phone

import (
	"strings"

	"leadflow/internal/constants"
)

// Normalizer inserts a default country code into national numbers.
type Normalizer struct {
	CountryCode string
}

// NewNormalizer returns a Normalizer for countryCode, falling back to the default.
func NewNormalizer(countryCode string) *Normalizer {
	cc := Digits(countryCode)
	if cc == "" {
		cc = constants.DefaultCountryCode
	}
	return &Normalizer{CountryCode: cc}
}

// Normalize returns the canonical digits-only form of raw, or "" when raw
// cannot be a phone number. Gateway suffixes such as "@c.us" are dropped,
// national trunk zeros stripped and the country code prepended to numbers
// that look national (10 or 11 digits).
func (n *Normalizer) Normalize(raw string) string {
	digits := Digits(stripJID(raw))
	digits = strings.TrimLeft(digits, "0")
	if digits == "" {
		return ""
	}

	if (len(digits) == 10 || len(digits) == 11) && !strings.HasPrefix(digits, n.CountryCode) {
		digits = n.CountryCode + digits
	}

	if len(digits) < constants.MinPhoneDigits || len(digits) > constants.MaxPhoneDigits {
		return ""
	}
	return digits
}

// E164 returns the normalized number with a leading "+".
func (n *Normalizer) E164(raw string) string {
	digits := n.Normalize(raw)
	if digits == "" {
		return ""
	}
	return "+" + digits
}

// Suffix returns the trailing digits used for fuzzy matching against stored
// numbers that may or may not carry the country code or mobile ninth digit.
func Suffix(raw string) string {
	digits := Digits(stripJID(raw))
	if len(digits) <= constants.PhoneMatchSuffixLen {
		return digits
	}
	return digits[len(digits)-constants.PhoneMatchSuffixLen:]
}

// Match reports whether a and b share a match suffix.
func Match(a, b string) bool {
	sa, sb := Suffix(a), Suffix(b)
	return len(sa) == constants.PhoneMatchSuffixLen && sa == sb
}

// Digits strips every non-digit rune.
func Digits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func stripJID(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '@'); i >= 0 {
		s = s[:i]
	}
	// multi-device ids look like 5511999998888:12
	if i := strings.IndexByte(s, ':'); i >= 0 {
		s = s[:i]
	}
	return s
}
