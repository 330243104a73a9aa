package phone

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	n := NewNormalizer("")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"full international", "5511999998888", "5511999998888"},
		{"with plus and formatting", "+55 (11) 99999-8888", "5511999998888"},
		{"national mobile", "11999998888", "5511999998888"},
		{"national landline", "1133334444", "551133334444"},
		{"trunk zero", "011999998888", "5511999998888"},
		{"gateway jid", "5511999998888@c.us", "5511999998888"},
		{"multi-device jid", "5511999998888:3@s.whatsapp.net", "5511999998888"},
		{"foreign international kept", "447911123456", "447911123456"},
		{"too short", "12345", ""},
		{"too long", "1234567890123456", ""},
		{"empty", "", ""},
		{"letters only", "abc", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, n.Normalize(tt.input))
		})
	}
}

func TestNormalize_CustomCountry(t *testing.T) {
	n := NewNormalizer("+351")
	assert.Equal(t, "351", n.CountryCode)
	assert.Equal(t, "3512123456789", n.Normalize("2123456789"))
}

func TestE164(t *testing.T) {
	n := NewNormalizer("55")
	assert.Equal(t, "+5511999998888", n.E164("11 99999-8888"))
	assert.Equal(t, "", n.E164("1"))
}

func TestSuffixAndMatch(t *testing.T) {
	assert.Equal(t, "99998888", Suffix("5511999998888@c.us"))
	assert.Equal(t, "1234", Suffix("1234"))

	assert.True(t, Match("5511999998888", "(11) 99999-8888"))
	assert.True(t, Match("551199998888", "5511999998888"))
	assert.False(t, Match("5511999998888", "5511999997777"))
	assert.False(t, Match("1234", "1234"))
}

func TestDigits(t *testing.T) {
	assert.Equal(t, "5511", Digits("+55 (11)"))
	assert.Equal(t, "", Digits("--"))
}
