package security

import (
	"crypto/sha512"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"message_id":"m1"}`)
	secret := "0123456789abcdef0123456789abcdef"
	valid := SignatureHeader(body, secret)

	tests := []struct {
		name    string
		header  string
		body    []byte
		wantErr error
	}{
		{"valid prefixed", valid, body, nil},
		{"valid bare hex", valid[len("sha256="):], body, nil},
		{"valid uppercase algo", "SHA256=" + valid[len("sha256="):], body, nil},
		{"valid sha512", "sha512=" + hex.EncodeToString(Sign(body, secret, sha512.New)), body, nil},
		{"missing", "", body, ErrMissingSignature},
		{"unknown algo", "md5=abcd", body, ErrMalformedSignature},
		{"not hex", "sha256=zzzz", body, ErrMalformedSignature},
		{"tampered body", valid, []byte(`{"message_id":"m2"}`), ErrSignatureMismatch},
		{"wrong secret", SignatureHeader(body, "another-secret-another-secret-00"), body, ErrSignatureMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifySignature(tt.body, secret, tt.header)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}
