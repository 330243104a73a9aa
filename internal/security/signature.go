package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	stderrors "errors"
	"hash"
	"strings"
)

var (
	ErrMissingSignature   = stderrors.New("missing signature")
	ErrMalformedSignature = stderrors.New("malformed signature")
	ErrSignatureMismatch  = stderrors.New("signature mismatch")
)

// VerifySignature checks header against an HMAC of body keyed by secret.
// Accepted forms are "sha256=<hex>", "sha512=<hex>" and a bare sha256 hex
// digest. The comparison is constant time.
func VerifySignature(body []byte, secret, header string) error {
	header = strings.TrimSpace(header)
	if header == "" {
		return ErrMissingSignature
	}

	newHash := sha256.New
	digest := header
	if algo, hexDigest, ok := strings.Cut(header, "="); ok {
		switch strings.ToLower(algo) {
		case "sha256":
		case "sha512":
			newHash = sha512.New
		default:
			return ErrMalformedSignature
		}
		digest = hexDigest
	}

	expected, err := hex.DecodeString(digest)
	if err != nil {
		return ErrMalformedSignature
	}
	if !hmac.Equal(Sign(body, secret, newHash), expected) {
		return ErrSignatureMismatch
	}
	return nil
}

// Sign computes the raw HMAC of body.
func Sign(body []byte, secret string, newHash func() hash.Hash) []byte {
	mac := hmac.New(newHash, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}

// SignatureHeader formats the sha256 signature header value for body.
func SignatureHeader(body []byte, secret string) string {
	return "sha256=" + hex.EncodeToString(Sign(body, secret, sha256.New))
}
