package crypto

import (
	"encoding/base64"
	"strings"
)

// ToBase64URL encodes bytes as URL-safe base64 without padding. Every key,
// nonce, ciphertext and token on the wire uses this form.
func ToBase64URL(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

// FromBase64URL decodes strict unpadded URL-safe base64.
func FromBase64URL(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}

// DecodeBase64 decodes URL-safe base64 with or without padding. Values
// produced by other clients may carry padding.
func DecodeBase64(s string) ([]byte, error) {
	if strings.HasSuffix(s, "=") {
		return base64.URLEncoding.DecodeString(s)
	}
	return base64.RawURLEncoding.DecodeString(s)
}
