package crypto

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// DeriveKey derives length bytes from secret using HKDF-SHA-256 with the
// protocol salt and the given info label.
func DeriveKey(secret []byte, info string, length int) ([]byte, error) {
	reader := hkdf.New(sha256.New, secret, []byte(HKDFSalt), []byte(info))
	key := make([]byte, length)

	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}

	return key, nil
}

// derive32 is DeriveKey for the common 32-byte case.
func derive32(secret []byte, info string) ([]byte, error) {
	return DeriveKey(secret, info, KeySize)
}
