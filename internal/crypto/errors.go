package crypto

import (
	"errors"
	"fmt"
)

var (
	// ErrWeakPassword is returned when a password is shorter than
	// MinPasswordLength characters.
	ErrWeakPassword = errors.New("password must be at least 12 characters")

	// ErrMissingPassword is wrapped in a *KeyDerivationError when no
	// password is given at all.
	ErrMissingPassword = errors.New("password is required")

	// ErrKeyDerivation is matched by every *KeyDerivationError.
	ErrKeyDerivation = errors.New("key derivation failed")

	// ErrSealOpen is returned when a sealed box cannot be opened. It carries
	// no detail: a wrong password and a corrupted ciphertext look the same.
	ErrSealOpen = errors.New("failed to open sealed master")

	// ErrDecryptionFailed is returned when no decryption hypothesis opens
	// an envelope.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrMalformedEnvelope is returned when an envelope or its decrypted
	// payload is structurally invalid.
	ErrMalformedEnvelope = errors.New("malformed envelope")

	// ErrInvalidPublicKey is returned when a curve point is the wrong size
	// or produces an all-zero shared secret.
	ErrInvalidPublicKey = errors.New("invalid public key")

	// ErrInvalidKeySize is returned when the AEAD key size is invalid.
	ErrInvalidKeySize = errors.New("invalid key size")

	// ErrInvalidNonceSize is returned when the nonce size is invalid.
	ErrInvalidNonceSize = errors.New("invalid nonce size")

	// ErrInvalidAlgorithm is returned when an unrecognized AEAD is named.
	ErrInvalidAlgorithm = errors.New("invalid algorithm")
)

// KeyDerivationError reports a fatal failure in the password hashing or
// HKDF pipeline.
type KeyDerivationError struct {
	Stage string // "params", "random", "argon2id", "hkdf"
	Err   error
}

func (e *KeyDerivationError) Error() string {
	return fmt.Sprintf("key derivation failed at %s: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying error.
func (e *KeyDerivationError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is for sentinel error matching.
func (e *KeyDerivationError) Is(target error) bool {
	return target == ErrKeyDerivation
}
