package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// NonceSize returns the nonce size for alg.
func NonceSize(alg Algorithm) (int, error) {
	switch alg {
	case AlgXChaCha20Poly1305:
		return chacha20poly1305.NonceSizeX, nil
	case AlgAES256GCM:
		return AESNonceSize, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidAlgorithm, alg)
	}
}

func newAEAD(alg Algorithm, key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInvalidKeySize, len(key), KeySize)
	}

	switch alg {
	case AlgXChaCha20Poly1305:
		return chacha20poly1305.NewX(key)
	case AlgAES256GCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("failed to create cipher: %w", err)
		}
		return cipher.NewGCM(block)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidAlgorithm, alg)
	}
}

// sealAEAD encrypts plaintext under key and nonce, authenticating aad.
func sealAEAD(alg Algorithm, key, nonce, plaintext, aad []byte) ([]byte, error) {
	aead, err := newAEAD(alg, key)
	if err != nil {
		return nil, err
	}

	if len(nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInvalidNonceSize, len(nonce), aead.NonceSize())
	}

	return aead.Seal(nil, nonce, plaintext, aad), nil
}

// openAEAD decrypts ciphertext. Authentication failures return
// ErrDecryptionFailed.
func openAEAD(alg Algorithm, key, nonce, ciphertext, aad []byte) ([]byte, error) {
	aead, err := newAEAD(alg, key)
	if err != nil {
		return nil, err
	}

	if len(nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInvalidNonceSize, len(nonce), aead.NonceSize())
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	return plaintext, nil
}
