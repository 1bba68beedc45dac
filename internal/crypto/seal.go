package crypto

import (
	"fmt"

	"golang.org/x/crypto/nacl/box"
)

// Seal encrypts master to recipientXPub with an anonymous sealed box
// (libsodium crypto_box_seal). Anyone can seal; only the holder of the
// matching private key can open, and the opener learns nothing about who
// sealed it.
func Seal(master []byte, recipientXPub *[KeySize]byte) ([]byte, error) {
	ct, err := box.SealAnonymous(nil, master, recipientXPub, randSource())
	if err != nil {
		return nil, fmt.Errorf("seal master: %w", err)
	}
	return ct, nil
}

// Unseal opens a sealed box with the given X25519 keypair. Every failure
// returns ErrSealOpen and nothing else.
func Unseal(ciphertext []byte, kp *XKeypair) ([]byte, error) {
	if kp == nil || len(ciphertext) < box.AnonymousOverhead {
		return nil, ErrSealOpen
	}
	master, ok := box.OpenAnonymous(nil, ciphertext, &kp.Public, &kp.Private)
	if !ok {
		return nil, ErrSealOpen
	}
	return master, nil
}
