package crypto

import (
	"crypto/ed25519"
	"crypto/subtle"
	"io"

	"github.com/awnumar/memguard"
	"github.com/cloudflare/circl/dh/x25519"
)

// randReader is the random source used for salts, masters, nonces and
// message ids. It defaults to nil (which uses crypto/rand) but can be
// overridden for testing.
var randReader io.Reader

// EdKeypair is an Ed25519 signing keypair.
type EdKeypair struct {
	Private ed25519.PrivateKey
	Public  ed25519.PublicKey
}

// XKeypair is an X25519 key agreement keypair. Private is stored clamped.
type XKeypair struct {
	Private [KeySize]byte
	Public  [KeySize]byte
}

// Identity is the password-derived identity. It signs session tokens and
// opens the sealed master.
type Identity struct {
	Email string
	Ed    *EdKeypair
	X     *XKeypair
	Salt  []byte
}

// RuntimeIdentity holds the messaging keys derived from the random master.
type RuntimeIdentity struct {
	Ed *EdKeypair
	X  *XKeypair
}

// newEdKeypair expands a 32-byte seed into an Ed25519 keypair.
func newEdKeypair(seed []byte) *EdKeypair {
	priv := ed25519.NewKeyFromSeed(seed)
	return &EdKeypair{
		Private: priv,
		Public:  priv.Public().(ed25519.PublicKey),
	}
}

// NewXKeypair builds an X25519 keypair from a 32-byte seed. The seed is
// clamped before use; the input slice is not modified.
func NewXKeypair(seed []byte) *XKeypair {
	kp := &XKeypair{}
	copy(kp.Private[:], seed)
	clamp(&kp.Private)

	var pub, priv x25519.Key
	priv = kp.Private
	x25519.KeyGen(&pub, &priv)
	kp.Public = pub
	memguard.WipeBytes(priv[:])

	return kp
}

func clamp(k *[KeySize]byte) {
	k[0] &= 248
	k[31] &= 127
	k[31] |= 64
}

// X25519 computes the shared secret between a private scalar and a peer
// public key. All-zero results (low-order peer points) are rejected.
func X25519(private, peerPublic *[KeySize]byte) ([]byte, error) {
	var shared x25519.Key
	if !x25519.Shared(&shared, (*x25519.Key)(private), (*x25519.Key)(peerPublic)) {
		return nil, ErrInvalidPublicKey
	}
	out := make([]byte, KeySize)
	copy(out, shared[:])
	memguard.WipeBytes(shared[:])
	return out, nil
}

// PublicKeyFromBytes validates and copies a 32-byte X25519 public key.
func PublicKeyFromBytes(b []byte) (*[KeySize]byte, error) {
	if len(b) != KeySize {
		return nil, ErrInvalidPublicKey
	}
	var pk [KeySize]byte
	copy(pk[:], b)
	return &pk, nil
}

// Equal reports whether two public keys are identical in constant time.
func (k *XKeypair) Equal(pub []byte) bool {
	return subtle.ConstantTimeCompare(k.Public[:], pub) == 1
}

// Wipe zeroes the private halves of the keypair.
func (k *EdKeypair) Wipe() {
	if k == nil {
		return
	}
	memguard.WipeBytes(k.Private)
	k.Private = nil
}

// Wipe zeroes the private scalar.
func (k *XKeypair) Wipe() {
	if k == nil {
		return
	}
	memguard.WipeBytes(k.Private[:])
}

// Wipe zeroes all private key material held by the identity.
func (id *Identity) Wipe() {
	if id == nil {
		return
	}
	id.Ed.Wipe()
	id.X.Wipe()
}

// Wipe zeroes all private key material held by the runtime identity.
func (r *RuntimeIdentity) Wipe() {
	if r == nil {
		return
	}
	r.Ed.Wipe()
	r.X.Wipe()
}
