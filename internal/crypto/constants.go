package crypto

const (
	// ProtocolVersion is the envelope and message body version.
	ProtocolVersion = 1

	// KDFSuiteVersion describes the password hashing and HKDF suite. It is
	// stored alongside the user record so a relay can report which suite a
	// sealed master was produced with.
	KDFSuiteVersion = "v1;a2id:t=3,m=64;hkdf:v1"

	// HKDFSalt is the fixed HKDF salt used for every derivation step.
	HKDFSalt = "hkdf-salt:v1"

	// Deterministic identity labels (password derived).
	LabelEdSeed = "ed25519-seed:v1"
	LabelXSeed  = "x25519-seed:v1"

	// Runtime identity labels (random master derived).
	LabelEdSeedRand = "ed25519-seed:rand:v1"
	LabelXSeedRand  = "x25519-seed:rand:v1"

	// Conversation addressing labels.
	LabelConvRoot = "conv-root:v1"
	LabelConvID   = "conv-id:v1"

	// LabelDEDK prefixes the deterministic ephemeral key derivation info:
	// "dedk:sk|" + msg_id + "|" + base64url(senderXPub).
	LabelDEDK = "dedk:sk|"

	// LabelMessageKey prefixes the per-message AEAD key derivation info.
	LabelMessageKey = "msg-key:v1|"

	// ContextPrefix starts the signed context string binding recipient,
	// ephemeral key and message id.
	ContextPrefix = "ctx:v1"

	// AADPrefix starts the AEAD associated data binding the relay-visible
	// envelope header.
	AADPrefix = "env:v1"

	// KeySize is the size of every symmetric key, seed and curve key.
	KeySize = 32
	// SaltSize is the Argon2id salt size.
	SaltSize = 16
	// MessageIDSize is the raw size of a message id before hex encoding.
	MessageIDSize = 16

	// MinPasswordLength is the minimum password length in characters.
	MinPasswordLength = 12

	// AESNonceSize is the size of an AES-GCM nonce in bytes.
	AESNonceSize = 12
)

// Algorithm identifies the AEAD applied to an envelope.
type Algorithm string

const (
	// AlgXChaCha20Poly1305 is the default envelope AEAD (24-byte nonce).
	AlgXChaCha20Poly1305 Algorithm = "xchacha20poly1305"
	// AlgAES256GCM is AES-256-GCM (12-byte nonce).
	AlgAES256GCM Algorithm = "aes-256-gcm"
)
