// Package crypto implements the sealdrop message protocol: key derivation,
// master sealing, conversation addressing and the sealed-sender envelope.
//
// # Key Hierarchy
//
// A user has two identities. The deterministic identity is derived from
// (email, password) with Argon2id and HKDF-SHA-256 and is recomputed at every
// login; it signs session tokens and opens the sealed master. The runtime
// identity is derived from a random 32-byte master created once at
// registration. The master is stored on the relay only as a sealed box
// addressed to the deterministic X25519 key, so the relay can never derive the
// runtime keys.
//
//   - Argon2id (t=3, m=64 MiB): password and master stretching.
//   - HKDF-SHA-256 with the fixed salt "hkdf-salt:v1": every subkey, each with
//     its own info label.
//   - Ed25519: message and token signatures.
//   - X25519: key agreement.
//   - crypto_box_seal compatible sealed boxes: the master.
//   - XChaCha20-Poly1305 (default) or AES-256-GCM: envelopes.
//
// # Envelopes
//
// The relay sees recipient id, conversation token, message id, client
// timestamp, ephemeral public key, nonce and ciphertext. The sender identity
// and its signature travel only inside the ciphertext. The ephemeral key of a
// message is derived from the conversation root, the sender's X25519 public
// key and the message id, which lets the sender reopen its own copies without
// storing per-message state. [Decrypt] therefore tries two hypotheses in a
// fixed order: sealed to me, then sealed by me.
//
// The deterministic ephemeral keys give no forward secrecy: compromise of a
// runtime X25519 private key exposes every message of its conversations.
//
// # Secrets
//
// Private keys, seeds and masters are zeroed with memguard when their owner
// is wiped. They must never be logged.
package crypto
