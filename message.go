package sealdrop

import (
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/sealdrop/client-go/internal/api"
	"github.com/sealdrop/client-go/internal/crypto"
)

// Direction is the direction of a message relative to the session owner.
type Direction = crypto.Direction

const (
	// DirectionIn marks a message someone else sent to me.
	DirectionIn = crypto.DirectionIn
	// DirectionOut marks my own message, including notes to self.
	DirectionOut = crypto.DirectionOut
)

// User is a public directory entry.
type User struct {
	Email       string
	RecipientID string
	// EncryptionKey is the X25519 messaging key.
	EncryptionKey [crypto.KeySize]byte
	// SigningKey is the password-derived Ed25519 key that signs the user's
	// session tokens.
	SigningKey ed25519.PublicKey
}

// Fingerprint returns a short digest of the user's public keys for
// comparison over another channel.
func (u *User) Fingerprint() string {
	return crypto.Fingerprint(u.SigningKey, u.EncryptionKey[:])
}

func userFromAPI(out api.UserOut) (*User, error) {
	xPub, err := crypto.DecodeBase64(out.EncPubRand)
	if err != nil || len(xPub) != crypto.KeySize {
		return nil, fmt.Errorf("directory entry for %s: bad encryption key", out.Email)
	}
	edPub, err := crypto.DecodeBase64(out.SignPubDet)
	if err != nil || len(edPub) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("directory entry for %s: bad signing key", out.Email)
	}

	u := &User{
		Email:       crypto.NormalizeEmail(out.Email),
		RecipientID: out.RecipientID,
		SigningKey:  ed25519.PublicKey(edPub),
	}
	copy(u.EncryptionKey[:], xPub)
	return u, nil
}

// Message is a decrypted envelope.
type Message struct {
	// ID is the relay id of the stored envelope. It is empty for a message
	// returned by Send.
	ID string
	// MsgID is the sender-chosen 16-byte message id in hex.
	MsgID     string
	ConvToken string

	// From is the sender email claimed inside the signed body.
	From string
	// Peer is the other party: the sender for incoming messages and the
	// recipient for outgoing ones.
	Peer string
	Text string

	// SentAt is the sender's clock and only advisory. StoredAt is the
	// relay's clock.
	SentAt   time.Time
	StoredAt time.Time

	Direction Direction
	// Verified is false when the envelope opened but its signature or
	// bindings did not check out. Problem says why.
	Verified bool
	Problem  string
}

// Err returns a *SignatureVerificationError for an unverified message and
// nil otherwise.
func (m *Message) Err() error {
	if m.Verified {
		return nil
	}
	return &SignatureVerificationError{MsgID: m.MsgID, Message: m.Problem}
}

func (m *Message) key() string {
	if m.ID != "" {
		return m.ID
	}
	return m.ConvToken + "/" + m.MsgID
}

// newMessage converts an opened envelope. peer names the conversation peer
// for outgoing messages; incoming messages take their peer from the body.
func newMessage(o *crypto.Opened, selfEmail, peer string) *Message {
	m := &Message{
		ID:        o.Envelope.ID,
		MsgID:     o.Envelope.MsgID,
		ConvToken: o.Envelope.ConvToken,
		SentAt:    o.Envelope.TSClient,
		StoredAt:  o.Envelope.TSServer,
		Direction: o.Direction,
		Verified:  o.OK,
		Problem:   o.Problem,
	}
	if o.Body != nil {
		m.From = crypto.NormalizeEmail(o.Body.SenderEmail)
		m.Text = o.Body.Message
		m.SentAt = o.Body.TSClient
	}

	switch {
	case o.Hypothesis == crypto.HypothesisOutgoing:
		m.Peer = peer
	case o.Direction == crypto.DirectionOut:
		m.Peer = selfEmail
	default:
		m.Peer = m.From
	}
	return m
}

func (m *Message) flag(problem string) {
	if !m.Verified {
		return
	}
	m.Verified = false
	m.Problem = problem
}
