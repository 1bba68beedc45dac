package crypto

import (
	"fmt"

	"github.com/awnumar/memguard"
)

// Conversation addresses the message bucket shared by two parties.
//
// Root is symmetric: X25519(a, B) == X25519(b, A), so both parties derive the
// same Root and Token without negotiating. The relay only ever sees Token.
type Conversation struct {
	Root     []byte
	Token    string
	PeerXPub [KeySize]byte
}

// DeriveConversation computes the conversation root and token for
// (myXPriv, peerXPub).
func DeriveConversation(myXPriv, peerXPub *[KeySize]byte) (*Conversation, error) {
	shared, err := X25519(myXPriv, peerXPub)
	if err != nil {
		return nil, err
	}
	defer memguard.WipeBytes(shared)

	root, err := derive32(shared, LabelConvRoot)
	if err != nil {
		return nil, fmt.Errorf("derive conversation root: %w", err)
	}

	token, err := derive32(root, LabelConvID)
	if err != nil {
		memguard.WipeBytes(root)
		return nil, fmt.Errorf("derive conversation token: %w", err)
	}

	return &Conversation{
		Root:     root,
		Token:    ToBase64URL(token),
		PeerXPub: *peerXPub,
	}, nil
}

// Wipe zeroes the conversation root.
func (c *Conversation) Wipe() {
	if c == nil {
		return
	}
	memguard.WipeBytes(c.Root)
}

// DeriveDeterministicEphemeral derives the per-message ephemeral keypair
// from (root, senderXPub, msgID). The sender never stores it: it is
// recomputed from values the sender already holds whenever its own copy of
// a message has to be opened.
//
// The ephemeral private key is recomputable from static secrets, so these
// keys give no forward secrecy.
func DeriveDeterministicEphemeral(root []byte, senderXPub *[KeySize]byte, msgID string) (*XKeypair, error) {
	if len(root) != KeySize {
		return nil, fmt.Errorf("%w: conversation root is %d bytes", ErrInvalidKeySize, len(root))
	}
	info := LabelDEDK + msgID + "|" + ToBase64URL(senderXPub[:])
	seed, err := derive32(root, info)
	if err != nil {
		return nil, fmt.Errorf("derive ephemeral seed: %w", err)
	}
	defer memguard.WipeBytes(seed)

	return NewXKeypair(seed), nil
}
