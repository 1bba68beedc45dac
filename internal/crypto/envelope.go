package crypto

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"time"

	"github.com/awnumar/memguard"
)

// Recipient is the public half of a message recipient.
type Recipient struct {
	// ID is the relay recipient id.
	ID string
	// XPub is the recipient's runtime X25519 public key.
	XPub [KeySize]byte
}

// EncryptOptions tunes Encrypt. The zero value uses XChaCha20-Poly1305 and
// the wall clock.
type EncryptOptions struct {
	Alg Algorithm
	Now func() time.Time
}

// Sealed is the output of Encrypt: the envelope for the relay and the body
// the sender signed.
type Sealed struct {
	Envelope *Envelope
	Body     *Body
}

// Encrypt seals text from sender to rcpt inside conv.
//
// The ephemeral key is the deterministic ephemeral for
// (conv.Root, sender X25519 public key, msg_id), so the sender can reopen its
// own copy later without storing anything.
func Encrypt(sender *RuntimeIdentity, senderEmail string, rcpt Recipient, conv *Conversation, text string, opts EncryptOptions) (*Sealed, error) {
	if sender == nil || sender.Ed == nil || sender.X == nil || sender.Ed.Private == nil {
		return nil, fmt.Errorf("encrypt: sender keys are not available")
	}
	if conv == nil || conv.PeerXPub != rcpt.XPub {
		return nil, fmt.Errorf("encrypt: conversation does not belong to recipient")
	}

	alg := opts.Alg
	if alg == "" {
		alg = AlgXChaCha20Poly1305
	}
	nonceSize, err := NonceSize(alg)
	if err != nil {
		return nil, err
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	msgID, err := NewMessageID()
	if err != nil {
		return nil, err
	}

	// 1. Deterministic ephemeral and shared secret with the recipient.
	eph, err := DeriveDeterministicEphemeral(conv.Root, &sender.X.Public, msgID)
	if err != nil {
		return nil, err
	}
	defer eph.Wipe()

	shared, err := X25519(&eph.Private, &rcpt.XPub)
	if err != nil {
		return nil, fmt.Errorf("recipient key: %w", err)
	}
	defer memguard.WipeBytes(shared)

	// 2. Body and context.
	ts := now().UTC()
	body := &Body{
		V:           ProtocolVersion,
		TSClient:    ts,
		MsgID:       msgID,
		SenderEmail: senderEmail,
		SenderPubEd: ToBase64URL(sender.Ed.Public),
		SenderPubX:  ToBase64URL(sender.X.Public[:]),
		Message:     text,
	}
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal body: %w", err)
	}
	ctxBytes := BuildContext(rcpt.XPub[:], eph.Public[:], msgID)

	// 3. Sign body || context.
	sig := ed25519.Sign(sender.Ed.Private, signingInput(bodyBytes, ctxBytes))

	inner, err := json.Marshal(innerPayload{
		Body:    ToBase64URL(bodyBytes),
		Sig:     ToBase64URL(sig),
		Context: ToBase64URL(ctxBytes),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	// 4. Per-message key.
	key, err := messageKey(shared, msgID)
	if err != nil {
		return nil, err
	}
	defer memguard.WipeBytes(key)

	// 5. AEAD with a fresh nonce.
	nonce := make([]byte, nonceSize)
	if err := readRandom(nonce); err != nil {
		return nil, err
	}
	ephB64 := ToBase64URL(eph.Public[:])
	ct, err := sealAEAD(alg, key, nonce, inner, buildAAD(rcpt.ID, conv.Token, msgID, ephB64))
	if err != nil {
		return nil, err
	}

	return &Sealed{
		Envelope: &Envelope{
			V:           ProtocolVersion,
			RecipientID: rcpt.ID,
			ConvToken:   conv.Token,
			TSClient:    ts,
			MsgID:       msgID,
			EphPub:      ephB64,
			Nonce:       ToBase64URL(nonce),
			Ciphertext:  ToBase64URL(ct),
			Alg:         alg,
		},
		Body: body,
	}, nil
}

// Hypothesis names the way an envelope was opened.
type Hypothesis int

const (
	// HypothesisIncoming: the envelope was sealed to my static key.
	HypothesisIncoming Hypothesis = iota + 1
	// HypothesisOutgoing: the envelope is my own copy, sealed with my
	// deterministic ephemeral to the peer's static key.
	HypothesisOutgoing
)

func (h Hypothesis) String() string {
	switch h {
	case HypothesisIncoming:
		return "incoming"
	case HypothesisOutgoing:
		return "outgoing"
	default:
		return "unknown"
	}
}

// Direction is the direction of a message relative to the reader.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Opened is a decrypted envelope. OK is false when the envelope opened but
// the signature or its bindings did not verify; Problem says why.
type Opened struct {
	Envelope   *Envelope
	Body       *Body
	Hypothesis Hypothesis
	Direction  Direction
	OK         bool
	Problem    string
}

type decodedEnvelope struct {
	ephPub [KeySize]byte
	nonce  []byte
	ct     []byte
	aad    []byte
}

func decodeEnvelope(env *Envelope) (*decodedEnvelope, error) {
	if env == nil {
		return nil, fmt.Errorf("%w: nil envelope", ErrMalformedEnvelope)
	}
	if env.V != ProtocolVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrMalformedEnvelope, env.V)
	}
	if !ValidMessageID(env.MsgID) {
		return nil, fmt.Errorf("%w: invalid msg_id", ErrMalformedEnvelope)
	}

	alg := env.Alg
	if alg == "" {
		alg = AlgXChaCha20Poly1305
	}
	nonceSize, err := NonceSize(alg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}

	eph, err := DecodeBase64(env.EphPub)
	if err != nil || len(eph) != KeySize {
		return nil, fmt.Errorf("%w: eph_pub", ErrMalformedEnvelope)
	}
	nonce, err := DecodeBase64(env.Nonce)
	if err != nil || len(nonce) != nonceSize {
		return nil, fmt.Errorf("%w: nonce", ErrMalformedEnvelope)
	}
	ct, err := DecodeBase64(env.Ciphertext)
	if err != nil || len(ct) == 0 {
		return nil, fmt.Errorf("%w: ciphertext", ErrMalformedEnvelope)
	}

	d := &decodedEnvelope{
		nonce: nonce,
		ct:    ct,
		aad:   buildAAD(env.RecipientID, env.ConvToken, env.MsgID, env.EphPub),
	}
	copy(d.ephPub[:], eph)
	return d, nil
}

// Decrypt opens env for me. It tries, in order, the incoming hypothesis and,
// when conv is non-nil, the outgoing hypothesis. When neither opens the AEAD
// it returns ErrDecryptionFailed.
func Decrypt(env *Envelope, me *RuntimeIdentity, selfEmail string, conv *Conversation) (*Opened, error) {
	if me == nil || me.X == nil || me.Ed == nil {
		return nil, fmt.Errorf("decrypt: runtime keys are not available")
	}
	d, err := decodeEnvelope(env)
	if err != nil {
		return nil, err
	}
	alg := env.Alg
	if alg == "" {
		alg = AlgXChaCha20Poly1305
	}

	plaintext, hyp := tryIncoming(env, d, alg, me)
	if plaintext == nil && conv != nil {
		plaintext, hyp = tryOutgoing(env, d, alg, me, conv)
	}
	if plaintext == nil {
		return nil, ErrDecryptionFailed
	}

	var recipientPub [KeySize]byte
	if hyp == HypothesisIncoming {
		recipientPub = me.X.Public
	} else {
		recipientPub = conv.PeerXPub
	}

	return verifyOpened(env, d, plaintext, hyp, recipientPub, me, selfEmail)
}

func tryIncoming(env *Envelope, d *decodedEnvelope, alg Algorithm, me *RuntimeIdentity) ([]byte, Hypothesis) {
	shared, err := X25519(&me.X.Private, &d.ephPub)
	if err != nil {
		return nil, 0
	}
	defer memguard.WipeBytes(shared)
	return openWith(shared, env.MsgID, alg, d), HypothesisIncoming
}

func tryOutgoing(env *Envelope, d *decodedEnvelope, alg Algorithm, me *RuntimeIdentity, conv *Conversation) ([]byte, Hypothesis) {
	eph, err := DeriveDeterministicEphemeral(conv.Root, &me.X.Public, env.MsgID)
	if err != nil {
		return nil, 0
	}
	defer eph.Wipe()
	if eph.Public != d.ephPub {
		return nil, 0
	}

	shared, err := X25519(&eph.Private, &conv.PeerXPub)
	if err != nil {
		return nil, 0
	}
	defer memguard.WipeBytes(shared)
	return openWith(shared, env.MsgID, alg, d), HypothesisOutgoing
}

func openWith(shared []byte, msgID string, alg Algorithm, d *decodedEnvelope) []byte {
	key, err := messageKey(shared, msgID)
	if err != nil {
		return nil
	}
	defer memguard.WipeBytes(key)

	plaintext, err := openAEAD(alg, key, d.nonce, d.ct, d.aad)
	if err != nil {
		return nil
	}
	return plaintext
}

func verifyOpened(env *Envelope, d *decodedEnvelope, plaintext []byte, hyp Hypothesis, recipientPub [KeySize]byte, me *RuntimeIdentity, selfEmail string) (*Opened, error) {
	var inner innerPayload
	if err := json.Unmarshal(plaintext, &inner); err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrMalformedEnvelope, err)
	}
	bodyBytes, err := DecodeBase64(inner.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: body encoding", ErrMalformedEnvelope)
	}
	sig, err := DecodeBase64(inner.Sig)
	if err != nil {
		return nil, fmt.Errorf("%w: signature encoding", ErrMalformedEnvelope)
	}
	embeddedCtx, err := DecodeBase64(inner.Context)
	if err != nil {
		return nil, fmt.Errorf("%w: context encoding", ErrMalformedEnvelope)
	}
	var body Body
	if err := json.Unmarshal(bodyBytes, &body); err != nil {
		return nil, fmt.Errorf("%w: body: %v", ErrMalformedEnvelope, err)
	}

	opened := &Opened{
		Envelope:   env,
		Body:       &body,
		Hypothesis: hyp,
		Direction:  DirectionIn,
		OK:         true,
	}
	if hyp == HypothesisOutgoing {
		opened.Direction = DirectionOut
	}

	senderX, _ := DecodeBase64(body.SenderPubX)
	senderIsMe := me.X.Equal(senderX)
	if hyp == HypothesisIncoming && senderIsMe && NormalizeEmail(body.SenderEmail) == NormalizeEmail(selfEmail) {
		// A note to self opens under the incoming hypothesis.
		opened.Direction = DirectionOut
	}

	expectedCtx := BuildContext(recipientPub[:], d.ephPub[:], env.MsgID)
	senderEd, err := DecodeBase64(body.SenderPubEd)
	switch {
	case err != nil || len(senderEd) != ed25519.PublicKeySize:
		opened.flag("invalid sender signing key")
	case len(sig) != ed25519.SignatureSize:
		opened.flag("invalid signature size")
	case !ed25519.Verify(ed25519.PublicKey(senderEd), signingInput(bodyBytes, expectedCtx), sig):
		opened.flag("signature invalid")
	}
	if !bytes.Equal(embeddedCtx, expectedCtx) {
		opened.flag("context mismatch")
	}
	if body.MsgID != env.MsgID {
		opened.flag("message id mismatch")
	}
	if hyp == HypothesisOutgoing && (!senderIsMe || !bytes.Equal(senderEd, me.Ed.Public)) {
		opened.flag("sender key is not self")
	}

	return opened, nil
}

func (o *Opened) flag(problem string) {
	if o.OK {
		o.OK = false
		o.Problem = problem
	}
}

func signingInput(body, ctx []byte) []byte {
	out := make([]byte, 0, len(body)+len(ctx))
	out = append(out, body...)
	return append(out, ctx...)
}
