package crypto

import (
	"encoding/hex"
	"time"
)

// Envelope is the relay-visible form of a message. None of its fields
// identify the sender.
type Envelope struct {
	// V is the protocol version number.
	V int `json:"v"`
	// RecipientID is the relay's opaque recipient bucket id.
	RecipientID string `json:"rcpt_id"`
	// ConvToken is the opaque conversation bucket token.
	ConvToken string `json:"conv_token"`
	// TSClient is the sender-supplied timestamp. Advisory only.
	TSClient time.Time `json:"ts_client"`
	// MsgID is the 16-byte message id, lowercase hex.
	MsgID string `json:"msg_id"`
	// EphPub is the ephemeral X25519 public key (base64url).
	EphPub string `json:"eph_pub_b64"`
	// Nonce is the AEAD nonce (base64url).
	Nonce string `json:"nonce_b64"`
	// Ciphertext is the AEAD output (base64url).
	Ciphertext string `json:"ct_b64"`
	// Alg names the AEAD.
	Alg Algorithm `json:"alg"`

	// ID and TSServer are assigned by the relay when it stores an envelope.
	ID       string    `json:"id,omitempty"`
	TSServer time.Time `json:"ts_server,omitzero"`
}

// Body is the signed message plaintext.
type Body struct {
	V           int       `json:"v"`
	TSClient    time.Time `json:"ts_client"`
	MsgID       string    `json:"msg_id"`
	SenderEmail string    `json:"sender_email"`
	SenderPubEd string    `json:"sender_pub_ed_b64"`
	SenderPubX  string    `json:"sender_pub_x_b64"`
	Message     string    `json:"message"`
}

// innerPayload is the AEAD plaintext. The context travels inside the
// ciphertext so the verifier can compare it with the one it recomputes.
type innerPayload struct {
	Body    string `json:"body_b64"`
	Sig     string `json:"sig_b64"`
	Context string `json:"ctx_b64"`
}

// NewMessageID returns a fresh random 16-byte message id in lowercase hex.
func NewMessageID() (string, error) {
	b := make([]byte, MessageIDSize)
	if err := readRandom(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// ValidMessageID reports whether id is 32 lowercase hex characters.
func ValidMessageID(id string) bool {
	if len(id) != 2*MessageIDSize {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// BuildContext returns the signed context binding recipient key,
// ephemeral key and message id.
func BuildContext(recipientXPub, ephPub []byte, msgID string) []byte {
	return []byte(ContextPrefix +
		"|rcpt=" + ToBase64URL(recipientXPub) +
		"|eph=" + ToBase64URL(ephPub) +
		"|mid=" + msgID)
}

// buildAAD binds the relay-visible header into the AEAD tag.
func buildAAD(recipientID, convToken, msgID, ephPubB64 string) []byte {
	return []byte(AADPrefix + "|" + recipientID + "|" + convToken + "|" + msgID + "|" + ephPubB64)
}

// messageKey derives the per-message AEAD key from a shared secret.
func messageKey(shared []byte, msgID string) ([]byte, error) {
	return derive32(shared, LabelMessageKey+msgID)
}
