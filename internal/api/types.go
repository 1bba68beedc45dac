package api

import (
	"encoding/json"

	"github.com/sealdrop/client-go/internal/crypto"
)

// RegisterRequest is the POST /register body.
type RegisterRequest struct {
	Email      string `json:"email"`
	SignPubDet string `json:"sign_pub_det_b64"`
	EncPubRand string `json:"enc_pub_rand_b64"`
	CMaster    string `json:"c_master_b64"`
	Version    string `json:"version,omitempty"`
}

// UserOut is a public directory entry.
type UserOut struct {
	Email       string `json:"email"`
	RecipientID string `json:"rcpt_id"`
	EncPubRand  string `json:"enc_pub_rand_b64"`
	SignPubDet  string `json:"sign_pub_det_b64"`
}

// UserRecord is the caller's own record returned by /login. It carries the
// sealed master.
type UserRecord struct {
	UserOut
	CMaster string `json:"c_master_b64"`
	Version string `json:"version"`
}

// Page is one page of stored envelopes. NextCursor is empty on the last page.
type Page struct {
	Envelopes  []*crypto.Envelope `json:"envelopes"`
	NextCursor string             `json:"next_cursor"`
}

// PageRequest selects a page.
type PageRequest struct {
	Limit  int
	Cursor string
}

// SendResult is the POST /messages response.
type SendResult struct {
	Accepted bool `json:"accepted"`
}

// Push frame types.
const (
	FrameInboxInit = "inbox.init"
	FrameEnvelope  = "envelope"
)

// PushFrame is one message on the push stream. Data holds an envelope for
// FrameEnvelope and a list of envelopes for FrameInboxInit.
type PushFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Envelopes decodes the frame payload.
func (f *PushFrame) Envelopes() ([]*crypto.Envelope, error) {
	switch f.Type {
	case FrameInboxInit:
		var envs []*crypto.Envelope
		if err := json.Unmarshal(f.Data, &envs); err != nil {
			return nil, err
		}
		return envs, nil
	case FrameEnvelope:
		var env crypto.Envelope
		if err := json.Unmarshal(f.Data, &env); err != nil {
			return nil, err
		}
		return []*crypto.Envelope{&env}, nil
	default:
		return nil, nil
	}
}
