package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	sealdrop "github.com/sealdrop/client-go"
)

// MessageOutput is the JSON form of a message.
type MessageOutput struct {
	ID        string    `json:"id,omitempty"`
	MsgID     string    `json:"msg_id"`
	From      string    `json:"from"`
	Peer      string    `json:"peer"`
	Direction string    `json:"direction"`
	Text      string    `json:"text"`
	SentAt    time.Time `json:"sent_at"`
	StoredAt  time.Time `json:"stored_at,omitzero"`
	Verified  bool      `json:"verified"`
	Problem   string    `json:"problem,omitempty"`
}

func toMessageOutput(m *sealdrop.Message) MessageOutput {
	return MessageOutput{
		ID:        m.ID,
		MsgID:     m.MsgID,
		From:      m.From,
		Peer:      m.Peer,
		Direction: string(m.Direction),
		Text:      m.Text,
		SentAt:    m.SentAt,
		StoredAt:  m.StoredAt,
		Verified:  m.Verified,
		Problem:   m.Problem,
	}
}

// UserOutput is the JSON form of a directory entry.
type UserOutput struct {
	Email       string `json:"email"`
	RecipientID string `json:"rcpt_id"`
	Fingerprint string `json:"fingerprint"`
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printMessages(w io.Writer, asJSON bool, msgs []*sealdrop.Message) error {
	if asJSON {
		out := make([]MessageOutput, len(msgs))
		for i, m := range msgs {
			out[i] = toMessageOutput(m)
		}
		return writeJSON(w, out)
	}
	for _, m := range msgs {
		printMessage(w, m)
	}
	return nil
}

func printMessage(w io.Writer, m *sealdrop.Message) {
	arrow := "<-"
	if m.Direction == sealdrop.DirectionOut {
		arrow = "->"
	}
	fmt.Fprintf(w, "%s %s %s: %s", m.SentAt.Local().Format(time.DateTime), arrow, m.Peer, m.Text)
	if !m.Verified {
		fmt.Fprintf(w, " [UNVERIFIED: %s]", m.Problem)
	}
	fmt.Fprintln(w)
}

func printUsers(w io.Writer, asJSON bool, users []*sealdrop.User) error {
	if asJSON {
		out := make([]UserOutput, len(users))
		for i, u := range users {
			out[i] = UserOutput{Email: u.Email, RecipientID: u.RecipientID, Fingerprint: u.Fingerprint()}
		}
		return writeJSON(w, out)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EMAIL\tFINGERPRINT")
	for _, u := range users {
		fmt.Fprintf(tw, "%s\t%s\n", u.Email, u.Fingerprint())
	}
	return tw.Flush()
}
