package main

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	sealdrop "github.com/sealdrop/client-go"
)

type registerCmd struct{}

func (cmd *registerCmd) Run(a *app) error {
	email, err := a.email()
	if err != nil {
		return err
	}
	password, err := a.password("Choose a password (12+ characters): ")
	if err != nil {
		return err
	}

	u, err := a.client.Register(a.ctx, email, password)
	if err != nil {
		return err
	}
	if a.json {
		return writeJSON(a.io.Stdout, UserOutput{Email: u.Email, RecipientID: u.RecipientID, Fingerprint: u.Fingerprint()})
	}
	fmt.Fprintf(a.io.Stdout, "registered %s\nfingerprint %s\n", u.Email, u.Fingerprint())
	return nil
}

type whoamiCmd struct{}

func (cmd *whoamiCmd) Run(a *app) error {
	s, err := a.login()
	if err != nil {
		return err
	}
	if a.json {
		return writeJSON(a.io.Stdout, UserOutput{Email: s.Email(), RecipientID: s.RecipientID(), Fingerprint: s.Fingerprint()})
	}
	fmt.Fprintf(a.io.Stdout, "%s\nrecipient %s\nfingerprint %s\n", s.Email(), s.RecipientID(), s.Fingerprint())
	return nil
}

type usersCmd struct{}

func (cmd *usersCmd) Run(a *app) error {
	s, err := a.login()
	if err != nil {
		return err
	}
	users, err := s.Users(a.ctx)
	if err != nil {
		return err
	}
	slices.SortFunc(users, func(x, y *sealdrop.User) int { return strings.Compare(x.Email, y.Email) })
	return printUsers(a.io.Stdout, a.json, users)
}

type sendCmd struct {
	To   string   `arg:"" help:"Recipient email."`
	Text []string `arg:"" optional:"" help:"Message text. Read from stdin when omitted or '-'."`
}

func (cmd *sendCmd) Run(a *app) error {
	text := strings.Join(cmd.Text, " ")
	if text == "" || text == "-" {
		raw, err := io.ReadAll(a.io.Stdin)
		if err != nil {
			return err
		}
		text = strings.TrimRight(string(raw), "\n")
	}
	if text == "" {
		return fmt.Errorf("empty message")
	}

	s, err := a.login()
	if err != nil {
		return err
	}
	m, err := s.Send(a.ctx, cmd.To, text)
	if err != nil {
		return err
	}
	if a.json {
		return writeJSON(a.io.Stdout, toMessageOutput(m))
	}
	fmt.Fprintf(a.io.Stdout, "sent %s to %s\n", m.MsgID, m.Peer)
	return nil
}

type inboxCmd struct {
	From string `help:"Only show messages from this sender."`
}

func (cmd *inboxCmd) Run(a *app) error {
	s, err := a.login()
	if err != nil {
		return err
	}
	msgs, err := s.Inbox(a.ctx)
	if err != nil {
		return err
	}
	if cmd.From != "" {
		from := strings.ToLower(strings.TrimSpace(cmd.From))
		msgs = slices.DeleteFunc(msgs, func(m *sealdrop.Message) bool { return m.From != from })
	}
	return printMessages(a.io.Stdout, a.json, msgs)
}

type historyCmd struct {
	Peer string `arg:"" help:"Peer email."`
}

func (cmd *historyCmd) Run(a *app) error {
	s, err := a.login()
	if err != nil {
		return err
	}
	msgs, err := s.Conversation(a.ctx, cmd.Peer)
	if err != nil {
		return err
	}
	return printMessages(a.io.Stdout, a.json, msgs)
}

// forever bounds an unbounded wait without overflowing a deadline.
const forever = 100 * 365 * 24 * time.Hour

type watchCmd struct {
	From    string        `help:"Only show messages from this sender."`
	Count   int           `help:"Exit after this many messages. Zero watches until interrupted."`
	Timeout time.Duration `help:"Exit after this long. Zero waits forever."`
}

func (cmd *watchCmd) Run(a *app) error {
	s, err := a.login()
	if err != nil {
		return err
	}

	ctx := a.ctx
	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	if cmd.Count > 0 {
		var opts []sealdrop.WaitOption
		if cmd.From != "" {
			opts = append(opts, sealdrop.WithFrom(cmd.From))
		}
		wait := cmd.Timeout
		if wait <= 0 {
			wait = forever
		}
		opts = append(opts, sealdrop.WithWaitTimeout(wait))
		msgs, err := s.WaitForMessageCount(ctx, cmd.Count, opts...)
		if err != nil {
			return err
		}
		return printMessages(a.io.Stdout, a.json, msgs)
	}

	msgs, err := s.Watch(ctx)
	if err != nil {
		return err
	}
	a.logger.Info("watching", "strategy", s.DeliveryStrategy())
	from := strings.ToLower(strings.TrimSpace(cmd.From))
	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-msgs:
			if m == nil || (from != "" && m.From != from) {
				continue
			}
			if err := printMessages(a.io.Stdout, a.json, []*sealdrop.Message{m}); err != nil {
				return err
			}
		}
	}
}
