package crypto

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDecryptBatch(t *testing.T) {
	t.Parallel()
	alice := newTestUser(t, "alice@example.com")
	bob := newTestUser(t, "bob@example.com")
	conv := alice.conversationWith(t, bob)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var envs []*Envelope
	for _, offset := range []int{3, 1, 2} {
		ts := base.Add(time.Duration(offset) * time.Minute)
		sealed, err := Encrypt(alice.runtime, alice.email, bob.recipient("b"), conv, ts.Format(time.RFC3339), EncryptOptions{
			Now: func() time.Time { return ts },
		})
		if err != nil {
			t.Fatal(err)
		}
		envs = append(envs, sealed.Envelope)
	}
	broken := *envs[0]
	broken.Ciphertext = ToBase64URL([]byte("garbage that will not authenticate"))
	envs = append(envs, &broken)

	opened, failures, err := DecryptBatch(context.Background(), envs, bob.runtime, bob.email, nil, 2)
	if err != nil {
		t.Fatalf("DecryptBatch() error = %v", err)
	}
	if len(opened) != 3 {
		t.Fatalf("opened %d messages, want 3", len(opened))
	}
	if len(failures) != 1 || failures[0].Envelope != &broken || !errors.Is(failures[0].Err, ErrDecryptionFailed) {
		t.Errorf("failures = %+v", failures)
	}
	for i := 1; i < len(opened); i++ {
		if opened[i-1].Envelope.TSClient.After(opened[i].Envelope.TSClient) {
			t.Errorf("messages not sorted by ts_client at %d", i)
		}
	}
}

func TestDecryptBatch_Canceled(t *testing.T) {
	t.Parallel()
	alice := newTestUser(t, "alice@example.com")
	bob := newTestUser(t, "bob@example.com")
	sealed := sealTo(t, alice, bob, "hi", "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := DecryptBatch(ctx, []*Envelope{sealed.Envelope}, bob.runtime, bob.email, nil, 0); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestSortOpened_TiesByMessageID(t *testing.T) {
	t.Parallel()
	ts := time.Unix(100, 0)
	msgs := []*Opened{
		{Envelope: &Envelope{TSClient: ts, MsgID: "b"}},
		{Envelope: &Envelope{TSClient: ts, MsgID: "a"}},
		{Envelope: &Envelope{TSClient: ts.Add(-time.Second), MsgID: "c"}},
	}
	SortOpened(msgs)

	var got string
	for _, m := range msgs {
		got += m.Envelope.MsgID
	}
	if got != "cab" {
		t.Errorf("order = %s, want cab", got)
	}
}
