package sealdrop

import (
	"context"
	"testing"
	"time"

	"github.com/sealdrop/client-go/internal/crypto"
	"github.com/sealdrop/client-go/internal/relaytest"
)

const testPassword = "correct-horse-battery"

// newTestClient returns a client for relay with cheap KDF params.
func newTestClient(t *testing.T, relay *relaytest.Relay, opts ...Option) *Client {
	t.Helper()
	base := []Option{
		WithBaseURL(relay.URL()),
		WithKDFParams(crypto.TestParams),
		WithRetries(0),
		WithPollingInterval(20 * time.Millisecond),
	}
	c, err := New(append(base, opts...)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

// newTestUser registers email on relay and logs in with a fresh client.
func newTestUser(t *testing.T, relay *relaytest.Relay, email string, opts ...Option) *Session {
	t.Helper()
	c := newTestClient(t, relay, opts...)
	ctx := context.Background()
	if _, err := c.Register(ctx, email, testPassword); err != nil {
		t.Fatalf("Register(%s) error = %v", email, err)
	}
	s, err := c.Login(ctx, email, testPassword)
	if err != nil {
		t.Fatalf("Login(%s) error = %v", email, err)
	}
	return s
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}
