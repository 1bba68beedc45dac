package delivery

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/sealdrop/client-go/internal/crypto"
)

func TestAutoStrategy_Name_NotStarted(t *testing.T) {
	a := NewAutoStrategy(Config{})
	if a.Name() != "auto" {
		t.Errorf("Name() = %s, want auto", a.Name())
	}
}

func TestAutoStrategy_Stop_NotStarted(t *testing.T) {
	a := NewAutoStrategy(Config{})
	if err := a.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestAutoStrategy_SelectsWebSocket(t *testing.T) {
	ps := newPushServer(t, []*crypto.Envelope{envelope("1")})

	var got collector
	a := NewAutoStrategy(Config{
		Relay:          &fakeRelay{pushURL: ps.wsURL()},
		Auth:           fakeAuth{},
		RecipientID:    "rcpt-1",
		ConnectTimeout: 2 * time.Second,
	})
	if err := a.Start(context.Background(), got.handle); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer a.Stop()

	if a.Name() != "auto:websocket" {
		t.Errorf("Name() = %s, want auto:websocket", a.Name())
	}
	waitFor(t, 2*time.Second, func() bool { return len(got.snapshot()) == 1 })
}

func TestAutoStrategy_FallsBackToPolling(t *testing.T) {
	// A listener that accepts but never completes the handshake.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer ln.Close()

	relay := &fakeRelay{pushURL: "ws://" + ln.Addr().String() + "/ws/inbox"}
	relay.add(2)

	var got collector
	a := NewAutoStrategy(Config{
		Relay:           relay,
		Auth:            fakeAuth{},
		RecipientID:     "rcpt-1",
		ConnectTimeout:  50 * time.Millisecond,
		PollingInterval: 10 * time.Millisecond,
	})
	if err := a.Start(context.Background(), got.handle); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer a.Stop()

	if a.Name() != "auto:polling" {
		t.Errorf("Name() = %s, want auto:polling", a.Name())
	}
	waitFor(t, 2*time.Second, func() bool { return len(got.snapshot()) == 2 })
}

func TestAutoStrategy_NoPushURLFallsBack(t *testing.T) {
	relay := &fakeRelay{}
	a := NewAutoStrategy(Config{
		Relay:          relay,
		Auth:           fakeAuth{},
		ConnectTimeout: 20 * time.Millisecond,
	})
	if err := a.Start(context.Background(), nil); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer a.Stop()

	if a.Name() != "auto:polling" {
		t.Errorf("Name() = %s, want auto:polling", a.Name())
	}
}

func TestAutoStrategy_StartCanceled(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := NewAutoStrategy(Config{
		Relay:          &fakeRelay{pushURL: "ws://" + ln.Addr().String()},
		Auth:           fakeAuth{},
		ConnectTimeout: time.Second,
	})
	if err := a.Start(ctx, nil); err != context.Canceled {
		t.Errorf("Start() error = %v, want context.Canceled", err)
	}
}
