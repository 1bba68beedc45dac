package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sealdrop/client-go/internal/api"
)

const (
	pingMessage  = "ping"
	writeTimeout = 10 * time.Second
)

// WebSocketStrategy delivers envelopes over the relay push stream and
// reconnects with capped exponential backoff.
type WebSocketStrategy struct {
	cfg Config

	mu          sync.RWMutex
	handler     EnvelopeHandler
	onReconnect func(ctx context.Context)
	cancel      context.CancelFunc
	done        chan struct{}
	lastError   error

	connected     chan struct{}
	connectedOnce sync.Once
}

// NewWebSocketStrategy creates a push stream strategy.
func NewWebSocketStrategy(cfg Config) *WebSocketStrategy {
	return &WebSocketStrategy{
		cfg:       cfg.withDefaults(),
		connected: make(chan struct{}),
	}
}

// Name returns the strategy name.
func (s *WebSocketStrategy) Name() string {
	return "websocket"
}

// Connected returns a channel closed after the first successful connection.
func (s *WebSocketStrategy) Connected() <-chan struct{} {
	return s.connected
}

// LastError returns the last connection error, if any.
func (s *WebSocketStrategy) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

// OnReconnect sets the callback run after each successful connection.
func (s *WebSocketStrategy) OnReconnect(fn func(ctx context.Context)) {
	s.mu.Lock()
	s.onReconnect = fn
	s.mu.Unlock()
}

// Start connects in the background.
func (s *WebSocketStrategy) Start(ctx context.Context, handler EnvelopeHandler) error {
	if s.cfg.Relay == nil || s.cfg.Auth == nil {
		return fmt.Errorf("websocket strategy: relay and authorizer are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return fmt.Errorf("websocket strategy: already started")
	}
	s.handler = handler
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.connectLoop(ctx)
	return nil
}

// Stop closes the connection and waits for the loop to exit.
func (s *WebSocketStrategy) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

func (s *WebSocketStrategy) connectLoop(ctx context.Context) {
	defer close(s.done)

	attempt := 0
	for {
		err := s.connect(ctx)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			// The relay closed a healthy stream; start over without penalty.
			attempt = 0
		} else {
			s.setError(err)
		}

		wait := ReconnectDelay(s.cfg.ReconnectBase, attempt, s.cfg.MaxDoublings)
		s.cfg.Logger.Debug("push stream disconnected", "error", err, "retry_in", wait)
		s.cfg.Metrics.CountReconnect()
		attempt++

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// connect runs one connection until it fails. It returns nil when the peer
// closed the stream normally.
func (s *WebSocketStrategy) connect(ctx context.Context) error {
	target, err := s.cfg.Relay.PushURL(s.cfg.Auth, s.cfg.RecipientID)
	if err != nil {
		return err
	}

	conn, resp, err := s.cfg.Dialer.DialContext(ctx, target, s.cfg.Header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("push stream handshake: status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("push stream dial: %w", err)
	}
	defer conn.Close()

	var writeMu sync.Mutex
	write := func(msg string) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		return conn.WriteMessage(websocket.TextMessage, []byte(msg))
	}
	if err := write(pingMessage); err != nil {
		return fmt.Errorf("push stream ping: %w", err)
	}

	s.connectedOnce.Do(func() { close(s.connected) })
	s.cfg.Logger.Debug("push stream connected")

	s.mu.RLock()
	onReconnect, handler := s.onReconnect, s.handler
	s.mu.RUnlock()
	if onReconnect != nil {
		go onReconnect(ctx)
	}

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		ticker := time.NewTicker(s.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-connCtx.Done():
				writeMu.Lock()
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(time.Second))
				writeMu.Unlock()
				conn.Close()
				return
			case <-ticker.C:
				if err := write(pingMessage); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("push stream read: %w", err)
		}

		var frame api.PushFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			// Keepalive replies and other non-JSON text.
			continue
		}
		envs, err := frame.Envelopes()
		if err != nil {
			s.cfg.Logger.Warn("dropping malformed push frame", "type", frame.Type, "error", err)
			continue
		}
		if len(envs) > 0 && handler != nil {
			handler(ctx, envs)
		}
	}
}

func (s *WebSocketStrategy) setError(err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	s.mu.Lock()
	s.lastError = err
	s.mu.Unlock()
}
