package delivery

import (
	"context"
	"sync"
	"time"
)

// AutoStrategy prefers the push stream and falls back to polling when the
// stream does not connect within Config.ConnectTimeout.
type AutoStrategy struct {
	cfg Config

	mu          sync.RWMutex
	current     Strategy
	onReconnect func(ctx context.Context)
}

// NewAutoStrategy creates an auto strategy.
func NewAutoStrategy(cfg Config) *AutoStrategy {
	return &AutoStrategy{
		cfg: cfg.withDefaults(),
	}
}

// Name returns "auto" before Start and "auto:<selected>" afterwards.
func (a *AutoStrategy) Name() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.current != nil {
		return "auto:" + a.current.Name()
	}
	return "auto"
}

// OnReconnect sets the reconnect callback. It must be called before Start.
func (a *AutoStrategy) OnReconnect(fn func(ctx context.Context)) {
	a.mu.Lock()
	a.onReconnect = fn
	a.mu.Unlock()
}

// Start blocks until the push stream connects or the connect timeout
// elapses, then returns with the selected strategy running.
func (a *AutoStrategy) Start(ctx context.Context, handler EnvelopeHandler) error {
	a.mu.RLock()
	onReconnect := a.onReconnect
	a.mu.RUnlock()

	ws := NewWebSocketStrategy(a.cfg)
	ws.OnReconnect(onReconnect)
	if err := ws.Start(ctx, handler); err != nil {
		return a.startPolling(ctx, handler)
	}

	timer := time.NewTimer(a.cfg.ConnectTimeout)
	defer timer.Stop()

	select {
	case <-ws.Connected():
		a.setCurrent(ws)
		return nil
	case <-timer.C:
		a.cfg.Logger.Info("push stream unavailable, falling back to polling", "error", ws.LastError())
		ws.Stop()
		return a.startPolling(ctx, handler)
	case <-ctx.Done():
		ws.Stop()
		return ctx.Err()
	}
}

func (a *AutoStrategy) startPolling(ctx context.Context, handler EnvelopeHandler) error {
	polling := NewPollingStrategy(a.cfg)
	if err := polling.Start(ctx, handler); err != nil {
		return err
	}
	a.setCurrent(polling)
	return nil
}

func (a *AutoStrategy) setCurrent(s Strategy) {
	a.mu.Lock()
	a.current = s
	a.mu.Unlock()
}

// Stop stops the selected strategy.
func (a *AutoStrategy) Stop() error {
	a.mu.RLock()
	current := a.current
	a.mu.RUnlock()
	if current != nil {
		return current.Stop()
	}
	return nil
}
