package delivery

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/sealdrop/client-go/internal/api"
)

// PollingStrategy delivers envelopes by paging the inbox with adaptive
// backoff. The interval resets when new envelopes arrive and grows by
// PollingBackoffMultiplier, up to PollingMaxBackoff, while the inbox is idle.
type PollingStrategy struct {
	cfg Config

	mu       sync.Mutex
	handler  EnvelopeHandler
	cancel   context.CancelFunc
	done     chan struct{}
	cursor   string
	seen     *SeenSet
	interval time.Duration
}

// NewPollingStrategy creates a polling strategy.
func NewPollingStrategy(cfg Config) *PollingStrategy {
	cfg = cfg.withDefaults()
	return &PollingStrategy{
		cfg:      cfg,
		seen:     NewSeenSet(cfg.SeenLimit),
		interval: cfg.PollingInterval,
	}
}

// Name returns the strategy name.
func (p *PollingStrategy) Name() string {
	return "polling"
}

// OnReconnect is a no-op; polling has no connection to lose.
func (p *PollingStrategy) OnReconnect(func(ctx context.Context)) {}

// Start begins polling in the background. The first poll runs immediately.
func (p *PollingStrategy) Start(ctx context.Context, handler EnvelopeHandler) error {
	if p.cfg.Relay == nil || p.cfg.Auth == nil {
		return fmt.Errorf("polling strategy: relay and authorizer are required")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return fmt.Errorf("polling strategy: already started")
	}
	p.handler = handler
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})

	go p.pollLoop(ctx)
	return nil
}

// Stop ends polling and waits for the loop to exit.
func (p *PollingStrategy) Stop() error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

func (p *PollingStrategy) pollLoop(ctx context.Context) {
	defer close(p.done)

	for {
		fresh, err := p.poll(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			p.cfg.Logger.Debug("inbox poll failed", "error", err)
		}
		p.adjust(fresh > 0)

		timer := time.NewTimer(p.waitDuration())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// poll fetches every page from the resume cursor onwards and hands unseen
// envelopes to the handler. It returns how many were new.
func (p *PollingStrategy) poll(ctx context.Context) (int, error) {
	fresh := 0
	for {
		page, err := p.cfg.Relay.FetchInbox(ctx, p.cfg.Auth, p.cfg.RecipientID, api.PageRequest{
			Limit:  p.cfg.PageSize,
			Cursor: p.cursor,
		})
		if err != nil {
			return fresh, err
		}

		batch := p.seen.Claim(page.Envelopes)
		if len(batch) > 0 && p.handler != nil {
			p.handler(ctx, batch)
		}
		fresh += len(batch)

		// The last page is re-read next time so envelopes appended to it are
		// not skipped.
		if page.NextCursor == "" {
			return fresh, nil
		}
		p.cursor = page.NextCursor
	}
}

func (p *PollingStrategy) adjust(gotNew bool) {
	if gotNew {
		p.interval = p.cfg.PollingInterval
		return
	}
	next := time.Duration(float64(p.interval) * PollingBackoffMultiplier)
	p.interval = min(next, p.cfg.PollingMaxBackoff)
}

func (p *PollingStrategy) waitDuration() time.Duration {
	jitter := time.Duration(rand.Float64() * PollingJitterFactor * float64(p.interval))
	return p.interval + jitter
}
