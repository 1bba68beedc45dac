package delivery

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sealdrop/client-go/internal/api"
	"github.com/sealdrop/client-go/internal/crypto"
	"github.com/sealdrop/client-go/internal/metrics"
)

// Relay is the part of the relay client the strategies use.
type Relay interface {
	PushURL(authz api.Authorizer, rcptID string) (string, error)
	FetchInbox(ctx context.Context, authz api.Authorizer, rcptID string, page api.PageRequest) (*api.Page, error)
}

// EnvelopeHandler receives envelopes as they arrive. A strategy may deliver
// the same envelope more than once across reconnects; callers deduplicate.
type EnvelopeHandler func(ctx context.Context, envs []*crypto.Envelope)

// Strategy delivers envelopes addressed to one recipient.
//
// The lifecycle is:
//  1. Create a strategy with NewXxxStrategy(cfg)
//  2. Call Start(ctx, handler) to begin receiving envelopes
//  3. Call Stop() when done to release resources
//
// All implementations are safe for concurrent use.
type Strategy interface {
	// Start begins delivery and returns immediately.
	Start(ctx context.Context, handler EnvelopeHandler) error

	// Stop ends delivery. No handler call starts after Stop returns.
	// Stop is idempotent.
	Stop() error

	// Name returns the strategy name, e.g. "websocket" or "auto:polling".
	Name() string

	// OnReconnect sets a callback invoked after each successful
	// (re)connection, so the caller can backfill anything missed while
	// disconnected. Polling never calls it.
	OnReconnect(fn func(ctx context.Context))
}

// Config holds configuration shared by all delivery strategies.
type Config struct {
	Relay       Relay
	Auth        api.Authorizer
	RecipientID string

	// Dialer opens push connections. If nil, a dialer with
	// DefaultHandshakeTimeout is used.
	Dialer *websocket.Dialer
	// Header is sent with the WebSocket upgrade request.
	Header http.Header

	// PingInterval is the keepalive period. Defaults to DefaultPingInterval.
	PingInterval time.Duration
	// ReconnectBase is the first reconnect delay. Defaults to
	// DefaultReconnectBase.
	ReconnectBase time.Duration
	// MaxDoublings caps reconnect backoff growth. Defaults to
	// DefaultMaxDoublings.
	MaxDoublings int

	// PollingInterval is the starting poll interval. Defaults to
	// DefaultPollingInterval.
	PollingInterval time.Duration
	// PollingMaxBackoff caps the poll interval. Defaults to
	// DefaultPollingMaxBackoff.
	PollingMaxBackoff time.Duration
	// PageSize is the inbox page size used when polling.
	PageSize int

	// SeenLimit bounds the envelope keys kept for deduplication.
	SeenLimit int

	// ConnectTimeout bounds how long AutoStrategy waits for the push stream
	// before falling back to polling. Defaults to DefaultConnectTimeout.
	ConnectTimeout time.Duration

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Defaults.
const (
	DefaultHandshakeTimeout  = 10 * time.Second
	DefaultPingInterval      = 25 * time.Second
	DefaultReconnectBase     = 500 * time.Millisecond
	DefaultMaxDoublings      = 6
	DefaultPollingInterval   = 2 * time.Second
	DefaultPollingMaxBackoff = 30 * time.Second
	PollingBackoffMultiplier = 1.5
	PollingJitterFactor      = 0.3
	DefaultPageSize          = 100
	DefaultConnectTimeout    = 5 * time.Second
)

func (c Config) withDefaults() Config {
	if c.Dialer == nil {
		c.Dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: DefaultHandshakeTimeout,
		}
	}
	if c.PingInterval <= 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.ReconnectBase <= 0 {
		c.ReconnectBase = DefaultReconnectBase
	}
	if c.MaxDoublings <= 0 {
		c.MaxDoublings = DefaultMaxDoublings
	}
	if c.PollingInterval <= 0 {
		c.PollingInterval = DefaultPollingInterval
	}
	if c.PollingMaxBackoff <= 0 {
		c.PollingMaxBackoff = DefaultPollingMaxBackoff
	}
	if c.PollingMaxBackoff < c.PollingInterval {
		c.PollingMaxBackoff = c.PollingInterval
	}
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	return c
}

// ReconnectDelay returns base * 2^min(attempt, maxDoublings).
func ReconnectDelay(base time.Duration, attempt, maxDoublings int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > maxDoublings {
		attempt = maxDoublings
	}
	return base * time.Duration(1<<attempt)
}

// New returns the strategy named by name: "websocket", "polling" or "auto".
// Unknown names select auto.
func New(name string, cfg Config) Strategy {
	switch name {
	case "websocket":
		return NewWebSocketStrategy(cfg)
	case "polling":
		return NewPollingStrategy(cfg)
	default:
		return NewAutoStrategy(cfg)
	}
}
