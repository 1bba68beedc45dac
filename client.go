package sealdrop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/awnumar/memguard"

	"github.com/sealdrop/client-go/internal/api"
	"github.com/sealdrop/client-go/internal/crypto"
	"github.com/sealdrop/client-go/internal/metrics"
	"github.com/sealdrop/client-go/internal/privacylog"
	"github.com/sealdrop/client-go/internal/token"
)

// Client registers accounts and opens sessions against one relay. It holds
// at most one active session.
type Client struct {
	apiClient *api.Client
	cfg       *clientConfig
	logger    *slog.Logger
	metrics   *metrics.Metrics

	// loginMu serializes Login so at most one session holds keys.
	loginMu sync.Mutex

	mu      sync.Mutex
	session *Session
	closed  bool
}

// buildAPIClient creates and configures an API client from the given config.
func buildAPIClient(cfg *clientConfig, logger *slog.Logger, m *metrics.Metrics) (*api.Client, error) {
	httpClient := cfg.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.timeout}
	}
	return api.NewClient(api.Config{
		BaseURL:    cfg.baseURL,
		HTTPClient: httpClient,
		MaxRetries: cfg.retries,
		RetryOn:    cfg.retryOn,
		RateLimit:  cfg.rateLimit,
		RateBurst:  cfg.rateBurst,
		Logger:     logger,
		Metrics:    m,
	})
}

// New creates a client. It does not contact the relay.
func New(opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		baseURL:            defaultBaseURL,
		timeout:            defaultTimeout,
		retries:            api.DefaultMaxRetries,
		kdf:                crypto.DefaultParams(),
		tokenTTL:           token.DefaultTTL,
		aead:               crypto.AlgXChaCha20Poly1305,
		decryptConcurrency: crypto.DefaultBatchConcurrency,
		deliveryStrategy:   StrategyAuto,
		pollingInterval:    defaultPollInterval,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if _, err := crypto.NonceSize(cfg.aead); err != nil {
		return nil, err
	}

	logger := privacylog.Wrap(cfg.logger)
	var m *metrics.Metrics
	if cfg.registerer != nil {
		m = metrics.New(cfg.registerer)
	}

	apiClient, err := buildAPIClient(cfg, logger, m)
	if err != nil {
		return nil, err
	}

	return &Client{
		apiClient: apiClient,
		cfg:       cfg,
		logger:    logger,
		metrics:   m,
	}, nil
}

// checkClosed returns ErrClientClosed if the client has been closed.
func (c *Client) checkClosed() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	return nil
}

// deriveIdentity runs the password KDF and records its duration.
func (c *Client) deriveIdentity(ctx context.Context, email, password string) (*crypto.Identity, error) {
	start := time.Now()
	id, err := crypto.DeriveDeterministicContext(ctx, email, password, c.cfg.kdf)
	c.metrics.ObserveKDF("deterministic", time.Since(start))
	if err != nil {
		return nil, wrapError(err)
	}
	return id, nil
}

// Register creates an account: it derives the password identity, creates a
// random master, seals the master to the password identity and publishes the
// public keys with the sealed master. Nothing secret leaves the process.
func (c *Client) Register(ctx context.Context, email, password string) (*User, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}

	det, err := c.deriveIdentity(ctx, email, password)
	if err != nil {
		return nil, err
	}
	defer det.Wipe()

	start := time.Now()
	reg, err := crypto.DeriveRegistrationRandomContext(ctx, c.cfg.kdf)
	c.metrics.ObserveKDF("random", time.Since(start))
	if err != nil {
		return nil, wrapError(err)
	}
	defer reg.Wipe()

	sealed, err := crypto.Seal(reg.Master, &det.X.Public)
	if err != nil {
		return nil, err
	}

	out, err := c.apiClient.Register(ctx, api.RegisterRequest{
		Email:      det.Email,
		SignPubDet: crypto.ToBase64URL(det.Ed.Public),
		EncPubRand: crypto.ToBase64URL(reg.Runtime.X.Public[:]),
		CMaster:    crypto.ToBase64URL(sealed),
		Version:    crypto.KDFSuiteVersion,
	})
	if err != nil {
		return nil, wrapError(err)
	}

	c.logger.Info("registered", "email", det.Email)
	return userFromAPI(*out)
}

// Login derives the password identity, fetches the caller's record, opens
// the sealed master and derives the messaging keys. Every failure that could
// stem from a wrong password returns ErrSealOpenFailure. An existing session
// is logged out first.
func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	c.loginMu.Lock()
	defer c.loginMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClientClosed
	}
	prev := c.session
	c.session = nil
	c.mu.Unlock()
	if prev != nil {
		prev.Logout()
	}

	det, err := c.deriveIdentity(ctx, email, password)
	if err != nil {
		return nil, err
	}

	s, err := c.openSession(ctx, det)
	if err != nil {
		det.Wipe()
		return nil, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		s.Logout()
		return nil, ErrClientClosed
	}
	prev = c.session
	c.session = s
	c.mu.Unlock()
	if prev != nil && prev != s {
		prev.Logout()
	}

	c.logger.Info("logged in", "email", s.email)
	return s, nil
}

func (c *Client) openSession(ctx context.Context, det *crypto.Identity) (*Session, error) {
	s := newSession(c, det)

	rec, err := c.apiClient.Login(ctx, s)
	if err != nil {
		// A wrong password yields a signing key the relay does not know.
		if errors.Is(err, api.ErrUnauthorized) {
			return nil, ErrSealOpenFailure
		}
		return nil, wrapError(err)
	}

	sealed, err := crypto.DecodeBase64(rec.CMaster)
	if err != nil {
		return nil, ErrSealOpenFailure
	}
	master, err := crypto.Unseal(sealed, det.X)
	if err != nil {
		return nil, ErrSealOpenFailure
	}
	rt, err := crypto.DeriveRuntimeFromMaster(master)
	memguard.WipeBytes(master)
	if err != nil {
		return nil, wrapError(err)
	}

	if published, err := crypto.DecodeBase64(rec.EncPubRand); err != nil || !rt.X.Equal(published) {
		rt.Wipe()
		return nil, &KeyDerivationError{Stage: "runtime", Err: fmt.Errorf("derived key does not match the published key")}
	}

	s.runtime = rt
	s.rcptID = rec.RecipientID
	return s, nil
}

// Session returns the active session.
func (c *Client) Session() (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClientClosed
	}
	if c.session == nil {
		return nil, ErrNotLoggedIn
	}
	return c.session, nil
}

// detach forgets s if it is the active session.
func (c *Client) detach(s *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == s {
		c.session = nil
	}
}

// Close logs out the active session and releases resources.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	s := c.session
	c.session = nil
	c.mu.Unlock()

	if s != nil {
		return s.Logout()
	}
	return nil
}
