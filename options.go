package sealdrop

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sealdrop/client-go/internal/crypto"
)

// DeliveryStrategy specifies how a session receives new messages.
type DeliveryStrategy string

const (
	// StrategyAuto tries the push stream first and falls back to polling.
	StrategyAuto DeliveryStrategy = "auto"
	// StrategyWebSocket holds the relay push stream open.
	StrategyWebSocket DeliveryStrategy = "websocket"
	// StrategyPolling pages the inbox with adaptive backoff.
	StrategyPolling DeliveryStrategy = "polling"
)

// KDFParams are the Argon2id cost parameters. Every device of one user must
// use the same values, parallelism included.
type KDFParams = crypto.Params

// DefaultKDFParams returns time 3, 64 MiB and parallelism 4.
func DefaultKDFParams() KDFParams {
	return crypto.DefaultParams()
}

// AEAD names the envelope cipher.
type AEAD = crypto.Algorithm

const (
	// AEADXChaCha20Poly1305 is the default envelope cipher.
	AEADXChaCha20Poly1305 = crypto.AlgXChaCha20Poly1305
	// AEADAES256GCM is AES-256-GCM.
	AEADAES256GCM = crypto.AlgAES256GCM
)

const (
	defaultBaseURL      = "http://localhost:8000"
	defaultTimeout      = 30 * time.Second
	defaultWaitTimeout  = 60 * time.Second
	defaultPollInterval = 2 * time.Second
)

// clientConfig holds configuration for the client.
type clientConfig struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	retries    int
	retryOn    []int
	rateLimit  float64
	rateBurst  int

	kdf                crypto.Params
	tokenTTL           time.Duration
	aead               crypto.Algorithm
	decryptConcurrency int

	logger      *slog.Logger
	debugCrypto bool
	registerer  prometheus.Registerer

	deliveryStrategy DeliveryStrategy
	pollingInterval  time.Duration

	onDecryptError func(error)
}

// waitConfig holds configuration for waiting on messages.
type waitConfig struct {
	from      string
	predicate func(*Message) bool
	timeout   time.Duration
}

// Option configures the client.
type Option func(*clientConfig)

// WaitOption configures message waiting.
type WaitOption func(*waitConfig)

// WithBaseURL sets the relay base URL.
func WithBaseURL(url string) Option {
	return func(c *clientConfig) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client. It overrides WithTimeout.
func WithHTTPClient(client *http.Client) Option {
	return func(c *clientConfig) {
		c.httpClient = client
	}
}

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *clientConfig) {
		c.timeout = timeout
	}
}

// WithRetries sets the number of retries for relay calls.
func WithRetries(count int) Option {
	return func(c *clientConfig) {
		c.retries = count
	}
}

// WithRetryOn sets the HTTP status codes that trigger a retry.
// Default: [408, 429, 500, 502, 503, 504]
func WithRetryOn(statusCodes []int) Option {
	return func(c *clientConfig) {
		c.retryOn = statusCodes
	}
}

// WithRateLimit caps outgoing relay requests per second.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *clientConfig) {
		c.rateLimit = perSecond
		c.rateBurst = burst
	}
}

// WithKDFParams sets the Argon2id cost parameters.
func WithKDFParams(params KDFParams) Option {
	return func(c *clientConfig) {
		c.kdf = params
	}
}

// WithTokenTTL sets the lifetime of session tokens.
// Default: 5 minutes
func WithTokenTTL(ttl time.Duration) Option {
	return func(c *clientConfig) {
		c.tokenTTL = ttl
	}
}

// WithLogger sets the logger. Attributes that look like secrets are
// redacted and addresses are replaced by fingerprints before they reach it.
func WithLogger(logger *slog.Logger) Option {
	return func(c *clientConfig) {
		c.logger = logger
	}
}

// WithDebugCrypto logs nonces and ephemeral public keys at debug level.
func WithDebugCrypto(enabled bool) Option {
	return func(c *clientConfig) {
		c.debugCrypto = enabled
	}
}

// WithMetrics registers the client's Prometheus collectors with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *clientConfig) {
		c.registerer = reg
	}
}

// WithDeliveryStrategy sets the delivery strategy.
func WithDeliveryStrategy(strategy DeliveryStrategy) Option {
	return func(c *clientConfig) {
		c.deliveryStrategy = strategy
	}
}

// WithPollingInterval sets the initial polling interval.
// Default: 2 seconds
func WithPollingInterval(interval time.Duration) Option {
	return func(c *clientConfig) {
		c.pollingInterval = interval
	}
}

// WithAEAD selects the cipher for outgoing envelopes. Both ciphers are always
// accepted on receive.
func WithAEAD(alg AEAD) Option {
	return func(c *clientConfig) {
		c.aead = alg
	}
}

// WithDecryptConcurrency bounds concurrent envelope decryption.
// Default: 8
func WithDecryptConcurrency(n int) Option {
	return func(c *clientConfig) {
		c.decryptConcurrency = n
	}
}

// WithOnDecryptError sets a callback for envelopes that could not be opened.
// Each error is an *EnvelopeError.
func WithOnDecryptError(fn func(error)) Option {
	return func(c *clientConfig) {
		c.onDecryptError = fn
	}
}

// WithFrom filters messages by sender email.
func WithFrom(email string) WaitOption {
	return func(c *waitConfig) {
		c.from = crypto.NormalizeEmail(email)
	}
}

// WithPredicate filters messages by custom predicate.
func WithPredicate(fn func(*Message) bool) WaitOption {
	return func(c *waitConfig) {
		c.predicate = fn
	}
}

// WithWaitTimeout sets the timeout for waiting.
func WithWaitTimeout(timeout time.Duration) WaitOption {
	return func(c *waitConfig) {
		c.timeout = timeout
	}
}

// Matches checks if a message matches the wait criteria.
func (w *waitConfig) Matches(m *Message) bool {
	if w.from != "" && m.From != w.from {
		return false
	}
	if w.predicate != nil && !w.predicate(m) {
		return false
	}
	return true
}
