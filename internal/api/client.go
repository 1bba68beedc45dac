package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/sealdrop/client-go/internal/metrics"
	"github.com/sealdrop/client-go/internal/privacylog"
)

const (
	// DefaultTimeout is the per-request HTTP timeout.
	DefaultTimeout = 30 * time.Second
	// DefaultMaxRetries is the number of retries after the first attempt.
	DefaultMaxRetries = 3
	// DefaultRetryDelay is the base backoff delay.
	DefaultRetryDelay = time.Second
)

// DefaultRetryOn lists the status codes retried by default.
var DefaultRetryOn = []int{
	http.StatusRequestTimeout,
	http.StatusTooManyRequests,
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

// Authorizer supplies per-request credentials. Token is called once per
// attempt so a retried request never reuses a jti.
type Authorizer interface {
	Email() string
	Token(action string, extra map[string]any) (string, error)
}

// Config holds the relay client configuration.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	MaxRetries int
	RetryDelay time.Duration
	RetryOn    []int
	// RateLimit caps outgoing requests per second; zero disables limiting.
	RateLimit float64
	RateBurst int
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
}

// Client talks to the relay over HTTP. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	retryDelay time.Duration
	retry      *RetryConfig
	limiter    *rate.Limiter
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewClient creates a relay client from cfg.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("invalid base URL %q", cfg.BaseURL)
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: cfg.HTTPClient,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		logger:     privacylog.Wrap(cfg.Logger),
		metrics:    cfg.Metrics,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	if c.maxRetries < 0 {
		c.maxRetries = 0
	}
	if c.retryDelay <= 0 {
		c.retryDelay = DefaultRetryDelay
	}
	retryOn := cfg.RetryOn
	if len(retryOn) == 0 {
		retryOn = DefaultRetryOn
	}
	c.retry = newRetryConfig(c.maxRetries, c.retryDelay, retryOn)

	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return c, nil
}

// Option configures a Client created with New.
type Option func(*Config)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Config) { c.HTTPClient = hc }
}

// WithRetries sets the retry count.
func WithRetries(n int) Option {
	return func(c *Config) { c.MaxRetries = n }
}

// WithRetryDelay sets the base backoff delay.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Config) { c.RetryDelay = d }
}

// WithRateLimit limits outgoing requests.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Config) {
		c.RateLimit = perSecond
		c.RateBurst = burst
	}
}

// New creates a relay client with functional options.
func New(baseURL string, opts ...Option) (*Client, error) {
	cfg := Config{BaseURL: baseURL, MaxRetries: DefaultMaxRetries}
	for _, opt := range opts {
		opt(&cfg)
	}
	return NewClient(cfg)
}

// BaseURL returns the relay base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// HTTPClient returns the underlying HTTP client.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// SetHTTPClient replaces the HTTP client. Not safe to call concurrently with
// requests.
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

// Do performs an unauthenticated JSON request.
func (c *Client) Do(ctx context.Context, method, path string, body, result any) error {
	return c.do(ctx, nil, request{method: method, path: path, body: body}, result)
}

type request struct {
	method string
	path   string
	query  url.Values
	body   any
	// act and extra are the token claims; act is also the metrics label.
	act   string
	extra map[string]any
}

func (r request) op() string {
	if r.act != "" {
		return r.act
	}
	return strings.TrimPrefix(r.path, "/")
}

func (c *Client) do(ctx context.Context, authz Authorizer, r request, result any) error {
	var payload []byte
	if r.body != nil {
		data, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		payload = data
	}

	target := c.baseURL + r.path
	if len(r.query) > 0 {
		target += "?" + r.query.Encode()
	}

	start := time.Now()
	var lastErr error
	status := 0
	defer func() {
		c.metrics.ObserveRequest(r.op(), status, time.Since(start))
	}()

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.DebugContext(ctx, "retrying relay request", "op", r.op(), "attempt", attempt, "error", lastErr)
			if err := c.retry.Wait(ctx, attempt-1); err != nil {
				return err
			}
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("rate limiter: %w", err)
			}
		}

		req, err := c.newRequest(ctx, authz, r, target, payload)
		if err != nil {
			return err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = &NetworkError{Err: err, URL: r.path, Attempt: attempt + 1}
			status = 0
			continue
		}

		status = resp.StatusCode
		if resp.StatusCode >= 400 {
			apiErr := parseErrorResponse(resp)
			resp.Body.Close()
			lastErr = apiErr
			if c.retry.ShouldRetry(attempt, resp.StatusCode) {
				continue
			}
			return apiErr
		}

		err = decodeResponse(resp, result)
		resp.Body.Close()
		return err
	}

	return lastErr
}

func (c *Client) newRequest(ctx context.Context, authz Authorizer, r request, target string, payload []byte) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if authz != nil {
		tok, err := authz.Token(r.act, r.extra)
		if err != nil {
			return nil, fmt.Errorf("sign %s token: %w", r.act, err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
		req.Header.Set("X-User-Email", authz.Email())
	}
	return req, nil
}

func decodeResponse(resp *http.Response, result any) error {
	if result == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func parseErrorResponse(resp *http.Response) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var errResp struct {
		Detail    any    `json:"detail"`
		Error     string `json:"error"`
		Message   string `json:"message"`
		RequestID string `json:"request_id"`
	}

	apiErr := &APIError{StatusCode: resp.StatusCode, RequestID: resp.Header.Get("X-Request-Id")}
	if err := json.Unmarshal(body, &errResp); err == nil {
		switch {
		case errResp.Error != "":
			apiErr.Message = errResp.Error
		case errResp.Message != "":
			apiErr.Message = errResp.Message
		case errResp.Detail != nil:
			apiErr.Message = fmt.Sprint(errResp.Detail)
		}
		if errResp.RequestID != "" {
			apiErr.RequestID = errResp.RequestID
		}
		return apiErr
	}

	apiErr.Message = strings.TrimSpace(string(body))
	return apiErr
}
