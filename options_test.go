package sealdrop

import (
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestDeliveryStrategy_Constants(t *testing.T) {
	if StrategyAuto != "auto" {
		t.Errorf("StrategyAuto = %s, want auto", StrategyAuto)
	}
	if StrategyWebSocket != "websocket" {
		t.Errorf("StrategyWebSocket = %s, want websocket", StrategyWebSocket)
	}
	if StrategyPolling != "polling" {
		t.Errorf("StrategyPolling = %s, want polling", StrategyPolling)
	}
}

func TestDefaultConstants(t *testing.T) {
	if defaultBaseURL != "http://localhost:8000" {
		t.Errorf("defaultBaseURL = %s, want http://localhost:8000", defaultBaseURL)
	}
	if defaultWaitTimeout != 60*time.Second {
		t.Errorf("defaultWaitTimeout = %v, want 60s", defaultWaitTimeout)
	}
}

func TestDefaultKDFParams(t *testing.T) {
	p := DefaultKDFParams()
	if p.Time != 3 {
		t.Errorf("Time = %d, want 3", p.Time)
	}
	if p.MemoryKiB != 64*1024 {
		t.Errorf("MemoryKiB = %d, want 65536", p.MemoryKiB)
	}
	if p.Parallelism != 4 {
		t.Errorf("Parallelism = %d, want 4", p.Parallelism)
	}
}

func TestClientOptions(t *testing.T) {
	hc := &http.Client{Timeout: 99 * time.Second}
	reg := prometheus.NewRegistry()
	var called bool

	cfg := &clientConfig{}
	for _, opt := range []Option{
		WithBaseURL("https://relay.example.com"),
		WithHTTPClient(hc),
		WithTimeout(5 * time.Second),
		WithRetries(7),
		WithRetryOn([]int{503}),
		WithRateLimit(10, 2),
		WithKDFParams(KDFParams{Time: 1, MemoryKiB: 8, Parallelism: 1}),
		WithTokenTTL(time.Minute),
		WithDebugCrypto(true),
		WithMetrics(reg),
		WithDeliveryStrategy(StrategyPolling),
		WithPollingInterval(time.Second),
		WithAEAD(AEADAES256GCM),
		WithDecryptConcurrency(3),
		WithOnDecryptError(func(error) { called = true }),
	} {
		opt(cfg)
	}

	if cfg.baseURL != "https://relay.example.com" {
		t.Errorf("baseURL = %s", cfg.baseURL)
	}
	if cfg.httpClient != hc {
		t.Error("httpClient not set")
	}
	if cfg.timeout != 5*time.Second {
		t.Errorf("timeout = %v", cfg.timeout)
	}
	if cfg.retries != 7 {
		t.Errorf("retries = %d", cfg.retries)
	}
	if len(cfg.retryOn) != 1 || cfg.retryOn[0] != 503 {
		t.Errorf("retryOn = %v", cfg.retryOn)
	}
	if cfg.rateLimit != 10 || cfg.rateBurst != 2 {
		t.Errorf("rate limit = %v/%d", cfg.rateLimit, cfg.rateBurst)
	}
	if cfg.kdf.MemoryKiB != 8 {
		t.Errorf("kdf = %+v", cfg.kdf)
	}
	if cfg.tokenTTL != time.Minute {
		t.Errorf("tokenTTL = %v", cfg.tokenTTL)
	}
	if !cfg.debugCrypto {
		t.Error("debugCrypto not set")
	}
	if cfg.registerer != reg {
		t.Error("registerer not set")
	}
	if cfg.deliveryStrategy != StrategyPolling {
		t.Errorf("deliveryStrategy = %s", cfg.deliveryStrategy)
	}
	if cfg.pollingInterval != time.Second {
		t.Errorf("pollingInterval = %v", cfg.pollingInterval)
	}
	if cfg.aead != AEADAES256GCM {
		t.Errorf("aead = %s", cfg.aead)
	}
	if cfg.decryptConcurrency != 3 {
		t.Errorf("decryptConcurrency = %d", cfg.decryptConcurrency)
	}
	cfg.onDecryptError(nil)
	if !called {
		t.Error("onDecryptError not set")
	}
}

func TestWithFrom_Normalizes(t *testing.T) {
	cfg := &waitConfig{}
	WithFrom("  Alice@Example.COM ")(cfg)
	if cfg.from != "alice@example.com" {
		t.Errorf("from = %q, want alice@example.com", cfg.from)
	}
}

func TestWithWaitTimeout(t *testing.T) {
	cfg := &waitConfig{}
	WithWaitTimeout(30 * time.Second)(cfg)
	if cfg.timeout != 30*time.Second {
		t.Errorf("timeout = %v, want 30s", cfg.timeout)
	}
}

func TestWaitConfig_Matches(t *testing.T) {
	msg := &Message{From: "alice@example.com", Text: "hello bob"}

	tests := []struct {
		name string
		opts []WaitOption
		want bool
	}{
		{"no filters", nil, true},
		{"from matches", []WaitOption{WithFrom("alice@example.com")}, true},
		{"from differs", []WaitOption{WithFrom("carol@example.com")}, false},
		{"predicate true", []WaitOption{WithPredicate(func(m *Message) bool { return m.Text == "hello bob" })}, true},
		{"predicate false", []WaitOption{WithPredicate(func(*Message) bool { return false })}, false},
		{
			"both must match",
			[]WaitOption{WithFrom("alice@example.com"), WithPredicate(func(*Message) bool { return false })},
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newWaitConfig(tt.opts)
			if got := cfg.Matches(msg); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNew_InvalidAEAD(t *testing.T) {
	if _, err := New(WithAEAD("rot13")); err == nil {
		t.Error("New() with unknown AEAD should fail")
	}
}

func TestNew_InvalidBaseURL(t *testing.T) {
	if _, err := New(WithBaseURL("relay.example.com")); err == nil {
		t.Error("New() with a schemeless base URL should fail")
	}
}
