package delivery

import (
	"testing"
	"time"
)

var (
	_ Strategy = (*PollingStrategy)(nil)
	_ Strategy = (*WebSocketStrategy)(nil)
	_ Strategy = (*AutoStrategy)(nil)
)

func TestReconnectDelay(t *testing.T) {
	base := 500 * time.Millisecond
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{-1, base},
		{0, base},
		{1, time.Second},
		{3, 4 * time.Second},
		{6, 32 * time.Second},
		{7, 32 * time.Second},
		{100, 32 * time.Second},
	}
	for _, tt := range tests {
		if got := ReconnectDelay(base, tt.attempt, DefaultMaxDoublings); got != tt.want {
			t.Errorf("ReconnectDelay(%v, %d) = %v, want %v", base, tt.attempt, got, tt.want)
		}
	}
}

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()

	if cfg.Dialer == nil {
		t.Error("Dialer is nil")
	}
	if cfg.PingInterval != DefaultPingInterval {
		t.Errorf("PingInterval = %v, want %v", cfg.PingInterval, DefaultPingInterval)
	}
	if cfg.PollingInterval != DefaultPollingInterval {
		t.Errorf("PollingInterval = %v, want %v", cfg.PollingInterval, DefaultPollingInterval)
	}
	if cfg.PageSize != DefaultPageSize {
		t.Errorf("PageSize = %d, want %d", cfg.PageSize, DefaultPageSize)
	}
	if cfg.Logger == nil {
		t.Error("Logger is nil")
	}
}

func TestConfig_WithDefaults_MaxBackoffNotBelowInterval(t *testing.T) {
	cfg := Config{
		PollingInterval:   time.Minute,
		PollingMaxBackoff: time.Second,
	}.withDefaults()

	if cfg.PollingMaxBackoff != time.Minute {
		t.Errorf("PollingMaxBackoff = %v, want %v", cfg.PollingMaxBackoff, time.Minute)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"websocket", "websocket"},
		{"polling", "polling"},
		{"auto", "auto"},
		{"", "auto"},
		{"carrier-pigeon", "auto"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := New(tt.name, Config{}).Name(); got != tt.want {
				t.Errorf("New(%q).Name() = %q, want %q", tt.name, got, tt.want)
			}
		})
	}
}
