package api

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryConfig_ShouldRetry(t *testing.T) {
	cfg := DefaultRetryConfig()

	tests := []struct {
		attempt    int
		statusCode int
		want       bool
	}{
		{0, 503, true},
		{2, 429, true},
		{3, 503, false},
		{0, 400, false},
		{0, 401, false},
		{0, 404, false},
		{0, 409, false},
	}
	for _, tt := range tests {
		if got := cfg.ShouldRetry(tt.attempt, tt.statusCode); got != tt.want {
			t.Errorf("ShouldRetry(%d, %d) = %v, want %v", tt.attempt, tt.statusCode, got, tt.want)
		}
	}
}

func TestRetryConfig_Delay(t *testing.T) {
	cfg := &RetryConfig{BaseDelay: time.Second, MaxDelay: 30 * time.Second, Multiplier: 2}

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, 30 * time.Second}
	for attempt, w := range want {
		if got := cfg.Delay(attempt); got != w {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, w)
		}
	}

	cfg.Jitter = 0.5
	for range 50 {
		if d := cfg.Delay(0); d < 500*time.Millisecond || d > 1500*time.Millisecond {
			t.Fatalf("Delay(0) with jitter = %v", d)
		}
	}
}

func TestRetryConfig_Wait_Canceled(t *testing.T) {
	cfg := &RetryConfig{BaseDelay: 10 * time.Second, MaxDelay: time.Minute, Multiplier: 2}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	if err := cfg.Wait(ctx, 0); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() error = %v, want DeadlineExceeded", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Wait() ignored cancellation")
	}
}

func TestNewRetryConfig_CustomCodes(t *testing.T) {
	cfg := newRetryConfig(2, time.Millisecond, []int{418})
	if !cfg.ShouldRetry(0, 418) || cfg.ShouldRetry(0, 503) {
		t.Error("custom retry codes not honored")
	}
}
