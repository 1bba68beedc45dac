package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveRequest("login", 200, 10*time.Millisecond)
	m.ObserveRequest("login", 200, 20*time.Millisecond)
	m.ObserveRequest("messages.send", 404, time.Millisecond)
	m.CountDecrypt("incoming")
	m.CountReconnect()
	m.ObserveKDF("deterministic", time.Second)

	if got := testutil.ToFloat64(m.requests.WithLabelValues("login", "200")); got != 2 {
		t.Errorf("login requests = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.decrypts.WithLabelValues("incoming")); got != 1 {
		t.Errorf("incoming decrypts = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.reconnects); got != 1 {
		t.Errorf("reconnects = %v, want 1", got)
	}
	if n, err := testutil.GatherAndCount(reg, "sealdrop_kdf_duration_seconds"); err != nil || n != 1 {
		t.Errorf("kdf series = %d, %v", n, err)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.ObserveRequest("login", 200, time.Second)
	m.ObserveKDF("random", time.Second)
	m.CountDecrypt("failed")
	m.CountReconnect()
}
