// Package metrics exposes Prometheus instruments for the SDK. A nil *Metrics
// is valid and records nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sealdrop"

// Metrics holds the SDK collectors.
type Metrics struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	kdfDuration     *prometheus.HistogramVec
	decrypts        *prometheus.CounterVec
	reconnects      prometheus.Counter
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_requests_total",
			Help:      "Relay HTTP requests by operation and status code.",
		}, []string{"op", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "relay_request_duration_seconds",
			Help:      "Relay HTTP request latency including retries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		kdfDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kdf_duration_seconds",
			Help:      "Argon2id derivation time.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2, 5},
		}, []string{"kind"}),
		decrypts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "envelopes_opened_total",
			Help:      "Envelope decryptions by outcome.",
		}, []string{"result"}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_reconnects_total",
			Help:      "Push stream reconnect attempts.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.requestDuration, m.kdfDuration, m.decrypts, m.reconnects)
	}
	return m
}

// ObserveRequest records one relay call. code is 0 for transport failures.
func (m *Metrics) ObserveRequest(op string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(op, strconv.Itoa(code)).Inc()
	m.requestDuration.WithLabelValues(op).Observe(d.Seconds())
}

// ObserveKDF records an Argon2id run; kind is "deterministic" or "random".
func (m *Metrics) ObserveKDF(kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.kdfDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// CountDecrypt records an envelope outcome: "incoming", "outgoing",
// "unverified" or "failed".
func (m *Metrics) CountDecrypt(result string) {
	if m == nil {
		return
	}
	m.decrypts.WithLabelValues(result).Inc()
}

// CountReconnect records a push stream reconnect attempt.
func (m *Metrics) CountReconnect() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}
