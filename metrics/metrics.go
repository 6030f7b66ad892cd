// Package metrics provides Prometheus collectors for API traffic, page loads
// and message sends.
//
// A nil *Metrics is valid and records nothing, so packages can accept one
// without forcing callers to register collectors.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors used across the client.
type Metrics struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	pageLoads       *prometheus.CounterVec
	sends           *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
// A nil reg leaves them unregistered, which is convenient in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clonr",
			Name:      "api_requests_total",
			Help:      "API requests by operation and HTTP status code.",
		}, []string{"op", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clonr",
			Name:      "api_request_duration_seconds",
			Help:      "API request latency by operation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		pageLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clonr",
			Name:      "page_loads_total",
			Help:      "Page loads by feed and result (ok, error, discarded).",
		}, []string{"feed", "result"}),
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clonr",
			Name:      "message_sends_total",
			Help:      "Message sends by outcome.",
		}, []string{"outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.requestDuration, m.pageLoads, m.sends)
	}
	return m
}

// ObserveRequest records one API call. code is 0 for transport errors.
func (m *Metrics) ObserveRequest(op string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(op, strconv.Itoa(code)).Inc()
	m.requestDuration.WithLabelValues(op).Observe(d.Seconds())
}

// PageLoaded records the result of one page fetch for a feed.
func (m *Metrics) PageLoaded(feed, result string) {
	if m == nil {
		return
	}
	m.pageLoads.WithLabelValues(feed, result).Inc()
}

// MessageSent records the outcome of one send.
func (m *Metrics) MessageSent(outcome string) {
	if m == nil {
		return
	}
	m.sends.WithLabelValues(outcome).Inc()
}
