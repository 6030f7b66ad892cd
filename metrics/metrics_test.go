package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsRecordNothing(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRequest("list_clones", 200, time.Millisecond)
		m.PageLoaded("clones", "ok")
		m.MessageSent("confirmed")
	})
}

func TestCollectorsCount(t *testing.T) {
	m := New(nil)

	m.ObserveRequest("list_clones", 200, 10*time.Millisecond)
	m.ObserveRequest("list_clones", 200, 20*time.Millisecond)
	m.ObserveRequest("create_message", 402, time.Millisecond)
	m.PageLoaded("clones", "ok")
	m.PageLoaded("clones", "discarded")
	m.MessageSent("quota_exceeded")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("list_clones", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("create_message", "402")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.pageLoads.WithLabelValues("clones", "discarded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sends.WithLabelValues("quota_exceeded")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.requestDuration))
}

func TestNewRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.MessageSent("confirmed")

	expected := `
# HELP clonr_message_sends_total Message sends by outcome.
# TYPE clonr_message_sends_total counter
clonr_message_sends_total{outcome="confirmed"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "clonr_message_sends_total"))

	// Registering the same collectors twice is a programming error.
	assert.Panics(t, func() { New(reg) })
}
