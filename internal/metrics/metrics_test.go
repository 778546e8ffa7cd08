package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := newMetrics(prometheus.NewRegistry())

	m.CommandsTotal.WithLabelValues("ok").Inc()
	m.CommandsTotal.WithLabelValues("ok").Inc()
	m.CommandsTotal.WithLabelValues("nonzero").Inc()
	m.CommandFailures.WithLabelValues("timeout").Inc()
	m.SamplesCollected.WithLabelValues("cpu").Add(12)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CommandsTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommandsTotal.WithLabelValues("nonzero")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommandFailures.WithLabelValues("timeout")))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.SamplesCollected.WithLabelValues("cpu")))
}

func TestMetrics_DurationHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newMetrics(reg)

	m.CommandDuration.Observe(0.25)
	m.CommandDuration.Observe(1.5)

	count, err := testutil.GatherAndCount(reg, "shellog_command_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMetrics_Handler(t *testing.T) {
	m := newMetrics(prometheus.NewRegistry())

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.NotEmpty(t, rec.Body.String())
}

func TestMetrics_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	newMetrics(reg)
	assert.Panics(t, func() { newMetrics(reg) })
}
