// Package metrics exposes Prometheus instrumentation for command execution.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics represents the collection of all Prometheus metrics
type Metrics struct {
	CommandsTotal    *prometheus.CounterVec
	CommandFailures  *prometheus.CounterVec
	CommandDuration  prometheus.Histogram
	SamplesCollected *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics on the default registry.
func NewMetrics() *Metrics {
	return newMetrics(prometheus.DefaultRegisterer)
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{}

	m.CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shellog_commands_total",
			Help: "Total number of commands executed",
		},
		[]string{"status"},
	)

	m.CommandFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shellog_command_failures_total",
			Help: "Total number of invocations that failed to complete",
		},
		[]string{"reason"},
	)

	m.CommandDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shellog_command_duration_seconds",
			Help:    "Wall-clock duration of executed commands in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		},
	)

	m.SamplesCollected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shellog_samples_collected_total",
			Help: "Total number of resource-usage samples recorded",
		},
		[]string{"metric"},
	)

	reg.MustRegister(
		m.CommandsTotal,
		m.CommandFailures,
		m.CommandDuration,
		m.SamplesCollected,
	)

	return m
}

// Handler returns the Prometheus HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}

// StartServer exposes /metrics on addr. Blocks.
func StartServer(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}
