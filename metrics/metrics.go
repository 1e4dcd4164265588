// Package metrics exposes the process's Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mynah"

// Metrics holds every collector the bot reports into.
type Metrics struct {
	registry *prometheus.Registry

	generations       *prometheus.CounterVec
	generationSeconds *prometheus.HistogramVec
	messages          *prometheus.CounterVec
	sends             *prometheus.CounterVec
	keysActive        *prometheus.GaugeVec
}

// New creates and registers all collectors on a private registry.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.generations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Generations by endpoint and outcome variant",
		},
		[]string{"endpoint", "outcome"},
	)

	m.generationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_seconds",
			Help:      "Generation latency in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"endpoint"},
	)

	m.messages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Platform updates by handling kind",
		},
		[]string{"kind"},
	)

	m.sends = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sends_total",
			Help:      "Reply sends by parse mode and status",
		},
		[]string{"parse_mode", "status"},
	)

	m.keysActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "keys_active",
			Help:      "Active API keys per pool",
		},
		[]string{"pool"},
	)

	m.registry.MustRegister(
		m.generations,
		m.generationSeconds,
		m.messages,
		m.sends,
		m.keysActive,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveGeneration records one finished generation.
func (m *Metrics) ObserveGeneration(endpoint, outcome string, elapsed time.Duration) {
	m.generations.WithLabelValues(endpoint, outcome).Inc()
	m.generationSeconds.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

// CountMessage records one handled platform update.
func (m *Metrics) CountMessage(kind string) {
	m.messages.WithLabelValues(kind).Inc()
}

// CountSend records one reply send attempt.
func (m *Metrics) CountSend(parseMode, status string) {
	m.sends.WithLabelValues(parseMode, status).Inc()
}

// SetActiveKeys publishes pool occupancy.
func (m *Metrics) SetActiveKeys(pool string, n int) {
	m.keysActive.WithLabelValues(pool).Set(float64(n))
}
