package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kiwigeek"

// Metrics records assistant turn observations in Prometheus collectors
type Metrics struct {
	registry *prometheus.Registry

	turns             *prometheus.CounterVec
	attempts          prometheus.Histogram
	turnDuration      *prometheus.HistogramVec
	filteredOptions   prometheus.Counter
	generatorFailures *prometheus.CounterVec
	sessionResets     prometheus.Counter
	activeSessions    prometheus.GaugeFunc
}

// New registers the assistant collectors, plus the Go runtime and process
// collectors, on a dedicated registry. activeSessions may be nil.
func New(activeSessions func() int) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "User turns by terminal state.",
		}, []string{"state"}),
		attempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generator_attempts",
			Help:      "Generator round-trips needed per turn.",
			Buckets:   []float64{1, 2, 3, 4, 5},
		}),
		turnDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Wall time of a user turn.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
		}, []string{"state"}),
		filteredOptions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "filtered_options_total",
			Help:      "Quote options hidden from customers by the result selector.",
		}),
		generatorFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generator_failures_total",
			Help:      "Transport failures talking to the quote generator.",
		}, []string{"provider"}),
		sessionResets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_resets_total",
			Help:      "Explicit session resets.",
		}),
	}

	registry.MustRegister(
		m.turns,
		m.attempts,
		m.turnDuration,
		m.filteredOptions,
		m.generatorFailures,
		m.sessionResets,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if activeSessions != nil {
		m.activeSessions = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Sessions currently held in memory.",
		}, func() float64 { return float64(activeSessions()) })
		registry.MustRegister(m.activeSessions)
	}

	return m
}

// ObserveTurn records a finished turn
func (m *Metrics) ObserveTurn(state string, attempts, filtered int, took time.Duration) {
	m.turns.WithLabelValues(state).Inc()
	m.turnDuration.WithLabelValues(state).Observe(took.Seconds())
	if attempts > 0 {
		m.attempts.Observe(float64(attempts))
	}
	if filtered > 0 {
		m.filteredOptions.Add(float64(filtered))
	}
}

// GeneratorFailure counts a generator transport failure
func (m *Metrics) GeneratorFailure(provider string) {
	m.generatorFailures.WithLabelValues(provider).Inc()
}

// SessionReset counts an explicit session reset
func (m *Metrics) SessionReset() {
	m.sessionResets.Inc()
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
