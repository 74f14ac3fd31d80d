package triage

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for the triage subsystem.
type Metrics struct {
	TriagesTotal      *prometheus.CounterVec
	TriageDuration    *prometheus.HistogramVec
	ModelCallDuration *prometheus.HistogramVec
	ModelCallsTotal   *prometheus.CounterVec
}

// NewMetrics registers and returns triage metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TriagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_triages_total",
			Help: "Total triage runs by outcome.",
		}, []string{"outcome"}),
		TriageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "helpdesk_triage_duration_seconds",
			Help:    "Duration of triage runs in seconds, including persistence.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms .. ~25s
		}, []string{"outcome", "model"}),
		ModelCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "helpdesk_model_call_duration_seconds",
			Help:    "Duration of individual model calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"outcome"}),
		ModelCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_model_calls_total",
			Help: "Total model calls by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		m.TriagesTotal,
		m.TriageDuration,
		m.ModelCallDuration,
		m.ModelCallsTotal,
	)

	return m
}

// Hooks returns Hooks that update the corresponding metrics.
func (m *Metrics) Hooks() Hooks {
	return Hooks{
		OnModelCall: func(outcome Kind, d time.Duration) {
			label := outcomeLabel(outcome)
			m.ModelCallsTotal.WithLabelValues(label).Inc()
			m.ModelCallDuration.WithLabelValues(label).Observe(d.Seconds())
		},
		OnComplete: func(e *CompleteEvent) {
			label := outcomeLabel(e.Kind)
			m.TriagesTotal.WithLabelValues(label).Inc()
			m.TriageDuration.WithLabelValues(label, e.Model).Observe(e.Duration)
		},
	}
}
