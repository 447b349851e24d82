package llm

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "synapse",
		Subsystem: "llm",
		Name:      "attempts_total",
		Help:      "Provider attempts by provider and outcome.",
	}, []string{"provider", "outcome"})
	metricAttemptSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "synapse",
		Subsystem: "llm",
		Name:      "attempt_duration_seconds",
		Help:      "Wall time of a single provider attempt.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
	}, []string{"provider"})
	metricExhausted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "synapse",
		Subsystem: "llm",
		Name:      "dispatch_exhausted_total",
		Help:      "Dispatches where every configured route failed.",
	})
	metricNoCredential = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "synapse",
		Subsystem: "llm",
		Name:      "dispatch_no_credential_total",
		Help:      "Dispatches refused because no credential was configured.",
	})
)

func recordAttempt(a Attempt) {
	metricAttempts.WithLabelValues(a.Provider, a.Outcome.String()).Inc()
	metricAttemptSeconds.WithLabelValues(a.Provider).Observe(a.Elapsed.Seconds())
}
