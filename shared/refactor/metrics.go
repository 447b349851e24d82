package refactor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricAnalyses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "synapse",
		Name:      "analyses_total",
		Help:      "Completed analyses by the path that produced the result.",
	}, []string{"source"})
	metricFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "synapse",
		Name:      "heuristic_fallbacks_total",
		Help:      "Times the heuristic engine answered, by reason.",
	}, []string{"reason"})
)

const (
	reasonNoCredential = "no_credential"
	reasonExhausted    = "exhausted"
	reasonMalformed    = "malformed_output"
)
