// Package metrics exposes prometheus instrumentation for orchestration
// runs, stage retries, and provider calls.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors the orchestration core records into.
type Metrics struct {
	// Runs counts orchestration runs by terminal outcome.
	Runs *prometheus.CounterVec
	// RunDuration observes wall-clock run duration in seconds.
	RunDuration prometheus.Histogram
	// StageRetries counts retries per pipeline stage.
	StageRetries *prometheus.CounterVec
	// StageFailures counts terminal stage failures by failure class.
	StageFailures *prometheus.CounterVec
}

// New registers the knowflow collectors with the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "knowflow",
			Name:      "runs_total",
			Help:      "Orchestration runs by outcome.",
		}, []string{"outcome"}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "knowflow",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of orchestration runs.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		StageRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "knowflow",
			Name:      "stage_retries_total",
			Help:      "Stage retries by task kind.",
		}, []string{"kind"}),
		StageFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "knowflow",
			Name:      "stage_failures_total",
			Help:      "Terminal stage failures by task kind and class.",
		}, []string{"kind", "class"}),
	}
}

// Nop returns metrics backed by a private registry, for tests and
// callers that do not export.
func Nop() *Metrics {
	return New(prometheus.NewRegistry())
}
