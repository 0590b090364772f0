// internal/metrics/metrics.go
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mcp-meal-vision/internal/analysis"
)

var (
	once sync.Once

	// AttemptsTotal counts individual provider calls, labeled by result kind.
	AttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mealvision",
		Subsystem: "analysis",
		Name:      "attempts_total",
		Help:      "Total number of provider calls made by the analysis client, labeled by provider and result.",
	}, []string{"provider", "result"})

	// RequestsTotal counts Analyze calls by final outcome.
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mealvision",
		Subsystem: "analysis",
		Name:      "requests_total",
		Help:      "Total number of analysis requests, labeled by provider and final outcome.",
	}, []string{"provider", "outcome"})

	// DurationSeconds is wall-clock time per Analyze call, retries and backoff included.
	DurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mealvision",
		Subsystem: "analysis",
		Name:      "duration_seconds",
		Help:      "End-to-end analysis time including retries and backoff.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	}, []string{"provider", "outcome"})

	QuotaRejectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mealvision",
		Name:      "quota_rejections_total",
		Help:      "Total number of analyses refused because the daily free limit was reached.",
	})
)

// Register registers the metrics with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			AttemptsTotal,
			RequestsTotal,
			DurationSeconds,
			QuotaRejectionsTotal,
		)
	})
}

// Outcome is the label value for err: "success" or the error kind.
func Outcome(err error) string {
	if err == nil {
		return "success"
	}
	if kind := analysis.KindOf(err); kind != "" {
		return string(kind)
	}
	return "unknown"
}

// Observer feeds analysis client events into the collectors above.
type Observer struct{}

var _ analysis.Observer = Observer{}

func (Observer) AttemptFinished(provider string, _ int, err error, _ time.Duration) {
	AttemptsTotal.WithLabelValues(provider, Outcome(err)).Inc()
}

func (Observer) AnalysisFinished(provider string, err error, elapsed time.Duration) {
	outcome := Outcome(err)
	RequestsTotal.WithLabelValues(provider, outcome).Inc()
	DurationSeconds.WithLabelValues(provider, outcome).Observe(elapsed.Seconds())
}
