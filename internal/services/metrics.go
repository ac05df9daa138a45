package services

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all custom Prometheus metrics for the application
type Metrics struct {
	// Verification outcomes: started, resumed, verified, not_found, rejected
	Verifications *prometheus.CounterVec

	// Ledger toggles by target (post|comment) and direction (up|down)
	UpvoteToggles *prometheus.CounterVec

	// Contribution submissions: created, unrecorded, failed
	Contributions *prometheus.CounterVec
	MergeBonus    prometheus.Counter

	// Outbound collaborator calls
	UpstreamRequests *prometheus.CounterVec
	UpstreamLatency  *prometheus.HistogramVec
}

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// InitMetrics initializes the Prometheus metrics
func InitMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			Verifications: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "moltingpot_verifications_total",
				Help: "Verification workflow events by outcome",
			}, []string{"outcome"}),

			UpvoteToggles: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "moltingpot_upvote_toggles_total",
				Help: "Upvote toggles by target kind and direction",
			}, []string{"target", "direction"}),

			Contributions: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "moltingpot_contributions_total",
				Help: "Contribution submissions by outcome",
			}, []string{"outcome"}),

			MergeBonus: promauto.NewCounter(prometheus.CounterOpts{
				Name: "moltingpot_merge_bonus_total",
				Help: "Merge bonuses granted",
			}),

			UpstreamRequests: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "moltingpot_upstream_requests_total",
				Help: "Outbound requests to GitHub and Twitter by status",
			}, []string{"service", "status"}),

			UpstreamLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "moltingpot_upstream_request_duration_seconds",
				Help:    "Outbound request latency in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 15},
			}, []string{"service"}),
		}
	})
	return globalMetrics
}

// GetMetrics returns the global metrics instance, nil before InitMetrics
func GetMetrics() *Metrics {
	return globalMetrics
}

func recordVerification(outcome string) {
	if m := GetMetrics(); m != nil {
		m.Verifications.WithLabelValues(outcome).Inc()
	}
}

func recordUpvoteToggle(target string, upvoted bool) {
	if m := GetMetrics(); m != nil {
		direction := "down"
		if upvoted {
			direction = "up"
		}
		m.UpvoteToggles.WithLabelValues(target, direction).Inc()
	}
}

func recordContribution(outcome string) {
	if m := GetMetrics(); m != nil {
		m.Contributions.WithLabelValues(outcome).Inc()
	}
}

func recordMergeBonus() {
	if m := GetMetrics(); m != nil {
		m.MergeBonus.Inc()
	}
}

func recordUpstream(service, status string, started time.Time) {
	if m := GetMetrics(); m != nil {
		m.UpstreamRequests.WithLabelValues(service, status).Inc()
		m.UpstreamLatency.WithLabelValues(service).Observe(time.Since(started).Seconds())
	}
}
