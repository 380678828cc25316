// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every collector the handlers touch.
type Metrics struct {
	Requests       *prometheus.CounterVec
	Duration       *prometheus.HistogramVec
	QuotaDenials   *prometheus.CounterVec
	UpstreamErrors *prometheus.CounterVec
	LockConflicts  *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voicediary_requests_total",
			Help: "API requests by handler and response code.",
		}, []string{"handler", "code"}),
		Duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voicediary_request_duration_seconds",
			Help:    "Request latency by handler.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"handler"}),
		QuotaDenials: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voicediary_quota_denials_total",
			Help: "Requests denied by the daily quota, by action.",
		}, []string{"action"}),
		UpstreamErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voicediary_upstream_errors_total",
			Help: "Failed upstream calls by service.",
		}, []string{"service"}),
		LockConflicts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voicediary_lock_conflicts_total",
			Help: "Posting requests rejected because the date lock was held.",
		}, []string{"action"}),
	}
}
