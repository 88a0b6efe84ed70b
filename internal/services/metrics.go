package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all custom Prometheus metrics for the assistant.
// All Record methods are safe on a nil *Metrics so packages can call
// GetMetrics() before InitMetrics has run (tests, tools).
type Metrics struct {
	// Assistant request metrics
	AssistantRequests       *prometheus.CounterVec
	AssistantRequestLatency prometheus.Histogram
	StageLatency            *prometheus.HistogramVec

	// Model call metrics
	ModelCalls *prometheus.CounterVec

	// Project cache metrics
	CacheLookups *prometheus.CounterVec
}

var globalMetrics *Metrics

// InitMetrics initializes the Prometheus metrics
func InitMetrics(cache *ProjectDataCache) *Metrics {
	metrics := &Metrics{
		// Requests by outcome: answered, off_topic, fallback, not_found, error
		AssistantRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "projectpilot_assistant_requests_total",
			Help: "Total number of assistant requests by outcome",
		}, []string{"outcome"}),

		AssistantRequestLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "projectpilot_assistant_request_duration_seconds",
			Help:    "Assistant request latency in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60}, // model calls dominate
		}),

		StageLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "projectpilot_assistant_stage_duration_seconds",
			Help:    "Latency of individual assistant pipeline stages",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),

		ModelCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "projectpilot_model_calls_total",
			Help: "Total number of language model calls by result",
		}, []string{"result"}),

		CacheLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "projectpilot_project_cache_lookups_total",
			Help: "Project cache lookups by result (hit or miss)",
		}, []string{"result"}),
	}

	// Live subscription and entry counts come straight from the cache
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "projectpilot_project_cache_subscriptions",
			Help: "Current number of live project change subscriptions",
		},
		func() float64 {
			if cache != nil {
				return float64(cache.SubscriptionCount())
			}
			return 0
		},
	))
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "projectpilot_project_cache_entries",
			Help: "Current number of cached project aggregates",
		},
		func() float64 {
			if cache != nil {
				return float64(cache.Stats().Entries)
			}
			return 0
		},
	))

	globalMetrics = metrics
	return metrics
}

// GetMetrics returns the global metrics instance
func GetMetrics() *Metrics {
	return globalMetrics
}

// RecordRequest records a finished assistant request
func (m *Metrics) RecordRequest(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.AssistantRequests.WithLabelValues(outcome).Inc()
	m.AssistantRequestLatency.Observe(seconds)
}

// RecordStage records the latency of one pipeline stage
func (m *Metrics) RecordStage(stage string, seconds float64) {
	if m == nil {
		return
	}
	m.StageLatency.WithLabelValues(stage).Observe(seconds)
}

// RecordModelCall records a model call result: ok, error, empty, rate_limited
func (m *Metrics) RecordModelCall(result string) {
	if m == nil {
		return
	}
	m.ModelCalls.WithLabelValues(result).Inc()
}

// RecordCacheLookup records a project cache hit or miss
func (m *Metrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}
