package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "carpool_matching"

var (
	SearchesTotal       = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "searches_total", Help: "Total match searches"})
	SearchLatency       = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "search_latency_seconds", Help: "Match search latency seconds"})
	CandidatesScored    = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "candidates_scored_total", Help: "Candidates that reached the scoring engine"})
	CandidatesFiltered  = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "candidates_filtered_total", Help: "Candidates dropped before ranking"}, []string{"reason"})
	ProviderFailures    = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "trips_provider_failures_total", Help: "Trips provider calls that failed and degraded to an empty result"})
	UpsertFailures      = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "match_upsert_failures_total", Help: "Match rows that failed to persist during a search"})
	Transitions         = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "match_transitions_total", Help: "Match status transitions by outcome"}, []string{"to", "result"})
	NotificationFailure = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "notification_failures_total", Help: "Match notifications that could not be delivered"}, []string{"event"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
