package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CandidatesScored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lostfound_candidates_scored_total",
			Help: "Total number of candidate pairs scored",
		},
	)

	ScoringFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lostfound_scoring_failures_total",
			Help: "Total number of candidate pairs whose scoring failed",
		},
	)

	MatchesCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lostfound_matches_created_total",
			Help: "Total number of matches that passed the confidence threshold",
		},
	)

	CollaboratorFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lostfound_collaborator_fallbacks_total",
			Help: "Number of times a collaborator failed and a fallback value was used",
		},
		[]string{"capability"},
	)

	ScoringDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lostfound_scoring_duration_seconds",
			Help:    "Duration of scoring one candidate pair",
			Buckets: prometheus.DefBuckets,
		},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lostfound_http_requests_total",
			Help: "Total number of HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lostfound_http_request_duration_seconds",
			Help:    "Duration of HTTP requests by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)
