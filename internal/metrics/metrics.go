package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP server metrics

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sim_hub_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sim_hub_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sim_hub_http_requests_in_flight",
			Help: "Number of HTTP requests currently being served",
		},
	)

	// Scheduler metrics

	ActiveRuns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sim_hub_scheduler_active_runs",
			Help: "Number of runs currently executing",
		},
	)

	RunsClaimed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sim_hub_scheduler_runs_claimed_total",
			Help: "Total number of runs claimed by this scheduler",
		},
	)

	ClaimConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sim_hub_scheduler_claim_conflicts_total",
			Help: "Total number of runs claimed by another scheduler first",
		},
	)

	RunsRecovered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sim_hub_scheduler_runs_recovered_total",
			Help: "Total number of orphaned running runs put back in the queue",
		},
	)

	// Run metrics

	RunOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sim_hub_run_outcomes_total",
			Help: "Total number of finished runs by status and result",
		},
		[]string{"status", "result"},
	)

	ConnectorLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sim_hub_connector_request_duration_seconds",
			Help:    "Duration of the requests to the agent under test",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"type", "outcome"},
	)

	JudgeFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sim_hub_judge_fallbacks_total",
			Help: "Total number of judge responses that could not be parsed",
		},
	)
)
