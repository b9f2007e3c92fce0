// Package metrics defines the Prometheus collectors for the experiment
// subsystem and the HTTP surface.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Experiment metrics
var (
	// AssignmentsTotal tracks treatment assignments by arm.
	AssignmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "experiment_assignments_total",
			Help: "Treatment assignments created, by arm",
		},
		[]string{"arm"},
	)

	// NudgesScheduledTotal counts nudge timers registered.
	NudgesScheduledTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "experiment_nudges_scheduled_total",
			Help: "Nudge timers scheduled",
		},
	)

	// NudgesAppliedTotal counts nudges applied successfully.
	NudgesAppliedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "experiment_nudges_applied_total",
			Help: "Nudges applied successfully, by arm",
		},
		[]string{"arm"},
	)

	// NudgesFailedTotal counts nudge attempts that failed and were abandoned.
	NudgesFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "experiment_nudges_failed_total",
			Help: "Nudge attempts abandoned after a failure, by reason",
		},
		[]string{"reason"},
	)

	// NudgesCancelledTotal counts pending nudges cancelled at shutdown.
	NudgesCancelledTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "experiment_nudges_cancelled_total",
			Help: "Pending nudge timers cancelled during shutdown",
		},
	)

	// PendingNudges tracks the current size of the pending-nudge registry.
	PendingNudges = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "experiment_pending_nudges",
			Help: "Nudge timers currently pending in this process",
		},
	)
)

// World-content scheduler metrics
var (
	// WorldItemsPublishedTotal counts world items published successfully.
	WorldItemsPublishedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "worldfeed_items_published_total",
			Help: "World content items published",
		},
	)

	// WorldItemsDroppedTotal counts world items dropped after a publish failure.
	WorldItemsDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "worldfeed_items_dropped_total",
			Help: "World content items dropped after a publish failure",
		},
	)

	// WorldItemsSkippedTotal counts malformed source lines skipped at load.
	WorldItemsSkippedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "worldfeed_items_skipped_total",
			Help: "Malformed world source lines skipped during load",
		},
	)
)

// HTTP metrics
var (
	// HTTPRequestsTotal tracks requests by method, path and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, path, and status",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks request latency in seconds.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"method", "path"},
	)
)
