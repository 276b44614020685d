// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HttpRequestsTotal counts HTTP requests handled by the service.
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of http requests handled by the service.",
		},
		[]string{"path", "method", "code"},
	)

	// DispatchRunsTotal counts dispatch batch runs by result
	// (completed/skipped/failed).
	DispatchRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_runs_total",
			Help: "Total number of dispatch batch runs.",
		},
		[]string{"result"},
	)

	// SessionsDispatchedTotal counts sessions marked dispatched.
	SessionsDispatchedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sessions_dispatched_total",
			Help: "Total number of sessions fanned out to candidates.",
		},
	)

	// EmptyCandidateSetsTotal counts sessions skipped because candidate
	// resolution returned no providers. These sessions stay pending.
	EmptyCandidateSetsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "empty_candidate_sets_total",
			Help: "Total number of dispatch attempts that found no eligible providers.",
		},
	)

	// NotificationsTotal counts outbound notification deliveries by status
	// (sent/failed).
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Total number of outbound provider notifications attempted.",
		},
		[]string{"status"},
	)

	// InboundResponsesTotal counts inbound provider responses by decision and
	// correlator outcome.
	InboundResponsesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbound_responses_total",
			Help: "Total number of inbound provider responses by decision and outcome.",
		},
		[]string{"decision", "outcome"},
	)

	// IsLeader marks whether this node currently holds leadership.
	IsLeader = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "is_leader",
			Help: "Is this node currently the leader. 1 if leader, 0 otherwise.",
		},
		[]string{"node_id"},
	)
)
