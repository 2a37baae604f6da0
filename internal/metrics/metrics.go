// Package metrics exposes the prometheus collectors the watcher and
// chain packages update, supplementing §7's "surfaces in logs and
// metrics" line for operator-attributable failures.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// TickDuration observes how long one full watcher tick took across
	// every non-terminal competition (§4.1).
	TickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "coordinator",
		Subsystem: "watcher",
		Name:      "tick_duration_seconds",
		Help:      "Duration of one competition watcher tick.",
		Buckets:   prometheus.DefBuckets,
	})

	// CompetitionsByState tracks how many non-terminal competitions sit
	// in each state, refreshed once per tick.
	CompetitionsByState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "coordinator",
		Subsystem: "watcher",
		Name:      "competitions_by_state",
		Help:      "Number of non-terminal competitions currently in each state.",
	}, []string{"state"})

	// HandlerFailures counts operator-attributable and protocol-violation
	// failures (§7), labelled by state and reason.
	HandlerFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coordinator",
		Subsystem: "watcher",
		Name:      "handler_failures_total",
		Help:      "Count of handler failures by state and reason.",
	}, []string{"state", "reason"})

	// BroadcastResults counts chain broadcaster outcomes (§4.6), labelled
	// by transaction kind and result.
	BroadcastResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coordinator",
		Subsystem: "chain",
		Name:      "broadcast_results_total",
		Help:      "Count of broadcast attempts by tx kind and result.",
	}, []string{"kind", "result"})
)

// MustRegister registers every collector above against reg. Called once
// from cmd/coordinatord at startup.
func MustRegister(reg *prometheus.Registry) {
	reg.MustRegister(TickDuration, CompetitionsByState, HandlerFailures, BroadcastResults)
}
