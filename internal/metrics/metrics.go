// Package metrics provides Prometheus metrics for vault synchronization and
// prompt assembly.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Mutation outcomes.
const (
	OutcomeOK     = "ok"
	OutcomeDisk   = "disk_error"
	OutcomeDesync = "desync"
)

var (
	// Sync orchestrator metrics
	mutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vaultsync_mutations_total",
			Help: "Total number of vault mutations by operation and outcome",
		},
		[]string{"op", "outcome"},
	)

	mutationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vaultsync_mutation_duration_seconds",
			Help:    "Mutation duration including the index update",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	desyncsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vaultsync_desyncs_total",
			Help: "Total number of durable writes whose index update failed",
		},
	)

	indexRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vaultsync_index_retries_total",
			Help: "Total number of retried index operations",
		},
		[]string{"op"},
	)

	reconcileActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vaultsync_reconcile_actions_total",
			Help: "Records touched by reconciliation",
		},
		[]string{"action"},
	)

	// Vault tree
	treeSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vaultsync_tree_size",
			Help: "Number of files/directories in the last vault tree snapshot",
		},
	)

	// Prompt budgeting
	promptBuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vaultsync_prompt_builds_total",
			Help: "Total number of prompt augmentations by outcome",
		},
		[]string{"outcome"},
	)

	promptCutoffRatio = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vaultsync_prompt_cutoff_ratio",
			Help:    "Fraction of file content kept in augmented prompts",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordMutation records one orchestrator mutation.
func RecordMutation(op, outcome string, duration time.Duration) {
	mutationsTotal.WithLabelValues(op, outcome).Inc()
	mutationDuration.WithLabelValues(op).Observe(duration.Seconds())
	if outcome == OutcomeDesync {
		desyncsTotal.Inc()
	}
}

func RecordIndexRetry(op string) {
	indexRetriesTotal.WithLabelValues(op).Inc()
}

// RecordReconcile adds n to the counter for action (updated, removed, added, failed).
func RecordReconcile(action string, n int) {
	if n <= 0 {
		return
	}
	reconcileActionsTotal.WithLabelValues(action).Add(float64(n))
}

func SetTreeSize(size int) {
	treeSize.Set(float64(size))
}

// RecordPromptBuild records a prompt augmentation. ratio is kept/total bytes
// and is ignored for failed builds.
func RecordPromptBuild(outcome string, ratio float64) {
	promptBuildsTotal.WithLabelValues(outcome).Inc()
	if outcome == OutcomeOK {
		promptCutoffRatio.Observe(ratio)
	}
}
