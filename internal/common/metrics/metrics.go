// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RemoteOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_remote_operations_total",
			Help: "Total number of remote store operations by outcome",
		},
		[]string{"operation", "status"},
	)

	RetryAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_retry_attempts_total",
			Help: "Total number of retry attempts against the remote store",
		},
		[]string{"operation"},
	)

	BulkItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_bulk_items_total",
			Help: "Total number of bulk batch items by outcome",
		},
		[]string{"mode", "status"},
	)

	BulkBatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "bridge_bulk_batch_duration_seconds",
			Help: "Duration of bulk batch runs in seconds",
		},
		[]string{"mode"},
	)

	SchemaCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bridge_schema_cache_hits_total",
			Help: "Schema cache hits",
		},
	)

	SchemaCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bridge_schema_cache_misses_total",
			Help: "Schema cache misses triggering a remote fetch",
		},
	)

	SchemaCacheCoalesced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bridge_schema_cache_coalesced_total",
			Help: "Schema lookups served by joining an in-flight fetch",
		},
	)

	WorkflowRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_workflow_runs_total",
			Help: "Total number of workflow runs by final state",
		},
		[]string{"state"},
	)
)
