package metrics

import "github.com/prometheus/client_golang/prometheus"

// Sync pipeline Prometheus metrics.
var (
	SyncDocumentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docdex",
			Name:      "sync_documents_total",
			Help:      "Documents processed by the sync pipeline",
		},
		[]string{"outcome"}, // indexed, degraded, failed
	)

	SyncBatchRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "docdex",
			Name:      "sync_batch_retries_total",
			Help:      "Bulk index write retries",
		},
	)

	SyncBatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "docdex",
			Name:      "sync_batch_duration_seconds",
			Help:      "Duration of one sync batch",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docdex",
			Name:      "search_requests_total",
			Help:      "Search requests by mode and outcome",
		},
		[]string{"mode", "outcome"}, // outcome: ok, degraded, error
	)
)

var syncMetricsRegistered bool

// RegisterSyncMetrics registers sync and search metrics. Must be called once from main.
func RegisterSyncMetrics() {
	if syncMetricsRegistered {
		return
	}
	prometheus.MustRegister(SyncDocumentsTotal)
	prometheus.MustRegister(SyncBatchRetriesTotal)
	prometheus.MustRegister(SyncBatchDuration)
	prometheus.MustRegister(SearchRequestsTotal)
	syncMetricsRegistered = true
}
