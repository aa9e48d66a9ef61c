package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initStoreMetrics() {
	r.DatasetsWritten = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "skyfactory_store_datasets_written_total",
			Help: "Datasets written to the archive by operation",
		},
		[]string{"operation"},
	)

	r.RowsWritten = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "skyfactory_store_rows_written_total",
			Help: "Rows written to the archive by top level group",
		},
		[]string{"root"},
	)

	r.StoreBytesWritten = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "skyfactory_store_bytes_written_total",
			Help: "Compressed column bytes written to disk",
		},
	)

	r.StoreReadDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "skyfactory_store_read_duration_seconds",
			Help:    "Column decode duration in seconds",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 1.0, 10.0},
		},
		[]string{"codec"},
	)

	r.ColumnCacheHits = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "skyfactory_store_column_cache_hits_total",
			Help: "Column reads served from the decoded column cache",
		},
	)

	r.ColumnCacheMisses = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "skyfactory_store_column_cache_misses_total",
			Help: "Column reads that decoded the file",
		},
	)

	r.ChecksumFailures = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "skyfactory_store_checksum_failures_total",
			Help: "Column files rejected because of a checksum mismatch",
		},
	)
}
