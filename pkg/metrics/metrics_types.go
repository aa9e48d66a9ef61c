package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all metrics for one pipeline run
type Registry struct {
	// Pipeline Metrics
	StageDuration *prometheus.HistogramVec
	StagesTotal   *prometheus.CounterVec
	RunInfo       *prometheus.GaugeVec

	// Store Metrics
	DatasetsWritten    *prometheus.CounterVec
	RowsWritten        *prometheus.CounterVec
	StoreBytesWritten  prometheus.Counter
	StoreReadDuration  *prometheus.HistogramVec
	ColumnCacheHits    prometheus.Counter
	ColumnCacheMisses  prometheus.Counter
	ChecksumFailures   prometheus.Counter

	// Catalog Metrics
	DuplicatesRemoved *prometheus.CounterVec
	RandomsGenerated  *prometheus.CounterVec
	SelectionSize     *prometheus.GaugeVec
	MaskPixels        *prometheus.GaugeVec
	MissingInputs     *prometheus.CounterVec

	// System Metrics
	UptimeSeconds    prometheus.Gauge
	GoRoutines       prometheus.Gauge
	MemoryAllocBytes prometheus.Gauge
	MemorySysBytes   prometheus.Gauge

	registry *prometheus.Registry
	started  time.Time
	mu       sync.RWMutex
}

var (
	// Global registry instance
	defaultRegistry *Registry
	once            sync.Once
)
