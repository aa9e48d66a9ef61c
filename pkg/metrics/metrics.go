package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultRegistry returns the global metrics registry
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with all metrics initialized
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
		started:  time.Now(),
	}

	r.initPipelineMetrics()
	r.initStoreMetrics()
	r.initCatalogMetrics()
	r.initSystemMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}

// All Record* helpers accept a nil registry so library code can run unmetered.

// RecordStage records a finished pipeline stage
func (r *Registry) RecordStage(stage string, err error, duration time.Duration) {
	if r == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	r.StagesTotal.WithLabelValues(stage, status).Inc()
	r.StageDuration.WithLabelValues(stage, status).Observe(duration.Seconds())
}

// RecordDatasetWrite records one column written through the store.
// The row count is attributed to the first path segment (catalog, index, masks, ...).
func (r *Registry) RecordDatasetWrite(operation, path string, rows, bytes int) {
	if r == nil {
		return
	}
	root, _, _ := strings.Cut(path, "/")
	r.DatasetsWritten.WithLabelValues(operation).Inc()
	r.RowsWritten.WithLabelValues(root).Add(float64(rows))
	r.StoreBytesWritten.Add(float64(bytes))
}

// RecordLink records an external link added to the archive
func (r *Registry) RecordLink() {
	if r == nil {
		return
	}
	r.DatasetsWritten.WithLabelValues("link").Inc()
}

// RecordColumnRead records a column read, served from cache or decoded
func (r *Registry) RecordColumnRead(codec string, cached bool, duration time.Duration) {
	if r == nil {
		return
	}
	if cached {
		r.ColumnCacheHits.Inc()
		return
	}
	r.ColumnCacheMisses.Inc()
	r.StoreReadDuration.WithLabelValues(codec).Observe(duration.Seconds())
}

// RecordChecksumFailure records a corrupt column file
func (r *Registry) RecordChecksumFailure() {
	if r == nil {
		return
	}
	r.ChecksumFailures.Inc()
}

// RecordDuplicates records rows dropped by deduplication
func (r *Registry) RecordDuplicates(sample string, n int) {
	if r == nil {
		return
	}
	r.DuplicatesRemoved.WithLabelValues(sample).Add(float64(n))
}

// RecordRandoms records generated random points
func (r *Registry) RecordRandoms(catalog string, n int) {
	if r == nil {
		return
	}
	r.RandomsGenerated.WithLabelValues(catalog).Add(float64(n))
}

// SetSelectionSize sets the size of a derived selection
func (r *Registry) SetSelectionSize(selection string, n int) {
	if r == nil {
		return
	}
	r.SelectionSize.WithLabelValues(selection).Set(float64(n))
}

// SetMaskPixels sets the pixel count of a footprint mask
func (r *Registry) SetMaskPixels(mask string, n int) {
	if r == nil {
		return
	}
	r.MaskPixels.WithLabelValues(mask).Set(float64(n))
}

// RecordMissingInput records an optional input that was skipped
func (r *Registry) RecordMissingInput(kind string) {
	if r == nil {
		return
	}
	r.MissingInputs.WithLabelValues(kind).Inc()
}

// SetRunID publishes the run identity
func (r *Registry) SetRunID(id string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.RunInfo.Reset()
	r.RunInfo.WithLabelValues(id).Set(1)
}

// UpdateSystemMetrics samples runtime statistics
func (r *Registry) UpdateSystemMetrics() {
	if r == nil {
		return
	}
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.UptimeSeconds.Set(time.Since(r.started).Seconds())
	r.GoRoutines.Set(float64(runtime.NumGoroutine()))
	r.MemoryAllocBytes.Set(float64(m.Alloc))
	r.MemorySysBytes.Set(float64(m.Sys))
}

// WriteTextfile dumps the registry in the Prometheus text format,
// suitable for the node exporter textfile collector.
func (r *Registry) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create metrics dir: %w", err)
		}
	}
	r.UpdateSystemMetrics()
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
