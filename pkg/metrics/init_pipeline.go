package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initPipelineMetrics() {
	r.StageDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "skyfactory_stage_duration_seconds",
			Help:    "Pipeline stage duration in seconds",
			Buckets: []float64{0.1, 1, 10, 60, 300, 1800, 7200},
		},
		[]string{"stage", "status"},
	)

	r.StagesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "skyfactory_stages_total",
			Help: "Pipeline stages run, by outcome",
		},
		[]string{"stage", "status"},
	)

	r.RunInfo = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "skyfactory_run_info",
			Help: "Identity of the run that produced the archive",
		},
		[]string{"run_id"},
	)
}

func (r *Registry) initCatalogMetrics() {
	r.DuplicatesRemoved = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "skyfactory_duplicates_removed_total",
			Help: "Rows dropped while combining binned samples",
		},
		[]string{"sample"},
	)

	r.RandomsGenerated = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "skyfactory_randoms_generated_total",
			Help: "Random points drawn inside a footprint",
		},
		[]string{"catalog"},
	)

	r.SelectionSize = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "skyfactory_selection_size",
			Help: "Number of rows in a derived selection",
		},
		[]string{"selection"},
	)

	r.MaskPixels = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "skyfactory_mask_pixels",
			Help: "Number of pixels in a footprint mask",
		},
		[]string{"mask"},
	)

	r.MissingInputs = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "skyfactory_missing_inputs_total",
			Help: "Optional inputs that were absent and skipped",
		},
		[]string{"kind"},
	)
}
