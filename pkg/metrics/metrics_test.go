package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var metric dto.Metric
	if err := c.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	return metric.Counter.GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var metric dto.Metric
	if err := g.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	return metric.Gauge.GetValue()
}

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r == nil {
		t.Fatal("NewRegistry() returned nil")
	}

	if r.StageDuration == nil {
		t.Error("StageDuration not initialized")
	}
	if r.DatasetsWritten == nil {
		t.Error("DatasetsWritten not initialized")
	}
	if r.DuplicatesRemoved == nil {
		t.Error("DuplicatesRemoved not initialized")
	}
	if r.MemoryAllocBytes == nil {
		t.Error("MemoryAllocBytes not initialized")
	}
	if r.registry == nil {
		t.Error("Prometheus registry not initialized")
	}
}

func TestDefaultRegistry(t *testing.T) {
	r1 := DefaultRegistry()
	r2 := DefaultRegistry()

	if r1 != r2 {
		t.Error("DefaultRegistry() should return the same instance")
	}
}

func TestRecordStage(t *testing.T) {
	r := NewRegistry()

	r.RecordStage("combined", nil, 2*time.Second)
	r.RecordStage("combined", nil, time.Second)
	r.RecordStage("regions", errors.New("no centers"), time.Millisecond)

	ok, err := r.StagesTotal.GetMetricWithLabelValues("combined", "success")
	if err != nil {
		t.Fatalf("Failed to get metric: %v", err)
	}
	if v := counterValue(t, ok); v != 2 {
		t.Errorf("combined success = %v, want 2", v)
	}

	failed, _ := r.StagesTotal.GetMetricWithLabelValues("regions", "error")
	if v := counterValue(t, failed); v != 1 {
		t.Errorf("regions error = %v, want 1", v)
	}

	hist, err := r.StageDuration.GetMetricWithLabelValues("combined", "success")
	if err != nil {
		t.Fatalf("Failed to get histogram: %v", err)
	}
	var metric dto.Metric
	if err := hist.(prometheus.Histogram).Write(&metric); err != nil {
		t.Fatalf("Failed to write histogram: %v", err)
	}
	if metric.Histogram.GetSampleCount() != 2 {
		t.Errorf("Sample count = %v, want 2", metric.Histogram.GetSampleCount())
	}
	if sum := metric.Histogram.GetSampleSum(); sum < 2.99 || sum > 3.01 {
		t.Errorf("Sample sum = %v, want ~3", sum)
	}
}

func TestRecordDatasetWrite(t *testing.T) {
	r := NewRegistry()

	r.RecordDatasetWrite("replace", "catalog/gold/ra", 100, 800)
	r.RecordDatasetWrite("replace", "catalog/gold/dec", 100, 800)
	r.RecordDatasetWrite("create", "index/select", 40, 320)
	r.RecordDatasetWrite("overwrite", "toplevel", 5, 40)
	r.RecordLink()

	replaced, _ := r.DatasetsWritten.GetMetricWithLabelValues("replace")
	if v := counterValue(t, replaced); v != 2 {
		t.Errorf("replace = %v, want 2", v)
	}
	link, _ := r.DatasetsWritten.GetMetricWithLabelValues("link")
	if v := counterValue(t, link); v != 1 {
		t.Errorf("link = %v, want 1", v)
	}

	catalogRows, _ := r.RowsWritten.GetMetricWithLabelValues("catalog")
	if v := counterValue(t, catalogRows); v != 200 {
		t.Errorf("catalog rows = %v, want 200", v)
	}
	topRows, _ := r.RowsWritten.GetMetricWithLabelValues("toplevel")
	if v := counterValue(t, topRows); v != 5 {
		t.Errorf("toplevel rows = %v, want 5", v)
	}
	if v := counterValue(t, r.StoreBytesWritten); v != 1960 {
		t.Errorf("bytes = %v, want 1960", v)
	}
}

func TestRecordColumnRead(t *testing.T) {
	r := NewRegistry()

	r.RecordColumnRead("snappy", false, 10*time.Millisecond)
	r.RecordColumnRead("snappy", true, 0)
	r.RecordColumnRead("snappy", true, 0)
	r.RecordChecksumFailure()

	if v := counterValue(t, r.ColumnCacheHits); v != 2 {
		t.Errorf("hits = %v, want 2", v)
	}
	if v := counterValue(t, r.ColumnCacheMisses); v != 1 {
		t.Errorf("misses = %v, want 1", v)
	}
	if v := counterValue(t, r.ChecksumFailures); v != 1 {
		t.Errorf("checksum failures = %v, want 1", v)
	}
}

func TestCatalogMetrics(t *testing.T) {
	r := NewRegistry()

	r.RecordDuplicates("combined_sample_fid", 12)
	r.RecordRandoms("maglim", 2000)
	r.RecordRandoms("maglim", 500)
	r.SetSelectionSize("index/select", 77)
	r.SetSelectionSize("index/select", 70)
	r.SetMaskPixels("masks/gold/hpix", 3)
	r.RecordMissingInput("redmapper_randoms")

	dups, _ := r.DuplicatesRemoved.GetMetricWithLabelValues("combined_sample_fid")
	if v := counterValue(t, dups); v != 12 {
		t.Errorf("duplicates = %v, want 12", v)
	}
	randoms, _ := r.RandomsGenerated.GetMetricWithLabelValues("maglim")
	if v := counterValue(t, randoms); v != 2500 {
		t.Errorf("randoms = %v, want 2500", v)
	}
	sel, _ := r.SelectionSize.GetMetricWithLabelValues("index/select")
	if v := gaugeValue(t, sel); v != 70 {
		t.Errorf("selection size = %v, want 70", v)
	}
	mask, _ := r.MaskPixels.GetMetricWithLabelValues("masks/gold/hpix")
	if v := gaugeValue(t, mask); v != 3 {
		t.Errorf("mask pixels = %v, want 3", v)
	}
	missing, _ := r.MissingInputs.GetMetricWithLabelValues("redmapper_randoms")
	if v := counterValue(t, missing); v != 1 {
		t.Errorf("missing = %v, want 1", v)
	}
}

func TestSetRunID(t *testing.T) {
	r := NewRegistry()
	r.SetRunID("first")
	r.SetRunID("second")

	families, err := r.GetPrometheusRegistry().Gather()
	if err != nil {
		t.Fatalf("Failed to gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() != "skyfactory_run_info" {
			continue
		}
		if len(f.GetMetric()) != 1 {
			t.Fatalf("run_info series = %d, want 1", len(f.GetMetric()))
		}
		if got := f.GetMetric()[0].GetLabel()[0].GetValue(); got != "second" {
			t.Errorf("run_id = %q, want second", got)
		}
		return
	}
	t.Error("skyfactory_run_info not gathered")
}

func TestNilRegistryIsSafe(t *testing.T) {
	var r *Registry
	r.RecordStage("x", nil, time.Second)
	r.RecordDatasetWrite("create", "catalog/x", 1, 1)
	r.RecordLink()
	r.RecordColumnRead("none", false, 0)
	r.RecordChecksumFailure()
	r.RecordDuplicates("s", 1)
	r.RecordRandoms("r", 1)
	r.SetSelectionSize("s", 1)
	r.SetMaskPixels("m", 1)
	r.RecordMissingInput("k")
	r.SetRunID("id")
	r.UpdateSystemMetrics()
}

func TestSystemMetrics(t *testing.T) {
	r := NewRegistry()
	r.UpdateSystemMetrics()

	if v := gaugeValue(t, r.GoRoutines); v < 1 {
		t.Errorf("goroutines = %v, want >= 1", v)
	}
	if v := gaugeValue(t, r.MemorySysBytes); v <= 0 {
		t.Errorf("memory sys = %v, want > 0", v)
	}
}

func TestWriteTextfile(t *testing.T) {
	r := NewRegistry()
	r.RecordStage("footprint", nil, time.Second)
	r.RecordRandoms("maglim", 10)

	path := filepath.Join(t.TempDir(), "metrics", "run.prom")
	if err := r.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	text := string(data)
	for _, want := range []string{
		`skyfactory_stages_total{stage="footprint",status="success"} 1`,
		`skyfactory_randoms_generated_total{catalog="maglim"} 10`,
		"skyfactory_goroutines",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("textfile missing %q", want)
		}
	}
}

func TestMetricNaming(t *testing.T) {
	r := NewRegistry()
	r.UpdateSystemMetrics()

	metrics, err := r.GetPrometheusRegistry().Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}

	for _, m := range metrics {
		if name := m.GetName(); !strings.HasPrefix(name, "skyfactory_") {
			t.Errorf("Metric %s does not have skyfactory_ prefix", name)
		}
	}
}

func BenchmarkRecordDatasetWrite(b *testing.B) {
	r := NewRegistry()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r.RecordDatasetWrite("replace", "catalog/gold/ra", 1000, 8000)
	}
}
