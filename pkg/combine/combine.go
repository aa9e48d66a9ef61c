// Package combine merges redshift-binned samples into one catalog and their
// per-bin depth masks into one usable footprint.
package combine

import (
	"errors"
	"fmt"

	"github.com/google/btree"

	"github.com/dd0wney/skyfactory/pkg/footprint"
	"github.com/dd0wney/skyfactory/pkg/table"
)

var ErrNoSamples = errors.New("no samples to combine")

// Sample is one binned sub-catalog and the redshift range it contributes.
type Sample struct {
	Name  string
	Table *table.Table
	Lo    float64
	Hi    float64
}

// Stats summarizes a combination.
type Stats struct {
	Input      int // rows before range filtering
	InRange    int // rows after range filtering and concatenation
	Duplicates int // rows discarded as duplicate IDs
}

// FilterRange keeps the rows with lo <= column < hi.
func FilterRange(t *table.Table, column string, lo, hi float64) (*table.Table, error) {
	v, err := t.Float64(column)
	if err != nil {
		return nil, err
	}
	keep := make([]bool, len(v))
	for i, x := range v {
		keep[i] = x >= lo && x < hi
	}
	return t.Filter(keep)
}

type idRow struct {
	id  int64
	row int
}

func idLess(a, b idRow) bool { return a.id < b.id }

// Dedup marks, for every ID, the single row with the largest value. Among
// rows tied at the maximum the last one wins. It returns the keep mask and
// the number of discarded rows.
func Dedup(ids []int64, values []float64) ([]bool, int, error) {
	if len(ids) != len(values) {
		return nil, 0, fmt.Errorf("%d ids, %d values: %w", len(ids), len(values), table.ErrLengthMismatch)
	}
	best := btree.NewG(32, idLess)
	for i, id := range ids {
		cur, ok := best.Get(idRow{id: id})
		if !ok || values[i] >= values[cur.row] {
			best.ReplaceOrInsert(idRow{id: id, row: i})
		}
	}
	keep := make([]bool, len(ids))
	best.Ascend(func(r idRow) bool {
		keep[r.row] = true
		return true
	})
	return keep, len(ids) - best.Len(), nil
}

// CombineBinnedSamples filters every sample to its own [Lo, Hi) range on
// zColumn and concatenates them in order. Duplicate IDs, which appear where
// adjacent bins overlap, are resolved by Dedup on zColumn. The returned
// table holds every in-range row; keep marks the rows that survive.
func CombineBinnedSamples(samples []Sample, zColumn, idColumn string) (*table.Table, []bool, Stats, error) {
	var stats Stats
	if len(samples) == 0 {
		return nil, nil, stats, ErrNoSamples
	}
	parts := make([]*table.Table, 0, len(samples))
	for _, s := range samples {
		stats.Input += s.Table.Len()
		f, err := FilterRange(s.Table, zColumn, s.Lo, s.Hi)
		if err != nil {
			return nil, nil, stats, fmt.Errorf("sample %s: %w", s.Name, err)
		}
		parts = append(parts, f)
	}
	all, err := table.Concat(parts...)
	if err != nil {
		return nil, nil, stats, err
	}
	stats.InRange = all.Len()

	ids, err := all.Int64(idColumn)
	if err != nil {
		return nil, nil, stats, err
	}
	z, err := all.Float64(zColumn)
	if err != nil {
		return nil, nil, stats, err
	}
	keep, dropped, err := Dedup(ids, z)
	if err != nil {
		return nil, nil, stats, err
	}
	stats.Duplicates = dropped
	return all, keep, stats, nil
}

// MaskAttrs names the mask attributes CombineFootprintMasks reads.
type MaskAttrs struct {
	Zmax     string
	Fracgood string
}

// DefaultMaskAttrs are the attribute names of redMaGiC depth masks.
var DefaultMaskAttrs = MaskAttrs{Zmax: "zmax", Fracgood: "fracgood"}

// CombineFootprintMasks builds the footprint where every bin reaches its
// required depth. The running mask starts as bin 0 restricted to
// zmax > zmaxCuts[0]; each later bin removes the pixels it marks with
// zmax <= zmaxCuts[i]. Pixels with fracgood below fracgoodMin are dropped last.
func CombineFootprintMasks(masks []*footprint.Mask, zmaxCuts []float64, fracgoodMin float64, attrs MaskAttrs) (*footprint.Mask, error) {
	if len(masks) == 0 {
		return nil, ErrNoSamples
	}
	if len(masks) != len(zmaxCuts) {
		return nil, fmt.Errorf("%d masks, %d zmax cuts: %w", len(masks), len(zmaxCuts), table.ErrLengthMismatch)
	}

	zmax, err := masks[0].Attr(attrs.Zmax)
	if err != nil {
		return nil, fmt.Errorf("bin 0: %w", err)
	}
	deep := make([]bool, len(zmax))
	for i, z := range zmax {
		deep[i] = z > zmaxCuts[0]
	}
	running, err := masks[0].Filter(deep)
	if err != nil {
		return nil, err
	}

	for b := 1; b < len(masks); b++ {
		zmax, err := masks[b].Attr(attrs.Zmax)
		if err != nil {
			return nil, fmt.Errorf("bin %d: %w", b, err)
		}
		if masks[b].Nside() != running.Nside() {
			return nil, fmt.Errorf("bin %d: %w", b, footprint.ErrNsideMismatch)
		}
		var shallow []int64
		for i, p := range masks[b].Pixels() {
			if zmax[i] <= zmaxCuts[b] {
				shallow = append(shallow, p)
			}
		}
		if running, err = running.Without(shallow); err != nil {
			return nil, err
		}
	}

	fracgood, err := running.Attr(attrs.Fracgood)
	if err != nil {
		return nil, err
	}
	complete := make([]bool, len(fracgood))
	for i, f := range fracgood {
		complete[i] = f >= fracgoodMin
	}
	return running.Filter(complete)
}
