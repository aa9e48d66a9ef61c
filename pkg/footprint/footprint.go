// Package footprint holds sky coverage masks: sparse sets of nest pixels at
// one resolution, each pixel optionally carrying float attributes such as
// fracgood or zmax.
package footprint

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/RoaringBitmap/roaring/roaring64"

	"github.com/dd0wney/skyfactory/pkg/healpix"
	"github.com/dd0wney/skyfactory/pkg/table"
)

// PixelColumn is the dataset name holding a mask's pixel IDs.
const PixelColumn = "hpix"

var (
	ErrDuplicatePixel = errors.New("duplicate mask pixel")
	ErrAttrNotFound   = errors.New("mask attribute not found")
	ErrNsideMismatch  = errors.New("masks have different nside")
)

// Mask is a sorted set of nest pixels with per-pixel attributes.
type Mask struct {
	nside  int64
	pixels []int64
	attrs  map[string][]float64
	set    *roaring64.Bitmap
}

// New builds a mask from pixels in any order. Attribute arrays are aligned
// with pixels and reordered with them.
func New(nside int64, pixels []int64, attrs map[string][]float64) (*Mask, error) {
	if err := healpix.CheckNside(nside); err != nil {
		return nil, err
	}
	npix := healpix.Nside2Npix(nside)
	for name, v := range attrs {
		if len(v) != len(pixels) {
			return nil, fmt.Errorf("attribute %s has %d values for %d pixels: %w",
				name, len(v), len(pixels), table.ErrLengthMismatch)
		}
	}

	order := make([]int, len(pixels))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		switch {
		case pixels[a] < pixels[b]:
			return -1
		case pixels[a] > pixels[b]:
			return 1
		}
		return 0
	})

	m := &Mask{
		nside:  nside,
		pixels: make([]int64, len(pixels)),
		attrs:  make(map[string][]float64, len(attrs)),
		set:    roaring64.NewBitmap(),
	}
	for i, o := range order {
		p := pixels[o]
		if p < 0 || p >= npix {
			return nil, fmt.Errorf("%w: %d at nside %d", healpix.ErrInvalidPixel, p, nside)
		}
		if i > 0 && m.pixels[i-1] == p {
			return nil, fmt.Errorf("%w: %d", ErrDuplicatePixel, p)
		}
		m.pixels[i] = p
		m.set.Add(uint64(p))
	}
	for name, v := range attrs {
		sorted := make([]float64, len(v))
		for i, o := range order {
			sorted[i] = v[o]
		}
		m.attrs[name] = sorted
	}
	return m, nil
}

// FromMap keeps the pixels of a partial map whose value equals good.
func FromMap(nside int64, pixels []int64, values []float64, good float64) (*Mask, error) {
	if len(pixels) != len(values) {
		return nil, fmt.Errorf("%d pixels, %d values: %w", len(pixels), len(values), table.ErrLengthMismatch)
	}
	var keep []int64
	for i, v := range values {
		if v == good {
			keep = append(keep, pixels[i])
		}
	}
	return New(nside, keep, nil)
}

// Nside returns the mask resolution.
func (m *Mask) Nside() int64 { return m.nside }

// Len returns the number of pixels.
func (m *Mask) Len() int { return len(m.pixels) }

// Pixels returns the sorted pixel IDs. The slice must not be modified.
func (m *Mask) Pixels() []int64 { return m.pixels }

// Contains reports whether pix is in the mask.
func (m *Mask) Contains(pix int64) bool {
	return pix >= 0 && m.set.Contains(uint64(pix))
}

// AttrNames lists attribute names in sorted order.
func (m *Mask) AttrNames() []string {
	return slices.Sorted(maps.Keys(m.attrs))
}

// Attr returns an attribute aligned with Pixels.
func (m *Mask) Attr(name string) ([]float64, error) {
	v, ok := m.attrs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAttrNotFound, name)
	}
	return v, nil
}

// Filter keeps the pixels whose keep entry is true.
func (m *Mask) Filter(keep []bool) (*Mask, error) {
	if len(keep) != len(m.pixels) {
		return nil, fmt.Errorf("filter has %d entries for %d pixels: %w", len(keep), len(m.pixels), table.ErrLengthMismatch)
	}
	out := &Mask{
		nside:  m.nside,
		pixels: table.Compress(m.pixels, keep),
		attrs:  make(map[string][]float64, len(m.attrs)),
		set:    roaring64.NewBitmap(),
	}
	for name, v := range m.attrs {
		out.attrs[name] = table.Compress(v, keep)
	}
	for _, p := range out.pixels {
		out.set.Add(uint64(p))
	}
	return out, nil
}

// IntersectWith keeps the pixels also present in other. Attributes come
// from the receiver.
func (m *Mask) IntersectWith(other *Mask) (*Mask, error) {
	if other.nside != m.nside {
		return nil, fmt.Errorf("%w: %d vs %d", ErrNsideMismatch, m.nside, other.nside)
	}
	both := roaring64.And(m.set, other.set)
	keep := make([]bool, len(m.pixels))
	for i, p := range m.pixels {
		keep[i] = both.Contains(uint64(p))
	}
	return m.Filter(keep)
}

// Without removes the given pixels.
func (m *Mask) Without(pixels []int64) (*Mask, error) {
	drop := roaring64.NewBitmap()
	for _, p := range pixels {
		if p >= 0 {
			drop.Add(uint64(p))
		}
	}
	keep := make([]bool, len(m.pixels))
	for i, p := range m.pixels {
		keep[i] = !drop.Contains(uint64(p))
	}
	return m.Filter(keep)
}

// Table returns the mask as a table with the pixel column first.
func (m *Mask) Table() *table.Table {
	t := table.New().MustSet(PixelColumn, table.Int64s(m.pixels))
	for _, name := range m.AttrNames() {
		t.MustSet(name, table.Float64s(m.attrs[name]))
	}
	return t
}
