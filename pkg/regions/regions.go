// Package regions labels catalog objects with the jackknife region whose
// center is nearest to the object's pixel.
package regions

import (
	"errors"
	"fmt"
	"gonum.org/v1/gonum/spatial/kdtree"

	"github.com/dd0wney/skyfactory/pkg/healpix"
	"github.com/dd0wney/skyfactory/pkg/store"
	"github.com/dd0wney/skyfactory/pkg/table"
)

// DefaultNside is the resolution at which objects are assigned.
const DefaultNside = 512

var ErrNoCenters = errors.New("no region centers")

// Centers are region centers in degrees. Dist is the planar distance from
// each center to its nearest neighbor.
type Centers struct {
	RA   []float64
	Dec  []float64
	Dist []float64
	tree *kdtree.Tree
}

// NewCenters indexes the centers and computes their neighbor distances.
// A lone center has an infinite distance.
func NewCenters(ra, dec []float64) (*Centers, error) {
	if len(ra) != len(dec) {
		return nil, fmt.Errorf("%d ra, %d dec: %w", len(ra), len(dec), table.ErrLengthMismatch)
	}
	if len(ra) == 0 {
		return nil, ErrNoCenters
	}
	c := &Centers{RA: ra, Dec: dec, Dist: make([]float64, len(ra)), tree: newCenterTree(ra, dec)}
	for i := range ra {
		c.Dist[i] = neighborDistance(c.tree, ra[i], dec[i], i)
	}
	return c, nil
}

// Len returns the number of regions.
func (c *Centers) Len() int { return len(c.RA) }

// Nearest returns the region whose center is closest to (ra, dec).
func (c *Centers) Nearest(ra, dec float64) int64 {
	i, _ := nearestCenter(c.tree, ra, dec)
	return int64(i)
}

// LoadCenters reads ra and dec from group.
func LoadCenters(st *store.Store, group string) (*Centers, error) {
	ra, err := st.ReadFloat64(store.Join(group, "ra"))
	if err != nil {
		return nil, err
	}
	dec, err := st.ReadFloat64(store.Join(group, "dec"))
	if err != nil {
		return nil, err
	}
	return NewCenters(ra, dec)
}

// Save writes ra, dec, dist and the region count under group.
func (c *Centers) Save(st *store.Store, group string) error {
	return st.WriteTable(group, table.New().
		MustSet("ra", table.Float64s(c.RA)).
		MustSet("dec", table.Float64s(c.Dec)).
		MustSet("dist", table.Float64s(c.Dist)))
}

// SaveCount writes the single-element region count dataset.
func (c *Centers) SaveCount(st *store.Store, path string) error {
	return st.CreateOrReplace(path, table.Int64s{int64(c.Len())})
}

// Assigner maps objects to regions through their pixel at a fixed nside.
// Pixel results are memoized, so objects sharing a pixel cost one lookup.
type Assigner struct {
	centers *Centers
	nside   int64
	memo    map[int64]int64
}

// NewAssigner creates an assigner; nside 0 selects DefaultNside.
func NewAssigner(centers *Centers, nside int64) (*Assigner, error) {
	if nside == 0 {
		nside = DefaultNside
	}
	if err := healpix.CheckNside(nside); err != nil {
		return nil, err
	}
	return &Assigner{centers: centers, nside: nside, memo: make(map[int64]int64)}, nil
}

// Pixel returns the region of a nest pixel's center.
func (a *Assigner) Pixel(pix int64) (int64, error) {
	if r, ok := a.memo[pix]; ok {
		return r, nil
	}
	ra, dec, err := healpix.Pix2Ang(a.nside, healpix.Nest, pix)
	if err != nil {
		return 0, err
	}
	r := a.centers.Nearest(ra, dec)
	a.memo[pix] = r
	return r, nil
}

// Assign labels every object with a region.
func (a *Assigner) Assign(ra, dec []float64) ([]int64, error) {
	pix, err := healpix.Pixelize(ra, dec, a.nside, healpix.Nest)
	if err != nil {
		return nil, err
	}
	out := make([]int64, len(pix))
	for i, p := range pix {
		if out[i], err = a.Pixel(p); err != nil {
			return nil, err
		}
	}
	return out, nil
}
