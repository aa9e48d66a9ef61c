// Package randoms generates synthetic catalogs uniformly distributed over a
// footprint mask.
package randoms

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/dd0wney/skyfactory/pkg/footprint"
	"github.com/dd0wney/skyfactory/pkg/healpix"
	"github.com/dd0wney/skyfactory/pkg/logging"
	"github.com/dd0wney/skyfactory/pkg/sortmerge"
	"github.com/dd0wney/skyfactory/pkg/table"
)

var (
	ErrEmptyMask   = errors.New("cannot draw randoms from an empty mask")
	ErrEmptySource = errors.New("cannot sample from an empty array")
)

// Generator draws random positions and samples. It is not safe for
// concurrent use.
type Generator struct {
	rng  *rand.Rand
	seed uint64
}

// NewGenerator seeds a generator. Seed 0 draws a seed from the clock; the
// seed in use is logged either way so a run can be reproduced.
func NewGenerator(seed uint64, logger logging.Logger) *Generator {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	if logger != nil {
		logger.Info("random generator seeded", logging.Component("randoms"), logging.Any("seed", seed))
	}
	return &Generator{
		rng:  rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		seed: seed,
	}
}

// Seed returns the seed in use.
func (g *Generator) Seed() uint64 { return g.seed }

// Generate draws count positions uniformly over the mask area. Every mask
// pixel has the same area, so a pixel is chosen uniformly and the position
// uniformly inside it.
func (g *Generator) Generate(mask *footprint.Mask, count int) (ra, dec []float64, err error) {
	if count < 0 {
		return nil, nil, fmt.Errorf("negative random count %d", count)
	}
	pixels := mask.Pixels()
	if len(pixels) == 0 && count > 0 {
		return nil, nil, ErrEmptyMask
	}
	ra = make([]float64, count)
	dec = make([]float64, count)
	nside := mask.Nside()
	for i := range count {
		pix := pixels[g.rng.IntN(len(pixels))]
		ra[i], dec[i] = healpix.PointInPixel(nside, pix, g.rng.Float64(), g.rng.Float64())
	}
	return ra, dec, nil
}

// SampleWithReplacement draws n values uniformly from values.
func (g *Generator) SampleWithReplacement(values []float64, n int) ([]float64, error) {
	if n > 0 && len(values) == 0 {
		return nil, ErrEmptySource
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = values[g.rng.IntN(len(values))]
	}
	return out, nil
}

// Normal returns n standard normal deviates.
func (g *Generator) Normal(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = g.rng.NormFloat64()
	}
	return out
}

// Catalog builds a random catalog with columns ra, dec, z and weight,
// sorted by nest pixel at sortNside. Redshifts are resampled from zSource
// and every weight is 1.
func (g *Generator) Catalog(mask *footprint.Mask, count int, zSource []float64, sortNside int64) (*table.Table, error) {
	ra, dec, err := g.Generate(mask, count)
	if err != nil {
		return nil, err
	}
	z, err := g.SampleWithReplacement(zSource, count)
	if err != nil {
		return nil, err
	}
	weight := make([]float64, count)
	for i := range weight {
		weight[i] = 1
	}
	pix, err := healpix.Pixelize(ra, dec, sortNside, healpix.Nest)
	if err != nil {
		return nil, err
	}
	perm := sortmerge.ArgSort(pix)
	return table.New().
		MustSet("ra", table.Float64s(ra).Gather(perm)).
		MustSet("dec", table.Float64s(dec).Gather(perm)).
		MustSet("z", table.Float64s(z).Gather(perm)).
		MustSet("weight", table.Float64s(weight)), nil
}
