package regions

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/skyfactory/pkg/healpix"
	"github.com/dd0wney/skyfactory/pkg/store"
)

func bruteNearest(ra, dec []float64, qra, qdec float64) float64 {
	best := math.Inf(1)
	for i := range ra {
		best = math.Min(best, math.Hypot(qra-ra[i], qdec-dec[i]))
	}
	return best
}

func TestNearestMatchesLinearScan(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("nearest center agrees with a linear scan", prop.ForAll(
		func(seed uint64, n int, qra, qdec float64) bool {
			rng := rand.New(rand.NewPCG(seed, 1))
			ra := make([]float64, n)
			dec := make([]float64, n)
			for i := range ra {
				ra[i] = rng.Float64() * 360
				dec[i] = rng.Float64()*180 - 90
			}
			c, err := NewCenters(ra, dec)
			if err != nil {
				return false
			}
			r := c.Nearest(qra, qdec)
			got := math.Hypot(qra-ra[r], qdec-dec[r])
			return math.Abs(got-bruteNearest(ra, dec, qra, qdec)) < 1e-9
		},
		gen.UInt64(),
		gen.IntRange(1, 200),
		gen.Float64Range(0, 360),
		gen.Float64Range(-90, 90),
	))

	properties.TestingRun(t)
}

func TestNewCentersDistances(t *testing.T) {
	c, err := NewCenters([]float64{0, 3, 10}, []float64{0, 4, 0})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{5, 5, math.Hypot(7, 4)}, c.Dist, 1e-12)
	assert.Equal(t, 3, c.Len())

	// Coincident centers are each other's neighbor.
	dup, err := NewCenters([]float64{2, 2}, []float64{1, 1})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0}, dup.Dist)

	lone, err := NewCenters([]float64{1}, []float64{1})
	require.NoError(t, err)
	assert.True(t, math.IsInf(lone.Dist[0], 1))

	_, err = NewCenters(nil, nil)
	assert.ErrorIs(t, err, ErrNoCenters)
}

func TestAssign(t *testing.T) {
	c, err := NewCenters([]float64{45, 225}, []float64{30, -30})
	require.NoError(t, err)
	a, err := NewAssigner(c, 0)
	require.NoError(t, err)

	got, err := a.Assign([]float64{40, 50, 220, 230}, []float64{35, 25, -35, -25})
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 0, 1, 1}, got)

	// Objects in one pixel share the label of that pixel's center.
	pix, err := healpix.Ang2Pix(DefaultNside, healpix.Nest, 40, 35)
	require.NoError(t, err)
	r, err := a.Pixel(pix)
	require.NoError(t, err)
	assert.Equal(t, got[0], r)

	_, err = a.Assign([]float64{0}, []float64{91})
	assert.ErrorIs(t, err, healpix.ErrInvalidCoordinate)

	_, err = NewAssigner(c, 100)
	assert.ErrorIs(t, err, healpix.ErrInvalidNside)
}

func TestCentersSaveLoad(t *testing.T) {
	st, err := store.Open(t.TempDir(), store.Options{Codec: store.CodecZstd})
	require.NoError(t, err)
	defer st.Close()

	c, err := NewCenters([]float64{10, 20, 30}, []float64{-5, 0, 5})
	require.NoError(t, err)
	require.NoError(t, c.Save(st, "regions/centers"))
	require.NoError(t, c.SaveCount(st, "regions/centers/number"))

	back, err := LoadCenters(st, "regions/centers")
	require.NoError(t, err)
	assert.Equal(t, c.RA, back.RA)
	assert.Equal(t, c.Dist, back.Dist)

	n, err := st.ReadInt64("regions/centers/number")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n[0])

	_, err = LoadCenters(st, "regions/missing")
	assert.True(t, store.IsNotFound(err))
}
