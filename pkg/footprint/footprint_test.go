package footprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/skyfactory/pkg/healpix"
	"github.com/dd0wney/skyfactory/pkg/store"
	"github.com/dd0wney/skyfactory/pkg/table"
)

func TestNewSortsPixelsAndAttributes(t *testing.T) {
	m, err := New(4, []int64{9, 2, 5}, map[string][]float64{"fracgood": {0.9, 0.2, 0.5}})
	require.NoError(t, err)

	assert.Equal(t, []int64{2, 5, 9}, m.Pixels())
	fg, err := m.Attr("fracgood")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.2, 0.5, 0.9}, fg)
	assert.True(t, m.Contains(5))
	assert.False(t, m.Contains(6))
	assert.False(t, m.Contains(-1))
	assert.Equal(t, 3, m.Len())
	assert.Equal(t, int64(4), m.Nside())
}

func TestNewRejectsBadInput(t *testing.T) {
	tests := []struct {
		name   string
		nside  int64
		pixels []int64
		attrs  map[string][]float64
		want   error
	}{
		{"bad nside", 3, []int64{0}, nil, healpix.ErrInvalidNside},
		{"pixel out of range", 1, []int64{12}, nil, healpix.ErrInvalidPixel},
		{"duplicate", 4, []int64{1, 1}, nil, ErrDuplicatePixel},
		{"short attribute", 4, []int64{1, 2}, map[string][]float64{"zmax": {1}}, table.ErrLengthMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.nside, tt.pixels, tt.attrs)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestFromMap(t *testing.T) {
	m, err := FromMap(8, []int64{10, 11, 12, 13}, []float64{1, 0, 1, 2}, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 12}, m.Pixels())
}

func TestSetOperations(t *testing.T) {
	a, err := New(4, []int64{0, 1, 2, 3}, map[string][]float64{"zmax": {0.5, 0.6, 0.7, 0.8}})
	require.NoError(t, err)
	b, err := New(4, []int64{1, 3, 7}, nil)
	require.NoError(t, err)

	both, err := a.IntersectWith(b)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, both.Pixels())
	zmax, _ := both.Attr("zmax")
	assert.Equal(t, []float64{0.6, 0.8}, zmax)

	rest, err := a.Without([]int64{0, 3, 99})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, rest.Pixels())
	assert.False(t, rest.Contains(0))

	c, _ := New(8, []int64{1}, nil)
	_, err = a.IntersectWith(c)
	assert.ErrorIs(t, err, ErrNsideMismatch)

	_, err = a.Filter([]bool{true})
	assert.ErrorIs(t, err, table.ErrLengthMismatch)

	_, err = a.Attr("fracgood")
	assert.ErrorIs(t, err, ErrAttrNotFound)
}

func TestSaveLoadConvertsRing(t *testing.T) {
	st, err := store.Open(t.TempDir(), store.Options{Codec: store.CodecSnappy})
	require.NoError(t, err)
	defer st.Close()

	const nside = 8
	ringPix := []int64{0, 100, 767}
	require.NoError(t, st.WriteTable("masks/raw", table.New().
		MustSet("hpix", table.Int64s(ringPix)).
		MustSet("fracgood", table.Float64s{0.1, 0.2, 0.3})))

	m, err := Load(st, "masks/raw", nside, healpix.Ring)
	require.NoError(t, err)
	for i, r := range ringPix {
		n, err := healpix.Ring2Nest(nside, r)
		require.NoError(t, err)
		assert.True(t, m.Contains(n), "ring pixel %d", i)
	}

	require.NoError(t, m.Save(st, "masks/nest"))
	back, err := Load(st, "masks/nest", nside, healpix.Nest)
	require.NoError(t, err)
	assert.Equal(t, m.Pixels(), back.Pixels())
	assert.Equal(t, []string{"fracgood"}, back.AttrNames())

	// Saving a smaller mask drops stale attributes.
	bare, err := New(nside, []int64{1}, nil)
	require.NoError(t, err)
	require.NoError(t, bare.Save(st, "masks/nest"))
	names, err := st.ListDatasets("masks/nest")
	require.NoError(t, err)
	assert.Equal(t, []string{"hpix"}, names)
}
