package table

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func goldTable() *Table {
	return New().
		MustSet("coadd_object_id", Int64s{30, 10, 20}).
		MustSet("ra", Float64s{30.5, 10.5, 20.5}).
		MustSet("hpix", Int64s{7, 3, 5})
}

func TestTableSetAndLookup(t *testing.T) {
	tbl := goldTable()

	assert.Equal(t, 3, tbl.Len())
	assert.Equal(t, []string{"coadd_object_id", "ra", "hpix"}, tbl.Names())

	ids, err := tbl.Int64("coadd_object_id")
	require.NoError(t, err)
	assert.Equal(t, Int64s{30, 10, 20}, ids)

	_, err = tbl.Int64("ra")
	assert.ErrorIs(t, err, ErrKindMismatch)

	asFloat, err := tbl.Float64("hpix")
	require.NoError(t, err)
	assert.Equal(t, Float64s{7, 3, 5}, asFloat)

	_, err = tbl.Column("dec")
	assert.ErrorIs(t, err, ErrColumnNotFound)

	err = tbl.Set("dec", Float64s{1, 2})
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestTableReplaceSingleColumn(t *testing.T) {
	tbl := New().MustSet("x", Int64s{1, 2})
	require.NoError(t, tbl.Set("x", Int64s{1, 2, 3}))
	assert.Equal(t, 3, tbl.Len())
	assert.Equal(t, []string{"x"}, tbl.Names())
}

func TestTableGatherAndFilter(t *testing.T) {
	tbl := goldTable()

	g := tbl.Gather([]int64{1, 2, 0})
	ids, _ := g.Int64("coadd_object_id")
	ra, _ := g.Float64("ra")
	assert.Equal(t, Int64s{10, 20, 30}, ids)
	assert.Equal(t, Float64s{10.5, 20.5, 30.5}, ra)

	f, err := tbl.Filter([]bool{true, false, true})
	require.NoError(t, err)
	ids, _ = f.Int64("coadd_object_id")
	assert.Equal(t, Int64s{30, 20}, ids)

	_, err = tbl.Filter([]bool{true})
	assert.ErrorIs(t, err, ErrLengthMismatch)

	// source is untouched
	ids, _ = tbl.Int64("coadd_object_id")
	assert.Equal(t, Int64s{30, 10, 20}, ids)
}

func TestTableRenameAndNormalize(t *testing.T) {
	tbl := New().
		MustSet("COADD_OBJECTS_ID", Int64s{1}).
		MustSet("RA", Float64s{2}).
		MustSet("Zredmagic", Float64s{0.3})

	require.NoError(t, tbl.NormalizeNames(map[string]string{"coadd_objects_id": "coadd_object_id"}))
	assert.Equal(t, []string{"coadd_object_id", "ra", "zredmagic"}, tbl.Names())

	err := tbl.Rename("missing", "x")
	assert.True(t, errors.Is(err, ErrColumnNotFound))

	tbl.Delete("ra")
	assert.Equal(t, []string{"coadd_object_id", "zredmagic"}, tbl.Names())
	assert.False(t, tbl.Has("ra"))
}

func TestConcat(t *testing.T) {
	a := New().MustSet("id", Int64s{1, 2}).MustSet("z", Float64s{0.1, 0.2})
	b := New().MustSet("id", Int64s{3}).MustSet("z", Float64s{0.3})

	c, err := Concat(a, b)
	require.NoError(t, err)
	assert.Equal(t, 3, c.Len())
	ids, _ := c.Int64("id")
	z, _ := c.Float64("z")
	assert.Equal(t, Int64s{1, 2, 3}, ids)
	assert.Equal(t, Float64s{0.1, 0.2, 0.3}, z)

	// inputs are not aliased
	ids[0] = 99
	aid, _ := a.Int64("id")
	assert.Equal(t, int64(1), aid[0])

	bad := New().MustSet("id", Float64s{4}).MustSet("z", Float64s{0.4})
	_, err = Concat(a, bad)
	assert.ErrorIs(t, err, ErrKindMismatch)

	missing := New().MustSet("id", Int64s{4})
	_, err = Concat(a, missing)
	assert.ErrorIs(t, err, ErrColumnNotFound)

	empty, err := Concat()
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Len())
}

func TestGenericHelpers(t *testing.T) {
	assert.Equal(t, []string{"c", "a"}, Gather([]string{"a", "b", "c"}, []int64{2, 0}))
	assert.Equal(t, []int{1, 3}, Compress([]int{1, 2, 3}, []bool{true, false, true}))
	assert.Equal(t, Int64s{1, -2}, Int64sFrom(Float64s{1.9, -2.5}))
	assert.Equal(t, Float64s{4}, Float64sFrom(Int64s{4}))
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("F8")
	require.NoError(t, err)
	assert.Equal(t, KindFloat64, k)
	assert.Equal(t, "int64", KindInt64.String())
	_, err = ParseKind("complex")
	assert.Error(t, err)
}
