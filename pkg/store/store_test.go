package store

import (
	"bytes"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/skyfactory/pkg/metrics"
	"github.com/dd0wney/skyfactory/pkg/table"
)

func openTestStore(t *testing.T, opts Options) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCodecsRoundTrip(t *testing.T) {
	ids := table.Int64s{5, -1, 1 << 40, 0}
	ra := table.Float64s{0, 359.999, -0.5, 1e-300}

	for _, codec := range []Codec{CodecNone, CodecSnappy, CodecZstd} {
		t.Run(codec.String(), func(t *testing.T) {
			s := openTestStore(t, Options{Codec: codec})

			require.NoError(t, s.Create("catalog/gold/coadd_object_id", ids))
			require.NoError(t, s.Create("catalog/gold/ra", ra))

			gotIDs, err := s.ReadInt64("catalog/gold/coadd_object_id")
			require.NoError(t, err)
			assert.Equal(t, ids, gotIDs)

			gotRA, err := s.ReadFloat64("catalog/gold/ra")
			require.NoError(t, err)
			assert.Equal(t, ra, gotRA)

			h, err := s.Header("catalog/gold/ra")
			require.NoError(t, err)
			assert.Equal(t, codec, h.Codec)
			assert.Equal(t, table.KindFloat64, h.Kind)
		})
	}
}

func TestEmptyColumn(t *testing.T) {
	s := openTestStore(t, Options{})
	require.NoError(t, s.CreateOrReplace("index/select", table.Int64s{}))
	n, err := s.Len("index/select")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	got, err := s.ReadInt64("index/select")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCreateFailsWhenPresent(t *testing.T) {
	s := openTestStore(t, Options{})
	require.NoError(t, s.Create("index/select", table.Int64s{1}))

	err := s.Create("index/select", table.Int64s{2})
	assert.ErrorIs(t, err, ErrDatasetExists)

	var serr *StorageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "create", serr.Op)
	assert.Equal(t, "index/select", serr.Path)

	require.NoError(t, s.Create("index/mask/hpix", table.Int64s{1}))
	assert.ErrorIs(t, s.Create("index/mask", table.Int64s{1}), ErrDatasetExists)
}

func TestCreateOrReplaceIsIdempotent(t *testing.T) {
	s := openTestStore(t, Options{})
	col := table.Float64s{0.1, 0.2, 0.3}

	require.NoError(t, s.CreateOrReplace("index/mask/fracgood", col))
	first, err := os.ReadFile(s.datasetFile("index/mask/fracgood"))
	require.NoError(t, err)

	require.NoError(t, s.CreateOrReplace("index/mask/fracgood", col))
	second, err := os.ReadFile(s.datasetFile("index/mask/fracgood"))
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// replacing with a different length and kind is allowed
	require.NoError(t, s.CreateOrReplace("index/mask/fracgood", table.Int64s{7}))
	got, err := s.Read("index/mask/fracgood")
	require.NoError(t, err)
	assert.Equal(t, table.Int64s{7}, got)
}

func TestOverwrite(t *testing.T) {
	s := openTestStore(t, Options{})

	err := s.Overwrite("catalog/gold/ra", table.Float64s{1})
	assert.ErrorIs(t, err, ErrDatasetNotFound)

	require.NoError(t, s.Create("catalog/gold/ra", table.Float64s{3, 1, 2}))
	require.NoError(t, s.Overwrite("catalog/gold/ra", table.Float64s{1, 2, 3}))

	err = s.Overwrite("catalog/gold/ra", table.Float64s{1, 2})
	assert.ErrorIs(t, err, ErrLengthMismatch)

	got, err := s.ReadFloat64("catalog/gold/ra")
	require.NoError(t, err)
	assert.Equal(t, table.Float64s{1, 2, 3}, got)
}

func TestAppend(t *testing.T) {
	s := openTestStore(t, Options{})

	require.NoError(t, s.Append("catalog/redmagic/combined/ra", table.Float64s{1}))
	require.NoError(t, s.Append("catalog/redmagic/combined/ra", table.Float64s{2, 3}))

	got, err := s.ReadFloat64("catalog/redmagic/combined/ra")
	require.NoError(t, err)
	assert.Equal(t, table.Float64s{1, 2, 3}, got)

	err = s.Append("catalog/redmagic/combined/ra", table.Int64s{4})
	assert.ErrorIs(t, err, ErrKindMismatch)
}

func TestReadErrors(t *testing.T) {
	s := openTestStore(t, Options{})

	_, err := s.Read("catalog/missing")
	assert.ErrorIs(t, err, ErrDatasetNotFound)
	assert.True(t, IsNotFound(err))

	_, err = s.Read("../escape")
	assert.ErrorIs(t, err, ErrInvalidPath)

	require.NoError(t, s.Create("catalog/gold/ra", table.Float64s{1}))
	_, err = s.ReadInt64("catalog/gold/ra")
	assert.ErrorIs(t, err, ErrKindMismatch)
}

func TestCorruptColumn(t *testing.T) {
	reg := metrics.NewRegistry()
	s := openTestStore(t, Options{Metrics: reg, CacheColumns: -1})

	require.NoError(t, s.Create("catalog/gold/ra", table.Float64s{1, 2, 3, 4}))
	file := s.datasetFile("catalog/gold/ra")
	data, err := os.ReadFile(file)
	require.NoError(t, err)

	data[HeaderSize] ^= 0xFF
	require.NoError(t, os.WriteFile(file, data, 0o644))

	_, err = s.Read("catalog/gold/ra")
	assert.ErrorIs(t, err, ErrCorrupt)

	require.NoError(t, os.WriteFile(file, []byte("SKY"), 0o644))
	_, err = s.Read("catalog/gold/ra")
	assert.ErrorIs(t, err, ErrCorrupt)
	_, err = s.Len("catalog/gold/ra")
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestReadReturnsPrivateCopy(t *testing.T) {
	s := openTestStore(t, Options{})
	require.NoError(t, s.Create("x", table.Int64s{1, 2}))

	a, err := s.ReadInt64("x")
	require.NoError(t, err)
	a[0] = 100

	b, err := s.ReadInt64("x")
	require.NoError(t, err)
	assert.Equal(t, table.Int64s{1, 2}, b)
}

func TestCacheInvalidation(t *testing.T) {
	reg := metrics.NewRegistry()
	s := openTestStore(t, Options{Metrics: reg})

	require.NoError(t, s.Create("x", table.Int64s{1}))
	_, err := s.Read("x")
	require.NoError(t, err)
	_, err = s.Read("x")
	require.NoError(t, err)

	require.NoError(t, s.CreateOrReplace("x", table.Int64s{2}))
	got, err := s.ReadInt64("x")
	require.NoError(t, err)
	assert.Equal(t, table.Int64s{2}, got)

	require.NoError(t, s.Delete("x"))
	_, err = s.Read("x")
	assert.ErrorIs(t, err, ErrDatasetNotFound)
}

func TestListAndDelete(t *testing.T) {
	s := openTestStore(t, Options{})

	require.NoError(t, s.Create("catalog/gold/ra", table.Float64s{1}))
	require.NoError(t, s.Create("catalog/gold/dec", table.Float64s{1}))
	require.NoError(t, s.Create("catalog/gold/sub/x", table.Int64s{1}))

	names, err := s.List("catalog/gold")
	require.NoError(t, err)
	assert.Equal(t, []string{"dec", "ra", "sub"}, names)

	cols, err := s.ListDatasets("catalog/gold")
	require.NoError(t, err)
	assert.Equal(t, []string{"dec", "ra"}, cols)

	_, err = s.List("catalog/none")
	assert.ErrorIs(t, err, ErrDatasetNotFound)

	assert.True(t, s.Exists("catalog/gold"))
	assert.True(t, s.Exists("catalog/gold/ra"))
	assert.True(t, s.IsDataset("catalog/gold/ra"))
	assert.False(t, s.IsDataset("catalog/gold"))

	require.NoError(t, s.Delete("catalog/gold"))
	assert.False(t, s.Exists("catalog/gold"))
	assert.False(t, s.Exists("catalog/gold/ra"))
	require.NoError(t, s.Delete("catalog/gold"))
}

func TestTables(t *testing.T) {
	s := openTestStore(t, Options{})

	in := table.New().
		MustSet("coadd_object_id", table.Int64s{3, 1, 2}).
		MustSet("zredmagic", table.Float64s{0.3, 0.1, 0.2})
	require.NoError(t, s.WriteTable("catalog/redmagic/highdens", in))

	out, err := s.ReadTable("catalog/redmagic/highdens")
	require.NoError(t, err)
	assert.Equal(t, 3, out.Len())
	assert.ElementsMatch(t, []string{"coadd_object_id", "zredmagic"}, out.Names())

	sub, err := s.ReadTable("catalog/redmagic/highdens", "zredmagic")
	require.NoError(t, err)
	assert.Equal(t, []string{"zredmagic"}, sub.Names())

	require.NoError(t, s.CreateOrReplace("catalog/redmagic/highdens/ra", table.Float64s{1}))
	_, err = s.ReadTable("catalog/redmagic/highdens")
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestLinks(t *testing.T) {
	goldDir := t.TempDir()
	gold, err := Open(goldDir, Options{})
	require.NoError(t, err)
	defer gold.Close()
	require.NoError(t, gold.Create("catalog/gold/ra", table.Float64s{10, 20}))
	require.NoError(t, gold.Create("catalog/gold/dec", table.Float64s{-1, -2}))
	require.NoError(t, gold.Create("masks/gold/hpix", table.Int64s{4, 5}))

	master := openTestStore(t, Options{})
	require.NoError(t, master.Link("catalog/gold", goldDir, "catalog/gold"))
	require.NoError(t, master.Link("masks/gold/hpix", goldDir, "masks/gold/hpix"))
	require.NoError(t, master.Create("catalog/local/x", table.Int64s{1}))

	ra, err := master.ReadFloat64("catalog/gold/ra")
	require.NoError(t, err)
	assert.Equal(t, table.Float64s{10, 20}, ra)

	hpix, err := master.ReadInt64("masks/gold/hpix")
	require.NoError(t, err)
	assert.Equal(t, table.Int64s{4, 5}, hpix)

	names, err := master.List("catalog")
	require.NoError(t, err)
	assert.Equal(t, []string{"gold", "local"}, names)

	names, err = master.List("catalog/gold")
	require.NoError(t, err)
	assert.Equal(t, []string{"dec", "ra"}, names)

	assert.True(t, master.Exists("masks"))
	assert.True(t, master.IsLink("catalog/gold"))

	// writes go through the link
	require.NoError(t, master.CreateOrReplace("catalog/gold/e1_matched_se", table.Float64s{0, 1}))
	e1, err := gold.ReadFloat64("catalog/gold/e1_matched_se")
	require.NoError(t, err)
	assert.Equal(t, table.Float64s{0, 1}, e1)

	// links survive reopening
	reopened, err := Open(master.Root(), Options{ReadOnly: true})
	require.NoError(t, err)
	defer reopened.Close()
	dec, err := reopened.ReadFloat64("catalog/gold/dec")
	require.NoError(t, err)
	assert.Equal(t, table.Float64s{-1, -2}, dec)
	assert.Error(t, reopened.CreateOrReplace("catalog/gold/dec", table.Float64s{0, 0}))

	// deleting the link leaves the target alone
	require.NoError(t, master.Delete("catalog/gold"))
	assert.False(t, master.Exists("catalog/gold"))
	assert.True(t, gold.Exists("catalog/gold/ra"))
}

func TestLinkReplacesLocalData(t *testing.T) {
	other := t.TempDir()
	s := openTestStore(t, Options{})

	require.NoError(t, s.Create("randoms/maglim/ra", table.Float64s{1}))
	require.NoError(t, s.Link("randoms/maglim", other, "randoms/maglim"))

	_, err := s.Read("randoms/maglim/ra")
	assert.ErrorIs(t, err, ErrDatasetNotFound)

	assert.ErrorIs(t, s.Link("x", s.Root(), "x"), ErrInvalidPath)
}

func TestLongestLinkWins(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	sa, err := Open(a, Options{})
	require.NoError(t, err)
	defer sa.Close()
	sb, err := Open(b, Options{})
	require.NoError(t, err)
	defer sb.Close()

	require.NoError(t, sa.Create("catalog/ra", table.Int64s{1}))
	require.NoError(t, sb.Create("special/ra", table.Int64s{2}))

	s := openTestStore(t, Options{})
	require.NoError(t, s.Link("catalog", a, "catalog"))
	require.NoError(t, s.Link("catalog/metacal", b, "special"))

	v, err := s.ReadInt64("catalog/ra")
	require.NoError(t, err)
	assert.Equal(t, table.Int64s{1}, v)

	v, err = s.ReadInt64("catalog/metacal/ra")
	require.NoError(t, err)
	assert.Equal(t, table.Int64s{2}, v)
}

func TestClosedStore(t *testing.T) {
	s, err := Open(t.TempDir(), Options{})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.Read("x")
	assert.ErrorIs(t, err, ErrStoreClosed)
	assert.True(t, IsClosed(s.Create("x", table.Int64s{1})))
	require.NoError(t, s.Close())
}

func TestOpenReadOnlyMissing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "absent"), Options{ReadOnly: true})
	assert.ErrorIs(t, err, ErrDatasetNotFound)
}

func TestMeta(t *testing.T) {
	s := openTestStore(t, Options{})

	type run struct {
		RunID string `yaml:"run_id"`
		Seed  uint64 `yaml:"seed"`
	}
	require.NoError(t, s.WriteMeta("run", run{RunID: "abc", Seed: 42}))

	var got run
	require.NoError(t, s.ReadMeta("run", &got))
	assert.Equal(t, run{RunID: "abc", Seed: 42}, got)

	assert.ErrorIs(t, s.ReadMeta("absent", &got), ErrDatasetNotFound)
}

func TestParseCodec(t *testing.T) {
	c, err := ParseCodec("")
	require.NoError(t, err)
	assert.Equal(t, CodecSnappy, c)
	c, err = ParseCodec("zstd")
	require.NoError(t, err)
	assert.Equal(t, CodecZstd, c)
	_, err = ParseCodec("lz4")
	assert.Error(t, err)
}

func TestJoin(t *testing.T) {
	assert.Equal(t, "catalog/gold/ra", Join("catalog", "/gold/", "", "ra"))
	assert.Equal(t, "", Join())
}

// sizedReads records the largest single ReadAt request.
type sizedReads struct {
	r       io.ReaderAt
	largest int
}

func (s *sizedReads) ReadAt(p []byte, off int64) (int, error) {
	s.largest = max(s.largest, len(p))
	return s.r.ReadAt(p, off)
}

func TestDecodeColumnReadsSections(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 9))
	col := make(table.Float64s, 100_000)
	for i := range col {
		col[i] = rng.Float64()
	}
	data, err := encodeColumn(col, CodecZstd)
	require.NoError(t, err)

	r := &sizedReads{r: bytes.NewReader(data)}
	got, h, err := decodeColumn(r, int64(len(data)))
	require.NoError(t, err)
	assert.Equal(t, col, got)
	assert.Equal(t, uint64(len(col)), h.Rows)
	assert.Less(t, r.largest, len(data))
}

func TestDecodeColumnRejectsBadSizes(t *testing.T) {
	for _, codec := range []Codec{CodecNone, CodecSnappy, CodecZstd} {
		t.Run(codec.String(), func(t *testing.T) {
			data, err := encodeColumn(table.Int64s{1, 2, 3}, codec)
			require.NoError(t, err)

			_, _, err = decodeColumn(bytes.NewReader(data[:len(data)-1]), int64(len(data)-1))
			assert.Error(t, err)

			_, _, err = decodeColumn(bytes.NewReader(data[:HeaderSize-1]), HeaderSize-1)
			assert.Error(t, err)
		})
	}
}
