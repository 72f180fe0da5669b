package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/acton"
	"github.com/hupe1980/acton/blobstore"
	"github.com/hupe1980/acton/lock"
	"github.com/hupe1980/acton/store"
	"github.com/hupe1980/acton/tensor"
)

func writeCSV(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "points.csv")
	require.NoError(t, os.WriteFile(path, []byte("x,y,label\n0,0,a\n1,1,b\n2,2,a\n"), 0o600))
	return path
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
	}{
		{"managed", KindManaged},
		{"CSV", KindDelimited},
		{"tsv", KindDelimited},
		{"arrow", KindColumnar},
		{"sqlite", KindFrame},
		{" frame ", KindFrame},
	}
	for _, tt := range tests {
		got, err := ParseKind(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseKind("parquet")
	require.ErrorIs(t, err, acton.ErrConfiguration)
	assert.Contains(t, err.Error(), "managed, delimited, columnar, frame")
}

func TestKindReadOnly(t *testing.T) {
	for _, k := range Kinds() {
		assert.True(t, k.Valid())
		assert.Equal(t, k != KindManaged, k.ReadOnly(), k)
	}
	assert.False(t, Kind("parquet").Valid())
}

func TestDetect(t *testing.T) {
	assert.Equal(t, KindManaged, Detect("data.acton"))
	assert.Equal(t, KindManaged, Detect("s3://bucket/data.acton"))
	assert.Equal(t, KindColumnar, Detect("data.Feather"))
	assert.Equal(t, KindFrame, Detect("data.sqlite3"))
	assert.Equal(t, KindDelimited, Detect("data.txt"))
	assert.Equal(t, KindDelimited, Detect("data.csv"))
}

func TestOpenUnknownKind(t *testing.T) {
	_, err := Open(context.Background(), Descriptor{Kind: "parquet", Path: "x"})
	require.ErrorIs(t, err, acton.ErrConfiguration)

	_, err = Open(context.Background(), Descriptor{Kind: KindManaged})
	require.ErrorIs(t, err, acton.ErrConfiguration)
}

func TestOpenDelimited(t *testing.T) {
	ctx := context.Background()
	desc := Descriptor{
		Kind:    KindDelimited,
		Path:    writeCSV(t),
		Options: map[string]string{OptLabelCol: "label", OptFeatureCols: "y, x"},
	}
	db, err := Open(ctx, desc)
	require.NoError(t, err)
	defer db.Close(ctx)

	assert.Equal(t, KindDelimited, db.Kind())
	assert.Equal(t, desc, db.Descriptor())

	feats, err := db.ReadFeatures(ctx, []uint64{1})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1}, feats.Float64s())

	require.ErrorIs(t, db.WriteFeatures(ctx, []uint64{0}, feats), acton.ErrReadOnly)
}

func TestDescriptorIsCopied(t *testing.T) {
	ctx := context.Background()
	opts := map[string]string{OptLabelCol: "label"}
	db, err := Open(ctx, Descriptor{Kind: KindDelimited, Path: writeCSV(t), Options: opts})
	require.NoError(t, err)
	defer db.Close(ctx)

	opts[OptLabelCol] = "x"
	d := db.Descriptor()
	assert.Equal(t, "label", d.Options[OptLabelCol])
	d.Options[OptLabelCol] = "y"
	assert.Equal(t, "label", db.Descriptor().Options[OptLabelCol])
}

func TestOpenManagedWithDescriptorOptions(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data.acton")
	desc := Descriptor{
		Kind: KindManaged,
		Path: path,
		Options: map[string]string{
			OptFeatureDType: "float64",
			OptLabelDType:   "S8",
			OptCompression:  "lz4",
		},
	}

	err := Use(ctx, desc, func(db Database) error {
		fm, err := tensor.FromFloat64([][]float64{{0.1, 0.2}})
		require.NoError(t, err)
		return db.WriteFeatures(ctx, []uint64{0}, fm)
	})
	require.NoError(t, err)

	s, err := store.Open(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, tensor.Float64, s.Schema().FeatureDType)
	assert.Equal(t, tensor.Bytes(8), s.Schema().LabelDType)
	require.NoError(t, s.Close(ctx))

	err = Use(ctx, desc, func(db Database) error {
		feats, err := db.ReadFeatures(ctx, []uint64{0})
		require.NoError(t, err)
		assert.Equal(t, []float64{0.1, 0.2}, feats.Float64s())
		return nil
	})
	require.NoError(t, err)

	desc.Options[OptFeatureDType] = "float32"
	_, err = Open(ctx, desc)
	require.ErrorIs(t, err, acton.ErrSchemaMismatch)

	desc.Options[OptFeatureDType] = "complex"
	_, err = Open(ctx, desc)
	require.ErrorIs(t, err, acton.ErrConfiguration)
}

func TestOpenManagedRemote(t *testing.T) {
	ctx := context.Background()
	desc := Descriptor{Kind: KindManaged, Path: "s3://bucket/runs/data.acton"}

	_, err := Open(ctx, desc)
	require.ErrorIs(t, err, acton.ErrConfiguration)

	mem := blobstore.NewMemoryStore()
	var resolved blobstore.Location
	resolver := func(_ context.Context, loc blobstore.Location) (blobstore.Store, lock.Locker, error) {
		resolved = loc
		return mem, lock.Nop{}, nil
	}

	err = Use(ctx, desc, func(db Database) error {
		fm, err := tensor.FromFloat64([][]float64{{1}})
		require.NoError(t, err)
		return db.WriteFeatures(ctx, []uint64{0}, fm)
	}, WithBlobResolver(resolver))
	require.NoError(t, err)

	assert.Equal(t, "bucket", resolved.Bucket)
	_, err = mem.Get(ctx, "data.acton")
	require.NoError(t, err)
}

func TestUseClosesOnEveryPath(t *testing.T) {
	ctx := context.Background()
	desc := Descriptor{Kind: KindDelimited, Path: writeCSV(t), Options: map[string]string{OptLabelCol: "label"}}

	var kept Database
	errBoom := errors.New("boom")
	err := Use(ctx, desc, func(db Database) error {
		kept = db
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)
	_, err = kept.KnownInstanceIDs(ctx)
	require.ErrorIs(t, err, acton.ErrClosed)

	func() {
		defer func() { _ = recover() }()
		_ = Use(ctx, desc, func(db Database) error {
			kept = db
			panic("fail")
		})
	}()
	_, err = kept.KnownInstanceIDs(ctx)
	require.ErrorIs(t, err, acton.ErrClosed)
}

func TestParseDelimiter(t *testing.T) {
	for in, want := range map[string]rune{`\t`: '\t', "tab": '\t', ";": ';', "comma": ','} {
		got, err := parseDelimiter(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := parseDelimiter(";;")
	require.ErrorIs(t, err, acton.ErrConfiguration)
}
