package tabular

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/acton"
	"github.com/hupe1980/acton/tensor"
)

func writeSQLite(t *testing.T, stmts ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "frame.sqlite")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()
	for _, s := range stmts {
		_, err := db.Exec(s)
		require.NoError(t, err, s)
	}
	return path
}

func TestFrameReads(t *testing.T) {
	ctx := context.Background()
	path := writeSQLite(t,
		`CREATE TABLE iris (sepal REAL, petal REAL, species TEXT)`,
		`INSERT INTO iris (rowid, sepal, petal, species) VALUES
			(10, 5.1, 1.4, 'setosa'),
			(3, 7.0, NULL, 'versicolor'),
			(42, 6.3, 6.0, 'virginica')`,
	)

	f, err := OpenFrame(ctx, path, Options{LabelCol: "species"})
	require.NoError(t, err)
	defer f.Close(ctx)
	assert.Equal(t, "iris", f.Table())

	ids, err := f.KnownInstanceIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 1, 2}, ids)

	// Instances follow rowid order: 3, 10, 42.
	feats, err := f.ReadFeatures(ctx, []uint64{0, 2})
	require.NoError(t, err)
	assert.Equal(t, []float64{7.0, 0, 6.3, 6.0}, feats.Float64s())

	labels, err := f.ReadLabels(ctx, []uint64{0}, []uint64{1, 0})
	require.NoError(t, err)
	assert.Equal(t, tensor.Bytes(len("versicolor")), labels.DType())
	assert.Equal(t, tensor.Text("setosa"), labels.Value(0))
	assert.Equal(t, tensor.Text("versicolor"), labels.Value(1))

	labellers, err := f.KnownLabellerIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint64{0}, labellers)
}

func TestFrameIntegerLabels(t *testing.T) {
	ctx := context.Background()
	path := writeSQLite(t,
		`CREATE TABLE points (x REAL, y REAL, class INTEGER)`,
		`INSERT INTO points VALUES (0.5, 1, 0), (1.5, 2, 1)`,
		`CREATE TABLE other (a INTEGER)`,
	)

	_, err := OpenFrame(ctx, path, Options{LabelCol: "class"})
	require.ErrorIs(t, err, acton.ErrConfiguration, "two tables need an explicit table")

	f, err := OpenFrame(ctx, path, Options{LabelCol: "class", Table: "points"})
	require.NoError(t, err)
	defer f.Close(ctx)

	labels, err := f.ReadLabels(ctx, []uint64{0}, []uint64{1, 1})
	require.NoError(t, err)
	assert.Equal(t, tensor.Int64, labels.DType())
	assert.Equal(t, []float64{1, 1}, labels.Float64s())
}

func TestFrameReadOnly(t *testing.T) {
	ctx := context.Background()
	path := writeSQLite(t,
		`CREATE TABLE t (x REAL, label TEXT)`,
		`INSERT INTO t VALUES (1, 'a')`,
	)

	f, err := OpenFrame(ctx, path, Options{LabelCol: "label"})
	require.NoError(t, err)

	require.ErrorIs(t, f.WriteFeatures(ctx, []uint64{0}, tensor.New(tensor.Float64, 1, 1)), acton.ErrReadOnly)
	require.ErrorIs(t, f.WriteLabels(ctx, []uint64{0}, []uint64{0}, tensor.New(tensor.Bytes(1), 1, 1, 1)), acton.ErrReadOnly)

	require.NoError(t, f.Close(ctx))
	require.NoError(t, f.Close(ctx))
	_, err = f.ReadFeatures(ctx, []uint64{0})
	require.ErrorIs(t, err, acton.ErrClosed)
}

func TestFrameErrors(t *testing.T) {
	ctx := context.Background()

	missing := filepath.Join(t.TempDir(), "missing.sqlite")
	_, err := OpenFrame(ctx, missing, Options{})
	require.ErrorIs(t, err, os.ErrNotExist)
	_, statErr := os.Stat(missing)
	assert.True(t, os.IsNotExist(statErr), "opening must not create the file")

	path := writeSQLite(t, `CREATE TABLE t (x REAL)`)
	_, err = OpenFrame(ctx, path, Options{Table: "nope"})
	require.ErrorIs(t, err, acton.ErrConfiguration)

	_, err = OpenFrame(ctx, path, Options{LabelCol: "label"})
	require.ErrorIs(t, err, acton.ErrConfiguration)
}

func TestFrameLabelOnlyAndUnlabelled(t *testing.T) {
	ctx := context.Background()
	path := writeSQLite(t,
		`CREATE TABLE t (label TEXT)`,
		`INSERT INTO t (label) VALUES ('a'), ('b')`,
	)

	f, err := OpenFrame(ctx, path, Options{LabelCol: "label"})
	require.NoError(t, err)
	feats, err := f.ReadFeatures(ctx, []uint64{1})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0}, feats.Shape())
	labels, err := f.ReadLabels(ctx, []uint64{0}, []uint64{1})
	require.NoError(t, err)
	assert.Equal(t, tensor.Text("b"), labels.Value(0))
	require.NoError(t, f.Close(ctx))

	f, err = OpenFrame(ctx, path, Options{})
	require.NoError(t, err)
	defer f.Close(ctx)
	labellers, err := f.KnownLabellerIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, labellers)
}
