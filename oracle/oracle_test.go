package oracle

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/acton"
	"github.com/hupe1980/acton/database"
	"github.com/hupe1980/acton/resource"
	"github.com/hupe1980/acton/tensor"
)

func openCSV(t *testing.T) database.Database {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte("x,label\n0.1,cat\n0.2,dog\n0.3,cat\n"), 0o600))
	db, err := database.Open(context.Background(), database.Descriptor{
		Kind:    database.KindDelimited,
		Path:    path,
		Options: map[string]string{database.OptLabelCol: "label"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(context.Background()) })
	return db
}

func TestQuery(t *testing.T) {
	ctx := context.Background()
	o := New(openCSV(t))

	v, err := o.Query(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, tensor.Text("dog"), v)

	all, err := o.QueryAll(ctx, []uint64{2, 0, 2})
	require.NoError(t, err)
	assert.Equal(t, []tensor.Value{tensor.Text("cat"), tensor.Text("cat"), tensor.Text("cat")}, all)

	none, err := o.QueryAll(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = o.Query(ctx, 9)
	require.ErrorIs(t, err, acton.ErrOutOfRange)
}

func TestQueryManagedFirstDimension(t *testing.T) {
	ctx := context.Background()
	db, err := database.Open(ctx, database.Descriptor{
		Kind: database.KindManaged,
		Path: filepath.Join(t.TempDir(), "data.acton"),
	})
	require.NoError(t, err)
	defer db.Close(ctx)

	labels := tensor.New(tensor.Float32, 1, 2, 2)
	labels.SetFloat(labels.Index(0, 0, 0), 3)
	labels.SetFloat(labels.Index(0, 0, 1), 30)
	labels.SetFloat(labels.Index(0, 1, 0), 4)
	labels.SetFloat(labels.Index(0, 1, 1), 40)
	require.NoError(t, db.WriteLabels(ctx, []uint64{0}, []uint64{0, 1}, labels))

	o := New(db)
	v, err := o.Query(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, tensor.Number(4), v)
}

func TestQueryDoesNotMutate(t *testing.T) {
	ctx := context.Background()
	db := openCSV(t)
	before, err := db.KnownInstanceIDs(ctx)
	require.NoError(t, err)

	_, err = New(db).QueryAll(ctx, []uint64{0, 1, 2})
	require.NoError(t, err)

	after, err := db.KnownInstanceIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRateLimit(t *testing.T) {
	o := New(openCSV(t), WithController(resource.NewController(resource.Config{LabelsPerSecond: 1})))

	_, err := o.Query(context.Background(), 0)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = o.Query(ctx, 1)
	require.Error(t, err)
}
