package tabular

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/acton"
	"github.com/hupe1980/acton/tensor"
)

type arrowRow struct {
	x, y  float64
	label string
	null  bool
}

// writeArrow writes one record batch per entry of batches. Each batch holds
// rows of (x, y, label).
func writeArrow(t *testing.T, batches [][]arrowRow) string {
	t.Helper()
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "x", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
		{Name: "y", Type: arrow.PrimitiveTypes.Int64},
		{Name: "label", Type: arrow.BinaryTypes.String},
	}, nil)

	path := filepath.Join(t.TempDir(), "data.arrow")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w, err := ipc.NewFileWriter(f, ipc.WithSchema(schema))
	require.NoError(t, err)

	b := array.NewRecordBuilder(memory.NewGoAllocator(), schema)
	defer b.Release()
	for _, batch := range batches {
		for _, row := range batch {
			if row.null {
				b.Field(0).AppendNull()
			} else {
				b.Field(0).(*array.Float64Builder).Append(row.x)
			}
			b.Field(1).(*array.Int64Builder).Append(int64(row.y))
			b.Field(2).(*array.StringBuilder).Append(row.label)
		}
		rec := b.NewRecord()
		require.NoError(t, w.Write(rec))
		rec.Release()
	}
	require.NoError(t, w.Close())
	return path
}

func TestColumnarReadsAcrossBatches(t *testing.T) {
	ctx := context.Background()
	path := writeArrow(t, [][]arrowRow{
		{{x: 1, y: 10, label: "cat"}, {x: 2, y: 20, label: "dog"}},
		{{x: math.NaN(), y: 30, label: "horse"}},
		{{null: true, y: 40, label: "cat"}},
	})

	c, err := OpenColumnar(ctx, path, Options{LabelCol: "label"})
	require.NoError(t, err)
	defer c.Close(ctx)

	ids, err := c.KnownInstanceIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 1, 2, 3}, ids)

	feats, err := c.ReadFeatures(ctx, []uint64{3, 2, 1, 0})
	require.NoError(t, err)
	assert.Equal(t, []int{4, 2}, feats.Shape())
	assert.Equal(t, []float64{0, 40, 0, 30, 2, 20, 1, 10}, feats.Float64s())

	labels, err := c.ReadLabels(ctx, []uint64{0}, []uint64{2, 1})
	require.NoError(t, err)
	assert.Equal(t, tensor.Bytes(len("horse")), labels.DType())
	assert.Equal(t, tensor.Text("horse"), labels.Value(0))
	assert.Equal(t, tensor.Text("dog"), labels.Value(1))

	_, err = c.ReadFeatures(ctx, []uint64{4})
	require.ErrorIs(t, err, acton.ErrOutOfRange)
	_, err = c.ReadLabels(ctx, []uint64{1}, []uint64{0})
	require.ErrorIs(t, err, acton.ErrOutOfRange)
}

func TestColumnarNumericLabel(t *testing.T) {
	ctx := context.Background()
	path := writeArrow(t, [][]arrowRow{{{x: 1, y: 7, label: "a"}, {x: 2, y: 9, label: "b"}}})

	c, err := OpenColumnar(ctx, path, Options{LabelCol: "y"})
	require.NoError(t, err)
	defer c.Close(ctx)

	labels, err := c.ReadLabels(ctx, []uint64{0}, []uint64{1})
	require.NoError(t, err)
	assert.Equal(t, tensor.Int64, labels.DType())
	assert.Equal(t, 9.0, labels.Float(0))
}

func TestColumnarRejectsTextFeatures(t *testing.T) {
	ctx := context.Background()
	path := writeArrow(t, [][]arrowRow{{{x: 1, y: 7, label: "a"}}})

	_, err := OpenColumnar(ctx, path, Options{LabelCol: "y"})
	require.ErrorIs(t, err, acton.ErrConfiguration)
}

func TestColumnarReadOnlyAndClose(t *testing.T) {
	ctx := context.Background()
	path := writeArrow(t, [][]arrowRow{{{x: 1, y: 7, label: "a"}}})

	c, err := OpenColumnar(ctx, path, Options{LabelCol: "label"})
	require.NoError(t, err)

	require.ErrorIs(t, c.WriteFeatures(ctx, nil, nil), acton.ErrReadOnly)
	require.ErrorIs(t, c.WriteLabels(ctx, nil, nil, nil), acton.ErrReadOnly)

	require.NoError(t, c.Close(ctx))
	require.NoError(t, c.Close(ctx))
	_, err = c.KnownInstanceIDs(ctx)
	require.ErrorIs(t, err, acton.ErrClosed)
	_, err = c.KnownLabellerIDs(ctx)
	require.ErrorIs(t, err, acton.ErrClosed)
	_, err = c.ReadLabels(ctx, []uint64{0}, []uint64{0})
	require.ErrorIs(t, err, acton.ErrClosed)
}
