package tabular

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"sync"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"

	"github.com/hupe1980/acton"
	"github.com/hupe1980/acton/tensor"
)

// Columnar is an Apache Arrow IPC file. Reads are served from the record
// batches, which stay resident until Close.
type Columnar struct {
	path     string
	records  []arrow.Record
	offsets  []int // first row of each record, plus the total row count
	features []int
	label    int
	logger   *acton.Logger

	mu sync.RWMutex
	proxy
}

// OpenColumnar reads the Arrow IPC file at path. Feature columns must be
// numeric. The label dtype follows the label column type: integers become
// int64, floats become float64 and strings become byte strings as wide as
// the longest label.
func OpenColumnar(ctx context.Context, path string, opts Options) (*Columnar, error) {
	logger := opts.logger("columnar")

	f, err := os.Open(path) //nolint:gosec
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, err := ipc.NewFileReader(f, ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	defer r.Close()

	schema := r.Schema()
	header := make([]string, schema.NumFields())
	for i, field := range schema.Fields() {
		header[i] = field.Name
	}
	labelIdx, featureIdx, err := opts.resolveColumns(header)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for _, i := range featureIdx {
		if !isNumeric(schema.Field(i).Type) {
			return nil, acton.Configurationf("%s: feature column %q has non-numeric type %s", path, header[i], schema.Field(i).Type)
		}
	}

	c := &Columnar{
		path:     path,
		offsets:  []int{0},
		features: featureIdx,
		label:    labelIdx,
		logger:   logger,
	}
	for i := 0; i < r.NumRecords(); i++ {
		rec, err := r.RecordAt(i)
		if err != nil {
			c.release()
			return nil, fmt.Errorf("read %s record %d: %w", path, i, err)
		}
		c.records = append(c.records, rec)
		c.offsets = append(c.offsets, c.offsets[len(c.offsets)-1]+int(rec.NumRows()))
	}

	c.proxy = proxy{src: c, nFeatures: len(featureIdx), hasLabels: labelIdx >= 0}
	if labelIdx >= 0 {
		dt, err := c.resolveLabelDType(schema.Field(labelIdx).Type)
		if err != nil {
			c.release()
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		c.labelDType = dt
	}

	logger.DebugContext(ctx, "opened columnar file", "path", path,
		"records", len(c.records), "rows", c.numRows(), "features", len(featureIdx))
	return c, nil
}

func (c *Columnar) resolveLabelDType(t arrow.DataType) (tensor.DType, error) {
	switch t.ID() {
	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64,
		arrow.UINT8, arrow.UINT16, arrow.UINT32, arrow.UINT64, arrow.BOOL:
		return tensor.Int64, nil
	case arrow.FLOAT32, arrow.FLOAT64:
		return tensor.Float64, nil
	case arrow.STRING, arrow.LARGE_STRING:
		width := 1
		for _, rec := range c.records {
			col := rec.Column(c.label)
			for i := 0; i < col.Len(); i++ {
				width = max(width, len(stringAt(col, i)))
			}
		}
		return tensor.Bytes(width), nil
	default:
		return tensor.DType{}, acton.Configurationf("unsupported label column type %s", t)
	}
}

// Path returns the file the source was opened from.
func (c *Columnar) Path() string { return c.path }

func (c *Columnar) numRows() int { return c.offsets[len(c.offsets)-1] }

// locate maps a row position to its record and the row within it.
func (c *Columnar) locate(row int) (arrow.Record, int) {
	i := sort.SearchInts(c.offsets[1:], row+1)
	return c.records[i], row - c.offsets[i]
}

func (c *Columnar) rowFeatures(_ context.Context, row int, dst []float64) error {
	rec, at := c.locate(row)
	for j, col := range c.features {
		dst[j] = numericAt(rec.Column(col), at)
	}
	return nil
}

func (c *Columnar) rowLabel(_ context.Context, row int) (tensor.Value, error) {
	rec, at := c.locate(row)
	col := rec.Column(c.label)
	if c.labelDType.IsNumeric() {
		return tensor.Number(numericAt(col, at)), nil
	}
	return tensor.Text(stringAt(col, at)), nil
}

// ReadFeatures returns the feature rows of ids as float64. Nulls and NaNs
// read as zero.
func (c *Columnar) ReadFeatures(ctx context.Context, ids []uint64) (*tensor.Array, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.proxy.readFeatures(ctx, ids)
}

// ReadLabels returns the labels of labeller 0.
func (c *Columnar) ReadLabels(ctx context.Context, labellerIDs, instanceIDs []uint64) (*tensor.Array, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.proxy.readLabels(ctx, labellerIDs, instanceIDs)
}

// WriteFeatures always fails: columnar sources are read-only.
func (c *Columnar) WriteFeatures(_ context.Context, _ []uint64, _ *tensor.Array) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return readOnly(c.closed)
}

// WriteLabels always fails: columnar sources are read-only.
func (c *Columnar) WriteLabels(_ context.Context, _, _ []uint64, _ *tensor.Array) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return readOnly(c.closed)
}

// KnownInstanceIDs returns 0..N-1.
func (c *Columnar) KnownInstanceIDs(_ context.Context) ([]uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.proxy.knownInstanceIDs()
}

// KnownLabellerIDs returns [0], or nothing without a label column.
func (c *Columnar) KnownLabellerIDs(_ context.Context) ([]uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return knownLabellers(c.closed, c.hasLabels)
}

// Close releases the record batches.
func (c *Columnar) Close(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.release()
	return nil
}

func (c *Columnar) release() {
	for _, rec := range c.records {
		rec.Release()
	}
	c.records = nil
}

func isNumeric(t arrow.DataType) bool {
	switch t.ID() {
	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64,
		arrow.UINT8, arrow.UINT16, arrow.UINT32, arrow.UINT64,
		arrow.FLOAT32, arrow.FLOAT64, arrow.BOOL:
		return true
	default:
		return false
	}
}

func numericAt(col arrow.Array, i int) float64 {
	if col.IsNull(i) {
		return 0
	}
	var v float64
	switch a := col.(type) {
	case *array.Float64:
		v = a.Value(i)
	case *array.Float32:
		v = float64(a.Value(i))
	case *array.Int64:
		v = float64(a.Value(i))
	case *array.Int32:
		v = float64(a.Value(i))
	case *array.Int16:
		v = float64(a.Value(i))
	case *array.Int8:
		v = float64(a.Value(i))
	case *array.Uint64:
		v = float64(a.Value(i))
	case *array.Uint32:
		v = float64(a.Value(i))
	case *array.Uint16:
		v = float64(a.Value(i))
	case *array.Uint8:
		v = float64(a.Value(i))
	case *array.Boolean:
		if a.Value(i) {
			v = 1
		}
	}
	if math.IsNaN(v) {
		return 0
	}
	return v
}

func stringAt(col arrow.Array, i int) string {
	if col.IsNull(i) {
		return ""
	}
	switch a := col.(type) {
	case *array.String:
		return a.Value(i)
	case *array.LargeString:
		return a.Value(i)
	default:
		return col.ValueStr(i)
	}
}
