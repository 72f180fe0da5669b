package tensor

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
)

// Array is a dense row-major array with a fixed element type.
type Array struct {
	dtype DType
	shape []int
	data  []byte
}

// New allocates a zero-filled array.
func New(dt DType, shape ...int) *Array {
	n := product(shape)
	return &Array{
		dtype: dt,
		shape: append([]int(nil), shape...),
		data:  make([]byte, n*dt.ItemSize()),
	}
}

// FromBytes wraps raw little-endian element bytes.
func FromBytes(dt DType, shape []int, data []byte) (*Array, error) {
	if !dt.Valid() {
		return nil, fmt.Errorf("invalid dtype %s", dt)
	}
	for _, d := range shape {
		if d < 0 {
			return nil, fmt.Errorf("negative dimension in shape %v", shape)
		}
	}
	want := product(shape) * dt.ItemSize()
	if len(data) != want {
		return nil, fmt.Errorf("shape %v of %s needs %d bytes, got %d", shape, dt, want, len(data))
	}
	return &Array{dtype: dt, shape: append([]int(nil), shape...), data: data}, nil
}

// FromFloat64 builds a rank-2 float64 array from rows. All rows must have
// equal length.
func FromFloat64(rows [][]float64) (*Array, error) {
	cols := 0
	if len(rows) > 0 {
		cols = len(rows[0])
	}
	a := New(Float64, len(rows), cols)
	for i, r := range rows {
		if len(r) != cols {
			return nil, fmt.Errorf("row %d has %d columns, expected %d", i, len(r), cols)
		}
		for j, v := range r {
			a.SetFloat(i*cols+j, v)
		}
	}
	return a, nil
}

// DType returns the element type.
func (a *Array) DType() DType { return a.dtype }

// Shape returns a copy of the shape.
func (a *Array) Shape() []int { return append([]int(nil), a.shape...) }

// Rank returns the number of axes.
func (a *Array) Rank() int { return len(a.shape) }

// Dim returns the extent of axis i, or 0 when the axis does not exist.
func (a *Array) Dim(i int) int {
	if i < 0 || i >= len(a.shape) {
		return 0
	}
	return a.shape[i]
}

// Len returns the number of elements.
func (a *Array) Len() int { return product(a.shape) }

// Bytes returns the underlying element bytes. The slice aliases the array.
func (a *Array) Bytes() []byte { return a.data }

// Index converts a multi-dimensional index to a flat element index.
func (a *Array) Index(idx ...int) int {
	flat := 0
	for i, v := range idx {
		flat = flat*a.shape[i] + v
	}
	return flat
}

// Float returns element i as a float64. Byte strings are parsed and yield
// NaN when they are not numbers.
func (a *Array) Float(i int) float64 {
	sz := a.dtype.ItemSize()
	b := a.data[i*sz : (i+1)*sz]
	switch a.dtype.kind {
	case KindFloat32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	case KindFloat64:
		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	case KindInt32:
		return float64(int32(binary.LittleEndian.Uint32(b))) //nolint:gosec
	case KindInt64:
		return float64(int64(binary.LittleEndian.Uint64(b))) //nolint:gosec
	case KindBytes:
		f, err := strconv.ParseFloat(string(trimNUL(b)), 64)
		if err != nil {
			return math.NaN()
		}
		return f
	}
	return math.NaN()
}

// SetFloat stores f at element i, converting to the array dtype.
// It reports whether the conversion lost information.
func (a *Array) SetFloat(i int, f float64) (lossy bool) {
	sz := a.dtype.ItemSize()
	b := a.data[i*sz : (i+1)*sz]
	switch a.dtype.kind {
	case KindFloat32:
		v := float32(f)
		binary.LittleEndian.PutUint32(b, math.Float32bits(v))
		return float64(v) != f && !math.IsNaN(f)
	case KindFloat64:
		binary.LittleEndian.PutUint64(b, math.Float64bits(f))
	case KindInt32:
		v := int32(f)
		binary.LittleEndian.PutUint32(b, uint32(v)) //nolint:gosec
		return float64(v) != f
	case KindInt64:
		v := int64(f)
		binary.LittleEndian.PutUint64(b, uint64(v)) //nolint:gosec
		return float64(v) != f
	case KindBytes:
		return putText(b, strconv.FormatFloat(f, 'g', -1, 64))
	}
	return false
}

// Value returns element i.
func (a *Array) Value(i int) Value {
	if a.dtype.kind == KindBytes {
		sz := a.dtype.width
		return Text(string(trimNUL(a.data[i*sz : (i+1)*sz])))
	}
	return Number(a.Float(i))
}

// At returns the element at a multi-dimensional index.
func (a *Array) At(idx ...int) Value { return a.Value(a.Index(idx...)) }

// SetValue stores v at element i. Text stored into a numeric array must parse
// as a number. It reports whether the conversion lost information.
func (a *Array) SetValue(i int, v Value) (bool, error) {
	if a.dtype.kind == KindBytes {
		sz := a.dtype.width
		return putText(a.data[i*sz:(i+1)*sz], v.String()), nil
	}
	f, ok := v.Float()
	if !ok {
		return false, fmt.Errorf("cannot store %q as %s", v.Str, a.dtype)
	}
	return a.SetFloat(i, f), nil
}

// Float64s returns all elements as float64.
func (a *Array) Float64s() []float64 {
	out := make([]float64, a.Len())
	for i := range out {
		out[i] = a.Float(i)
	}
	return out
}

// Clone returns a deep copy.
func (a *Array) Clone() *Array {
	return &Array{
		dtype: a.dtype,
		shape: append([]int(nil), a.shape...),
		data:  append([]byte(nil), a.data...),
	}
}

// Equal reports whether both arrays have the same dtype, shape and bytes.
func (a *Array) Equal(b *Array) bool {
	if a.dtype != b.dtype || len(a.shape) != len(b.shape) {
		return false
	}
	for i := range a.shape {
		if a.shape[i] != b.shape[i] {
			return false
		}
	}
	return bytes.Equal(a.data, b.data)
}

// Cast converts the array to dt. The lossy result is the static safe-cast
// verdict (see CanCastSafely); values that cannot be converted at all
// (non-numeric text into a numeric dtype) produce an error.
func (a *Array) Cast(dt DType) (*Array, bool, error) {
	if a.dtype == dt {
		return a, false, nil
	}
	if !dt.Valid() {
		return nil, false, fmt.Errorf("invalid dtype %s", dt)
	}
	out := New(dt, a.shape...)
	n := a.Len()
	for i := 0; i < n; i++ {
		if a.dtype.IsNumeric() && dt.IsNumeric() {
			out.SetFloat(i, a.Float(i))
			continue
		}
		if _, err := out.SetValue(i, a.Value(i)); err != nil {
			return nil, false, err
		}
	}
	return out, !CanCastSafely(a.dtype, dt), nil
}

func putText(dst []byte, s string) bool {
	clear(dst)
	n := copy(dst, s)
	return n < len(s)
}

func trimNUL(b []byte) []byte {
	return bytes.TrimRight(b, "\x00")
}

func product(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}
