package tensor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDType(t *testing.T) {
	tests := []struct {
		in   string
		want DType
	}{
		{"float32", Float32},
		{"<f8", Float64},
		{"int32", Int32},
		{"i8", Int64},
		{"S12", Bytes(12)},
		{"|S3", Bytes(3)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDType(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			rt, err := ParseDType(got.String())
			require.NoError(t, err)
			assert.Equal(t, got, rt)
		})
	}

	_, err := ParseDType("complex128")
	require.Error(t, err)
	_, err = ParseDType("S0")
	require.Error(t, err)
}

func TestArrayFloatRoundTrip(t *testing.T) {
	a, err := FromFloat64([][]float64{{1.5, -2}, {3, 4.25}})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2}, a.Shape())
	assert.Equal(t, 4.25, a.At(1, 1).Num)
	assert.Equal(t, []float64{1.5, -2, 3, 4.25}, a.Float64s())

	_, err = FromFloat64([][]float64{{1}, {1, 2}})
	require.Error(t, err)
}

func TestArrayBytes(t *testing.T) {
	a := New(Bytes(4), 3)
	lossy, err := a.SetValue(0, Text("cat"))
	require.NoError(t, err)
	assert.False(t, lossy)
	lossy, err = a.SetValue(1, Text("horse"))
	require.NoError(t, err)
	assert.True(t, lossy)
	_, err = a.SetValue(2, Number(7))
	require.NoError(t, err)

	assert.Equal(t, Text("cat"), a.Value(0))
	assert.Equal(t, Text("hors"), a.Value(1))
	assert.Equal(t, Text("7"), a.Value(2))
	assert.Equal(t, 7.0, a.Float(2))
	assert.True(t, math.IsNaN(a.Float(0)))
}

func TestCast(t *testing.T) {
	a, err := FromFloat64([][]float64{{0.1, 2}})
	require.NoError(t, err)

	f32, lossy, err := a.Cast(Float32)
	require.NoError(t, err)
	assert.True(t, lossy)
	assert.Equal(t, Float32, f32.DType())
	assert.InDelta(t, 0.1, f32.Float(0), 1e-7)

	back, lossy, err := f32.Cast(Float64)
	require.NoError(t, err)
	assert.False(t, lossy)
	assert.InDelta(t, 0.1, back.Float(0), 1e-7)

	same, lossy, err := a.Cast(Float64)
	require.NoError(t, err)
	assert.False(t, lossy)
	assert.Same(t, a, same)

	text := New(Bytes(3), 2)
	_, _ = text.SetValue(0, Text("1.5"))
	_, _ = text.SetValue(1, Text("x"))
	_, _, err = text.Cast(Float32)
	require.Error(t, err)
}

func TestCanCastSafely(t *testing.T) {
	assert.True(t, CanCastSafely(Float32, Float64))
	assert.False(t, CanCastSafely(Float64, Float32))
	assert.True(t, CanCastSafely(Int32, Int64))
	assert.False(t, CanCastSafely(Int64, Int32))
	assert.False(t, CanCastSafely(Float64, Int64))
	assert.True(t, CanCastSafely(Bytes(3), Bytes(5)))
	assert.False(t, CanCastSafely(Bytes(5), Bytes(3)))
}

func TestValueLess(t *testing.T) {
	assert.True(t, Number(1).Less(Number(2)))
	assert.True(t, Number(100).Less(Text("a")))
	assert.True(t, Text("a").Less(Text("b")))
	assert.False(t, Text("b").Less(Number(1)))
	assert.True(t, Number(1e300).Less(Number(math.NaN())))
	assert.False(t, Number(math.NaN()).Less(Number(-1)))
	assert.True(t, Number(math.NaN()).Less(Text("a")))
}
