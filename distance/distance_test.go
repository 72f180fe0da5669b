package distance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDot(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float64
		expected float64
	}{
		{"Simple", []float64{1, 2, 3}, []float64{4, 5, 6}, 32},
		{"Zero", []float64{0, 0, 0}, []float64{0, 0, 0}, 0},
		{"Mixed", []float64{1, -1, 2}, []float64{1, 1, -2}, -4},
		{"Empty", []float64{}, []float64{}, 0},
		{"Single", []float64{2}, []float64{3}, 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, Dot(tt.a, tt.b), 1e-9)
		})
	}
}

func TestSquaredL2(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float64
		expected float64
	}{
		{"Simple", []float64{1, 2, 3}, []float64{4, 5, 6}, 27},
		{"Zero", []float64{0, 0, 0}, []float64{0, 0, 0}, 0},
		{"Identical", []float64{1, 2, 3}, []float64{1, 2, 3}, 0},
		{"Mixed", []float64{1, -1}, []float64{-1, 1}, 8},
		{"Empty", []float64{}, []float64{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, SquaredL2(tt.a, tt.b), 1e-9)
		})
	}
}

func TestManhattanAndCosine(t *testing.T) {
	assert.InDelta(t, 9.0, Manhattan([]float64{1, 2, 3}, []float64{4, 5, 6}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float64{1, 0}, []float64{2, 0}), 1e-9)
	assert.InDelta(t, 1.0, Cosine([]float64{1, 0}, []float64{0, 3}), 1e-9)
	assert.InDelta(t, 2.0, Cosine([]float64{1, 0}, []float64{-1, 0}), 1e-9)
	assert.InDelta(t, 1.0, Cosine([]float64{0, 0}, []float64{1, 1}), 1e-9)
}

func TestMetric(t *testing.T) {
	t.Run("String", func(t *testing.T) {
		assert.Equal(t, "L2", MetricL2.String())
		assert.Equal(t, "Cosine", MetricCosine.String())
		assert.Equal(t, "Manhattan", MetricManhattan.String())
		assert.Equal(t, "Unknown(99)", Metric(99).String())
	})

	t.Run("Parse", func(t *testing.T) {
		m, err := ParseMetric("COSINE")
		require.NoError(t, err)
		assert.Equal(t, MetricCosine, m)
		m, err = ParseMetric("")
		require.NoError(t, err)
		assert.Equal(t, MetricL2, m)
		_, err = ParseMetric("hamming")
		assert.Error(t, err)
	})

	t.Run("Provider", func(t *testing.T) {
		f, err := Provider(MetricL2)
		require.NoError(t, err)
		assert.InDelta(t, 27.0, f([]float64{1, 2, 3}, []float64{4, 5, 6}), 1e-9)

		f, err = Provider(MetricManhattan)
		require.NoError(t, err)
		assert.InDelta(t, 9.0, f([]float64{1, 2, 3}, []float64{4, 5, 6}), 1e-9)

		_, err = Provider(Metric(99))
		assert.Error(t, err)
	})
}
