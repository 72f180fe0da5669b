package builtin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/acton"
	"github.com/hupe1980/acton/database"
	"github.com/hupe1980/acton/learn"
)

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []string{KNearestNeighbours, NearestCentroid}, r.PredictorNames())
	assert.Equal(t, []string{Entropy, Margin, Random, Uncertainty}, r.RecommenderNames())

	require.NoError(t, r.ValidatePredictor(DefaultPredictor))
	require.NoError(t, r.ValidateRecommender(DefaultRecommender))
	require.ErrorIs(t, r.ValidatePredictor("Foo"), acton.ErrConfiguration)

	for _, name := range r.PredictorNames() {
		p, err := r.NewPredictor(name, nil, learn.Options{})
		require.NoError(t, err, name)
		assert.NotNil(t, p)
	}
	for _, name := range r.RecommenderNames() {
		rec, err := r.NewRecommender(name, nil, learn.Options{})
		require.NoError(t, err, name)
		assert.NotNil(t, rec)
	}
}

func TestRegistriesAreIndependent(t *testing.T) {
	a, b := NewRegistry(), NewRegistry()
	require.NoError(t, a.RegisterPredictor("Extra", func(_ database.Database, _ learn.Options) (learn.Predictor, error) { return nil, nil }))
	assert.NotContains(t, b.PredictorNames(), "Extra")
}
