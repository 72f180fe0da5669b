// Package builtin assembles a learn.Registry holding every reference
// predictor and recommender.
package builtin

import (
	"github.com/hupe1980/acton/database"
	"github.com/hupe1980/acton/learn"
	"github.com/hupe1980/acton/learn/predictor"
	"github.com/hupe1980/acton/learn/recommender"
)

// Component names.
const (
	NearestCentroid    = "NearestCentroid"
	KNearestNeighbours = "KNearestNeighbours"

	Random      = "RandomRecommender"
	Uncertainty = "UncertaintyRecommender"
	Entropy     = "EntropyRecommender"
	Margin      = "MarginRecommender"
)

// Defaults used when no component is named.
const (
	DefaultPredictor   = NearestCentroid
	DefaultRecommender = Random
)

// NewRegistry returns a fresh registry with all reference components.
func NewRegistry() *learn.Registry {
	r := learn.NewRegistry()
	for name, f := range map[string]learn.PredictorFactory{
		NearestCentroid: func(db database.Database, opts learn.Options) (learn.Predictor, error) {
			return predictor.NewNearestCentroid(db, opts)
		},
		KNearestNeighbours: func(db database.Database, opts learn.Options) (learn.Predictor, error) {
			return predictor.NewKNearestNeighbours(db, opts)
		},
	} {
		mustRegister(r.RegisterPredictor(name, f))
	}
	for name, f := range map[string]learn.RecommenderFactory{
		Random: func(db database.Database, opts learn.Options) (learn.Recommender, error) {
			return recommender.NewRandom(db, opts)
		},
		Uncertainty: func(db database.Database, opts learn.Options) (learn.Recommender, error) {
			return recommender.NewUncertainty(db, opts)
		},
		Entropy: func(db database.Database, opts learn.Options) (learn.Recommender, error) {
			return recommender.NewEntropy(db, opts)
		},
		Margin: func(db database.Database, opts learn.Options) (learn.Recommender, error) {
			return recommender.NewMargin(db, opts)
		},
	} {
		mustRegister(r.RegisterRecommender(name, f))
	}
	return r
}

func mustRegister(err error) {
	if err != nil {
		panic(err)
	}
}
