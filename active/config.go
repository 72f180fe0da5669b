package active

import (
	"math"

	"github.com/hupe1980/acton"
	"github.com/hupe1980/acton/codec"
	"github.com/hupe1980/acton/internal/compress"
	"github.com/hupe1980/acton/learn/builtin"
)

// PredictTestSize is the share of instances held out of training by Predict.
const PredictTestSize = 0.8

// Config holds the simulation settings.
type Config struct {
	// Epochs is the maximum number of epochs.
	Epochs int

	// InitialCount is the size of the first, randomly drawn batch.
	InitialCount int

	// RecommendationCount is the size of every later batch.
	RecommendationCount int

	// TestSize is the share of instances held out for evaluation, in (0, 1).
	TestSize float64

	// Seed drives the split, the initial draw and seeded components.
	Seed int64

	// Predictor and Recommender are registry names.
	Predictor   string
	Recommender string

	// Params is passed to the predictor and recommender factories.
	Params map[string]string

	// OutputPath is the snapshot stream (Run) or artefact (Predict).
	OutputPath string

	// Codec and Compression configure the snapshot payloads.
	Codec       string
	Compression compress.Type
}

// DefaultConfig returns the default settings. OutputPath must still be set.
func DefaultConfig() Config {
	return Config{
		Epochs:              10,
		InitialCount:        10,
		RecommendationCount: 1,
		TestSize:            0.2,
		Predictor:           builtin.DefaultPredictor,
		Recommender:         builtin.DefaultRecommender,
		Codec:               codec.Default.Name(),
		Compression:         compress.None,
	}
}

// Validate checks the settings used by Run.
func (c Config) Validate() error {
	switch {
	case c.Epochs < 1:
		return acton.Configurationf("epochs must be at least 1, got %d", c.Epochs)
	case c.InitialCount < 1:
		return acton.Configurationf("initial count must be at least 1, got %d", c.InitialCount)
	case c.RecommendationCount < 1:
		return acton.Configurationf("recommendation count must be at least 1, got %d", c.RecommendationCount)
	case math.IsNaN(c.TestSize) || c.TestSize <= 0 || c.TestSize >= 1:
		return acton.Configurationf("test size must be in (0, 1), got %v", c.TestSize)
	}
	return c.validateOutput()
}

func (c Config) validateOutput() error {
	if c.OutputPath == "" {
		return acton.Configurationf("output path is empty")
	}
	if c.Codec != "" {
		if _, ok := codec.ByName(c.Codec); !ok {
			return acton.Configurationf("unknown codec %q", c.Codec)
		}
	}
	if !c.Compression.Valid() {
		return acton.Configurationf("unknown compression %d", c.Compression)
	}
	return nil
}
