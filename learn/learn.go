// Package learn defines the predictor and recommender capabilities driven
// by the active-learning loop, and the Registry that maps component names to
// factories.
//
// Predictors and recommenders are bound to a database at construction and
// read features themselves. Labels reach a predictor already encoded as
// integer classes.
package learn

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/hupe1980/acton"
	"github.com/hupe1980/acton/database"
	"github.com/hupe1980/acton/resource"
)

var (
	// ErrNotFitted is returned by predictors used before a successful Fit.
	ErrNotFitted = errors.New("predictor is not fitted")

	// ErrEmptyTrainingSet is returned when fitting on no instances.
	ErrEmptyTrainingSet = errors.New("empty training set")
)

// Predictions holds class probabilities laid out [task][instance][class].
type Predictions [][][]float64

// Shape returns the number of tasks, instances and classes.
func (p Predictions) Shape() (tasks, instances, classes int) {
	tasks = len(p)
	if tasks > 0 {
		instances = len(p[0])
		if instances > 0 {
			classes = len(p[0][0])
		}
	}
	return tasks, instances, classes
}

// ByInstance transposes p to [instance][task][class].
func (p Predictions) ByInstance() [][][]float64 {
	tasks, n, _ := p.Shape()
	out := make([][][]float64, n)
	for i := range out {
		out[i] = make([][]float64, tasks)
		for t := 0; t < tasks; t++ {
			out[i][t] = p[t][i]
		}
	}
	return out
}

// FromInstances transposes [instance][task][class] back to Predictions.
func FromInstances(byInstance [][][]float64) Predictions {
	if len(byInstance) == 0 {
		return Predictions{}
	}
	tasks := len(byInstance[0])
	out := make(Predictions, tasks)
	for t := range out {
		out[t] = make([][]float64, len(byInstance))
		for i := range byInstance {
			out[t][i] = byInstance[i][t]
		}
	}
	return out
}

// Validate checks that p covers n instances with a consistent class axis.
func (p Predictions) Validate(n int) error {
	if len(p) == 0 {
		return fmt.Errorf("%w: predictions have no tasks", acton.ErrDimensionMismatch)
	}
	classes := -1
	for _, task := range p {
		if len(task) != n {
			return &acton.DimensionMismatchError{Axis: "prediction instances", Expected: n, Actual: len(task)}
		}
		for _, row := range task {
			if classes < 0 {
				classes = len(row)
			}
			if len(row) != classes {
				return &acton.DimensionMismatchError{Axis: "prediction classes", Expected: classes, Actual: len(row)}
			}
		}
	}
	return nil
}

// TrainingSet is the labelled data a predictor is fit on. Classes[i] is the
// encoded label of IDs[i], in [0, NumClasses).
type TrainingSet struct {
	IDs        []uint64
	Classes    []int
	NumClasses int
}

// Validate checks the positional correspondence and class range.
func (ts TrainingSet) Validate() error {
	if len(ts.IDs) != len(ts.Classes) {
		return &acton.DimensionMismatchError{Axis: "training classes", Expected: len(ts.IDs), Actual: len(ts.Classes)}
	}
	for i, c := range ts.Classes {
		if c < 0 || c >= ts.NumClasses {
			return fmt.Errorf("%w: class %d of instance %d outside [0, %d)", acton.ErrOutOfRange, c, ts.IDs[i], ts.NumClasses)
		}
	}
	return nil
}

// Predictor learns from labelled instances and predicts class probabilities.
type Predictor interface {
	// Fit trains on the training set, replacing earlier fits.
	Fit(ctx context.Context, ts TrainingSet) error

	// Predict returns [task][len(ids)][class] probabilities.
	Predict(ctx context.Context, ids []uint64) (Predictions, error)

	// ReferencePredict is the deterministic evaluation variant of Predict.
	ReferencePredict(ctx context.Context, ids []uint64) (Predictions, error)
}

// Recommender selects instances to label next.
type Recommender interface {
	// Recommend returns up to n ids of pool. predictions is laid out
	// [task][len(pool)][class].
	Recommend(ctx context.Context, pool []uint64, predictions Predictions, n int) ([]uint64, error)
}

// Options are passed to every factory.
type Options struct {
	// Logger defaults to a no-op logger.
	Logger *acton.Logger

	// Controller bounds worker concurrency and scoring memory. Nil means
	// no limits and a single worker.
	Controller *resource.Controller

	// Seed drives every random choice.
	Seed int64

	// Params holds component-specific settings, for example "k" for
	// KNearestNeighbours.
	Params map[string]string
}

// Log returns the configured logger tagged with component.
func (o Options) Log(component string) *acton.Logger {
	l := o.Logger
	if l == nil {
		l = acton.NoopLogger()
	}
	return l.WithComponent(component)
}

// PredictorFactory builds a predictor bound to db.
type PredictorFactory func(db database.Database, opts Options) (Predictor, error)

// RecommenderFactory builds a recommender bound to db.
type RecommenderFactory func(db database.Database, opts Options) (Recommender, error)

// NewRand returns a PCG source seeded from seed. Equal seeds give equal
// sequences.
func NewRand(seed int64) *rand.Rand {
	s := uint64(seed)
	return rand.New(rand.NewPCG(s, s^0x9e3779b97f4a7c15))
}
