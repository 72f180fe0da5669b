package predictor

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/acton"
	"github.com/hupe1980/acton/database"
	"github.com/hupe1980/acton/distance"
	"github.com/hupe1980/acton/internal/queue"
	"github.com/hupe1980/acton/learn"
	"github.com/hupe1980/acton/resource"
)

// DefaultK is the neighbourhood size of KNearestNeighbours.
const DefaultK = 5

// KNearestNeighbours predicts the class distribution of the k closest
// training instances. Ties in distance prefer the earlier training instance.
type KNearestNeighbours struct {
	db     database.Database
	rc     *resource.Controller
	dist   distance.Func
	k      int
	logger *acton.Logger

	mu         sync.RWMutex
	train      [][]float64
	classes    []int
	numClasses int
}

// NewKNearestNeighbours builds a KNearestNeighbours bound to db. Parameters:
// "k" (default 5) and "metric" (default L2).
func NewKNearestNeighbours(db database.Database, opts learn.Options) (*KNearestNeighbours, error) {
	dist, err := metricParam(opts)
	if err != nil {
		return nil, err
	}
	k, err := intParam(opts, ParamK, DefaultK)
	if err != nil {
		return nil, err
	}
	return &KNearestNeighbours{
		db:     db,
		rc:     opts.Controller,
		dist:   dist,
		k:      k,
		logger: opts.Log("knn"),
	}, nil
}

// Fit memorises the training rows.
func (p *KNearestNeighbours) Fit(ctx context.Context, ts learn.TrainingSet) error {
	if err := ts.Validate(); err != nil {
		return err
	}
	if len(ts.IDs) == 0 {
		return learn.ErrEmptyTrainingSet
	}
	feats, err := rows(ctx, p.db, ts.IDs)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.train = feats
	p.classes = append([]int(nil), ts.Classes...)
	p.numClasses = ts.NumClasses
	p.mu.Unlock()

	p.logger.DebugContext(ctx, "fitted", "instances", len(ts.IDs), "classes", ts.NumClasses, "k", p.k)
	return nil
}

// Predict returns [1][len(ids)][classes] neighbour vote fractions.
func (p *KNearestNeighbours) Predict(ctx context.Context, ids []uint64) (learn.Predictions, error) {
	p.mu.RLock()
	train, classes, numClasses := p.train, p.classes, p.numClasses
	p.mu.RUnlock()
	if train == nil {
		return nil, learn.ErrNotFitted
	}

	feats, err := rows(ctx, p.db, ids)
	if err != nil {
		return nil, err
	}
	release, err := reserve(ctx, p.rc, p.logger, len(ids), numClasses)
	if err != nil {
		return nil, err
	}
	defer release()

	k := min(p.k, len(train))
	out := make([][]float64, len(ids))
	err = parallel(ctx, p.rc, len(ids), func(lo, hi int) error {
		pq := queue.NewMax(k)
		for i := lo; i < hi; i++ {
			if len(feats[i]) != len(train[0]) {
				return &acton.DimensionMismatchError{Axis: "features", Expected: len(train[0]), Actual: len(feats[i])}
			}
			pq.Reset()
			for j, row := range train {
				pq.Offer(queue.Item{Index: j, Score: p.dist(feats[i], row)}, k)
			}
			votes := make([]float64, numClasses)
			for _, it := range pq.Drain() {
				votes[classes[it.Index]] += 1 / float64(k)
			}
			out[i] = votes
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("k nearest neighbours: %w", err)
	}
	return learn.Predictions{out}, nil
}

// ReferencePredict is Predict; the predictor is deterministic.
func (p *KNearestNeighbours) ReferencePredict(ctx context.Context, ids []uint64) (learn.Predictions, error) {
	return p.Predict(ctx, ids)
}
