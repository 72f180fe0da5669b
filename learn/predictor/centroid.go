package predictor

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/acton"
	"github.com/hupe1980/acton/database"
	"github.com/hupe1980/acton/distance"
	"github.com/hupe1980/acton/learn"
	"github.com/hupe1980/acton/resource"
)

// NearestCentroid scores each class by the distance between an instance and
// the mean feature row of that class. Probabilities are a softmin over the
// distances; classes without training instances get zero.
type NearestCentroid struct {
	db     database.Database
	rc     *resource.Controller
	dist   distance.Func
	logger *acton.Logger

	mu        sync.RWMutex
	centroids [][]float64
	present   []bool
}

// NewNearestCentroid builds a NearestCentroid bound to db. The "metric"
// parameter selects the distance (default L2).
func NewNearestCentroid(db database.Database, opts learn.Options) (*NearestCentroid, error) {
	dist, err := metricParam(opts)
	if err != nil {
		return nil, err
	}
	return &NearestCentroid{
		db:     db,
		rc:     opts.Controller,
		dist:   dist,
		logger: opts.Log("nearest-centroid"),
	}, nil
}

// Fit computes one centroid per class.
func (p *NearestCentroid) Fit(ctx context.Context, ts learn.TrainingSet) error {
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
	d := len(feats[0])

	centroids := make([][]float64, ts.NumClasses)
	counts := make([]int, ts.NumClasses)
	for c := range centroids {
		centroids[c] = make([]float64, d)
	}
	for i, row := range feats {
		c := ts.Classes[i]
		counts[c]++
		for j, v := range row {
			centroids[c][j] += v
		}
	}
	present := make([]bool, ts.NumClasses)
	for c, n := range counts {
		if n == 0 {
			continue
		}
		present[c] = true
		for j := range centroids[c] {
			centroids[c][j] /= float64(n)
		}
	}

	p.mu.Lock()
	p.centroids, p.present = centroids, present
	p.mu.Unlock()

	p.logger.DebugContext(ctx, "fitted", "instances", len(ts.IDs), "classes", ts.NumClasses)
	return nil
}

// Predict returns [1][len(ids)][classes] probabilities.
func (p *NearestCentroid) Predict(ctx context.Context, ids []uint64) (learn.Predictions, error) {
	p.mu.RLock()
	centroids, present := p.centroids, p.present
	p.mu.RUnlock()
	if centroids == nil {
		return nil, learn.ErrNotFitted
	}

	feats, err := rows(ctx, p.db, ids)
	if err != nil {
		return nil, err
	}
	release, err := reserve(ctx, p.rc, p.logger, len(ids), len(centroids))
	if err != nil {
		return nil, err
	}
	defer release()

	out := make([][]float64, len(ids))
	err = parallel(ctx, p.rc, len(ids), func(lo, hi int) error {
		dist := make([]float64, len(centroids))
		for i := lo; i < hi; i++ {
			if len(feats[i]) != len(centroids[0]) {
				return &acton.DimensionMismatchError{Axis: "features", Expected: len(centroids[0]), Actual: len(feats[i])}
			}
			for c, centroid := range centroids {
				if present[c] {
					dist[c] = p.dist(feats[i], centroid)
				}
			}
			out[i] = make([]float64, len(centroids))
			softmin(dist, present, out[i])
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("nearest centroid: %w", err)
	}
	return learn.Predictions{out}, nil
}

// ReferencePredict is Predict; the predictor is deterministic.
func (p *NearestCentroid) ReferencePredict(ctx context.Context, ids []uint64) (learn.Predictions, error) {
	return p.Predict(ctx, ids)
}
