package predictor

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/acton"
	"github.com/hupe1980/acton/database"
	"github.com/hupe1980/acton/distance"
	"github.com/hupe1980/acton/learn"
	"github.com/hupe1980/acton/resource"
)

// Parameter keys understood by the predictors.
const (
	ParamMetric = "metric"
	ParamK      = "k"
)

// parallel runs fn over [0, n) split into one chunk per worker slot.
func parallel(ctx context.Context, rc *resource.Controller, n int, fn func(lo, hi int) error) error {
	if n == 0 {
		return nil
	}
	workers := rc.Workers()
	chunk := max(1, (n+workers-1)/workers)

	g, gctx := errgroup.WithContext(ctx)
	for lo := 0; lo < n; lo += chunk {
		hi := min(n, lo+chunk)
		if err := rc.AcquireWorker(gctx); err != nil {
			if werr := g.Wait(); werr != nil {
				return werr
			}
			return err
		}
		g.Go(func() error {
			defer rc.ReleaseWorker()
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(lo, hi)
		})
	}
	return g.Wait()
}

// rows reads the features of ids as float64 rows.
func rows(ctx context.Context, db database.Database, ids []uint64) ([][]float64, error) {
	a, err := db.ReadFeatures(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("read features: %w", err)
	}
	d := a.Dim(1)
	flat := a.Float64s()
	out := make([][]float64, len(ids))
	for i := range out {
		out[i] = flat[i*d : (i+1)*d : (i+1)*d]
	}
	return out, nil
}

func metricParam(opts learn.Options) (distance.Func, error) {
	m, err := distance.ParseMetric(opts.Params[ParamMetric])
	if err != nil {
		return nil, acton.Configurationf("%v", err)
	}
	return distance.Provider(m)
}

func intParam(opts learn.Options, key string, def int) (int, error) {
	s, ok := opts.Params[key]
	if !ok || s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return 0, acton.Configurationf("parameter %s must be a positive integer, got %q", key, s)
	}
	return v, nil
}

// softmin converts distances to probabilities; smaller distances weigh
// more. Entries marked absent or at a NaN distance get probability zero.
func softmin(dist []float64, present []bool, out []float64) {
	lo := math.Inf(1)
	for c, d := range dist {
		if present[c] && d < lo {
			lo = d
		}
	}
	if math.IsInf(lo, 1) {
		clear(out)
		return
	}
	var sum float64
	for c, d := range dist {
		out[c] = 0
		if present[c] && !math.IsNaN(d) {
			out[c] = math.Exp(-(d - lo))
			sum += out[c]
		}
	}
	if sum == 0 {
		return
	}
	for c := range out {
		out[c] /= sum
	}
}

// reserve accounts for an n x classes float64 prediction buffer.
func reserve(ctx context.Context, rc *resource.Controller, logger *acton.Logger, n, classes int) (func(), error) {
	bytes := int64(n) * int64(classes) * 8
	if err := rc.AcquireMemory(ctx, bytes); err != nil {
		return nil, err
	}
	logger.Log(ctx, acton.LevelTrace, "reserved prediction buffer", "bytes", bytes, "in_use", rc.MemoryUsage())
	return func() { rc.ReleaseMemory(bytes) }, nil
}
