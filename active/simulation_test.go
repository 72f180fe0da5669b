package active

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/acton"
	"github.com/hupe1980/acton/database"
	"github.com/hupe1980/acton/learn"
	"github.com/hupe1980/acton/learn/builtin"
	"github.com/hupe1980/acton/snapshot"
	"github.com/hupe1980/acton/store"
	"github.com/hupe1980/acton/tensor"
	"github.com/hupe1980/acton/testutil"
)

const wholePool = "WholePool"

// wholePoolRecommender always selects every remaining instance.
type wholePoolRecommender struct{}

func (wholePoolRecommender) Recommend(_ context.Context, pool []uint64, _ learn.Predictions, _ int) ([]uint64, error) {
	return append([]uint64(nil), pool...), nil
}

// failingPredictor wraps a predictor and fails the fit numbered failOn.
type failingPredictor struct {
	learn.Predictor
	fits   int
	failOn int
}

var errFit = errors.New("fit exploded")

func (p *failingPredictor) Fit(ctx context.Context, ts learn.TrainingSet) error {
	p.fits++
	if p.fits == p.failOn {
		return errFit
	}
	return p.Predictor.Fit(ctx, ts)
}

func registry(t *testing.T) *learn.Registry {
	t.Helper()
	r := builtin.NewRegistry()
	require.NoError(t, r.RegisterRecommender(wholePool, func(database.Database, learn.Options) (learn.Recommender, error) {
		return wholePoolRecommender{}, nil
	}))
	require.NoError(t, r.RegisterPredictor("FailSecond", func(db database.Database, opts learn.Options) (learn.Predictor, error) {
		inner, err := r.NewPredictor(builtin.NearestCentroid, db, opts)
		if err != nil {
			return nil, err
		}
		return &failingPredictor{Predictor: inner, failOn: 2}, nil
	}))
	return r
}

// writePoints writes n rows alternating between two clusters.
func writePoints(t *testing.T, n int) database.Descriptor {
	t.Helper()
	return database.Descriptor{
		Kind:    database.KindDelimited,
		Path:    testutil.Parity(n).WriteCSV(t, t.TempDir()),
		Options: map[string]string{database.OptLabelCol: testutil.LabelColumn},
	}
}

func config(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Seed = 42
	cfg.OutputPath = filepath.Join(t.TempDir(), "run.acts")
	return cfg
}

func readRecords(t *testing.T, path string) (snapshot.Metadata, []snapshot.Record) {
	t.Helper()
	r, err := snapshot.Open(path)
	require.NoError(t, err)
	defer r.Close()
	recs, err := r.ReadAll()
	require.NoError(t, err)
	return r.Metadata(), recs
}

func TestRunTerminatesWhenPoolIsExhausted(t *testing.T) {
	ctx := context.Background()
	cfg := config(t)
	cfg.Epochs = 3
	cfg.InitialCount = 2
	cfg.Recommender = wholePool

	res, err := New(registry(t), cfg).Run(ctx, writePoints(t, 10))
	require.NoError(t, err)
	assert.Equal(t, &Result{EpochsRun: 2, Labelled: 10, Exhausted: true}, res)

	meta, recs := readRecords(t, cfg.OutputPath)
	assert.Equal(t, wholePool, meta.Recommender)
	assert.Equal(t, builtin.NearestCentroid, meta.Predictor)
	require.Len(t, recs, 2)
	for e, rec := range recs {
		assert.Equal(t, e, rec.Epoch)
		assert.Equal(t, builtin.NearestCentroid, rec.Predictor)
		assert.Len(t, rec.TestIDs, 2)
		assert.IsIncreasing(t, rec.TestIDs)
		assert.Len(t, rec.Predictions, 2)
		assert.Len(t, rec.Predictions[0], 1, "one task")
		assert.Equal(t, database.KindDelimited, rec.Database.Kind)
		assert.Equal(t, "label", rec.DatabaseOptions[database.OptLabelCol])
	}
	assert.Equal(t, recs[0].TestIDs, recs[1].TestIDs, "test set is fixed for the run")
	assert.Len(t, recs[1].Predictions[0][0], 2, "both classes seen by the final epoch")
}

func TestRunRecordsMetrics(t *testing.T) {
	ctx := context.Background()
	cfg := config(t)
	cfg.Epochs = 3
	cfg.InitialCount = 2
	cfg.Recommender = wholePool

	m := &acton.BasicMetricsCollector{}
	_, err := New(registry(t), cfg, WithMetrics(m)).Run(ctx, writePoints(t, 10))
	require.NoError(t, err)

	stats := m.GetStats()
	assert.EqualValues(t, 2, stats.EpochCount)
	assert.EqualValues(t, 2, stats.LabelBatches)
	assert.EqualValues(t, 10, stats.LabelsQueried)
	assert.EqualValues(t, 2, stats.FitCount)
	assert.EqualValues(t, 2, stats.SnapshotCount)
	assert.EqualValues(t, 1, stats.RecommendCount, "the exhausted epoch does not recommend")
	assert.Zero(t, stats.EpochErrors)
}

func TestRunStopsAfterEpochs(t *testing.T) {
	ctx := context.Background()
	cfg := config(t)
	cfg.Epochs = 3
	cfg.InitialCount = 3
	cfg.RecommendationCount = 2
	cfg.Recommender = builtin.Uncertainty
	cfg.Predictor = builtin.KNearestNeighbours
	cfg.Params = map[string]string{"k": "3"}

	res, err := New(registry(t), cfg).Run(ctx, writePoints(t, 20))
	require.NoError(t, err)
	assert.Equal(t, &Result{EpochsRun: 3, Labelled: 7}, res)

	_, recs := readRecords(t, cfg.OutputPath)
	require.Len(t, recs, 3)
	assert.Len(t, recs[0].TestIDs, 4)
}

func TestRunIsDeterministic(t *testing.T) {
	ctx := context.Background()
	desc := writePoints(t, 12)

	run := func() []snapshot.Record {
		cfg := config(t)
		cfg.Epochs = 4
		cfg.InitialCount = 2
		_, err := New(registry(t), cfg).Run(ctx, desc)
		require.NoError(t, err)
		_, recs := readRecords(t, cfg.OutputPath)
		return recs
	}
	assert.Equal(t, run(), run())
}

func TestRunRejectsUnknownComponentsBeforeOpening(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	desc := database.Descriptor{Kind: database.KindManaged, Path: filepath.Join(dir, "never.acton")}

	for _, mutate := range []func(*Config){
		func(c *Config) { c.Predictor = "Foo" },
		func(c *Config) { c.Recommender = "Foo" },
	} {
		cfg := DefaultConfig()
		cfg.OutputPath = filepath.Join(dir, "never.acts")
		mutate(&cfg)

		res, err := New(registry(t), cfg).Run(ctx, desc)
		require.ErrorIs(t, err, acton.ErrConfiguration)
		assert.Nil(t, res)
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "no storage or output may be created")
}

func TestConfigValidate(t *testing.T) {
	tests := map[string]func(*Config){
		"epochs":          func(c *Config) { c.Epochs = 0 },
		"initial":         func(c *Config) { c.InitialCount = 0 },
		"recommendations": func(c *Config) { c.RecommendationCount = -1 },
		"test size zero":  func(c *Config) { c.TestSize = 0 },
		"test size one":   func(c *Config) { c.TestSize = 1 },
		"output":          func(c *Config) { c.OutputPath = "" },
		"codec":           func(c *Config) { c.Codec = "gob" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := config(t)
			mutate(&cfg)
			require.ErrorIs(t, cfg.Validate(), acton.ErrConfiguration)
		})
	}
	require.NoError(t, config(t).Validate())
}

func TestRunAbortKeepsCompletedEpochs(t *testing.T) {
	ctx := context.Background()
	cfg := config(t)
	cfg.Predictor = "FailSecond"
	cfg.Epochs = 5

	res, err := New(registry(t), cfg).Run(ctx, writePoints(t, 10))
	require.ErrorIs(t, err, errFit)
	assert.Equal(t, 1, res.EpochsRun)

	_, recs := readRecords(t, cfg.OutputPath)
	require.Len(t, recs, 1)
	assert.Equal(t, 0, recs[0].Epoch)
}

func TestRunReleasesManagedStoreOnError(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data.acton")

	s, err := store.Open(ctx, path, store.WithFeatureDType(tensor.Float64), store.WithLabelDType(tensor.Int64))
	require.NoError(t, err)
	ids := []uint64{0, 1, 2, 3, 4, 5, 6, 7}
	rows := make([][]float64, len(ids))
	labels := tensor.New(tensor.Int64, 1, len(ids), 1)
	for i := range ids {
		rows[i] = []float64{float64(i), float64(i % 2)}
		_, err := labels.SetValue(i, tensor.Number(float64(i%2)))
		require.NoError(t, err)
	}
	feats, err := tensor.FromFloat64(rows)
	require.NoError(t, err)
	require.NoError(t, s.WriteFeatures(ctx, ids, feats))
	require.NoError(t, s.WriteLabels(ctx, []uint64{0}, ids, labels))
	require.NoError(t, s.Close(ctx))

	desc := database.Descriptor{
		Kind:    database.KindManaged,
		Path:    path,
		Options: map[string]string{database.OptFeatureDType: "float64", database.OptLabelDType: "int64"},
	}
	cfg := config(t)
	cfg.Predictor = "FailSecond"
	_, err = New(registry(t), cfg).Run(ctx, desc)
	require.ErrorIs(t, err, errFit)

	// The lock was released, so the store opens again.
	s, err = store.Open(ctx, path, store.WithFeatureDType(tensor.Float64), store.WithLabelDType(tensor.Int64))
	require.NoError(t, err)
	require.NoError(t, s.Close(ctx))

	cfg.Predictor = builtin.NearestCentroid
	cfg.Recommender = wholePool
	res, err := New(registry(t), cfg).Run(ctx, desc)
	require.NoError(t, err)
	assert.True(t, res.Exhausted)
}

func TestRunNeedsInstances(t *testing.T) {
	cfg := config(t)
	_, err := New(registry(t), cfg).Run(context.Background(), writePoints(t, 1))
	require.ErrorIs(t, err, acton.ErrConfiguration)
}

func TestSplit(t *testing.T) {
	ids := []uint64{9, 8, 7, 6, 5, 4, 3, 2, 1, 0}
	train, test := split(ids, 0.25, learn.NewRand(1))
	assert.Len(t, test, 3)
	assert.Len(t, train, 7)
	assert.IsIncreasing(t, test)
	assert.IsIncreasing(t, train)
	assert.ElementsMatch(t, ids, append(append([]uint64(nil), train...), test...))
	assert.Equal(t, []uint64{9, 8, 7, 6, 5, 4, 3, 2, 1, 0}, ids)

	picked := draw(learn.NewRand(1), train, 4)
	assert.Len(t, picked, 4)
	assert.Subset(t, train, picked)
}
