package active

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/acton"
	"github.com/hupe1980/acton/codec"
	"github.com/hupe1980/acton/database"
	"github.com/hupe1980/acton/learn"
	"github.com/hupe1980/acton/oracle"
	"github.com/hupe1980/acton/resource"
	"github.com/hupe1980/acton/snapshot"
)

// Result summarises a finished run.
type Result struct {
	// EpochsRun is the number of epochs whose record was appended.
	EpochsRun int

	// Labelled is the number of distinct labelled instances.
	Labelled int

	// Exhausted reports that the run stopped because the pool was empty.
	Exhausted bool
}

// Simulation drives active-learning runs.
type Simulation struct {
	registry *learn.Registry
	cfg      Config
	logger   *acton.Logger
	rc       *resource.Controller
	metrics  acton.MetricsCollector
	dbOpts   []database.Option
}

// Option configures a Simulation.
type Option func(*Simulation)

// WithLogger sets the logger.
func WithLogger(l *acton.Logger) Option {
	return func(s *Simulation) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithController bounds predictor workers, scoring memory and the oracle
// labelling rate.
func WithController(rc *resource.Controller) Option {
	return func(s *Simulation) { s.rc = rc }
}

// WithMetrics sets the collector that receives step timings.
func WithMetrics(m acton.MetricsCollector) Option {
	return func(s *Simulation) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithDatabaseOptions appends options used when opening databases.
func WithDatabaseOptions(opts ...database.Option) Option {
	return func(s *Simulation) { s.dbOpts = append(s.dbOpts, opts...) }
}

// New creates a Simulation resolving components through registry.
func New(registry *learn.Registry, cfg Config, opts ...Option) *Simulation {
	s := &Simulation{
		registry: registry,
		cfg:      cfg,
		logger:   acton.NoopLogger(),
		metrics:  acton.NoopMetricsCollector{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent("simulation")
	return s
}

// Config returns the settings.
func (s *Simulation) Config() Config { return s.cfg }

// Run simulates active learning on the database described by desc. The
// database is open for the duration of the run and closed on every exit
// path. On error the returned Result covers the epochs that completed.
func (s *Simulation) Run(ctx context.Context, desc database.Descriptor) (*Result, error) {
	if err := s.cfg.Validate(); err != nil {
		return nil, err
	}
	if err := s.registry.ValidatePredictor(s.cfg.Predictor); err != nil {
		return nil, err
	}
	if err := s.registry.ValidateRecommender(s.cfg.Recommender); err != nil {
		return nil, err
	}

	res := &Result{}
	err := database.Use(ctx, desc, func(db database.Database) error {
		return s.run(ctx, db, res)
	}, s.databaseOptions()...)
	if err != nil {
		return res, fmt.Errorf("simulate %s: %w", desc, err)
	}
	return res, nil
}

func (s *Simulation) run(ctx context.Context, db database.Database, res *Result) (err error) {
	ids, err := db.KnownInstanceIDs(ctx)
	if err != nil {
		return err
	}
	if len(ids) < 2 {
		return acton.Configurationf("need at least 2 instances, database has %d", len(ids))
	}

	rng := learn.NewRand(s.cfg.Seed)
	train, test := split(ids, s.cfg.TestSize, rng)
	if len(train) == 0 {
		return acton.Configurationf("test size %v leaves no training instances", s.cfg.TestSize)
	}

	lopts := s.learnOptions()
	predictor, err := s.registry.NewPredictor(s.cfg.Predictor, db, lopts)
	if err != nil {
		return err
	}
	recommender, err := s.registry.NewRecommender(s.cfg.Recommender, db, lopts)
	if err != nil {
		return err
	}
	orc := oracle.New(db, oracle.WithController(s.rc), oracle.WithLogger(s.logger))

	initial := s.cfg.InitialCount
	if initial > len(train) {
		s.logger.WarnContext(ctx, "initial count exceeds training instances", "initial_count", initial, "train", len(train))
		initial = len(train)
	}
	batch := draw(rng, train, initial)

	w, err := snapshot.Create(s.cfg.OutputPath, snapshot.Metadata{
		Recommender: s.cfg.Recommender,
		Predictor:   s.cfg.Predictor,
	}, s.snapshotOptions()...)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := w.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()

	s.logger.InfoContext(ctx, "simulation started",
		"instances", len(ids),
		"train", len(train),
		"test", len(test),
		"predictor", s.cfg.Predictor,
		"recommender", s.cfg.Recommender,
		"output", s.cfg.OutputPath,
	)

	all := roaring64.BitmapOf(ids...)
	st := &state{labelled: roaring64.New(), classes: make(map[uint64]int)}
	for epoch := 0; epoch < s.cfg.Epochs; epoch++ {
		log := s.logger.WithEpoch(epoch)

		start := time.Now()
		next, done, err := s.epoch(ctx, epoch, db, st, all, batch, test, orc, predictor, recommender, w)
		s.metrics.RecordEpoch(epoch, time.Since(start), err)
		if err != nil {
			log.LogEpoch(ctx, epoch, res.Labelled, 0, err)
			return fmt.Errorf("epoch %d: %w", epoch, err)
		}
		res.EpochsRun++
		res.Labelled = int(st.labelled.GetCardinality())
		log.LogEpoch(ctx, epoch, res.Labelled, len(next), nil)

		if done {
			res.Exhausted = true
			log.InfoContext(ctx, "labelled all instances")
			return nil
		}
		batch = next
	}
	return nil
}

// state is the labelling progress carried across epochs.
type state struct {
	labelled *roaring64.Bitmap
	classes  map[uint64]int
	encoder  *LabelEncoder
}

func (st *state) trainingSet() learn.TrainingSet {
	ids := st.labelled.ToArray()
	classes := make([]int, len(ids))
	for i, id := range ids {
		classes[i] = st.classes[id]
	}
	return learn.TrainingSet{IDs: ids, Classes: classes, NumClasses: st.encoder.Len()}
}

// epoch runs one label, fit, evaluate, recommend cycle. It returns the next
// batch, or done when the pool is empty.
func (s *Simulation) epoch(
	ctx context.Context,
	epoch int,
	db database.Database,
	st *state,
	all *roaring64.Bitmap,
	batch, test []uint64,
	orc *oracle.Oracle,
	predictor learn.Predictor,
	recommender learn.Recommender,
	w *snapshot.Writer,
) (next []uint64, done bool, err error) {
	start := time.Now()
	raw, err := orc.QueryAll(ctx, batch)
	s.metrics.RecordLabels(len(batch), time.Since(start), err)
	if err != nil {
		return nil, false, err
	}
	if st.encoder == nil {
		st.encoder = FitEncoder(raw)
	}
	for i, c := range st.encoder.Encode(raw) {
		st.classes[batch[i]] = c
		st.labelled.Add(batch[i])
	}

	ts := st.trainingSet()
	start = time.Now()
	err = predictor.Fit(ctx, ts)
	s.metrics.RecordFit(len(ts.IDs), time.Since(start), err)
	if err != nil {
		return nil, false, fmt.Errorf("fit: %w", err)
	}

	preds, err := predictor.ReferencePredict(ctx, test)
	if err != nil {
		return nil, false, fmt.Errorf("reference predict: %w", err)
	}
	if err := preds.Validate(len(test)); err != nil {
		return nil, false, fmt.Errorf("reference predict: %w", err)
	}
	rec := snapshot.NewRecord(epoch, s.cfg.Predictor, db.Descriptor(), test, preds.ByInstance())
	start = time.Now()
	err = w.Append(rec)
	s.metrics.RecordSnapshot(time.Since(start), err)
	if err != nil {
		s.logger.LogSnapshot(ctx, w.Path(), w.Records(), err)
		return nil, false, err
	}
	s.logger.LogSnapshot(ctx, w.Path(), w.Records(), nil)

	pool := roaring64.AndNot(all, st.labelled).ToArray()
	if len(pool) == 0 {
		return nil, true, nil
	}

	start = time.Now()
	preds, err = predictor.Predict(ctx, pool)
	if err != nil {
		s.metrics.RecordRecommend(len(pool), time.Since(start), err)
		return nil, false, fmt.Errorf("predict: %w", err)
	}
	next, err = recommender.Recommend(ctx, pool, preds, s.cfg.RecommendationCount)
	s.metrics.RecordRecommend(len(pool), time.Since(start), err)
	if err != nil {
		return nil, false, fmt.Errorf("recommend: %w", err)
	}
	s.logger.DebugContext(ctx, "recommended", "epoch", epoch, "ids", next)
	return next, false, nil
}

func (s *Simulation) learnOptions() learn.Options {
	return learn.Options{
		Logger:     s.logger,
		Controller: s.rc,
		Seed:       s.cfg.Seed,
		Params:     s.cfg.Params,
	}
}

func (s *Simulation) databaseOptions() []database.Option {
	return append([]database.Option{database.WithLogger(s.logger)}, s.dbOpts...)
}

func (s *Simulation) snapshotOptions() []snapshot.Option {
	opts := []snapshot.Option{
		snapshot.WithCompression(s.cfg.Compression),
		snapshot.WithLogger(s.logger),
	}
	if c, ok := codec.ByName(s.cfg.Codec); ok {
		opts = append(opts, snapshot.WithCodec(c))
	}
	return opts
}

// split shuffles ids and holds out ceil(testSize*n) of them. Both halves
// are returned sorted ascending.
func split(ids []uint64, testSize float64, rng *rand.Rand) (train, test []uint64) {
	return holdOut(ids, int(math.Ceil(testSize*float64(len(ids)))), rng)
}

// holdOut shuffles ids and returns nTest of them as the test half.
func holdOut(ids []uint64, nTest int, rng *rand.Rand) (train, test []uint64) {
	perm := slices.Clone(ids)
	rng.Shuffle(len(perm), func(i, j int) { perm[i], perm[j] = perm[j], perm[i] })

	nTest = max(0, min(len(perm), nTest))
	test = perm[:nTest:nTest]
	train = perm[nTest:]
	slices.Sort(test)
	slices.Sort(train)
	return train, test
}

// draw picks n distinct elements of ids without replacement.
func draw(rng *rand.Rand, ids []uint64, n int) []uint64 {
	perm := slices.Clone(ids)
	for i := 0; i < n; i++ {
		j := i + rng.IntN(len(perm)-i)
		perm[i], perm[j] = perm[j], perm[i]
	}
	return perm[:n:n]
}
