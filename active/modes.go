package active

import (
	"context"
	"fmt"
	"math"

	"github.com/hupe1980/acton"
	"github.com/hupe1980/acton/database"
	"github.com/hupe1980/acton/learn"
	"github.com/hupe1980/acton/oracle"
	"github.com/hupe1980/acton/snapshot"
	"github.com/hupe1980/acton/tensor"
)

// Predict fits the configured predictor on a random share of the instances
// (1 - PredictTestSize) and writes a single-record artefact to OutputPath
// holding reference predictions for every known instance.
func (s *Simulation) Predict(ctx context.Context, desc database.Descriptor) (*snapshot.Record, error) {
	if err := s.cfg.validateOutput(); err != nil {
		return nil, err
	}
	if err := s.registry.ValidatePredictor(s.cfg.Predictor); err != nil {
		return nil, err
	}

	var rec snapshot.Record
	err := database.Use(ctx, desc, func(db database.Database) error {
		ids, err := db.KnownInstanceIDs(ctx)
		if err != nil {
			return err
		}
		if len(ids) < 2 {
			return acton.Configurationf("need at least 2 instances, database has %d", len(ids))
		}

		// Hold out at most n-1 instances so that training is never empty.
		nTest := min(len(ids)-1, int(math.Ceil(PredictTestSize*float64(len(ids)))))
		train, _ := holdOut(ids, nTest, learn.NewRand(s.cfg.Seed))

		predictor, err := s.registry.NewPredictor(s.cfg.Predictor, db, s.learnOptions())
		if err != nil {
			return err
		}
		raw, err := oracle.New(db, oracle.WithController(s.rc), oracle.WithLogger(s.logger)).QueryAll(ctx, train)
		if err != nil {
			return err
		}
		enc := FitEncoder(raw)
		ts := learn.TrainingSet{IDs: train, Classes: enc.Encode(raw), NumClasses: enc.Len()}
		if err := predictor.Fit(ctx, ts); err != nil {
			return fmt.Errorf("fit: %w", err)
		}

		preds, err := predictor.ReferencePredict(ctx, ids)
		if err != nil {
			return fmt.Errorf("reference predict: %w", err)
		}
		if err := preds.Validate(len(ids)); err != nil {
			return fmt.Errorf("reference predict: %w", err)
		}

		rec = snapshot.NewRecord(0, s.cfg.Predictor, db.Descriptor(), ids, preds.ByInstance())
		meta := snapshot.Metadata{Predictor: s.cfg.Predictor}
		if err := snapshot.WriteSingle(s.cfg.OutputPath, meta, rec, s.snapshotOptions()...); err != nil {
			return err
		}
		s.logger.InfoContext(ctx, "predictions written",
			"output", s.cfg.OutputPath,
			"instances", len(ids),
			"train", len(train),
			"classes", enc.Len(),
		)
		return nil
	}, s.databaseOptions()...)
	if err != nil {
		return nil, fmt.Errorf("predict %s: %w", desc, err)
	}
	return &rec, nil
}

// Recommend reads a single-record artefact written by Predict, reopens the
// database it names and returns up to n ids chosen by the configured
// recommender among the artefact's instances.
func (s *Simulation) Recommend(ctx context.Context, predictionsPath string, n int) ([]uint64, error) {
	if err := s.registry.ValidateRecommender(s.cfg.Recommender); err != nil {
		return nil, err
	}
	if n < 1 {
		return nil, acton.Configurationf("recommendation count must be at least 1, got %d", n)
	}

	_, rec, err := snapshot.ReadSingle(predictionsPath, s.snapshotOptions()...)
	if err != nil {
		return nil, err
	}
	if len(rec.Predictions) != len(rec.TestIDs) {
		return nil, &acton.DimensionMismatchError{Axis: "recorded predictions", Expected: len(rec.TestIDs), Actual: len(rec.Predictions)}
	}

	var out []uint64
	desc := rec.Descriptor()
	err = database.Use(ctx, desc, func(db database.Database) error {
		recommender, err := s.registry.NewRecommender(s.cfg.Recommender, db, s.learnOptions())
		if err != nil {
			return err
		}
		out, err = recommender.Recommend(ctx, rec.TestIDs, learn.FromInstances(rec.Predictions), n)
		return err
	}, s.databaseOptions()...)
	if err != nil {
		return nil, fmt.Errorf("recommend from %s: %w", predictionsPath, err)
	}
	s.logger.InfoContext(ctx, "recommended", "predictions", predictionsPath, "ids", out)
	return out, nil
}

// Label queries the oracle of the database described by desc for ids.
func (s *Simulation) Label(ctx context.Context, desc database.Descriptor, ids []uint64) ([]tensor.Value, error) {
	var labels []tensor.Value
	err := database.Use(ctx, desc, func(db database.Database) error {
		var err error
		labels, err = oracle.New(db, oracle.WithController(s.rc), oracle.WithLogger(s.logger)).QueryAll(ctx, ids)
		return err
	}, s.databaseOptions()...)
	if err != nil {
		return nil, fmt.Errorf("label %s: %w", desc, err)
	}
	return labels, nil
}
