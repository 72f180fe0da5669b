// Package acton simulates active-learning experiments against a pluggable
// tabular data store.
//
// An experiment repeatedly asks a recommender which unlabelled instances to
// label next, reveals their ground truth through an oracle, retrains a
// predictor and records its predictions on a fixed test set.
//
// # Storage
//
// The managed store (package store) is a growable binary store for feature
// matrices and label tensors with a persisted schema:
//
//	ctx := context.Background()
//	s, _ := store.Open(ctx, "./data.acton")
//	defer s.Close(ctx)
//
//	_ = s.WriteFeatures(ctx, []uint64{0, 1}, features) // 2 x D
//	rows, _ := s.ReadFeatures(ctx, []uint64{1, 0})
//
// Read-only tabular sources (package tabular) expose CSV/TSV files, Apache
// Arrow IPC files and SQLite tables through the same capability
// (database.Database). Row position is the instance id.
//
// # Simulation
//
//	reg := builtin.NewRegistry()
//	sim := active.New(reg, active.Config{
//	    Epochs:              10,
//	    InitialCount:        10,
//	    RecommendationCount: 1,
//	    TestSize:            0.2,
//	    Predictor:           "NearestCentroid",
//	    Recommender:         "RandomRecommender",
//	    OutputPath:          "predictions.snap",
//	})
//	res, err := sim.Run(ctx, database.Descriptor{Kind: database.KindDelimited, Path: "data.csv",
//	    Options: map[string]string{"label_col": "label"}})
//
// Every epoch appends one framed record to the snapshot file (package
// snapshot). Records already appended survive a crash of a later epoch.
//
// # Errors
//
// All failures are classified by the sentinels in this package
// (ErrConfiguration, ErrSchemaMismatch, ErrCorruptStore, ErrDimensionMismatch,
// ErrMissingSchema, ErrReadOnly, ErrUnsupported, ErrClosed) and can be
// matched with errors.Is.
package acton
