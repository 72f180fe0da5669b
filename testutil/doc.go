// Package testutil provides testing utilities for acton.
//
// This package is intended for use in tests only. It generates labelled
// datasets and writes them in every tabular format the adapters read.
//
// # Datasets
//
//	rng := testutil.NewRNG(seed)
//	ds := rng.Clusters(100, 2, 3, 0.5) // 100 rows, 2 features, 3 classes
//	ds := testutil.Parity(10)          // labels "even" and "odd" by row
//
// # Writing
//
//	path := ds.WriteCSV(t, dir)
//	path := ds.WriteArrow(t, dir)
//	path := ds.WriteSQLite(t, dir, "points")
package testutil
