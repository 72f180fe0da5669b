// Package store implements the managed store: a growable binary store for a
// feature matrix [N, D] and a label tensor [T, N, F] with a persisted schema
// and append-only id registries.
//
// Instance and labeller ids address rows directly: id i lives in row i of the
// feature matrix and column i of the label tensor. Arrays grow to the
// smallest size covering every id ever written; rows that were never written
// read back as zero.
//
// The whole store is held in memory and persisted as one blob through a
// blobstore.Store on Flush and Close. Local stores are protected by an
// advisory file lock for the lifetime of the handle.
//
//	s, err := store.Open(ctx, "iris.acton", store.WithLabelDType(tensor.Bytes(16)))
//	if err != nil {
//	    return err
//	}
//	defer s.Close(ctx)
package store
