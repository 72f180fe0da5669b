// Package distance provides the distance functions used by the reference
// predictors to compare feature rows.
//
// # Supported Metrics
//
//   - MetricL2: Squared Euclidean distance (default)
//   - MetricCosine: 1 - cosine similarity
//   - MetricManhattan: L1 distance
//
// # Usage
//
//	dist := distance.SquaredL2(a, b)
//	fn, err := distance.Provider(distance.MetricCosine)
package distance
