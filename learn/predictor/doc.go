// Package predictor provides the reference predictors: NearestCentroid and
// KNearestNeighbours.
//
// Both read feature rows from the bound database, predict a single task and
// spread scoring across the worker slots of a resource.Controller.
package predictor
