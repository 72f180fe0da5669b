// Package active runs active-learning simulations against a database.
//
// A Simulation splits the known instances into a fixed test set and a
// training pool, then runs epochs of label, fit, evaluate and recommend
// until the configured epoch count is reached or every instance is
// labelled. Each epoch appends one prediction record to a snapshot stream
// before the next epoch starts.
//
// Predictors and recommenders are resolved by name through the
// learn.Registry given to New. Unknown names are rejected before any
// database or output file is touched.
//
// Besides Run, a Simulation offers the single-shot modes Predict,
// Recommend and Label.
package active
