// Package database defines the storage capability used by the oracle, the
// learning components and the orchestrator, and opens its variants.
//
// A Descriptor names a variant (Kind), a path and variant options. Open
// switches over the closed set of kinds:
//
//   - KindManaged: the read-write managed store (package store)
//   - KindDelimited, KindColumnar, KindFrame: read-only tabular sources
//     (package tabular)
//
// Use is the scoped form of Open: the database is closed however fn returns.
//
//	err := database.Use(ctx, database.Descriptor{
//	    Kind:    database.KindDelimited,
//	    Path:    "iris.csv",
//	    Options: map[string]string{database.OptLabelCol: "species"},
//	}, func(db database.Database) error {
//	    ids, err := db.KnownInstanceIDs(ctx)
//	    ...
//	})
package database
