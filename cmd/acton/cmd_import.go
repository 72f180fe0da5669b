package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/acton"
	"github.com/hupe1980/acton/database"
	"github.com/hupe1980/acton/tensor"
)

func newImportCmd() *cobra.Command {
	var (
		data      dataFlags
		output    string
		batchSize int
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Copy a tabular dataset into a managed store",
		Long: `Copy the features and labels of a delimited, columnar or frame dataset
into a managed store at --output, which must end in .acton. Instance and
labeller ids are kept. An existing store is extended; its schema must
match the source.`,
		Example: `  acton import -d iris.csv -l species -o iris.acton
  acton import -d points.sqlite --table points -l class -o s3://bucket/points.acton`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if batchSize < 1 {
				return acton.Configurationf("batch size must be at least 1, got %d", batchSize)
			}
			if k := database.Detect(output); k.ReadOnly() {
				return acton.Configurationf("import destination %q would be read back as %s data; use a .acton path", output, k)
			}
			src, err := data.descriptor()
			if err != nil {
				return err
			}
			dbOpts, err := databaseOptions(cfg)
			if err != nil {
				return err
			}
			dbOpts = append(dbOpts, database.WithLogger(logger))

			var n int
			err = database.Use(cmd.Context(), src, func(db database.Database) error {
				n, err = importInto(cmd.Context(), db, output, batchSize, dbOpts)
				return err
			}, dbOpts...)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d instances into %s\n", n, output)
			return nil
		},
	}
	data.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "Managed store to write (required)")
	cmd.Flags().IntVar(&batchSize, "batch-size", 4096, "Instances copied per batch")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

// importInto copies src into the managed store at path in batches and
// returns the number of instances copied. The store's dtypes follow the
// first batch read from src. Sources without a label column or without
// feature columns copy only what they have.
func importInto(ctx context.Context, src database.Database, path string, batchSize int, opts []database.Option) (n int, err error) {
	ids, err := src.KnownInstanceIDs(ctx)
	if err != nil {
		return 0, err
	}
	labellers, err := src.KnownLabellerIDs(ctx)
	if err != nil {
		return 0, err
	}

	var dst database.Database
	defer func() {
		if dst != nil {
			err = errors.Join(err, dst.Close(ctx))
		}
	}()

	for lo := 0; lo < len(ids); lo += batchSize {
		batch := ids[lo:min(len(ids), lo+batchSize)]
		features, err := src.ReadFeatures(ctx, batch)
		if err != nil {
			return n, err
		}
		// One labeller per read; managed sources may hold several.
		labels := make([]*tensor.Array, len(labellers))
		for i, lid := range labellers {
			if labels[i], err = src.ReadLabels(ctx, []uint64{lid}, batch); err != nil {
				return n, err
			}
		}

		if dst == nil {
			dopts := map[string]string{database.OptFeatureDType: features.DType().String()}
			if len(labels) > 0 {
				dopts[database.OptLabelDType] = labels[0].DType().String()
			}
			dst, err = database.Open(ctx, database.Descriptor{Kind: database.KindManaged, Path: path, Options: dopts}, opts...)
			if err != nil {
				return n, err
			}
		}
		if features.Dim(1) > 0 {
			if err := dst.WriteFeatures(ctx, batch, features); err != nil {
				return n, err
			}
		}
		for i, lid := range labellers {
			if err := dst.WriteLabels(ctx, []uint64{lid}, batch, labels[i]); err != nil {
				return n, err
			}
		}
		n += len(batch)
	}
	return n, nil
}
