package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPredictCmd() *cobra.Command {
	var (
		data   dataFlags
		sim    simFlags
		output string
	)
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Fit a predictor once and write predictions for every instance",
		Long: `Fit the predictor on a random fifth of the instances, labelled through
the dataset's oracle, and write a single-record artefact holding the
predictions for every instance. The artefact feeds 'acton recommend'.`,
		Example: `  acton predict -d iris.csv -l species -o iris.pred`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			sim.apply(cmd, cfg)
			desc, err := data.descriptor()
			if err != nil {
				return err
			}
			s, err := newSimulation(cfg, logger, output)
			if err != nil {
				return err
			}
			rec, err := s.Predict(cmd.Context(), desc)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote predictions for %d instances to %s\n", len(rec.TestIDs), output)
			return nil
		},
	}
	data.register(cmd)
	sim.registerPredictor(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "Prediction artefact to write (required)")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}
