package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hupe1980/acton"
	"github.com/hupe1980/acton/active"
)

func newRunCmd() *cobra.Command {
	var (
		data   dataFlags
		sim    simFlags
		output string
		stats  bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Simulate active learning on a dataset",
		Long: `Simulate active learning on a labelled dataset.

A share of the instances (--test-size) is held out for evaluation. The
first batch of --initial-count instances is drawn at random; every later
batch of --recommendation-count instances is chosen by the recommender.
After each epoch the predictions for the test set are appended to the
snapshot stream at --output. The run stops after --epochs epochs or once
every instance is labelled.`,
		Example: `  acton run -d iris.csv -l species -o iris.acts
  acton run -d points.arrow --predictor KNearestNeighbours --param k=3 --recommender Entropy -o out.acts`,
		Args: cobra.NoArgs,
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
			metrics := &acton.BasicMetricsCollector{}
			s, err := newSimulation(cfg, logger, output, active.WithMetrics(metrics))
			if err != nil {
				return err
			}

			res, err := s.Run(cmd.Context(), desc)
			out := cmd.OutOrStdout()
			if res != nil && res.EpochsRun > 0 {
				fmt.Fprintf(out, "epochs: %d\nlabelled: %d\nexhausted: %t\noutput: %s\n",
					res.EpochsRun, res.Labelled, res.Exhausted, output)
			}
			if stats {
				st := metrics.GetStats()
				fmt.Fprintf(out, "labels queried: %d (%d batches, avg %s)\n", st.LabelsQueried, st.LabelBatches, time.Duration(st.LabelAvgNanos))
				fmt.Fprintf(out, "fits: %d (avg %s)\n", st.FitCount, time.Duration(st.FitAvgNanos))
				fmt.Fprintf(out, "recommendations: %d (avg %s)\n", st.RecommendCount, time.Duration(st.RecommendAvgNanos))
				fmt.Fprintf(out, "epoch avg: %s\n", time.Duration(st.EpochAvgNanos))
			}
			return err
		},
	}
	data.register(cmd)
	sim.registerRun(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "Snapshot stream to write (required)")
	cmd.Flags().BoolVar(&stats, "stats", false, "Print step timings after the run")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}
