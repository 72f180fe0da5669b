package main

import (
	"errors"
	"strconv"

	"github.com/spf13/cobra"
)

func newRecommendCmd() *cobra.Command {
	var (
		sim         simFlags
		predictions string
		count       int
		output      string
	)
	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Recommend instances to label from a prediction artefact",
		Long: `Read an artefact written by 'acton predict', reopen the dataset it
names and print up to --count instance ids chosen by the recommender, one
per line.`,
		Example: `  acton recommend -p iris.pred -n 5 --recommender Uncertainty
  acton recommend -p iris.pred | acton label -d iris.csv -l species`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			sim.apply(cmd, cfg)
			if !cmd.Flags().Changed("count") {
				count = cfg.Simulation.RecommendationCount
			}
			s, err := newSimulation(cfg, logger, "")
			if err != nil {
				return err
			}
			ids, err := s.Recommend(cmd.Context(), predictions, count)
			if err != nil {
				return err
			}

			w, closeOut, err := openOutput(cmd, output)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, closeOut()) }()
			for _, id := range ids {
				if _, err := w.WriteString(strconv.FormatUint(id, 10) + "\n"); err != nil {
					return err
				}
			}
			return nil
		},
	}
	sim.registerRecommender(cmd)
	cmd.Flags().Int64Var(&sim.seed, "seed", 0, "Random seed")
	cmd.Flags().StringToStringVar(&sim.params, "param", nil, "Component parameter key=value (repeatable)")
	cmd.Flags().StringVarP(&predictions, "predictions", "p", "", "Prediction artefact written by 'acton predict' (required)")
	cmd.Flags().IntVarP(&count, "count", "n", 1, "Number of instances to recommend")
	cmd.Flags().StringVarP(&output, "output", "o", "", "File to write the ids to (default stdout)")
	_ = cmd.MarkFlagRequired("predictions")
	return cmd
}
