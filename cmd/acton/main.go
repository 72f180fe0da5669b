package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var version = "0.1.0-dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "acton",
		Short: "Active learning simulation over labelled datasets",
		Long: `acton simulates active learning on a labelled dataset.

Each epoch it labels a batch of instances through the dataset's oracle,
fits a predictor, records predictions for a held-out test set and asks a
recommender for the next batch. Predictions are appended to a snapshot
stream that can be inspected afterwards.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "Config file (default $ACTON_CONFIG or ~/.acton/config.yaml)")
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase log verbosity (-v debug, -vv trace)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newPredictCmd(),
		newRecommendCmd(),
		newLabelCmd(),
		newImportCmd(),
		newInspectCmd(),
	)
	return rootCmd
}
