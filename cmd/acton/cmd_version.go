package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/hupe1980/acton/learn/builtin"
)

func newVersionCmd() *cobra.Command {
	var components bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "acton version %s\n", version)
			if !components {
				return
			}
			reg := builtin.NewRegistry()
			fmt.Fprintf(cmd.OutOrStdout(), "go: %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
			fmt.Fprintf(cmd.OutOrStdout(), "predictors: %v\n", reg.PredictorNames())
			fmt.Fprintf(cmd.OutOrStdout(), "recommenders: %v\n", reg.RecommenderNames())
		},
	}
	cmd.Flags().BoolVar(&components, "components", false, "Also list the registered predictors and recommenders")
	return cmd
}
