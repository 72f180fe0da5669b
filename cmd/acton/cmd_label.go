package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newLabelCmd() *cobra.Command {
	var (
		data            dataFlags
		recommendations string
		output          string
	)
	cmd := &cobra.Command{
		Use:   "label",
		Short: "Query the dataset's oracle for instance labels",
		Long: `Read instance ids, one per line, from --recommendations or stdin and
print "<id>\t<label>" for each, using the first labeller of the dataset.
A tabular file holding only the label column is enough.`,
		Example: `  acton label -d iris.csv -l species -r picks.txt
  echo 3 | acton label -d iris.csv -l species`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			desc, err := data.descriptor()
			if err != nil {
				return err
			}

			in, err := openInput(cmd, recommendations)
			if err != nil {
				return err
			}
			ids, err := readIDs(in)
			_ = in.Close()
			if err != nil {
				return err
			}

			s, err := newSimulation(cfg, logger, "")
			if err != nil {
				return err
			}
			labels, err := s.Label(cmd.Context(), desc, ids)
			if err != nil {
				return err
			}

			w, closeOut, err := openOutput(cmd, output)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, closeOut()) }()
			for i, id := range ids {
				if _, err := fmt.Fprintf(w, "%d\t%s\n", id, labels[i]); err != nil {
					return err
				}
			}
			return nil
		},
	}
	data.register(cmd)
	cmd.Flags().StringVarP(&recommendations, "recommendations", "r", "", "File of instance ids (default stdin)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "File to write the labels to (default stdout)")
	return cmd
}
