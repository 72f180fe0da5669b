package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/hupe1980/acton/snapshot"
)

func newInspectCmd() *cobra.Command {
	var summary bool
	cmd := &cobra.Command{
		Use:   "inspect <snapshot>",
		Short: "Print the records of a snapshot stream or prediction artefact",
		Long: `Print the header metadata and every record of a snapshot stream as JSON
lines. With --summary a table of epochs is printed instead. A torn final
record is reported after the intact ones are printed.`,
		Example: `  acton inspect iris.acts
  acton inspect --summary iris.acts`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			r, err := snapshot.Open(args[0])
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, r.Close()) }()

			out := cmd.OutOrStdout()
			if summary {
				return printSummary(out, r)
			}

			enc := json.NewEncoder(out)
			if err := enc.Encode(r.Metadata()); err != nil {
				return err
			}
			for {
				rec, err := r.Next()
				if errors.Is(err, io.EOF) {
					return nil
				}
				if err != nil {
					return err
				}
				if err := enc.Encode(rec); err != nil {
					return err
				}
			}
		},
	}
	cmd.Flags().BoolVar(&summary, "summary", false, "Print one line per record instead of JSON")
	return cmd
}

func printSummary(out io.Writer, r *snapshot.Reader) error {
	meta := r.Metadata()
	fmt.Fprintf(out, "predictor: %s\n", meta.Predictor)
	if meta.Recommender != "" {
		fmt.Fprintf(out, "recommender: %s\n", meta.Recommender)
	}
	fmt.Fprintf(out, "codec: %s\ncompression: %s\ncreated: %s\n\n",
		meta.Codec, meta.Compression, meta.CreatedAt.Format(time.RFC3339))

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EPOCH\tDATABASE\tTEST IDS\tTASKS\tCLASSES")
	var readErr error
	for {
		rec, err := r.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				readErr = err
			}
			break
		}
		tasks, classes := 0, 0
		if len(rec.Predictions) > 0 {
			tasks = len(rec.Predictions[0])
			if tasks > 0 {
				classes = len(rec.Predictions[0][0])
			}
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\n", rec.Epoch, rec.Descriptor(), len(rec.TestIDs), tasks, classes)
	}
	return errors.Join(tw.Flush(), readErr)
}
