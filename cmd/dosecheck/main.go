// Package main implements dosecheck, a batch front end to the dose review
// pipeline that works on files without running the server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/okian/dosewatch/internal/adapters/dataset"
	service "github.com/okian/dosewatch/internal/app"
	"github.com/okian/dosewatch/internal/domain/filter"
	"github.com/okian/dosewatch/internal/domain/types"
	"github.com/okian/dosewatch/pkg/logger"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// cliOptions holds flag values shared by the subcommands.
type cliOptions struct {
	input   string
	output  string
	exam    string
	from    string
	to      string
	age     string
	asJSON  bool
	verbose bool
}

func newRootCmd() *cobra.Command {
	o := &cliOptions{}
	root := &cobra.Command{
		Use:   "dosecheck",
		Short: "Review CT dose records from the command line",
		Long: `dosecheck loads a CT dose dataset (.csv, .xlsx or an http(s) URL), applies
the same filters as the review service and reports on the result.

Examples:
  # Write the rows needing review for one exam
  dosecheck flag --input CT_doses.csv --output review.csv --exam "CT Head"

  # Show the filter choices offered by a dataset
  dosecheck options --input CT_doses.csv

  # Per-exam dosage statistics as JSON
  dosecheck stats --input CT_doses.csv --json`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level := "warn"
			if o.verbose {
				level = "debug"
			}
			if err := logger.Init(logger.WithWriter(cmd.ErrOrStderr())); err != nil {
				return err
			}
			return logger.SetLevelString(level)
		},
	}
	root.PersistentFlags().StringVarP(&o.input, "input", "i", "CT_doses.csv", "dataset file or URL")
	root.PersistentFlags().BoolVar(&o.asJSON, "json", false, "print JSON instead of a table")
	root.PersistentFlags().BoolVarP(&o.verbose, "verbose", "v", false, "log progress to stderr")

	root.AddCommand(newFlagCmd(o), newOptionsCmd(o), newStatsCmd(o))
	return root
}

func addFilterFlags(cmd *cobra.Command, o *cliOptions) {
	cmd.Flags().StringVar(&o.exam, "exam", filter.All, "exam name, or All")
	cmd.Flags().StringVar(&o.from, "from", "", "first booked date, YYYY-MM-DD (default: earliest in dataset)")
	cmd.Flags().StringVar(&o.to, "to", "", "last booked date, YYYY-MM-DD (default: latest in dataset)")
	cmd.Flags().StringVar(&o.age, "age", filter.All, "age group, or All")
}

func (o *cliOptions) criteria() (filter.Criteria, error) {
	from, err := types.ParseDate(o.from)
	if err != nil {
		return filter.Criteria{}, fmt.Errorf("--from: %w", err)
	}
	to, err := types.ParseDate(o.to)
	if err != nil {
		return filter.Criteria{}, fmt.Errorf("--to: %w", err)
	}
	return filter.Criteria{Exam: o.exam, From: from, To: to, Age: o.age}, nil
}

// start loads the input through the review service.
func (o *cliOptions) start(ctx context.Context) (*service.Service, error) {
	svc := service.New(
		service.WithLogger(logger.Named("dosecheck")),
		service.WithDatasetPath(o.input),
		service.WithOutputPath(o.output),
		service.WithMaxSessions(1),
	)
	if err := svc.Start(ctx); err != nil {
		return nil, fmt.Errorf("load %s: %w", o.input, err)
	}
	return svc, nil
}

func newFlagCmd(o *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flag",
		Short: "Write the rows needing review to an output file",
		Long: `Select records whose dosage is missing, zero, or more than two standard
deviations from the mean of their exam type. Annotate them with that mean and
write them to --output. Without --from/--to the dataset's own date range
applies, so undated records are left out. The input is never modified.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := o.criteria()
			if err != nil {
				return err
			}
			if _, err := dataset.FormatOf(o.output); err != nil {
				return err
			}
			svc, err := o.start(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Stop()

			sess, err := svc.CreateSession(cmd.Context(), svc.BoundedCriteria(cmd.Context(), c))
			if err != nil {
				return err
			}
			res, err := svc.Commit(cmd.Context(), sess.ID)
			if errors.Is(err, service.ErrEmptyWorklist) {
				fmt.Fprintln(cmd.OutOrStdout(), types.NoDataMessage)
				return nil
			}
			if err != nil {
				return err
			}
			if o.asJSON {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d rows written to %s\n", res.Rows, res.Path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&o.output, "output", "o", service.DefaultOutputPath, "output file (.csv or .xlsx)")
	addFilterFlags(cmd, o)
	return cmd
}

func newOptionsCmd(o *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "options",
		Short: "Print the filter choices offered by the dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := o.start(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Stop()

			opts := svc.Options(cmd.Context())
			if o.asJSON {
				return writeJSON(cmd.OutOrStdout(), opts)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Exams:      %s\n", strings.Join(opts.Exams, ", "))
			fmt.Fprintf(w, "Age groups: %s\n", strings.Join(opts.AgeGroups, ", "))
			if opts.DateMin != nil && opts.DateMax != nil {
				fmt.Fprintf(w, "Dates:      %s to %s\n", opts.DateMin, opts.DateMax)
			}
			return nil
		},
	}
}

func newStatsCmd(o *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print per-exam dosage statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := o.criteria()
			if err != nil {
				return err
			}
			svc, err := o.start(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Stop()

			reports := svc.ExamStats(cmd.Context(), svc.BoundedCriteria(cmd.Context(), c))
			if o.asJSON {
				return writeJSON(cmd.OutOrStdout(), reports)
			}
			if len(reports) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), types.NoDataMessage)
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "EXAM\tRECORDS\tDOSAGES\tMEAN\tSTDDEV\tFLAGGED")
			for _, r := range reports {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\t%d\n",
					r.ExamName, r.Records, r.Stats.Count, num(r.Stats.Mean), num(r.Stats.StdDev), r.Flagged)
			}
			return tw.Flush()
		},
	}
	addFilterFlags(cmd, o)
	return cmd
}

func num(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "-"
	}
	return fmt.Sprintf("%.1f", v)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
