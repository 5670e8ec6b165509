package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/crash-cli/internal/dataset"
	"github.com/sells-group/crash-cli/internal/export"
	"github.com/sells-group/crash-cli/internal/model"
	"github.com/sells-group/crash-cli/internal/pipeline"
)

var intervalsCmd = &cobra.Command{
	Use:   "intervals",
	Short: "Estimate confidence and prediction intervals of the fitted model",
	Long: `Computes var(eta), mu_hat, the 95% confidence interval of the mean and
the parameter (m) and response (y) prediction intervals.

Evaluation points come either from a design table (--design, one column per
model term, intercept optional) or from sweeping one term of a dataset over
a range with the other terms held at their means (--dataset with --term).

Examples:
  intervals --design points.csv
  intervals --dataset crash_data.csv --term avg_aadt --from 1000 --to 40000 --steps 40 --out aadt.xlsx`,
	RunE: runIntervals,
}

func init() {
	f := intervalsCmd.Flags()
	f.String("model", "", "fitted model file (overrides config)")
	f.String("design", "", "CSV design table of evaluation points")
	f.String("dataset", "", "segment dataset to sweep")
	f.String("term", "", "term or column to vary in a sweep")
	f.Float64("from", 0, "sweep start value")
	f.Float64("to", 0, "sweep end value")
	f.Int("steps", 50, "number of sweep points")
	f.String("out", "", "write the intervals to a CSV or XLSX file")
	rootCmd.AddCommand(intervalsCmd)
}

func runIntervals(cmd *cobra.Command, _ []string) error {
	f := cmd.Flags()
	if v, _ := f.GetString("model"); v != "" {
		cfg.Model.Path = v
	}
	if err := cfg.Validate("intervals"); err != nil {
		return err
	}
	design, _ := f.GetString("design")
	dsPath, _ := f.GetString("dataset")
	out, _ := f.GetString("out")
	if (design == "") == (dsPath == "") {
		return eris.New("intervals: exactly one of --design or --dataset is required")
	}

	m, err := loadModel("")
	if err != nil {
		return err
	}
	p := pipeline.New(cfg, m, nil)

	var res *pipeline.IntervalResult
	if design != "" {
		res, err = p.IntervalsFromFile(cmd.Context(), design)
	} else {
		opts := dataset.SweepOptions{}
		opts.Term, _ = f.GetString("term")
		opts.From, _ = f.GetFloat64("from")
		opts.To, _ = f.GetFloat64("to")
		opts.Steps, _ = f.GetInt("steps")
		if opts.Term == "" {
			return eris.New("intervals: --term is required with --dataset")
		}
		res, err = p.IntervalsSweep(cmd.Context(), dsPath, opts)
	}
	if err != nil {
		return eris.Wrap(err, "intervals")
	}

	formatIntervals(os.Stdout, res)
	if out == "" {
		return nil
	}
	return export.WriteSheet(out, export.IntervalSheet(res.Rows, res.Term, res.X), export.Options{})
}

// formatIntervals writes interval rows as a table, led by the swept value
// when there is one.
func formatIntervals(out io.Writer, res *pipeline.IntervalResult) {
	_, _ = fmt.Fprintf(out, "alpha %.4f\n", res.Alpha)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	header := model.IntervalColumns
	if res.X != nil {
		header = append([]string{res.Term}, header...)
	}
	_, _ = fmt.Fprintln(w, strings.Join(header, "\t"))
	for i, r := range res.Rows {
		cells := make([]string, 0, len(header))
		if res.X != nil {
			cells = append(cells, strconv.FormatFloat(res.X[i], 'g', 6, 64))
		}
		for _, v := range r.Values() {
			cells = append(cells, strconv.FormatFloat(v, 'f', 4, 64))
		}
		_, _ = fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	_ = w.Flush()
}
