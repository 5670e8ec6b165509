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
)

var summaryCmd = &cobra.Command{
	Use:   "summary <dataset>",
	Short: "Describe the columns of a segment dataset",
	Long: `Prints count, mean, std, min, quartiles and max for continuous columns
and count, unique, top and freq for categorical ones. Missing values are
skipped.

Examples:
  summary crash_data.csv
  summary crash_data.csv --columns avg_aadt,lanewid,curv_count --categorical curv_count
  summary crash_data.xlsx --out summary.xlsx`,
	Args: cobra.ExactArgs(1),
	RunE: runSummary,
}

func init() {
	f := summaryCmd.Flags()
	f.String("columns", "", "comma-separated columns to describe (default: all)")
	f.String("categorical", "", "comma-separated numeric columns to describe as categories")
	f.String("out", "", "write the summary to a CSV or XLSX file")
	rootCmd.AddCommand(summaryCmd)
}

func runSummary(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate("summary"); err != nil {
		return err
	}
	f := cmd.Flags()
	columns, _ := f.GetString("columns")
	categorical, _ := f.GetString("categorical")
	out, _ := f.GetString("out")

	ds, err := dataset.Load(cmd.Context(), args[0], dataset.Options{
		Encoding:  cfg.Dataset.Encoding,
		SheetName: cfg.Dataset.SheetName,
	})
	if err != nil {
		return err
	}
	summaries, err := dataset.Describe(ds, dataset.DescribeOptions{
		Columns:     splitList(columns),
		Categorical: splitList(categorical),
	})
	if err != nil {
		return eris.Wrap(err, "summary")
	}

	formatSummaries(os.Stdout, summaries)
	if out == "" {
		return nil
	}
	return export.WriteSheet(out, summarySheet(summaries), export.Options{})
}

var summaryColumns = []string{"column", "kind", "count", "mean", "std", "min", "25%", "50%", "75%", "max", "unique", "top", "freq"}

// summaryCells renders one summary in summaryColumns order. Fields that do
// not apply to the column kind are blank.
func summaryCells(s dataset.Summary) []string {
	num := func(v float64) string { return strconv.FormatFloat(v, 'g', 6, 64) }
	cells := []string{s.Column, s.Kind, strconv.Itoa(s.Count)}
	if s.Kind == dataset.KindContinuous {
		cells = append(cells, num(s.Mean), num(s.Std), num(s.Min), num(s.P25), num(s.P50), num(s.P75), num(s.Max), "", "", "")
	} else {
		cells = append(cells, "", "", "", "", "", "", "", strconv.Itoa(s.Unique), s.Top, strconv.Itoa(s.Freq))
	}
	return cells
}

func summarySheet(summaries []dataset.Summary) *export.Sheet {
	s := &export.Sheet{Name: "summary", Header: summaryColumns, Rows: make([][]any, len(summaries))}
	for i, sum := range summaries {
		cells := summaryCells(sum)
		row := make([]any, len(cells))
		for j, c := range cells {
			row[j] = c
		}
		s.Rows[i] = row
	}
	return s
}

// formatSummaries writes a summary table to w.
func formatSummaries(out io.Writer, summaries []dataset.Summary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, strings.Join(summaryColumns, "\t"))
	for _, s := range summaries {
		_, _ = fmt.Fprintln(w, strings.Join(summaryCells(s), "\t"))
	}
	_ = w.Flush()
}
