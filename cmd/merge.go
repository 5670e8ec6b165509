package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/crash-cli/internal/export"
	"github.com/sells-group/crash-cli/internal/fetcher"
	"github.com/sells-group/crash-cli/internal/merge"
)

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Merge annual roadway and crash extracts into crash_data",
	Long: `Builds one data_YY table per study year from the waYYroad, waYYacc,
waYYcurv and waYYgrad extracts plus wa_elev.csv, then joins every year into
crash_data with per-year AADT and crash counts, avg_aadt and tot_acc_ct.

Annual tables are cached in the work database; pass --force to rebuild them.

Examples:
  # Merge the default study years from ./data
  merge

  # Merge three years from an archive and export the result
  merge --archive hsis_wa.zip --years 09,10,11 --out crash_data.csv`,
	RunE: runMerge,
}

func init() {
	f := mergeCmd.Flags()
	f.String("data-dir", "", "directory of annual CSV extracts (overrides config)")
	f.String("db", "", "SQLite work database (overrides config)")
	f.String("years", "", "comma-separated two-digit years (e.g., 06,07,08)")
	f.String("archive", "", "ZIP of extracts to unpack into the data directory first")
	f.Bool("force", false, "rebuild cached annual tables")
	f.String("out", "", "write crash_data to a CSV or XLSX file")
	rootCmd.AddCommand(mergeCmd)
}

func runMerge(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	f := cmd.Flags()
	if v, _ := f.GetString("data-dir"); v != "" {
		cfg.Merge.DataDir = v
	}
	if v, _ := f.GetString("db"); v != "" {
		cfg.Merge.Database = v
	}
	if v, _ := f.GetString("years"); v != "" {
		cfg.Merge.Years = splitList(v)
	}
	if v, _ := f.GetString("archive"); v != "" {
		cfg.Merge.Archive = v
	}
	if err := cfg.Validate("merge"); err != nil {
		return err
	}
	force, _ := f.GetBool("force")
	out, _ := f.GetString("out")

	m, err := merge.Open(cfg.Merge.Database)
	if err != nil {
		return err
	}
	defer m.Close() //nolint:errcheck

	res, err := m.Run(ctx, merge.Options{
		DataDir: cfg.Merge.DataDir,
		Years:   cfg.Merge.Years,
		Archive: cfg.Merge.Archive,
		Force:   force,
		CSV:     fetcher.CSVOptions{Encoding: cfg.Dataset.Encoding, TrimSpace: true},
	})
	if err != nil {
		return eris.Wrap(err, "merge")
	}
	formatMergeResult(os.Stdout, res)

	if out == "" {
		return nil
	}
	t, err := m.ReadCrashData(ctx)
	if err != nil {
		return err
	}
	return export.WriteSheet(out, tableSheet(merge.CrashDataTable, t), export.Options{})
}

// tableSheet converts a decoded table to an export sheet.
func tableSheet(name string, t *fetcher.Table) *export.Sheet {
	s := &export.Sheet{Name: name, Header: t.Header, Rows: make([][]any, len(t.Rows))}
	for i, row := range t.Rows {
		cells := make([]any, len(row))
		for j, c := range row {
			cells[j] = c
		}
		s.Rows[i] = cells
	}
	return s
}

// formatMergeResult writes a merge summary to w.
func formatMergeResult(out io.Writer, res *merge.Result) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Years:\t%s\n", strings.Join(res.Years, ", "))
	_, _ = fmt.Fprintf(w, "Built:\t%s\n", joinOrDash(res.Built))
	_, _ = fmt.Fprintf(w, "Cached:\t%s\n", joinOrDash(res.Cached))
	_, _ = fmt.Fprintf(w, "Segments:\t%d\n", res.Segments)
	_, _ = fmt.Fprintf(w, "Duration:\t%s\n", res.Duration.Round(time.Millisecond))
	_ = w.Flush()
}

func joinOrDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}

// splitList splits a comma-separated flag value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
