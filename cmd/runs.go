package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/crash-cli/internal/export"
	"github.com/sells-group/crash-cli/internal/model"
	"github.com/sells-group/crash-cli/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect saved scoring runs",
	Long:  "Commands for listing runs, viewing one run, and reading back its highest-priority segments.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := rootCmd.PersistentPreRunE(cmd, args); err != nil {
			return err
		}
		return cfg.Validate("runs")
	},
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scoring runs, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		datasetName, _ := cmd.Flags().GetString("dataset")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		runs, err := st.ListRuns(ctx, store.RunFilter{Dataset: datasetName, Limit: limit, Offset: offset})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

// -- runs top --

var runsTopCmd = &cobra.Command{
	Use:   "top <run-id>",
	Short: "Show the highest-priority segments of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, _ := cmd.Flags().GetInt("n")
		out, _ := cmd.Flags().GetString("out")
		metric, _ := cmd.Flags().GetString("metric")

		scores, err := st.TopScores(ctx, args[0], n)
		if err != nil {
			return eris.Wrap(err, "runs top")
		}
		formatScores(os.Stdout, scores)

		if out == "" {
			return nil
		}
		if metric == "" {
			metric = cfg.Export.Metric
		}
		return export.WriteScores(out, scores, export.Options{Metric: metric})
	},
}

func init() {
	runsListCmd.Flags().String("dataset", "", "filter by dataset name")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")
	runsListCmd.Flags().Int("offset", 0, "number of runs to skip")

	runsTopCmd.Flags().Int("n", 20, "number of segments to show")
	runsTopCmd.Flags().String("out", "", "write the segments to a CSV, XLSX, GeoJSON or shapefile")
	runsTopCmd.Flags().String("metric", "", "crash map marker metric: safety or arp")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsTopCmd)
	rootCmd.AddCommand(runsCmd)
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tDATASET\tMODEL\tALPHA\tSEGMENTS\tDROPPED\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t-------\t-----\t-----\t--------\t-------\t-------")

	for _, r := range runs {
		name := r.Dataset
		if len(name) > 30 {
			name = name[:27] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%.4f\t%d\t%d\t%s\n",
			truncateID(r.ID),
			name,
			r.ModelName,
			r.Alpha,
			r.SegmentCount,
			r.Dropped,
			r.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}
