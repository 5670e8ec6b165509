package main

import (
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/crash-cli/internal/export"
	"github.com/sells-group/crash-cli/internal/model"
	"github.com/sells-group/crash-cli/internal/pipeline"
)

var scoreCmd = &cobra.Command{
	Use:   "score <dataset>...",
	Short: "Rank road segments by Empirical Bayes accident reduction potential",
	Long: `Scores every complete segment of each dataset against the fitted NB
model: SPF, EB weight, EB safety and ARP. Segments are ranked by ARP and the
run is saved to the configured store.

Several datasets are scored concurrently (batch.max_concurrency). With more
than one dataset, --out names a directory and each dataset is written as
<name>.<format>.

Examples:
  # Print the 20 highest-priority segments
  score crash_data.csv --top 20

  # Write a GeoJSON crash map sized by ARP
  score crash_data.csv --out crash_map.geojson --metric arp

  # Score several study periods into shapefiles
  score wa06.csv wa07.csv --out maps/ --format shp --no-store`,
	Args: cobra.MinimumNArgs(1),
	RunE: runScore,
}

func init() {
	f := scoreCmd.Flags()
	f.String("model", "", "fitted model file (overrides config)")
	f.String("out", "", "output file, or directory when scoring several datasets")
	f.String("format", "", "output format: csv, xlsx, geojson or shp (default: by extension)")
	f.Int("top", -1, "keep the N highest-priority segments, 0 for all (overrides config)")
	f.String("metric", "", "crash map marker metric: safety or arp (overrides config)")
	f.Bool("no-store", false, "do not save the run")
	f.String("network", "", "road network shapefile to report the crash map against")
	rootCmd.AddCommand(scoreCmd)
}

func runScore(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	f := cmd.Flags()
	modelPath, _ := f.GetString("model")
	out, _ := f.GetString("out")
	network, _ := f.GetString("network")
	if v, _ := f.GetString("format"); v != "" {
		cfg.Export.Format = v
	}
	if v, _ := f.GetInt("top"); v >= 0 {
		cfg.Export.Top = v
	}
	if v, _ := f.GetString("metric"); v != "" {
		cfg.Export.Metric = v
	}
	if noStore, _ := f.GetBool("no-store"); noStore {
		cfg.Store.Driver = "none"
	}
	if modelPath != "" {
		cfg.Model.Path = modelPath
	}
	if err := cfg.Validate("score"); err != nil {
		return err
	}

	m, err := loadModel("")
	if err != nil {
		return err
	}
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	if st != nil {
		defer st.Close() //nolint:errcheck
	}

	p := pipeline.New(cfg, m, st)
	results, err := p.ScoreAll(ctx, args)
	if err != nil {
		return eris.Wrap(err, "score")
	}

	for _, res := range results {
		formatScoreResult(os.Stdout, res)
		if out == "" {
			continue
		}
		path, err := outputPath(out, res.Dataset, cfg.Export.Format, len(results) > 1)
		if err != nil {
			return err
		}
		if err := p.Export(path, res); err != nil {
			return err
		}
	}

	if network != "" {
		return reportExtent(os.Stdout, network, results)
	}
	return nil
}

// outputPath resolves where one dataset's scores are written. A multi
// dataset run treats out as a directory.
func outputPath(out, datasetName, format string, multi bool) (string, error) {
	if !multi {
		return out, nil
	}
	if format == "" {
		format = export.FormatCSV
	}
	if err := os.MkdirAll(out, 0o755); err != nil {
		return "", eris.Wrapf(err, "score: create output directory %s", out)
	}
	return filepath.Join(out, datasetName+"."+format), nil
}

// reportExtent prints the road network bounds next to each crash map's.
func reportExtent(out io.Writer, network string, results []*pipeline.Result) error {
	netBounds, err := export.NetworkExtent(network)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "network\t%s\n", formatBounds(netBounds))
	for _, res := range results {
		b := export.Extent(res.Scores)
		_, _ = fmt.Fprintf(w, "%s\t%s\n", res.Dataset, formatBounds(b))
		if b != nil && netBounds != nil && !netBounds.Overlaps(geom.XY, b) {
			zap.L().Warn("score: crash map lies outside the road network",
				zap.String("dataset", res.Dataset),
				zap.String("network", network),
			)
		}
	}
	return w.Flush()
}

func formatBounds(b *geom.Bounds) string {
	if b == nil || b.IsEmpty() {
		return "-"
	}
	return fmt.Sprintf("[%.5f, %.5f, %.5f, %.5f]", b.Min(0), b.Min(1), b.Max(0), b.Max(1))
}

// formatScoreResult writes a run header and its ranked segments to w.
func formatScoreResult(out io.Writer, res *pipeline.Result) {
	_, _ = fmt.Fprintf(out, "%s: %d segments (%d dropped), alpha %.4f", res.Dataset, res.Segments, res.Dropped, res.Alpha)
	if res.RunID != "" {
		_, _ = fmt.Fprintf(out, ", run %s", truncateID(res.RunID))
	}
	_, _ = fmt.Fprintln(out)
	formatScores(out, res.Scores)
}

// formatScores writes ranked scores as a table.
func formatScores(out io.Writer, scores []model.SegmentScore) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RANK\tSEGMENT\tOBSERVED\tSPF\tWEIGHT\tSAFETY\tARP")
	_, _ = fmt.Fprintln(w, "----\t-------\t--------\t---\t------\t------\t---")
	for _, sc := range scores {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%.3f\t%.3f\t%.3f\t%.3f\n",
			sc.Rank,
			sc.Key,
			formatCount(sc.Observed),
			sc.SPF,
			sc.Weight,
			sc.Safety,
			sc.ARP,
		)
	}
	_ = w.Flush()
}

func formatCount(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.2f", v)
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
