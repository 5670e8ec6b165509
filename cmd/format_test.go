package main

import (
	"bytes"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/crash-cli/internal/dataset"
	"github.com/sells-group/crash-cli/internal/fetcher"
	"github.com/sells-group/crash-cli/internal/merge"
	"github.com/sells-group/crash-cli/internal/model"
	"github.com/sells-group/crash-cli/internal/pipeline"
)

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	runs := []model.Run{
		{
			ID:           "abc12345-6789-0000-0000-000000000000",
			Dataset:      "crash_data",
			ModelName:    "wa-rural-2lane",
			Alpha:        0.6134,
			SegmentCount: 1824,
			Dropped:      12,
			CreatedAt:    now,
		},
		{
			ID:        "def12345-6789-0000-0000-000000000000",
			Dataset:   "an_unusually_long_dataset_name_for_display",
			ModelName: "wa-urban",
			CreatedAt: now.Add(-time.Hour),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "DATASET")
	assert.Contains(t, output, "abc12345")
	assert.NotContains(t, output, "abc12345-6789")
	assert.Contains(t, output, "wa-rural-2lane")
	assert.Contains(t, output, "0.6134")
	assert.Contains(t, output, "1824")
	assert.Contains(t, output, "2025-06-15 10:30")
	assert.Contains(t, output, "an_unusually_long_dataset_n...")
}

func TestFormatScoreResult(t *testing.T) {
	res := &pipeline.Result{
		RunID:    "9f8e7d6c-0000-0000-0000-000000000000",
		Dataset:  "crash_data",
		Alpha:    0.5,
		Segments: 2,
		Dropped:  1,
		Scores: []model.SegmentScore{
			{Key: model.SegmentKey{RoadInv: "005", BegMP: 10, EndMP: 10.5}, Observed: 10, SPF: 4, Weight: 0.2, Safety: 8.8, ARP: 4.8, Rank: 1},
			{Key: model.SegmentKey{RoadInv: "002", BegMP: 0, EndMP: 0.42}, Observed: 1.5, SPF: 1, Weight: 0.5, Safety: 1.25, ARP: 0.25, Rank: 2},
		},
	}

	var buf bytes.Buffer
	formatScoreResult(&buf, res)

	output := buf.String()
	assert.Contains(t, output, "crash_data: 2 segments (1 dropped), alpha 0.5000, run 9f8e7d6c")
	assert.Contains(t, output, "RANK")
	assert.Contains(t, output, "005:10-10.5")
	assert.Contains(t, output, "8.800")
	assert.Contains(t, output, "4.800")
	assert.Contains(t, output, "1.50")
}

func TestFormatSummaries(t *testing.T) {
	var buf bytes.Buffer
	formatSummaries(&buf, []dataset.Summary{
		{Column: "lanewid", Kind: dataset.KindContinuous, Count: 3, Mean: 11.5, Min: 11, Max: 12},
		{Column: "surf_typ", Kind: dataset.KindCategorical, Count: 3, Unique: 2, Top: "BST", Freq: 2},
	})

	output := buf.String()
	assert.Contains(t, output, "25%")
	assert.Contains(t, output, "lanewid")
	assert.Contains(t, output, "11.5")
	assert.Contains(t, output, "BST")
}

func TestSummaryCells(t *testing.T) {
	cont := summaryCells(dataset.Summary{Column: "avg_aadt", Kind: dataset.KindContinuous, Count: 4, Mean: 27625})
	require.Len(t, cont, len(summaryColumns))
	assert.Equal(t, "27625", cont[3])
	assert.Empty(t, cont[12])

	cat := summaryCells(dataset.Summary{Column: "curv_count", Kind: dataset.KindCategorical, Count: 4, Unique: 3, Top: "0", Freq: 2})
	require.Len(t, cat, len(summaryColumns))
	assert.Empty(t, cat[3])
	assert.Equal(t, []string{"3", "0", "2"}, cat[10:])
}

func TestFormatIntervals(t *testing.T) {
	res := &pipeline.IntervalResult{
		Alpha: 0.5,
		Term:  "log(avg_aadt)",
		X:     []float64{1000, 2000},
		Rows: []model.IntervalRow{
			{MuHat: 1.25, VarEta: 0.01, LBCIMu: 1.1, UBCIMu: 1.4},
			{MuHat: 2.5, VarEta: 0.02, LBCIMu: 2.2, UBCIMu: 2.8},
		},
	}

	var buf bytes.Buffer
	formatIntervals(&buf, res)

	output := buf.String()
	assert.Contains(t, output, "alpha 0.5000")
	assert.Contains(t, output, "log(avg_aadt)")
	assert.Contains(t, output, "LB CI mu")
	assert.Contains(t, output, "2000")
	assert.Contains(t, output, "1.2500")
}

func TestFormatMergeResult(t *testing.T) {
	var buf bytes.Buffer
	formatMergeResult(&buf, &merge.Result{
		Years:    []string{"06", "07"},
		Built:    []string{"07"},
		Cached:   []string{"06"},
		Segments: 1520,
		Duration: 1500 * time.Millisecond,
	})

	output := buf.String()
	assert.Contains(t, output, "06, 07")
	assert.Contains(t, output, "1520")
	assert.Contains(t, output, "1.5s")

	buf.Reset()
	formatMergeResult(&buf, &merge.Result{Years: []string{"06"}, Built: []string{"06"}})
	assert.Contains(t, buf.String(), "-")
}

func TestFormatBounds(t *testing.T) {
	assert.Equal(t, "-", formatBounds(nil))
	b := geom.NewBounds(geom.XY).Set(-122.5, 47.0, -122.0, 47.5)
	assert.Equal(t, "[-122.50000, 47.00000, -122.00000, 47.50000]", formatBounds(b))
}

func TestFormatCount(t *testing.T) {
	assert.Equal(t, "22", formatCount(22))
	assert.Equal(t, "3.50", formatCount(3.5))
	assert.Equal(t, "NaN", formatCount(math.NaN()))
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc12345", truncateID("abc12345-6789-0000"))
	assert.Equal(t, "short", truncateID("short"))
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"06", "07", "08"}, splitList("06, 07,,08 "))
	assert.Nil(t, splitList(""))
}

func TestTableSheet(t *testing.T) {
	s := tableSheet("crash_data", &fetcher.Table{
		Header: []string{"road_inv", "avg_aadt"},
		Rows:   [][]string{{"002", "5400"}, {"005", ""}},
	})
	assert.Equal(t, "crash_data", s.Name)
	assert.Equal(t, []string{"road_inv", "avg_aadt"}, s.Header)
	assert.Equal(t, []any{"005", ""}, s.Rows[1])
}

func TestOutputPath(t *testing.T) {
	path, err := outputPath("crash_map.geojson", "crash_data", "", false)
	require.NoError(t, err)
	assert.Equal(t, "crash_map.geojson", path)

	dir := filepath.Join(t.TempDir(), "maps")
	path, err = outputPath(dir, "wa06", "shp", true)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "wa06.shp"), path)
	assert.DirExists(t, dir)

	path, err = outputPath(dir, "wa07", "", true)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "wa07.csv"), path)
}
