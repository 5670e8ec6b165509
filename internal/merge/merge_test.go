package merge

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/crash-cli/internal/dataset"
	"github.com/sells-group/crash-cli/internal/model"
)

const roadHeader = "lshl_typ,med_type,rshl_typ,surf_typ,road_inv,spd_limt,begmp,endmp,lanewid,no_lanes,lshldwid,rshldwid,medwid,seg_lng,aadt\n"

var extracts = map[string]string{
	"wa06road.csv": roadHeader +
		"1,2.0,1,BST,002,55,0,1,12,2,4,4,0,1,5000\n" +
		"1,2.0,1,PCC,002,60,1,2,11,2,6,6,0,1,6000\n",
	"wa07road.csv": roadHeader +
		"1,2.0,1,BST,002,55,0,1,12,2,4,4,0,1,5200\n" +
		"1,2.0,1,PCC,002,60,1,2,11,2,6,6,0,1,6400\n",
	"wa06acc.csv":  "rd_inv,milepost,caseno\n002,0.5,A1\n002,1.5,A2\n002,1.7,A3\n",
	"wa07acc.csv":  "rd_inv,milepost,caseno\n002,0.1,B1\n",
	"wa06curv.csv": "curv_inv,begmp,dir_curv,deg_curv\n002,0.3,R,2.5\n002,0.7,L,4\n",
	"wa07curv.csv": "curv_inv,begmp,dir_curv,deg_curv\n002,0.3,R,2.5\n002,0.7,L,4\n",
	"wa06grad.csv": "grad_inv,begmp,pct_grad,dir_grad\n002,0.5,4,+\n002,1.3,2.5,-\n002,1.6,1.5,+\n",
	"wa07grad.csv": "grad_inv,begmp,pct_grad,dir_grad\n002,0.5,4,+\n002,1.3,2.5,-\n002,1.6,1.5,+\n",
	ElevationFile:  "Route_id,milepost,Longitude,Latitude,Grade\n002,0.2,-122.0,47.0,0.01\n002,0.6,-122.2,47.2,0.03\n",
}

func writeExtracts(t *testing.T, dir string) {
	t.Helper()
	for name, content := range extracts {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
}

func openTestMerger(t *testing.T) *Merger {
	t.Helper()
	m, err := Open(filepath.Join(t.TempDir(), "crash_database"))
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() }) //nolint:errcheck
	return m
}

func TestRun_BuildsCrashData(t *testing.T) {
	dir := t.TempDir()
	writeExtracts(t, dir)
	m := openTestMerger(t)
	ctx := context.Background()

	res, err := m.Run(ctx, Options{DataDir: dir, Years: []string{"06", "07"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"06", "07"}, res.Built)
	assert.Empty(t, res.Cached)
	assert.Equal(t, 2, res.Segments)

	table, err := m.ReadCrashData(ctx)
	require.NoError(t, err)
	ds, err := dataset.FromTable(CrashDataTable, table)
	require.NoError(t, err)
	require.Equal(t, 2, ds.Len())

	// Elevation covers the first segment.
	s := ds.Segments[0]
	assert.Equal(t, "002:0-1", s.Key.String())
	assert.Equal(t, "2", s.MedType)
	assert.InDelta(t, -122.1, s.Longitude, 1e-9)
	assert.InDelta(t, 47.1, s.Latitude, 1e-9)
	avg, _ := s.Numeric("avg_grad")
	assert.InDelta(t, 2.0, avg, 1e-9)
	maxGrad, _ := s.Numeric("max_grad")
	assert.InDelta(t, 3.0, maxGrad, 1e-9)
	assert.Equal(t, 2.0, s.CurveCount)
	assert.Equal(t, 5100.0, s.AvgAADT)
	assert.Equal(t, 2.0, s.TotalCrashes)
	acc06, _ := s.Numeric("acc_ct_06")
	assert.Equal(t, 1.0, acc06)

	// The second segment falls back to signed coarse grade.
	s = ds.Segments[1]
	avg, _ = s.Numeric("avg_grad")
	assert.InDelta(t, -0.5, avg, 1e-9)
	minGrad, _ := s.Numeric("min_grad")
	assert.InDelta(t, -2.5, minGrad, 1e-9)
	assert.Equal(t, 0.0, s.CurveCount)
	assert.Equal(t, 6200.0, s.AvgAADT)
	assert.Equal(t, 2.0, s.TotalCrashes)
	aadt07, _ := s.Numeric("aadt_07")
	assert.Equal(t, 6400.0, aadt07)
}

func TestRun_CachesAnnualTables(t *testing.T) {
	dir := t.TempDir()
	writeExtracts(t, dir)
	m := openTestMerger(t)
	ctx := context.Background()

	_, err := m.Run(ctx, Options{DataDir: dir, Years: []string{"06"}})
	require.NoError(t, err)

	// Extracts for 06 are gone but data_06 is cached.
	require.NoError(t, os.Remove(filepath.Join(dir, "wa06acc.csv")))
	res, err := m.Run(ctx, Options{DataDir: dir, Years: []string{"06", "07"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"06"}, res.Cached)
	assert.Equal(t, []string{"07"}, res.Built)

	_, err = m.Run(ctx, Options{DataDir: dir, Years: []string{"06"}, Force: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "acc extract for 2006")
}

func TestRun_MissingYearSegment(t *testing.T) {
	dir := t.TempDir()
	writeExtracts(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wa07road.csv"),
		[]byte(roadHeader+"1,2.0,1,BST,002,55,0,1,12,2,4,4,0,1,5200\n"), 0o644))
	m := openTestMerger(t)
	ctx := context.Background()

	_, err := m.Run(ctx, Options{DataDir: dir, Years: []string{"06", "07"}})
	require.NoError(t, err)

	table, err := m.ReadCrashData(ctx)
	require.NoError(t, err)
	require.Len(t, table.Rows, 2)
	col := table.Column("tot_acc_ct")
	require.GreaterOrEqual(t, col, 0)
	assert.Equal(t, "", table.Rows[1][col])
	assert.Equal(t, "", table.Rows[1][table.Column("aadt_07")])
}

func TestRun_Archive(t *testing.T) {
	src := t.TempDir()
	archive := filepath.Join(src, "wa06.zip")
	f, err := os.Create(archive)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, content := range extracts {
		if !strings.HasPrefix(name, "wa06") && name != ElevationFile {
			continue
		}
		w, err := zw.Create("hsis/" + name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	dir := t.TempDir()
	res, err := openTestMerger(t).Run(context.Background(), Options{DataDir: dir, Years: []string{"06"}, Archive: archive})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Segments)
	assert.FileExists(t, filepath.Join(dir, "wa06road.csv"))
}

func TestRun_InvalidYears(t *testing.T) {
	m := openTestMerger(t)
	for _, years := range [][]string{{"2006"}, {"06", "06"}} {
		_, err := m.Run(context.Background(), Options{DataDir: t.TempDir(), Years: years})
		require.Error(t, err)
		assert.True(t, errors.Is(err, model.ErrInvalidInput))
	}
}

func TestCrashDataSQL(t *testing.T) {
	q := crashDataSQL([]string{"06", "07", "08"})
	assert.Contains(t, q, "FROM data_06 AS y0")
	assert.Contains(t, q, "LEFT JOIN data_08 AS y2")
	assert.Contains(t, q, "(y0.aadt + y1.aadt + y2.aadt) / 3.0 AS avg_aadt")
	assert.Contains(t, q, "(y0.acc_count + y1.acc_count + y2.acc_count) AS tot_acc_ct")
}

func TestSQLValue(t *testing.T) {
	assert.Nil(t, sqlValue("lanewid", " "))
	assert.Nil(t, sqlValue("lanewid", "NA"))
	assert.Equal(t, int64(12), sqlValue("lanewid", "12"))
	assert.Equal(t, 2.5, sqlValue("deg_curv", "2.5"))
	assert.Equal(t, "002", sqlValue("road_inv", "002"))
	assert.Equal(t, "002", sqlValue("Route_id", "002"))
	assert.Equal(t, "BST", sqlValue("surf_typ", "BST"))
}

func TestDataset(t *testing.T) {
	dir := t.TempDir()
	writeExtracts(t, dir)
	m := openTestMerger(t)
	ctx := context.Background()

	_, err := m.Dataset(ctx)
	require.Error(t, err)

	_, err = m.Run(ctx, Options{DataDir: dir, Years: []string{"06"}})
	require.NoError(t, err)
	ds, err := m.Dataset(ctx)
	require.NoError(t, err)
	assert.Equal(t, CrashDataTable, ds.Name)
	require.Equal(t, 2, ds.Len())
	assert.Equal(t, "PCC", ds.Segments[1].SurfTyp)
	assert.Equal(t, 2.0, ds.Segments[1].TotalCrashes)
}
