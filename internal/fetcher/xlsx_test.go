package fetcher

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func createTestXLSX(t *testing.T, sheets map[string][][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	for name, rows := range sheets {
		sheet, err := f.AddSheet(name)
		require.NoError(t, err)
		for _, rowData := range rows {
			row := sheet.AddRow()
			for _, cellData := range rowData {
				cell := row.AddCell()
				cell.SetString(cellData)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "test.xlsx")
	err := f.Save(path)
	require.NoError(t, err)
	return path
}

func TestReadXLSX_Basic(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"crash_data": {
			{"road_inv", "begmp", "endmp"},
			{"005", "0", "0.5"},
			{"", "", ""},
			{"090", "1", "2"},
		},
	})

	table, err := ReadXLSX(path, XLSXOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"road_inv", "begmp", "endmp"}, table.Header)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, []string{"090", "1", "2"}, table.Rows[1])
}

func TestReadXLSX_SkipRows(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Sheet1": {
			{"Washington HSIS extract"},
			{"a", "b"},
			{"1", "2"},
		},
	})

	table, err := ReadXLSX(path, XLSXOptions{SkipRows: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, table.Header)
	assert.Equal(t, [][]string{{"1", "2"}}, table.Rows)
}

func TestReadXLSX_SheetName(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"First":  {{"a", "b"}},
		"Second": {{"x", "y"}, {"1", "2"}},
	})

	table, err := ReadXLSX(path, XLSXOptions{SheetName: "Second"})
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, table.Header)
	assert.Equal(t, [][]string{{"1", "2"}}, table.Rows)
}

func TestReadXLSX_SheetErrors(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Sheet1": {{"a"}},
	})

	_, err := ReadXLSX(path, XLSXOptions{SheetName: "Missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestReadXLSX_FileNotFound(t *testing.T) {
	_, err := ReadXLSX("/nonexistent/file.xlsx", XLSXOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "xlsx: open")
}

func TestReadXLSX_NumericPrecision(t *testing.T) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("crash_data")
	require.NoError(t, err)
	header := sheet.AddRow()
	for _, h := range []string{"road_inv", "begmp", "avg_aadt"} {
		header.AddCell().SetString(h)
	}
	row := sheet.AddRow()
	row.AddCell().SetString("005")
	row.AddCell().SetFloatWithFormat(10.25, "0.0")
	short := sheet.AddRow()
	short.AddCell().SetString("090")

	path := filepath.Join(t.TempDir(), "precision.xlsx")
	require.NoError(t, f.Save(path))

	table, err := ReadXLSX(path, XLSXOptions{})
	require.NoError(t, err)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, []string{"005", "10.25", ""}, table.Rows[0])
	assert.Equal(t, []string{"090", "", ""}, table.Rows[1])
}
