package export

import (
	"encoding/csv"
	"io"
	"math"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// WriteCSV writes s with a header row.
func WriteCSV(w io.Writer, s *Sheet) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(s.Header); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}
	record := make([]string, len(s.Header))
	for i, row := range s.Rows {
		for j := range record {
			record[j] = ""
			if j < len(row) {
				record[j] = formatCell(row[j])
			}
		}
		if err := cw.Write(record); err != nil {
			return eris.Wrapf(err, "export: write csv row %d", i+1)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush csv")
}

// WriteXLSX saves one or more sheets as a workbook at path.
func WriteXLSX(path string, sheets ...*Sheet) error {
	f := xlsx.NewFile()
	for _, s := range sheets {
		sheet, err := f.AddSheet(s.Name)
		if err != nil {
			return eris.Wrapf(err, "export: add sheet %q", s.Name)
		}
		header := sheet.AddRow()
		for _, h := range s.Header {
			header.AddCell().SetString(h)
		}
		for _, row := range s.Rows {
			r := sheet.AddRow()
			for _, v := range row {
				setCell(r.AddCell(), v)
			}
		}
	}
	return eris.Wrapf(f.Save(path), "export: save %s", path)
}

func setCell(c *xlsx.Cell, v any) {
	switch x := v.(type) {
	case int:
		c.SetInt(x)
	case float64:
		if !math.IsNaN(x) && !math.IsInf(x, 0) {
			c.SetFloat(x)
		}
	default:
		c.SetString(formatCell(v))
	}
}
