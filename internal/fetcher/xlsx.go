package fetcher

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// XLSXOptions selects the worksheet to read.
type XLSXOptions struct {
	SheetName string // empty for the first sheet
	SkipRows  int    // title rows above the header
}

// ReadXLSX reads one worksheet into a Table. The first row after SkipRows is
// the header; data rows are padded or cut to its width and fully blank rows
// are dropped. Numeric cells keep full precision regardless of their
// display format, so mileposts formatted as "0.0" still read as 10.25.
func ReadXLSX(path string, opts XLSXOptions) (*Table, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "xlsx: open %s", path)
	}

	sheet, err := selectSheet(f, opts.SheetName)
	if err != nil {
		return nil, err
	}

	t := &Table{}
	for i, row := range sheet.Rows {
		if i < opts.SkipRows || row == nil {
			continue
		}
		if t.Header == nil {
			t.Header = make([]string, len(row.Cells))
			for j, c := range row.Cells {
				t.Header[j] = strings.TrimSpace(c.String())
			}
			continue
		}
		cells := make([]string, len(t.Header))
		blank := true
		for j := 0; j < len(cells) && j < len(row.Cells); j++ {
			cells[j] = cellText(row.Cells[j])
			if cells[j] != "" {
				blank = false
			}
		}
		if !blank {
			t.Rows = append(t.Rows, cells)
		}
	}
	if t.Header == nil {
		return nil, eris.Errorf("xlsx: sheet %q has no header row", sheet.Name)
	}
	return t, nil
}

func selectSheet(f *xlsx.File, name string) (*xlsx.Sheet, error) {
	if name == "" {
		if len(f.Sheets) == 0 {
			return nil, eris.New("xlsx: workbook has no sheets")
		}
		return f.Sheets[0], nil
	}
	sheet, ok := f.Sheet[name]
	if !ok {
		return nil, eris.Errorf("xlsx: sheet %q not found", name)
	}
	return sheet, nil
}

func cellText(c *xlsx.Cell) string {
	if c.Type() == xlsx.CellTypeNumeric {
		if v, err := c.Float(); err == nil {
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return strings.TrimSpace(c.String())
}
