// Package dataset loads per-segment crash tables and turns them into design
// matrices for a fitted NB model.
package dataset

import (
	"context"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/crash-cli/internal/fetcher"
	"github.com/sells-group/crash-cli/internal/model"
)

// Options configures Load.
type Options struct {
	Encoding  string // CSV charset label, empty for UTF-8
	SheetName string // XLSX worksheet, empty for the first sheet
}

// Dataset is a named, ordered set of road segments.
type Dataset struct {
	Name     string
	Columns  []string
	Segments []model.Segment
}

// Len returns the number of segments.
func (d *Dataset) Len() int { return len(d.Segments) }

// HasColumn reports whether the source table carried column.
func (d *Dataset) HasColumn(column string) bool {
	for _, c := range d.Columns {
		if c == column {
			return true
		}
	}
	return false
}

// Load reads a CSV or XLSX crash table from path.
func Load(ctx context.Context, path string, opts Options) (*Dataset, error) {
	var (
		table *fetcher.Table
		err   error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		table, err = fetcher.ReadXLSX(path, fetcher.XLSXOptions{SheetName: opts.SheetName})
	case ".csv", ".txt", "":
		table, err = fetcher.ReadCSVFile(ctx, path, fetcher.CSVOptions{Encoding: opts.Encoding, TrimSpace: true})
	default:
		return nil, eris.Errorf("dataset: unsupported file type %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: load %s", path)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return FromTable(name, table)
}

// FromTable converts a decoded table into segments. road_inv, begmp and
// endmp are required; every other column is optional. Blank, "NA" and
// "NaN" numeric cells become NaN.
func FromTable(name string, t *fetcher.Table) (*Dataset, error) {
	for _, col := range []string{model.ColRoadInv, model.ColBegMP, model.ColEndMP} {
		if t.Column(col) < 0 {
			return nil, eris.Wrapf(model.ErrInvalidInput, "dataset: %s: missing required column %q", name, col)
		}
	}

	ds := &Dataset{
		Name:     name,
		Columns:  append([]string(nil), t.Header...),
		Segments: make([]model.Segment, 0, len(t.Rows)),
	}
	for r, row := range t.Rows {
		seg := model.NewSegment(model.SegmentKey{})
		for c, col := range t.Header {
			if col == "" || strings.EqualFold(col, "index") {
				continue
			}
			var cell string
			if c < len(row) {
				cell = row[c]
			}
			if model.IsCategorical(col) {
				seg.SetCategorical(col, categoryLabel(cell))
				continue
			}
			v, err := ParseNumber(cell)
			if err != nil {
				return nil, eris.Wrapf(model.ErrInvalidInput, "dataset: %s row %d column %q: %q is not a number", name, r+1, col, cell)
			}
			seg.SetNumeric(col, v)
		}
		if math.IsNaN(seg.Key.BegMP) || math.IsNaN(seg.Key.EndMP) {
			return nil, eris.Wrapf(model.ErrInvalidInput, "dataset: %s row %d: missing milepost", name, r+1)
		}
		ds.Segments = append(ds.Segments, seg)
	}
	return ds, nil
}

// ParseNumber parses a numeric cell. Missing markers yield NaN.
func ParseNumber(cell string) (float64, error) {
	s := strings.TrimSpace(cell)
	switch strings.ToLower(s) {
	case "", "na", "nan", "null", "none":
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

// categoryLabel normalizes category codes written as floats ("2.0" -> "2").
func categoryLabel(cell string) string {
	s := strings.TrimSpace(cell)
	if strings.HasSuffix(s, ".0") {
		if _, err := strconv.Atoi(strings.TrimSuffix(s, ".0")); err == nil {
			return strings.TrimSuffix(s, ".0")
		}
	}
	return s
}
