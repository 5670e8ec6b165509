// Package export writes ranked segment scores and interval tables to CSV,
// XLSX, GeoJSON crash maps and point shapefiles.
package export

import (
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/crash-cli/internal/model"
)

// Supported output formats.
const (
	FormatCSV       = "csv"
	FormatXLSX      = "xlsx"
	FormatGeoJSON   = "geojson"
	FormatShapefile = "shp"
)

// Sheet is a header plus typed rows. Cells are string, int or float64; NaN
// floats are written as blanks.
type Sheet struct {
	Name   string
	Header []string
	Rows   [][]any
}

// FormatFor returns the format named by a path's extension.
func FormatFor(path string) (string, error) {
	switch ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")); ext {
	case FormatCSV, FormatXLSX, FormatGeoJSON, FormatShapefile:
		return ext, nil
	case "json":
		return FormatGeoJSON, nil
	default:
		return "", eris.Errorf("export: unsupported output type %q", filepath.Ext(path))
	}
}

// ScoreColumns is the header of a score sheet.
var ScoreColumns = []string{
	model.ColRoadInv, model.ColBegMP, model.ColEndMP, model.ColLongitude, model.ColLatitude,
	model.ColSegLng, model.ColTotAccCt, model.ColSPF, model.ColWeight, model.ColSafety, model.ColARP, model.ColRank,
}

// ScoreSheet lays out scores in their given order.
func ScoreSheet(scores []model.SegmentScore) *Sheet {
	s := &Sheet{Name: "scores", Header: ScoreColumns, Rows: make([][]any, len(scores))}
	for i, sc := range scores {
		s.Rows[i] = []any{
			sc.Key.RoadInv, sc.Key.BegMP, sc.Key.EndMP, sc.Longitude, sc.Latitude,
			sc.Length, sc.Observed, sc.SPF, sc.Weight, sc.Safety, sc.ARP, sc.Rank,
		}
	}
	return s
}

// IntervalSheet lays out interval rows. When x is non-nil it becomes a
// leading column named xName.
func IntervalSheet(rows []model.IntervalRow, xName string, x []float64) *Sheet {
	s := &Sheet{Name: "intervals"}
	if x != nil {
		s.Header = append([]string{xName}, model.IntervalColumns...)
	} else {
		s.Header = model.IntervalColumns
	}
	s.Rows = make([][]any, len(rows))
	for i, r := range rows {
		row := make([]any, 0, len(s.Header))
		if x != nil {
			row = append(row, x[i])
		}
		for _, v := range r.Values() {
			row = append(row, v)
		}
		s.Rows[i] = row
	}
	return s
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case float64:
		if math.IsNaN(x) {
			return ""
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}
