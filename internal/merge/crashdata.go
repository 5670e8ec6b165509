package merge

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/crash-cli/internal/dataset"
	"github.com/sells-group/crash-cli/internal/fetcher"
)

// Geometry and roadway columns carried from the first year.
var staticColumns = []string{
	"lshl_typ", "med_type", "rshl_typ", "surf_typ", "road_inv",
	"spd_limt", "begmp", "endmp", "lanewid", "no_lanes", "lshldwid",
	"rshldwid", "medwid", "seg_lng", "longitude", "latitude",
	"avg_grad", "max_grad", "min_grad", "curv_count", "max_deg_curv",
}

// crashDataSQL joins the annual tables on segment key. Segments missing from
// a later year get NULL AADT and count for it, and so NULL avg_aadt and
// tot_acc_ct.
func crashDataSQL(years []string) string {
	alias := func(i int) string { return fmt.Sprintf("y%d", i) }

	sel := make([]string, 0, len(staticColumns)+2*len(years)+2)
	for _, c := range staticColumns {
		sel = append(sel, "y0."+c)
	}
	aadt := make([]string, len(years))
	acc := make([]string, len(years))
	for i, y := range years {
		a := alias(i)
		sel = append(sel,
			fmt.Sprintf("%s.aadt AS aadt_%s", a, y),
			fmt.Sprintf("%s.acc_count AS acc_ct_%s", a, y),
		)
		aadt[i] = a + ".aadt"
		acc[i] = a + ".acc_count"
	}
	sel = append(sel,
		fmt.Sprintf("(%s) / %d.0 AS avg_aadt", strings.Join(aadt, " + "), len(years)),
		fmt.Sprintf("(%s) AS tot_acc_ct", strings.Join(acc, " + ")),
	)

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s AS\nSELECT %s\nFROM %s AS y0",
		CrashDataTable, strings.Join(sel, ",\n\t"), annualTable(years[0]))
	for i := 1; i < len(years); i++ {
		a := alias(i)
		fmt.Fprintf(&b, "\nLEFT JOIN %s AS %s\nON y0.road_inv = %s.road_inv AND\n\ty0.begmp = %s.begmp AND\n\ty0.endmp = %s.endmp",
			annualTable(years[i]), a, a, a, a)
	}
	b.WriteString("\nORDER BY y0.road_inv, y0.begmp, y0.endmp")
	return b.String()
}

func (m *Merger) buildCrashData(ctx context.Context, years []string) (int, error) {
	err := m.exec(ctx,
		"DROP TABLE IF EXISTS "+CrashDataTable,
		crashDataSQL(years),
	)
	if err != nil {
		return 0, eris.Wrap(err, "merge: build crash data")
	}
	var n int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+CrashDataTable).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "merge: count crash data")
	}
	return n, nil
}

// ReadCrashData returns crash_data as a string table for dataset.FromTable.
// NULL cells read as blanks.
func (m *Merger) ReadCrashData(ctx context.Context) (*fetcher.Table, error) {
	rows, err := m.db.QueryContext(ctx, "SELECT * FROM "+CrashDataTable)
	if err != nil {
		return nil, eris.Wrap(err, "merge: query crash data")
	}
	defer rows.Close() //nolint:errcheck

	header, err := rows.Columns()
	if err != nil {
		return nil, eris.Wrap(err, "merge: crash data columns")
	}

	t := &fetcher.Table{Header: header}
	vals := make([]any, len(header))
	ptrs := make([]any, len(header))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, eris.Wrap(err, "merge: scan crash data")
		}
		row := make([]string, len(vals))
		for i, v := range vals {
			row[i] = cellString(v)
		}
		t.Rows = append(t.Rows, row)
	}
	return t, eris.Wrap(rows.Err(), "merge: crash data iterate")
}

func cellString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case []byte:
		return string(x)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

// Dataset reads crash_data as a segment dataset.
func (m *Merger) Dataset(ctx context.Context) (*dataset.Dataset, error) {
	t, err := m.ReadCrashData(ctx)
	if err != nil {
		return nil, err
	}
	ds, err := dataset.FromTable(CrashDataTable, t)
	if err != nil {
		return nil, eris.Wrap(err, "merge: decode crash data")
	}
	return ds, nil
}
