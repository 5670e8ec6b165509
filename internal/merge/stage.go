package merge

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/crash-cli/internal/dataset"
	"github.com/sells-group/crash-cli/internal/fetcher"
)

// Inventory keys keep their leading zeros.
var textColumns = map[string]bool{
	"road_inv": true,
	"rd_inv":   true,
	"curv_inv": true,
	"grad_inv": true,
	"route_id": true,
}

func (m *Merger) loadCSV(ctx context.Context, name, path string, opts fetcher.CSVOptions) error {
	t, err := fetcher.ReadCSVFile(ctx, path, opts)
	if err != nil {
		return eris.Wrapf(err, "merge: read %s", path)
	}
	return m.stage(ctx, name, t)
}

// stage replaces table name with the rows of t. Columns are untyped so each
// cell keeps the storage class of its parsed value.
func (m *Merger) stage(ctx context.Context, name string, t *fetcher.Table) error {
	if len(t.Header) == 0 {
		return eris.Errorf("merge: %s has no header", name)
	}
	cols := make([]string, len(t.Header))
	marks := make([]string, len(t.Header))
	for i, h := range t.Header {
		cols[i] = quoteIdent(strings.TrimSpace(h))
		marks[i] = "?"
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrapf(err, "merge: begin stage %s", name)
	}
	defer tx.Rollback() //nolint:errcheck

	table := quoteIdent(name)
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
		return eris.Wrapf(err, "merge: drop %s", name)
	}
	if _, err := tx.ExecContext(ctx, "CREATE TABLE "+table+" ("+strings.Join(cols, ", ")+")"); err != nil {
		return eris.Wrapf(err, "merge: create %s", name)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO "+table+" ("+strings.Join(cols, ", ")+") VALUES ("+strings.Join(marks, ", ")+")")
	if err != nil {
		return eris.Wrapf(err, "merge: prepare insert %s", name)
	}
	defer stmt.Close() //nolint:errcheck

	args := make([]any, len(t.Header))
	for r, row := range t.Rows {
		for i, h := range t.Header {
			var cell string
			if i < len(row) {
				cell = row[i]
			}
			args[i] = sqlValue(h, cell)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return eris.Wrapf(err, "merge: insert %s row %d", name, r+1)
		}
	}
	return eris.Wrapf(tx.Commit(), "merge: commit %s", name)
}

// sqlValue converts a CSV cell to NULL, an integer, a real or text.
func sqlValue(column, cell string) any {
	s := strings.TrimSpace(cell)
	if s == "" {
		return nil
	}
	if textColumns[strings.ToLower(strings.TrimSpace(column))] {
		return s
	}
	v, err := dataset.ParseNumber(s)
	if err != nil {
		return s
	}
	if math.IsNaN(v) {
		return nil
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	return v
}
