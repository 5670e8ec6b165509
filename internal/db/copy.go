package db

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// CopyRows loads rows into table over the COPY protocol. table may be
// schema-qualified ("crash.segment_scores"). Every row must carry one value
// per column; a short or long row fails before anything is sent.
func CopyRows(ctx context.Context, c Copier, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	for i, row := range rows {
		if len(row) != len(columns) {
			return 0, eris.Errorf("db: copy %s: row %d has %d values for %d columns", table, i, len(row), len(columns))
		}
	}

	n, err := c.CopyFrom(ctx, tableIdent(table), columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, eris.Wrapf(err, "db: copy %s", table)
	}
	return n, nil
}

// tableIdent splits an optional schema prefix off a table name.
func tableIdent(table string) pgx.Identifier {
	return pgx.Identifier(strings.SplitN(table, ".", 2))
}
