package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// UpsertConfig describes a keyed bulk write.
type UpsertConfig struct {
	Table        string   // target table, optionally schema-qualified
	Columns      []string // columns of every row, in row order
	ConflictKeys []string // columns of the target's unique key
	UpdateCols   []string // columns replaced on conflict; nil means every non-key column
}

func (c UpsertConfig) validate() error {
	if len(c.Columns) == 0 {
		return eris.Errorf("db: upsert %s: no columns", c.Table)
	}
	if len(c.ConflictKeys) == 0 {
		return eris.Errorf("db: upsert %s: no conflict keys", c.Table)
	}
	return nil
}

func (c UpsertConfig) updateColumns() []string {
	if c.UpdateCols != nil {
		return c.UpdateCols
	}
	keys := make(map[string]struct{}, len(c.ConflictKeys))
	for _, k := range c.ConflictKeys {
		keys[k] = struct{}{}
	}
	var cols []string
	for _, col := range c.Columns {
		if _, ok := keys[col]; !ok {
			cols = append(cols, col)
		}
	}
	return cols
}

// stagingTable names the session-local table rows are copied into.
func (c UpsertConfig) stagingTable() string {
	return strings.ReplaceAll(c.Table, ".", "_") + "_stage"
}

// statements returns the DDL for the staging table and the merge from it
// into the target.
func (c UpsertConfig) statements() (create, merge string) {
	stage := pgx.Identifier{c.stagingTable()}.Sanitize()
	target := tableIdent(c.Table).Sanitize()

	create = fmt.Sprintf("CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP", stage, target)

	onConflict := "DO NOTHING"
	if update := c.updateColumns(); len(update) > 0 {
		sets := make([]string, len(update))
		for i, col := range update {
			q := pgx.Identifier{col}.Sanitize()
			sets[i] = q + " = EXCLUDED." + q
		}
		onConflict = "DO UPDATE SET " + strings.Join(sets, ", ")
	}
	cols := quoteAndJoin(c.Columns)
	merge = fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) %s",
		target, cols, cols, stage, quoteAndJoin(c.ConflictKeys), onConflict)
	return create, merge
}

// BulkUpsert writes rows in one transaction: COPY into a staging table that
// drops on commit, then INSERT ... ON CONFLICT into the target. Returns the
// number of target rows inserted or updated.
func BulkUpsert(ctx context.Context, pool Pool, cfg UpsertConfig, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := cfg.validate(); err != nil {
		return 0, err
	}
	create, merge := cfg.statements()

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert %s: begin", cfg.Table)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, create); err != nil {
		return 0, eris.Wrapf(err, "db: upsert %s: create staging table", cfg.Table)
	}
	if _, err := CopyRows(ctx, tx, cfg.stagingTable(), cfg.Columns, rows); err != nil {
		return 0, eris.Wrapf(err, "db: upsert %s", cfg.Table)
	}
	tag, err := tx.Exec(ctx, merge)
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert %s: merge staged rows", cfg.Table)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrapf(err, "db: upsert %s: commit", cfg.Table)
	}
	return tag.RowsAffected(), nil
}

func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
