package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scoreUpsert() UpsertConfig {
	return UpsertConfig{
		Table:        "segment_scores",
		Columns:      []string{"run_id", "road_inv", "arp"},
		ConflictKeys: []string{"run_id", "road_inv"},
	}
}

func TestUpsertConfig_Validate(t *testing.T) {
	cfg := scoreUpsert()
	cfg.Columns = nil
	assert.ErrorContains(t, cfg.validate(), "no columns")

	cfg = scoreUpsert()
	cfg.ConflictKeys = nil
	assert.ErrorContains(t, cfg.validate(), "no conflict keys")

	assert.NoError(t, scoreUpsert().validate())
}

func TestUpsertConfig_UpdateColumns(t *testing.T) {
	assert.Equal(t, []string{"arp"}, scoreUpsert().updateColumns())

	cfg := scoreUpsert()
	cfg.UpdateCols = []string{}
	assert.Empty(t, cfg.updateColumns())
}

func TestUpsertConfig_Statements(t *testing.T) {
	cfg := scoreUpsert()
	cfg.Table = "crash.segment_scores"

	create, merge := cfg.statements()
	assert.Equal(t, `CREATE TEMP TABLE "crash_segment_scores_stage" (LIKE "crash"."segment_scores" INCLUDING DEFAULTS) ON COMMIT DROP`, create)
	assert.Equal(t, `INSERT INTO "crash"."segment_scores" ("run_id", "road_inv", "arp") SELECT "run_id", "road_inv", "arp" FROM "crash_segment_scores_stage" ON CONFLICT ("run_id", "road_inv") DO UPDATE SET "arp" = EXCLUDED."arp"`, merge)

	cfg.UpdateCols = []string{}
	_, merge = cfg.statements()
	assert.Contains(t, merge, "DO NOTHING")
}

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(context.Background(), nil, scoreUpsert(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestBulkUpsert_InvalidConfig(t *testing.T) {
	cfg := scoreUpsert()
	cfg.ConflictKeys = nil
	_, err := BulkUpsert(context.Background(), nil, cfg, [][]any{{"r1", "002", 1.5}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys")
}

func TestBulkUpsert_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cfg := scoreUpsert()
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"segment_scores_stage"}, cfg.Columns).WillReturnResult(2)
	mock.ExpectExec(`ON CONFLICT \("run_id", "road_inv"\) DO UPDATE SET "arp" = EXCLUDED."arp"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := BulkUpsert(context.Background(), mock, cfg, [][]any{{"r1", "002", 1.5}, {"r1", "005", 0.3}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_BeginError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin().WillReturnError(errors.New("db error"))

	_, err = BulkUpsert(context.Background(), mock, scoreUpsert(), [][]any{{"r1", "002", 1.5}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "begin")
}

func TestBulkUpsert_MergeError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cfg := scoreUpsert()
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"segment_scores_stage"}, cfg.Columns).WillReturnResult(1)
	mock.ExpectExec("ON CONFLICT").WillReturnError(errors.New("unique violation"))
	mock.ExpectRollback()

	_, err = BulkUpsert(context.Background(), mock, cfg, [][]any{{"r1", "002", 1.5}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "merge staged rows")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuoteAndJoin(t *testing.T) {
	assert.Equal(t, `"run_id", "road_inv", "arp"`, quoteAndJoin([]string{"run_id", "road_inv", "arp"}))
}
