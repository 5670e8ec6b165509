package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/crash-cli/internal/db"
	"github.com/sells-group/crash-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const (
	insertRunSQL  = `INSERT INTO runs (id, dataset, model_name, alpha, segment_count, dropped, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	selectRunsSQL = `SELECT id, dataset, model_name, alpha, segment_count, dropped, created_at FROM runs`
	getRunSQL     = selectRunsSQL + ` WHERE id = $1`
	topScoresSQL  = `SELECT road_inv, begmp, endmp, longitude, latitude, seg_lng, observed, spf, weight, safety, arp, rank FROM segment_scores WHERE run_id = $1 ORDER BY rank LIMIT $2`
)

// preparedStatements are prepared on every new connection.
var preparedStatements = map[string]string{
	"insert_run": insertRunSQL,
	"get_run":    getRunSQL,
	"top_scores": topScoresSQL,
}

// poolConfig parses connString and applies pool sizing. Unset sizes keep
// the store defaults of 10 max and 2 min connections.
func poolConfig(connString string, poolCfg *PoolConfig) (*pgxpool.Config, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns, pgxCfg.MinConns = 10, 2
	if poolCfg != nil && poolCfg.MaxConns > 0 {
		pgxCfg.MaxConns = poolCfg.MaxConns
	}
	if poolCfg != nil && poolCfg.MinConns > 0 {
		pgxCfg.MinConns = poolCfg.MinConns
	}
	if pgxCfg.MinConns > pgxCfg.MaxConns {
		pgxCfg.MinConns = pgxCfg.MaxConns
	}
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute
	pgxCfg.AfterConnect = prepareStatements
	return pgxCfg, nil
}

func prepareStatements(ctx context.Context, conn *pgx.Conn) error {
	for name, query := range preparedStatements {
		if _, err := conn.Prepare(ctx, name, query); err != nil {
			return eris.Wrapf(err, "postgres: prepare %s", name)
		}
	}
	return nil
}

// NewPostgres connects a pool and verifies it with a ping.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := poolConfig(connString, poolCfg)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	dataset       TEXT NOT NULL,
	model_name    TEXT NOT NULL,
	alpha         DOUBLE PRECISION NOT NULL,
	segment_count INTEGER NOT NULL DEFAULT 0,
	dropped       INTEGER NOT NULL DEFAULT 0,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS segment_scores (
	run_id    TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	road_inv  TEXT NOT NULL,
	begmp     DOUBLE PRECISION NOT NULL,
	endmp     DOUBLE PRECISION NOT NULL,
	longitude DOUBLE PRECISION,
	latitude  DOUBLE PRECISION,
	seg_lng   DOUBLE PRECISION NOT NULL,
	observed  DOUBLE PRECISION NOT NULL,
	spf       DOUBLE PRECISION NOT NULL,
	weight    DOUBLE PRECISION NOT NULL,
	safety    DOUBLE PRECISION NOT NULL,
	arp       DOUBLE PRECISION NOT NULL,
	rank      INTEGER NOT NULL,
	PRIMARY KEY (run_id, road_inv, begmp, endmp)
);

CREATE INDEX IF NOT EXISTS idx_runs_dataset ON runs(dataset);
CREATE INDEX IF NOT EXISTS idx_segment_scores_rank ON segment_scores(run_id, rank);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, run model.Run) (*model.Run, error) {
	run.ID = uuid.New().String()
	run.CreatedAt = time.Now().UTC()

	_, err := s.pool.Exec(ctx, insertRunSQL,
		run.ID, run.Dataset, run.ModelName, run.Alpha, run.SegmentCount, run.Dropped, run.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return &run, nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx, getRunSQL, runID)
	r, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrRunNotFound, "postgres: get run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := selectRunsSQL + ` WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Dataset != "" {
		query += fmt.Sprintf(` AND dataset = $%d`, argIdx)
		args = append(args, filter.Dataset)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

// SaveScores bulk upserts scores keyed by run and segment.
func (s *PostgresStore) SaveScores(ctx context.Context, runID string, scores []model.SegmentScore) error {
	rows := make([][]any, len(scores))
	for i, sc := range scores {
		rows[i] = scoreRow(runID, sc)
	}
	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "segment_scores",
		Columns:      scoreColumns,
		ConflictKeys: scoreKeyColumns,
	}, rows)
	return eris.Wrapf(err, "postgres: save scores for run %s", runID)
}

func (s *PostgresStore) TopScores(ctx context.Context, runID string, n int) ([]model.SegmentScore, error) {
	rows, err := s.pool.Query(ctx, topScoresSQL, runID, listLimit(n))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: top scores for run %s", runID)
	}
	defer rows.Close()

	var scores []model.SegmentScore
	for rows.Next() {
		sc, err := scanScore(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan score")
		}
		scores = append(scores, sc)
	}
	return scores, eris.Wrap(rows.Err(), "postgres: top scores iterate")
}
