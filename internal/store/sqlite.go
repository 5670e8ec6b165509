package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/crash-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// sqlitePragmas are applied by the driver to every pooled connection.
var sqlitePragmas = []string{
	"busy_timeout(5000)",
	"foreign_keys(1)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
}

// sqliteDSN appends the connection pragmas to dsn as _pragma parameters.
func sqliteDSN(dsn string) string {
	params := make([]string, len(sqlitePragmas))
	for i, p := range sqlitePragmas {
		params[i] = "_pragma=" + p
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}

// NewSQLite opens a SQLite database at the given path in WAL mode. Writes go
// through a single connection so concurrent runs queue instead of failing
// with SQLITE_BUSY.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", sqliteDSN(dsn))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "sqlite: connect")
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	dataset       TEXT NOT NULL,
	model_name    TEXT NOT NULL,
	alpha         REAL NOT NULL,
	segment_count INTEGER NOT NULL DEFAULT 0,
	dropped       INTEGER NOT NULL DEFAULT 0,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS segment_scores (
	run_id    TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	road_inv  TEXT NOT NULL,
	begmp     REAL NOT NULL,
	endmp     REAL NOT NULL,
	longitude REAL,
	latitude  REAL,
	seg_lng   REAL NOT NULL,
	observed  REAL NOT NULL,
	spf       REAL NOT NULL,
	weight    REAL NOT NULL,
	safety    REAL NOT NULL,
	arp       REAL NOT NULL,
	rank      INTEGER NOT NULL,
	PRIMARY KEY (run_id, road_inv, begmp, endmp)
);

CREATE INDEX IF NOT EXISTS idx_runs_dataset ON runs(dataset);
CREATE INDEX IF NOT EXISTS idx_segment_scores_rank ON segment_scores(run_id, rank);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run model.Run) (*model.Run, error) {
	run.ID = uuid.New().String()
	run.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, dataset, model_name, alpha, segment_count, dropped, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Dataset, run.ModelName, run.Alpha, run.SegmentCount, run.Dropped, run.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return &run, nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, dataset, model_name, alpha, segment_count, dropped, created_at FROM runs WHERE id = ?`,
		runID,
	)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrRunNotFound, "sqlite: get run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	return r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, dataset, model_name, alpha, segment_count, dropped, created_at FROM runs WHERE 1=1`
	var args []any

	if filter.Dataset != "" {
		query += ` AND dataset = ?`
		args = append(args, filter.Dataset)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// SaveScores writes scores in one transaction, replacing any earlier score
// for the same segment of the run.
func (s *SQLiteStore) SaveScores(ctx context.Context, runID string, scores []model.SegmentScore) error {
	if len(scores) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save scores")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO segment_scores
		(run_id, road_inv, begmp, endmp, longitude, latitude, seg_lng, observed, spf, weight, safety, arp, rank)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare save scores")
	}
	defer stmt.Close() //nolint:errcheck

	for _, sc := range scores {
		if _, err := stmt.ExecContext(ctx, scoreRow(runID, sc)...); err != nil {
			return eris.Wrapf(err, "sqlite: insert score %s for run %s", sc.Key, runID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit save scores")
}

func (s *SQLiteStore) TopScores(ctx context.Context, runID string, n int) ([]model.SegmentScore, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT road_inv, begmp, endmp, longitude, latitude, seg_lng, observed, spf, weight, safety, arp, rank
		FROM segment_scores WHERE run_id = ? ORDER BY rank LIMIT ?`,
		runID, listLimit(n),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: top scores for run %s", runID)
	}
	defer rows.Close() //nolint:errcheck

	var scores []model.SegmentScore
	for rows.Next() {
		sc, err := scanScore(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan score")
		}
		scores = append(scores, sc)
	}
	return scores, eris.Wrap(rows.Err(), "sqlite: top scores iterate")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	if err := row.Scan(&r.ID, &r.Dataset, &r.ModelName, &r.Alpha, &r.SegmentCount, &r.Dropped, &r.CreatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

func scanScore(row scannable) (model.SegmentScore, error) {
	var (
		sc       model.SegmentScore
		lon, lat *float64
	)
	err := row.Scan(&sc.Key.RoadInv, &sc.Key.BegMP, &sc.Key.EndMP, &lon, &lat,
		&sc.Length, &sc.Observed, &sc.SPF, &sc.Weight, &sc.Safety, &sc.ARP, &sc.Rank)
	if err != nil {
		return sc, err
	}
	sc.Longitude, sc.Latitude = orNaN(lon), orNaN(lat)
	return sc, nil
}
