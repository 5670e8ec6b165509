// Package merge builds the multi-year crash_data table from the annual
// roadway, crash, curvature and grade extracts and the shared elevation file.
//
// Every year is merged in a SQLite work database into a data_YY table, which
// is cached across runs. The years are then joined on segment key into
// crash_data with per-year AADT and crash counts, their average and total.
package merge

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sells-group/crash-cli/internal/fetcher"
	"github.com/sells-group/crash-cli/internal/model"
)

// CrashDataTable is the merged multi-year table.
const CrashDataTable = "crash_data"

// ElevationFile is shared by every year.
const ElevationFile = "wa_elev.csv"

// DefaultYears are the study years of the HSIS extracts.
var DefaultYears = []string{"06", "07", "08", "09", "10", "11"}

var yearPattern = regexp.MustCompile(`^\d{2}$`)

// Options configures a merge run.
type Options struct {
	DataDir string   // directory holding the annual CSV extracts
	Years   []string // two-digit years; defaults to DefaultYears
	Archive string   // optional ZIP of extracts unpacked into DataDir first
	Force   bool     // rebuild cached data_YY tables
	CSV     fetcher.CSVOptions
}

// Result summarizes a merge run.
type Result struct {
	Years    []string      `json:"years"`
	Built    []string      `json:"built"`
	Cached   []string      `json:"cached"`
	Segments int           `json:"segments"`
	Duration time.Duration `json:"duration"`
}

// Merger runs merges against a SQLite work database.
type Merger struct {
	db *sql.DB
}

// Open opens (or creates) the work database at path.
func Open(path string) (*Merger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "merge: open database")
	}
	// Staging tables and views live on one connection.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "merge: set journal mode")
	}
	return &Merger{db: db}, nil
}

// Close closes the work database.
func (m *Merger) Close() error {
	return m.db.Close()
}

// years returns the configured years or the defaults.
func (o Options) years() ([]string, error) {
	years := o.Years
	if len(years) == 0 {
		years = DefaultYears
	}
	seen := make(map[string]bool, len(years))
	for _, y := range years {
		if !yearPattern.MatchString(y) {
			return nil, eris.Wrapf(model.ErrInvalidInput, "merge: year %q is not two digits", y)
		}
		if seen[y] {
			return nil, eris.Wrapf(model.ErrInvalidInput, "merge: year %q listed twice", y)
		}
		seen[y] = true
	}
	return years, nil
}

// Run builds any missing data_YY tables and rebuilds crash_data.
func (m *Merger) Run(ctx context.Context, opts Options) (*Result, error) {
	start := time.Now()
	years, err := opts.years()
	if err != nil {
		return nil, err
	}

	if opts.Archive != "" {
		files, err := fetcher.ExtractZIP(opts.Archive, opts.DataDir, ".csv")
		if err != nil {
			return nil, eris.Wrapf(err, "merge: unpack %s", opts.Archive)
		}
		zap.L().Info("merge: unpacked archive",
			zap.String("archive", opts.Archive),
			zap.Int("files", len(files)),
		)
	}

	res := &Result{Years: years}
	elevLoaded := false
	for _, year := range years {
		table := annualTable(year)
		exists, err := m.tableExists(ctx, table)
		if err != nil {
			return nil, err
		}
		if exists && !opts.Force {
			res.Cached = append(res.Cached, year)
			continue
		}
		if !elevLoaded {
			if err := m.loadCSV(ctx, "elev", filepath.Join(opts.DataDir, ElevationFile), opts.CSV); err != nil {
				return nil, err
			}
			elevLoaded = true
		}
		if err := m.buildYear(ctx, opts, year); err != nil {
			return nil, err
		}
		res.Built = append(res.Built, year)
	}

	n, err := m.buildCrashData(ctx, years)
	if err != nil {
		return nil, err
	}
	res.Segments = n
	res.Duration = time.Since(start)

	zap.L().Info("merge: crash data built",
		zap.Strings("built", res.Built),
		zap.Strings("cached", res.Cached),
		zap.Int("segments", n),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}

func annualTable(year string) string {
	return "data_" + year
}

func (m *Merger) tableExists(ctx context.Context, name string) (bool, error) {
	var n int
	err := m.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name,
	).Scan(&n)
	if err != nil {
		return false, eris.Wrapf(err, "merge: look up table %s", name)
	}
	return n > 0, nil
}

func (m *Merger) exec(ctx context.Context, stmts ...string) error {
	for _, s := range stmts {
		if _, err := m.db.ExecContext(ctx, s); err != nil {
			return eris.Wrapf(err, "merge: exec %s", firstLine(s))
		}
	}
	return nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func quoteIdent(name string) string {
	return fmt.Sprintf(`"%s"`, strings.ReplaceAll(name, `"`, `""`))
}
