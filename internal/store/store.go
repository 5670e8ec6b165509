// Package store persists scoring runs and their ranked segment scores.
package store

import (
	"context"
	"errors"
	"math"

	"github.com/sells-group/crash-cli/internal/model"
)

// ErrRunNotFound is returned when a run ID has no record.
var ErrRunNotFound = errors.New("run not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Dataset string `json:"dataset,omitempty"`
	Limit   int    `json:"limit,omitempty"`
	Offset  int    `json:"offset,omitempty"`
}

// Store defines the persistence interface for scoring runs.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, run model.Run) (*model.Run, error)
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Scores
	SaveScores(ctx context.Context, runID string, scores []model.SegmentScore) error
	TopScores(ctx context.Context, runID string, n int) ([]model.SegmentScore, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// scoreColumns is the column order of segment_scores rows.
var scoreColumns = []string{
	"run_id", "road_inv", "begmp", "endmp", "longitude", "latitude",
	"seg_lng", "observed", "spf", "weight", "safety", "arp", "rank",
}

// scoreKeyColumns identify a segment within a run.
var scoreKeyColumns = []string{"run_id", "road_inv", "begmp", "endmp"}

func scoreRow(runID string, s model.SegmentScore) []any {
	return []any{
		runID, s.Key.RoadInv, s.Key.BegMP, s.Key.EndMP, nullable(s.Longitude), nullable(s.Latitude),
		s.Length, s.Observed, s.SPF, s.Weight, s.Safety, s.ARP, s.Rank,
	}
}

// nullable maps NaN to SQL NULL.
func nullable(v float64) any {
	if math.IsNaN(v) {
		return nil
	}
	return v
}

func orNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

func listLimit(n int) int {
	if n <= 0 {
		return 100
	}
	return n
}
