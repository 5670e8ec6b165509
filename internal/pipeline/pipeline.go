// Package pipeline scores segment datasets end to end: load, build the
// design, run the EB evaluation, rank, then persist and export.
package pipeline

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/crash-cli/internal/config"
	"github.com/sells-group/crash-cli/internal/dataset"
	"github.com/sells-group/crash-cli/internal/export"
	"github.com/sells-group/crash-cli/internal/merge"
	"github.com/sells-group/crash-cli/internal/model"
	"github.com/sells-group/crash-cli/internal/safety"
	"github.com/sells-group/crash-cli/internal/store"
)

// Pipeline scores datasets against one fitted model.
type Pipeline struct {
	cfg   *config.Config
	model *model.NBModel
	store store.Store // nil disables persistence
}

// New creates a Pipeline. st may be nil.
func New(cfg *config.Config, m *model.NBModel, st store.Store) *Pipeline {
	return &Pipeline{cfg: cfg, model: m, store: st}
}

// Result is the outcome of scoring one dataset.
type Result struct {
	RunID    string               `json:"run_id,omitempty"`
	Dataset  string               `json:"dataset"`
	Alpha    float64              `json:"alpha"`
	Segments int                  `json:"segments"`
	Dropped  int                  `json:"dropped"`
	Scores   []model.SegmentScore `json:"scores"` // ranked, limited to export.top
	Duration time.Duration        `json:"duration"`
}

func (p *Pipeline) designOptions() dataset.DesignOptions {
	return dataset.DesignOptions{
		LengthColumn:   p.cfg.Dataset.LengthColumn,
		ObservedColumn: p.cfg.Dataset.ObservedColumn,
		DropIncomplete: p.cfg.Dataset.DropIncomplete,
	}
}

func (p *Pipeline) loadOptions() dataset.Options {
	return dataset.Options{
		Encoding:  p.cfg.Dataset.Encoding,
		SheetName: p.cfg.Dataset.SheetName,
	}
}

// LoadDataset reads a segment file with the configured options. A .db or
// .sqlite path is read as a merge database's crash_data table.
func (p *Pipeline) LoadDataset(ctx context.Context, path string) (*dataset.Dataset, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite":
		return loadMerged(ctx, path)
	}
	return dataset.Load(ctx, path, p.loadOptions())
}

func loadMerged(ctx context.Context, path string) (*dataset.Dataset, error) {
	m, err := merge.Open(path)
	if err != nil {
		return nil, err
	}
	defer m.Close() //nolint:errcheck

	ds, err := m.Dataset(ctx)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: load %s", path)
	}
	ds.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return ds, nil
}

// Score loads and scores one dataset file.
func (p *Pipeline) Score(ctx context.Context, path string) (*Result, error) {
	ds, err := p.LoadDataset(ctx, path)
	if err != nil {
		return nil, err
	}
	return p.ScoreDataset(ctx, ds)
}

// ScoreDataset evaluates and ranks every complete segment of ds. When a
// store is configured the run and all of its scores are saved.
func (p *Pipeline) ScoreDataset(ctx context.Context, ds *dataset.Dataset) (*Result, error) {
	start := time.Now()
	log := zap.L().With(zap.String("dataset", ds.Name), zap.String("model", p.model.Name))

	d, err := dataset.BuildDesign(ds, p.model, p.designOptions())
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: design for %s", ds.Name)
	}
	if d.Dropped > 0 {
		log.Warn("pipeline: dropped incomplete segments", zap.Int("dropped", d.Dropped))
	}

	scores, err := safety.Evaluate(p.model, d.Matrix, d.Lengths, d.Observed)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: evaluate %s", ds.Name)
	}
	for i := range scores {
		seg := ds.Segments[d.Rows[i]]
		scores[i].Key = seg.Key
		scores[i].Longitude = seg.Longitude
		scores[i].Latitude = seg.Latitude
	}
	ranked := safety.Rank(scores)

	alpha, err := safety.ComputeAlpha(p.model)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Dataset:  ds.Name,
		Alpha:    alpha,
		Segments: len(ranked),
		Dropped:  d.Dropped,
	}

	if p.store != nil {
		run, err := p.store.CreateRun(ctx, model.Run{
			Dataset:      ds.Name,
			ModelName:    p.model.Name,
			Alpha:        alpha,
			SegmentCount: len(ranked),
			Dropped:      d.Dropped,
		})
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: create run")
		}
		if err := p.store.SaveScores(ctx, run.ID, ranked); err != nil {
			return nil, eris.Wrapf(err, "pipeline: save scores for run %s", run.ID)
		}
		res.RunID = run.ID
	}

	res.Scores, err = safety.Top(ranked, p.cfg.Export.Top)
	if err != nil {
		return nil, err
	}
	res.Duration = time.Since(start)

	log.Info("pipeline: ranked segments",
		zap.String("run_id", res.RunID),
		zap.Int("segments", res.Segments),
		zap.Float64("alpha", alpha),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}

// ScoreAll scores several dataset files concurrently, bounded by
// batch.max_concurrency. Results keep the order of paths.
func (p *Pipeline) ScoreAll(ctx context.Context, paths []string) ([]*Result, error) {
	results := make([]*Result, len(paths))

	g, gCtx := errgroup.WithContext(ctx)
	limit := p.cfg.Batch.MaxConcurrency
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)

	for i, path := range paths {
		g.Go(func() error {
			res, err := p.Score(gCtx, path)
			if err != nil {
				return eris.Wrapf(err, "pipeline: score %s", path)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Export writes a result's scores in the configured format.
func (p *Pipeline) Export(path string, res *Result) error {
	return export.WriteScores(path, res.Scores, export.Options{
		Format: p.cfg.Export.Format,
		Metric: p.cfg.Export.Metric,
	})
}
