package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/sells-group/crash-cli/internal/dataset"
	"github.com/sells-group/crash-cli/internal/fetcher"
	"github.com/sells-group/crash-cli/internal/interval"
	"github.com/sells-group/crash-cli/internal/model"
)

// IntervalResult holds interval rows and, for a sweep, the swept values.
type IntervalResult struct {
	Alpha float64             `json:"alpha"`
	Term  string              `json:"term,omitempty"`
	X     []float64           `json:"x,omitempty"`
	Rows  []model.IntervalRow `json:"rows"`
}

// Intervals estimates every interval over an explicit design matrix that
// includes the intercept column.
func (p *Pipeline) Intervals(design mat.Matrix) (*IntervalResult, error) {
	bands, err := interval.Estimate(p.model, design)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: estimate intervals")
	}
	return &IntervalResult{Alpha: bands.Alpha, Rows: bands.Rows()}, nil
}

// IntervalsFromFile reads a design table (one column per predictor term)
// and estimates its intervals.
func (p *Pipeline) IntervalsFromFile(ctx context.Context, path string) (*IntervalResult, error) {
	t, err := fetcher.ReadCSVFile(ctx, path, fetcher.CSVOptions{Encoding: p.cfg.Dataset.Encoding, TrimSpace: true})
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: read design %s", path)
	}
	design, err := dataset.ReadDesign(t, p.model)
	if err != nil {
		return nil, err
	}
	res, err := p.Intervals(design)
	if err != nil {
		return nil, err
	}
	zap.L().Info("pipeline: intervals estimated",
		zap.String("design", path),
		zap.Int("rows", len(res.Rows)),
	)
	return res, nil
}

// IntervalsSweep varies one term over a dataset's range of interest with
// the other terms held at their means, then estimates the intervals.
func (p *Pipeline) IntervalsSweep(ctx context.Context, path string, opts dataset.SweepOptions) (*IntervalResult, error) {
	ds, err := p.LoadDataset(ctx, path)
	if err != nil {
		return nil, err
	}
	sweep, err := dataset.Sweep(ds, p.model, opts, p.designOptions())
	if err != nil {
		return nil, err
	}
	res, err := p.Intervals(sweep.Matrix)
	if err != nil {
		return nil, err
	}
	res.Term = sweep.Term
	res.X = sweep.X

	zap.L().Info("pipeline: interval sweep estimated",
		zap.String("dataset", ds.Name),
		zap.String("term", sweep.Term),
		zap.Int("steps", len(sweep.X)),
	)
	return res, nil
}
