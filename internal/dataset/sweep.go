package dataset

import (
	"math"

	"github.com/montanaflynn/stats"
	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/mat"

	"github.com/sells-group/crash-cli/internal/fetcher"
	"github.com/sells-group/crash-cli/internal/model"
)

// ReadDesign reads an explicit design table whose headers name the model's
// predictor terms. An intercept column is optional and ignored. A log term
// may be supplied through its raw column instead.
func ReadDesign(t *fetcher.Table, m *model.NBModel) (*mat.Dense, error) {
	terms, err := ParseTerms(m.PredictorTerms())
	if err != nil {
		return nil, err
	}
	if len(t.Rows) == 0 {
		return nil, eris.Wrap(model.ErrInvalidInput, "dataset: design table has no rows")
	}

	type source struct {
		col       int
		transform TermKind
	}
	sources := make([]source, len(terms))
	for j, term := range terms {
		if c := t.Column(term.Name); c >= 0 {
			sources[j] = source{col: c, transform: TermColumn}
			continue
		}
		if term.Kind == TermLog {
			if c := t.Column(term.Column); c >= 0 {
				sources[j] = source{col: c, transform: TermLog}
				continue
			}
		}
		return nil, eris.Wrapf(model.ErrDimensionMismatch, "dataset: design table has no column for term %q", term.Name)
	}

	out := mat.NewDense(len(t.Rows), len(terms)+1, nil)
	for i, row := range t.Rows {
		out.Set(i, 0, 1)
		for j, src := range sources {
			var cell string
			if src.col < len(row) {
				cell = row[src.col]
			}
			v, err := ParseNumber(cell)
			if err != nil || math.IsNaN(v) {
				return nil, eris.Wrapf(model.ErrInvalidInput, "dataset: design row %d term %q: bad value %q", i+1, terms[j].Name, cell)
			}
			v = Transform(src.transform, v)
			if math.IsNaN(v) {
				return nil, eris.Wrapf(model.ErrInvalidInput, "dataset: design row %d term %q: log of non-positive value %q", i+1, terms[j].Name, cell)
			}
			out.Set(i, j+1, v)
		}
	}
	return out, nil
}

// SweepOptions configures Sweep.
type SweepOptions struct {
	Term  string  // predictor term or its raw column
	From  float64 // raw column value at the first row
	To    float64 // raw column value at the last row
	Steps int     // number of rows, at least 2
}

// SweepResult is a design matrix that varies one term.
type SweepResult struct {
	Term   string
	X      []float64 // raw column value per row
	Matrix *mat.Dense
}

// Sweep builds a design matrix that moves one term across [From, To] while
// every other term is held at its mean over the complete rows of ds.
func Sweep(ds *Dataset, m *model.NBModel, opts SweepOptions, design DesignOptions) (*SweepResult, error) {
	if opts.Steps < 2 {
		return nil, eris.Wrapf(model.ErrInvalidInput, "dataset: sweep needs at least 2 steps, got %d", opts.Steps)
	}
	if math.IsNaN(opts.From) || math.IsNaN(opts.To) || math.IsInf(opts.From, 0) || math.IsInf(opts.To, 0) {
		return nil, eris.Wrap(model.ErrInvalidInput, "dataset: sweep range must be finite")
	}

	design.DropIncomplete = true
	d, err := BuildDesign(ds, m, design)
	if err != nil {
		return nil, err
	}

	target := -1
	for j, t := range d.Terms {
		if t.Name == opts.Term || (t.Kind != TermIndicator && t.Column == opts.Term) {
			target = j
			break
		}
	}
	if target < 0 {
		return nil, eris.Wrapf(model.ErrInvalidInput, "dataset: model has no term %q", opts.Term)
	}
	term := d.Terms[target]
	if term.Kind == TermIndicator {
		return nil, eris.Wrapf(model.ErrInvalidInput, "dataset: cannot sweep indicator term %q", term.Name)
	}

	rows, cols := d.Matrix.Dims()
	means := make([]float64, cols)
	means[0] = 1
	for j := 1; j < cols; j++ {
		mean, err := stats.Mean(mat.Col(nil, j, d.Matrix))
		if err != nil {
			return nil, eris.Wrapf(err, "dataset: mean of %q over %d rows", d.Terms[j-1].Name, rows)
		}
		means[j] = mean
	}

	res := &SweepResult{
		Term:   term.Name,
		X:      make([]float64, opts.Steps),
		Matrix: mat.NewDense(opts.Steps, cols, nil),
	}
	step := (opts.To - opts.From) / float64(opts.Steps-1)
	for i := 0; i < opts.Steps; i++ {
		x := opts.From + float64(i)*step
		v := Transform(term.Kind, x)
		if math.IsNaN(v) {
			return nil, eris.Wrapf(model.ErrInvalidInput, "dataset: sweep value %v is outside the domain of %q", x, term.Name)
		}
		res.X[i] = x
		res.Matrix.SetRow(i, means)
		res.Matrix.Set(i, target+1, v)
	}
	return res, nil
}
