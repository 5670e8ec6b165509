package dataset

import (
	"math"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/mat"

	"github.com/sells-group/crash-cli/internal/model"
)

// DesignOptions configures BuildDesign.
type DesignOptions struct {
	LengthColumn   string // default seg_lng
	ObservedColumn string // default tot_acc_ct
	// DropIncomplete skips rows with a missing predictor, length or count
	// instead of failing.
	DropIncomplete bool
}

// Design is the model-ready view of a dataset. Row i of Matrix, Keys,
// Lengths and Observed all describe Segments[Rows[i]].
type Design struct {
	Terms    []Term
	Matrix   *mat.Dense // intercept column first
	Keys     []model.SegmentKey
	Rows     []int
	Lengths  []float64
	Observed []float64
	Dropped  int
}

// Len returns the number of design rows.
func (d *Design) Len() int { return len(d.Rows) }

// WithIntercept returns a copy of predictors with a leading column of ones.
func WithIntercept(predictors mat.Matrix) *mat.Dense {
	rows, cols := predictors.Dims()
	out := mat.NewDense(rows, cols+1, nil)
	for i := 0; i < rows; i++ {
		out.Set(i, 0, 1)
		for j := 0; j < cols; j++ {
			out.Set(i, j+1, predictors.At(i, j))
		}
	}
	return out
}

// BuildDesign evaluates the model's terms over every segment.
func BuildDesign(ds *Dataset, m *model.NBModel, opts DesignOptions) (*Design, error) {
	if opts.LengthColumn == "" {
		opts.LengthColumn = model.ColSegLng
	}
	if opts.ObservedColumn == "" {
		opts.ObservedColumn = model.ColTotAccCt
	}
	terms, err := ParseTerms(m.PredictorTerms())
	if err != nil {
		return nil, err
	}

	d := &Design{Terms: terms}
	var data []float64
	for i := range ds.Segments {
		seg := &ds.Segments[i]
		row := make([]float64, len(terms))
		complete := true
		for j, t := range terms {
			v, err := t.Value(seg)
			if err != nil {
				return nil, eris.Wrapf(err, "dataset: %s", seg.Key)
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				complete = false
			}
			row[j] = v
		}

		length, okL := seg.Numeric(opts.LengthColumn)
		observed, okO := seg.Numeric(opts.ObservedColumn)
		if !okL {
			return nil, eris.Wrapf(model.ErrInvalidInput, "dataset: missing length column %q", opts.LengthColumn)
		}
		if !okO {
			return nil, eris.Wrapf(model.ErrInvalidInput, "dataset: missing observed column %q", opts.ObservedColumn)
		}
		if math.IsNaN(length) || math.IsNaN(observed) {
			complete = false
		}

		if !complete {
			if opts.DropIncomplete {
				d.Dropped++
				continue
			}
			return nil, eris.Wrapf(model.ErrInvalidInput, "dataset: %s has missing values", seg.Key)
		}

		data = append(data, row...)
		d.Keys = append(d.Keys, seg.Key)
		d.Rows = append(d.Rows, i)
		d.Lengths = append(d.Lengths, length)
		d.Observed = append(d.Observed, observed)
	}

	if len(d.Rows) == 0 {
		return nil, eris.Wrapf(model.ErrInvalidInput, "dataset: %s has no complete rows", ds.Name)
	}
	k := len(terms)
	d.Matrix = mat.NewDense(len(d.Rows), k+1, nil)
	for i := range d.Rows {
		d.Matrix.Set(i, 0, 1)
		for j := 0; j < k; j++ {
			d.Matrix.Set(i, j+1, data[i*k+j])
		}
	}
	return d, nil
}
