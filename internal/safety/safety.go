// Package safety applies a fitted negative-binomial safety performance
// function (SPF) to road segments and derives empirical-Bayes (EB) safety
// estimates and accident-reduction potential (ARP) for treatment ranking.
//
// Every function is pure: the model and inputs are read, never modified, and
// output element i always corresponds to input row i.
package safety

import (
	"math"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/mat"

	"github.com/sells-group/crash-cli/internal/model"
)

// ComputeSPF returns the expected crash count exp(x·beta) for every row of
// predictors. predictors must include the intercept column. A row whose
// prediction overflows, underflows to 0 or is NaN is ErrInvalidInput.
func ComputeSPF(m *model.NBModel, predictors mat.Matrix) ([]float64, error) {
	spf, err := m.Predict(predictors)
	if err != nil {
		return nil, eris.Wrap(err, "safety: compute spf")
	}
	for i, v := range spf {
		if !(v > 0) || math.IsInf(v, 0) {
			return nil, eris.Wrapf(model.ErrInvalidInput, "safety: spf %v at row %d must be finite and positive", v, i)
		}
	}
	return spf, nil
}

// ComputeAlpha returns the NB dispersion parameter alpha = 1/scale.
func ComputeAlpha(m *model.NBModel) (float64, error) {
	if math.IsNaN(m.Scale) || math.IsInf(m.Scale, 0) || m.Scale <= 0 {
		return 0, eris.Wrapf(model.ErrInvalidModel, "safety: scale %v must be finite and positive", m.Scale)
	}
	return 1 / m.Scale, nil
}

// ComputeEBWeights returns w_i = 1/(1 + spf_i/(alpha*L_i)) for each segment,
// with the length exponent fixed at 1.
func ComputeEBWeights(m *model.NBModel, predictors mat.Matrix, segmentLengths []float64) ([]float64, error) {
	c, err := components(m, predictors, segmentLengths)
	if err != nil {
		return nil, err
	}
	return c.w, nil
}

// EstimateEmpiricalBayes returns pi_i = w_i*spf_i + (1-w_i)*observed_i, the
// EB safety of each segment.
func EstimateEmpiricalBayes(m *model.NBModel, predictors mat.Matrix, segmentLengths, observed []float64) ([]float64, error) {
	c, err := components(m, predictors, segmentLengths)
	if err != nil {
		return nil, err
	}
	if err := checkObserved(observed, len(c.spf)); err != nil {
		return nil, err
	}
	pi := make([]float64, len(c.spf))
	for i := range pi {
		pi[i] = ebSafety(c.w[i], c.spf[i], observed[i])
	}
	return pi, nil
}

// CalcAccidentReductionPotential returns arp_i = (1-w_i)*(observed_i - spf_i).
// Positive values mark segments performing worse than their SPF predicts.
func CalcAccidentReductionPotential(m *model.NBModel, predictors mat.Matrix, segmentLengths, observed []float64) ([]float64, error) {
	c, err := components(m, predictors, segmentLengths)
	if err != nil {
		return nil, err
	}
	if err := checkObserved(observed, len(c.spf)); err != nil {
		return nil, err
	}
	arp := make([]float64, len(c.spf))
	for i := range arp {
		arp[i] = (1 - c.w[i]) * (observed[i] - c.spf[i])
	}
	return arp, nil
}

// ebComponents holds the per-row quantities shared by the EB operations.
type ebComponents struct {
	alpha float64
	spf   []float64
	w     []float64
}

func components(m *model.NBModel, predictors mat.Matrix, segmentLengths []float64) (*ebComponents, error) {
	alpha, err := ComputeAlpha(m)
	if err != nil {
		return nil, err
	}
	rows, _ := predictors.Dims()
	if len(segmentLengths) != rows {
		return nil, eris.Wrapf(model.ErrDimensionMismatch, "safety: %d segment lengths for %d predictor rows", len(segmentLengths), rows)
	}
	for i, l := range segmentLengths {
		if !(l > 0) || math.IsInf(l, 0) {
			return nil, eris.Wrapf(model.ErrInvalidInput, "safety: segment length %v at row %d must be finite and positive", l, i)
		}
	}
	spf, err := ComputeSPF(m, predictors)
	if err != nil {
		return nil, err
	}
	w := make([]float64, rows)
	for i := range w {
		w[i] = 1 / (1 + spf[i]/(alpha*segmentLengths[i]))
	}
	return &ebComponents{alpha: alpha, spf: spf, w: w}, nil
}

func checkObserved(observed []float64, rows int) error {
	if len(observed) != rows {
		return eris.Wrapf(model.ErrDimensionMismatch, "safety: %d observed counts for %d predictor rows", len(observed), rows)
	}
	for i, o := range observed {
		if !(o >= 0) || math.IsInf(o, 0) {
			return eris.Wrapf(model.ErrInvalidInput, "safety: observed count %v at row %d must be finite and non-negative", o, i)
		}
	}
	return nil
}

// ebSafety is the weighted average of predicted and observed counts, held
// inside [min(spf, observed), max(spf, observed)] against rounding.
func ebSafety(w, spf, observed float64) float64 {
	pi := w*spf + (1-w)*observed
	lo, hi := math.Min(spf, observed), math.Max(spf, observed)
	return math.Max(lo, math.Min(hi, pi))
}
