// Package interval computes the variance of the NB linear predictor, the
// fitted Poisson mean, and 95% confidence and prediction intervals around it.
//
// Every function takes a design matrix whose columns line up with the model
// coefficients, intercept column included.
package interval

import (
	"math"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/sells-group/crash-cli/internal/model"
	"github.com/sells-group/crash-cli/internal/safety"
)

// Z975 is the 97.5th percentile of the standard normal distribution.
var Z975 = distuv.UnitNormal.Quantile(0.975)

// ResponseMultiplier widens the response interval for a discrete count. It
// is a fixed constant, not derived per model.
var ResponseMultiplier = math.Sqrt(19)

// Bound is a lower/upper interval pair.
type Bound struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// LinearPredictorVariance returns Var(eta) for each design row:
//
//	sum_i c_ii*d_i^2 + sum_{j<i} 2*c_ij*d_i*d_j
//
// over the model's coefficient covariance c.
func LinearPredictorVariance(m *model.NBModel, design mat.Matrix) ([]float64, error) {
	k := m.NumCoefficients()
	rows, cols := design.Dims()
	if cols != k {
		return nil, eris.Wrapf(model.ErrDimensionMismatch, "interval: design has %d columns, model has %d coefficients", cols, k)
	}
	if m.Covariance == nil || m.Covariance.SymmetricDim() != k {
		return nil, eris.Wrapf(model.ErrInvalidModel, "interval: covariance must be %dx%d", k, k)
	}

	variance := make([]float64, rows)
	for r := 0; r < rows; r++ {
		var v float64
		for i := 0; i < k; i++ {
			di := design.At(r, i)
			for j := 0; j <= i; j++ {
				if i == j {
					v += m.Covariance.At(i, i) * di * di
				} else {
					v += 2 * m.Covariance.At(i, j) * di * design.At(r, j)
				}
			}
		}
		variance[r] = v
	}
	return variance, nil
}

// MeanEstimate returns mu_hat = exp(sum_i beta_i*d_i) for each design row.
func MeanEstimate(m *model.NBModel, design mat.Matrix) ([]float64, error) {
	mu, err := m.Predict(design)
	if err != nil {
		return nil, eris.Wrap(err, "interval: mean estimate")
	}
	return mu, nil
}

// MeanConfidenceInterval returns the 95% confidence interval of the Poisson
// mean: [mu/exp(z*sqrt(v)), mu*exp(z*sqrt(v))].
func MeanConfidenceInterval(muHat, varEta []float64) ([]Bound, error) {
	if err := checkMeanAndVariance(muHat, varEta); err != nil {
		return nil, err
	}
	bounds := make([]Bound, len(muHat))
	for i, mu := range muHat {
		f := math.Exp(Z975 * math.Sqrt(varEta[i]))
		bounds[i] = Bound{Lower: mu / f, Upper: mu * f}
	}
	return bounds, nil
}

// ParameterPredictionInterval returns the 95% prediction interval of the
// Poisson parameter m (the site safety), lower bound clamped at zero.
func ParameterPredictionInterval(alpha float64, muHat, varEta []float64) ([]Bound, error) {
	if err := checkAlpha(alpha); err != nil {
		return nil, err
	}
	if err := checkMeanAndVariance(muHat, varEta); err != nil {
		return nil, err
	}
	bounds := make([]Bound, len(muHat))
	for i, mu := range muHat {
		half := Z975 * predictionSD(alpha, mu, varEta[i])
		bounds[i] = Bound{Lower: math.Max(0, mu-half), Upper: mu + half}
	}
	return bounds, nil
}

// ResponsePredictionInterval returns the prediction interval of a future
// crash count y. The lower bound is always 0. The upper bound is
// max(floor(mu + sqrt(19)*sd), mu), not the plain floor: when sd is small
// enough that flooring lands below mu, the unfloored mu is returned so the
// upper bound never falls under the mean.
func ResponsePredictionInterval(alpha float64, muHat, varEta []float64) ([]Bound, error) {
	if err := checkAlpha(alpha); err != nil {
		return nil, err
	}
	if err := checkMeanAndVariance(muHat, varEta); err != nil {
		return nil, err
	}
	bounds := make([]Bound, len(muHat))
	for i, mu := range muHat {
		upper := math.Floor(mu + ResponseMultiplier*predictionSD(alpha, mu, varEta[i]))
		bounds[i] = Bound{Lower: 0, Upper: math.Max(upper, mu)}
	}
	return bounds, nil
}

// predictionSD is sqrt(mu^2 * (alpha*(v+1) + v)).
func predictionSD(alpha, mu, v float64) float64 {
	return math.Sqrt(mu * mu * (alpha*(v+1) + v))
}

func checkAlpha(alpha float64) error {
	if !(alpha > 0) || math.IsInf(alpha, 0) {
		return eris.Wrapf(model.ErrInvalidModel, "interval: alpha %v must be finite and positive", alpha)
	}
	return nil
}

func checkMeanAndVariance(muHat, varEta []float64) error {
	if len(muHat) != len(varEta) {
		return eris.Wrapf(model.ErrDimensionMismatch, "interval: %d means for %d variances", len(muHat), len(varEta))
	}
	for i := range muHat {
		if !(muHat[i] > 0) || math.IsInf(muHat[i], 0) {
			return eris.Wrapf(model.ErrInvalidInput, "interval: mean %v at row %d must be finite and positive", muHat[i], i)
		}
		if !(varEta[i] >= 0) || math.IsInf(varEta[i], 0) {
			return eris.Wrapf(model.ErrInvalidInput, "interval: variance %v at row %d must be finite and non-negative", varEta[i], i)
		}
	}
	return nil
}

// Bands holds every interval for a set of evaluation points.
type Bands struct {
	Alpha      float64   `json:"alpha"`
	MuHat      []float64 `json:"mu_hat"`
	VarEta     []float64 `json:"var_eta_hat"`
	MeanCI     []Bound   `json:"ci_mu"`
	ParamPI    []Bound   `json:"pi_m"`
	ResponsePI []Bound   `json:"pi_y"`
}

// Estimate runs the full interval pipeline over a design matrix.
func Estimate(m *model.NBModel, design mat.Matrix) (*Bands, error) {
	alpha, err := safety.ComputeAlpha(m)
	if err != nil {
		return nil, err
	}
	varEta, err := LinearPredictorVariance(m, design)
	if err != nil {
		return nil, err
	}
	muHat, err := MeanEstimate(m, design)
	if err != nil {
		return nil, err
	}
	ci, err := MeanConfidenceInterval(muHat, varEta)
	if err != nil {
		return nil, err
	}
	piM, err := ParameterPredictionInterval(alpha, muHat, varEta)
	if err != nil {
		return nil, err
	}
	piY, err := ResponsePredictionInterval(alpha, muHat, varEta)
	if err != nil {
		return nil, err
	}
	return &Bands{
		Alpha:      alpha,
		MuHat:      muHat,
		VarEta:     varEta,
		MeanCI:     ci,
		ParamPI:    piM,
		ResponsePI: piY,
	}, nil
}

// Rows flattens the bands into one IntervalRow per evaluation point.
func (b *Bands) Rows() []model.IntervalRow {
	rows := make([]model.IntervalRow, len(b.MuHat))
	for i := range rows {
		rows[i] = model.IntervalRow{
			MuHat:  b.MuHat[i],
			VarEta: b.VarEta[i],
			LBCIMu: b.MeanCI[i].Lower,
			UBCIMu: b.MeanCI[i].Upper,
			LBPIM:  b.ParamPI[i].Lower,
			UBPIM:  b.ParamPI[i].Upper,
			LBPIY:  b.ResponsePI[i].Lower,
			UBPIY:  b.ResponsePI[i].Upper,
		}
	}
	return rows
}
