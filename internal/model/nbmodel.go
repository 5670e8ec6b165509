package model

import (
	"math"
	"os"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"
)

// InterceptTerm is the name of coefficient 0.
const InterceptTerm = "Intercept"

// NBModel is a fitted negative-binomial regression with a log link. It is
// produced by an external statistics package and treated as immutable once
// loaded; share it freely across goroutines but never modify it.
type NBModel struct {
	Name string
	// Terms names each coefficient; Terms[0] is the intercept.
	Terms []string
	// Coefficients are the fitted betas, index 0 = intercept.
	Coefficients []float64
	// Scale is the NB scale parameter; alpha = 1/Scale.
	Scale float64
	// Covariance is the normalized k×k coefficient covariance matrix.
	Covariance *mat.SymDense
}

// nbModelFile is the YAML layout of a model file.
type nbModelFile struct {
	Name         string      `yaml:"name"`
	Family       string      `yaml:"family"`
	Link         string      `yaml:"link"`
	Terms        []string    `yaml:"terms"`
	Coefficients []float64   `yaml:"coefficients"`
	Scale        float64     `yaml:"scale"`
	Covariance   [][]float64 `yaml:"covariance"`
}

// LoadNBModel reads a fitted model from a YAML file.
func LoadNBModel(path string) (*NBModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "model: read %s", path)
	}
	return ParseNBModel(data)
}

// ParseNBModel decodes a YAML model document and validates its shape.
func ParseNBModel(data []byte) (*NBModel, error) {
	var f nbModelFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "model: decode yaml")
	}
	if f.Family != "" && f.Family != "negative_binomial" {
		return nil, eris.Wrapf(ErrInvalidModel, "model: unsupported family %q", f.Family)
	}
	if f.Link != "" && f.Link != "log" {
		return nil, eris.Wrapf(ErrInvalidModel, "model: unsupported link %q", f.Link)
	}

	k := len(f.Coefficients)
	if len(f.Covariance) != k {
		return nil, eris.Wrapf(ErrInvalidModel, "model: covariance has %d rows, want %d", len(f.Covariance), k)
	}
	flat := make([]float64, 0, k*k)
	for i, row := range f.Covariance {
		if len(row) != k {
			return nil, eris.Wrapf(ErrInvalidModel, "model: covariance row %d has %d columns, want %d", i, len(row), k)
		}
		flat = append(flat, row...)
	}
	for i := 0; i < k; i++ {
		for j := 0; j < i; j++ {
			if math.Abs(f.Covariance[i][j]-f.Covariance[j][i]) > 1e-9*(1+math.Abs(f.Covariance[i][j])) {
				return nil, eris.Wrapf(ErrInvalidModel, "model: covariance not symmetric at (%d,%d)", i, j)
			}
		}
	}

	m := &NBModel{
		Name:         f.Name,
		Terms:        f.Terms,
		Coefficients: f.Coefficients,
		Scale:        f.Scale,
	}
	if k > 0 {
		m.Covariance = mat.NewSymDense(k, flat)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks the structural invariants of the model: at least one
// coefficient, a named term per coefficient starting with the intercept,
// and a k×k covariance. The scale is checked where alpha is derived.
func (m *NBModel) Validate() error {
	k := len(m.Coefficients)
	if k == 0 {
		return eris.Wrap(ErrInvalidModel, "model: no coefficients")
	}
	if len(m.Terms) != k {
		return eris.Wrapf(ErrInvalidModel, "model: %d terms for %d coefficients", len(m.Terms), k)
	}
	if m.Terms[0] != InterceptTerm {
		return eris.Wrapf(ErrInvalidModel, "model: first term is %q, want %q", m.Terms[0], InterceptTerm)
	}
	for i, b := range m.Coefficients {
		if math.IsNaN(b) || math.IsInf(b, 0) {
			return eris.Wrapf(ErrInvalidModel, "model: coefficient %d (%s) is not finite", i, m.Terms[i])
		}
	}
	if m.Covariance == nil || m.Covariance.SymmetricDim() != k {
		return eris.Wrapf(ErrInvalidModel, "model: covariance must be %dx%d", k, k)
	}
	return nil
}

// NumCoefficients returns k, the number of coefficients including the intercept.
func (m *NBModel) NumCoefficients() int {
	return len(m.Coefficients)
}

// PredictorTerms returns the term names after the intercept.
func (m *NBModel) PredictorTerms() []string {
	if len(m.Terms) == 0 {
		return nil
	}
	return m.Terms[1:]
}

// LinearPredictor returns eta = D·beta for each row of the design matrix.
func (m *NBModel) LinearPredictor(design mat.Matrix) ([]float64, error) {
	rows, cols := design.Dims()
	if cols != len(m.Coefficients) {
		return nil, eris.Wrapf(ErrDimensionMismatch, "model: design has %d columns, model has %d coefficients", cols, len(m.Coefficients))
	}
	if rows == 0 {
		return []float64{}, nil
	}
	beta := mat.NewVecDense(cols, m.Coefficients)
	eta := mat.NewVecDense(rows, nil)
	eta.MulVec(design, beta)
	return eta.RawVector().Data, nil
}

// Predict returns the expected count exp(eta) for each row, inverting the
// log link.
func (m *NBModel) Predict(design mat.Matrix) ([]float64, error) {
	eta, err := m.LinearPredictor(design)
	if err != nil {
		return nil, err
	}
	mu := make([]float64, len(eta))
	for i, e := range eta {
		mu[i] = math.Exp(e)
	}
	return mu, nil
}
