package model

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

const twoLaneRural = `
name: wa-rural-2lane
family: negative_binomial
link: log
terms: [Intercept, log_avg_aadt, lanewid]
coefficients: [-6.12, 0.71, -0.05]
scale: 2.0
covariance:
  - [0.2100, -0.0180, -0.0041]
  - [-0.0180, 0.0021, 0.0001]
  - [-0.0041, 0.0001, 0.0009]
`

func TestParseNBModel(t *testing.T) {
	t.Parallel()

	m, err := ParseNBModel([]byte(twoLaneRural))
	require.NoError(t, err)

	assert.Equal(t, "wa-rural-2lane", m.Name)
	assert.Equal(t, 3, m.NumCoefficients())
	assert.Equal(t, []string{"log_avg_aadt", "lanewid"}, m.PredictorTerms())
	assert.Equal(t, 2.0, m.Scale)
	require.NotNil(t, m.Covariance)
	assert.Equal(t, 3, m.Covariance.SymmetricDim())
	assert.Equal(t, -0.018, m.Covariance.At(1, 0))
	assert.Equal(t, 0.0001, m.Covariance.At(2, 1))
}

func TestParseNBModel_Rejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		doc  string
	}{
		{"poisson family", "family: poisson\nterms: [Intercept]\ncoefficients: [1]\nscale: 1\ncovariance: [[1]]"},
		{"identity link", "link: identity\nterms: [Intercept]\ncoefficients: [1]\nscale: 1\ncovariance: [[1]]"},
		{"short covariance", "terms: [Intercept, x]\ncoefficients: [1, 2]\nscale: 1\ncovariance: [[1, 0]]"},
		{"ragged covariance", "terms: [Intercept, x]\ncoefficients: [1, 2]\nscale: 1\ncovariance: [[1, 0], [0]]"},
		{"asymmetric covariance", "terms: [Intercept, x]\ncoefficients: [1, 2]\nscale: 1\ncovariance: [[1, 0.5], [0.2, 1]]"},
		{"no coefficients", "terms: []\ncoefficients: []\nscale: 1\ncovariance: []"},
		{"missing intercept", "terms: [x]\ncoefficients: [1]\nscale: 1\ncovariance: [[1]]"},
		{"term count", "terms: [Intercept]\ncoefficients: [1, 2]\nscale: 1\ncovariance: [[1, 0], [0, 1]]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseNBModel([]byte(tt.doc))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidModel), "got %v", err)
		})
	}
}

func TestParseNBModel_BadYAML(t *testing.T) {
	t.Parallel()

	_, err := ParseNBModel([]byte("terms: [Intercept\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode yaml")
}

func TestLoadNBModel(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "model.yaml")
	require.NoError(t, os.WriteFile(path, []byte(twoLaneRural), 0o644))

	m, err := LoadNBModel(path)
	require.NoError(t, err)
	assert.Equal(t, "wa-rural-2lane", m.Name)

	_, err = LoadNBModel(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate_NonFiniteCoefficient(t *testing.T) {
	t.Parallel()

	m := &NBModel{
		Terms:        []string{InterceptTerm, "x"},
		Coefficients: []float64{1, math.NaN()},
		Scale:        1,
		Covariance:   mat.NewSymDense(2, nil),
	}
	err := m.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidModel))
}

func TestPredict(t *testing.T) {
	t.Parallel()

	m, err := ParseNBModel([]byte(twoLaneRural))
	require.NoError(t, err)

	design := mat.NewDense(2, 3, []float64{
		1, math.Log(5000), 12,
		1, math.Log(12000), 11,
	})
	eta, err := m.LinearPredictor(design)
	require.NoError(t, err)
	mu, err := m.Predict(design)
	require.NoError(t, err)

	for i := range eta {
		want := -6.12 + 0.71*design.At(i, 1) - 0.05*design.At(i, 2)
		assert.InDelta(t, want, eta[i], 1e-12)
		assert.InDelta(t, math.Exp(want), mu[i], 1e-12)
	}
	assert.Greater(t, mu[1], mu[0])
}

func TestPredict_DimensionMismatch(t *testing.T) {
	t.Parallel()

	m, err := ParseNBModel([]byte(twoLaneRural))
	require.NoError(t, err)

	_, err = m.Predict(mat.NewDense(1, 2, []float64{1, 8}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDimensionMismatch))
}
