package api

import (
	"bytes"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/sells-group/crash-cli/internal/config"
	"github.com/sells-group/crash-cli/internal/model"
)

// testModel predicts spf = 4*exp(0.1*lanewid) with scale 2.
func testModel() *model.NBModel {
	cov := mat.NewSymDense(2, []float64{
		0.04, 0.001,
		0.001, 0.0004,
	})
	return &model.NBModel{
		Name:         "rural-2lane",
		Terms:        []string{model.InterceptTerm, "lanewid"},
		Coefficients: []float64{math.Log(4), 0.1},
		Scale:        2,
		Covariance:   cov,
	}
}

func testServer(t *testing.T, cfg config.ServerConfig) http.Handler {
	t.Helper()
	if cfg.CORSOrigins == nil {
		cfg.CORSOrigins = []string{"*"}
	}
	return New(cfg, testModel()).Handler()
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealth(t *testing.T) {
	rr := do(t, testServer(t, config.ServerConfig{}), http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestModel(t *testing.T) {
	rr := do(t, testServer(t, config.ServerConfig{}), http.MethodGet, "/v1/model", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var body modelResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "rural-2lane", body.Name)
	assert.Equal(t, []string{model.InterceptTerm, "lanewid"}, body.Terms)
	assert.Equal(t, 0.5, body.Alpha)
}

func TestSafety(t *testing.T) {
	h := testServer(t, config.ServerConfig{})

	// lanewid 0 gives spf 4; with L 2 and alpha 0.5 the weight is 0.2.
	rr := do(t, h, http.MethodPost, "/v1/safety", safetyRequest{
		Keys:           []model.SegmentKey{{RoadInv: "002", BegMP: 0, EndMP: 2}, {RoadInv: "005", BegMP: 1, EndMP: 3}},
		Design:         [][]float64{{0}, {0}},
		SegmentLengths: []float64{2, 2},
		Observed:       []float64{10, 4},
		Rank:           true,
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var body safetyResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, 0.5, body.Alpha)
	require.Len(t, body.Scores, 2)

	top := body.Scores[0]
	require.NotNil(t, top.Key)
	assert.Equal(t, "002", top.Key.RoadInv)
	assert.Equal(t, 1, top.Rank)
	assert.InDelta(t, 4.0, top.SPF, 1e-9)
	assert.InDelta(t, 0.2, top.Weight, 1e-9)
	assert.InDelta(t, 8.8, top.Safety, 1e-9)
	assert.InDelta(t, 4.8, top.ARP, 1e-9)

	assert.Equal(t, "005", body.Scores[1].Key.RoadInv)
	assert.InDelta(t, 0.0, body.Scores[1].ARP, 1e-9)
}

func TestSafety_WithInterceptColumn(t *testing.T) {
	rr := do(t, testServer(t, config.ServerConfig{}), http.MethodPost, "/v1/safety", safetyRequest{
		Design:         [][]float64{{1, 0}},
		SegmentLengths: []float64{2},
		Observed:       []float64{10},
	})
	require.Equal(t, http.StatusOK, rr.Code)

	var body safetyResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Scores, 1)
	assert.Nil(t, body.Scores[0].Key)
	assert.Zero(t, body.Scores[0].Rank)
	assert.InDelta(t, 8.8, body.Scores[0].Safety, 1e-9)
}

func TestSafety_Errors(t *testing.T) {
	h := testServer(t, config.ServerConfig{})

	tests := []struct {
		name string
		req  safetyRequest
	}{
		{"no rows", safetyRequest{}},
		{"wide rows", safetyRequest{Design: [][]float64{{1, 2, 3}}, SegmentLengths: []float64{1}, Observed: []float64{1}}},
		{"ragged rows", safetyRequest{Design: [][]float64{{1}, {1, 2}}, SegmentLengths: []float64{1, 1}, Observed: []float64{1, 1}}},
		{"short lengths", safetyRequest{Design: [][]float64{{1}, {2}}, SegmentLengths: []float64{1}, Observed: []float64{1, 1}}},
		{"zero length", safetyRequest{Design: [][]float64{{1}}, SegmentLengths: []float64{0}, Observed: []float64{1}}},
		{"negative count", safetyRequest{Design: [][]float64{{1}}, SegmentLengths: []float64{1}, Observed: []float64{-1}}},
		{"spf overflow", safetyRequest{Design: [][]float64{{12}, {10000}}, SegmentLengths: []float64{1, 1}, Observed: []float64{1, 3}}},
		{"key count", safetyRequest{Keys: []model.SegmentKey{{RoadInv: "002"}}, Design: [][]float64{{1}, {2}}, SegmentLengths: []float64{1, 1}, Observed: []float64{1, 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, h, http.MethodPost, "/v1/safety", tt.req)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Contains(t, rr.Body.String(), "error")
		})
	}
}

func TestSafety_BadBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/safety", bytes.NewBufferString("{"))
	rr := httptest.NewRecorder()
	testServer(t, config.ServerConfig{}).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid request body")
}

func TestSafety_InvalidModel(t *testing.T) {
	m := testModel()
	m.Scale = 0
	h := New(config.ServerConfig{CORSOrigins: []string{"*"}}, m).Handler()

	rr := do(t, h, http.MethodPost, "/v1/safety", safetyRequest{
		Design:         [][]float64{{0}},
		SegmentLengths: []float64{2},
		Observed:       []float64{10},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestIntervals(t *testing.T) {
	rr := do(t, testServer(t, config.ServerConfig{}), http.MethodPost, "/v1/intervals", intervalRequest{
		Design: [][]float64{{0}, {2}},
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var body intervalResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, 0.5, body.Alpha)
	require.Len(t, body.Rows, 2)

	r0 := body.Rows[0]
	assert.InDelta(t, 4.0, r0.MuHat, 1e-9)
	assert.InDelta(t, 0.04, r0.VarEta, 1e-12)
	assert.LessOrEqual(t, r0.LBCIMu, r0.MuHat)
	assert.GreaterOrEqual(t, r0.UBCIMu, r0.MuHat)
	assert.Equal(t, 0.0, r0.LBPIY)
	assert.GreaterOrEqual(t, r0.UBPIY, r0.MuHat)

	// var_eta = 0.04 + 2*2*0.001 + 4*0.0004
	assert.InDelta(t, 0.0456, body.Rows[1].VarEta, 1e-12)
}

func TestIntervals_DimensionMismatch(t *testing.T) {
	rr := do(t, testServer(t, config.ServerConfig{}), http.MethodPost, "/v1/intervals", intervalRequest{
		Design: [][]float64{{1, 2, 3, 4}},
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "dimension mismatch")
}

func TestRateLimit(t *testing.T) {
	h := testServer(t, config.ServerConfig{RateLimit: 1, RateBurst: 1})

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/v1/model", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, h, http.MethodGet, "/v1/model", nil).Code)
	// Health is not limited.
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health", nil).Code)
}

func TestCORS(t *testing.T) {
	h := testServer(t, config.ServerConfig{CORSOrigins: []string{"https://maps.example.org"}})

	req := httptest.NewRequest(http.MethodOptions, "/v1/safety", nil)
	req.Header.Set("Origin", "https://maps.example.org")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, "https://maps.example.org", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(model.ErrDimensionMismatch))
	assert.Equal(t, http.StatusBadRequest, statusFor(model.ErrInvalidInput))
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(model.ErrInvalidModel))
	assert.Equal(t, http.StatusInternalServerError, statusFor(assert.AnError))
}
