package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/sells-group/crash-cli/internal/dataset"
	"github.com/sells-group/crash-cli/internal/interval"
	"github.com/sells-group/crash-cli/internal/model"
	"github.com/sells-group/crash-cli/internal/safety"
)

type modelResponse struct {
	Name         string    `json:"name"`
	Terms        []string  `json:"terms"`
	Coefficients []float64 `json:"coefficients"`
	Scale        float64   `json:"scale"`
	Alpha        float64   `json:"alpha"`
}

// safetyRequest carries one row per segment. Design rows may omit the
// intercept column.
type safetyRequest struct {
	Keys           []model.SegmentKey `json:"keys,omitempty"`
	Design         [][]float64        `json:"design"`
	SegmentLengths []float64          `json:"segment_lengths"`
	Observed       []float64          `json:"observed"`
	Rank           bool               `json:"rank"`
}

type safetyScore struct {
	Key      *model.SegmentKey `json:"key,omitempty"`
	Length   float64           `json:"seg_lng"`
	Observed float64           `json:"observed"`
	SPF      float64           `json:"spf"`
	Weight   float64           `json:"weight"`
	Safety   float64           `json:"safety"`
	ARP      float64           `json:"arp"`
	Rank     int               `json:"rank,omitempty"`
}

type safetyResponse struct {
	Alpha  float64       `json:"alpha"`
	Scores []safetyScore `json:"scores"`
}

type intervalRequest struct {
	Design [][]float64 `json:"design"`
}

type intervalResponse struct {
	Alpha float64             `json:"alpha"`
	Rows  []model.IntervalRow `json:"rows"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleModel(w http.ResponseWriter, _ *http.Request) {
	alpha, err := safety.ComputeAlpha(s.model)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, modelResponse{
		Name:         s.model.Name,
		Terms:        s.model.Terms,
		Coefficients: s.model.Coefficients,
		Scale:        s.model.Scale,
		Alpha:        alpha,
	})
}

func (s *Server) handleSafety(w http.ResponseWriter, r *http.Request) {
	var req safetyRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.Keys) > 0 && len(req.Keys) != len(req.Design) {
		writeErr(w, eris.Wrapf(model.ErrDimensionMismatch, "api: %d keys for %d design rows", len(req.Keys), len(req.Design)))
		return
	}
	design, err := s.designMatrix(req.Design)
	if err != nil {
		writeErr(w, err)
		return
	}
	scores, err := safety.Evaluate(s.model, design, req.SegmentLengths, req.Observed)
	if err != nil {
		writeErr(w, err)
		return
	}
	for i := range req.Keys {
		scores[i].Key = req.Keys[i]
	}
	if req.Rank {
		scores = safety.Rank(scores)
	}
	alpha, err := safety.ComputeAlpha(s.model)
	if err != nil {
		writeErr(w, err)
		return
	}

	resp := safetyResponse{Alpha: alpha, Scores: make([]safetyScore, len(scores))}
	for i, sc := range scores {
		out := safetyScore{
			Length:   sc.Length,
			Observed: sc.Observed,
			SPF:      sc.SPF,
			Weight:   sc.Weight,
			Safety:   sc.Safety,
			ARP:      sc.ARP,
			Rank:     sc.Rank,
		}
		if len(req.Keys) > 0 {
			out.Key = &scores[i].Key
		}
		resp.Scores[i] = out
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleIntervals(w http.ResponseWriter, r *http.Request) {
	var req intervalRequest
	if !decode(w, r, &req) {
		return
	}
	design, err := s.designMatrix(req.Design)
	if err != nil {
		writeErr(w, err)
		return
	}
	bands, err := interval.Estimate(s.model, design)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, intervalResponse{Alpha: bands.Alpha, Rows: bands.Rows()})
}

// designMatrix converts request rows to a design matrix, adding the
// intercept column when every row omits it.
func (s *Server) designMatrix(rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 {
		return nil, eris.Wrap(model.ErrInvalidInput, "api: design has no rows")
	}
	k := s.model.NumCoefficients()
	width := len(rows[0])
	if width != k && width != k-1 {
		return nil, eris.Wrapf(model.ErrDimensionMismatch, "api: design rows have %d columns, model has %d coefficients", width, k)
	}
	data := make([]float64, 0, len(rows)*width)
	for i, row := range rows {
		if len(row) != width {
			return nil, eris.Wrapf(model.ErrDimensionMismatch, "api: design row %d has %d columns, want %d", i, len(row), width)
		}
		data = append(data, row...)
	}
	if width == 0 {
		ones := make([]float64, len(rows))
		for i := range ones {
			ones[i] = 1
		}
		return mat.NewDense(len(rows), 1, ones), nil
	}
	d := mat.NewDense(len(rows), width, data)
	if width == k-1 {
		return dataset.WithIntercept(d), nil
	}
	return d, nil
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// statusFor maps core errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrDimensionMismatch), errors.Is(err, model.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrInvalidModel):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeErr(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		zap.L().Error("api: request failed", zap.Error(err))
	}
	writeError(w, status, err.Error())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		zap.L().Error("api: encode response", zap.Error(err))
		http.Error(w, `{"error":"encode response"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
