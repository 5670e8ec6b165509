package model

import "time"

// Output column names shared by exports and the HTTP surface.
const (
	ColSPF    = "SPF"
	ColWeight = "Weight"
	ColSafety = "Safety"
	ColARP    = "ARP"
	ColRank   = "Rank"

	ColMuHat  = "mu_hat"
	ColVarEta = "var_eta_hat"
	ColLBCIMu = "LB CI mu"
	ColUBCIMu = "UB CI mu"
	ColLBPIM  = "LB PI m"
	ColUBPIM  = "UB PI m"
	ColLBPIY  = "LB PI y"
	ColUBPIY  = "UB PI y"
)

// SegmentScore is the EB evaluation of one segment.
type SegmentScore struct {
	Key       SegmentKey `json:"key"`
	Longitude float64    `json:"longitude"`
	Latitude  float64    `json:"latitude"`
	Length    float64    `json:"seg_lng"`
	Observed  float64    `json:"observed"`
	SPF       float64    `json:"spf"`
	Weight    float64    `json:"weight"`
	Safety    float64    `json:"safety"`
	ARP       float64    `json:"arp"`
	Rank      int        `json:"rank,omitempty"` // 1 = highest treatment priority
}

// IntervalRow is one evaluation point of the interval estimator.
type IntervalRow struct {
	MuHat  float64 `json:"mu_hat"`
	VarEta float64 `json:"var_eta_hat"`
	LBCIMu float64 `json:"lb_ci_mu"`
	UBCIMu float64 `json:"ub_ci_mu"`
	LBPIM  float64 `json:"lb_pi_m"`
	UBPIM  float64 `json:"ub_pi_m"`
	LBPIY  float64 `json:"lb_pi_y"`
	UBPIY  float64 `json:"ub_pi_y"`
}

// IntervalColumns lists the IntervalRow columns in export order.
var IntervalColumns = []string{ColMuHat, ColVarEta, ColLBCIMu, ColUBCIMu, ColLBPIM, ColUBPIM, ColLBPIY, ColUBPIY}

// Values returns the row in IntervalColumns order.
func (r IntervalRow) Values() []float64 {
	return []float64{r.MuHat, r.VarEta, r.LBCIMu, r.UBCIMu, r.LBPIM, r.UBPIM, r.LBPIY, r.UBPIY}
}

// Run is a persisted scoring run.
type Run struct {
	ID           string    `json:"id"`
	Dataset      string    `json:"dataset"`
	ModelName    string    `json:"model_name"`
	Alpha        float64   `json:"alpha"`
	SegmentCount int       `json:"segment_count"`
	Dropped      int       `json:"dropped"`
	CreatedAt    time.Time `json:"created_at"`
}
