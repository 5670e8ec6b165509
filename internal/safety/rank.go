package safety

import (
	"sort"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/mat"

	"github.com/sells-group/crash-cli/internal/model"
)

// Evaluate computes SPF, EB weight, EB safety and ARP for every segment in a
// single pass. Keys and coordinates are left for the caller to attach.
func Evaluate(m *model.NBModel, predictors mat.Matrix, segmentLengths, observed []float64) ([]model.SegmentScore, error) {
	c, err := components(m, predictors, segmentLengths)
	if err != nil {
		return nil, err
	}
	if err := checkObserved(observed, len(c.spf)); err != nil {
		return nil, err
	}

	scores := make([]model.SegmentScore, len(c.spf))
	for i := range scores {
		scores[i] = model.SegmentScore{
			Length:   segmentLengths[i],
			Observed: observed[i],
			SPF:      c.spf[i],
			Weight:   c.w[i],
			Safety:   ebSafety(c.w[i], c.spf[i], observed[i]),
			ARP:      (1 - c.w[i]) * (observed[i] - c.spf[i]),
		}
	}
	return scores, nil
}

// Rank returns a copy of scores ordered by treatment priority with 1-based
// ranks assigned. Higher ARP ranks first; ties fall back to higher safety,
// then segment key order.
func Rank(scores []model.SegmentScore) []model.SegmentScore {
	ranked := make([]model.SegmentScore, len(scores))
	copy(ranked, scores)

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.ARP != b.ARP {
			return a.ARP > b.ARP
		}
		if a.Safety != b.Safety {
			return a.Safety > b.Safety
		}
		return a.Key.Less(b.Key)
	})
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}

// Top returns the first n ranked scores. n <= 0 returns all of them.
func Top(ranked []model.SegmentScore, n int) ([]model.SegmentScore, error) {
	for i, s := range ranked {
		if s.Rank != i+1 {
			return nil, eris.Errorf("safety: scores are not ranked (row %d has rank %d)", i, s.Rank)
		}
	}
	if n <= 0 || n >= len(ranked) {
		return ranked, nil
	}
	return ranked[:n], nil
}
