package dataset

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/montanaflynn/stats"
	"github.com/rotisserie/eris"

	"github.com/sells-group/crash-cli/internal/model"
)

// Summary kinds.
const (
	KindContinuous  = "continuous"
	KindCategorical = "categorical"
)

// Summary describes one column. Continuous columns fill the moments and
// quartiles; categorical columns fill Unique, Top and Freq.
type Summary struct {
	Column string  `json:"column"`
	Kind   string  `json:"kind"`
	Count  int     `json:"count"`
	Mean   float64 `json:"mean,omitempty"`
	Std    float64 `json:"std,omitempty"`
	Min    float64 `json:"min,omitempty"`
	P25    float64 `json:"p25,omitempty"`
	P50    float64 `json:"p50,omitempty"`
	P75    float64 `json:"p75,omitempty"`
	Max    float64 `json:"max,omitempty"`
	Unique int     `json:"unique,omitempty"`
	Top    string  `json:"top,omitempty"`
	Freq   int     `json:"freq,omitempty"`
}

// DescribeOptions selects columns for Describe.
type DescribeOptions struct {
	// Columns limits the summary; empty means every source column.
	Columns []string
	// Categorical forces numeric columns (e.g. curve) to be summarized as
	// categories.
	Categorical []string
}

// Describe summarizes dataset columns. NaN cells are skipped.
func Describe(ds *Dataset, opts DescribeOptions) ([]Summary, error) {
	columns := opts.Columns
	if len(columns) == 0 {
		columns = ds.Columns
	}
	forced := make(map[string]bool, len(opts.Categorical))
	for _, c := range opts.Categorical {
		forced[c] = true
	}

	out := make([]Summary, 0, len(columns))
	for _, col := range columns {
		if col == "" || strings.EqualFold(col, "index") {
			continue
		}
		var (
			s   Summary
			err error
		)
		if model.IsCategorical(col) || forced[col] {
			s, err = describeCategorical(ds, col)
		} else {
			s, err = describeContinuous(ds, col)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func describeContinuous(ds *Dataset, col string) (Summary, error) {
	values := make(stats.Float64Data, 0, len(ds.Segments))
	for i := range ds.Segments {
		v, ok := ds.Segments[i].Numeric(col)
		if !ok {
			return Summary{}, eris.Wrapf(model.ErrInvalidInput, "dataset: unknown column %q", col)
		}
		if !math.IsNaN(v) {
			values = append(values, v)
		}
	}

	s := Summary{Column: col, Kind: KindContinuous, Count: len(values)}
	if len(values) == 0 {
		return s, nil
	}
	s.Mean, _ = values.Mean()
	s.Min, _ = values.Min()
	s.Max, _ = values.Max()
	s.P50, _ = values.Median()
	if len(values) > 1 {
		s.Std, _ = values.StandardDeviationSample()
	}
	s.P25 = percentile(values, 25)
	s.P75 = percentile(values, 75)
	return s, nil
}

// percentile returns the minimum when p falls inside the first element,
// where stats.Percentile reports a bounds error.
func percentile(values stats.Float64Data, p float64) float64 {
	v, err := values.Percentile(p)
	if err != nil {
		v, _ = values.Min()
	}
	return v
}

func describeCategorical(ds *Dataset, col string) (Summary, error) {
	freq := make(map[string]int)
	count := 0
	for i := range ds.Segments {
		label, err := categoryOf(&ds.Segments[i], col)
		if err != nil {
			return Summary{}, err
		}
		if label == "" {
			continue
		}
		freq[label]++
		count++
	}

	s := Summary{Column: col, Kind: KindCategorical, Count: count, Unique: len(freq)}
	levels := make([]string, 0, len(freq))
	for l := range freq {
		levels = append(levels, l)
	}
	sort.Strings(levels)
	for _, l := range levels {
		if freq[l] > s.Freq {
			s.Top, s.Freq = l, freq[l]
		}
	}
	return s, nil
}

func categoryOf(s *model.Segment, col string) (string, error) {
	if v, ok := s.Categorical(col); ok {
		return v, nil
	}
	v, ok := s.Numeric(col)
	if !ok {
		return "", eris.Wrapf(model.ErrInvalidInput, "dataset: unknown column %q", col)
	}
	if math.IsNaN(v) {
		return "", nil
	}
	return strconv.FormatFloat(v, 'f', -1, 64), nil
}
