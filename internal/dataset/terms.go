package dataset

import (
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/crash-cli/internal/model"
)

// TermKind classifies a model term.
type TermKind int

// Term kinds.
const (
	TermIntercept TermKind = iota
	TermColumn
	TermLog
	TermIndicator
)

// Term is a parsed model term name.
//
//	lanewid                 column value
//	log(avg_aadt)           natural log of the column (also log_avg_aadt, np.log(avg_aadt))
//	C(surf_typ)[T.BST]      1 when the column equals the level (also surf_typ[T.BST])
//	curve                   1 when curv_count > 0
type Term struct {
	Name   string
	Kind   TermKind
	Column string
	Level  string
}

// ParseTerm parses a coefficient name.
func ParseTerm(name string) (Term, error) {
	n := strings.TrimSpace(name)
	if n == "" {
		return Term{}, eris.Wrap(model.ErrInvalidModel, "dataset: empty term name")
	}
	if strings.EqualFold(n, model.InterceptTerm) {
		return Term{Name: n, Kind: TermIntercept}, nil
	}

	if i := strings.Index(n, "[T."); i > 0 && strings.HasSuffix(n, "]") {
		col := n[:i]
		if strings.HasPrefix(col, "C(") && strings.HasSuffix(col, ")") {
			col = col[2 : len(col)-1]
		}
		level := n[i+3 : len(n)-1]
		if col == "" || level == "" {
			return Term{}, eris.Wrapf(model.ErrInvalidModel, "dataset: malformed indicator term %q", name)
		}
		return Term{Name: n, Kind: TermIndicator, Column: col, Level: level}, nil
	}

	for _, prefix := range []string{"np.log(", "log("} {
		if strings.HasPrefix(n, prefix) && strings.HasSuffix(n, ")") {
			col := n[len(prefix) : len(n)-1]
			if col == "" {
				return Term{}, eris.Wrapf(model.ErrInvalidModel, "dataset: malformed log term %q", name)
			}
			return Term{Name: n, Kind: TermLog, Column: col}, nil
		}
	}
	if strings.HasPrefix(n, "log_") && len(n) > len("log_") {
		return Term{Name: n, Kind: TermLog, Column: n[len("log_"):]}, nil
	}

	if strings.ContainsAny(n, "()[]") {
		return Term{}, eris.Wrapf(model.ErrInvalidModel, "dataset: unsupported term %q", name)
	}
	return Term{Name: n, Kind: TermColumn, Column: n}, nil
}

// ParseTerms parses every term of a model, intercept included.
func ParseTerms(names []string) ([]Term, error) {
	terms := make([]Term, len(names))
	for i, n := range names {
		t, err := ParseTerm(n)
		if err != nil {
			return nil, err
		}
		terms[i] = t
	}
	return terms, nil
}

// Value evaluates the term for one segment. NaN means the segment lacks the
// inputs. A missing column is an error.
func (t Term) Value(s *model.Segment) (float64, error) {
	switch t.Kind {
	case TermIntercept:
		return 1, nil
	case TermIndicator:
		return t.indicator(s)
	}

	// A log_ column that the table already carries wins over the transform.
	if t.Kind == TermLog {
		if v, ok := s.Numeric(t.Name); ok {
			return v, nil
		}
	}
	v, ok := s.Numeric(t.Column)
	if !ok {
		return 0, eris.Wrapf(model.ErrInvalidInput, "dataset: term %q needs column %q", t.Name, t.Column)
	}
	if t.Kind == TermLog {
		return Transform(t.Kind, v), nil
	}
	return v, nil
}

// Transform applies a term's transform to a raw column value.
func Transform(kind TermKind, v float64) float64 {
	if kind != TermLog {
		return v
	}
	if !(v > 0) {
		return math.NaN()
	}
	return math.Log(v)
}

func (t Term) indicator(s *model.Segment) (float64, error) {
	if model.IsCategorical(t.Column) {
		v, _ := s.Categorical(t.Column)
		if v == "" {
			return math.NaN(), nil
		}
		return boolFloat(v == t.Level), nil
	}
	v, ok := s.Numeric(t.Column)
	if !ok {
		return 0, eris.Wrapf(model.ErrInvalidInput, "dataset: term %q needs column %q", t.Name, t.Column)
	}
	if math.IsNaN(v) {
		return v, nil
	}
	level, err := strconv.ParseFloat(t.Level, 64)
	if err != nil {
		return 0, eris.Wrapf(model.ErrInvalidModel, "dataset: term %q: level %q of numeric column is not a number", t.Name, t.Level)
	}
	return boolFloat(v == level), nil
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
