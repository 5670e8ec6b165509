package model

import "errors"

// Error taxonomy of the modeling core. Callers match with errors.Is; the
// core wraps these with eris for context.
var (
	// ErrDimensionMismatch reports disagreeing sequence or matrix cardinalities.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrInvalidModel reports a degenerate fitted model (non-positive or
	// non-finite scale, malformed covariance).
	ErrInvalidModel = errors.New("invalid model")
	// ErrInvalidInput reports a value outside its domain, such as a
	// non-positive segment length or a negative crash count.
	ErrInvalidInput = errors.New("invalid input")
)
