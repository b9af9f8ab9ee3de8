package kaplanmeier

import "github.com/okian/survcast/internal/domain/survival"

// DefaultConfidenceLevel is used for the Greenwood bounds.
const DefaultConfidenceLevel = 0.95

// Option configures an Estimator.
type Option func(*Estimator)

// WithGrid sets the grid used for default predictions and the median sentinel.
func WithGrid(g survival.Grid) Option {
	return func(e *Estimator) {
		if !g.IsZero() {
			e.grid = g
		}
	}
}

// WithConfidenceLevel sets the two-sided confidence level of the bounds.
func WithConfidenceLevel(level float64) Option {
	return func(e *Estimator) {
		e.confidence = level
	}
}
