package adapter

import "github.com/okian/survcast/internal/domain/survival"

type settings struct {
	grid     survival.Grid
	landmark float64
}

// Option configures an adapter.
type Option func(*settings)

// WithGrid sets the grid estimates are projected onto.
func WithGrid(g survival.Grid) Option {
	return func(s *settings) {
		if !g.IsZero() {
			s.grid = g
		}
	}
}

// WithLandmark sets the landmark month.
func WithLandmark(month float64) Option {
	return func(s *settings) {
		if month > 0 {
			s.landmark = month
		}
	}
}
