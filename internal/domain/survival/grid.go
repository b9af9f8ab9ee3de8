// Package survival holds the value types shared by every survival model:
// the time grid, raw and resampled curves, medians and per-model estimates,
// together with the resampling rules that project a sparse survival
// function onto a grid.
package survival

import (
	"fmt"
	"math"
)

// Canonical grid parameters, in months.
const (
	CanonicalStart = 0.0
	CanonicalEnd   = 60.0
	CanonicalStep  = 3.0

	// DefaultLandmark is the landmark month reported with every estimate.
	DefaultLandmark = 24.0
)

// Grid is an immutable, strictly increasing sequence of non-negative times.
type Grid struct {
	times []float64
}

// NewGrid builds the grid start, start+step, ... up to and including end.
func NewGrid(start, end, step float64) (Grid, error) {
	if start < 0 || step <= 0 || end < start || math.IsNaN(start+end+step) || math.IsInf(start+end+step, 0) {
		return Grid{}, fmt.Errorf("%w: start=%v end=%v step=%v", ErrInvalidGrid, start, end, step)
	}
	n := int(math.Floor((end-start)/step+1e-9)) + 1
	times := make([]float64, n)
	for i := range times {
		// Multiplication keeps 3*k exact where repeated addition would drift.
		times[i] = start + float64(i)*step
	}
	return Grid{times: times}, nil
}

// Canonical returns the 0..60 month grid with a 3 month step.
func Canonical() Grid {
	g, _ := NewGrid(CanonicalStart, CanonicalEnd, CanonicalStep)
	return g
}

// Times returns a copy of the grid times.
func (g Grid) Times() []float64 {
	out := make([]float64, len(g.times))
	copy(out, g.times)
	return out
}

// Len is the number of grid points.
func (g Grid) Len() int { return len(g.times) }

// At returns the i-th grid time.
func (g Grid) At(i int) float64 { return g.times[i] }

// Horizon is the last grid time, used as the median sentinel.
func (g Grid) Horizon() float64 {
	if len(g.times) == 0 {
		return 0
	}
	return g.times[len(g.times)-1]
}

// IsZero reports whether the grid was never constructed.
func (g Grid) IsZero() bool { return len(g.times) == 0 }

// Nearest returns the index of the grid time closest to t.
// Ties resolve to the earlier index.
func (g Grid) Nearest(t float64) int {
	return nearestIndex(g.times, t)
}
