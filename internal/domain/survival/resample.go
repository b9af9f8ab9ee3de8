package survival

import (
	"math"
	"sort"
)

// Point is one (time, value) sample of a survival function.
type Point struct {
	Time  float64
	Value float64
}

// Resample projects the ordered source points onto times:
//   - an exact source time returns its value unchanged
//   - a time before the first source time returns 1.0
//   - a time after the last source time returns the last value
//   - a time between two source times is linearly interpolated
//
// An empty source yields 1.0 everywhere. Resample never fails.
func Resample(points []Point, times []float64) []float64 {
	out := make([]float64, len(times))
	for i, t := range times {
		out[i] = ValueAt(points, t)
	}
	return out
}

// ValueAt resamples a single time with the rules of Resample.
func ValueAt(points []Point, t float64) float64 {
	n := len(points)
	if n == 0 {
		return 1.0
	}
	j := sort.Search(n, func(k int) bool { return points[k].Time >= t })
	switch {
	case j < n && points[j].Time == t:
		return points[j].Value
	case j == 0:
		return 1.0
	case j == n:
		return points[n-1].Value
	}
	lo, hi := points[j-1], points[j]
	if hi.Time <= lo.Time {
		return 1.0
	}
	return lo.Value + (hi.Value-lo.Value)*(t-lo.Time)/(hi.Time-lo.Time)
}

// ResampleNearest maps each requested time to the value at the nearest
// source time, without interpolation. Ties go to the earlier source time.
// Only the ensemble-tree model uses this policy.
func ResampleNearest(points []Point, times []float64) []float64 {
	out := make([]float64, len(times))
	if len(points) == 0 {
		for i := range out {
			out[i] = 1.0
		}
		return out
	}
	src := make([]float64, len(points))
	for i, p := range points {
		src[i] = p.Time
	}
	for i, t := range times {
		out[i] = points[nearestIndex(src, t)].Value
	}
	return out
}

// nearestIndex returns argmin |sorted[i]-t|, the lower index on ties.
func nearestIndex(sorted []float64, t float64) int {
	n := len(sorted)
	if n == 0 {
		return -1
	}
	j := sort.SearchFloat64s(sorted, t)
	if j == 0 {
		return 0
	}
	if j == n {
		return n - 1
	}
	if math.Abs(sorted[j]-t) < math.Abs(t-sorted[j-1]) {
		return j
	}
	return j - 1
}
