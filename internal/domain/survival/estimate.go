package survival

import "math"

// Curve is a survival function resampled onto grid times.
// Lower and Upper are nil when the producing model has no interval.
type Curve struct {
	Times    []float64 `json:"times"`
	Survival []float64 `json:"survival"`
	Lower    []float64 `json:"lower,omitempty"`
	Upper    []float64 `json:"upper,omitempty"`
}

// Median is a median survival time. When Reached is false the curve never
// fell to 0.5 and Months holds the follow-up horizon instead.
type Median struct {
	Months  float64 `json:"months"`
	Reached bool    `json:"reached"`
}

// NotReached returns the "beyond follow-up" sentinel for horizon.
func NotReached(horizon float64) Median {
	return Median{Months: horizon}
}

// Estimate is one model's canonical prediction for one patient.
type Estimate struct {
	Median Median `json:"median"`
	// LandmarkPercent is survival at the landmark month, in percent.
	LandmarkPercent float64 `json:"landmarkPercent"`
	Curve           Curve   `json:"curve"`
}

// MedianOf returns the first time whose survival is at most 0.5.
func MedianOf(times, survival []float64, horizon float64) Median {
	for i := 0; i < len(times) && i < len(survival); i++ {
		if survival[i] <= 0.5 {
			return Median{Months: times[i], Reached: true}
		}
	}
	return NotReached(horizon)
}

// ToPercent converts a probability to a percentage.
func ToPercent(p float64) float64 {
	return 100 * p
}

// Clamp01 bounds p to [0,1]. NaN maps to 0.
func Clamp01(p float64) float64 {
	if math.IsNaN(p) {
		return 0
	}
	return math.Max(0, math.Min(1, p))
}
