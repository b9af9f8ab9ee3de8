// Package kaplanmeier implements the product-limit survival estimator with
// Greenwood variance and normal-approximation confidence bounds.
package kaplanmeier

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/okian/survcast/internal/domain/survival"
)

// Step is one row of the fitted step function, at a distinct observed time.
type Step struct {
	Time     float64 `json:"time"`
	AtRisk   int     `json:"atRisk"`
	Events   int     `json:"events"`
	Censored int     `json:"censored"`
	Survival float64 `json:"survival"`
	Variance float64 `json:"variance"`
	Lower    float64 `json:"lower"`
	Upper    float64 `json:"upper"`
}

// Estimator is a Kaplan-Meier fit. It is unfitted until Fit succeeds and
// read-only afterwards, so a fitted Estimator may be shared across goroutines.
type Estimator struct {
	grid       survival.Grid
	confidence float64
	z          float64

	label    string
	subjects int
	timeline []Step
	fitted   bool
}

// New creates an unfitted estimator.
func New(opts ...Option) (*Estimator, error) {
	e := &Estimator{
		grid:       survival.Canonical(),
		confidence: DefaultConfidenceLevel,
	}
	for _, opt := range opts {
		opt(e)
	}
	if !(e.confidence > 0 && e.confidence < 1) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfidence, e.confidence)
	}
	e.z = distuv.UnitNormal.Quantile(1 - (1-e.confidence)/2)
	return e, nil
}

// Z is the normal quantile used for the bounds.
func (e *Estimator) Z() float64 { return e.z }

// Label is the label given at fit time.
func (e *Estimator) Label() string { return e.label }

// Subjects is the number of observations the estimator was fitted on.
func (e *Estimator) Subjects() int { return e.subjects }

// Fitted reports whether Fit has succeeded.
func (e *Estimator) Fitted() bool { return e.fitted }

// Fit computes the product-limit estimate. events[i] is 1 for an observed
// event and 0 for a censored observation.
func (e *Estimator) Fit(durations []float64, events []int, label string) error {
	if e.fitted {
		return ErrAlreadyFitted
	}
	if err := validate(durations, events); err != nil {
		return err
	}

	type obs struct {
		t     float64
		event bool
	}
	data := make([]obs, len(durations))
	for i := range durations {
		data[i] = obs{t: durations[i], event: events[i] == 1}
	}
	sort.Slice(data, func(i, j int) bool { return data[i].t < data[j].t })

	// The origin step is kept even when events occur at time 0: point
	// lookups take the first of equal times, so S(0) stays 1 and later
	// times interpolate from the post-event value.
	timeline := make([]Step, 0, len(data)+1)
	timeline = append(timeline, Step{Time: 0, AtRisk: len(data), Survival: 1, Lower: 1, Upper: 1})

	atRisk := len(data)
	s := 1.0
	greenwood := 0.0
	for i := 0; i < len(data); {
		t := data[i].t
		d, c := 0, 0
		for ; i < len(data) && data[i].t == t; i++ {
			if data[i].event {
				d++
			} else {
				c++
			}
		}

		if d > 0 {
			s *= 1 - float64(d)/float64(atRisk)
			if atRisk > d {
				greenwood += float64(d) / float64(atRisk*(atRisk-d))
			}
		}

		variance := 0.0
		if s > 0 {
			variance = s * s * greenwood
		}
		half := e.z * math.Sqrt(variance)
		timeline = append(timeline, Step{
			Time:     t,
			AtRisk:   atRisk,
			Events:   d,
			Censored: c,
			Survival: s,
			Variance: variance,
			Lower:    survival.Clamp01(s - half),
			Upper:    survival.Clamp01(s + half),
		})
		atRisk -= d + c
	}

	e.label = label
	e.subjects = len(data)
	e.timeline = timeline
	e.fitted = true
	return nil
}

func validate(durations []float64, events []int) error {
	if len(durations) == 0 {
		return fmt.Errorf("%w: no observations", ErrInvalidInput)
	}
	if len(durations) != len(events) {
		return fmt.Errorf("%w: %d durations but %d events", ErrInvalidInput, len(durations), len(events))
	}
	for i, d := range durations {
		if d < 0 || math.IsNaN(d) || math.IsInf(d, 0) {
			return fmt.Errorf("%w: duration[%d]=%v", ErrInvalidInput, i, d)
		}
		if events[i] != 0 && events[i] != 1 {
			return fmt.Errorf("%w: event[%d]=%d is not 0 or 1", ErrInvalidInput, i, events[i])
		}
	}
	return nil
}

// Timeline returns a copy of the fitted step function.
func (e *Estimator) Timeline() ([]Step, error) {
	if !e.fitted {
		return nil, ErrNotFitted
	}
	out := make([]Step, len(e.timeline))
	copy(out, e.timeline)
	return out, nil
}

// PredictSurvivalFunction resamples the estimate and both bounds onto times.
// A nil times slice means the configured grid. Each bound is resampled as its
// own series.
func (e *Estimator) PredictSurvivalFunction(times []float64) (survival.Curve, error) {
	if !e.fitted {
		return survival.Curve{}, ErrNotFitted
	}
	if times == nil {
		times = e.grid.Times()
	}
	est, lower, upper := e.series()
	return survival.Curve{
		Times:    append([]float64(nil), times...),
		Survival: survival.Resample(est, times),
		Lower:    survival.Resample(lower, times),
		Upper:    survival.Resample(upper, times),
	}, nil
}

// SurvivalAt returns the resampled estimate at a single time.
func (e *Estimator) SurvivalAt(t float64) (float64, error) {
	if !e.fitted {
		return 0, ErrNotFitted
	}
	est, _, _ := e.series()
	return survival.ValueAt(est, t), nil
}

// MedianSurvivalTime returns the smallest observed time with S(t) <= 0.5,
// or the grid horizon marked as not reached.
func (e *Estimator) MedianSurvivalTime() (survival.Median, error) {
	if !e.fitted {
		return survival.Median{}, ErrNotFitted
	}
	for _, st := range e.timeline {
		if st.Survival <= 0.5 {
			return survival.Median{Months: st.Time, Reached: true}, nil
		}
	}
	return survival.NotReached(e.grid.Horizon()), nil
}

func (e *Estimator) series() (est, lower, upper []survival.Point) {
	est = make([]survival.Point, len(e.timeline))
	lower = make([]survival.Point, len(e.timeline))
	upper = make([]survival.Point, len(e.timeline))
	for i, st := range e.timeline {
		est[i] = survival.Point{Time: st.Time, Value: st.Survival}
		lower[i] = survival.Point{Time: st.Time, Value: st.Lower}
		upper[i] = survival.Point{Time: st.Time, Value: st.Upper}
	}
	return est, lower, upper
}
