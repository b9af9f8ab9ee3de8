package kaplanmeier

import (
	"fmt"

	"github.com/okian/survcast/internal/domain/survival"
)

// Group is a labelled set of survival observations.
type Group struct {
	Label     string    `json:"label"`
	Durations []float64 `json:"durations"`
	Events    []int     `json:"events"`
}

// GroupCurve is one side of a comparison.
type GroupCurve struct {
	Label    string          `json:"label"`
	Subjects int             `json:"subjects"`
	Events   int             `json:"events"`
	Median   survival.Median `json:"median"`
	Curve    survival.Curve  `json:"curve"`
}

// Comparison holds two independently fitted groups on a common grid.
// Significance testing is left to the caller.
type Comparison struct {
	A GroupCurve `json:"a"`
	B GroupCurve `json:"b"`
}

// FitGroup fits a new estimator on g.
func FitGroup(g Group, opts ...Option) (*Estimator, error) {
	e, err := New(opts...)
	if err != nil {
		return nil, err
	}
	if err := e.Fit(g.Durations, g.Events, g.Label); err != nil {
		return nil, fmt.Errorf("group %q: %w", g.Label, err)
	}
	return e, nil
}

// Summarize resamples a fitted estimator into a GroupCurve.
func Summarize(e *Estimator) (GroupCurve, error) {
	curve, err := e.PredictSurvivalFunction(nil)
	if err != nil {
		return GroupCurve{}, err
	}
	median, err := e.MedianSurvivalTime()
	if err != nil {
		return GroupCurve{}, err
	}
	events := 0
	for _, st := range e.timeline {
		events += st.Events
	}
	return GroupCurve{
		Label:    e.label,
		Subjects: e.subjects,
		Events:   events,
		Median:   median,
		Curve:    curve,
	}, nil
}

// CompareGroups fits a and b independently and resamples both onto the grid.
func CompareGroups(a, b Group, opts ...Option) (Comparison, error) {
	var out Comparison
	for _, side := range []struct {
		g   Group
		dst *GroupCurve
	}{{a, &out.A}, {b, &out.B}} {
		e, err := FitGroup(side.g, opts...)
		if err != nil {
			return Comparison{}, err
		}
		gc, err := Summarize(e)
		if err != nil {
			return Comparison{}, err
		}
		*side.dst = gc
	}
	return out, nil
}
