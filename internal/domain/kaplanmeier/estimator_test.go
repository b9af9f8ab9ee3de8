package kaplanmeier_test

import (
	"errors"
	"math"
	"testing"

	"github.com/okian/survcast/internal/domain/kaplanmeier"
	"github.com/okian/survcast/internal/domain/survival"
	. "github.com/smartystreets/goconvey/convey"
)

var (
	exampleDurations = []float64{5, 10, 10, 20, 40}
	exampleEvents    = []int{1, 0, 1, 1, 0}
)

func fitted(durations []float64, events []int, opts ...kaplanmeier.Option) *kaplanmeier.Estimator {
	e, err := kaplanmeier.New(opts...)
	So(err, ShouldBeNil)
	So(e.Fit(durations, events, "test"), ShouldBeNil)
	return e
}

func TestFitExample(t *testing.T) {
	Convey("Given the five subject example", t, func() {
		e := fitted(exampleDurations, exampleEvents)
		steps, err := e.Timeline()
		So(err, ShouldBeNil)

		Convey("The step function follows the product-limit rule", func() {
			So(len(steps), ShouldEqual, 5)
			want := map[float64]float64{0: 1, 5: 0.8, 10: 0.6, 20: 0.3, 40: 0.3}
			for _, st := range steps {
				So(st.Survival, ShouldAlmostEqual, want[st.Time], 1e-12)
			}
		})

		Convey("At-risk counts shrink with events and censoring", func() {
			So(steps[1].AtRisk, ShouldEqual, 5)
			So(steps[2].AtRisk, ShouldEqual, 4)
			So(steps[2].Events, ShouldEqual, 1)
			So(steps[2].Censored, ShouldEqual, 1)
			So(steps[3].AtRisk, ShouldEqual, 2)
			So(steps[4].AtRisk, ShouldEqual, 1)
			So(steps[4].Events, ShouldEqual, 0)
		})

		Convey("Greenwood variance accumulates d/(n(n-d))", func() {
			So(steps[0].Variance, ShouldEqual, 0)
			So(steps[1].Variance, ShouldAlmostEqual, 0.64*0.05, 1e-12)
			So(steps[2].Variance, ShouldAlmostEqual, 0.36*(0.05+1.0/12), 1e-12)
			So(steps[3].Variance, ShouldAlmostEqual, 0.09*(0.05+1.0/12+0.5), 1e-12)
		})

		Convey("Bounds are S +/- z*sqrt(Var) clipped to [0,1]", func() {
			So(e.Z(), ShouldAlmostEqual, 1.959964, 1e-6)
			half := e.Z() * math.Sqrt(0.032)
			So(steps[1].Lower, ShouldAlmostEqual, 0.8-half, 1e-12)
			So(steps[1].Upper, ShouldEqual, 1.0)
			for _, st := range steps {
				So(st.Lower, ShouldBeBetweenOrEqual, 0, st.Survival)
				So(st.Upper, ShouldBeBetweenOrEqual, st.Survival, 1)
			}
		})

		Convey("The raw step function is non-increasing", func() {
			for i := 1; i < len(steps); i++ {
				So(steps[i].Survival, ShouldBeLessThanOrEqualTo, steps[i-1].Survival)
			}
		})

		Convey("The median is the first time with S <= 0.5", func() {
			m, err := e.MedianSurvivalTime()
			So(err, ShouldBeNil)
			So(m, ShouldResemble, survival.Median{Months: 20, Reached: true})
		})

		Convey("Predictions on the canonical grid interpolate the steps", func() {
			c, err := e.PredictSurvivalFunction(nil)
			So(err, ShouldBeNil)
			So(len(c.Times), ShouldEqual, 21)
			So(c.Survival[0], ShouldEqual, 1.0)
			So(c.Survival[1], ShouldAlmostEqual, 0.88, 1e-12)
			So(c.Survival[2], ShouldAlmostEqual, 0.76, 1e-12)
			So(c.Survival[20], ShouldAlmostEqual, 0.3, 1e-12)
			So(len(c.Lower), ShouldEqual, 21)
			So(len(c.Upper), ShouldEqual, 21)
		})

		Convey("SurvivalAt reads a single resampled point", func() {
			s, err := e.SurvivalAt(10)
			So(err, ShouldBeNil)
			So(s, ShouldAlmostEqual, 0.6, 1e-12)
			s, err = e.SurvivalAt(100)
			So(err, ShouldBeNil)
			So(s, ShouldAlmostEqual, 0.3, 1e-12)
		})

		Convey("A second Fit is rejected", func() {
			So(errors.Is(e.Fit(exampleDurations, exampleEvents, "again"), kaplanmeier.ErrAlreadyFitted), ShouldBeTrue)
			So(e.Fitted(), ShouldBeTrue)
			So(e.Label(), ShouldEqual, "test")
		})
	})
}

func TestMedianSentinel(t *testing.T) {
	Convey("A curve that never falls to 0.5 reports the horizon", t, func() {
		e := fitted([]float64{10, 20, 30, 40}, []int{1, 0, 0, 0})
		m, err := e.MedianSurvivalTime()
		So(err, ShouldBeNil)
		So(m.Reached, ShouldBeFalse)
		So(m.Months, ShouldEqual, 60)
	})

	Convey("The sentinel follows a custom grid", t, func() {
		g, err := survival.NewGrid(0, 120, 6)
		So(err, ShouldBeNil)
		e := fitted([]float64{10, 20}, []int{0, 0}, kaplanmeier.WithGrid(g))
		m, err := e.MedianSurvivalTime()
		So(err, ShouldBeNil)
		So(m.Months, ShouldEqual, 120)
	})
}

func TestEventAtOrigin(t *testing.T) {
	Convey("Given an event at time 0", t, func() {
		e := fitted([]float64{0, 5, 10}, []int{1, 1, 0})

		Convey("S(0) is still 1", func() {
			s0, err := e.SurvivalAt(0)
			So(err, ShouldBeNil)
			So(s0, ShouldEqual, 1.0)

			curve, err := e.PredictSurvivalFunction(nil)
			So(err, ShouldBeNil)
			So(curve.Times[0], ShouldEqual, 0)
			So(curve.Survival[0], ShouldEqual, 1.0)
			So(curve.Lower[0], ShouldEqual, 1.0)
			So(curve.Upper[0], ShouldEqual, 1.0)
		})

		Convey("Times after 0 interpolate from the post-event value", func() {
			s1, err := e.SurvivalAt(1)
			So(err, ShouldBeNil)
			So(s1, ShouldAlmostEqual, 2.0/3-(1.0/3)/5, 1e-12)
			s5, err := e.SurvivalAt(5)
			So(err, ShouldBeNil)
			So(s5, ShouldAlmostEqual, 1.0/3, 1e-12)
		})

		Convey("The timeline keeps the origin ahead of the event step", func() {
			steps, err := e.Timeline()
			So(err, ShouldBeNil)
			So(len(steps), ShouldEqual, 4)
			So(steps[0].Survival, ShouldEqual, 1.0)
			So(steps[1].Time, ShouldEqual, 0)
			So(steps[1].Events, ShouldEqual, 1)
			So(steps[1].Survival, ShouldAlmostEqual, 2.0/3, 1e-12)
		})

		Convey("The median comes from the event steps", func() {
			m, err := e.MedianSurvivalTime()
			So(err, ShouldBeNil)
			So(m.Reached, ShouldBeTrue)
			So(m.Months, ShouldEqual, 5)
		})
	})
}

func TestSurvivalReachesZero(t *testing.T) {
	Convey("When every subject has an event", t, func() {
		e := fitted([]float64{2, 4}, []int{1, 1})
		steps, err := e.Timeline()
		So(err, ShouldBeNil)
		last := steps[len(steps)-1]
		So(last.Survival, ShouldEqual, 0)
		So(last.Variance, ShouldEqual, 0)
		So(last.Lower, ShouldEqual, 0)
		So(last.Upper, ShouldEqual, 0)
	})
}

func TestErrors(t *testing.T) {
	Convey("Given an unfitted estimator", t, func() {
		e, err := kaplanmeier.New()
		So(err, ShouldBeNil)

		_, err = e.PredictSurvivalFunction(nil)
		So(errors.Is(err, kaplanmeier.ErrNotFitted), ShouldBeTrue)
		_, err = e.MedianSurvivalTime()
		So(errors.Is(err, kaplanmeier.ErrNotFitted), ShouldBeTrue)
		_, err = e.SurvivalAt(3)
		So(errors.Is(err, kaplanmeier.ErrNotFitted), ShouldBeTrue)
		_, err = e.Timeline()
		So(errors.Is(err, kaplanmeier.ErrNotFitted), ShouldBeTrue)
	})

	Convey("Malformed input is rejected", t, func() {
		cases := []struct {
			durations []float64
			events    []int
		}{
			{nil, nil},
			{[]float64{1, 2}, []int{1}},
			{[]float64{-1}, []int{1}},
			{[]float64{math.NaN()}, []int{1}},
			{[]float64{1}, []int{2}},
		}
		for _, c := range cases {
			e, err := kaplanmeier.New()
			So(err, ShouldBeNil)
			So(errors.Is(e.Fit(c.durations, c.events, ""), kaplanmeier.ErrInvalidInput), ShouldBeTrue)
			So(e.Fitted(), ShouldBeFalse)
		}
	})

	Convey("Confidence levels outside (0,1) are rejected", t, func() {
		_, err := kaplanmeier.New(kaplanmeier.WithConfidenceLevel(1))
		So(errors.Is(err, kaplanmeier.ErrInvalidConfidence), ShouldBeTrue)

		e, err := kaplanmeier.New(kaplanmeier.WithConfidenceLevel(0.9))
		So(err, ShouldBeNil)
		So(e.Z(), ShouldAlmostEqual, 1.644854, 1e-6)
	})
}

func TestCompareGroups(t *testing.T) {
	Convey("Given two cohorts", t, func() {
		a := kaplanmeier.Group{Label: "low", Durations: []float64{12, 24, 36, 48, 60}, Events: []int{0, 1, 0, 0, 0}}
		b := kaplanmeier.Group{Label: "high", Durations: exampleDurations, Events: exampleEvents}

		cmp, err := kaplanmeier.CompareGroups(a, b)
		So(err, ShouldBeNil)

		Convey("Both sides share the canonical grid", func() {
			So(cmp.A.Curve.Times, ShouldResemble, cmp.B.Curve.Times)
			So(cmp.A.Label, ShouldEqual, "low")
			So(cmp.B.Subjects, ShouldEqual, 5)
			So(cmp.B.Events, ShouldEqual, 3)
		})

		Convey("Each side carries its own median", func() {
			So(cmp.A.Median.Reached, ShouldBeFalse)
			So(cmp.B.Median.Months, ShouldEqual, 20)
		})
	})

	Convey("An invalid group fails with its label", t, func() {
		_, err := kaplanmeier.CompareGroups(
			kaplanmeier.Group{Label: "ok", Durations: []float64{1}, Events: []int{1}},
			kaplanmeier.Group{Label: "broken", Durations: []float64{1}, Events: nil},
		)
		So(errors.Is(err, kaplanmeier.ErrInvalidInput), ShouldBeTrue)
		So(err.Error(), ShouldContainSubstring, "broken")
	})
}
