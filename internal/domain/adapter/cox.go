package adapter

import (
	"fmt"
	"math"

	"github.com/okian/survcast/internal/domain/features"
	"github.com/okian/survcast/internal/domain/survival"
)

// CoxSpec is a fitted proportional-hazards model.
type CoxSpec struct {
	Features     []string
	Coefficients []float64
	// Means centre the linear predictor.
	Means []float64
	// BaselineHazard is the cumulative baseline hazard H0(t), ordered by time.
	BaselineHazard []survival.Point
	CIndex         float64
}

// CoxModel predicts S(t|x) = exp(-H0(t) * exp(beta . (x - mean))).
type CoxModel struct {
	base
	beta     []float64
	means    []float64
	baseline []survival.Point
}

var _ Adapter = (*CoxModel)(nil)

// NewCox validates spec and builds the adapter.
func NewCox(spec CoxSpec, opts ...Option) (*CoxModel, error) {
	b, err := newBase(Cox, spec.CIndex, spec.Features, opts)
	if err != nil {
		return nil, err
	}
	n := len(spec.Features)
	if len(spec.Coefficients) != n {
		return nil, fmt.Errorf("%w: cox has %d coefficients for %d features", ErrInvalidModel, len(spec.Coefficients), n)
	}
	means := spec.Means
	if means == nil {
		means = make([]float64, n)
	}
	if len(means) != n {
		return nil, fmt.Errorf("%w: cox has %d means for %d features", ErrInvalidModel, len(means), n)
	}
	if len(spec.BaselineHazard) == 0 {
		return nil, fmt.Errorf("%w: cox baseline hazard is empty", ErrInvalidModel)
	}
	for i, p := range spec.BaselineHazard {
		if p.Value < 0 || p.Time < 0 {
			return nil, fmt.Errorf("%w: cox baseline[%d] is negative", ErrInvalidModel, i)
		}
		if i > 0 && (p.Time <= spec.BaselineHazard[i-1].Time || p.Value < spec.BaselineHazard[i-1].Value) {
			return nil, fmt.Errorf("%w: cox baseline[%d] is not increasing", ErrInvalidModel, i)
		}
	}
	return &CoxModel{
		base:     b,
		beta:     append([]float64(nil), spec.Coefficients...),
		means:    append([]float64(nil), means...),
		baseline: append([]survival.Point(nil), spec.BaselineHazard...),
	}, nil
}

// Capabilities implements Adapter.
func (m *CoxModel) Capabilities() Capabilities { return Capabilities{} }

// FeatureImportances implements Adapter.
func (m *CoxModel) FeatureImportances() ([]FeatureImportance, error) {
	return nil, fmt.Errorf("%w: %s builtin importance", ErrUnsupported, m.id)
}

// PartialHazard is exp(beta . (x - mean)).
func (m *CoxModel) PartialHazard(v features.Vector) (float64, error) {
	x, err := m.inputs(v)
	if err != nil {
		return 0, err
	}
	lp := 0.0
	for i, b := range m.beta {
		lp += b * (x[i] - m.means[i])
	}
	return math.Exp(lp), nil
}

// SurvivalFunction returns the patient's native survival function.
func (m *CoxModel) SurvivalFunction(v features.Vector) ([]survival.Point, error) {
	hr, err := m.PartialHazard(v)
	if err != nil {
		return nil, err
	}
	pts := make([]survival.Point, len(m.baseline))
	for i, h := range m.baseline {
		pts[i] = survival.Point{Time: h.Time, Value: math.Exp(-h.Value * hr)}
	}
	return pts, nil
}

// Predict implements Adapter.
func (m *CoxModel) Predict(v features.Vector) (survival.Estimate, error) {
	pts, err := m.SurvivalFunction(v)
	if err != nil {
		return survival.Estimate{}, err
	}
	times := m.grid.Times()
	curve := survival.Resample(pts, times)
	return survival.Estimate{
		Median:          survival.MedianOf(times, curve, m.grid.Horizon()),
		LandmarkPercent: survival.ToPercent(curve[m.grid.Nearest(m.landmark)]),
		Curve:           survival.Curve{Times: times, Survival: curve},
	}, nil
}
