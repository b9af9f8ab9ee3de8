package adapter

import (
	"fmt"
	"math"

	"github.com/okian/survcast/internal/domain/features"
	"github.com/okian/survcast/internal/domain/survival"
)

// Activation names understood by the network.
const (
	ActivationReLU   = "relu"
	ActivationLinear = "linear"
)

// Risk normalisation defaults.
const (
	DefaultRiskShift = 3.0
	DefaultRiskScale = 2.0
	DefaultMaxRisk   = 5.0
)

// DefaultBaseline is the baseline survival at 0, 3, ..., 60 months.
var DefaultBaseline = []float64{
	1.0, 0.98, 0.96, 0.94, 0.92, 0.90, 0.88, 0.86, 0.84, 0.82,
	0.80, 0.78, 0.76, 0.74, 0.72, 0.70, 0.68, 0.66, 0.64, 0.62,
	0.60,
}

// Layer is a dense layer; Weights is out x in. Batch normalisation must
// already be folded into the weights.
type Layer struct {
	Weights    [][]float64
	Bias       []float64
	Activation string
}

// DeepSurvSpec is a trained feed-forward risk network.
type DeepSurvSpec struct {
	Features []string
	// InputMeans and InputScales standardise inputs when set.
	InputMeans  []float64
	InputScales []float64
	Layers      []Layer
	Baseline    []float64
	Shift       float64
	Scale       float64
	MaxRisk     float64
	CIndex      float64
}

// DeepSurvModel turns a scalar network risk into S(t) = baseline(t)^risk.
type DeepSurvModel struct {
	base
	means    []float64
	scales   []float64
	layers   []Layer
	baseline []float64
	shift    float64
	scale    float64
	maxRisk  float64
}

var _ Adapter = (*DeepSurvModel)(nil)

// NewDeepSurv validates spec and builds the adapter.
func NewDeepSurv(spec DeepSurvSpec, opts ...Option) (*DeepSurvModel, error) {
	b, err := newBase(DeepSurv, spec.CIndex, spec.Features, opts)
	if err != nil {
		return nil, err
	}
	n := len(spec.Features)
	if spec.InputMeans != nil && len(spec.InputMeans) != n {
		return nil, fmt.Errorf("%w: deepsurv has %d input means for %d features", ErrInvalidModel, len(spec.InputMeans), n)
	}
	if spec.InputScales != nil && len(spec.InputScales) != n {
		return nil, fmt.Errorf("%w: deepsurv has %d input scales for %d features", ErrInvalidModel, len(spec.InputScales), n)
	}
	for i, s := range spec.InputScales {
		if s == 0 {
			return nil, fmt.Errorf("%w: deepsurv input scale %d is zero", ErrInvalidModel, i)
		}
	}
	if len(spec.Layers) == 0 {
		return nil, fmt.Errorf("%w: deepsurv has no layers", ErrInvalidModel)
	}
	width := n
	for li, l := range spec.Layers {
		if len(l.Weights) == 0 || len(l.Weights) != len(l.Bias) {
			return nil, fmt.Errorf("%w: deepsurv layer %d has %d rows and %d biases", ErrInvalidModel, li, len(l.Weights), len(l.Bias))
		}
		for r, row := range l.Weights {
			if len(row) != width {
				return nil, fmt.Errorf("%w: deepsurv layer %d row %d has width %d, want %d", ErrInvalidModel, li, r, len(row), width)
			}
		}
		switch l.Activation {
		case ActivationReLU, ActivationLinear, "":
		default:
			return nil, fmt.Errorf("%w: deepsurv layer %d activation %q", ErrInvalidModel, li, l.Activation)
		}
		width = len(l.Weights)
	}
	if width != 1 {
		return nil, fmt.Errorf("%w: deepsurv output width %d, want 1", ErrInvalidModel, width)
	}

	baseline := spec.Baseline
	if len(baseline) == 0 {
		baseline = DefaultBaseline
	}
	for i, s := range baseline {
		if s < 0 || s > 1 {
			return nil, fmt.Errorf("%w: deepsurv baseline[%d]=%v", ErrInvalidModel, i, s)
		}
	}

	m := &DeepSurvModel{
		base:     b,
		means:    append([]float64(nil), spec.InputMeans...),
		scales:   append([]float64(nil), spec.InputScales...),
		layers:   spec.Layers,
		baseline: append([]float64(nil), baseline...),
		shift:    spec.Shift,
		scale:    spec.Scale,
		maxRisk:  spec.MaxRisk,
	}
	if m.scale == 0 {
		m.shift, m.scale = DefaultRiskShift, DefaultRiskScale
	}
	if m.maxRisk <= 0 {
		m.maxRisk = DefaultMaxRisk
	}
	return m, nil
}

// Capabilities implements Adapter.
func (m *DeepSurvModel) Capabilities() Capabilities { return Capabilities{} }

// FeatureImportances implements Adapter.
func (m *DeepSurvModel) FeatureImportances() ([]FeatureImportance, error) {
	return nil, fmt.Errorf("%w: %s builtin importance", ErrUnsupported, m.id)
}

// RawRisk runs the network forward.
func (m *DeepSurvModel) RawRisk(v features.Vector) (float64, error) {
	x, err := m.inputs(v)
	if err != nil {
		return 0, err
	}
	for i := range x {
		if m.means != nil {
			x[i] -= m.means[i]
		}
		if m.scales != nil {
			x[i] /= m.scales[i]
		}
	}
	for _, l := range m.layers {
		next := make([]float64, len(l.Weights))
		for r, row := range l.Weights {
			sum := l.Bias[r]
			for c, w := range row {
				sum += w * x[c]
			}
			if l.Activation == ActivationReLU && sum < 0 {
				sum = 0
			}
			next[r] = sum
		}
		x = next
	}
	return x[0], nil
}

// NormalizeRisk maps a raw risk onto [0, maxRisk].
func (m *DeepSurvModel) NormalizeRisk(raw float64) float64 {
	return math.Max(0, math.Min(m.maxRisk, (raw+m.shift)/m.scale))
}

// Predict implements Adapter.
func (m *DeepSurvModel) Predict(v features.Vector) (survival.Estimate, error) {
	raw, err := m.RawRisk(v)
	if err != nil {
		return survival.Estimate{}, err
	}
	risk := m.NormalizeRisk(raw)

	times := m.grid.Times()
	curve := make([]float64, len(times))
	for i := range times {
		b := m.baseline[min(i, len(m.baseline)-1)]
		curve[i] = math.Pow(b, risk)
	}

	median := survival.NotReached(m.grid.Horizon())
	for i := 0; i < len(m.baseline) && i < len(times); i++ {
		if curve[i] <= 0.5 {
			median = survival.Median{Months: times[i], Reached: true}
			break
		}
	}

	return survival.Estimate{
		Median:          median,
		LandmarkPercent: survival.ToPercent(curve[m.grid.Nearest(m.landmark)]),
		Curve:           survival.Curve{Times: times, Survival: curve},
	}, nil
}
