package adapter

import (
	"fmt"
	"math"

	"github.com/okian/survcast/internal/domain/features"
	"github.com/okian/survcast/internal/domain/survival"
)

// Node is one node of a survival tree. A node with a nil CHF is a split:
// samples with x[Feature] <= Threshold go Left, others go Right. Leaves hold
// the cumulative hazard at every forest event time.
type Node struct {
	Feature   string
	Threshold float64
	Left      int
	Right     int
	CHF       []float64
}

// TreeSpec is a tree rooted at node 0.
type TreeSpec struct {
	Nodes []Node
}

// ForestSpec is a fitted random survival forest.
type ForestSpec struct {
	Features    []string
	EventTimes  []float64
	Trees       []TreeSpec
	Importances []FeatureImportance
	CIndex      float64
}

type compiledNode struct {
	feature   int // index into the projected inputs
	threshold float64
	left      int
	right     int
	chf       []float64
}

// ForestModel averages per-tree cumulative hazards at its own event times.
// Grid points take the value at the nearest event time, not an
// interpolation.
type ForestModel struct {
	base
	eventTimes  []float64
	trees       [][]compiledNode
	importances []FeatureImportance
}

var _ Adapter = (*ForestModel)(nil)

// NewForest validates spec and builds the adapter.
func NewForest(spec ForestSpec, opts ...Option) (*ForestModel, error) {
	b, err := newBase(Forest, spec.CIndex, spec.Features, opts)
	if err != nil {
		return nil, err
	}
	if len(spec.EventTimes) == 0 {
		return nil, fmt.Errorf("%w: rsf has no event times", ErrInvalidModel)
	}
	for i := 1; i < len(spec.EventTimes); i++ {
		if spec.EventTimes[i] <= spec.EventTimes[i-1] {
			return nil, fmt.Errorf("%w: rsf event times not increasing at %d", ErrInvalidModel, i)
		}
	}
	if len(spec.Trees) == 0 {
		return nil, fmt.Errorf("%w: rsf has no trees", ErrInvalidModel)
	}

	local := make(map[string]int, len(spec.Features))
	for i, f := range spec.Features {
		local[f] = i
	}

	trees := make([][]compiledNode, len(spec.Trees))
	for t, tree := range spec.Trees {
		nodes, err := compileTree(tree, local, len(spec.EventTimes))
		if err != nil {
			return nil, fmt.Errorf("%w: rsf tree %d: %v", ErrInvalidModel, t, err)
		}
		trees[t] = nodes
	}

	return &ForestModel{
		base:        b,
		eventTimes:  append([]float64(nil), spec.EventTimes...),
		trees:       trees,
		importances: sortImportances(spec.Importances),
	}, nil
}

// compileTree resolves feature names and checks that children come after
// their parent, which rules out cycles.
func compileTree(tree TreeSpec, local map[string]int, width int) ([]compiledNode, error) {
	if len(tree.Nodes) == 0 {
		return nil, fmt.Errorf("empty tree")
	}
	out := make([]compiledNode, len(tree.Nodes))
	for i, n := range tree.Nodes {
		if n.CHF != nil {
			if len(n.CHF) != width {
				return nil, fmt.Errorf("leaf %d has %d hazards, want %d", i, len(n.CHF), width)
			}
			for k := range n.CHF {
				if n.CHF[k] < 0 || (k > 0 && n.CHF[k] < n.CHF[k-1]) {
					return nil, fmt.Errorf("leaf %d hazard is not a cumulative hazard", i)
				}
			}
			out[i] = compiledNode{feature: -1, chf: n.CHF}
			continue
		}
		f, ok := local[n.Feature]
		if !ok {
			return nil, fmt.Errorf("node %d splits on undeclared feature %q", i, n.Feature)
		}
		if n.Left <= i || n.Right <= i || n.Left >= len(tree.Nodes) || n.Right >= len(tree.Nodes) {
			return nil, fmt.Errorf("node %d has invalid children %d/%d", i, n.Left, n.Right)
		}
		out[i] = compiledNode{feature: f, threshold: n.Threshold, left: n.Left, right: n.Right}
	}
	return out, nil
}

// Capabilities implements Adapter.
func (m *ForestModel) Capabilities() Capabilities {
	return Capabilities{BuiltinImportance: len(m.importances) > 0}
}

// FeatureImportances implements Adapter.
func (m *ForestModel) FeatureImportances() ([]FeatureImportance, error) {
	if len(m.importances) == 0 {
		return nil, fmt.Errorf("%w: %s has no stored importances", ErrUnsupported, m.id)
	}
	return append([]FeatureImportance(nil), m.importances...), nil
}

// EventTimes returns the forest's native time axis.
func (m *ForestModel) EventTimes() []float64 {
	return append([]float64(nil), m.eventTimes...)
}

// SurvivalFunction returns exp(-mean CHF) at every event time.
func (m *ForestModel) SurvivalFunction(v features.Vector) ([]survival.Point, error) {
	x, err := m.inputs(v)
	if err != nil {
		return nil, err
	}
	chf := make([]float64, len(m.eventTimes))
	for _, tree := range m.trees {
		leaf := descend(tree, x)
		for k, h := range leaf {
			chf[k] += h
		}
	}
	pts := make([]survival.Point, len(m.eventTimes))
	n := float64(len(m.trees))
	for k, t := range m.eventTimes {
		pts[k] = survival.Point{Time: t, Value: math.Exp(-chf[k] / n)}
	}
	return pts, nil
}

func descend(tree []compiledNode, x []float64) []float64 {
	i := 0
	for tree[i].chf == nil {
		if x[tree[i].feature] <= tree[i].threshold {
			i = tree[i].left
		} else {
			i = tree[i].right
		}
	}
	return tree[i].chf
}

// Predict implements Adapter.
func (m *ForestModel) Predict(v features.Vector) (survival.Estimate, error) {
	pts, err := m.SurvivalFunction(v)
	if err != nil {
		return survival.Estimate{}, err
	}
	times := m.grid.Times()
	native := make([]float64, len(pts))
	for i, p := range pts {
		native[i] = p.Value
	}
	landmark := survival.ResampleNearest(pts, []float64{m.landmark})[0]
	return survival.Estimate{
		Median:          survival.MedianOf(m.eventTimes, native, m.grid.Horizon()),
		LandmarkPercent: survival.ToPercent(landmark),
		Curve:           survival.Curve{Times: times, Survival: survival.ResampleNearest(pts, times)},
	}, nil
}
