// Package adapter wraps each fitted survival model behind a common contract
// that yields canonical, grid-aligned survival estimates.
package adapter

import (
	"fmt"
	"sort"

	"github.com/okian/survcast/internal/domain/features"
	"github.com/okian/survcast/internal/domain/survival"
)

// ID identifies an adapter variant.
type ID string

// Known adapters.
const (
	Cox      ID = "cox"
	Forest   ID = "rsf"
	DeepSurv ID = "deepsurv"
)

// Priority breaks validation score ties, first wins.
var Priority = []ID{Cox, Forest, DeepSurv}

// Rank is the position of id in Priority. Unknown ids rank last.
func Rank(id ID) int {
	for i, p := range Priority {
		if p == id {
			return i
		}
	}
	return len(Priority)
}

// Reference is the adapter whose landmark survival drives the risk score.
const Reference = Forest

// Score is the fixed validation concordance of a model.
type Score struct {
	CIndex float64 `json:"cIndex"`
}

// Capabilities are declared by each adapter at construction.
type Capabilities struct {
	BuiltinImportance bool `json:"builtinImportance"`
}

// FeatureImportance is one entry of a feature ranking.
type FeatureImportance struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

// Adapter is a loaded, immutable survival model.
type Adapter interface {
	ID() ID
	Predict(v features.Vector) (survival.Estimate, error)
	ValidationScore() Score
	Capabilities() Capabilities
	// FeatureImportances returns ErrUnsupported unless the adapter declares
	// BuiltinImportance.
	FeatureImportances() ([]FeatureImportance, error)
	// Features lists the schema names the model reads.
	Features() []string
}

// base carries the fields every variant shares.
type base struct {
	id       ID
	score    Score
	names    []string
	idx      []int
	grid     survival.Grid
	landmark float64
}

func newBase(id ID, cIndex float64, names []string, opts []Option) (base, error) {
	if cIndex < 0 || cIndex > 1 {
		return base{}, fmt.Errorf("%w: %s c-index %v outside [0,1]", ErrInvalidModel, id, cIndex)
	}
	if len(names) == 0 {
		return base{}, fmt.Errorf("%w: %s declares no features", ErrInvalidModel, id)
	}
	idx, err := features.Indices(names)
	if err != nil {
		return base{}, fmt.Errorf("%w: %s: %v", ErrInvalidModel, id, err)
	}
	s := settings{grid: survival.Canonical(), landmark: survival.DefaultLandmark}
	for _, opt := range opts {
		opt(&s)
	}
	return base{
		id:       id,
		score:    Score{CIndex: cIndex},
		names:    append([]string(nil), names...),
		idx:      idx,
		grid:     s.grid,
		landmark: s.landmark,
	}, nil
}

func (b base) ID() ID                 { return b.id }
func (b base) ValidationScore() Score { return b.score }
func (b base) Features() []string     { return append([]string(nil), b.names...) }

func (b base) inputs(v features.Vector) ([]float64, error) {
	if len(v) != len(features.Schema) {
		return nil, fmt.Errorf("%w: %s got %d values, want %d", ErrFeatureMismatch, b.id, len(v), len(features.Schema))
	}
	return v.Project(b.idx), nil
}

func sortImportances(in []FeatureImportance) []FeatureImportance {
	out := append([]FeatureImportance(nil), in...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Importance > out[j].Importance })
	return out
}
