// Package explain ranks the features that drive a model's prediction.
// Callers always receive a ranking: when every explainer fails the static
// fallback is returned instead.
package explain

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/okian/survcast/internal/domain/adapter"
	"github.com/okian/survcast/internal/domain/features"
)

// DefaultTopN is the number of features returned when the caller asks for none.
const DefaultTopN = 5

// Sources of a ranking.
const (
	SourceBuiltin   = "builtin"
	SourceOcclusion = "occlusion"
	SourceFallback  = "fallback"
)

// Sentinel kinds for explainer errors.
var (
	ErrNoSignal    = errors.New("explainer found no signal")
	ErrNoExplainer = errors.New("no explainer configured")
)

// Explainer ranks features for one patient and model.
type Explainer interface {
	Name() string
	Explain(ctx context.Context, a adapter.Adapter, v features.Vector) ([]adapter.FeatureImportance, error)
}

// Ranking is what callers receive.
type Ranking struct {
	Source   string                      `json:"source"`
	Features []adapter.FeatureImportance `json:"features"`
	// Err is the last explainer error when Source is SourceFallback.
	Err error `json:"-"`
}

// Fallback is the static ranking served when explanation fails.
func Fallback() []adapter.FeatureImportance {
	return []adapter.FeatureImportance{
		{Feature: "Tumor Stage", Importance: 0.28},
		{Feature: "Age", Importance: 0.24},
		{Feature: "TP53 Expression", Importance: 0.19},
		{Feature: "Treatment History", Importance: 0.16},
		{Feature: "Lymph Node Status", Importance: 0.13},
	}
}

// Explain tries each explainer in order and returns the first success,
// truncated to topN. It never fails.
func Explain(ctx context.Context, a adapter.Adapter, v features.Vector, topN int, explainers ...Explainer) Ranking {
	if topN <= 0 {
		topN = DefaultTopN
	}
	err := ErrNoExplainer
	for _, e := range explainers {
		if ctx.Err() != nil {
			err = ctx.Err()
			break
		}
		ranked, eerr := e.Explain(ctx, a, v)
		if eerr != nil {
			err = fmt.Errorf("%s: %w", e.Name(), eerr)
			continue
		}
		return Ranking{Source: e.Name(), Features: truncate(ranked, topN)}
	}
	return Ranking{Source: SourceFallback, Features: truncate(Fallback(), topN), Err: err}
}

func truncate(in []adapter.FeatureImportance, n int) []adapter.FeatureImportance {
	if len(in) > n {
		in = in[:n]
	}
	return append([]adapter.FeatureImportance(nil), in...)
}

// Builtin serves importances stored with models that declare them.
type Builtin struct{}

// Name implements Explainer.
func (Builtin) Name() string { return SourceBuiltin }

// Explain implements Explainer.
func (Builtin) Explain(_ context.Context, a adapter.Adapter, _ features.Vector) ([]adapter.FeatureImportance, error) {
	if !a.Capabilities().BuiltinImportance {
		return nil, fmt.Errorf("%w: %s", adapter.ErrUnsupported, a.ID())
	}
	imp, err := a.FeatureImportances()
	if err != nil {
		return nil, err
	}
	return labelled(imp), nil
}

// Occlusion measures how far the landmark survival moves when each model
// input is reset to its schema default. Shares are normalised to sum to 1.
type Occlusion struct{}

// Name implements Explainer.
func (Occlusion) Name() string { return SourceOcclusion }

// Explain implements Explainer.
func (Occlusion) Explain(ctx context.Context, a adapter.Adapter, v features.Vector) ([]adapter.FeatureImportance, error) {
	base, err := a.Predict(v)
	if err != nil {
		return nil, err
	}
	names := a.Features()
	out := make([]adapter.FeatureImportance, 0, len(names))
	total := 0.0
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		i, err := features.Index(name)
		if err != nil {
			return nil, err
		}
		est, err := a.Predict(v.With(i, features.Schema[i].Default))
		if err != nil {
			return nil, err
		}
		delta := math.Abs(base.LandmarkPercent-est.LandmarkPercent) / 100
		total += delta
		out = append(out, adapter.FeatureImportance{Feature: name, Importance: delta})
	}
	if total == 0 {
		return nil, ErrNoSignal
	}
	for i := range out {
		out[i].Importance /= total
	}
	return labelled(out), nil
}

func labelled(in []adapter.FeatureImportance) []adapter.FeatureImportance {
	out := make([]adapter.FeatureImportance, len(in))
	for i, fi := range in {
		out[i] = adapter.FeatureImportance{Feature: features.Label(fi.Feature), Importance: fi.Importance}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Importance > out[j].Importance })
	return out
}
