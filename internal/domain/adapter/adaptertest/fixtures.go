// Package adaptertest provides small, hand-checkable models for tests.
package adaptertest

import (
	"github.com/okian/survcast/internal/domain/adapter"
	"github.com/okian/survcast/internal/domain/features"
	"github.com/okian/survcast/internal/domain/survival"
)

// CoxSpec has hazard ratio 1 for the default patient, so S(t) = exp(-H0(t)).
func CoxSpec() adapter.CoxSpec {
	return adapter.CoxSpec{
		Features:     []string{features.Age, features.TumorStage, features.LymphNodes},
		Coefficients: []float64{0.02, 0.5, 0.1},
		Means:        []float64{60, 2, 1},
		BaselineHazard: []survival.Point{
			{Time: 6, Value: 0.05},
			{Time: 12, Value: 0.12},
			{Time: 24, Value: 0.3},
			{Time: 36, Value: 0.5},
			{Time: 48, Value: 0.7},
			{Time: 60, Value: 0.9},
		},
		CIndex: 0.68,
	}
}

// ForestSpec splits on tumor stage and age. The default patient lands in
// both low-hazard leaves.
func ForestSpec() adapter.ForestSpec {
	return adapter.ForestSpec{
		Features:   []string{features.TumorStage, features.Age},
		EventTimes: []float64{6, 12, 24, 36, 60},
		Trees: []adapter.TreeSpec{
			{Nodes: []adapter.Node{
				{Feature: features.TumorStage, Threshold: 2, Left: 1, Right: 2},
				{CHF: []float64{0.02, 0.05, 0.1, 0.2, 0.3}},
				{CHF: []float64{0.1, 0.3, 0.7, 1.0, 1.5}},
			}},
			{Nodes: []adapter.Node{
				{Feature: features.Age, Threshold: 65, Left: 1, Right: 2},
				{CHF: []float64{0.02, 0.05, 0.15, 0.25, 0.4}},
				{CHF: []float64{0.05, 0.2, 0.5, 0.9, 1.2}},
			}},
		},
		Importances: []adapter.FeatureImportance{
			{Feature: features.Age, Importance: 0.4},
			{Feature: features.TumorStage, Importance: 0.6},
		},
		CIndex: 0.72,
	}
}

// DeepSurvSpec yields a raw risk of 0.05*age + 0.5*stage - 4, which is 0 for
// the default patient.
func DeepSurvSpec() adapter.DeepSurvSpec {
	return adapter.DeepSurvSpec{
		Features: []string{features.Age, features.TumorStage},
		Layers: []adapter.Layer{
			{Weights: [][]float64{{0.05, 0}, {0, 0.5}}, Bias: []float64{0, 0}, Activation: adapter.ActivationReLU},
			{Weights: [][]float64{{1, 1}}, Bias: []float64{-4}, Activation: adapter.ActivationLinear},
		},
		CIndex: 0.75,
	}
}

// Adapters builds all three fixtures.
func Adapters(opts ...adapter.Option) (*adapter.CoxModel, *adapter.ForestModel, *adapter.DeepSurvModel, error) {
	cox, err := adapter.NewCox(CoxSpec(), opts...)
	if err != nil {
		return nil, nil, nil, err
	}
	forest, err := adapter.NewForest(ForestSpec(), opts...)
	if err != nil {
		return nil, nil, nil, err
	}
	deep, err := adapter.NewDeepSurv(DeepSurvSpec(), opts...)
	if err != nil {
		return nil, nil, nil, err
	}
	return cox, forest, deep, nil
}

// Registry builds a registry over all three fixtures on the canonical grid.
func Registry() (*adapter.Registry, error) {
	cox, forest, deep, err := Adapters()
	if err != nil {
		return nil, err
	}
	return adapter.NewRegistry(survival.Canonical(), survival.DefaultLandmark, deep, forest, cox)
}

// HighRisk is a stage IV, 70 year old patient.
func HighRisk() features.Vector {
	v := features.Defaults()
	v[mustIndex(features.TumorStage)] = 4
	v[mustIndex(features.Age)] = 70
	return v
}

func mustIndex(name string) int {
	i, err := features.Index(name)
	if err != nil {
		panic(err)
	}
	return i
}
