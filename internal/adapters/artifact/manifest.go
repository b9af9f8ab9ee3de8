// Package artifact loads fitted model parameters from a YAML manifest and
// builds the adapter registry the service runs on.
package artifact

import (
	"bytes"
	"errors"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/okian/survcast/internal/domain/adapter"
	"github.com/okian/survcast/internal/domain/survival"
)

// ErrInvalidManifest is returned for manifests that parse but cannot be used.
var ErrInvalidManifest = errors.New("invalid model manifest")

// Manifest is the on-disk model bundle.
type Manifest struct {
	Version  int          `yaml:"version"`
	Cox      *CoxDoc      `yaml:"cox,omitempty"`
	Forest   *ForestDoc   `yaml:"rsf,omitempty"`
	DeepSurv *DeepSurvDoc `yaml:"deepsurv,omitempty"`
}

// PointDoc is one (time, value) pair.
type PointDoc struct {
	Time  float64 `yaml:"t"`
	Value float64 `yaml:"v"`
}

// CoxDoc holds a proportional-hazards fit.
type CoxDoc struct {
	CIndex         float64    `yaml:"c_index"`
	Features       []string   `yaml:"features"`
	Coefficients   []float64  `yaml:"coefficients"`
	Means          []float64  `yaml:"means"`
	BaselineHazard []PointDoc `yaml:"baseline_hazard"`
}

// ForestDoc holds a random survival forest.
type ForestDoc struct {
	CIndex      float64            `yaml:"c_index"`
	Features    []string           `yaml:"features"`
	EventTimes  []float64          `yaml:"event_times"`
	Importances map[string]float64 `yaml:"importances"`
	Trees       [][]NodeDoc        `yaml:"trees"`
}

// NodeDoc is a split (feature set) or a leaf (chf set).
type NodeDoc struct {
	Feature   string    `yaml:"feature,omitempty"`
	Threshold float64   `yaml:"threshold,omitempty"`
	Left      int       `yaml:"left,omitempty"`
	Right     int       `yaml:"right,omitempty"`
	CHF       []float64 `yaml:"chf,omitempty"`
}

// DeepSurvDoc holds a feed-forward risk network.
type DeepSurvDoc struct {
	CIndex      float64    `yaml:"c_index"`
	Features    []string   `yaml:"features"`
	InputMeans  []float64  `yaml:"input_means"`
	InputScales []float64  `yaml:"input_scales"`
	Layers      []LayerDoc `yaml:"layers"`
	Baseline    []float64  `yaml:"baseline"`
	RiskShift   float64    `yaml:"risk_shift"`
	RiskScale   float64    `yaml:"risk_scale"`
	MaxRisk     float64    `yaml:"max_risk"`
}

// LayerDoc is one dense layer.
type LayerDoc struct {
	Weights    [][]float64 `yaml:"weights"`
	Bias       []float64   `yaml:"bias"`
	Activation string      `yaml:"activation"`
}

// ReadFile reads and parses a manifest.
func ReadFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "artifact: read manifest %s", path)
	}
	return Parse(data)
}

// Parse decodes a manifest document. Unknown keys are rejected.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, eris.Wrap(err, "artifact: parse manifest")
	}
	if m.Version != 1 {
		return nil, eris.Wrapf(ErrInvalidManifest, "artifact: unsupported manifest version %d", m.Version)
	}
	if m.Cox == nil && m.Forest == nil && m.DeepSurv == nil {
		return nil, eris.Wrap(ErrInvalidManifest, "artifact: manifest declares no models")
	}
	return &m, nil
}

// CoxSpec converts the document to the adapter's spec.
func (d *CoxDoc) CoxSpec() adapter.CoxSpec {
	return adapter.CoxSpec{
		Features:       d.Features,
		Coefficients:   d.Coefficients,
		Means:          d.Means,
		BaselineHazard: points(d.BaselineHazard),
		CIndex:         d.CIndex,
	}
}

// ForestSpec converts the document to the adapter's spec.
func (d *ForestDoc) ForestSpec() adapter.ForestSpec {
	spec := adapter.ForestSpec{
		Features:   d.Features,
		EventTimes: d.EventTimes,
		CIndex:     d.CIndex,
	}
	for _, name := range d.Features {
		if imp, ok := d.Importances[name]; ok {
			spec.Importances = append(spec.Importances, adapter.FeatureImportance{Feature: name, Importance: imp})
		}
	}
	for _, tree := range d.Trees {
		nodes := make([]adapter.Node, len(tree))
		for i, n := range tree {
			nodes[i] = adapter.Node{Feature: n.Feature, Threshold: n.Threshold, Left: n.Left, Right: n.Right, CHF: n.CHF}
		}
		spec.Trees = append(spec.Trees, adapter.TreeSpec{Nodes: nodes})
	}
	return spec
}

// DeepSurvSpec converts the document to the adapter's spec.
func (d *DeepSurvDoc) DeepSurvSpec() adapter.DeepSurvSpec {
	layers := make([]adapter.Layer, len(d.Layers))
	for i, l := range d.Layers {
		layers[i] = adapter.Layer{Weights: l.Weights, Bias: l.Bias, Activation: l.Activation}
	}
	return adapter.DeepSurvSpec{
		Features:    d.Features,
		InputMeans:  d.InputMeans,
		InputScales: d.InputScales,
		Layers:      layers,
		Baseline:    d.Baseline,
		Shift:       d.RiskShift,
		Scale:       d.RiskScale,
		MaxRisk:     d.MaxRisk,
		CIndex:      d.CIndex,
	}
}

func points(in []PointDoc) []survival.Point {
	out := make([]survival.Point, len(in))
	for i, p := range in {
		out[i] = survival.Point{Time: p.Time, Value: p.Value}
	}
	return out
}
