package artifact

import (
	"github.com/rotisserie/eris"

	"github.com/okian/survcast/internal/domain/adapter"
	"github.com/okian/survcast/internal/domain/survival"
)

// Build constructs every model the manifest declares and indexes them.
// A model that fails validation fails the whole build.
func Build(m *Manifest, grid survival.Grid, landmark float64) (*adapter.Registry, error) {
	opts := []adapter.Option{adapter.WithGrid(grid), adapter.WithLandmark(landmark)}
	var adapters []adapter.Adapter

	if m.Cox != nil {
		a, err := adapter.NewCox(m.Cox.CoxSpec(), opts...)
		if err != nil {
			return nil, eris.Wrap(err, "artifact: build cox")
		}
		adapters = append(adapters, a)
	}
	if m.Forest != nil {
		a, err := adapter.NewForest(m.Forest.ForestSpec(), opts...)
		if err != nil {
			return nil, eris.Wrap(err, "artifact: build rsf")
		}
		adapters = append(adapters, a)
	}
	if m.DeepSurv != nil {
		a, err := adapter.NewDeepSurv(m.DeepSurv.DeepSurvSpec(), opts...)
		if err != nil {
			return nil, eris.Wrap(err, "artifact: build deepsurv")
		}
		adapters = append(adapters, a)
	}

	reg, err := adapter.NewRegistry(grid, landmark, adapters...)
	if err != nil {
		return nil, eris.Wrap(err, "artifact: index adapters")
	}
	return reg, nil
}

// Load reads the manifest at path and builds the registry.
func Load(path string, grid survival.Grid, landmark float64) (*adapter.Registry, error) {
	m, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Build(m, grid, landmark)
}
