package adapter

import (
	"fmt"
	"sort"

	"github.com/okian/survcast/internal/domain/survival"
)

// Registry is the immutable set of loaded adapters and the grid they share.
// Build it once at startup and pass it by reference.
type Registry struct {
	grid     survival.Grid
	landmark float64
	ordered  []Adapter
	byID     map[ID]Adapter
}

// NewRegistry indexes adapters. Duplicate ids are rejected and the reference
// adapter must be present.
func NewRegistry(grid survival.Grid, landmark float64, adapters ...Adapter) (*Registry, error) {
	if grid.IsZero() {
		grid = survival.Canonical()
	}
	r := &Registry{grid: grid, landmark: landmark, byID: make(map[ID]Adapter, len(adapters))}
	for _, a := range adapters {
		if a == nil {
			continue
		}
		if _, ok := r.byID[a.ID()]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicate, a.ID())
		}
		r.byID[a.ID()] = a
		r.ordered = append(r.ordered, a)
	}
	if _, ok := r.byID[Reference]; !ok {
		return nil, fmt.Errorf("%w: reference adapter %s not loaded", ErrUnknownAdapter, Reference)
	}
	sort.SliceStable(r.ordered, func(i, j int) bool { return Rank(r.ordered[i].ID()) < Rank(r.ordered[j].ID()) })
	return r, nil
}

// Grid is the shared time grid.
func (r *Registry) Grid() survival.Grid { return r.grid }

// Landmark is the landmark month.
func (r *Registry) Landmark() float64 { return r.landmark }

// Get returns the adapter with id.
func (r *Registry) Get(id ID) (Adapter, error) {
	a, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAdapter, id)
	}
	return a, nil
}

// Reference returns the adapter used for risk scoring.
func (r *Registry) Reference() Adapter { return r.byID[Reference] }

// All returns the adapters in priority order.
func (r *Registry) All() []Adapter {
	return append([]Adapter(nil), r.ordered...)
}

// Scores returns every adapter's validation score.
func (r *Registry) Scores() map[ID]Score {
	out := make(map[ID]Score, len(r.ordered))
	for _, a := range r.ordered {
		out[a.ID()] = a.ValidationScore()
	}
	return out
}
