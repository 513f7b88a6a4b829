// Package bot defines the boundary with the external data-collection
// adapters. The browser automation behind each adapter lives outside
// this repository; here we hold the contract, the adapter registry, and
// the runner that wraps adapters with retry and rate limiting.
package bot

import (
	"context"

	"github.com/globalpass/standby-cli/internal/model"
)

// ProgressFunc receives progress notifications from a running adapter.
// Percent is 0-100; the caption is a short human-readable phase label.
type ProgressFunc func(percent int, caption string)

// Adapter collects raw flight records from one external source. Collect
// either returns records or fails with a source-specific error; it may
// emit any number of progress notifications before returning, and must
// honor context cancellation at its own suspension points.
type Adapter interface {
	Name() string
	Collect(ctx context.Context, criteria model.SearchCriteria, progress ProgressFunc) ([]model.RawFlightRecord, error)
}

// Registry holds the adapters available to a deployment, keyed by source
// name.
type Registry struct {
	adapters map[string]Adapter
	order    []string
}

// NewRegistry creates a registry from the given adapters, preserving
// their order for deterministic dispatch.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		if _, dup := r.adapters[a.Name()]; dup {
			continue
		}
		r.adapters[a.Name()] = a
		r.order = append(r.order, a.Name())
	}
	return r
}

// Get returns the adapter for a source name, or nil.
func (r *Registry) Get(name string) Adapter {
	return r.adapters[name]
}

// Names returns the registered source names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Select picks the sources applicable to the given criteria. Lookup
// searches target known flight numbers, so the schedule source (whose
// job is discovering selectable flights) is bypassed and only the
// pricing and loads sources run.
func (r *Registry) Select(criteria model.SearchCriteria) []string {
	var out []string
	for _, name := range r.order {
		if criteria.IsLookup() && name == model.SourceSchedule {
			continue
		}
		out = append(out, name)
	}
	return out
}
