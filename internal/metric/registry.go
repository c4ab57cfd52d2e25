// Package metric implements the metric definition and its append-only,
// per-output-cloned registry.
package metric

import "fmt"

// ValueType describes the numeric representation points of this metric
// carry. Mirrors measurement.ValueType but kept independent so this
// package has no dependency on internal/measurement.
type ValueType int

const (
	U64 ValueType = iota
	F64
)

// Metric is the static description of a named, typed, unit-carrying
// measurement kind.
type Metric struct {
	Name        string
	Description string
	ValueType   ValueType
	Unit        string
}

// Registry assigns dense integer ids to metrics and is append-only for the
// lifetime of the pipeline. Each Output task owns a private clone of a
// Registry rather than sharing one behind a lock, so a write's metric
// lookups never contend with registrations happening on other outputs.
type Registry struct {
	byID   []Metric
	byName map[string]uint32
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]uint32)}
}

// Register assigns a new dense id to m, or returns the existing id if a
// metric with the same name was already registered. Registration never
// fails: names collide only by idempotent re-registration.
func (r *Registry) Register(m Metric) uint32 {
	if id, ok := r.byName[m.Name]; ok {
		return id
	}
	id := uint32(len(r.byID))
	r.byID = append(r.byID, m)
	r.byName[m.Name] = id
	return id
}

// Lookup returns the metric registered under id.
func (r *Registry) Lookup(id uint32) (Metric, bool) {
	if int(id) >= len(r.byID) {
		return Metric{}, false
	}
	return r.byID[id], true
}

// LookupByName returns the id registered for name.
func (r *Registry) LookupByName(name string) (uint32, bool) {
	id, ok := r.byName[name]
	return id, ok
}

// Clone returns an independent copy of the registry, for handing to a new
// Output task's context.
func (r *Registry) Clone() *Registry {
	clone := &Registry{
		byID:   make([]Metric, len(r.byID)),
		byName: make(map[string]uint32, len(r.byName)),
	}
	copy(clone.byID, r.byID)
	for k, v := range r.byName {
		clone.byName[k] = v
	}
	return clone
}

func (m Metric) String() string {
	return fmt.Sprintf("%s (%s)", m.Name, m.Unit)
}
