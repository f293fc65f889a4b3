// Package singleton implements the World Time & Singletons subsystem of
// spec.md §4.9: a typed map from component-type-id to one heap-stable
// value, plus the reserved GlobalTime slot the frame algorithm publishes
// after advancing the global version.
//
// No teacher file models a singleton slot directly; this package is
// grounded on the same map+RWMutex convention storage.Store and
// command.Buffer already follow, applied to a single-value-per-key store
// instead of a chunked or log-shaped one.
package singleton

import (
	"sync"

	"simkernel/internal/core/ecs"
)

// Registry is the process-lifetime singleton slot map. Values are stored
// exactly as passed to Set (GlobalTime is stored by value), so a caller
// that retains a Get result observes later Set calls to the same slot
// only by re-fetching — Registry makes no promise of in-place mutation,
// matching spec.md's "heap-stable value" wording (the slot's identity is
// stable, not necessarily the value a caller cached earlier).
type Registry struct {
	mu   sync.RWMutex
	vals map[ecs.ComponentTypeID]any
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{vals: make(map[ecs.ComponentTypeID]any)}
}

// Set overwrites the value stored at id.
func (r *Registry) Set(id ecs.ComponentTypeID, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vals[id] = value
}

// Get returns the value stored at id, or ok=false if nothing has been
// published yet.
func (r *Registry) Get(id ecs.ComponentTypeID) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.vals[id]
	return v, ok
}

// GlobalTimeSlot is the reserved key the GlobalTime singleton is always
// published under. Registry's key space is private to this package — it
// never shares ids with storage.Registry's component-type allocation — so
// reserving the top of the range only needs to avoid collisions with
// other singleton slots a caller defines, not with component types.
const GlobalTimeSlot ecs.ComponentTypeID = ecs.MaxComponentTypes - 1

// PublishGlobalTime writes t to the reserved GlobalTime slot. Called by
// scheduler.Host.Tick once per frame, after the global version is
// advanced and before any module's Input-phase systems run, per
// spec.md §4.9.
func (r *Registry) PublishGlobalTime(t ecs.GlobalTime) {
	r.Set(GlobalTimeSlot, t)
}

// GlobalTime returns the most recently published GlobalTime, or the zero
// value if none has been published yet (e.g. before the first frame).
func (r *Registry) GlobalTime() ecs.GlobalTime {
	v, ok := r.Get(GlobalTimeSlot)
	if !ok {
		return ecs.GlobalTime{}
	}
	return v.(ecs.GlobalTime)
}
