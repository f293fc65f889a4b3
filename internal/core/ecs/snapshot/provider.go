// Package snapshot implements the four Snapshot Provider kinds of
// spec.md §4.6: Direct, GDB (double-buffered replica), SoD (pooled
// on-demand), and Convoy (shared SoD with refcounting).
//
// Pooling is grounded on the teacher's memory_manager.go, which backs
// its ObjectPool with sync.Pool keyed by size class; SoD does the same
// thing keyed by component mask instead of byte size.
package snapshot

import (
	"simkernel/internal/core/ecs"
	"simkernel/internal/core/ecs/entitytable"
	"simkernel/internal/core/ecs/storage"
)

// View is what a provider hands a module for the duration of one tick:
// a read path into component storage plus the version it was
// synchronized at.
type View struct {
	Store   *storage.Store
	version ecs.GlobalVersion
}

// Version implements ecs.View.
func (v *View) Version() ecs.GlobalVersion { return v.version }

// Provider is the common shape spec.md §4.6 describes. Acquire is
// handed the live world on every call because two of the four
// implementations (SoD, Convoy) perform their sync_from inline at
// acquire time rather than on a separate per-frame cadence; Direct and
// GDB simply ignore the live-world argument when they already hold
// what they need.
type Provider interface {
	Acquire(live *storage.Store, liveTable *entitytable.Table, globalVersion ecs.GlobalVersion) (*View, error)
	Release(*View)
}

// Direct returns the live store untouched; legal only for Sync
// modules, which run on the main thread and so need no isolation from
// concurrent writers. sync_from is a no-op by construction: there is
// no replica to refresh.
type Direct struct{}

// NewDirect creates a Direct provider.
func NewDirect() *Direct { return &Direct{} }

// Acquire returns a view over the live store itself.
func (d *Direct) Acquire(live *storage.Store, _ *entitytable.Table, globalVersion ecs.GlobalVersion) (*View, error) {
	return &View{Store: live, version: globalVersion}, nil
}

// Release is a no-op for Direct: there is nothing to return to a pool.
func (d *Direct) Release(*View) {}

var _ Provider = (*Direct)(nil)
