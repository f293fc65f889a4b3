package snapshot

import (
	"sync"
	"sync/atomic"

	"simkernel/internal/core/ecs"
	"simkernel/internal/core/ecs/entitytable"
	"simkernel/internal/core/ecs/storage"
)

// GDB is the double-buffered replica provider: it owns two full
// component-storage replicas and flips the active index on every
// Sync. Legal only for FrameSynced modules. Unlike SoD/Convoy, GDB's
// refresh cadence is once per frame regardless of how many modules
// read it, so Sync is a distinct call the scheduler makes before any
// FrameSynced module's tick — Acquire itself never re-syncs.
type GDB struct {
	registry *storage.Registry
	excluded ecs.Mask

	mu       sync.Mutex
	replicas [2]*storage.Store
	active   int32 // atomic index into replicas
	version  ecs.GlobalVersion
}

// NewGDB creates a GDB provider over registry, excluding excluded from
// every sync (components besides transients the module never needs).
func NewGDB(registry *storage.Registry, excluded ecs.Mask) *GDB {
	return &GDB{
		registry: registry,
		excluded: excluded,
		replicas: [2]*storage.Store{storage.NewStore(registry), storage.NewStore(registry)},
	}
}

// Acquire returns the currently active replica. live/liveTable are
// ignored: the active replica was already refreshed by the most
// recent Sync call.
func (g *GDB) Acquire(_ *storage.Store, _ *entitytable.Table, _ ecs.GlobalVersion) (*View, error) {
	idx := atomic.LoadInt32(&g.active)
	return &View{Store: g.replicas[idx], version: g.version}, nil
}

// Release is a no-op: GDB replicas are not pool-leased, they are
// owned for the provider's lifetime.
func (g *GDB) Release(*View) {}

// Sync flips the inactive replica to become the new active one after
// refreshing it from live: mask is "all snapshotable minus excluded".
func (g *GDB) Sync(live *storage.Store, liveTable *entitytable.Table, globalVersion ecs.GlobalVersion) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	nextIdx := 1 - atomic.LoadInt32(&g.active)
	mask := g.registry.SnapshotableMask(g.excluded, false)
	if err := g.replicas[nextIdx].SyncFrom(live, liveTable.LiveEntities(), mask, globalVersion); err != nil {
		return err
	}
	g.version = globalVersion
	atomic.StoreInt32(&g.active, nextIdx)
	return nil
}

var _ Provider = (*GDB)(nil)
