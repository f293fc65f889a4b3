package snapshot

import (
	"sync"

	"simkernel/internal/core/ecs"
	"simkernel/internal/core/ecs/entitytable"
	"simkernel/internal/core/ecs/storage"
)

// SoD ("snapshot on demand") leases pre-synchronized replicas from a
// shared pool, narrowed to a fixed per-provider component mask (the
// owning module's declared required components). Backed by sync.Pool,
// the same size-classed pooling idiom the teacher's memory manager
// uses for byte buffers, applied here to whole component-storage
// replicas keyed by mask. If the pool is empty a new replica is
// allocated (warm growth); steady state leases back a recycled one.
type SoD struct {
	registry *storage.Registry
	mask     ecs.Mask
	pool     sync.Pool
}

// NewSoD creates a pool-backed provider restricted to mask.
func NewSoD(registry *storage.Registry, mask ecs.Mask) *SoD {
	s := &SoD{registry: registry, mask: mask}
	s.pool.New = func() any { return storage.NewStore(registry) }
	return s
}

// Mask returns the provider's fixed snapshot mask.
func (s *SoD) Mask() ecs.Mask { return s.mask }

// Acquire leases a replica from the pool and synchronizes it against
// live with this provider's mask before returning it.
func (s *SoD) Acquire(live *storage.Store, liveTable *entitytable.Table, globalVersion ecs.GlobalVersion) (*View, error) {
	replica := s.pool.Get().(*storage.Store)
	if err := replica.SyncFrom(live, liveTable.LiveEntities(), s.mask, globalVersion); err != nil {
		s.pool.Put(replica)
		return nil, err
	}
	return &View{Store: replica, version: globalVersion}, nil
}

// Release returns the leased replica to the pool.
func (s *SoD) Release(v *View) {
	if v == nil || v.Store == nil {
		return
	}
	s.pool.Put(v.Store)
}

var _ Provider = (*SoD)(nil)
