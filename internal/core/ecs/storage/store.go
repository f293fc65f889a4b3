package storage

import (
	"fmt"
	"sync"

	"simkernel/internal/core/ecs"
)

// Store owns one Table per registered component type plus the per-entity
// presence bookkeeping spec.md's add/remove/has operations need for their
// AlreadyPresent/NotPresent errors. It mirrors the teacher's ComponentStore
// (a map of per-type storage guarded by one RWMutex, with its own
// entity→presence tracking distinct from the entity table's header mask).
type Store struct {
	mu       sync.RWMutex
	registry *Registry
	tables   map[ecs.ComponentTypeID]*Table
	presence map[ecs.EntityID]ecs.Mask
}

// NewStore creates a Store backed by registry, with one Table lazily
// created per type on first use.
func NewStore(registry *Registry) *Store {
	return &Store{
		registry: registry,
		tables:   make(map[ecs.ComponentTypeID]*Table),
		presence: make(map[ecs.EntityID]ecs.Mask),
	}
}

// Registry returns the registry this store was built from — snapshot
// providers need it to compute the default "all snapshotable" mask.
func (s *Store) Registry() *Registry { return s.registry }

func (s *Store) tableFor(id ecs.ComponentTypeID) (*Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tables[id]; ok {
		return t, nil
	}
	info, ok := s.registry.Lookup(id)
	if !ok {
		return nil, ecs.ErrUnknownComponent.WithComponent(id)
	}
	t := NewTable(info)
	s.tables[id] = t
	return t, nil
}

// Table returns the table for id without creating it; used by the
// snapshot package to iterate existing tables only.
func (s *Store) Table(id ecs.ComponentTypeID) (*Table, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[id]
	return t, ok
}

// Add places value at entity's slot for component type id, bumping the
// owning chunk to version, and fails with ErrAlreadyPresent if the bit is
// already set (spec.md §4.2).
func (s *Store) Add(entity ecs.EntityID, id ecs.ComponentTypeID, value any, version ecs.GlobalVersion) error {
	t, err := s.tableFor(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	mask := s.presence[entity]
	if mask.Has(id) {
		s.mu.Unlock()
		return ecs.ErrAlreadyPresent.WithEntity(entity).WithComponent(id)
	}
	s.presence[entity] = mask.Set(id)
	s.mu.Unlock()

	t.Write(entity.Index, value, version)
	return nil
}

// Remove clears the bit and the slot, bumping the owning chunk.
func (s *Store) Remove(entity ecs.EntityID, id ecs.ComponentTypeID, version ecs.GlobalVersion) error {
	s.mu.Lock()
	mask := s.presence[entity]
	if !mask.Has(id) {
		s.mu.Unlock()
		return ecs.ErrNotPresent.WithEntity(entity).WithComponent(id)
	}
	s.presence[entity] = mask.Clear(id)
	s.mu.Unlock()

	if t, ok := s.Table(id); ok {
		t.Clear(entity.Index, version)
	}
	return nil
}

// Has reports whether entity carries component id.
func (s *Store) Has(entity ecs.EntityID, id ecs.ComponentTypeID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.presence[entity].Has(id)
}

// Mask returns entity's full component presence mask.
func (s *Store) Mask(entity ecs.EntityID) ecs.Mask {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.presence[entity]
}

// GetRO returns a read-only handle to entity's component id, or
// ErrNotPresent.
func (s *Store) GetRO(entity ecs.EntityID, id ecs.ComponentTypeID) (any, error) {
	if !s.Has(entity, id) {
		return nil, ecs.ErrNotPresent.WithEntity(entity).WithComponent(id)
	}
	t, ok := s.Table(id)
	if !ok {
		return nil, ecs.ErrNotPresent.WithEntity(entity).WithComponent(id)
	}
	return t.ReadRO(entity.Index), nil
}

// GetRW returns a mutable handle to entity's component id, stamping the
// owning chunk with version, or ErrNotPresent.
func (s *Store) GetRW(entity ecs.EntityID, id ecs.ComponentTypeID, version ecs.GlobalVersion) (any, error) {
	if !s.Has(entity, id) {
		return nil, ecs.ErrNotPresent.WithEntity(entity).WithComponent(id)
	}
	t, ok := s.Table(id)
	if !ok {
		return nil, ecs.ErrNotPresent.WithEntity(entity).WithComponent(id)
	}
	return t.ReadRW(entity.Index, version), nil
}

// ForgetEntity drops entity's presence bookkeeping; called once its slot
// is fully reclaimed (after SanitizeDead has zeroed every table's slot).
func (s *Store) ForgetEntity(entity ecs.EntityID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.presence, entity)
}

// SyncFrom replays src's presence-and-data for every live entity into s,
// copying only the component types set in mask. There are no separate
// include-transient or exclude arguments: callers fold both into mask via
// Registry.SnapshotableMask(exclude, includeTransient). liveEntities is
// the set of entities to consider from src.
func (s *Store) SyncFrom(src *Store, liveEntities []ecs.EntityID, mask ecs.Mask, version ecs.GlobalVersion) error {
	indicesByType := make(map[ecs.ComponentTypeID][]uint32)

	src.mu.RLock()
	for _, e := range liveEntities {
		srcMask := src.presence[e]
		want := srcMask.And(mask)
		want.ForEach(func(id ecs.ComponentTypeID) {
			indicesByType[id] = append(indicesByType[id], e.Index)
		})
	}
	src.mu.RUnlock()

	for id, indices := range indicesByType {
		srcTable, ok := src.Table(id)
		if !ok {
			continue
		}
		dstTable, err := s.tableFor(id)
		if err != nil {
			return fmt.Errorf("sync component %d: %w", id, err)
		}
		dstTable.SyncFrom(srcTable, indices, version)
	}

	s.mu.Lock()
	for _, e := range liveEntities {
		srcMask := src.presence[e]
		s.presence[e] = srcMask.And(mask)
	}
	s.mu.Unlock()

	return nil
}

// SanitizeDead zeroes every table's slot for entities not in isLive, and
// drops their presence bookkeeping — the post-TearDown-drain cleanup
// spec.md §4.2 requires before any serialization export.
func (s *Store) SanitizeDead(isLive func(ecs.EntityID) bool, version ecs.GlobalVersion) {
	s.mu.Lock()
	var dead []ecs.EntityID
	for e := range s.presence {
		if !isLive(e) {
			dead = append(dead, e)
		}
	}
	tables := make([]*Table, 0, len(s.tables))
	for _, t := range s.tables {
		tables = append(tables, t)
	}
	s.mu.Unlock()

	deadSet := make(map[uint32]bool, len(dead))
	for _, e := range dead {
		deadSet[e.Index] = true
	}
	for _, t := range tables {
		t.SanitizeDead(func(index uint32) bool { return !deadSet[index] }, version)
	}

	s.mu.Lock()
	for _, e := range dead {
		delete(s.presence, e)
	}
	s.mu.Unlock()
}
