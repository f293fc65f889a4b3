// Package entitytable implements the Entity Table subsystem of spec.md
// §4.1: stable entity handles, liveness, per-entity component-presence
// mask, and the lifecycle state machine. It also carries the supplementary
// "Entity Index" (tags/groups/archetypes) SPEC_FULL.md adds for parity with
// a complete engine.
//
// Grounded on the teacher's DefaultEntityManager (a free-list of recycled
// ids behind one RWMutex, generation-free in the teacher but generation is
// exactly what spec.md's stale-handle guarantee needs, so it is added
// here).
package entitytable

import (
	"sync"

	"simkernel/internal/core/ecs"
)

// Header is the per-slot record spec.md §3 describes. It stores no chunk
// address: storage.Table derives chunk id and slot-in-chunk from the
// entity's Index and the registry's chunk size, so "chunk_address" names
// the same physical slot in every component table.
type Header struct {
	Generation uint32
	Lifecycle  ecs.Lifecycle
	Mask       ecs.Mask
}

// Table is the Entity Table: it allocates stable entity handles and tracks
// liveness and lifecycle. Mutated only on the main thread (spec.md §4.1's
// ordering invariant).
type Table struct {
	mu        sync.RWMutex
	headers   []Header // index 0 is the reserved invalid slot
	freeList  []uint32
	maxSlots  int
	nextIndex uint32
}

// NewTable creates an Entity Table whose slot budget is maxSlots,
// counting the reserved index 0, so at most maxSlots-1 entities can be
// allocated (0 means unbounded).
func NewTable(maxSlots int) *Table {
	t := &Table{maxSlots: maxSlots}
	t.headers = append(t.headers, Header{}) // reserve index 0
	t.nextIndex = 1
	return t
}

func (t *Table) allocSlot() (uint32, error) {
	if len(t.freeList) > 0 {
		idx := t.freeList[len(t.freeList)-1]
		t.freeList = t.freeList[:len(t.freeList)-1]
		return idx, nil
	}
	if t.maxSlots > 0 && len(t.headers) >= t.maxSlots {
		return 0, ecs.ErrOutOfEntities
	}
	idx := t.nextIndex
	t.nextIndex++
	t.headers = append(t.headers, Header{})
	return idx, nil
}

// CreateEntity allocates a handle in Active state with an empty mask.
func (t *Table) CreateEntity() (ecs.EntityID, error) {
	return t.create(ecs.Active)
}

// CreateStaged allocates a handle in Constructing state — invisible to
// default queries until the lifecycle coordinator promotes it to Active.
func (t *Table) CreateStaged() (ecs.EntityID, error) {
	return t.create(ecs.Constructing)
}

func (t *Table) create(state ecs.Lifecycle) (ecs.EntityID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx, err := t.allocSlot()
	if err != nil {
		return ecs.Invalid, err
	}
	gen := t.headers[idx].Generation
	t.headers[idx] = Header{Generation: gen, Lifecycle: state}
	return ecs.EntityID{Index: idx, Generation: gen}, nil
}

// IsAlive reports whether e's generation matches its slot and the slot is
// not Free.
func (t *Table) IsAlive(e ecs.EntityID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.isAliveLocked(e)
}

func (t *Table) isAliveLocked(e ecs.EntityID) bool {
	if int(e.Index) >= len(t.headers) {
		return false
	}
	h := t.headers[e.Index]
	return h.Generation == e.Generation && h.Lifecycle != ecs.Free
}

// SetLifecycle transitions e to next, failing with ErrBadLifecycle if the
// diagram in spec.md §3 forbids it. Transitioning to Free reclaims the
// slot: the generation is bumped and the index returns to the free list.
func (t *Table) SetLifecycle(e ecs.EntityID, next ecs.Lifecycle) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.isAliveLocked(e) {
		return ecs.ErrStaleHandle.WithEntity(e)
	}
	h := &t.headers[e.Index]
	if !h.Lifecycle.CanTransition(next) {
		return ecs.ErrBadLifecycle.WithEntity(e)
	}
	h.Lifecycle = next
	if next == ecs.Free {
		h.Generation++
		h.Mask = ecs.Mask{}
		t.freeList = append(t.freeList, e.Index)
	}
	return nil
}

// Destroy transitions e from Active to TearDown; actual reclamation to
// Free happens once every component table has released storage for the
// slot (spec.md §4.1) — callers drive that via SetLifecycle(e, Free) once
// SanitizeDead has run.
func (t *Table) Destroy(e ecs.EntityID) error {
	return t.SetLifecycle(e, ecs.TearDown)
}

// Lifecycle returns e's current lifecycle state, or Free if the handle is
// stale/unknown.
func (t *Table) Lifecycle(e ecs.EntityID) ecs.Lifecycle {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.isAliveLocked(e) {
		return ecs.Free
	}
	return t.headers[e.Index].Lifecycle
}

// SetMask overwrites e's cached presence mask — called by the component
// store facade after every Add/Remove so the header stays the fast path
// for query filtering (spec.md §4.3 iterates chunks whose type-set is a
// superset of include_mask directly against this field).
func (t *Table) SetMask(e ecs.EntityID, m ecs.Mask) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.isAliveLocked(e) {
		return ecs.ErrStaleHandle.WithEntity(e)
	}
	t.headers[e.Index].Mask = m
	return nil
}

// Mask returns e's cached presence mask.
func (t *Table) Mask(e ecs.EntityID) ecs.Mask {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.isAliveLocked(e) {
		return ecs.Mask{}
	}
	return t.headers[e.Index].Mask
}

// Each calls fn for every slot whose lifecycle is in filter, in index
// order. Used by the query engine; does not allocate.
func (t *Table) Each(filter map[ecs.Lifecycle]bool, fn func(e ecs.EntityID, h Header)) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for idx := uint32(1); idx < uint32(len(t.headers)); idx++ {
		h := t.headers[idx]
		if h.Lifecycle == ecs.Free {
			continue
		}
		if filter != nil && !filter[h.Lifecycle] {
			continue
		}
		fn(ecs.EntityID{Index: idx, Generation: h.Generation}, h)
	}
}

// Count returns the number of non-Free slots.
func (t *Table) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for idx := 1; idx < len(t.headers); idx++ {
		if t.headers[idx].Lifecycle != ecs.Free {
			n++
		}
	}
	return n
}

// LiveEntities returns every non-Free entity handle, regardless of
// lifecycle filter — used internally by snapshot sync and SanitizeDead,
// which must see TearDown entities too.
func (t *Table) LiveEntities() []ecs.EntityID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]ecs.EntityID, 0, len(t.headers))
	for idx := uint32(1); idx < uint32(len(t.headers)); idx++ {
		h := t.headers[idx]
		if h.Lifecycle == ecs.Free {
			continue
		}
		out = append(out, ecs.EntityID{Index: idx, Generation: h.Generation})
	}
	return out
}
