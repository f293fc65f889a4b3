// Package storage implements per-component-type chunked tables: the
// "Component Storage" subsystem of spec.md §4.2. Each registered type gets
// a Table backing a contiguous sequence of fixed-size chunks, each stamped
// with the global version on any write into it — the sole basis for change
// detection (no per-entity dirty flags exist, per spec.md §4.2's invariant).
//
// Grounded on the teacher's storage.ComponentStore (map-based, one entry
// per component type, its own RWMutex and presence bookkeeping); this
// package keeps that shape but replaces the flat map with versioned chunks
// and adds the plain-data/opaque registration discipline spec.md requires.
package storage

import (
	"fmt"
	"math/bits"
	"sync"

	"simkernel/internal/core/ecs"
)

// Kind distinguishes how a registered component type is stored.
type Kind uint8

const (
	// PlainData types are bitwise-copyable fixed-size values; always
	// snapshotable (spec.md §3 registration rules).
	PlainData Kind = iota
	// Opaque types are stored by reference. They must be declared
	// Immutable (then they are snapshotable) or Transient (then they are
	// excluded from every snapshot); an opaque type that is neither is a
	// registration error (MutableNotDeclared).
	Opaque
)

// TypeInfo is the registration record for one component type (spec.md §3).
type TypeInfo struct {
	ID           ecs.ComponentTypeID
	Name         string
	Kind         Kind
	Snapshotable bool
	Transient    bool
	ElemSize     int
	ChunkSize    int
}

// Registry assigns compact numeric ids to component types and records their
// storage discipline. It is the authority Tables and the snapshot package
// consult to decide what "all snapshotable minus excluded" means.
type Registry struct {
	mu    sync.RWMutex
	byID  []*TypeInfo
	byNm  map[string]*TypeInfo
	chunk int
}

// DefaultChunkSize mirrors the teacher source's 16K-slots-per-chunk
// default; spec.md only requires N ≥ 1024 and a power of two.
const DefaultChunkSize = 16384

// NewRegistry creates a Registry whose tables use chunkSize slots per
// chunk. A chunkSize of 0 selects DefaultChunkSize. Any other value is
// normalized up to satisfy spec.md §3's chunk-size invariant (N ≥ 1024,
// N a power of two) rather than accepted as given — a caller-supplied
// chunkSize of, say, 100 would otherwise silently violate the
// invariant every Table built from this Registry depends on.
func NewRegistry(chunkSize int) *Registry {
	if chunkSize == 0 {
		chunkSize = DefaultChunkSize
	}
	return &Registry{
		byNm:  make(map[string]*TypeInfo),
		chunk: normalizeChunkSize(chunkSize),
	}
}

// normalizeChunkSize rounds n up to the nearest power of two no smaller
// than 1024.
func normalizeChunkSize(n int) int {
	if n < 1024 {
		n = 1024
	}
	if n&(n-1) == 0 {
		return n
	}
	return 1 << bits.Len(uint(n))
}

// RegisterPlainData registers a fixed-size bitwise-copyable component type.
// Plain-data types are always snapshotable (spec.md §3).
func (r *Registry) RegisterPlainData(name string, elemSize int) (ecs.ComponentTypeID, error) {
	return r.register(name, TypeInfo{Kind: PlainData, Snapshotable: true, ElemSize: elemSize})
}

// RegisterOpaque registers a reference-stored component type. At least one
// of immutable/transient must describe it: an immutable opaque type is
// snapshotable (shallow reference copies are safe because it never
// mutates); a transient one is excluded from every snapshot, even when it
// is also declared immutable. Declaring
// neither fails with ErrMutableNotDeclared — the registration-time
// invariant from spec.md §3.
func (r *Registry) RegisterOpaque(name string, immutable, transient bool) (ecs.ComponentTypeID, error) {
	if !immutable && !transient {
		return 0, ecs.ErrMutableNotDeclared.WithCause(fmt.Errorf("component %q", name))
	}
	return r.register(name, TypeInfo{Kind: Opaque, Snapshotable: immutable, Transient: transient})
}

func (r *Registry) register(name string, info TypeInfo) (ecs.ComponentTypeID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byNm[name]; exists {
		return 0, ecs.ErrDuplicateTypeId.WithCause(fmt.Errorf("component %q", name))
	}
	if len(r.byID) >= ecs.MaxComponentTypes {
		return 0, ecs.ErrComponentSlotExhausted.WithCause(fmt.Errorf("component type id space exhausted at %q", name))
	}

	id := ecs.ComponentTypeID(len(r.byID))
	info.ID = id
	info.Name = name
	info.ChunkSize = r.chunk
	tp := info
	r.byID = append(r.byID, &tp)
	r.byNm[name] = &tp
	return id, nil
}

// Lookup returns the registration record for id, if registered.
func (r *Registry) Lookup(id ecs.ComponentTypeID) (*TypeInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(id) >= len(r.byID) {
		return nil, false
	}
	return r.byID[id], true
}

// LookupByName returns the registration record for a component type by its
// registered name.
func (r *Registry) LookupByName(name string) (*TypeInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tp, ok := r.byNm[name]
	return tp, ok
}

// SnapshotableMask is every registered type's bit set, minus excluded, minus
// (unless includeTransient) every transient type — the "all snapshotable
// minus excluded" mask spec.md §4.6 requires GDB/SoD syncs to compute.
func (r *Registry) SnapshotableMask(exclude ecs.Mask, includeTransient bool) ecs.Mask {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var m ecs.Mask
	for _, tp := range r.byID {
		if tp == nil {
			continue
		}
		if tp.Transient && !includeTransient {
			continue
		}
		if !tp.Snapshotable && !includeTransient {
			continue
		}
		m = m.Set(tp.ID)
	}
	return m.AndNot(exclude)
}

// All returns every registered type's info, ordered by id.
func (r *Registry) All() []*TypeInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*TypeInfo, len(r.byID))
	copy(out, r.byID)
	return out
}

// ChunkSize is the slot count per chunk used by tables built from this
// registry.
func (r *Registry) ChunkSize() int { return r.chunk }
