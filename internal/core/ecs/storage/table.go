package storage

import (
	"reflect"
	"sync"

	"simkernel/internal/core/ecs"
)

// Table is the per-component-type chunked store. Slot addressing is shared
// across every table for a given entity — chunk id and slot-in-chunk are
// both derived from the entity's index (chunkID = index/N, slot =
// index%N) — so the "chunk_address" an entity's header carries (spec.md
// §3) names the same physical slot in every type's table, and presence is
// decided solely by the caller's component mask, never by table occupancy.
//
// A Table is safe for concurrent readers; writers must hold the
// single-writer-per-replica discipline spec.md §5 describes (the live
// table is mutated only on the main thread; a snapshot replica is written
// only by its own sync step).
type Table struct {
	mu    sync.RWMutex
	info  *TypeInfo
	chunk int
	chunks []*chunk
}

// NewTable creates an empty table for the given registered type.
func NewTable(info *TypeInfo) *Table {
	return &Table{info: info, chunk: info.ChunkSize}
}

// Info returns this table's registration record.
func (t *Table) Info() *TypeInfo { return t.info }

func (t *Table) addr(index uint32) (chunkID, slot int) {
	return int(index) / t.chunk, int(index) % t.chunk
}

func (t *Table) ensureChunk(id int) *chunk {
	for len(t.chunks) <= id {
		t.chunks = append(t.chunks, nil)
	}
	if t.chunks[id] == nil {
		t.chunks[id] = newChunk(t.chunk)
	}
	return t.chunks[id]
}

// Write stores value at the entity's slot and stamps the owning chunk with
// version. The caller (the component store facade) is responsible for the
// AlreadyPresent check against the entity's mask before calling Write, and
// for setting the mask bit after — Table itself holds no presence state,
// only data, per spec.md §3's ownership split.
func (t *Table) Write(index uint32, value any, version ecs.GlobalVersion) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cid, slot := t.addr(index)
	c := t.ensureChunk(cid)
	c.slots[slot] = value
	c.touch(version)
}

// Clear zeroes the slot and stamps the chunk. Used both by Remove (spec.md
// §4.2) and by SanitizeDead before any serialization export.
func (t *Table) Clear(index uint32, version ecs.GlobalVersion) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cid, slot := t.addr(index)
	if cid >= len(t.chunks) || t.chunks[cid] == nil {
		return
	}
	t.chunks[cid].slots[slot] = nil
	t.chunks[cid].touch(version)
}

// ReadRO returns the value at an entity's slot without copying (plain-data
// callers must treat the returned value as read-only; opaque callers
// receive the shared reference and must not mutate through it).
func (t *Table) ReadRO(index uint32) any {
	t.mu.RLock()
	defer t.mu.RUnlock()
	cid, slot := t.addr(index)
	if cid >= len(t.chunks) || t.chunks[cid] == nil {
		return nil
	}
	return t.chunks[cid].slots[slot]
}

// ReadRW returns the value at an entity's slot and stamps the chunk with
// version, reflecting that the caller intends to mutate a plain-data value
// in place (e.g. `*Position` held behind the `any`). Opaque types should
// not be obtained this way — callers mutate via a new Write instead, since
// the shared reference contract forbids in-place mutation (spec.md §4.2).
func (t *Table) ReadRW(index uint32, version ecs.GlobalVersion) any {
	t.mu.Lock()
	defer t.mu.Unlock()
	cid, slot := t.addr(index)
	c := t.ensureChunk(cid)
	c.touch(version)
	return c.slots[slot]
}

// HasChangesSince scans chunk versions — a linear scan over a few hundred
// words per spec.md §4.2's `has_changes_since`.
func (t *Table) HasChangesSince(v0 ecs.GlobalVersion) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, c := range t.chunks {
		if c != nil && c.version > v0 {
			return true
		}
	}
	return false
}

// SyncFrom copies this table's state into dst for every entity index in
// liveIndices, stamping dst's chunks with version (the version at sync
// time, never copied from source — spec.md §4.2/§4.6's determinism rule).
// For PlainData types the slot value is copied as a new value (bitwise
// copy semantics, since Go assignment of a value type through `any` does
// not alias; a value held behind a pointer, per ReadRW's convention, is
// copied into a fresh pointer); for Opaque types the same reference is
// shared — legal only
// because opaque types reaching this point were registered Immutable.
func (t *Table) SyncFrom(src *Table, liveIndices []uint32, version ecs.GlobalVersion) {
	t.mu.Lock()
	defer t.mu.Unlock()
	src.mu.RLock()
	defer src.mu.RUnlock()

	for _, idx := range liveIndices {
		scid, sslot := src.addr(idx)
		if scid >= len(src.chunks) || src.chunks[scid] == nil {
			continue
		}
		v := src.chunks[scid].slots[sslot]
		if v == nil {
			continue
		}
		if t.info.Kind == PlainData {
			if rv := reflect.ValueOf(v); rv.Kind() == reflect.Ptr && !rv.IsNil() {
				cp := reflect.New(rv.Elem().Type())
				cp.Elem().Set(rv.Elem())
				v = cp.Interface()
			}
		}
		dcid, dslot := t.addr(idx)
		c := t.ensureChunk(dcid)
		c.slots[dslot] = v
		c.touch(version)
	}
}

// SanitizeDead zeroes every slot whose entity is not in the supplied
// liveness set, stamping the owning chunk. Called after a TearDown drain,
// before any serialization export (spec.md §4.2).
func (t *Table) SanitizeDead(isLive func(index uint32) bool, version ecs.GlobalVersion) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for cid, c := range t.chunks {
		if c == nil {
			continue
		}
		dirty := false
		for slot, v := range c.slots {
			if v == nil {
				continue
			}
			idx := uint32(cid*t.chunk + slot)
			if !isLive(idx) {
				c.slots[slot] = nil
				dirty = true
			}
		}
		if dirty {
			c.touch(version)
		}
	}
}
