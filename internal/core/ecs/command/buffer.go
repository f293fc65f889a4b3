// Package command implements the Command Buffer of spec.md §4.5: a
// per-module log of deferred mutations that mirrors the live world's
// mutation API (add/remove component, destroy entity, publish event)
// but appends records instead of mutating immediately. Harvest replays
// the log into the live world in insertion order.
//
// No teacher file models a deferred-mutation log directly (the
// teacher mutates the live ComponentStore/EntityManager synchronously
// in-place); this package is grounded instead on the method shapes and
// RWMutex-guarded-slice conventions of storage.Store and
// entitytable.Table already built from the teacher, applied to a new
// append-only record type.
package command

import (
	"simkernel/internal/core/ecs"
	"simkernel/internal/core/ecs/entitytable"
	"simkernel/internal/core/ecs/eventbus"
	"simkernel/internal/core/ecs/storage"
)

type kind uint8

const (
	kindAdd kind = iota
	kindRemove
	kindDestroy
	kindPublish
)

type record struct {
	kind      kind
	entity    ecs.EntityID
	component ecs.ComponentTypeID
	value     any
	eventType ecs.EventTypeID
	event     any
}

// Buffer is one module's deferred mutation log. Not safe for
// concurrent use by multiple goroutines within the same module — a
// module's own system code runs on a single goroutine per spec.md's
// execution model; harvest runs after the module's tick completes.
type Buffer struct {
	module  string
	records []record
}

// New creates an empty Buffer owned by the named module — the name is
// carried through only for diagnostics (harvest errors reference it).
func New(module string) *Buffer {
	return &Buffer{module: module}
}

// AddComponent records a deferred Store.Add.
func (b *Buffer) AddComponent(e ecs.EntityID, component ecs.ComponentTypeID, value any) {
	b.records = append(b.records, record{kind: kindAdd, entity: e, component: component, value: value})
}

// RemoveComponent records a deferred Store.Remove.
func (b *Buffer) RemoveComponent(e ecs.EntityID, component ecs.ComponentTypeID) {
	b.records = append(b.records, record{kind: kindRemove, entity: e, component: component})
}

// DestroyEntity records a deferred entitytable.Table.Destroy.
func (b *Buffer) DestroyEntity(e ecs.EntityID) {
	b.records = append(b.records, record{kind: kindDestroy, entity: e})
}

// PublishEvent records a deferred eventbus.Bus.Publish. Per spec.md
// §4.5, command-deferred events land in PENDING at harvest time, not
// CURRENT, giving them the same one-frame latency as any other
// publish — harvest simply calls bus.Publish, it never writes CURRENT
// directly.
func (b *Buffer) PublishEvent(eventType ecs.EventTypeID, event any) {
	b.records = append(b.records, record{kind: kindPublish, eventType: eventType, event: event})
}

// Len reports the number of pending records.
func (b *Buffer) Len() int { return len(b.records) }

// Reset discards all records without harvesting — used to recycle a
// Buffer across frames when a module's policy pools them.
func (b *Buffer) Reset() { b.records = b.records[:0] }

// Harvest replays every record, in insertion order, into the live
// world: store, table, and bus are the live (not snapshot) handles.
// version stamps any resulting component writes. A record referencing
// a dead entity is silently dropped; a record naming an unregistered
// component type fails the whole harvest with UnknownComponent,
// matching spec.md §4.5.
func Harvest(b *Buffer, store *storage.Store, table *entitytable.Table, bus *eventbus.Bus, version ecs.GlobalVersion) error {
	for _, r := range b.records {
		switch r.kind {
		case kindAdd:
			if !table.IsAlive(r.entity) {
				continue
			}
			if err := store.Add(r.entity, r.component, r.value, version); err != nil {
				if code, ok := ecs.Code(err); ok && code == ecs.CodeUnknownComponent {
					return err
				}
				continue
			}
			if err := table.SetMask(r.entity, store.Mask(r.entity)); err != nil {
				continue
			}
		case kindRemove:
			if !table.IsAlive(r.entity) {
				continue
			}
			if err := store.Remove(r.entity, r.component, version); err != nil {
				if code, ok := ecs.Code(err); ok && code == ecs.CodeUnknownComponent {
					return err
				}
				continue
			}
			if err := table.SetMask(r.entity, store.Mask(r.entity)); err != nil {
				continue
			}
		case kindDestroy:
			if !table.IsAlive(r.entity) {
				continue
			}
			_ = table.Destroy(r.entity)
		case kindPublish:
			if err := bus.Publish(r.eventType, r.event); err != nil {
				return err
			}
		}
	}
	b.Reset()
	return nil
}
