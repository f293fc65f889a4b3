// Package query implements the Query Engine of spec.md §4.3: a query is
// built once from an include mask, exclude mask, and lifecycle filter,
// then reused every frame without allocating on iteration.
//
// Grounded on the teacher's QueryBuilder/QueryResult split
// (query.go) — this keeps the builder-then-execute shape the teacher
// uses but narrows the surface to what spec.md actually names (no
// spatial/temporal/hierarchical query kinds, no JSON export: those are
// teacher surface with no corresponding spec.md operation).
package query

import (
	"simkernel/internal/core/ecs"
	"simkernel/internal/core/ecs/entitytable"
)

// Query is an immutable, reusable filter: entities whose mask is a
// superset of Include and disjoint from Exclude, restricted to
// Lifecycle states.
type Query struct {
	Include  ecs.Mask
	Exclude  ecs.Mask
	Lifecycle map[ecs.Lifecycle]bool
}

// defaultLifecycle is spec.md §4.3's default lifecycle_filter: {Active}.
func defaultLifecycle() map[ecs.Lifecycle]bool {
	return map[ecs.Lifecycle]bool{ecs.Active: true}
}

// Builder constructs a Query with a fluent, teacher-style API. Build()
// must be called once; the resulting Query is then reused across
// frames per spec.md's "built once and reused" requirement.
type Builder struct {
	include ecs.Mask
	exclude ecs.Mask
	lc      map[ecs.Lifecycle]bool
}

// New starts a Builder with an empty include/exclude mask and the
// default {Active} lifecycle filter.
func New() *Builder {
	return &Builder{lc: defaultLifecycle()}
}

// With requires component id to be present.
func (b *Builder) With(id ecs.ComponentTypeID) *Builder {
	b.include = b.include.Set(id)
	return b
}

// WithAll requires every id in ids to be present.
func (b *Builder) WithAll(ids ...ecs.ComponentTypeID) *Builder {
	for _, id := range ids {
		b.include = b.include.Set(id)
	}
	return b
}

// Without requires component id to be absent.
func (b *Builder) Without(id ecs.ComponentTypeID) *Builder {
	b.exclude = b.exclude.Set(id)
	return b
}

// WithoutAll requires every id in ids to be absent.
func (b *Builder) WithoutAll(ids ...ecs.ComponentTypeID) *Builder {
	for _, id := range ids {
		b.exclude = b.exclude.Set(id)
	}
	return b
}

// WithLifecycle overrides the default {Active}-only filter — callers
// that need to see TearDown or Constructing entities (the lifecycle
// coordinator, sanitization passes) use this.
func (b *Builder) WithLifecycle(states ...ecs.Lifecycle) *Builder {
	b.lc = make(map[ecs.Lifecycle]bool, len(states))
	for _, s := range states {
		b.lc[s] = true
	}
	return b
}

// Build finalizes the Query. The returned value is safe to store and
// reuse across many Run calls; it holds no reference to any entity
// table.
func (b *Builder) Build() Query {
	return Query{Include: b.include, Exclude: b.exclude, Lifecycle: b.lc}
}

// Matches reports whether mask/lifecycle satisfy q: mask is a superset
// of Include, disjoint from Exclude, and lifecycle is allowed.
func (q Query) Matches(mask ecs.Mask, lifecycle ecs.Lifecycle) bool {
	if q.Lifecycle != nil && !q.Lifecycle[lifecycle] {
		return false
	}
	if !mask.IsSupersetOf(q.Include) {
		return false
	}
	if !mask.DisjointFrom(q.Exclude) {
		return false
	}
	return true
}

// Run walks table in index order, calling fn for every entity matching
// q. It allocates nothing beyond the closure capture — iteration reuses
// entitytable.Table.Each's zero-allocation walk.
func Run(table *entitytable.Table, q Query, fn func(e ecs.EntityID)) {
	table.Each(q.Lifecycle, func(e ecs.EntityID, h entitytable.Header) {
		if !h.Mask.IsSupersetOf(q.Include) {
			return
		}
		if !h.Mask.DisjointFrom(q.Exclude) {
			return
		}
		fn(e)
	})
}

// Collect runs q against table and returns the matching entities as a
// slice. Convenience wrapper over Run for callers that want a snapshot
// list rather than a callback — still allocates the result slice, so
// hot per-frame systems should prefer Run directly.
func Collect(table *entitytable.Table, q Query) []ecs.EntityID {
	var out []ecs.EntityID
	Run(table, q, func(e ecs.EntityID) {
		out = append(out, e)
	})
	return out
}
