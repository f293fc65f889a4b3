package snapshot

import (
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"simkernel/internal/core/ecs"
	"simkernel/internal/core/ecs/entitytable"
	"simkernel/internal/core/ecs/storage"
)

// Convoy wraps a single SoD view shared by multiple modules that share
// both frequency and async-mode. The first Acquire for a given trigger
// leases and syncs an inner SoD view; subsequent Acquire calls before
// the matching number of Release calls just bump a refcount and reuse
// that view. The component mask is the union of every member module's
// declared required components — callers build it once via
// ecs.Mask.Or across member modules at registration time and pass it
// to NewConvoy.
//
// Concurrent Acquire calls from convoy members dispatched onto
// different worker goroutines for the same trigger collapse onto a
// single sync_from via singleflight.Group, so "bit-identical snapshot
// contents for any single trigger event" (spec's Convoy consistency
// property) holds even when members fire from separate goroutines
// instead of a single serialized caller.
type Convoy struct {
	inner *SoD
	group singleflight.Group

	mu      sync.Mutex
	refs    int
	current *View
	trigger int64
}

// NewConvoy creates a Convoy over a fresh SoD pool restricted to
// unionMask (the OR of every member module's required-component mask).
func NewConvoy(registry *storage.Registry, unionMask ecs.Mask) *Convoy {
	return &Convoy{inner: NewSoD(registry, unionMask)}
}

// Acquire leases (and, on the first caller for this trigger, syncs)
// the shared view, bumping the refcount. Safe to call concurrently
// from every convoy member's goroutine for the same frame: the sync
// itself is deduped via singleflight, but the refcount bump happens
// unconditionally for every caller, deduped or not — singleflight.Do
// only re-runs its callback once per overlapping concurrent call for a
// given key, so incrementing refs inside the callback would under-count
// by exactly the number of callers who were handed a memoized result.
func (c *Convoy) Acquire(live *storage.Store, liveTable *entitytable.Table, globalVersion ecs.GlobalVersion) (*View, error) {
	key := strconv.FormatInt(int64(globalVersion), 10)
	v, err, _ := c.group.Do(key, func() (any, error) {
		c.mu.Lock()
		defer c.mu.Unlock()

		if c.current == nil || c.trigger != int64(globalVersion) {
			leased, err := c.inner.Acquire(live, liveTable, globalVersion)
			if err != nil {
				return nil, err
			}
			c.current = leased
			c.trigger = int64(globalVersion)
		}
		return c.current, nil
	})
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.refs++
	c.mu.Unlock()
	return v.(*View), nil
}

// Release decrements the refcount; the final release returns the
// underlying view to the SoD pool.
func (c *Convoy) Release(v *View) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.refs == 0 {
		return
	}
	c.refs--
	if c.refs == 0 {
		c.inner.Release(c.current)
		c.current = nil
	}
}

var _ Provider = (*Convoy)(nil)
