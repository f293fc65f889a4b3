// Package lifecycle implements the Lifecycle Coordinator of spec.md
// §4.8: a barrier over ConstructionRequest/DestructionRequest/ACK
// events that drives an entity's Constructing->Active or
// Active->TearDown->Free transition once every participating module
// has acknowledged, or forces the transition on timeout or any
// success=false ACK.
//
// Grounded on entitytable.Table's own RWMutex-guarded-map conventions
// for the per-entity ACK bookkeeping; no teacher file models a
// multi-party barrier, so the mechanics follow spec.md §4.8 directly.
package lifecycle

import (
	"sync"

	"simkernel/internal/core/ecs"
	"simkernel/internal/core/ecs/entitytable"
	"simkernel/internal/core/ecs/eventbus"
)

// ConstructionRequest asks every module registered against typeID to
// finish initializing entity before it becomes visible to default
// queries.
type ConstructionRequest struct {
	Entity ecs.EntityID
	TypeID string
}

// DestructionRequest asks modules to release an entity's resources
// before the entity is reclaimed. A destruction barrier carries no type
// id, so it has no required participants: the first ACK from any module
// (successful or not), or the timeout, reclaims the entity to Free. It
// does not wait for a set of named modules.
type DestructionRequest struct {
	Entity ecs.EntityID
	Reason string
}

// ACK is a single module's response to a Construction/DestructionRequest.
// Success=false forces immediate teardown regardless of what other
// modules report.
type ACK struct {
	Entity  ecs.EntityID
	Module  string
	Success bool
}

type kind uint8

const (
	kindConstruct kind = iota
	kindDestroy
)

type barrier struct {
	kind         kind
	typeID       string
	acked        map[string]bool
	framesWaited int
}

// Coordinator tracks in-flight construction/destruction barriers across
// frames. One Coordinator serves the whole world; it is not
// per-module.
type Coordinator struct {
	mu sync.Mutex

	participants map[string][]string // typeID -> module names required to ack
	inflight     map[ecs.EntityID]*barrier

	timeoutFrames int

	constructionEvt ecs.EventTypeID
	destructionEvt  ecs.EventTypeID
	ackEvt          ecs.EventTypeID
}

// DefaultTimeoutFrames is spec.md §4.8's "5 seconds at expected frame
// rate" default, expressed at 60 Hz.
const DefaultTimeoutFrames = 5 * 60

// New creates a Coordinator watching the three given event types.
// timeoutFrames <= 0 falls back to DefaultTimeoutFrames.
func New(constructionEvt, destructionEvt, ackEvt ecs.EventTypeID, timeoutFrames int) *Coordinator {
	if timeoutFrames <= 0 {
		timeoutFrames = DefaultTimeoutFrames
	}
	return &Coordinator{
		participants:    make(map[string][]string),
		inflight:        make(map[ecs.EntityID]*barrier),
		timeoutFrames:   timeoutFrames,
		constructionEvt: constructionEvt,
		destructionEvt:  destructionEvt,
		ackEvt:          ackEvt,
	}
}

// RegisterParticipants declares which modules must ACK construction
// requests carrying typeID before the barrier can complete. Modules
// not named here never block a barrier for that type. A type with no
// registered participants has no required ACKs, so the first
// successful ACK from any module (or the timeout) completes its
// barrier.
func (c *Coordinator) RegisterParticipants(typeID string, modules []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.participants[typeID] = modules
}

// Tick drains this frame's CURRENT construction/destruction/ACK
// streams, advances every in-flight barrier, and applies lifecycle
// transitions directly to table. Called once per frame by the kernel
// facade, after the bus swap so CURRENT reflects this frame's
// requests.
func (c *Coordinator) Tick(bus *eventbus.Bus, table *entitytable.Table) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, raw := range bus.Consume(c.constructionEvt) {
		req, ok := raw.(ConstructionRequest)
		if !ok {
			continue
		}
		c.inflight[req.Entity] = &barrier{
			kind:   kindConstruct,
			typeID: req.TypeID,
			acked:  make(map[string]bool),
		}
	}
	for _, raw := range bus.Consume(c.destructionEvt) {
		req, ok := raw.(DestructionRequest)
		if !ok {
			continue
		}
		// A destruction request makes the entity invisible to default
		// queries immediately; the barrier only gates the final
		// reclamation to Free.
		_ = table.SetLifecycle(req.Entity, ecs.TearDown)
		c.inflight[req.Entity] = &barrier{
			kind:  kindDestroy,
			acked: make(map[string]bool),
		}
	}
	for _, raw := range bus.Consume(c.ackEvt) {
		ack, ok := raw.(ACK)
		if !ok {
			continue
		}
		b, ok := c.inflight[ack.Entity]
		if !ok {
			continue
		}
		if !ack.Success {
			c.complete(ack.Entity, b, table, false)
			continue
		}
		b.acked[ack.Module] = true
		if c.satisfied(b) {
			c.complete(ack.Entity, b, table, true)
		}
	}

	for e, b := range c.inflight {
		b.framesWaited++
		if b.framesWaited >= c.timeoutFrames {
			c.complete(e, b, table, false)
		}
	}
}

func (c *Coordinator) satisfied(b *barrier) bool {
	required := c.participants[b.typeID]
	if len(required) == 0 {
		return true
	}
	for _, m := range required {
		if !b.acked[m] {
			return false
		}
	}
	return true
}

// complete applies b's terminal lifecycle transition to e and drops
// the barrier. A successful construction barrier promotes
// Constructing->Active; a failed or timed-out construction barrier
// aborts straight to Free without ever becoming visible. A destruction
// barrier's entity is already TearDown (set the moment the request
// arrived); success, timeout, or a failed ACK all reclaim it to Free —
// spec.md's "forces destruction" applies equally to an explicit
// failure and a silent timeout.
func (c *Coordinator) complete(e ecs.EntityID, b *barrier, table *entitytable.Table, ok bool) {
	delete(c.inflight, e)
	if !table.IsAlive(e) {
		return
	}
	switch {
	case b.kind == kindConstruct && ok:
		_ = table.SetLifecycle(e, ecs.Active)
	case b.kind == kindConstruct && !ok:
		_ = table.SetLifecycle(e, ecs.Free)
	default:
		_ = table.SetLifecycle(e, ecs.Free)
	}
}

// Pending reports how many barriers are currently in flight, for
// diagnostics/metrics.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inflight)
}

// IsTracked reports whether e has an in-flight barrier. The kernel
// facade uses this to tell a coordinated destruction (waiting on
// module ACKs, not yet safe to reclaim) apart from a TearDown entity
// that bypassed the coordinator entirely (a direct command-buffer
// DestroyEntity, already safe to reclaim once its one-frame
// TearDown-visibility window has passed).
func (c *Coordinator) IsTracked(e ecs.EntityID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inflight[e]
	return ok
}
