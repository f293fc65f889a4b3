// Package kernel assembles the Entity Table, Component Storage, Query
// Engine, Event Bus, Command Buffer, Snapshot Providers, Module
// Scheduler, Lifecycle Coordinator, Singleton & Time, and Metrics
// subsystems into one cohesive per-frame API — the facade a host
// application (cmd/game) drives once per frame instead of wiring each
// subsystem package by hand.
//
// Grounded on the teacher's core.Game (internal/core/game.go): a single
// struct a cmd/ binary constructs once and calls into every frame. The
// teacher's Game is an ebiten.Game stub with no state; Kernel is the
// same "one struct, one per-frame entry point" shape generalized to
// everything the ECS subsystems above need wired together.
package kernel

import (
	"fmt"
	"time"

	"github.com/c2h5oh/datasize"
	"go.uber.org/zap"

	"simkernel/internal/core/ecs"
	"simkernel/internal/core/ecs/entitytable"
	"simkernel/internal/core/ecs/eventbus"
	"simkernel/internal/core/ecs/lifecycle"
	"simkernel/internal/core/ecs/metrics"
	"simkernel/internal/core/ecs/query"
	"simkernel/internal/core/ecs/scheduler"
	"simkernel/internal/core/ecs/singleton"
	"simkernel/internal/core/ecs/snapshot"
	"simkernel/internal/core/ecs/storage"
)

// Reserved event-type ids the kernel itself owns, the same way
// singleton.GlobalTimeSlot reserves a component-type id: every world
// gets construction/destruction/ACK streams without the host
// application having to declare or wire them.
const (
	EventConstructionRequest ecs.EventTypeID = ^ecs.EventTypeID(0) - 2
	EventDestructionRequest  ecs.EventTypeID = ^ecs.EventTypeID(0) - 1
	EventACK                 ecs.EventTypeID = ^ecs.EventTypeID(0)
)

// Config carries every tunable the kernel's subsystems accept at
// construction. Zero-valued fields fall back to the same defaults the
// underlying subsystem already applies (scheduler.HostConfig,
// lifecycle.DefaultTimeoutFrames).
type Config struct {
	FrameRate              float64
	ChunkSize              int
	MaxEntities            int
	WorkerPoolSize         int64
	DefaultMaxRuntime      time.Duration
	LifecycleTimeoutFrames int

	// MemoryBudget is the soft ceiling ValidateMemoryBudget checks
	// registered component storage against. Zero disables the check.
	MemoryBudget datasize.ByteSize

	// ResourceSampleInterval, when positive, starts a background
	// gopsutil sampler reporting process CPU/memory into Metrics.
	// Zero disables sampling.
	ResourceSampleInterval time.Duration

	Logger  *zap.Logger
	Metrics *metrics.Collector
}

// Kernel owns every subsystem and drives one frame at a time via Tick.
type Kernel struct {
	cfg Config
	log *zap.Logger

	registry   *storage.Registry
	store      *storage.Store
	table      *entitytable.Table
	index      *entitytable.Index
	bus        *eventbus.Bus
	gdb        *snapshot.GDB
	singletons *singleton.Registry

	host        *scheduler.Host
	coordinator *lifecycle.Coordinator
	metrics     *metrics.Collector
	monitor     *resourceMonitor
}

// New creates a Kernel from cfg. The returned Kernel has no registered
// component types, event types, or modules yet — callers register
// those before the first Tick.
func New(cfg Config) *Kernel {
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = 60
	}
	if cfg.LifecycleTimeoutFrames <= 0 {
		cfg.LifecycleTimeoutFrames = lifecycle.DefaultTimeoutFrames
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}

	registry := storage.NewRegistry(cfg.ChunkSize)
	store := storage.NewStore(registry)
	table := entitytable.NewTable(cfg.MaxEntities)
	index := entitytable.NewIndex()
	bus := eventbus.New()
	bus.RegisterType(EventConstructionRequest)
	bus.RegisterType(EventDestructionRequest)
	bus.RegisterType(EventACK)
	gdb := snapshot.NewGDB(registry, ecs.Mask{})
	singletons := singleton.New()

	host := scheduler.NewHost(scheduler.HostConfig{
		FrameRate:         cfg.FrameRate,
		WorkerPoolSize:    cfg.WorkerPoolSize,
		DefaultMaxRuntime: cfg.DefaultMaxRuntime,
	}, store, table, bus, gdb, singletons, cfg.Logger).WithMetrics(cfg.Metrics)

	coordinator := lifecycle.New(EventConstructionRequest, EventDestructionRequest, EventACK, cfg.LifecycleTimeoutFrames)

	k := &Kernel{
		cfg:         cfg,
		log:         cfg.Logger,
		registry:    registry,
		store:       store,
		table:       table,
		index:       index,
		bus:         bus,
		gdb:         gdb,
		singletons:  singletons,
		host:        host,
		coordinator: coordinator,
		metrics:     cfg.Metrics,
	}

	if cfg.ResourceSampleInterval > 0 {
		k.monitor = newResourceMonitor(cfg.ResourceSampleInterval, cfg.Metrics, cfg.Logger)
		k.monitor.start()
	}
	return k
}

// RegisterPlainData registers a fixed-size bitwise-copyable component
// type with the component storage registry.
func (k *Kernel) RegisterPlainData(name string, elemSize int) (ecs.ComponentTypeID, error) {
	return k.registry.RegisterPlainData(name, elemSize)
}

// RegisterOpaque registers a reference-stored component type.
func (k *Kernel) RegisterOpaque(name string, immutable, transient bool) (ecs.ComponentTypeID, error) {
	return k.registry.RegisterOpaque(name, immutable, transient)
}

// RegisterEventType declares a domain event type id before any module
// publishes against it.
func (k *Kernel) RegisterEventType(t ecs.EventTypeID) {
	k.bus.RegisterType(t)
}

// RegisterModule validates and adds spec to the module scheduler.
func (k *Kernel) RegisterModule(spec scheduler.ModuleSpec) error {
	return k.host.Register(spec)
}

// RegisterModules registers every spec, aggregating failures.
func (k *Kernel) RegisterModules(specs []scheduler.ModuleSpec) error {
	return k.host.RegisterAll(specs)
}

// RegisterLifecycleParticipants declares which modules must ACK a
// construction/destruction request carrying typeID before its barrier
// can complete.
func (k *Kernel) RegisterLifecycleParticipants(typeID string, modules []string) {
	k.coordinator.RegisterParticipants(typeID, modules)
}

// NewQuery starts a reusable query builder against this kernel's
// entity table.
func (k *Kernel) NewQuery() *query.Builder {
	return query.New()
}

// RunQuery walks every entity matching q, without allocating.
func (k *Kernel) RunQuery(q query.Query, fn func(e ecs.EntityID)) {
	query.Run(k.table, q, fn)
}

// CollectQuery runs q and returns the matching entities as a slice.
func (k *Kernel) CollectQuery(q query.Query) []ecs.EntityID {
	return query.Collect(k.table, q)
}

// CreateEntity allocates a live handle directly — for world bootstrap
// outside a module tick. Systems mutate the world through their
// command buffer instead; this is not replayed or deferred.
func (k *Kernel) CreateEntity() (ecs.EntityID, error) {
	return k.table.CreateEntity()
}

// BeginConstruction allocates a Constructing-state handle and
// publishes a ConstructionRequest for typeID, starting the lifecycle
// coordinator's ACK barrier. The entity stays invisible to default
// queries until every registered participant ACKs (or the barrier
// times out).
func (k *Kernel) BeginConstruction(typeID string) (ecs.EntityID, error) {
	e, err := k.table.CreateStaged()
	if err != nil {
		return ecs.Invalid, err
	}
	if err := k.bus.Publish(EventConstructionRequest, lifecycle.ConstructionRequest{Entity: e, TypeID: typeID}); err != nil {
		return ecs.Invalid, err
	}
	return e, nil
}

// RequestDestruction publishes a DestructionRequest for e, setting it
// TearDown the moment the coordinator observes it next frame.
func (k *Kernel) RequestDestruction(e ecs.EntityID, reason string) error {
	return k.bus.Publish(EventDestructionRequest, lifecycle.DestructionRequest{Entity: e, Reason: reason})
}

// Acknowledge publishes module's ACK against e's in-flight barrier.
func (k *Kernel) Acknowledge(e ecs.EntityID, module string, success bool) error {
	return k.bus.Publish(EventACK, lifecycle.ACK{Entity: e, Module: module, Success: success})
}

// AddComponent writes value directly to the live store — for world
// bootstrap outside a module tick, stamped with the host's current
// global version.
func (k *Kernel) AddComponent(e ecs.EntityID, id ecs.ComponentTypeID, value any) error {
	prevMask := k.store.Mask(e)
	if err := k.store.Add(e, id, value, k.host.GlobalVersion()); err != nil {
		return err
	}
	newMask := k.store.Mask(e)
	if err := k.table.SetMask(e, newMask); err != nil {
		return err
	}
	k.index.SetArchetype(e, newMask, prevMask, true)
	return nil
}

// Tag assigns e a single tag, replacing any prior tag.
func (k *Kernel) Tag(e ecs.EntityID, tag string) { k.index.SetTag(e, tag) }

// FindByTag returns every entity carrying tag.
func (k *Kernel) FindByTag(tag string) []ecs.EntityID { return k.index.FindByTag(tag) }

// AddToGroup adds e to the named group, creating the group on first use.
func (k *Kernel) AddToGroup(e ecs.EntityID, group string) { k.index.AddToGroup(e, group) }

// RemoveFromGroup removes e from the named group.
func (k *Kernel) RemoveFromGroup(e ecs.EntityID, group string) { k.index.RemoveFromGroup(e, group) }

// Group returns every member of the named group.
func (k *Kernel) Group(group string) []ecs.EntityID { return k.index.Group(group) }

// EntityGroups returns the names of every group e belongs to.
func (k *Kernel) EntityGroups(e ecs.EntityID) []string { return k.index.EntityGroups(e) }

// EntitiesByArchetype returns every entity whose component mask exactly
// equals mask.
func (k *Kernel) EntitiesByArchetype(mask ecs.Mask) []ecs.EntityID {
	return k.index.EntitiesByArchetype(mask)
}

// ArchetypeCount returns the number of distinct component-mask
// archetypes currently tracked.
func (k *Kernel) ArchetypeCount() int { return k.index.ArchetypeCount() }

// GlobalTime returns the most recently published GlobalTime singleton.
func (k *Kernel) GlobalTime() ecs.GlobalTime {
	return k.singletons.GlobalTime()
}

// SetPaused/SetTimeScale forward to the module scheduler.
func (k *Kernel) SetPaused(paused bool) { k.host.SetPaused(paused) }

func (k *Kernel) SetTimeScale(scale float32) { k.host.SetTimeScale(scale) }

// Metrics returns the Collector backing this kernel's observability
// surface, for a caller that wants to expose it over HTTP
// (promhttp.HandlerFor(k.Metrics().Registry, ...)).
func (k *Kernel) Metrics() *metrics.Collector { return k.metrics }

// ValidateMemoryBudget estimates registered component storage's
// worst-case single-chunk footprint and compares it against
// cfg.MemoryBudget, logging and returning an error if exceeded. Call
// once after every component type is registered and before the first
// Tick. A zero MemoryBudget disables the check.
func (k *Kernel) ValidateMemoryBudget() error {
	if k.cfg.MemoryBudget == 0 {
		return nil
	}
	estimate := k.estimateFootprint()
	if estimate > k.cfg.MemoryBudget {
		k.log.Warn("component storage footprint exceeds configured budget",
			zap.Stringer("estimate", estimate),
			zap.Stringer("budget", k.cfg.MemoryBudget),
		)
		return fmt.Errorf("component storage footprint %s exceeds budget %s", estimate, k.cfg.MemoryBudget)
	}
	return nil
}

// estimateFootprint sums every registered type's elem_size * chunk_size
// — a conservative estimate of one fully-populated chunk per type, not
// a live memory profile (actual usage depends on how many chunks each
// table has grown to).
func (k *Kernel) estimateFootprint() datasize.ByteSize {
	var total datasize.ByteSize
	chunk := datasize.ByteSize(k.registry.ChunkSize())
	for _, ti := range k.registry.All() {
		if ti == nil {
			continue
		}
		total += datasize.ByteSize(ti.ElemSize) * chunk
	}
	return total
}

// reclaimTornDown frees every TearDown entity not currently gated by
// an in-flight lifecycle barrier. A direct command-buffer
// DestroyEntity (spec.md §4.5) moves an entity straight to TearDown
// with no coordinator involvement at all, so nothing else would ever
// advance it to Free; this is the one place that does, giving such an
// entity exactly one full frame of TearDown visibility (set during the
// previous Tick's harvest, reclaimed at the start of this one) before
// its slot and component storage are reclaimed.
func (k *Kernel) reclaimTornDown() {
	q := query.New().WithLifecycle(ecs.TearDown).Build()
	query.Run(k.table, q, func(e ecs.EntityID) {
		if k.coordinator.IsTracked(e) {
			return
		}
		_ = k.table.SetLifecycle(e, ecs.Free)
		k.index.ForgetEntity(e)
	})
}

// Tick runs exactly one frame: reclaim entities torn down last frame,
// run the module scheduler (which publishes GlobalTime, dispatches
// every module, and harvests their command buffers), advance the
// lifecycle coordinator's barriers against this frame's CURRENT
// construction/destruction/ACK streams, and sanitize component storage
// for anything that went Free this frame.
func (k *Kernel) Tick(dt float32) error {
	k.reclaimTornDown()

	if err := k.host.Tick(dt); err != nil {
		return fmt.Errorf("module scheduler: %w", err)
	}

	k.coordinator.Tick(k.bus, k.table)
	k.store.SanitizeDead(k.table.IsAlive, k.host.GlobalVersion())

	k.metrics.SetEntityCount(k.table.Count())
	k.metrics.SetPendingBarriers(k.coordinator.Pending())
	for _, sv := range k.bus.ActiveStreams() {
		k.metrics.SetBusStreamDepth(fmt.Sprintf("%d", sv.Type), len(sv.Current))
	}
	return nil
}

// Close stops the background resource monitor, if one was started.
func (k *Kernel) Close() {
	if k.monitor != nil {
		k.monitor.stop()
	}
}
