package scheduler

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-multierror"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"simkernel/internal/core/ecs"
	"simkernel/internal/core/ecs/command"
	"simkernel/internal/core/ecs/entitytable"
	"simkernel/internal/core/ecs/eventbus"
	"simkernel/internal/core/ecs/metrics"
	"simkernel/internal/core/ecs/singleton"
	"simkernel/internal/core/ecs/snapshot"
	"simkernel/internal/core/ecs/storage"
)

// HostConfig carries the scheduler-level tuning a Host accepts.
// DefaultMaxRuntime fills in Policy.MaxRuntimeMs for modules that leave
// it zero. SnapshotPoolWarm and LifecycleTimeoutFr are accepted but not
// read by the Host: SoD pools grow on demand, and the kernel facade
// passes the lifecycle timeout to lifecycle.New directly.
type HostConfig struct {
	FrameRate          float64
	WorkerPoolSize     int64
	DefaultMaxRuntime  time.Duration
	SnapshotPoolWarm   int
	LifecycleTimeoutFr int
}

// moduleState is everything the Host tracks per registered module
// across frames: its spec, provider, command buffer, breaker, trigger
// bookkeeping, and (for Async) the in-flight task handle.
type moduleState struct {
	spec     ModuleSpec
	provider snapshot.Provider
	buf      *command.Buffer
	br       *breaker
	trigger  triggerState

	// gatedAt/gatedFire cache the trigger gate's verdict for the frame
	// stamped gatedAt, so the gate is evaluated once per frame rather
	// than once per phase.
	gatedAt   ecs.GlobalVersion
	gatedFire bool

	asyncRunning bool
	asyncDone    chan error

	// asyncBackoff paces retries of a dispatch the worker pool rejected
	// for saturation: repeatedly hammering a full semaphore every frame
	// wastes the TryAcquire call, so a rejected module backs off
	// exponentially (capped) before its next attempt instead of trying
	// again next frame regardless.
	asyncBackoff *backoff.ExponentialBackOff
	asyncRetryAt time.Time
}

// Host is the Module Host: it owns every registered module, the
// per-phase execution orders, and drives one frame at a time.
//
// Grounded on the teacher's SystemManagerImpl for module/system
// bookkeeping shape; worker dispatch is new (the teacher has no
// worker-pool concept), built from golang.org/x/sync's errgroup
// (FrameSynced "wait for all") and semaphore (bounded Async
// concurrency) — both ubiquitous companions of the ecosystem's
// errgroup-shaped worker pools in services of this scale.
type Host struct {
	cfg HostConfig
	log *zap.Logger

	store      *storage.Store
	table      *entitytable.Table
	bus        *eventbus.Bus
	gdb        *snapshot.GDB
	singletons *singleton.Registry

	modules    []*moduleState
	allSystems []System
	orders     map[ecs.Phase][]System
	convoys    map[string]*snapshot.Convoy

	sem *semaphore.Weighted

	globalVersion ecs.GlobalVersion
	gdbSyncedAt   ecs.GlobalVersion
	totalSeconds  float32
	timeScale     float32
	paused        bool

	metrics *metrics.Collector
}

// SetPaused sets the is_paused flag the next GlobalTime publish
// carries; delta_seconds/total_seconds still advance, matching a
// pause that freezes simulation logic but not the frame clock itself.
func (h *Host) SetPaused(paused bool) { h.paused = paused }

// SetTimeScale sets the GlobalTime.TimeScale field published from the
// next frame onward. Scale is advisory only — the Host itself always
// advances total_seconds by the caller-supplied dt; a module that
// wants scaled motion reads TimeScale and applies it itself.
func (h *Host) SetTimeScale(scale float32) { h.timeScale = scale }

// GlobalVersion returns the version stamped by the most recently
// completed (or currently running) Tick — the kernel facade needs this
// to stamp its own post-Tick SanitizeDead pass with the same version a
// module's writes this frame carried.
func (h *Host) GlobalVersion() ecs.GlobalVersion { return h.globalVersion }

// WithMetrics attaches a Collector the Host reports frame, module-tick,
// and breaker-state observations to. Passing nil (the default) makes
// every observation call a no-op.
func (h *Host) WithMetrics(m *metrics.Collector) *Host {
	h.metrics = m
	return h
}

// NewHost creates a Host bound to the live store/table/bus. gdb is the
// single shared double-buffered replica every FrameSynced module
// reads, synced once per frame regardless of how many fire. singletons
// receives the GlobalTime publish every frame; it may be nil if the
// caller has no interest in singleton state.
func NewHost(cfg HostConfig, store *storage.Store, table *entitytable.Table, bus *eventbus.Bus, gdb *snapshot.GDB, singletons *singleton.Registry, log *zap.Logger) *Host {
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = 60
	}
	if cfg.WorkerPoolSize <= 0 {
		cfg.WorkerPoolSize = 4
	}
	if cfg.DefaultMaxRuntime <= 0 {
		cfg.DefaultMaxRuntime = 16 * time.Millisecond
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Host{
		cfg:        cfg,
		log:        log,
		store:      store,
		table:      table,
		bus:        bus,
		gdb:        gdb,
		singletons: singletons,
		orders:     make(map[ecs.Phase][]System),
		sem:        semaphore.NewWeighted(cfg.WorkerPoolSize),
		timeScale:  1,
	}
}

// Register validates spec's policy, builds its per-phase execution
// order, and adds it to the Host. Registration errors from multiple
// calls to RegisterAll are aggregated with go-multierror so a caller
// sees every problem at once rather than stopping at the first.
func (h *Host) Register(spec ModuleSpec) error {
	if spec.Policy.MaxRuntimeMs <= 0 {
		spec.Policy.MaxRuntimeMs = int(h.cfg.DefaultMaxRuntime / time.Millisecond)
	}
	if err := spec.Policy.Validate(); err != nil {
		return err.(*ecs.KernelError).WithModule(spec.Name)
	}

	// Recompute the full cross-module topological order before
	// committing spec: RunAfter/RunBefore name system names within a
	// phase, not within a module, so a cycle introduced by this
	// registration must be caught against every system already
	// registered in the same phase, and the accepted order must
	// reflect all of them together.
	candidate := append(append([]System{}, h.allSystems...), spec.Systems...)
	orders, err := buildExecutionOrders(candidate)
	if err != nil {
		return fmt.Errorf("module %s: %w", spec.Name, err)
	}

	var provider snapshot.Provider
	switch spec.Policy.DataStrategy {
	case ecs.DirectStrategy:
		provider = snapshot.NewDirect()
	case ecs.GDBStrategy:
		provider = h.gdb
	case ecs.SoDStrategy:
		if spec.FrequencyGroup == "" {
			mask := spec.RequiredComponents
			if mask.IsZero() {
				mask = h.store.Registry().SnapshotableMask(ecs.Mask{}, false)
			}
			provider = snapshot.NewSoD(h.store.Registry(), mask)
		}
		// A non-empty FrequencyGroup gets its provider assigned by
		// syncConvoyGroup below instead of a private SoD.
	}

	ms := &moduleState{
		spec:     spec,
		provider: provider,
		buf:      command.New(spec.Name),
		br:       newBreaker(spec.Policy.FailureThreshold, time.Duration(spec.Policy.ResetTimeoutMs)*time.Millisecond),
	}
	h.modules = append(h.modules, ms)
	h.allSystems = candidate
	h.orders = orders

	if key, ok := convoyGroupKey(spec); ok {
		h.syncConvoyGroup(key)
	}
	return nil
}

// convoyGroupKey reports the shared-convoy key for spec, and whether
// spec opts into convoy sharing at all: only Async/SoD modules that
// declare a non-empty FrequencyGroup do (spec.md §4.7 step 4c). Modules
// sharing both TargetHz and FrequencyGroup share one Convoy.
func convoyGroupKey(spec ModuleSpec) (string, bool) {
	if spec.Policy.Mode != ecs.Async || spec.Policy.DataStrategy != ecs.SoDStrategy || spec.FrequencyGroup == "" {
		return "", false
	}
	return fmt.Sprintf("%s@%g", spec.FrequencyGroup, spec.Policy.TargetHz), true
}

// syncConvoyGroup rebuilds the shared Convoy for key from every
// currently-registered member's required-component mask (the union)
// and repoints each member's provider at it — the same
// recompute-the-whole-thing-on-every-Register discipline
// buildExecutionOrders already follows for topological order, applied
// here to convoy membership instead.
func (h *Host) syncConvoyGroup(key string) {
	var mask ecs.Mask
	var members []*moduleState
	for _, ms := range h.modules {
		if k, ok := convoyGroupKey(ms.spec); ok && k == key {
			members = append(members, ms)
			m := ms.spec.RequiredComponents
			if m.IsZero() {
				m = h.store.Registry().SnapshotableMask(ecs.Mask{}, false)
			}
			mask = mask.Or(m)
		}
	}
	if len(members) == 0 {
		return
	}

	convoy := snapshot.NewConvoy(h.store.Registry(), mask)
	if h.convoys == nil {
		h.convoys = make(map[string]*snapshot.Convoy)
	}
	h.convoys[key] = convoy
	for _, ms := range members {
		ms.provider = convoy
	}
}

// RegisterAll registers every spec in specs, collecting every
// registration failure via hashicorp/go-multierror instead of
// stopping at the first bad module.
func (h *Host) RegisterAll(specs []ModuleSpec) error {
	var result *multierror.Error
	for _, spec := range specs {
		if err := h.Register(spec); err != nil {
			result = multierror.Append(result, fmt.Errorf("module %s: %w", spec.Name, err))
		}
	}
	return result.ErrorOrNil()
}

// Tick runs exactly one frame of spec.md §4.7's algorithm.
func (h *Host) Tick(dt float32) error {
	start := time.Now()
	h.globalVersion++
	h.publishGlobalTime(dt)

	h.runPhaseSync(ecs.Input)
	h.bus.SwapBuffers()

	for _, phase := range []ecs.Phase{ecs.BeforeSync, ecs.Simulation, ecs.PostSimulation, ecs.Export} {
		if err := h.runPhase(phase, dt); err != nil {
			return err
		}
	}

	h.harvestAll()
	if h.metrics != nil {
		h.metrics.ObserveFrame(time.Since(start))
		for _, ms := range h.modules {
			h.metrics.SetBreakerState(ms.spec.Name, int(ms.br.state()))
		}
	}
	return nil
}

// publishGlobalTime writes the GlobalTime singleton, per spec.md
// §4.9's "published after step 1 of the frame algorithm" ordering —
// called immediately after globalVersion is advanced, before any
// system runs this frame.
func (h *Host) publishGlobalTime(dt float32) {
	h.totalSeconds += dt
	if h.singletons == nil {
		return
	}
	h.singletons.PublishGlobalTime(ecs.GlobalTime{
		FrameNumber:  int64(h.globalVersion),
		DeltaSeconds: dt,
		TotalSeconds: h.totalSeconds,
		TimeScale:    h.timeScale,
		IsPaused:     h.paused,
		CapturedAt:   time.Now(),
	})
}

// runPhaseSync runs only Sync-mode modules' Input-phase systems —
// called before the bus swap, per spec.md step 2.
func (h *Host) runPhaseSync(phase ecs.Phase) {
	for _, ms := range h.modules {
		if ms.spec.Policy.Mode != ecs.Sync {
			continue
		}
		h.runModulePhase(ms, phase, 0)
	}
}

// runPhase drives one of BeforeSync/Simulation/PostSimulation/Export
// across every mode: Sync inline, FrameSynced via errgroup (wait for
// all), Async fire-and-forget onto the semaphore-bounded pool.
func (h *Host) runPhase(phase ecs.Phase, dt float32) error {
	for _, ms := range h.modules {
		if ms.spec.Policy.Mode != ecs.Sync {
			continue
		}
		if !h.gate(ms) {
			continue
		}
		h.runModulePhase(ms, phase, dt)
	}

	frameSynced := make([]*moduleState, 0)
	for _, ms := range h.modules {
		if ms.spec.Policy.Mode == ecs.FrameSynced && h.gate(ms) {
			frameSynced = append(frameSynced, ms)
		}
	}
	if len(frameSynced) > 0 {
		if h.gdbSyncedAt != h.globalVersion {
			if err := h.gdb.Sync(h.store, h.table, h.globalVersion); err != nil {
				return fmt.Errorf("gdb sync: %w", err)
			}
			h.gdbSyncedAt = h.globalVersion
		}
		var g errgroup.Group
		for _, ms := range frameSynced {
			ms := ms
			g.Go(func() error {
				h.runModulePhaseGuarded(ms, phase, dt)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}

	for _, ms := range h.modules {
		if ms.spec.Policy.Mode != ecs.Async {
			continue
		}
		if ms.asyncRunning {
			continue
		}
		if !h.gate(ms) {
			continue
		}
		if ms.asyncBackoff != nil && time.Now().Before(ms.asyncRetryAt) {
			// Still cooling down from a prior pool-saturation skip.
			continue
		}
		h.dispatchAsync(ms, phase, dt)
	}

	return nil
}

// gate evaluates spec.md's trigger gate for ms against the bus/store.
func (h *Host) gate(ms *moduleState) bool {
	if ms.gatedAt == h.globalVersion {
		return ms.gatedFire
	}
	in := TriggerInputs{
		HasChanges: func(watched ecs.Mask, since ecs.GlobalVersion) bool {
			changed := false
			watched.ForEach(func(id ecs.ComponentTypeID) {
				if t, ok := h.store.Table(id); ok && t.HasChangesSince(since) {
					changed = true
				}
			})
			return changed
		},
		HasEvent: func(types []ecs.EventTypeID) bool {
			for _, t := range types {
				if h.bus.HasEvent(t) {
					return true
				}
			}
			return false
		},
	}
	fire := shouldRun(&ms.spec, &ms.trigger, h.cfg.FrameRate, in)
	if fire {
		ms.trigger.framesSinceLastRun = 0
		ms.trigger.lastRunVersion = h.globalVersion
	} else {
		ms.trigger.framesSinceLastRun++
	}
	ms.gatedAt = h.globalVersion
	ms.gatedFire = fire
	return fire
}

// runModulePhase runs ms's systems for phase in topological order
// against its provider's Direct/GDB view, under the module's breaker
// but without the zombie-tolerant timeout race (used for Sync modules,
// which run inline on the main thread; FrameSynced modules go through
// runModulePhaseGuarded instead).
func (h *Host) runModulePhase(ms *moduleState, phase ecs.Phase, dt float32) {
	systems := h.orders[phase]
	view, err := ms.provider.Acquire(h.store, h.table, h.globalVersion)
	if err != nil {
		h.log.Error("snapshot acquire failed", zap.String("module", ms.spec.Name), zap.Error(err))
		return
	}
	defer ms.provider.Release(view)

	start := time.Now()
	err = ms.br.run(func() error {
		return runSystems(systems, ms.spec.Name, view, ms.buf, dt)
	})
	h.observeTick(ms.spec.Name, phase, start, err)
	if err != nil {
		h.log.Warn("module tick failed", zap.String("module", ms.spec.Name), zap.Error(err))
	}
}

// observeTick records a module dispatch's duration and classified
// outcome, if a Collector is attached.
func (h *Host) observeTick(module string, phase ecs.Phase, start time.Time, err error) {
	if h.metrics == nil {
		return
	}
	outcome := "ok"
	switch {
	case err == nil:
	case err == gobreaker.ErrOpenState:
		outcome = "breaker_open"
	case err == ecs.ErrModuleTimeout:
		outcome = "timeout"
	default:
		outcome = "error"
	}
	h.metrics.ObserveModuleTick(module, phase.String(), outcome, time.Since(start))
}

// runModulePhaseGuarded wraps runModulePhase's system execution with
// the zombie-tolerant timeout race, for FrameSynced modules running on
// worker goroutines.
func (h *Host) runModulePhaseGuarded(ms *moduleState, phase ecs.Phase, dt float32) {
	systems := h.orders[phase]
	view, err := ms.provider.Acquire(h.store, h.table, h.globalVersion)
	if err != nil {
		h.log.Error("snapshot acquire failed", zap.String("module", ms.spec.Name), zap.Error(err))
		return
	}
	defer ms.provider.Release(view)

	maxRuntime := time.Duration(ms.spec.Policy.MaxRuntimeMs) * time.Millisecond
	start := time.Now()
	err = ms.br.run(func() error {
		return runWithZombieTolerance(maxRuntime, func() error {
			return runSystems(systems, ms.spec.Name, view, ms.buf, dt)
		})
	})
	h.observeTick(ms.spec.Name, phase, start, err)
	if err != nil {
		h.log.Warn("module tick failed", zap.String("module", ms.spec.Name), zap.Error(err))
	}
}

// dispatchAsync launches ms's tick on the semaphore-bounded pool
// without waiting. Version capture happens before dispatch so a module
// spanning multiple frames still evaluates "changed since my dispatch"
// correctly on completion.
func (h *Host) dispatchAsync(ms *moduleState, phase ecs.Phase, dt float32) {
	ms.trigger.lastRunVersion = h.globalVersion
	ms.asyncRunning = true
	ms.asyncDone = make(chan error, 1)
	liveVersion := h.globalVersion

	if !h.sem.TryAcquire(1) {
		// Pool saturated: skip this dispatch cleanly, same as a
		// breaker-open skip — there is no blocking retry of a frame
		// deadline-bound dispatch. Back off exponentially before
		// ms is considered for dispatch again, so a chronically
		// saturated pool doesn't burn a TryAcquire every single frame
		// for every rejected module.
		ms.asyncRunning = false
		if ms.asyncBackoff == nil {
			ms.asyncBackoff = backoff.NewExponentialBackOff()
			ms.asyncBackoff.MaxElapsedTime = 0
		}
		ms.asyncRetryAt = time.Now().Add(ms.asyncBackoff.NextBackOff())
		h.log.Debug("async dispatch skipped, pool saturated", zap.String("module", ms.spec.Name))
		return
	}
	if ms.asyncBackoff != nil {
		ms.asyncBackoff.Reset()
		ms.asyncBackoff = nil
	}

	go func() {
		defer h.sem.Release(1)
		systems := h.orders[phase]
		view, err := ms.provider.Acquire(h.store, h.table, liveVersion)
		if err != nil {
			ms.asyncDone <- err
			return
		}
		defer ms.provider.Release(view)

		maxRuntime := time.Duration(ms.spec.Policy.MaxRuntimeMs) * time.Millisecond
		start := time.Now()
		err = ms.br.run(func() error {
			return runWithZombieTolerance(maxRuntime, func() error {
				return runSystems(systems, ms.spec.Name, view, ms.buf, dt)
			})
		})
		h.observeTick(ms.spec.Name, phase, start, err)
		ms.asyncDone <- err
	}()
}

// runSystems executes systems in order against view, handing each one
// the module's command buffer so mutations are recorded rather than
// applied directly — spec.md §4.5's deferred-mutation discipline.
func runSystems(systems []System, moduleName string, view ecs.View, buf *command.Buffer, dt float32) error {
	for _, s := range systems {
		if s.Tick == nil {
			continue
		}
		if err := s.Tick(view, buf, dt); err != nil {
			return fmt.Errorf("system %s/%s: %w", moduleName, s.Name, err)
		}
	}
	return nil
}

// harvestAll drains every completed module's command buffer into the
// live world, in module-registration order: Sync and FrameSynced
// modules always (they ran synchronously or were waited-for this
// frame); Async modules only if their task has finished since the
// last harvest.
func (h *Host) harvestAll() {
	for _, ms := range h.modules {
		switch ms.spec.Policy.Mode {
		case ecs.Sync, ecs.FrameSynced:
			if err := command.Harvest(ms.buf, h.store, h.table, h.bus, h.globalVersion); err != nil {
				h.log.Error("harvest failed", zap.String("module", ms.spec.Name), zap.Error(err))
			}
		case ecs.Async:
			if !ms.asyncRunning {
				continue
			}
			select {
			case err := <-ms.asyncDone:
				ms.asyncRunning = false
				if err != nil {
					h.log.Warn("async module failed", zap.String("module", ms.spec.Name), zap.Error(err))
					continue
				}
				if err := command.Harvest(ms.buf, h.store, h.table, h.bus, h.globalVersion); err != nil {
					h.log.Error("harvest failed", zap.String("module", ms.spec.Name), zap.Error(err))
				}
			default:
				// Still running (or a zombie past its deadline); its
				// command buffer is left untouched for a later frame.
			}
		}
	}
}
