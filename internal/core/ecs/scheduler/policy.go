// Package scheduler implements the Module Host of spec.md §4.7: module
// registration, execution-policy validation, per-phase topological
// system ordering, trigger gating, worker dispatch, harvest, and the
// per-module circuit breaker.
//
// Grounded on the teacher's SystemManager (system_manager.go) for the
// phase/dependency registration shape, and on
// r3e-network-service_layer's resilience package for wrapping
// sony/gobreaker/v2 behind the project's own breaker.
package scheduler

import (
	"simkernel/internal/core/ecs"
	"simkernel/internal/core/ecs/command"
)

// Policy is a module's declared execution policy. Only three
// (mode, data_strategy) combinations are legal; Validate enforces that
// at registration time.
type Policy struct {
	Mode             ecs.ExecutionMode
	DataStrategy     ecs.DataStrategy
	TargetHz         float64
	MaxRuntimeMs     int
	FailureThreshold int
	ResetTimeoutMs   int
}

// Validate checks the (mode, data_strategy) combination and fills in
// defaults for zero-valued tuning fields.
func (p *Policy) Validate() error {
	legal := (p.Mode == ecs.Sync && p.DataStrategy == ecs.DirectStrategy) ||
		(p.Mode == ecs.FrameSynced && p.DataStrategy == ecs.GDBStrategy) ||
		(p.Mode == ecs.Async && p.DataStrategy == ecs.SoDStrategy)
	if !legal {
		return ecs.ErrIllegalPolicyCombination
	}
	if p.MaxRuntimeMs <= 0 {
		p.MaxRuntimeMs = 16
	}
	if p.FailureThreshold <= 0 {
		p.FailureThreshold = 3
	}
	if p.ResetTimeoutMs <= 0 {
		p.ResetTimeoutMs = 1000
	}
	return nil
}

// System is one phase-tagged unit of logic within a module.
// RunAfter/RunBefore name other system names within the SAME phase;
// cross-phase constraints are meaningless (phase order already
// subsumes them) and are ignored if given.
type System struct {
	Name      string
	Phase     ecs.Phase
	RunAfter  []string
	RunBefore []string
	Tick      func(view ecs.View, buf *command.Buffer, dt float32) error
}

// ModuleSpec is everything a module declares at registration.
type ModuleSpec struct {
	Name               string
	Policy             Policy
	WatchedComponents  ecs.Mask
	WatchedEvents      []ecs.EventTypeID
	RequiredComponents ecs.Mask // default zero-value means "all snapshotable"
	Systems            []System

	// FrequencyGroup identifies convoy membership for Async modules:
	// modules sharing (TargetHz, FrequencyGroup) convoy together
	// (spec.md §4.7.4c). Empty string means "no convoy, solo SoD".
	FrequencyGroup string
}
