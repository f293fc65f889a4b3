package scheduler

import (
	"math"

	"simkernel/internal/core/ecs"
)

// triggerState is the per-module bookkeeping the gate in spec.md §4.7
// needs: how long since it last ran and what version it last observed.
type triggerState struct {
	framesSinceLastRun int
	lastRunVersion     ecs.GlobalVersion
}

// HasChanges reports whether any watched component table has changed
// since lastRunVersion; HasEvent reports whether any watched event
// type is present in CURRENT this frame. Both are supplied by the
// caller (the Host) since they require live access to storage tables
// and the event bus this package does not own.
type TriggerInputs struct {
	HasChanges func(watched ecs.Mask, since ecs.GlobalVersion) bool
	HasEvent   func(types []ecs.EventTypeID) bool
}

// shouldRun implements spec.md §4.7's trigger gate verbatim:
//  1. reactive trigger fires immediately if declared and satisfied,
//  2. else target_hz == 0 fires every frame,
//  3. else fire once the frames since the last run, counting the frame
//     being evaluated, reach round(frame_rate/target_hz).
//
// ts.framesSinceLastRun holds the frames already skipped since the last
// run, so the frame being evaluated is framesSinceLastRun+1.
func shouldRun(spec *ModuleSpec, ts *triggerState, frameRate float64, in TriggerInputs) bool {
	hasWatch := !spec.WatchedComponents.IsZero() || len(spec.WatchedEvents) > 0
	if hasWatch {
		if in.HasChanges != nil && !spec.WatchedComponents.IsZero() && in.HasChanges(spec.WatchedComponents, ts.lastRunVersion) {
			return true
		}
		if in.HasEvent != nil && len(spec.WatchedEvents) > 0 && in.HasEvent(spec.WatchedEvents) {
			return true
		}
	}
	if spec.Policy.TargetHz == 0 {
		return true
	}
	threshold := int(math.Round(frameRate / spec.Policy.TargetHz))
	return ts.framesSinceLastRun+1 >= threshold
}
