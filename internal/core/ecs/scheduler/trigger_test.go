package scheduler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"simkernel/internal/core/ecs"
)

func TestShouldRun_TargetHzZeroFiresEveryFrame(t *testing.T) {
	spec := &ModuleSpec{Policy: Policy{TargetHz: 0}}
	ts := &triggerState{}
	require.True(t, shouldRun(spec, ts, 60, TriggerInputs{}))
}

func TestShouldRun_TargetHzGatesByFrameCount(t *testing.T) {
	spec := &ModuleSpec{Policy: Policy{TargetHz: 20}} // threshold = 60/20 = 3
	ts := &triggerState{}
	in := TriggerInputs{}

	require.False(t, shouldRun(spec, ts, 60, in))
	ts.framesSinceLastRun = 1
	require.False(t, shouldRun(spec, ts, 60, in))
	ts.framesSinceLastRun = 2
	require.True(t, shouldRun(spec, ts, 60, in))
}

func TestShouldRun_ReactiveComponentChangeFiresImmediately(t *testing.T) {
	spec := &ModuleSpec{
		Policy:            Policy{TargetHz: 1},
		WatchedComponents: ecs.MaskOf(3),
	}
	ts := &triggerState{framesSinceLastRun: 0}
	in := TriggerInputs{
		HasChanges: func(watched ecs.Mask, since ecs.GlobalVersion) bool { return true },
	}
	require.True(t, shouldRun(spec, ts, 60, in))
}

func TestShouldRun_ReactiveEventFiresImmediately(t *testing.T) {
	spec := &ModuleSpec{
		Policy:        Policy{TargetHz: 1},
		WatchedEvents: []ecs.EventTypeID{7},
	}
	ts := &triggerState{}
	in := TriggerInputs{
		HasEvent: func(types []ecs.EventTypeID) bool { return true },
	}
	require.True(t, shouldRun(spec, ts, 60, in))
}

func TestShouldRun_WatchedButNoChangeFallsBackToFrequencyGate(t *testing.T) {
	spec := &ModuleSpec{
		Policy:            Policy{TargetHz: 30}, // threshold = round(60/30) = 2
		WatchedComponents: ecs.MaskOf(3),
	}
	ts := &triggerState{}
	in := TriggerInputs{
		HasChanges: func(watched ecs.Mask, since ecs.GlobalVersion) bool { return false },
	}
	require.False(t, shouldRun(spec, ts, 60, in))
	ts.framesSinceLastRun = 2
	require.True(t, shouldRun(spec, ts, 60, in))
}
