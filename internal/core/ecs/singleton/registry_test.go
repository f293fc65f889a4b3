package singleton

import (
	"testing"

	"github.com/stretchr/testify/require"

	"simkernel/internal/core/ecs"
)

func TestRegistry_SetGetRoundTrip(t *testing.T) {
	r := New()
	_, ok := r.Get(5)
	require.False(t, ok)

	r.Set(5, "hello")
	v, ok := r.Get(5)
	require.True(t, ok)
	require.Equal(t, "hello", v)
}

func TestRegistry_GlobalTimeDefaultsToZeroValue(t *testing.T) {
	r := New()
	require.Equal(t, ecs.GlobalTime{}, r.GlobalTime())
}

func TestRegistry_PublishGlobalTimeRoundTrips(t *testing.T) {
	r := New()
	want := ecs.GlobalTime{FrameNumber: 42, DeltaSeconds: 0.016, TotalSeconds: 12.5}
	r.PublishGlobalTime(want)
	require.Equal(t, want, r.GlobalTime())
}
