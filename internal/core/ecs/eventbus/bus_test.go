package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"simkernel/internal/core/ecs"
)

const (
	damageEvent ecs.EventTypeID = 1
	deathEvent  ecs.EventTypeID = 2
)

func TestBus_PublishUnregisteredTypeFails(t *testing.T) {
	b := New()
	err := b.Publish(damageEvent, "x")
	require.Error(t, err)
	code, _ := ecs.Code(err)
	assert.Equal(t, ecs.CodeMissingEventId, code)
}

func TestBus_OneFrameLatency(t *testing.T) {
	b := New()
	b.RegisterType(damageEvent)

	require.NoError(t, b.Publish(damageEvent, 10))
	assert.False(t, b.HasEvent(damageEvent), "published events must not be visible before a swap")

	b.SwapBuffers()
	assert.True(t, b.HasEvent(damageEvent))
	got := b.Consume(damageEvent)
	require.Len(t, got, 1)
	assert.Equal(t, 10, got[0])

	// Publish again in the same (now current) frame.
	require.NoError(t, b.Publish(damageEvent, 20))
	// Still consuming the old CURRENT until the next swap.
	got2 := b.Consume(damageEvent)
	assert.Len(t, got2, 1)

	b.SwapBuffers()
	got3 := b.Consume(damageEvent)
	require.Len(t, got3, 1)
	assert.Equal(t, 20, got3[0])
}

func TestBus_SwapClearsEmptyStreamsToEmptyState(t *testing.T) {
	b := New()
	b.RegisterType(damageEvent)
	b.SwapBuffers()
	assert.False(t, b.HasEvent(damageEvent))
	assert.Empty(t, b.Consume(damageEvent))
}

func TestBus_MultipleConsumersSeeIdenticalData(t *testing.T) {
	b := New()
	b.RegisterType(damageEvent)
	require.NoError(t, b.Publish(damageEvent, 1))
	require.NoError(t, b.Publish(damageEvent, 2))
	b.SwapBuffers()

	a := b.Consume(damageEvent)
	c := b.Consume(damageEvent)
	assert.Equal(t, a, c)
}

func TestBus_ActiveStreamsOnlyIncludesNonEmpty(t *testing.T) {
	b := New()
	b.RegisterType(damageEvent)
	b.RegisterType(deathEvent)
	require.NoError(t, b.Publish(damageEvent, 1))
	b.SwapBuffers()

	views := b.ActiveStreams()
	require.Len(t, views, 1)
	assert.Equal(t, damageEvent, views[0].Type)
}
