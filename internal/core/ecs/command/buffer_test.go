package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"simkernel/internal/core/ecs"
	"simkernel/internal/core/ecs/entitytable"
	"simkernel/internal/core/ecs/eventbus"
	"simkernel/internal/core/ecs/storage"
)

type health struct{ HP int }

func setup(t *testing.T) (*storage.Store, *entitytable.Table, *eventbus.Bus, ecs.ComponentTypeID) {
	t.Helper()
	reg := storage.NewRegistry(0)
	hpID, err := reg.RegisterPlainData("Health", 4)
	require.NoError(t, err)
	store := storage.NewStore(reg)
	table := entitytable.NewTable(0)
	bus := eventbus.New()
	bus.RegisterType(1)
	return store, table, bus, hpID
}

func TestHarvest_AppliesRecordsInOrder(t *testing.T) {
	store, table, bus, hpID := setup(t)
	e, err := table.CreateEntity()
	require.NoError(t, err)

	buf := New("combat")
	buf.AddComponent(e, hpID, health{HP: 10})
	buf.PublishEvent(1, "spawned")

	require.NoError(t, Harvest(buf, store, table, bus, 5))
	assert.Equal(t, 0, buf.Len())

	got, err := store.GetRO(e, hpID)
	require.NoError(t, err)
	assert.Equal(t, health{HP: 10}, got)
	assert.Equal(t, ecs.MaskOf(hpID), table.Mask(e))

	bus.SwapBuffers()
	assert.True(t, bus.HasEvent(1), "command-deferred publish lands in PENDING and appears after the next swap")
}

func TestHarvest_DropsRecordsForDeadEntities(t *testing.T) {
	store, table, bus, hpID := setup(t)
	e, err := table.CreateEntity()
	require.NoError(t, err)
	require.NoError(t, table.Destroy(e))
	require.NoError(t, table.SetLifecycle(e, ecs.Free))

	buf := New("combat")
	buf.AddComponent(e, hpID, health{HP: 99})

	require.NoError(t, Harvest(buf, store, table, bus, 1))
	assert.False(t, store.Has(e, hpID))
}

func TestHarvest_DestroyRecord(t *testing.T) {
	store, table, bus, _ := setup(t)
	e, err := table.CreateEntity()
	require.NoError(t, err)

	buf := New("combat")
	buf.DestroyEntity(e)
	require.NoError(t, Harvest(buf, store, table, bus, 1))

	assert.Equal(t, ecs.TearDown, table.Lifecycle(e))
}
