package snapshot

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"simkernel/internal/core/ecs"
	"simkernel/internal/core/ecs/entitytable"
	"simkernel/internal/core/ecs/storage"
)

type position struct{ X, Y float32 }

func seedWorld(t *testing.T) (*storage.Registry, *storage.Store, *entitytable.Table, ecs.ComponentTypeID, ecs.ComponentTypeID) {
	t.Helper()
	reg := storage.NewRegistry(0)
	posID, err := reg.RegisterPlainData("Position", 8)
	require.NoError(t, err)
	scratchID, err := reg.RegisterOpaque("Scratchpad", false, true)
	require.NoError(t, err)

	live := storage.NewStore(reg)
	table := entitytable.NewTable(0)
	e, err := table.CreateEntity()
	require.NoError(t, err)
	require.NoError(t, live.Add(e, posID, position{X: 1, Y: 2}, 1))
	require.NoError(t, live.Add(e, scratchID, "scratch", 1))
	require.NoError(t, table.SetMask(e, live.Mask(e)))

	return reg, live, table, posID, scratchID
}

func TestDirect_AcquireReturnsLiveStoreItself(t *testing.T) {
	_, live, table, posID, _ := seedWorld(t)
	d := NewDirect()

	v, err := d.Acquire(live, table, 7)
	require.NoError(t, err)
	assert.Same(t, live, v.Store)
	assert.Equal(t, ecs.GlobalVersion(7), v.Version())

	got, err := v.Store.GetRO(table.LiveEntities()[0], posID)
	require.NoError(t, err)
	assert.Equal(t, position{X: 1, Y: 2}, got)
}

func TestGDB_SyncFlipsAndExcludesTransient(t *testing.T) {
	reg, live, table, posID, scratchID := seedWorld(t)
	gdb := NewGDB(reg, ecs.Mask{})

	require.NoError(t, gdb.Sync(live, table, 5))
	v, err := gdb.Acquire(live, table, 5)
	require.NoError(t, err)

	e := table.LiveEntities()[0]
	assert.True(t, v.Store.Has(e, posID))
	assert.False(t, v.Store.Has(e, scratchID), "transient component must never reach a GDB replica")

	// A second sync must flip to the other replica without disturbing
	// readers holding the first view (no Release call needed, GDB
	// replicas aren't pool-leased).
	require.NoError(t, gdb.Sync(live, table, 6))
	v2, err := gdb.Acquire(live, table, 6)
	require.NoError(t, err)
	assert.NotSame(t, v.Store, v2.Store)
}

func TestSoD_AcquireSyncsWithFixedMask(t *testing.T) {
	reg, live, table, posID, scratchID := seedWorld(t)
	mask := ecs.MaskOf(posID)
	sod := NewSoD(reg, mask)

	v, err := sod.Acquire(live, table, 3)
	require.NoError(t, err)
	e := table.LiveEntities()[0]
	assert.True(t, v.Store.Has(e, posID))
	assert.False(t, v.Store.Has(e, scratchID))

	sod.Release(v)
}

func TestSoD_ReleasedReplicaIsReused(t *testing.T) {
	reg, live, table, posID, _ := seedWorld(t)
	sod := NewSoD(reg, ecs.MaskOf(posID))

	v1, err := sod.Acquire(live, table, 1)
	require.NoError(t, err)
	replica := v1.Store
	sod.Release(v1)

	v2, err := sod.Acquire(live, table, 2)
	require.NoError(t, err)
	assert.Same(t, replica, v2.Store, "a released replica should be recycled from the pool, not reallocated")
}

func TestConvoy_SharesOneViewAcrossRefcountedAcquires(t *testing.T) {
	reg, live, table, posID, _ := seedWorld(t)
	convoy := NewConvoy(reg, ecs.MaskOf(posID))

	v1, err := convoy.Acquire(live, table, 1)
	require.NoError(t, err)
	v2, err := convoy.Acquire(live, table, 1)
	require.NoError(t, err)
	assert.Same(t, v1.Store, v2.Store, "subsequent acquires before any release must reuse the same synced view")

	convoy.Release(v1)
	// Still held by the second acquire's refcount.
	assert.Equal(t, 1, convoy.refs)
	convoy.Release(v2)
	assert.Equal(t, 0, convoy.refs)
}

func TestConvoy_ConcurrentAcquiresEachCountTowardRefs(t *testing.T) {
	reg, live, table, posID, _ := seedWorld(t)
	convoy := NewConvoy(reg, ecs.MaskOf(posID))

	const members = 8
	views := make([]*View, members)
	var wg sync.WaitGroup
	wg.Add(members)
	for i := 0; i < members; i++ {
		i := i
		go func() {
			defer wg.Done()
			v, err := convoy.Acquire(live, table, 1)
			require.NoError(t, err)
			views[i] = v
		}()
	}
	wg.Wait()

	// singleflight collapses the concurrent syncs into one, but every
	// caller must still count toward the refcount — otherwise the first
	// Release would recycle the view while other members still hold it.
	assert.Equal(t, members, convoy.refs)
	for _, v := range views {
		assert.Same(t, views[0].Store, v.Store)
	}

	for i := 0; i < members-1; i++ {
		convoy.Release(views[i])
		assert.NotEqual(t, 0, convoy.refs, "view must not be recycled while members still hold it")
	}
	convoy.Release(views[members-1])
	assert.Equal(t, 0, convoy.refs)
}
