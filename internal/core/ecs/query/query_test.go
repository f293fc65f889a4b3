package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"simkernel/internal/core/ecs"
	"simkernel/internal/core/ecs/entitytable"
)

func TestQuery_DefaultFilterExcludesNonActive(t *testing.T) {
	tbl := entitytable.NewTable(0)

	active, err := tbl.CreateEntity()
	require.NoError(t, err)
	require.NoError(t, tbl.SetMask(active, ecs.MaskOf(1)))

	staged, err := tbl.CreateStaged()
	require.NoError(t, err)
	require.NoError(t, tbl.SetMask(staged, ecs.MaskOf(1)))

	tornDown, err := tbl.CreateEntity()
	require.NoError(t, err)
	require.NoError(t, tbl.SetMask(tornDown, ecs.MaskOf(1)))
	require.NoError(t, tbl.Destroy(tornDown))

	q := New().With(1).Build()
	got := Collect(tbl, q)

	assert.ElementsMatch(t, []ecs.EntityID{active}, got)
}

func TestQuery_IncludeAndExclude(t *testing.T) {
	tbl := entitytable.NewTable(0)

	wanted, _ := tbl.CreateEntity()
	require.NoError(t, tbl.SetMask(wanted, ecs.MaskOf(1, 2)))

	excluded, _ := tbl.CreateEntity()
	require.NoError(t, tbl.SetMask(excluded, ecs.MaskOf(1, 2, 3)))

	missingRequired, _ := tbl.CreateEntity()
	require.NoError(t, tbl.SetMask(missingRequired, ecs.MaskOf(1)))

	q := New().With(1).With(2).Without(3).Build()
	got := Collect(tbl, q)

	assert.ElementsMatch(t, []ecs.EntityID{wanted}, got)
}

func TestQuery_WithLifecycleOverride(t *testing.T) {
	tbl := entitytable.NewTable(0)
	staged, _ := tbl.CreateStaged()
	require.NoError(t, tbl.SetMask(staged, ecs.MaskOf(1)))

	q := New().With(1).WithLifecycle(ecs.Constructing).Build()
	got := Collect(tbl, q)
	assert.ElementsMatch(t, []ecs.EntityID{staged}, got)
}

func TestQuery_EmptyIncludeMatchesEverythingInFilter(t *testing.T) {
	tbl := entitytable.NewTable(0)
	e, _ := tbl.CreateEntity()

	q := New().Build()
	got := Collect(tbl, q)
	assert.ElementsMatch(t, []ecs.EntityID{e}, got)
}
