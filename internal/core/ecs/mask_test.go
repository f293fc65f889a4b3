package ecs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMask_BasicOperations(t *testing.T) {
	var m Mask
	assert.False(t, m.Has(3))

	m = m.Set(3)
	assert.True(t, m.Has(3))
	assert.False(t, m.Has(4))

	m = m.Clear(3)
	assert.False(t, m.Has(3))
}

func TestMask_CrossesWordBoundary(t *testing.T) {
	m := MaskOf(0, 63, 64, 128, 255)
	for _, id := range []ComponentTypeID{0, 63, 64, 128, 255} {
		assert.True(t, m.Has(id), "expected bit %d set", id)
	}
	assert.False(t, m.Has(65))
}

func TestMask_SetIgnoresOutOfRange(t *testing.T) {
	var m Mask
	m = m.Set(MaxComponentTypes + 10)
	assert.True(t, m.IsZero())
}

func TestMask_SupersetAndDisjoint(t *testing.T) {
	include := MaskOf(1, 2)
	entity := MaskOf(1, 2, 3)
	assert.True(t, entity.IsSupersetOf(include))

	exclude := MaskOf(5)
	assert.True(t, entity.DisjointFrom(exclude))

	exclude = exclude.Set(2)
	assert.False(t, entity.DisjointFrom(exclude))
}

func TestMask_OrAndForEach(t *testing.T) {
	a := MaskOf(1, 2)
	b := MaskOf(2, 3)

	union := a.Or(b)
	var got []ComponentTypeID
	union.ForEach(func(id ComponentTypeID) { got = append(got, id) })
	assert.Equal(t, []ComponentTypeID{1, 2, 3}, got)

	inter := a.And(b)
	assert.True(t, inter.Has(2))
	assert.False(t, inter.Has(1))

	diff := a.AndNot(b)
	assert.True(t, diff.Has(1))
	assert.False(t, diff.Has(2))
}
