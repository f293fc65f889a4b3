package entitytable

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"simkernel/internal/core/ecs"
)

func TestEntitySet_UnionIntersection(t *testing.T) {
	a := NewEntitySet()
	b := NewEntitySet()
	e1 := ecs.EntityID{Index: 1, Generation: 1}
	e2 := ecs.EntityID{Index: 2, Generation: 1}
	e3 := ecs.EntityID{Index: 3, Generation: 1}
	a.Add(e1)
	a.Add(e2)
	b.Add(e2)
	b.Add(e3)

	union := a.Union(b)
	assert.Equal(t, 3, union.Len())

	inter := a.Intersection(b)
	assert.Equal(t, 1, inter.Len())
	assert.True(t, inter.Contains(e2))
}

func TestEntitySet_VersionBumpsOnChange(t *testing.T) {
	s := NewEntitySet()
	v0 := s.Version()
	e := ecs.EntityID{Index: 1, Generation: 1}
	s.Add(e)
	assert.Greater(t, s.Version(), v0)

	v1 := s.Version()
	assert.False(t, s.Remove(ecs.EntityID{Index: 9, Generation: 1}))
	assert.Equal(t, v1, s.Version(), "removing a non-member must not bump the version")
}

func TestIndex_TagsReplacePrior(t *testing.T) {
	idx := NewIndex()
	e := ecs.EntityID{Index: 1, Generation: 1}
	idx.SetTag(e, "boss")
	idx.SetTag(e, "elite")

	assert.Empty(t, idx.FindByTag("boss"))
	assert.ElementsMatch(t, []ecs.EntityID{e}, idx.FindByTag("elite"))
}

func TestIndex_Groups(t *testing.T) {
	idx := NewIndex()
	e1 := ecs.EntityID{Index: 1, Generation: 1}
	e2 := ecs.EntityID{Index: 2, Generation: 1}
	idx.AddToGroup(e1, "enemies")
	idx.AddToGroup(e2, "enemies")

	assert.ElementsMatch(t, []ecs.EntityID{e1, e2}, idx.Group("enemies"))
	assert.ElementsMatch(t, []string{"enemies"}, idx.EntityGroups(e1))

	idx.RemoveFromGroup(e1, "enemies")
	assert.ElementsMatch(t, []ecs.EntityID{e2}, idx.Group("enemies"))
	assert.Empty(t, idx.EntityGroups(e1))
}

func TestIndex_ForgetEntityClearsEverything(t *testing.T) {
	idx := NewIndex()
	e := ecs.EntityID{Index: 1, Generation: 1}
	idx.SetTag(e, "boss")
	idx.AddToGroup(e, "enemies")
	idx.SetArchetype(e, ecs.MaskOf(1, 2), ecs.Mask{}, false)

	idx.ForgetEntity(e)

	assert.Empty(t, idx.FindByTag("boss"))
	assert.Empty(t, idx.Group("enemies"))
	assert.Empty(t, idx.EntitiesByArchetype(ecs.MaskOf(1, 2)))
}

func TestIndex_ArchetypeReclassification(t *testing.T) {
	idx := NewIndex()
	e := ecs.EntityID{Index: 1, Generation: 1}
	m1 := ecs.MaskOf(1)
	m2 := ecs.MaskOf(1, 2)

	idx.SetArchetype(e, m1, ecs.Mask{}, false)
	assert.Equal(t, 1, idx.ArchetypeCount())

	idx.SetArchetype(e, m2, m1, true)
	assert.Empty(t, idx.EntitiesByArchetype(m1))
	assert.ElementsMatch(t, []ecs.EntityID{e}, idx.EntitiesByArchetype(m2))
}
