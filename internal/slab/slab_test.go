package slab

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlabAllocateValidateRelease(t *testing.T) {
	s := New[int](1)

	h, v := s.Allocate()
	*v = 42
	assert.True(t, s.Validate(h))
	assert.Equal(t, 42, *s.Get(h))
	assert.Equal(t, 1, s.Len())

	s.Release(h)
	assert.False(t, s.Validate(h))
	assert.Nil(t, s.Get(h))
	assert.Equal(t, 0, s.Len())
}

func TestSlabRecyclesSlotsWithBumpedVersion(t *testing.T) {
	s := New[string](1)

	h1, v1 := s.Allocate()
	*v1 = "first"
	s.Release(h1)

	h2, v2 := s.Allocate()
	*v2 = "second"

	assert.Equal(t, h1.Index, h2.Index)
	assert.NotEqual(t, h1.Version, h2.Version)
	assert.False(t, s.Validate(h1), "stale handle must fail validation")
	assert.True(t, s.Validate(h2))
	assert.Equal(t, 1, s.Cap())
}

func TestSlabContainerIDIsolation(t *testing.T) {
	a := New[int](1)
	b := New[int](2)

	ha, _ := a.Allocate()
	assert.False(t, b.Validate(ha), "handle minted by another container must never validate")
}

func TestSlabEachVisitsOnlyLive(t *testing.T) {
	s := New[int](1)
	h1, v1 := s.Allocate()
	*v1 = 1
	h2, v2 := s.Allocate()
	*v2 = 2
	s.Release(h1)

	seen := map[uint32]int{}
	s.Each(func(h Handle, v *int) {
		seen[h.Index] = *v
	})

	assert.Len(t, seen, 1)
	assert.Equal(t, 2, seen[h2.Index])
}
