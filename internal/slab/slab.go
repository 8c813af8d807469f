// Package slab implements the versioned slab described in spec.md §4.1:
// an append-and-recycle array handing out generational handles so that
// use of a freed slot can always be detected.
package slab

import "fmt"

// Handle identifies a slot in a Slab. Version is bumped on every release
// of the slot so stale handles fail Validate. ContainerID distinguishes
// handles minted by different Slab instances (spec.md §9, "Global state" -
// multiple independent sets may coexist).
type Handle struct {
	Index       uint32
	Version     uint32
	ContainerID uint16
}

// IsDefault reports whether h is the zero value, i.e. was never assigned.
func (h Handle) IsDefault() bool {
	return h == Handle{}
}

func (h Handle) String() string {
	return fmt.Sprintf("#%d.%d@%d", h.Index, h.Version, h.ContainerID)
}

type slot[T any] struct {
	version uint32
	alive   bool
	value   T
}

// Slab is a generic, generation-checked container. The zero value is not
// usable; use New.
type Slab[T any] struct {
	containerID uint16
	slots       []slot[T]
	freeList    []uint32
	liveCount   int
}

// New creates a Slab tagged with containerID, which is stamped into every
// handle it mints.
func New[T any](containerID uint16) *Slab[T] {
	return &Slab[T]{containerID: containerID}
}

// ContainerID returns the container tag stamped into handles from this slab.
func (s *Slab[T]) ContainerID() uint16 {
	return s.containerID
}

// Allocate reserves a slot, reusing a freed one (with its version bumped)
// when available, and returns its handle plus a pointer to its value for
// in-place initialization.
func (s *Slab[T]) Allocate() (h Handle, value *T) {
	if n := len(s.freeList); n > 0 {
		idx := s.freeList[n-1]
		s.freeList = s.freeList[:n-1]
		sl := &s.slots[idx]
		sl.alive = true
		s.liveCount++
		return Handle{Index: idx, Version: sl.version, ContainerID: s.containerID}, &sl.value
	}

	idx := uint32(len(s.slots))
	s.slots = append(s.slots, slot[T]{alive: true})
	s.liveCount++
	return Handle{Index: idx, Version: 0, ContainerID: s.containerID}, &s.slots[idx].value
}

// Validate reports whether h still refers to a live slot in this slab.
func (s *Slab[T]) Validate(h Handle) bool {
	if h.ContainerID != s.containerID || int(h.Index) >= len(s.slots) {
		return false
	}
	sl := &s.slots[h.Index]
	return sl.alive && sl.version == h.Version
}

// Get returns a pointer to the live value for h, or nil if h is stale.
func (s *Slab[T]) Get(h Handle) *T {
	if !s.Validate(h) {
		return nil
	}
	return &s.slots[h.Index].value
}

// Release frees the slot for h, bumping its version so outstanding handles
// fail Validate. Releasing an already-stale handle is a no-op.
func (s *Slab[T]) Release(h Handle) {
	if !s.Validate(h) {
		return
	}
	sl := &s.slots[h.Index]
	sl.alive = false
	sl.version++
	var zero T
	sl.value = zero
	s.freeList = append(s.freeList, h.Index)
	s.liveCount--
}

// Len returns the number of currently live slots.
func (s *Slab[T]) Len() int {
	return s.liveCount
}

// Each calls fn for every live handle/value pair, in slot order. fn must
// not allocate or release slots in this slab.
func (s *Slab[T]) Each(fn func(Handle, *T)) {
	for i := range s.slots {
		if !s.slots[i].alive {
			continue
		}
		fn(Handle{Index: uint32(i), Version: s.slots[i].version, ContainerID: s.containerID}, &s.slots[i].value)
	}
}

// Cap returns the number of slots ever allocated (live + free), the upper
// bound for index-addressed side tables keyed by Handle.Index.
func (s *Slab[T]) Cap() int {
	return len(s.slots)
}
