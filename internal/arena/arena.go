// Package arena implements the render world's buffer backing store: a
// page-backed, size-classed allocator whose memory persists across ticks
// (spec.md §6, "The render's memory allocator is persistent across ticks;
// all per-tick scratch allocations are temporary").
//
// Output data buffers (§4.6) are carved from here on creation and resize,
// and returned to a size-class free list on destroy/resize-free rather
// than handed back to the OS, since the same node kinds tend to request
// the same handful of sizes tick after tick.
package arena

import (
	"fmt"
	"sync"

	"github.com/edsrzf/mmap-go"
)

const minClass = 64

// Arena is a size-classed pool of anonymous memory-mapped regions.
// Safe for concurrent use.
type Arena struct {
	mu      sync.Mutex
	regions []mmap.MMap
	free    map[int][][]byte
	closed  bool
}

// New creates an empty Arena.
func New() *Arena {
	return &Arena{free: make(map[int][][]byte)}
}

// Alloc returns a zeroed buffer of length n, backed by page-aligned
// memory reused from the arena's free list when a same-class region is
// available.
func (a *Arena) Alloc(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("arena: negative size %d", n)
	}

	cls := sizeClass(n)

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil, fmt.Errorf("arena: closed")
	}

	if bucket := a.free[cls]; len(bucket) > 0 {
		buf := bucket[len(bucket)-1]
		a.free[cls] = bucket[:len(bucket)-1]
		a.mu.Unlock()

		clear(buf)
		return buf[:n:cls], nil
	}
	a.mu.Unlock()

	region, err := mmap.MapRegion(nil, cls, mmap.RDWR, mmap.ANON, 0)
	if err != nil {
		return nil, fmt.Errorf("arena: mmap region of %d bytes: %w", cls, err)
	}

	a.mu.Lock()
	a.regions = append(a.regions, region)
	a.mu.Unlock()

	buf := []byte(region)
	return buf[:n:cls], nil
}

// Free returns buf's backing region to the free list for its size class.
// buf must have been returned by Alloc on this Arena; passing any other
// slice is a no-op.
func (a *Arena) Free(buf []byte) {
	if buf == nil {
		return
	}

	cls := cap(buf)
	if !isPowerOfTwo(cls) || cls < minClass {
		return
	}

	full := buf[:cls:cls]

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.free[cls] = append(a.free[cls], full)
}

// Close unmaps every region ever allocated by this Arena. The Arena must
// not be used afterwards.
func (a *Arena) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.closed = true
	var firstErr error
	for _, r := range a.regions {
		if err := r.Unmap(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.regions = nil
	a.free = nil
	return firstErr
}

func sizeClass(n int) int {
	c := minClass
	for c < n {
		c <<= 1
	}
	return c
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}
