package dataflowgraph

/*
   Copyright 2018 Bruno Moura <brunotm@gmail.com>

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

import "github.com/brunotm/dataflowgraph/types"

// resizeRequest is the negative-size encoding described in spec.md §3: a
// caller-declared element count that has not yet been realized as backing
// memory. Represented as its own type rather than overloading int sign, so
// the zero value (size 0, live, empty) can never be confused with "no
// request pending".
type resizeRequest struct {
	pending  bool
	elements int
}

// dataBuffer is the render-side backing memory for one Buffer<T> location
// within an output port's value, per spec.md §3.
type dataBuffer struct {
	data    []byte
	owner   NodeHandle
	elemSize int
	resize  resizeRequest
}

func (b *dataBuffer) len() int {
	if b.elemSize == 0 {
		return 0
	}
	return len(b.data) / b.elemSize
}

// requestResize queues a resize for the next ResizeDataPortBuffers job
// (spec.md §4.4 "Buffer-size requests").
func (b *dataBuffer) requestResize(elements int) {
	b.resize = resizeRequest{pending: true, elements: elements}
}

// applyResize frees the old buffer (returning it to the arena) and
// allocates the new one, per spec.md §4.6 invariant "resizing frees old
// buffer before allocating new."
func (b *dataBuffer) applyResize(a buffAllocator) error {
	if !b.resize.pending {
		return nil
	}
	if b.data != nil {
		a.Free(b.data)
	}
	n := b.resize.elements * b.elemSize
	buf, err := a.Alloc(n)
	if err != nil {
		return err
	}
	b.data = buf
	b.resize = resizeRequest{}
	return nil
}

// buffAllocator is the subset of internal/arena.Arena the buffer model
// depends on, kept as an interface so tests can substitute a plain
// allocator without pulling in mmap.
type buffAllocator interface {
	Alloc(n int) ([]byte, error)
	Free(buf []byte)
}

// inputPatch is the kernel-side double-pointer slot described in spec.md
// §4.6: after topology refresh, it is patched to point at the current
// source, a default block, or batch-supplied memory, tagged with an
// ownership marker so cleanup knows whether to free it.
type inputPatch struct {
	memory    []byte
	ownership types.Ownership
}

func (p *inputPatch) patchToPort(src []byte) {
	p.memory = src
	p.ownership = types.OwnedByPort
}

func (p *inputPatch) patchToDefault(def []byte) {
	p.memory = def
	p.ownership = types.None
}

func (p *inputPatch) patchToBatch(mem []byte) {
	p.memory = mem
	p.ownership = types.OwnedByBatch
}
