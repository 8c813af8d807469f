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

import "github.com/brunotm/dataflowgraph/internal/slab"

// batchRecord is one external producer's write-in record (spec.md §4.9):
// raw memory tagged OwnedByBatch that patches over the connection database
// for exactly the render it targets, then disposes itself. producerFence is
// the caller's own input-dependency fence: the render must wait for it
// before touching data, since the producer may still be writing into it
// when SubmitInputBatch returns. fence is the batch's own completion token,
// handed back through GetBatchDependencies.
type batchRecord struct {
	handle        BatchHandle
	node          NodeHandle
	port          InputPortArrayID
	data          []byte
	renderTick    uint64
	producerFence *Fence
	fence         *Fence
	alive         bool
}

// SubmitInputBatch queues data to be patched onto node's input port for the
// next render only, after first waiting for producerFence so the render
// never reads memory the caller is still writing (spec.md §4.9, §6
// "submit_input_batch(fence, batch) -> BatchHandle"). producerFence may be
// nil if data is already fully written by the time of the call. The batch
// always targets the render of the next Update call: there is no tick
// parameter, and a submission is rejected only when node is not live.
func (ns *NodeSet) SubmitInputBatch(producerFence *Fence, node NodeHandle, port InputPortArrayID, data []byte) (BatchHandle, error) {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	if !ns.nodeAlive(node) {
		return BatchHandle{}, errInvalidHandle
	}

	h, rec := ns.batches.Allocate()
	handle := BatchHandle{h: h}
	*rec = batchRecord{
		handle:        handle,
		node:          node,
		port:          port,
		data:          data,
		renderTick:    ns.tick + 1,
		producerFence: producerFence,
		fence:         newFence(),
		alive:         true,
	}
	return handle, nil
}

// GetBatchDependencies returns the Fence that completes once the render
// targeted by h has consumed it and the batch has auto-disposed.
func (ns *NodeSet) GetBatchDependencies(h BatchHandle) (*Fence, error) {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	rec := ns.batches.Get(h.h)
	if rec == nil || !rec.alive {
		return nil, errInvalidHandle
	}
	return rec.fence, nil
}

// disposeRenderedBatches releases every batch consumed by the render that
// just completed for tick. Callers hold ns.mu.
func (ns *NodeSet) disposeRenderedBatches(tick uint64) {
	var spent []BatchHandle
	ns.batches.Each(func(_ slab.Handle, b *batchRecord) {
		if b.alive && b.renderTick == tick {
			spent = append(spent, b.handle)
		}
	})
	for _, h := range spent {
		if rec := ns.batches.Get(h.h); rec != nil {
			rec.alive = false
			rec.fence.Complete(nil)
		}
		ns.batches.Release(h.h)
	}
}
