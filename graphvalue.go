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

import (
	"context"

	"github.com/brunotm/dataflowgraph/types"
)

// graphValueRecord is a versioned handle to one output port's value,
// readable from outside the graph (spec.md §4.9). rendered is false until
// the tick following creation has completed at least once; reads before
// that point are the "just-created" state.
type graphValueRecord struct {
	handle   GraphValueHandle
	node     NodeHandle
	port     PortID
	rendered bool
	deps     []*Fence
}

// GraphValueResolver is an accessor for one graph value, handed out by
// GetResolver and cached per handle so repeated GetResolver calls return
// the same object; each Resolve still looks the handle up in the graph
// value slab (spec.md §4.9).
type GraphValueResolver struct {
	ns     *NodeSet
	handle GraphValueHandle
}

// Resolve returns the current bytes backing the graph value. It does not
// block; callers that need the result of an in-flight render should wait
// on GetBatchDependencies-style fences first or call GetValueBlocking.
func (r *GraphValueResolver) Resolve() ([]byte, error) {
	return r.ns.readGraphValue(r.handle)
}

// CreateGraphValue exposes one node's output port for external read-back.
// The node must have a live output port of Data usage (spec.md §6).
func (ns *NodeSet) CreateGraphValue(node NodeHandle, port PortID) (GraphValueHandle, error) {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	if !ns.nodeAlive(node) {
		return GraphValueHandle{}, errInvalidHandle
	}
	nodeRec := ns.nodes.Get(node.h)
	desc, ok := ns.kinds[nodeRec.kindIdx].portSet.Output(port)
	if !ok {
		return GraphValueHandle{}, errPortNotFound
	}
	if desc.Usage != types.Data {
		return GraphValueHandle{}, errCategoryMismatch
	}

	h, rec := ns.graphValues.Allocate()
	handle := GraphValueHandle{h: h}
	rec.handle = handle
	rec.node = node
	rec.port = port
	return handle, nil
}

// ReleaseGraphValue disposes of a graph value handle and drops its cached
// resolver, if any.
func (ns *NodeSet) ReleaseGraphValue(h GraphValueHandle) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	if ns.graphValues.Get(h.h) == nil {
		return errInvalidHandle
	}
	ns.graphValues.Release(h.h)
	ns.resolvers.Remove(h)
	return nil
}

// GetResolver returns a cached GraphValueResolver for h, creating and
// caching one on first use (spec.md §4.9, golang-lru-backed cache).
func (ns *NodeSet) GetResolver(h GraphValueHandle) (*GraphValueResolver, error) {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	if ns.graphValues.Get(h.h) == nil {
		return nil, errInvalidHandle
	}
	if r, ok := ns.resolvers.Get(h); ok {
		return r, nil
	}
	r := &GraphValueResolver{ns: ns, handle: h}
	ns.resolvers.Add(h, r)
	return r, nil
}

// GetValueBlocking waits for the in-flight render (if any) to complete,
// then returns the graph value's current bytes. A value read before its
// owning node's first render returns NotFound, matching the "just-created"
// half of the two-state lifecycle (spec.md §4.9).
func (ns *NodeSet) GetValueBlocking(ctx context.Context, h GraphValueHandle) ([]byte, error) {
	ns.mu.Lock()
	fence := ns.currentFence
	ns.mu.Unlock()

	if fence != nil {
		if err := fence.Wait(ctx); err != nil {
			return nil, err
		}
	}
	return ns.readGraphValue(h)
}

// InjectDependencyFromConsumer records consumerDone on the graph value
// (spec.md §4.9). Update does not wait on recorded fences: the next render
// may overwrite the value while the consumer is still reading it.
func (ns *NodeSet) InjectDependencyFromConsumer(h GraphValueHandle, consumerDone *Fence) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	rec := ns.graphValues.Get(h.h)
	if rec == nil {
		return errInvalidHandle
	}
	rec.deps = append(rec.deps, consumerDone)
	return nil
}

func (ns *NodeSet) readGraphValue(h GraphValueHandle) ([]byte, error) {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	rec := ns.graphValues.Get(h.h)
	if rec == nil {
		return nil, errInvalidHandle
	}

	kn := ns.render.nodes[rec.node]
	if kn == nil {
		return nil, errNodeNotFound
	}
	op := kn.outputPort(rec.port)
	if op == nil {
		return nil, errPortNotFound
	}
	if len(op.buffers) > 0 {
		return op.buffers[0].data, nil
	}
	return op.scalar, nil
}
