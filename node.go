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
	"github.com/brunotm/dataflowgraph/types"
)

// portArraySize records the current element count of one input port array,
// resized with SetPortArraySize (spec.md §6).
type portArraySize struct {
	port PortID
	size uint16
}

// nodeRecord is the simulation-side Node of spec.md §3/§4.4: a handle, the
// kind it was created from, a node-private data slot (opaque to the engine,
// which never fills it; kinds keep their own per-node state), its
// forwarded-port declarations and its port-array sizes.
type nodeRecord struct {
	handle   NodeHandle
	kindIdx  int
	data     interface{}
	forwards forwardingList
	arrays   []portArraySize
	alive    bool
}

func (n *nodeRecord) arraySize(port PortID) uint16 {
	for i := range n.arrays {
		if n.arrays[i].port == port {
			return n.arrays[i].size
		}
	}
	return 0
}

func (n *nodeRecord) setArraySize(port PortID, size uint16) {
	for i := range n.arrays {
		if n.arrays[i].port == port {
			n.arrays[i].size = size
			return
		}
	}
	n.arrays = append(n.arrays, portArraySize{port: port, size: size})
}

// CreateNode instantiates a node of the given registered kind. If
// Kind.Init returns an error the creation is rolled back atomically: no
// handle is returned and no connection, forwarding or buffer-size state is
// left behind (spec.md §4.4 "Init failure").
func (ns *NodeSet) CreateNode(kindIdx int) (NodeHandle, error) {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	if kindIdx < 0 || kindIdx >= len(ns.kinds) {
		return NodeHandle{}, newErr(types.NotFound, "kind %d not registered", kindIdx)
	}

	h, rec := ns.nodes.Allocate()
	handle := NodeHandle{h: h}
	rec.handle = handle
	rec.kindIdx = kindIdx
	rec.alive = true

	ctx := &InitContext{ns: ns, node: handle}
	if err := ns.kinds[kindIdx].kind.Init(ctx); err != nil {
		// Roll back: release the slot and drop anything Init may have
		// queued for this node before it failed.
		ns.rollbackNodeLocked(handle)
		return NodeHandle{}, wrapErr(types.NotFound, err, "init node of kind %d", kindIdx)
	}

	ns.diff.recordCreate(handle, kindIdx)
	ns.topology.addVertex(handle)
	ns.log.Debugw("node created", "node", handle.String(), "kind", kindIdx)
	return handle, nil
}

// rollbackNodeLocked discards a node and any diff/topology state recorded
// for it so far. Callers hold ns.mu.
func (ns *NodeSet) rollbackNodeLocked(h NodeHandle) {
	ns.nodes.Release(h.h)
	ns.diff.discardNode(h)
	ns.topology.removeVertex(h)
}

// DestroyNode releases a node and every connection attached to it. Destroy
// errors from the kind are logged but never block completion (spec.md
// §4.4 "Destroy never fails the operation").
func (ns *NodeSet) DestroyNode(h NodeHandle) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	rec := ns.nodes.Get(h.h)
	if rec == nil || !rec.alive {
		return errInvalidHandle
	}

	ns.disconnectAllLocked(h)

	ctx := &DestroyContext{ns: ns, node: h}
	if err := ns.kinds[rec.kindIdx].kind.Destroy(ctx); err != nil {
		ns.log.Errorw("node destroy returned error", "node", h.String(), "error", err)
	}

	rec.alive = false
	ns.diff.recordDestroy(h)
	ns.topology.removeVertex(h)
	ns.nodes.Release(h.h)
	ns.log.Debugw("node destroyed", "node", h.String())
	return nil
}

// nodeAlive reports whether h currently refers to a live node. Callers
// hold ns.mu.
func (ns *NodeSet) nodeAlive(h NodeHandle) bool {
	rec := ns.nodes.Get(h.h)
	return rec != nil && rec.alive
}

// declareForward records a forwarded-port declaration made from InitContext.
// Only legal while the owning node is still being constructed; the engine
// does not expose it after Init returns. Callers hold ns.mu (CreateNode
// holds it while Init runs).
func (ns *NodeSet) declareForward(node NodeHandle, originPort PortID, isInput bool, targetNode NodeHandle, targetPort PortID) error {
	rec := ns.nodes.Get(node.h)
	if rec == nil {
		return errInvalidHandle
	}
	if !ns.nodeAlive(targetNode) {
		return wrapErr(types.InvalidHandle, errInvalidHandle, "forward target %s", targetNode.String())
	}

	if err := rec.forwards.declare(originPort, isInput, targetNode, targetPort); err != nil {
		return err
	}

	if targetRec := ns.nodes.Get(targetNode.h); targetRec != nil {
		if entry, ok := rec.forwards.resolve(originPort, isInput); ok {
			flatten(entry, &targetRec.forwards)
		}
	}
	return nil
}

// setBufferSize queues an output buffer resize request made from
// InitContext or from the public SetBufferSize operation.
func (ns *NodeSet) setBufferSize(node NodeHandle, port PortID, byteOffset uintptr, elements int) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	if !ns.nodeAlive(node) {
		return errInvalidHandle
	}
	ns.diff.recordBufferResize(node, port, byteOffset, elements)
	return nil
}

// SetBufferSize is the public operation for resizing a Buffer<T> on an
// already-created node's output port (spec.md §6).
func (ns *NodeSet) SetBufferSize(node NodeHandle, port PortID, byteOffset uintptr, elements int) error {
	return ns.setBufferSize(node, port, byteOffset, elements)
}

// SetPortArraySize grows or shrinks an input port array. Shrinking
// disconnects and releases any connections feeding the removed indices
// (spec.md §6).
func (ns *NodeSet) SetPortArraySize(node NodeHandle, port PortID, size uint16) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	rec := ns.nodes.Get(node.h)
	if rec == nil || !rec.alive {
		return errInvalidHandle
	}

	old := rec.arraySize(port)
	rec.setArraySize(port, size)
	if size < old {
		ns.disconnectArrayTailLocked(node, port, size, old)
	}
	ns.diff.recordPortArrayResize(node, port, size)
	return nil
}
