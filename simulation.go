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
	"reflect"
	"unsafe"

	"github.com/brunotm/dataflowgraph/internal/slab"
	"github.com/brunotm/dataflowgraph/types"
)

// SetData queues a new value for a non-array input data port, replacing
// whatever the port currently holds once the next render runs (spec.md
// §6).
func (ns *NodeSet) SetData(node NodeHandle, port PortID, value interface{}) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	if !ns.nodeAlive(node) {
		return errInvalidHandle
	}
	ns.diff.recordSetData(node, port, value, false)
	return nil
}

// RetainData behaves like SetData but marks the value to survive past the
// render that consumes it, for ports a kind wants to keep reading every
// tick without the caller resubmitting it (spec.md §6).
func (ns *NodeSet) RetainData(node NodeHandle, port PortID, value interface{}) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	if !ns.nodeAlive(node) {
		return errInvalidHandle
	}
	ns.diff.recordSetData(node, port, value, true)
	return nil
}

// SendMessage delivers a message to a Message-usage input port (or port
// array element) synchronously: handle_message runs before SendMessage
// returns (spec.md §5, §6). Forwardings on the destination port are
// resolved first, then the destination port's usage and the message's
// value type are checked, then the array index (if any) is bounds-checked
// against the port's current recorded size (spec.md §4.4 "Messaging").
func (ns *NodeSet) SendMessage(node NodeHandle, port InputPortArrayID, msg interface{}) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	return ns.deliverMessageLocked(node, port, msg)
}

// deliverMessageLocked resolves forwardings and validates a message
// destination before invoking the kind's MessageHandler. Callers hold
// ns.mu.
func (ns *NodeSet) deliverMessageLocked(node NodeHandle, port InputPortArrayID, msg interface{}) error {
	target, targetPort, rec, err := ns.resolveMessageTargetLocked(node, port)
	if err != nil {
		return err
	}

	entry := ns.kinds[rec.kindIdx]
	desc, ok := entry.portSet.Input(targetPort.Port)
	if !ok {
		return newErr(types.NotFound, "input port %d not found on node %s", targetPort.Port, target.String())
	}
	if desc.Usage != types.Message {
		return newErr(types.CategoryMismatch, "send_message to non-Message port %d on node %s", targetPort.Port, target.String())
	}
	if desc.ValueType != nil && msg != nil {
		if mt := reflect.TypeOf(msg); mt != desc.ValueType {
			return newErr(types.TypeMismatch, "message type %s does not match port %d type %s", mt, targetPort.Port, desc.ValueType)
		}
	}
	if targetPort.Index != InvalidArrayIndex && targetPort.Index >= rec.arraySize(targetPort.Port) {
		return newErr(types.IndexOutOfRange, "port array index %d past current size for node %s port %d", targetPort.Index, target.String(), targetPort.Port)
	}

	if entry.messenger == nil {
		return nil
	}
	ctx := &MessageContext{ns: ns, node: target}
	return entry.messenger.HandleMessage(ctx, targetPort, msg)
}

// resolveMessageTargetLocked walks input-port forwardings starting at
// (node, port) until it lands on a node that does not forward that port,
// returning the terminal destination and its live node record (spec.md
// §4.6 "forwarding is resolved transparently on any external operation").
func (ns *NodeSet) resolveMessageTargetLocked(node NodeHandle, port InputPortArrayID) (NodeHandle, InputPortArrayID, *nodeRecord, error) {
	for {
		rec := ns.nodes.Get(node.h)
		if rec == nil || !rec.alive {
			return NodeHandle{}, InputPortArrayID{}, nil, errInvalidHandle
		}
		entry, ok := rec.forwards.resolve(port.Port, true)
		if !ok {
			return node, port, rec, nil
		}
		node = entry.targetNode
		port = InputPortArrayID{Port: entry.targetPort, Index: port.Index}
	}
}

// Update advances the simulation by one tick: runs every kind's optional
// Updater hook, replays the accumulated graph diff onto the render world,
// and executes every live kernel under the configured execution model
// (spec.md §5). The kernels run before Update returns, so the Fence it
// returns has already completed and carries the render's error.
func (ns *NodeSet) Update(ctx context.Context) (*Fence, error) {
	ns.mu.Lock()
	ns.tick++
	tick := ns.tick
	fence := newFence()
	ns.currentFence = fence

	ns.runUpdatersLocked(ctx)

	if err := ns.copyWorlds(ctx); err != nil {
		ns.currentFence = nil
		ns.mu.Unlock()
		fence.Complete(err)
		return fence, err
	}
	ns.diff.reset()
	ns.mu.Unlock()

	err := ns.executeKernels(ctx)

	ns.mu.Lock()
	ns.disposeRenderedBatches(tick)
	if err == nil {
		ns.graphValues.Each(func(_ slab.Handle, gv *graphValueRecord) {
			gv.rendered = true
		})
	}
	ns.currentFence = nil
	ns.mu.Unlock()

	fence.Complete(err)
	return fence, err
}

// runUpdatersLocked calls Update on every live node whose kind implements
// Updater. Callers hold ns.mu.
func (ns *NodeSet) runUpdatersLocked(ctx context.Context) {
	ns.nodes.Each(func(_ slab.Handle, rec *nodeRecord) {
		if !rec.alive {
			return
		}
		entry := ns.kinds[rec.kindIdx]
		if entry.updater == nil {
			return
		}
		uctx := &UpdateContext{ns: ns, node: rec.handle}
		if err := entry.updater.Update(uctx); err != nil {
			ns.log.Errorw("updater returned error", "node", rec.handle.String(), "error", err)
		}
	})
}

// toBytes gives an arbitrary POD value passed to SetData/RetainData a
// stable byte representation, for the shapes encodeScalar does not
// special-case directly.
func toBytes(v interface{}) []byte {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return nil
	}
	t := rv.Type()
	size := int(t.Size())
	if size == 0 {
		return nil
	}

	holder := reflect.New(t)
	holder.Elem().Set(rv)
	src := unsafe.Slice((*byte)(holder.UnsafePointer()), size)

	buf := make([]byte, size)
	copy(buf, src)
	return buf
}
