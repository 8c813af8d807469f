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
	"reflect"

	"github.com/brunotm/dataflowgraph/types"
)

// BufferLocation locates one Buffer<T> within an output port's value type,
// by byte offset and element type (spec.md §4.6).
type BufferLocation struct {
	ByteOffset  uintptr
	ElementType reflect.Type
}

// InputPortDescription describes one input port of a node kind, as the
// external node-authoring facade would derive it by reflection (out of
// scope here — the core only consumes the result).
type InputPortDescription struct {
	Port        PortID
	Usage       types.PortUsage
	ValueType   reflect.Type
	IsArray     bool
	HasBuffers  bool
}

// OutputPortDescription describes one output data port, including the
// buffers nested within its value type.
type OutputPortDescription struct {
	Port      PortID
	Usage     types.PortUsage
	ValueType reflect.Type
	Buffers   []BufferLocation
}

// PortSet is the full port description for a node kind.
type PortSet struct {
	Inputs  []InputPortDescription
	Outputs []OutputPortDescription
}

// Input returns the description for the given input port, or false.
func (p PortSet) Input(port PortID) (InputPortDescription, bool) {
	for i := range p.Inputs {
		if p.Inputs[i].Port == port {
			return p.Inputs[i], true
		}
	}
	return InputPortDescription{}, false
}

// Output returns the description for the given output port, or false.
func (p PortSet) Output(port PortID) (OutputPortDescription, bool) {
	for i := range p.Outputs {
		if p.Outputs[i].Port == port {
			return p.Outputs[i], true
		}
	}
	return OutputPortDescription{}, false
}

// forwardEntry is a forwarded-port record (spec.md §3, §4.6). It is stored
// as a linked list per node via next, mirroring the teacher's node/
// successor linked traversal shape but for a single node's own forwardings.
type forwardEntry struct {
	originPort  PortID
	isInput     bool
	targetNode  NodeHandle
	targetPort  PortID
	next        *forwardEntry
}

// forwardingList holds a node's declared forwardings, kept per direction
// (input/output) in strictly increasing origin-port order (spec.md §4.6
// "Ordering contract").
type forwardingList struct {
	head *forwardEntry
}

func (l *forwardingList) declare(originPort PortID, isInput bool, targetNode NodeHandle, targetPort PortID) error {
	// Reject duplicates and out-of-order declarations (contract: strictly
	// increasing port index per direction).
	for cur := l.head; cur != nil; cur = cur.next {
		if cur.isInput != isInput {
			continue
		}
		if cur.originPort == originPort {
			return newErr(types.CategoryMismatch, "port %d forwarded twice", originPort)
		}
		if cur.originPort > originPort {
			return newErr(types.CategoryMismatch, "forwarded ports must be declared in increasing port order")
		}
	}

	entry := &forwardEntry{
		originPort: originPort,
		isInput:    isInput,
		targetNode: targetNode,
		targetPort: targetPort,
	}

	if l.head == nil || !lessForward(entry, l.head) {
		// append at tail, preserving order
		if l.head == nil {
			l.head = entry
			return nil
		}
		cur := l.head
		for cur.next != nil {
			cur = cur.next
		}
		cur.next = entry
		return nil
	}

	entry.next = l.head
	l.head = entry
	return nil
}

func lessForward(a, b *forwardEntry) bool {
	if a.isInput != b.isInput {
		return false
	}
	return a.originPort < b.originPort
}

// resolve finds the forwarding declared for (originPort, isInput) in this
// list only. Chained forwards are flattened when they are declared (see
// flatten), so the entry found already names the terminal node/port
// (spec.md §4.6, the "flattening law" in §8).
func (l *forwardingList) resolve(originPort PortID, isInput bool) (*forwardEntry, bool) {
	for cur := l.head; cur != nil; cur = cur.next {
		if cur.isInput == isInput && cur.originPort == originPort {
			return cur, true
		}
	}
	return nil, false
}

// flatten rewrites entry to point at its target's terminal node/port, if
// the target itself forwards the same port. Because node creation order is
// monotonic (a node can only forward to an already-created node), walking
// the target's list once is sufficient (spec.md §4.6).
func flatten(entry *forwardEntry, targetList *forwardingList) {
	if targetList == nil {
		return
	}
	if next, ok := targetList.resolve(entry.targetPort, entry.isInput); ok {
		entry.targetNode = next.targetNode
		entry.targetPort = next.targetPort
	}
}
