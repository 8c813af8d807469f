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

import "unsafe"

// InitContext is handed to Kind.Init. It exposes the only operations legal
// during node construction: declaring forwarded ports and requesting
// buffer sizes (spec.md §4.4).
type InitContext struct {
	ns   *NodeSet
	node NodeHandle
}

// Node returns the handle of the node currently being initialized.
func (c *InitContext) Node() NodeHandle { return c.node }

// ForwardInput declares that external connections to originPort on this
// node should transparently redirect to targetPort on targetNode.
func (c *InitContext) ForwardInput(originPort PortID, targetNode NodeHandle, targetPort PortID) error {
	return c.ns.declareForward(c.node, originPort, true, targetNode, targetPort)
}

// ForwardOutput is the output-port dual of ForwardInput.
func (c *InitContext) ForwardOutput(originPort PortID, targetNode NodeHandle, targetPort PortID) error {
	return c.ns.declareForward(c.node, originPort, false, targetNode, targetPort)
}

// RequestBufferSize queues an initial size for a Buffer<T> embedded in the
// given output port's value, at the given byte offset. ns.mu is already
// held by the CreateNode call running Init, so this records the request
// directly rather than going through the self-locking path.
func (c *InitContext) RequestBufferSize(outputPort PortID, byteOffset uintptr, elements int) error {
	if !c.ns.nodeAlive(c.node) {
		return errInvalidHandle
	}
	c.ns.diff.recordBufferResize(c.node, outputPort, byteOffset, elements)
	return nil
}

// DestroyContext is handed to Kind.Destroy.
type DestroyContext struct {
	ns   *NodeSet
	node NodeHandle
}

// Node returns the handle of the node being destroyed.
func (c *DestroyContext) Node() NodeHandle { return c.node }

// MessageContext is handed to MessageHandler.HandleMessage. Messages
// emitted from within HandleMessage are delivered synchronously in
// depth-first order (spec.md §5).
type MessageContext struct {
	ns   *NodeSet
	node NodeHandle
}

// Node returns the handle of the node handling the message.
func (c *MessageContext) Node() NodeHandle { return c.node }

// SendMessage forwards another message from within a message handler,
// delivered synchronously and depth-first (spec.md §5 "Messages emitted
// from handle_message are delivered synchronously in depth-first order").
// ns.mu is already held by the outer SendMessage call that reached this
// handler, so this calls the locked path directly rather than relocking.
func (c *MessageContext) SendMessage(to NodeHandle, port InputPortArrayID, msg interface{}) error {
	return c.ns.deliverMessageLocked(to, port, msg)
}

// UpdateContext is handed to Updater.Update, the optional per-tick
// simulation-side hook.
type UpdateContext struct {
	ns   *NodeSet
	node NodeHandle
}

// Node returns the handle of the node being updated.
func (c *UpdateContext) Node() NodeHandle { return c.node }

// SetData is the simulation-side set_data operation, scoped to this node.
// ns.mu is already held by the Update call running this hook, so this
// records the command directly rather than calling the self-locking SetData.
func (c *UpdateContext) SetData(port PortID, value interface{}) error {
	if !c.ns.nodeAlive(c.node) {
		return errInvalidHandle
	}
	c.ns.diff.recordSetData(c.node, port, value, false)
	return nil
}

// KernelContext is handed to Kernel.Execute on the render side. It exposes
// read-only resolvers for inputs and writable resolvers for outputs; it
// has no simulation access (spec.md §5).
type KernelContext struct {
	node *kernelNode
}

// Input reads a non-array, non-buffer input port as T.
func Input[T any](ctx *KernelContext, port PortID) T {
	return InputAt[T](ctx, port, InvalidArrayIndex)
}

// InputAt reads one element of an input port array as T. Use
// InvalidArrayIndex for a non-array port.
func InputAt[T any](ctx *KernelContext, port PortID, index uint16) T {
	p := ctx.node.inputPatch(InputPortArrayID{Port: port, Index: index})
	if p == nil || len(p.memory) == 0 {
		var zero T
		return zero
	}
	return *(*T)(unsafe.Pointer(&p.memory[0]))
}

// InputBuffer views an input Buffer<T> port as a read-only native slice.
func InputBuffer[T any](ctx *KernelContext, port PortID) []T {
	p := ctx.node.inputPatch(InputPortArrayID{Port: port, Index: InvalidArrayIndex})
	if p == nil || len(p.memory) == 0 {
		return nil
	}
	var zero T
	elemSize := int(unsafe.Sizeof(zero))
	if elemSize == 0 {
		return nil
	}
	n := len(p.memory) / elemSize
	return unsafe.Slice((*T)(unsafe.Pointer(&p.memory[0])), n)
}

// Output returns a writable pointer to a non-buffer output port's scalar
// value.
func Output[T any](ctx *KernelContext, port PortID) *T {
	op := ctx.node.outputPort(port)
	if op == nil {
		return nil
	}
	if len(op.scalar) == 0 {
		var zero T
		op.scalar = make([]byte, unsafe.Sizeof(zero))
	}
	return (*T)(unsafe.Pointer(&op.scalar[0]))
}

// OutputBuffer views the first Buffer<T> declared on port as a writable
// native slice, sized to whatever the last applied resize produced.
func OutputBuffer[T any](ctx *KernelContext, port PortID) []T {
	op := ctx.node.outputPort(port)
	if op == nil || len(op.buffers) == 0 {
		return nil
	}
	buf := op.buffers[0]
	if len(buf.data) == 0 {
		return nil
	}
	var zero T
	elemSize := int(unsafe.Sizeof(zero))
	if elemSize == 0 {
		return nil
	}
	n := len(buf.data) / elemSize
	return unsafe.Slice((*T)(unsafe.Pointer(&buf.data[0])), n)
}
