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

// Kind is the opaque vtable a node-authoring collaborator supplies for one
// node kind. Every instance of a kind shares one Kind value; the engine
// never reflects over it (spec.md §1, §9 "Dynamic dispatch").
//
// Only Init/Destroy/Ports are required. MessageHandler, Updater and Kernel
// are optional and are detected with a type assertion once, when the kind
// is registered (see kindEntry), the way the teacher detects
// Initializer/Closer/Starter on its Processor values.
type Kind interface {
	// Init constructs node-private data and may declare forwarded ports
	// and request buffer sizes through ctx. Returning an error rolls the
	// creation back atomically.
	Init(ctx *InitContext) error

	// Destroy releases node-private data. Destroy errors are logged but
	// never block completion of the destroy operation.
	Destroy(ctx *DestroyContext) error

	// Ports describes this kind's input and output ports.
	Ports() PortSet
}

// MessageHandler is implemented by kinds with at least one Message-usage
// input port.
type MessageHandler interface {
	HandleMessage(ctx *MessageContext, port InputPortArrayID, msg interface{}) error
}

// Updater is implemented by kinds that need a simulation-side per-tick hook
// distinct from kernel execution (e.g. polling an external producer).
type Updater interface {
	Update(ctx *UpdateContext) error
}

// Kernel is implemented by kinds that execute on the render side. A kind
// with no Kernel still participates in the topology (e.g. pure message
// sinks) but never receives a render-side job.
type Kernel interface {
	Execute(ctx *KernelContext)
}

// Managed kinds report an is-managed flag (spec.md §6, "is_managed flag"),
// recorded on the kind's registry entry at RegisterKind. The engine
// allocates no node-private data for any kind, so the flag does not select
// an allocation strategy.
type Managed interface {
	IsManaged() bool
}

// kindEntry is the engine-internal vtable table row: the Kind plus its
// cached optional-interface assertions, resolved once at RegisterKind time
// instead of on every create/message/execute.
type kindEntry struct {
	kind       Kind
	messenger  MessageHandler
	updater    Updater
	kernel     Kernel
	isManaged  bool
	portSet    PortSet
}

func newKindEntry(kind Kind) kindEntry {
	e := kindEntry{kind: kind, portSet: kind.Ports()}
	e.messenger, _ = kind.(MessageHandler)
	e.updater, _ = kind.(Updater)
	e.kernel, _ = kind.(Kernel)
	if m, ok := kind.(Managed); ok {
		e.isManaged = m.IsManaged()
	}
	return e
}
