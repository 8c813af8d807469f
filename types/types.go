package types

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

// PortUsage classifies how an input or output port participates in the graph.
type PortUsage uint8

const (
	// Data ports carry values patched directly into kernel memory each tick.
	Data = PortUsage(0)
	// Message ports receive synchronous, simulation-side messages.
	Message = PortUsage(1)
	// DomainSpecific ports are interpreted only by the external collaborator.
	DomainSpecific = PortUsage(2)
)

func (u PortUsage) String() (name string) {
	switch u {
	case Data:
		return "data"
	case Message:
		return "message"
	case DomainSpecific:
		return "domain_specific"
	}
	return "unknown"
}

// Ownership tags the backing memory of a patched input-port slot.
type Ownership uint8

const (
	// None means the slot points at a default, unconnected value block.
	None = Ownership(0)
	// OwnedByPort means the slot points at the connected source's output buffer.
	OwnedByPort = Ownership(1)
	// OwnedByBatch means the slot points at externally submitted input-batch memory.
	OwnedByBatch = Ownership(2)
)

func (o Ownership) String() (name string) {
	switch o {
	case None:
		return "none"
	case OwnedByPort:
		return "owned_by_port"
	case OwnedByBatch:
		return "owned_by_batch"
	}
	return "unknown"
}

// TraversalFlags classifies which hierarchy (or hierarchies) a connection
// participates in. The topology cache selects a subset of the graph to
// order via its traversal mask, and may also expose a secondary hierarchy
// through its alternate mask without a second sort (spec.md §3, §4.3).
type TraversalFlags uint32

const (
	// TraversalData marks a connection as part of the default data-flow
	// hierarchy the render scheduler orders kernels against.
	TraversalData TraversalFlags = 1 << iota
	// TraversalMessage marks a connection as part of the message-delivery
	// hierarchy (spec.md §4.4, §5).
	TraversalMessage
	// TraversalDSL marks a connection as part of a domain-specific
	// hierarchy interpreted only by the external collaborator.
	TraversalDSL
)

// ExecutionModel selects one of the four render scheduler strategies.
type ExecutionModel uint8

const (
	// MaximallyParallel schedules one job per kernel node.
	MaximallyParallel = ExecutionModel(0)
	// SingleThreaded runs the full ordered traversal as one job.
	SingleThreaded = ExecutionModel(1)
	// Islands schedules one job per connected component.
	Islands = ExecutionModel(2)
	// Synchronous runs inline on the calling thread.
	Synchronous = ExecutionModel(3)
)

func (m ExecutionModel) String() (name string) {
	switch m {
	case MaximallyParallel:
		return "maximally_parallel"
	case SingleThreaded:
		return "single_threaded"
	case Islands:
		return "islands"
	case Synchronous:
		return "synchronous"
	}
	return "unknown"
}

// ErrorKind is the taxonomy of public API errors from spec.md §7.
type ErrorKind uint8

const (
	InvalidHandle = ErrorKind(iota)
	NotFound
	TypeMismatch
	CategoryMismatch
	IndexOutOfRange
	AlreadyConnected
	NotConnected
	CycleDetected
	ZeroSizedECSType
	Leak
)

func (k ErrorKind) String() (name string) {
	switch k {
	case InvalidHandle:
		return "invalid_handle"
	case NotFound:
		return "not_found"
	case TypeMismatch:
		return "type_mismatch"
	case CategoryMismatch:
		return "category_mismatch"
	case IndexOutOfRange:
		return "index_out_of_range"
	case AlreadyConnected:
		return "already_connected"
	case NotConnected:
		return "not_connected"
	case CycleDetected:
		return "cycle_detected"
	case ZeroSizedECSType:
		return "zero_sized_ecs_type"
	case Leak:
		return "leak"
	}
	return "unknown"
}
