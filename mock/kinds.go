package mock

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
	"sync"

	dataflowgraph "github.com/brunotm/dataflowgraph"
	"github.com/brunotm/dataflowgraph/types"
)

var float64Type = reflect.TypeOf(float64(0))

// ConstantSource is a leaf kind with no inputs, useful for feeding a fixed
// value into the rest of a graph. Each distinct constant gets its own
// registered kind instance, closed over the value, rather than threading
// per-node state through the kernel.
type ConstantSource struct {
	Value float64
}

func (k *ConstantSource) Init(ctx *dataflowgraph.InitContext) error    { return nil }
func (k *ConstantSource) Destroy(ctx *dataflowgraph.DestroyContext) error { return nil }

func (k *ConstantSource) Ports() dataflowgraph.PortSet {
	return dataflowgraph.PortSet{
		Outputs: []dataflowgraph.OutputPortDescription{
			{Port: 0, Usage: types.Data, ValueType: float64Type},
		},
	}
}

func (k *ConstantSource) Execute(ctx *dataflowgraph.KernelContext) {
	*dataflowgraph.Output[float64](ctx, 0) = k.Value
}

// Adder sums two float64 input ports into one float64 output port.
type Adder struct{}

func (k *Adder) Init(ctx *dataflowgraph.InitContext) error       { return nil }
func (k *Adder) Destroy(ctx *dataflowgraph.DestroyContext) error { return nil }

func (k *Adder) Ports() dataflowgraph.PortSet {
	return dataflowgraph.PortSet{
		Inputs: []dataflowgraph.InputPortDescription{
			{Port: 0, Usage: types.Data, ValueType: float64Type},
			{Port: 1, Usage: types.Data, ValueType: float64Type},
		},
		Outputs: []dataflowgraph.OutputPortDescription{
			{Port: 0, Usage: types.Data, ValueType: float64Type},
		},
	}
}

func (k *Adder) Execute(ctx *dataflowgraph.KernelContext) {
	a := dataflowgraph.Input[float64](ctx, 0)
	b := dataflowgraph.Input[float64](ctx, 1)
	*dataflowgraph.Output[float64](ctx, 0) = a + b
}

// BufferProducer fills a Buffer<float64> output with a deterministic ramp,
// exercising RequestBufferSize during Init and OutputBuffer during Execute.
type BufferProducer struct {
	Elements int
}

func (k *BufferProducer) Init(ctx *dataflowgraph.InitContext) error {
	return ctx.RequestBufferSize(0, 0, k.Elements)
}

func (k *BufferProducer) Destroy(ctx *dataflowgraph.DestroyContext) error { return nil }

func (k *BufferProducer) Ports() dataflowgraph.PortSet {
	return dataflowgraph.PortSet{
		Outputs: []dataflowgraph.OutputPortDescription{
			{
				Port:      0,
				Usage:     types.Data,
				ValueType: reflect.TypeOf([]float64(nil)),
				Buffers:   []dataflowgraph.BufferLocation{{ByteOffset: 0, ElementType: float64Type}},
			},
		},
	}
}

func (k *BufferProducer) Execute(ctx *dataflowgraph.KernelContext) {
	buf := dataflowgraph.OutputBuffer[float64](ctx, 0)
	for i := range buf {
		buf[i] = float64(i)
	}
}

// BufferConsumer reads a Buffer<float64> input and writes its sum to a
// scalar output, exercising InputBuffer.
type BufferConsumer struct{}

func (k *BufferConsumer) Init(ctx *dataflowgraph.InitContext) error       { return nil }
func (k *BufferConsumer) Destroy(ctx *dataflowgraph.DestroyContext) error { return nil }

func (k *BufferConsumer) Ports() dataflowgraph.PortSet {
	return dataflowgraph.PortSet{
		Inputs: []dataflowgraph.InputPortDescription{
			{Port: 0, Usage: types.Data, ValueType: reflect.TypeOf([]float64(nil)), HasBuffers: true},
		},
		Outputs: []dataflowgraph.OutputPortDescription{
			{Port: 0, Usage: types.Data, ValueType: float64Type},
		},
	}
}

func (k *BufferConsumer) Execute(ctx *dataflowgraph.KernelContext) {
	buf := dataflowgraph.InputBuffer[float64](ctx, 0)
	var sum float64
	for _, v := range buf {
		sum += v
	}
	*dataflowgraph.Output[float64](ctx, 0) = sum
}

// MessageCounter is a pure message sink: it has no kernel and no data
// ports, only a Message-usage input port it tallies per node. Counts are
// keyed by node handle on the kind itself since a kind instance is shared
// across every node created from it.
type MessageCounter struct {
	mu     sync.Mutex
	counts map[dataflowgraph.NodeHandle]int
}

func NewMessageCounter() *MessageCounter {
	return &MessageCounter{counts: make(map[dataflowgraph.NodeHandle]int)}
}

func (k *MessageCounter) Init(ctx *dataflowgraph.InitContext) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.counts[ctx.Node()] = 0
	return nil
}

func (k *MessageCounter) Destroy(ctx *dataflowgraph.DestroyContext) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.counts, ctx.Node())
	return nil
}

func (k *MessageCounter) Ports() dataflowgraph.PortSet {
	return dataflowgraph.PortSet{
		Inputs: []dataflowgraph.InputPortDescription{
			{Port: 0, Usage: types.Message},
		},
	}
}

func (k *MessageCounter) HandleMessage(ctx *dataflowgraph.MessageContext, port dataflowgraph.InputPortArrayID, msg interface{}) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.counts[ctx.Node()]++
	return nil
}

// Count returns how many messages node has received so far.
func (k *MessageCounter) Count(node dataflowgraph.NodeHandle) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.counts[node]
}

// PolledSource is an Updater-driven kind: every simulation tick it pulls
// the next value off a channel (standing in for an external producer) and
// pushes it onto its own unconnected input port with SetData, then its
// kernel echoes that input to an output port for the rest of the graph to
// consume.
type PolledSource struct {
	Values chan float64
}

func (k *PolledSource) Init(ctx *dataflowgraph.InitContext) error       { return nil }
func (k *PolledSource) Destroy(ctx *dataflowgraph.DestroyContext) error { return nil }

func (k *PolledSource) Ports() dataflowgraph.PortSet {
	return dataflowgraph.PortSet{
		Inputs: []dataflowgraph.InputPortDescription{
			{Port: 0, Usage: types.Data, ValueType: float64Type},
		},
		Outputs: []dataflowgraph.OutputPortDescription{
			{Port: 0, Usage: types.Data, ValueType: float64Type},
		},
	}
}

func (k *PolledSource) Update(ctx *dataflowgraph.UpdateContext) error {
	select {
	case v := <-k.Values:
		return ctx.SetData(0, v)
	default:
		return nil
	}
}

func (k *PolledSource) Execute(ctx *dataflowgraph.KernelContext) {
	*dataflowgraph.Output[float64](ctx, 0) = dataflowgraph.Input[float64](ctx, 0)
}
