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
	"encoding/binary"
	"math"

	roaring "github.com/RoaringBitmap/roaring/v2"

	"github.com/brunotm/dataflowgraph/internal/arena"
	"github.com/brunotm/dataflowgraph/internal/slab"
	"github.com/brunotm/dataflowgraph/types"
)

// outputPort is the render-side backing storage for one output port's
// value: a scalar region for its non-buffer fields plus the Buffer<T>
// regions nested within it (spec.md §4.6).
type outputPort struct {
	port    PortID
	scalar  []byte
	buffers []*dataBuffer
}

// kernelNode is the render-side counterpart of a simulation node: the
// kind's optional Kernel, its kernel-private data, and the patched input
// slots / output storage its Execute call reads and writes (spec.md §4.7).
type kernelNode struct {
	handle     NodeHandle
	kindIdx    int
	entry      kindEntry
	kernelData interface{}

	inputs  map[InputPortArrayID]*inputPatch
	outputs map[PortID]*outputPort

	lastRun *Fence
}

func newKernelNode(handle NodeHandle, kindIdx int, entry kindEntry) *kernelNode {
	n := &kernelNode{
		handle:  handle,
		kindIdx: kindIdx,
		entry:   entry,
		inputs:  make(map[InputPortArrayID]*inputPatch),
		outputs: make(map[PortID]*outputPort),
	}
	for _, out := range entry.portSet.Outputs {
		op := &outputPort{port: out.Port}
		// Scalar storage exists before the first render so that input
		// patches taken in that tick already point at it.
		if len(out.Buffers) == 0 && out.ValueType != nil && out.ValueType.Size() > 0 {
			op.scalar = make([]byte, out.ValueType.Size())
		}
		for _, loc := range out.Buffers {
			op.buffers = append(op.buffers, &dataBuffer{owner: handle, elemSize: int(loc.ElementType.Size())})
		}
		n.outputs[out.Port] = op
	}
	return n
}

func (n *kernelNode) inputPatch(id InputPortArrayID) *inputPatch {
	p, ok := n.inputs[id]
	if !ok {
		p = &inputPatch{}
		n.inputs[id] = p
	}
	return p
}

func (n *kernelNode) outputPort(port PortID) *outputPort {
	return n.outputs[port]
}

// renderWorld holds the kernel-side mirror of the graph: one kernelNode
// per live node, backed by the arena for Buffer<T> storage (spec.md §4.7).
// It is rebuilt incrementally from the graph diff each tick by copyWorlds,
// never from scratch.
type renderWorld struct {
	arena *arena.Arena
	nodes map[NodeHandle]*kernelNode
	live  *roaring.Bitmap
	index map[NodeHandle]uint32
	next  uint32
}

func newRenderWorld(a *arena.Arena) renderWorld {
	return renderWorld{
		arena: a,
		nodes: make(map[NodeHandle]*kernelNode),
		live:  roaring.New(),
		index: make(map[NodeHandle]uint32),
	}
}

// copyWorlds replays the accumulated graph diff onto the render world and
// refreshes every live node's input patches, in the fixed pipeline order
// of spec.md §4.7: Align World, Analyse Live Nodes, Copy Dirty Render
// Data, Resize Data Port Buffers, Update Input Data Ports, Assign External
// Input Data To Ports.
func (ns *NodeSet) copyWorlds(ctx context.Context) error {
	rw := &ns.render

	rw.alignWorld(ns)
	rw.analyseLiveNodes(ns)
	rw.copyDirtyRenderData(ns)
	if err := rw.resizeDataPortBuffers(ns); err != nil {
		return err
	}
	rw.updateInputDataPorts(ns)
	return rw.assignExternalInputDataToPorts(ctx, ns)
}

// alignWorld replays node creation/destruction commands from the diff.
// Connection changes need no explicit replay here: updateInputDataPorts
// re-patches every input from the live connection database each tick.
func (rw *renderWorld) alignWorld(ns *NodeSet) {
	for _, c := range ns.diff.createdNodes {
		entry := ns.kinds[c.kindIdx]
		if _, ok := rw.index[c.node]; !ok {
			rw.index[c.node] = rw.next
			rw.next++
		}
		rw.live.Add(rw.index[c.node])
		rw.nodes[c.node] = newKernelNode(c.node, c.kindIdx, entry)
	}
	for _, h := range ns.diff.destroyedNodes {
		if kn := rw.nodes[h]; kn != nil {
			for _, op := range kn.outputs {
				for _, buf := range op.buffers {
					rw.arena.Free(buf.data)
					buf.data = nil
				}
			}
		}
		if idx, ok := rw.index[h]; ok {
			rw.live.Remove(idx)
		}
		delete(rw.nodes, h)
		delete(rw.index, h)
	}
}

// analyseLiveNodes drops any kernel node whose simulation-side vertex is
// no longer part of the topology (spec.md §4.7 "AnalyseLiveNodes").
func (rw *renderWorld) analyseLiveNodes(ns *NodeSet) {
	for h := range rw.nodes {
		if _, ok := ns.topology.index[h]; !ok {
			delete(rw.nodes, h)
		}
	}
}

// copyDirtyRenderData applies set_data/retain_data commands queued in the
// diff onto kernel-side storage (spec.md §4.4 "Set-data"). Messages never
// reach the diff: SendMessage delivers them synchronously at the call
// site (spec.md §5).
func (rw *renderWorld) copyDirtyRenderData(ns *NodeSet) {
	for _, cmd := range ns.diff.dataPortCmds {
		kn := rw.nodes[cmd.node]
		if kn == nil {
			continue
		}
		p := kn.inputPatch(cmd.port)
		p.memory = encodeScalar(cmd.value)
	}
}

// resizeDataPortBuffers applies every pending buffer resize request queued
// this tick, always freeing the old allocation before acquiring the new
// one (spec.md §4.6 invariant "resize frees before allocating").
func (rw *renderWorld) resizeDataPortBuffers(ns *NodeSet) error {
	for _, cmd := range ns.diff.bufferResizes {
		kn := rw.nodes[cmd.node]
		if kn == nil {
			continue
		}
		op := kn.outputPort(cmd.port)
		if op == nil {
			continue
		}
		desc, _ := kn.entry.portSet.Output(cmd.port)
		for i, buf := range op.buffers {
			if i < len(desc.Buffers) && desc.Buffers[i].ByteOffset != cmd.byteOffset {
				continue
			}
			buf.requestResize(cmd.elements)
			if err := buf.applyResize(rw.arena); err != nil {
				return wrapErr(types.NotFound, err, "resize buffer on node %s port %d", cmd.node.String(), cmd.port)
			}
		}
	}
	return nil
}

// updateInputDataPorts repatches every live node's input slots from the
// connection database: connected ports point at their source's output
// storage, unconnected ports are patched to empty memory with ownership
// None, which the input accessors read as the zero value (spec.md §4.6
// "Port patching").
func (rw *renderWorld) updateInputDataPorts(ns *NodeSet) {
	for h, kn := range rw.nodes {
		for _, in := range kn.entry.portSet.Inputs {
			if in.IsArray {
				n := 0
				if rec := ns.nodes.Get(h.h); rec != nil {
					n = int(rec.arraySize(in.Port))
				}
				for i := 0; i < n; i++ {
					rw.patchInput(ns, kn, InputPortArrayID{Port: in.Port, Index: uint16(i)})
				}
				continue
			}
			rw.patchInput(ns, kn, InputPortArrayID{Port: in.Port, Index: InvalidArrayIndex})
		}
	}
}

func (rw *renderWorld) patchInput(ns *NodeSet, kn *kernelNode, id InputPortArrayID) {
	src, srcPort, ok := ns.sourceOf(kn.handle, id)
	p := kn.inputPatch(id)
	if !ok {
		p.patchToDefault(nil)
		return
	}
	srcNode := rw.nodes[src]
	if srcNode == nil {
		p.patchToDefault(nil)
		return
	}
	op := srcNode.outputPort(srcPort)
	if op == nil {
		p.patchToDefault(nil)
		return
	}
	if len(op.buffers) > 0 {
		p.patchToPort(op.buffers[0].data)
		return
	}
	p.patchToPort(op.scalar)
}

// assignExternalInputDataToPorts patches OwnedByBatch memory from any input
// batches scheduled for this tick onto their target ports, overriding
// connection patching for the tick (spec.md §4.9). It waits for each
// batch's producer fence first, so a patch never exposes memory the
// producer is still writing.
func (rw *renderWorld) assignExternalInputDataToPorts(ctx context.Context, ns *NodeSet) error {
	var due []*batchRecord
	ns.batches.Each(func(_ slab.Handle, b *batchRecord) {
		if b.alive && b.renderTick == ns.tick {
			due = append(due, b)
		}
	})

	for _, b := range due {
		if b.producerFence != nil {
			if err := b.producerFence.Wait(ctx); err != nil {
				return wrapErr(types.NotFound, err, "wait for input batch producer fence on node %s port %d", b.node.String(), b.port.Port)
			}
		}
		kn := rw.nodes[b.node]
		if kn == nil {
			continue
		}
		kn.inputPatch(b.port).patchToBatch(b.data)
	}
	return nil
}

// executeKernels runs Kernel.Execute for every live node with a kernel, in
// the order and concurrency the configured execution model dictates
// (spec.md §4.7).
func (ns *NodeSet) executeKernels(ctx context.Context) error {
	return ns.schedule(ctx)
}

// encodeScalar gives set_data's interface{} payload a stable byte
// representation for the handful of primitive kinds the simulation-side
// API accepts directly; any other POD value is encoded by the default case
// through toBytes (simulation.go).
func encodeScalar(v interface{}) []byte {
	switch x := v.(type) {
	case []byte:
		return x
	case float64:
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, math.Float64bits(x))
		return buf
	case int:
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, uint64(x))
		return buf
	case int64:
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, uint64(x))
		return buf
	case uint64:
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, x)
		return buf
	case bool:
		if x {
			return []byte{1}
		}
		return []byte{0}
	default:
		return toBytes(v)
	}
}
