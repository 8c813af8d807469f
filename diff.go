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

// diffOp tags one entry of the graph diff's ordered command stream with
// which parallel list it belongs to (spec.md §4.5). Connect/Disconnect are
// not diff commands: the connection database and topology cache are
// simulation-side structures updated synchronously at the call site
// (spec.md §4.2, §4.3), so the render world never needs to replay them —
// it re-patches every input from the live connection database each tick
// instead (see updateInputDataPorts in render.go). Likewise SendMessage is
// not a diff command: messaging is synchronous (spec.md §5) and never
// crosses a tick boundary.
type diffOp int

const (
	diffOpCreateNode diffOp = iota
	diffOpDestroyNode
	diffOpBufferResize
	diffOpPortArrayResize
	diffOpSetData
)

type createdNodeCmd struct {
	node    NodeHandle
	kindIdx int
}

type bufferResizeCmd struct {
	node       NodeHandle
	port       PortID
	byteOffset uintptr
	elements   int
}

type portArrayResizeCmd struct {
	node NodeHandle
	port PortID
	size uint16
}

type dataPortCmd struct {
	node   NodeHandle
	port   InputPortArrayID
	value  interface{}
	retain bool
}

// graphDiff accumulates every structural and data mutation the simulation
// world makes during one tick, as parallel append-only lists plus one
// ordered stream of tags so the render world can atomically replay them in
// the order they were issued (spec.md §4.5).
type graphDiff struct {
	createdNodes     []createdNodeCmd
	destroyedNodes   []NodeHandle
	bufferResizes    []bufferResizeCmd
	portArrayResizes []portArrayResizeCmd
	dataPortCmds     []dataPortCmd

	stream []diffOp
}

func (d *graphDiff) recordCreate(node NodeHandle, kindIdx int) {
	d.createdNodes = append(d.createdNodes, createdNodeCmd{node: node, kindIdx: kindIdx})
	d.stream = append(d.stream, diffOpCreateNode)
}

// discardNode removes a just-created node's pending create command, used
// to roll back a failed Init without ever exposing the node to the render
// world (spec.md §4.4 "Init failure").
func (d *graphDiff) discardNode(node NodeHandle) {
	removed := false
	for i := len(d.createdNodes) - 1; i >= 0; i-- {
		if d.createdNodes[i].node == node {
			d.createdNodes = append(d.createdNodes[:i], d.createdNodes[i+1:]...)
			removed = true
			break
		}
	}
	if !removed {
		return
	}
	for i := len(d.stream) - 1; i >= 0; i-- {
		if d.stream[i] == diffOpCreateNode {
			d.stream = append(d.stream[:i], d.stream[i+1:]...)
			break
		}
	}
}

func (d *graphDiff) recordDestroy(node NodeHandle) {
	d.destroyedNodes = append(d.destroyedNodes, node)
	d.stream = append(d.stream, diffOpDestroyNode)
}

func (d *graphDiff) recordBufferResize(node NodeHandle, port PortID, byteOffset uintptr, elements int) {
	d.bufferResizes = append(d.bufferResizes, bufferResizeCmd{node: node, port: port, byteOffset: byteOffset, elements: elements})
	d.stream = append(d.stream, diffOpBufferResize)
}

func (d *graphDiff) recordPortArrayResize(node NodeHandle, port PortID, size uint16) {
	d.portArrayResizes = append(d.portArrayResizes, portArrayResizeCmd{node: node, port: port, size: size})
	d.stream = append(d.stream, diffOpPortArrayResize)
}

func (d *graphDiff) recordSetData(node NodeHandle, port PortID, value interface{}, retain bool) {
	d.dataPortCmds = append(d.dataPortCmds, dataPortCmd{
		node: node, port: InputPortArrayID{Port: port, Index: InvalidArrayIndex}, value: value, retain: retain,
	})
	d.stream = append(d.stream, diffOpSetData)
}

// empty reports whether there is nothing to replay this tick.
func (d *graphDiff) empty() bool {
	return len(d.stream) == 0
}

// reset clears the diff after the render world has consumed it (spec.md
// §4.5 "the diff is drained, never retained, across a tick boundary").
func (d *graphDiff) reset() {
	d.createdNodes = d.createdNodes[:0]
	d.destroyedNodes = d.destroyedNodes[:0]
	d.bufferResizes = d.bufferResizes[:0]
	d.portArrayResizes = d.portArrayResizes[:0]
	d.dataPortCmds = d.dataPortCmds[:0]
	d.stream = d.stream[:0]
}
