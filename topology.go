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
	roaring "github.com/RoaringBitmap/roaring/v2"

	"github.com/brunotm/dataflowgraph/types"
)

// TraversalStrategy selects how the topology cache linearizes the graph
// for the render scheduler (spec.md §4.3).
type TraversalStrategy int

const (
	// GlobalBreadthFirst produces a single Kahn's-algorithm ordering over
	// the whole graph, ignoring island boundaries.
	GlobalBreadthFirst TraversalStrategy = iota
	// LocalDepthFirst orders each connected component independently with
	// a depth-first postorder, concatenating islands; this is what the
	// Islands execution model schedules against.
	LocalDepthFirst
)

// topologyEdge is one directed connection as recorded for traversal
// purposes: the peer vertex, the ports at each end, and the traversal
// flags the owning connection was created with (spec.md §3 "traversal_
// flags: u32").
type topologyEdge struct {
	peer    NodeHandle
	srcPort PortID
	dstPort InputPortArrayID
	flags   types.TraversalFlags
}

// TraversalConnection is one entry of a Slot's parent or child table: the
// peer's position in the ordered traversal plus the ports and flags of
// the edge connecting them (spec.md §3 "parent_table, child_table").
type TraversalConnection struct {
	PeerIndex int
	SrcPort   PortID
	DstPort   InputPortArrayID
	Flags     types.TraversalFlags
}

// Slot is one vertex's position in an ordered traversal, with the spans
// of its parent and child connection tables (spec.md §3 "Slot = (vertex,
// parent_count, parent_table_index, child_count, child_table_index)").
type Slot struct {
	Vertex           NodeHandle
	ParentCount      int
	ParentTableIndex int
	ChildCount       int
	ChildTableIndex  int
}

// topologyCache is the incremental DAG view the render world schedules
// from (spec.md §4.3): adjacency in both directions (tagged with per-edge
// traversal flags), a live-vertex membership bitmap, and a cached
// traversal order recomputed lazily after structural edits. Unlike
// Connect/Disconnect, which are cycle-agnostic, this is the single place
// a cycle is ever detected: recompute() clears the ordering and records
// Error::Cycles instead of rejecting the edge that closed the loop
// (spec.md §3, §4.3, §7, §8 scenario 2).
type topologyCache struct {
	adjOut map[NodeHandle][]topologyEdge
	adjIn  map[NodeHandle][]topologyEdge

	index   map[NodeHandle]uint32
	nextIdx uint32
	live    *roaring.Bitmap

	strategy TraversalStrategy

	// traversalMask selects which edges participate in the computed
	// ordering; alternateMask is additionally folded into the connection
	// tables so callers can enumerate a secondary hierarchy without a
	// second sort (spec.md §3 "Two u32 bitmasks").
	traversalMask types.TraversalFlags
	alternateMask types.TraversalFlags

	dirty   bool
	version uint64

	order   []NodeHandle
	islands [][]NodeHandle

	slots       []Slot
	parentTable []TraversalConnection
	childTable  []TraversalConnection
	leaves      []int
	roots       []int

	// errors accumulates failures discovered during recomputation
	// (currently only Cycles); surfaced to callers on next access via
	// Errors() rather than returned synchronously from addEdge (spec.md
	// §7 "Errors detected inside scheduled jobs ... store into
	// traversal_cache.errors").
	errors []*Error
}

func newTopologyCache() topologyCache {
	return topologyCache{
		adjOut:        make(map[NodeHandle][]topologyEdge),
		adjIn:         make(map[NodeHandle][]topologyEdge),
		index:         make(map[NodeHandle]uint32),
		live:          roaring.New(),
		traversalMask: types.TraversalData,
		alternateMask: types.TraversalMessage,
	}
}

// SetMasks selects the hierarchy recomputation orders against (traversal)
// and the secondary hierarchy folded into the connection tables
// (alternate), forcing a recompute on next access (spec.md §3, §4.3).
func (t *topologyCache) SetMasks(traversal, alternate types.TraversalFlags) {
	t.traversalMask = traversal
	t.alternateMask = alternate
	t.dirty = true
}

func (t *topologyCache) addVertex(h NodeHandle) {
	if _, ok := t.index[h]; !ok {
		t.index[h] = t.nextIdx
		t.nextIdx++
	}
	t.live.Add(t.index[h])
	t.dirty = true
}

func (t *topologyCache) removeVertex(h NodeHandle) {
	idx, ok := t.index[h]
	if !ok {
		return
	}
	t.live.Remove(idx)
	delete(t.adjOut, h)
	delete(t.adjIn, h)
	delete(t.index, h)
	t.dirty = true
}

// addEdge links src -> dst. Connections are reference-free and
// cycle-agnostic at this layer (spec.md §3 "Lifecycles"): a cycle is only
// ever discovered later, during recompute.
func (t *topologyCache) addEdge(src NodeHandle, srcPort PortID, dst NodeHandle, dstPort InputPortArrayID, flags types.TraversalFlags) {
	t.adjOut[src] = append(t.adjOut[src], topologyEdge{peer: dst, srcPort: srcPort, dstPort: dstPort, flags: flags})
	t.adjIn[dst] = append(t.adjIn[dst], topologyEdge{peer: src, srcPort: srcPort, dstPort: dstPort, flags: flags})
	t.dirty = true
}

func (t *topologyCache) removeEdge(src NodeHandle, srcPort PortID, dst NodeHandle, dstPort InputPortArrayID, flags types.TraversalFlags) {
	t.adjOut[src] = removeTopologyEdge(t.adjOut[src], dst, srcPort, dstPort, flags)
	t.adjIn[dst] = removeTopologyEdge(t.adjIn[dst], src, srcPort, dstPort, flags)
	t.dirty = true
}

func removeTopologyEdge(list []topologyEdge, peer NodeHandle, srcPort PortID, dstPort InputPortArrayID, flags types.TraversalFlags) []topologyEdge {
	for i, e := range list {
		if e.peer == peer && e.srcPort == srcPort && e.dstPort == dstPort && e.flags == flags {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// maskedPeers returns the peer vertices of every edge whose flags
// intersect mask (spec.md §4.3 "whose flags intersect the traversal
// mask").
func maskedPeers(edges []topologyEdge, mask types.TraversalFlags) []NodeHandle {
	var out []NodeHandle
	for _, e := range edges {
		if e.flags&mask != 0 {
			out = append(out, e.peer)
		}
	}
	return out
}

// recompute rebuilds the cached traversal order, connection tables, and
// errors with the configured strategy and masks. Callers hold ns.mu,
// except the scheduler's Order/Islands/levels calls, which Update makes
// after releasing ns.mu.
func (t *topologyCache) recompute() {
	if !t.dirty {
		return
	}

	t.errors = t.errors[:0]

	var order []NodeHandle
	var islands [][]NodeHandle
	switch t.strategy {
	case LocalDepthFirst:
		islands = t.localDepthFirst()
		for _, island := range islands {
			order = append(order, island...)
		}
	default:
		order = t.globalBreadthFirst()
	}

	// Detection of any back-edge produces Error::Cycles and clears the
	// cache (spec.md §3 invariant, §8 "|ordered_traversal| == 0").
	if !t.validAcyclicOrder(order) {
		t.errors = append(t.errors, errCycleDetected)
		t.order = nil
		t.islands = nil
		t.slots = nil
		t.parentTable = nil
		t.childTable = nil
		t.leaves = nil
		t.roots = nil
		t.version++
		t.dirty = false
		return
	}

	t.order = order
	t.islands = islands
	t.buildTables(order)
	t.version++
	t.dirty = false
}

// validAcyclicOrder reports whether order is a complete topological sort
// of every live, masked-reachable vertex: every vertex appears exactly
// once and every masked edge points strictly forward.
func (t *topologyCache) validAcyclicOrder(order []NodeHandle) bool {
	if len(order) != len(t.index) {
		return false
	}
	pos := make(map[NodeHandle]int, len(order))
	for i, h := range order {
		pos[h] = i
	}
	for u, edges := range t.adjOut {
		pu, ok := pos[u]
		if !ok {
			continue
		}
		for _, e := range edges {
			if e.flags&t.traversalMask == 0 {
				continue
			}
			pv, ok := pos[e.peer]
			if !ok || pv <= pu {
				return false
			}
		}
	}
	return true
}

// buildTables derives the Slot array plus parent/child connection tables
// from an already-validated order (spec.md §4.3 "Connection tables").
func (t *topologyCache) buildTables(order []NodeHandle) {
	pos := make(map[NodeHandle]int, len(order))
	for i, h := range order {
		pos[h] = i
	}

	combined := t.traversalMask | t.alternateMask

	t.slots = make([]Slot, len(order))
	t.parentTable = t.parentTable[:0]
	t.childTable = t.childTable[:0]
	t.leaves = t.leaves[:0]
	t.roots = t.roots[:0]

	for i, h := range order {
		parentStart := len(t.parentTable)
		for _, e := range t.adjIn[h] {
			if e.flags&combined == 0 {
				continue
			}
			peerIdx, ok := pos[e.peer]
			if !ok {
				continue
			}
			t.parentTable = append(t.parentTable, TraversalConnection{
				PeerIndex: peerIdx, SrcPort: e.srcPort, DstPort: e.dstPort, Flags: e.flags,
			})
		}
		parentCount := len(t.parentTable) - parentStart

		childStart := len(t.childTable)
		for _, e := range t.adjOut[h] {
			if e.flags&combined == 0 {
				continue
			}
			peerIdx, ok := pos[e.peer]
			if !ok {
				continue
			}
			t.childTable = append(t.childTable, TraversalConnection{
				PeerIndex: peerIdx, SrcPort: e.srcPort, DstPort: e.dstPort, Flags: e.flags,
			})
		}
		childCount := len(t.childTable) - childStart

		t.slots[i] = Slot{
			Vertex: h, ParentCount: parentCount, ParentTableIndex: parentStart,
			ChildCount: childCount, ChildTableIndex: childStart,
		}
		if parentCount == 0 {
			t.leaves = append(t.leaves, i)
		}
		if childCount == 0 {
			t.roots = append(t.roots, i)
		}
	}
}

// globalBreadthFirst is a Kahn's-algorithm topological sort over every
// live vertex, considering only edges whose flags intersect the
// traversal mask (spec.md §4.3 "GlobalBreadthFirst"). Vertices left
// unvisited when the queue drains indicate a cycle; the caller detects
// that by comparing len(result) against the live vertex count.
func (t *topologyCache) globalBreadthFirst() []NodeHandle {
	indegree := make(map[NodeHandle]int, len(t.index))
	for h := range t.index {
		indegree[h] = len(maskedPeers(t.adjIn[h], t.traversalMask))
	}

	var queue, order []NodeHandle
	for h, d := range indegree {
		if d == 0 {
			queue = append(queue, h)
		}
	}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		order = append(order, cur)
		for _, next := range maskedPeers(t.adjOut[cur], t.traversalMask) {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	return order
}

// localDepthFirst partitions the live vertex set into connected components
// (treating masked edges as undirected for grouping) and orders each
// island's vertices with a depth-first postorder reversal, producing one
// topologically valid slice per island (spec.md §4.3 "LocalDepthFirst").
func (t *topologyCache) localDepthFirst() [][]NodeHandle {
	undirected := make(map[NodeHandle][]NodeHandle, len(t.index))
	for h := range t.index {
		undirected[h] = append(undirected[h], maskedPeers(t.adjOut[h], t.traversalMask)...)
		undirected[h] = append(undirected[h], maskedPeers(t.adjIn[h], t.traversalMask)...)
	}

	seen := make(map[NodeHandle]bool, len(t.index))
	var islands [][]NodeHandle

	for h := range t.index {
		if seen[h] {
			continue
		}
		var component []NodeHandle
		stack := []NodeHandle{h}
		seen[h] = true
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			component = append(component, cur)
			for _, next := range undirected[cur] {
				if !seen[next] {
					seen[next] = true
					stack = append(stack, next)
				}
			}
		}
		islands = append(islands, t.depthFirstOrder(component))
	}
	return islands
}

// depthFirstOrder topologically orders the given vertex subset by DFS
// postorder reversal over masked out-edges.
func (t *topologyCache) depthFirstOrder(vertices []NodeHandle) []NodeHandle {
	member := make(map[NodeHandle]bool, len(vertices))
	for _, v := range vertices {
		member[v] = true
	}

	visited := make(map[NodeHandle]bool, len(vertices))
	var post []NodeHandle

	var visit func(NodeHandle)
	visit = func(h NodeHandle) {
		visited[h] = true
		for _, next := range maskedPeers(t.adjOut[h], t.traversalMask) {
			if member[next] && !visited[next] {
				visit(next)
			}
		}
		post = append(post, h)
	}

	for _, v := range vertices {
		if !visited[v] {
			visit(v)
		}
	}

	for i, j := 0, len(post)-1; i < j; i, j = i+1, j-1 {
		post[i], post[j] = post[j], post[i]
	}
	return post
}

// levels groups live vertices into dependency waves: every vertex in wave
// N has all of its predecessors in waves < N, so the MaximallyParallel
// model can run a whole wave concurrently with a barrier in between
// (spec.md §4.7).
func (t *topologyCache) levels() [][]NodeHandle {
	// levels always reflects global dependency order regardless of the
	// configured strategy, but recompute() still runs first so a cycle is
	// detected and surfaced through errors() even when MaximallyParallel
	// (the only model that calls levels()) never touches Order()/Islands().
	t.recompute()

	depth := make(map[NodeHandle]int, len(t.index))
	order := t.globalBreadthFirst()
	maxDepth := 0
	for _, h := range order {
		d := 0
		for _, parent := range maskedPeers(t.adjIn[h], t.traversalMask) {
			if pd, ok := depth[parent]; ok && pd+1 > d {
				d = pd + 1
			}
		}
		depth[h] = d
		if d > maxDepth {
			maxDepth = d
		}
	}

	levels := make([][]NodeHandle, maxDepth+1)
	for _, h := range order {
		levels[depth[h]] = append(levels[depth[h]], h)
	}
	return levels
}

// Order returns the cached topological order, recomputing it first if
// the graph changed since the last call. Empty whenever the most recent
// recompute detected a cycle; check Errors() to distinguish that from an
// empty graph.
func (t *topologyCache) Order() []NodeHandle {
	t.recompute()
	return t.order
}

// Islands returns the cached per-component order under LocalDepthFirst;
// empty under GlobalBreadthFirst.
func (t *topologyCache) Islands() [][]NodeHandle {
	t.recompute()
	return t.islands
}

// Slots returns the Slot table of the most recent traversal, recomputing
// first if stale (spec.md §3 "ordered_traversal: [Slot]").
func (t *topologyCache) Slots() []Slot {
	t.recompute()
	return t.slots
}

// ParentTable and ChildTable expose the dense connection tables indexed
// by a Slot's *TableIndex offsets (spec.md §3).
func (t *topologyCache) ParentTable() []TraversalConnection {
	t.recompute()
	return t.parentTable
}

func (t *topologyCache) ChildTable() []TraversalConnection {
	t.recompute()
	return t.childTable
}

// Leaves and Roots return indices into the ordered traversal (spec.md §3
// "leaves, roots: [int]").
func (t *topologyCache) Leaves() []int {
	t.recompute()
	return t.leaves
}

func (t *topologyCache) Roots() []int {
	t.recompute()
	return t.roots
}

// Errors returns the failures discovered by the most recent recompute,
// surfaced here rather than at the Connect call site that closed a cycle
// (spec.md §7 "surfaced on next main-thread access of the cache").
func (t *topologyCache) Errors() []*Error {
	t.recompute()
	return t.errors
}
