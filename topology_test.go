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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunotm/dataflowgraph/internal/slab"
	"github.com/brunotm/dataflowgraph/types"
)

func newTestNode(idx uint32) NodeHandle {
	return NodeHandle{h: slab.Handle{Index: idx, ContainerID: containerNodes}}
}

func indexOf(order []NodeHandle, h NodeHandle) int {
	for i, v := range order {
		if v == h {
			return i
		}
	}
	return -1
}

func TestGlobalBreadthFirstOrdersDependenciesFirst(t *testing.T) {
	tc := newTopologyCache()
	a, b, c := newTestNode(1), newTestNode(2), newTestNode(3)
	tc.addVertex(a)
	tc.addVertex(b)
	tc.addVertex(c)

	tc.addEdge(a, 0, b, InputPortArrayID{Port: 0, Index: InvalidArrayIndex}, types.TraversalData)
	tc.addEdge(b, 0, c, InputPortArrayID{Port: 0, Index: InvalidArrayIndex}, types.TraversalData)

	order := tc.Order()
	require.Len(t, order, 3)
	assert.Less(t, indexOf(order, a), indexOf(order, b))
	assert.Less(t, indexOf(order, b), indexOf(order, c))
	assert.Empty(t, tc.Errors())
}

// TestAddEdgeAcceptsCycleDetectionDeferredToRecompute checks that addEdge
// never rejects a cycle-forming edge itself: the cycle only shows up once
// the cache recomputes, as an empty order plus a CycleDetected entry in
// Errors() (spec.md §3, §7, §8 scenario 2).
func TestAddEdgeAcceptsCycleDetectionDeferredToRecompute(t *testing.T) {
	tc := newTopologyCache()
	a, b := newTestNode(1), newTestNode(2)
	tc.addVertex(a)
	tc.addVertex(b)

	tc.addEdge(a, 0, b, InputPortArrayID{Port: 0, Index: InvalidArrayIndex}, types.TraversalData)
	tc.addEdge(b, 0, a, InputPortArrayID{Port: 0, Index: InvalidArrayIndex}, types.TraversalData)

	order := tc.Order()
	assert.Empty(t, order, "a cycle must clear the ordered traversal")

	errs := tc.Errors()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], errCycleDetected)
}

func TestLocalDepthFirstPartitionsIslands(t *testing.T) {
	tc := newTopologyCache()
	a, b, c, d := newTestNode(1), newTestNode(2), newTestNode(3), newTestNode(4)
	tc.addVertex(a)
	tc.addVertex(b)
	tc.addVertex(c)
	tc.addVertex(d)

	tc.addEdge(a, 0, b, InputPortArrayID{Port: 0, Index: InvalidArrayIndex}, types.TraversalData)
	tc.addEdge(c, 0, d, InputPortArrayID{Port: 0, Index: InvalidArrayIndex}, types.TraversalData)

	tc.strategy = LocalDepthFirst
	islands := tc.Islands()
	require.Len(t, islands, 2)

	for _, island := range islands {
		assert.Len(t, island, 2)
	}
}

func TestLevelsGroupIntoDependencyWaves(t *testing.T) {
	tc := newTopologyCache()
	a, b, c := newTestNode(1), newTestNode(2), newTestNode(3)
	tc.addVertex(a)
	tc.addVertex(b)
	tc.addVertex(c)

	tc.addEdge(a, 0, c, InputPortArrayID{Port: 0, Index: InvalidArrayIndex}, types.TraversalData)
	tc.addEdge(b, 0, c, InputPortArrayID{Port: 1, Index: InvalidArrayIndex}, types.TraversalData)

	levels := tc.levels()
	require.Len(t, levels, 2)
	assert.ElementsMatch(t, []NodeHandle{a, b}, levels[0])
	assert.Equal(t, []NodeHandle{c}, levels[1])
}

// TestLevelsSurfacesCycleErrorEvenThoughItComputesGlobalOrderDirectly checks
// that levels() (used by MaximallyParallel, the default execution model)
// still runs recompute as a side effect, so a cycle shows up in Errors()
// even for the one traversal entry point that never calls Order()/Islands().
func TestLevelsSurfacesCycleErrorEvenThoughItComputesGlobalOrderDirectly(t *testing.T) {
	tc := newTopologyCache()
	a, b := newTestNode(1), newTestNode(2)
	tc.addVertex(a)
	tc.addVertex(b)

	tc.addEdge(a, 0, b, InputPortArrayID{Port: 0, Index: InvalidArrayIndex}, types.TraversalData)
	tc.addEdge(b, 0, a, InputPortArrayID{Port: 0, Index: InvalidArrayIndex}, types.TraversalData)

	tc.levels()
	errs := tc.Errors()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], errCycleDetected)
}

func TestRemoveEdgeAllowsReinsertionInOppositeDirection(t *testing.T) {
	tc := newTopologyCache()
	a, b := newTestNode(1), newTestNode(2)
	tc.addVertex(a)
	tc.addVertex(b)

	port := InputPortArrayID{Port: 0, Index: InvalidArrayIndex}
	tc.addEdge(a, 0, b, port, types.TraversalData)
	tc.removeEdge(a, 0, b, port, types.TraversalData)

	tc.addEdge(b, 0, a, port, types.TraversalData)
	order := tc.Order()
	require.Len(t, order, 2, "b -> a alone is acyclic once a -> b is gone")
	assert.Less(t, indexOf(order, b), indexOf(order, a))
}

func TestMaskedTraversalIgnoresEdgesOutsideTheMask(t *testing.T) {
	tc := newTopologyCache()
	a, b := newTestNode(1), newTestNode(2)
	tc.addVertex(a)
	tc.addVertex(b)

	port := InputPortArrayID{Port: 0, Index: InvalidArrayIndex}
	tc.addEdge(a, 0, b, port, types.TraversalMessage)

	order := tc.Order()
	assert.Len(t, order, 2, "a message-only edge contributes no data-traversal ordering constraint")
	assert.Empty(t, tc.Errors())
}
