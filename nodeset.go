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
	"sync"

	"github.com/brunotm/dataflowgraph/internal/arena"
	"github.com/brunotm/dataflowgraph/internal/slab"
	"github.com/brunotm/dataflowgraph/log"
	"github.com/brunotm/dataflowgraph/types"
	lru "github.com/hashicorp/golang-lru/v2"
)

// containerID tags each of a NodeSet's slabs, so a handle minted by one of
// them never validates against another (a node handle's slab reference
// used on the connection slab, say). Every NodeSet uses these same four
// values, so a handle minted by one NodeSet is not distinguished from one
// minted by another.
const (
	containerNodes       uint16 = 1
	containerConnections uint16 = 2
	containerGraphValues uint16 = 3
	containerBatches     uint16 = 4
)

// NodeSet is the simulation-world owner of a dataflow graph: node
// lifetime, connections, port forwarding, buffer-size requests and graph
// values all go through it (spec.md §6). A NodeSet is not safe for
// concurrent use from multiple goroutines; callers serialize their own
// access the way the teacher's topology expects a single owning stream.
type NodeSet struct {
	mu  sync.Mutex
	log log.Logger
	cfg Config

	kinds []kindEntry

	nodes *slab.Slab[nodeRecord]
	conns *slab.Slab[connectionRecord]

	// connIndex deduplicates (src, srcPort, dst, dstPort) tuples across
	// AlreadyConnected checks without an O(n) scan (spec.md §4.2).
	connIndex map[uint64]ConnectionHandle

	// outHeads/inHeads are the per-vertex connection-list heads of the
	// connection database (spec.md §4.2).
	outHeads map[NodeHandle]ConnectionHandle
	inHeads  map[NodeHandle]ConnectionHandle

	topology topologyCache

	arena *arena.Arena

	graphValues *slab.Slab[graphValueRecord]
	resolvers   *lru.Cache[GraphValueHandle, *GraphValueResolver]

	batches *slab.Slab[batchRecord]

	model types.ExecutionModel

	diff graphDiff

	render renderWorld

	tick uint64

	// currentFence completes when the in-flight render (if any) finishes,
	// so GetValueBlocking and batch producers have something to wait on
	// (spec.md §4.7 "job-handle fencing").
	currentFence *Fence
}

// NewNodeSet constructs an empty graph. An empty cfg (the Config zero
// value) applies engine defaults.
func NewNodeSet(cfg Config) (*NodeSet, error) {
	cacheSize := cfg.Get("resolver_cache_size").Int(256)
	resolvers, err := lru.New[GraphValueHandle, *GraphValueResolver](cacheSize)
	if err != nil {
		return nil, wrapErr(types.NotFound, err, "allocate resolver cache")
	}

	ns := &NodeSet{
		log:         log.New("component", "nodeset"),
		cfg:         cfg,
		nodes:       slab.New[nodeRecord](containerNodes),
		conns:       slab.New[connectionRecord](containerConnections),
		connIndex:   make(map[uint64]ConnectionHandle),
		arena:       arena.New(),
		graphValues: slab.New[graphValueRecord](containerGraphValues),
		resolvers:   resolvers,
		batches:     slab.New[batchRecord](containerBatches),
		model:       types.MaximallyParallel,
	}
	ns.topology = newTopologyCache()
	ns.render = newRenderWorld(ns.arena)
	return ns, nil
}

// RegisterKind adds a node kind to the set and returns its index, used as
// the second argument to CreateNode.
func (ns *NodeSet) RegisterKind(kind Kind) int {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	ns.kinds = append(ns.kinds, newKindEntry(kind))
	return len(ns.kinds) - 1
}

// SetExecutionModel selects one of the four render scheduling strategies
// and forces the topology cache to re-sort under the strategy that model
// requires (spec.md §4.7 step 2 "Change execution model if requested
// (forces topology re-sort)"): Islands schedules against LocalDepthFirst,
// every other model against GlobalBreadthFirst.
func (ns *NodeSet) SetExecutionModel(m types.ExecutionModel) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	ns.model = m

	strategy := GlobalBreadthFirst
	if m == types.Islands {
		strategy = LocalDepthFirst
	}
	if ns.topology.strategy != strategy {
		ns.topology.strategy = strategy
		ns.topology.dirty = true
	}
}

// Dispose releases the arena and any other process-wide resources held by
// the set. Any node, connection, forwarding or graph value still live at
// this point is a resource leak: it is logged, never returned as an error,
// since dispose itself cannot fail on account of caller bugs (spec.md §7
// "Leak — detected on dispose ... logged only"). The NodeSet must not be
// used afterwards.
func (ns *NodeSet) Dispose() error {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	ns.logLeaksLocked()
	return ns.arena.Close()
}

// TopologyErrors returns the failures discovered by the most recent
// topology recompute, e.g. errCycleDetected when the live connections no
// longer form a DAG under the configured traversal mask (spec.md §7
// "surfaced on next main-thread access of the cache"). A cycle never fails
// Connect itself; callers that need to know about one poll this after
// Update or after calling Order/Islands directly.
func (ns *NodeSet) TopologyErrors() []*Error {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	return ns.topology.Errors()
}

// logLeaksLocked scans every slab this set owns for records still marked
// alive and logs one Leak-kind warning per kind of leaked resource found.
// Callers hold ns.mu.
func (ns *NodeSet) logLeaksLocked() {
	var liveNodes, liveForwards int
	ns.nodes.Each(func(_ slab.Handle, rec *nodeRecord) {
		if !rec.alive {
			return
		}
		liveNodes++
		for f := rec.forwards.head; f != nil; f = f.next {
			liveForwards++
		}
	})

	var liveConns int
	ns.conns.Each(func(_ slab.Handle, rec *connectionRecord) {
		if rec.alive {
			liveConns++
		}
	})

	var liveValues int
	ns.graphValues.Each(func(_ slab.Handle, rec *graphValueRecord) {
		liveValues++
	})

	if liveNodes == 0 && liveConns == 0 && liveForwards == 0 && liveValues == 0 {
		return
	}

	leak := newErr(types.Leak, "dispose found live resources: nodes=%d connections=%d forwardings=%d graph_values=%d",
		liveNodes, liveConns, liveForwards, liveValues)
	ns.log.Warnw("resource leak detected on dispose",
		"nodes", liveNodes, "connections", liveConns, "forwardings", liveForwards, "graph_values", liveValues,
		"error", leak)
}
