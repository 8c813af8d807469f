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
	"fmt"

	"github.com/emicklei/dot"

	"github.com/brunotm/dataflowgraph/internal/slab"
)

// DotGraph renders the current topology as a Graphviz DOT document, one
// node per live vertex and one edge per live connection (spec.md §6).
func (ns *NodeSet) DotGraph() string {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	g := dot.NewGraph(dot.Directed)
	g.Attr("rankdir", "LR")

	seen := make(map[NodeHandle]dot.Node)
	nodeFor := func(h NodeHandle) dot.Node {
		if n, ok := seen[h]; ok {
			return n
		}
		label := h.String()
		if rec := ns.nodes.Get(h.h); rec != nil {
			label = fmt.Sprintf("%s\\nkind %d", label, rec.kindIdx)
		}
		n := g.Node(h.String()).Label(label)
		seen[h] = n
		return n
	}

	ns.nodes.Each(func(_ slab.Handle, rec *nodeRecord) {
		if rec.alive {
			nodeFor(rec.handle)
		}
	})

	for src := range ns.outHeads {
		h, ok := ns.outHeads[src]
		for ok {
			rec := ns.conns.Get(h.h)
			if rec == nil {
				break
			}
			g.Edge(nodeFor(rec.src), nodeFor(rec.dst), fmt.Sprintf("%d->%d", rec.srcPort, rec.dstPort.Port))
			next := rec.nextOut
			if next.IsDefault() {
				break
			}
			h, ok = next, true
		}
	}

	return g.String()
}
