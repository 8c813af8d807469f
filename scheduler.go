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

	jump "github.com/dgryski/go-jump"
	"golang.org/x/sync/errgroup"

	"github.com/brunotm/dataflowgraph/types"
)

// lanes bounds the conceptual worker-lane count used to tag concurrently
// scheduled kernels for structured logging; it has no bearing on the
// actual goroutine count errgroup uses.
const lanes = 32

// lane deterministically assigns a node to a worker lane with a
// consistent-hash jump so the same node tends to land on the same lane
// across ticks, which keeps per-lane log volume and any future per-lane
// metrics stable as the live set churns (spec.md §4.7).
func lane(h NodeHandle) int32 {
	return jump.Hash(uint64(h.h.Index)<<32|uint64(h.h.Version), lanes)
}

// schedule runs every live kernel node's Execute once, in the order and
// concurrency dictated by the configured execution model (spec.md §4.7).
func (ns *NodeSet) schedule(ctx context.Context) error {
	switch ns.model {
	case types.SingleThreaded:
		return ns.scheduleSingleThreaded(ctx)
	case types.Islands:
		return ns.scheduleIslands(ctx)
	case types.Synchronous:
		// Synchronous differs from SingleThreaded only in spirit (no
		// future intent to ever run it off the calling goroutine); the
		// render is already fully inline by the time schedule runs, so
		// there is nothing left to wait for here.
		return ns.scheduleSingleThreaded(ctx)
	default:
		return ns.scheduleMaximallyParallel(ctx)
	}
}

func (ns *NodeSet) executeOne(ctx context.Context, h NodeHandle) error {
	kn := ns.render.nodes[h]
	if kn == nil || kn.entry.kernel == nil {
		return nil
	}
	ns.log.Debugw("executing kernel", "node", h.String(), "lane", lane(h))
	kctx := &KernelContext{node: kn}
	kn.entry.kernel.Execute(kctx)
	return nil
}

// scheduleSingleThreaded runs the full topological order on the calling
// goroutine.
func (ns *NodeSet) scheduleSingleThreaded(ctx context.Context) error {
	for _, h := range ns.topology.Order() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := ns.executeOne(ctx, h); err != nil {
			return err
		}
	}
	return nil
}

// scheduleMaximallyParallel groups nodes into dependency levels (every
// node in a level has all its predecessors in earlier levels) and runs
// each level concurrently, with a barrier between levels.
func (ns *NodeSet) scheduleMaximallyParallel(ctx context.Context) error {
	levels := ns.topology.levels()
	for _, level := range levels {
		g, gctx := errgroup.WithContext(ctx)
		for _, h := range level {
			h := h
			g.Go(func() error { return ns.executeOne(gctx, h) })
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
	return nil
}

// scheduleIslands runs each connected component concurrently, executing
// each island's own nodes sequentially in its local depth-first order. The
// partition comes from the version-counted cache rather than a direct
// recompute, so SetExecutionModel's strategy switch and any cycle detected
// during recompute are honored here too (spec.md §4.3, §4.7).
func (ns *NodeSet) scheduleIslands(ctx context.Context) error {
	islands := ns.topology.Islands()
	g, gctx := errgroup.WithContext(ctx)
	for _, island := range islands {
		island := island
		g.Go(func() error {
			for _, h := range island {
				if err := gctx.Err(); err != nil {
					return err
				}
				if err := ns.executeOne(gctx, h); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}
