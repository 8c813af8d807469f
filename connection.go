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
	"encoding/binary"

	wyhash "github.com/dgryski/go-wyhash"

	"github.com/brunotm/dataflowgraph/types"
)

// connectionRecord is one edge in the connection database (spec.md §4.2):
// a typed link from one output port to one input port (or input port array
// element), threaded into two doubly-linked lists so that both "every
// connection leaving this node" and "every connection entering this node"
// are O(1) to walk without scanning the whole set. traversalFlags
// classifies which hierarchy (or hierarchies) this edge participates in
// for topology-cache purposes (spec.md §3 "traversal_flags: u32").
type connectionRecord struct {
	handle  ConnectionHandle
	src     NodeHandle
	srcPort PortID
	dst     NodeHandle
	dstPort InputPortArrayID
	flags   types.TraversalFlags
	key     uint64
	alive   bool

	prevOut, nextOut ConnectionHandle
	prevIn, nextIn   ConnectionHandle
}

// connectionKey hashes the (src, srcPort, dst, dstPort, flags) tuple with
// wyhash, used to reject duplicate connections in O(1) instead of scanning
// a node's connection list (spec.md §4.2 "same src/dst/port/port/flag
// subset").
func connectionKey(src NodeHandle, srcPort PortID, dst NodeHandle, dstPort InputPortArrayID, flags types.TraversalFlags) uint64 {
	var buf [24]byte
	binary.LittleEndian.PutUint32(buf[0:4], src.h.Index)
	binary.LittleEndian.PutUint32(buf[4:8], src.h.Version)
	binary.LittleEndian.PutUint16(buf[8:10], uint16(srcPort))
	binary.LittleEndian.PutUint32(buf[10:14], dst.h.Index)
	binary.LittleEndian.PutUint32(buf[14:18], dst.h.Version)
	binary.LittleEndian.PutUint16(buf[18:20], uint16(dstPort.Port))
	binary.LittleEndian.PutUint32(buf[20:24], uint32(flags))
	return wyhash.Hash(buf[:], uint64(dstPort.Index)+1)
}

// Connect links an output port to an input port (or one input port array
// element), tagged with the traversal hierarchies it participates in.
// Connecting would-be-duplicate endpoints (same src/dst/port/port/flags)
// fails with AlreadyConnected (spec.md §6). Connections never reject a
// cycle here: the topology cache detects one during recomputation instead
// (spec.md §3, §4.3). A destination input port forwarded by its node is
// resolved first, so the connection is recorded against the node/port the
// forwarding targets.
func (ns *NodeSet) Connect(src NodeHandle, srcPort PortID, dst NodeHandle, dstPort InputPortArrayID, flags types.TraversalFlags) (ConnectionHandle, error) {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	if !ns.nodeAlive(src) || !ns.nodeAlive(dst) {
		return ConnectionHandle{}, errInvalidHandle
	}

	for {
		dstRec := ns.nodes.Get(dst.h)
		if dstRec == nil {
			break
		}
		entry, forwarded := dstRec.forwards.resolve(dstPort.Port, true)
		if !forwarded {
			break
		}
		dst, dstPort = entry.targetNode, InputPortArrayID{Port: entry.targetPort, Index: dstPort.Index}
	}

	key := connectionKey(src, srcPort, dst, dstPort, flags)
	if _, dup := ns.connIndex[key]; dup {
		return ConnectionHandle{}, errAlreadyConnected
	}

	ns.topology.addEdge(src, srcPort, dst, dstPort, flags)

	h, rec := ns.conns.Allocate()
	handle := ConnectionHandle{h: h}
	*rec = connectionRecord{
		handle:  handle,
		src:     src,
		srcPort: srcPort,
		dst:     dst,
		dstPort: dstPort,
		flags:   flags,
		key:     key,
		alive:   true,
	}

	ns.linkOut(src, handle)
	ns.linkIn(dst, handle)
	ns.connIndex[key] = handle

	ns.log.Debugw("connected", "src", src.String(), "dst", dst.String())
	return handle, nil
}

// Disconnect removes a single connection.
func (ns *NodeSet) Disconnect(h ConnectionHandle) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	return ns.disconnectLocked(h)
}

func (ns *NodeSet) disconnectLocked(h ConnectionHandle) error {
	rec := ns.conns.Get(h.h)
	if rec == nil || !rec.alive {
		return errConnectionMissing
	}

	ns.unlinkOut(rec.src, h)
	ns.unlinkIn(rec.dst, h)
	delete(ns.connIndex, rec.key)
	ns.topology.removeEdge(rec.src, rec.srcPort, rec.dst, rec.dstPort, rec.flags)

	rec.alive = false
	ns.conns.Release(h.h)
	return nil
}

// disconnectAllLocked removes every connection touching node, both as
// source and as destination. Callers hold ns.mu.
func (ns *NodeSet) disconnectAllLocked(node NodeHandle) {
	for h, ok := ns.outHeads[node]; ok; h, ok = ns.outHeads[node] {
		_ = ns.disconnectLocked(h)
	}
	for h, ok := ns.inHeads[node]; ok; h, ok = ns.inHeads[node] {
		_ = ns.disconnectLocked(h)
	}
}

// disconnectArrayTailLocked disconnects every connection feeding indices
// in [newSize, oldSize) of an input port array, after a shrink.
func (ns *NodeSet) disconnectArrayTailLocked(node NodeHandle, port PortID, newSize, oldSize uint16) {
	var toDrop []ConnectionHandle
	for h, ok := ns.inHeads[node]; ok; {
		rec := ns.conns.Get(h.h)
		if rec == nil {
			break
		}
		if rec.dstPort.Port == port && rec.dstPort.Index != InvalidArrayIndex && rec.dstPort.Index >= newSize {
			toDrop = append(toDrop, h)
		}
		next := rec.nextIn
		if next.IsDefault() {
			break
		}
		h, ok = next, true
	}
	for _, h := range toDrop {
		_ = ns.disconnectLocked(h)
	}
}

// sourceOf finds the connection feeding input id on node, if any, and
// resolves its source through any output-side port forwarding chain so
// callers always land on the node/port actually holding the data
// (spec.md §4.6).
func (ns *NodeSet) sourceOf(node NodeHandle, id InputPortArrayID) (NodeHandle, PortID, bool) {
	h, ok := ns.inHeads[node]
	for ok {
		rec := ns.conns.Get(h.h)
		if rec == nil {
			break
		}
		if rec.dstPort == id {
			src, srcPort := rec.src, rec.srcPort
			for {
				srcRec := ns.nodes.Get(src.h)
				if srcRec == nil {
					break
				}
				entry, resolved := srcRec.forwards.resolve(srcPort, false)
				if !resolved {
					break
				}
				src, srcPort = entry.targetNode, entry.targetPort
			}
			return src, srcPort, true
		}
		next := rec.nextIn
		if next.IsDefault() {
			break
		}
		h, ok = next, true
	}
	return NodeHandle{}, 0, false
}

// linkOut prepends h to node's output-side connection list.
func (ns *NodeSet) linkOut(node NodeHandle, h ConnectionHandle) {
	if ns.outHeads == nil {
		ns.outHeads = make(map[NodeHandle]ConnectionHandle)
	}
	rec := ns.conns.Get(h.h)
	if old, ok := ns.outHeads[node]; ok {
		rec.nextOut = old
		if oldRec := ns.conns.Get(old.h); oldRec != nil {
			oldRec.prevOut = h
		}
	}
	ns.outHeads[node] = h
}

// linkIn prepends h to node's input-side connection list.
func (ns *NodeSet) linkIn(node NodeHandle, h ConnectionHandle) {
	if ns.inHeads == nil {
		ns.inHeads = make(map[NodeHandle]ConnectionHandle)
	}
	rec := ns.conns.Get(h.h)
	if old, ok := ns.inHeads[node]; ok {
		rec.nextIn = old
		if oldRec := ns.conns.Get(old.h); oldRec != nil {
			oldRec.prevIn = h
		}
	}
	ns.inHeads[node] = h
}

func (ns *NodeSet) unlinkOut(node NodeHandle, h ConnectionHandle) {
	rec := ns.conns.Get(h.h)
	if rec == nil {
		return
	}
	if rec.prevOut.IsDefault() {
		if rec.nextOut.IsDefault() {
			delete(ns.outHeads, node)
		} else {
			ns.outHeads[node] = rec.nextOut
		}
	} else if prevRec := ns.conns.Get(rec.prevOut.h); prevRec != nil {
		prevRec.nextOut = rec.nextOut
	}
	if nextRec := ns.conns.Get(rec.nextOut.h); nextRec != nil {
		nextRec.prevOut = rec.prevOut
	}
}

func (ns *NodeSet) unlinkIn(node NodeHandle, h ConnectionHandle) {
	rec := ns.conns.Get(h.h)
	if rec == nil {
		return
	}
	if rec.prevIn.IsDefault() {
		if rec.nextIn.IsDefault() {
			delete(ns.inHeads, node)
		} else {
			ns.inHeads[node] = rec.nextIn
		}
	} else if prevRec := ns.conns.Get(rec.prevIn.h); prevRec != nil {
		prevRec.nextIn = rec.nextIn
	}
	if nextRec := ns.conns.Get(rec.nextIn.h); nextRec != nil {
		nextRec.prevIn = rec.prevIn
	}
}
