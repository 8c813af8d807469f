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

import "github.com/brunotm/dataflowgraph/internal/slab"

// PortID identifies an input or output port on a node kind. InvalidPort is
// the sentinel for "no port" (spec.md §3).
type PortID uint16

// InvalidPort is the sentinel port ID.
const InvalidPort PortID = 0xFFFF

// InvalidArrayIndex marks a PortID as not being a port-array element.
const InvalidArrayIndex uint16 = 0xFFFF

// InputPortArrayID addresses a single element of an input port array, or a
// plain input port when Index is InvalidArrayIndex.
type InputPortArrayID struct {
	Port  PortID
	Index uint16
}

// NodeHandle identifies a node instance within a NodeSet.
type NodeHandle struct {
	h slab.Handle
}

// IsDefault reports whether h was never assigned by a NodeSet.
func (h NodeHandle) IsDefault() bool { return h.h.IsDefault() }

func (h NodeHandle) String() string { return "node" + h.h.String() }

// GraphValueHandle identifies a graph value created with NodeSet.CreateGraphValue.
type GraphValueHandle struct {
	h slab.Handle
}

// IsDefault reports whether h was never assigned.
func (h GraphValueHandle) IsDefault() bool { return h.h.IsDefault() }

func (h GraphValueHandle) String() string { return "graphvalue" + h.h.String() }

// BatchHandle identifies an input batch submitted with NodeSet.SubmitInputBatch.
type BatchHandle struct {
	h slab.Handle
}

// IsDefault reports whether h was never assigned.
func (h BatchHandle) IsDefault() bool { return h.h.IsDefault() }

func (h BatchHandle) String() string { return "batch" + h.h.String() }

// ConnectionHandle identifies a live connection returned by Connect.
type ConnectionHandle struct {
	h slab.Handle
}

// IsDefault reports whether h was never assigned.
func (h ConnectionHandle) IsDefault() bool { return h.h.IsDefault() }

func (h ConnectionHandle) String() string { return "connection" + h.h.String() }
