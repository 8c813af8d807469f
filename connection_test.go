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
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunotm/dataflowgraph/types"
)

// passthroughKind is a minimal in-package test double with one scalar
// input and one scalar output, used to exercise the connection database
// without pulling in the mock subpackage.
type passthroughKind struct{}

func (passthroughKind) Init(ctx *InitContext) error       { return nil }
func (passthroughKind) Destroy(ctx *DestroyContext) error { return nil }

func (passthroughKind) Ports() PortSet {
	f := reflect.TypeOf(float64(0))
	return PortSet{
		Inputs:  []InputPortDescription{{Port: 0, Usage: types.Data, ValueType: f}},
		Outputs: []OutputPortDescription{{Port: 0, Usage: types.Data, ValueType: f}},
	}
}

func newConnectionTestSet(t *testing.T) (*NodeSet, int) {
	t.Helper()
	ns, err := NewNodeSet(NewConfig(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ns.Dispose() })
	return ns, ns.RegisterKind(passthroughKind{})
}

func TestConnectLinksBothDirectionLists(t *testing.T) {
	ns, kind := newConnectionTestSet(t)

	src, err := ns.CreateNode(kind)
	require.NoError(t, err)
	dst, err := ns.CreateNode(kind)
	require.NoError(t, err)

	dstPort := InputPortArrayID{Port: 0, Index: InvalidArrayIndex}
	h, err := ns.Connect(src, 0, dst, dstPort, types.TraversalData)
	require.NoError(t, err)

	outHead, ok := ns.outHeads[src]
	require.True(t, ok)
	assert.Equal(t, h, outHead)

	inHead, ok := ns.inHeads[dst]
	require.True(t, ok)
	assert.Equal(t, h, inHead)

	foundSrc, foundPort, ok := ns.sourceOf(dst, dstPort)
	require.True(t, ok)
	assert.Equal(t, src, foundSrc)
	assert.Equal(t, PortID(0), foundPort)
}

func TestDisconnectUnlinksFromBothLists(t *testing.T) {
	ns, kind := newConnectionTestSet(t)

	src, err := ns.CreateNode(kind)
	require.NoError(t, err)
	dst, err := ns.CreateNode(kind)
	require.NoError(t, err)

	dstPort := InputPortArrayID{Port: 0, Index: InvalidArrayIndex}
	h, err := ns.Connect(src, 0, dst, dstPort, types.TraversalData)
	require.NoError(t, err)

	require.NoError(t, ns.Disconnect(h))

	_, ok := ns.outHeads[src]
	assert.False(t, ok)
	_, ok = ns.inHeads[dst]
	assert.False(t, ok)

	_, _, ok = ns.sourceOf(dst, dstPort)
	assert.False(t, ok)

	assert.NotContains(t, ns.connIndex, connectionKey(src, 0, dst, dstPort, types.TraversalData))
}

func TestConnectionListSurvivesMultipleEdgesFromOneSource(t *testing.T) {
	ns, kind := newConnectionTestSet(t)

	src, err := ns.CreateNode(kind)
	require.NoError(t, err)
	d1, err := ns.CreateNode(kind)
	require.NoError(t, err)
	d2, err := ns.CreateNode(kind)
	require.NoError(t, err)

	port := InputPortArrayID{Port: 0, Index: InvalidArrayIndex}
	h1, err := ns.Connect(src, 0, d1, port, types.TraversalData)
	require.NoError(t, err)
	h2, err := ns.Connect(src, 0, d2, port, types.TraversalData)
	require.NoError(t, err)

	// Walk the full out-side list from src and confirm both survive.
	seen := map[ConnectionHandle]bool{}
	head, ok := ns.outHeads[src]
	for ok {
		seen[head] = true
		rec := ns.conns.Get(head.h)
		next := rec.nextOut
		if next.IsDefault() {
			break
		}
		head, ok = next, true
	}
	assert.True(t, seen[h1])
	assert.True(t, seen[h2])

	require.NoError(t, ns.Disconnect(h1))
	assert.False(t, ns.conns.Get(h1.h) != nil && ns.conns.Get(h1.h).alive)
	rec2 := ns.conns.Get(h2.h)
	require.NotNil(t, rec2)
	assert.True(t, rec2.alive)
}
