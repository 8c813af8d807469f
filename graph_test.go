package dataflowgraph_test

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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dataflowgraph "github.com/brunotm/dataflowgraph"
	"github.com/brunotm/dataflowgraph/mock"
	"github.com/brunotm/dataflowgraph/types"
)

func newTestSet(t *testing.T) *dataflowgraph.NodeSet {
	t.Helper()
	ns, err := dataflowgraph.NewNodeSet(dataflowgraph.NewConfig(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ns.Dispose() })
	return ns
}

func TestAddPipeline(t *testing.T) {
	ns := newTestSet(t)

	aKind := ns.RegisterKind(&mock.ConstantSource{Value: 2})
	bKind := ns.RegisterKind(&mock.ConstantSource{Value: 3})
	addKind := ns.RegisterKind(&mock.Adder{})

	a, err := ns.CreateNode(aKind)
	require.NoError(t, err)
	b, err := ns.CreateNode(bKind)
	require.NoError(t, err)
	add, err := ns.CreateNode(addKind)
	require.NoError(t, err)

	_, err = ns.Connect(a, 0, add, dataflowgraph.InputPortArrayID{Port: 0, Index: dataflowgraph.InvalidArrayIndex}, types.TraversalData)
	require.NoError(t, err)
	_, err = ns.Connect(b, 0, add, dataflowgraph.InputPortArrayID{Port: 1, Index: dataflowgraph.InvalidArrayIndex}, types.TraversalData)
	require.NoError(t, err)

	gv, err := ns.CreateGraphValue(add, 0)
	require.NoError(t, err)

	fence, err := ns.Update(context.Background())
	require.NoError(t, err)
	require.NoError(t, fence.Wait(context.Background()))

	raw, err := ns.GetValueBlocking(context.Background(), gv)
	require.NoError(t, err)
	require.Len(t, raw, 8)
	assert.InDelta(t, 5.0, bitsToFloat(raw), 0.0001)
}

// TestCycleDetectedByCache checks that connections are never rejected for
// closing a cycle: both connects here succeed, and the cycle only shows up
// as an error surfaced by the topology cache once it is recomputed
// (spec.md §3, §7, §8 scenario 2).
func TestCycleDetectedByCache(t *testing.T) {
	ns := newTestSet(t)
	addKind := ns.RegisterKind(&mock.Adder{})

	n1, err := ns.CreateNode(addKind)
	require.NoError(t, err)
	n2, err := ns.CreateNode(addKind)
	require.NoError(t, err)

	_, err = ns.Connect(n1, 0, n2, dataflowgraph.InputPortArrayID{Port: 0, Index: dataflowgraph.InvalidArrayIndex}, types.TraversalData)
	require.NoError(t, err)

	_, err = ns.Connect(n2, 0, n1, dataflowgraph.InputPortArrayID{Port: 0, Index: dataflowgraph.InvalidArrayIndex}, types.TraversalData)
	require.NoError(t, err, "Connect must accept a cycle-forming edge; detection happens in the cache")

	_, err = ns.Update(context.Background())
	require.NoError(t, err, "a cycle degrades the cache, not Update itself")

	errs := ns.TopologyErrors()
	require.Len(t, errs, 1)
	assert.Equal(t, types.CycleDetected, errs[0].Kind)
}

func TestDuplicateConnectionRejected(t *testing.T) {
	ns := newTestSet(t)
	addKind := ns.RegisterKind(&mock.Adder{})

	n1, err := ns.CreateNode(addKind)
	require.NoError(t, err)
	n2, err := ns.CreateNode(addKind)
	require.NoError(t, err)

	dst := dataflowgraph.InputPortArrayID{Port: 0, Index: dataflowgraph.InvalidArrayIndex}
	_, err = ns.Connect(n1, 0, n2, dst, types.TraversalData)
	require.NoError(t, err)

	_, err = ns.Connect(n1, 0, n2, dst, types.TraversalData)
	require.Error(t, err)
	var dfgErr *dataflowgraph.Error
	require.ErrorAs(t, err, &dfgErr)
	assert.Equal(t, types.AlreadyConnected, dfgErr.Kind)
}

func TestBufferProducerConsumer(t *testing.T) {
	ns := newTestSet(t)

	producerKind := ns.RegisterKind(&mock.BufferProducer{Elements: 4})
	consumerKind := ns.RegisterKind(&mock.BufferConsumer{})

	producer, err := ns.CreateNode(producerKind)
	require.NoError(t, err)
	consumer, err := ns.CreateNode(consumerKind)
	require.NoError(t, err)

	_, err = ns.Connect(producer, 0, consumer, dataflowgraph.InputPortArrayID{Port: 0, Index: dataflowgraph.InvalidArrayIndex}, types.TraversalData)
	require.NoError(t, err)

	gv, err := ns.CreateGraphValue(consumer, 0)
	require.NoError(t, err)

	fence, err := ns.Update(context.Background())
	require.NoError(t, err)
	require.NoError(t, fence.Wait(context.Background()))

	raw, err := ns.GetValueBlocking(context.Background(), gv)
	require.NoError(t, err)
	// ramp 0+1+2+3 == 6
	assert.InDelta(t, 6.0, bitsToFloat(raw), 0.0001)
}

func TestPortArrayShrinkDisconnectsTail(t *testing.T) {
	ns := newTestSet(t)
	srcKind := ns.RegisterKind(&mock.ConstantSource{Value: 1})
	dstKind := ns.RegisterKind(&mock.Adder{})

	src, err := ns.CreateNode(srcKind)
	require.NoError(t, err)
	dst, err := ns.CreateNode(dstKind)
	require.NoError(t, err)

	require.NoError(t, ns.SetPortArraySize(dst, 0, 3))

	h, err := ns.Connect(src, 0, dst, dataflowgraph.InputPortArrayID{Port: 0, Index: 2}, types.TraversalData)
	require.NoError(t, err)

	require.NoError(t, ns.SetPortArraySize(dst, 0, 1))

	err = ns.Disconnect(h)
	require.Error(t, err, "connection at index 2 should already be gone after the shrink")
}

func TestMessageDeliveryAndDestroy(t *testing.T) {
	ns := newTestSet(t)
	counter := mock.NewMessageCounter()
	counterKind := ns.RegisterKind(counter)

	node, err := ns.CreateNode(counterKind)
	require.NoError(t, err)

	port := dataflowgraph.InputPortArrayID{Port: 0, Index: dataflowgraph.InvalidArrayIndex}
	require.NoError(t, ns.SendMessage(node, port, "ping"))
	assert.Equal(t, 1, counter.Count(node), "handle_message must run before SendMessage returns")
	require.NoError(t, ns.SendMessage(node, port, "ping"))
	assert.Equal(t, 2, counter.Count(node))

	_, err = ns.Update(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, counter.Count(node), "Update must not re-deliver already-handled messages")

	require.NoError(t, ns.DestroyNode(node))
	assert.Equal(t, 0, counter.Count(node), "Destroy must release the kind's own per-node bookkeeping")
}

func TestInputBatchTargetsNextRenderOnly(t *testing.T) {
	ns := newTestSet(t)
	addKind := ns.RegisterKind(&mock.Adder{})
	node, err := ns.CreateNode(addKind)
	require.NoError(t, err)

	port := dataflowgraph.InputPortArrayID{Port: 0, Index: dataflowgraph.InvalidArrayIndex}
	batchData := make([]byte, 8)
	h, err := ns.SubmitInputBatch(nil, node, port, batchData)
	require.NoError(t, err)

	dep, err := ns.GetBatchDependencies(h)
	require.NoError(t, err)
	assert.False(t, dep.Done(), "batch fence should not complete before its targeted render")

	_, err = ns.Update(context.Background())
	require.NoError(t, err)

	require.NoError(t, dep.Wait(context.Background()))
	assert.True(t, dep.Done())
}

func TestExecutionModelsAgree(t *testing.T) {
	for _, model := range []types.ExecutionModel{
		types.MaximallyParallel,
		types.SingleThreaded,
		types.Islands,
		types.Synchronous,
	} {
		model := model
		t.Run(model.String(), func(t *testing.T) {
			ns := newTestSet(t)
			ns.SetExecutionModel(model)

			aKind := ns.RegisterKind(&mock.ConstantSource{Value: 4})
			bKind := ns.RegisterKind(&mock.ConstantSource{Value: 5})
			addKind := ns.RegisterKind(&mock.Adder{})

			a, err := ns.CreateNode(aKind)
			require.NoError(t, err)
			b, err := ns.CreateNode(bKind)
			require.NoError(t, err)
			add, err := ns.CreateNode(addKind)
			require.NoError(t, err)

			_, err = ns.Connect(a, 0, add, dataflowgraph.InputPortArrayID{Port: 0, Index: dataflowgraph.InvalidArrayIndex}, types.TraversalData)
			require.NoError(t, err)
			_, err = ns.Connect(b, 0, add, dataflowgraph.InputPortArrayID{Port: 1, Index: dataflowgraph.InvalidArrayIndex}, types.TraversalData)
			require.NoError(t, err)

			gv, err := ns.CreateGraphValue(add, 0)
			require.NoError(t, err)

			fence, err := ns.Update(context.Background())
			require.NoError(t, err)
			require.NoError(t, fence.Wait(context.Background()))

			raw, err := ns.GetValueBlocking(context.Background(), gv)
			require.NoError(t, err)
			assert.InDelta(t, 9.0, bitsToFloat(raw), 0.0001)
		})
	}
}

func TestDotGraphIncludesConnectedNodes(t *testing.T) {
	ns := newTestSet(t)
	addKind := ns.RegisterKind(&mock.Adder{})
	n1, err := ns.CreateNode(addKind)
	require.NoError(t, err)
	n2, err := ns.CreateNode(addKind)
	require.NoError(t, err)
	_, err = ns.Connect(n1, 0, n2, dataflowgraph.InputPortArrayID{Port: 0, Index: dataflowgraph.InvalidArrayIndex}, types.TraversalData)
	require.NoError(t, err)

	doc := ns.DotGraph()
	assert.Contains(t, doc, "digraph")
	assert.Contains(t, doc, n1.String())
	assert.Contains(t, doc, n2.String())
}

func bitsToFloat(raw []byte) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(raw))
}
