package mock_test

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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dataflowgraph "github.com/brunotm/dataflowgraph"
	"github.com/brunotm/dataflowgraph/mock"
)

func TestPolledSourceEchoesUpdaterValue(t *testing.T) {
	ns, err := dataflowgraph.NewNodeSet(dataflowgraph.NewConfig(nil))
	require.NoError(t, err)
	defer ns.Dispose()

	values := make(chan float64, 1)
	kind := ns.RegisterKind(&mock.PolledSource{Values: values})

	node, err := ns.CreateNode(kind)
	require.NoError(t, err)

	gv, err := ns.CreateGraphValue(node, 0)
	require.NoError(t, err)

	values <- 42
	fence, err := ns.Update(context.Background())
	require.NoError(t, err)
	require.NoError(t, fence.Wait(context.Background()))

	raw, err := ns.GetValueBlocking(context.Background(), gv)
	require.NoError(t, err)
	require.Len(t, raw, 8)
}

func TestMessageCounterTracksPerNode(t *testing.T) {
	ns, err := dataflowgraph.NewNodeSet(dataflowgraph.NewConfig(nil))
	require.NoError(t, err)
	defer ns.Dispose()

	counter := mock.NewMessageCounter()
	kind := ns.RegisterKind(counter)

	n1, err := ns.CreateNode(kind)
	require.NoError(t, err)
	n2, err := ns.CreateNode(kind)
	require.NoError(t, err)

	port := dataflowgraph.InputPortArrayID{Port: 0, Index: dataflowgraph.InvalidArrayIndex}
	require.NoError(t, ns.SendMessage(n1, port, "a"))
	_, err = ns.Update(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, counter.Count(n1))
	assert.Equal(t, 0, counter.Count(n2), "messages sent to n1 must not bleed into n2's count")
}
