// ABOUTME: Tests for converting live heap snapshots into graphs
// ABOUTME: Runs the graph analyses over a real heap before and after a collection

package heapdump

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prateek/somheap/graph"
	"github.com/prateek/somheap/heap"
	"github.com/prateek/somheap/value"
)

func TestFromSnapshot(t *testing.T) {
	h, err := heap.New(heap.Config{HeapSize: 4096, Plan: heap.PlanSemiSpace, Backing: heap.BackingGo})
	require.NoError(t, err)
	defer h.Release()

	str, err := h.AllocBytes([]byte("name"))
	require.NoError(t, err)
	_, err = h.AllocBytes([]byte("garbage"))
	require.NoError(t, err)
	arr, err := h.AllocValues(value.Nil, value.MustInteger(7))
	require.NoError(t, err)
	h.SetElem(arr, 0, value.Reference(value.TagString, str))

	root := value.Reference(value.TagArray, arr)
	same := root
	unregister := h.AddRoots(heap.Slots(&root, &same))
	defer unregister()

	d := FromSnapshot(h.Snapshot())
	assert.Equal(t, 3, d.NumObjects())
	assert.Equal(t, []graph.ObjID{graph.ObjID(arr)}, d.GetRoots().IDs, "duplicate root slots collapse")
	assert.Equal(t, "Slice<Value>", d.GetObject(graph.ObjID(arr)).Kind)
	assert.Equal(t, []graph.ObjID{graph.ObjID(str)}, d.GetObject(graph.ObjID(arr)).Ptrs)
	assert.Len(t, graph.Garbage(d), 1)

	_, err = h.CollectNow()
	require.NoError(t, err)
	after := FromSnapshot(h.Snapshot())
	assert.Equal(t, uint64(1), after.Epoch)
	assert.Equal(t, 2, after.NumObjects())
	assert.Empty(t, graph.Garbage(after))
	assert.Empty(t, graph.Dangling(after))
	assert.Equal(t, uint64(h.Stats().BytesInUse), after.Used)

	var buf bytes.Buffer
	require.NoError(t, WriteSomdump(&buf, after))
	g, err := Open(&buf)
	require.NoError(t, err)
	retained := graph.RetainedSize(g)
	assert.Equal(t, after.Used, retained[graph.ObjID(root.Ref())])
}
