// ABOUTME: Property test for the copying collector over random object graphs
// ABOUTME: Survivors of a collection must be exactly the set reachable from the roots

package heap_test

import (
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prateek/somheap/graph"
	"github.com/prateek/somheap/heap"
	"github.com/prateek/somheap/value"
)

// snapshotGraph converts a snapshot into a graph keyed by heap address.
func snapshotGraph(s *heap.Snapshot) *graph.MemGraph {
	g := graph.NewMemGraph()
	for _, o := range s.Objects {
		obj := &graph.Object{ID: graph.ObjID(o.Ref), Kind: o.Kind, Size: uint64(o.Size)}
		for _, p := range o.Ptrs {
			obj.Ptrs = append(obj.Ptrs, graph.ObjID(p))
		}
		g.AddObject(obj)
	}
	var roots graph.Roots
	for _, r := range s.Roots {
		roots.IDs = append(roots.IDs, graph.ObjID(r.Ref))
	}
	g.SetRoots(roots)
	return g
}

// objectID reads the identity stamped into field 0 or element 0.
func objectID(t *testing.T, m *heap.Manager, ref value.Ref) int64 {
	var v value.Value
	if m.Header(ref).Shape == heap.ShapeSlice {
		v = m.Elem(ref, 0)
	} else {
		v = m.Field(ref, 0)
	}
	id, ok := v.AsInteger()
	require.True(t, ok)
	return id
}

// TestSurvivorsAreExactlyTheReachableSet builds random object graphs mixing fixed
// objects and Value slices, then checks that a collection keeps precisely the
// transitive closure of the roots.
func TestSurvivorsAreExactlyTheReachableSet(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 40; trial++ {
		m, err := heap.New(heap.Config{HeapSize: 64 << 10, Plan: heap.PlanSemiSpace, Backing: heap.BackingGo})
		require.NoError(t, err)

		n := 1 + rng.Intn(40)
		refs := make([]value.Value, n)
		for i := range refs {
			if rng.Intn(2) == 0 {
				ref, err := m.AllocObject(heap.LayoutInstance, 4)
				require.NoError(t, err)
				m.SetField(ref, 0, value.MustInteger(int64(i)))
				refs[i] = value.Reference(value.TagInstance, ref)
			} else {
				ref, err := m.AllocSlice(heap.ElemValue, 4, nil)
				require.NoError(t, err)
				m.SetElem(ref, 0, value.MustInteger(int64(i)))
				refs[i] = value.Reference(value.TagArray, ref)
			}
		}
		for _, v := range refs {
			for slot := 1; slot < 4; slot++ {
				if rng.Intn(3) == 0 {
					continue
				}
				target := refs[rng.Intn(n)]
				if m.Header(v.Ref()).Shape == heap.ShapeSlice {
					m.SetElem(v.Ref(), slot, target)
				} else {
					m.SetField(v.Ref(), slot, target)
				}
			}
		}

		roots := make([]value.Value, 0, n)
		for _, v := range refs {
			if rng.Intn(4) == 0 {
				roots = append(roots, v)
			}
		}
		m.AddRoots(heap.RootsFunc(func(yield func(*value.Value) bool) {
			for i := range roots {
				if !yield(&roots[i]) {
					return
				}
			}
		}))

		g := snapshotGraph(m.Snapshot())
		var want []int64
		for id := range graph.Reachable(g) {
			want = append(want, objectID(t, m, value.Ref(id)))
		}

		_, err = m.CollectNow()
		require.NoError(t, err)
		require.NoError(t, m.Verify())

		var got []int64
		for ref := range m.Objects() {
			got = append(got, objectID(t, m, ref))
		}
		slices.Sort(want)
		slices.Sort(got)
		assert.Equal(t, want, got, "trial %d", trial)
		assert.Equal(t, len(want), m.Stats().ObjectsCopiedLastCollection, "trial %d", trial)
		assert.Empty(t, graph.Dangling(snapshotGraph(m.Snapshot())), "trial %d", trial)

		require.NoError(t, m.Release())
	}
}
