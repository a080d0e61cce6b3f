// ABOUTME: Tests for immediate dominators and the dominator tree
// ABOUTME: Checks fixed topologies and cross-checks random graphs against node removal

package graph

import (
	"fmt"
	"math/rand"
	"reflect"
	"slices"
	"testing"
	"time"
)

func TestDominators(t *testing.T) {
	tests := []struct {
		name     string
		graph    func() Graph
		expected map[ObjID]ObjID
	}{
		{
			name: "linear chain",
			graph: func() Graph {
				g := NewMemGraph()
				g.AddObject(&Object{ID: 1})
				g.AddObject(&Object{ID: 2, Ptrs: []ObjID{3}})
				g.AddObject(&Object{ID: 3, Ptrs: []ObjID{4}})
				g.AddObject(&Object{ID: 4})
				g.SetRoots(Roots{IDs: []ObjID{2}})
				return g
			},
			expected: map[ObjID]ObjID{2: 0, 3: 2, 4: 3},
		},
		{
			name: "diamond",
			graph: func() Graph {
				g := NewMemGraph()
				g.AddObject(&Object{ID: 1, Ptrs: []ObjID{2, 3}})
				g.AddObject(&Object{ID: 2, Ptrs: []ObjID{4}})
				g.AddObject(&Object{ID: 3, Ptrs: []ObjID{4}})
				g.AddObject(&Object{ID: 4})
				g.SetRoots(Roots{IDs: []ObjID{1}})
				return g
			},
			expected: map[ObjID]ObjID{1: 0, 2: 1, 3: 1, 4: 1},
		},
		{
			name: "multiple paths",
			graph: func() Graph {
				g := NewMemGraph()
				g.AddObject(&Object{ID: 1, Ptrs: []ObjID{2, 3}})
				g.AddObject(&Object{ID: 2, Ptrs: []ObjID{4}})
				g.AddObject(&Object{ID: 3, Ptrs: []ObjID{4, 5}})
				g.AddObject(&Object{ID: 4, Ptrs: []ObjID{6}})
				g.AddObject(&Object{ID: 5, Ptrs: []ObjID{6}})
				g.AddObject(&Object{ID: 6})
				g.SetRoots(Roots{IDs: []ObjID{1}})
				return g
			},
			expected: map[ObjID]ObjID{1: 0, 2: 1, 3: 1, 4: 1, 5: 3, 6: 1},
		},
		{
			name: "unreachable objects are left out",
			graph: func() Graph {
				g := NewMemGraph()
				g.AddObject(&Object{ID: 1, Ptrs: []ObjID{2}})
				g.AddObject(&Object{ID: 2})
				g.AddObject(&Object{ID: 3, Ptrs: []ObjID{2}})
				g.SetRoots(Roots{IDs: []ObjID{1}})
				return g
			},
			expected: map[ObjID]ObjID{1: 0, 2: 1},
		},
		{
			name: "back edge",
			graph: func() Graph {
				g := NewMemGraph()
				g.AddObject(&Object{ID: 1, Ptrs: []ObjID{2}})
				g.AddObject(&Object{ID: 2, Ptrs: []ObjID{3}})
				g.AddObject(&Object{ID: 3, Ptrs: []ObjID{4}})
				g.AddObject(&Object{ID: 4, Ptrs: []ObjID{2, 5}})
				g.AddObject(&Object{ID: 5})
				g.SetRoots(Roots{IDs: []ObjID{1}})
				return g
			},
			expected: map[ObjID]ObjID{1: 0, 2: 1, 3: 2, 4: 3, 5: 4},
		},
		{
			name: "shared by two roots",
			graph: func() Graph {
				g := NewMemGraph()
				g.AddObject(&Object{ID: 1, Ptrs: []ObjID{3}})
				g.AddObject(&Object{ID: 2, Ptrs: []ObjID{3}})
				g.AddObject(&Object{ID: 3})
				g.SetRoots(Roots{IDs: []ObjID{1, 2}})
				return g
			},
			expected: map[ObjID]ObjID{1: 0, 2: 0, 3: 0},
		},
		{
			name: "root also referenced from the heap",
			graph: func() Graph {
				g := NewMemGraph()
				g.AddObject(&Object{ID: 1, Ptrs: []ObjID{2}})
				g.AddObject(&Object{ID: 2, Ptrs: []ObjID{1, 3}})
				g.AddObject(&Object{ID: 3})
				g.SetRoots(Roots{IDs: []ObjID{1}})
				return g
			},
			expected: map[ObjID]ObjID{1: 0, 2: 1, 3: 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Dominators(tt.graph()); !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("Dominators() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestDominatorTree(t *testing.T) {
	g := NewMemGraph()
	g.AddObject(&Object{ID: 1, Ptrs: []ObjID{2, 3}})
	g.AddObject(&Object{ID: 2, Ptrs: []ObjID{4}})
	g.AddObject(&Object{ID: 3, Ptrs: []ObjID{4, 5}})
	g.AddObject(&Object{ID: 4})
	g.AddObject(&Object{ID: 5})
	g.SetRoots(Roots{IDs: []ObjID{1}})

	tree := DominatorTree(Dominators(g))
	expected := map[ObjID][]ObjID{
		0: {1},
		1: {2, 3, 4},
		2: nil,
		3: {5},
		4: nil,
		5: nil,
	}
	for parent, want := range expected {
		got := slices.Clone(tree[parent])
		slices.Sort(got)
		if !slices.Equal(got, want) {
			t.Errorf("node %d: children = %v, want %v", parent, got, want)
		}
	}
}

func TestDominatorPath(t *testing.T) {
	idom := map[ObjID]ObjID{1: 0, 2: 1, 3: 2}

	if got, want := DominatorPath(idom, 3), []ObjID{3, 2, 1, 0}; !reflect.DeepEqual(got, want) {
		t.Errorf("DominatorPath(3) = %v, want %v", got, want)
	}
	if got, want := DominatorPath(idom, 9), []ObjID{9}; !reflect.DeepEqual(got, want) {
		t.Errorf("DominatorPath(9) = %v, want %v", got, want)
	}
}

// reachableWithout is the reachable set of g when the object removed is taken out.
func reachableWithout(g Graph, removed ObjID) map[ObjID]bool {
	seen := map[ObjID]bool{}
	var queue []ObjID
	for _, id := range g.GetRoots().IDs {
		if id != removed && g.GetObject(id) != nil && !seen[id] {
			seen[id] = true
			queue = append(queue, id)
		}
	}
	for len(queue) > 0 {
		obj := g.GetObject(queue[0])
		queue = queue[1:]
		for _, w := range obj.Ptrs {
			if w != removed && !seen[w] && g.GetObject(w) != nil {
				seen[w] = true
				queue = append(queue, w)
			}
		}
	}
	return seen
}

func TestDominatorsMatchNodeRemoval(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 30; trial++ {
		n := 2 + rng.Intn(25)
		g := NewMemGraph()
		for i := 1; i <= n; i++ {
			obj := &Object{ID: ObjID(i)}
			for k := rng.Intn(4); k > 0; k-- {
				obj.Ptrs = append(obj.Ptrs, ObjID(1+rng.Intn(n)))
			}
			g.AddObject(obj)
		}
		var roots []ObjID
		for i := 1; i <= n; i++ {
			if rng.Intn(5) == 0 {
				roots = append(roots, ObjID(i))
			}
		}
		g.SetRoots(Roots{IDs: roots})

		idom := Dominators(g)
		live := Reachable(g)
		if len(idom) != len(live) {
			t.Fatalf("trial %d: %d dominators for %d reachable objects", trial, len(idom), len(live))
		}

		// d strictly dominates v iff removing d disconnects v
		strict := map[ObjID][]ObjID{}
		for d := range live {
			without := reachableWithout(g, d)
			for v := range live {
				if v != d && !without[v] {
					strict[v] = append(strict[v], d)
				}
			}
		}
		for v := range live {
			chain := DominatorPath(idom, v)[1:]
			got := slices.DeleteFunc(slices.Clone(chain), func(id ObjID) bool { return id == 0 })
			want := strict[v]
			slices.Sort(got)
			slices.Sort(want)
			if !slices.Equal(got, want) {
				t.Errorf("trial %d: dominators of %d = %v, want %v", trial, v, got, want)
			}
		}
	}
}

func TestDominatorsPerformance(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping performance test in short mode")
	}

	for _, n := range []int{1000, 10000, 100000} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			g := NewMemGraph()
			for i := 1; i <= n; i++ {
				obj := &Object{ID: ObjID(i)}
				if i > 1 {
					obj.Ptrs = append(obj.Ptrs, ObjID((i-2)/10+1))
				}
				for j := 1; j <= 10 && i*10+j <= n; j++ {
					obj.Ptrs = append(obj.Ptrs, ObjID(i*10+j))
				}
				g.AddObject(obj)
			}
			g.SetRoots(Roots{IDs: []ObjID{1}})

			start := time.Now()
			idom := Dominators(g)
			elapsed := time.Since(start)

			if len(idom) != n {
				t.Errorf("got %d dominators, want %d", len(idom), n)
			}
			t.Logf("n=%d: %v", n, elapsed)
		})
	}
}
