// ABOUTME: Tests for the paths-to-roots search
// ABOUTME: Validates BFS ordering, cycle handling and the path limit

package graph

import (
	"reflect"
	"testing"
)

func TestPathsToRoots(t *testing.T) {
	// 1 (root) -> 2 -> 3
	//               -> 4
	g := NewMemGraph()
	g.AddObject(&Object{ID: 1, Kind: "Frame", Ptrs: []ObjID{2}})
	g.AddObject(&Object{ID: 2, Kind: "Slice<Value>", Ptrs: []ObjID{3, 4}})
	g.AddObject(&Object{ID: 3, Kind: "Instance"})
	g.AddObject(&Object{ID: 4, Kind: "Instance"})
	g.SetRoots(Roots{IDs: []ObjID{1}})

	tests := []struct {
		name     string
		from     ObjID
		maxPaths int
		want     []Path
	}{
		{name: "root itself", from: 1, maxPaths: 5, want: []Path{{IDs: []ObjID{1}}}},
		{name: "one hop", from: 2, maxPaths: 5, want: []Path{{IDs: []ObjID{2, 1}}}},
		{name: "two hops", from: 3, maxPaths: 5, want: []Path{{IDs: []ObjID{3, 2, 1}}}},
		{name: "sibling", from: 4, maxPaths: 5, want: []Path{{IDs: []ObjID{4, 2, 1}}}},
		{name: "zero limit", from: 4, maxPaths: 0, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			paths := PathsToRoots(g, tt.from, tt.maxPaths)
			if !reflect.DeepEqual(paths, tt.want) {
				t.Errorf("PathsToRoots() = %v, want %v", paths, tt.want)
			}
		})
	}
}

func TestPathsWithCycles(t *testing.T) {
	// 1 (root) -> 2 -> 3 -> 2
	g := NewMemGraph()
	g.AddObject(&Object{ID: 1, Ptrs: []ObjID{2}})
	g.AddObject(&Object{ID: 2, Ptrs: []ObjID{3}})
	g.AddObject(&Object{ID: 3, Ptrs: []ObjID{2}})
	g.SetRoots(Roots{IDs: []ObjID{1}})

	paths := PathsToRoots(g, 3, 10)
	want := []Path{{IDs: []ObjID{3, 2, 1}}}
	if !reflect.DeepEqual(paths, want) {
		t.Errorf("PathsToRoots() = %v, want %v", paths, want)
	}
}

func TestPathsShortestFirstAndLimited(t *testing.T) {
	// 5 is held by root 1 directly and by root 2 through 3 and 4
	g := NewMemGraph()
	g.AddObject(&Object{ID: 1, Ptrs: []ObjID{5}})
	g.AddObject(&Object{ID: 2, Ptrs: []ObjID{3}})
	g.AddObject(&Object{ID: 3, Ptrs: []ObjID{4}})
	g.AddObject(&Object{ID: 4, Ptrs: []ObjID{5}})
	g.AddObject(&Object{ID: 5})
	g.SetRoots(Roots{IDs: []ObjID{1, 2}})

	all := PathsToRoots(g, 5, 10)
	want := []Path{{IDs: []ObjID{5, 1}}, {IDs: []ObjID{5, 4, 3, 2}}}
	if !reflect.DeepEqual(all, want) {
		t.Errorf("PathsToRoots() = %v, want %v", all, want)
	}

	if got := PathsToRoots(g, 5, 1); !reflect.DeepEqual(got, want[:1]) {
		t.Errorf("PathsToRoots(limit 1) = %v, want %v", got, want[:1])
	}
}

func TestPathsUnreachable(t *testing.T) {
	g := NewMemGraph()
	g.AddObject(&Object{ID: 1})
	g.AddObject(&Object{ID: 2})
	g.SetRoots(Roots{IDs: []ObjID{1}})

	if paths := PathsToRoots(g, 2, 3); len(paths) != 0 {
		t.Errorf("PathsToRoots() = %v, want none", paths)
	}
}
