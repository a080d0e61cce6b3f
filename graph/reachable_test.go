// ABOUTME: Tests for reachability, garbage and dangling reference detection
// ABOUTME: Covers cycles, multiple roots and references to missing objects

package graph

import (
	"reflect"
	"testing"
)

func TestReachable(t *testing.T) {
	tests := []struct {
		name  string
		build func(g *MemGraph)
		want  []ObjID
	}{
		{
			name: "chain",
			build: func(g *MemGraph) {
				g.AddObject(&Object{ID: 1, Ptrs: []ObjID{2}})
				g.AddObject(&Object{ID: 2, Ptrs: []ObjID{3}})
				g.AddObject(&Object{ID: 3})
				g.AddObject(&Object{ID: 4, Ptrs: []ObjID{1}})
				g.SetRoots(Roots{IDs: []ObjID{1}})
			},
			want: []ObjID{1, 2, 3},
		},
		{
			name: "cycle",
			build: func(g *MemGraph) {
				g.AddObject(&Object{ID: 1, Ptrs: []ObjID{2}})
				g.AddObject(&Object{ID: 2, Ptrs: []ObjID{1}})
				g.AddObject(&Object{ID: 3, Ptrs: []ObjID{3}})
				g.SetRoots(Roots{IDs: []ObjID{2}})
			},
			want: []ObjID{1, 2},
		},
		{
			name: "no roots",
			build: func(g *MemGraph) {
				g.AddObject(&Object{ID: 1})
			},
			want: nil,
		},
		{
			name: "root and edge to missing object",
			build: func(g *MemGraph) {
				g.AddObject(&Object{ID: 1, Ptrs: []ObjID{9}})
				g.SetRoots(Roots{IDs: []ObjID{1, 7}})
			},
			want: []ObjID{1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewMemGraph()
			tt.build(g)
			live := Reachable(g)

			var got []ObjID
			for _, id := range SortedIDs(g) {
				if live[id] {
					got = append(got, id)
				}
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Reachable() = %v, want %v", got, tt.want)
			}
			if len(live) != len(tt.want) {
				t.Errorf("Reachable() has %d entries, want %d", len(live), len(tt.want))
			}
		})
	}
}

func TestGarbage(t *testing.T) {
	g := NewMemGraph()
	g.AddObject(&Object{ID: 1, Ptrs: []ObjID{2}})
	g.AddObject(&Object{ID: 2})
	g.AddObject(&Object{ID: 5, Ptrs: []ObjID{4}})
	g.AddObject(&Object{ID: 4, Ptrs: []ObjID{5}})
	g.SetRoots(Roots{IDs: []ObjID{1}})

	if got, want := Garbage(g), []ObjID{4, 5}; !reflect.DeepEqual(got, want) {
		t.Errorf("Garbage() = %v, want %v", got, want)
	}
}

func TestDangling(t *testing.T) {
	g := NewMemGraph()
	g.AddObject(&Object{ID: 1, Ptrs: []ObjID{2, 9}})
	g.AddObject(&Object{ID: 2})

	want := map[ObjID][]ObjID{1: {9}}
	if got := Dangling(g); !reflect.DeepEqual(got, want) {
		t.Errorf("Dangling() = %v, want %v", got, want)
	}
}
