// ABOUTME: Tests for the graph data structures and interfaces
// ABOUTME: Validates object storage, replacement, iteration and roots

package graph

import (
	"reflect"
	"testing"
)

func TestGraphInterface(t *testing.T) {
	g := NewMemGraph()
	g.AddObject(&Object{ID: 0x10, Kind: "Instance", Size: 24, Ptrs: []ObjID{0x28}})
	g.AddObject(&Object{ID: 0x28, Kind: "Slice<Value>", Size: 16})

	got := g.GetObject(0x10)
	if got == nil || got.Kind != "Instance" {
		t.Fatalf("GetObject(0x10) = %+v", got)
	}
	if g.NumObjects() != 2 {
		t.Errorf("NumObjects() = %d, want 2", g.NumObjects())
	}

	count := 0
	g.ForEachObject(func(*Object) { count++ })
	if count != 2 {
		t.Errorf("ForEachObject visited %d objects, want 2", count)
	}

	g.SetRoots(Roots{IDs: []ObjID{0x10}})
	if roots := g.GetRoots(); !reflect.DeepEqual(roots.IDs, []ObjID{0x10}) {
		t.Errorf("GetRoots() = %v", roots.IDs)
	}
}

func TestAddObjectReplaces(t *testing.T) {
	g := NewMemGraph()
	g.AddObject(&Object{ID: 8, Kind: "Instance", Size: 16})
	g.AddObject(&Object{ID: 8, Kind: "Class", Size: 48})

	if g.NumObjects() != 1 {
		t.Errorf("NumObjects() = %d, want 1", g.NumObjects())
	}
	if got := g.GetObject(8); got.Kind != "Class" {
		t.Errorf("GetObject(8).Kind = %s, want Class", got.Kind)
	}
	if g.GetObject(999) != nil {
		t.Error("GetObject of a missing address should be nil")
	}
}

func TestSortedIDs(t *testing.T) {
	g := NewMemGraph()
	for _, id := range []ObjID{0x40, 0x8, 0x20} {
		g.AddObject(&Object{ID: id})
	}
	if got, want := SortedIDs(g), []ObjID{0x8, 0x20, 0x40}; !reflect.DeepEqual(got, want) {
		t.Errorf("SortedIDs() = %v, want %v", got, want)
	}
}

func TestForEachObjectVisitsInAddressOrder(t *testing.T) {
	g := NewMemGraph()
	for _, id := range []ObjID{0x10, 0x30, 0x18, 0x8} {
		g.AddObject(&Object{ID: id})
	}

	var seen []ObjID
	g.ForEachObject(func(obj *Object) {
		seen = append(seen, obj.ID)
		if obj.ID == 0x10 {
			// adding during a walk does not disturb it
			g.AddObject(&Object{ID: 0x4})
			g.AddObject(&Object{ID: 0x18, Kind: "Class"})
		}
	})
	if want := []ObjID{0x8, 0x10, 0x18, 0x30}; !reflect.DeepEqual(seen, want) {
		t.Errorf("ForEachObject order = %v, want %v", seen, want)
	}
	if got, want := SortedIDs(g), []ObjID{0x4, 0x8, 0x10, 0x18, 0x30}; !reflect.DeepEqual(got, want) {
		t.Errorf("SortedIDs() after adds = %v, want %v", got, want)
	}
	if got := g.GetObject(0x18); got == nil || got.Kind != "Class" {
		t.Errorf("GetObject(0x18) = %+v, want the replacement", got)
	}
	if g.GetObject(0x4) == nil {
		t.Error("GetObject(0x4) = nil after resorting")
	}
}

func TestBuildReverseEdges(t *testing.T) {
	g := NewMemGraph()
	g.AddObject(&Object{ID: 3, Ptrs: []ObjID{1, 1}})
	g.AddObject(&Object{ID: 2, Ptrs: []ObjID{1}})
	g.AddObject(&Object{ID: 1})

	reverse := BuildReverseEdges(g)
	if got, want := reverse[1], []ObjID{2, 3}; !reflect.DeepEqual(got, want) {
		t.Errorf("referrers of 1 = %v, want %v", got, want)
	}
	if len(reverse[2]) != 0 {
		t.Errorf("referrers of 2 = %v, want none", reverse[2])
	}
}
