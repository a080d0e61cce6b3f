// ABOUTME: Graph interface and the address-ordered in-memory implementation
// ABOUTME: Objects are kept in heap order so walks over a snapshot are deterministic

package graph

import (
	"cmp"
	"slices"
	"sync"
)

// Graph is a heap object graph.
type Graph interface {
	// AddObject adds obj, replacing any object at the same address
	AddObject(obj *Object)

	// GetObject returns the object at id, nil if there is none
	GetObject(id ObjID) *Object

	NumObjects() int

	// ForEachObject calls fn for every object. MemGraph visits in address order;
	// other implementations may not.
	ForEachObject(fn func(*Object))

	SetRoots(roots Roots)
	GetRoots() Roots
}

// MemGraph is an in-memory Graph. Snapshots and dumps add objects in ascending address
// order, so appends normally keep objs sorted and the occasional out-of-order add only
// costs a sort on the next walk.
type MemGraph struct {
	mu     sync.RWMutex
	objs   []*Object     // ascending by ID once sorted is true
	at     map[ObjID]int // position in objs
	sorted bool
	roots  Roots
}

// NewMemGraph creates an empty graph.
func NewMemGraph() *MemGraph {
	return &MemGraph{at: make(map[ObjID]int), sorted: true}
}

// AddObject implements Graph.
func (g *MemGraph) AddObject(obj *Object) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if i, ok := g.at[obj.ID]; ok {
		g.objs = slices.Clone(g.objs)
		g.objs[i] = obj
		return
	}
	if n := len(g.objs); n > 0 && g.objs[n-1].ID > obj.ID {
		g.sorted = false
	}
	g.at[obj.ID] = len(g.objs)
	g.objs = append(g.objs, obj)
}

// GetObject implements Graph.
func (g *MemGraph) GetObject(id ObjID) *Object {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if i, ok := g.at[id]; ok {
		return g.objs[i]
	}
	return nil
}

// NumObjects implements Graph.
func (g *MemGraph) NumObjects() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.objs)
}

// ForEachObject implements Graph, lowest address first.
func (g *MemGraph) ForEachObject(fn func(*Object)) {
	for _, obj := range g.ordered() {
		fn(obj)
	}
}

// ordered returns the objects in address order. The returned slice is shared; later
// adds never write into it in place.
func (g *MemGraph) ordered() []*Object {
	g.mu.RLock()
	if g.sorted {
		objs := g.objs[:len(g.objs):len(g.objs)]
		g.mu.RUnlock()
		return objs
	}
	g.mu.RUnlock()

	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.sorted {
		objs := slices.Clone(g.objs)
		slices.SortFunc(objs, func(a, b *Object) int { return cmp.Compare(a.ID, b.ID) })
		for i, obj := range objs {
			g.at[obj.ID] = i
		}
		g.objs, g.sorted = objs, true
	}
	return g.objs[:len(g.objs):len(g.objs)]
}

func (g *MemGraph) sortedIDs() []ObjID {
	objs := g.ordered()
	ids := make([]ObjID, len(objs))
	for i, obj := range objs {
		ids[i] = obj.ID
	}
	return ids
}

// SetRoots implements Graph.
func (g *MemGraph) SetRoots(roots Roots) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.roots = roots
}

// GetRoots implements Graph.
func (g *MemGraph) GetRoots() Roots {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.roots
}

// SortedIDs returns the addresses of all objects of g in ascending order, which is
// allocation order within one space. Graphs built on MemGraph, including ones that
// embed it, answer without sorting.
func SortedIDs(g Graph) []ObjID {
	if mg, ok := g.(interface{ sortedIDs() []ObjID }); ok {
		return mg.sortedIDs()
	}
	ids := make([]ObjID, 0, g.NumObjects())
	g.ForEachObject(func(obj *Object) {
		ids = append(ids, obj.ID)
	})
	slices.Sort(ids)
	return ids
}
