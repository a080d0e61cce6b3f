// ABOUTME: Transitive closure of the root set over the object graph
// ABOUTME: Tells live objects from garbage the way a collection would

package graph

import "slices"

// Reachable returns the set of objects reachable from the roots of g. References to
// addresses that are not objects of g are ignored.
func Reachable(g Graph) map[ObjID]bool {
	seen := make(map[ObjID]bool)
	var queue []ObjID
	for _, id := range g.GetRoots().IDs {
		if g.GetObject(id) != nil && !seen[id] {
			seen[id] = true
			queue = append(queue, id)
		}
	}
	for len(queue) > 0 {
		obj := g.GetObject(queue[0])
		queue = queue[1:]
		for _, target := range obj.Ptrs {
			if seen[target] || g.GetObject(target) == nil {
				continue
			}
			seen[target] = true
			queue = append(queue, target)
		}
	}
	return seen
}

// Garbage returns the objects not reachable from the roots, in address order.
func Garbage(g Graph) []ObjID {
	live := Reachable(g)
	var dead []ObjID
	g.ForEachObject(func(obj *Object) {
		if !live[obj.ID] {
			dead = append(dead, obj.ID)
		}
	})
	slices.Sort(dead)
	return dead
}

// Dangling returns, per object, the references that point at no object of g. A
// non-empty result on a snapshot taken right after a collection means a root was missed.
func Dangling(g Graph) map[ObjID][]ObjID {
	out := make(map[ObjID][]ObjID)
	g.ForEachObject(func(obj *Object) {
		for _, target := range obj.Ptrs {
			if g.GetObject(target) == nil {
				out[obj.ID] = append(out[obj.ID], target)
			}
		}
	})
	return out
}
