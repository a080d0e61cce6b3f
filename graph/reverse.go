// ABOUTME: Builds reverse edges for graph traversal
// ABOUTME: Maps each object to its referrers, in ascending address order

package graph

import "slices"

// ReverseEdges maps each object to the objects that point to it.
type ReverseEdges map[ObjID][]ObjID

// BuildReverseEdges creates the referrer lists of g. An object referencing the same
// target from several fields is listed once.
func BuildReverseEdges(g Graph) ReverseEdges {
	reverse := make(ReverseEdges)
	g.ForEachObject(func(obj *Object) {
		for _, target := range obj.Ptrs {
			reverse[target] = append(reverse[target], obj.ID)
		}
	})
	for target, referrers := range reverse {
		slices.Sort(referrers)
		reverse[target] = slices.Compact(referrers)
	}
	return reverse
}
