// ABOUTME: Retained sizes from the dominator tree
// ABOUTME: The retained size of an object is what a collection would free without it

package graph

import "slices"

// RetainedSize computes, for every reachable object, its own size plus the sizes of
// all objects it dominates.
func RetainedSize(g Graph) map[ObjID]uint64 {
	tree := DominatorTree(Dominators(g))

	// children are summed before parents: walk the tree in preorder, then
	// accumulate in reverse
	var preorder []ObjID
	stack := []ObjID{0}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		preorder = append(preorder, n)
		stack = append(stack, tree[n]...)
	}

	retained := make(map[ObjID]uint64, len(preorder))
	for i := len(preorder) - 1; i >= 0; i-- {
		n := preorder[i]
		if n == 0 {
			continue
		}
		size := g.GetObject(n).Size
		for _, child := range tree[n] {
			size += retained[child]
		}
		retained[n] = size
	}
	return retained
}

// Retained is one entry of a TopRetained listing.
type Retained struct {
	ID   ObjID
	Size uint64
}

// TopRetained returns the n objects with the largest retained size, ties broken by
// address.
func TopRetained(g Graph, n int) []Retained {
	sizes := RetainedSize(g)
	out := make([]Retained, 0, len(sizes))
	for id, size := range sizes {
		out = append(out, Retained{ID: id, Size: size})
	}
	slices.SortFunc(out, func(a, b Retained) int {
		switch {
		case a.Size != b.Size:
			if a.Size > b.Size {
				return -1
			}
			return 1
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	if n >= 0 && n < len(out) {
		out = out[:n]
	}
	return out
}
