// ABOUTME: Immediate dominators of the object graph, rooted at a synthetic super-root
// ABOUTME: Uses the iterative dominance algorithm of Cooper, Harvey and Kennedy

package graph

// Dominators computes the immediate dominator of every object reachable from the roots.
// The super-root (ID 0) points at every root; roots map to 0. Unreachable objects are
// absent from the result.
func Dominators(g Graph) map[ObjID]ObjID {
	succ := func(id ObjID) []ObjID {
		if id == 0 {
			return g.GetRoots().IDs
		}
		return g.GetObject(id).Ptrs
	}

	// iterative DFS from the super-root recording postorder
	postNum := map[ObjID]int{}
	var order []ObjID // postorder
	type frame struct {
		id   ObjID
		next int
	}
	visited := map[ObjID]bool{0: true}
	stack := []frame{{id: 0}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		ptrs := succ(top.id)
		if top.next < len(ptrs) {
			w := ptrs[top.next]
			top.next++
			if w != 0 && !visited[w] && g.GetObject(w) != nil {
				visited[w] = true
				stack = append(stack, frame{id: w})
			}
			continue
		}
		postNum[top.id] = len(order)
		order = append(order, top.id)
		stack = stack[:len(stack)-1]
	}

	preds := make(map[ObjID][]ObjID, len(order))
	for _, v := range order {
		for _, w := range succ(v) {
			if _, ok := postNum[w]; ok && w != 0 {
				preds[w] = append(preds[w], v)
			}
		}
	}

	idom := map[ObjID]ObjID{0: 0}
	intersect := func(a, b ObjID) ObjID {
		for a != b {
			for postNum[a] < postNum[b] {
				a = idom[a]
			}
			for postNum[b] < postNum[a] {
				b = idom[b]
			}
		}
		return a
	}

	for changed := true; changed; {
		changed = false
		// reverse postorder, skipping the super-root which comes last in postorder
		for i := len(order) - 2; i >= 0; i-- {
			b := order[i]
			var newIdom ObjID
			found := false
			for _, p := range preds[b] {
				if _, ok := idom[p]; !ok {
					continue
				}
				if !found {
					newIdom, found = p, true
					continue
				}
				newIdom = intersect(p, newIdom)
			}
			if cur, ok := idom[b]; !ok || cur != newIdom {
				idom[b] = newIdom
				changed = true
			}
		}
	}

	delete(idom, 0)
	return idom
}

// DominatorTree inverts immediate dominators: each node maps to the nodes it
// immediately dominates. The super-root is always present.
func DominatorTree(idom map[ObjID]ObjID) map[ObjID][]ObjID {
	tree := map[ObjID][]ObjID{0: {}}
	for node, dom := range idom {
		tree[dom] = append(tree[dom], node)
	}
	return tree
}

// DominatorPath returns node followed by its chain of dominators, ending at the
// super-root. An object absent from idom yields just itself.
func DominatorPath(idom map[ObjID]ObjID, node ObjID) []ObjID {
	path := []ObjID{node}
	for cur := node; ; {
		dom, ok := idom[cur]
		if !ok {
			return path
		}
		path = append(path, dom)
		if dom == 0 {
			return path
		}
		cur = dom
	}
}
