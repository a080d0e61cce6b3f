// ABOUTME: BFS search for reference chains from an object back to the roots
// ABOUTME: Returns the shortest chains first and never revisits an object within a chain

package graph

import "slices"

// Path is a reference chain from an object to a root.
type Path struct {
	IDs []ObjID // target first, root last
}

// PathsToRoots finds up to maxPaths chains that keep from alive, shortest first.
func PathsToRoots(g Graph, from ObjID, maxPaths int) []Path {
	if maxPaths <= 0 {
		return nil
	}

	reverse := BuildReverseEdges(g)
	isRoot := make(map[ObjID]bool)
	for _, id := range g.GetRoots().IDs {
		isRoot[id] = true
	}
	if isRoot[from] {
		return []Path{{IDs: []ObjID{from}}}
	}

	var result []Path
	queue := [][]ObjID{{from}}
	for len(queue) > 0 && len(result) < maxPaths {
		chain := queue[0]
		queue = queue[1:]

		for _, referrer := range reverse[chain[len(chain)-1]] {
			if slices.Contains(chain, referrer) {
				continue
			}
			next := append(slices.Clone(chain), referrer)
			if !isRoot[referrer] {
				queue = append(queue, next)
				continue
			}
			result = append(result, Path{IDs: next})
			if len(result) >= maxPaths {
				break
			}
		}
	}
	return result
}
