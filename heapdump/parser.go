// ABOUTME: Parser interface for heap dump formats and the Dump graph they produce
// ABOUTME: A Dump is a graph plus the heap metadata recorded with the snapshot

package heapdump

import (
	"io"

	"github.com/prateek/somheap/graph"
	"github.com/prateek/somheap/heap"
)

// Parser is the interface for heap dump parsers
type Parser interface {
	// CanParse reports whether r starts with this parser's format. r only holds a
	// prefix of the dump.
	CanParse(r io.Reader) bool

	// Parse reads a whole dump from its first byte
	Parse(r io.Reader) (graph.Graph, error)
}

// Dump is the graph read from a heap dump together with the state of the heap it was
// taken from.
type Dump struct {
	*graph.MemGraph
	Epoch    uint64 // collections performed before the snapshot
	HeapSize uint64 // capacity of one space
	Used     uint64 // bytes in use in the active space
}

func newDump() *Dump { return &Dump{MemGraph: graph.NewMemGraph()} }

// FromSnapshot builds the graph of a heap snapshot. Roots keep the order of their slots
// with duplicates dropped.
func FromSnapshot(s *heap.Snapshot) *Dump {
	d := newDump()
	d.Epoch, d.HeapSize, d.Used = s.Epoch, uint64(s.HeapSize), uint64(s.Used)
	for _, info := range s.Objects {
		obj := &graph.Object{
			ID:   graph.ObjID(info.Ref),
			Kind: info.Kind,
			Size: uint64(info.Size),
			Ptrs: make([]graph.ObjID, 0, len(info.Ptrs)),
		}
		for _, p := range info.Ptrs {
			obj.Ptrs = append(obj.Ptrs, graph.ObjID(p))
		}
		d.AddObject(obj)
	}
	seen := make(map[graph.ObjID]bool)
	roots := graph.Roots{IDs: []graph.ObjID{}}
	for _, r := range s.Roots {
		id := graph.ObjID(r.Ref)
		if !seen[id] {
			seen[id] = true
			roots.IDs = append(roots.IDs, id)
		}
	}
	d.SetRoots(roots)
	return d
}
