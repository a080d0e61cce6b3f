// ABOUTME: Read-only snapshot of the active space and the root set
// ABOUTME: Feeds the heap dump writers and the graph analyses

package heap

import "github.com/prateek/somheap/value"

// ObjectInfo describes one object of a snapshot.
type ObjectInfo struct {
	Ref   value.Ref
	Kind  string
	Shape Shape
	Count int
	Size  int
	Ptrs  []value.Ref
}

// RootInfo is one non-null reference held in a root slot.
type RootInfo struct {
	Ref value.Ref
	Tag value.Tag
}

// Snapshot is a copy of the object graph at one epoch.
type Snapshot struct {
	Epoch    uint64
	HeapSize int
	Used     int
	Objects  []ObjectInfo
	Roots    []RootInfo
}

// Snapshot records every object of the active space and every root reference. It
// neither allocates in the managed heap nor collects.
func (m *Manager) Snapshot() *Snapshot {
	sp := m.activeSpace("snapshot")
	s := &Snapshot{Epoch: m.epoch, HeapSize: sp.Size(), Used: sp.Used()}
	for ref, hdr := range m.Objects() {
		info := ObjectInfo{
			Ref:   ref,
			Kind:  m.heap.layouts.kindName(hdr),
			Shape: hdr.Shape,
			Count: hdr.Count,
			Size:  hdr.Size(),
		}
		for _, target := range m.References(ref) {
			info.Ptrs = append(info.Ptrs, target)
		}
		s.Objects = append(s.Objects, info)
	}
	for slot := range m.roots() {
		if v := *slot; v.IsRef() && v.Ref() != 0 {
			s.Roots = append(s.Roots, RootInfo{Ref: v.Ref(), Tag: v.Tag()})
		}
	}
	return s
}
