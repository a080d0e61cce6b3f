// ABOUTME: Heap walking and consistency checking
// ABOUTME: Checks contiguity, headers and that every traced reference lands on an object

package heap

import (
	"iter"

	"github.com/prateek/somheap/value"
)

// Objects walks the active space in address order. The walk stops at the first word
// that is not a valid header.
func (m *Manager) Objects() iter.Seq2[value.Ref, Header] {
	sp := m.activeSpace("objects")
	return func(yield func(value.Ref, Header) bool) {
		for off := 0; off < sp.Used(); {
			ref := sp.Base() + value.Ref(off)
			hdr, ok := decodeHeader(le.Uint64(sp.bytes(ref, HeaderSize)))
			if !ok || off+hdr.Size() > sp.Used() {
				return
			}
			if !yield(ref, hdr) {
				return
			}
			off += hdr.Size()
		}
	}
}

// References yields the traced, non-null references stored in the object at ref with
// their field or element index.
func (m *Manager) References(ref value.Ref) iter.Seq2[int, value.Ref] {
	sp, hdr := m.object("references", ref)
	first := m.firstTraced(hdr)
	return func(yield func(int, value.Ref) bool) {
		for i := first; i < hdr.Count; i++ {
			v := value.Value(le.Uint64(wordAt(sp, ref, i)))
			if v.IsRef() && v.Ref() != 0 {
				if !yield(i-first, v.Ref()) {
					return
				}
			}
		}
	}
}

// firstTraced is the index of the first traced word, hdr.Count if there is none.
func (m *Manager) firstTraced(hdr Header) int {
	if hdr.Shape == ShapeSlice {
		if hdr.Elem.Traced() {
			return 0
		}
		return hdr.Count
	}
	if layout, ok := m.heap.layouts.Get(hdr.Layout); ok {
		return min(layout.RawWords, hdr.Count)
	}
	return hdr.Count
}

// Verify walks the active space and the root set and returns a *VerifyError for the
// first inconsistency it finds.
func (m *Manager) Verify() error {
	sp := m.activeSpace("verify")
	starts := make(map[value.Ref]Header)
	var order []value.Ref
	for off := 0; off < sp.Used(); {
		ref := sp.Base() + value.Ref(off)
		hdr, ok := decodeHeader(le.Uint64(sp.bytes(ref, HeaderSize)))
		switch {
		case !ok:
			return &VerifyError{Object: ref, Field: -1, Reason: "invalid header"}
		case off+hdr.Size() > sp.Used():
			return &VerifyError{Object: ref, Field: -1, Reason: "object overruns the allocation cursor"}
		case hdr.Shape == ShapeFixed:
			if _, known := m.heap.layouts.Get(hdr.Layout); !known {
				return &VerifyError{Object: ref, Field: -1, Reason: "unknown layout"}
			}
		}
		starts[ref] = hdr
		order = append(order, ref)
		off += hdr.Size()
	}

	for _, ref := range order {
		hdr := starts[ref]
		first := m.firstTraced(hdr)
		for i := first; i < hdr.Count; i++ {
			v := value.Value(le.Uint64(wordAt(sp, ref, i)))
			if !v.IsRef() || v.Ref() == 0 {
				continue
			}
			if _, ok := starts[v.Ref()]; !ok {
				return &VerifyError{Object: ref, Field: i - first, Target: v.Ref(), Reason: "does not point at an object"}
			}
		}
	}

	i := 0
	for slot := range m.roots() {
		v := *slot
		if v.IsRef() && v.Ref() != 0 {
			if _, ok := starts[v.Ref()]; !ok {
				return &VerifyError{Field: i, Target: v.Ref(), Reason: "does not point at an object"}
			}
		}
		i++
	}
	return nil
}
