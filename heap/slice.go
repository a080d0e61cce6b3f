// ABOUTME: Slice objects: variable-length homogeneous arrays on the managed heap
// ABOUTME: Element count and kind are fixed at allocation; Value elements are traced

package heap

import (
	"fmt"

	"github.com/prateek/somheap/value"
)

// SliceInit fills a freshly allocated slice. It runs after the allocation, and any
// collection it caused, has completed, so it must read references from rooted slots
// rather than from copies taken before the call.
type SliceInit func(m *Manager, ref value.Ref)

// AllocSlice allocates a slice of count elements of kind. Value elements start as nil,
// other kinds start zeroed. init may be nil.
func (m *Manager) AllocSlice(kind ElemKind, count int, init SliceInit) (value.Ref, error) {
	if count < 0 || count > maxCount {
		return 0, fmt.Errorf("heap: slice of %d elements: %w", count, ErrInvalidSize)
	}
	if kind.Width() == 0 {
		return 0, fmt.Errorf("heap: slice of unknown element kind %d: %w", kind, ErrInvalidSize)
	}
	ref, err := m.allocate(Header{Shape: ShapeSlice, Elem: kind, Count: count})
	if err != nil {
		return 0, err
	}
	if init != nil {
		init(m, ref)
	}
	return ref, nil
}

// AllocValues allocates a Value slice holding vals. vals must not contain references:
// a collection during the allocation would leave them stale. Use AllocSlice with an
// initializer reading rooted slots for reference elements.
func (m *Manager) AllocValues(vals ...value.Value) (value.Ref, error) {
	for i, v := range vals {
		if v.IsRef() && v.Ref() != 0 {
			return 0, fmt.Errorf("heap: AllocValues element %d is a reference; root it and use AllocSlice", i)
		}
	}
	return m.AllocSlice(ElemValue, len(vals), func(m *Manager, ref value.Ref) {
		for i, v := range vals {
			m.SetElem(ref, i, v)
		}
	})
}

// AllocBytes allocates a byte slice holding a copy of b.
func (m *Manager) AllocBytes(b []byte) (value.Ref, error) {
	return m.AllocSlice(ElemByte, len(b), func(m *Manager, ref value.Ref) {
		copy(m.Bytes(ref), b)
	})
}

// AllocLiterals allocates a literal-record slice holding lits.
func (m *Manager) AllocLiterals(lits []Literal) (value.Ref, error) {
	return m.AllocSlice(ElemLiteral, len(lits), func(m *Manager, ref value.Ref) {
		for i, lit := range lits {
			m.SetLiteral(ref, i, lit)
		}
	})
}

// Len returns the element count of a slice object.
func (m *Manager) Len(ref value.Ref) int {
	_, hdr := m.object("len", ref)
	if hdr.Shape != ShapeSlice {
		panic(&RefError{Op: "len", Ref: ref, Reason: "not a slice"})
	}
	return hdr.Count
}

// ElemKindOf returns the element kind of a slice object.
func (m *Manager) ElemKindOf(ref value.Ref) ElemKind {
	_, hdr := m.object("elem kind", ref)
	if hdr.Shape != ShapeSlice {
		panic(&RefError{Op: "elem kind", Ref: ref, Reason: "not a slice"})
	}
	return hdr.Elem
}

// Elem returns element i of a Value slice.
func (m *Manager) Elem(ref value.Ref, i int) value.Value {
	sp, hdr := m.slice("elem", ref, ElemValue)
	checkIndex("elem", ref, i, hdr.Count)
	return value.Value(le.Uint64(wordAt(sp, ref, i)))
}

// SetElem stores v into element i of a Value slice.
func (m *Manager) SetElem(ref value.Ref, i int, v value.Value) {
	sp, hdr := m.slice("set elem", ref, ElemValue)
	checkIndex("set elem", ref, i, hdr.Count)
	le.PutUint64(wordAt(sp, ref, i), uint64(v))
}

// Literal returns record i of a literal slice.
func (m *Manager) Literal(ref value.Ref, i int) Literal {
	sp, hdr := m.slice("literal", ref, ElemLiteral)
	checkIndex("literal", ref, i, hdr.Count)
	return Literal{
		Kind:    le.Uint64(wordAt(sp, ref, 2*i)),
		Payload: le.Uint64(wordAt(sp, ref, 2*i+1)),
	}
}

// SetLiteral stores lit into record i of a literal slice.
func (m *Manager) SetLiteral(ref value.Ref, i int, lit Literal) {
	sp, hdr := m.slice("set literal", ref, ElemLiteral)
	checkIndex("set literal", ref, i, hdr.Count)
	le.PutUint64(wordAt(sp, ref, 2*i), lit.Kind)
	le.PutUint64(wordAt(sp, ref, 2*i+1), lit.Payload)
}

// Bytes returns the contents of a byte slice. The returned slice aliases the heap and
// is only valid until the next allocation.
func (m *Manager) Bytes(ref value.Ref) []byte {
	sp, hdr := m.slice("bytes", ref, ElemByte)
	return sp.bytes(ref+HeaderSize, hdr.Count)
}
