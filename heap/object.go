// ABOUTME: Heap object model: header encoding, layouts and field access
// ABOUTME: Fixed-field objects and variable-length slice objects share one header word

package heap

import (
	"encoding/binary"
	"fmt"

	"github.com/prateek/somheap/value"
)

// HeaderSize is the size of the header word in front of every object.
const HeaderSize = WordSize

// Shape distinguishes fixed-field objects from slice objects.
type Shape uint8

const (
	ShapeFixed Shape = 1
	ShapeSlice Shape = 2
)

func (s Shape) String() string {
	switch s {
	case ShapeFixed:
		return "fixed"
	case ShapeSlice:
		return "slice"
	}
	return fmt.Sprintf("Shape(%d)", uint8(s))
}

// ElemKind is the element type of a slice object.
type ElemKind uint8

const (
	// ElemValue elements are tagged values and are traced by the collector.
	ElemValue ElemKind = 1
	// ElemLiteral elements are opaque 16-byte literal records.
	ElemLiteral ElemKind = 2
	// ElemByte elements are raw bytes.
	ElemByte ElemKind = 3
)

// Width is the size in bytes of one element.
func (k ElemKind) Width() int {
	switch k {
	case ElemValue:
		return WordSize
	case ElemLiteral:
		return 2 * WordSize
	case ElemByte:
		return 1
	}
	return 0
}

// Traced reports whether elements of this kind may hold references.
func (k ElemKind) Traced() bool { return k == ElemValue }

func (k ElemKind) String() string {
	switch k {
	case ElemValue:
		return "Value"
	case ElemLiteral:
		return "Literal"
	case ElemByte:
		return "Byte"
	}
	return fmt.Sprintf("ElemKind(%d)", uint8(k))
}

// Literal is an opaque record stored in ElemLiteral slices. The bytecode backend
// decides what Kind and Payload mean; the collector copies them as bytes.
type Literal struct {
	Kind    uint64
	Payload uint64
}

// Kind is the layout part of an allocation request.
type Kind struct {
	Shape  Shape
	Layout LayoutID // fixed objects
	Elem   ElemKind // slice objects
}

// ObjectKind is the Kind of a fixed object with the given layout.
func ObjectKind(l LayoutID) Kind { return Kind{Shape: ShapeFixed, Layout: l} }

// SliceKind is the Kind of a slice with the given element type.
func SliceKind(e ElemKind) Kind { return Kind{Shape: ShapeSlice, Elem: e} }

// Header is the decoded header word.
//
//	byte 0     shape
//	byte 1     layout id (fixed) or element kind (slice)
//	bytes 2-3  reserved
//	bytes 4-7  count: words (fixed) or elements (slice)
type Header struct {
	Shape  Shape
	Layout LayoutID
	Elem   ElemKind
	Count  int
}

// PayloadSize is the unaligned size of the data after the header.
func (h Header) PayloadSize() int {
	if h.Shape == ShapeSlice {
		return h.Count * h.Elem.Width()
	}
	return h.Count * WordSize
}

// Size is the total footprint of the object, header included.
func (h Header) Size() int { return HeaderSize + alignUp(h.PayloadSize()) }

func (h Header) encode() uint64 {
	code := uint64(h.Layout)
	if h.Shape == ShapeSlice {
		code = uint64(h.Elem)
	}
	return uint64(h.Shape) | code<<8 | uint64(uint32(h.Count))<<32
}

func decodeHeader(word uint64) (Header, bool) {
	h := Header{Shape: Shape(word), Count: int(word >> 32)}
	code := uint8(word >> 8)
	switch h.Shape {
	case ShapeFixed:
		h.Layout = LayoutID(code)
		return h, h.Layout != 0
	case ShapeSlice:
		h.Elem = ElemKind(code)
		return h, h.Elem.Width() != 0
	}
	return h, false
}

func alignUp(n int) int { return (n + WordSize - 1) &^ (WordSize - 1) }

const maxCount = 1<<32 - 1

// LayoutID names a fixed-object layout.
type LayoutID uint8

// Layout tells the collector which words of a fixed object are references: the first
// RawWords words are opaque, every word after them is a tagged value.
type Layout struct {
	ID       LayoutID
	Name     string
	RawWords int
}

// Builtin layouts, one per object kind of the shared object model.
const (
	LayoutClass     LayoutID = 1 // class, superclass, name, method dictionary, fields...
	LayoutInstance  LayoutID = 2 // class, fields...
	LayoutMethod    LayoutID = 3 // raw: arity; holder, signature, body...
	LayoutBlock     LayoutID = 4 // block info, captured frame
	LayoutBlockInfo LayoutID = 5 // raw: params, locals; method, literals...
	LayoutFrame     LayoutID = 6 // raw: pc, stack depth; prev, method, args, locals, stack

	firstCustomLayout LayoutID = 16
)

// Layouts is the registry of fixed-object layouts known to a Manager.
type Layouts struct {
	byID [256]*Layout
	next LayoutID
}

func newLayouts() *Layouts {
	l := &Layouts{next: firstCustomLayout}
	for _, b := range []Layout{
		{ID: LayoutClass, Name: "Class"},
		{ID: LayoutInstance, Name: "Instance"},
		{ID: LayoutMethod, Name: "Method", RawWords: 1},
		{ID: LayoutBlock, Name: "Block"},
		{ID: LayoutBlockInfo, Name: "BlockInfo", RawWords: 2},
		{ID: LayoutFrame, Name: "Frame", RawWords: 2},
	} {
		b := b
		l.byID[b.ID] = &b
	}
	return l
}

// Register adds a layout and returns its id.
func (l *Layouts) Register(name string, rawWords int) (LayoutID, error) {
	if rawWords < 0 {
		return 0, fmt.Errorf("heap: layout %q: negative raw word count", name)
	}
	if l.next == 0 {
		return 0, fmt.Errorf("heap: layout %q: layout table full", name)
	}
	id := l.next
	l.byID[id] = &Layout{ID: id, Name: name, RawWords: rawWords}
	l.next++
	return id, nil
}

// Get returns the layout registered under id.
func (l *Layouts) Get(id LayoutID) (*Layout, bool) {
	layout := l.byID[id]
	return layout, layout != nil
}

// kindName is used in snapshots and error messages.
func (l *Layouts) kindName(h Header) string {
	if h.Shape == ShapeSlice {
		return "Slice<" + h.Elem.String() + ">"
	}
	if layout, ok := l.Get(h.Layout); ok {
		return layout.Name
	}
	return fmt.Sprintf("Layout(%d)", h.Layout)
}

var le = binary.LittleEndian

// object checks that ref denotes an object of the active space and returns its header.
func (m *Manager) object(op string, ref value.Ref) (*Space, Header) {
	sp := m.activeSpace(op)
	if !sp.Contains(ref) || sp.offset(ref)%WordSize != 0 {
		panic(&RefError{Op: op, Ref: ref, Reason: "not an address in the active space"})
	}
	hdr, ok := decodeHeader(le.Uint64(sp.bytes(ref, HeaderSize)))
	if !ok || sp.offset(ref)+hdr.Size() > sp.Used() {
		panic(&RefError{Op: op, Ref: ref, Reason: "no object header at this address"})
	}
	return sp, hdr
}

func (m *Manager) fixed(op string, ref value.Ref) (*Space, Header, *Layout) {
	sp, hdr := m.object(op, ref)
	if hdr.Shape != ShapeFixed {
		panic(&RefError{Op: op, Ref: ref, Reason: "not a fixed object"})
	}
	layout, ok := m.heap.layouts.Get(hdr.Layout)
	if !ok {
		panic(&RefError{Op: op, Ref: ref, Reason: fmt.Sprintf("unknown layout %d", hdr.Layout)})
	}
	return sp, hdr, layout
}

func (m *Manager) slice(op string, ref value.Ref, kind ElemKind) (*Space, Header) {
	sp, hdr := m.object(op, ref)
	if hdr.Shape != ShapeSlice || hdr.Elem != kind {
		panic(&RefError{Op: op, Ref: ref, Reason: fmt.Sprintf("not a %s slice", kind)})
	}
	return sp, hdr
}

func checkIndex(op string, ref value.Ref, i, n int) {
	if i < 0 || i >= n {
		panic(&RefError{Op: op, Ref: ref, Reason: fmt.Sprintf("index %d out of range [0,%d)", i, n)})
	}
}

func wordAt(sp *Space, ref value.Ref, i int) []byte {
	return sp.bytes(ref+value.Ref(HeaderSize+i*WordSize), WordSize)
}

// Header returns the decoded header of the object at ref.
func (m *Manager) Header(ref value.Ref) Header {
	_, hdr := m.object("header", ref)
	return hdr
}

// KindName returns the layout name or slice element type of the object at ref.
func (m *Manager) KindName(ref value.Ref) string {
	_, hdr := m.object("kind", ref)
	return m.heap.layouts.kindName(hdr)
}

// NumFields returns the number of traced fields of a fixed object.
func (m *Manager) NumFields(ref value.Ref) int {
	_, hdr, layout := m.fixed("fields", ref)
	return hdr.Count - layout.RawWords
}

// Field returns traced field i of a fixed object.
func (m *Manager) Field(ref value.Ref, i int) value.Value {
	sp, hdr, layout := m.fixed("field", ref)
	checkIndex("field", ref, i, hdr.Count-layout.RawWords)
	return value.Value(le.Uint64(wordAt(sp, ref, layout.RawWords+i)))
}

// SetField stores v into traced field i of a fixed object.
func (m *Manager) SetField(ref value.Ref, i int, v value.Value) {
	sp, hdr, layout := m.fixed("set field", ref)
	checkIndex("set field", ref, i, hdr.Count-layout.RawWords)
	le.PutUint64(wordAt(sp, ref, layout.RawWords+i), uint64(v))
}

// RawWord returns opaque word i of a fixed object.
func (m *Manager) RawWord(ref value.Ref, i int) uint64 {
	sp, hdr, layout := m.fixed("raw word", ref)
	checkIndex("raw word", ref, i, min(layout.RawWords, hdr.Count))
	return le.Uint64(wordAt(sp, ref, i))
}

// SetRawWord stores w into opaque word i of a fixed object.
func (m *Manager) SetRawWord(ref value.Ref, i int, w uint64) {
	sp, hdr, layout := m.fixed("set raw word", ref)
	checkIndex("set raw word", ref, i, min(layout.RawWords, hdr.Count))
	le.PutUint64(wordAt(sp, ref, i), w)
}
