// ABOUTME: Execution state of the tree-walking evaluator and its root provider
// ABOUTME: Frames live on the Go side, so every slot they hold is reported to the collector

// Package treewalk models the execution state of the AST-walking evaluator: a stack of
// Go-side activation frames plus the global tables of the runtime. Evaluation itself is
// done elsewhere; this package owns what the collector needs to see.
package treewalk

import (
	"fmt"
	"iter"
	"log/slog"

	"github.com/prateek/somheap/heap"
	"github.com/prateek/somheap/value"
)

// Frame is one activation. Parent is the lexically enclosing activation of a block and
// may already be popped from the stack; it stays rooted as long as the block frame is.
type Frame struct {
	Method string
	Self   value.Value
	Args   []value.Value
	Locals []value.Value
	Parent *Frame

	temps []value.Value
}

// PushTemp pushes an evaluation temporary, keeping it rooted across allocations.
func (f *Frame) PushTemp(v value.Value) { f.temps = append(f.temps, v) }

// PopTemp removes and returns the newest temporary.
func (f *Frame) PopTemp() value.Value {
	v := f.temps[len(f.temps)-1]
	f.temps = f.temps[:len(f.temps)-1]
	return v
}

// Temp returns the temporary depth slots below the top, 0 being the top.
func (f *Frame) Temp(depth int) value.Value { return f.temps[len(f.temps)-1-depth] }

// NumTemps is the number of pending temporaries.
func (f *Frame) NumTemps() int { return len(f.temps) }

func (f *Frame) slots(yield func(*value.Value) bool) bool {
	if !yield(&f.Self) {
		return false
	}
	for _, vs := range [][]value.Value{f.Args, f.Locals, f.temps} {
		for i := range vs {
			if !yield(&vs[i]) {
				return false
			}
		}
	}
	return true
}

// table is a name-indexed set of root slots that keeps insertion order.
type table struct {
	index map[string]int
	slots []*value.Value
}

func (t *table) lookup(name string) (*value.Value, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.slots[i], true
}

func (t *table) define(name string) *value.Value {
	if slot, ok := t.lookup(name); ok {
		return slot
	}
	if t.index == nil {
		t.index = make(map[string]int)
	}
	slot := new(value.Value)
	*slot = value.Nil
	t.index[name] = len(t.slots)
	t.slots = append(t.slots, slot)
	return slot
}

// Machine is the tree-walking evaluator's state.
type Machine struct {
	heap *heap.Manager
	log  *slog.Logger

	frames  []*Frame
	globals table
	classes table
	strings table
	symbols map[string]uint32
	names   []string
	pending value.Value

	unregister func()
}

// Option configures a Machine.
type Option func(*Machine)

// WithLogger sets the logger frame pushes and pops are traced to.
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) { m.log = l }
}

// New creates a Machine allocating in h and registers it as a root provider.
func New(h *heap.Manager, opts ...Option) *Machine {
	m := &Machine{
		heap:    h,
		log:     slog.Default(),
		symbols: make(map[string]uint32),
		pending: value.Nil,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.unregister = h.AddRoots(m)
	return m
}

// Close unregisters the Machine from the heap.
func (m *Machine) Close() { m.unregister() }

// Heap returns the manager the Machine allocates in.
func (m *Machine) Heap() *heap.Manager { return m.heap }

// Roots implements heap.RootProvider: every frame on the stack with its lexical parents,
// globals, classes, interned strings and the pending error.
func (m *Machine) Roots() iter.Seq[*value.Value] {
	return func(yield func(*value.Value) bool) {
		for _, f := range m.frames {
			for p := f; p != nil; p = p.Parent {
				if !p.slots(yield) {
					return
				}
			}
		}
		for _, t := range []*table{&m.globals, &m.classes, &m.strings} {
			for _, slot := range t.slots {
				if !yield(slot) {
					return
				}
			}
		}
		yield(&m.pending)
	}
}

// PushFrame activates a method or block. args are copied into the frame; locals start nil.
func (m *Machine) PushFrame(method string, self value.Value, args []value.Value, nlocals int, parent *Frame) *Frame {
	f := &Frame{
		Method: method,
		Self:   self,
		Args:   append([]value.Value(nil), args...),
		Locals: make([]value.Value, nlocals),
		Parent: parent,
	}
	for i := range f.Locals {
		f.Locals[i] = value.Nil
	}
	m.frames = append(m.frames, f)
	m.log.Debug("push frame", "method", method, "depth", len(m.frames))
	return f
}

// PopFrame deactivates the current frame.
func (m *Machine) PopFrame() {
	f := m.frames[len(m.frames)-1]
	m.frames[len(m.frames)-1] = nil
	m.frames = m.frames[:len(m.frames)-1]
	m.log.Debug("pop frame", "method", f.Method, "depth", len(m.frames))
}

// Current returns the innermost frame, nil if none is active.
func (m *Machine) Current() *Frame {
	if len(m.frames) == 0 {
		return nil
	}
	return m.frames[len(m.frames)-1]
}

// Depth is the number of active frames.
func (m *Machine) Depth() int { return len(m.frames) }

// Symbol interns name as a symbol. Symbols are immediates and never allocate.
func (m *Machine) Symbol(name string) value.Value {
	id, ok := m.symbols[name]
	if !ok {
		id = uint32(len(m.names))
		m.symbols[name] = id
		m.names = append(m.names, name)
	}
	return value.Symbol(id)
}

// SymbolName returns the name of an interned symbol.
func (m *Machine) SymbolName(v value.Value) (string, bool) {
	id, ok := v.AsSymbol()
	if !ok || int(id) >= len(m.names) {
		return "", false
	}
	return m.names[id], true
}

// SetGlobal binds name to v.
func (m *Machine) SetGlobal(name string, v value.Value) { *m.globals.define(name) = v }

// Global returns the binding of name.
func (m *Machine) Global(name string) (value.Value, bool) {
	slot, ok := m.globals.lookup(name)
	if !ok {
		return value.Nil, false
	}
	return *slot, true
}

// SetError records a pending error value; it stays rooted until cleared.
func (m *Machine) SetError(v value.Value) { m.pending = v }

// Error returns the pending error value, Nil if there is none.
func (m *Machine) Error() value.Value { return m.pending }

// ClearError drops the pending error.
func (m *Machine) ClearError() { m.pending = value.Nil }

// NewString allocates a fresh string.
func (m *Machine) NewString(s string) (value.Value, error) {
	ref, err := m.heap.AllocBytes([]byte(s))
	if err != nil {
		return value.Nil, fmt.Errorf("treewalk: new string: %w", err)
	}
	return value.Reference(value.TagString, ref), nil
}

// Intern returns the canonical string for s, allocating it on first use.
func (m *Machine) Intern(s string) (value.Value, error) {
	if slot, ok := m.strings.lookup(s); ok {
		return *slot, nil
	}
	v, err := m.NewString(s)
	if err != nil {
		return value.Nil, err
	}
	slot := m.strings.define(s)
	*slot = v
	return v, nil
}

// StringOf returns the contents of a string value.
func (m *Machine) StringOf(v value.Value) string {
	return string(m.heap.Bytes(v.Ref()))
}

// NewArray allocates an array of n nil elements.
func (m *Machine) NewArray(n int) (value.Value, error) {
	ref, err := m.heap.AllocSlice(heap.ElemValue, n, nil)
	if err != nil {
		return value.Nil, fmt.Errorf("treewalk: new array: %w", err)
	}
	return value.Reference(value.TagArray, ref), nil
}

// At returns element i of an array.
func (m *Machine) At(arr value.Value, i int) value.Value { return m.heap.Elem(arr.Ref(), i) }

// AtPut stores v at index i of an array.
func (m *Machine) AtPut(arr value.Value, i int, v value.Value) { m.heap.SetElem(arr.Ref(), i, v) }

// Len is the length of an array or string.
func (m *Machine) Len(v value.Value) int { return m.heap.Len(v.Ref()) }
