// ABOUTME: Execution state of the bytecode evaluator and its root provider
// ABOUTME: Frames, operand stacks and locals are heap objects reached from the current frame

// Package bytecode models the execution state of the bytecode evaluator. Unlike the
// tree-walking backend its activations are heap-resident Frame objects chained through
// their prev field, so the Machine itself only roots the current frame, the globals
// array, compiled methods with their literal pools, interned strings and the pending
// error. Everything else is found by the collector through the heap.
package bytecode

import (
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"github.com/prateek/somheap/heap"
	"github.com/prateek/somheap/value"
)

// Frame object fields after the two raw words.
const (
	FramePrev = iota
	FrameMethod
	FrameArgs
	FrameLocals
	FrameStack
	frameFields
)

// Raw words of a Frame.
const (
	rawPC    = 0
	rawDepth = 1
)

var (
	// ErrStackUnderflow is returned when popping an empty operand stack.
	ErrStackUnderflow = errors.New("bytecode: operand stack underflow")
	// ErrStackOverflow is returned when pushing past a method's declared max stack.
	ErrStackOverflow = errors.New("bytecode: operand stack overflow")
	// ErrNoFrame is returned by stack operations while no method is active.
	ErrNoFrame = errors.New("bytecode: no active frame")
)

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

// Machine is the bytecode evaluator's state.
type Machine struct {
	heap *heap.Manager
	log  *slog.Logger

	current     value.Value // innermost Frame, Nil when idle
	globals     value.Value // Value slice indexed through globalIndex
	globalIndex map[string]int
	methods     table
	strings     table
	symbols     map[string]uint32
	names       []string
	pending     value.Value

	unregister func()
}

// Option configures a Machine.
type Option func(*Machine)

// WithLogger sets the logger calls and returns are traced to.
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) { m.log = l }
}

// New creates an idle Machine allocating in h and registers it as a root provider.
func New(h *heap.Manager, opts ...Option) *Machine {
	m := &Machine{
		heap:        h,
		log:         slog.Default(),
		current:     value.Nil,
		globals:     value.Nil,
		globalIndex: make(map[string]int),
		symbols:     make(map[string]uint32),
		pending:     value.Nil,
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

// Roots implements heap.RootProvider.
func (m *Machine) Roots() iter.Seq[*value.Value] {
	return func(yield func(*value.Value) bool) {
		if !yield(&m.current) || !yield(&m.globals) {
			return
		}
		for _, t := range []*table{&m.methods, &m.strings} {
			for _, slot := range t.slots {
				if !yield(slot) {
					return
				}
			}
		}
		yield(&m.pending)
	}
}

// Current returns the innermost frame, Nil when idle.
func (m *Machine) Current() value.Value { return m.current }

// Depth counts the active frames by following prev links.
func (m *Machine) Depth() int {
	n := 0
	for f := m.current; !f.IsNil(); f = m.heap.Field(f.Ref(), FramePrev) {
		n++
	}
	return n
}

// Unwind abandons every active frame, as the evaluator does when an error escapes the
// outermost method.
func (m *Machine) Unwind() { m.current = value.Nil }

func (m *Machine) intField(obj value.Value, i int) int {
	n, _ := m.heap.Field(obj.Ref(), i).AsInteger()
	return int(n)
}

// Call activates the method registered under sig. Its arguments are taken from the
// caller's operand stack, the last argument on top.
func (m *Machine) Call(sig string) error {
	mslot, ok := m.methods.lookup(sig)
	if !ok {
		return fmt.Errorf("bytecode: call %s: unknown method", sig)
	}
	arity := int(m.heap.RawWord(mslot.Ref(), 0))
	nlocals := m.intField(*mslot, MethodNumLocals)
	maxStack := m.intField(*mslot, MethodMaxStack)

	callerDepth := 0
	if !m.current.IsNil() {
		callerDepth = int(m.heap.RawWord(m.current.Ref(), rawDepth))
	}
	if arity > callerDepth {
		return fmt.Errorf("bytecode: call %s with %d arguments on the stack: %w", sig, callerDepth, ErrStackUnderflow)
	}

	scope := m.heap.OpenScope()
	defer scope.Close()

	args, err := m.heap.AllocSlice(heap.ElemValue, arity, func(h *heap.Manager, ref value.Ref) {
		if arity == 0 {
			return
		}
		stack := h.Field(m.current.Ref(), FrameStack).Ref()
		for i := 0; i < arity; i++ {
			h.SetElem(ref, i, h.Elem(stack, callerDepth-arity+i))
		}
	})
	if err != nil {
		return fmt.Errorf("bytecode: call %s: %w", sig, err)
	}
	argsSlot := scope.Root(value.Reference(value.TagArray, args))

	locals, err := m.heap.AllocSlice(heap.ElemValue, nlocals, nil)
	if err != nil {
		return fmt.Errorf("bytecode: call %s: %w", sig, err)
	}
	localsSlot := scope.Root(value.Reference(value.TagArray, locals))

	stack, err := m.heap.AllocSlice(heap.ElemValue, maxStack, nil)
	if err != nil {
		return fmt.Errorf("bytecode: call %s: %w", sig, err)
	}
	stackSlot := scope.Root(value.Reference(value.TagArray, stack))

	frame, err := m.heap.AllocObject(heap.LayoutFrame, frameFields)
	if err != nil {
		return fmt.Errorf("bytecode: call %s: %w", sig, err)
	}
	m.heap.SetField(frame, FramePrev, m.current)
	m.heap.SetField(frame, FrameMethod, *mslot)
	m.heap.SetField(frame, FrameArgs, *argsSlot)
	m.heap.SetField(frame, FrameLocals, *localsSlot)
	m.heap.SetField(frame, FrameStack, *stackSlot)

	if !m.current.IsNil() {
		caller := m.current.Ref()
		stack := m.heap.Field(caller, FrameStack).Ref()
		for i := callerDepth - arity; i < callerDepth; i++ {
			m.heap.SetElem(stack, i, value.Nil)
		}
		m.heap.SetRawWord(caller, rawDepth, uint64(callerDepth-arity))
	}
	m.current = value.Reference(value.TagFrame, frame)
	m.log.Debug("call", "method", sig, "arity", arity)
	return nil
}

// Return pops the result from the current operand stack (Nil if it is empty), drops
// the frame and pushes the result onto the caller's stack. The result is also returned.
func (m *Machine) Return() (value.Value, error) {
	if m.current.IsNil() {
		return value.Nil, ErrNoFrame
	}
	result := value.Nil
	if m.StackDepth() > 0 {
		result, _ = m.Pop()
	}
	m.current = m.heap.Field(m.current.Ref(), FramePrev)
	m.log.Debug("return", "result", result)
	if m.current.IsNil() {
		return result, nil
	}
	return result, m.Push(result)
}

// PC returns the program counter of the current frame.
func (m *Machine) PC() int { return int(m.heap.RawWord(m.current.Ref(), rawPC)) }

// Jump sets the program counter of the current frame.
func (m *Machine) Jump(pc int) { m.heap.SetRawWord(m.current.Ref(), rawPC, uint64(pc)) }

// StackDepth is the number of operands on the current stack.
func (m *Machine) StackDepth() int {
	if m.current.IsNil() {
		return 0
	}
	return int(m.heap.RawWord(m.current.Ref(), rawDepth))
}

func (m *Machine) stack() value.Ref { return m.heap.Field(m.current.Ref(), FrameStack).Ref() }

// Push pushes v onto the current operand stack.
func (m *Machine) Push(v value.Value) error {
	if m.current.IsNil() {
		return ErrNoFrame
	}
	depth := m.StackDepth()
	stack := m.stack()
	if depth >= m.heap.Len(stack) {
		return ErrStackOverflow
	}
	m.heap.SetElem(stack, depth, v)
	m.heap.SetRawWord(m.current.Ref(), rawDepth, uint64(depth+1))
	return nil
}

// Pop removes the top operand. The vacated slot is cleared so it no longer retains.
func (m *Machine) Pop() (value.Value, error) {
	if m.current.IsNil() {
		return value.Nil, ErrNoFrame
	}
	depth := m.StackDepth()
	if depth == 0 {
		return value.Nil, ErrStackUnderflow
	}
	stack := m.stack()
	v := m.heap.Elem(stack, depth-1)
	m.heap.SetElem(stack, depth-1, value.Nil)
	m.heap.SetRawWord(m.current.Ref(), rawDepth, uint64(depth-1))
	return v, nil
}

// Pick returns the operand n below the top, 0 being the top.
func (m *Machine) Pick(n int) (value.Value, error) {
	depth := m.StackDepth()
	if n < 0 || n >= depth {
		return value.Nil, ErrStackUnderflow
	}
	return m.heap.Elem(m.stack(), depth-1-n), nil
}

// Top returns the top operand.
func (m *Machine) Top() (value.Value, error) { return m.Pick(0) }

// PushPick pushes a copy of the operand n below the top.
func (m *Machine) PushPick(n int) error {
	v, err := m.Pick(n)
	if err != nil {
		return err
	}
	return m.Push(v)
}

// Dup duplicates the top operand.
func (m *Machine) Dup() error { return m.PushPick(0) }

// Swap exchanges the two top operands.
func (m *Machine) Swap() error {
	depth := m.StackDepth()
	if depth < 2 {
		return ErrStackUnderflow
	}
	stack := m.stack()
	a, b := m.heap.Elem(stack, depth-1), m.heap.Elem(stack, depth-2)
	m.heap.SetElem(stack, depth-1, b)
	m.heap.SetElem(stack, depth-2, a)
	return nil
}

// Local returns local i of the current frame.
func (m *Machine) Local(i int) value.Value {
	return m.heap.Elem(m.heap.Field(m.current.Ref(), FrameLocals).Ref(), i)
}

// SetLocal stores v into local i of the current frame.
func (m *Machine) SetLocal(i int, v value.Value) {
	m.heap.SetElem(m.heap.Field(m.current.Ref(), FrameLocals).Ref(), i, v)
}

// PushLocal pushes local i.
func (m *Machine) PushLocal(i int) error { return m.Push(m.Local(i)) }

// StoreLocal pops the top operand into local i.
func (m *Machine) StoreLocal(i int) error {
	v, err := m.Pop()
	if err != nil {
		return err
	}
	m.SetLocal(i, v)
	return nil
}

// Arg returns argument i of the current frame.
func (m *Machine) Arg(i int) value.Value {
	return m.heap.Elem(m.heap.Field(m.current.Ref(), FrameArgs).Ref(), i)
}

// PushArg pushes argument i.
func (m *Machine) PushArg(i int) error { return m.Push(m.Arg(i)) }

// SetError records a pending error value; it stays rooted until cleared.
func (m *Machine) SetError(v value.Value) { m.pending = v }

// Error returns the pending error value, Nil if there is none.
func (m *Machine) Error() value.Value { return m.pending }

// ClearError drops the pending error.
func (m *Machine) ClearError() { m.pending = value.Nil }
