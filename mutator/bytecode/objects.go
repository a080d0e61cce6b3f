// ABOUTME: Globals, symbols, strings, classes and arrays as seen by the bytecode backend
// ABOUTME: Operations that allocate keep their operands on the heap-resident stack until done

package bytecode

import (
	"fmt"

	"github.com/prateek/somheap/heap"
	"github.com/prateek/somheap/value"
)

// Class object fields.
const (
	ClassName = iota
	ClassSuperclass
	ClassNumFields
	ClassMethods
	classFields
)

const initialGlobals = 8

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

// SetGlobal binds name to v. The globals array is grown on demand, which may collect;
// v is kept rooted meanwhile.
func (m *Machine) SetGlobal(name string, v value.Value) error {
	if i, ok := m.globalIndex[name]; ok {
		m.heap.SetElem(m.globals.Ref(), i, v)
		return nil
	}
	i := len(m.globalIndex)
	if m.globals.IsNil() || i >= m.heap.Len(m.globals.Ref()) {
		scope := m.heap.OpenScope()
		defer scope.Close()
		slot := scope.Root(v)
		if err := m.growGlobals(); err != nil {
			return fmt.Errorf("bytecode: global %s: %w", name, err)
		}
		v = *slot
	}
	m.globalIndex[name] = i
	m.heap.SetElem(m.globals.Ref(), i, v)
	return nil
}

func (m *Machine) growGlobals() error {
	n, old := initialGlobals, 0
	if !m.globals.IsNil() {
		old = m.heap.Len(m.globals.Ref())
		n = 2 * old
	}
	ref, err := m.heap.AllocSlice(heap.ElemValue, n, func(h *heap.Manager, ref value.Ref) {
		for i := 0; i < old; i++ {
			h.SetElem(ref, i, h.Elem(m.globals.Ref(), i))
		}
	})
	if err != nil {
		return err
	}
	m.globals = value.Reference(value.TagArray, ref)
	return nil
}

// Global returns the binding of name.
func (m *Machine) Global(name string) (value.Value, bool) {
	i, ok := m.globalIndex[name]
	if !ok {
		return value.Nil, false
	}
	return m.heap.Elem(m.globals.Ref(), i), true
}

// PushGlobal pushes the binding of name.
func (m *Machine) PushGlobal(name string) error {
	v, ok := m.Global(name)
	if !ok {
		return fmt.Errorf("bytecode: unknown global %s", name)
	}
	return m.Push(v)
}

// StoreGlobal binds name to the top operand and pops it.
func (m *Machine) StoreGlobal(name string) error {
	v, err := m.Top()
	if err != nil {
		return err
	}
	// stays on the stack, and so rooted, while the globals array grows
	if err := m.SetGlobal(name, v); err != nil {
		return err
	}
	_, err = m.Pop()
	return err
}

// NewString allocates a fresh string.
func (m *Machine) NewString(s string) (value.Value, error) {
	ref, err := m.heap.AllocBytes([]byte(s))
	if err != nil {
		return value.Nil, fmt.Errorf("bytecode: new string: %w", err)
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
	*m.strings.define(s) = v
	return v, nil
}

// StringOf returns the contents of a string value.
func (m *Machine) StringOf(v value.Value) string { return string(m.heap.Bytes(v.Ref())) }

// PushNewString allocates a string and pushes it.
func (m *Machine) PushNewString(s string) error {
	v, err := m.NewString(s)
	if err != nil {
		return err
	}
	return m.Push(v)
}

// PushNewArray allocates an array of n nil elements and pushes it.
func (m *Machine) PushNewArray(n int) error {
	ref, err := m.heap.AllocSlice(heap.ElemValue, n, nil)
	if err != nil {
		return fmt.Errorf("bytecode: new array: %w", err)
	}
	return m.Push(value.Reference(value.TagArray, ref))
}

// DefineClass creates a class with nfields instance variables of its own, inheriting
// those of superclass ("" for none), and binds it as a global.
func (m *Machine) DefineClass(name string, nfields int, superclass string) (value.Value, error) {
	super := value.Nil
	inherited := 0
	if superclass != "" {
		var ok bool
		if super, ok = m.Global(superclass); !ok || super.Tag() != value.TagClass {
			return value.Nil, fmt.Errorf("bytecode: class %s: unknown superclass %s", name, superclass)
		}
		n, _ := m.heap.Field(super.Ref(), ClassNumFields).AsInteger()
		inherited = int(n)
	}

	scope := m.heap.OpenScope()
	defer scope.Close()
	superSlot := scope.Root(super)

	str, err := m.Intern(name)
	if err != nil {
		return value.Nil, err
	}
	nameSlot := scope.Root(str)
	ref, err := m.heap.AllocObject(heap.LayoutClass, classFields)
	if err != nil {
		return value.Nil, fmt.Errorf("bytecode: class %s: %w", name, err)
	}
	m.heap.SetField(ref, ClassName, *nameSlot)
	m.heap.SetField(ref, ClassSuperclass, *superSlot)
	m.heap.SetField(ref, ClassNumFields, value.MustInteger(int64(inherited+nfields)))
	classSlot := scope.Root(value.Reference(value.TagClass, ref))
	if err := m.SetGlobal(name, *classSlot); err != nil {
		return value.Nil, err
	}
	return *classSlot, nil
}

// ClassNameOf returns the name of a class.
func (m *Machine) ClassNameOf(class value.Value) string {
	return m.StringOf(m.heap.Field(class.Ref(), ClassName))
}

// PushNewInstance allocates an instance of the named class and pushes it.
func (m *Machine) PushNewInstance(className string) error {
	class, ok := m.Global(className)
	if !ok || class.Tag() != value.TagClass {
		return fmt.Errorf("bytecode: new instance: unknown class %s", className)
	}
	n, _ := m.heap.Field(class.Ref(), ClassNumFields).AsInteger()
	ref, err := m.heap.AllocObject(heap.LayoutInstance, 1+int(n))
	if err != nil {
		return fmt.Errorf("bytecode: new %s: %w", className, err)
	}
	// the class may have moved during the allocation
	class, _ = m.Global(className)
	m.heap.SetField(ref, 0, class)
	return m.Push(value.Reference(value.TagInstance, ref))
}

// PushField replaces the instance on top of the stack with its field i.
func (m *Machine) PushField(i int) error {
	obj, err := m.Pop()
	if err != nil {
		return err
	}
	return m.Push(m.heap.Field(obj.Ref(), 1+i))
}

// StoreField pops a value and stores it into field i of the instance beneath it,
// which stays on the stack.
func (m *Machine) StoreField(i int) error {
	v, err := m.Pop()
	if err != nil {
		return err
	}
	obj, err := m.Top()
	if err != nil {
		return err
	}
	m.heap.SetField(obj.Ref(), 1+i, v)
	return nil
}

// PushElem pops an index and an array and pushes the element.
func (m *Machine) PushElem() error {
	idx, err := m.Pop()
	if err != nil {
		return err
	}
	arr, err := m.Pop()
	if err != nil {
		return err
	}
	i, ok := idx.AsInteger()
	if !ok {
		return fmt.Errorf("bytecode: index %v is not an integer", idx)
	}
	return m.Push(m.heap.Elem(arr.Ref(), int(i)))
}

// StoreElem pops a value and an index and stores the value into the array beneath
// them, which stays on the stack.
func (m *Machine) StoreElem() error {
	v, err := m.Pop()
	if err != nil {
		return err
	}
	idx, err := m.Pop()
	if err != nil {
		return err
	}
	arr, err := m.Top()
	if err != nil {
		return err
	}
	i, ok := idx.AsInteger()
	if !ok {
		return fmt.Errorf("bytecode: index %v is not an integer", idx)
	}
	m.heap.SetElem(arr.Ref(), int(i), v)
	return nil
}
