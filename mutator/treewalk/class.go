// ABOUTME: Classes and instances of the tree-walking backend
// ABOUTME: Both are fixed objects; class references are re-read from their root slots after allocating

package treewalk

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

// DefineClass creates a class with nfields instance variables of its own, inheriting
// those of superclass ("" for none), and registers it under name.
func (m *Machine) DefineClass(name string, nfields int, superclass string) (value.Value, error) {
	inherited := 0
	if superclass != "" {
		super, ok := m.classes.lookup(superclass)
		if !ok {
			return value.Nil, fmt.Errorf("treewalk: class %s: unknown superclass %s", name, superclass)
		}
		n, _ := m.heap.Field(super.Ref(), ClassNumFields).AsInteger()
		inherited = int(n)
	}

	scope := m.heap.OpenScope()
	defer scope.Close()

	str, err := m.Intern(name)
	if err != nil {
		return value.Nil, err
	}
	nameSlot := scope.Root(str)
	ref, err := m.heap.AllocObject(heap.LayoutClass, classFields)
	if err != nil {
		return value.Nil, fmt.Errorf("treewalk: class %s: %w", name, err)
	}
	m.heap.SetField(ref, ClassName, *nameSlot)
	m.heap.SetField(ref, ClassNumFields, value.MustInteger(int64(inherited+nfields)))
	if superclass != "" {
		super, _ := m.classes.lookup(superclass)
		m.heap.SetField(ref, ClassSuperclass, *super)
	}
	class := value.Reference(value.TagClass, ref)
	*m.classes.define(name) = class
	return class, nil
}

// Class returns the class registered under name.
func (m *Machine) Class(name string) (value.Value, bool) {
	slot, ok := m.classes.lookup(name)
	if !ok {
		return value.Nil, false
	}
	return *slot, true
}

// ClassNameOf returns the name of a class.
func (m *Machine) ClassNameOf(class value.Value) string {
	return m.StringOf(m.heap.Field(class.Ref(), ClassName))
}

// NewInstance allocates an instance of the named class with every field nil.
func (m *Machine) NewInstance(className string) (value.Value, error) {
	slot, ok := m.classes.lookup(className)
	if !ok {
		return value.Nil, fmt.Errorf("treewalk: new instance: unknown class %s", className)
	}
	n, _ := m.heap.Field(slot.Ref(), ClassNumFields).AsInteger()
	ref, err := m.heap.AllocObject(heap.LayoutInstance, 1+int(n))
	if err != nil {
		return value.Nil, fmt.Errorf("treewalk: new %s: %w", className, err)
	}
	// the class may have moved during the allocation
	m.heap.SetField(ref, 0, *slot)
	return value.Reference(value.TagInstance, ref), nil
}

// ClassOf returns the class of an instance.
func (m *Machine) ClassOf(obj value.Value) value.Value { return m.heap.Field(obj.Ref(), 0) }

// InstVar returns instance variable i.
func (m *Machine) InstVar(obj value.Value, i int) value.Value {
	return m.heap.Field(obj.Ref(), 1+i)
}

// SetInstVar stores v into instance variable i.
func (m *Machine) SetInstVar(obj value.Value, i int, v value.Value) {
	m.heap.SetField(obj.Ref(), 1+i, v)
}
