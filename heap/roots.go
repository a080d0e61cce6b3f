// ABOUTME: Root registration: providers supplied by interpreters and host-side root scopes
// ABOUTME: The collector only ever sees the union of their mutable slots

package heap

import (
	"iter"

	"github.com/prateek/somheap/value"
)

// RootProvider enumerates every slot of an execution state that may hold a live
// reference. Roots is called once per collection and must be restartable. The collector
// writes the relocated reference back through each yielded pointer.
type RootProvider interface {
	Roots() iter.Seq[*value.Value]
}

// RootsFunc adapts a sequence function to a RootProvider.
type RootsFunc func(yield func(*value.Value) bool)

// Roots implements RootProvider.
func (f RootsFunc) Roots() iter.Seq[*value.Value] { return iter.Seq[*value.Value](f) }

// Slots is a RootProvider over a fixed set of slots.
func Slots(slots ...*value.Value) RootProvider {
	return RootsFunc(func(yield func(*value.Value) bool) {
		for _, s := range slots {
			if !yield(s) {
				return
			}
		}
	})
}

type providerEntry struct {
	id int
	p  RootProvider
}

// AddRoots registers p with the Manager. The returned function unregisters it; calling
// it more than once is harmless.
func (m *Manager) AddRoots(p RootProvider) (unregister func()) {
	m.nextProvider++
	id := m.nextProvider
	m.providers = append(m.providers, providerEntry{id: id, p: p})
	return func() {
		for i, e := range m.providers {
			if e.id == id {
				m.providers = append(m.providers[:i], m.providers[i+1:]...)
				return
			}
		}
	}
}

// roots is the root set of one cycle: open scopes innermost last, then providers in
// registration order.
func (m *Manager) roots() iter.Seq[*value.Value] {
	return func(yield func(*value.Value) bool) {
		for _, s := range m.scopes {
			for _, slot := range s.slots {
				if !yield(slot) {
					return
				}
			}
		}
		for _, e := range m.providers {
			for slot := range e.p.Roots() {
				if !yield(slot) {
					return
				}
			}
		}
	}
}

// Scope keeps host-side references alive across allocating calls. Scopes nest and must
// be closed in reverse order of opening.
type Scope struct {
	m      *Manager
	slots  []*value.Value
	closed bool
}

// OpenScope pushes a new root scope.
func (m *Manager) OpenScope() *Scope {
	s := &Scope{m: m}
	m.scopes = append(m.scopes, s)
	return s
}

// Root registers a new slot holding v and returns it. The slot pointer stays valid until
// the scope is closed; read the reference back through it after any allocation.
func (s *Scope) Root(v value.Value) *value.Value {
	if s.closed {
		panic("heap: Root on a closed scope")
	}
	slot := new(value.Value)
	*slot = v
	s.slots = append(s.slots, slot)
	return slot
}

// Len is the number of slots in the scope.
func (s *Scope) Len() int { return len(s.slots) }

// Close pops the scope. Closing a scope that is not the innermost open one panics.
func (s *Scope) Close() {
	if s.closed {
		return
	}
	scopes := s.m.scopes
	if len(scopes) == 0 || scopes[len(scopes)-1] != s {
		panic("heap: root scopes closed out of order")
	}
	s.m.scopes = scopes[:len(scopes)-1]
	s.closed = true
	s.slots = nil
}
