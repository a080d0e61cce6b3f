// ABOUTME: Compiled methods of the bytecode backend and their literal pools
// ABOUTME: Literals are opaque records; string literals index a traced constants array

package bytecode

import (
	"fmt"
	"math"

	"github.com/prateek/somheap/heap"
	"github.com/prateek/somheap/value"
)

// Method object fields after the raw arity word.
const (
	MethodHolder = iota
	MethodSignature
	MethodLiterals
	MethodConstants
	MethodNumLocals
	MethodMaxStack
	methodFields
)

// LiteralKind says how a literal record's payload is read.
type LiteralKind uint64

const (
	LitNil LiteralKind = iota
	LitInteger
	LitDouble
	LitSymbol
	LitString // payload indexes the method's constants array
)

// Lit is a literal as the compiler emits it, before it is laid out in the heap.
type Lit struct {
	Kind   LiteralKind
	Int    int64
	Double float64
	Text   string // symbol name or string contents
}

// IntLit is an integer literal.
func IntLit(n int64) Lit { return Lit{Kind: LitInteger, Int: n} }

// DoubleLit is a floating-point literal.
func DoubleLit(f float64) Lit { return Lit{Kind: LitDouble, Double: f} }

// SymbolLit is a symbol literal.
func SymbolLit(name string) Lit { return Lit{Kind: LitSymbol, Text: name} }

// StringLit is a string literal.
func StringLit(s string) Lit { return Lit{Kind: LitString, Text: s} }

// MethodDef describes a method to install.
type MethodDef struct {
	Signature string
	Holder    string // class name, "" for a global function
	Arity     int
	NumLocals int
	MaxStack  int
	Literals  []Lit
}

// DefineMethod compiles def into a Method object and registers it under its
// signature, replacing any previous definition.
func (m *Machine) DefineMethod(def MethodDef) (value.Value, error) {
	if def.Arity < 0 || def.NumLocals < 0 || def.MaxStack < 0 {
		return value.Nil, fmt.Errorf("bytecode: method %s: negative frame size", def.Signature)
	}
	holder := value.Nil
	if def.Holder != "" {
		var ok bool
		if holder, ok = m.Global(def.Holder); !ok {
			return value.Nil, fmt.Errorf("bytecode: method %s: unknown holder %s", def.Signature, def.Holder)
		}
	}

	records := make([]heap.Literal, len(def.Literals))
	var strs []string
	for i, lit := range def.Literals {
		rec := heap.Literal{Kind: uint64(lit.Kind)}
		switch lit.Kind {
		case LitNil:
		case LitInteger:
			if _, ok := value.Integer(lit.Int); !ok {
				return value.Nil, fmt.Errorf("bytecode: method %s: literal %d: %d does not fit an immediate integer", def.Signature, i, lit.Int)
			}
			rec.Payload = uint64(lit.Int)
		case LitDouble:
			rec.Payload = math.Float64bits(lit.Double)
		case LitSymbol:
			sym, _ := m.Symbol(lit.Text).AsSymbol()
			rec.Payload = uint64(sym)
		case LitString:
			rec.Payload = uint64(len(strs))
			strs = append(strs, lit.Text)
		default:
			return value.Nil, fmt.Errorf("bytecode: method %s: literal %d: unknown kind %d", def.Signature, i, lit.Kind)
		}
		records[i] = rec
	}

	scope := m.heap.OpenScope()
	defer scope.Close()
	holderSlot := scope.Root(holder)

	consts, err := m.heap.AllocSlice(heap.ElemValue, len(strs), nil)
	if err != nil {
		return value.Nil, fmt.Errorf("bytecode: method %s: %w", def.Signature, err)
	}
	constsSlot := scope.Root(value.Reference(value.TagArray, consts))
	for i, s := range strs {
		str, err := m.NewString(s)
		if err != nil {
			return value.Nil, err
		}
		m.heap.SetElem(constsSlot.Ref(), i, str)
	}

	lits, err := m.heap.AllocLiterals(records)
	if err != nil {
		return value.Nil, fmt.Errorf("bytecode: method %s: %w", def.Signature, err)
	}
	litsSlot := scope.Root(value.Reference(value.TagArray, lits))

	ref, err := m.heap.AllocObject(heap.LayoutMethod, methodFields)
	if err != nil {
		return value.Nil, fmt.Errorf("bytecode: method %s: %w", def.Signature, err)
	}
	m.heap.SetRawWord(ref, 0, uint64(def.Arity))
	m.heap.SetField(ref, MethodHolder, *holderSlot)
	m.heap.SetField(ref, MethodSignature, m.Symbol(def.Signature))
	m.heap.SetField(ref, MethodLiterals, *litsSlot)
	m.heap.SetField(ref, MethodConstants, *constsSlot)
	m.heap.SetField(ref, MethodNumLocals, value.MustInteger(int64(def.NumLocals)))
	m.heap.SetField(ref, MethodMaxStack, value.MustInteger(int64(def.MaxStack)))

	method := value.Reference(value.TagInvokable, ref)
	*m.methods.define(def.Signature) = method
	return method, nil
}

// Method returns the method registered under sig.
func (m *Machine) Method(sig string) (value.Value, bool) {
	slot, ok := m.methods.lookup(sig)
	if !ok {
		return value.Nil, false
	}
	return *slot, true
}

// Arity returns the number of arguments a method takes.
func (m *Machine) Arity(method value.Value) int { return int(m.heap.RawWord(method.Ref(), 0)) }

// LiteralAt decodes literal i of the current method.
func (m *Machine) LiteralAt(i int) (value.Value, error) {
	if m.current.IsNil() {
		return value.Nil, ErrNoFrame
	}
	method := m.heap.Field(m.current.Ref(), FrameMethod).Ref()
	lits := m.heap.Field(method, MethodLiterals).Ref()
	if i < 0 || i >= m.heap.Len(lits) {
		return value.Nil, fmt.Errorf("bytecode: literal %d out of range [0, %d)", i, m.heap.Len(lits))
	}
	rec := m.heap.Literal(lits, i)
	switch LiteralKind(rec.Kind) {
	case LitInteger:
		return value.MustInteger(int64(rec.Payload)), nil
	case LitDouble:
		return value.Double(math.Float64frombits(rec.Payload)), nil
	case LitSymbol:
		return value.Symbol(uint32(rec.Payload)), nil
	case LitString:
		return m.heap.Elem(m.heap.Field(method, MethodConstants).Ref(), int(rec.Payload)), nil
	}
	return value.Nil, nil
}

// PushLiteral pushes literal i of the current method.
func (m *Machine) PushLiteral(i int) error {
	v, err := m.LiteralAt(i)
	if err != nil {
		return err
	}
	return m.Push(v)
}
