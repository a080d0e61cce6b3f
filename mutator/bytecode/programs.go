// ABOUTME: Reference workloads expressed as operand-stack code on heap-resident frames
// ABOUTME: They compute the same results as the tree-walking versions under any collection schedule

package bytecode

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/prateek/somheap/value"
)

// FixedPointIterations is the number of steps FixedPoint runs.
const FixedPointIterations = 7

func (m *Machine) ensureClass(name string, nfields int) error {
	if _, ok := m.Global(name); ok {
		return nil
	}
	_, err := m.DefineClass(name, nfields, "")
	return err
}

// run is a small interpreter loop: ops execute in order until one fails. The pc of the
// current frame tracks progress so a failure can be reported by position.
func (m *Machine) run(ops ...func() error) error {
	for _, op := range ops {
		if m.current.IsNil() {
			return ErrNoFrame
		}
		pc := m.PC()
		if err := op(); err != nil {
			return fmt.Errorf("pc %d: %w", pc, err)
		}
		if !m.current.IsNil() {
			m.Jump(m.PC() + 1)
		}
	}
	return nil
}

func (m *Machine) popInt() (int64, error) {
	v, err := m.Pop()
	if err != nil {
		return 0, err
	}
	n, ok := v.AsInteger()
	if !ok {
		return 0, fmt.Errorf("bytecode: expected integer, got %v", v)
	}
	return n, nil
}

func (m *Machine) pushInt(n int) func() error {
	return func() error { return m.Push(value.MustInteger(int64(n))) }
}

// BubbleSort installs a sort method whose literal pool holds the input, builds a
// linked chain of boxed integers, copies it into an Array and bubble-sorts it. Every
// comparison allocates a boxed result, as the evaluator does for message sends.
func BubbleSort(m *Machine, input []int64) (out []int64, err error) {
	if err := m.ensureClass("Box", 1); err != nil {
		return nil, err
	}
	if err := m.ensureClass("Link", 2); err != nil {
		return nil, err
	}
	lits := make([]Lit, len(input))
	for i, n := range input {
		lits[i] = IntLit(n)
	}
	if _, err := m.DefineMethod(MethodDef{Signature: "bubbleSort", NumLocals: 3, MaxStack: 5, Literals: lits}); err != nil {
		return nil, err
	}

	const head, array, tmp = 0, 1, 2
	if err := m.Call("bubbleSort"); err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			m.Unwind()
		}
	}()

	for i := len(input) - 1; i >= 0; i-- {
		err := m.run(
			func() error { return m.PushNewInstance("Box") },
			func() error { return m.PushLiteral(i) },
			func() error { return m.StoreField(0) },
			func() error { return m.PushNewInstance("Link") },
			m.Swap,
			func() error { return m.StoreField(0) },
			func() error { return m.PushLocal(head) },
			func() error { return m.StoreField(1) },
			func() error { return m.StoreLocal(head) },
		)
		if err != nil {
			return nil, fmt.Errorf("bytecode: sort: %w", err)
		}
	}

	n := len(input)
	if err := m.run(func() error { return m.PushNewArray(n) }, func() error { return m.StoreLocal(array) }, func() error { return m.PushLocal(head) }); err != nil {
		return nil, fmt.Errorf("bytecode: sort: %w", err)
	}
	for i := 0; ; i++ {
		link, err := m.Top()
		if err != nil {
			return nil, err
		}
		if link.IsNil() {
			break
		}
		err = m.run(
			func() error { return m.PushLocal(array) },
			m.pushInt(i),
			func() error { return m.PushPick(2) },
			func() error { return m.PushField(0) },
			m.StoreElem,
			m.popDiscard,
			func() error { return m.PushField(1) },
		)
		if err != nil {
			return nil, fmt.Errorf("bytecode: sort: %w", err)
		}
	}
	if err := m.run(m.popDiscard, func() error { m.SetLocal(head, value.Nil); return nil }); err != nil {
		return nil, err
	}

	boxedAt := func(j int) []func() error {
		return []func() error{func() error { return m.PushLocal(array) }, m.pushInt(j), m.PushElem, func() error { return m.PushField(0) }}
	}
	for pass := 0; pass < n-1; pass++ {
		for j := 0; j < n-1-pass; j++ {
			if err := m.run(append(boxedAt(j), boxedAt(j+1)...)...); err != nil {
				return nil, fmt.Errorf("bytecode: sort: %w", err)
			}
			b, err := m.popInt()
			if err != nil {
				return nil, err
			}
			a, err := m.popInt()
			if err != nil {
				return nil, err
			}
			err = m.run(
				func() error { return m.PushNewInstance("Box") },
				func() error { return m.Push(value.Boolean(a > b)) },
				func() error { return m.StoreField(0) },
				func() error { return m.PushField(0) },
			)
			if err != nil {
				return nil, fmt.Errorf("bytecode: sort: %w", err)
			}
			greater, _ := m.Pop()
			if greater != value.True {
				continue
			}
			err = m.run(
				func() error { return m.PushLocal(array) }, m.pushInt(j), m.PushElem,
				func() error { return m.StoreLocal(tmp) },
				func() error { return m.PushLocal(array) }, m.pushInt(j),
				func() error { return m.PushLocal(array) }, m.pushInt(j+1), m.PushElem,
				m.StoreElem,
				m.pushInt(j+1), func() error { return m.PushLocal(tmp) },
				m.StoreElem,
				m.popDiscard,
			)
			if err != nil {
				return nil, fmt.Errorf("bytecode: sort: %w", err)
			}
		}
	}

	out = make([]int64, n)
	for i := range out {
		if err := m.run(boxedAt(i)...); err != nil {
			return nil, err
		}
		if out[i], err = m.popInt(); err != nil {
			return nil, err
		}
	}
	if _, err := m.Return(); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *Machine) popDiscard() error {
	_, err := m.Pop()
	return err
}

// FixedPoint runs Newton's iteration for the square root of target from 1.0 inside a
// method called from a driver frame, so the driver is reachable only through the
// callee's prev link. Each step boxes the estimate in an instance and records its
// printed form in a history array; the result is parsed back from the last string.
func FixedPoint(m *Machine, target float64) (result float64, err error) {
	if err := m.ensureClass("Float", 1); err != nil {
		return 0, err
	}
	if _, err := m.DefineMethod(MethodDef{Signature: "main", MaxStack: 2}); err != nil {
		return 0, err
	}
	_, err = m.DefineMethod(MethodDef{
		Signature: "fixedPoint:",
		Arity:     1,
		NumLocals: 2,
		MaxStack:  5,
		Literals:  []Lit{DoubleLit(1), IntLit(FixedPointIterations), StringLit("history")},
	})
	if err != nil {
		return 0, err
	}

	if err := m.Call("main"); err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			m.Unwind()
		}
	}()
	if err := m.run(func() error { return m.Push(value.Double(target)) }, func() error { return m.Call("fixedPoint:") }); err != nil {
		return 0, fmt.Errorf("bytecode: fixed point: %w", err)
	}

	const history, estimate = 0, 1
	err = m.run(
		func() error { return m.PushLiteral(1) },
		func() error {
			n, err := m.popInt()
			if err != nil {
				return err
			}
			return m.PushNewArray(int(n))
		},
		func() error { return m.StoreLocal(history) },
		func() error { return m.PushLiteral(0) },
		func() error { return m.StoreLocal(estimate) },
	)
	if err != nil {
		return 0, fmt.Errorf("bytecode: fixed point: %w", err)
	}

	for i := 0; i < FixedPointIterations; i++ {
		x, _ := m.Local(estimate).AsDouble()
		t, _ := m.Arg(0).AsDouble()
		next := (x + t/x) / 2
		err := m.run(
			func() error { return m.PushNewInstance("Float") },
			func() error { return m.Push(value.Double(next)) },
			func() error { return m.StoreField(0) },
			func() error { return m.PushNewString(strconv.FormatFloat(next, 'g', -1, 64)) },
			func() error { return m.PushLocal(history) },
			m.pushInt(i),
			func() error { return m.PushPick(2) },
			m.StoreElem,
			m.popDiscard,
			m.popDiscard,
			func() error { return m.PushField(0) },
			func() error { return m.StoreLocal(estimate) },
		)
		if err != nil {
			return 0, fmt.Errorf("bytecode: fixed point: %w", err)
		}
	}

	err = m.run(func() error { return m.PushLocal(history) }, m.pushInt(FixedPointIterations-1), m.PushElem)
	if err != nil {
		return 0, fmt.Errorf("bytecode: fixed point: %w", err)
	}
	last, _ := m.Pop()
	parsed, err := strconv.ParseFloat(m.StringOf(last), 64)
	if err != nil {
		return 0, err
	}
	if err := m.Push(value.Double(parsed)); err != nil {
		return 0, err
	}
	if _, err := m.Return(); err != nil {
		return 0, err
	}
	v, err := m.Return()
	if err != nil {
		return 0, err
	}
	result, ok := v.AsDouble()
	if !ok {
		return 0, errors.New("bytecode: fixed point: result is not a double")
	}
	return result, nil
}
