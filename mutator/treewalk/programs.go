// ABOUTME: Reference workloads driven through the tree-walking state the way the evaluator drives it
// ABOUTME: Used to check that results do not depend on when collections happen

package treewalk

import (
	"fmt"
	"strconv"

	"github.com/prateek/somheap/value"
)

func (m *Machine) ensureClass(name string, nfields int) error {
	if _, ok := m.Class(name); ok {
		return nil
	}
	_, err := m.DefineClass(name, nfields, "")
	return err
}

// BubbleSort boxes every input integer, threads the boxes on a linked chain of Link
// instances, copies the chain into an Array and bubble-sorts it. Every comparison
// allocates a boxed result, as the evaluator does for message sends.
func BubbleSort(m *Machine, input []int64) ([]int64, error) {
	if err := m.ensureClass("Box", 1); err != nil {
		return nil, err
	}
	if err := m.ensureClass("Link", 2); err != nil {
		return nil, err
	}

	const head, array = 0, 1
	f := m.PushFrame("sort", value.Nil, nil, 2, nil)
	defer m.PopFrame()

	for i := len(input) - 1; i >= 0; i-- {
		box, err := m.NewInstance("Box")
		if err != nil {
			return nil, err
		}
		n, ok := value.Integer(input[i])
		if !ok {
			return nil, fmt.Errorf("treewalk: sort: %d does not fit an immediate integer", input[i])
		}
		m.SetInstVar(box, 0, n)
		f.PushTemp(box)
		link, err := m.NewInstance("Link")
		if err != nil {
			return nil, err
		}
		m.SetInstVar(link, 0, f.PopTemp())
		m.SetInstVar(link, 1, f.Locals[head])
		f.Locals[head] = link
	}

	arr, err := m.NewArray(len(input))
	if err != nil {
		return nil, err
	}
	f.Locals[array] = arr
	i := 0
	for l := f.Locals[head]; !l.IsNil(); l = m.InstVar(l, 1) {
		m.AtPut(f.Locals[array], i, m.InstVar(l, 0))
		i++
	}
	f.Locals[head] = value.Nil

	n := len(input)
	for pass := 0; pass < n-1; pass++ {
		for j := 0; j < n-1-pass; j++ {
			a, _ := m.InstVar(m.At(f.Locals[array], j), 0).AsInteger()
			b, _ := m.InstVar(m.At(f.Locals[array], j+1), 0).AsInteger()
			result, err := m.NewInstance("Box")
			if err != nil {
				return nil, err
			}
			m.SetInstVar(result, 0, value.Boolean(a > b))
			if m.InstVar(result, 0) == value.True {
				arr := f.Locals[array]
				x := m.At(arr, j)
				m.AtPut(arr, j, m.At(arr, j+1))
				m.AtPut(arr, j+1, x)
			}
		}
	}

	out := make([]int64, n)
	for i := range out {
		out[i], _ = m.InstVar(m.At(f.Locals[array], i), 0).AsInteger()
	}
	return out, nil
}

// FixedPointIterations is the number of steps FixedPoint runs.
const FixedPointIterations = 7

// FixedPoint runs Newton's iteration for the square root of target from 1.0. Each step
// boxes the estimate in an instance and records its printed form as a heap string in a
// history array; the result is parsed back from the last string.
func FixedPoint(m *Machine, target float64) (float64, error) {
	if err := m.ensureClass("Float", 1); err != nil {
		return 0, err
	}

	const history, estimate = 0, 1
	f := m.PushFrame("fixedPoint", value.Double(target), nil, 2, nil)
	defer m.PopFrame()

	arr, err := m.NewArray(FixedPointIterations)
	if err != nil {
		return 0, err
	}
	f.Locals[history] = arr
	f.Locals[estimate] = value.Double(1)

	for i := 0; i < FixedPointIterations; i++ {
		x, _ := f.Locals[estimate].AsDouble()
		t, _ := f.Self.AsDouble()
		next := (x + t/x) / 2

		box, err := m.NewInstance("Float")
		if err != nil {
			return 0, err
		}
		m.SetInstVar(box, 0, value.Double(next))
		f.PushTemp(box)

		str, err := m.NewString(strconv.FormatFloat(next, 'g', -1, 64))
		if err != nil {
			return 0, err
		}
		m.AtPut(f.Locals[history], i, str)
		f.Locals[estimate] = m.InstVar(f.PopTemp(), 0)
	}

	last := m.StringOf(m.At(f.Locals[history], FixedPointIterations-1))
	return strconv.ParseFloat(last, 64)
}
