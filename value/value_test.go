// ABOUTME: Tests for the NaN-boxed value representation
// ABOUTME: Covers immediates, doubles, references and payload rewriting

package value

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegerRoundTrip(t *testing.T) {
	for _, n := range []int64{0, 1, -1, 42, -42, MaxInteger, MinInteger, 1 << 40, -(1 << 40)} {
		v, ok := Integer(n)
		require.True(t, ok, "integer %d should fit", n)
		assert.Equal(t, TagInteger, v.Tag())
		assert.False(t, v.IsRef())

		got, ok := v.AsInteger()
		require.True(t, ok)
		assert.Equal(t, n, got)
	}
}

func TestIntegerOverflow(t *testing.T) {
	_, ok := Integer(MaxInteger + 1)
	assert.False(t, ok)
	_, ok = Integer(MinInteger - 1)
	assert.False(t, ok)
	assert.Panics(t, func() { MustInteger(math.MaxInt64) })
}

func TestDoubles(t *testing.T) {
	for _, f := range []float64{0, -0.5, 3.25, math.Inf(1), math.Inf(-1), math.MaxFloat64, -math.SmallestNonzeroFloat64} {
		v := Double(f)
		assert.Equal(t, TagDouble, v.Tag(), "double %v", f)
		assert.False(t, v.IsRef())
		got, ok := v.AsDouble()
		require.True(t, ok)
		assert.Equal(t, f, got)
	}

	nan := Double(math.Float64frombits(0xFFF8_0000_0000_0001))
	assert.Equal(t, TagDouble, nan.Tag())
	assert.False(t, nan.IsRef(), "a negative NaN must not be mistaken for a reference")
	f, ok := nan.AsDouble()
	require.True(t, ok)
	assert.True(t, math.IsNaN(f))
}

func TestImmediates(t *testing.T) {
	assert.True(t, Nil.IsNil())
	assert.Equal(t, TagNil, Nil.Tag())
	assert.Equal(t, TagSystem, System.Tag())

	b, ok := True.AsBoolean()
	require.True(t, ok)
	assert.True(t, b)
	assert.Equal(t, False, Boolean(false))

	sym, ok := Symbol(77).AsSymbol()
	require.True(t, ok)
	assert.Equal(t, uint32(77), sym)

	r, ok := Char('λ').AsChar()
	require.True(t, ok)
	assert.Equal(t, 'λ', r)

	_, ok = Nil.AsInteger()
	assert.False(t, ok)
	_, ok = MustInteger(3).AsDouble()
	assert.False(t, ok)
}

func TestReferences(t *testing.T) {
	tags := []Tag{TagFrame, TagString, TagArray, TagBigInteger, TagBlock, TagClass, TagInstance, TagInvokable}
	for _, tag := range tags {
		ref := Ref(1<<40 + 0x1234)
		v := Reference(tag, ref)
		assert.True(t, v.IsRef(), "%s should be a reference", tag)
		assert.Equal(t, tag, v.Tag())
		assert.Equal(t, ref, v.Ref())

		moved := v.WithRef(Ref(2<<40 + 8))
		assert.Equal(t, tag, moved.Tag(), "rewriting the address keeps the tag")
		assert.Equal(t, Ref(2<<40+8), moved.Ref())
	}

	assert.Panics(t, func() { Reference(TagInteger, 8) })
	assert.Equal(t, Ref(0), MustInteger(5).Ref())
}

func TestNullReference(t *testing.T) {
	v := Reference(TagFrame, 0)
	assert.True(t, v.IsRef())
	assert.Equal(t, Ref(0), v.Ref())
	assert.Equal(t, TagDouble, Double(math.NaN()).Tag())
}

func TestString(t *testing.T) {
	assert.Equal(t, "nil", Nil.String())
	assert.Equal(t, "-7", MustInteger(-7).String())
	assert.Equal(t, "true", True.String())
	assert.Equal(t, "2.5", Double(2.5).String())
	assert.Equal(t, "Array@0x10", Reference(TagArray, 0x10).String())
}
