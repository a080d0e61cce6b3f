// ABOUTME: NaN-boxed tagged value shared by both interpreter backends
// ABOUTME: Distinguishes immediates (integers, booleans, doubles...) from heap references

// Package value implements the uniform 64-bit representation of runtime values.
//
// Every value is a single word. Doubles are stored as themselves; every other kind is
// packed into the payload of a quiet NaN with the kind in the top 16 bits:
//
//	    tag bits                       payload bits
//	SEEEEEEEEEEEMMMM MMMMMMMMMMMMMMMMMMMMMMMMMMMMMMMMMMMMMMMMMMMMMMMM
//	0111111111111000 000... -> the only real NaN
//	0111111111111xxx yyy... -> xxx = immediate kind, yyy = value
//	1111111111111xxx yyy... -> xxx = reference kind, yyy = heap address
//
// A value whose sign bit is set inside the NaN space is a heap reference and is the
// only kind the collector looks at.
package value

import (
	"fmt"
	"math"
)

// Ref is a heap address. Zero is the null reference.
type Ref uint64

// Tag identifies the kind of a Value.
type Tag uint16

const (
	canonNaNBits uint64 = 0x7FF8000000000000

	baseTag uint64 = 0x7FF8
	refBase uint64 = 0x8000 | baseTag

	tagShift      = 48
	tagExtraction = uint64(0xFFFF) << tagShift
	payloadMask   = ^tagExtraction
)

// Immediate tags.
const (
	TagNil     = Tag(0b001 | baseTag)
	TagSystem  = Tag(0b010 | baseTag)
	TagInteger = Tag(0b011 | baseTag)
	TagBoolean = Tag(0b100 | baseTag)
	TagSymbol  = Tag(0b101 | baseTag)
	TagChar    = Tag(0b110 | baseTag)
)

// Reference tags. TagFrame uses the all-zero kind bits, which never collides with a
// double because every NaN double is canonicalized to a positive NaN.
const (
	TagFrame      = Tag(0b000 | refBase)
	TagString     = Tag(0b001 | refBase)
	TagArray      = Tag(0b010 | refBase)
	TagBigInteger = Tag(0b011 | refBase)
	TagBlock      = Tag(0b100 | refBase)
	TagClass      = Tag(0b101 | refBase)
	TagInstance   = Tag(0b110 | refBase)
	TagInvokable  = Tag(0b111 | refBase)

	// TagDouble is reported by Tag for unboxed doubles. It is never stored.
	TagDouble = Tag(0)
)

// Integer payloads are 48-bit two's complement.
const (
	MaxInteger = 1<<47 - 1
	MinInteger = -(1 << 47)
)

// MaxRef is the largest heap address a reference payload can hold.
const MaxRef = Ref(payloadMask)

// Value is a tagged 64-bit runtime value.
type Value uint64

// Common constants.
var (
	Nil    = New(TagNil, 0)
	System = New(TagSystem, 0)
	True   = New(TagBoolean, 1)
	False  = New(TagBoolean, 0)
)

// New packs a tag and payload. Payload bits above 48 are dropped.
func New(tag Tag, payload uint64) Value {
	return Value(canonNaNBits | ((uint64(tag) << tagShift) & tagExtraction) | (payload & payloadMask))
}

// Integer returns an integer value. ok is false when n does not fit in 48 bits; the
// caller then needs a heap-allocated big integer.
func Integer(n int64) (v Value, ok bool) {
	if n < MinInteger || n > MaxInteger {
		return Nil, false
	}
	return New(TagInteger, uint64(n)), true
}

// MustInteger is Integer for constants known to fit.
func MustInteger(n int64) Value {
	v, ok := Integer(n)
	if !ok {
		panic(fmt.Sprintf("value: integer %d does not fit in 48 bits", n))
	}
	return v
}

// Double returns an unboxed double. Every NaN is canonicalized.
func Double(f float64) Value {
	if math.IsNaN(f) {
		return Value(canonNaNBits)
	}
	return Value(math.Float64bits(f))
}

// Boolean returns True or False.
func Boolean(b bool) Value {
	if b {
		return True
	}
	return False
}

// Symbol returns an interned symbol id.
func Symbol(id uint32) Value { return New(TagSymbol, uint64(id)) }

// Char returns a character value.
func Char(r rune) Value { return New(TagChar, uint64(uint32(r))) }

// Reference returns a heap reference with the given reference tag.
func Reference(tag Tag, ref Ref) Value {
	if !tag.IsRef() {
		panic(fmt.Sprintf("value: %s is not a reference tag", tag))
	}
	return New(tag, uint64(ref))
}

func (v Value) tagBits() uint64 { return uint64(v) >> tagShift }

func (v Value) tagged() bool {
	t := v.tagBits()
	return t&baseTag == baseTag && t != baseTag
}

// Tag returns the kind of v.
func (v Value) Tag() Tag {
	if !v.tagged() {
		return TagDouble
	}
	return Tag(v.tagBits())
}

// Payload returns the 48 payload bits.
func (v Value) Payload() uint64 { return uint64(v) & payloadMask }

// IsRef reports whether v is a heap reference (possibly null).
func (v Value) IsRef() bool { return v.tagged() && v.tagBits()&0x8000 != 0 }

// Ref returns the heap address held by v, or 0 if v is not a reference.
func (v Value) Ref() Ref {
	if !v.IsRef() {
		return 0
	}
	return Ref(v.Payload())
}

// WithRef returns v with its address replaced, keeping the tag.
func (v Value) WithRef(ref Ref) Value {
	return Value(uint64(v)&tagExtraction | uint64(ref)&payloadMask)
}

// IsNil reports whether v is nil.
func (v Value) IsNil() bool { return v == Nil }

// AsInteger returns the integer held by v.
func (v Value) AsInteger() (int64, bool) {
	if v.Tag() != TagInteger {
		return 0, false
	}
	return int64(uint64(v)<<16) >> 16, true
}

// AsDouble returns the double held by v.
func (v Value) AsDouble() (float64, bool) {
	if v.tagged() {
		return 0, false
	}
	return math.Float64frombits(uint64(v)), true
}

// AsBoolean returns the boolean held by v.
func (v Value) AsBoolean() (bool, bool) {
	if v.Tag() != TagBoolean {
		return false, false
	}
	return v.Payload() != 0, true
}

// AsSymbol returns the symbol id held by v.
func (v Value) AsSymbol() (uint32, bool) {
	if v.Tag() != TagSymbol {
		return 0, false
	}
	return uint32(v.Payload()), true
}

// AsChar returns the character held by v.
func (v Value) AsChar() (rune, bool) {
	if v.Tag() != TagChar {
		return 0, false
	}
	return rune(uint32(v.Payload())), true
}

func (v Value) String() string {
	switch t := v.Tag(); {
	case t == TagDouble:
		f, _ := v.AsDouble()
		return fmt.Sprintf("%g", f)
	case t == TagNil:
		return "nil"
	case t == TagSystem:
		return "system"
	case t == TagInteger:
		n, _ := v.AsInteger()
		return fmt.Sprintf("%d", n)
	case t == TagBoolean:
		b, _ := v.AsBoolean()
		return fmt.Sprintf("%t", b)
	case t == TagSymbol:
		return fmt.Sprintf("#%d", v.Payload())
	case t == TagChar:
		r, _ := v.AsChar()
		return fmt.Sprintf("$%c", r)
	case t.IsRef():
		return fmt.Sprintf("%s@%#x", t, v.Payload())
	default:
		return fmt.Sprintf("value(%#016x)", uint64(v))
	}
}

// IsRef reports whether t is a reference tag.
func (t Tag) IsRef() bool { return uint64(t)&refBase == refBase }

func (t Tag) String() string {
	switch t {
	case TagDouble:
		return "Double"
	case TagNil:
		return "Nil"
	case TagSystem:
		return "System"
	case TagInteger:
		return "Integer"
	case TagBoolean:
		return "Boolean"
	case TagSymbol:
		return "Symbol"
	case TagChar:
		return "Char"
	case TagFrame:
		return "Frame"
	case TagString:
		return "String"
	case TagArray:
		return "Array"
	case TagBigInteger:
		return "BigInteger"
	case TagBlock:
		return "Block"
	case TagClass:
		return "Class"
	case TagInstance:
		return "Instance"
	case TagInvokable:
		return "Invokable"
	}
	return fmt.Sprintf("Tag(%#04x)", uint16(t))
}
