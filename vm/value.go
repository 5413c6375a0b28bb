package vm

import (
	"fmt"
	"math"
)

// ---------------------------------------------------------------------------
// Kind: the primitive and reference kinds of the managed type system
// ---------------------------------------------------------------------------

// Kind identifies the storage class of a managed value.
type Kind uint8

const (
	KindVoid Kind = iota
	KindBoolean
	KindByte
	KindChar
	KindShort
	KindInt
	KindLong
	KindFloat
	KindDouble
	KindReference
)

var kindNames = [...]string{
	KindVoid:      "void",
	KindBoolean:   "boolean",
	KindByte:      "byte",
	KindChar:      "char",
	KindShort:     "short",
	KindInt:       "int",
	KindLong:      "long",
	KindFloat:     "float",
	KindDouble:    "double",
	KindReference: "reference",
}

// String implements the Stringer interface.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Descriptor returns the single-character type descriptor for a primitive
// kind. References return 'L'; the caller appends the class name.
func (k Kind) Descriptor() byte {
	switch k {
	case KindVoid:
		return 'V'
	case KindBoolean:
		return 'Z'
	case KindByte:
		return 'B'
	case KindChar:
		return 'C'
	case KindShort:
		return 'S'
	case KindInt:
		return 'I'
	case KindLong:
		return 'J'
	case KindFloat:
		return 'F'
	case KindDouble:
		return 'D'
	}
	return 'L'
}

// IsPrimitive returns true for every kind except void and reference.
func (k Kind) IsPrimitive() bool {
	return k != KindVoid && k != KindReference
}

// kindFromDescriptor maps a descriptor character to its kind.
// Returns false for characters that do not start a type.
func kindFromDescriptor(c byte) (Kind, bool) {
	switch c {
	case 'V':
		return KindVoid, true
	case 'Z':
		return KindBoolean, true
	case 'B':
		return KindByte, true
	case 'C':
		return KindChar, true
	case 'S':
		return KindShort, true
	case 'I':
		return KindInt, true
	case 'J':
		return KindLong, true
	case 'F':
		return KindFloat, true
	case 'D':
		return KindDouble, true
	case 'L', '[':
		return KindReference, true
	}
	return KindVoid, false
}

// ---------------------------------------------------------------------------
// Value: a managed value as seen by method bodies inside the VM
// ---------------------------------------------------------------------------

// Value is a managed value. Primitives are stored as raw bits so that
// floating point payloads (NaN patterns, signed zero) survive unchanged.
// References hold the object pointer directly; this representation is only
// handed to managed method bodies. Native code sees JValue instead.
type Value struct {
	kind Kind
	bits uint64
	ref  *Object
}

// Void is the result of a method returning nothing.
var Void = Value{}

// Null is the null reference.
var Null = Value{kind: KindReference}

// BooleanValue creates a boolean value.
func BooleanValue(b bool) Value {
	if b {
		return Value{kind: KindBoolean, bits: 1}
	}
	return Value{kind: KindBoolean}
}

// ByteValue creates a byte value.
func ByteValue(b int8) Value { return Value{kind: KindByte, bits: uint64(uint8(b))} }

// CharValue creates a char value.
func CharValue(c uint16) Value { return Value{kind: KindChar, bits: uint64(c)} }

// ShortValue creates a short value.
func ShortValue(s int16) Value { return Value{kind: KindShort, bits: uint64(uint16(s))} }

// IntValue creates an int value.
func IntValue(i int32) Value { return Value{kind: KindInt, bits: uint64(uint32(i))} }

// LongValue creates a long value.
func LongValue(l int64) Value { return Value{kind: KindLong, bits: uint64(l)} }

// FloatValue creates a float value from its exact bit pattern.
func FloatValue(f float32) Value {
	return Value{kind: KindFloat, bits: uint64(math.Float32bits(f))}
}

// DoubleValue creates a double value from its exact bit pattern.
func DoubleValue(d float64) Value {
	return Value{kind: KindDouble, bits: math.Float64bits(d)}
}

// RefValue wraps an object pointer. A nil object yields Null.
func RefValue(obj *Object) Value {
	return Value{kind: KindReference, ref: obj}
}

// ZeroValue returns the default value for a kind: numeric zero, false, or null.
func ZeroValue(k Kind) Value {
	return Value{kind: k}
}

// Kind returns the value's kind.
func (v Value) Kind() Kind { return v.kind }

// Bits returns the raw payload bits of a primitive value.
func (v Value) Bits() uint64 { return v.bits }

// Bool returns the boolean payload.
func (v Value) Bool() bool { return v.bits&1 == 1 }

// Byte returns the byte payload.
func (v Value) Byte() int8 { return int8(uint8(v.bits)) }

// Char returns the char payload.
func (v Value) Char() uint16 { return uint16(v.bits) }

// Short returns the short payload.
func (v Value) Short() int16 { return int16(uint16(v.bits)) }

// Int returns the int payload.
func (v Value) Int() int32 { return int32(uint32(v.bits)) }

// Long returns the long payload.
func (v Value) Long() int64 { return int64(v.bits) }

// Float returns the float payload.
func (v Value) Float() float32 { return math.Float32frombits(uint32(v.bits)) }

// Double returns the double payload.
func (v Value) Double() float64 { return math.Float64frombits(v.bits) }

// Object returns the referenced object, or nil.
func (v Value) Object() *Object { return v.ref }

// IsNull returns true for a null reference (or a non-reference value).
func (v Value) IsNull() bool { return v.ref == nil }

// String implements the Stringer interface.
func (v Value) String() string {
	switch v.kind {
	case KindVoid:
		return "void"
	case KindBoolean:
		return fmt.Sprintf("%t", v.Bool())
	case KindByte:
		return fmt.Sprintf("%d", v.Byte())
	case KindChar:
		return fmt.Sprintf("%q", rune(v.Char()))
	case KindShort:
		return fmt.Sprintf("%d", v.Short())
	case KindInt:
		return fmt.Sprintf("%d", v.Int())
	case KindLong:
		return fmt.Sprintf("%d", v.Long())
	case KindFloat:
		return fmt.Sprintf("%g", v.Float())
	case KindDouble:
		return fmt.Sprintf("%g", v.Double())
	}
	if v.ref == nil {
		return "null"
	}
	return v.ref.String()
}

// ---------------------------------------------------------------------------
// JValue: a managed value as seen by native code
// ---------------------------------------------------------------------------

// JValue is the native-facing form of Value: references are carried as
// handles (Ref) whose lifetime rules the VM enforces.
type JValue struct {
	kind Kind
	bits uint64
	ref  Ref
}

// JBoolean creates a boolean argument.
func JBoolean(b bool) JValue { v := BooleanValue(b); return JValue{kind: v.kind, bits: v.bits} }

// JByte creates a byte argument.
func JByte(b int8) JValue { v := ByteValue(b); return JValue{kind: v.kind, bits: v.bits} }

// JChar creates a char argument.
func JChar(c uint16) JValue { v := CharValue(c); return JValue{kind: v.kind, bits: v.bits} }

// JShort creates a short argument.
func JShort(s int16) JValue { v := ShortValue(s); return JValue{kind: v.kind, bits: v.bits} }

// JInt creates an int argument.
func JInt(i int32) JValue { v := IntValue(i); return JValue{kind: v.kind, bits: v.bits} }

// JLong creates a long argument.
func JLong(l int64) JValue { v := LongValue(l); return JValue{kind: v.kind, bits: v.bits} }

// JFloat creates a float argument.
func JFloat(f float32) JValue { v := FloatValue(f); return JValue{kind: v.kind, bits: v.bits} }

// JDouble creates a double argument.
func JDouble(d float64) JValue { v := DoubleValue(d); return JValue{kind: v.kind, bits: v.bits} }

// JRef creates a reference argument. A null Ref is a valid null argument.
func JRef(r Ref) JValue { return JValue{kind: KindReference, ref: r} }

// JVoid is returned by natives without a result.
var JVoid = JValue{}

// Kind returns the value's kind.
func (j JValue) Kind() Kind { return j.kind }

// Bits returns the raw payload bits.
func (j JValue) Bits() uint64 { return j.bits }

// Ref returns the reference handle (null for primitives).
func (j JValue) Ref() Ref { return j.ref }

// Bool returns the boolean payload.
func (j JValue) Bool() bool { return j.bits&1 == 1 }

// Byte returns the byte payload.
func (j JValue) Byte() int8 { return int8(uint8(j.bits)) }

// Char returns the char payload.
func (j JValue) Char() uint16 { return uint16(j.bits) }

// Short returns the short payload.
func (j JValue) Short() int16 { return int16(uint16(j.bits)) }

// Int returns the int payload.
func (j JValue) Int() int32 { return int32(uint32(j.bits)) }

// Long returns the long payload.
func (j JValue) Long() int64 { return int64(j.bits) }

// Float returns the float payload.
func (j JValue) Float() float32 { return math.Float32frombits(uint32(j.bits)) }

// Double returns the double payload.
func (j JValue) Double() float64 { return math.Float64frombits(j.bits) }
