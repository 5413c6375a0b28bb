package bind

import (
	"fmt"

	"github.com/chazu/mbind/vm"
)

// Value is a method result or field value. Reference results are locals of
// the frame the call was made in.
type Value struct {
	env  *Env
	j    vm.JValue
	typ  Type
	self *ClassDef
}

func zeroValue(env *Env, t Type, self *ClassDef) Value {
	return Value{env: env, typ: t, self: self}
}

// Type returns the declared type of the value.
func (v Value) Type() Type { return v.typ }

// Kind returns the VM kind of the value.
func (v Value) Kind() vm.Kind { return v.typ.Kind() }

// Raw returns the VM form of the value.
func (v Value) Raw() vm.JValue { return v.j }

// IsNull reports whether a reference value is null.
func (v Value) IsNull() bool { return v.j.Ref().IsNull() }

// Typed accessors. The caller picks the one matching the declared type.
func (v Value) Bool() bool      { return v.j.Bool() }
func (v Value) Byte() int8      { return v.j.Byte() }
func (v Value) Char() uint16    { return v.j.Char() }
func (v Value) Short() int16    { return v.j.Short() }
func (v Value) Int() int32      { return v.j.Int() }
func (v Value) Long() int64     { return v.j.Long() }
func (v Value) Float() float32  { return v.j.Float() }
func (v Value) Double() float64 { return v.j.Double() }

// Object returns a reference result as a local object. A Self result is
// bound to the definition of the object the call was made on; a result
// declared with a class name only comes back untyped.
func (v Value) Object() LocalObject {
	return LocalObject{env: v.env, ref: v.j.Ref(), def: v.typ.Def(v.self)}
}

// LocalString returns a string result.
func (v Value) LocalString() LocalString {
	return LocalString{env: v.env, ref: v.j.Ref()}
}

// Text copies a string result into a Go string. Null yields "".
func (v Value) Text() string {
	if v.IsNull() {
		return ""
	}
	return v.LocalString().Copy()
}

func (v Value) String() string {
	switch v.Kind() {
	case vm.KindVoid:
		return "void"
	case vm.KindBoolean:
		return fmt.Sprint(v.Bool())
	case vm.KindByte:
		return fmt.Sprint(v.Byte())
	case vm.KindChar:
		return fmt.Sprintf("%q", rune(v.Char()))
	case vm.KindShort:
		return fmt.Sprint(v.Short())
	case vm.KindInt:
		return fmt.Sprint(v.Int())
	case vm.KindLong:
		return fmt.Sprint(v.Long())
	case vm.KindFloat:
		return fmt.Sprint(v.Float())
	case vm.KindDouble:
		return fmt.Sprint(v.Double())
	}
	return v.j.Ref().String()
}

// as converts the value to T. It backs CallAs and the typed getters.
func as[T any](v Value) (T, error) {
	var out T
	var x any
	switch any(out).(type) {
	case bool:
		x = v.Bool()
	case int8:
		x = v.Byte()
	case uint16:
		x = v.Char()
	case int16:
		x = v.Short()
	case int32:
		x = v.Int()
	case int64:
		x = v.Long()
	case float32:
		x = v.Float()
	case float64:
		x = v.Double()
	case string:
		x = v.Text()
	case LocalObject:
		x = v.Object()
	case LocalString:
		x = v.LocalString()
	case Value:
		x = v
	default:
		return out, fmt.Errorf("cannot convert %s result to %T", v.typ, out)
	}
	want := v.typ.Kind()
	if !convertible(x, want) {
		return out, fmt.Errorf("cannot convert %s result to %T", v.typ, out)
	}
	return x.(T), nil
}

func convertible(x any, k vm.Kind) bool {
	switch x.(type) {
	case Value:
		return true
	case string, LocalObject, LocalString:
		return k == vm.KindReference
	}
	return kindOfGo(x) == k
}

// kindOfGo returns the VM kind a Go scalar maps to, or KindVoid.
func kindOfGo(x any) vm.Kind {
	switch x.(type) {
	case bool:
		return vm.KindBoolean
	case int8:
		return vm.KindByte
	case uint16:
		return vm.KindChar
	case int16:
		return vm.KindShort
	case int32:
		return vm.KindInt
	case int64:
		return vm.KindLong
	case float32:
		return vm.KindFloat
	case float64:
		return vm.KindDouble
	}
	return vm.KindVoid
}
