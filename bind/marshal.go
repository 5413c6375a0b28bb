package bind

import (
	"github.com/chazu/mbind/vm"
)

// arrayObject is implemented by the array wrappers so that arguments can be
// matched by element type and rank without a VM call.
type arrayObject interface {
	Object
	arrayType() Type
}

// marshalArg converts a Go argument to the VM form of parameter type t. ok is
// false when arg does not match t exactly; there is no numeric widening. tmp
// is a local created for the call, deleted by the caller afterwards.
func marshalArg(env *Env, t Type, self *ClassDef, arg any) (j vm.JValue, tmp vm.Ref, ok bool) {
	if arg == nil {
		return vm.JRef(vm.Ref{}), vm.Ref{}, t.Kind() == vm.KindReference
	}
	switch x := arg.(type) {
	case Value:
		if x.Kind() != t.Kind() {
			return j, tmp, false
		}
		if t.Kind() == vm.KindReference && !referenceMatches(env, t, self, x.Object()) {
			return j, tmp, false
		}
		return x.j, tmp, true
	case vm.JValue:
		return x, tmp, x.Kind() == t.Kind()
	case int:
		// untyped integer constants arrive as int
		if !t.IsPrimitive() || t.kind != vm.KindInt || int(int32(x)) != x {
			return j, tmp, false
		}
		return vm.JInt(int32(x)), tmp, true
	case bool, int8, uint16, int16, int32, int64, float32, float64:
		if !t.IsPrimitive() || kindOfGo(x) != t.kind {
			return j, tmp, false
		}
		return scalarJ(x), tmp, true
	case string:
		if name := t.ClassName(self); t.IsArray() || (name != String.class && name != JavaObject.class) {
			return j, tmp, false
		}
		s := NewString(env, x)
		return vm.JRef(s.ref), s.ref, true
	case []string:
		if t.Rank() != 1 || t.ClassName(self) != String.class {
			return j, tmp, false
		}
		arr, err := NewStringArrayFrom(env, x)
		if err != nil {
			return j, tmp, false
		}
		return vm.JRef(arr.ref), arr.ref, true
	case []bool, []int8, []uint16, []int16, []int32, []int64, []float32, []float64:
		k := vm.PrimitiveKindOf(x)
		if t.Rank() != 1 || t.kind != k {
			return j, tmp, false
		}
		ref := env.raw.NewPrimitiveArray(k, sliceLen(x))
		env.raw.SetArrayRegion(ref, 0, x)
		return vm.JRef(ref), ref, true
	case Object:
		if !referenceMatches(env, t, self, x) {
			return j, tmp, false
		}
		return vm.JRef(x.raw()), tmp, true
	}
	return j, tmp, false
}

func scalarJ(x any) vm.JValue {
	switch v := x.(type) {
	case bool:
		return vm.JBoolean(v)
	case int8:
		return vm.JByte(v)
	case uint16:
		return vm.JChar(v)
	case int16:
		return vm.JShort(v)
	case int32:
		return vm.JInt(v)
	case int64:
		return vm.JLong(v)
	case float32:
		return vm.JFloat(v)
	case float64:
		return vm.JDouble(v)
	}
	return vm.JVoid
}

func sliceLen(x any) int {
	switch v := x.(type) {
	case []bool:
		return len(v)
	case []int8:
		return len(v)
	case []uint16:
		return len(v)
	case []int16:
		return len(v)
	case []int32:
		return len(v)
	case []int64:
		return len(v)
	case []float32:
		return len(v)
	case []float64:
		return len(v)
	}
	return 0
}

// referenceMatches reports whether o may be passed where t is expected.
// The static definition decides when it names the class; otherwise the
// object's runtime class is checked by name.
func referenceMatches(env *Env, t Type, self *ClassDef, o Object) bool {
	if t.Kind() != vm.KindReference {
		return false
	}
	if o.raw().IsNull() {
		return true
	}
	want := t.Descriptor(self)
	if a, ok := o.(arrayObject); ok {
		if !t.IsArray() {
			return t.ClassName(self) == JavaObject.class
		}
		return a.arrayType().Descriptor(nil) == want
	}
	obj := env.raw.Deref(o.raw())
	if t.IsArray() {
		at, ok := obj.Class().ArrayType()
		return ok && at.String() == want
	}
	name := t.ClassName(self)
	if name == JavaObject.class {
		return true
	}
	if d := o.Def(); d != nil && d.BinaryName() == name {
		return true
	}
	return hasAncestor(obj.Class(), name)
}

// hasAncestor reports whether c is, extends or implements the class named
// name.
func hasAncestor(c *vm.Class, name string) bool {
	for s := c; s != nil; s = s.Superclass {
		if s.Name == name {
			return true
		}
		for _, i := range s.Interfaces {
			if hasAncestor(i, name) {
				return true
			}
		}
	}
	return false
}

// marshalArgs matches args against params, returning the converted values.
// On mismatch the temporaries already created are released.
func marshalArgs(env *Env, params []Type, self *ClassDef, args []any) ([]vm.JValue, []vm.Ref, bool) {
	if len(params) != len(args) {
		return nil, nil, false
	}
	js := make([]vm.JValue, len(args))
	var tmps []vm.Ref
	for i, a := range args {
		j, tmp, ok := marshalArg(env, params[i], self, a)
		if !tmp.IsNull() {
			tmps = append(tmps, tmp)
		}
		if !ok {
			releaseTemps(env, tmps)
			return nil, nil, false
		}
		js[i] = j
	}
	return js, tmps, true
}

func releaseTemps(env *Env, tmps []vm.Ref) {
	for _, r := range tmps {
		env.raw.DeleteLocalRef(r)
	}
}
