package bind

import (
	"fmt"

	"github.com/chazu/mbind/vm"
)

// ---------------------------------------------------------------------------
// Object arrays
// ---------------------------------------------------------------------------

// ObjectArray is a local reference to an array whose elements are
// references: objects, strings or arrays of lower rank. Object arrays have
// no critical access path.
type ObjectArray struct {
	env  *Env
	ref  vm.Ref
	elem Type
}

func elementClassName(elem Type) (string, error) {
	if elem.IsArray() {
		return elem.Descriptor(nil), nil
	}
	if elem.Kind() != vm.KindReference || elem.self {
		return "", fmt.Errorf("no element class for %s", elem)
	}
	return elem.class, nil
}

func newObjectArray(env *Env, elem Type, n int, init vm.Ref) (ObjectArray, error) {
	a := ObjectArray{env: env, elem: elem}
	if err := env.live(); err != nil {
		return a, err
	}
	name, err := elementClassName(elem)
	if err != nil {
		return a, err
	}
	cls, err := env.Find(name)
	if err != nil {
		return a, err
	}
	a.ref = env.raw.NewObjectArray(n, cls.global, init)
	if exc := Observe(env); exc != nil {
		return a, exc
	}
	return a, nil
}

// NewArrayOf allocates an array of n null elements of type elem.
func NewArrayOf(env *Env, elem Type, n int) (ObjectArray, error) {
	return newObjectArray(env, elem, n, vm.Ref{})
}

// NewObjectArray allocates an array of n null instances of def.
func NewObjectArray(env *Env, def *ClassDef, n int) (ObjectArray, error) {
	return newObjectArray(env, ObjectOf(def), n, vm.Ref{})
}

// NewStringArray allocates an array of n empty strings.
func NewStringArray(env *Env, n int) (ObjectArray, error) {
	empty := NewString(env, "")
	defer empty.Delete()
	return newObjectArray(env, String, n, empty.ref)
}

// NewStringArrayFrom allocates a string array holding src.
func NewStringArrayFrom(env *Env, src []string) (ObjectArray, error) {
	a, err := NewStringArray(env, len(src))
	if err != nil {
		return a, err
	}
	for i, s := range src {
		str := NewString(env, s)
		env.raw.SetObjectArrayElement(a.ref, i, str.ref)
		str.Delete()
	}
	return a, nil
}

// WrapObjectArray adopts a raw reference array whose elements have type
// elem.
func WrapObjectArray(env *Env, ref vm.Ref, elem Type) ObjectArray {
	return ObjectArray{env: env, ref: ref, elem: elem}
}

// AsObjectArray converts an array-typed result to an ObjectArray.
func AsObjectArray(v Value) ObjectArray {
	elem := v.typ.Elem()
	if elem.self {
		elem = ObjectOf(v.self)
	}
	return ObjectArray{env: v.env, ref: v.j.Ref(), elem: elem}
}

func (a ObjectArray) raw() vm.Ref { return a.ref }

// Def returns nil: arrays have no class definition.
func (a ObjectArray) Def() *ClassDef { return nil }

func (a ObjectArray) arrayType() Type { return ArrayOf(a.elem, 1) }

// IsNull reports whether the reference is null.
func (a ObjectArray) IsNull() bool { return a.ref.IsNull() }

// Len returns the number of elements.
func (a ObjectArray) Len() int { return a.env.raw.GetArrayLength(a.ref) }

// Rank returns the number of dimensions.
func (a ObjectArray) Rank() int { return a.elem.Rank() + 1 }

// Elem returns the element type.
func (a ObjectArray) Elem() Type { return a.elem }

// Get returns element i as a local bound to the element definition.
func (a ObjectArray) Get(i int) LocalObject {
	return LocalObject{env: a.env, ref: a.env.raw.GetObjectArrayElement(a.ref, i), def: a.elem.def}
}

// GetString copies string element i. A null element yields "".
func (a ObjectArray) GetString(i int) string {
	ref := a.env.raw.GetObjectArrayElement(a.ref, i)
	if ref.IsNull() {
		return ""
	}
	s := LocalString{env: a.env, ref: ref}
	defer s.Delete()
	return s.Copy()
}

// Set stores o at index i. Storing an element of the wrong class leaves an
// ArrayStoreException pending and returns it.
func (a ObjectArray) Set(i int, o Object) error {
	var ref vm.Ref
	if o != nil {
		ref = o.raw()
	}
	a.env.raw.SetObjectArrayElement(a.ref, i, ref)
	if exc := Observe(a.env); exc != nil {
		return exc
	}
	return nil
}

// SetString stores a new string at index i.
func (a ObjectArray) SetString(i int, s string) error {
	str := NewString(a.env, s)
	defer str.Delete()
	return a.Set(i, str)
}

// Row returns element i of an array of reference arrays.
func (a ObjectArray) Row(i int) ObjectArray {
	return ObjectArray{env: a.env, ref: a.env.raw.GetObjectArrayElement(a.ref, i), elem: a.elem.Elem()}
}

// Strings copies every element of a string array.
func (a ObjectArray) Strings() []string {
	out := make([]string, a.Len())
	for i := range out {
		out[i] = a.GetString(i)
	}
	return out
}

// Release hands the raw reference to the caller.
func (a ObjectArray) Release() vm.Ref { return a.ref }

// Delete frees the local before its frame ends.
func (a ObjectArray) Delete() {
	if !a.ref.IsNull() {
		a.env.raw.DeleteLocalRef(a.ref)
	}
}

// ---------------------------------------------------------------------------
// Two-dimensional primitive arrays
// ---------------------------------------------------------------------------

// Array2 is a local reference to an array of primitive arrays. Rows may
// differ in length.
type Array2[T Primitive] struct {
	rows ObjectArray
}

// NewArray2 allocates rows arrays of cols zeroed elements each.
func NewArray2[T Primitive](env *Env, rows, cols int) (Array2[T], error) {
	outer, err := NewArrayOf(env, ArrayOf(typeOf[T](), 1), rows)
	if err != nil {
		return Array2[T]{rows: outer}, err
	}
	for i := 0; i < rows; i++ {
		row, err := NewArray[T](env, cols)
		if err != nil {
			return Array2[T]{rows: outer}, err
		}
		env.raw.SetObjectArrayElement(outer.ref, i, row.ref)
		row.Delete()
	}
	return Array2[T]{rows: outer}, nil
}

// NewArray2From allocates a two-dimensional array holding a copy of src.
func NewArray2From[T Primitive](env *Env, src [][]T) (Array2[T], error) {
	outer, err := NewArrayOf(env, ArrayOf(typeOf[T](), 1), len(src))
	if err != nil {
		return Array2[T]{rows: outer}, err
	}
	for i, r := range src {
		row, err := NewArrayFrom(env, r)
		if err != nil {
			return Array2[T]{rows: outer}, err
		}
		env.raw.SetObjectArrayElement(outer.ref, i, row.ref)
		row.Delete()
	}
	return Array2[T]{rows: outer}, nil
}

// AsArray2 converts a two-dimensional array result.
func AsArray2[T Primitive](v Value) Array2[T] {
	return Array2[T]{rows: ObjectArray{env: v.env, ref: v.j.Ref(), elem: ArrayOf(typeOf[T](), 1)}}
}

func (a Array2[T]) raw() vm.Ref { return a.rows.ref }

// Def returns nil: arrays have no class definition.
func (a Array2[T]) Def() *ClassDef { return nil }

func (a Array2[T]) arrayType() Type { return ArrayOf(typeOf[T](), 2) }

// IsNull reports whether the reference is null.
func (a Array2[T]) IsNull() bool { return a.rows.IsNull() }

// Rows returns the number of rows.
func (a Array2[T]) Rows() int { return a.rows.Len() }

// Rank returns 2.
func (a Array2[T]) Rank() int { return 2 }

// Row returns row i.
func (a Array2[T]) Row(i int) LocalArray[T] {
	return LocalArray[T]{env: a.rows.env, ref: a.rows.env.raw.GetObjectArrayElement(a.rows.ref, i)}
}

// SetRow replaces row i.
func (a Array2[T]) SetRow(i int, row LocalArray[T]) error {
	return a.rows.Set(i, row)
}

// Copy returns an owned copy of every row.
func (a Array2[T]) Copy() [][]T {
	out := make([][]T, a.Rows())
	for i := range out {
		row := a.Row(i)
		if !row.IsNull() {
			out[i] = row.Copy()
		}
		row.Delete()
	}
	return out
}

// Release hands the raw reference to the caller.
func (a Array2[T]) Release() vm.Ref { return a.rows.ref }

// Delete frees the local before its frame ends.
func (a Array2[T]) Delete() { a.rows.Delete() }
