package vm

import (
	"fmt"
	"sync/atomic"
	"unicode/utf16"
)

// Object represents a heap-allocated managed object.
//
// One struct covers every shape the heap holds; exactly one of the payload
// groups is in use, selected by the object's class:
//   - instances use fields (one slot per declared field, superclass first)
//   - strings use chars (UTF-16 code units)
//   - primitive arrays use prims (a typed Go slice such as []int32)
//   - reference arrays use elems
//   - class and class-loader mirrors use mirror / loader
type Object struct {
	class *Class
	id    uint64

	fields []Value

	chars []uint16

	prims any
	elems []*Object

	mirror *Class
	loader *ClassLoader

	collected atomic.Bool
}

var objectIDs atomic.Uint64

// newObject allocates an object and registers it with the owning VM's heap.
func newObject(c *Class) *Object {
	obj := &Object{class: c, id: objectIDs.Add(1)}
	if c != nil && c.Loader != nil && c.Loader.vm != nil {
		c.Loader.vm.track(obj)
	}
	return obj
}

// Class returns the object's runtime class.
func (obj *Object) Class() *Class {
	return obj.class
}

// ID returns the object's identity number, stable for the object's life.
func (obj *Object) ID() uint64 {
	return obj.id
}

// Collected returns true once the garbage collector found the object
// unreachable.
func (obj *Object) Collected() bool {
	return obj.collected.Load()
}

// IsString returns true for string objects.
func (obj *Object) IsString() bool {
	return obj.class != nil && obj.class.isString
}

// IsArray returns true for primitive and reference arrays.
func (obj *Object) IsArray() bool {
	return obj.class != nil && obj.class.array != nil
}

// String implements the Stringer interface.
func (obj *Object) String() string {
	switch {
	case obj == nil:
		return "null"
	case obj.IsString():
		return fmt.Sprintf("%q", obj.GoString())
	case obj.mirror != nil:
		return "class " + obj.mirror.Name
	case obj.IsArray():
		return fmt.Sprintf("%s[%d]", obj.class.Name, obj.ArrayLength())
	}
	return fmt.Sprintf("%s@%x", obj.class.Name, obj.id)
}

// ---------------------------------------------------------------------------
// Instance fields (managed-side access)
// ---------------------------------------------------------------------------

// GetField returns the value of the named instance field, searching
// superclasses. Panics if the field does not exist.
func (obj *Object) GetField(name string) Value {
	f := obj.class.LookupField(name, false)
	if f == nil {
		panic(fmt.Sprintf("Object.GetField: %s has no field %s", obj.class.Name, name))
	}
	return obj.fields[f.slot]
}

// SetField stores into the named instance field, searching superclasses.
// Panics if the field does not exist.
func (obj *Object) SetField(name string, v Value) {
	f := obj.class.LookupField(name, false)
	if f == nil {
		panic(fmt.Sprintf("Object.SetField: %s has no field %s", obj.class.Name, name))
	}
	obj.fields[f.slot] = v
}

// ---------------------------------------------------------------------------
// Strings
// ---------------------------------------------------------------------------

// Chars returns the string's UTF-16 storage. The slice aliases managed memory.
func (obj *Object) Chars() []uint16 {
	return obj.chars
}

// GoString decodes a string object into a Go string. Unpaired surrogates
// decode to U+FFFD.
func (obj *Object) GoString() string {
	return string(utf16.Decode(obj.chars))
}

// ---------------------------------------------------------------------------
// Arrays
// ---------------------------------------------------------------------------

// ArrayLength returns the number of elements in an array object.
func (obj *Object) ArrayLength() int {
	if obj.elems != nil || obj.prims == nil {
		return len(obj.elems)
	}
	return primLen(obj.prims)
}

// Elements returns the backing slice of a reference array.
func (obj *Object) Elements() []*Object {
	return obj.elems
}

// Primitives returns the backing slice of a primitive array
// ([]bool, []uint16, []int8, []int16, []int32, []int64, []float32 or []float64).
func (obj *Object) Primitives() any {
	return obj.prims
}

// Mirror returns the class a java/lang/Class object stands for.
func (obj *Object) Mirror() *Class {
	return obj.mirror
}

// Loader returns the class loader a java/lang/ClassLoader object stands for.
func (obj *Object) Loader() *ClassLoader {
	return obj.loader
}

// references calls fn for every object directly reachable from obj.
func (obj *Object) references(fn func(*Object)) {
	for _, v := range obj.fields {
		if v.ref != nil {
			fn(v.ref)
		}
	}
	for _, e := range obj.elems {
		if e != nil {
			fn(e)
		}
	}
	if obj.mirror != nil && obj.mirror.Loader != nil && obj.mirror.Loader.mirror != nil {
		fn(obj.mirror.Loader.mirror)
	}
}
