package vm

import "reflect"

// ReleaseMode selects what happens to a native copy of array elements when
// it is released.
type ReleaseMode int

const (
	ReleaseDefault ReleaseMode = iota // write back, then drop the buffer
	ReleaseCommit                     // write back, keep using the buffer
	ReleaseAbort                      // drop the buffer without writing back
)

// ---------------------------------------------------------------------------
// Primitive storage
//
// Primitive arrays store a typed Go slice: []bool, []int8, []uint16, []int16,
// []int32, []int64, []float32 or []float64.
// ---------------------------------------------------------------------------

func makePrim(k Kind, n int) any {
	switch k {
	case KindBoolean:
		return make([]bool, n)
	case KindByte:
		return make([]int8, n)
	case KindChar:
		return make([]uint16, n)
	case KindShort:
		return make([]int16, n)
	case KindInt:
		return make([]int32, n)
	case KindLong:
		return make([]int64, n)
	case KindFloat:
		return make([]float32, n)
	case KindDouble:
		return make([]float64, n)
	}
	return nil
}

// PrimitiveKindOf returns the element kind of a primitive slice, or
// KindVoid for anything else.
func PrimitiveKindOf(p any) Kind {
	switch p.(type) {
	case []bool:
		return KindBoolean
	case []int8:
		return KindByte
	case []uint16:
		return KindChar
	case []int16:
		return KindShort
	case []int32:
		return KindInt
	case []int64:
		return KindLong
	case []float32:
		return KindFloat
	case []float64:
		return KindDouble
	}
	return KindVoid
}

func primLen(p any) int {
	if p == nil {
		return 0
	}
	return reflect.ValueOf(p).Len()
}

func primClone(p any) any {
	v := reflect.ValueOf(p)
	c := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
	reflect.Copy(c, v)
	return c.Interface()
}

// primCopyAt copies src into dst starting at element off.
func primCopyAt(dst any, off int, src any) {
	d := reflect.ValueOf(dst)
	reflect.Copy(d.Slice(off, d.Len()), reflect.ValueOf(src))
}

// primSlice returns elements [start, start+n) of p without copying.
func primSlice(p any, start, n int) any {
	return reflect.ValueOf(p).Slice(start, start+n).Interface()
}

func primGet(p any, i int) Value {
	switch s := p.(type) {
	case []bool:
		return BooleanValue(s[i])
	case []int8:
		return ByteValue(s[i])
	case []uint16:
		return CharValue(s[i])
	case []int16:
		return ShortValue(s[i])
	case []int32:
		return IntValue(s[i])
	case []int64:
		return LongValue(s[i])
	case []float32:
		return FloatValue(s[i])
	case []float64:
		return DoubleValue(s[i])
	}
	return Void
}

func primSet(p any, i int, v Value) {
	switch s := p.(type) {
	case []bool:
		s[i] = v.Bool()
	case []int8:
		s[i] = v.Byte()
	case []uint16:
		s[i] = v.Char()
	case []int16:
		s[i] = v.Short()
	case []int32:
		s[i] = v.Int()
	case []int64:
		s[i] = v.Long()
	case []float32:
		s[i] = v.Float()
	case []float64:
		s[i] = v.Double()
	}
}

// ---------------------------------------------------------------------------
// Allocation (managed side)
// ---------------------------------------------------------------------------

// NewPrimitiveArrayObject allocates a zeroed primitive array.
func (vm *VM) NewPrimitiveArrayObject(k Kind, n int) *Object {
	obj := newObject(vm.PrimitiveArrayClass(k))
	obj.prims = makePrim(k, n)
	return obj
}

// WrapPrimitiveArray allocates a primitive array that takes ownership of
// the given typed slice.
func (vm *VM) WrapPrimitiveArray(p any) *Object {
	k := PrimitiveKindOf(p)
	if k == KindVoid {
		panic("WrapPrimitiveArray: not a primitive slice")
	}
	obj := newObject(vm.PrimitiveArrayClass(k))
	obj.prims = p
	return obj
}

// NewObjectArrayObject allocates an array of n null elements of class elem.
func (vm *VM) NewObjectArrayObject(elem *Class, n int) *Object {
	obj := newObject(vm.ArrayClassOf(elem))
	obj.elems = make([]*Object, n)
	return obj
}

// ArrayGet reads element i of an array object.
func (obj *Object) ArrayGet(i int) Value {
	if obj.prims != nil {
		return primGet(obj.prims, i)
	}
	return RefValue(obj.elems[i])
}

// ArraySet writes element i of an array object.
func (obj *Object) ArraySet(i int, v Value) {
	if obj.prims != nil {
		primSet(obj.prims, i, v)
		return
	}
	obj.elems[i] = v.ref
}

// ---------------------------------------------------------------------------
// Array operations (native side)
// ---------------------------------------------------------------------------

func (env *Env) arrayOf(arr Ref) *Object {
	obj := env.deref(arr)
	if obj == nil {
		env.vm.Fatal(ContractNullReceiver, "array operation on null")
	}
	if !obj.IsArray() {
		env.vm.Fatal(ContractWrongObject, "%s is not an array", obj.class.Name)
	}
	return obj
}

func (env *Env) primArrayOf(arr Ref) *Object {
	obj := env.arrayOf(arr)
	if obj.prims == nil {
		env.vm.Fatal(ContractWrongObject, "%s is not a primitive array", obj.class.Name)
	}
	return obj
}

func (env *Env) refArrayOf(arr Ref) *Object {
	obj := env.arrayOf(arr)
	if obj.prims != nil {
		env.vm.Fatal(ContractWrongObject, "%s is not a reference array", obj.class.Name)
	}
	return obj
}

func (env *Env) checkIndex(obj *Object, i int) {
	if n := obj.ArrayLength(); i < 0 || i >= n {
		env.vm.Fatal(ContractArrayBounds, "index %d of %s length %d", i, obj.class.Name, n)
	}
}

func (env *Env) checkRegion(obj *Object, start, n int) {
	if l := obj.ArrayLength(); start < 0 || n < 0 || start+n > l {
		env.vm.Fatal(ContractArrayBounds, "region [%d,+%d) of %s length %d", start, n, obj.class.Name, l)
	}
}

func (env *Env) checkSliceType(obj *Object, p any) {
	if reflect.TypeOf(p) != reflect.TypeOf(obj.prims) {
		env.vm.Fatal(ContractArgumentType, "%T buffer for %s", p, obj.class.Name)
	}
}

// GetArrayLength returns the length of any array.
func (env *Env) GetArrayLength(arr Ref) int {
	env.enter()
	return env.arrayOf(arr).ArrayLength()
}

// ArrayType returns the type descriptor of an array.
func (env *Env) ArrayType(arr Ref) TypeDesc {
	env.enter()
	return *env.arrayOf(arr).class.array
}

// NewPrimitiveArray allocates a zeroed primitive array of n elements.
// A negative length throws NegativeArraySizeException.
func (env *Env) NewPrimitiveArray(k Kind, n int) Ref {
	env.enter()
	if !k.IsPrimitive() {
		env.vm.Fatal(ContractArgumentType, "primitive array of %s", k)
	}
	if n < 0 {
		env.throwNew("java/lang/NegativeArraySizeException", "negative array length")
		return Ref{}
	}
	return env.newLocal(env.vm.NewPrimitiveArrayObject(k, n))
}

// NewObjectArray allocates an array of n elements of class elemClass, each
// set to init.
func (env *Env) NewObjectArray(n int, elemClass Ref, init Ref) Ref {
	env.enter()
	c := env.classOf(elemClass)
	if n < 0 {
		env.throwNew("java/lang/NegativeArraySizeException", "negative array length")
		return Ref{}
	}
	fill := env.deref(init)
	obj := env.vm.NewObjectArrayObject(c, n)
	if fill != nil {
		for i := range obj.elems {
			obj.elems[i] = fill
		}
	}
	return env.newLocal(obj)
}

// GetObjectArrayElement returns element i of a reference array.
func (env *Env) GetObjectArrayElement(arr Ref, i int) Ref {
	env.enter()
	obj := env.refArrayOf(arr)
	env.checkIndex(obj, i)
	return env.newLocal(obj.elems[i])
}

// SetObjectArrayElement stores v at index i. Storing an element of the
// wrong class throws ArrayStoreException.
func (env *Env) SetObjectArrayElement(arr Ref, i int, v Ref) {
	env.enter()
	obj := env.refArrayOf(arr)
	env.checkIndex(obj, i)
	val := env.deref(v)
	if val != nil && !assignableTo(val.class, obj.class.array.Component()) {
		env.throwNew("java/lang/ArrayStoreException", val.class.Name)
		return
	}
	obj.elems[i] = val
}

// GetArrayElements returns a copy of a primitive array's elements as a typed
// slice. The copy is published by ReleaseArrayElements.
func (env *Env) GetArrayElements(arr Ref) any {
	env.enter()
	return primClone(env.primArrayOf(arr).prims)
}

// ReleaseArrayElements ends access to a copy from GetArrayElements, writing
// it back unless mode is ReleaseAbort.
func (env *Env) ReleaseArrayElements(arr Ref, elems any, mode ReleaseMode) {
	env.enter()
	obj := env.primArrayOf(arr)
	env.checkSliceType(obj, elems)
	if mode == ReleaseAbort {
		return
	}
	if primLen(elems) != obj.ArrayLength() {
		env.vm.Fatal(ContractArrayBounds, "released %d elements for %s length %d", primLen(elems), obj.class.Name, obj.ArrayLength())
	}
	primCopyAt(obj.prims, 0, elems)
}

// GetArrayRegion copies elements [start, start+len(dst)) into dst.
func (env *Env) GetArrayRegion(arr Ref, start int, dst any) {
	env.enter()
	obj := env.primArrayOf(arr)
	env.checkSliceType(obj, dst)
	n := primLen(dst)
	env.checkRegion(obj, start, n)
	primCopyAt(dst, 0, primSlice(obj.prims, start, n))
}

// SetArrayRegion copies src into the array starting at start.
func (env *Env) SetArrayRegion(arr Ref, start int, src any) {
	env.enter()
	obj := env.primArrayOf(arr)
	env.checkSliceType(obj, src)
	env.checkRegion(obj, start, primLen(src))
	primCopyAt(obj.prims, start, src)
}

// GetPrimitiveArrayCritical opens a critical region and returns the array's
// own storage. Until the region is released the thread may make no other VM
// call.
func (env *Env) GetPrimitiveArrayCritical(arr Ref) any {
	env.enterCritical()
	obj := env.primArrayOf(arr)
	env.critical++
	return obj.prims
}

// ReleasePrimitiveArrayCritical closes a critical region. Writes made
// through the storage are already visible; mode has no further effect.
func (env *Env) ReleasePrimitiveArrayCritical(arr Ref, elems any, mode ReleaseMode) {
	env.enterCritical()
	obj := env.primArrayOf(arr)
	env.checkSliceType(obj, elems)
	env.leaveCritical()
}
