package vm

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/petermattis/goid"
)

// Resolution failures. They leave no pending exception.
var (
	ErrNoSuchMethod = errors.New("no such method")
	ErrNoSuchField  = errors.New("no such field")
)

// ---------------------------------------------------------------------------
// Env: the per-thread interface to the VM
// ---------------------------------------------------------------------------

// Env is the interface an attached thread uses to reach the VM. An Env
// belongs to exactly one goroutine; every operation checks that it is called
// from that goroutine, that the thread is still attached, and that no
// critical region is open.
type Env struct {
	vm  *VM
	gid int64

	frames      []*frame
	activations []activation

	pending  *Object
	critical int

	detached atomic.Bool
}

// activation records a running managed method so its receiver and
// arguments stay reachable.
type activation struct {
	method *Method
	this   *Object
	args   []Value
}

// VM returns the owning VM.
func (env *Env) VM() *VM { return env.vm }

// ThreadID returns the goroutine ID the Env belongs to.
func (env *Env) ThreadID() int64 { return env.gid }

// CriticalDepth returns the number of open critical regions.
func (env *Env) CriticalDepth() int { return env.critical }

func (env *Env) enter() {
	env.enterCritical()
	if env.critical > 0 {
		env.vm.Fatal(ContractCriticalRegion, "VM call with %d critical region(s) open", env.critical)
	}
}

// enterCritical performs the entry checks that still apply inside a
// critical region.
func (env *Env) enterCritical() {
	if env.vm.destroyed.Load() {
		env.vm.Fatal(ContractTornDown, "env of thread %d used after VM teardown", env.gid)
	}
	if env.detached.Load() {
		env.vm.Fatal(ContractUnattachedThread, "env of detached thread %d", env.gid)
	}
	if g := goid.Get(); g != env.gid {
		env.vm.Fatal(ContractCrossThread, "env of thread %d used on thread %d", env.gid, g)
	}
}

// ---------------------------------------------------------------------------
// Object and class handles
// ---------------------------------------------------------------------------

// Deref returns the object behind r, enforcing reference lifetime rules.
func (env *Env) Deref(r Ref) *Object {
	env.enter()
	return env.deref(r)
}

// NewLocal creates a local reference to obj in the innermost frame.
func (env *Env) NewLocal(obj *Object) Ref {
	env.enter()
	return env.newLocal(obj)
}

// ClassOf returns the class a class reference stands for.
func (env *Env) ClassOf(cls Ref) *Class {
	env.enter()
	return env.classOf(cls)
}

func (env *Env) classOf(cls Ref) *Class {
	obj := env.deref(cls)
	if obj == nil {
		env.vm.Fatal(ContractNullReceiver, "null class reference")
	}
	if obj.mirror == nil {
		env.vm.Fatal(ContractWrongObject, "%s is not a class", obj)
	}
	return obj.mirror
}

// LoaderOf returns the loader a class loader reference stands for. Null
// means the boot loader.
func (env *Env) LoaderOf(loader Ref) *ClassLoader {
	env.enter()
	return env.loaderOf(loader)
}

func (env *Env) loaderOf(loader Ref) *ClassLoader {
	obj := env.deref(loader)
	if obj == nil {
		return env.vm.boot
	}
	if obj.loader == nil {
		env.vm.Fatal(ContractWrongObject, "%s is not a class loader", obj)
	}
	return obj.loader
}

// CallerClass returns the declaring class of the innermost native method
// running on this thread, or nil outside any native callback.
func (env *Env) CallerClass() *Class {
	for i := len(env.frames) - 1; i >= 0; i-- {
		if f := env.frames[i]; f.kind == frameNative {
			return f.class
		}
	}
	return nil
}

func (env *Env) callerLoader() *ClassLoader {
	if c := env.CallerClass(); c != nil && c.Loader != nil {
		return c.Loader
	}
	return env.vm.system
}

// FindClass resolves a class through the loader of the current native
// method's declaring class, or the system loader outside a callback.
func (env *Env) FindClass(name string) (Ref, error) {
	env.enter()
	c, err := env.callerLoader().LoadClass(name)
	if err != nil {
		return Ref{}, err
	}
	return env.newLocal(env.vm.ClassMirror(c)), nil
}

// FindClassIn resolves a class through an explicit loader.
func (env *Env) FindClassIn(loader Ref, name string) (Ref, error) {
	env.enter()
	c, err := env.loaderOf(loader).LoadClass(name)
	if err != nil {
		return Ref{}, err
	}
	return env.newLocal(env.vm.ClassMirror(c)), nil
}

// LoadClass resolves a class through loader without creating references.
// A nil loader means the system loader.
func (env *Env) LoadClass(loader *ClassLoader, name string) (*Class, error) {
	env.enter()
	if loader == nil {
		loader = env.vm.system
	}
	return loader.LoadClass(name)
}

// ClassRef returns a local reference to c's class object.
func (env *Env) ClassRef(c *Class) Ref {
	env.enter()
	return env.newLocal(env.vm.ClassMirror(c))
}

// GetObjectClass returns the runtime class of obj.
func (env *Env) GetObjectClass(obj Ref) Ref {
	env.enter()
	o := env.deref(obj)
	if o == nil {
		env.vm.Fatal(ContractNullReceiver, "GetObjectClass on null")
	}
	return env.newLocal(env.vm.ClassMirror(o.class))
}

// GetSuperclass returns the superclass of cls, or null for the root.
func (env *Env) GetSuperclass(cls Ref) Ref {
	env.enter()
	c := env.classOf(cls)
	if c.Superclass == nil {
		return Ref{}
	}
	return env.newLocal(env.vm.ClassMirror(c.Superclass))
}

// GetClassLoader returns the defining loader of cls.
func (env *Env) GetClassLoader(cls Ref) Ref {
	env.enter()
	return env.newLocal(env.classOf(cls).Loader.mirror)
}

// IsInstanceOf reports whether obj is an instance of cls. Null is an
// instance of every class.
func (env *Env) IsInstanceOf(obj, cls Ref) bool {
	env.enter()
	o := env.deref(obj)
	c := env.classOf(cls)
	return o == nil || o.class.IsSubclassOf(c)
}

// IsAssignableFrom reports whether sub can be assigned to sup.
func (env *Env) IsAssignableFrom(sub, sup Ref) bool {
	env.enter()
	return env.classOf(sub).IsSubclassOf(env.classOf(sup))
}

// ---------------------------------------------------------------------------
// Member IDs
// ---------------------------------------------------------------------------

// GetMethodID resolves an instance method or constructor of cls. Instance
// methods are searched in superclasses too.
func (env *Env) GetMethodID(cls Ref, name, desc string) (*Method, error) {
	env.enter()
	c := env.classOf(cls)
	m := c.LookupMethod(name, desc)
	if m == nil || m.Static {
		return nil, fmt.Errorf("%s.%s%s: %w", c.Name, name, desc, ErrNoSuchMethod)
	}
	return m, nil
}

// GetStaticMethodID resolves a static method declared on cls.
func (env *Env) GetStaticMethodID(cls Ref, name, desc string) (*Method, error) {
	env.enter()
	c := env.classOf(cls)
	m := c.LookupLocalMethod(name, desc)
	if m == nil || !m.Static {
		return nil, fmt.Errorf("static %s.%s%s: %w", c.Name, name, desc, ErrNoSuchMethod)
	}
	return m, nil
}

// GetFieldID resolves an instance field of cls, including inherited ones.
func (env *Env) GetFieldID(cls Ref, name, desc string) (*Field, error) {
	env.enter()
	c := env.classOf(cls)
	f := c.LookupField(name, false)
	if f == nil || f.Desc != desc {
		return nil, fmt.Errorf("%s.%s:%s: %w", c.Name, name, desc, ErrNoSuchField)
	}
	return f, nil
}

// GetStaticFieldID resolves a static field of cls.
func (env *Env) GetStaticFieldID(cls Ref, name, desc string) (*Field, error) {
	env.enter()
	c := env.classOf(cls)
	f := c.LookupField(name, true)
	if f == nil || f.Desc != desc {
		return nil, fmt.Errorf("static %s.%s:%s: %w", c.Name, name, desc, ErrNoSuchField)
	}
	return f, nil
}

// ---------------------------------------------------------------------------
// Invocation from native code
// ---------------------------------------------------------------------------

// AllocObject allocates an instance of cls without running a constructor.
func (env *Env) AllocObject(cls Ref) Ref {
	env.enter()
	c := env.classOf(cls)
	if !env.checkInstantiable(c) {
		return Ref{}
	}
	return env.newLocal(c.instantiate())
}

// NewObject allocates an instance of cls and runs ctor on it. Returns null
// if the constructor threw.
func (env *Env) NewObject(cls Ref, ctor *Method, args ...JValue) Ref {
	env.enter()
	c := env.classOf(cls)
	if ctor == nil || ctor.Name != "<init>" || ctor.Class != c {
		env.vm.Fatal(ContractWrongObject, "%v is not a constructor of %s", ctor, c.Name)
	}
	if !env.checkInstantiable(c) {
		return Ref{}
	}
	vals := env.unwrapArgs(ctor, args)
	obj := c.instantiate()
	env.invoke(ctor, obj, vals)
	if env.pending != nil {
		return Ref{}
	}
	return env.newLocal(obj)
}

func (env *Env) checkInstantiable(c *Class) bool {
	if c.Interface || c.Abstract || c.array != nil || c.isString || c == env.vm.ClassClass {
		env.throwNew("java/lang/InstantiationException", c.Name)
		return false
	}
	return true
}

// CallMethod invokes an instance method with virtual dispatch on the
// receiver's runtime class. A null receiver is a contract violation.
func (env *Env) CallMethod(obj Ref, m *Method, args ...JValue) JValue {
	env.enter()
	recv := env.receiver(obj, m)
	vals := env.unwrapArgs(m, args)
	return env.wrap(env.invoke(recv.class.dispatch(m), recv, vals))
}

// CallNonvirtualMethod invokes m exactly as declared, without dispatch.
func (env *Env) CallNonvirtualMethod(obj Ref, m *Method, args ...JValue) JValue {
	env.enter()
	recv := env.receiver(obj, m)
	vals := env.unwrapArgs(m, args)
	return env.wrap(env.invoke(m, recv, vals))
}

// CallStaticMethod invokes a static method of cls.
func (env *Env) CallStaticMethod(cls Ref, m *Method, args ...JValue) JValue {
	env.enter()
	c := env.classOf(cls)
	if m == nil || !m.Static || m.Class != c {
		env.vm.Fatal(ContractWrongObject, "%v is not a static method of %s", m, c.Name)
	}
	vals := env.unwrapArgs(m, args)
	return env.wrap(env.invoke(m, nil, vals))
}

func (env *Env) receiver(obj Ref, m *Method) *Object {
	if m == nil || m.Static || m.Name == "<init>" {
		env.vm.Fatal(ContractWrongObject, "%v is not an instance method", m)
	}
	recv := env.deref(obj)
	if recv == nil {
		env.vm.Fatal(ContractNullReceiver, "calling %s", m)
	}
	if !recv.class.IsSubclassOf(m.Class) {
		env.vm.Fatal(ContractWrongObject, "%s is not an instance of %s", recv.class.Name, m.Class.Name)
	}
	return recv
}

// unwrapArgs converts native arguments to managed values, checking each
// against the method's parameter types.
func (env *Env) unwrapArgs(m *Method, args []JValue) []Value {
	if len(args) != len(m.Params) {
		env.vm.Fatal(ContractArgumentType, "%s takes %d argument(s), got %d", m, len(m.Params), len(args))
	}
	vals := make([]Value, len(args))
	for i, a := range args {
		vals[i] = env.unwrap(a, m.Params[i], m.String())
	}
	return vals
}

func (env *Env) unwrap(a JValue, t TypeDesc, where string) Value {
	if a.kind != t.Kind {
		env.vm.Fatal(ContractArgumentType, "%s: %s given where %s expected", where, a.kind, t)
	}
	if t.Kind != KindReference {
		return Value{kind: a.kind, bits: a.bits}
	}
	obj := env.deref(a.ref)
	if obj != nil && !assignableTo(obj.class, t) {
		env.vm.Fatal(ContractArgumentType, "%s: %s given where %s expected", where, obj.class.Name, t)
	}
	return RefValue(obj)
}

// wrap converts a managed result to its native form.
func (env *Env) wrap(v Value) JValue {
	if v.kind == KindReference {
		return JRef(env.newLocal(v.ref))
	}
	return JValue{kind: v.kind, bits: v.bits}
}

// assignableTo reports whether an instance of c can be stored where type t is
// expected. Classes are matched by name along the hierarchy.
func assignableTo(c *Class, t TypeDesc) bool {
	if t.Dims > 0 {
		if c.array == nil {
			return false
		}
		return arrayAssignable(*c.array, t, c.Loader)
	}
	if t.Class == "java/lang/Object" {
		return true
	}
	for s := c; s != nil; s = s.Superclass {
		if s.Name == t.Class {
			return true
		}
		for _, i := range s.allInterfaces() {
			if i.Name == t.Class {
				return true
			}
		}
	}
	return false
}

// invoke runs a method on this thread. The result of a method that threw is
// the zero value of its return kind.
func (env *Env) invoke(m *Method, this *Object, args []Value) Value {
	if m.Abstract {
		env.throwNew("java/lang/AbstractMethodError", m.String())
		return ZeroValue(m.Return.Kind)
	}
	if m.Native {
		return env.callNative(m, this, args)
	}

	env.activations = append(env.activations, activation{method: m, this: this, args: args})
	defer func() {
		n := len(env.activations)
		env.activations[n-1] = activation{}
		env.activations = env.activations[:n-1]
	}()

	result := m.impl(env, this, args)
	if env.pending != nil || m.Return.Kind == KindVoid {
		return ZeroValue(m.Return.Kind)
	}
	if result.kind != m.Return.Kind {
		panic(fmt.Sprintf("%s returned %s, declared %s", m, result.kind, m.Return))
	}
	return result
}

// ---------------------------------------------------------------------------
// Field access from native code
// ---------------------------------------------------------------------------

// GetField reads an instance field.
func (env *Env) GetField(obj Ref, f *Field) JValue {
	env.enter()
	o := env.fieldTarget(obj, f)
	return env.wrap(o.fields[f.slot])
}

// SetField writes an instance field.
func (env *Env) SetField(obj Ref, f *Field, v JValue) {
	env.enter()
	o := env.fieldTarget(obj, f)
	o.fields[f.slot] = env.unwrap(v, f.Type, f.String())
}

// GetStaticField reads a static field of cls.
func (env *Env) GetStaticField(cls Ref, f *Field) JValue {
	env.enter()
	env.staticTarget(cls, f)
	return env.wrap(f.Class.statics[f.slot])
}

// SetStaticField writes a static field of cls.
func (env *Env) SetStaticField(cls Ref, f *Field, v JValue) {
	env.enter()
	env.staticTarget(cls, f)
	f.Class.statics[f.slot] = env.unwrap(v, f.Type, f.String())
}

func (env *Env) fieldTarget(obj Ref, f *Field) *Object {
	if f == nil || f.Static {
		env.vm.Fatal(ContractWrongObject, "%v is not an instance field", f)
	}
	o := env.deref(obj)
	if o == nil {
		env.vm.Fatal(ContractNullReceiver, "accessing field %s", f)
	}
	if !o.class.IsSubclassOf(f.Class) {
		env.vm.Fatal(ContractWrongObject, "%s has no field %s", o.class.Name, f)
	}
	return o
}

func (env *Env) staticTarget(cls Ref, f *Field) {
	if f == nil || !f.Static {
		env.vm.Fatal(ContractWrongObject, "%v is not a static field", f)
	}
	c := env.classOf(cls)
	if !c.IsSubclassOf(f.Class) {
		env.vm.Fatal(ContractWrongObject, "%s has no static field %s", c.Name, f)
	}
}
