package bind

import (
	"errors"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru"

	"github.com/chazu/mbind/vm"
)

var (
	// ErrUndeclared is wrapped when a member is not part of the ClassDef.
	ErrUndeclared = errors.New("member not declared")

	// ErrNoOverload is wrapped when no declared overload matches the
	// argument types.
	ErrNoOverload = errors.New("no overload matches the arguments")
)

// NoSuchMemberError reports a member that could not be selected or
// resolved. It leaves no pending exception.
type NoSuchMemberError struct {
	Class  string
	Member string
	Args   string
	Err    error
}

func (e *NoSuchMemberError) Error() string {
	if e.Args != "" {
		return fmt.Sprintf("%s.%s(%s): %v", e.Class, e.Member, e.Args, e.Err)
	}
	return fmt.Sprintf("%s.%s: %v", e.Class, e.Member, e.Err)
}

func (e *NoSuchMemberError) Unwrap() error { return e.Err }

func argTypes(args []any) string {
	parts := make([]string, len(args))
	for i, a := range args {
		switch x := a.(type) {
		case nil:
			parts[i] = "nil"
		case Object:
			if d := x.Def(); d != nil {
				parts[i] = d.Name
			} else {
				parts[i] = fmt.Sprintf("%T", a)
			}
		default:
			parts[i] = fmt.Sprintf("%T", a)
		}
	}
	return strings.Join(parts, ", ")
}

// ---------------------------------------------------------------------------
// Member cache
// ---------------------------------------------------------------------------

type memberKey struct {
	class  *vm.Class
	name   string
	desc   string
	static bool
	field  bool
}

// memberCache holds resolved methods and fields. Entries are keyed by the
// VM class, so the same name in two loaders never collides.
type memberCache struct {
	cache *lru.Cache
}

func newMemberCache(size int) (*memberCache, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &memberCache{cache: c}, nil
}

func (m *memberCache) method(c *vm.Class, name, desc string, static bool) (*vm.Method, error) {
	key := memberKey{class: c, name: name, desc: desc, static: static}
	if v, ok := m.cache.Get(key); ok {
		return v.(*vm.Method), nil
	}
	var found *vm.Method
	if static {
		found = c.LookupLocalMethod(name, desc)
	} else {
		found = c.LookupMethod(name, desc)
	}
	if found == nil || found.Static != static {
		return nil, &NoSuchMemberError{Class: c.Name, Member: name + desc, Err: vm.ErrNoSuchMethod}
	}
	m.cache.Add(key, found)
	return found, nil
}

func (m *memberCache) field(c *vm.Class, name, desc string, static bool) (*vm.Field, error) {
	key := memberKey{class: c, name: name, desc: desc, static: static, field: true}
	if v, ok := m.cache.Get(key); ok {
		return v.(*vm.Field), nil
	}
	found := c.LookupField(name, static)
	if found == nil || found.Desc != desc {
		return nil, &NoSuchMemberError{Class: c.Name, Member: name + ":" + desc, Err: vm.ErrNoSuchField}
	}
	m.cache.Add(key, found)
	return found, nil
}

func (m *memberCache) purge() { m.cache.Purge() }

// Len returns the number of cached members.
func (m *memberCache) Len() int { return m.cache.Len() }

// ---------------------------------------------------------------------------
// Overload selection
// ---------------------------------------------------------------------------

// selectOverload returns the first overload of the right arity whose
// parameter types match args exactly.
func selectOverload(env *Env, self *ClassDef, params [][]Type, args []any) (int, []vm.JValue, []vm.Ref, bool) {
	for i, ps := range params {
		if len(ps) != len(args) {
			continue
		}
		if js, tmps, ok := marshalArgs(env, ps, self, args); ok {
			return i, js, tmps, true
		}
	}
	return -1, nil, nil, false
}

func overloadParams(m *Method) [][]Type {
	ps := make([][]Type, len(m.Overloads))
	for i, o := range m.Overloads {
		ps[i] = o.Params
	}
	return ps
}

func ctorParams(def *ClassDef) [][]Type {
	ctors := def.constructors()
	ps := make([][]Type, len(ctors))
	for i, c := range ctors {
		ps[i] = c.Params
	}
	return ps
}

// ---------------------------------------------------------------------------
// Construction
// ---------------------------------------------------------------------------

// New constructs an instance of def, resolving the class as ClassOf does. The
// constructor overload is selected by the argument types.
func New(env *Env, def *ClassDef, args ...any) (LocalObject, error) {
	if err := env.live(); err != nil {
		return LocalObject{env: env, def: def}, err
	}
	cls, err := env.ClassOf(def)
	if err != nil {
		return LocalObject{env: env, def: def}, err
	}
	return NewOf(env, cls, def, args...)
}

// NewOf constructs an instance of an already resolved class, described by
// def.
func NewOf(env *Env, cls *Class, def *ClassDef, args ...any) (LocalObject, error) {
	out := LocalObject{env: env, def: def}
	if err := env.live(); err != nil {
		return out, err
	}
	idx, js, tmps, ok := selectOverload(env, def, ctorParams(def), args)
	if !ok {
		return out, &NoSuchMemberError{Class: def.Name, Member: "<init>", Args: argTypes(args), Err: ErrNoOverload}
	}
	defer releaseTemps(env, tmps)

	ctor, err := env.jvm.members.method(cls.raw, "<init>", ctorSignature(def, idx), false)
	if err != nil {
		return out, err
	}
	out.ref = env.raw.NewObject(cls.global, ctor, js...)
	if exc := Observe(env); exc != nil {
		return out, exc
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Instance members
// ---------------------------------------------------------------------------

func (o LocalObject) checkReceiver(member string) {
	if o.def == nil {
		o.env.fatal(vm.ContractWrongObject, "untyped reference used to access %s", member)
	}
	if o.ref.IsNull() {
		o.env.fatal(vm.ContractNullReceiver, "%s.%s", o.def.Name, member)
	}
}

// Call invokes a declared instance method with virtual dispatch. If the
// method throws, Call returns the zero Value and a *ManagedException; the
// exception stays pending.
func (o LocalObject) Call(name string, args ...any) (Value, error) {
	env := o.env
	if err := env.live(); err != nil {
		return Value{}, err
	}
	o.checkReceiver(name)
	_, m := o.def.method(false, name)
	if m == nil {
		return Value{}, &NoSuchMemberError{Class: o.def.Name, Member: name, Err: ErrUndeclared}
	}
	idx, js, tmps, ok := selectOverload(env, o.def, overloadParams(m), args)
	if !ok {
		return Value{}, &NoSuchMemberError{Class: o.def.Name, Member: name, Args: argTypes(args), Err: ErrNoOverload}
	}
	defer releaseTemps(env, tmps)

	ret := m.Overloads[idx].Return
	cls := env.raw.Deref(o.ref).Class()
	meth, err := env.jvm.members.method(cls, name, methodSignature(o.def, false, m, idx), false)
	if err != nil {
		return zeroValue(env, ret, o.def), err
	}
	j := env.raw.CallMethod(o.ref, meth, js...)
	if exc := Observe(env); exc != nil {
		return zeroValue(env, ret, o.def), exc
	}
	return Value{env: env, j: j, typ: ret, self: o.def}, nil
}

// CallAs invokes a method and converts the result to T.
func CallAs[T any](o LocalObject, name string, args ...any) (T, error) {
	v, err := o.Call(name, args...)
	if err != nil {
		var zero T
		return zero, err
	}
	return as[T](v)
}

// Get reads a declared instance field.
func (o LocalObject) Get(name string) (Value, error) {
	env := o.env
	if err := env.live(); err != nil {
		return Value{}, err
	}
	o.checkReceiver(name)
	_, f := o.def.field(false, name)
	if f == nil {
		return Value{}, &NoSuchMemberError{Class: o.def.Name, Member: name, Err: ErrUndeclared}
	}
	cls := env.raw.Deref(o.ref).Class()
	fld, err := env.jvm.members.field(cls, name, fieldSignature(o.def, false, f), false)
	if err != nil {
		return zeroValue(env, f.Type, o.def), err
	}
	return Value{env: env, j: env.raw.GetField(o.ref, fld), typ: f.Type, self: o.def}, nil
}

// Set writes a declared instance field. The value must match the field's
// type exactly.
func (o LocalObject) Set(name string, v any) error {
	env := o.env
	if err := env.live(); err != nil {
		return err
	}
	o.checkReceiver(name)
	_, f := o.def.field(false, name)
	if f == nil {
		return &NoSuchMemberError{Class: o.def.Name, Member: name, Err: ErrUndeclared}
	}
	j, tmp, ok := marshalArg(env, f.Type, o.def, v)
	if !tmp.IsNull() {
		defer env.raw.DeleteLocalRef(tmp)
	}
	if !ok {
		return &NoSuchMemberError{Class: o.def.Name, Member: name, Args: argTypes([]any{v}), Err: ErrNoOverload}
	}
	cls := env.raw.Deref(o.ref).Class()
	fld, err := env.jvm.members.field(cls, name, fieldSignature(o.def, false, f), false)
	if err != nil {
		return err
	}
	env.raw.SetField(o.ref, fld, j)
	if exc := Observe(env); exc != nil {
		return exc
	}
	return nil
}

// ---------------------------------------------------------------------------
// Static members
// ---------------------------------------------------------------------------

// StaticRef addresses the static members of a class.
type StaticRef struct {
	env *Env
	cls *Class
	def *ClassDef
}

// Static resolves def as ClassOf does and returns its static members.
func Static(env *Env, def *ClassDef) (StaticRef, error) {
	cls, err := env.ClassOf(def)
	if err != nil {
		return StaticRef{env: env, def: def}, err
	}
	return StaticRef{env: env, cls: cls, def: def}, nil
}

// StaticIn returns the static members of an already resolved class.
func StaticIn(env *Env, cls *Class, def *ClassDef) StaticRef {
	return StaticRef{env: env, cls: cls, def: def}
}

// Class returns the resolved class.
func (s StaticRef) Class() *Class { return s.cls }

// Call invokes a declared static method.
func (s StaticRef) Call(name string, args ...any) (Value, error) {
	env := s.env
	if err := env.live(); err != nil {
		return Value{}, err
	}
	_, m := s.def.method(true, name)
	if m == nil {
		return Value{}, &NoSuchMemberError{Class: s.def.Name, Member: name, Err: ErrUndeclared}
	}
	idx, js, tmps, ok := selectOverload(env, s.def, overloadParams(m), args)
	if !ok {
		return Value{}, &NoSuchMemberError{Class: s.def.Name, Member: name, Args: argTypes(args), Err: ErrNoOverload}
	}
	defer releaseTemps(env, tmps)

	ret := m.Overloads[idx].Return
	meth, err := env.jvm.members.method(s.cls.raw, name, methodSignature(s.def, true, m, idx), true)
	if err != nil {
		return zeroValue(env, ret, s.def), err
	}
	j := env.raw.CallStaticMethod(s.cls.global, meth, js...)
	if exc := Observe(env); exc != nil {
		return zeroValue(env, ret, s.def), exc
	}
	return Value{env: env, j: j, typ: ret, self: s.def}, nil
}

// Get reads a declared static field.
func (s StaticRef) Get(name string) (Value, error) {
	env := s.env
	if err := env.live(); err != nil {
		return Value{}, err
	}
	_, f := s.def.field(true, name)
	if f == nil {
		return Value{}, &NoSuchMemberError{Class: s.def.Name, Member: name, Err: ErrUndeclared}
	}
	fld, err := env.jvm.members.field(s.cls.raw, name, fieldSignature(s.def, true, f), true)
	if err != nil {
		return zeroValue(env, f.Type, s.def), err
	}
	return Value{env: env, j: env.raw.GetStaticField(s.cls.global, fld), typ: f.Type, self: s.def}, nil
}

// Set writes a declared static field.
func (s StaticRef) Set(name string, v any) error {
	env := s.env
	if err := env.live(); err != nil {
		return err
	}
	_, f := s.def.field(true, name)
	if f == nil {
		return &NoSuchMemberError{Class: s.def.Name, Member: name, Err: ErrUndeclared}
	}
	j, tmp, ok := marshalArg(env, f.Type, s.def, v)
	if !tmp.IsNull() {
		defer env.raw.DeleteLocalRef(tmp)
	}
	if !ok {
		return &NoSuchMemberError{Class: s.def.Name, Member: name, Args: argTypes([]any{v}), Err: ErrNoOverload}
	}
	fld, err := env.jvm.members.field(s.cls.raw, name, fieldSignature(s.def, true, f), true)
	if err != nil {
		return err
	}
	env.raw.SetStaticField(s.cls.global, fld, j)
	if exc := Observe(env); exc != nil {
		return exc
	}
	return nil
}
