package bind

import (
	"errors"
	"fmt"

	"github.com/chazu/mbind/vm"
)

// NativeFunc implements a native method. this is the receiver, or the class
// object for a static method. Returning an error raises it as a managed
// exception: a *ManagedException keeps its class, anything else becomes a
// java/lang/RuntimeException. An exception the function left pending wins
// over the returned error.
type NativeFunc func(env *Env, this LocalObject, args []Value) (Value, error)

type registration struct {
	class  string
	method string
	desc   string
	fn     NativeFunc
}

// Library is a set of native methods loaded into a VM by name. Loading it
// attaches the binding layer; unloading it tears the layer down.
type Library struct {
	Name     string
	Options  Options
	OnLoad   func(j *Jvm) error
	OnUnload func(j *Jvm)

	defs    map[string]*ClassDef
	natives []registration
	err     error
}

// NewLibrary creates an empty library with the given options.
func NewLibrary(name string, opts Options) *Library {
	return &Library{Name: name, Options: opts, defs: make(map[string]*ClassDef)}
}

// Describe binds the receivers of native methods of the given classes to
// their definitions, so natives can call back into them directly.
func (l *Library) Describe(defs ...*ClassDef) *Library {
	for _, d := range defs {
		l.defs[d.BinaryName()] = d
	}
	return l
}

// Register adds a native implementation of className.method with the full
// method descriptor desc.
func (l *Library) Register(className, method, desc string, fn NativeFunc) *Library {
	if _, _, err := vm.ParseMethodDesc(desc); err != nil {
		l.err = errors.Join(l.err, fmt.Errorf("native %s.%s: %w", className, method, err))
		return l
	}
	l.natives = append(l.natives, registration{
		class:  normalizeName(className),
		method: method,
		desc:   desc,
		fn:     fn,
	})
	return l
}

// Install makes the library loadable with vm.LoadLibrary. Installing a name
// again replaces the earlier library.
func (l *Library) Install() error {
	if l.err != nil {
		return l.err
	}
	fns := make(map[string]vm.NativeFunc, len(l.natives))
	for _, r := range l.natives {
		fns[Mangle(r.class, r.method, r.desc)] = l.wrap(r)
	}
	vm.RegisterLibrary(&vm.NativeLibrary{
		Name:      l.Name,
		OnLoad:    l.load,
		OnUnload:  l.unload,
		Functions: fns,
	})
	log.Debugf("library %s installed with %d native(s)", l.Name, len(fns))
	return nil
}

func (l *Library) load(v *vm.VM) error {
	j, err := Attach(v, l.Options)
	if err != nil {
		return err
	}
	if l.OnLoad != nil {
		return l.OnLoad(j)
	}
	return nil
}

func (l *Library) unload(v *vm.VM) {
	j := Current()
	if j == nil || j.vm != v {
		return
	}
	if l.OnUnload != nil {
		l.OnUnload(j)
	}
	j.Teardown()
}

func (l *Library) wrap(r registration) vm.NativeFunc {
	params, ret, _ := vm.ParseMethodDesc(r.desc)
	types := make([]Type, len(params))
	for i, p := range params {
		types[i] = typeFromDesc(p)
	}
	def := l.defs[r.class]
	name := r.class + "." + r.method + r.desc

	return func(raw *vm.Env, this vm.Ref, args []vm.JValue) vm.JValue {
		j := Current()
		if j == nil || j.State() != StateAttached || j.vm != raw.VM() {
			raw.VM().Fatal(vm.ContractTornDown, "native %s called without an attached binding layer", name)
		}
		env := &Env{jvm: j, raw: raw}
		self := LocalObject{env: env, ref: this, def: def}
		if obj := raw.Deref(this); obj != nil && obj.Mirror() != nil {
			// static method: this is the class object
			self.def = nil
		}
		vals := make([]Value, len(args))
		for i, a := range args {
			vals[i] = Value{env: env, j: a, typ: types[i], self: def}
		}

		out, err := r.fn(env, self, vals)
		if err != nil {
			log.Debugf("native %s failed: %v", name, err)
			raiseError(env, err)
			return vm.JVoid
		}
		if ret.Kind == vm.KindVoid {
			return vm.JVoid
		}
		return out.j
	}
}

// Mangle returns the symbol a native method is bound by.
func Mangle(className, method, argDesc string) string {
	return vm.MangleNative(normalizeName(className), method, argDesc)
}

// Return wraps a Go value as a native method result. Supported are the
// scalar types, strings, nil and every Object. An int outside the Int range
// is a contract violation.
func Return(env *Env, x any) Value {
	switch v := x.(type) {
	case nil:
		return Value{env: env, j: vm.JRef(vm.Ref{}), typ: JavaObject}
	case Value:
		return v
	case string:
		s := NewString(env, v)
		return Value{env: env, j: vm.JRef(s.ref), typ: String}
	case Object:
		return Value{env: env, j: vm.JRef(v.raw()), typ: JavaObject}
	case int:
		// untyped integer constants arrive as int; anything wider than an
		// Int must be returned as int64
		if int(int32(v)) != v {
			env.jvm.vm.Fatal(vm.ContractArgumentType, "Return: %d overflows a managed int", v)
		}
		return Value{env: env, j: vm.JInt(int32(v)), typ: Int}
	}
	if k := kindOfGo(x); k != vm.KindVoid {
		return Value{env: env, j: scalarJ(x), typ: Type{kind: k}}
	}
	return Value{env: env}
}
