package vm

import "strings"

// ---------------------------------------------------------------------------
// Managed-side entry points
//
// These are the operations method bodies use. They work on *Object directly
// and report failure by throwing, never by returning an error.
// ---------------------------------------------------------------------------

// Invoke calls an instance method on this with virtual dispatch.
func (env *Env) Invoke(this *Object, name, desc string, args ...Value) Value {
	env.enter()
	if this == nil {
		env.throwNew("java/lang/NullPointerException", "invoking "+name)
		return nullResult(desc)
	}
	m := this.class.LookupMethod(name, desc)
	if m == nil || m.Static {
		env.throwNew("java/lang/NoSuchMethodError", this.class.Name+"."+name+desc)
		return nullResult(desc)
	}
	return env.invoke(this.class.dispatch(m), this, args)
}

// InvokeSpecial calls the method c declares or inherits, without dispatch on
// this. It is how an override reaches its superclass implementation.
func (env *Env) InvokeSpecial(c *Class, this *Object, name, desc string, args ...Value) Value {
	env.enter()
	m := c.LookupMethod(name, desc)
	if m == nil || m.Static {
		env.throwNew("java/lang/NoSuchMethodError", c.Name+"."+name+desc)
		return nullResult(desc)
	}
	return env.invoke(m, this, args)
}

// InvokeStatic calls a static method of c.
func (env *Env) InvokeStatic(c *Class, name, desc string, args ...Value) Value {
	env.enter()
	m := c.LookupLocalMethod(name, desc)
	if m == nil || !m.Static {
		env.throwNew("java/lang/NoSuchMethodError", c.Name+"."+name+desc)
		return nullResult(desc)
	}
	return env.invoke(m, nil, args)
}

// Construct allocates an instance of c and runs the constructor with the
// given descriptor. Returns nil if the constructor threw.
func (env *Env) Construct(c *Class, desc string, args ...Value) *Object {
	env.enter()
	if !env.checkInstantiable(c) {
		return nil
	}
	ctor := c.LookupLocalMethod("<init>", desc)
	if ctor == nil {
		env.throwNew("java/lang/NoSuchMethodError", c.Name+".<init>"+desc)
		return nil
	}
	obj := c.instantiate()
	env.invoke(ctor, obj, args)
	if env.pending != nil {
		return nil
	}
	return obj
}

// Resolve loads a class through the loader that defined from. On failure a
// NoClassDefFoundError is thrown and nil returned.
func (env *Env) Resolve(from *Class, name string) *Class {
	loader := env.vm.system
	if from != nil && from.Loader != nil {
		loader = from.Loader
	}
	c, err := loader.LoadClass(name)
	if err != nil {
		env.throwNew("java/lang/NoClassDefFoundError", name)
		return nil
	}
	return c
}

// NewStringObject allocates a managed string.
func (env *Env) NewStringObject(s string) *Object {
	return env.vm.NewStringObject(s)
}

// StaticField reads a static field of c by name.
func (c *Class) StaticField(name string) Value {
	f := c.LookupField(name, true)
	if f == nil {
		panic("no static field " + c.Name + "." + name)
	}
	return f.Class.statics[f.slot]
}

// SetStaticField writes a static field of c by name.
func (c *Class) SetStaticField(name string, v Value) {
	f := c.LookupField(name, true)
	if f == nil {
		panic("no static field " + c.Name + "." + name)
	}
	f.Class.statics[f.slot] = v
}

// nullResult is the zero result for a method descriptor, used when a call
// fails before reaching the method.
func nullResult(desc string) Value {
	i := strings.LastIndexByte(desc, ')')
	if i < 0 || i+1 >= len(desc) {
		return Void
	}
	k, _ := kindFromDescriptor(desc[i+1])
	return ZeroValue(k)
}
