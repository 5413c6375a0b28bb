package vm

import "fmt"

// ---------------------------------------------------------------------------
// Pending exceptions
// ---------------------------------------------------------------------------

// Throw marks t as this thread's pending exception, replacing any earlier
// one. t must be a throwable.
func (env *Env) Throw(t Ref) {
	env.enter()
	obj := env.deref(t)
	if obj == nil {
		env.vm.Fatal(ContractNullReceiver, "Throw(null)")
	}
	if !obj.class.IsSubclassOf(env.vm.ThrowableClass) {
		env.vm.Fatal(ContractWrongObject, "%s is not throwable", obj.class.Name)
	}
	env.pending = obj
}

// ThrowNew constructs an instance of cls with msg as its message and marks
// it pending.
func (env *Env) ThrowNew(cls Ref, msg string) error {
	env.enter()
	c := env.classOf(cls)
	if !c.IsSubclassOf(env.vm.ThrowableClass) {
		return fmt.Errorf("ThrowNew: %s is not throwable", c.Name)
	}
	obj := env.constructThrowable(c, msg)
	if obj == nil {
		return fmt.Errorf("ThrowNew: %s has no (Ljava/lang/String;)V constructor", c.Name)
	}
	if env.pending == nil {
		env.pending = obj
	}
	return nil
}

// constructThrowable runs c's message constructor. Returns nil if c has
// none; a constructor that throws leaves its own exception pending.
func (env *Env) constructThrowable(c *Class, msg string) *Object {
	ctor := c.LookupLocalMethod("<init>", "(Ljava/lang/String;)V")
	if ctor == nil {
		return nil
	}
	obj := c.instantiate()
	env.invoke(ctor, obj, []Value{RefValue(env.vm.NewStringObject(msg))})
	return obj
}

// ExceptionOccurred returns a local reference to the pending exception, or
// null.
func (env *Env) ExceptionOccurred() Ref {
	env.enter()
	return env.newLocal(env.pending)
}

// ExceptionCheck reports whether an exception is pending.
func (env *Env) ExceptionCheck() bool {
	env.enter()
	return env.pending != nil
}

// ExceptionClear discards the pending exception.
func (env *Env) ExceptionClear() {
	env.enter()
	env.pending = nil
}

// ---------------------------------------------------------------------------
// Managed-side throwing
// ---------------------------------------------------------------------------

// Pending returns the pending exception object, or nil.
func (env *Env) Pending() *Object {
	return env.pending
}

// TakePending clears and returns the pending exception.
func (env *Env) TakePending() *Object {
	t := env.pending
	env.pending = nil
	return t
}

// ThrowObject marks a throwable object pending.
func (env *Env) ThrowObject(t *Object) {
	if t == nil {
		env.throwNew("java/lang/NullPointerException", "throw null")
		return
	}
	env.pending = t
}

// ThrowNewClass creates an instance of c carrying msg and marks it pending.
func (env *Env) ThrowNewClass(c *Class, msg string) {
	env.pending = env.vm.NewThrowable(c, msg, nil)
}

// throwNew raises a core exception by name.
func (env *Env) throwNew(name, msg string) {
	c, err := env.vm.boot.LoadClass(name)
	if err != nil {
		panic(fmt.Sprintf("core exception class %s: %v", name, err))
	}
	env.ThrowNewClass(c, msg)
}

// NewThrowable allocates a throwable with its message and cause set, without
// running a constructor.
func (vm *VM) NewThrowable(c *Class, msg string, cause *Object) *Object {
	obj := c.instantiate()
	obj.SetField("message", RefValue(vm.NewStringObject(msg)))
	obj.SetField("cause", RefValue(cause))
	return obj
}

// ThrowableInfo returns the class name, message and cause of a throwable.
func ThrowableInfo(t *Object) (className, message string, cause *Object) {
	className = t.class.Name
	if msg := t.GetField("message").Object(); msg != nil {
		message = msg.GoString()
	}
	cause = t.GetField("cause").Object()
	return className, message, cause
}
