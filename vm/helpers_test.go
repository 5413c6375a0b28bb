package vm

import "testing"

// newTestVM creates a VM whose contract violations panic, attached on the
// calling goroutine.
func newTestVM(t *testing.T, defs ...*ClassDef) (*VM, *Env) {
	t.Helper()
	v := NewVM()
	v.SetAbortOnMisuse(false)
	if err := v.RegisterClasses(defs...); err != nil {
		t.Fatalf("RegisterClasses: %v", err)
	}
	env, err := v.AttachCurrentThread()
	if err != nil {
		t.Fatalf("AttachCurrentThread: %v", err)
	}
	t.Cleanup(func() { v.Destroy() })
	return v, env
}

// expectViolation runs fn and checks that it reports the given contract.
func expectViolation(t *testing.T, want Contract, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		cv := AsContractViolation(r)
		if cv == nil {
			t.Fatalf("expected %q violation, got %v", want, r)
		}
		if cv.Contract != want {
			t.Errorf("violation = %q, want %q (%s)", cv.Contract, want, cv.Detail)
		}
	}()
	fn()
}

func mustClass(t *testing.T, env *Env, name string) Ref {
	t.Helper()
	cls, err := env.FindClass(name)
	if err != nil {
		t.Fatalf("FindClass(%s): %v", name, err)
	}
	return cls
}

func mustMethod(t *testing.T, env *Env, cls Ref, name, desc string) *Method {
	t.Helper()
	m, err := env.GetMethodID(cls, name, desc)
	if err != nil {
		t.Fatalf("GetMethodID(%s%s): %v", name, desc, err)
	}
	return m
}

func noop(env *Env, this *Object, args []Value) Value { return Void }

// pointDef has two int fields, an (II)V constructor, a static counter and a
// sum method.
func pointDef() *ClassDef {
	return &ClassDef{
		Name: "test/Point",
		Fields: []FieldDef{
			{Name: "x", Desc: "I"},
			{Name: "y", Desc: "I"},
			{Name: "created", Desc: "I", Static: true},
			{Name: "label", Desc: "Ljava/lang/String;"},
		},
		Methods: []MethodDef{
			{Name: "<init>", Desc: "()V", Impl: noop},
			{Name: "<init>", Desc: "(II)V", Impl: func(env *Env, this *Object, args []Value) Value {
				this.SetField("x", args[0])
				this.SetField("y", args[1])
				c := this.Class()
				c.SetStaticField("created", IntValue(c.StaticField("created").Int()+1))
				return Void
			}},
			{Name: "sum", Desc: "()I", Impl: func(env *Env, this *Object, args []Value) Value {
				return IntValue(this.GetField("x").Int() + this.GetField("y").Int())
			}},
			{Name: "scale", Desc: "(I)Ltest/Point;", Impl: func(env *Env, this *Object, args []Value) Value {
				k := args[0].Int()
				return RefValue(env.Construct(this.Class(), "(II)V",
					IntValue(this.GetField("x").Int()*k), IntValue(this.GetField("y").Int()*k)))
			}},
			{Name: "origin", Desc: "()Ltest/Point;", Static: true, Impl: func(env *Env, this *Object, args []Value) Value {
				c := env.Resolve(nil, "test/Point")
				return RefValue(env.Construct(c, "(II)V", IntValue(0), IntValue(0)))
			}},
		},
	}
}

// baseDefs declares test/Base (getValue returns 1) and test/Derived, which
// overrides getValue to return 2 and reaches the base version through
// superValue.
func baseDefs() []*ClassDef {
	return []*ClassDef{
		{
			Name: "test/Base",
			Methods: []MethodDef{
				{Name: "<init>", Desc: "()V", Impl: noop},
				{Name: "getValue", Desc: "()I", Impl: func(env *Env, this *Object, args []Value) Value {
					return IntValue(1)
				}},
				{Name: "twice", Desc: "()I", Impl: func(env *Env, this *Object, args []Value) Value {
					return IntValue(2 * env.Invoke(this, "getValue", "()I").Int())
				}},
			},
		},
		{
			Name:  "test/Derived",
			Super: "test/Base",
			Methods: []MethodDef{
				{Name: "<init>", Desc: "()V", Impl: noop},
				{Name: "getValue", Desc: "()I", Impl: func(env *Env, this *Object, args []Value) Value {
					return IntValue(2)
				}},
				{Name: "superValue", Desc: "()I", Impl: func(env *Env, this *Object, args []Value) Value {
					return env.InvokeSpecial(this.Class().Superclass, this, "getValue", "()I")
				}},
			},
		},
	}
}
