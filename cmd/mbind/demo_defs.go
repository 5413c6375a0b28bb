package main

import (
	"github.com/chazu/mbind/bind"
	"github.com/chazu/mbind/vm"
	"github.com/chazu/mbind/vm/vmtest"
)

// Class definitions the demo binds against. They describe the vmtest
// fixture classes plus one class whose methods are natives of the demo
// library.

var helperDef = &bind.ClassDef{
	Name:         vmtest.ObjectTestHelper,
	Constructors: []bind.Constructor{bind.Ctor(), bind.Ctor(bind.Int), bind.Ctor(bind.Int, bind.Int, bind.Int)},
	Methods: []bind.Method{
		bind.Fn("increment", bind.Void, bind.Int),
	},
	Fields: []bind.Field{
		{Name: "intVal1", Type: bind.Int},
		{Name: "intVal2", Type: bind.Int},
		{Name: "intVal3", Type: bind.Int},
	},
}

var builderDef = &bind.ClassDef{
	Name: vmtest.Builder,
	Methods: []bind.Method{
		bind.Fn("setOne", bind.Self, bind.Int),
		bind.Fn("setTwo", bind.Self, bind.Int),
		bind.Fn("setThree", bind.Self, bind.Int),
		bind.Fn("build", bind.ObjectOf(helperDef)),
	},
}

var arrayHelpersDef = &bind.ClassDef{
	Name: vmtest.ArrayTestHelpers,
	Static: bind.StaticDef{Methods: []bind.Method{
		bind.Fn("assertInt1D", bind.Void, bind.Int, bind.Int, bind.ArrayOf(bind.Int, 1)),
		bind.Fn("assertInt2D", bind.Void, bind.Int, bind.ArrayOf(bind.Int, 2)),
	}},
}

var helperClassDef = &bind.ClassDef{
	Name:         vmtest.HelperClass,
	Constructors: []bind.Constructor{bind.Ctor(), bind.Ctor(bind.Int)},
	Methods:      []bind.Method{bind.Fn("getValue", bind.Int)},
}

var helperSubclassDef = &bind.ClassDef{
	Name:         vmtest.HelperSubclass,
	Constructors: []bind.Constructor{bind.Ctor(bind.Int)},
	Methods:      []bind.Method{bind.Fn("getValue", bind.Int)},
}

const demoNatives = "com/mbind/demo/Natives"

// demoNativesVMDef declares the natives class inside the VM. Its bodies are
// bound when the demo library loads.
func demoNativesVMDef() *vm.ClassDef {
	return &vm.ClassDef{
		Name: demoNatives,
		Methods: []vm.MethodDef{
			{Name: "raise", Desc: "(Ljava/lang/String;Ljava/lang/String;)V", Static: true, Native: true},
			{Name: "scale", Desc: "([II)V", Static: true, Native: true},
		},
	}
}

var demoNativesDef = &bind.ClassDef{
	Name: demoNatives,
	Static: bind.StaticDef{Methods: []bind.Method{
		bind.Fn("raise", bind.Void, bind.String, bind.String),
		bind.Fn("scale", bind.Void, bind.ArrayOf(bind.Int, 1), bind.Int),
	}},
}

const descHelper = "L" + vmtest.ObjectTestHelper + ";"

// demoLibrary implements the natives of demoNativesDef and of the ContextTest
// fixture. scale multiplies an array in place, pinning it critically when
// factor is odd.
func demoLibrary(name string, opts bind.Options) *bind.Library {
	return contextNatives(bind.NewLibrary(name, opts)).
		Describe(demoNativesDef).
		Register(demoNatives, "raise", "(Ljava/lang/String;Ljava/lang/String;)V",
			func(env *bind.Env, this bind.LocalObject, args []bind.Value) (bind.Value, error) {
				return bind.Value{}, bind.Raise(env, args[0].Text(), args[1].Text())
			}).
		Register(demoNatives, "scale", "([II)V",
			func(env *bind.Env, this bind.LocalObject, args []bind.Value) (bind.Value, error) {
				arr := bind.AsArray[int32](args[0])
				factor := args[1].Int()
				var view *bind.ArrayView[int32]
				if factor%2 == 1 {
					view = arr.PinCritical(true)
				} else {
					view = arr.Pin(bind.AccessCopy, true)
				}
				for i := range view.Data() {
					view.Data()[i] *= factor
				}
				view.Release()
				return bind.Value{}, nil
			})
}

// contextNatives registers the ContextTest natives. A context holds one
// helper under "helper"; managed code only ever sees the token.
func contextNatives(lib *bind.Library) *bind.Library {
	store := func(env *bind.Env) *bind.ContextStore { return env.Jvm().Contexts() }
	return lib.
		Register(vmtest.ContextTest, "nativeCreateContext", "(I)J",
			func(env *bind.Env, this bind.LocalObject, args []bind.Value) (bind.Value, error) {
				h, err := bind.New(env, helperDef, args[0].Int())
				if err != nil {
					return bind.Value{}, err
				}
				return newContext(env, func(token int64) error {
					return store(env).PromoteInto(env, token, "helper", h)
				})
			}).
		Register(vmtest.ContextTest, "nativeCreateContextWithPromotion", "("+descHelper+")J",
			func(env *bind.Env, this bind.LocalObject, args []bind.Value) (bind.Value, error) {
				return newContext(env, func(token int64) error {
					return store(env).PromoteInto(env, token, "helper", args[0].Object())
				})
			}).
		Register(vmtest.ContextTest, "nativeCreateContextWithCopy", "("+descHelper+")J",
			func(env *bind.Env, this bind.LocalObject, args []bind.Value) (bind.Value, error) {
				return newContext(env, func(token int64) error {
					return store(env).CopyInto(env, token, "helper", args[0].Object())
				})
			}).
		Register(vmtest.ContextTest, "nativeQueryObject", "(J)"+descHelper,
			func(env *bind.Env, this bind.LocalObject, args []bind.Value) (bind.Value, error) {
				return bind.Return(env, store(env).Query(env, args[0].Long(), "helper")), nil
			}).
		Register(vmtest.ContextTest, "nativeExtractObject", "(J)"+descHelper,
			func(env *bind.Env, this bind.LocalObject, args []bind.Value) (bind.Value, error) {
				g, ok := store(env).Extract(args[0].Long(), "helper")
				if !ok {
					return bind.Return(env, nil), nil
				}
				defer g.Delete(env)
				return bind.Return(env, bind.Demote(env, g)), nil
			}).
		Register(vmtest.ContextTest, "nativeDestroyContext", "(J)V",
			func(env *bind.Env, this bind.LocalObject, args []bind.Value) (bind.Value, error) {
				store(env).Destroy(env, args[0].Long())
				return bind.Value{}, nil
			})
}

// newContext creates a context, lets fill populate it and returns its token.
// The context is destroyed again if fill fails.
func newContext(env *bind.Env, fill func(token int64) error) (bind.Value, error) {
	s := env.Jvm().Contexts()
	token, err := s.Create(nil)
	if err != nil {
		return bind.Value{}, err
	}
	if err := fill(token); err != nil {
		s.Destroy(env, token)
		return bind.Value{}, err
	}
	return bind.Return(env, token), nil
}
