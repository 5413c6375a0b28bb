// Package vmtest provides managed fixture classes shared by the binding
// layer's tests and the mbind demo: an object helper with several
// constructors, a chaining builder, class-loader helper classes (also packed
// as an archive), exception helpers, array assertion helpers and a
// recording mock.
package vmtest

import (
	"fmt"
	"testing"

	"github.com/chazu/mbind/archive"
	"github.com/chazu/mbind/vm"
)

// Binary names of the fixture classes.
const (
	ObjectTestHelper      = "com/jnibind/test/ObjectTestHelper"
	Builder               = "com/jnibind/test/BuilderTest$Builder"
	HelperClass           = "com/jnibind/test/ClassLoaderHelperClass"
	HelperSubclass        = "com/jnibind/test/ClassLoaderHelperSubclass"
	ClassLoaderTest       = "com/jnibind/test/ClassLoaderTest"
	ContextTest           = "com/jnibind/test/ContextTest"
	CustomException       = "com/jnibind/test/CustomException"
	ClassWithStaticMethod = "com/jnibind/test/ClassWithStaticMethod"
	ArrayTestHelpers      = "com/jnibind/test/ArrayTestHelpers"
	StaticTestHelper      = "com/jnibind/test/StaticTestHelper"
	TypeErasure           = "com/jnibind/test/TypeErasureTest"
	AssertionError        = "java/lang/AssertionError"
)

const (
	descObject = "Ljava/lang/Object;"
	descString = "Ljava/lang/String;"
	descHelper = "L" + ObjectTestHelper + ";"
)

// Classes returns every fixture class definition.
func Classes() []*vm.ClassDef {
	return []*vm.ClassDef{
		vm.ThrowableDef(AssertionError, "java/lang/Error"),
		ObjectTestHelperDef(),
		BuilderDef(),
		HelperClassDef(),
		ClassLoaderTestDef(),
		ContextTestDef(),
		vm.ThrowableDef(CustomException, "java/lang/Exception"),
		ClassWithStaticMethodDef(),
		ArrayTestHelpersDef(),
		StaticTestHelperDef(),
		TypeErasureDef(),
	}
}

// Register defines the fixture classes in v's system loader. The helper
// subclass is only reachable through HelperArchive.
func Register(v *vm.VM) error {
	return v.RegisterClasses(Classes()...)
}

// NewVM returns a VM with the fixtures registered and contract violations
// turned into panics. The VM is destroyed when tb finishes.
func NewVM(tb testing.TB, extra ...*vm.ClassDef) *vm.VM {
	tb.Helper()
	v := vm.NewVM()
	v.SetAbortOnMisuse(false)
	if err := Register(v); err != nil {
		tb.Fatalf("register fixtures: %v", err)
	}
	if err := v.RegisterClasses(extra...); err != nil {
		tb.Fatalf("register classes: %v", err)
	}
	tb.Cleanup(v.Destroy)
	return v
}

func noop(env *vm.Env, this *vm.Object, args []vm.Value) vm.Value { return vm.Void }

// Fail raises an AssertionError in managed code.
func Fail(env *vm.Env, format string, args ...any) vm.Value {
	c := env.Resolve(nil, AssertionError)
	if c != nil {
		env.ThrowNewClass(c, fmt.Sprintf(format, args...))
	}
	return vm.Void
}

// ---------------------------------------------------------------------------
// ObjectTestHelper
// ---------------------------------------------------------------------------

func setInts(this *vm.Object, vals ...vm.Value) {
	for i, v := range vals {
		this.SetField(fmt.Sprintf("intVal%d", i+1), v)
	}
}

// ObjectTestHelperDef declares three int fields, an Object field and
// constructors taking zero to three ints or an Object.
func ObjectTestHelperDef() *vm.ClassDef {
	return &vm.ClassDef{
		Name: ObjectTestHelper,
		Fields: []vm.FieldDef{
			{Name: "intVal1", Desc: "I"},
			{Name: "intVal2", Desc: "I"},
			{Name: "intVal3", Desc: "I"},
			{Name: "objectVal", Desc: descObject},
		},
		Methods: []vm.MethodDef{
			{Name: "<init>", Desc: "()V", Impl: noop},
			{Name: "<init>", Desc: "(" + descObject + ")V", Impl: func(env *vm.Env, this *vm.Object, args []vm.Value) vm.Value {
				this.SetField("objectVal", args[0])
				return vm.Void
			}},
			{Name: "<init>", Desc: "(I)V", Impl: func(env *vm.Env, this *vm.Object, args []vm.Value) vm.Value {
				setInts(this, args...)
				return vm.Void
			}},
			{Name: "<init>", Desc: "(II)V", Impl: func(env *vm.Env, this *vm.Object, args []vm.Value) vm.Value {
				setInts(this, args...)
				return vm.Void
			}},
			{Name: "<init>", Desc: "(III)V", Impl: func(env *vm.Env, this *vm.Object, args []vm.Value) vm.Value {
				setInts(this, args...)
				return vm.Void
			}},
			{Name: "foo", Desc: "()V", Impl: noop},
			{Name: "returnNewObjectWithFieldSetToSum", Desc: "(II)" + descHelper, Impl: func(env *vm.Env, this *vm.Object, args []vm.Value) vm.Value {
				return vm.RefValue(env.Construct(this.Class(), "(I)V", vm.IntValue(args[0].Int()+args[1].Int())))
			}},
			{Name: "returnNewObjectWithFieldSetToSum", Desc: "(" + descHelper + ")" + descHelper, Impl: func(env *vm.Env, this *vm.Object, args []vm.Value) vm.Value {
				rhs := args[0].Object()
				if rhs == nil {
					env.ThrowNewClass(env.Resolve(nil, "java/lang/NullPointerException"), "rhs")
					return vm.Null
				}
				sum := func(f string) vm.Value { return vm.IntValue(this.GetField(f).Int() + rhs.GetField(f).Int()) }
				return vm.RefValue(env.Construct(this.Class(), "(III)V", sum("intVal1"), sum("intVal2"), sum("intVal3")))
			}},
			{Name: "isEqualTo", Desc: "(" + descHelper + ")Z", Impl: func(env *vm.Env, this *vm.Object, args []vm.Value) vm.Value {
				return vm.BooleanValue(HelperEquals(this, args[0].Object()))
			}},
			{Name: "increment", Desc: "(I)V", Impl: func(env *vm.Env, this *vm.Object, args []vm.Value) vm.Value {
				for _, f := range []string{"intVal1", "intVal2", "intVal3"} {
					this.SetField(f, vm.IntValue(this.GetField(f).Int()+args[0].Int()))
				}
				return vm.Void
			}},
		},
	}
}

// HelperEquals compares the int fields of two ObjectTestHelper instances.
func HelperEquals(a, b *vm.Object) bool {
	if a == nil || b == nil {
		return a == b
	}
	for _, f := range []string{"intVal1", "intVal2", "intVal3"} {
		if a.GetField(f).Int() != b.GetField(f).Int() {
			return false
		}
	}
	return true
}

// HelperInts returns the three int fields of an ObjectTestHelper.
func HelperInts(obj *vm.Object) [3]int32 {
	return [3]int32{obj.GetField("intVal1").Int(), obj.GetField("intVal2").Int(), obj.GetField("intVal3").Int()}
}

// ---------------------------------------------------------------------------
// Builder
// ---------------------------------------------------------------------------

// BuilderDef declares a builder whose setters return the receiver and whose
// build method constructs an ObjectTestHelper.
func BuilderDef() *vm.ClassDef {
	self := "L" + Builder + ";"
	setter := func(field string) vm.MethodFunc {
		return func(env *vm.Env, this *vm.Object, args []vm.Value) vm.Value {
			this.SetField(field, args[0])
			return vm.RefValue(this)
		}
	}
	return &vm.ClassDef{
		Name: Builder,
		Fields: []vm.FieldDef{
			{Name: "valOne", Desc: "I"},
			{Name: "valTwo", Desc: "I"},
			{Name: "valThree", Desc: "I"},
		},
		Methods: []vm.MethodDef{
			{Name: "<init>", Desc: "()V", Impl: noop},
			{Name: "setOne", Desc: "(I)" + self, Impl: setter("valOne")},
			{Name: "setTwo", Desc: "(I)" + self, Impl: setter("valTwo")},
			{Name: "setThree", Desc: "(I)" + self, Impl: setter("valThree")},
			{Name: "build", Desc: "()" + descHelper, Impl: func(env *vm.Env, this *vm.Object, args []vm.Value) vm.Value {
				c := env.Resolve(this.Class(), ObjectTestHelper)
				if c == nil {
					return vm.Null
				}
				return vm.RefValue(env.Construct(c, "(III)V",
					this.GetField("valOne"), this.GetField("valTwo"), this.GetField("valThree")))
			}},
		},
	}
}

// ---------------------------------------------------------------------------
// Class loader helpers
// ---------------------------------------------------------------------------

// HelperIntrinsics implements the helper classes' methods. Archived class
// declarations refer to these by symbol.
func HelperIntrinsics() archive.Intrinsics {
	return archive.Intrinsics{
		"helper.init": noop,
		"helper.initInt": func(env *vm.Env, this *vm.Object, args []vm.Value) vm.Value {
			this.SetField("intVal", args[0])
			return vm.Void
		},
		"helper.getValue": func(env *vm.Env, this *vm.Object, args []vm.Value) vm.Value {
			return this.GetField("intVal")
		},
		"subclass.init": func(env *vm.Env, this *vm.Object, args []vm.Value) vm.Value {
			env.InvokeSpecial(this.Class().Superclass, this, "<init>", "(I)V", args...)
			return vm.Void
		},
		"subclass.getValue": func(env *vm.Env, this *vm.Object, args []vm.Value) vm.Value {
			v := env.InvokeSpecial(this.Class().Superclass, this, "getValue", "()I")
			return vm.IntValue(-v.Int())
		},
		"subclass.castToParent": func(env *vm.Env, this *vm.Object, args []vm.Value) vm.Value {
			return vm.RefValue(this)
		},
	}
}

func helperClassDecl() archive.ClassDecl {
	return archive.ClassDecl{
		Name:   HelperClass,
		Fields: []archive.FieldDecl{{Name: "intVal", Desc: "I"}},
		Methods: []archive.MethodDecl{
			{Name: "<init>", Desc: "()V", Symbol: "helper.init"},
			{Name: "<init>", Desc: "(I)V", Symbol: "helper.initInt"},
			{Name: "getValue", Desc: "()I", Symbol: "helper.getValue"},
		},
	}
}

func helperSubclassDecl() archive.ClassDecl {
	return archive.ClassDecl{
		Name:  HelperSubclass,
		Super: HelperClass,
		Methods: []archive.MethodDecl{
			{Name: "<init>", Desc: "(I)V", Symbol: "subclass.init"},
			{Name: "getValue", Desc: "()I", Symbol: "subclass.getValue"},
			{Name: "castToParent", Desc: "()L" + HelperClass + ";", Symbol: "subclass.castToParent"},
		},
	}
}

// HelperClassDef is the application loader's own copy of the helper class.
func HelperClassDef() *vm.ClassDef {
	decl := helperClassDecl()
	def, err := decl.ClassDef(HelperIntrinsics())
	if err != nil {
		panic(err)
	}
	return def
}

// HelperArchive packs the helper class and its subclass, the way a remote
// class path would ship them.
func HelperArchive() *archive.Archive {
	return archive.New("class-loader-helpers", helperClassDecl(), helperSubclassDecl())
}

// ClassLoaderTestDef is the anchor class whose loader serves as the default
// for class lookups outside a native callback.
func ClassLoaderTestDef() *vm.ClassDef {
	return &vm.ClassDef{
		Name: ClassLoaderTest,
		Methods: []vm.MethodDef{
			{Name: "<init>", Desc: "()V", Impl: noop},
			{Name: "jniBuildNewObjectsFromClassLoader", Desc: "(Ljava/lang/ClassLoader;)" + descObject, Native: true},
		},
	}
}

// ---------------------------------------------------------------------------
// ContextTest
// ---------------------------------------------------------------------------

// ContextTestDef declares natives that keep an ObjectTestHelper in a native
// context named by a long token. The managed methods hold the token in the
// nativeContext field and hand it back to native code on every call; the
// natives themselves are supplied by whichever library is loaded.
func ContextTestDef() *vm.ClassDef {
	const (
		descOpen  = "(I)J"
		descAdopt = "(" + descHelper + ")J"
		descQuery = "(J)" + descHelper
	)
	token := func(this *vm.Object) vm.Value { return this.GetField("nativeContext") }
	return &vm.ClassDef{
		Name:   ContextTest,
		Fields: []vm.FieldDef{{Name: "nativeContext", Desc: "J"}},
		Methods: []vm.MethodDef{
			{Name: "<init>", Desc: "()V", Impl: noop},
			{Name: "nativeCreateContext", Desc: descOpen, Native: true},
			{Name: "nativeCreateContextWithPromotion", Desc: descAdopt, Native: true},
			{Name: "nativeCreateContextWithCopy", Desc: descAdopt, Native: true},
			{Name: "nativeQueryObject", Desc: descQuery, Native: true},
			{Name: "nativeExtractObject", Desc: descQuery, Native: true},
			{Name: "nativeDestroyContext", Desc: "(J)V", Native: true},
			{Name: "open", Desc: "(I)V", Impl: func(env *vm.Env, this *vm.Object, args []vm.Value) vm.Value {
				this.SetField("nativeContext", env.Invoke(this, "nativeCreateContext", descOpen, args[0]))
				return vm.Void
			}},
			{Name: "adopt", Desc: "(" + descHelper + "Z)V", Impl: func(env *vm.Env, this *vm.Object, args []vm.Value) vm.Value {
				name := "nativeCreateContextWithCopy"
				if args[1].Bool() {
					name = "nativeCreateContextWithPromotion"
				}
				this.SetField("nativeContext", env.Invoke(this, name, descAdopt, args[0]))
				return vm.Void
			}},
			{Name: "query", Desc: "()" + descHelper, Impl: func(env *vm.Env, this *vm.Object, args []vm.Value) vm.Value {
				return env.Invoke(this, "nativeQueryObject", descQuery, token(this))
			}},
			{Name: "extract", Desc: "()" + descHelper, Impl: func(env *vm.Env, this *vm.Object, args []vm.Value) vm.Value {
				return env.Invoke(this, "nativeExtractObject", descQuery, token(this))
			}},
			{Name: "close", Desc: "()V", Impl: func(env *vm.Env, this *vm.Object, args []vm.Value) vm.Value {
				env.Invoke(this, "nativeDestroyContext", "(J)V", token(this))
				this.SetField("nativeContext", vm.LongValue(0))
				return vm.Void
			}},
		},
	}
}

// ---------------------------------------------------------------------------
// Exceptions
// ---------------------------------------------------------------------------

// ClassWithStaticMethodDef declares a static factory returning a new
// java/lang/Exception with the message "Built Exception".
func ClassWithStaticMethodDef() *vm.ClassDef {
	return &vm.ClassDef{
		Name: ClassWithStaticMethod,
		Methods: []vm.MethodDef{
			{Name: "build", Desc: "()Ljava/lang/Exception;", Static: true, Impl: func(env *vm.Env, this *vm.Object, args []vm.Value) vm.Value {
				c := env.Resolve(nil, "java/lang/Exception")
				return vm.RefValue(env.Construct(c, "("+descString+")V", vm.RefValue(env.NewStringObject("Built Exception"))))
			}},
		},
	}
}

// ---------------------------------------------------------------------------
// Static members
// ---------------------------------------------------------------------------

// StaticTestHelperDef declares static fields and methods of every kind.
func StaticTestHelperDef() *vm.ClassDef {
	return &vm.ClassDef{
		Name: StaticTestHelper,
		Fields: []vm.FieldDef{
			{Name: "voidCalled", Desc: "Z", Static: true},
			{Name: "intField", Desc: "I", Static: true},
			{Name: "doubleField", Desc: "D", Static: true},
			{Name: "stringField", Desc: descString, Static: true},
		},
		Methods: []vm.MethodDef{
			{Name: "voidFunc", Desc: "()V", Static: true, Impl: func(env *vm.Env, this *vm.Object, args []vm.Value) vm.Value {
				env.Resolve(nil, StaticTestHelper).SetStaticField("voidCalled", vm.BooleanValue(true))
				return vm.Void
			}},
			{Name: "byteFunc", Desc: "()B", Static: true, Impl: func(env *vm.Env, this *vm.Object, args []vm.Value) vm.Value {
				return vm.ByteValue(1)
			}},
			{Name: "charFunc", Desc: "()C", Static: true, Impl: func(env *vm.Env, this *vm.Object, args []vm.Value) vm.Value {
				return vm.CharValue('a')
			}},
			{Name: "intFunc", Desc: "()I", Static: true, Impl: func(env *vm.Env, this *vm.Object, args []vm.Value) vm.Value {
				return vm.IntValue(123)
			}},
			{Name: "longFunc", Desc: "()J", Static: true, Impl: func(env *vm.Env, this *vm.Object, args []vm.Value) vm.Value {
				return vm.LongValue(1 << 40)
			}},
			{Name: "floatFunc", Desc: "()F", Static: true, Impl: func(env *vm.Env, this *vm.Object, args []vm.Value) vm.Value {
				return vm.FloatValue(1.5)
			}},
			{Name: "doubleFunc", Desc: "()D", Static: true, Impl: func(env *vm.Env, this *vm.Object, args []vm.Value) vm.Value {
				return vm.DoubleValue(2.25)
			}},
			{Name: "stringFunc", Desc: "(" + descString + ")" + descString, Static: true, Impl: func(env *vm.Env, this *vm.Object, args []vm.Value) vm.Value {
				in := ""
				if s := args[0].Object(); s != nil {
					in = s.GoString()
				}
				return vm.RefValue(env.NewStringObject(in + in))
			}},
		},
	}
}

// ---------------------------------------------------------------------------
// Type erasure
// ---------------------------------------------------------------------------

// TypeErasureDef declares a static echo over erased Object and List
// parameters.
func TypeErasureDef() *vm.ClassDef {
	return &vm.ClassDef{
		Name: TypeErasure,
		Methods: []vm.MethodDef{
			{Name: "echoGenericValue", Desc: "(" + descObject + ")" + descObject, Static: true, Impl: func(env *vm.Env, this *vm.Object, args []vm.Value) vm.Value {
				return args[0]
			}},
			{Name: "firstOf", Desc: "(Ljava/util/List;)" + descObject, Static: true, Impl: func(env *vm.Env, this *vm.Object, args []vm.Value) vm.Value {
				list := args[0].Object()
				if list == nil {
					return vm.Null
				}
				return env.Invoke(list, "get", "(I)"+descObject, vm.IntValue(0))
			}},
		},
	}
}
