package bind

import (
	"testing"

	"github.com/chazu/mbind/vm"
	"github.com/chazu/mbind/vm/vmtest"
)

// ---------------------------------------------------------------------------
// Harness
// ---------------------------------------------------------------------------

func testOptions() Options {
	return Options{
		ArrayCopyThreshold:    64,
		AllowCriticalSections: true,
		MemberCacheSize:       1024,
	}
}

// newTestJvm creates a fixture VM, attaches the binding layer through an
// empty library and attaches the calling goroutine.
func newTestJvm(t *testing.T, extra ...*vm.ClassDef) (*Jvm, *Env) {
	t.Helper()
	return newTestJvmWith(t, NewLibrary("mbind-test", testOptions()), extra...)
}

// newTestJvmWith is newTestJvm loading lib. The layer is torn down before
// the VM is destroyed.
func newTestJvmWith(t *testing.T, lib *Library, extra ...*vm.ClassDef) (*Jvm, *Env) {
	t.Helper()
	v := vmtest.NewVM(t, extra...)
	if err := lib.Install(); err != nil {
		t.Fatalf("Install: %v", err)
	}
	if err := v.LoadLibrary(lib.Name); err != nil {
		t.Fatalf("LoadLibrary: %v", err)
	}
	j := Current()
	if j == nil || j.VM() != v {
		t.Fatal("loading the library did not attach the binding layer")
	}
	t.Cleanup(j.Teardown)
	env, err := j.AttachThread()
	if err != nil {
		t.Fatalf("AttachThread: %v", err)
	}
	return j, env
}

// expectViolation runs fn and checks that it reports the given contract.
func expectViolation(t *testing.T, want vm.Contract, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		cv := vm.AsContractViolation(r)
		if cv == nil {
			t.Fatalf("expected %q violation, got %v", want, r)
		}
		if cv.Contract != want {
			t.Errorf("violation = %q, want %q (%s)", cv.Contract, want, cv.Detail)
		}
	}()
	fn()
}

func mustNew(t *testing.T, env *Env, def *ClassDef, args ...any) LocalObject {
	t.Helper()
	o, err := New(env, def, args...)
	if err != nil {
		t.Fatalf("New(%s): %v", def.Name, err)
	}
	return o
}

func mustCreate(t *testing.T, store *ContextStore, destructor func()) int64 {
	t.Helper()
	token, err := store.Create(destructor)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return token
}

func mustCall(t *testing.T, o LocalObject, name string, args ...any) Value {
	t.Helper()
	v, err := o.Call(name, args...)
	if err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	return v
}

func mustStatic(t *testing.T, env *Env, def *ClassDef) StaticRef {
	t.Helper()
	s, err := Static(env, def)
	if err != nil {
		t.Fatalf("Static(%s): %v", def.Name, err)
	}
	return s
}

func fieldInts(t *testing.T, o LocalObject) [3]int32 {
	t.Helper()
	var out [3]int32
	for i, name := range []string{"intVal1", "intVal2", "intVal3"} {
		v, err := o.Get(name)
		if err != nil {
			t.Fatalf("Get(%s): %v", name, err)
		}
		out[i] = v.Int()
	}
	return out
}

// ---------------------------------------------------------------------------
// Class definitions of the fixture classes
// ---------------------------------------------------------------------------

var helperDef = &ClassDef{
	Name: vmtest.ObjectTestHelper,
	Constructors: []Constructor{
		Ctor(),
		Ctor(JavaObject),
		Ctor(Int),
		Ctor(Int, Int),
		Ctor(Int, Int, Int),
	},
	Methods: []Method{
		Fn("foo", Void),
		Overloaded("returnNewObjectWithFieldSetToSum",
			Sig(Self, Int, Int),
			Sig(Self, Self),
		),
		Fn("isEqualTo", Boolean, Self),
		Fn("increment", Void, Int),
	},
	Fields: []Field{
		{Name: "intVal1", Type: Int},
		{Name: "intVal2", Type: Int},
		{Name: "intVal3", Type: Int},
		{Name: "objectVal", Type: JavaObject},
	},
}

var builderDef = &ClassDef{
	Name: vmtest.Builder,
	Methods: []Method{
		Fn("setOne", Self, Int),
		Fn("setTwo", Self, Int),
		Fn("setThree", Self, Int),
		Fn("build", ObjectOf(helperDef)),
	},
}

var staticHelperDef = &ClassDef{
	Name: vmtest.StaticTestHelper,
	Static: StaticDef{
		Methods: []Method{
			Fn("voidFunc", Void),
			Fn("byteFunc", Byte),
			Fn("charFunc", Char),
			Fn("intFunc", Int),
			Fn("longFunc", Long),
			Fn("floatFunc", Float),
			Fn("doubleFunc", Double),
			Fn("stringFunc", String, String),
		},
		Fields: []Field{
			{Name: "voidCalled", Type: Boolean},
			{Name: "intField", Type: Int},
			{Name: "doubleField", Type: Double},
			{Name: "stringField", Type: String},
		},
	},
}

var arrayHelpersDef = &ClassDef{
	Name: vmtest.ArrayTestHelpers,
	Static: StaticDef{Methods: []Method{
		Fn("assertInt1D", Void, Int, Int, ArrayOf(Int, 1)),
		Fn("assertDouble1D", Void, Double, Double, ArrayOf(Double, 1)),
		Fn("assertInt2D", Void, Int, ArrayOf(Int, 2)),
		Fn("assertString1D", Void, ArrayOf(String, 1), Boolean),
		Fn("assertObject1D", Void, Int, ArrayOf(ObjectOf(helperDef), 1)),
		Fn("assertObject2D", Void, Int, ArrayOf(ObjectOf(helperDef), 2)),
	}},
}

var erasureDef = &ClassDef{
	Name: vmtest.TypeErasure,
	Static: StaticDef{Methods: []Method{
		Fn("echoGenericValue", JavaObject, JavaObject),
		Fn("firstOf", JavaObject, JavaList),
	}},
}

var arrayListDef = &ClassDef{
	Name: "java/util/ArrayList",
	Methods: []Method{
		Fn("add", Boolean, JavaObject),
		Fn("get", JavaObject, Int),
		Fn("size", Int),
	},
}

var integerDef = &ClassDef{
	Name:         "java/lang/Integer",
	Constructors: []Constructor{Ctor(Int)},
	Methods:      []Method{Fn("intValue", Int)},
}

var customExceptionDef = &ClassDef{
	Name:         vmtest.CustomException,
	Constructors: []Constructor{Ctor(String)},
	Methods:      []Method{Fn("getMessage", String)},
}

var staticFactoryDef = &ClassDef{
	Name: vmtest.ClassWithStaticMethod,
	Static: StaticDef{Methods: []Method{
		Fn("build", JavaException),
	}},
}

var helperClassDef = &ClassDef{
	Name:         vmtest.HelperClass,
	Constructors: []Constructor{Ctor(), Ctor(Int)},
	Methods:      []Method{Fn("getValue", Int)},
}

var helperSubclassDef = &ClassDef{
	Name:         vmtest.HelperSubclass,
	Constructors: []Constructor{Ctor(Int)},
	Methods: []Method{
		Fn("getValue", Int),
		Fn("castToParent", ObjectOf(helperClassDef)),
	},
}

var remoteLoaderDef = &ClassLoaderDef{
	Name:             "remote",
	SupportedClasses: []*ClassDef{helperClassDef, helperSubclassDef},
}

var loaderTestDef = &ClassDef{
	Name: vmtest.ClassLoaderTest,
	Methods: []Method{
		Fn("jniBuildNewObjectsFromClassLoader", JavaObject, ClassLoaderClass.Type()),
	},
}
