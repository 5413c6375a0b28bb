package vmtest

import (
	"testing"

	"github.com/chazu/mbind/archive"
	"github.com/chazu/mbind/vm"
)

func attach(t *testing.T, v *vm.VM) *vm.Env {
	t.Helper()
	env, err := v.AttachCurrentThread()
	if err != nil {
		t.Fatalf("AttachCurrentThread: %v", err)
	}
	return env
}

func TestBuilder_ChainsAndBuilds(t *testing.T) {
	v := NewVM(t)
	env := attach(t, v)

	b := env.Construct(env.Resolve(nil, Builder), "()V")
	self := "(I)L" + Builder + ";"
	b = env.Invoke(b, "setOne", self, vm.IntValue(1)).Object()
	b = env.Invoke(b, "setTwo", self, vm.IntValue(2)).Object()
	b = env.Invoke(b, "setThree", self, vm.IntValue(3)).Object()
	obj := env.Invoke(b, "build", "()"+descHelper).Object()
	if obj == nil {
		t.Fatalf("build returned null, pending %v", env.Pending())
	}
	if got := HelperInts(obj); got != [3]int32{1, 2, 3} {
		t.Errorf("fields = %v, want [1 2 3]", got)
	}
}

func TestObjectTestHelper_Sums(t *testing.T) {
	v := NewVM(t)
	env := attach(t, v)
	c := env.Resolve(nil, ObjectTestHelper)

	a := env.Construct(c, "(III)V", vm.IntValue(1), vm.IntValue(2), vm.IntValue(3))
	b := env.Construct(c, "(III)V", vm.IntValue(10), vm.IntValue(20), vm.IntValue(30))
	sum := env.Invoke(a, "returnNewObjectWithFieldSetToSum", "("+descHelper+")"+descHelper, vm.RefValue(b)).Object()
	if got := HelperInts(sum); got != [3]int32{11, 22, 33} {
		t.Errorf("sum = %v, want [11 22 33]", got)
	}
	two := env.Invoke(a, "returnNewObjectWithFieldSetToSum", "(II)"+descHelper, vm.IntValue(5), vm.IntValue(7)).Object()
	if got := HelperInts(two); got != [3]int32{12, 0, 0} {
		t.Errorf("sum = %v, want [12 0 0]", got)
	}
	if !env.Invoke(sum, "isEqualTo", "("+descHelper+")Z", vm.RefValue(sum)).Bool() {
		t.Error("isEqualTo(self) should be true")
	}
}

func TestHelperArchive_Negates(t *testing.T) {
	v := NewVM(t)
	env := attach(t, v)

	src, err := archive.NewSource(HelperArchive(), HelperIntrinsics())
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}
	remote := v.NewClassLoader("remote", v.BootLoader(), src)
	sub, err := remote.LoadClass(HelperSubclass)
	if err != nil {
		t.Fatalf("LoadClass: %v", err)
	}
	obj := env.Construct(sub, "(I)V", vm.IntValue(5))
	if got := env.Invoke(obj, "getValue", "()I").Int(); got != -5 {
		t.Errorf("subclass getValue = %d, want -5", got)
	}
	local := env.Resolve(nil, HelperClass)
	if sub.Superclass == local {
		t.Error("remote subclass should extend the remote copy of the helper class")
	}
}

func TestContextTest_UnboundNativesLeaveNoToken(t *testing.T) {
	v := NewVM(t)
	env := attach(t, v)

	holder := env.Construct(env.Resolve(nil, ContextTest), "()V")
	env.Invoke(holder, "open", "(I)V", vm.IntValue(1))
	ex := env.Pending()
	if ex == nil || ex.Class().Name != "java/lang/UnsatisfiedLinkError" {
		t.Errorf("pending = %v, want UnsatisfiedLinkError", ex)
	}
	env.ExceptionClear()
	if got := holder.GetField("nativeContext").Long(); got != 0 {
		t.Errorf("nativeContext = %d, want 0", got)
	}
}

func TestArrayAssertions(t *testing.T) {
	v := NewVM(t)
	env := attach(t, v)
	c := env.Resolve(nil, ArrayTestHelpers)

	arr := v.WrapPrimitiveArray([]int32{3, 5, 7})
	env.InvokeStatic(c, "assertInt1D", "(II[I)V", vm.IntValue(3), vm.IntValue(2), vm.RefValue(arr))
	if p := env.TakePending(); p != nil {
		t.Errorf("assertInt1D threw %v", p)
	}
	env.InvokeStatic(c, "assertInt1D", "(II[I)V", vm.IntValue(0), vm.IntValue(2), vm.RefValue(arr))
	p := env.TakePending()
	if p == nil || p.Class().Name != AssertionError {
		t.Errorf("pending = %v, want AssertionError", p)
	}
}

func TestCompareElements(t *testing.T) {
	if err := CompareElements([]float32{1, 2.5}, []float32{1.5, 2}); err != nil {
		t.Errorf("float32 within tolerance: %v", err)
	}
	if err := CompareElements([]float64{1}, []float64{1.1}); err == nil {
		t.Error("float64 outside tolerance should fail")
	}
	if err := CompareElements([]int32{1, 2}, []int32{1, 2}); err != nil {
		t.Errorf("equal ints: %v", err)
	}
	if err := CompareElements([]int32{1}, []int64{1}); err == nil {
		t.Error("mismatched element types should fail")
	}
	if err := CompareElements([]bool{true}, []bool{false}); err == nil {
		t.Error("different bools should fail")
	}
}

func TestRecorder(t *testing.T) {
	var rec Recorder
	mock := rec.Mock(ObjectTestHelperDef())
	v := NewVM(t, mock)
	env := attach(t, v)

	obj := env.Construct(env.Resolve(nil, mock.Name), "()V")
	env.Invoke(obj, "foo", "()V")
	env.Invoke(obj, "increment", "(I)V", vm.IntValue(4))
	if got := env.Invoke(obj, "isEqualTo", "("+descHelper+")Z", vm.RefValue(obj)); got.Bool() {
		t.Error("mocked method should return the zero value")
	}

	if err := rec.Verify("foo", "increment", "isEqualTo"); err != nil {
		t.Error(err)
	}
	if err := rec.VerifyArgs(1, vm.IntValue(4)); err != nil {
		t.Error(err)
	}
	if rec.Count("foo") != 1 {
		t.Errorf("Count(foo) = %d, want 1", rec.Count("foo"))
	}
	if HelperInts(obj) != [3]int32{} {
		t.Error("recorded calls should not run the real method")
	}
}
