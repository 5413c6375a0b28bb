package bind

import (
	"errors"
	"testing"

	"github.com/chazu/mbind/vm"
)

// ---------------------------------------------------------------------------
// Promote, demote, weaken, resolve
// ---------------------------------------------------------------------------

func TestPromote_TakesOverLocal(t *testing.T) {
	_, env := newTestJvm(t)
	local := mustNew(t, env, helperDef, 4)

	g := Promote(env, local)
	defer g.Delete(env)

	if g.IsNull() {
		t.Fatal("promoted global is null")
	}
	if g.Def() != helperDef {
		t.Errorf("Def = %v, want %v", g.Def(), helperDef)
	}
	expectViolation(t, vm.ContractDeletedRef, func() { local.Get("intVal1") })

	back := g.Local(env)
	if got := fieldInts(t, back); got[0] != 4 {
		t.Errorf("intVal1 = %d, want 4", got[0])
	}
}

func TestPromote_Idempotent(t *testing.T) {
	_, env := newTestJvm(t)
	g := Promote(env, mustNew(t, env, helperDef))
	defer g.Delete(env)

	again := Promote(env, g)
	if again.Release() != g.Release() {
		t.Error("promoting a global should return the same handle")
	}
	if n := g.RefCount(env); n != 1 {
		t.Errorf("RefCount = %d, want 1", n)
	}
}

func TestPromote_NullYieldsNullGlobal(t *testing.T) {
	_, env := newTestJvm(t)

	g := Promote(env, LocalObject{env: env, def: helperDef})
	if !g.IsNull() {
		t.Error("promoting null should yield a null global")
	}
	if g.Def() != helperDef {
		t.Errorf("Def = %v, want %v", g.Def(), helperDef)
	}
	if l := Demote(env, g); !l.IsNull() {
		t.Error("demoting a null global should yield a null local")
	}
	if n := g.RefCount(env); n != 0 {
		t.Errorf("RefCount = %d, want 0", n)
	}
}

func TestGlobal_CloneSharesHandle(t *testing.T) {
	_, env := newTestJvm(t)
	g := Promote(env, mustNew(t, env, helperDef))

	c := g.Clone(env)
	if c.Release() != g.Release() {
		t.Error("clone should share the underlying handle")
	}
	if n := g.RefCount(env); n != 2 {
		t.Errorf("RefCount after clone = %d, want 2", n)
	}
	c.Delete(env)
	if n := g.RefCount(env); n != 1 {
		t.Errorf("RefCount after deleting clone = %d, want 1", n)
	}
	g.Delete(env)
	if n := g.RefCount(env); n != 0 {
		t.Errorf("RefCount after deleting both = %d, want 0", n)
	}
}

func TestNewGlobal_LeavesLocalValid(t *testing.T) {
	_, env := newTestJvm(t)
	local := mustNew(t, env, helperDef, 9)

	g := NewGlobal(env, local)
	defer g.Delete(env)

	if !local.IsSameObject(g) {
		t.Error("global should refer to the local's object")
	}
	if got := fieldInts(t, local); got[0] != 9 {
		t.Errorf("local intVal1 = %d, want 9", got[0])
	}
}

func TestWeak_ResolveFollowsReachability(t *testing.T) {
	j, env := newTestJvm(t)
	g := Promote(env, mustNew(t, env, helperDef, 2))
	w := Weaken(env, g)
	defer w.Delete(env)

	l, ok := Resolve(env, w)
	if !ok {
		t.Fatal("weak reference to a pinned object should resolve")
	}
	l.Delete()

	j.VM().GC()
	l, ok = Resolve(env, w)
	if !ok {
		t.Fatal("weak reference should survive GC while the global lives")
	}
	if got := fieldInts(t, l); got[0] != 2 {
		t.Errorf("resolved intVal1 = %d, want 2", got[0])
	}
	l.Delete()

	g.Delete(env)
	j.VM().GC()
	if l, ok := Resolve(env, w); ok || !l.IsNull() {
		t.Error("weak reference should resolve to null after its referent is collected")
	}
	if w.IsNull() {
		t.Error("a cleared weak reference is not itself null")
	}
}

func TestPromote_WeakReference(t *testing.T) {
	_, env := newTestJvm(t)
	g := Promote(env, mustNew(t, env, helperDef, 6))
	defer g.Delete(env)
	w := Weaken(env, g)
	defer w.Delete(env)

	strong := Promote(env, w)
	defer strong.Delete(env)
	if strong.IsNull() {
		t.Fatal("promoting a live weak reference should yield a global")
	}
	if !Demote(env, strong).IsSameObject(g) {
		t.Error("promoted weak reference should refer to the same object")
	}
}

// ---------------------------------------------------------------------------
// Local frames
// ---------------------------------------------------------------------------

func TestWithLocalFrame_ReleasesLocals(t *testing.T) {
	_, env := newTestJvm(t)
	base := env.Raw().FrameDepth()

	var inner LocalString
	out, err := WithLocalFrame(env, 8, func(f *Frame) error {
		for i := 0; i < 5; i++ {
			NewString(env, "scratch")
		}
		inner = NewString(env, "inner")
		f.Keep(NewString(env, "kept"))
		return nil
	})
	if err != nil {
		t.Fatalf("WithLocalFrame: %v", err)
	}
	if d := env.Raw().FrameDepth(); d != base {
		t.Errorf("FrameDepth = %d, want %d", d, base)
	}
	if out.Def() != StringClass {
		t.Errorf("kept Def = %v, want %v", out.Def(), StringClass)
	}
	if got := WrapString(env, out.Release()).Copy(); got != "kept" {
		t.Errorf("kept = %q, want %q", got, "kept")
	}
	expectViolation(t, vm.ContractUseAfterFrame, func() { inner.Copy() })
}

func TestWithLocalFrame_ErrorDropsResult(t *testing.T) {
	_, env := newTestJvm(t)
	base := env.Raw().FrameDepth()
	boom := errors.New("boom")

	out, err := WithLocalFrame(env, 4, func(f *Frame) error {
		f.Keep(NewString(env, "kept"))
		return boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
	if !out.IsNull() {
		t.Error("result should be null when fn fails")
	}
	if d := env.Raw().FrameDepth(); d != base {
		t.Errorf("FrameDepth = %d, want %d", d, base)
	}
}

func TestWithLocalFrame_PanicUnwinds(t *testing.T) {
	_, env := newTestJvm(t)
	base := env.Raw().FrameDepth()

	var inner LocalString
	func() {
		defer func() {
			if r := recover(); r != "kaboom" {
				t.Errorf("recovered %v, want kaboom", r)
			}
		}()
		WithLocalFrame(env, 4, func(f *Frame) error {
			inner = NewString(env, "inner")
			// a nested frame left open by the panic
			env.Raw().PushLocalFrame(2)
			panic("kaboom")
		})
	}()

	if d := env.Raw().FrameDepth(); d != base {
		t.Errorf("FrameDepth after panic = %d, want %d", d, base)
	}
	expectViolation(t, vm.ContractUseAfterFrame, func() { inner.Copy() })
}

func TestWithLocalFrame_NestedFramesClosedByFn(t *testing.T) {
	_, env := newTestJvm(t)
	base := env.Raw().FrameDepth()

	out, err := WithLocalFrame(env, 4, func(f *Frame) error {
		inner, err := WithLocalFrame(env, 4, func(g *Frame) error {
			g.Keep(mustNew(t, env, helperDef, 3))
			return nil
		})
		if err != nil {
			return err
		}
		f.Keep(inner)
		return nil
	})
	if err != nil {
		t.Fatalf("WithLocalFrame: %v", err)
	}
	if d := env.Raw().FrameDepth(); d != base {
		t.Errorf("FrameDepth = %d, want %d", d, base)
	}
	if out.Def() != helperDef {
		t.Fatalf("Def = %v, want %v", out.Def(), helperDef)
	}
	if got := fieldInts(t, out); got[0] != 3 {
		t.Errorf("intVal1 = %d, want 3", got[0])
	}
}
