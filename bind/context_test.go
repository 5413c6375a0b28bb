package bind

import (
	"testing"

	"github.com/chazu/mbind/vm"
	"github.com/chazu/mbind/vm/vmtest"
)

// ---------------------------------------------------------------------------
// Context store
// ---------------------------------------------------------------------------

func TestContext_StoredObjectSurvivesCollection(t *testing.T) {
	j, env := newTestJvm(t)
	store := j.Contexts()
	token := mustCreate(t, store, nil)
	defer store.Destroy(env, token)

	h := mustNew(t, env, helperDef, 555)
	store.PromoteInto(env, token, "helper", h)
	expectViolation(t, vm.ContractDeletedRef, func() { h.Call("foo") })

	j.VM().GC()
	for i := 0; i < 4; i++ {
		q := store.Query(env, token, "helper")
		if q.IsNull() {
			t.Fatalf("query %d returned null", i)
		}
		if q.Def() != helperDef {
			t.Errorf("query %d Def = %v", i, q.Def())
		}
		if got := fieldInts(t, q)[0]; got != 555 {
			t.Errorf("query %d intVal1 = %d, want 555", i, got)
		}
		q.Delete()
	}

	q := store.Query(env, token, "helper")
	witness := NewGlobal(env, q)
	defer witness.Delete(env)
	q.Delete()

	g, ok := store.Extract(token, "helper")
	if !ok {
		t.Fatal("Extract found nothing")
	}
	defer g.Delete(env)
	if !SameObject(env, g, witness) {
		t.Error("Extract returned a different object")
	}
	if q := store.Query(env, token, "helper"); !q.IsNull() {
		t.Error("Query after Extract should be null")
	}
	if _, ok := store.Extract(token, "helper"); ok {
		t.Error("second Extract should find nothing")
	}
}

func TestContext_StoreReplacesAndDeletesOld(t *testing.T) {
	j, env := newTestJvm(t)
	store := j.Contexts()
	token := mustCreate(t, store, nil)
	first := mustNew(t, env, helperDef, 1)
	before := j.VM().GlobalRefs()

	store.PromoteInto(env, token, "slot", first)
	store.PromoteInto(env, token, "slot", mustNew(t, env, helperDef, 2))
	if got := j.VM().GlobalRefs() - before; got != 1 {
		t.Errorf("globals held = %d, want 1", got)
	}
	if got := fieldInts(t, store.Query(env, token, "slot"))[0]; got != 2 {
		t.Errorf("slot intVal1 = %d, want 2", got)
	}

	// CopyInto leaves the local usable.
	local := mustNew(t, env, helperDef, 3)
	store.CopyInto(env, token, "copy", local)
	if _, err := local.Call("foo"); err != nil {
		t.Errorf("local after CopyInto: %v", err)
	}

	store.Destroy(env, token)
	if got := j.VM().GlobalRefs(); got != before {
		t.Errorf("globals after Destroy = %d, want %d", got, before)
	}
}

func TestContext_State(t *testing.T) {
	j, env := newTestJvm(t)
	store := j.Contexts()
	token := mustCreate(t, store, nil)
	defer store.Destroy(env, token)

	if _, ok := store.State(token, "calls"); ok {
		t.Error("unset state should not be found")
	}
	store.SetState(token, "calls", 3)
	store.SetState(token, "calls", 4)
	if v, ok := store.State(token, "calls"); !ok || v != 4 {
		t.Errorf("State = %d, %t; want 4, true", v, ok)
	}
}

func TestContext_DestroyOnce(t *testing.T) {
	j, env := newTestJvm(t)
	store := j.Contexts()
	runs := 0
	token := mustCreate(t, store, func() { runs++ })
	other := mustCreate(t, store, nil)
	defer store.Destroy(env, other)

	if n := store.Len(); n != 2 {
		t.Errorf("Len = %d, want 2", n)
	}
	store.PromoteInto(env, token, "helper", mustNew(t, env, helperDef, 1))
	store.SetState(token, "n", 1)

	store.Destroy(env, token)
	store.Destroy(env, token)
	if runs != 1 {
		t.Errorf("destructor ran %d times, want 1", runs)
	}
	if n := store.Len(); n != 1 {
		t.Errorf("Len = %d, want 1", n)
	}

	// A destroyed token is known but empty.
	if q := store.Query(env, token, "helper"); !q.IsNull() {
		t.Error("Query after Destroy should be null")
	}
	if _, ok := store.State(token, "n"); ok {
		t.Error("State after Destroy should be empty")
	}
	store.SetState(token, "n", 2)
	store.PromoteInto(env, token, "late", mustNew(t, env, helperDef, 9))
	if q := store.Query(env, token, "late"); !q.IsNull() {
		t.Error("storing into a destroyed context should be dropped")
	}
}

func TestContext_DestroyReleasesReferent(t *testing.T) {
	j, env := newTestJvm(t)
	store := j.Contexts()
	token := mustCreate(t, store, nil)

	store.PromoteInto(env, token, "helper", mustNew(t, env, helperDef, 8))
	q := store.Query(env, token, "helper")
	g := NewGlobal(env, q)
	w := Weaken(env, g)
	defer w.Delete(env)
	g.Delete(env)
	q.Delete()

	j.VM().GC()
	if l, ok := Resolve(env, w); !ok {
		t.Fatal("object held by a live context was collected")
	} else {
		l.Delete()
	}

	store.Destroy(env, token)
	j.VM().GC()
	if _, ok := Resolve(env, w); ok {
		t.Error("object should be collectable once its context is destroyed")
	}
}

func TestContext_ForgedTokens(t *testing.T) {
	j, env := newTestJvm(t)
	store := j.Contexts()
	token := mustCreate(t, store, nil)
	defer store.Destroy(env, token)

	expectViolation(t, vm.ContractTokenForgery, func() { store.Query(env, 12345, "x") })
	expectViolation(t, vm.ContractTokenForgery, func() { store.SetState(tokenTag<<48|(token&0xffff)+1000, "x", 1) })
	expectViolation(t, vm.ContractTokenForgery, func() { store.Destroy(env, token^(1<<62)) })

	// The store stays usable after a rejected token.
	store.SetState(token, "ok", 1)
	if _, ok := store.State(token, "ok"); !ok {
		t.Error("valid token rejected after forgery")
	}
}

// ---------------------------------------------------------------------------
// Tokens held by managed code
// ---------------------------------------------------------------------------

const descHelper = "L" + vmtest.ObjectTestHelper + ";"

// contextLibrary implements the ContextTest natives on top of the context
// store. The token is the only thing managed code keeps between calls.
func contextLibrary(name string) *Library {
	create := func(env *Env, fill func(store *ContextStore, token int64) error) (Value, error) {
		store := env.Jvm().Contexts()
		token, err := store.Create(nil)
		if err != nil {
			return Value{}, err
		}
		if err := fill(store, token); err != nil {
			store.Destroy(env, token)
			return Value{}, err
		}
		return Return(env, token), nil
	}
	return NewLibrary(name, testOptions()).
		Register(vmtest.ContextTest, "nativeCreateContext", "(I)J", func(env *Env, this LocalObject, args []Value) (Value, error) {
			return create(env, func(store *ContextStore, token int64) error {
				h, err := New(env, helperDef, args[0].Int())
				if err != nil {
					return err
				}
				return store.PromoteInto(env, token, "helper", h)
			})
		}).
		Register(vmtest.ContextTest, "nativeCreateContextWithPromotion", "("+descHelper+")J", func(env *Env, this LocalObject, args []Value) (Value, error) {
			return create(env, func(store *ContextStore, token int64) error {
				return store.PromoteInto(env, token, "helper", args[0].Object())
			})
		}).
		Register(vmtest.ContextTest, "nativeCreateContextWithCopy", "("+descHelper+")J", func(env *Env, this LocalObject, args []Value) (Value, error) {
			return create(env, func(store *ContextStore, token int64) error {
				return store.CopyInto(env, token, "helper", args[0].Object())
			})
		}).
		Register(vmtest.ContextTest, "nativeQueryObject", "(J)"+descHelper, func(env *Env, this LocalObject, args []Value) (Value, error) {
			return Return(env, env.Jvm().Contexts().Query(env, args[0].Long(), "helper")), nil
		}).
		Register(vmtest.ContextTest, "nativeExtractObject", "(J)"+descHelper, func(env *Env, this LocalObject, args []Value) (Value, error) {
			g, ok := env.Jvm().Contexts().Extract(args[0].Long(), "helper")
			if !ok {
				return Return(env, nil), nil
			}
			defer g.Delete(env)
			return Return(env, Demote(env, g)), nil
		}).
		Register(vmtest.ContextTest, "nativeDestroyContext", "(J)V", func(env *Env, this LocalObject, args []Value) (Value, error) {
			env.Jvm().Contexts().Destroy(env, args[0].Long())
			return Value{}, nil
		})
}

// newContextHolder constructs a ContextTest object and keeps it reachable
// through a local reference.
func newContextHolder(t *testing.T, env *Env) *vm.Object {
	t.Helper()
	raw := env.Raw()
	holder := raw.Construct(raw.Resolve(nil, vmtest.ContextTest), "()V")
	if holder == nil {
		t.Fatalf("construct ContextTest: %v", Catch(env))
	}
	raw.NewLocal(holder)
	return holder
}

// holderCall invokes a ContextTest method and fails on a pending exception.
func holderCall(t *testing.T, env *Env, holder *vm.Object, name, desc string, args ...vm.Value) vm.Value {
	t.Helper()
	v := env.Raw().Invoke(holder, name, desc, args...)
	if exc := Catch(env); exc != nil {
		t.Fatalf("%s: %v", name, exc)
	}
	return v
}

func TestContext_TokenCrossesManagedCalls(t *testing.T) {
	j, env := newTestJvmWith(t, contextLibrary("mbind-context-test"))
	holder := newContextHolder(t, env)

	holderCall(t, env, holder, "open", "(I)V", vm.IntValue(555))
	if holder.GetField("nativeContext").Long() == 0 {
		t.Fatal("managed code holds no token")
	}
	j.VM().GC()

	for i := 0; i < 4; i++ {
		q := holderCall(t, env, holder, "query", "()"+descHelper).Object()
		if q == nil {
			t.Fatalf("query %d returned null", i)
		}
		if got := vmtest.HelperInts(q)[0]; got != 555 {
			t.Errorf("query %d intVal1 = %d, want 555", i, got)
		}
	}
	e := holderCall(t, env, holder, "extract", "()"+descHelper).Object()
	if e == nil || vmtest.HelperInts(e)[0] != 555 {
		t.Fatalf("extract = %v, want the stored helper", e)
	}
	for i := 0; i < 2; i++ {
		if q := holderCall(t, env, holder, "query", "()"+descHelper).Object(); q != nil {
			t.Errorf("query %d after extract = %v, want null", i, q)
		}
	}

	holderCall(t, env, holder, "close", "()V")
	if n := j.Contexts().Len(); n != 0 {
		t.Errorf("Len after close = %d, want 0", n)
	}
}

func TestContext_ManagedObjectAdoptedByContext(t *testing.T) {
	tests := []struct {
		name    string
		promote bool
	}{
		{"promotion", true},
		{"copy", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j, env := newTestJvmWith(t, contextLibrary("mbind-context-adopt"))
			holder := newContextHolder(t, env)

			h := mustNew(t, env, helperDef, 9876)
			obj := env.Raw().Deref(h.raw())
			holderCall(t, env, holder, "adopt", "("+descHelper+"Z)V", vm.RefValue(obj), vm.BooleanValue(tt.promote))

			query := func() int32 {
				t.Helper()
				q := holderCall(t, env, holder, "query", "()"+descHelper).Object()
				if q == nil {
					t.Fatal("query returned null")
				}
				return vmtest.HelperInts(q)[0]
			}
			if got := query(); got != 9876 {
				t.Errorf("intVal1 = %d, want 9876", got)
			}
			obj.SetField("intVal1", vm.IntValue(1234))
			if got := query(); got != 1234 {
				t.Errorf("intVal1 after update = %d, want 1234", got)
			}

			// The context pins the object once the caller's reference is gone.
			h.Delete()
			j.VM().GC()
			if got := query(); got != 1234 {
				t.Errorf("intVal1 after collection = %d, want 1234", got)
			}
			holderCall(t, env, holder, "close", "()V")
		})
	}
}
