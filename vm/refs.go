package vm

import (
	"fmt"
	"sync/atomic"
)

// ---------------------------------------------------------------------------
// Ref: native-facing object handles
// ---------------------------------------------------------------------------

// RefType classifies a reference handle.
type RefType uint8

const (
	InvalidRef RefType = iota
	LocalRef
	GlobalRef
	WeakGlobalRef
)

var refTypeNames = [...]string{"invalid", "local", "global", "weak"}

// String implements the Stringer interface.
func (t RefType) String() string {
	if int(t) < len(refTypeNames) {
		return refTypeNames[t]
	}
	return fmt.Sprintf("RefType(%d)", t)
}

// handle is the table entry behind a Ref.
type handle struct {
	kind    RefType
	obj     atomic.Pointer[Object]
	env     *Env   // owning thread, locals only
	frame   *frame // owning frame, locals only
	count   atomic.Int32
	deleted atomic.Bool
}

// Ref is an opaque handle to a managed object. The zero Ref is null.
// A weak Ref whose referent was collected is not IsNull but dereferences to
// null.
type Ref struct {
	h *handle
}

// IsNull reports whether r is the null handle.
func (r Ref) IsNull() bool { return r.h == nil }

// String implements the Stringer interface.
func (r Ref) String() string {
	if r.h == nil {
		return "null"
	}
	return fmt.Sprintf("%s ref %p", r.h.kind, r.h)
}

// ---------------------------------------------------------------------------
// Local frames
// ---------------------------------------------------------------------------

type frameKind uint8

const (
	frameBase   frameKind = iota // pushed at attach
	frameNative                  // pushed around a native method call
	frameLocal                   // pushed by PushLocalFrame
)

type frame struct {
	kind     frameKind
	class    *Class // declaring class of the native method, frameNative only
	locals   []*handle
	capacity int
	popped   bool
}

func (env *Env) topFrame() *frame {
	if len(env.frames) == 0 {
		return nil
	}
	return env.frames[len(env.frames)-1]
}

func (env *Env) pushFrame(f *frame) {
	env.frames = append(env.frames, f)
}

func (env *Env) popFrame() {
	n := len(env.frames)
	f := env.frames[n-1]
	env.frames[n-1] = nil
	env.frames = env.frames[:n-1]
	f.popped = true
	f.locals = nil
}

// newLocal creates a local reference in the innermost live frame.
func (env *Env) newLocal(obj *Object) Ref {
	if obj == nil {
		return Ref{}
	}
	f := env.topFrame()
	if f == nil {
		env.vm.Fatal(ContractNoFrame, "creating a local reference on thread %d", env.gid)
	}
	h := &handle{kind: LocalRef, env: env, frame: f}
	h.obj.Store(obj)
	f.locals = append(f.locals, h)
	return Ref{h: h}
}

// deref resolves a handle to its object, enforcing the lifetime rules of
// local references.
func (env *Env) deref(r Ref) *Object {
	h := r.h
	if h == nil {
		return nil
	}
	if h.deleted.Load() {
		env.vm.Fatal(ContractDeletedRef, "%s reference used after delete", h.kind)
	}
	if h.kind == LocalRef {
		if h.env != env {
			if h.env.gid == env.gid {
				env.vm.Fatal(ContractUseAfterFrame, "local reference from a previous attachment")
			}
			env.vm.Fatal(ContractCrossThread, "local reference of thread %d used on thread %d", h.env.gid, env.gid)
		}
		if h.frame.popped {
			env.vm.Fatal(ContractUseAfterFrame, "local reference outlived its frame")
		}
	}
	return h.obj.Load()
}

// PushLocalFrame opens a nested local frame.
func (env *Env) PushLocalFrame(capacity int) error {
	env.enter()
	if capacity < 0 {
		return fmt.Errorf("PushLocalFrame: negative capacity %d", capacity)
	}
	env.pushFrame(&frame{kind: frameLocal, capacity: capacity})
	return nil
}

// PopLocalFrame closes the innermost frame opened by PushLocalFrame (or the
// attach frame), releasing its locals. result, if not null, is carried into
// the enclosing frame as a fresh local.
func (env *Env) PopLocalFrame(result Ref) Ref {
	env.enter()
	f := env.topFrame()
	if f == nil {
		env.vm.Fatal(ContractNoFrame, "PopLocalFrame with no live frame")
	}
	if f.kind == frameNative {
		env.vm.Fatal(ContractNoFrame, "PopLocalFrame would pop a native callback frame")
	}
	obj := env.deref(result)
	env.popFrame()
	return env.newLocal(obj)
}

// FrameDepth returns the number of live local frames.
func (env *Env) FrameDepth() int {
	return len(env.frames)
}

// LocalCount returns the number of live locals in the innermost frame.
func (env *Env) LocalCount() int {
	if f := env.topFrame(); f != nil {
		return len(f.locals)
	}
	return 0
}

// ---------------------------------------------------------------------------
// Reference operations
// ---------------------------------------------------------------------------

// NewLocalRef creates a new local reference to r's referent. A cleared weak
// reference yields null.
func (env *Env) NewLocalRef(r Ref) Ref {
	env.enter()
	return env.newLocal(env.deref(r))
}

// DeleteLocalRef releases a local reference before its frame ends.
func (env *Env) DeleteLocalRef(r Ref) {
	env.enter()
	if r.h == nil {
		return
	}
	if r.h.kind != LocalRef {
		env.vm.Fatal(ContractWrongObject, "DeleteLocalRef on a %s reference", r.h.kind)
	}
	env.deref(r)
	r.h.deleted.Store(true)
	f := r.h.frame
	for i, h := range f.locals {
		if h == r.h {
			f.locals = append(f.locals[:i], f.locals[i+1:]...)
			break
		}
	}
}

// NewGlobalRef returns a global reference to r's referent. If r is already
// global the same handle is returned with its count raised by one. Null in,
// null out.
func (env *Env) NewGlobalRef(r Ref) Ref {
	env.enter()
	if r.h != nil && r.h.kind == GlobalRef {
		env.deref(r)
		r.h.count.Add(1)
		return r
	}
	obj := env.deref(r)
	if obj == nil {
		return Ref{}
	}
	return env.vm.newGlobal(obj)
}

func (vm *VM) newGlobal(obj *Object) Ref {
	h := &handle{kind: GlobalRef}
	h.obj.Store(obj)
	h.count.Store(1)
	vm.refMu.Lock()
	vm.globals[h] = struct{}{}
	vm.refMu.Unlock()
	return Ref{h: h}
}

// DeleteGlobalRef drops one count of a global reference; the handle is
// released when the count reaches zero.
func (env *Env) DeleteGlobalRef(r Ref) {
	env.enter()
	if r.h == nil {
		return
	}
	if r.h.kind != GlobalRef {
		env.vm.Fatal(ContractWrongObject, "DeleteGlobalRef on a %s reference", r.h.kind)
	}
	env.deref(r)
	if r.h.count.Add(-1) > 0 {
		return
	}
	r.h.deleted.Store(true)
	env.vm.refMu.Lock()
	delete(env.vm.globals, r.h)
	env.vm.refMu.Unlock()
}

// GlobalRefCount returns the count of a global reference (0 once released).
func (env *Env) GlobalRefCount(r Ref) int {
	if r.h == nil || r.h.kind != GlobalRef || r.h.deleted.Load() {
		return 0
	}
	return int(r.h.count.Load())
}

// NewWeakGlobalRef creates a weak reference that does not keep its referent
// alive.
func (env *Env) NewWeakGlobalRef(r Ref) Ref {
	env.enter()
	obj := env.deref(r)
	if obj == nil {
		return Ref{}
	}
	h := &handle{kind: WeakGlobalRef}
	h.obj.Store(obj)
	env.vm.refMu.Lock()
	env.vm.weaks[h] = struct{}{}
	env.vm.refMu.Unlock()
	return Ref{h: h}
}

// DeleteWeakGlobalRef releases a weak reference.
func (env *Env) DeleteWeakGlobalRef(r Ref) {
	env.enter()
	if r.h == nil {
		return
	}
	if r.h.kind != WeakGlobalRef {
		env.vm.Fatal(ContractWrongObject, "DeleteWeakGlobalRef on a %s reference", r.h.kind)
	}
	env.deref(r)
	r.h.deleted.Store(true)
	env.vm.refMu.Lock()
	delete(env.vm.weaks, r.h)
	env.vm.refMu.Unlock()
}

// GetObjectRefType classifies r without enforcing lifetime rules. Deleted
// handles and locals of a popped frame report InvalidRef.
func (env *Env) GetObjectRefType(r Ref) RefType {
	h := r.h
	if h == nil || h.deleted.Load() {
		return InvalidRef
	}
	if h.kind == LocalRef && (h.frame.popped || h.env != env) {
		return InvalidRef
	}
	return h.kind
}

// IsSameObject compares the referents of two references. A cleared weak
// reference is the same as null.
func (env *Env) IsSameObject(a, b Ref) bool {
	env.enter()
	return env.deref(a) == env.deref(b)
}

// GlobalRefs returns the number of live global references in the VM.
func (vm *VM) GlobalRefs() int {
	vm.refMu.Lock()
	defer vm.refMu.Unlock()
	return len(vm.globals)
}
