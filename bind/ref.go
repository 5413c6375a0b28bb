package bind

import (
	"fmt"

	"github.com/chazu/mbind/vm"
)

// Object is implemented by every reference wrapper: objects, strings and
// arrays, whether local, global or weak.
type Object interface {
	raw() vm.Ref
	Def() *ClassDef
}

// ---------------------------------------------------------------------------
// Local references
// ---------------------------------------------------------------------------

// LocalObject is a reference valid on its thread inside the frame that
// created it. Its ClassDef decides which members Call, Get and Set accept.
type LocalObject struct {
	env *Env
	ref vm.Ref
	def *ClassDef
}

// Wrap adopts a raw local reference, for instance an argument handed to a
// native method.
func Wrap(env *Env, ref vm.Ref, def *ClassDef) LocalObject {
	return LocalObject{env: env, ref: ref, def: def}
}

func (o LocalObject) raw() vm.Ref { return o.ref }

// Def returns the class definition the reference is bound to.
func (o LocalObject) Def() *ClassDef { return o.def }

// Env returns the environment the reference belongs to.
func (o LocalObject) Env() *Env { return o.env }

// IsNull reports whether the reference is null.
func (o LocalObject) IsNull() bool { return o.ref.IsNull() }

// As rebinds the reference to another class definition.
func (o LocalObject) As(def *ClassDef) LocalObject {
	o.def = def
	return o
}

// IsSameObject reports whether o and other refer to the same object.
func (o LocalObject) IsSameObject(other Object) bool {
	return o.env.raw.IsSameObject(o.ref, other.raw())
}

// Release hands the raw reference to the caller, typically to return it
// from a native method. The caller owns it afterwards.
func (o LocalObject) Release() vm.Ref { return o.ref }

// Delete frees the local before its frame ends.
func (o LocalObject) Delete() {
	if !o.ref.IsNull() {
		o.env.raw.DeleteLocalRef(o.ref)
	}
}

func (o LocalObject) String() string {
	name := "?"
	if o.def != nil {
		name = o.def.Name
	}
	return fmt.Sprintf("LocalObject<%s>(%s)", name, o.ref)
}

// ---------------------------------------------------------------------------
// Global references
// ---------------------------------------------------------------------------

// GlobalObject is a reference valid on every attached thread until deleted.
// Copies made with Clone share the underlying handle and raise its count.
type GlobalObject struct {
	ref vm.Ref
	def *ClassDef
}

func (g GlobalObject) raw() vm.Ref { return g.ref }

// Def returns the class definition the reference is bound to.
func (g GlobalObject) Def() *ClassDef { return g.def }

// IsNull reports whether the reference is null.
func (g GlobalObject) IsNull() bool { return g.ref.IsNull() }

// Local returns a new local reference to the same object in env's current
// frame.
func (g GlobalObject) Local(env *Env) LocalObject { return Demote(env, g) }

// Clone raises the reference count of the global and returns a copy.
func (g GlobalObject) Clone(env *Env) GlobalObject {
	if g.ref.IsNull() {
		return g
	}
	return GlobalObject{ref: env.raw.NewGlobalRef(g.ref), def: g.def}
}

// RefCount returns how many holders share the global.
func (g GlobalObject) RefCount(env *Env) int {
	if g.ref.IsNull() {
		return 0
	}
	return env.raw.GlobalRefCount(g.ref)
}

// Release hands the raw reference to the caller, who owns it afterwards.
func (g GlobalObject) Release() vm.Ref { return g.ref }

// Delete drops one count of the global.
func (g GlobalObject) Delete(env *Env) {
	if !g.ref.IsNull() {
		env.raw.DeleteGlobalRef(g.ref)
	}
}

func (g GlobalObject) String() string {
	name := "?"
	if g.def != nil {
		name = g.def.Name
	}
	return fmt.Sprintf("GlobalObject<%s>(%s)", name, g.ref)
}

// ---------------------------------------------------------------------------
// Weak references
// ---------------------------------------------------------------------------

// WeakObject refers to an object without keeping it alive.
type WeakObject struct {
	ref vm.Ref
	def *ClassDef
}

func (w WeakObject) raw() vm.Ref { return w.ref }

// Def returns the class definition the reference is bound to.
func (w WeakObject) Def() *ClassDef { return w.def }

// IsNull reports whether the weak reference itself is null. A cleared weak
// reference is not null; use Resolve.
func (w WeakObject) IsNull() bool { return w.ref.IsNull() }

// Delete frees the weak reference.
func (w WeakObject) Delete(env *Env) {
	if !w.ref.IsNull() {
		env.raw.DeleteWeakGlobalRef(w.ref)
	}
}

// ---------------------------------------------------------------------------
// Conversions
// ---------------------------------------------------------------------------

// Promote turns o into a global reference. A local is taken over: the local
// is deleted. A global is returned unchanged, so promoting twice yields the
// same handle. A weak reference is promoted if its referent is alive. A null
// reference promotes to a null global.
func Promote(env *Env, o Object) GlobalObject {
	switch x := o.(type) {
	case GlobalObject:
		return x
	case LocalObject:
		if x.ref.IsNull() {
			return GlobalObject{def: x.def}
		}
		g := env.raw.NewGlobalRef(x.ref)
		env.raw.DeleteLocalRef(x.ref)
		return GlobalObject{ref: g, def: x.def}
	case WeakObject:
		local, ok := Resolve(env, x)
		if !ok {
			return GlobalObject{def: x.def}
		}
		return Promote(env, local)
	}
	if o == nil || o.raw().IsNull() {
		return GlobalObject{}
	}
	return GlobalObject{ref: env.raw.NewGlobalRef(o.raw()), def: o.Def()}
}

// NewGlobal creates a global reference to o's object and leaves o valid.
// For a global this is Clone.
func NewGlobal(env *Env, o Object) GlobalObject {
	if g, ok := o.(GlobalObject); ok {
		return g.Clone(env)
	}
	if o == nil || o.raw().IsNull() {
		var def *ClassDef
		if o != nil {
			def = o.Def()
		}
		return GlobalObject{def: def}
	}
	return GlobalObject{ref: env.raw.NewGlobalRef(o.raw()), def: o.Def()}
}

// Demote returns a local reference to g's object in the current frame. The
// global is unaffected.
func Demote(env *Env, g GlobalObject) LocalObject {
	if g.ref.IsNull() {
		return LocalObject{env: env, def: g.def}
	}
	return LocalObject{env: env, ref: env.raw.NewLocalRef(g.ref), def: g.def}
}

// Weaken creates a weak reference to g's object.
func Weaken(env *Env, g GlobalObject) WeakObject {
	return WeakObject{ref: env.raw.NewWeakGlobalRef(g.ref), def: g.def}
}

// Resolve returns a local reference to w's referent, or false if it has
// been collected.
func Resolve(env *Env, w WeakObject) (LocalObject, bool) {
	if w.ref.IsNull() {
		return LocalObject{env: env, def: w.def}, false
	}
	ref := env.raw.NewLocalRef(w.ref)
	return LocalObject{env: env, ref: ref, def: w.def}, !ref.IsNull()
}

// SameObject reports whether a and b refer to the same object. Two nulls are
// the same.
func SameObject(env *Env, a, b Object) bool {
	var ra, rb vm.Ref
	if a != nil {
		ra = a.raw()
	}
	if b != nil {
		rb = b.raw()
	}
	return env.raw.IsSameObject(ra, rb)
}
