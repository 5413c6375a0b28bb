package bind

import "github.com/chazu/mbind/vm"

// Frame is a local reference scope opened by WithLocalFrame.
type Frame struct {
	env  *Env
	keep vm.Ref
	def  *ClassDef
}

// Env returns the environment the frame belongs to.
func (f *Frame) Env() *Env { return f.env }

// Keep selects the object carried out of the frame when it closes. Only the
// last object kept survives.
func (f *Frame) Keep(o Object) {
	f.keep = o.raw()
	f.def = o.Def()
}

// WithLocalFrame runs fn inside a new local frame. Every local created in fn
// is released when it returns, also when it fails or panics. The object
// passed to Frame.Keep comes back as a local of the enclosing frame, unless
// fn returned an error.
func WithLocalFrame(env *Env, capacity int, fn func(f *Frame) error) (out LocalObject, err error) {
	out = LocalObject{env: env}
	if err := env.live(); err != nil {
		return out, err
	}
	base := env.raw.FrameDepth()
	if err := env.raw.PushLocalFrame(capacity); err != nil {
		return out, err
	}

	f := &Frame{env: env}
	done := false
	defer func() {
		if done {
			return
		}
		r := recover()
		func() {
			// the frame is unwound on a best-effort basis; the original
			// panic wins
			defer func() { _ = recover() }()
			unwindTo(env, base)
		}()
		if r != nil {
			panic(r)
		}
	}()

	err = fn(f)
	unwindTo(env, base+1)
	var keep vm.Ref
	if err == nil {
		keep = f.keep
	}
	var res vm.Ref
	if env.raw.FrameDepth() > base {
		res = env.raw.PopLocalFrame(keep)
	}
	done = true
	out.ref = res
	out.def = f.def
	return out, err
}

func unwindTo(env *Env, depth int) {
	for env.raw.FrameDepth() > depth {
		env.raw.PopLocalFrame(vm.Ref{})
	}
}
