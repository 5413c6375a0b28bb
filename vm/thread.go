package vm

import (
	"errors"

	"github.com/petermattis/goid"
)

// ErrThreadInCall is returned when detaching a thread that is still inside a
// managed-to-native call.
var ErrThreadInCall = errors.New("thread is inside a native callback")

// ---------------------------------------------------------------------------
// Thread attachment
// ---------------------------------------------------------------------------

// AttachCurrentThread attaches the calling goroutine to the VM and returns
// its Env. Attaching an attached thread returns the existing Env. A fresh
// attachment starts with one live local frame.
func (vm *VM) AttachCurrentThread() (*Env, error) {
	if vm.destroyed.Load() {
		return nil, ErrDestroyed
	}
	gid := goid.Get()
	if e, ok := vm.threads.Load(gid); ok {
		return e.(*Env), nil
	}
	env := &Env{vm: vm, gid: gid}
	env.frames = append(env.frames, &frame{kind: frameBase})
	vm.threads.Store(gid, env)
	log.Debugf("thread %d attached", gid)
	return env, nil
}

// DetachCurrentThread releases the calling goroutine's attachment. Every
// local reference the thread still holds becomes invalid. Detaching an
// unattached thread is a no-op.
func (vm *VM) DetachCurrentThread() error {
	gid := goid.Get()
	e, ok := vm.threads.Load(gid)
	if !ok {
		return nil
	}
	env := e.(*Env)
	for _, f := range env.frames {
		if f.kind == frameNative {
			return ErrThreadInCall
		}
	}
	for len(env.frames) > 0 {
		env.popFrame()
	}
	env.detached.Store(true)
	vm.threads.Delete(gid)
	log.Debugf("thread %d detached", gid)
	return nil
}

// CurrentEnv returns the calling goroutine's Env if it is attached.
func (vm *VM) CurrentEnv() (*Env, bool) {
	e, ok := vm.threads.Load(goid.Get())
	if !ok {
		return nil, false
	}
	return e.(*Env), true
}

// MustEnv returns the calling goroutine's Env. Calling it from an unattached
// thread is a contract violation.
func (vm *VM) MustEnv() *Env {
	env, ok := vm.CurrentEnv()
	if !ok {
		vm.Fatal(ContractUnattachedThread, "goroutine %d", goid.Get())
	}
	return env
}

// IsAttached reports whether the calling goroutine is attached.
func (vm *VM) IsAttached() bool {
	_, ok := vm.CurrentEnv()
	return ok
}

// AttachedThreads returns the number of attached threads.
func (vm *VM) AttachedThreads() int {
	n := 0
	vm.threads.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
