package bind

import (
	"runtime"

	"github.com/petermattis/goid"

	"github.com/chazu/mbind/vm"
)

// threadState tracks nested guards on one goroutine.
type threadState struct {
	depth        int
	attachedHere bool
}

// ThreadGuard keeps the calling goroutine on its OS thread and attached to
// the VM until Close. Guards nest; only the outermost one attaches and
// detaches, and only if the thread was not attached before.
type ThreadGuard struct {
	jvm    *Jvm
	gid    int64
	env    *Env
	closed bool
}

// NewThreadGuard attaches the calling goroutine if needed.
func (j *Jvm) NewThreadGuard() (*ThreadGuard, error) {
	if err := j.live(); err != nil {
		return nil, err
	}
	runtime.LockOSThread()
	gid := goid.Get()

	j.threadMu.Lock()
	st := j.threads[gid]
	if st == nil {
		st = &threadState{}
		j.threads[gid] = st
	}
	st.depth++
	if st.depth == 1 {
		st.attachedHere = !j.vm.IsAttached()
	}
	j.threadMu.Unlock()

	env, err := j.AttachThread()
	if err != nil {
		j.leave(gid)
		runtime.UnlockOSThread()
		return nil, err
	}
	return &ThreadGuard{jvm: j, gid: gid, env: env}, nil
}

// Env returns the guarded thread's environment.
func (g *ThreadGuard) Env() *Env { return g.env }

// Close ends the guard. The outermost guard detaches the thread if it
// attached it. Close must run on the goroutine that opened the guard.
func (g *ThreadGuard) Close() error {
	if g.closed {
		return nil
	}
	if gid := goid.Get(); gid != g.gid {
		g.jvm.vm.Fatal(vm.ContractCrossThread, "thread guard of %d closed on %d", g.gid, gid)
	}
	g.closed = true
	defer runtime.UnlockOSThread()

	if detach := g.jvm.leave(g.gid); detach && !g.jvm.vm.Destroyed() {
		return g.jvm.vm.DetachCurrentThread()
	}
	return nil
}

// leave pops one guard level and reports whether the thread should now be
// detached.
func (j *Jvm) leave(gid int64) bool {
	j.threadMu.Lock()
	defer j.threadMu.Unlock()
	st := j.threads[gid]
	if st == nil {
		return false
	}
	st.depth--
	if st.depth > 0 {
		return false
	}
	delete(j.threads, gid)
	return st.attachedHere
}

// WithAttachedThread runs fn with the calling goroutine attached, restoring
// the original attach state afterwards.
func (j *Jvm) WithAttachedThread(fn func(env *Env) error) (err error) {
	g, err := j.NewThreadGuard()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := g.Close(); err == nil {
			err = cerr
		}
	}()
	return fn(g.Env())
}

// ThreadDepth returns the guard nesting depth of the calling goroutine.
func (j *Jvm) ThreadDepth() int {
	j.threadMu.Lock()
	defer j.threadMu.Unlock()
	if st := j.threads[goid.Get()]; st != nil {
		return st.depth
	}
	return 0
}
