package bind

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/tliron/commonlog"

	"github.com/chazu/mbind/vm"
)

var log = commonlog.GetLogger("mbind.bind")

var (
	// ErrTornDown is returned by every operation after Teardown.
	ErrTornDown = errors.New("binding layer torn down")

	// ErrOtherVM is returned by Attach while the layer is bound to a
	// different VM.
	ErrOtherVM = errors.New("binding layer already attached to another VM")
)

// State is the lifecycle state of the VM handle.
type State int32

const (
	StateUninitialized State = iota
	StateAttached
	StateTornDown
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateAttached:
		return "attached"
	case StateTornDown:
		return "torn down"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Options configures the binding layer when it attaches to a VM.
type Options struct {
	// DefaultLoaderClass names an anchor class. Class lookups made outside a
	// native callback go through the loader that defined it. Empty means
	// the system loader.
	DefaultLoaderClass string

	// ArrayCopyThreshold is the element count from which AccessDefault pins
	// primitive arrays in place instead of copying them.
	ArrayCopyThreshold int

	// AbortOnMisuse makes contract violations exit the process. When false
	// they panic with a *vm.ContractViolation.
	AbortOnMisuse bool

	// AllowCriticalSections enables in-place array access. When false every
	// pin takes the copy path.
	AllowCriticalSections bool

	// MemberCacheSize bounds the cache of resolved methods and fields.
	MemberCacheSize int
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		ArrayCopyThreshold:    64,
		AbortOnMisuse:         true,
		AllowCriticalSections: true,
		MemberCacheSize:       1024,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ArrayCopyThreshold < 0 {
		o.ArrayCopyThreshold = d.ArrayCopyThreshold
	}
	if o.MemberCacheSize <= 0 {
		o.MemberCacheSize = d.MemberCacheSize
	}
	return o
}

// Jvm is the process-wide handle of the binding layer. It owns the class
// registry, the member cache and the context store, all of which are
// invalidated by Teardown.
type Jvm struct {
	vm    *vm.VM
	opts  Options
	state atomic.Int32

	classes  *classRegistry
	members  *memberCache
	contexts *ContextStore
	stats    arrayCounters

	threadMu sync.Mutex
	threads  map[int64]*threadState
}

var (
	attachMu sync.Mutex
	current  atomic.Pointer[Jvm]
)

// Attach binds the layer to v. Attaching again to the same VM returns the
// existing handle; attaching to another VM while attached fails with
// ErrOtherVM. After Teardown a new Attach starts a fresh handle.
func Attach(v *vm.VM, opts Options) (*Jvm, error) {
	attachMu.Lock()
	defer attachMu.Unlock()

	if j := current.Load(); j != nil && j.State() == StateAttached {
		if j.vm == v {
			return j, nil
		}
		return nil, ErrOtherVM
	}
	if v.Destroyed() {
		return nil, vm.ErrDestroyed
	}

	opts = opts.withDefaults()
	members, err := newMemberCache(opts.MemberCacheSize)
	if err != nil {
		return nil, fmt.Errorf("member cache: %w", err)
	}
	j := &Jvm{
		vm:      v,
		opts:    opts,
		members: members,
		threads: make(map[int64]*threadState),
	}
	j.classes = newClassRegistry(j)
	j.contexts = newContextStore(j)
	v.SetAbortOnMisuse(opts.AbortOnMisuse)
	j.state.Store(int32(StateAttached))
	current.Store(j)

	log.Infof("attached (default loader class %q, copy threshold %d, critical sections %t)",
		opts.DefaultLoaderClass, opts.ArrayCopyThreshold, opts.AllowCriticalSections)
	return j, nil
}

// Current returns the attached handle, or nil.
func Current() *Jvm {
	return current.Load()
}

// VM returns the underlying VM.
func (j *Jvm) VM() *vm.VM { return j.vm }

// Options returns the options the handle was attached with.
func (j *Jvm) Options() Options { return j.opts }

// State returns the lifecycle state.
func (j *Jvm) State() State { return State(j.state.Load()) }

// Contexts returns the context store.
func (j *Jvm) Contexts() *ContextStore { return j.contexts }

func (j *Jvm) live() error {
	if j == nil || j.State() != StateAttached {
		return ErrTornDown
	}
	return nil
}

// AttachThread attaches the calling goroutine to the VM. Attaching an
// attached thread returns an Env over the same VM thread.
func (j *Jvm) AttachThread() (*Env, error) {
	if err := j.live(); err != nil {
		return nil, err
	}
	raw, err := j.vm.AttachCurrentThread()
	if err != nil {
		return nil, fmt.Errorf("attach thread: %w", err)
	}
	log.Debugf("thread %d attached", raw.ThreadID())
	return &Env{jvm: j, raw: raw}, nil
}

// DetachThread detaches the calling goroutine.
func (j *Jvm) DetachThread() error {
	if err := j.live(); err != nil {
		return err
	}
	return j.vm.DetachCurrentThread()
}

// Env returns the calling thread's environment. Calling it on a thread that
// is not attached is a contract violation.
func (j *Jvm) Env() *Env {
	if j.State() == StateTornDown {
		j.vm.Fatal(vm.ContractTornDown, "binding layer used after teardown")
	}
	return &Env{jvm: j, raw: j.vm.MustEnv()}
}

// Teardown invalidates the handle: interned classes, cached members and
// contexts are released and later operations fail with ErrTornDown.
func (j *Jvm) Teardown() {
	attachMu.Lock()
	defer attachMu.Unlock()
	if !j.state.CompareAndSwap(int32(StateAttached), int32(StateTornDown)) {
		return
	}

	raw, ok := j.vm.CurrentEnv()
	if !ok || j.vm.Destroyed() {
		raw = nil
	}
	j.contexts.clear(raw)
	j.classes.clear(raw)
	j.members.purge()
	current.CompareAndSwap(j, nil)
	log.Info("torn down")
}

// Env is the binding layer's view of one attached thread.
type Env struct {
	jvm *Jvm
	raw *vm.Env
}

// Jvm returns the handle the environment belongs to.
func (e *Env) Jvm() *Jvm { return e.jvm }

// Raw returns the underlying VM environment.
func (e *Env) Raw() *vm.Env { return e.raw }

func (e *Env) live() error {
	return e.jvm.live()
}

func (e *Env) fatal(c vm.Contract, format string, args ...any) {
	e.jvm.vm.Fatal(c, format, args...)
}
