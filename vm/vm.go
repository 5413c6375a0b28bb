package vm

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("mbind.vm")

// ErrDestroyed is returned by operations on a VM that has been destroyed.
var ErrDestroyed = errors.New("vm destroyed")

// ---------------------------------------------------------------------------
// VM: the managed object runtime
// ---------------------------------------------------------------------------

// VM is a managed object runtime: a heap of objects, classes defined by class
// loaders, attached threads with local reference frames, and global and weak
// reference tables.
type VM struct {
	// Loaders
	boot    *ClassLoader
	system  *ClassLoader
	sysSrc  *MapSource
	loaders sync.Map // uuid.UUID -> *ClassLoader

	// Well-known classes
	ObjectClass      *Class
	StringClass      *Class
	ClassClass       *Class
	ClassLoaderClass *Class
	ThrowableClass   *Class

	// Attached threads, keyed by goroutine ID
	threads sync.Map // int64 -> *Env

	// Global and weak reference tables
	refMu   sync.Mutex
	globals map[*handle]struct{}
	weaks   map[*handle]struct{}

	// Heap, for collection
	heapMu sync.Mutex
	heap   map[*Object]struct{}
	gcMu   sync.Mutex

	// Native libraries loaded into this VM
	libMu sync.Mutex
	libs  []*NativeLibrary

	abortOnMisuse atomic.Bool
	destroyed     atomic.Bool
}

// NewVM creates a VM with the core classes defined by its boot loader and an
// empty system loader for application classes.
func NewVM() *VM {
	vm := &VM{
		sysSrc:  NewMapSource(),
		globals: make(map[*handle]struct{}),
		weaks:   make(map[*handle]struct{}),
		heap:    make(map[*Object]struct{}),
	}
	vm.abortOnMisuse.Store(true)

	vm.boot = vm.newLoader("boot", nil, bootSource())
	vm.bootstrap()
	vm.system = vm.newLoader("system", vm.boot, vm.sysSrc)

	log.Debugf("vm created: boot=%s system=%s", vm.boot.ID, vm.system.ID)
	return vm
}

// bootstrap resolves the well-known classes and gives the first loader its
// mirror, which could not exist before java/lang/ClassLoader was defined.
func (vm *VM) bootstrap() {
	must := func(name string) *Class {
		c, err := vm.boot.LoadClass(name)
		if err != nil {
			panic(fmt.Sprintf("vm bootstrap: %v", err))
		}
		return c
	}
	vm.ObjectClass = must("java/lang/Object")
	vm.StringClass = must("java/lang/String")
	vm.ClassClass = must("java/lang/Class")
	vm.ClassLoaderClass = must("java/lang/ClassLoader")
	vm.ThrowableClass = must("java/lang/Throwable")
	for _, name := range bootClassNames() {
		must(name)
	}
	vm.boot.mirror = vm.newLoaderMirror(vm.boot)
}

// SetAbortOnMisuse selects how contract violations are reported: true exits
// the process, false panics with a *ContractViolation.
func (vm *VM) SetAbortOnMisuse(abort bool) {
	vm.abortOnMisuse.Store(abort)
}

// AbortOnMisuse reports the current contract violation policy.
func (vm *VM) AbortOnMisuse() bool {
	return vm.abortOnMisuse.Load()
}

// BootLoader returns the loader that defines the core classes.
func (vm *VM) BootLoader() *ClassLoader { return vm.boot }

// SystemLoader returns the application class loader.
func (vm *VM) SystemLoader() *ClassLoader { return vm.system }

// Loader returns the loader with the given identity.
func (vm *VM) Loader(id uuid.UUID) (*ClassLoader, bool) {
	l, ok := vm.loaders.Load(id)
	if !ok {
		return nil, false
	}
	return l.(*ClassLoader), true
}

// RegisterClass makes a class definition available to the system loader.
// The class is defined on first resolution.
func (vm *VM) RegisterClass(def *ClassDef) error {
	if def == nil || def.Name == "" {
		return errors.New("RegisterClass: class definition needs a name")
	}
	return vm.sysSrc.Add(def)
}

// RegisterClasses registers several definitions with the system loader.
func (vm *VM) RegisterClasses(defs ...*ClassDef) error {
	for _, def := range defs {
		if err := vm.RegisterClass(def); err != nil {
			return err
		}
	}
	return nil
}

// NewClassLoader creates a loader that delegates to parent before consulting
// source. A nil parent means the system loader.
func (vm *VM) NewClassLoader(name string, parent *ClassLoader, source ClassSource) *ClassLoader {
	if parent == nil {
		parent = vm.system
	}
	l := vm.newLoader(name, parent, source)
	log.Debugf("class loader %s (%s) created, parent %s", name, l.ID, parent.Name)
	return l
}

func (vm *VM) newLoader(name string, parent *ClassLoader, source ClassSource) *ClassLoader {
	l := &ClassLoader{
		ID:      uuid.New(),
		Name:    name,
		Parent:  parent,
		vm:      vm,
		source:  source,
		classes: make(map[string]*Class),
	}
	if vm.ClassLoaderClass != nil {
		l.mirror = vm.newLoaderMirror(l)
	}
	vm.loaders.Store(l.ID, l)
	return l
}

func (vm *VM) newLoaderMirror(l *ClassLoader) *Object {
	obj := vm.ClassLoaderClass.instantiate()
	obj.loader = l
	return obj
}

// Destroy tears the VM down: natives are unloaded and every attached thread
// is released. Any later use of an Env is a contract violation.
func (vm *VM) Destroy() {
	if !vm.destroyed.CompareAndSwap(false, true) {
		return
	}
	vm.libMu.Lock()
	libs := vm.libs
	vm.libs = nil
	vm.libMu.Unlock()
	for i := len(libs) - 1; i >= 0; i-- {
		if libs[i].OnUnload != nil {
			libs[i].OnUnload(vm)
		}
	}
	vm.threads.Range(func(k, v any) bool {
		v.(*Env).detached.Store(true)
		vm.threads.Delete(k)
		return true
	})
	log.Infof("vm destroyed")
}

// Destroyed reports whether Destroy has been called.
func (vm *VM) Destroyed() bool {
	return vm.destroyed.Load()
}

// ---------------------------------------------------------------------------
// Allocation helpers used by managed code
// ---------------------------------------------------------------------------

// NewStringObject allocates a managed string holding s.
func (vm *VM) NewStringObject(s string) *Object {
	return vm.newString(encodeUTF16(s))
}

func (vm *VM) newString(chars []uint16) *Object {
	obj := newObject(vm.StringClass)
	if chars == nil {
		chars = []uint16{}
	}
	obj.chars = chars
	return obj
}

// ClassMirror returns the java/lang/Class object standing for c.
func (vm *VM) ClassMirror(c *Class) *Object {
	c.mirrorOnce.Do(func() {
		obj := newObject(vm.ClassClass)
		obj.mirror = c
		c.mirror = obj
	})
	return c.mirror
}

// LoaderMirror returns the java/lang/ClassLoader object standing for l.
func (vm *VM) LoaderMirror(l *ClassLoader) *Object {
	return l.mirror
}
