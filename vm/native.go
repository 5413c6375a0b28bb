package vm

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrLibraryNotFound is returned by LoadLibrary for an unregistered name.
var ErrLibraryNotFound = errors.New("native library not found")

// ---------------------------------------------------------------------------
// Native libraries
// ---------------------------------------------------------------------------

// NativeFunc implements a native method. this is the receiver for instance
// methods and the declaring class for static methods. Reference arguments
// and results are local references of the callback frame. A reference
// returning native may return JVoid to mean null.
type NativeFunc func(env *Env, this Ref, args []JValue) JValue

// NativeLibrary is a named set of native functions, keyed by their mangled
// names (see MangleNative).
type NativeLibrary struct {
	Name      string
	OnLoad    func(vm *VM) error
	OnUnload  func(vm *VM)
	Functions map[string]NativeFunc
}

var (
	libraryMu sync.RWMutex
	libraries = make(map[string]*NativeLibrary)
)

// RegisterLibrary makes a library loadable by name in any VM of the process.
// Registering a name again replaces the earlier library.
func RegisterLibrary(lib *NativeLibrary) {
	libraryMu.Lock()
	defer libraryMu.Unlock()
	libraries[lib.Name] = lib
}

// LookupLibrary returns a registered library.
func LookupLibrary(name string) (*NativeLibrary, bool) {
	libraryMu.RLock()
	defer libraryMu.RUnlock()
	lib, ok := libraries[name]
	return lib, ok
}

// LoadLibrary loads a registered library into the VM, running its OnLoad
// hook. Loading a library twice is a no-op.
func (vm *VM) LoadLibrary(name string) error {
	if vm.destroyed.Load() {
		return ErrDestroyed
	}
	lib, ok := LookupLibrary(name)
	if !ok {
		return fmt.Errorf("%s: %w", name, ErrLibraryNotFound)
	}
	vm.libMu.Lock()
	for _, l := range vm.libs {
		if l == lib {
			vm.libMu.Unlock()
			return nil
		}
	}
	vm.libs = append(vm.libs, lib)
	vm.libMu.Unlock()

	if lib.OnLoad != nil {
		if err := lib.OnLoad(vm); err != nil {
			vm.removeLibrary(lib)
			return fmt.Errorf("loading %s: %w", name, err)
		}
	}
	log.Infof("native library %s loaded (%d functions)", name, len(lib.Functions))
	return nil
}

// UnloadLibrary runs the library's OnUnload hook and removes it. Native
// methods already bound to it stay bound.
func (vm *VM) UnloadLibrary(name string) error {
	lib, ok := LookupLibrary(name)
	if !ok || !vm.removeLibrary(lib) {
		return fmt.Errorf("%s: %w", name, ErrLibraryNotFound)
	}
	if lib.OnUnload != nil {
		lib.OnUnload(vm)
	}
	log.Infof("native library %s unloaded", name)
	return nil
}

// LoadedLibraries returns the names of the libraries loaded into the VM.
func (vm *VM) LoadedLibraries() []string {
	vm.libMu.Lock()
	defer vm.libMu.Unlock()
	names := make([]string, len(vm.libs))
	for i, l := range vm.libs {
		names[i] = l.Name
	}
	return names
}

func (vm *VM) removeLibrary(lib *NativeLibrary) bool {
	vm.libMu.Lock()
	defer vm.libMu.Unlock()
	for i, l := range vm.libs {
		if l == lib {
			vm.libs = append(vm.libs[:i], vm.libs[i+1:]...)
			return true
		}
	}
	return false
}

// RegisterNatives binds native implementations directly to methods of cls,
// keyed by name followed by descriptor ("sum(II)I").
func (env *Env) RegisterNatives(cls Ref, fns map[string]NativeFunc) error {
	env.enter()
	c := env.classOf(cls)
	for key, fn := range fns {
		i := strings.IndexByte(key, '(')
		if i < 0 {
			return fmt.Errorf("RegisterNatives: %q has no descriptor", key)
		}
		m := c.LookupLocalMethod(key[:i], key[i:])
		if m == nil || !m.Native {
			return fmt.Errorf("RegisterNatives: %s.%s: %w", c.Name, key, ErrNoSuchMethod)
		}
		m.nativeMu.Lock()
		m.native = fn
		m.nativeMu.Unlock()
	}
	return nil
}

// resolveNative finds the implementation of a native method: an explicit
// registration, then the long mangled name, then the short one.
func (vm *VM) resolveNative(m *Method) NativeFunc {
	m.nativeMu.Lock()
	defer m.nativeMu.Unlock()
	if m.native != nil {
		return m.native
	}
	long := MangleNative(m.Class.Name, m.Name, m.Desc)
	short := MangleNative(m.Class.Name, m.Name, "")

	vm.libMu.Lock()
	libs := vm.libs
	vm.libMu.Unlock()
	for _, name := range []string{long, short} {
		for _, lib := range libs {
			if fn := lib.Functions[name]; fn != nil {
				m.native = fn
				log.Debugf("bound %s to %s in %s", m, name, lib.Name)
				return fn
			}
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Native invocation
// ---------------------------------------------------------------------------

// callNative runs a native method inside a fresh callback frame. Arguments
// become locals of that frame; the frame is popped on return, so only the
// converted result survives.
func (env *Env) callNative(m *Method, this *Object, args []Value) Value {
	fn := env.vm.resolveNative(m)
	if fn == nil {
		env.throwNew("java/lang/UnsatisfiedLinkError", MangleNative(m.Class.Name, m.Name, m.Desc))
		return ZeroValue(m.Return.Kind)
	}

	f := &frame{kind: frameNative, class: m.Class, capacity: 16}
	env.pushFrame(f)
	defer func() {
		for i := len(env.frames) - 1; i >= 0; i-- {
			if env.frames[i] == f {
				for len(env.frames) > i {
					env.popFrame()
				}
				return
			}
		}
	}()

	var thisRef Ref
	if m.Static {
		thisRef = env.newLocal(env.vm.ClassMirror(m.Class))
	} else {
		thisRef = env.newLocal(this)
	}
	jargs := make([]JValue, len(args))
	for i, a := range args {
		jargs[i] = env.wrap(a)
	}

	ret := fn(env, thisRef, jargs)

	if env.critical > 0 {
		env.vm.Fatal(ContractCriticalRegion, "%s returned with a critical region open", m)
	}
	if env.topFrame() != f {
		env.vm.Fatal(ContractNoFrame, "%s returned with unbalanced local frames", m)
	}
	if env.pending != nil || m.Return.Kind == KindVoid {
		return ZeroValue(m.Return.Kind)
	}
	if m.Return.Kind == KindReference {
		if ret.kind == KindVoid {
			return Null
		}
		if ret.kind != KindReference {
			env.vm.Fatal(ContractArgumentType, "%s returned %s", m, ret.kind)
		}
		return RefValue(env.deref(ret.ref))
	}
	if ret.kind != m.Return.Kind {
		env.vm.Fatal(ContractArgumentType, "%s returned %s, declared %s", m, ret.kind, m.Return)
	}
	return Value{kind: ret.kind, bits: ret.bits}
}

// ---------------------------------------------------------------------------
// Name mangling
// ---------------------------------------------------------------------------

// MangleNative returns the symbol a native method is looked up by:
// Java_<class>_<method>, with __<args> appended when argDesc is not empty.
// argDesc is either a full method descriptor or just its parameter part.
func MangleNative(className, method, argDesc string) string {
	var sb strings.Builder
	sb.WriteString("Java_")
	sb.WriteString(mangle(className))
	sb.WriteByte('_')
	sb.WriteString(mangle(method))
	if argDesc != "" {
		if strings.HasPrefix(argDesc, "(") {
			if end := strings.IndexByte(argDesc, ')'); end >= 0 {
				argDesc = argDesc[1:end]
			}
		}
		sb.WriteString("__")
		sb.WriteString(mangle(argDesc))
	}
	return sb.String()
}

func mangle(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch {
		case r == '/':
			sb.WriteByte('_')
		case r == '_':
			sb.WriteString("_1")
		case r == ';':
			sb.WriteString("_2")
		case r == '[':
			sb.WriteString("_3")
		case r < 0x80 && (r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9'):
			sb.WriteRune(r)
		default:
			fmt.Fprintf(&sb, "_0%04x", r)
		}
	}
	return sb.String()
}
