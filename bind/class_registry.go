package bind

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/chazu/mbind/vm"
)

var (
	// ErrUnsupportedClass is returned when a class is looked up through a
	// loader whose definition does not list it.
	ErrUnsupportedClass = errors.New("class not supported by loader")

	// ErrUnboundLoader is returned when a class names a loader definition
	// that no live loader object has been bound to.
	ErrUnboundLoader = errors.New("class loader not bound")
)

// ---------------------------------------------------------------------------
// Class handles
// ---------------------------------------------------------------------------

// Class is a resolved class. Handles are interned per (name, loader) and
// hold a global reference to the class object until Teardown.
type Class struct {
	Name   string
	raw    *vm.Class
	global vm.Ref
}

// Raw returns the VM class.
func (c *Class) Raw() *vm.Class { return c.raw }

// Ref returns the global reference to the class object. It stays valid on
// every thread until Teardown.
func (c *Class) Ref() vm.Ref { return c.global }

// LoaderID returns the identity of the defining loader.
func (c *Class) LoaderID() uuid.UUID {
	if c.raw.Loader == nil {
		return uuid.Nil
	}
	return c.raw.Loader.ID
}

// Same reports whether c and other are the same class: same name and same
// defining loader.
func (c *Class) Same(other *Class) bool {
	return c != nil && other != nil && c.raw == other.raw
}

func (c *Class) String() string { return c.raw.String() }

// ClassNotFoundError reports a class that could not be resolved. It leaves
// no pending exception.
type ClassNotFoundError struct {
	Name     string
	LoaderID uuid.UUID
	Err      error
}

func (e *ClassNotFoundError) Error() string {
	return fmt.Sprintf("class %s not found in loader %s: %v", e.Name, e.LoaderID, e.Err)
}

func (e *ClassNotFoundError) Unwrap() error { return e.Err }

// ---------------------------------------------------------------------------
// Registry
// ---------------------------------------------------------------------------

type classKey struct {
	name   string
	loader uuid.UUID
}

func (k classKey) String() string { return k.loader.String() + "/" + k.name }

// classRegistry interns resolved classes. Concurrent first lookups of the
// same key resolve once.
type classRegistry struct {
	jvm     *Jvm
	entries sync.Map // classKey -> *Class
	loaders sync.Map // *ClassLoaderDef -> *vm.ClassLoader
	group   singleflight.Group

	anchorOnce sync.Once
	anchor     *vm.ClassLoader
}

func newClassRegistry(j *Jvm) *classRegistry {
	return &classRegistry{jvm: j}
}

func normalizeName(name string) string {
	return strings.ReplaceAll(name, ".", "/")
}

func (r *classRegistry) lookup(env *Env, loader *vm.ClassLoader, name string) (*Class, error) {
	name = normalizeName(name)
	key := classKey{name: name, loader: loader.ID}
	if c, ok := r.entries.Load(key); ok {
		return c.(*Class), nil
	}
	v, err, _ := r.group.Do(key.String(), func() (any, error) {
		if c, ok := r.entries.Load(key); ok {
			return c, nil
		}
		raw, err := env.raw.LoadClass(loader, name)
		if err != nil {
			return nil, &ClassNotFoundError{Name: name, LoaderID: loader.ID, Err: err}
		}
		local := env.raw.ClassRef(raw)
		c := &Class{Name: name, raw: raw, global: env.raw.NewGlobalRef(local)}
		env.raw.DeleteLocalRef(local)
		r.entries.Store(key, c)
		log.Debugf("interned class %s", raw)
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Class), nil
}

// defaultLoader picks the loader for unqualified lookups: the loader of the
// running native method's class, then the anchor class's loader, then the
// system loader.
func (r *classRegistry) defaultLoader(env *Env) *vm.ClassLoader {
	if c := env.raw.CallerClass(); c != nil && c.Loader != nil {
		return c.Loader
	}
	r.anchorOnce.Do(func() {
		name := r.jvm.opts.DefaultLoaderClass
		if name == "" {
			return
		}
		c, err := env.raw.LoadClass(nil, normalizeName(name))
		if err != nil {
			log.Warningf("default loader class %s: %v; using the system loader", name, err)
			return
		}
		r.anchor = c.Loader
	})
	if r.anchor != nil {
		return r.anchor
	}
	return r.jvm.vm.SystemLoader()
}

func (r *classRegistry) size() int {
	n := 0
	r.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// clear drops every interned class. raw is nil when the VM can no longer be
// called; the globals then die with it.
func (r *classRegistry) clear(raw *vm.Env) {
	r.entries.Range(func(k, v any) bool {
		if raw != nil {
			raw.DeleteGlobalRef(v.(*Class).global)
		}
		r.entries.Delete(k)
		return true
	})
	r.loaders.Range(func(k, _ any) bool {
		r.loaders.Delete(k)
		return true
	})
}

// ---------------------------------------------------------------------------
// Lookups
// ---------------------------------------------------------------------------

// Find resolves a class by binary or dotted name through the default loader.
func (e *Env) Find(name string) (*Class, error) {
	if err := e.live(); err != nil {
		return nil, err
	}
	return e.jvm.classes.lookup(e, e.jvm.classes.defaultLoader(e), name)
}

// FindIn resolves a class through the loader that loaderObj stands for.
func (e *Env) FindIn(loaderObj Object, name string) (*Class, error) {
	if err := e.live(); err != nil {
		return nil, err
	}
	return e.jvm.classes.lookup(e, e.raw.LoaderOf(loaderObj.raw()), name)
}

// FindInLoader resolves a class through an explicit VM loader.
func (e *Env) FindInLoader(loader *vm.ClassLoader, name string) (*Class, error) {
	if err := e.live(); err != nil {
		return nil, err
	}
	return e.jvm.classes.lookup(e, loader, name)
}

// ClassOf resolves the class def describes. A def without a Loader goes
// through the default loader; otherwise through the loader object bound to
// def.Loader by BindLoader or NewLocalClassLoader.
func (e *Env) ClassOf(def *ClassDef) (*Class, error) {
	if def.Loader == nil {
		return e.Find(def.BinaryName())
	}
	if !def.Loader.Supports(def) {
		return nil, fmt.Errorf("%s in %s: %w", def.Name, def.Loader.Name, ErrUnsupportedClass)
	}
	l, ok := e.jvm.classes.loaders.Load(def.Loader)
	if !ok {
		return nil, fmt.Errorf("%s: %s: %w", def.Name, def.Loader.Name, ErrUnboundLoader)
	}
	return e.FindInLoader(l.(*vm.ClassLoader), def.BinaryName())
}

// BindLoader makes l the loader that classes declaring def resolve through.
// A later binding replaces an earlier one. Bindings end at Teardown.
func (j *Jvm) BindLoader(def *ClassLoaderDef, l *vm.ClassLoader) error {
	if err := j.live(); err != nil {
		return err
	}
	j.classes.loaders.Store(def, l)
	log.Debugf("loader %s bound to %s", def.Name, l.ID)
	return nil
}

// ---------------------------------------------------------------------------
// Class loaders
// ---------------------------------------------------------------------------

// ClassLoaderDef statically describes a class loader: the classes it may
// supply and the loader it delegates to.
type ClassLoaderDef struct {
	Name             string
	Parent           *ClassLoaderDef
	SupportedClasses []*ClassDef
}

// Supports reports whether the loader, or a loader it delegates to, lists
// def.
func (d *ClassLoaderDef) Supports(def *ClassDef) bool {
	for l := d; l != nil; l = l.Parent {
		for _, c := range l.SupportedClasses {
			if c == def || c.BinaryName() == def.BinaryName() {
				return true
			}
		}
	}
	return false
}

// ClassLoaderClass describes java/lang/ClassLoader.
var ClassLoaderClass = &ClassDef{
	Name: "java/lang/ClassLoader",
	Methods: []Method{
		Fn("loadClass", Named("java/lang/Class"), String),
		Fn("getParent", Self),
	},
}

// LocalClassLoader is a local reference to a class loader object, bound to
// the definition listing which classes it can build.
type LocalClassLoader struct {
	LocalObject
	loader *vm.ClassLoader
	def    *ClassLoaderDef
}

// NewLocalClassLoader binds a class loader reference to def. Classes whose
// Loader is def resolve through it from then on.
func NewLocalClassLoader(env *Env, obj Object, def *ClassLoaderDef) LocalClassLoader {
	l := LocalClassLoader{
		LocalObject: LocalObject{env: env, ref: obj.raw(), def: ClassLoaderClass},
		loader:      env.raw.LoaderOf(obj.raw()),
		def:         def,
	}
	if def != nil && l.loader != nil {
		env.jvm.BindLoader(def, l.loader)
	}
	return l
}

// Loader returns the VM loader.
func (l LocalClassLoader) Loader() *vm.ClassLoader { return l.loader }

// Find resolves def through this loader. def must be one of the loader's
// supported classes.
func (l LocalClassLoader) Find(def *ClassDef) (*Class, error) {
	if l.def != nil && !l.def.Supports(def) {
		return nil, fmt.Errorf("%s in %s: %w", def.Name, l.def.Name, ErrUnsupportedClass)
	}
	return l.env.FindInLoader(l.loader, def.BinaryName())
}

// BuildLocalObject constructs an instance of def as defined by this loader.
func (l LocalClassLoader) BuildLocalObject(def *ClassDef, args ...any) (LocalObject, error) {
	cls, err := l.Find(def)
	if err != nil {
		return LocalObject{env: l.env, def: def}, err
	}
	return NewOf(l.env, cls, def, args...)
}
