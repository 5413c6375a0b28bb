package vm

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ErrClassNotFound is wrapped by every class resolution failure.
var ErrClassNotFound = errors.New("class not found")

// ---------------------------------------------------------------------------
// ClassSource: where a loader finds definitions
// ---------------------------------------------------------------------------

// ClassSource supplies class definitions to a loader by binary name.
type ClassSource interface {
	FindClassDef(name string) (*ClassDef, bool)
}

// MapSource is an in-memory ClassSource.
type MapSource struct {
	mu   sync.RWMutex
	defs map[string]*ClassDef
}

// NewMapSource creates an empty in-memory source.
func NewMapSource(defs ...*ClassDef) *MapSource {
	s := &MapSource{defs: make(map[string]*ClassDef)}
	for _, d := range defs {
		s.defs[d.Name] = d
	}
	return s
}

// Add registers a definition. Registering the same name twice is an error.
func (s *MapSource) Add(def *ClassDef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.defs[def.Name]; exists {
		return fmt.Errorf("class %s already registered", def.Name)
	}
	s.defs[def.Name] = def
	return nil
}

// FindClassDef implements ClassSource.
func (s *MapSource) FindClassDef(name string) (*ClassDef, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.defs[name]
	return d, ok
}

// ---------------------------------------------------------------------------
// ClassLoader
// ---------------------------------------------------------------------------

// ClassLoader defines classes from a source, delegating to its parent first.
// Classes are identified by (name, loader): two loaders that both define a
// name produce two distinct classes.
type ClassLoader struct {
	ID     uuid.UUID
	Name   string
	Parent *ClassLoader

	vm     *VM
	source ClassSource

	mu      sync.Mutex
	classes map[string]*Class

	mirror *Object
}

// String implements the Stringer interface.
func (l *ClassLoader) String() string {
	return fmt.Sprintf("%s(%s)", l.Name, l.ID)
}

// VM returns the VM owning this loader.
func (l *ClassLoader) VM() *VM { return l.vm }

// Mirror returns the java/lang/ClassLoader object standing for this loader.
func (l *ClassLoader) Mirror() *Object { return l.mirror }

// LoadClass resolves a class by binary name: parent first, then this
// loader's own source. Array names ("[I", "[Lcom/x/Y;") are resolved through
// their element class.
func (l *ClassLoader) LoadClass(name string) (*Class, error) {
	if strings.HasPrefix(name, "[") {
		return l.loadArrayClass(name)
	}
	if l.Parent != nil {
		if c, err := l.Parent.LoadClass(name); err == nil {
			return c, nil
		} else if !errors.Is(err, ErrClassNotFound) {
			return nil, err
		}
	}
	return l.findClass(name)
}

// FindLoadedClass returns a class this loader has already defined.
func (l *ClassLoader) FindLoadedClass(name string) *Class {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.classes[name]
}

// DefineClass defines a class directly, bypassing the source.
func (l *ClassLoader) DefineClass(def *ClassDef) (*Class, error) {
	if existing := l.FindLoadedClass(def.Name); existing != nil {
		return nil, fmt.Errorf("class %s already defined by %s", def.Name, l.Name)
	}
	return l.define(def)
}

func (l *ClassLoader) findClass(name string) (*Class, error) {
	if c := l.FindLoadedClass(name); c != nil {
		return c, nil
	}
	if l.source == nil {
		return nil, fmt.Errorf("%s in loader %s: %w", name, l.Name, ErrClassNotFound)
	}
	def, ok := l.source.FindClassDef(name)
	if !ok {
		return nil, fmt.Errorf("%s in loader %s: %w", name, l.Name, ErrClassNotFound)
	}
	return l.define(def)
}

// define builds the class outside the lock (superclass resolution may
// re-enter this loader) and publishes it; the first definition wins.
func (l *ClassLoader) define(def *ClassDef) (*Class, error) {
	var super *Class
	if def.Name != "java/lang/Object" {
		superName := def.Super
		if superName == "" {
			superName = "java/lang/Object"
		}
		s, err := l.LoadClass(superName)
		if err != nil {
			return nil, fmt.Errorf("superclass of %s: %w", def.Name, err)
		}
		super = s
	}
	ifaces := make([]*Class, 0, len(def.Interfaces))
	for _, in := range def.Interfaces {
		i, err := l.LoadClass(in)
		if err != nil {
			return nil, fmt.Errorf("interface of %s: %w", def.Name, err)
		}
		ifaces = append(ifaces, i)
	}

	c, err := newClass(def, l, super, ifaces)
	if err != nil {
		return nil, err
	}
	if l.Parent == nil && def.Name == "java/lang/String" {
		c.isString = true
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if existing := l.classes[def.Name]; existing != nil {
		return existing, nil
	}
	l.classes[def.Name] = c
	log.Debugf("defined class %s in loader %s", def.Name, l.Name)
	return c, nil
}

// loadArrayClass resolves an array class. Array classes belong to the loader
// of their element class (the boot loader for primitive elements).
func (l *ClassLoader) loadArrayClass(name string) (*Class, error) {
	t, err := ParseTypeDesc(name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, ErrClassNotFound)
	}
	owner := l
	if t.Elem == KindReference {
		elem, err := l.LoadClass(t.Class)
		if err != nil {
			return nil, err
		}
		owner = elem.Loader
	} else {
		for owner.Parent != nil {
			owner = owner.Parent
		}
	}
	return owner.arrayClass(t), nil
}

// arrayClass returns the cached array class for t, creating it on first use.
func (l *ClassLoader) arrayClass(t TypeDesc) *Class {
	name := t.String()
	l.mu.Lock()
	defer l.mu.Unlock()
	if c := l.classes[name]; c != nil {
		return c
	}
	at := t
	c := &Class{
		Name:       name,
		Loader:     l,
		Superclass: l.vm.ObjectClass,
		fields:     make(map[string]*Field),
		methods:    make(map[methodKey]*Method),
		array:      &at,
	}
	l.classes[name] = c
	return c
}

// ArrayClassOf returns the array class whose elements are of class elem.
func (vm *VM) ArrayClassOf(elem *Class) *Class {
	var t TypeDesc
	if elem.array != nil {
		t = *elem.array
		t.Dims++
	} else {
		t = TypeDesc{Kind: KindReference, Class: elem.Name, Dims: 1, Elem: KindReference}
	}
	return elem.Loader.arrayClass(t)
}

// PrimitiveArrayClass returns the class of a rank-1 primitive array.
func (vm *VM) PrimitiveArrayClass(k Kind) *Class {
	return vm.boot.arrayClass(TypeDesc{Kind: KindReference, Dims: 1, Elem: k})
}

// eachClass calls fn for every class defined by every loader of the VM.
func (vm *VM) eachClass(fn func(*Class)) {
	vm.loaders.Range(func(_, v any) bool {
		l := v.(*ClassLoader)
		l.mu.Lock()
		classes := make([]*Class, 0, len(l.classes))
		for _, c := range l.classes {
			classes = append(classes, c)
		}
		l.mu.Unlock()
		for _, c := range classes {
			fn(c)
		}
		return true
	})
}
