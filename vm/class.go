package vm

import (
	"fmt"
	"sync"
)

// ---------------------------------------------------------------------------
// Class definitions (declarative form)
// ---------------------------------------------------------------------------

// MethodFunc is the body of a managed method. For instance methods this is
// the receiver; for static methods it is nil. A body signals an exception by
// throwing on env and returning any value.
type MethodFunc func(env *Env, this *Object, args []Value) Value

// ClassDef declares a class for a loader to define.
type ClassDef struct {
	Name       string   // binary name, e.g. "com/jnibind/test/Builder"
	Super      string   // "" means java/lang/Object
	Interfaces []string
	Interface  bool // no instances; methods are abstract unless given a body
	Abstract   bool // no instances
	Fields     []FieldDef
	Methods    []MethodDef
}

// FieldDef declares an instance or static field.
type FieldDef struct {
	Name   string
	Desc   string
	Static bool
}

// MethodDef declares a method or constructor ("<init>").
type MethodDef struct {
	Name     string
	Desc     string
	Static   bool
	Native   bool // implementation supplied by a loaded native library
	Abstract bool // no body; dispatch must find an override
	Impl     MethodFunc
}

// ---------------------------------------------------------------------------
// Class: a defined class
// ---------------------------------------------------------------------------

// Class is a class defined by a loader.
type Class struct {
	Name       string
	Loader     *ClassLoader
	Superclass *Class
	Interfaces []*Class
	Interface  bool
	Abstract   bool

	fields  map[string]*Field
	methods map[methodKey]*Method
	statics []Value

	numSlots int

	// set for string and array classes
	isString bool
	array    *TypeDesc

	mirrorOnce sync.Once
	mirror     *Object
}

type methodKey struct {
	name string
	desc string
}

// Field is a resolved field. Its identity is stable for the class's life.
type Field struct {
	Name   string
	Desc   string
	Type   TypeDesc
	Static bool
	Class  *Class
	slot   int
}

// Method is a resolved method or constructor. Its identity is stable for
// the class's life.
type Method struct {
	Name     string
	Desc     string
	Params   []TypeDesc
	Return   TypeDesc
	Static   bool
	Native   bool
	Abstract bool
	Class    *Class

	impl MethodFunc

	nativeMu sync.Mutex
	native   NativeFunc
}

// String implements the Stringer interface.
func (m *Method) String() string {
	return m.Class.Name + "." + m.Name + m.Desc
}

// String implements the Stringer interface.
func (f *Field) String() string {
	return f.Class.Name + "." + f.Name + ":" + f.Desc
}

// String implements the Stringer interface.
func (c *Class) String() string {
	if c.Loader == nil {
		return c.Name
	}
	return c.Name + " (" + c.Loader.Name + ")"
}

// IsArray returns true for array classes.
func (c *Class) IsArray() bool { return c.array != nil }

// ArrayType returns the array type of an array class.
func (c *Class) ArrayType() (TypeDesc, bool) {
	if c.array == nil {
		return TypeDesc{}, false
	}
	return *c.array, true
}

// NumSlots returns the number of instance field slots including inherited ones.
func (c *Class) NumSlots() int { return c.numSlots }

// ---------------------------------------------------------------------------
// Lookup
// ---------------------------------------------------------------------------

// LookupMethod finds a method by name and descriptor, walking superclasses.
// Constructors and static methods are only found on the class itself.
func (c *Class) LookupMethod(name, desc string) *Method {
	key := methodKey{name, desc}
	if m := c.methods[key]; m != nil {
		return m
	}
	if name == "<init>" {
		return nil
	}
	for s := c.Superclass; s != nil; s = s.Superclass {
		if m := s.methods[key]; m != nil && !m.Static {
			return m
		}
	}
	for _, i := range c.allInterfaces() {
		if m := i.methods[key]; m != nil && !m.Static {
			return m
		}
	}
	return nil
}

// LookupLocalMethod finds a method declared directly on this class.
func (c *Class) LookupLocalMethod(name, desc string) *Method {
	return c.methods[methodKey{name, desc}]
}

// dispatch performs virtual lookup of an instance method for a receiver of
// this class: the most specific non-abstract override wins.
func (c *Class) dispatch(m *Method) *Method {
	key := methodKey{m.Name, m.Desc}
	for s := c; s != nil; s = s.Superclass {
		if found := s.methods[key]; found != nil && !found.Static && !found.Abstract {
			return found
		}
	}
	return m
}

// LookupField finds a field by name, walking superclasses. static selects
// between instance and static fields.
func (c *Class) LookupField(name string, static bool) *Field {
	for s := c; s != nil; s = s.Superclass {
		if f := s.fields[name]; f != nil && f.Static == static {
			return f
		}
	}
	return nil
}

// Methods returns the methods declared directly on this class.
func (c *Class) Methods() []*Method {
	result := make([]*Method, 0, len(c.methods))
	for _, m := range c.methods {
		result = append(result, m)
	}
	return result
}

// IsSubclassOf returns true if c is other, extends it, or implements it.
func (c *Class) IsSubclassOf(other *Class) bool {
	if c == nil || other == nil {
		return false
	}
	for current := c; current != nil; current = current.Superclass {
		if current == other {
			return true
		}
		for _, i := range current.Interfaces {
			if i.IsSubclassOf(other) {
				return true
			}
		}
	}
	if c.array != nil && other.array != nil {
		return arrayAssignable(*c.array, *other.array, c.Loader)
	}
	return false
}

// Superclasses returns all superclasses from immediate parent to root.
func (c *Class) Superclasses() []*Class {
	var result []*Class
	for current := c.Superclass; current != nil; current = current.Superclass {
		result = append(result, current)
	}
	return result
}

func (c *Class) allInterfaces() []*Class {
	var result []*Class
	for current := c; current != nil; current = current.Superclass {
		for _, i := range current.Interfaces {
			result = append(result, i)
			result = append(result, i.allInterfaces()...)
		}
	}
	return result
}

// arrayAssignable reports whether an array of type from may be stored where
// an array of type to is expected. Element classes are compared by name.
func arrayAssignable(from, to TypeDesc, _ *ClassLoader) bool {
	if from.Dims != to.Dims {
		return to.Dims < from.Dims && to.Elem == KindReference && to.Class == "java/lang/Object"
	}
	if from.Elem != to.Elem {
		return false
	}
	if from.Elem != KindReference {
		return true
	}
	return from.Class == to.Class || to.Class == "java/lang/Object"
}

// ---------------------------------------------------------------------------
// Class construction
// ---------------------------------------------------------------------------

// newClass builds a class from its definition. super and interfaces have
// already been resolved by the defining loader.
func newClass(def *ClassDef, loader *ClassLoader, super *Class, ifaces []*Class) (*Class, error) {
	c := &Class{
		Name:       def.Name,
		Loader:     loader,
		Superclass: super,
		Interfaces: ifaces,
		Interface:  def.Interface,
		Abstract:   def.Abstract,
		fields:     make(map[string]*Field),
		methods:    make(map[methodKey]*Method),
	}
	if super != nil {
		c.numSlots = super.numSlots
	}

	for _, fd := range def.Fields {
		t, err := ParseTypeDesc(fd.Desc)
		if err != nil {
			return nil, fmt.Errorf("class %s field %s: %w", def.Name, fd.Name, err)
		}
		if t.Kind == KindVoid {
			return nil, fmt.Errorf("class %s field %s: void field", def.Name, fd.Name)
		}
		if _, dup := c.fields[fd.Name]; dup {
			return nil, fmt.Errorf("class %s: duplicate field %s", def.Name, fd.Name)
		}
		f := &Field{Name: fd.Name, Desc: fd.Desc, Type: t, Static: fd.Static, Class: c}
		if fd.Static {
			f.slot = len(c.statics)
			c.statics = append(c.statics, ZeroValue(t.Kind))
		} else {
			f.slot = c.numSlots
			c.numSlots++
		}
		c.fields[fd.Name] = f
	}

	for i := range def.Methods {
		md := &def.Methods[i]
		params, ret, err := ParseMethodDesc(md.Desc)
		if err != nil {
			return nil, fmt.Errorf("class %s method %s: %w", def.Name, md.Name, err)
		}
		if md.Name == "<init>" && (md.Static || ret.Kind != KindVoid) {
			return nil, fmt.Errorf("class %s: constructor must be an instance method returning void", def.Name)
		}
		if !md.Native && !md.Abstract && md.Impl == nil {
			return nil, fmt.Errorf("class %s method %s%s: no implementation", def.Name, md.Name, md.Desc)
		}
		key := methodKey{md.Name, md.Desc}
		if _, dup := c.methods[key]; dup {
			return nil, fmt.Errorf("class %s: duplicate method %s%s", def.Name, md.Name, md.Desc)
		}
		c.methods[key] = &Method{
			Name:     md.Name,
			Desc:     md.Desc,
			Params:   params,
			Return:   ret,
			Static:   md.Static,
			Native:   md.Native,
			Abstract: md.Abstract,
			Class:    c,
			impl:     md.Impl,
		}
	}
	return c, nil
}

// instantiate allocates an instance with every field at its default value.
func (c *Class) instantiate() *Object {
	obj := newObject(c)
	obj.fields = make([]Value, c.numSlots)
	for s := c; s != nil; s = s.Superclass {
		for _, f := range s.fields {
			if !f.Static {
				obj.fields[f.slot] = ZeroValue(f.Type.Kind)
			}
		}
	}
	return obj
}
