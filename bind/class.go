package bind

import "strings"

// ClassDef is the static description of a managed class: its name, the
// loader it belongs to and the members native code may use. Only declared
// members are reachable through Call, Get, Set and New.
type ClassDef struct {
	Name         string
	Loader       *ClassLoaderDef
	Constructors []Constructor
	Methods      []Method
	Fields       []Field
	Static       StaticDef
}

// Constructor is one constructor overload.
type Constructor struct {
	Params []Type
}

// Method is a named method with one or more overloads.
type Method struct {
	Name      string
	Overloads []Overload
}

// Overload is one signature of a method.
type Overload struct {
	Return Type
	Params []Type
}

// Field is a named field.
type Field struct {
	Name string
	Type Type
}

// StaticDef holds a class's static members.
type StaticDef struct {
	Methods []Method
	Fields  []Field
}

// Fn declares a method with a single overload.
func Fn(name string, ret Type, params ...Type) Method {
	return Method{Name: name, Overloads: []Overload{{Return: ret, Params: params}}}
}

// Ctor declares a constructor.
func Ctor(params ...Type) Constructor {
	return Constructor{Params: params}
}

// Overloaded declares a method with several overloads.
func Overloaded(name string, overloads ...Overload) Method {
	return Method{Name: name, Overloads: overloads}
}

// Sig builds an overload.
func Sig(ret Type, params ...Type) Overload {
	return Overload{Return: ret, Params: params}
}

// Type returns the type of instances of the class.
func (c *ClassDef) Type() Type { return ObjectOf(c) }

// BinaryName returns the name with dots normalised to slashes.
func (c *ClassDef) BinaryName() string {
	return strings.ReplaceAll(c.Name, ".", "/")
}

func (c *ClassDef) constructors() []Constructor {
	if len(c.Constructors) == 0 {
		return []Constructor{{}}
	}
	return c.Constructors
}

func (c *ClassDef) method(static bool, name string) (int, *Method) {
	ms := c.Methods
	if static {
		ms = c.Static.Methods
	}
	for i := range ms {
		if ms[i].Name == name {
			return i, &ms[i]
		}
	}
	return -1, nil
}

func (c *ClassDef) field(static bool, name string) (int, *Field) {
	fs := c.Fields
	if static {
		fs = c.Static.Fields
	}
	for i := range fs {
		if fs[i].Name == name {
			return i, &fs[i]
		}
	}
	return -1, nil
}

func (c *ClassDef) String() string { return c.Name }
