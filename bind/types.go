package bind

import (
	"strings"

	"github.com/chazu/mbind/vm"
)

// Type is the static type of a parameter, return value or field.
type Type struct {
	kind  vm.Kind // element kind for arrays
	class string  // binary class name for references
	def   *ClassDef
	self  bool
	rank  int
}

// Primitive and well-known types.
var (
	Void    = Type{kind: vm.KindVoid}
	Boolean = Type{kind: vm.KindBoolean}
	Byte    = Type{kind: vm.KindByte}
	Char    = Type{kind: vm.KindChar}
	Short   = Type{kind: vm.KindShort}
	Int     = Type{kind: vm.KindInt}
	Long    = Type{kind: vm.KindLong}
	Float   = Type{kind: vm.KindFloat}
	Double  = Type{kind: vm.KindDouble}

	String        = Named("java/lang/String")
	JavaObject    = Named("java/lang/Object")
	JavaList      = Named("java/util/List")
	JavaException = Named("java/lang/Exception")

	// Self stands for the class being declared. It is how a class refers to
	// itself in its own member signatures.
	Self = Type{kind: vm.KindReference, self: true}
)

// ObjectOf is the type of instances of def. Values of this type come back
// bound to def.
func ObjectOf(def *ClassDef) Type {
	return Type{kind: vm.KindReference, class: def.BinaryName(), def: def}
}

// Named is a reference type known only by its binary name. Values of this
// type come back untyped.
func Named(name string) Type {
	return Type{kind: vm.KindReference, class: strings.ReplaceAll(name, ".", "/")}
}

// ArrayOf is the type of rank-dimensional arrays of t. t itself may be an
// array type; the ranks add up.
func ArrayOf(t Type, rank int) Type {
	t.rank += rank
	return t
}

// Rank returns the array rank, 0 for non-arrays.
func (t Type) Rank() int { return t.rank }

// IsArray reports whether t is an array type.
func (t Type) IsArray() bool { return t.rank > 0 }

// Elem returns the element type with the rank reduced by one.
func (t Type) Elem() Type {
	if t.rank > 0 {
		t.rank--
	}
	return t
}

// Base returns the innermost element type of an array type.
func (t Type) Base() Type {
	t.rank = 0
	return t
}

// Kind returns the VM kind of a value of type t.
func (t Type) Kind() vm.Kind {
	if t.rank > 0 {
		return vm.KindReference
	}
	return t.kind
}

// IsPrimitive reports whether t is a primitive, non-array type.
func (t Type) IsPrimitive() bool {
	return t.rank == 0 && t.kind.IsPrimitive()
}

// Def returns the class definition values of t are bound to, resolving
// Self against self.
func (t Type) Def(self *ClassDef) *ClassDef {
	if t.self {
		return self
	}
	return t.def
}

// ClassName returns the binary class name of a reference type, resolving
// Self against self.
func (t Type) ClassName(self *ClassDef) string {
	if t.self {
		if self == nil {
			return ""
		}
		return self.BinaryName()
	}
	return t.class
}

// Descriptor returns the descriptor of t, with Self standing for self.
func (t Type) Descriptor(self *ClassDef) string {
	var sb strings.Builder
	for i := 0; i < t.rank; i++ {
		sb.WriteByte('[')
	}
	if t.kind == vm.KindReference {
		sb.WriteByte('L')
		sb.WriteString(t.ClassName(self))
		sb.WriteByte(';')
	} else {
		sb.WriteByte(t.kind.Descriptor())
	}
	return sb.String()
}

// String returns a readable form of t.
func (t Type) String() string {
	var s string
	switch {
	case t.self:
		s = "Self"
	case t.kind == vm.KindReference:
		s = t.class
	default:
		s = t.kind.String()
	}
	return s + strings.Repeat("[]", t.rank)
}

// typeFromDesc converts a VM descriptor back into a Type.
func typeFromDesc(d vm.TypeDesc) Type {
	if d.Dims > 0 {
		return Type{kind: d.Elem, class: d.Class, rank: d.Dims}
	}
	return Type{kind: d.Kind, class: d.Class}
}
