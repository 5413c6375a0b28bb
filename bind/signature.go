package bind

import (
	"strings"
	"sync"
)

// MethodSignature returns the descriptor of a method taking params and
// returning ret, with Self standing for self.
func MethodSignature(self *ClassDef, params []Type, ret Type) string {
	var sb strings.Builder
	sb.WriteByte('(')
	for _, p := range params {
		sb.WriteString(p.Descriptor(self))
	}
	sb.WriteByte(')')
	sb.WriteString(ret.Descriptor(self))
	return sb.String()
}

type memberKind uint8

const (
	memberCtor memberKind = iota
	memberMethod
	memberStaticMethod
	memberField
	memberStaticField
)

type sigKey struct {
	def   *ClassDef
	kind  memberKind
	name  string
	index int
}

// signatures interns descriptors per declared member: building one is done
// once per (class, member, overload) for the life of the process.
var signatures sync.Map // sigKey -> string

func signature(def *ClassDef, kind memberKind, name string, index int, build func() string) string {
	key := sigKey{def: def, kind: kind, name: name, index: index}
	if s, ok := signatures.Load(key); ok {
		return s.(string)
	}
	s, _ := signatures.LoadOrStore(key, build())
	return s.(string)
}

func ctorSignature(def *ClassDef, index int) string {
	return signature(def, memberCtor, "<init>", index, func() string {
		return MethodSignature(def, def.constructors()[index].Params, Void)
	})
}

func methodSignature(def *ClassDef, static bool, m *Method, index int) string {
	kind := memberMethod
	if static {
		kind = memberStaticMethod
	}
	return signature(def, kind, m.Name, index, func() string {
		o := m.Overloads[index]
		return MethodSignature(def, o.Params, o.Return)
	})
}

func fieldSignature(def *ClassDef, static bool, f *Field) string {
	kind := memberField
	if static {
		kind = memberStaticField
	}
	return signature(def, kind, f.Name, 0, func() string {
		return f.Type.Descriptor(def)
	})
}

// internedSignatures returns how many member descriptors have been built.
func internedSignatures() int {
	n := 0
	signatures.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
