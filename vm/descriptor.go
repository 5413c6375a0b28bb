package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Type descriptors
// ---------------------------------------------------------------------------

// TypeDesc is a parsed field or parameter descriptor.
//
//	I                     -> {Kind: KindInt}
//	Ljava/lang/String;    -> {Kind: KindReference, Class: "java/lang/String"}
//	[[I                   -> {Kind: KindReference, Dims: 2, Elem: KindInt}
type TypeDesc struct {
	Kind  Kind   // KindReference for classes and arrays
	Class string // element class for references ("" for primitive arrays)
	Dims  int    // array rank, 0 for non-arrays
	Elem  Kind   // element kind when Dims > 0
}

// IsArray returns true for array types.
func (t TypeDesc) IsArray() bool { return t.Dims > 0 }

// String returns the descriptor form of the type.
func (t TypeDesc) String() string {
	var sb strings.Builder
	for i := 0; i < t.Dims; i++ {
		sb.WriteByte('[')
	}
	k := t.Kind
	if t.Dims > 0 {
		k = t.Elem
	}
	if k == KindReference {
		sb.WriteByte('L')
		sb.WriteString(t.Class)
		sb.WriteByte(';')
	} else {
		sb.WriteByte(k.Descriptor())
	}
	return sb.String()
}

// Component returns the element type of an array type (rank reduced by one).
func (t TypeDesc) Component() TypeDesc {
	if t.Dims <= 1 {
		if t.Elem == KindReference {
			return TypeDesc{Kind: KindReference, Class: t.Class}
		}
		return TypeDesc{Kind: t.Elem}
	}
	c := t
	c.Dims--
	return c
}

// ParseTypeDesc parses a single field descriptor.
func ParseTypeDesc(desc string) (TypeDesc, error) {
	t, n, err := parseOne(desc, 0)
	if err != nil {
		return TypeDesc{}, err
	}
	if n != len(desc) {
		return TypeDesc{}, fmt.Errorf("descriptor %q: trailing characters", desc)
	}
	return t, nil
}

// ParseMethodDesc parses a method descriptor such as "(IF)Ljava/lang/String;".
func ParseMethodDesc(desc string) ([]TypeDesc, TypeDesc, error) {
	if len(desc) == 0 || desc[0] != '(' {
		return nil, TypeDesc{}, fmt.Errorf("method descriptor %q: missing '('", desc)
	}
	var params []TypeDesc
	i := 1
	for i < len(desc) && desc[i] != ')' {
		t, n, err := parseOne(desc, i)
		if err != nil {
			return nil, TypeDesc{}, err
		}
		if t.Kind == KindVoid {
			return nil, TypeDesc{}, fmt.Errorf("method descriptor %q: void parameter", desc)
		}
		params = append(params, t)
		i = n
	}
	if i >= len(desc) {
		return nil, TypeDesc{}, fmt.Errorf("method descriptor %q: missing ')'", desc)
	}
	ret, n, err := parseOne(desc, i+1)
	if err != nil {
		return nil, TypeDesc{}, err
	}
	if n != len(desc) {
		return nil, TypeDesc{}, fmt.Errorf("method descriptor %q: trailing characters", desc)
	}
	return params, ret, nil
}

// parseOne parses the type starting at desc[i] and returns the index after it.
func parseOne(desc string, i int) (TypeDesc, int, error) {
	dims := 0
	for i < len(desc) && desc[i] == '[' {
		dims++
		i++
	}
	if i >= len(desc) {
		return TypeDesc{}, 0, fmt.Errorf("descriptor %q: truncated", desc)
	}
	k, ok := kindFromDescriptor(desc[i])
	if !ok || desc[i] == '[' {
		return TypeDesc{}, 0, fmt.Errorf("descriptor %q: bad type character %q", desc, desc[i])
	}
	var class string
	if desc[i] == 'L' {
		end := strings.IndexByte(desc[i:], ';')
		if end < 0 {
			return TypeDesc{}, 0, fmt.Errorf("descriptor %q: unterminated class name", desc)
		}
		class = desc[i+1 : i+end]
		if class == "" {
			return TypeDesc{}, 0, fmt.Errorf("descriptor %q: empty class name", desc)
		}
		i += end + 1
	} else {
		i++
	}
	if dims > 0 {
		if k == KindVoid {
			return TypeDesc{}, 0, fmt.Errorf("descriptor %q: array of void", desc)
		}
		return TypeDesc{Kind: KindReference, Class: class, Dims: dims, Elem: k}, i, nil
	}
	return TypeDesc{Kind: k, Class: class}, i, nil
}
