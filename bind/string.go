package bind

import (
	"encoding/binary"

	"golang.org/x/text/encoding/unicode"

	"github.com/chazu/mbind/vm"
)

// StringClass describes java/lang/String.
var StringClass = &ClassDef{
	Name: "java/lang/String",
	Methods: []Method{
		Fn("length", Int),
		Fn("equals", Boolean, JavaObject),
	},
}

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// encodeChars converts a Go string to UTF-16 code units. Embedded NULs are
// kept; invalid UTF-8 becomes U+FFFD.
func encodeChars(s string) []uint16 {
	b, err := utf16le.NewEncoder().Bytes([]byte(s))
	if err != nil {
		log.Warningf("encoding string: %v", err)
		return nil
	}
	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(b[2*i:])
	}
	return units
}

// decodeChars converts UTF-16 code units to a Go string. Unpaired
// surrogates become U+FFFD.
func decodeChars(units []uint16) string {
	b := make([]byte, 2*len(units))
	for i, u := range units {
		binary.LittleEndian.PutUint16(b[2*i:], u)
	}
	out, err := utf16le.NewDecoder().Bytes(b)
	if err != nil {
		log.Warningf("decoding string: %v", err)
		return ""
	}
	return string(out)
}

// ---------------------------------------------------------------------------
// Local strings
// ---------------------------------------------------------------------------

// LocalString is a local reference to a managed string.
type LocalString struct {
	env *Env
	ref vm.Ref
}

// NewString creates a managed string from s.
func NewString(env *Env, s string) LocalString {
	return LocalString{env: env, ref: env.raw.NewString(encodeChars(s))}
}

// WrapString adopts a raw local string reference.
func WrapString(env *Env, ref vm.Ref) LocalString {
	return LocalString{env: env, ref: ref}
}

func (s LocalString) raw() vm.Ref { return s.ref }

// Def returns the java/lang/String definition.
func (s LocalString) Def() *ClassDef { return StringClass }

// IsNull reports whether the reference is null.
func (s LocalString) IsNull() bool { return s.ref.IsNull() }

// Len returns the number of UTF-16 code units.
func (s LocalString) Len() int { return s.env.raw.GetStringLength(s.ref) }

// Copy returns an owned UTF-8 copy of the string. Embedded NULs survive.
func (s LocalString) Copy() string {
	return decodeChars(s.env.raw.GetStringChars(s.ref))
}

// Pin borrows the string's own storage. No other VM call may be made until
// the pin is released.
func (s LocalString) Pin() *PinnedString {
	return &PinnedString{env: s.env, ref: s.ref, chars: s.env.raw.GetStringCritical(s.ref)}
}

// Object returns the string as a plain object reference.
func (s LocalString) Object() LocalObject {
	return LocalObject{env: s.env, ref: s.ref, def: StringClass}
}

// Global creates a global reference to the string. The local stays valid.
func (s LocalString) Global() GlobalString {
	return GlobalString{ref: s.env.raw.NewGlobalRef(s.ref)}
}

// Release hands the raw reference to the caller.
func (s LocalString) Release() vm.Ref { return s.ref }

// Delete frees the local before its frame ends.
func (s LocalString) Delete() {
	if !s.ref.IsNull() {
		s.env.raw.DeleteLocalRef(s.ref)
	}
}

// PinnedString is a borrowed view of a managed string's UTF-16 storage.
type PinnedString struct {
	env      *Env
	ref      vm.Ref
	chars    []uint16
	released bool
}

// Chars returns the borrowed code units. They must not be written.
func (p *PinnedString) Chars() []uint16 { return p.chars }

// Len returns the number of code units.
func (p *PinnedString) Len() int { return len(p.chars) }

// String decodes the borrowed units without calling into the VM.
func (p *PinnedString) String() string { return decodeChars(p.chars) }

// Release ends the borrow. Releasing twice is a no-op.
func (p *PinnedString) Release() {
	if p.released {
		return
	}
	p.released = true
	p.env.raw.ReleaseStringCritical(p.ref, p.chars)
	p.chars = nil
}

// ---------------------------------------------------------------------------
// Global strings
// ---------------------------------------------------------------------------

// GlobalString is a global reference to a managed string, usable on any
// attached thread.
type GlobalString struct {
	ref vm.Ref
}

func (g GlobalString) raw() vm.Ref { return g.ref }

// Def returns the java/lang/String definition.
func (g GlobalString) Def() *ClassDef { return StringClass }

// IsNull reports whether the reference is null.
func (g GlobalString) IsNull() bool { return g.ref.IsNull() }

// Local returns a local reference to the string in env's current frame.
func (g GlobalString) Local(env *Env) LocalString {
	if g.ref.IsNull() {
		return LocalString{env: env}
	}
	return LocalString{env: env, ref: env.raw.NewLocalRef(g.ref)}
}

// Delete drops the global.
func (g GlobalString) Delete(env *Env) {
	if !g.ref.IsNull() {
		env.raw.DeleteGlobalRef(g.ref)
	}
}
