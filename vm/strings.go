package vm

import "unicode/utf16"

// encodeUTF16 converts a Go string to UTF-16 code units. Embedded NULs are
// kept; invalid UTF-8 bytes become U+FFFD.
func encodeUTF16(s string) []uint16 {
	return utf16.Encode([]rune(s))
}

// ---------------------------------------------------------------------------
// String operations
// ---------------------------------------------------------------------------

func (env *Env) stringOf(s Ref) *Object {
	obj := env.deref(s)
	if obj == nil {
		env.vm.Fatal(ContractNullReceiver, "string operation on null")
	}
	if !obj.IsString() {
		env.vm.Fatal(ContractWrongObject, "%s is not a string", obj.class.Name)
	}
	return obj
}

// NewString creates a managed string from UTF-16 code units. The units are
// copied.
func (env *Env) NewString(chars []uint16) Ref {
	env.enter()
	return env.newLocal(env.vm.newString(append([]uint16(nil), chars...)))
}

// NewStringUTF creates a managed string from a Go string.
func (env *Env) NewStringUTF(s string) Ref {
	env.enter()
	return env.newLocal(env.vm.NewStringObject(s))
}

// GetStringLength returns the number of UTF-16 code units in s.
func (env *Env) GetStringLength(s Ref) int {
	env.enter()
	return len(env.stringOf(s).chars)
}

// GetStringChars returns a copy of the string's code units.
func (env *Env) GetStringChars(s Ref) []uint16 {
	env.enter()
	return append([]uint16(nil), env.stringOf(s).chars...)
}

// GetStringRegion copies n code units starting at start into dst.
func (env *Env) GetStringRegion(s Ref, start, n int, dst []uint16) {
	env.enter()
	chars := env.stringOf(s).chars
	if start < 0 || n < 0 || start+n > len(chars) || n > len(dst) {
		env.vm.Fatal(ContractArrayBounds, "string region [%d,+%d) of length %d", start, n, len(chars))
	}
	copy(dst, chars[start:start+n])
}

// GetStringUTF decodes s into a Go string.
func (env *Env) GetStringUTF(s Ref) string {
	env.enter()
	return env.stringOf(s).GoString()
}

// GetStringCritical opens a critical region over the string's storage and
// returns it directly. The slice must not be written.
func (env *Env) GetStringCritical(s Ref) []uint16 {
	env.enterCritical()
	obj := env.stringOf(s)
	env.critical++
	return obj.chars
}

// ReleaseStringCritical closes a region opened by GetStringCritical.
func (env *Env) ReleaseStringCritical(s Ref, chars []uint16) {
	env.enterCritical()
	env.stringOf(s)
	env.leaveCritical()
}

func (env *Env) leaveCritical() {
	if env.critical == 0 {
		env.vm.Fatal(ContractCriticalRegion, "critical release without acquire")
	}
	env.critical--
}
