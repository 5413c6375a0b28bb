// Package archive implements class archives: CBOR documents holding class
// declarations whose method bodies are named intrinsics supplied by the
// embedder. An archive on disk can back a class loader, which is how remote
// loaders bring in classes the system loader has never seen.
package archive

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/chazu/mbind/vm"
)

var log = commonlog.GetLogger("mbind.archive")

// FormatVersion is the archive format this package reads and writes.
const FormatVersion uint8 = 1

// ErrFormat is wrapped by errors for archives of an unsupported format.
var ErrFormat = errors.New("unsupported archive format")

// ---------------------------------------------------------------------------
// Wire types
// ---------------------------------------------------------------------------

// Archive is a set of class declarations.
type Archive struct {
	Format  uint8       `cbor:"1,keyasint"`
	ID      uuid.UUID   `cbor:"2,keyasint"`
	Name    string      `cbor:"3,keyasint,omitempty"`
	Classes []ClassDecl `cbor:"4,keyasint"`
}

// ClassDecl declares one class.
type ClassDecl struct {
	Name       string       `cbor:"1,keyasint"`
	Super      string       `cbor:"2,keyasint,omitempty"`
	Interfaces []string     `cbor:"3,keyasint,omitempty"`
	Fields     []FieldDecl  `cbor:"4,keyasint,omitempty"`
	Methods    []MethodDecl `cbor:"5,keyasint,omitempty"`
	Abstract   bool         `cbor:"6,keyasint,omitempty"`
}

// FieldDecl declares a field by name and descriptor.
type FieldDecl struct {
	Name   string `cbor:"1,keyasint"`
	Desc   string `cbor:"2,keyasint"`
	Static bool   `cbor:"3,keyasint,omitempty"`
}

// MethodDecl declares a method. Symbol names the intrinsic implementing it;
// native and abstract methods have none.
type MethodDecl struct {
	Name     string `cbor:"1,keyasint"`
	Desc     string `cbor:"2,keyasint"`
	Static   bool   `cbor:"3,keyasint,omitempty"`
	Native   bool   `cbor:"4,keyasint,omitempty"`
	Abstract bool   `cbor:"5,keyasint,omitempty"`
	Symbol   string `cbor:"6,keyasint,omitempty"`
}

// Intrinsics maps implementation symbols to method bodies.
type Intrinsics map[string]vm.MethodFunc

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("archive: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// New creates an archive with a fresh identity.
func New(name string, classes ...ClassDecl) *Archive {
	return &Archive{
		Format:  FormatVersion,
		ID:      uuid.New(),
		Name:    name,
		Classes: classes,
	}
}

// Marshal serializes an archive to canonical CBOR.
func Marshal(a *Archive) ([]byte, error) {
	return cborEncMode.Marshal(a)
}

// Unmarshal deserializes an archive, rejecting unknown formats.
func Unmarshal(data []byte) (*Archive, error) {
	var a Archive
	if err := cbor.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("archive: unmarshal: %w", err)
	}
	if a.Format != FormatVersion {
		return nil, fmt.Errorf("archive: format %d: %w", a.Format, ErrFormat)
	}
	return &a, nil
}

// Digest returns the SHA-256 of the archive's canonical encoding.
func Digest(a *Archive) ([32]byte, error) {
	data, err := Marshal(a)
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(data), nil
}

// Write stores an archive at path.
func Write(path string, a *Archive) error {
	data, err := Marshal(a)
	if err != nil {
		return fmt.Errorf("archive: marshal %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("archive: write %s: %w", path, err)
	}
	return nil
}

// Read loads an archive from path.
func Read(path string) (*Archive, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("archive: read %s: %w", path, err)
	}
	return Unmarshal(data)
}

// Find returns the declaration of the named class.
func (a *Archive) Find(name string) (*ClassDecl, bool) {
	for i := range a.Classes {
		if a.Classes[i].Name == name {
			return &a.Classes[i], true
		}
	}
	return nil, false
}

// Symbols returns every intrinsic symbol the archive refers to.
func (a *Archive) Symbols() []string {
	var syms []string
	for _, c := range a.Classes {
		for _, m := range c.Methods {
			if m.Symbol != "" {
				syms = append(syms, m.Symbol)
			}
		}
	}
	return syms
}

// ---------------------------------------------------------------------------
// Conversion to class definitions
// ---------------------------------------------------------------------------

// ClassDef resolves the declaration's symbols against in and returns a
// definition a loader can define.
func (d *ClassDecl) ClassDef(in Intrinsics) (*vm.ClassDef, error) {
	def := &vm.ClassDef{
		Name:       d.Name,
		Super:      d.Super,
		Interfaces: d.Interfaces,
		Abstract:   d.Abstract,
	}
	for _, f := range d.Fields {
		def.Fields = append(def.Fields, vm.FieldDef{Name: f.Name, Desc: f.Desc, Static: f.Static})
	}
	for _, m := range d.Methods {
		md := vm.MethodDef{Name: m.Name, Desc: m.Desc, Static: m.Static, Native: m.Native, Abstract: m.Abstract}
		if !m.Native && !m.Abstract {
			impl, ok := in[m.Symbol]
			if !ok {
				return nil, fmt.Errorf("archive: %s.%s%s: unknown intrinsic %q", d.Name, m.Name, m.Desc, m.Symbol)
			}
			md.Impl = impl
		}
		def.Methods = append(def.Methods, md)
	}
	return def, nil
}

// Declare converts a definition back to a declaration, naming each method
// body by symbol(class, method, desc).
func Declare(def *vm.ClassDef, symbol func(class, method, desc string) string) ClassDecl {
	d := ClassDecl{
		Name:       def.Name,
		Super:      def.Super,
		Interfaces: def.Interfaces,
		Abstract:   def.Abstract,
	}
	for _, f := range def.Fields {
		d.Fields = append(d.Fields, FieldDecl{Name: f.Name, Desc: f.Desc, Static: f.Static})
	}
	for _, m := range def.Methods {
		md := MethodDecl{Name: m.Name, Desc: m.Desc, Static: m.Static, Native: m.Native, Abstract: m.Abstract}
		if !m.Native && !m.Abstract {
			md.Symbol = symbol(def.Name, m.Name, m.Desc)
		}
		d.Methods = append(d.Methods, md)
	}
	return d
}
