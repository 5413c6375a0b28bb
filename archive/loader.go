package archive

import (
	"fmt"

	"github.com/chazu/mbind/vm"
)

// Source serves class definitions out of an archive.
type Source struct {
	archive *Archive
	defs    map[string]*vm.ClassDef
}

// NewSource resolves every declaration in a against in. A declaration that
// names an unknown intrinsic fails the whole archive.
func NewSource(a *Archive, in Intrinsics) (*Source, error) {
	s := &Source{archive: a, defs: make(map[string]*vm.ClassDef, len(a.Classes))}
	for i := range a.Classes {
		def, err := a.Classes[i].ClassDef(in)
		if err != nil {
			return nil, err
		}
		s.defs[def.Name] = def
	}
	return s, nil
}

// FindClassDef implements vm.ClassSource.
func (s *Source) FindClassDef(name string) (*vm.ClassDef, bool) {
	def, ok := s.defs[name]
	return def, ok
}

// Archive returns the archive behind the source.
func (s *Source) Archive() *Archive { return s.archive }

// NewLoader reads the archive at path and returns a class loader that
// defines its classes, delegating to parent first (nil means the system
// loader).
func NewLoader(v *vm.VM, name string, parent *vm.ClassLoader, path string, in Intrinsics) (*vm.ClassLoader, error) {
	a, err := Read(path)
	if err != nil {
		return nil, err
	}
	src, err := NewSource(a, in)
	if err != nil {
		return nil, fmt.Errorf("archive %s: %w", path, err)
	}
	l := v.NewClassLoader(name, parent, src)
	log.Infof("loader %s serves %d class(es) from %s", name, len(a.Classes), path)
	return l, nil
}
