// Package manifest handles mbind.toml configuration: binding options, the
// native libraries to load and the class archives served by extra loaders.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/chazu/mbind/bind"
)

// FileName is the manifest file looked up by Load and FindAndLoad.
const FileName = "mbind.toml"

// Manifest represents an mbind.toml file.
type Manifest struct {
	VM        VMConfig  `toml:"vm"`
	Libraries []Library `toml:"library"`
	Archives  []Archive `toml:"archive"`

	// Dir is the directory containing the mbind.toml file (set at load time).
	Dir string `toml:"-"`
}

// VMConfig holds the binding options.
type VMConfig struct {
	DefaultLoaderClass    string `toml:"default-loader-class"`
	ArrayCopyThreshold    int    `toml:"array-copy-threshold"`
	AbortOnMisuse         bool   `toml:"abort-on-misuse"`
	AllowCriticalSections bool   `toml:"allow-critical-sections"`
	MemberCacheSize       int    `toml:"member-cache-size"`
}

// Library names a native library to load into the VM.
type Library struct {
	Name string `toml:"name"`
}

// Archive names a class archive served by its own class loader. Parent is
// the name of another archive, "boot", or empty for the system loader.
// Digest, when set, is the hex SHA-256 the archive must have.
type Archive struct {
	Name   string `toml:"name"`
	Path   string `toml:"path"`
	Parent string `toml:"parent"`
	Digest string `toml:"digest"`
}

// Parent names with a fixed meaning.
const (
	ParentSystem = "system"
	ParentBoot   = "boot"
)

// ErrUnknownKeys is wrapped by Load when the file has keys it does not
// understand.
var ErrUnknownKeys = errors.New("unknown manifest keys")

func defaults() Manifest {
	o := bind.DefaultOptions()
	return Manifest{VM: VMConfig{
		ArrayCopyThreshold:    o.ArrayCopyThreshold,
		AbortOnMisuse:         o.AbortOnMisuse,
		AllowCriticalSections: o.AllowCriticalSections,
		MemberCacheSize:       o.MemberCacheSize,
	}}
}

// Parse decodes manifest text. Keys left out keep their defaults.
func Parse(data string) (*Manifest, error) {
	m := defaults()
	md, err := toml.Decode(data, &m)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%w: %s", ErrUnknownKeys, strings.Join(keys, ", "))
	}

	// Defaults
	for i := range m.Archives {
		a := &m.Archives[i]
		if a.Name == "" {
			a.Name = strings.TrimSuffix(filepath.Base(a.Path), filepath.Ext(a.Path))
		}
	}
	m.VM.DefaultLoaderClass = NormalizeClassName(m.VM.DefaultLoaderClass)

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Load parses the mbind.toml file in the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	m, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return m, nil
}

// FindAndLoad walks up from startDir to find an mbind.toml file, then loads
// and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// Validate checks the manifest for values Load cannot use.
func (m *Manifest) Validate() error {
	var errs []error
	if m.VM.ArrayCopyThreshold < 0 {
		errs = append(errs, fmt.Errorf("vm.array-copy-threshold must not be negative, got %d", m.VM.ArrayCopyThreshold))
	}
	if c := m.VM.DefaultLoaderClass; c != "" {
		if err := ValidateClassName(c); err != nil {
			errs = append(errs, fmt.Errorf("vm.default-loader-class: %w", err))
		}
	}

	libs := make(map[string]bool)
	for i, l := range m.Libraries {
		switch {
		case l.Name == "":
			errs = append(errs, fmt.Errorf("library %d has no name", i))
		case libs[l.Name]:
			errs = append(errs, fmt.Errorf("library %q listed twice", l.Name))
		}
		libs[l.Name] = true
	}

	names := make(map[string]bool)
	for i, a := range m.Archives {
		switch {
		case a.Path == "":
			errs = append(errs, fmt.Errorf("archive %d has no path", i))
		case a.Name == ParentBoot || a.Name == ParentSystem:
			errs = append(errs, fmt.Errorf("archive name %q is reserved", a.Name))
		case names[a.Name]:
			errs = append(errs, fmt.Errorf("archive %q listed twice", a.Name))
		}
		names[a.Name] = true
	}
	return errors.Join(errs...)
}

// Options returns the binding options the manifest configures.
func (m *Manifest) Options() bind.Options {
	return bind.Options{
		DefaultLoaderClass:    m.VM.DefaultLoaderClass,
		ArrayCopyThreshold:    m.VM.ArrayCopyThreshold,
		AbortOnMisuse:         m.VM.AbortOnMisuse,
		AllowCriticalSections: m.VM.AllowCriticalSections,
		MemberCacheSize:       m.VM.MemberCacheSize,
	}
}

// ArchivePath returns the absolute path of an archive entry.
func (m *Manifest) ArchivePath(a Archive) string {
	if filepath.IsAbs(a.Path) {
		return a.Path
	}
	return filepath.Join(m.Dir, a.Path)
}

// LockFilePath returns the path to mbind.lock.
func (m *Manifest) LockFilePath() string {
	return filepath.Join(m.Dir, "mbind.lock")
}
