package manifest

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/chazu/mbind/archive"
	"github.com/chazu/mbind/vm"
)

// ErrDigestMismatch is wrapped when an archive's content differs from the
// digest the manifest or lock file records for it.
var ErrDigestMismatch = errors.New("archive digest mismatch")

// ResolvedArchive is an archive entry that has been read and checked.
type ResolvedArchive struct {
	Name    string
	Path    string // absolute
	Parent  string // archive name, ParentBoot, or "" for the system loader
	Archive *archive.Archive
	Digest  string // hex SHA-256 of the canonical encoding
}

// Resolver reads and checks the archives a manifest lists.
type Resolver struct {
	manifest *Manifest
	lock     *LockFile
	update   bool
}

// NewResolver creates a resolver. With update set, digests recorded in the
// lock file are not enforced; WriteLock records the new ones.
func NewResolver(m *Manifest, update bool) *Resolver {
	return &Resolver{manifest: m, update: update}
}

// Resolve reads every archive and returns them in load order: parents
// before the archives that delegate to them.
func (r *Resolver) Resolve() ([]ResolvedArchive, error) {
	lock, err := ReadLock(r.manifest.LockFilePath())
	if err != nil {
		return nil, fmt.Errorf("reading lock file: %w", err)
	}
	r.lock = lock

	entries := make(map[string]Archive, len(r.manifest.Archives))
	for _, a := range r.manifest.Archives {
		entries[a.Name] = a
	}

	const (
		visiting = 1
		done     = 2
	)
	state := make(map[string]int)
	var order []ResolvedArchive
	var visit func(name string, chain []string) error
	visit = func(name string, chain []string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("archive parents form a cycle: %s", strings.Join(append(chain, name), " -> "))
		}
		state[name] = visiting
		a := entries[name]
		if p := a.Parent; p != "" && p != ParentBoot && p != ParentSystem {
			if _, ok := entries[p]; !ok {
				return fmt.Errorf("archive %q: unknown parent %q", name, p)
			}
			if err := visit(p, append(chain, name)); err != nil {
				return err
			}
		}
		ra, err := r.resolveOne(a)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", name, err)
		}
		state[name] = done
		order = append(order, *ra)
		return nil
	}

	for _, a := range r.manifest.Archives {
		if err := visit(a.Name, nil); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// resolveOne reads one archive and checks its digest and class names.
func (r *Resolver) resolveOne(a Archive) (*ResolvedArchive, error) {
	path := r.manifest.ArchivePath(a)
	ar, err := archive.Read(path)
	if err != nil {
		return nil, err
	}
	sum, err := archive.Digest(ar)
	if err != nil {
		return nil, err
	}
	digest := hex.EncodeToString(sum[:])

	if a.Digest != "" && !strings.EqualFold(a.Digest, digest) {
		return nil, fmt.Errorf("%w: manifest has %s, file has %s", ErrDigestMismatch, a.Digest, digest)
	}
	if locked := r.lock.Find(a.Name); locked != nil && !r.update && locked.Digest != digest {
		return nil, fmt.Errorf("%w: lock file has %s, file has %s", ErrDigestMismatch, locked.Digest, digest)
	}

	for _, c := range ar.Classes {
		if err := ValidateClassName(c.Name); err != nil {
			return nil, err
		}
		if IsReservedClass(c.Name) {
			return nil, fmt.Errorf("class %s is in a package reserved for boot classes", c.Name)
		}
	}

	parent := a.Parent
	if parent == ParentSystem {
		parent = ""
	}
	return &ResolvedArchive{
		Name:    a.Name,
		Path:    path,
		Parent:  parent,
		Archive: ar,
		Digest:  digest,
	}, nil
}

// WriteLock records the digests of resolved archives.
func (r *Resolver) WriteLock(resolved []ResolvedArchive) error {
	lf := &LockFile{}
	for _, ra := range resolved {
		lf.Archives = append(lf.Archives, LockedArchive{
			Name:   ra.Name,
			Path:   ra.Path,
			ID:     ra.Archive.ID.String(),
			Digest: ra.Digest,
		})
	}
	return WriteLock(r.manifest.LockFilePath(), lf)
}

// Loaders defines one class loader per resolved archive, in order, and
// returns them by archive name.
func Loaders(v *vm.VM, resolved []ResolvedArchive, in archive.Intrinsics) (map[string]*vm.ClassLoader, error) {
	loaders := make(map[string]*vm.ClassLoader, len(resolved))
	for _, ra := range resolved {
		src, err := archive.NewSource(ra.Archive, in)
		if err != nil {
			return nil, fmt.Errorf("archive %s: %w", ra.Name, err)
		}
		var parent *vm.ClassLoader
		switch ra.Parent {
		case "":
		case ParentBoot:
			parent = v.BootLoader()
		default:
			parent = loaders[ra.Parent]
		}
		loaders[ra.Name] = v.NewClassLoader(ra.Name, parent, src)
	}
	return loaders, nil
}
