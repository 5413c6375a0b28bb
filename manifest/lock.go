package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// LockFile records the digest every archive had when it was last accepted.
type LockFile struct {
	Archives []LockedArchive `toml:"archive"`
}

// LockedArchive is one recorded archive.
type LockedArchive struct {
	Name   string `toml:"name"`
	Path   string `toml:"path"`
	ID     string `toml:"id"`
	Digest string `toml:"digest"`
}

// ReadLock reads a lock file. A missing file yields nil, nil.
func ReadLock(path string) (*LockFile, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var lf LockFile
	if _, err := toml.Decode(string(data), &lf); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	return &lf, nil
}

// WriteLock stores a lock file.
func WriteLock(path string, lf *LockFile) error {
	var buf bytes.Buffer
	buf.WriteString("# Generated by mbind check -update. Do not edit.\n\n")
	if err := toml.NewEncoder(&buf).Encode(lf); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// Find returns the record of the named archive, or nil. A nil lock file
// has no records.
func (lf *LockFile) Find(name string) *LockedArchive {
	if lf == nil {
		return nil
	}
	for i := range lf.Archives {
		if lf.Archives[i].Name == name {
			return &lf.Archives[i]
		}
	}
	return nil
}
