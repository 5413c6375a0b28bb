package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/chazu/mbind/manifest"
	"github.com/chazu/mbind/vm"
)

// loadManifest finds mbind.toml from dir upward. An empty dir means the
// working directory.
func loadManifest(dir string) (*manifest.Manifest, error) {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		dir = wd
	}
	m, err := manifest.FindAndLoad(dir)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("no %s found in %s or its parents", manifest.FileName, dir)
	}
	return m, nil
}

// handleCheckCommand processes `mbind check [-update] [dir]`.
func handleCheckCommand(args []string, w io.Writer) error {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	update := fs.Bool("update", false, "Record current archive digests in mbind.lock")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 1 {
		return fmt.Errorf("usage: mbind check [-update] [dir]")
	}

	m, err := loadManifest(fs.Arg(0))
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Manifest: %s\n", m.Dir)

	opts := m.Options()
	fmt.Fprintf(w, "  default loader class:  %s\n", orNone(opts.DefaultLoaderClass))
	fmt.Fprintf(w, "  array copy threshold:  %d\n", opts.ArrayCopyThreshold)
	fmt.Fprintf(w, "  abort on misuse:       %t\n", opts.AbortOnMisuse)
	fmt.Fprintf(w, "  critical sections:     %t\n", opts.AllowCriticalSections)
	fmt.Fprintf(w, "  member cache size:     %d\n", opts.MemberCacheSize)

	r := manifest.NewResolver(m, *update)
	resolved, err := r.Resolve()
	if err != nil {
		return err
	}
	for _, ra := range resolved {
		parent := ra.Parent
		if parent == "" {
			parent = manifest.ParentSystem
		}
		fmt.Fprintf(w, "  archive %-16s %d class(es), parent %s, digest %.12s\n",
			ra.Name, len(ra.Archive.Classes), parent, ra.Digest)
	}

	for _, lib := range m.Libraries {
		status := "installed"
		if _, ok := vm.LookupLibrary(lib.Name); !ok {
			status = "not installed in this binary"
		}
		fmt.Fprintf(w, "  library %-16s %s\n", lib.Name, status)
	}

	if *update {
		if err := r.WriteLock(resolved); err != nil {
			return err
		}
		fmt.Fprintf(w, "Updated %s\n", m.LockFilePath())
	}
	return nil
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
