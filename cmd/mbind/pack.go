package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/chazu/mbind/archive"
	"github.com/chazu/mbind/manifest"
)

// packSpec is the TOML form of an archive:
//
//	name = "widgets"
//
//	[[class]]
//	name = "com/example/Widget"
//	super = "com/example/Base"
//	fields = [{ name = "size", desc = "I" }]
//	methods = [{ name = "<init>", desc = "()V", symbol = "widget.init" }]
type packSpec struct {
	Name    string              `toml:"name"`
	Classes []archive.ClassDecl `toml:"class"`
}

func readPackSpec(path string) (*archive.Archive, error) {
	var spec packSpec
	md, err := toml.DecodeFile(path, &spec)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%s: unknown keys %v", path, undecoded)
	}
	if spec.Name == "" {
		spec.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	for i := range spec.Classes {
		c := &spec.Classes[i]
		c.Name = manifest.NormalizeClassName(c.Name)
		c.Super = manifest.NormalizeClassName(c.Super)
		if err := manifest.ValidateClassName(c.Name); err != nil {
			return nil, fmt.Errorf("class %d: %w", i, err)
		}
	}
	return archive.New(spec.Name, spec.Classes...), nil
}

// handlePackCommand processes `mbind pack <classes.toml> -o <out.mar>`.
func handlePackCommand(args []string) error {
	fs := flag.NewFlagSet("pack", flag.ContinueOnError)
	out := fs.String("o", "", "Output archive path (default: <input>.mar)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: mbind pack <classes.toml> [-o out.mar]")
	}
	in := fs.Arg(0)
	if *out == "" {
		*out = strings.TrimSuffix(in, filepath.Ext(in)) + ".mar"
	}

	a, err := readPackSpec(in)
	if err != nil {
		return err
	}
	if err := packInto(*out, a); err != nil {
		return err
	}
	fmt.Printf("Packed %d class(es) into %s\n", len(a.Classes), *out)
	return nil
}

// handleListCommand processes `mbind list <archive.mar>...`.
func handleListCommand(args []string, w io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: mbind list <archive.mar>...")
	}
	for _, path := range args {
		a, err := archive.Read(path)
		if err != nil {
			return err
		}
		if err := listArchive(w, path, a); err != nil {
			return err
		}
	}
	return nil
}

func listArchive(w io.Writer, path string, a *archive.Archive) error {
	sum, err := archive.Digest(a)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s\n", path)
	fmt.Fprintf(w, "  name:   %s\n", a.Name)
	fmt.Fprintf(w, "  id:     %s\n", a.ID)
	fmt.Fprintf(w, "  digest: %s\n", hex.EncodeToString(sum[:]))

	classes := append([]archive.ClassDecl(nil), a.Classes...)
	sort.Slice(classes, func(i, j int) bool { return classes[i].Name < classes[j].Name })
	for _, c := range classes {
		header := c.Name
		if c.Super != "" {
			header += " extends " + c.Super
		}
		fmt.Fprintf(w, "  class %s\n", header)
		for _, f := range c.Fields {
			fmt.Fprintf(w, "    field  %s %s%s\n", f.Name, f.Desc, staticSuffix(f.Static))
		}
		for _, m := range c.Methods {
			impl := m.Symbol
			switch {
			case m.Native:
				impl = "native"
			case m.Abstract:
				impl = "abstract"
			}
			fmt.Fprintf(w, "    method %s%s%s -> %s\n", m.Name, m.Desc, staticSuffix(m.Static), impl)
		}
	}
	return nil
}

func staticSuffix(static bool) string {
	if static {
		return " (static)"
	}
	return ""
}

// packInto writes an archive, creating the output directory if needed.
func packInto(path string, a *archive.Archive) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return archive.Write(path, a)
}
