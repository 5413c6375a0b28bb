package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[vm]
default-loader-class = "com.jnibind.test.ClassLoaderTest"
array-copy-threshold = 128
abort-on-misuse = false
allow-critical-sections = false
member-cache-size = 16

[[library]]
name = "context_test_jni"

[[library]]
name = "array_test_jni"

[[archive]]
name = "remote"
path = "testdata/helper.mar"
parent = "boot"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.VM.DefaultLoaderClass != "com/jnibind/test/ClassLoaderTest" {
		t.Errorf("default loader class = %q, want slashed form", m.VM.DefaultLoaderClass)
	}
	if m.VM.ArrayCopyThreshold != 128 {
		t.Errorf("array copy threshold = %d, want 128", m.VM.ArrayCopyThreshold)
	}
	if m.VM.AbortOnMisuse || m.VM.AllowCriticalSections {
		t.Error("boolean options not decoded")
	}
	if len(m.Libraries) != 2 || m.Libraries[1].Name != "array_test_jni" {
		t.Errorf("libraries = %v", m.Libraries)
	}
	if len(m.Archives) != 1 || m.Archives[0].Parent != ParentBoot {
		t.Fatalf("archives = %v", m.Archives)
	}
	if got, want := m.ArchivePath(m.Archives[0]), filepath.Join(m.Dir, "testdata", "helper.mar"); got != want {
		t.Errorf("archive path = %q, want %q", got, want)
	}

	opts := m.Options()
	if opts.ArrayCopyThreshold != 128 || opts.MemberCacheSize != 16 || opts.AbortOnMisuse {
		t.Errorf("options = %+v", opts)
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[[archive]]
path = "lib/widgets.mar"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.VM.ArrayCopyThreshold != 64 {
		t.Errorf("default threshold = %d, want 64", m.VM.ArrayCopyThreshold)
	}
	if !m.VM.AbortOnMisuse || !m.VM.AllowCriticalSections {
		t.Error("boolean defaults should be true")
	}
	if m.VM.MemberCacheSize != 1024 {
		t.Errorf("default member cache = %d, want 1024", m.VM.MemberCacheSize)
	}
	if m.Archives[0].Name != "widgets" {
		t.Errorf("archive name = %q, want widgets", m.Archives[0].Name)
	}
}

func TestLoadManifestZeroThreshold(t *testing.T) {
	m, err := Parse("[vm]\narray-copy-threshold = 0\n")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if m.Options().ArrayCopyThreshold != 0 {
		t.Errorf("explicit zero threshold = %d, want 0", m.Options().ArrayCopyThreshold)
	}
}

func TestLoadManifestUnknownKeys(t *testing.T) {
	_, err := Parse(`
[vm]
array-copy-treshold = 10

[image]
output = "x"
`)
	if !errors.Is(err, ErrUnknownKeys) {
		t.Fatalf("err = %v, want ErrUnknownKeys", err)
	}
	for _, key := range []string{"vm.array-copy-treshold", "image"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error %q does not name %s", err, key)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"negative threshold", "[vm]\narray-copy-threshold = -1\n", "must not be negative"},
		{"bad anchor class", "[vm]\ndefault-loader-class = \"com..Foo\"\n", "default-loader-class"},
		{"library without name", "[[library]]\n", "no name"},
		{"duplicate library", "[[library]]\nname = \"a\"\n[[library]]\nname = \"a\"\n", "listed twice"},
		{"archive without path", "[[archive]]\nname = \"a\"\n", "no path"},
		{"reserved archive name", "[[archive]]\nname = \"boot\"\npath = \"b.mar\"\n", "reserved"},
		{"duplicate archive", "[[archive]]\npath = \"x/a.mar\"\n[[archive]]\npath = \"y/a.mar\"\n", "listed twice"},
	}

	for _, tc := range tests {
		_, err := Parse(tc.content)
		if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
			t.Errorf("%s: err = %v, want %q", tc.name, err, tc.wantErr)
		}
	}
}

func TestFindAndLoad(t *testing.T) {
	// Create nested directory structure
	dir := t.TempDir()
	subDir := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeManifest(t, dir, "[[library]]\nname = \"found\"\n")

	// Should find manifest when starting from a deep subdirectory
	m, err := FindAndLoad(subDir)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if m.Libraries[0].Name != "found" {
		t.Errorf("library = %q, want found", m.Libraries[0].Name)
	}
	if m.LockFilePath() != filepath.Join(m.Dir, "mbind.lock") {
		t.Errorf("lock path = %q", m.LockFilePath())
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	dir := t.TempDir()
	m, err := FindAndLoad(dir)
	if err != nil {
		t.Fatalf("FindAndLoad error: %v", err)
	}
	if m != nil {
		t.Error("expected nil manifest when no mbind.toml exists")
	}
}

func TestLockFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, "mbind.lock")

	lf := &LockFile{
		Archives: []LockedArchive{
			{Name: "remote", Path: "/app/helper.mar", ID: "4b1c", Digest: "abc123"},
			{Name: "widgets", Path: "/app/widgets.mar", Digest: "def456"},
		},
	}

	if err := WriteLock(lockPath, lf); err != nil {
		t.Fatalf("WriteLock failed: %v", err)
	}

	loaded, err := ReadLock(lockPath)
	if err != nil {
		t.Fatalf("ReadLock failed: %v", err)
	}

	if len(loaded.Archives) != 2 {
		t.Fatalf("expected 2 archives, got %d", len(loaded.Archives))
	}
	if loaded.Archives[0].Digest != "abc123" {
		t.Errorf("archive[0].Digest = %q, want abc123", loaded.Archives[0].Digest)
	}

	found := loaded.Find("widgets")
	if found == nil || found.Digest != "def456" {
		t.Errorf("Find(widgets) = %v, want digest def456", found)
	}
	if loaded.Find("nonexistent") != nil {
		t.Error("Find(nonexistent) should be nil")
	}
}

func TestReadLockNotFound(t *testing.T) {
	lf, err := ReadLock("/nonexistent/path/mbind.lock")
	if err != nil {
		t.Errorf("ReadLock should return nil,nil for missing file, got err: %v", err)
	}
	if lf != nil {
		t.Errorf("ReadLock should return nil for missing file, got %v", lf)
	}
	if lf.Find("x") != nil {
		t.Error("a nil lock file has no records")
	}
}
