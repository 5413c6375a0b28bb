package bind

import (
	"testing"
	"unicode/utf16"

	"github.com/chazu/mbind/vm"
)

// ---------------------------------------------------------------------------
// Strings
// ---------------------------------------------------------------------------

var stringSamples = []string{
	"",
	"plain",
	"a\x00b\x00",
	"\x00leading",
	"héllo wörld",
	"世界",
	"emoji 🎉 pair",
}

func TestString_CopyRoundTrip(t *testing.T) {
	_, env := newTestJvm(t)
	for _, s := range stringSamples {
		ls := NewString(env, s)
		if got := ls.Copy(); got != s {
			t.Errorf("Copy = %q, want %q", got, s)
		}
		if got, want := ls.Len(), len(utf16.Encode([]rune(s))); got != want {
			t.Errorf("Len(%q) = %d, want %d", s, got, want)
		}
		ls.Delete()
	}
}

func TestString_PinnedBorrow(t *testing.T) {
	_, env := newTestJvm(t)
	for _, s := range stringSamples {
		ls := NewString(env, s)
		p := ls.Pin()
		if got := p.String(); got != s {
			t.Errorf("pinned = %q, want %q", got, s)
		}
		if p.Len() != len(p.Chars()) {
			t.Errorf("Len = %d, chars = %d", p.Len(), len(p.Chars()))
		}
		p.Release()
		p.Release()
		if p.Chars() != nil {
			t.Error("chars should be dropped after release")
		}
		if got := ls.Copy(); got != s {
			t.Errorf("copy after borrow = %q, want %q", got, s)
		}
	}
}

func TestString_PinnedBlocksVMCalls(t *testing.T) {
	_, env := newTestJvm(t)
	ls := NewString(env, "pinned")
	p := ls.Pin()
	expectViolation(t, vm.ContractCriticalRegion, func() { NewString(env, "inside") })
	p.Release()

	// VM calls work again once the borrow ends.
	if got := NewString(env, "after").Copy(); got != "after" {
		t.Errorf("after release = %q", got)
	}
}

func TestString_InvalidUTF8Replaced(t *testing.T) {
	_, env := newTestJvm(t)
	if got := NewString(env, "a\xffb").Copy(); got != "a�b" {
		t.Errorf("Copy = %q, want %q", got, "a�b")
	}
}

func TestString_GlobalAcrossFrames(t *testing.T) {
	_, env := newTestJvm(t)

	var g GlobalString
	_, err := WithLocalFrame(env, 2, func(f *Frame) error {
		g = NewString(env, "survivor").Global()
		return nil
	})
	if err != nil {
		t.Fatalf("WithLocalFrame: %v", err)
	}
	defer g.Delete(env)

	if g.IsNull() || g.Def() != StringClass {
		t.Fatalf("global = %+v", g)
	}
	if got := g.Local(env).Copy(); got != "survivor" {
		t.Errorf("global string = %q, want %q", got, "survivor")
	}
}

func TestString_AsObject(t *testing.T) {
	_, env := newTestJvm(t)
	o := NewString(env, "abc").Object()

	if n, err := CallAs[int32](o, "length"); err != nil || n != 3 {
		t.Errorf("length = %d, %v; want 3", n, err)
	}
	if eq, err := CallAs[bool](o, "equals", "abc"); err != nil || !eq {
		t.Errorf("equals = %t, %v; want true", eq, err)
	}
}
