package bind

import (
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/chazu/mbind/vm"
	"github.com/chazu/mbind/vm/vmtest"
)

func iota32(n int) []int32 {
	out := make([]int32, n)
	for i := range out {
		out[i] = int32(i)
	}
	return out
}

// ---------------------------------------------------------------------------
// Primitive arrays
// ---------------------------------------------------------------------------

func TestArray_CopyAndCriticalAgree(t *testing.T) {
	j, env := newTestJvm(t)

	// Regular mode doubles in place.
	doubled, err := NewArrayFrom(env, iota32(10))
	if err != nil {
		t.Fatalf("NewArrayFrom: %v", err)
	}
	v := doubled.Pin(AccessCopy, true)
	if !v.IsCopy() || v.Mode() != AccessCopy {
		t.Errorf("copy pin mode = %s", v.Mode())
	}
	for i := range v.Data() {
		v.Data()[i] *= 2
	}
	v.Release()

	// Critical mode triples in place.
	tripled, err := NewArrayFrom(env, iota32(10))
	if err != nil {
		t.Fatalf("NewArrayFrom: %v", err)
	}
	c := tripled.PinCritical(true)
	if c.IsCopy() || c.Mode() != AccessCritical {
		t.Errorf("critical pin mode = %s", c.Mode())
	}
	for i := range c.Data() {
		c.Data()[i] *= 3
	}
	c.Release()

	for i, got := range doubled.Copy() {
		if want := int32(2 * i); got != want {
			t.Errorf("doubled[%d] = %d, want %d", i, got, want)
		}
	}
	for i, got := range tripled.Copy() {
		if want := int32(3 * i); got != want {
			t.Errorf("tripled[%d] = %d, want %d", i, got, want)
		}
	}

	s := mustStatic(t, env, arrayHelpersDef)
	if _, err := s.Call("assertInt1D", 0, 2, doubled); err != nil {
		t.Errorf("assertInt1D(doubled): %v", err)
	}
	if _, err := s.Call("assertInt1D", 0, 3, tripled); err != nil {
		t.Errorf("assertInt1D(tripled): %v", err)
	}

	stats := j.ArrayStats()
	if stats.CopyPins != 1 || stats.CriticalPins != 1 {
		t.Errorf("pins = %d copy, %d critical; want 1 and 1", stats.CopyPins, stats.CriticalPins)
	}
	if stats.CopiedElements != 10 {
		t.Errorf("CopiedElements = %d, want 10", stats.CopiedElements)
	}
}

func TestArray_CopyWithoutWriteBackDiscards(t *testing.T) {
	_, env := newTestJvm(t)
	a, _ := NewArrayFrom(env, []float64{1, 2, 3})

	v := a.Pin(AccessCopy, false)
	v.Data()[0] = 99
	v.Release()
	v.Release()

	if got := a.Copy(); !slices.Equal(got, []float64{1, 2, 3}) {
		t.Errorf("array = %v, want unchanged", got)
	}
	if v.Data() != nil {
		t.Error("Data should be nil after release")
	}
}

func TestArray_DefaultModeFollowsThreshold(t *testing.T) {
	_, env := newTestJvm(t)

	small, _ := NewArray[int64](env, 63)
	v := small.Pin(AccessDefault, false)
	if v.Mode() != AccessCopy {
		t.Errorf("63 elements pinned %s, want copy", v.Mode())
	}
	v.Release()

	large, _ := NewArray[int64](env, 64)
	v = large.Pin(AccessDefault, false)
	if v.Mode() != AccessCritical {
		t.Errorf("64 elements pinned %s, want critical", v.Mode())
	}
	v.Release()
}

func TestArray_CriticalDisabledCopies(t *testing.T) {
	opts := testOptions()
	opts.AllowCriticalSections = false
	_, env := newTestJvmWith(t, NewLibrary("mbind-nocritical", opts))

	a, _ := NewArrayFrom(env, iota32(100))
	v := a.PinCritical(true)
	if v.Mode() != AccessCopy {
		t.Errorf("critical pin with critical sections disabled took %s", v.Mode())
	}
	v.Data()[5] = -5
	v.Release()
	if got := a.Get(5); got != -5 {
		t.Errorf("a[5] = %d, want -5", got)
	}
}

func TestArray_CriticalRegionBlocksVMCalls(t *testing.T) {
	_, env := newTestJvm(t)
	a, _ := NewArrayFrom(env, iota32(8))

	v := a.PinCritical(false)
	expectViolation(t, vm.ContractCriticalRegion, func() { a.Len() })
	v.Release()

	if n := a.Len(); n != 8 {
		t.Errorf("Len after release = %d, want 8", n)
	}
}

func TestArray_CriticalReadEqualsCopyRead(t *testing.T) {
	_, env := newTestJvm(t)

	check := func(name string, equal func() bool) {
		t.Helper()
		if !equal() {
			t.Errorf("%s: critical and copy reads differ", name)
		}
	}
	bools, _ := NewArrayFrom(env, []bool{true, false, true})
	check("bool", func() bool { return pinEqual(bools) })
	chars, _ := NewArrayFrom(env, []uint16{'a', 0, 0xffff})
	check("char", func() bool { return pinEqual(chars) })
	bytes, _ := NewArrayFrom(env, []int8{-128, 0, 127})
	check("byte", func() bool { return pinEqual(bytes) })
	shorts, _ := NewArrayFrom(env, []int16{-1, 2, math.MaxInt16})
	check("short", func() bool { return pinEqual(shorts) })
	longs, _ := NewArrayFrom(env, []int64{math.MinInt64, 0, math.MaxInt64})
	check("long", func() bool { return pinEqual(longs) })
	floats, _ := NewArrayFrom(env, []float32{float32(math.Copysign(0, -1)), 1.5, float32(math.Inf(1))})
	check("float", func() bool { return pinEqual(floats) })
}

// pinEqual compares a critical read with a copy read.
func pinEqual[T Primitive](a LocalArray[T]) bool {
	c := a.Pin(AccessCopy, false)
	copied := slices.Clone(c.Data())
	c.Release()

	p := a.PinCritical(false)
	pinned := slices.Clone(p.Data())
	p.Release()

	return vmtest.CompareElements(pinned, copied) == nil
}

func TestArray_GetSetAndBounds(t *testing.T) {
	_, env := newTestJvm(t)
	a, _ := NewArray[float32](env, 4)

	a.Set(3, 2.5)
	if got := a.Get(3); got != 2.5 {
		t.Errorf("a[3] = %g, want 2.5", got)
	}
	a.Write(0, []float32{1, 2})
	if got := a.Copy(); !slices.Equal(got, []float32{1, 2, 0, 2.5}) {
		t.Errorf("array = %v", got)
	}
	expectViolation(t, vm.ContractArrayBounds, func() { a.Get(4) })
	expectViolation(t, vm.ContractArrayBounds, func() { a.Write(3, []float32{1, 2}) })
}

func TestArray_WrapChecksElementType(t *testing.T) {
	_, env := newTestJvm(t)
	a, _ := NewArray[int32](env, 2)

	if got := WrapArray[int32](env, a.Release()); got.Len() != 2 {
		t.Errorf("Len = %d, want 2", got.Len())
	}
	expectViolation(t, vm.ContractWrongObject, func() { WrapArray[int64](env, a.Release()) })
}

func TestArray_SliceArgumentsMarshaled(t *testing.T) {
	_, env := newTestJvm(t)
	s := mustStatic(t, env, arrayHelpersDef)

	if _, err := s.Call("assertInt1D", 5, 1, []int32{5, 6, 7}); err != nil {
		t.Errorf("assertInt1D([]int32): %v", err)
	}
	if _, err := s.Call("assertDouble1D", 0.5, 0.25, []float64{0.5, 0.75, 1}); err != nil {
		t.Errorf("assertDouble1D([]float64): %v", err)
	}
	if _, err := s.Call("assertInt1D", 0, 1, []int64{0, 1}); !errors.Is(err, ErrNoOverload) {
		t.Errorf("assertInt1D([]int64) = %v, want ErrNoOverload", err)
	}

	_, err := s.Call("assertInt1D", 0, 1, []int32{0, 2})
	var exc *ManagedException
	if !errors.As(err, &exc) || exc.ClassName != vmtest.AssertionError {
		t.Fatalf("failed assertion = %v, want %s", err, vmtest.AssertionError)
	}
	Catch(env)
}

// ---------------------------------------------------------------------------
// Rank-2 arrays
// ---------------------------------------------------------------------------

func TestArray2_RunningCounter(t *testing.T) {
	_, env := newTestJvm(t)
	src := [][]int32{iota32(6), make([]int32, 6), make([]int32, 6)}
	for i := 1; i < 3; i++ {
		for j := range src[i] {
			src[i][j] = int32(6*i + j)
		}
	}
	m, err := NewArray2From(env, src)
	if err != nil {
		t.Fatalf("NewArray2From: %v", err)
	}
	if m.Rows() != 3 || m.Rank() != 2 {
		t.Fatalf("Rows = %d, Rank = %d", m.Rows(), m.Rank())
	}

	counter := int32(0)
	for i := 0; i < m.Rows(); i++ {
		row := m.Row(i)
		v := row.Pin(AccessDefault, false)
		for j, got := range v.Data() {
			if got != counter || got != int32(6*i+j) {
				t.Errorf("arr[%d][%d] = %d, want %d", i, j, got, counter)
			}
			counter++
		}
		v.Release()
		row.Delete()
	}

	s := mustStatic(t, env, arrayHelpersDef)
	if _, err := s.Call("assertInt2D", 0, m); err != nil {
		t.Errorf("assertInt2D: %v", err)
	}
}

func TestArray2_ZeroedRowsAndSetRow(t *testing.T) {
	_, env := newTestJvm(t)
	m, err := NewArray2[float64](env, 2, 3)
	if err != nil {
		t.Fatalf("NewArray2: %v", err)
	}
	want := [][]float64{{0, 0, 0}, {0, 0, 0}}
	if got := m.Copy(); !slices.EqualFunc(got, want, slices.Equal) {
		t.Errorf("zeroed = %v", got)
	}

	row, _ := NewArrayFrom(env, []float64{1, 2})
	if err := m.SetRow(1, row); err != nil {
		t.Fatalf("SetRow: %v", err)
	}
	got := m.Copy()
	if len(got[1]) != 2 || got[1][1] != 2 {
		t.Errorf("rows may differ in length: got %v", got)
	}
}

// ---------------------------------------------------------------------------
// Reference arrays
// ---------------------------------------------------------------------------

func TestStringArray_DefaultsAndAssertions(t *testing.T) {
	_, env := newTestJvm(t)
	s := mustStatic(t, env, arrayHelpersDef)

	empty, err := NewStringArray(env, 3)
	if err != nil {
		t.Fatalf("NewStringArray: %v", err)
	}
	if got := empty.Strings(); !slices.Equal(got, []string{"", "", ""}) {
		t.Errorf("defaults = %q, want empty strings", got)
	}
	if _, err := s.Call("assertString1D", empty, false); err != nil {
		t.Errorf("assertString1D(empty, false): %v", err)
	}

	words := []string{"Foo", "Baz", "Bar"}
	arr, err := NewStringArrayFrom(env, words)
	if err != nil {
		t.Fatalf("NewStringArrayFrom: %v", err)
	}
	if _, err := s.Call("assertString1D", arr, true); err != nil {
		t.Errorf("assertString1D(arr, true): %v", err)
	}
	if _, err := s.Call("assertString1D", words, true); err != nil {
		t.Errorf("assertString1D([]string, true): %v", err)
	}

	if err := arr.SetString(1, "Qux"); err != nil {
		t.Fatalf("SetString: %v", err)
	}
	if got := arr.GetString(1); got != "Qux" {
		t.Errorf("arr[1] = %q, want Qux", got)
	}
	if arr.Rank() != 1 || arr.Elem().Descriptor(nil) != "Ljava/lang/String;" {
		t.Errorf("Rank = %d, Elem = %s", arr.Rank(), arr.Elem())
	}
}

func TestObjectArray_ElementsAndRank2(t *testing.T) {
	_, env := newTestJvm(t)
	s := mustStatic(t, env, arrayHelpersDef)

	row, err := NewObjectArray(env, helperDef, 3)
	if err != nil {
		t.Fatalf("NewObjectArray: %v", err)
	}
	if !row.Get(0).IsNull() {
		t.Error("object array elements should start null")
	}
	for i := 0; i < 3; i++ {
		v := int32(i)
		if err := row.Set(i, mustNew(t, env, helperDef, v, v, v)); err != nil {
			t.Fatalf("Set(%d): %v", i, err)
		}
	}
	if got := row.Get(2); got.Def() != helperDef || fieldInts(t, got) != [3]int32{2, 2, 2} {
		t.Errorf("row[2] = %v", got)
	}
	if _, err := s.Call("assertObject1D", 0, row); err != nil {
		t.Errorf("assertObject1D: %v", err)
	}

	grid, err := NewArrayOf(env, ArrayOf(ObjectOf(helperDef), 1), 2)
	if err != nil {
		t.Fatalf("NewArrayOf: %v", err)
	}
	counter := int32(0)
	for i := 0; i < 2; i++ {
		r, _ := NewObjectArray(env, helperDef, 3)
		for j := 0; j < 3; j++ {
			r.Set(j, mustNew(t, env, helperDef, counter, counter, counter))
			counter++
		}
		if err := grid.Set(i, r); err != nil {
			t.Fatalf("grid.Set(%d): %v", i, err)
		}
	}
	if grid.Rank() != 2 {
		t.Errorf("grid Rank = %d, want 2", grid.Rank())
	}
	if got := fieldInts(t, grid.Row(1).Get(0)); got != [3]int32{3, 3, 3} {
		t.Errorf("grid[1][0] = %v", got)
	}
	if _, err := s.Call("assertObject2D", 0, grid); err != nil {
		t.Errorf("assertObject2D: %v", err)
	}
}

func TestObjectArray_StoreOfWrongClass(t *testing.T) {
	_, env := newTestJvm(t)
	arr, _ := NewObjectArray(env, helperDef, 1)

	err := arr.Set(0, NewString(env, "not a helper"))
	var exc *ManagedException
	if !errors.As(err, &exc) || exc.ClassName != "java/lang/ArrayStoreException" {
		t.Fatalf("Set(string) = %v, want ArrayStoreException", err)
	}
	if Catch(env) == nil {
		t.Error("the exception should stay pending until caught")
	}
	if !arr.Get(0).IsNull() {
		t.Error("a rejected store must not change the element")
	}
}

func TestObjectArray_RejectsWrongRankArgument(t *testing.T) {
	_, env := newTestJvm(t)
	s := mustStatic(t, env, arrayHelpersDef)
	row, _ := NewObjectArray(env, helperDef, 1)

	if _, err := s.Call("assertObject2D", 0, row); !errors.Is(err, ErrNoOverload) {
		t.Errorf("assertObject2D(rank 1) = %v, want ErrNoOverload", err)
	}
}

func TestAccessMode_String(t *testing.T) {
	for m, want := range map[AccessMode]string{
		AccessDefault:  "default",
		AccessCopy:     "copy",
		AccessCritical: "critical",
		AccessMode(7):  "unknown",
	} {
		if got := m.String(); got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	}
}
