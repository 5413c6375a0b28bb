package vmtest

import (
	"fmt"
	"math"

	"github.com/chazu/mbind/vm"
)

// ArrayTestHelpersDef declares static assertions over arrays. Each throws
// java/lang/AssertionError on the first mismatch.
//
//	assertInt1D(base, stride, int[])        arr[i] == base + i*stride
//	assertDouble1D(base, stride, double[])  same, within 1e-9
//	assertInt2D(base, int[][])              row-major running count from base
//	assertString1D(String[], fooBazBar)     {"Foo","Baz","Bar"} or none of them
//	assertObject1D(offset, helper[])        intValN == offset + i
//	assertObject2D(offset, helper[][])      running count from offset
func ArrayTestHelpersDef() *vm.ClassDef {
	helperArr := "[" + descHelper
	return &vm.ClassDef{
		Name: ArrayTestHelpers,
		Methods: []vm.MethodDef{
			{Name: "assertInt1D", Desc: "(II[I)V", Static: true, Impl: func(env *vm.Env, this *vm.Object, args []vm.Value) vm.Value {
				base, stride := args[0].Int(), args[1].Int()
				for i, v := range intsOf(args[2]) {
					if want := base + int32(i)*stride; v != want {
						return Fail(env, "int[%d] = %d, want %d", i, v, want)
					}
				}
				return vm.Void
			}},
			{Name: "assertDouble1D", Desc: "(DD[D)V", Static: true, Impl: func(env *vm.Env, this *vm.Object, args []vm.Value) vm.Value {
				base, stride := args[0].Double(), args[1].Double()
				arr := args[2].Object()
				if arr == nil {
					return Fail(env, "null array")
				}
				for i, v := range arr.Primitives().([]float64) {
					if want := base + float64(i)*stride; math.Abs(v-want) > 1e-9 {
						return Fail(env, "double[%d] = %g, want %g", i, v, want)
					}
				}
				return vm.Void
			}},
			{Name: "assertInt2D", Desc: "(I[[I)V", Static: true, Impl: func(env *vm.Env, this *vm.Object, args []vm.Value) vm.Value {
				cur := args[0].Int()
				arr := args[1].Object()
				if arr == nil {
					return Fail(env, "null array")
				}
				for i, row := range arr.Elements() {
					for j, v := range intsOf(vm.RefValue(row)) {
						if v != cur {
							return Fail(env, "int[%d][%d] = %d, want %d", i, j, v, cur)
						}
						cur++
					}
				}
				return vm.Void
			}},
			{Name: "assertString1D", Desc: "([" + descString + "Z)V", Static: true, Impl: func(env *vm.Env, this *vm.Object, args []vm.Value) vm.Value {
				want := []string{"Foo", "Baz", "Bar"}
				arr := args[0].Object()
				if arr == nil {
					return Fail(env, "null array")
				}
				elems := arr.Elements()
				if args[1].Bool() && len(elems) != len(want) {
					return Fail(env, "length = %d, want %d", len(elems), len(want))
				}
				for i := 0; i < len(want) && i < len(elems); i++ {
					got := ""
					if elems[i] != nil {
						got = elems[i].GoString()
					}
					if (got == want[i]) != args[1].Bool() {
						return Fail(env, "String[%d] = %q", i, got)
					}
				}
				return vm.Void
			}},
			{Name: "assertObject1D", Desc: "(I" + helperArr + ")V", Static: true, Impl: func(env *vm.Env, this *vm.Object, args []vm.Value) vm.Value {
				off := args[0].Int()
				arr := args[1].Object()
				if arr == nil {
					return Fail(env, "null array")
				}
				for i, obj := range arr.Elements() {
					v := off + int32(i)
					if obj == nil || HelperInts(obj) != [3]int32{v, v, v} {
						return Fail(env, "element %d = %v, want all fields %d", i, obj, v)
					}
				}
				return vm.Void
			}},
			{Name: "assertObject2D", Desc: "(I[" + helperArr + ")V", Static: true, Impl: func(env *vm.Env, this *vm.Object, args []vm.Value) vm.Value {
				cur := args[0].Int()
				arr := args[1].Object()
				if arr == nil {
					return Fail(env, "null array")
				}
				for i, row := range arr.Elements() {
					if row == nil {
						return Fail(env, "row %d is null", i)
					}
					for j, obj := range row.Elements() {
						if obj == nil || HelperInts(obj) != [3]int32{cur, cur, cur} {
							return Fail(env, "element [%d][%d] = %v, want all fields %d", i, j, obj, cur)
						}
						cur++
					}
				}
				return vm.Void
			}},
		},
	}
}

func intsOf(v vm.Value) []int32 {
	if obj := v.Object(); obj != nil {
		if p, ok := obj.Primitives().([]int32); ok {
			return p
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Native-side comparison
// ---------------------------------------------------------------------------

// Tolerance returns the per-type comparison tolerance used by
// CompareElements: 1 for float32, 1e-9 for float64, exact otherwise.
func Tolerance(sample any) float64 {
	switch sample.(type) {
	case []float32:
		return 1
	case []float64:
		return 1e-9
	}
	return 0
}

// CompareElements compares two primitive slices of the same type
// elementwise, allowing the type's tolerance for floating point values.
func CompareElements(got, want any) error {
	tol := Tolerance(want)
	switch w := want.(type) {
	case []bool:
		g, ok := got.([]bool)
		if !ok {
			return fmt.Errorf("got %T, want %T", got, want)
		}
		if len(g) != len(w) {
			return fmt.Errorf("length = %d, want %d", len(g), len(w))
		}
		for i := range w {
			if g[i] != w[i] {
				return fmt.Errorf("[%d] = %v, want %v", i, g[i], w[i])
			}
		}
		return nil
	case []uint16:
		return compareNumeric(got, w, tol)
	case []int8:
		return compareNumeric(got, w, tol)
	case []int16:
		return compareNumeric(got, w, tol)
	case []int32:
		return compareNumeric(got, w, tol)
	case []int64:
		return compareNumeric(got, w, tol)
	case []float32:
		return compareNumeric(got, w, tol)
	case []float64:
		return compareNumeric(got, w, tol)
	}
	return fmt.Errorf("unsupported element type %T", want)
}

type number interface {
	uint16 | int8 | int16 | int32 | int64 | float32 | float64
}

func compareNumeric[T number](got any, want []T, tol float64) error {
	g, ok := got.([]T)
	if !ok {
		return fmt.Errorf("got %T, want %T", got, want)
	}
	if len(g) != len(want) {
		return fmt.Errorf("length = %d, want %d", len(g), len(want))
	}
	for i := range want {
		if math.Abs(float64(g[i])-float64(want[i])) > tol {
			return fmt.Errorf("[%d] = %v, want %v", i, g[i], want[i])
		}
	}
	return nil
}
