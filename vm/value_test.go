package vm

import (
	"math"
	"testing"
)

// ---------------------------------------------------------------------------
// Value bit preservation
// ---------------------------------------------------------------------------

func TestValue_PrimitiveRoundTrip(t *testing.T) {
	if got := IntValue(math.MinInt32).Int(); got != math.MinInt32 {
		t.Errorf("Int = %d, want %d", got, math.MinInt32)
	}
	if got := LongValue(math.MaxInt64).Long(); got != math.MaxInt64 {
		t.Errorf("Long = %d, want %d", got, int64(math.MaxInt64))
	}
	if got := ByteValue(-128).Byte(); got != -128 {
		t.Errorf("Byte = %d, want -128", got)
	}
	if got := ShortValue(-32768).Short(); got != -32768 {
		t.Errorf("Short = %d, want -32768", got)
	}
	if got := CharValue(0xFFFF).Char(); got != 0xFFFF {
		t.Errorf("Char = %#x, want 0xffff", got)
	}
	if !BooleanValue(true).Bool() || BooleanValue(false).Bool() {
		t.Error("Bool round trip failed")
	}
}

func TestValue_FloatBitsPreserved(t *testing.T) {
	nan32 := math.Float32frombits(0x7fc00123)
	negZero32 := float32(math.Copysign(0, -1))
	for _, f := range []float32{nan32, negZero32, math.MaxFloat32, math.SmallestNonzeroFloat32} {
		if got := FloatValue(f).Float(); math.Float32bits(got) != math.Float32bits(f) {
			t.Errorf("Float bits = %#x, want %#x", math.Float32bits(got), math.Float32bits(f))
		}
		if got := JFloat(f).Float(); math.Float32bits(got) != math.Float32bits(f) {
			t.Errorf("JFloat bits = %#x, want %#x", math.Float32bits(got), math.Float32bits(f))
		}
	}

	nan64 := math.Float64frombits(0x7ff8000000000abc)
	negZero64 := math.Copysign(0, -1)
	for _, d := range []float64{nan64, negZero64, math.Inf(-1)} {
		if got := DoubleValue(d).Double(); math.Float64bits(got) != math.Float64bits(d) {
			t.Errorf("Double bits = %#x, want %#x", math.Float64bits(got), math.Float64bits(d))
		}
	}
}

func TestZeroValue(t *testing.T) {
	if ZeroValue(KindInt).Int() != 0 || ZeroValue(KindInt).Kind() != KindInt {
		t.Error("ZeroValue(int) should be int 0")
	}
	if !ZeroValue(KindReference).IsNull() {
		t.Error("ZeroValue(reference) should be null")
	}
}

// ---------------------------------------------------------------------------
// Descriptors
// ---------------------------------------------------------------------------

func TestParseTypeDesc(t *testing.T) {
	tests := []struct {
		desc string
		want TypeDesc
	}{
		{"I", TypeDesc{Kind: KindInt}},
		{"Z", TypeDesc{Kind: KindBoolean}},
		{"Ljava/lang/String;", TypeDesc{Kind: KindReference, Class: "java/lang/String"}},
		{"[F", TypeDesc{Kind: KindReference, Dims: 1, Elem: KindFloat}},
		{"[[I", TypeDesc{Kind: KindReference, Dims: 2, Elem: KindInt}},
		{"[Lcom/x/Y;", TypeDesc{Kind: KindReference, Class: "com/x/Y", Dims: 1, Elem: KindReference}},
	}
	for _, tt := range tests {
		got, err := ParseTypeDesc(tt.desc)
		if err != nil {
			t.Errorf("ParseTypeDesc(%q): %v", tt.desc, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseTypeDesc(%q) = %+v, want %+v", tt.desc, got, tt.want)
		}
		if got.String() != tt.desc {
			t.Errorf("String() = %q, want %q", got.String(), tt.desc)
		}
	}
}

func TestParseTypeDesc_Errors(t *testing.T) {
	for _, desc := range []string{"", "Q", "Ljava/lang/String", "L;", "[V", "II", "["} {
		if _, err := ParseTypeDesc(desc); err == nil {
			t.Errorf("ParseTypeDesc(%q) should fail", desc)
		}
	}
}

func TestParseMethodDesc(t *testing.T) {
	params, ret, err := ParseMethodDesc("(IF[[ILjava/lang/String;)Lcom/x/Y;")
	if err != nil {
		t.Fatalf("ParseMethodDesc: %v", err)
	}
	if len(params) != 4 {
		t.Fatalf("len(params) = %d, want 4", len(params))
	}
	if params[2].Dims != 2 || params[2].Elem != KindInt {
		t.Errorf("params[2] = %+v, want [[I", params[2])
	}
	if ret.Class != "com/x/Y" {
		t.Errorf("ret = %+v", ret)
	}

	for _, desc := range []string{"I)V", "(I", "(V)V", "()", "()VV"} {
		if _, _, err := ParseMethodDesc(desc); err == nil {
			t.Errorf("ParseMethodDesc(%q) should fail", desc)
		}
	}
}

func TestTypeDesc_Component(t *testing.T) {
	td, _ := ParseTypeDesc("[[I")
	if got := td.Component().String(); got != "[I" {
		t.Errorf("Component([[I) = %s, want [I", got)
	}
	if got := td.Component().Component().String(); got != "I" {
		t.Errorf("Component([I) = %s, want I", got)
	}
	td, _ = ParseTypeDesc("[Ljava/lang/String;")
	if got := td.Component().String(); got != "Ljava/lang/String;" {
		t.Errorf("Component = %s", got)
	}
}

// ---------------------------------------------------------------------------
// Native name mangling
// ---------------------------------------------------------------------------

func TestMangleNative(t *testing.T) {
	tests := []struct {
		class, method, desc string
		want                string
	}{
		{"com/jnibind/test/ContextTest", "DoSetup", "", "Java_com_jnibind_test_ContextTest_DoSetup"},
		{"com/x/Y", "foo", "(I)V", "Java_com_x_Y_foo__I"},
		{"com/x/Y", "foo", "()V", "Java_com_x_Y_foo__"},
		{"com/x/Y", "set_value", "(Ljava/lang/String;[I)V", "Java_com_x_Y_set_1value__Ljava_lang_String_2_3I"},
		{"com/x/Y$Inner", "m", "", "Java_com_x_Y_00024Inner_m"},
	}
	for _, tt := range tests {
		if got := MangleNative(tt.class, tt.method, tt.desc); got != tt.want {
			t.Errorf("MangleNative(%s, %s, %s) = %s, want %s", tt.class, tt.method, tt.desc, got, tt.want)
		}
	}
}
