package manifest

import "testing"

func TestNormalizeClassName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"com.example.Foo", "com/example/Foo"},
		{"com/example/Foo", "com/example/Foo"},
		{" Outer$Inner ", "Outer$Inner"},
		{"", ""},
	}

	for _, tc := range tests {
		got := NormalizeClassName(tc.input)
		if got != tc.want {
			t.Errorf("NormalizeClassName(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestValidateClassName(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"com/jnibind/test/ClassLoaderTest", false},
		{"BuilderTest$Builder", false},
		{"a/b2/_c", false},
		{"", true},
		{"com//Foo", true},
		{"com/Foo/", true},
		{"com/2fast/Foo", true},
		{"[I", true},
		{"Ljava/lang/String;", true},
		{"com/ex ample", true},
	}

	for _, tc := range tests {
		err := ValidateClassName(tc.name)
		if (err != nil) != tc.wantErr {
			t.Errorf("ValidateClassName(%q) = %v, wantErr %v", tc.name, err, tc.wantErr)
		}
	}
}

func TestIsReservedClass(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"java/lang/String", true},
		{"java.util.List", true},
		{"javax/crypto/Cipher", true},
		{"sun/misc/Unsafe", true},
		{"javafx/Stage", false},
		{"com/jnibind/test/CustomException", false},
		{"Object", false},
	}

	for _, tc := range tests {
		got := IsReservedClass(tc.name)
		if got != tc.want {
			t.Errorf("IsReservedClass(%q) = %v, want %v", tc.name, got, tc.want)
		}
	}
}
