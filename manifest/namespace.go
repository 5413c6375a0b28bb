package manifest

import (
	"fmt"
	"strings"
)

// NormalizeClassName converts a dotted class name to its binary form:
// "com.example.Foo" -> "com/example/Foo".
func NormalizeClassName(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), ".", "/")
}

// ValidateClassName checks that name is a binary class name: slash
// separated segments of letters, digits, '_' and '$', none starting with a
// digit.
func ValidateClassName(name string) error {
	if name == "" {
		return fmt.Errorf("empty class name")
	}
	for _, seg := range strings.Split(name, "/") {
		if seg == "" {
			return fmt.Errorf("class name %q has an empty segment", name)
		}
		for i, r := range seg {
			switch {
			case r == '_' || r == '$':
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			case r >= '0' && r <= '9':
				if i == 0 {
					return fmt.Errorf("segment %q of %q starts with a digit", seg, name)
				}
			default:
				return fmt.Errorf("class name %q contains %q", name, r)
			}
		}
	}
	return nil
}

// reservedPackages lists the package prefixes of the VM's boot classes.
// Archives may not define classes in them.
var reservedPackages = []string{
	"java/",
	"javax/",
	"jdk/",
	"sun/",
}

// IsReservedClass reports whether name lies in a package reserved for boot
// classes. Only whole leading segments match: "javafx/Foo" is fine.
func IsReservedClass(name string) bool {
	name = NormalizeClassName(name)
	for _, p := range reservedPackages {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}
