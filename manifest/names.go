package manifest

import (
	"fmt"
	"strings"
)

// BindingName returns the global an import of module binds: the last
// segment of its path. "lib/math" -> "math".
func BindingName(module string) string {
	if idx := strings.LastIndex(module, "/"); idx >= 0 {
		return module[idx+1:]
	}
	return module
}

// reservedNames lists the language keywords, which cannot be bound by import.
var reservedNames = map[string]bool{
	"let":      true,
	"show":     true,
	"if":       true,
	"else":     true,
	"repeat":   true,
	"while":    true,
	"function": true,
	"return":   true,
	"import":   true,
	"export":   true,
	"true":     true,
	"false":    true,
	"null":     true,
	"and":      true,
	"or":       true,
	"not":      true,
}

// IsReservedName reports whether name is a language keyword.
func IsReservedName(name string) bool {
	return reservedNames[name]
}

// ValidateModuleName checks that module is a usable import path: non-empty
// segments, and a final segment that is an identifier and not a keyword.
func ValidateModuleName(module string) error {
	if module == "" {
		return fmt.Errorf("empty module name")
	}
	for _, seg := range strings.Split(module, "/") {
		if seg == "" {
			return fmt.Errorf("module %q has an empty path segment", module)
		}
	}
	binding := BindingName(module)
	if !isIdentifier(binding) {
		return fmt.Errorf("module %q binds %q, which is not an identifier", module, binding)
	}
	if IsReservedName(binding) {
		return fmt.Errorf("module %q binds the reserved name %q", module, binding)
	}
	return nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
