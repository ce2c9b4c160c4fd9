package bytecode

import "sort"

// Environment is a parent-linked chain of name bindings. The VM uses a
// single level as its global scope; hosts may chain a prelude underneath.
type Environment struct {
	values map[string]Value
	parent *Environment
}

// NewEnvironment creates an empty scope enclosed by parent (which may be nil).
func NewEnvironment(parent *Environment) *Environment {
	return &Environment{values: make(map[string]Value), parent: parent}
}

// Define binds name in this scope, replacing any existing binding here.
func (e *Environment) Define(name string, v Value) {
	e.values[name] = v
}

// Get looks name up, walking outward through parents.
func (e *Environment) Get(name string) (Value, bool) {
	for env := e; env != nil; env = env.parent {
		if v, ok := env.values[name]; ok {
			return v, true
		}
	}
	return Null, false
}

// Assign rebinds name in the innermost scope that defines it.
func (e *Environment) Assign(name string, v Value) error {
	for env := e; env != nil; env = env.parent {
		if _, ok := env.values[name]; ok {
			env.values[name] = v
			return nil
		}
	}
	return NewUndefinedError(name, UndefinedHint, nil)
}

// Names returns the names bound in this scope only, sorted.
func (e *Environment) Names() []string {
	names := make([]string, 0, len(e.values))
	for name := range e.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Parent returns the enclosing scope.
func (e *Environment) Parent() *Environment {
	return e.parent
}
