package bytecode

import (
	"fmt"
	"strings"

	"github.com/chazu/pumpkin/pkg/ast"
)

// ErrorKind classifies a language-level failure.
type ErrorKind string

const (
	RuntimeError      ErrorKind = "RuntimeError"
	TypeError         ErrorKind = "TypeError"
	UndefinedVariable ErrorKind = "UndefinedVariableError"
	DivisionByZero    ErrorKind = "DivisionByZeroError"
	ResourceExhausted ErrorKind = "ResourceExhausted"
)

// UndefinedHint is attached to failed assignments to undeclared names.
const UndefinedHint = "Did you declare it with 'let'?"

// Error is a compile-time or run-time failure of a Pumpkin program.
// Which fields are set depends on Kind:
//
//	RuntimeError            Message, Hint
//	TypeError               Expected, Actual
//	UndefinedVariableError  Name, Hint
//	DivisionByZeroError     (none)
//	ResourceExhausted       Message
type Error struct {
	Kind     ErrorKind           `json:"kind"`
	Message  string              `json:"message,omitempty"`
	Expected string              `json:"expected,omitempty"`
	Actual   string              `json:"actual,omitempty"`
	Name     string              `json:"name,omitempty"`
	Hint     string              `json:"hint,omitempty"`
	Location *ast.SourceLocation `json:"location,omitempty"`
}

// NewRuntimeError creates a RuntimeError.
func NewRuntimeError(loc *ast.SourceLocation, format string, args ...interface{}) *Error {
	return &Error{Kind: RuntimeError, Message: fmt.Sprintf(format, args...), Location: loc}
}

// NewTypeError creates a TypeError.
func NewTypeError(expected, actual string, loc *ast.SourceLocation) *Error {
	return &Error{Kind: TypeError, Expected: expected, Actual: actual, Location: loc}
}

// NewUndefinedError creates an UndefinedVariableError.
func NewUndefinedError(name, hint string, loc *ast.SourceLocation) *Error {
	return &Error{Kind: UndefinedVariable, Name: name, Hint: hint, Location: loc}
}

// NewResourceError creates a ResourceExhausted error.
func NewResourceError(loc *ast.SourceLocation, format string, args ...interface{}) *Error {
	return &Error{Kind: ResourceExhausted, Message: fmt.Sprintf(format, args...), Location: loc}
}

func (e *Error) Error() string {
	var msg string
	switch e.Kind {
	case TypeError:
		msg = fmt.Sprintf("TypeError: expected %s, got %s", e.Expected, e.Actual)
	case UndefinedVariable:
		msg = fmt.Sprintf("UndefinedVariableError: '%s'", e.Name)
	case DivisionByZero:
		msg = "DivisionByZeroError: division by zero"
	default:
		msg = fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	if e.Location != nil && e.Location.Line > 0 {
		msg += fmt.Sprintf(" (line %d)", e.Location.Line)
	}
	return msg
}

// withLocation fills in loc if the error does not already carry one.
func (e *Error) withLocation(loc *ast.SourceLocation) *Error {
	if e.Location == nil {
		e.Location = loc
	}
	return e
}

// Pretty renders the error for people: a headline, the location, the
// offending source line when source is available, and any hint.
func (e *Error) Pretty(source string) string {
	var sb strings.Builder
	switch e.Kind {
	case RuntimeError:
		sb.WriteString("Runtime Error: " + e.Message)
	case TypeError:
		sb.WriteString(fmt.Sprintf("Type Error: Expected %s, but got %s.", e.Expected, e.Actual))
	case UndefinedVariable:
		sb.WriteString(fmt.Sprintf("Undefined Variable: '%s'.", e.Name))
	case DivisionByZero:
		sb.WriteString("Math Error: Division by zero is not allowed.")
	case ResourceExhausted:
		sb.WriteString("Resource Limits: " + e.Message)
	default:
		sb.WriteString(string(e.Kind) + ": " + e.Message)
	}
	sb.WriteString("\n")

	if e.Location != nil && e.Location.Line > 0 {
		if e.Location.Col > 0 {
			sb.WriteString(fmt.Sprintf("   at line %d, column %d", e.Location.Line, e.Location.Col))
		} else {
			sb.WriteString(fmt.Sprintf("   at line %d", e.Location.Line))
		}
		if line, ok := sourceLine(source, e.Location.Line); ok {
			sb.WriteString(fmt.Sprintf("\n   %d | %s", e.Location.Line, line))
		}
	} else {
		sb.WriteString("   (Unknown location)")
	}

	if e.Hint != "" {
		sb.WriteString("\n   Hint: " + e.Hint)
	}
	return sb.String()
}

func sourceLine(source string, line int) (string, bool) {
	if source == "" || line < 1 {
		return "", false
	}
	lines := strings.Split(source, "\n")
	if line > len(lines) {
		return "", false
	}
	return strings.TrimRight(lines[line-1], "\r"), true
}
