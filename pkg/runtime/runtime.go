// Package runtime is the host boundary of the Pumpkin core. It accepts a
// program (as an AST or as the parser's JSON document), runs it to
// completion, and reports a structured ExecutionResult.
package runtime

import (
	"context"
	"errors"
	"io"

	"github.com/tliron/commonlog"

	"github.com/chazu/pumpkin/pkg/ast"
	"github.com/chazu/pumpkin/pkg/bytecode"
)

var log = commonlog.GetLogger("pumpkin.runtime")

// Limits are the execution fuses applied to every run.
type Limits = bytecode.Limits

// ExecutionResult is what a host receives after running a program.
// Output holds every line printed, including those printed before a failure.
type ExecutionResult struct {
	Success     bool                      `json:"success"`
	Output      []string                  `json:"output"`
	ReturnValue *bytecode.Value           `json:"return_value"`
	Error       *bytecode.Error           `json:"error"`
	Exports     map[string]bytecode.Value `json:"exports,omitempty"`
}

// Config collects the options of a run.
type Config struct {
	Limits  Limits
	Modules map[string]bytecode.Value
	Output  func(string)
	Trace   io.Writer
}

// Option configures Execute and sessions.
type Option func(*Config)

// WithLimits sets the execution fuses.
func WithLimits(l Limits) Option {
	return func(c *Config) { c.Limits = l }
}

// WithModules registers values that import can bind.
func WithModules(modules map[string]bytecode.Value) Option {
	return func(c *Config) {
		if c.Modules == nil {
			c.Modules = make(map[string]bytecode.Value, len(modules))
		}
		for name, v := range modules {
			c.Modules[name] = v
		}
	}
}

// WithOutput streams printed lines to hook as they are produced.
func WithOutput(hook func(string)) Option {
	return func(c *Config) { c.Output = hook }
}

// WithTrace writes an instruction trace to w.
func WithTrace(w io.Writer) Option {
	return func(c *Config) { c.Trace = w }
}

func newConfig(opts []Option) Config {
	cfg := Config{Limits: bytecode.DefaultLimits()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func (c Config) vmOptions() []bytecode.Option {
	opts := []bytecode.Option{bytecode.WithLimits(c.Limits)}
	if len(c.Modules) > 0 {
		opts = append(opts, bytecode.WithModules(c.Modules))
	}
	if c.Output != nil {
		opts = append(opts, bytecode.WithOutput(c.Output))
	}
	if c.Trace != nil {
		opts = append(opts, bytecode.WithTrace(c.Trace))
	}
	return opts
}

// Execute compiles and runs prog in a fresh global environment.
func Execute(ctx context.Context, prog *ast.Program, opts ...Option) *ExecutionResult {
	return run(ctx, prog, bytecode.NewEnvironment(nil), newConfig(opts))
}

// ExecuteJSON is Execute for a JSON-encoded program. A document that cannot
// be decoded is reported as a RuntimeError in the result.
func ExecuteJSON(ctx context.Context, data []byte, opts ...Option) *ExecutionResult {
	prog, failed := parseProgram(data)
	if failed != nil {
		return failed
	}
	return Execute(ctx, prog, opts...)
}

// ParseProgram decodes a JSON program document. A document that cannot be
// decoded is reported as a RuntimeError.
func ParseProgram(data []byte) (*ast.Program, *bytecode.Error) {
	prog, err := ast.ParseBytes(data)
	if err != nil {
		log.Debugf("rejecting AST document: %v", err)
		return nil, bytecode.NewRuntimeError(nil, "JSON Parse Error: %v", err)
	}
	return prog, nil
}

func parseProgram(data []byte) (*ast.Program, *ExecutionResult) {
	prog, perr := ParseProgram(data)
	if perr != nil {
		return nil, &ExecutionResult{Output: []string{}, Error: perr}
	}
	return prog, nil
}

func run(ctx context.Context, prog *ast.Program, env *bytecode.Environment, cfg Config) *ExecutionResult {
	fn, err := bytecode.Compile(prog)
	if err != nil {
		return failure(nil, err)
	}
	return runFunction(ctx, fn, env, cfg)
}

// RunFunction runs an already compiled script, such as one loaded from a
// program image, in a fresh global environment.
func RunFunction(ctx context.Context, fn *bytecode.Function, opts ...Option) *ExecutionResult {
	return runFunction(ctx, fn, bytecode.NewEnvironment(nil), newConfig(opts))
}

func runFunction(ctx context.Context, fn *bytecode.Function, env *bytecode.Environment, cfg Config) *ExecutionResult {
	vm := bytecode.New(fn, env, cfg.vmOptions()...)
	v, err := vm.RunContext(ctx)
	log.Debugf("ran %s: %d instructions", fn.Name, vm.InstructionCount())
	if err != nil {
		return failure(vm, err)
	}
	return &ExecutionResult{
		Success:     true,
		Output:      vm.Output(),
		ReturnValue: &v,
		Exports:     vm.Exports(),
	}
}

func failure(vm *bytecode.VM, err error) *ExecutionResult {
	res := &ExecutionResult{Output: []string{}, Error: AsError(err)}
	if vm != nil {
		res.Output = vm.Output()
	}
	return res
}

// AsError returns err as a language error, wrapping foreign errors as
// RuntimeError.
func AsError(err error) *bytecode.Error {
	var perr *bytecode.Error
	if errors.As(err, &perr) {
		return perr
	}
	return bytecode.NewRuntimeError(nil, "%v", err)
}
