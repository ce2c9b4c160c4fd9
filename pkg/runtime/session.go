package runtime

import (
	"context"
	"sync"

	"github.com/chazu/pumpkin/pkg/ast"
	"github.com/chazu/pumpkin/pkg/bytecode"
)

// Session keeps one global environment alive across runs, so a binding made
// by one program is visible to the next (REPL mode).
//
// A Session is safe for concurrent use; runs are serialized.
type Session struct {
	mu   sync.Mutex
	env  *bytecode.Environment
	cfg  Config
	runs int
}

// NewSession creates a session with an empty global environment.
func NewSession(opts ...Option) *Session {
	return &Session{
		env: bytecode.NewEnvironment(nil),
		cfg: newConfig(opts),
	}
}

// Run compiles and runs prog against the session's globals. Bindings made
// before a failure are kept.
func (s *Session) Run(ctx context.Context, prog *ast.Program) *ExecutionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs++
	return run(ctx, prog, s.env, s.cfg)
}

// RunJSON is Run for a JSON-encoded program.
func (s *Session) RunJSON(ctx context.Context, data []byte) *ExecutionResult {
	prog, failed := parseProgram(data)
	if failed != nil {
		return failed
	}
	return s.Run(ctx, prog)
}

// RunFunction runs an already compiled script against the session's globals.
func (s *Session) RunFunction(ctx context.Context, fn *bytecode.Function) *ExecutionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs++
	return runFunction(ctx, fn, s.env, s.cfg)
}

// Runs returns how many programs the session has run.
func (s *Session) Runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

// Globals returns a copy of the session's bindings.
func (s *Session) Globals() map[string]bytecode.Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bytecode.Value)
	for _, name := range s.env.Names() {
		v, _ := s.env.Get(name)
		out[name] = v
	}
	return out
}

// Restore defines each binding in the session, replacing existing ones.
func (s *Session) Restore(globals map[string]bytecode.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, v := range globals {
		s.env.Define(name, v)
	}
}

// Reset discards every binding.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.env = bytecode.NewEnvironment(nil)
	s.runs = 0
}
