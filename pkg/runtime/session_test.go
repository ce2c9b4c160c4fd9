package runtime

import (
	"context"
	"sync"
	"testing"

	"github.com/chazu/pumpkin/pkg/bytecode"
)

const (
	letX   = `{"kind":"Program","body":[{"kind":"LetStmt","name":{"kind":"Identifier","name":"x"},"value":{"kind":"Literal","value":1}}]}`
	showX  = `{"kind":"Program","body":[{"kind":"ShowStmt","expression":{"kind":"Identifier","name":"x"}}]}`
	bumpX  = `{"kind":"Program","body":[{"kind":"AssignStmt","target":{"kind":"Identifier","name":"x"},"value":{"kind":"BinaryExpr","operator":"+","left":{"kind":"Identifier","name":"x"},"right":{"kind":"Literal","value":1}}}]}`
	failAt = `{"kind":"Program","body":[{"kind":"LetStmt","name":{"kind":"Identifier","name":"y"},"value":{"kind":"Literal","value":2}},{"kind":"ShowStmt","expression":{"kind":"Identifier","name":"nope"}}]}`
)

func TestSessionKeepsGlobals(t *testing.T) {
	s := NewSession()
	ctx := context.Background()

	if res := s.RunJSON(ctx, []byte(letX)); !res.Success {
		t.Fatalf("let: %v", res.Error)
	}
	if res := s.RunJSON(ctx, []byte(bumpX)); !res.Success {
		t.Fatalf("bump: %v", res.Error)
	}
	res := s.RunJSON(ctx, []byte(showX))
	if !res.Success {
		t.Fatalf("show: %v", res.Error)
	}
	if !equalStrings(res.Output, []string{"2"}) {
		t.Errorf("Output = %q, want [\"2\"]", res.Output)
	}
	if s.Runs() != 3 {
		t.Errorf("Runs() = %d, want 3", s.Runs())
	}
}

func TestSessionKeepsBindingsBeforeFailure(t *testing.T) {
	s := NewSession()
	res := s.RunJSON(context.Background(), []byte(failAt))
	if res.Success {
		t.Fatal("expected failure")
	}
	if v, ok := s.Globals()["y"]; !ok || v.Number() != 2 {
		t.Errorf("Globals() = %v, want y=2", s.Globals())
	}
}

func TestSessionRejectsMalformedJSON(t *testing.T) {
	s := NewSession()
	res := s.RunJSON(context.Background(), []byte(`not json`))
	if res.Success || res.Error == nil || res.Error.Kind != bytecode.RuntimeError {
		t.Errorf("result = %+v, want RuntimeError", res)
	}
	if s.Runs() != 0 {
		t.Errorf("Runs() = %d after a parse failure, want 0", s.Runs())
	}
}

func TestSessionRestoreAndReset(t *testing.T) {
	s := NewSession()
	s.Restore(map[string]bytecode.Value{"x": bytecode.NumberValue(41)})

	s.RunJSON(context.Background(), []byte(bumpX))
	res := s.RunJSON(context.Background(), []byte(showX))
	if !equalStrings(res.Output, []string{"42"}) {
		t.Errorf("Output = %q, want [\"42\"]", res.Output)
	}

	s.Reset()
	if len(s.Globals()) != 0 || s.Runs() != 0 {
		t.Errorf("after Reset: globals %v, runs %d", s.Globals(), s.Runs())
	}
	res = s.RunJSON(context.Background(), []byte(showX))
	if res.Success || res.Error.Kind != bytecode.UndefinedVariable {
		t.Errorf("result after Reset = %+v, want UndefinedVariable", res.Error)
	}
}

func TestSessionConcurrentRuns(t *testing.T) {
	s := NewSession()
	s.RunJSON(context.Background(), []byte(letX))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.RunJSON(context.Background(), []byte(bumpX))
		}()
	}
	wg.Wait()

	res := s.RunJSON(context.Background(), []byte(showX))
	if !equalStrings(res.Output, []string{"21"}) {
		t.Errorf("Output = %q, want [\"21\"]", res.Output)
	}
}
