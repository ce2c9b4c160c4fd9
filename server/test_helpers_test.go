package server

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"connectrpc.com/connect"

	"github.com/chazu/pumpkin/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Shared test infrastructure for server package tests.
//
// One config and one set of stores is created in TestMain and shared. Tests
// that need isolation (persistence, sweeping) build their own.
// ---------------------------------------------------------------------------

var (
	testCfg      *serverConfig
	testSessions *SessionStore
	testDebugs   *DebugStore
)

func TestMain(m *testing.M) {
	testCfg = newTestConfig()
	testSessions = NewSessionStore(nil, testCfg.runtimeOptions(nil)...)
	testDebugs = NewDebugStore()

	code := m.Run()

	testSessions.Close()
	testDebugs.Close()
	os.Exit(code)
}

func newTestConfig() *serverConfig {
	words := bytecode.NewObject()
	words.Set("greeting", bytecode.StringValue("hello"))
	return &serverConfig{
		limits:   bytecode.Limits{MaxInstructions: 100000, MaxCallDepth: 64, MaxStack: 1024},
		modules:  map[string]bytecode.Value{"lib/words": bytecode.ObjectValue(words)},
		timeout:  5 * time.Second,
		debugTTL: time.Minute,
	}
}

func newTestExecutionService() *ExecutionService {
	return NewExecutionService(testCfg)
}

func newTestSessionService() *SessionService {
	return NewSessionService(testCfg, testSessions)
}

func newTestDebugService() *DebugService {
	return NewDebugService(testCfg, testDebugs)
}

// ---------------------------------------------------------------------------
// Request builder helpers: reduce boilerplate in tests.
// ---------------------------------------------------------------------------

func connectReq[T any](msg *T) *connect.Request[T] {
	return connect.NewRequest(msg)
}

func bg() context.Context {
	return context.Background()
}

func wantCode(t *testing.T, err error, code connect.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %v error, got nil", code)
	}
	if got := connect.CodeOf(err); got != code {
		t.Errorf("code = %v, want %v (%v)", got, code, err)
	}
}

// ---------------------------------------------------------------------------
// AST document builders
// ---------------------------------------------------------------------------

func program(stmts ...string) json.RawMessage {
	return json.RawMessage(`{"kind":"Program","body":[` + strings.Join(stmts, ",") + `]}`)
}

func loc(line int) string {
	return fmt.Sprintf(`"loc":{"start":0,"end":1,"line":%d,"col":1}`, line)
}

func num(n float64) string {
	return fmt.Sprintf(`{"kind":"Literal","value":%v}`, n)
}

func ident(name string) string {
	return fmt.Sprintf(`{"kind":"Identifier","name":%q}`, name)
}

func binary(op, left, right string) string {
	return fmt.Sprintf(`{"kind":"BinaryExpr","operator":%q,"left":%s,"right":%s}`, op, left, right)
}

func letAt(line int, name, value string) string {
	return fmt.Sprintf(`{"kind":"LetStmt",%s,"name":%s,"value":%s}`, loc(line), ident(name), value)
}

func showAt(line int, expr string) string {
	return fmt.Sprintf(`{"kind":"ShowStmt",%s,"expression":%s}`, loc(line), expr)
}

func assign(name, value string) string {
	return fmt.Sprintf(`{"kind":"AssignStmt","target":%s,"value":%s}`, ident(name), value)
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
