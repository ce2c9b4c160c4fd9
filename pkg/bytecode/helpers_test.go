package bytecode

import (
	"errors"
	"testing"

	"github.com/chazu/pumpkin/pkg/ast"
)

// ---------------------------------------------------------------------------
// AST construction helpers
// ---------------------------------------------------------------------------

func num(n float64) *ast.Literal { return &ast.Literal{Value: n} }
func str(s string) *ast.Literal { return &ast.Literal{Value: s} }
func boolean(b bool) *ast.Literal { return &ast.Literal{Value: b} }
func null() *ast.Literal { return &ast.Literal{} }
func ident(name string) *ast.Identifier { return &ast.Identifier{Name: name} }
func list(el ...ast.Expression) *ast.ArrayLiteral {
	return &ast.ArrayLiteral{Elements: el}
}

func bin(op string, l, r ast.Expression) *ast.BinaryExpr {
	return &ast.BinaryExpr{Operator: op, Left: l, Right: r}
}

func unary(op string, arg ast.Expression) *ast.UnaryExpr {
	return &ast.UnaryExpr{Operator: op, Argument: arg}
}

func call(callee ast.Expression, args ...ast.Expression) *ast.CallExpr {
	return &ast.CallExpr{Callee: callee, Arguments: args}
}

func index(obj, idx ast.Expression) *ast.IndexExpr {
	return &ast.IndexExpr{Object: obj, Index: idx}
}

func member(obj ast.Expression, name string) *ast.MemberExpr {
	return &ast.MemberExpr{Object: obj, Property: ident(name)}
}

func object(kv ...interface{}) *ast.ObjectLiteral {
	obj := &ast.ObjectLiteral{}
	for i := 0; i+1 < len(kv); i += 2 {
		obj.Properties = append(obj.Properties, &ast.Property{
			Key:   kv[i].(string),
			Value: kv[i+1].(ast.Expression),
		})
	}
	return obj
}

func letStmt(name string, v ast.Expression) *ast.LetStmt {
	return &ast.LetStmt{Name: ident(name), Value: v}
}

func assign(target, v ast.Expression) *ast.AssignStmt {
	return &ast.AssignStmt{Target: target, Value: v}
}

func show(e ast.Expression) *ast.ShowStmt { return &ast.ShowStmt{Expression: e} }
func exprStmt(e ast.Expression) *ast.ExprStmt { return &ast.ExprStmt{Expression: e} }
func ret(e ast.Expression) *ast.ReturnStmt { return &ast.ReturnStmt{Argument: e} }

func block(stmts ...ast.Statement) *ast.Block {
	return &ast.Block{Body: stmts}
}

func ifStmt(cond ast.Expression, then, els *ast.Block) *ast.IfStmt {
	return &ast.IfStmt{Condition: cond, Then: then, Else: els}
}

func whileStmt(cond ast.Expression, body ...ast.Statement) *ast.WhileStmt {
	return &ast.WhileStmt{Condition: cond, Body: block(body...)}
}

func repeatStmt(count ast.Expression, body ...ast.Statement) *ast.RepeatStmt {
	return &ast.RepeatStmt{Count: count, Body: block(body...)}
}

func funcDecl(name string, params []string, body ...ast.Statement) *ast.FuncDecl {
	fd := &ast.FuncDecl{Name: ident(name), Body: block(body...)}
	for _, p := range params {
		fd.Params = append(fd.Params, ident(p))
	}
	return fd
}

func program(stmts ...ast.Statement) *ast.Program {
	return &ast.Program{Body: stmts}
}

// at places a statement on a source line.
func at(line int, s ast.Statement) ast.Statement {
	s.(interface{ SetLocation(*ast.SourceLocation) }).SetLocation(&ast.SourceLocation{Line: line, Col: 1})
	return s
}

// ---------------------------------------------------------------------------
// Execution helpers
// ---------------------------------------------------------------------------

func mustCompile(t *testing.T, prog *ast.Program) *Function {
	t.Helper()
	fn, err := Compile(prog)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return fn
}

// run compiles and runs prog, returning the VM for inspection.
func run(t *testing.T, prog *ast.Program, opts ...Option) (*VM, Value, error) {
	t.Helper()
	vm := New(mustCompile(t, prog), nil, opts...)
	v, err := vm.Run()
	return vm, v, err
}

// runOutput runs prog and fails the test on error.
func runOutput(t *testing.T, prog *ast.Program, opts ...Option) []string {
	t.Helper()
	vm, _, err := run(t, prog, opts...)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return vm.Output()
}

// asError extracts the language error, failing the test if err is not one.
func asError(t *testing.T, err error) *Error {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("error %v (%T) is not a *Error", err, err)
	}
	return perr
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

// instructionStarts returns the offsets at which instructions begin.
func instructionStarts(c *Chunk) map[int]Opcode {
	starts := make(map[int]Opcode)
	for offset := 0; offset < len(c.Code); {
		op := Opcode(c.Code[offset])
		starts[offset] = op
		offset += op.InstructionLen()
	}
	return starts
}
