// Package bytecode integration tests
//
// These tests verify the full pipeline from the JSON AST document to
// bytecode compilation to VM execution, combining several language features
// per program.
package bytecode

import (
	"testing"

	"github.com/chazu/pumpkin/pkg/ast"
)

func runJSON(t *testing.T, doc string) (*VM, error) {
	t.Helper()
	prog, err := ast.ParseBytes([]byte(doc))
	if err != nil {
		t.Fatalf("ParseBytes: %v", err)
	}
	vm := New(mustCompile(t, prog), nil)
	_, err = vm.Run()
	return vm, err
}

func TestIntegrationPrograms(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want []string
	}{
		{
			name: "let and show",
			doc: `{"kind":"Program","body":[
				{"kind":"LetStmt","name":{"kind":"Identifier","name":"x"},"value":{"kind":"Literal","value":10}},
				{"kind":"ShowStmt","expression":{"kind":"BinaryExpr","operator":"+",
					"left":{"kind":"Identifier","name":"x"},"right":{"kind":"Literal","value":5}}}
			]}`,
			want: []string{"15"},
		},
		{
			name: "factorial",
			doc: `{"kind":"Program","body":[
				{"kind":"FuncDecl","name":{"kind":"Identifier","name":"fact"},
				 "params":[{"kind":"Identifier","name":"n"}],
				 "body":{"kind":"Block","body":[
					{"kind":"IfStmt",
					 "condition":{"kind":"BinaryExpr","operator":"<=","left":{"kind":"Identifier","name":"n"},"right":{"kind":"Literal","value":1}},
					 "thenBlock":{"kind":"Block","body":[{"kind":"ReturnStmt","argument":{"kind":"Literal","value":1}}]}},
					{"kind":"ReturnStmt","argument":{"kind":"BinaryExpr","operator":"*",
						"left":{"kind":"Identifier","name":"n"},
						"right":{"kind":"CallExpr","callee":{"kind":"Identifier","name":"fact"},
							"arguments":[{"kind":"BinaryExpr","operator":"-","left":{"kind":"Identifier","name":"n"},"right":{"kind":"Literal","value":1}}]}}}
				 ]}},
				{"kind":"ShowStmt","expression":{"kind":"CallExpr","callee":{"kind":"Identifier","name":"fact"},
					"arguments":[{"kind":"Literal","value":10}]}}
			]}`,
			want: []string{"3628800"},
		},
		{
			name: "repeat accumulates",
			doc: `{"kind":"Program","body":[
				{"kind":"LetStmt","name":{"kind":"Identifier","name":"total"},"value":{"kind":"Literal","value":0}},
				{"kind":"RepeatStmt","count":{"kind":"Literal","value":4},"body":{"kind":"Block","body":[
					{"kind":"AssignStmt","target":{"kind":"Identifier","name":"total"},
					 "value":{"kind":"BinaryExpr","operator":"+","left":{"kind":"Identifier","name":"total"},"right":{"kind":"Literal","value":2.5}}}
				]}},
				{"kind":"ShowStmt","expression":{"kind":"Identifier","name":"total"}}
			]}`,
			want: []string{"10"},
		},
		{
			name: "while with list mutation",
			doc: `{"kind":"Program","body":[
				{"kind":"LetStmt","name":{"kind":"Identifier","name":"xs"},"value":{"kind":"ArrayLiteral","elements":[
					{"kind":"Literal","value":1},{"kind":"Literal","value":2},{"kind":"Literal","value":3}]}},
				{"kind":"LetStmt","name":{"kind":"Identifier","name":"i"},"value":{"kind":"Literal","value":0}},
				{"kind":"WhileStmt","condition":{"kind":"BinaryExpr","operator":"<","left":{"kind":"Identifier","name":"i"},"right":{"kind":"Literal","value":3}},
				 "body":{"kind":"Block","body":[
					{"kind":"AssignStmt",
					 "target":{"kind":"IndexExpr","object":{"kind":"Identifier","name":"xs"},"index":{"kind":"Identifier","name":"i"}},
					 "value":{"kind":"BinaryExpr","operator":"*",
						"left":{"kind":"IndexExpr","object":{"kind":"Identifier","name":"xs"},"index":{"kind":"Identifier","name":"i"}},
						"right":{"kind":"Literal","value":10}}},
					{"kind":"AssignStmt","name":{"kind":"Identifier","name":"i"},
					 "value":{"kind":"BinaryExpr","operator":"+","left":{"kind":"Identifier","name":"i"},"right":{"kind":"Literal","value":1}}}
				 ]}},
				{"kind":"ShowStmt","expression":{"kind":"Identifier","name":"xs"}}
			]}`,
			want: []string{"[10, 20, 30]"},
		},
		{
			name: "objects and members",
			doc: `{"kind":"Program","body":[
				{"kind":"LetStmt","name":{"kind":"Identifier","name":"p"},"value":{"kind":"ObjectLiteral","properties":[
					{"key":{"kind":"Identifier","name":"name"},"value":{"kind":"Literal","value":"jack"}},
					{"key":{"kind":"Literal","value":"age"},"value":{"kind":"Literal","value":3}}]}},
				{"kind":"ShowStmt","expression":{"kind":"BinaryExpr","operator":"+",
					"left":{"kind":"MemberExpr","object":{"kind":"Identifier","name":"p"},"property":{"kind":"Identifier","name":"name"}},
					"right":{"kind":"Literal","value":"!"}}},
				{"kind":"ShowStmt","expression":{"kind":"Identifier","name":"p"}}
			]}`,
			want: []string{"jack!", `{name: "jack", age: 3}`},
		},
		{
			name: "logic and unary",
			doc: `{"kind":"Program","body":[
				{"kind":"ShowStmt","expression":{"kind":"BinaryExpr","operator":"or",
					"left":{"kind":"UnaryExpr","operator":"not","argument":{"kind":"Literal","value":true}},
					"right":{"kind":"BinaryExpr","operator":"!=","left":{"kind":"Literal","value":1},"right":{"kind":"Literal","value":2}}}},
				{"kind":"ShowStmt","expression":{"kind":"UnaryExpr","operator":"-","argument":{"kind":"Literal","value":0.5}}},
				{"kind":"ShowStmt","expression":{"kind":"Literal","value":null}}
			]}`,
			want: []string{"true", "-0.5", "null"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vm, err := runJSON(t, tt.doc)
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if out := vm.Output(); !equalStrings(out, tt.want) {
				t.Errorf("Output = %q, want %q", out, tt.want)
			}
		})
	}
}

func TestIntegrationErrorLocation(t *testing.T) {
	doc := `{"kind":"Program","body":[
		{"kind":"ShowStmt","loc":{"start":0,"end":6,"line":1,"col":1},"expression":{"kind":"Literal","value":1}},
		{"kind":"ShowStmt","loc":{"start":7,"end":20,"line":2,"col":1},
		 "expression":{"kind":"Identifier","name":"nope","loc":{"start":12,"end":16,"line":2,"col":6}}}
	]}`
	vm, err := runJSON(t, doc)
	perr := asError(t, err)
	if perr.Kind != UndefinedVariable {
		t.Fatalf("Kind = %s, want UndefinedVariable", perr.Kind)
	}
	if perr.Location == nil || perr.Location.Line != 2 {
		t.Errorf("Location = %+v, want line 2", perr.Location)
	}
	if !equalStrings(vm.Output(), []string{"1"}) {
		t.Errorf("Output before failure = %q, want [\"1\"]", vm.Output())
	}
}
