package ast

import (
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		json      string
		wantStmts int
		wantError bool
	}{
		{
			name:      "empty program",
			json:      `{"kind": "Program", "body": []}`,
			wantStmts: 0,
		},
		{
			name:      "kind may be omitted on the root",
			json:      `{"body": [{"kind": "ShowStmt", "expression": {"kind": "Literal", "value": 1}}]}`,
			wantStmts: 1,
		},
		{
			name:      "invalid json",
			json:      `{"kind": "Program", body: invalid}`,
			wantError: true,
		},
		{
			name:      "empty json",
			json:      ``,
			wantError: true,
		},
		{
			name:      "wrong root kind",
			json:      `{"kind": "Block", "body": []}`,
			wantError: true,
		},
		{
			name:      "unknown statement kind",
			json:      `{"kind": "Program", "body": [{"kind": "ClassDecl"}]}`,
			wantError: true,
		},
		{
			name:      "statement without kind",
			json:      `{"kind": "Program", "body": [{}]}`,
			wantError: true,
		},
		{
			name:      "missing expression",
			json:      `{"kind": "Program", "body": [{"kind": "ShowStmt"}]}`,
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prog, err := Parse(strings.NewReader(tt.json))
			if (err != nil) != tt.wantError {
				t.Fatalf("Parse() error = %v, wantError %v", err, tt.wantError)
			}
			if tt.wantError {
				return
			}
			if len(prog.Body) != tt.wantStmts {
				t.Errorf("len(Body) = %d, want %d", len(prog.Body), tt.wantStmts)
			}
		})
	}
}

func TestParseStatements(t *testing.T) {
	src := `{
	  "kind": "Program",
	  "body": [
	    {"kind": "LetStmt", "name": {"kind": "Identifier", "name": "x"},
	     "value": {"kind": "Literal", "value": 10}, "loc": {"start": 0, "end": 10, "line": 1, "col": 1}},
	    {"kind": "AssignStmt", "name": {"kind": "Identifier", "name": "x"},
	     "value": {"kind": "Literal", "value": 11}},
	    {"kind": "IfStmt", "condition": {"kind": "Literal", "value": true},
	     "thenBlock": {"kind": "Block", "body": []}, "elseBlock": null},
	    {"kind": "RepeatStmt", "count": {"kind": "Literal", "value": 3},
	     "body": {"kind": "Block", "body": [{"kind": "ShowStmt", "expression": {"kind": "Identifier", "name": "x"}}]}},
	    {"kind": "WhileStmt", "condition": {"kind": "Literal", "value": false}, "body": {"kind": "Block", "body": []}},
	    {"kind": "FuncDecl", "name": {"kind": "Identifier", "name": "add"},
	     "params": [{"kind": "Identifier", "name": "a"}, {"kind": "Identifier", "name": "b"}],
	     "body": {"kind": "Block", "body": [{"kind": "ReturnStmt", "argument": null}]}},
	    {"kind": "ImportStmt", "module": "std/math"},
	    {"kind": "ExportStmt", "declaration": {"kind": "LetStmt", "name": {"kind": "Identifier", "name": "y"},
	     "value": {"kind": "Literal", "value": null}}},
	    {"kind": "ExprStmt", "expression": {"kind": "CallExpr", "callee": {"kind": "Identifier", "name": "add"},
	     "arguments": [{"kind": "Literal", "value": 1}, {"kind": "Literal", "value": 2}]}}
	  ]
	}`

	prog, err := ParseBytes([]byte(src))
	if err != nil {
		t.Fatalf("ParseBytes: %v", err)
	}
	if len(prog.Body) != 9 {
		t.Fatalf("len(Body) = %d, want 9", len(prog.Body))
	}

	let, ok := prog.Body[0].(*LetStmt)
	if !ok {
		t.Fatalf("Body[0] = %T, want *LetStmt", prog.Body[0])
	}
	if let.Name.Name != "x" {
		t.Errorf("let name = %q, want x", let.Name.Name)
	}
	if LineOf(let) != 1 {
		t.Errorf("LineOf(let) = %d, want 1", LineOf(let))
	}
	if lit, ok := let.Value.(*Literal); !ok || lit.Value != float64(10) {
		t.Errorf("let value = %#v, want Literal 10", let.Value)
	}

	assign := prog.Body[1].(*AssignStmt)
	if id, ok := assign.Target.(*Identifier); !ok || id.Name != "x" {
		t.Errorf("assign target = %#v, want Identifier x", assign.Target)
	}

	ifs := prog.Body[2].(*IfStmt)
	if ifs.Then == nil {
		t.Error("if Then is nil")
	}
	if ifs.Else != nil {
		t.Errorf("if Else = %#v, want nil", ifs.Else)
	}

	rep := prog.Body[3].(*RepeatStmt)
	if len(rep.Body.Body) != 1 {
		t.Errorf("repeat body len = %d, want 1", len(rep.Body.Body))
	}

	fn := prog.Body[5].(*FuncDecl)
	if fn.Name.Name != "add" || len(fn.Params) != 2 || fn.Params[1].Name != "b" {
		t.Errorf("func = %s(%d params), want add(a, b)", fn.Name.Name, len(fn.Params))
	}
	if ret := fn.Body.Body[0].(*ReturnStmt); ret.Argument != nil {
		t.Errorf("return argument = %#v, want nil", ret.Argument)
	}

	if imp := prog.Body[6].(*ImportStmt); imp.Module != "std/math" {
		t.Errorf("import module = %q, want std/math", imp.Module)
	}

	exp := prog.Body[7].(*ExportStmt)
	if _, ok := exp.Declaration.(*LetStmt); !ok {
		t.Errorf("export declaration = %T, want *LetStmt", exp.Declaration)
	}

	call := prog.Body[8].(*ExprStmt).Expression.(*CallExpr)
	if len(call.Arguments) != 2 {
		t.Errorf("call args = %d, want 2", len(call.Arguments))
	}
}

func TestParseAssignTarget(t *testing.T) {
	src := `{"kind": "Program", "body": [
	  {"kind": "AssignStmt",
	   "target": {"kind": "IndexExpr", "object": {"kind": "Identifier", "name": "xs"}, "index": {"kind": "Literal", "value": 0}},
	   "value": {"kind": "Literal", "value": "a"}}
	]}`
	prog, err := ParseBytes([]byte(src))
	if err != nil {
		t.Fatalf("ParseBytes: %v", err)
	}
	assign := prog.Body[0].(*AssignStmt)
	idx, ok := assign.Target.(*IndexExpr)
	if !ok {
		t.Fatalf("target = %T, want *IndexExpr", assign.Target)
	}
	if id := idx.Object.(*Identifier); id.Name != "xs" {
		t.Errorf("index object = %q, want xs", id.Name)
	}
}

func TestParseExpressions(t *testing.T) {
	src := `{"kind": "Program", "body": [
	  {"kind": "ShowStmt", "expression": {"kind": "BinaryExpr", "operator": "+",
	    "left": {"kind": "Literal", "value": 1}, "right": {"kind": "UnaryExpr", "operator": "-", "argument": {"kind": "Literal", "value": 2}}}},
	  {"kind": "ShowStmt", "expression": {"kind": "ArrayLiteral", "elements": [{"kind": "Literal", "value": "s"}, {"kind": "Literal", "value": false}]}},
	  {"kind": "ShowStmt", "expression": {"kind": "ObjectLiteral", "properties": [
	    {"key": {"kind": "Identifier", "name": "a"}, "value": {"kind": "Literal", "value": 1}},
	    {"key": {"kind": "Literal", "value": "b c"}, "value": {"kind": "Literal", "value": 2}},
	    {"key": {"kind": "Literal", "value": 3}, "value": {"kind": "Literal", "value": 3}}
	  ]}},
	  {"kind": "ShowStmt", "expression": {"kind": "MemberExpr", "object": {"kind": "Identifier", "name": "math"},
	    "property": {"kind": "Identifier", "name": "pi"}}}
	]}`
	prog, err := ParseBytes([]byte(src))
	if err != nil {
		t.Fatalf("ParseBytes: %v", err)
	}

	bin := prog.Body[0].(*ShowStmt).Expression.(*BinaryExpr)
	if bin.Operator != "+" {
		t.Errorf("operator = %q, want +", bin.Operator)
	}
	if un := bin.Right.(*UnaryExpr); un.Operator != "-" {
		t.Errorf("unary operator = %q, want -", un.Operator)
	}

	arr := prog.Body[1].(*ShowStmt).Expression.(*ArrayLiteral)
	if len(arr.Elements) != 2 {
		t.Errorf("elements = %d, want 2", len(arr.Elements))
	}
	if lit := arr.Elements[1].(*Literal); lit.Value != false {
		t.Errorf("element 1 = %#v, want false", lit.Value)
	}

	obj := prog.Body[2].(*ShowStmt).Expression.(*ObjectLiteral)
	wantKeys := []string{"a", "b c", "3"}
	if len(obj.Properties) != len(wantKeys) {
		t.Fatalf("properties = %d, want %d", len(obj.Properties), len(wantKeys))
	}
	for i, want := range wantKeys {
		if obj.Properties[i].Key != want {
			t.Errorf("property %d key = %q, want %q", i, obj.Properties[i].Key, want)
		}
	}

	mem := prog.Body[3].(*ShowStmt).Expression.(*MemberExpr)
	if mem.Property.Name != "pi" {
		t.Errorf("member property = %q, want pi", mem.Property.Name)
	}
}

func TestParseRejectsBadLiterals(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"array literal value", `{"body": [{"kind": "ShowStmt", "expression": {"kind": "Literal", "value": [1]}}]}`},
		{"object literal value", `{"body": [{"kind": "ShowStmt", "expression": {"kind": "Literal", "value": {"a": 1}}}]}`},
		{"boolean property key", `{"body": [{"kind": "ShowStmt", "expression": {"kind": "ObjectLiteral", "properties": [
			{"key": {"kind": "Literal", "value": true}, "value": {"kind": "Literal", "value": 1}}]}}]}`},
		{"import without module", `{"body": [{"kind": "ImportStmt"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseBytes([]byte(tt.json)); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}
