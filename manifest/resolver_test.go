package manifest

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/chazu/pumpkin/pkg/ast"
	"github.com/chazu/pumpkin/pkg/bytecode"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestResolveInlineModules(t *testing.T) {
	m, err := Parse([]byte(`
[modules.math]
pi = 3.5
tau = 7
name = "math"
exact = false
primes = [2, 3, 5]

[modules.math.nested]
deep = "yes"
`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	modules, err := NewResolver(m).Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	mod, ok := modules["math"]
	if !ok || mod.Kind() != bytecode.KindObject {
		t.Fatalf("modules = %v, want math object", modules)
	}

	obj := mod.Object()
	wantKeys := []string{"pi", "tau", "name", "exact", "primes", "nested"}
	if !reflect.DeepEqual(obj.Keys(), wantKeys) {
		t.Errorf("keys = %v, want %v", obj.Keys(), wantKeys)
	}
	if v, _ := obj.Get("tau"); v.Number() != 7 {
		t.Errorf("tau = %v, want 7", v)
	}
	if v, _ := obj.Get("primes"); v.String() != "[2, 3, 5]" {
		t.Errorf("primes = %v, want [2, 3, 5]", v)
	}
	if v, _ := obj.Get("exact"); v.Kind() != bytecode.KindBoolean || v.Bool() {
		t.Errorf("exact = %v, want false", v)
	}
	nested, _ := obj.Get("nested")
	if deep, _ := nested.Object().Get("deep"); deep.Str() != "yes" {
		t.Errorf("nested.deep = %v, want yes", deep)
	}
}

func TestResolveUnsupportedValue(t *testing.T) {
	m, err := Parse([]byte("[modules.clock]\nstart = 1979-05-27T07:32:00Z\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	_, err = NewResolver(m).Resolve(context.Background())
	if err == nil || !strings.Contains(err.Error(), "clock.start") {
		t.Errorf("error = %v, want unsupported clock.start", err)
	}
}

const greetModule = `{"kind":"Program","body":[
	{"kind":"ImportStmt","module":"math"},
	{"kind":"ExportStmt","declaration":{"kind":"LetStmt","name":{"kind":"Identifier","name":"twice"},
		"value":{"kind":"BinaryExpr","operator":"*",
			"left":{"kind":"MemberExpr","object":{"kind":"Identifier","name":"math"},"property":{"kind":"Identifier","name":"pi"}},
			"right":{"kind":"Literal","value":2}}}},
	{"kind":"ExportStmt","declaration":{"kind":"LetStmt","name":{"kind":"Identifier","name":"greeting"},
		"value":{"kind":"Literal","value":"hello"}}}
]}`

const shoutModule = `{"kind":"Program","body":[
	{"kind":"ImportStmt","module":"lib/greet"},
	{"kind":"ExportStmt","declaration":{"kind":"LetStmt","name":{"kind":"Identifier","name":"loud"},
		"value":{"kind":"BinaryExpr","operator":"+",
			"left":{"kind":"MemberExpr","object":{"kind":"Identifier","name":"greet"},"property":{"kind":"Identifier","name":"greeting"}},
			"right":{"kind":"Literal","value":"!"}}}}
]}`

func TestResolveModuleFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "lib/greet.json", greetModule)
	writeFile(t, dir, "lib/shout.json", shoutModule)
	writeManifest(t, dir, `
[modules]
math = { pi = 1.5 }

[module-files]
"lib/shout" = "lib/shout.json"
"lib/greet" = "lib/greet.json"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	modules, err := NewResolver(m).Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	greet := modules["lib/greet"].Object()
	if greet == nil {
		t.Fatalf("lib/greet not resolved: %v", modules)
	}
	if !reflect.DeepEqual(greet.Keys(), []string{"greeting", "twice"}) {
		t.Errorf("greet keys = %v, want sorted exports", greet.Keys())
	}
	if v, _ := greet.Get("twice"); v.Number() != 3 {
		t.Errorf("twice = %v, want 3", v)
	}

	shout := modules["lib/shout"].Object()
	if shout == nil {
		t.Fatalf("lib/shout not resolved: %v", modules)
	}
	if v, _ := shout.Get("loud"); v.Str() != "hello!" {
		t.Errorf("loud = %v, want hello!", v)
	}
}

func TestResolveImportCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.json", `{"kind":"Program","body":[{"kind":"ImportStmt","module":"b"}]}`)
	writeFile(t, dir, "b.json", `{"kind":"Program","body":[{"kind":"ImportStmt","module":"a"}]}`)
	writeManifest(t, dir, "[module-files]\na = \"a.json\"\nb = \"b.json\"\n")

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	_, err = NewResolver(m).Resolve(context.Background())
	if err == nil || !strings.Contains(err.Error(), "import cycle: a -> b -> a") {
		t.Errorf("error = %v, want import cycle", err)
	}
}

func TestResolveModuleFileErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"missing file", "", "not found"},
		{"bad document", `{"kind":"Program","body":[`, "parse error"},
		{"failing module", `{"kind":"Program","body":[{"kind":"ShowStmt","expression":{"kind":"Identifier","name":"nope"}}]}`, "UndefinedVariableError"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if tt.content != "" {
				writeFile(t, dir, "mod.json", tt.content)
			}
			writeManifest(t, dir, "[module-files]\nmod = \"mod.json\"\n")
			m, err := Load(dir)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			_, err = NewResolver(m).Resolve(context.Background())
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestImports(t *testing.T) {
	prog, err := ast.ParseBytes([]byte(`{"kind":"Program","body":[
		{"kind":"ImportStmt","module":"a"},
		{"kind":"IfStmt","condition":{"kind":"Literal","value":true},
		 "thenBlock":{"kind":"Block","body":[{"kind":"ImportStmt","module":"b"}]},
		 "elseBlock":{"kind":"Block","body":[{"kind":"ImportStmt","module":"a"}]}},
		{"kind":"FuncDecl","name":{"kind":"Identifier","name":"f"},"params":[],
		 "body":{"kind":"Block","body":[{"kind":"ImportStmt","module":"c/d"}]}}
	]}`))
	if err != nil {
		t.Fatalf("ParseBytes failed: %v", err)
	}
	want := []string{"a", "b", "c/d"}
	if got := Imports(prog); !reflect.DeepEqual(got, want) {
		t.Errorf("Imports() = %v, want %v", got, want)
	}
}
