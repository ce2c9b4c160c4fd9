package bytecode

import (
	"strings"
	"testing"
)

func TestDisassembleEmpty(t *testing.T) {
	output := NewChunk().Disassemble("empty")
	if !strings.Contains(output, "== empty ==") {
		t.Errorf("Disassembly missing header:\n%s", output)
	}
}

func TestDisassembleLet(t *testing.T) {
	fn := mustCompile(t, program(at(1, letStmt("x", num(10)))))
	output := DisassembleFunction(fn)

	for _, want := range []string{
		"== <script> ==",
		"0000    1 CONSTANT",
		"; 10",
		"SET_GLOBAL",
		"; x",
		"POP",
		"RETURN",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("Disassembly missing %q:\n%s", want, output)
		}
	}
}

func TestDisassembleSameLineMarker(t *testing.T) {
	fn := mustCompile(t, program(at(3, show(num(1)))))
	output := DisassembleFunction(fn)
	if !strings.Contains(output, "0002    | PRINT") {
		t.Errorf("Expected same-line marker before PRINT:\n%s", output)
	}
}

func TestDisassembleJumpTargets(t *testing.T) {
	// TRUE; JUMP_IF_FALSE -> 0011; POP; CONSTANT; PRINT; JUMP -> 0012; POP; NIL; RETURN
	fn := mustCompile(t, program(ifStmt(boolean(true), block(show(num(1))), nil)))
	output := DisassembleFunction(fn)

	if !strings.Contains(output, "JUMP_IF_FALSE       7 ; -> 0011") {
		t.Errorf("JUMP_IF_FALSE target not resolved:\n%s", output)
	}
	if !strings.Contains(output, "JUMP                1 ; -> 0012") {
		t.Errorf("JUMP target not resolved:\n%s", output)
	}
}

func TestDisassembleLoopTarget(t *testing.T) {
	fn := mustCompile(t, program(whileStmt(boolean(false))))
	output := DisassembleFunction(fn)
	if !strings.Contains(output, "LOOP                8 ; -> 0000") {
		t.Errorf("LOOP target not resolved:\n%s", output)
	}
}

func TestDisassembleNestedFunction(t *testing.T) {
	fn := mustCompile(t, program(
		funcDecl("add", []string{"a", "b"}, ret(bin("+", ident("a"), ident("b")))),
	))
	output := DisassembleFunction(fn)

	scriptAt := strings.Index(output, "== <script> ==")
	addAt := strings.Index(output, "== add ==")
	if scriptAt < 0 || addAt < 0 {
		t.Fatalf("missing function headers:\n%s", output)
	}
	if addAt < scriptAt {
		t.Error("nested function should be listed after its parent")
	}
	if !strings.Contains(output, "<function add>") {
		t.Errorf("function constant not rendered:\n%s", output)
	}
	if !strings.Contains(output, "GET_LOCAL           1") {
		t.Errorf("parameter access not rendered:\n%s", output)
	}
}

func TestDisassembleUnknownAndTruncated(t *testing.T) {
	c := NewChunk()
	c.Write(0xEE, 1)
	c.Write(byte(OpConstant), 1)
	output := c.Disassemble("bad")

	if !strings.Contains(output, "UNKNOWN(0xEE)") {
		t.Errorf("unknown byte not reported:\n%s", output)
	}
	if !strings.Contains(output, "<truncated>") {
		t.Errorf("truncated operand not reported:\n%s", output)
	}
}

func TestDisassembleStringConstantQuoted(t *testing.T) {
	fn := mustCompile(t, program(show(str("hi"))))
	output := DisassembleFunction(fn)
	if !strings.Contains(output, `; "hi"`) {
		t.Errorf("string constant not quoted:\n%s", output)
	}
}
