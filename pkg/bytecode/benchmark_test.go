package bytecode

import (
	"testing"

	"github.com/chazu/pumpkin/pkg/ast"
)

// ---------------------------------------------------------------------------
// Compilation benchmarks
// ---------------------------------------------------------------------------

func fibProgram(n float64) *ast.Program {
	fib := funcDecl("fib", []string{"n"},
		ifStmt(bin("<", ident("n"), num(2)), block(ret(ident("n"))), nil),
		ret(bin("+",
			call(ident("fib"), bin("-", ident("n"), num(1))),
			call(ident("fib"), bin("-", ident("n"), num(2))),
		)),
	)
	return program(fib, exprStmt(call(ident("fib"), num(n))))
}

func loopProgram(n float64) *ast.Program {
	return program(
		letStmt("sum", num(0)),
		repeatStmt(num(n), assign(ident("sum"), bin("+", ident("sum"), num(1)))),
	)
}

func BenchmarkCompileFib(b *testing.B) {
	prog := fibProgram(20)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Compile(prog); err != nil {
			b.Fatal(err)
		}
	}
}

// ---------------------------------------------------------------------------
// Execution benchmarks
// ---------------------------------------------------------------------------

func benchmarkRun(b *testing.B, prog *ast.Program) {
	fn, err := Compile(prog)
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := New(fn, nil).Run(); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkExecuteFib15(b *testing.B) { benchmarkRun(b, fibProgram(15)) }
func BenchmarkExecuteFib20(b *testing.B) { benchmarkRun(b, fibProgram(20)) }

func BenchmarkExecuteLoop100(b *testing.B)   { benchmarkRun(b, loopProgram(100)) }
func BenchmarkExecuteLoop10000(b *testing.B) { benchmarkRun(b, loopProgram(10000)) }

func BenchmarkExecuteStringConcat(b *testing.B) {
	benchmarkRun(b, program(
		letStmt("s", str("")),
		repeatStmt(num(100), assign(ident("s"), bin("+", ident("s"), str("x")))),
	))
}

// ---------------------------------------------------------------------------
// Image benchmarks
// ---------------------------------------------------------------------------

func BenchmarkMarshalImage(b *testing.B) {
	fn, err := Compile(fibProgram(20))
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := MarshalImage(fn); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkImageRoundTrip(b *testing.B) {
	fn, err := Compile(fibProgram(20))
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		data, err := MarshalImage(fn)
		if err != nil {
			b.Fatal(err)
		}
		if _, err := UnmarshalImage(data); err != nil {
			b.Fatal(err)
		}
	}
}
