package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/chazu/pumpkin/pkg/bytecode"
	"github.com/chazu/pumpkin/pkg/runtime"
)

// cmdRun handles `pumpkin run`.
//
//	pumpkin run prog.json          # print output, exit 1 on error
//	pumpkin run -json prog.json    # print the ExecutionResult document
//	pumpkin run -trace prog.pkbc   # trace every instruction to stderr
func cmdRun(args []string) int {
	var flags commonFlags
	fs := newFlagSet("run", "[options] <program.json|program.pkbc|->")
	flags.register(fs)
	asJSON := fs.Bool("json", false, "Print the full result as JSON")
	trace := fs.Bool("trace", false, "Trace each instruction to stderr")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	proj, err := loadProject(ctx, &flags)
	if err != nil {
		reportError(os.Stderr, err)
		return 1
	}

	opts := proj.runtimeOptions()
	if *trace {
		opts = append(opts, runtime.WithTrace(os.Stderr))
	}
	if !*asJSON {
		// Stream output as it is printed rather than at the end.
		opts = append(opts, runtime.WithOutput(func(line string) { fmt.Println(line) }))
	}

	res := runPath(ctx, fs.Arg(0), opts...)
	if *asJSON {
		return printResult(os.Stdout, res)
	}
	if !res.Success {
		fmt.Fprintln(os.Stderr, res.Error.Pretty(""))
		return 1
	}
	return 0
}

// runPath runs the program at path. Load and compile failures are reported
// in the result like runtime failures.
func runPath(ctx context.Context, path string, opts ...runtime.Option) *runtime.ExecutionResult {
	fn, err := loadFunction(path)
	if err != nil {
		return &runtime.ExecutionResult{Output: []string{}, Error: runtime.AsError(err)}
	}
	return runtime.RunFunction(ctx, fn, opts...)
}

func printResult(w io.Writer, res *runtime.ExecutionResult) int {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		reportError(os.Stderr, err)
		return 1
	}
	if !res.Success {
		return 1
	}
	return 0
}

// cmdCompile handles `pumpkin compile`, writing a program image.
func cmdCompile(args []string) int {
	fs := newFlagSet("compile", "[-o output.pkbc] <program.json>")
	output := fs.String("o", "", "Output path (default: input with "+ImageExt+" extension)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}
	input := fs.Arg(0)

	data, err := readInput(input)
	if err != nil {
		reportError(os.Stderr, err)
		return 1
	}
	fn, err := compileSource(data)
	if err != nil {
		reportError(os.Stderr, err)
		return 1
	}

	out := *output
	if out == "" {
		out = imagePath(input)
	}
	if err := writeImage(out, fn); err != nil {
		reportError(os.Stderr, err)
		return 1
	}
	fmt.Printf("Wrote %s\n", out)
	return 0
}

// imagePath swaps the extension of a source path for ImageExt.
func imagePath(input string) string {
	if input == "-" {
		return "out" + ImageExt
	}
	if i := strings.LastIndex(input, "."); i > strings.LastIndex(input, "/") {
		input = input[:i]
	}
	return input + ImageExt
}

func writeImage(path string, fn *bytecode.Function) error {
	data, err := bytecode.MarshalImage(fn)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing image: %w", err)
	}
	return nil
}

// cmdDisasm handles `pumpkin disasm`.
func cmdDisasm(args []string) int {
	fs := newFlagSet("disasm", "<program.json|program.pkbc|->")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}
	fn, err := loadFunction(fs.Arg(0))
	if err != nil {
		reportError(os.Stderr, err)
		return 1
	}
	fmt.Print(bytecode.DisassembleFunction(fn))
	return 0
}
