// Pumpkin CLI - runs, compiles, inspects and debugs Pumpkin programs, and
// serves the runtime over Connect.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/pumpkin/manifest"
	"github.com/chazu/pumpkin/pkg/bytecode"
	"github.com/chazu/pumpkin/pkg/runtime"
)

// ImageExt is the file extension of compiled program images.
const ImageExt = ".pkbc"

type command struct {
	name    string
	summary string
	run     func(args []string) int
}

var commands []command

func init() {
	commands = []command{
		{"run", "Run a program (JSON AST or .pkbc image)", cmdRun},
		{"compile", "Compile a JSON AST into a .pkbc image", cmdCompile},
		{"disasm", "Print the bytecode of a program", cmdDisasm},
		{"debug", "Step through a program with breakpoints", cmdDebug},
		{"repl", "Run programs against one persistent environment", cmdRepl},
		{"serve", "Start the Connect (HTTP/JSON) server", cmdServe},
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: pumpkin <command> [options] [args]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-8s %s\n", c.name, c.summary)
	}
	fmt.Fprintf(os.Stderr, "\nRun 'pumpkin <command> -h' for the options of a command.\n")
	fmt.Fprintf(os.Stderr, "\nExamples:\n")
	fmt.Fprintf(os.Stderr, "  pumpkin run prog.json            # Run a program\n")
	fmt.Fprintf(os.Stderr, "  pumpkin compile -o prog.pkbc prog.json\n")
	fmt.Fprintf(os.Stderr, "  pumpkin debug -b 3 prog.json     # Break at line 3\n")
	fmt.Fprintf(os.Stderr, "  pumpkin serve -addr :8080        # Serve on :8080\n")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	name, args := os.Args[1], os.Args[2:]
	if name == "-h" || name == "--help" || name == "help" {
		usage()
		os.Exit(0)
	}
	for _, c := range commands {
		if c.name == name {
			os.Exit(c.run(args))
		}
	}
	fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", name)
	usage()
	os.Exit(2)
}

// ---------------------------------------------------------------------------
// Shared flags and project setup
// ---------------------------------------------------------------------------

// commonFlags are accepted by every command that runs code.
type commonFlags struct {
	verbose         int
	dir             string
	maxInstructions int
	maxCallDepth    int
	maxStack        int
}

func newFlagSet(name, usageLine string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: pumpkin %s %s\n\nOptions:\n", name, usageLine)
		fs.PrintDefaults()
	}
	return fs
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.IntVar(&c.verbose, "v", -1, "Log verbosity (overrides [log] verbosity)")
	fs.StringVar(&c.dir, "C", ".", "Directory to search for pumpkin.toml")
	fs.IntVar(&c.maxInstructions, "max-instructions", -1, "Instruction budget (0 = unlimited)")
	fs.IntVar(&c.maxCallDepth, "max-call-depth", -1, "Maximum call depth")
	fs.IntVar(&c.maxStack, "max-stack", -1, "Maximum value stack size")
}

// project is the manifest with its modules resolved and flags applied.
type project struct {
	manifest *manifest.Manifest
	limits   bytecode.Limits
	modules  map[string]bytecode.Value
}

// loadProject finds pumpkin.toml (falling back to defaults), configures
// logging and resolves the module registry.
func loadProject(ctx context.Context, flags *commonFlags) (*project, error) {
	m, err := manifest.FindAndLoad(flags.dir)
	if err != nil {
		return nil, fmt.Errorf("loading manifest: %w", err)
	}
	if m == nil {
		m = manifest.Default()
		if abs, err := filepath.Abs(flags.dir); err == nil {
			m.Dir = abs
		}
	}

	configureLogging(m, flags.verbose)

	limits := m.RuntimeLimits()
	override(&limits.MaxInstructions, flags.maxInstructions)
	override(&limits.MaxCallDepth, flags.maxCallDepth)
	override(&limits.MaxStack, flags.maxStack)

	modules, err := manifest.NewResolver(m).Resolve(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving modules: %w", err)
	}
	return &project{manifest: m, limits: limits, modules: modules}, nil
}

func override(dst *int, flagValue int) {
	if flagValue >= 0 {
		*dst = flagValue
	}
}

func configureLogging(m *manifest.Manifest, verbose int) {
	verbosity := m.Log.Verbosity
	if verbose >= 0 {
		verbosity = verbose
	}
	var path *string
	if p := m.LogPath(); p != "" {
		path = &p
	}
	commonlog.Configure(verbosity, path)
}

// runtimeOptions returns the options shared by every run of the project.
func (p *project) runtimeOptions() []runtime.Option {
	opts := []runtime.Option{runtime.WithLimits(p.limits)}
	if len(p.modules) > 0 {
		opts = append(opts, runtime.WithModules(p.modules))
	}
	return opts
}

// vmOptions is runtimeOptions for code that drives a VM directly.
func (p *project) vmOptions() []bytecode.Option {
	opts := []bytecode.Option{bytecode.WithLimits(p.limits)}
	if len(p.modules) > 0 {
		opts = append(opts, bytecode.WithModules(p.modules))
	}
	return opts
}

// ---------------------------------------------------------------------------
// Program loading
// ---------------------------------------------------------------------------

// loadFunction reads a program from path: a .pkbc image is loaded as is,
// anything else is parsed as a JSON AST and compiled.
func loadFunction(path string) (*bytecode.Function, error) {
	data, err := readInput(path)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(path, ImageExt) {
		fn, err := bytecode.UnmarshalImage(data)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
		return fn, nil
	}
	return compileSource(data)
}

// compileSource reports undecodable documents the same way the runtime
// does.
func compileSource(data []byte) (*bytecode.Function, error) {
	prog, perr := runtime.ParseProgram(data)
	if perr != nil {
		return nil, perr
	}
	return bytecode.Compile(prog)
}

// readInput reads path, or stdin when path is "-".
func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

// reportError prints err, using the long form for language errors.
func reportError(w io.Writer, err error) {
	var perr *bytecode.Error
	if errors.As(err, &perr) {
		fmt.Fprintln(w, perr.Pretty(""))
		return
	}
	fmt.Fprintf(w, "Error: %v\n", err)
}
