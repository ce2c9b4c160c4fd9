package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"github.com/chazu/pumpkin/pkg/bytecode"
	"github.com/chazu/pumpkin/pkg/runtime"
)

// lineList collects repeated -b flags.
type lineList []int

func (l *lineList) String() string {
	parts := make([]string, len(*l))
	for i, n := range *l {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}

func (l *lineList) Set(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid line %q", s)
	}
	*l = append(*l, n)
	return nil
}

// cmdDebug handles `pumpkin debug`.
func cmdDebug(args []string) int {
	var flags commonFlags
	var breakpoints lineList
	fs := newFlagSet("debug", "[-b line]... <program.json|program.pkbc>")
	flags.register(fs)
	fs.Var(&breakpoints, "b", "Set a breakpoint at `line` (repeatable)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}

	proj, err := loadProject(context.Background(), &flags)
	if err != nil {
		reportError(os.Stderr, err)
		return 1
	}
	fn, err := loadFunction(fs.Arg(0))
	if err != nil {
		reportError(os.Stderr, err)
		return 1
	}

	ds, err := newDebugSession(fn, os.Stdout, proj.vmOptions()...)
	if err != nil {
		reportError(os.Stderr, err)
		return 1
	}
	for _, line := range breakpoints {
		if err := ds.debugger.SetBreakpoint(line); err != nil {
			reportError(os.Stderr, err)
			return 1
		}
	}

	fmt.Printf("Debugging %s (help for commands)\n", fs.Arg(0))
	ds.where()

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	last := ""
	for {
		line, err := ln.Prompt("(pdb) ")
		if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
			fmt.Println()
			return ds.exitCode()
		}
		if err != nil {
			reportError(os.Stderr, err)
			return 1
		}
		line = strings.TrimSpace(line)
		if line == "" {
			// Empty input repeats the previous command.
			line = last
		} else {
			ln.AppendHistory(line)
		}
		last = line
		if ds.handle(line) {
			return ds.exitCode()
		}
	}
}

// debugSession drives one Debugger from text commands.
type debugSession struct {
	debugger *bytecode.Debugger
	out      io.Writer
	last     *bytecode.StopReason
}

func newDebugSession(fn *bytecode.Function, out io.Writer, opts ...bytecode.Option) (*debugSession, error) {
	if fn == nil {
		return nil, fmt.Errorf("no program to debug")
	}
	opts = append(opts, bytecode.WithOutput(func(line string) { fmt.Fprintln(out, line) }))
	vm := bytecode.New(fn, bytecode.NewEnvironment(nil), opts...)
	return &debugSession{debugger: bytecode.NewDebugger(vm), out: out}, nil
}

// handle runs one command. It returns true when the session should end.
func (s *debugSession) handle(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	switch fields[0] {
	case "help", "h", "?":
		fmt.Fprintln(s.out, "Commands:")
		fmt.Fprintln(s.out, "  step, s            Execute one instruction")
		fmt.Fprintln(s.out, "  continue, c        Run to the next breakpoint or the end")
		fmt.Fprintln(s.out, "  break, b <line>    Set a breakpoint")
		fmt.Fprintln(s.out, "  delete, d <line>   Remove a breakpoint")
		fmt.Fprintln(s.out, "  breakpoints, bl    List breakpoints")
		fmt.Fprintln(s.out, "  where, w           Show the current position")
		fmt.Fprintln(s.out, "  stack              Show the value stack")
		fmt.Fprintln(s.out, "  disasm             Disassemble the current function")
		fmt.Fprintln(s.out, "  quit, q            Stop debugging")
	case "step", "s":
		if s.finished() {
			break
		}
		s.report(s.debugger.Step())
	case "continue", "c":
		if s.finished() {
			break
		}
		s.report(s.debugger.Resume())
	case "break", "b", "delete", "d":
		if len(fields) != 2 {
			fmt.Fprintf(s.out, "Usage: %s <line>\n", fields[0])
			break
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			fmt.Fprintf(s.out, "invalid line %q\n", fields[1])
			break
		}
		if fields[0] == "break" || fields[0] == "b" {
			err = s.debugger.SetBreakpoint(n)
		} else {
			err = s.debugger.RemoveBreakpoint(n)
		}
		if err != nil {
			fmt.Fprintln(s.out, err)
			break
		}
		s.listBreakpoints()
	case "breakpoints", "bl":
		s.listBreakpoints()
	case "where", "w":
		s.where()
	case "stack":
		stack := s.debugger.State().Stack
		if len(stack) == 0 {
			fmt.Fprintln(s.out, "(empty)")
		}
		for i := len(stack) - 1; i >= 0; i-- {
			fmt.Fprintf(s.out, "  [%d] %s\n", i, stack[i])
		}
	case "disasm":
		if fn := s.debugger.VM().CurrentFunction(); fn != nil {
			fmt.Fprint(s.out, bytecode.DisassembleFunction(fn))
		}
	case "quit", "q", "exit":
		return true
	default:
		fmt.Fprintf(s.out, "Unknown command: %s (type help for commands)\n", fields[0])
	}
	return false
}

// finished reports (and says so) when the program can no longer advance.
func (s *debugSession) finished() bool {
	if s.debugger.State().Running {
		return false
	}
	fmt.Fprintln(s.out, "The program has finished.")
	return true
}

func (s *debugSession) report(stop bytecode.StopReason) {
	s.last = &stop
	switch stop.Kind {
	case bytecode.StopHalted:
		fmt.Fprintf(s.out, "Program finished => %s\n", stop.Value.Inspect())
	case bytecode.StopError:
		fmt.Fprintln(s.out, runtime.AsError(stop.Err).Pretty(""))
	case bytecode.StopBreakpoint:
		fmt.Fprintf(s.out, "Breakpoint at line %d\n", stop.Line)
		s.where()
	default:
		s.where()
	}
}

func (s *debugSession) where() {
	st := s.debugger.State()
	if !st.Running {
		fmt.Fprintln(s.out, "Not running.")
		return
	}
	fmt.Fprintf(s.out, "%s ip=%d line %d\n", st.Function, st.IP, st.Line)
}

func (s *debugSession) listBreakpoints() {
	bps := s.debugger.Breakpoints()
	if len(bps) == 0 {
		fmt.Fprintln(s.out, "No breakpoints.")
		return
	}
	parts := make([]string, len(bps))
	for i, n := range bps {
		parts[i] = strconv.Itoa(n)
	}
	fmt.Fprintf(s.out, "Breakpoints: %s\n", strings.Join(parts, ", "))
}

// exitCode is 1 when the program stopped on an error.
func (s *debugSession) exitCode() int {
	if s.last != nil && s.last.Kind == bytecode.StopError {
		return 1
	}
	return 0
}
