package bytecode

import (
	"fmt"
	"sort"

	"github.com/tliron/commonlog"
)

// ---------------------------------------------------------------------------
// Debugger: line breakpoints and single-stepping over one VM
// ---------------------------------------------------------------------------

// StopKind says why the debugger handed control back.
type StopKind int

const (
	StopStep StopKind = iota
	StopBreakpoint
	StopHalted
	StopError
)

func (k StopKind) String() string {
	switch k {
	case StopStep:
		return "step"
	case StopBreakpoint:
		return "breakpoint"
	case StopHalted:
		return "halted"
	case StopError:
		return "error"
	default:
		return fmt.Sprintf("StopKind(%d)", k)
	}
}

// StopReason describes where and why execution stopped.
type StopReason struct {
	Kind  StopKind
	Line  int   // Line of the next instruction (breakpoint line for StopBreakpoint)
	Value Value // Program result for StopHalted
	Err   error // Failure for StopError
}

// DebugState is a read-only snapshot of the debugged VM.
type DebugState struct {
	IP       int
	Line     int
	Function string
	Stack    []string
	Running  bool // False once the program has returned or failed
}

// Debugger observes a VM through its Step primitive. It never changes VM
// state any other way.
type Debugger struct {
	vm          *VM
	breakpoints map[int]bool

	// Line the previous stop left us on; Resume steps off it before
	// honouring a breakpoint there again.
	pausedLine int

	log commonlog.Logger
}

// NewDebugger attaches a debugger to vm, which should not have started yet.
func NewDebugger(vm *VM) *Debugger {
	return &Debugger{
		vm:          vm,
		breakpoints: make(map[int]bool),
		log:         commonlog.GetLogger("pumpkin.debugger"),
	}
}

// VM returns the debugged VM.
func (d *Debugger) VM() *VM {
	return d.vm
}

// SetBreakpoint stops execution before the first instruction of line.
func (d *Debugger) SetBreakpoint(line int) error {
	if line < 1 {
		return fmt.Errorf("invalid breakpoint line %d", line)
	}
	d.breakpoints[line] = true
	return nil
}

// RemoveBreakpoint removes the breakpoint at line.
func (d *Debugger) RemoveBreakpoint(line int) error {
	if !d.breakpoints[line] {
		return fmt.Errorf("no breakpoint at line %d", line)
	}
	delete(d.breakpoints, line)
	return nil
}

// ClearBreakpoints removes every breakpoint.
func (d *Debugger) ClearBreakpoints() {
	d.breakpoints = make(map[int]bool)
}

// Breakpoints returns the breakpoint lines in ascending order.
func (d *Debugger) Breakpoints() []int {
	lines := make([]int, 0, len(d.breakpoints))
	for line := range d.breakpoints {
		lines = append(lines, line)
	}
	sort.Ints(lines)
	return lines
}

// Resume runs until a breakpoint line is reached, the program returns, or
// an error occurs. A breakpoint is reported before anything on its line runs.
func (d *Debugger) Resume() StopReason {
	if d.vm.Halted() {
		return d.halted()
	}

	startLine := d.vm.CurrentLine()
	skip := d.pausedLine != 0 && d.pausedLine == startLine
	for {
		line := d.vm.CurrentLine()
		if skip && line != startLine {
			skip = false
		}
		if d.breakpoints[line] && !skip {
			d.pausedLine = line
			d.log.Debugf("breakpoint hit at line %d", line)
			return StopReason{Kind: StopBreakpoint, Line: line}
		}

		if reason, done := d.stepOnce(); done {
			return reason
		}
	}
}

// Step executes exactly one instruction.
func (d *Debugger) Step() StopReason {
	if d.vm.Halted() {
		return d.halted()
	}
	before := d.vm.CurrentLine()
	if reason, done := d.stepOnce(); done {
		return reason
	}
	// Arriving on a new line has not yet stopped there, so a breakpoint
	// on it still fires on the next Resume.
	line := d.vm.CurrentLine()
	if line == before {
		d.pausedLine = line
	} else {
		d.pausedLine = 0
	}
	return StopReason{Kind: StopStep, Line: line}
}

// stepOnce advances the VM; done is true when execution cannot continue.
func (d *Debugger) stepOnce() (StopReason, bool) {
	res, err := d.vm.Step()
	if err != nil {
		d.pausedLine = 0
		return StopReason{Kind: StopError, Line: d.vm.CurrentLine(), Err: err}, true
	}
	if res.Kind != StepContinue {
		d.pausedLine = 0
		return StopReason{Kind: StopHalted, Value: res.Value}, true
	}
	return StopReason{}, false
}

func (d *Debugger) halted() StopReason {
	if err := d.vm.Err(); err != nil {
		return StopReason{Kind: StopError, Err: err}
	}
	return StopReason{Kind: StopHalted, Value: d.vm.result}
}

// State returns a snapshot of the VM.
func (d *Debugger) State() DebugState {
	state := DebugState{
		IP:      d.vm.IP(),
		Line:    d.vm.CurrentLine(),
		Stack:   d.vm.StackSnapshot(),
		Running: !d.vm.Halted() && d.vm.Err() == nil,
	}
	if fn := d.vm.CurrentFunction(); fn != nil {
		state.Function = fn.Name
	}
	return state
}
