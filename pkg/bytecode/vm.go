package bytecode

import (
	"context"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/chazu/pumpkin/pkg/ast"
)

const (
	// DefaultMaxCallDepth bounds recursion when Limits leaves it unset.
	DefaultMaxCallDepth = 64

	// DefaultMaxStack bounds the operand stack when Limits leaves it unset.
	DefaultMaxStack = 65536

	// cancelCheckInterval is how many instructions RunContext executes
	// between context checks.
	cancelCheckInterval = 1024

	// maxRepeatCount is the largest count a float64 can still decrement
	// exactly.
	maxRepeatCount = 1 << 53
)

// Limits are the fuses that stop runaway programs.
type Limits struct {
	MaxInstructions int // 0 means unlimited
	MaxCallDepth    int // 0 means DefaultMaxCallDepth
	MaxStack        int // 0 means DefaultMaxStack
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{MaxCallDepth: DefaultMaxCallDepth, MaxStack: DefaultMaxStack}
}

func (l Limits) normalized() Limits {
	if l.MaxCallDepth <= 0 {
		l.MaxCallDepth = DefaultMaxCallDepth
	}
	if l.MaxStack <= 0 {
		l.MaxStack = DefaultMaxStack
	}
	if l.MaxInstructions < 0 {
		l.MaxInstructions = 0
	}
	return l
}

// StepKind says what a single step accomplished.
type StepKind int

const (
	// StepContinue means the instruction executed and more remain.
	StepContinue StepKind = iota
	// StepReturn means the outermost frame returned; Value holds the result.
	StepReturn
	// StepDone means the program had already finished.
	StepDone
)

func (k StepKind) String() string {
	switch k {
	case StepContinue:
		return "continue"
	case StepReturn:
		return "return"
	case StepDone:
		return "done"
	default:
		return fmt.Sprintf("StepKind(%d)", k)
	}
}

// StepResult is the outcome of one VM step.
type StepResult struct {
	Kind  StepKind
	Value Value
}

// CallFrame represents an active function invocation on the call stack.
type CallFrame struct {
	fn *Function
	ip int
	bp int // Stack index of local slot 0
}

// Option configures a VM.
type Option func(*VM)

// WithLimits sets the execution fuses.
func WithLimits(l Limits) Option {
	return func(vm *VM) { vm.limits = l.normalized() }
}

// WithModules sets the registry consulted by import.
func WithModules(modules map[string]Value) Option {
	return func(vm *VM) {
		for name, v := range modules {
			vm.modules[name] = v
		}
	}
}

// WithOutput registers a hook called with every printed line.
func WithOutput(hook func(string)) Option {
	return func(vm *VM) { vm.outputHook = hook }
}

// WithLogger replaces the VM's logger.
func WithLogger(log commonlog.Logger) Option {
	return func(vm *VM) { vm.log = log }
}

// WithTrace writes the operand stack and each instruction to w before it executes.
func WithTrace(w io.Writer) Option {
	return func(vm *VM) { vm.trace = w }
}

// VM executes compiled functions. A VM is single-threaded: all methods must
// be called from the goroutine that drives it.
type VM struct {
	frames []*CallFrame
	stack  []Value

	globals *Environment
	modules map[string]Value
	exports map[string]Value

	output     []string
	outputHook func(string)

	limits       Limits
	instructions int

	halted bool
	result Value
	err    *Error

	trace io.Writer
	log   commonlog.Logger
}

// New creates a VM ready to run fn as the outermost frame. Globals persist in
// env, which is created fresh when nil.
func New(fn *Function, env *Environment, opts ...Option) *VM {
	if env == nil {
		env = NewEnvironment(nil)
	}
	vm := &VM{
		frames:  make([]*CallFrame, 0, 16),
		stack:   make([]Value, 0, 256),
		globals: env,
		modules: make(map[string]Value),
		exports: make(map[string]Value),
		limits:  DefaultLimits(),
		log:     commonlog.GetLogger("pumpkin.vm"),
	}
	for _, opt := range opts {
		opt(vm)
	}
	if fn != nil {
		vm.frames = append(vm.frames, &CallFrame{fn: fn})
	} else {
		vm.halted = true
	}
	return vm
}

// Run steps until the program returns, then yields its result.
func (vm *VM) Run() (Value, error) {
	return vm.RunContext(context.Background())
}

// RunContext is Run with cancellation. The context is checked periodically,
// and cancellation is reported as ResourceExhausted.
func (vm *VM) RunContext(ctx context.Context) (Value, error) {
	for n := 0; ; n++ {
		if n%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				vm.err = NewResourceError(vm.currentLocation(), "Execution cancelled: %v", err)
				vm.log.Debugf("run cancelled after %d instructions: %v", vm.instructions, err)
				return Null, vm.err
			}
		}
		res, err := vm.Step()
		if err != nil {
			return Null, err
		}
		if res.Kind != StepContinue {
			return res.Value, nil
		}
	}
}

// Step decodes and executes exactly one instruction of the top frame.
func (vm *VM) Step() (StepResult, error) {
	if vm.err != nil {
		return StepResult{}, vm.err
	}
	if vm.halted {
		return StepResult{Kind: StepDone, Value: vm.result}, nil
	}

	frame := vm.frames[len(vm.frames)-1]
	start := frame.ip
	res, err := vm.step(frame)
	if err != nil {
		vm.err = err.withLocation(lineLocation(frame.fn.Chunk.LineAt(start)))
		vm.log.Debugf("%s at %s+%d", vm.err.Error(), frame.fn.Name, start)
		return StepResult{}, vm.err
	}
	return res, nil
}

func lineLocation(line int) *ast.SourceLocation {
	if line <= 0 {
		return nil
	}
	return &ast.SourceLocation{Line: line}
}

func (vm *VM) currentLocation() *ast.SourceLocation {
	return lineLocation(vm.CurrentLine())
}

// step executes one instruction. It is the only place VM state changes.
func (vm *VM) step(frame *CallFrame) (StepResult, *Error) {
	chunk := frame.fn.Chunk
	if frame.ip >= len(chunk.Code) {
		return StepResult{}, NewRuntimeError(nil, "Unexpected end of bytecode in %s", frame.fn.Name)
	}

	vm.instructions++
	if limit := vm.limits.MaxInstructions; limit > 0 && vm.instructions > limit {
		vm.log.Debugf("instruction fuse tripped at %d", limit)
		return StepResult{}, NewResourceError(nil, "Instruction limit exceeded (%d)", limit)
	}
	if len(vm.stack) >= vm.limits.MaxStack {
		vm.log.Debugf("stack fuse tripped at %d", vm.limits.MaxStack)
		return StepResult{}, NewResourceError(nil, "Stack limit exceeded (%d)", vm.limits.MaxStack)
	}

	if vm.trace != nil {
		vm.traceInstruction(frame)
	}

	op, ok := DecodeOpcode(chunk.Code[frame.ip])
	if !ok {
		return StepResult{}, NewRuntimeError(nil, "Unknown opcode 0x%02X", chunk.Code[frame.ip])
	}
	if frame.ip+op.InstructionLen() > len(chunk.Code) {
		return StepResult{}, NewRuntimeError(nil, "Truncated %s instruction", op)
	}
	frame.ip++

	switch op {
	// ============ Stack and constants ============
	case OpReturn:
		return vm.doReturn(frame)

	case OpConstant:
		k, err := vm.readConstant(frame)
		if err != nil {
			return StepResult{}, err
		}
		vm.push(k)

	case OpPop:
		if _, err := vm.pop(); err != nil {
			return StepResult{}, err
		}

	case OpNil:
		vm.push(Null)

	case OpTrue:
		vm.push(True)

	case OpFalse:
		vm.push(False)

	case OpPrint:
		v, err := vm.pop()
		if err != nil {
			return StepResult{}, err
		}
		line := v.String()
		vm.output = append(vm.output, line)
		if vm.outputHook != nil {
			vm.outputHook(line)
		}

	// ============ Value access ============
	case OpGetLocal:
		slot := vm.localSlot(frame)
		if slot < 0 {
			return StepResult{}, NewRuntimeError(nil, "Local variable slot out of range")
		}
		vm.push(vm.stack[slot])

	case OpSetLocal:
		slot := vm.localSlot(frame)
		if slot < 0 {
			return StepResult{}, NewRuntimeError(nil, "Local variable slot out of range")
		}
		v, err := vm.peek(0)
		if err != nil {
			return StepResult{}, err
		}
		vm.stack[slot] = v

	case OpGetGlobal:
		name, err := vm.readName(frame)
		if err != nil {
			return StepResult{}, err
		}
		v, ok := vm.globals.Get(name)
		if !ok {
			return StepResult{}, NewUndefinedError(name, "", nil)
		}
		vm.push(v)

	case OpSetGlobal:
		name, err := vm.readName(frame)
		if err != nil {
			return StepResult{}, err
		}
		v, err := vm.peek(0)
		if err != nil {
			return StepResult{}, err
		}
		if vm.globals.Assign(name, v) != nil {
			vm.globals.Define(name, v)
		}

	// ============ Arithmetic and logic ============
	case OpAdd, OpSub, OpMul, OpDiv, OpMod, OpPow,
		OpGreater, OpLess, OpGreaterEqual, OpLessEqual:
		b, a, err := vm.pop2()
		if err != nil {
			return StepResult{}, err
		}
		r, err := binaryOp(op, a, b)
		if err != nil {
			return StepResult{}, err
		}
		vm.push(r)

	case OpEqual, OpNotEqual:
		b, a, err := vm.pop2()
		if err != nil {
			return StepResult{}, err
		}
		eq := Equal(a, b)
		if op == OpNotEqual {
			eq = !eq
		}
		vm.push(BoolValue(eq))

	case OpNot:
		v, err := vm.pop()
		if err != nil {
			return StepResult{}, err
		}
		vm.push(BoolValue(!v.Truthy()))

	case OpNegate:
		v, err := vm.pop()
		if err != nil {
			return StepResult{}, err
		}
		if !v.IsNumber() {
			return StepResult{}, NewTypeError("number", v.Kind().String(), nil)
		}
		vm.push(NumberValue(-v.Number()))

	// ============ Control flow ============
	case OpJump:
		if err := vm.jumpForward(frame, vm.readUint16(frame)); err != nil {
			return StepResult{}, err
		}

	case OpJumpIfFalse:
		offset := vm.readUint16(frame)
		cond, err := vm.peek(0)
		if err != nil {
			return StepResult{}, err
		}
		if !cond.Truthy() {
			if err := vm.jumpForward(frame, offset); err != nil {
				return StepResult{}, err
			}
		}

	case OpLoop:
		if err := vm.jumpBackward(frame, vm.readUint16(frame)); err != nil {
			return StepResult{}, err
		}

	case OpCall:
		argc := int(vm.readByte(frame))
		if err := vm.call(argc); err != nil {
			return StepResult{}, err
		}

	case OpRepeatStart:
		offset := vm.readUint16(frame)
		count, err := vm.peek(0)
		if err != nil {
			return StepResult{}, err
		}
		if !count.IsNumber() {
			return StepResult{}, NewTypeError("number", count.Kind().String(), nil)
		}
		n := math.Trunc(count.Number())
		if n > maxRepeatCount {
			return StepResult{}, NewResourceError(nil, "repeat count %s exceeds the maximum of %d",
				FormatNumber(n), int64(maxRepeatCount))
		}
		if !(n > 0) {
			vm.stack = vm.stack[:len(vm.stack)-1]
			if err := vm.jumpForward(frame, offset); err != nil {
				return StepResult{}, err
			}
		} else {
			vm.stack[len(vm.stack)-1] = NumberValue(n)
		}

	case OpRepeatEnd:
		offset := vm.readUint16(frame)
		counter, err := vm.peek(0)
		if err != nil {
			return StepResult{}, err
		}
		if !counter.IsNumber() {
			return StepResult{}, NewRuntimeError(nil, "Repeat counter corrupted")
		}
		n := counter.Number() - 1
		if n > 0 {
			vm.stack[len(vm.stack)-1] = NumberValue(n)
			if err := vm.jumpBackward(frame, offset); err != nil {
				return StepResult{}, err
			}
		} else {
			vm.stack = vm.stack[:len(vm.stack)-1]
		}

	// ============ Aggregates, properties and modules ============
	case OpArrayLit:
		count := int(vm.readUint16(frame))
		if count > len(vm.stack) {
			return StepResult{}, NewRuntimeError(nil, "Stack underflow")
		}
		start := len(vm.stack) - count
		items := make([]Value, count)
		copy(items, vm.stack[start:])
		vm.stack = vm.stack[:start]
		vm.push(NewListValue(items...))

	case OpObjectLit:
		count := int(vm.readUint16(frame))
		if 2*count > len(vm.stack) {
			return StepResult{}, NewRuntimeError(nil, "Stack underflow")
		}
		start := len(vm.stack) - 2*count
		obj := NewObject()
		for i := start; i < len(vm.stack); i += 2 {
			key := vm.stack[i]
			if !key.IsString() {
				return StepResult{}, NewTypeError("string", key.Kind().String(), nil)
			}
			obj.Set(key.Str(), vm.stack[i+1])
		}
		vm.stack = vm.stack[:start]
		vm.push(ObjectValue(obj))

	case OpIndexGet:
		index, container, err := vm.pop2()
		if err != nil {
			return StepResult{}, err
		}
		v, err := indexGet(container, index)
		if err != nil {
			return StepResult{}, err
		}
		vm.push(v)

	case OpIndexSet:
		v, err := vm.pop()
		if err != nil {
			return StepResult{}, err
		}
		index, container, err := vm.pop2()
		if err != nil {
			return StepResult{}, err
		}
		if err := indexSet(container, index, v); err != nil {
			return StepResult{}, err
		}
		vm.push(v)

	case OpGetProp:
		name, err := vm.readName(frame)
		if err != nil {
			return StepResult{}, err
		}
		target, err := vm.pop()
		if err != nil {
			return StepResult{}, err
		}
		obj := target.Object()
		if obj == nil {
			return StepResult{}, NewTypeError("object", target.Kind().String(), nil)
		}
		v, ok := obj.Get(name)
		if !ok {
			return StepResult{}, NewRuntimeError(nil, "Property '%s' not found", name)
		}
		vm.push(v)

	case OpImport:
		name, err := vm.readName(frame)
		if err != nil {
			return StepResult{}, err
		}
		module, ok := vm.modules[name]
		if !ok {
			return StepResult{}, NewRuntimeError(nil, "Module '%s' not found", name)
		}
		vm.push(module)

	case OpExport:
		name, err := vm.readName(frame)
		if err != nil {
			return StepResult{}, err
		}
		v, err := vm.pop()
		if err != nil {
			return StepResult{}, err
		}
		vm.exports[name] = v

	default:
		return StepResult{}, NewRuntimeError(nil, "Opcode %s not implemented", op)
	}

	return StepResult{Kind: StepContinue}, nil
}

func (vm *VM) doReturn(frame *CallFrame) (StepResult, *Error) {
	result := Null
	if len(vm.stack) > frame.bp {
		result = vm.stack[len(vm.stack)-1]
	}
	vm.frames = vm.frames[:len(vm.frames)-1]

	if len(vm.frames) == 0 {
		vm.stack = vm.stack[:0]
		vm.halted = true
		vm.result = result
		return StepResult{Kind: StepReturn, Value: result}, nil
	}

	// Discard arguments and the callee slot below them.
	vm.stack = vm.stack[:frame.bp-1]
	vm.push(result)
	return StepResult{Kind: StepContinue}, nil
}

func (vm *VM) call(argc int) *Error {
	calleeIdx := len(vm.stack) - 1 - argc
	if calleeIdx < 0 {
		return NewRuntimeError(nil, "Stack underflow calling function")
	}
	callee := vm.stack[calleeIdx]
	fn := callee.Function()
	if fn == nil {
		return NewTypeError("function", callee.Kind().String(), nil)
	}
	if fn.Chunk == nil {
		return NewRuntimeError(nil, "Function '%s' has no code", fn.Name)
	}
	if argc != fn.Arity {
		return NewRuntimeError(nil, "Expected %d args, got %d", fn.Arity, argc)
	}
	if len(vm.frames) >= vm.limits.MaxCallDepth {
		vm.log.Debugf("call depth fuse tripped at %d", vm.limits.MaxCallDepth)
		return NewRuntimeError(nil, "Stack overflow")
	}
	vm.frames = append(vm.frames, &CallFrame{fn: fn, bp: calleeIdx + 1})
	vm.log.Debugf("call %s/%d depth=%d", fn.Name, argc, len(vm.frames))
	return nil
}

// ---------------------------------------------------------------------------
// Operators
// ---------------------------------------------------------------------------

func binaryOp(op Opcode, a, b Value) (Value, *Error) {
	if op == OpAdd {
		switch {
		case a.IsNumber() && b.IsNumber():
			return NumberValue(a.Number() + b.Number()), nil
		case a.IsString() || b.IsString():
			return StringValue(a.String() + b.String()), nil
		default:
			return Null, NewTypeError("number or string", a.Kind().String()+" + "+b.Kind().String(), nil)
		}
	}

	if !a.IsNumber() {
		return Null, NewTypeError("number", a.Kind().String(), nil)
	}
	if !b.IsNumber() {
		return Null, NewTypeError("number", b.Kind().String(), nil)
	}
	x, y := a.Number(), b.Number()

	switch op {
	case OpSub:
		return NumberValue(x - y), nil
	case OpMul:
		return NumberValue(x * y), nil
	case OpDiv:
		if y == 0 {
			return Null, &Error{Kind: DivisionByZero}
		}
		return NumberValue(x / y), nil
	case OpMod:
		if y == 0 {
			return Null, &Error{Kind: DivisionByZero}
		}
		return NumberValue(math.Mod(x, y)), nil
	case OpPow:
		return NumberValue(math.Pow(x, y)), nil
	case OpGreater:
		return BoolValue(x > y), nil
	case OpLess:
		return BoolValue(x < y), nil
	case OpGreaterEqual:
		return BoolValue(x >= y), nil
	case OpLessEqual:
		return BoolValue(x <= y), nil
	}
	return Null, NewRuntimeError(nil, "Opcode %s is not a binary operator", op)
}

// listIndex converts a numeric index, truncating fractions.
func listIndex(l *List, index Value) (int, *Error) {
	if !index.IsNumber() {
		return 0, NewTypeError("number", index.Kind().String(), nil)
	}
	n := index.Number()
	if n < 0 || math.IsNaN(n) || n >= float64(len(l.Items)) {
		return 0, NewRuntimeError(nil, "Index out of bounds")
	}
	return int(n), nil
}

func indexGet(container, index Value) (Value, *Error) {
	switch container.Kind() {
	case KindList:
		l := container.List()
		i, err := listIndex(l, index)
		if err != nil {
			return Null, err
		}
		return l.Items[i], nil
	case KindObject:
		if !index.IsString() {
			return Null, NewTypeError("string", index.Kind().String(), nil)
		}
		v, ok := container.Object().Get(index.Str())
		if !ok {
			return Null, NewRuntimeError(nil, "Property '%s' not found", index.Str())
		}
		return v, nil
	default:
		return Null, NewTypeError("list or object", container.Kind().String(), nil)
	}
}

func indexSet(container, index, v Value) *Error {
	switch container.Kind() {
	case KindList:
		l := container.List()
		i, err := listIndex(l, index)
		if err != nil {
			return err
		}
		l.Items[i] = v
		return nil
	case KindObject:
		if !index.IsString() {
			return NewTypeError("string", index.Kind().String(), nil)
		}
		container.Object().Set(index.Str(), v)
		return nil
	default:
		return NewTypeError("list or object", container.Kind().String(), nil)
	}
}

// ---------------------------------------------------------------------------
// Stack helpers
// ---------------------------------------------------------------------------

func (vm *VM) push(v Value) {
	vm.stack = append(vm.stack, v)
}

func (vm *VM) pop() (Value, *Error) {
	if len(vm.stack) == 0 {
		return Null, NewRuntimeError(nil, "Stack underflow")
	}
	v := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	return v, nil
}

// pop2 pops the top value and the one beneath it, in that order.
func (vm *VM) pop2() (top, below Value, err *Error) {
	if len(vm.stack) < 2 {
		return Null, Null, NewRuntimeError(nil, "Stack underflow")
	}
	top = vm.stack[len(vm.stack)-1]
	below = vm.stack[len(vm.stack)-2]
	vm.stack = vm.stack[:len(vm.stack)-2]
	return top, below, nil
}

func (vm *VM) peek(distance int) (Value, *Error) {
	if distance >= len(vm.stack) {
		return Null, NewRuntimeError(nil, "Stack underflow")
	}
	return vm.stack[len(vm.stack)-1-distance], nil
}

// localSlot reads a slot operand and returns its absolute stack index, or -1.
func (vm *VM) localSlot(frame *CallFrame) int {
	slot := frame.bp + int(vm.readByte(frame))
	if slot >= len(vm.stack) {
		return -1
	}
	return slot
}

// Bytecode reading helpers. step has already checked the operands are present.

func (vm *VM) readByte(frame *CallFrame) byte {
	b := frame.fn.Chunk.Code[frame.ip]
	frame.ip++
	return b
}

func (vm *VM) readUint16(frame *CallFrame) uint16 {
	v, _ := frame.fn.Chunk.ReadUint16(frame.ip)
	frame.ip += 2
	return v
}

func (vm *VM) readConstant(frame *CallFrame) (Value, *Error) {
	idx := int(vm.readByte(frame))
	if idx >= len(frame.fn.Chunk.Constants) {
		return Null, NewRuntimeError(nil, "Constant index out of bounds")
	}
	return frame.fn.Chunk.Constants[idx], nil
}

func (vm *VM) readName(frame *CallFrame) (string, *Error) {
	k, err := vm.readConstant(frame)
	if err != nil {
		return "", err
	}
	if !k.IsString() {
		return "", NewRuntimeError(nil, "Corrupt bytecode: name constant is not a string")
	}
	return k.Str(), nil
}

func (vm *VM) jumpForward(frame *CallFrame, offset uint16) *Error {
	target := frame.ip + int(offset)
	if target > len(frame.fn.Chunk.Code) {
		return NewRuntimeError(nil, "Jump target out of range")
	}
	frame.ip = target
	return nil
}

func (vm *VM) jumpBackward(frame *CallFrame, offset uint16) *Error {
	target := frame.ip - int(offset)
	if target < 0 {
		return NewRuntimeError(nil, "Jump target out of range")
	}
	frame.ip = target
	return nil
}

func (vm *VM) traceInstruction(frame *CallFrame) {
	var sb strings.Builder
	sb.WriteString("          ")
	for _, v := range vm.stack {
		sb.WriteString("[ ")
		sb.WriteString(v.Inspect())
		sb.WriteString(" ]")
	}
	sb.WriteString("\n")
	text, _ := frame.fn.Chunk.DisassembleInstruction(frame.ip)
	fmt.Fprintf(&sb, "%04d %s\n", frame.ip, text)
	io.WriteString(vm.trace, sb.String())
}

// ---------------------------------------------------------------------------
// Introspection
// ---------------------------------------------------------------------------

// IP returns the instruction pointer of the top frame, or -1 when halted.
func (vm *VM) IP() int {
	if len(vm.frames) == 0 {
		return -1
	}
	return vm.frames[len(vm.frames)-1].ip
}

// CurrentLine returns the source line of the next instruction, or 0.
func (vm *VM) CurrentLine() int {
	if len(vm.frames) == 0 {
		return 0
	}
	frame := vm.frames[len(vm.frames)-1]
	return frame.fn.Chunk.LineAt(frame.ip)
}

// CurrentFunction returns the function of the top frame, or nil when halted.
func (vm *VM) CurrentFunction() *Function {
	if len(vm.frames) == 0 {
		return nil
	}
	return vm.frames[len(vm.frames)-1].fn
}

// StackSnapshot returns the operand stack, bottom first, in inspect form.
func (vm *VM) StackSnapshot() []string {
	out := make([]string, len(vm.stack))
	for i, v := range vm.stack {
		out[i] = v.Inspect()
	}
	return out
}

// StackDepth returns the number of values on the operand stack.
func (vm *VM) StackDepth() int {
	return len(vm.stack)
}

// FrameCount returns the number of active call frames.
func (vm *VM) FrameCount() int {
	return len(vm.frames)
}

// Exports returns a copy of the values recorded by export.
func (vm *VM) Exports() map[string]Value {
	out := make(map[string]Value, len(vm.exports))
	for k, v := range vm.exports {
		out[k] = v
	}
	return out
}

// Output returns the lines printed so far.
func (vm *VM) Output() []string {
	out := make([]string, len(vm.output))
	copy(out, vm.output)
	return out
}

// InstructionCount returns the number of instructions executed.
func (vm *VM) InstructionCount() int {
	return vm.instructions
}

// Globals returns the global environment.
func (vm *VM) Globals() *Environment {
	return vm.globals
}

// Halted reports whether the outermost frame has returned.
func (vm *VM) Halted() bool {
	return vm.halted
}

// Err returns the error that stopped the VM, if any.
func (vm *VM) Err() error {
	if vm.err == nil {
		return nil
	}
	return vm.err
}
