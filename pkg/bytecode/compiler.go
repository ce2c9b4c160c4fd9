package bytecode

import (
	"errors"
	"math"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/chazu/pumpkin/pkg/ast"
)

// ScriptName is the name of the implicit top-level function.
const ScriptName = "<script>"

var compilerLog = commonlog.GetLogger("pumpkin.compiler")

// Compiler lowers one function body to one Chunk. Nested function
// declarations are compiled by a fresh Compiler whose result becomes a
// function constant of the enclosing chunk.
type Compiler struct {
	fn    *Function
	chunk *Chunk

	// Parameter name -> stack slot. Every other name is a global.
	locals map[string]int

	// Name constants already in the pool, so repeated references share a slot.
	names map[string]byte

	// Source tracking for the line table and error locations
	line int
	loc  *ast.SourceLocation
}

// Compile compiles a program into its implicit <script> function.
func Compile(prog *ast.Program) (*Function, error) {
	if prog == nil {
		return nil, NewRuntimeError(nil, "No program to compile")
	}
	c := newCompiler(ScriptName, nil)
	c.setLocation(prog.Location())

	for _, stmt := range prog.Body {
		if err := c.compileStatement(stmt); err != nil {
			return nil, err
		}
	}
	c.emit(OpNil)
	c.emit(OpReturn)

	compilerLog.Debugf("compiled %s: %d bytes, %d constants", c.fn.Name, len(c.chunk.Code), len(c.chunk.Constants))
	return c.fn, nil
}

func newCompiler(name string, params []*ast.Identifier) *Compiler {
	chunk := NewChunk()
	c := &Compiler{
		fn:     &Function{Name: name, Arity: len(params), Chunk: chunk},
		chunk:  chunk,
		locals: make(map[string]int, len(params)),
		names:  make(map[string]byte),
	}
	for i, p := range params {
		c.locals[p.Name] = i
	}
	return c
}

// setLocation makes loc current if it is known, returning the previous
// state so callers can restore it once the node is compiled.
func (c *Compiler) setLocation(loc *ast.SourceLocation) (int, *ast.SourceLocation) {
	prevLine, prevLoc := c.line, c.loc
	if loc != nil {
		c.loc = loc
		if loc.Line > 0 {
			c.line = loc.Line
		}
	}
	return prevLine, prevLoc
}

func (c *Compiler) restoreLocation(line int, loc *ast.SourceLocation) {
	c.line, c.loc = line, loc
}

func (c *Compiler) errorf(format string, args ...interface{}) *Error {
	return NewRuntimeError(c.loc, format, args...)
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (c *Compiler) compileStatement(stmt ast.Statement) error {
	line, loc := c.setLocation(stmt.Location())
	defer c.restoreLocation(line, loc)

	switch s := stmt.(type) {
	case *ast.LetStmt:
		if err := c.compileExpr(s.Value); err != nil {
			return err
		}
		if err := c.storeName(s.Name.Name); err != nil {
			return err
		}
		c.emit(OpPop)

	case *ast.AssignStmt:
		return c.compileAssign(s)

	case *ast.ShowStmt:
		if err := c.compileExpr(s.Expression); err != nil {
			return err
		}
		c.emit(OpPrint)

	case *ast.ExprStmt:
		if err := c.compileExpr(s.Expression); err != nil {
			return err
		}
		c.emit(OpPop)

	case *ast.IfStmt:
		return c.compileIf(s)

	case *ast.WhileStmt:
		return c.compileWhile(s)

	case *ast.RepeatStmt:
		return c.compileRepeat(s)

	case *ast.Block:
		return c.compileBlock(s)

	case *ast.ReturnStmt:
		if s.Argument != nil {
			if err := c.compileExpr(s.Argument); err != nil {
				return err
			}
		} else {
			c.emit(OpNil)
		}
		c.emit(OpReturn)

	case *ast.FuncDecl:
		return c.compileFunction(s)

	case *ast.ImportStmt:
		if err := c.emitNamed(OpImport, s.Module); err != nil {
			return err
		}
		segments := strings.Split(s.Module, "/")
		if err := c.storeName(segments[len(segments)-1]); err != nil {
			return err
		}
		c.emit(OpPop)

	case *ast.ExportStmt:
		return c.compileExport(s)

	default:
		return c.errorf("Unsupported statement kind '%s'", stmt.Kind())
	}
	return nil
}

func (c *Compiler) compileBlock(b *ast.Block) error {
	if b == nil {
		return nil
	}
	for _, stmt := range b.Body {
		if err := c.compileStatement(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (c *Compiler) compileAssign(s *ast.AssignStmt) error {
	switch target := s.Target.(type) {
	case *ast.Identifier:
		if err := c.compileExpr(s.Value); err != nil {
			return err
		}
		if err := c.storeName(target.Name); err != nil {
			return err
		}
		c.emit(OpPop)
		return nil

	case *ast.IndexExpr:
		if err := c.compileExpr(target.Object); err != nil {
			return err
		}
		if err := c.compileExpr(target.Index); err != nil {
			return err
		}
		if err := c.compileExpr(s.Value); err != nil {
			return err
		}
		c.emit(OpIndexSet)
		c.emit(OpPop)
		return nil

	default:
		return c.errorf("Complex assignment (only var/index) supported")
	}
}

// compileIf lowers:
//
//	cond; JUMP_IF_FALSE else; POP; then; JUMP end; else: POP; else-block; end:
func (c *Compiler) compileIf(s *ast.IfStmt) error {
	if err := c.compileExpr(s.Condition); err != nil {
		return err
	}
	thenJump := c.chunk.EmitJump(OpJumpIfFalse, c.line)
	c.emit(OpPop)
	if err := c.compileBlock(s.Then); err != nil {
		return err
	}
	elseJump := c.chunk.EmitJump(OpJump, c.line)

	if err := c.patchJump(thenJump); err != nil {
		return err
	}
	c.emit(OpPop)
	if err := c.compileBlock(s.Else); err != nil {
		return err
	}
	return c.patchJump(elseJump)
}

// compileWhile lowers:
//
//	start: cond; JUMP_IF_FALSE exit; POP; body; LOOP start; exit: POP
func (c *Compiler) compileWhile(s *ast.WhileStmt) error {
	loopStart := c.chunk.CurrentOffset()
	if err := c.compileExpr(s.Condition); err != nil {
		return err
	}
	exitJump := c.chunk.EmitJump(OpJumpIfFalse, c.line)
	c.emit(OpPop)
	if err := c.compileBlock(s.Body); err != nil {
		return err
	}
	if err := c.emitLoop(OpLoop, loopStart); err != nil {
		return err
	}
	if err := c.patchJump(exitJump); err != nil {
		return err
	}
	c.emit(OpPop)
	return nil
}

// compileRepeat lowers:
//
//	count; REPEAT_START end; body: body; REPEAT_END body; end:
//
// The counter lives on the stack while the body runs.
func (c *Compiler) compileRepeat(s *ast.RepeatStmt) error {
	if err := c.compileExpr(s.Count); err != nil {
		return err
	}
	endJump := c.chunk.EmitJump(OpRepeatStart, c.line)
	bodyStart := c.chunk.CurrentOffset()
	if err := c.compileBlock(s.Body); err != nil {
		return err
	}
	if err := c.emitLoop(OpRepeatEnd, bodyStart); err != nil {
		return err
	}
	return c.patchJump(endJump)
}

func (c *Compiler) compileFunction(s *ast.FuncDecl) error {
	if len(s.Params) > math.MaxUint8 {
		return c.errorf("Too many parameters (max %d)", math.MaxUint8)
	}
	child := newCompiler(s.Name.Name, s.Params)
	child.line, child.loc = c.line, c.loc
	if err := child.compileBlock(s.Body); err != nil {
		return err
	}
	child.emit(OpNil)
	child.emit(OpReturn)
	compilerLog.Debugf("compiled %s: %d bytes, %d constants", child.fn.Name, len(child.chunk.Code), len(child.chunk.Constants))

	if err := c.emitConstant(FunctionValue(child.fn)); err != nil {
		return err
	}
	if err := c.storeName(s.Name.Name); err != nil {
		return err
	}
	c.emit(OpPop)
	return nil
}

func (c *Compiler) compileExport(s *ast.ExportStmt) error {
	var name string
	switch decl := s.Declaration.(type) {
	case *ast.LetStmt:
		name = decl.Name.Name
	case *ast.FuncDecl:
		name = decl.Name.Name
	default:
		return c.errorf("Only Let and Func can be exported")
	}
	if err := c.compileStatement(s.Declaration); err != nil {
		return err
	}
	if err := c.loadName(name); err != nil {
		return err
	}
	return c.emitNamed(OpExport, name)
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

func (c *Compiler) compileExpr(expr ast.Expression) error {
	if expr == nil {
		return c.errorf("Missing expression")
	}
	line, loc := c.setLocation(expr.Location())
	defer c.restoreLocation(line, loc)

	switch e := expr.(type) {
	case *ast.Literal:
		return c.compileLiteral(e)

	case *ast.Identifier:
		return c.loadName(e.Name)

	case *ast.BinaryExpr:
		return c.compileBinary(e)

	case *ast.UnaryExpr:
		if err := c.compileExpr(e.Argument); err != nil {
			return err
		}
		switch e.Operator {
		case "-":
			c.emit(OpNegate)
		case "!", "not":
			c.emit(OpNot)
		default:
			return c.errorf("Unsupported unary operator '%s'", e.Operator)
		}

	case *ast.CallExpr:
		if len(e.Arguments) > math.MaxUint8 {
			return c.errorf("Too many arguments (max %d)", math.MaxUint8)
		}
		if err := c.compileExpr(e.Callee); err != nil {
			return err
		}
		for _, arg := range e.Arguments {
			if err := c.compileExpr(arg); err != nil {
				return err
			}
		}
		c.emitOperand(OpCall, byte(len(e.Arguments)))

	case *ast.ArrayLiteral:
		if len(e.Elements) > math.MaxUint16 {
			return c.errorf("Array literal too large")
		}
		for _, el := range e.Elements {
			if err := c.compileExpr(el); err != nil {
				return err
			}
		}
		c.chunk.WriteOpUint16(OpArrayLit, uint16(len(e.Elements)), c.line)

	case *ast.ObjectLiteral:
		if len(e.Properties) > math.MaxUint16 {
			return c.errorf("Object literal too large")
		}
		for _, p := range e.Properties {
			if err := c.emitConstant(StringValue(p.Key)); err != nil {
				return err
			}
			if err := c.compileExpr(p.Value); err != nil {
				return err
			}
		}
		c.chunk.WriteOpUint16(OpObjectLit, uint16(len(e.Properties)), c.line)

	case *ast.IndexExpr:
		if err := c.compileExpr(e.Object); err != nil {
			return err
		}
		if err := c.compileExpr(e.Index); err != nil {
			return err
		}
		c.emit(OpIndexGet)

	case *ast.MemberExpr:
		if err := c.compileExpr(e.Object); err != nil {
			return err
		}
		return c.emitNamed(OpGetProp, e.Property.Name)

	default:
		return c.errorf("Unsupported expression kind '%s'", expr.Kind())
	}
	return nil
}

func (c *Compiler) compileLiteral(lit *ast.Literal) error {
	switch v := lit.Value.(type) {
	case nil:
		c.emit(OpNil)
	case bool:
		if v {
			c.emit(OpTrue)
		} else {
			c.emit(OpFalse)
		}
	case float64:
		return c.emitConstant(NumberValue(v))
	case int:
		return c.emitConstant(NumberValue(float64(v)))
	case string:
		return c.emitConstant(StringValue(v))
	default:
		return c.errorf("Unsupported literal %v", lit.Value)
	}
	return nil
}

var binaryOps = map[string][]Opcode{
	"+":  {OpAdd},
	"-":  {OpSub},
	"*":  {OpMul},
	"/":  {OpDiv},
	"%":  {OpMod},
	"^":  {OpPow},
	"**": {OpPow},
	"==": {OpEqual},
	"!=": {OpNotEqual},
	">":  {OpGreater},
	">=": {OpGreaterEqual},
	"<":  {OpLess},
	"<=": {OpLessEqual},
}

func (c *Compiler) compileBinary(e *ast.BinaryExpr) error {
	switch e.Operator {
	case "and", "&&":
		return c.compileAnd(e)
	case "or", "||":
		return c.compileOr(e)
	}

	ops, ok := binaryOps[e.Operator]
	if !ok {
		return c.errorf("Unsupported binary operator '%s'", e.Operator)
	}
	if err := c.compileExpr(e.Left); err != nil {
		return err
	}
	if err := c.compileExpr(e.Right); err != nil {
		return err
	}
	for _, op := range ops {
		c.emit(op)
	}
	return nil
}

// compileAnd lowers: left; JUMP_IF_FALSE end; POP; right; end: NOT; NOT
func (c *Compiler) compileAnd(e *ast.BinaryExpr) error {
	if err := c.compileExpr(e.Left); err != nil {
		return err
	}
	endJump := c.chunk.EmitJump(OpJumpIfFalse, c.line)
	c.emit(OpPop)
	if err := c.compileExpr(e.Right); err != nil {
		return err
	}
	if err := c.patchJump(endJump); err != nil {
		return err
	}
	c.emit(OpNot)
	c.emit(OpNot)
	return nil
}

// compileOr lowers: left; JUMP_IF_FALSE rhs; JUMP end; rhs: POP; right; end: NOT; NOT
func (c *Compiler) compileOr(e *ast.BinaryExpr) error {
	if err := c.compileExpr(e.Left); err != nil {
		return err
	}
	elseJump := c.chunk.EmitJump(OpJumpIfFalse, c.line)
	endJump := c.chunk.EmitJump(OpJump, c.line)
	if err := c.patchJump(elseJump); err != nil {
		return err
	}
	c.emit(OpPop)
	if err := c.compileExpr(e.Right); err != nil {
		return err
	}
	if err := c.patchJump(endJump); err != nil {
		return err
	}
	c.emit(OpNot)
	c.emit(OpNot)
	return nil
}

// ---------------------------------------------------------------------------
// Names
// ---------------------------------------------------------------------------

func (c *Compiler) loadName(name string) error {
	if slot, ok := c.locals[name]; ok {
		c.emitOperand(OpGetLocal, byte(slot))
		return nil
	}
	return c.emitNamed(OpGetGlobal, name)
}

// storeName leaves the stored value on the stack.
func (c *Compiler) storeName(name string) error {
	if slot, ok := c.locals[name]; ok {
		c.emitOperand(OpSetLocal, byte(slot))
		return nil
	}
	return c.emitNamed(OpSetGlobal, name)
}

// ---------------------------------------------------------------------------
// Emission helpers
// ---------------------------------------------------------------------------

func (c *Compiler) emit(op Opcode) int {
	return c.chunk.WriteOp(op, c.line)
}

func (c *Compiler) emitOperand(op Opcode, operand byte) int {
	return c.chunk.WriteOpOperand(op, operand, c.line)
}

func (c *Compiler) emitConstant(v Value) error {
	idx, err := c.addConstant(v)
	if err != nil {
		return err
	}
	c.emitOperand(OpConstant, idx)
	return nil
}

// emitNamed emits op with the constant index of name as its operand.
func (c *Compiler) emitNamed(op Opcode, name string) error {
	idx, ok := c.names[name]
	if !ok {
		var err error
		idx, err = c.addConstant(StringValue(name))
		if err != nil {
			return err
		}
		c.names[name] = idx
	}
	c.emitOperand(op, idx)
	return nil
}

func (c *Compiler) addConstant(v Value) (byte, error) {
	if len(c.chunk.Constants) >= MaxConstants {
		return 0, c.errorf("Too many constants in one chunk")
	}
	return byte(c.chunk.AddConstant(v)), nil
}

func (c *Compiler) patchJump(operandOffset int) error {
	if err := c.chunk.PatchJump(operandOffset); err != nil {
		return c.jumpError(err)
	}
	return nil
}

func (c *Compiler) emitLoop(op Opcode, loopStart int) error {
	if err := c.chunk.EmitLoop(op, loopStart, c.line); err != nil {
		return c.jumpError(err)
	}
	return nil
}

func (c *Compiler) jumpError(err error) error {
	if errors.Is(err, ErrJumpTooLarge) {
		return c.errorf("%s", ErrJumpTooLarge.Error())
	}
	return c.errorf("%s", err.Error())
}
