package bytecode

import (
	"fmt"
	"sort"
)

// Opcode represents a bytecode instruction.
// Opcodes are organized into ranges by category so new instructions can be
// added to a category without renumbering the others.
type Opcode byte

const (
	// ========================================================================
	// Stack and constants (0x00-0x0F)
	// ========================================================================

	OpReturn   Opcode = 0x00 // Return top of stack (or null) from the current frame
	OpConstant Opcode = 0x01 // Push constant: OpConstant <index:u8>
	OpPop      Opcode = 0x02 // Pop and discard top of stack
	OpNil      Opcode = 0x03 // Push null
	OpTrue     Opcode = 0x04 // Push true
	OpFalse    Opcode = 0x05 // Push false
	OpPrint    Opcode = 0x06 // Pop and append display form to output

	// ========================================================================
	// Value access (0x10-0x2F)
	// ========================================================================

	OpGetLocal  Opcode = 0x10 // Push stack[bp+slot]: OpGetLocal <slot:u8>
	OpSetLocal  Opcode = 0x11 // stack[bp+slot] = peek: OpSetLocal <slot:u8>
	OpGetGlobal Opcode = 0x12 // Push global: OpGetGlobal <name:u8>
	OpSetGlobal Opcode = 0x13 // Assign or define global from peek: OpSetGlobal <name:u8>

	// ========================================================================
	// Arithmetic and logic (0x30-0x4F)
	// ========================================================================

	OpAdd          Opcode = 0x30 // Pop two, push sum or concatenation
	OpSub          Opcode = 0x31 // Pop two, push a - b (b is TOS)
	OpMul          Opcode = 0x32 // Pop two, push product
	OpDiv          Opcode = 0x33 // Pop two, push quotient; zero divisor fails
	OpEqual        Opcode = 0x34 // Pop two, push a == b
	OpGreater      Opcode = 0x35 // Pop two numbers, push a > b
	OpLess         Opcode = 0x36 // Pop two numbers, push a < b
	OpNot          Opcode = 0x37 // Pop one, push !truthy
	OpMod          Opcode = 0x38 // Pop two, push remainder; zero divisor fails
	OpPow          Opcode = 0x39 // Pop two, push a ^ b
	OpNegate       Opcode = 0x3A // Pop number, push -n
	OpNotEqual     Opcode = 0x3B // Pop two, push a != b
	OpGreaterEqual Opcode = 0x3C // Pop two numbers, push a >= b
	OpLessEqual    Opcode = 0x3D // Pop two numbers, push a <= b

	// ========================================================================
	// Control flow (0x50-0x6F)
	// ========================================================================

	OpJump        Opcode = 0x50 // ip += offset: OpJump <offset:u16>
	OpJumpIfFalse Opcode = 0x51 // if peek is falsey, ip += offset: OpJumpIfFalse <offset:u16>
	OpLoop        Opcode = 0x52 // ip -= offset: OpLoop <offset:u16>
	OpCall        Opcode = 0x53 // Call callee below argc args: OpCall <argc:u8>
	OpRepeatStart Opcode = 0x54 // Begin counted loop, skip body if count <= 0: <offset:u16>
	OpRepeatEnd   Opcode = 0x55 // Decrement counter, ip -= offset while > 0: <offset:u16>

	// ========================================================================
	// Aggregates, properties and modules (0x70-0x8F)
	// ========================================================================

	OpArrayLit  Opcode = 0x70 // Pop count values, push list: OpArrayLit <count:u16>
	OpIndexGet  Opcode = 0x71 // Pop index and container, push element
	OpIndexSet  Opcode = 0x72 // Pop value, index, container; store; push value
	OpGetProp   Opcode = 0x73 // Pop object, push field: OpGetProp <name:u8>
	OpImport    Opcode = 0x74 // Push registered module: OpImport <name:u8>
	OpExport    Opcode = 0x75 // Pop value, record export: OpExport <name:u8>
	OpObjectLit Opcode = 0x76 // Pop count key/value pairs, push object: OpObjectLit <count:u16>
)

// OpcodeInfo provides metadata about an opcode.
type OpcodeInfo struct {
	Name       string // Human-readable name
	StackPop   int    // Number of values popped (-1 = variable)
	StackPush  int    // Number of values pushed
	OperandLen int    // Number of operand bytes
}

// opcodeInfoTable maps opcodes to their metadata.
// It is also the decode table: a byte not present here is not an instruction.
var opcodeInfoTable = map[Opcode]OpcodeInfo{
	// Stack and constants
	OpReturn:   {"RETURN", 1, 0, 0},
	OpConstant: {"CONSTANT", 0, 1, 1},
	OpPop:      {"POP", 1, 0, 0},
	OpNil:      {"NIL", 0, 1, 0},
	OpTrue:     {"TRUE", 0, 1, 0},
	OpFalse:    {"FALSE", 0, 1, 0},
	OpPrint:    {"PRINT", 1, 0, 0},

	// Value access
	OpGetLocal:  {"GET_LOCAL", 0, 1, 1},
	OpSetLocal:  {"SET_LOCAL", 1, 1, 1},
	OpGetGlobal: {"GET_GLOBAL", 0, 1, 1},
	OpSetGlobal: {"SET_GLOBAL", 1, 1, 1},

	// Arithmetic and logic
	OpAdd:          {"ADD", 2, 1, 0},
	OpSub:          {"SUB", 2, 1, 0},
	OpMul:          {"MUL", 2, 1, 0},
	OpDiv:          {"DIV", 2, 1, 0},
	OpEqual:        {"EQUAL", 2, 1, 0},
	OpGreater:      {"GREATER", 2, 1, 0},
	OpLess:         {"LESS", 2, 1, 0},
	OpNot:          {"NOT", 1, 1, 0},
	OpMod:          {"MOD", 2, 1, 0},
	OpPow:          {"POW", 2, 1, 0},
	OpNegate:       {"NEGATE", 1, 1, 0},
	OpNotEqual:     {"NOT_EQUAL", 2, 1, 0},
	OpGreaterEqual: {"GREATER_EQUAL", 2, 1, 0},
	OpLessEqual:    {"LESS_EQUAL", 2, 1, 0},

	// Control flow
	OpJump:        {"JUMP", 0, 0, 2},
	OpJumpIfFalse: {"JUMP_IF_FALSE", 0, 0, 2}, // peeks
	OpLoop:        {"LOOP", 0, 0, 2},
	OpCall:        {"CALL", -1, 1, 1}, // Pops callee + argc args
	OpRepeatStart: {"REPEAT_START", -1, 0, 2},
	OpRepeatEnd:   {"REPEAT_END", -1, 0, 2},

	// Aggregates, properties and modules
	OpArrayLit:  {"ARRAY_LIT", -1, 1, 2},
	OpIndexGet:  {"INDEX_GET", 2, 1, 0},
	OpIndexSet:  {"INDEX_SET", 3, 1, 0},
	OpGetProp:   {"GET_PROP", 1, 1, 1},
	OpImport:    {"IMPORT", 0, 1, 1},
	OpExport:    {"EXPORT", 1, 0, 1},
	OpObjectLit: {"OBJECT_LIT", -1, 1, 2},
}

// DecodeOpcode maps a raw byte to an opcode. ok is false for bytes that do
// not name an instruction.
func DecodeOpcode(b byte) (op Opcode, ok bool) {
	op = Opcode(b)
	_, ok = opcodeInfoTable[op]
	return op, ok
}

// GetOpcodeInfo returns metadata for an opcode.
// Returns a zero OpcodeInfo with name "UNKNOWN" if the opcode is not recognized.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))}
}

// String returns the human-readable name of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// OperandLen returns the number of operand bytes for this opcode.
func (op Opcode) OperandLen() int {
	return GetOpcodeInfo(op).OperandLen
}

// InstructionLen returns the total length of an instruction (1 + operand bytes).
func (op Opcode) InstructionLen() int {
	return 1 + op.OperandLen()
}

// IsJump returns true if this opcode carries a relative code offset.
func (op Opcode) IsJump() bool {
	return op >= OpJump && op <= OpRepeatEnd && op != OpCall
}

// IsBackward returns true if this opcode's offset is subtracted from ip.
func (op Opcode) IsBackward() bool {
	return op == OpLoop || op == OpRepeatEnd
}

// AllOpcodes returns all defined opcodes in ascending order.
func AllOpcodes() []Opcode {
	opcodes := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		opcodes = append(opcodes, op)
	}
	sort.Slice(opcodes, func(i, j int) bool { return opcodes[i] < opcodes[j] })
	return opcodes
}

// OpcodeCount returns the number of defined opcodes.
func OpcodeCount() int {
	return len(opcodeInfoTable)
}
