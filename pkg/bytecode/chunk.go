package bytecode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// MaxConstants is the number of constants a single-byte operand can address.
const MaxConstants = 256

// ErrJumpTooLarge is returned when a jump distance does not fit in 16 bits.
var ErrJumpTooLarge = errors.New("Too much code to jump over")

// Chunk is one function's compiled bytecode: the instruction stream, its
// constant pool, and a line table with one entry per code byte.
type Chunk struct {
	Code      []byte
	Constants []Value
	Lines     []int
}

// NewChunk creates a new empty chunk.
func NewChunk() *Chunk {
	return &Chunk{
		Code:      make([]byte, 0, 64),
		Constants: make([]Value, 0, 8),
		Lines:     make([]int, 0, 64),
	}
}

// Write appends one byte attributed to source line.
func (c *Chunk) Write(b byte, line int) {
	c.Code = append(c.Code, b)
	c.Lines = append(c.Lines, line)
}

// WriteOp appends an opcode byte.
func (c *Chunk) WriteOp(op Opcode, line int) int {
	offset := len(c.Code)
	c.Write(byte(op), line)
	return offset
}

// WriteOpOperand appends an opcode followed by a one-byte operand.
func (c *Chunk) WriteOpOperand(op Opcode, operand byte, line int) int {
	offset := c.WriteOp(op, line)
	c.Write(operand, line)
	return offset
}

// WriteOpUint16 appends an opcode followed by a big-endian two-byte operand.
func (c *Chunk) WriteOpUint16(op Opcode, operand uint16, line int) int {
	offset := c.WriteOp(op, line)
	c.Write(byte(operand>>8), line)
	c.Write(byte(operand), line)
	return offset
}

// AddConstant appends v to the pool and returns its index. Constants are
// never deduplicated; callers check the index against MaxConstants.
func (c *Chunk) AddConstant(v Value) int {
	c.Constants = append(c.Constants, v)
	return len(c.Constants) - 1
}

// EmitJump emits a forward jump with a placeholder offset.
// Returns the offset of the placeholder for later patching.
func (c *Chunk) EmitJump(op Opcode, line int) int {
	c.WriteOpUint16(op, 0xFFFF, line)
	return len(c.Code) - 2
}

// PatchJump overwrites the placeholder at operandOffset with the distance
// from just past the operand to the current end of code.
func (c *Chunk) PatchJump(operandOffset int) error {
	if operandOffset < 0 || operandOffset+2 > len(c.Code) {
		return fmt.Errorf("jump operand offset %d out of range", operandOffset)
	}
	distance := len(c.Code) - operandOffset - 2
	if distance > math.MaxUint16 {
		return ErrJumpTooLarge
	}
	binary.BigEndian.PutUint16(c.Code[operandOffset:], uint16(distance))
	return nil
}

// EmitLoop emits a backward jump (OpLoop or OpRepeatEnd) to loopStart. The
// operand is the distance from just past the operand back to loopStart.
func (c *Chunk) EmitLoop(op Opcode, loopStart, line int) error {
	distance := len(c.Code) + 3 - loopStart
	if distance > math.MaxUint16 {
		return ErrJumpTooLarge
	}
	c.WriteOpUint16(op, uint16(distance), line)
	return nil
}

// CurrentOffset returns the offset the next written byte will occupy.
func (c *Chunk) CurrentOffset() int {
	return len(c.Code)
}

// LineAt returns the source line of the byte at offset, or 0 if unknown.
func (c *Chunk) LineAt(offset int) int {
	if offset < 0 || offset >= len(c.Lines) {
		return 0
	}
	return c.Lines[offset]
}

// ReadUint16 reads a big-endian operand at offset.
func (c *Chunk) ReadUint16(offset int) (uint16, bool) {
	if offset < 0 || offset+2 > len(c.Code) {
		return 0, false
	}
	return binary.BigEndian.Uint16(c.Code[offset:]), true
}

// Validate checks the structural invariants of c and of every function
// constant reachable from it.
func (c *Chunk) Validate() error {
	return c.validate(0)
}

func (c *Chunk) validate(depth int) error {
	if depth > 64 {
		return fmt.Errorf("functions nested too deeply")
	}
	if len(c.Lines) != len(c.Code) {
		return fmt.Errorf("line table has %d entries for %d code bytes", len(c.Lines), len(c.Code))
	}
	if len(c.Constants) > MaxConstants {
		return fmt.Errorf("%d constants exceed the limit of %d", len(c.Constants), MaxConstants)
	}
	for i, k := range c.Constants {
		switch k.Kind() {
		case KindNumber, KindString, KindBoolean, KindNull:
		case KindFunction:
			fn := k.Function()
			if fn == nil || fn.Chunk == nil {
				return fmt.Errorf("constant %d: function without code", i)
			}
			if err := fn.Chunk.validate(depth + 1); err != nil {
				return fmt.Errorf("function %s: %w", fn.Name, err)
			}
		default:
			return fmt.Errorf("constant %d: %s values cannot be constants", i, k.Kind())
		}
	}
	return nil
}
