package bytecode

import (
	"fmt"
	"strconv"
	"strings"
)

// Disassemble returns a human-readable listing of the chunk under a name
// header, followed by listings of any function constants it holds.
func (c *Chunk) Disassemble(name string) string {
	var sb strings.Builder
	c.disassembleInto(&sb, name, 0)
	return sb.String()
}

// DisassembleFunction is Disassemble using the function's own name.
func DisassembleFunction(fn *Function) string {
	return fn.Chunk.Disassemble(fn.Name)
}

func (c *Chunk) disassembleInto(sb *strings.Builder, name string, depth int) {
	fmt.Fprintf(sb, "== %s ==\n", name)

	prevLine := -1
	offset := 0
	for offset < len(c.Code) {
		text, n := c.DisassembleInstruction(offset)
		line := c.LineAt(offset)
		if line == prevLine {
			fmt.Fprintf(sb, "%04d    | %s\n", offset, text)
		} else {
			fmt.Fprintf(sb, "%04d %4d %s\n", offset, line, text)
		}
		prevLine = line
		offset += n
	}

	// Nested functions after their parent
	if depth > 64 {
		return
	}
	for _, k := range c.Constants {
		if fn := k.Function(); fn != nil && fn.Chunk != nil {
			sb.WriteString("\n")
			fn.Chunk.disassembleInto(sb, fn.Name, depth+1)
		}
	}
}

// DisassembleInstruction formats the instruction at offset.
// Returns the formatted text and the instruction length.
func (c *Chunk) DisassembleInstruction(offset int) (string, int) {
	if offset >= len(c.Code) {
		return "<end of code>", 0
	}

	op, ok := DecodeOpcode(c.Code[offset])
	if !ok {
		return fmt.Sprintf("UNKNOWN(0x%02X)", c.Code[offset]), 1
	}
	info := GetOpcodeInfo(op)
	if offset+1+info.OperandLen > len(c.Code) {
		return fmt.Sprintf("%-16s <truncated>", info.Name), len(c.Code) - offset
	}

	switch op {
	case OpConstant:
		idx := int(c.Code[offset+1])
		return fmt.Sprintf("%-16s %4d ; %s", info.Name, idx, c.constantText(idx)), 2

	case OpGetGlobal, OpSetGlobal, OpGetProp, OpImport, OpExport:
		idx := int(c.Code[offset+1])
		return fmt.Sprintf("%-16s %4d ; %s", info.Name, idx, c.nameText(idx)), 2

	case OpGetLocal, OpSetLocal, OpCall:
		return fmt.Sprintf("%-16s %4d", info.Name, c.Code[offset+1]), 2

	case OpJump, OpJumpIfFalse, OpLoop, OpRepeatStart, OpRepeatEnd:
		dist, _ := c.ReadUint16(offset + 1)
		target := offset + 3 + int(dist)
		if op.IsBackward() {
			target = offset + 3 - int(dist)
		}
		return fmt.Sprintf("%-16s %4d ; -> %04d", info.Name, dist, target), 3

	case OpArrayLit, OpObjectLit:
		count, _ := c.ReadUint16(offset + 1)
		return fmt.Sprintf("%-16s %4d", info.Name, count), 3

	default:
		return info.Name, 1
	}
}

func (c *Chunk) constantText(idx int) string {
	if idx >= len(c.Constants) {
		return "<bad constant>"
	}
	k := c.Constants[idx]
	if k.IsString() {
		return strconv.Quote(k.Str())
	}
	return k.String()
}

func (c *Chunk) nameText(idx int) string {
	if idx >= len(c.Constants) || !c.Constants[idx].IsString() {
		return "<bad name>"
	}
	return c.Constants[idx].Str()
}
