// Package bytecode compiles Pumpkin programs to bytecode and executes them
// on a stack-based virtual machine.
//
// The bytecode format is designed for:
//   - Compact representation (one opcode byte plus 0-2 operand bytes)
//   - Checked decoding (every byte is looked up in the opcode table; an
//     unknown byte is an error, never a guess)
//   - Easy serialization (a compiled script is written as a CBOR "PKBC" image)
//
// # Architecture Overview
//
//   - Value: the closed set of runtime values. Lists, objects and functions
//     are shared handles; everything else is copied.
//
//   - Chunk: one function's code, constant pool and per-byte line table.
//
//   - Opcodes: instructions grouped into ranges by category (stack and
//     constants, value access, arithmetic and logic, control flow,
//     aggregates and modules) so each range can grow independently.
//
//   - Compiler: lowers an ast.Program into the implicit <script> function.
//     Only function parameters are stack locals; every other name is a
//     global looked up by a name constant.
//
//   - VM: executes one instruction per Step against a shared operand stack
//     and a stack of call frames, bounded by the fuses in Limits.
//
//   - Debugger: line breakpoints and single-stepping built entirely on
//     VM.Step.
//
// # Jumps
//
// Jump operands are unsigned 16-bit big-endian distances measured from the
// byte after the operand. JUMP, JUMP_IF_FALSE and REPEAT_START add the
// distance to ip; LOOP and REPEAT_END subtract it.
//
// # Errors
//
// Every language-level failure is an *Error whose Kind is one of
// RuntimeError, TypeError, UndefinedVariableError, DivisionByZeroError or
// ResourceExhausted. Compile errors carry the location of the offending
// node; VM errors carry the line of the failing instruction.
package bytecode
