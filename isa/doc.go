// Package isa describes the MIPS32 instruction subset understood by the
// sbmips virtual machine.
//
// The catalog maps mnemonics to their encoding shape (R-type or I-type),
// opcode and function-code fields, and the operand order expected by the
// assembler. Decode and Encode convert between 32-bit instruction words
// and their field breakdown; the catalog itself carries no execution
// semantics.
package isa
