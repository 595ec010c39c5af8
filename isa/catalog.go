package isa

// Shape is the encoding layout of an instruction word.
type Shape int

const (
	ShapeR = Shape(0) // R-type: opcode | rs | rt | rd | shamt | funct
	ShapeI = Shape(1) // I-type: opcode | rs | rt | imm16
)

// String returns the conventional single-letter shape name.
func (s Shape) String() string {
	if s == ShapeR {
		return "R"
	}
	return "I"
}

// Primary opcode field values. All R-type instructions share OpRType and
// are distinguished by their function code.
const (
	OpRType = uint8(0x00)
	OpBeq   = uint8(0x04)
	OpBne   = uint8(0x05)
	OpBlez  = uint8(0x06)
	OpBgtz  = uint8(0x07)
	OpAddi  = uint8(0x08)
	OpAddiu = uint8(0x09)
	OpSlti  = uint8(0x0a)
	OpSltiu = uint8(0x0b)
	OpAndi  = uint8(0x0c)
	OpOri   = uint8(0x0d)
	OpXori  = uint8(0x0e)
	OpLui   = uint8(0x0f)
	OpLb    = uint8(0x20)
	OpLh    = uint8(0x21)
	OpLw    = uint8(0x22)
	OpLbu   = uint8(0x24)
	OpLhu   = uint8(0x25)
	OpSb    = uint8(0x28)
	OpSh    = uint8(0x29)
	OpSw    = uint8(0x2b)
)

// Function code field values for the R-type instructions.
const (
	FnSll     = uint8(0x00)
	FnSrl     = uint8(0x02)
	FnSra     = uint8(0x03)
	FnSllv    = uint8(0x04)
	FnSrlv    = uint8(0x06)
	FnSrav    = uint8(0x07)
	FnJr      = uint8(0x08)
	FnJalr    = uint8(0x09)
	FnSyscall = uint8(0x0c)
	FnMfhi    = uint8(0x10)
	FnMthi    = uint8(0x11)
	FnMflo    = uint8(0x12)
	FnMtlo    = uint8(0x13)
	FnMult    = uint8(0x18)
	FnMultu   = uint8(0x19)
	FnDiv     = uint8(0x1a)
	FnDivu    = uint8(0x1b)
	FnAdd     = uint8(0x20)
	FnAddu    = uint8(0x21)
	FnSub     = uint8(0x22)
	FnSubu    = uint8(0x23)
	FnAnd     = uint8(0x24)
	FnOr      = uint8(0x25)
	FnXor     = uint8(0x26)
	FnNor     = uint8(0x27)
	FnSlt     = uint8(0x2a)
	FnSltu    = uint8(0x2b)
)

// Descriptor is the catalog entry for one mnemonic. Format lists the
// operand order the assembler expects: register fields by name
// ("rd,rs,rt"), "shamt" for shift amounts, "imm" for immediates, "off"
// for branch targets, and "imm(rs)" for base+offset addressing.
type Descriptor struct {
	Mnemonic string
	Shape    Shape
	Opcode   uint8
	Funct    uint8 // R-type only
	Format   string
}

var catalog = []Descriptor{
	// R-type, opcode 0.
	{"sll", ShapeR, OpRType, FnSll, "rd,rt,shamt"},
	{"srl", ShapeR, OpRType, FnSrl, "rd,rt,shamt"},
	{"sra", ShapeR, OpRType, FnSra, "rd,rt,shamt"},
	{"sllv", ShapeR, OpRType, FnSllv, "rd,rt,rs"},
	{"srlv", ShapeR, OpRType, FnSrlv, "rd,rt,rs"},
	{"srav", ShapeR, OpRType, FnSrav, "rd,rt,rs"},
	{"jr", ShapeR, OpRType, FnJr, "rs"},
	{"jalr", ShapeR, OpRType, FnJalr, "rd,rs"},
	{"syscall", ShapeR, OpRType, FnSyscall, ""},
	{"mfhi", ShapeR, OpRType, FnMfhi, "rd"},
	{"mthi", ShapeR, OpRType, FnMthi, "rs"},
	{"mflo", ShapeR, OpRType, FnMflo, "rd"},
	{"mtlo", ShapeR, OpRType, FnMtlo, "rs"},
	{"mult", ShapeR, OpRType, FnMult, "rs,rt"},
	{"multu", ShapeR, OpRType, FnMultu, "rs,rt"},
	{"div", ShapeR, OpRType, FnDiv, "rs,rt"},
	{"divu", ShapeR, OpRType, FnDivu, "rs,rt"},
	{"add", ShapeR, OpRType, FnAdd, "rd,rs,rt"},
	{"addu", ShapeR, OpRType, FnAddu, "rd,rs,rt"},
	{"sub", ShapeR, OpRType, FnSub, "rd,rs,rt"},
	{"subu", ShapeR, OpRType, FnSubu, "rd,rs,rt"},
	{"and", ShapeR, OpRType, FnAnd, "rd,rs,rt"},
	{"or", ShapeR, OpRType, FnOr, "rd,rs,rt"},
	{"xor", ShapeR, OpRType, FnXor, "rd,rs,rt"},
	{"nor", ShapeR, OpRType, FnNor, "rd,rs,rt"},
	{"slt", ShapeR, OpRType, FnSlt, "rd,rs,rt"},
	{"sltu", ShapeR, OpRType, FnSltu, "rd,rs,rt"},

	// I-type.
	{"beq", ShapeI, OpBeq, 0, "rs,rt,off"},
	{"bne", ShapeI, OpBne, 0, "rs,rt,off"},
	{"blez", ShapeI, OpBlez, 0, "rs,off"},
	{"bgtz", ShapeI, OpBgtz, 0, "rs,off"},
	{"addi", ShapeI, OpAddi, 0, "rt,rs,imm"},
	{"addiu", ShapeI, OpAddiu, 0, "rt,rs,imm"},
	{"slti", ShapeI, OpSlti, 0, "rt,rs,imm"},
	{"sltiu", ShapeI, OpSltiu, 0, "rt,rs,imm"},
	{"andi", ShapeI, OpAndi, 0, "rt,rs,imm"},
	{"ori", ShapeI, OpOri, 0, "rt,rs,imm"},
	{"xori", ShapeI, OpXori, 0, "rt,rs,imm"},
	{"lui", ShapeI, OpLui, 0, "rt,imm"},
	{"lb", ShapeI, OpLb, 0, "rt,imm(rs)"},
	{"lh", ShapeI, OpLh, 0, "rt,imm(rs)"},
	{"lw", ShapeI, OpLw, 0, "rt,imm(rs)"},
	{"lbu", ShapeI, OpLbu, 0, "rt,imm(rs)"},
	{"lhu", ShapeI, OpLhu, 0, "rt,imm(rs)"},
	{"sb", ShapeI, OpSb, 0, "rt,imm(rs)"},
	{"sh", ShapeI, OpSh, 0, "rt,imm(rs)"},
	{"sw", ShapeI, OpSw, 0, "rt,imm(rs)"},
}

var (
	byMnemonic = map[string]Descriptor{}
	byOpcode   = map[uint8]Descriptor{}
	byFunct    = map[uint8]Descriptor{}
)

func init() {
	for _, desc := range catalog {
		byMnemonic[desc.Mnemonic] = desc
		if desc.Shape == ShapeR {
			byFunct[desc.Funct] = desc
		} else {
			byOpcode[desc.Opcode] = desc
		}
	}
}

// Lookup finds the catalog entry for a mnemonic.
func Lookup(mnemonic string) (desc Descriptor, ok bool) {
	desc, ok = byMnemonic[mnemonic]
	return
}

// Classify names a decoded (opcode, funct) pair. The funct argument is
// only consulted when opcode is OpRType.
func Classify(opcode, funct uint8) (mnemonic string, ok bool) {
	var desc Descriptor
	if opcode == OpRType {
		desc, ok = byFunct[funct]
	} else {
		desc, ok = byOpcode[opcode]
	}
	mnemonic = desc.Mnemonic
	return
}

// Mnemonics returns the catalog entries in a stable order.
func Mnemonics() []Descriptor {
	out := make([]Descriptor, len(catalog))
	copy(out, catalog)
	return out
}

// zeroExtended lists the logical-immediate instructions whose 16-bit
// immediate is zero-extended instead of sign-extended.
var zeroExtended = map[uint8]bool{
	OpAndi: true,
	OpOri:  true,
	OpXori: true,
}
