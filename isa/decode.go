package isa

// Field bit positions within an instruction word.
const (
	opcodeShift = 26
	rsShift     = 21
	rtShift     = 16
	rdShift     = 11
	shamtShift  = 6

	regMask   = uint32(0x1f)
	functMask = uint32(0x3f)
	immMask   = uint32(0xffff)
)

// Inst is a decoded instruction word.
type Inst struct {
	Word     uint32
	Mnemonic string
	Shape    Shape

	Opcode uint8
	Rs     uint8
	Rt     uint8
	Rd     uint8 // R-type only
	Shamt  uint8 // R-type only
	Funct  uint8 // R-type only
	Imm    uint16
}

// Decode breaks an instruction word into its fields and names it via the
// catalog. Words whose opcode or function code match no catalog entry
// return ErrUnknownOpcode or ErrUnknownFunct wrapped in an ErrDecode.
func Decode(word uint32) (inst Inst, err error) {
	inst = Inst{
		Word:   word,
		Opcode: uint8(word >> opcodeShift),
		Rs:     uint8((word >> rsShift) & regMask),
		Rt:     uint8((word >> rtShift) & regMask),
	}

	if inst.Opcode == OpRType {
		inst.Shape = ShapeR
		inst.Rd = uint8((word >> rdShift) & regMask)
		inst.Shamt = uint8((word >> shamtShift) & regMask)
		inst.Funct = uint8(word & functMask)

		mnemonic, ok := Classify(OpRType, inst.Funct)
		if !ok {
			err = &ErrDecode{Word: word, Err: ErrUnknownFunct}
			return
		}
		inst.Mnemonic = mnemonic
		return
	}

	inst.Shape = ShapeI
	inst.Imm = uint16(word & immMask)

	mnemonic, ok := Classify(inst.Opcode, 0)
	if !ok {
		err = &ErrDecode{Word: word, Err: ErrUnknownOpcode}
		return
	}
	inst.Mnemonic = mnemonic
	return
}

// Encode rebuilds the instruction word from the decoded fields. For any
// catalog-valid word, Decode followed by Encode reproduces the original.
func (inst Inst) Encode() uint32 {
	if inst.Shape == ShapeR {
		return uint32(OpRType)<<opcodeShift |
			uint32(inst.Rs)<<rsShift |
			uint32(inst.Rt)<<rtShift |
			uint32(inst.Rd)<<rdShift |
			uint32(inst.Shamt)<<shamtShift |
			uint32(inst.Funct)
	}

	return uint32(inst.Opcode)<<opcodeShift |
		uint32(inst.Rs)<<rsShift |
		uint32(inst.Rt)<<rtShift |
		uint32(inst.Imm)
}

// Imm32 widens the 16-bit immediate to 32 bits. The logical immediates
// (andi, ori, xori) zero-extend; every other I-type sign-extends.
func (inst Inst) Imm32() uint32 {
	if zeroExtended[inst.Opcode] {
		return uint32(inst.Imm)
	}
	return uint32(int32(int16(inst.Imm)))
}

// SImm is the sign-extended immediate as a signed value, used for
// effective addresses and branch offsets.
func (inst Inst) SImm() int32 {
	return int32(int16(inst.Imm))
}

// MakeR assembles an R-type instruction word.
func MakeR(funct, rs, rt, rd, shamt uint8) uint32 {
	return Inst{
		Shape: ShapeR,
		Rs:    rs,
		Rt:    rt,
		Rd:    rd,
		Shamt: shamt,
		Funct: funct,
	}.Encode()
}

// MakeI assembles an I-type instruction word.
func MakeI(opcode, rs, rt uint8, imm uint16) uint32 {
	return Inst{
		Shape:  ShapeI,
		Opcode: opcode,
		Rs:     rs,
		Rt:     rt,
		Imm:    imm,
	}.Encode()
}

// String renders the instruction in a disassembly-like form.
func (inst Inst) String() string {
	if inst.Mnemonic == "" {
		return f("0x%08x ?", inst.Word)
	}
	if inst.Shape == ShapeR {
		return f("%s rs=$%d rt=$%d rd=$%d shamt=%d", inst.Mnemonic, inst.Rs, inst.Rt, inst.Rd, inst.Shamt)
	}
	return f("%s rs=$%d rt=$%d imm=0x%04x", inst.Mnemonic, inst.Rs, inst.Rt, inst.Imm)
}
