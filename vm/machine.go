package vm

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/sbvm/sbmips/isa"
)

// Register indexes with an O32 calling-convention role the engine or a
// host cares about.
const (
	RegZero = 0  // hard-wired zero
	RegV0   = 2  // syscall number / return value
	RegA0   = 4  // first syscall argument
	RegA1   = 5
	RegA2   = 6
	RegA3   = 7
	RegSP   = 29 // stack pointer
	RegRA   = 31 // return address
)

// RegNames are the O32 register names, indexed by register number.
var RegNames = [32]string{
	"zero", "at", "v0", "v1", "a0", "a1", "a2", "a3",
	"t0", "t1", "t2", "t3", "t4", "t5", "t6", "t7",
	"s0", "s1", "s2", "s3", "s4", "s5", "s6", "s7",
	"t8", "t9", "k0", "k1", "gp", "sp", "fp", "ra",
}

// State is the execution state of the machine.
type State int

const (
	Running = State(0)
	Halted  = State(1)
	Faulted = State(2)
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Halted:
		return "halted"
	case Faulted:
		return "faulted"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// SyscallHandler receives control on a syscall instruction. The handler
// reads the syscall number and arguments from the register file per the
// O32 convention and may write a result back. Returning halt stops the
// machine cleanly.
type SyscallHandler interface {
	Syscall(m *Machine) (halt bool, err error)
}

// StoreWatcher observes every retired store. size is 1, 2 or 4 bytes.
// Returning halt stops the machine cleanly after the store has retired.
type StoreWatcher interface {
	OnStore(m *Machine, addr uint32, size int, value uint32) (halt bool, err error)
}

// Config fixes the machine geometry for one run. All fields are
// required; there are no defaults.
type Config struct {
	MemSize    uint32 // total addressable bytes
	Entry      uint32 // initial program counter
	StackTop   uint32 // initial stack pointer
	StackLimit uint32 // lowest address the stack pointer may reach
}

// Machine is one independent MIPS32 engine instance. Memory and the
// register file are exclusively owned; instances never share state.
type Machine struct {
	Verbose bool // Set to enable verbose logging.

	Mem []byte     // Flat byte-addressable memory.
	Reg [32]uint32 // General-purpose registers. Index 0 reads as zero.

	PC uint32 // Program counter, not part of the register array.
	Hi uint32 // Multiply/divide accumulator, upper half.
	Lo uint32 // Multiply/divide accumulator, lower half.

	StackLimit uint32 // Overflow threshold checked before each fetch.

	Syscalls SyscallHandler // Optional host syscall handler.
	Watcher  StoreWatcher   // Optional host store watcher.

	Ticks int // Retired instruction counter.

	state State
	fault *Fault
}

// New creates a machine from a validated configuration.
func New(cfg Config) (m *Machine, err error) {
	if cfg.MemSize == 0 || cfg.MemSize%4 != 0 {
		return nil, ErrConfigMemSize
	}
	if cfg.Entry >= cfg.MemSize || cfg.Entry%4 != 0 {
		return nil, ErrConfigEntry
	}
	if cfg.StackTop > cfg.MemSize || cfg.StackLimit > cfg.StackTop {
		return nil, ErrConfigStack
	}

	m = &Machine{
		Mem:        make([]byte, cfg.MemSize),
		PC:         cfg.Entry,
		StackLimit: cfg.StackLimit,
	}
	m.Reg[RegSP] = cfg.StackTop

	return
}

// ReadReg reads a general-purpose register. Register 0 always reads 0.
func (m *Machine) ReadReg(index uint8) uint32 {
	if index == RegZero {
		return 0
	}
	return m.Reg[index]
}

// WriteReg writes a general-purpose register. A write to register 0
// succeeds but is discarded.
func (m *Machine) WriteReg(index uint8, value uint32) {
	if index == RegZero {
		return
	}
	m.Reg[index] = value
}

// SP reads the stack pointer (register 29 by convention).
func (m *Machine) SP() uint32 {
	return m.Reg[RegSP]
}

// SetSP sets the stack pointer.
func (m *Machine) SetSP(value uint32) {
	m.Reg[RegSP] = value
}

// State returns the current execution state.
func (m *Machine) State() State {
	return m.state
}

// Fault returns the terminal fault, or nil while the machine has not
// faulted.
func (m *Machine) Fault() *Fault {
	return m.fault
}

// String returns the current machine state as a register dump.
func (m *Machine) String() (text string) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "   pc: %08X  hi: %08X  lo: %08X  state: %v\n", m.PC, m.Hi, m.Lo, m.state)
	for n := 0; n < 32; n += 4 {
		for col := range 4 {
			reg := n + col
			fmt.Fprintf(&sb, "%5s: %08X  ", RegNames[reg], m.Reg[reg])
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// fail transitions to Faulted, recording the reason and the pc of the
// faulting instruction.
func (m *Machine) fail(pc uint32, err error) State {
	m.state = Faulted
	m.fault = &Fault{PC: pc, Err: err}
	if m.Verbose {
		log.Printf("vm: %v", m.fault)
	}
	return m.state
}

// Step executes exactly one instruction and returns the new state. A
// fault detected mid-step leaves no partial register or memory writes
// from that step.
func (m *Machine) Step() State {
	if m.state != Running {
		return m.state
	}

	pc := m.PC

	// Overflow guard runs before the fetch.
	if m.SP() < m.StackLimit {
		return m.fail(pc, ErrStackOverflow)
	}

	word, err := m.LoadWord(pc)
	if err != nil {
		return m.fail(pc, errors.Join(ErrBadFetch, err))
	}

	inst, err := isa.Decode(word)
	if err != nil {
		return m.fail(pc, errors.Join(ErrIllegalInstruction, err))
	}

	if m.Verbose {
		log.Printf("%08x: %v", pc, inst)
	}

	next := pc + 4
	halt, err := m.execute(inst, pc, &next)
	if err != nil {
		return m.fail(pc, err)
	}

	m.PC = next
	m.Ticks++

	if halt {
		m.state = Halted
	}

	return m.state
}

// Run steps until the machine leaves the Running state.
func (m *Machine) Run() State {
	for m.state == Running {
		m.Step()
	}
	return m.state
}

// execute applies the semantic effect of one decoded instruction.
// Branches and jumps redirect by rewriting *next; everything else falls
// through to pc+4.
func (m *Machine) execute(inst isa.Inst, pc uint32, next *uint32) (halt bool, err error) {
	if inst.Shape == isa.ShapeR {
		return m.executeR(inst, pc, next)
	}
	return m.executeI(inst, pc, next)
}

func (m *Machine) executeR(inst isa.Inst, pc uint32, next *uint32) (halt bool, err error) {
	rs := m.ReadReg(inst.Rs)
	rt := m.ReadReg(inst.Rt)

	switch inst.Funct {
	case isa.FnSll:
		m.WriteReg(inst.Rd, rt<<inst.Shamt)
	case isa.FnSrl:
		m.WriteReg(inst.Rd, rt>>inst.Shamt)
	case isa.FnSra:
		m.WriteReg(inst.Rd, uint32(int32(rt)>>inst.Shamt))
	case isa.FnSllv:
		m.WriteReg(inst.Rd, rt<<(rs&0x1f))
	case isa.FnSrlv:
		m.WriteReg(inst.Rd, rt>>(rs&0x1f))
	case isa.FnSrav:
		m.WriteReg(inst.Rd, uint32(int32(rt)>>(rs&0x1f)))

	case isa.FnJr:
		*next = rs
	case isa.FnJalr:
		rd := inst.Rd
		if rd == RegZero {
			rd = RegRA
		}
		m.WriteReg(rd, pc+4)
		*next = rs

	case isa.FnSyscall:
		if m.Syscalls == nil {
			err = ErrNoSyscallHandler
			return
		}
		halt, err = m.Syscalls.Syscall(m)

	case isa.FnMfhi:
		m.WriteReg(inst.Rd, m.Hi)
	case isa.FnMthi:
		m.Hi = rs
	case isa.FnMflo:
		m.WriteReg(inst.Rd, m.Lo)
	case isa.FnMtlo:
		m.Lo = rs

	case isa.FnMult:
		product := int64(int32(rs)) * int64(int32(rt))
		m.Hi = uint32(uint64(product) >> 32)
		m.Lo = uint32(uint64(product))
	case isa.FnMultu:
		product := uint64(rs) * uint64(rt)
		m.Hi = uint32(product >> 32)
		m.Lo = uint32(product)
	case isa.FnDiv:
		// Division by zero is architecturally undefined but must not
		// crash; both accumulators are left at zero.
		if rt == 0 {
			m.Hi, m.Lo = 0, 0
		} else {
			m.Lo = uint32(int32(rs) / int32(rt))
			m.Hi = uint32(int32(rs) % int32(rt))
		}
	case isa.FnDivu:
		if rt == 0 {
			m.Hi, m.Lo = 0, 0
		} else {
			m.Lo = rs / rt
			m.Hi = rs % rt
		}

	case isa.FnAdd:
		sum := int64(int32(rs)) + int64(int32(rt))
		if sum != int64(int32(sum)) {
			err = ErrArithmeticOverflow
			return
		}
		m.WriteReg(inst.Rd, uint32(int32(sum)))
	case isa.FnAddu:
		m.WriteReg(inst.Rd, rs+rt)
	case isa.FnSub:
		diff := int64(int32(rs)) - int64(int32(rt))
		if diff != int64(int32(diff)) {
			err = ErrArithmeticOverflow
			return
		}
		m.WriteReg(inst.Rd, uint32(int32(diff)))
	case isa.FnSubu:
		m.WriteReg(inst.Rd, rs-rt)

	case isa.FnAnd:
		m.WriteReg(inst.Rd, rs&rt)
	case isa.FnOr:
		m.WriteReg(inst.Rd, rs|rt)
	case isa.FnXor:
		m.WriteReg(inst.Rd, rs^rt)
	case isa.FnNor:
		m.WriteReg(inst.Rd, ^(rs | rt))
	case isa.FnSlt:
		m.WriteReg(inst.Rd, boolBit(int32(rs) < int32(rt)))
	case isa.FnSltu:
		m.WriteReg(inst.Rd, boolBit(rs < rt))

	default:
		// Decode already rejected unknown function codes.
		err = errors.Join(ErrIllegalInstruction, &isa.ErrDecode{Word: inst.Word, Err: isa.ErrUnknownFunct})
	}

	return
}

func (m *Machine) executeI(inst isa.Inst, pc uint32, next *uint32) (halt bool, err error) {
	rs := m.ReadReg(inst.Rs)
	rt := m.ReadReg(inst.Rt)
	imm := inst.Imm32()

	switch inst.Opcode {
	case isa.OpBeq:
		if rs == rt {
			*next = branchTarget(pc, inst)
		}
	case isa.OpBne:
		if rs != rt {
			*next = branchTarget(pc, inst)
		}
	case isa.OpBlez:
		if int32(rs) <= 0 {
			*next = branchTarget(pc, inst)
		}
	case isa.OpBgtz:
		if int32(rs) > 0 {
			*next = branchTarget(pc, inst)
		}

	case isa.OpAddi:
		sum := int64(int32(rs)) + int64(int32(imm))
		if sum != int64(int32(sum)) {
			err = ErrArithmeticOverflow
			return
		}
		m.WriteReg(inst.Rt, uint32(int32(sum)))
	case isa.OpAddiu:
		m.WriteReg(inst.Rt, rs+imm)
	case isa.OpSlti:
		m.WriteReg(inst.Rt, boolBit(int32(rs) < int32(imm)))
	case isa.OpSltiu:
		m.WriteReg(inst.Rt, boolBit(rs < imm))
	case isa.OpAndi:
		m.WriteReg(inst.Rt, rs&imm)
	case isa.OpOri:
		m.WriteReg(inst.Rt, rs|imm)
	case isa.OpXori:
		m.WriteReg(inst.Rt, rs^imm)
	case isa.OpLui:
		m.WriteReg(inst.Rt, uint32(inst.Imm)<<16)

	case isa.OpLb:
		var value uint8
		value, err = m.LoadByte(effectiveAddr(rs, inst))
		if err != nil {
			return
		}
		m.WriteReg(inst.Rt, uint32(int32(int8(value))))
	case isa.OpLbu:
		var value uint8
		value, err = m.LoadByte(effectiveAddr(rs, inst))
		if err != nil {
			return
		}
		m.WriteReg(inst.Rt, uint32(value))
	case isa.OpLh:
		var value uint16
		value, err = m.LoadHalf(effectiveAddr(rs, inst))
		if err != nil {
			return
		}
		m.WriteReg(inst.Rt, uint32(int32(int16(value))))
	case isa.OpLhu:
		var value uint16
		value, err = m.LoadHalf(effectiveAddr(rs, inst))
		if err != nil {
			return
		}
		m.WriteReg(inst.Rt, uint32(value))
	case isa.OpLw:
		var value uint32
		value, err = m.LoadWord(effectiveAddr(rs, inst))
		if err != nil {
			return
		}
		m.WriteReg(inst.Rt, value)

	case isa.OpSb:
		addr := effectiveAddr(rs, inst)
		err = m.StoreByte(addr, uint8(rt))
		if err != nil {
			return
		}
		halt, err = m.storeRetired(addr, 1, rt&0xff)
	case isa.OpSh:
		addr := effectiveAddr(rs, inst)
		err = m.StoreHalf(addr, uint16(rt))
		if err != nil {
			return
		}
		halt, err = m.storeRetired(addr, 2, rt&0xffff)
	case isa.OpSw:
		addr := effectiveAddr(rs, inst)
		err = m.StoreWord(addr, rt)
		if err != nil {
			return
		}
		halt, err = m.storeRetired(addr, 4, rt)

	default:
		err = errors.Join(ErrIllegalInstruction, &isa.ErrDecode{Word: inst.Word, Err: isa.ErrUnknownOpcode})
	}

	return
}

// storeRetired notifies the host watcher after a store has committed.
func (m *Machine) storeRetired(addr uint32, size int, value uint32) (halt bool, err error) {
	if m.Watcher == nil {
		return
	}
	return m.Watcher.OnStore(m, addr, size, value)
}

// branchTarget adds the word-scaled, sign-extended offset to pc+4.
func branchTarget(pc uint32, inst isa.Inst) uint32 {
	return pc + 4 + uint32(inst.SImm())<<2
}

// effectiveAddr is base register plus sign-extended offset.
func effectiveAddr(rs uint32, inst isa.Inst) uint32 {
	return rs + uint32(inst.SImm())
}

func boolBit(cond bool) uint32 {
	if cond {
		return 1
	}
	return 0
}
