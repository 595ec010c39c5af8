// Package host provides the conveniences a guest program sees: a
// memory-mapped console and halt flag at the bottom of memory, and an
// O32-convention syscall handler with a bump-pointer heap.
package host

import (
	"encoding/binary"
	"fmt"
	"io"
	"iter"
	"maps"

	"github.com/sbvm/sbmips/vm"
)

// Guest-visible I/O space layout. The first 256 bytes of memory are
// reserved; stores into this window are watched by the host.
const (
	IoSpaceSize = uint32(256)

	AddrStdout     = uint32(0x00) // store a byte here to print it
	AddrMemEnd     = uint32(0x04) // word, initialized to the memory size
	AddrStackStart = uint32(0x08) // word, initialized to the stack top
	AddrHalt       = uint32(0x0c) // store 1 here to halt
)

// Syscall numbers, following the SPIM convention: the number goes in
// $v0, arguments in $a0 and up, results come back in $v0.
const (
	SysPrintInt    = uint32(1)
	SysPrintString = uint32(4)
	SysSbrk        = uint32(9)
	SysExit        = uint32(10)
	SysPrintChar   = uint32(11)
)

var _console_defines = map[string]string{
	"IO_STDOUT":      fmt.Sprintf("%#x", AddrStdout),
	"IO_MEM_END":     fmt.Sprintf("%#x", AddrMemEnd),
	"IO_STACK_START": fmt.Sprintf("%#x", AddrStackStart),
	"IO_HALT":        fmt.Sprintf("%#x", AddrHalt),
	"SYS_PRINT_INT":  fmt.Sprintf("%d", SysPrintInt),
	"SYS_PRINT_STR":  fmt.Sprintf("%d", SysPrintString),
	"SYS_SBRK":       fmt.Sprintf("%d", SysSbrk),
	"SYS_EXIT":       fmt.Sprintf("%d", SysExit),
	"SYS_PRINT_CHAR": fmt.Sprintf("%d", SysPrintChar),
}

// Console implements both host conventions the engine supports: it is a
// vm.StoreWatcher for the memory-mapped window above and a
// vm.SyscallHandler for syscall traps. Either path may be used by a
// guest; both are active at once.
type Console struct {
	Output io.Writer // Console output stream.

	heapPtr uint32 // next free heap address; starts at the stack start
	memEnd  uint32
}

// Defines returns the guest-visible addresses and syscall numbers as
// assembler equates.
func (con *Console) Defines() iter.Seq2[string, string] {
	return maps.All(_console_defines)
}

// Attach wires the console to a machine and seeds the I/O space words
// the sys.h contract expects (mem_end and stack_start).
func (con *Console) Attach(m *vm.Machine) (err error) {
	if uint32(len(m.Mem)) < IoSpaceSize {
		return ErrIoSpace
	}
	con.memEnd = uint32(len(m.Mem))

	binary.BigEndian.PutUint32(m.Mem[AddrMemEnd:], con.memEnd)
	binary.BigEndian.PutUint32(m.Mem[AddrStackStart:], m.SP())

	// The heap begins at the stack start word and starts over on every
	// attach; nothing carries across runs.
	con.heapPtr = m.SP()

	m.Syscalls = con
	m.Watcher = con

	return
}

// OnStore implements vm.StoreWatcher: a byte stored at the stdout
// address is appended to the output stream, and storing a nonzero value
// to the halt address stops the machine after the store retires.
func (con *Console) OnStore(m *vm.Machine, addr uint32, size int, value uint32) (halt bool, err error) {
	switch addr {
	case AddrStdout:
		err = con.emit(byte(value))
	case AddrHalt:
		halt = value != 0
	}
	return
}

// Syscall implements vm.SyscallHandler.
func (con *Console) Syscall(m *vm.Machine) (halt bool, err error) {
	number := m.ReadReg(vm.RegV0)
	arg := m.ReadReg(vm.RegA0)

	switch number {
	case SysPrintInt:
		_, err = fmt.Fprintf(con.output(), "%d", int32(arg))
	case SysPrintChar:
		err = con.emit(byte(arg))
	case SysPrintString:
		err = con.printString(m, arg)
	case SysSbrk:
		var base uint32
		base, err = con.sbrk(arg)
		if err != nil {
			return
		}
		m.WriteReg(vm.RegV0, base)
	case SysExit:
		halt = true
	default:
		err = &ErrBadSyscall{Number: number}
	}

	return
}

// printString writes the NUL-terminated guest string at addr.
func (con *Console) printString(m *vm.Machine, addr uint32) (err error) {
	for {
		var c uint8
		c, err = m.LoadByte(addr)
		if err != nil {
			return
		}
		if c == 0 {
			return
		}
		err = con.emit(c)
		if err != nil {
			return
		}
		addr++
	}
}

// sbrk is the fixed bump allocator: the heap grows upward from the
// stack start recorded at attach time, independent of where the guest
// has moved $sp, and is never reclaimed.
func (con *Console) sbrk(size uint32) (base uint32, err error) {
	if con.memEnd-con.heapPtr < size {
		err = ErrHeapExhausted
		return
	}
	base = con.heapPtr
	con.heapPtr += size
	return
}

func (con *Console) emit(c byte) (err error) {
	_, err = con.output().Write([]byte{c})
	return
}

func (con *Console) output() io.Writer {
	if con.Output == nil {
		return io.Discard
	}
	return con.Output
}
