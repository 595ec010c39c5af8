package host

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sbvm/sbmips/vm"
)

func attached(t *testing.T) (*Console, *vm.Machine, *bytes.Buffer) {
	assert := assert.New(t)

	m, err := vm.New(vm.Config{MemSize: 4096, Entry: 0, StackTop: 2048, StackLimit: 1024})
	assert.NoError(err)

	output := &bytes.Buffer{}
	con := &Console{Output: output}
	assert.NoError(con.Attach(m))

	return con, m, output
}

func TestAttach(t *testing.T) {
	assert := assert.New(t)

	_, m, _ := attached(t)

	assert.Equal(uint32(4096), binary.BigEndian.Uint32(m.Mem[AddrMemEnd:]))
	assert.Equal(uint32(2048), binary.BigEndian.Uint32(m.Mem[AddrStackStart:]))

	// Memory smaller than the I/O window is rejected.
	tiny, err := vm.New(vm.Config{MemSize: 64, Entry: 0, StackTop: 64})
	assert.NoError(err)
	con := &Console{}
	assert.ErrorIs(con.Attach(tiny), ErrIoSpace)
}

func TestConsoleStores(t *testing.T) {
	assert := assert.New(t)

	con, m, output := attached(t)

	halt, err := con.OnStore(m, AddrStdout, 1, uint32('h'))
	assert.NoError(err)
	assert.False(halt)
	halt, err = con.OnStore(m, AddrStdout, 1, uint32('i'))
	assert.NoError(err)
	assert.False(halt)
	assert.Equal("hi", output.String())

	// Stores elsewhere in memory are ignored.
	halt, err = con.OnStore(m, 0x800, 4, 42)
	assert.NoError(err)
	assert.False(halt)

	// Zero to the halt address is a no-op; nonzero halts.
	halt, err = con.OnStore(m, AddrHalt, 1, 0)
	assert.NoError(err)
	assert.False(halt)
	halt, err = con.OnStore(m, AddrHalt, 1, 1)
	assert.NoError(err)
	assert.True(halt)
}

func TestSyscallPrint(t *testing.T) {
	assert := assert.New(t)

	con, m, output := attached(t)

	m.WriteReg(vm.RegV0, SysPrintInt)
	m.WriteReg(vm.RegA0, 0xffffffff) // printed signed
	halt, err := con.Syscall(m)
	assert.NoError(err)
	assert.False(halt)
	assert.Equal("-1", output.String())

	output.Reset()
	m.WriteReg(vm.RegV0, SysPrintChar)
	m.WriteReg(vm.RegA0, uint32('!'))
	_, err = con.Syscall(m)
	assert.NoError(err)
	assert.Equal("!", output.String())

	output.Reset()
	copy(m.Mem[0x400:], "hello\x00")
	m.WriteReg(vm.RegV0, SysPrintString)
	m.WriteReg(vm.RegA0, 0x400)
	_, err = con.Syscall(m)
	assert.NoError(err)
	assert.Equal("hello", output.String())
}

func TestSyscallSbrk(t *testing.T) {
	assert := assert.New(t)

	con, m, _ := attached(t)

	// The heap grows upward from the stack start.
	m.WriteReg(vm.RegV0, SysSbrk)
	m.WriteReg(vm.RegA0, 64)
	_, err := con.Syscall(m)
	assert.NoError(err)
	assert.Equal(uint32(2048), m.ReadReg(vm.RegV0))

	m.WriteReg(vm.RegV0, SysSbrk)
	m.WriteReg(vm.RegA0, 64)
	_, err = con.Syscall(m)
	assert.NoError(err)
	assert.Equal(uint32(2112), m.ReadReg(vm.RegV0))

	// Asking past the end of memory fails.
	m.WriteReg(vm.RegV0, SysSbrk)
	m.WriteReg(vm.RegA0, 1 << 20)
	_, err = con.Syscall(m)
	assert.ErrorIs(err, ErrHeapExhausted)
}

func TestSyscallSbrkIgnoresStackPointer(t *testing.T) {
	assert := assert.New(t)

	con, m, _ := attached(t)

	// A guest with frames pushed still allocates from the stack start,
	// never inside the live stack.
	m.SetSP(1500)
	m.WriteReg(vm.RegV0, SysSbrk)
	m.WriteReg(vm.RegA0, 64)
	_, err := con.Syscall(m)
	assert.NoError(err)
	assert.Equal(uint32(2048), m.ReadReg(vm.RegV0))
}

func TestSyscallSbrkResetsOnAttach(t *testing.T) {
	assert := assert.New(t)

	con, m, _ := attached(t)

	m.WriteReg(vm.RegV0, SysSbrk)
	m.WriteReg(vm.RegA0, 64)
	_, err := con.Syscall(m)
	assert.NoError(err)
	assert.Equal(uint32(2048), m.ReadReg(vm.RegV0))

	// A reused console attached to a fresh machine starts a fresh heap.
	fresh, err := vm.New(vm.Config{MemSize: 4096, Entry: 0, StackTop: 2048, StackLimit: 1024})
	assert.NoError(err)
	assert.NoError(con.Attach(fresh))

	fresh.WriteReg(vm.RegV0, SysSbrk)
	fresh.WriteReg(vm.RegA0, 64)
	_, err = con.Syscall(fresh)
	assert.NoError(err)
	assert.Equal(uint32(2048), fresh.ReadReg(vm.RegV0))
}

func TestSyscallExitAndUnknown(t *testing.T) {
	assert := assert.New(t)

	con, m, _ := attached(t)

	m.WriteReg(vm.RegV0, SysExit)
	halt, err := con.Syscall(m)
	assert.NoError(err)
	assert.True(halt)

	m.WriteReg(vm.RegV0, 999)
	_, err = con.Syscall(m)
	var bad *ErrBadSyscall
	assert.ErrorAs(err, &bad)
	assert.Equal(uint32(999), bad.Number)
}

func TestDefines(t *testing.T) {
	assert := assert.New(t)

	con := &Console{}
	defines := map[string]string{}
	for key, value := range con.Defines() {
		defines[key] = value
	}
	assert.Equal("0xc", defines["IO_HALT"])
	assert.Equal("10", defines["SYS_EXIT"])
}
