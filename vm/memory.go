package vm

import (
	"encoding/binary"
)

// Memory is big-endian: the most significant byte of a word lives at the
// lowest address. Word accesses must be 4-byte aligned and halfword
// accesses 2-byte aligned; misalignment is a fault, never rounded away.

func (m *Machine) checkAccess(addr uint32, size uint32) (err error) {
	if addr >= uint32(len(m.Mem)) || uint32(len(m.Mem))-addr < size {
		return ErrOutOfBounds
	}
	if addr%size != 0 {
		return ErrMisaligned
	}
	return
}

// LoadWord reads the 32-bit word at addr.
func (m *Machine) LoadWord(addr uint32) (value uint32, err error) {
	err = m.checkAccess(addr, 4)
	if err != nil {
		return
	}
	value = binary.BigEndian.Uint32(m.Mem[addr:])
	return
}

// LoadHalf reads the 16-bit halfword at addr.
func (m *Machine) LoadHalf(addr uint32) (value uint16, err error) {
	err = m.checkAccess(addr, 2)
	if err != nil {
		return
	}
	value = binary.BigEndian.Uint16(m.Mem[addr:])
	return
}

// LoadByte reads the byte at addr.
func (m *Machine) LoadByte(addr uint32) (value uint8, err error) {
	err = m.checkAccess(addr, 1)
	if err != nil {
		return
	}
	value = m.Mem[addr]
	return
}

// StoreWord writes a 32-bit word at addr.
func (m *Machine) StoreWord(addr uint32, value uint32) (err error) {
	err = m.checkAccess(addr, 4)
	if err != nil {
		return
	}
	binary.BigEndian.PutUint32(m.Mem[addr:], value)
	return
}

// StoreHalf writes a 16-bit halfword at addr.
func (m *Machine) StoreHalf(addr uint32, value uint16) (err error) {
	err = m.checkAccess(addr, 2)
	if err != nil {
		return
	}
	binary.BigEndian.PutUint16(m.Mem[addr:], value)
	return
}

// StoreByte writes a byte at addr.
func (m *Machine) StoreByte(addr uint32, value uint8) (err error) {
	err = m.checkAccess(addr, 1)
	if err != nil {
		return
	}
	m.Mem[addr] = value
	return
}

// LoadProgram copies a big-endian word image into memory at addr. The
// engine does not run until Step or Run is called.
func (m *Machine) LoadProgram(words []uint32, addr uint32) (err error) {
	size := uint32(len(words)) * 4
	if addr%4 != 0 {
		return ErrMisaligned
	}
	if addr > uint32(len(m.Mem)) || uint32(len(m.Mem))-addr < size {
		return ErrProgramTooLarge
	}
	for n, word := range words {
		binary.BigEndian.PutUint32(m.Mem[addr+uint32(n)*4:], word)
	}
	return
}

// LoadBytes copies a raw byte image into memory at addr.
func (m *Machine) LoadBytes(data []byte, addr uint32) (err error) {
	if addr > uint32(len(m.Mem)) || uint32(len(m.Mem))-addr < uint32(len(data)) {
		return ErrProgramTooLarge
	}
	copy(m.Mem[addr:], data)
	return
}
