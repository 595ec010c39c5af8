package asm

import (
	"encoding/binary"

	"github.com/sbvm/sbmips/sbin"
)

// Line is one listing entry: the source line, the address its first
// emitted word landed at, and the emitted words.
type Line struct {
	LineNo int
	Addr   uint32
	Text   string
	Words  []uint32
}

// Program is the result of assembling a source file: the memory image
// prefix (I/O space plus code and data), the entry point, and the
// listing used to map addresses back to source lines.
type Program struct {
	Entry uint32
	Data  []byte
	Lines []Line
}

// LineFor finds the source line whose emitted words cover addr, or 0.
func (prog *Program) LineFor(addr uint32) int {
	for _, line := range prog.Lines {
		size := uint32(len(line.Words)) * 4
		if addr >= line.Addr && addr < line.Addr+size {
			return line.LineNo
		}
	}
	return 0
}

// Words returns the image as big-endian words, padded to a word boundary.
func (prog *Program) Words() (words []uint32) {
	data := prog.Data
	for len(data)%4 != 0 {
		data = append(data, 0)
	}
	words = make([]uint32, len(data)/4)
	for n := range words {
		words[n] = binary.BigEndian.Uint32(data[n*4:])
	}
	return
}

// Image packages the program as an SBIN executable with the requested
// stack and heap sizes appended after the program data.
func (prog *Program) Image(stackSize, heapSize uint32) *sbin.Image {
	size := uint32(len(prog.Data))
	for size%4 != 0 {
		size++
	}

	return &sbin.Image{
		Entry:        prog.Entry,
		StackPointer: size + stackSize,
		MemSize:      size + stackSize + heapSize,
		Data:         prog.Data,
	}
}
