// Package sbin reads and writes the SBIN executable image format.
//
// An image is a 16-byte little-endian header (magic "SBIN", entry
// program counter, initial stack pointer, total memory size) followed by
// the program bytes, which are loaded at address zero. The program bytes
// themselves hold big-endian instruction words.
package sbin

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/sbvm/sbmips/translate"
	"github.com/sbvm/sbmips/vm"
)

var f = translate.From

// Magic is the header identifier, "SBIN" as little-endian bytes.
const Magic = uint32(0x4e494253)

const headerSize = 16

var (
	ErrBadMagic  = errors.New(f("bad image magic"))
	ErrTruncated = errors.New(f("truncated image"))
	ErrGeometry  = errors.New(f("image geometry invalid"))
)

// Image is a loadable guest program plus its machine geometry.
type Image struct {
	Entry        uint32 // initial program counter
	StackPointer uint32 // initial stack pointer
	MemSize      uint32 // total memory to allocate
	Data         []byte // program bytes, loaded at address 0
}

// Read parses an SBIN image from a stream.
func Read(r io.Reader) (im *Image, err error) {
	var header [headerSize]byte
	_, err = io.ReadFull(r, header[:])
	if err != nil {
		err = errors.Join(ErrTruncated, err)
		return
	}

	if binary.LittleEndian.Uint32(header[0:]) != Magic {
		err = ErrBadMagic
		return
	}

	im = &Image{
		Entry:        binary.LittleEndian.Uint32(header[4:]),
		StackPointer: binary.LittleEndian.Uint32(header[8:]),
		MemSize:      binary.LittleEndian.Uint32(header[12:]),
	}

	im.Data, err = io.ReadAll(r)
	if err != nil {
		im = nil
		return
	}

	if uint32(len(im.Data)) > im.MemSize || im.StackPointer > im.MemSize {
		im = nil
		err = ErrGeometry
	}

	return
}

// WriteTo serializes the image. Implements io.WriterTo.
func (im *Image) WriteTo(w io.Writer) (n int64, err error) {
	var header [headerSize]byte
	binary.LittleEndian.PutUint32(header[0:], Magic)
	binary.LittleEndian.PutUint32(header[4:], im.Entry)
	binary.LittleEndian.PutUint32(header[8:], im.StackPointer)
	binary.LittleEndian.PutUint32(header[12:], im.MemSize)

	written, err := w.Write(header[:])
	n = int64(written)
	if err != nil {
		return
	}

	written, err = w.Write(im.Data)
	n += int64(written)
	return
}

// Config derives the machine geometry. The stack occupies the space
// between the end of the program data and the initial stack pointer, so
// the overflow limit is the end of the program.
func (im *Image) Config() vm.Config {
	return vm.Config{
		MemSize:    im.MemSize,
		Entry:      im.Entry,
		StackTop:   im.StackPointer,
		StackLimit: uint32(len(im.Data)),
	}
}

// Boot creates a machine from the image and loads the program bytes.
func (im *Image) Boot() (m *vm.Machine, err error) {
	m, err = vm.New(im.Config())
	if err != nil {
		return
	}
	err = m.LoadBytes(im.Data, 0)
	if err != nil {
		m = nil
	}
	return
}
