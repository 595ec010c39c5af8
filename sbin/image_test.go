package sbin

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sbvm/sbmips/vm"
)

func TestImageRoundTrip(t *testing.T) {
	assert := assert.New(t)

	im := &Image{
		Entry:        0x100,
		StackPointer: 0x800,
		MemSize:      0x1000,
		Data:         []byte{1, 2, 3, 4, 5, 6, 7, 8},
	}

	var buf bytes.Buffer
	n, err := im.WriteTo(&buf)
	assert.NoError(err)
	assert.Equal(int64(16+8), n)
	assert.Equal([]byte{'S', 'B', 'I', 'N'}, buf.Bytes()[:4])

	out, err := Read(&buf)
	assert.NoError(err)
	assert.Equal(im, out)
}

func TestImageBadInput(t *testing.T) {
	assert := assert.New(t)

	_, err := Read(bytes.NewReader([]byte("SBIN")))
	assert.ErrorIs(err, ErrTruncated)

	junk := make([]byte, 16)
	copy(junk, "NOPE")
	_, err = Read(bytes.NewReader(junk))
	assert.ErrorIs(err, ErrBadMagic)

	// Program bytes larger than the declared memory.
	im := &Image{Entry: 0, StackPointer: 8, MemSize: 4, Data: []byte{1, 2, 3, 4, 5, 6, 7, 8}}
	var buf bytes.Buffer
	_, err = im.WriteTo(&buf)
	assert.NoError(err)
	_, err = Read(&buf)
	assert.ErrorIs(err, ErrGeometry)
}

func TestImageBoot(t *testing.T) {
	assert := assert.New(t)

	im := &Image{
		Entry:        4,
		StackPointer: 64,
		MemSize:      128,
		Data:         []byte{0xde, 0xad, 0xbe, 0xef, 0, 0, 0, 0},
	}

	cfg := im.Config()
	assert.Equal(uint32(128), cfg.MemSize)
	assert.Equal(uint32(4), cfg.Entry)
	assert.Equal(uint32(64), cfg.StackTop)
	assert.Equal(uint32(8), cfg.StackLimit)

	m, err := im.Boot()
	assert.NoError(err)
	assert.Equal(uint32(4), m.PC)
	assert.Equal(uint32(64), m.SP())
	assert.Equal(vm.Running, m.State())

	value, err := m.LoadWord(0)
	assert.NoError(err)
	assert.Equal(uint32(0xdeadbeef), value)
}
