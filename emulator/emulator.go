// Package emulator ties the toolchain together: it assembles MIPS
// source, packages it as a bootable image, and runs it on a machine
// with the console device attached, mapping runtime faults back to
// source lines.
package emulator

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"maps"

	"github.com/sbvm/sbmips/asm"
	"github.com/sbvm/sbmips/host"
	"github.com/sbvm/sbmips/internal"
	"github.com/sbvm/sbmips/vm"
)

const (
	DefaultStackSize = 4096  // Guest stack bytes, unless overridden.
	DefaultHeapSize  = 16384 // Guest heap bytes, unless overridden.
)

var _emulator_defines = map[string]string{
	"STACK_SIZE": fmt.Sprintf("%v", DefaultStackSize),
	"HEAP_SIZE":  fmt.Sprintf("%v", DefaultHeapSize),
}

// Emulator state. Machine + console device + program listing.
type Emulator struct {
	Verbose     bool         // If set, enables verbose logging.
	*vm.Machine              // Reference to the machine, valid after Reset.
	Program     *asm.Program // Reference to the currently loaded program listing.

	Console host.Console // Console device attached on Reset.

	StackSize uint32 // Guest stack bytes.
	HeapSize  uint32 // Guest heap bytes.
}

// NewEmulator creates a new emulator with default geometry.
func NewEmulator() (emu *Emulator) {
	emu = &Emulator{
		Program:   &asm.Program{},
		StackSize: DefaultStackSize,
		HeapSize:  DefaultHeapSize,
	}

	return
}

// Defines returns an iterator over all of the defines.
func (emu *Emulator) Defines() iter.Seq2[string, string] {
	return internal.IterSeq2Concat(maps.All(_emulator_defines),
		emu.Console.Defines(),
	)
}

// Assemble parses MIPS source into the program listing. All of the
// emulator defines are available to the source as equates.
func (emu *Emulator) Assemble(source io.Reader) (err error) {
	as := &asm.Assembler{
		Verbose: emu.Verbose,
	}
	for key, value := range emu.Defines() {
		as.Predefine(key, value)
	}

	emu.Program, err = as.Parse(source)
	return
}

// Reset boots a fresh machine from the program listing and attaches
// the console. Register and memory state from any prior run is
// discarded.
func (emu *Emulator) Reset() (err error) {
	image := emu.Program.Image(emu.StackSize, emu.HeapSize)

	m, err := image.Boot()
	if err != nil {
		return
	}
	m.Verbose = emu.Verbose

	err = emu.Console.Attach(m)
	if err != nil {
		return
	}

	emu.Machine = m

	return
}

// LineNo returns the current source line number for the program counter.
func (emu *Emulator) LineNo() int {
	return emu.Program.LineFor(emu.Machine.PC)
}

// Tick executes a single instruction. A fault is reported against the
// source line of the faulting instruction.
func (emu *Emulator) Tick() (done bool, err error) {
	emu.Machine.Verbose = emu.Verbose

	state := emu.Machine.Step()
	switch state {
	case vm.Running:
	case vm.Halted:
		done = true
	case vm.Faulted:
		fault := emu.Machine.Fault()
		err = &ErrRuntime{LineNo: emu.Program.LineFor(fault.PC), Err: fault}
		done = true
	}

	return
}

// Run executes until the program halts or faults.
func (emu *Emulator) Run() (err error) {
	for {
		var done bool
		done, err = emu.Tick()
		if done || err != nil {
			return
		}
	}
}

// Faulted reports whether the machine stopped on a fault matching target.
func (emu *Emulator) Faulted(target error) bool {
	fault := emu.Machine.Fault()
	return fault != nil && errors.Is(fault, target)
}
