package vm

import (
	"errors"

	"github.com/sbvm/sbmips/translate"
)

var f = translate.From

var (
	// Machine construction errors
	ErrConfigMemSize = errors.New(f("memory size invalid"))
	ErrConfigEntry   = errors.New(f("entry point outside memory"))
	ErrConfigStack   = errors.New(f("stack bounds invalid"))

	// Execution faults
	ErrOutOfBounds        = errors.New(f("address out of bounds"))
	ErrMisaligned         = errors.New(f("address misaligned"))
	ErrStackOverflow      = errors.New(f("stack overflow"))
	ErrArithmeticOverflow = errors.New(f("arithmetic overflow"))
	ErrBadFetch           = errors.New(f("bad instruction fetch"))
	ErrIllegalInstruction = errors.New(f("illegal instruction"))
	ErrNoSyscallHandler   = errors.New(f("no syscall handler attached"))

	// Program load errors
	ErrProgramTooLarge = errors.New(f("program does not fit in memory"))
)

// Fault records why and where the machine stopped.
type Fault struct {
	PC  uint32
	Err error
}

func (err *Fault) Error() string {
	return f("pc 0x%08x: %v", err.PC, err.Err)
}

func (err *Fault) Unwrap() error {
	return err.Err
}
