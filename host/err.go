package host

import (
	"errors"

	"github.com/sbvm/sbmips/translate"
)

var f = translate.From

var (
	ErrHeapExhausted = errors.New(f("heap exhausted"))
	ErrIoSpace       = errors.New(f("memory too small for i/o space"))
)

// ErrBadSyscall reports an unrecognized syscall number.
type ErrBadSyscall struct {
	Number uint32
}

func (err *ErrBadSyscall) Error() string {
	return f("bad syscall %d", err.Number)
}
