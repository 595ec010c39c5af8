package isa

import (
	"errors"

	"github.com/sbvm/sbmips/translate"
)

var f = translate.From

var (
	ErrUnknownOpcode   = errors.New(f("unknown opcode"))
	ErrUnknownFunct    = errors.New(f("unknown function code"))
	ErrUnknownMnemonic = errors.New(f("unknown mnemonic"))
)

// ErrDecode reports the instruction word that failed to decode.
type ErrDecode struct {
	Word uint32
	Err  error
}

func (err *ErrDecode) Error() string {
	return f("word 0x%08x: %v", err.Word, err.Err)
}

func (err *ErrDecode) Unwrap() error {
	return err.Err
}
