package asm

import (
	"errors"

	"github.com/sbvm/sbmips/translate"
)

var f = translate.From

var (
	ErrEquateSyntax     = errors.New(f(".equ syntax"))
	ErrEquateDuplicate  = errors.New(f(".equ duplicated"))
	ErrLabelDuplicate   = errors.New(f("label duplicated"))
	ErrOperandCount     = errors.New(f("operand count mismatch"))
	ErrOperandRange     = errors.New(f("operand out of range"))
	ErrBranchAlignment  = errors.New(f("branch target not word aligned"))
	ErrBranchRange      = errors.New(f("branch target out of range"))
	ErrRegisterInvalid  = errors.New(f("register invalid"))
	ErrDirectiveSyntax  = errors.New(f("directive syntax"))
	ErrEntryMissing     = errors.New(f("no instructions to run")) // empty program
	ErrShiftRange       = errors.New(f("shift amount out of range"))
)

type ErrLabelMissing string

func (el ErrLabelMissing) Error() string {
	return f("label %v missing", string(el))
}

type ErrParseExpression string

func (err ErrParseExpression) Error() string {
	return f("'%v' is not a valid expression", string(err))
}

// ErrSyntax locates an assembly error on its source line.
type ErrSyntax struct {
	LineNo int
	Line   string
	Err    error
}

func (err ErrSyntax) Error() string {
	return f("line %d '%v' %v", err.LineNo, err.Line, err.Err)
}

func (err ErrSyntax) Unwrap() error {
	return err.Err
}
