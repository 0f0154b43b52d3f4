package asm

import (
	"errors"

	"github.com/ezrec/lc3/translate"
)

var f = translate.From

var (
	ErrOrigMissing     = errors.New(f(".ORIG missing"))
	ErrOrigDuplicate   = errors.New(f(".ORIG duplicated"))
	ErrEndMissing      = errors.New(f(".END missing"))
	ErrEquateSyntax    = errors.New(f(".equ syntax"))
	ErrEquateDuplicate = errors.New(f(".equ duplicated"))
	ErrLabelDuplicate  = errors.New(f("label duplicated"))
	ErrOperandCount    = errors.New(f("wrong number of operands"))
	ErrStringSyntax    = errors.New(f("malformed string literal"))
)

type ErrLabelMissing string

func (el ErrLabelMissing) Error() string {
	return f("label %v missing", string(el))
}

type ErrOpcodeInvalid string

func (eo ErrOpcodeInvalid) Error() string {
	return f("'%v' is not an opcode or directive", string(eo))
}

type ErrRegisterInvalid string

func (er ErrRegisterInvalid) Error() string {
	return f("'%v' is not a register", string(er))
}

type ErrParseNumber string

func (err ErrParseNumber) Error() string {
	return f("'%v' is not a number", string(err))
}

type ErrParseExpression string

func (err ErrParseExpression) Error() string {
	return f("$(%v) is not a valid expression", string(err))
}

// ErrOffsetRange reports a value that does not fit its instruction field.
type ErrOffsetRange struct {
	Value int
	Bits  uint
}

func (err ErrOffsetRange) Error() string {
	return f("%v does not fit in %v bits", err.Value, err.Bits)
}

func (err ErrOffsetRange) Is(target error) (ok bool) {
	_, ok = target.(ErrOffsetRange)
	return
}

// ErrSyntax locates an assembly error in the source.
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
