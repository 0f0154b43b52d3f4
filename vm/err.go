package vm

import (
	"errors"

	"github.com/ezrec/lc3/translate"
)

var f = translate.From

var (
	// ErrHalted is returned by Execute when the HALT trap routine fires.
	// The run loop converts it into a normal termination.
	ErrHalted = errors.New(f("machine halted"))
)

// ErrRegister reports a register field outside the architectural register set.
type ErrRegister Word

func (er ErrRegister) Error() string {
	return f("'%v' is not a known register", uint16(er))
}

func (er ErrRegister) Is(err error) (ok bool) {
	_, ok = err.(ErrRegister)
	return
}

// ErrInstruction reports an undecodable instruction word. A 4-bit opcode
// selector spans exactly the 16 defined families, so this only fires from
// the defensive default arm of Decode.
type ErrInstruction Word

func (ei ErrInstruction) Error() string {
	return f("'%#04x' is not a known instruction", uint16(ei))
}

func (ei ErrInstruction) Is(err error) (ok bool) {
	_, ok = err.(ErrInstruction)
	return
}

// ErrTrap reports a trap vector outside the six defined service routines.
type ErrTrap Word

func (et ErrTrap) Error() string {
	return f("'%#02x' is not a known trap routine", uint16(et))
}

func (et ErrTrap) Is(err error) (ok bool) {
	_, ok = err.(ErrTrap)
	return
}
