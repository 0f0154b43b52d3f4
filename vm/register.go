package vm

import (
	"fmt"
)

// Word is the architecture's only datum size. All arithmetic is
// two's-complement with silent wraparound.
type Word uint16

// PROGRAM_START is the fixed load origin and initial program counter.
const PROGRAM_START = Word(0x3000)

// Register names a slot in the register file.
type Register int

//go:generate go tool stringer -linecomment -type=Register
const (
	REG_R0   = Register(0) // r0
	REG_R1   = Register(1) // r1
	REG_R2   = Register(2) // r2
	REG_R3   = Register(3) // r3
	REG_R4   = Register(4) // r4
	REG_R5   = Register(5) // r5
	REG_R6   = Register(6) // r6
	REG_R7   = Register(7) // r7
	REG_PC   = Register(8) // pc
	REG_COND = Register(9) // cond
)

// RegisterOf validates a raw register field.
func RegisterOf(raw Word) (register Register, err error) {
	if raw > Word(REG_COND) {
		err = ErrRegister(raw)
		return
	}

	register = Register(raw)
	return
}

// CondFlag is a condition code bit. Exactly one of the three is stored in
// REG_COND after every flag-updating instruction; branch instructions
// carry a mask of any subset.
type CondFlag Word

const (
	FLAG_POS = CondFlag(1 << 0)
	FLAG_ZRO = CondFlag(1 << 1)
	FLAG_NEG = CondFlag(1 << 2)
)

// String returns the branch-suffix spelling of the flag mask ("nzp" order).
func (flags CondFlag) String() (out string) {
	if flags&FLAG_NEG != 0 {
		out += "n"
	}
	if flags&FLAG_ZRO != 0 {
		out += "z"
	}
	if flags&FLAG_POS != 0 {
		out += "p"
	}
	if out == "" {
		out = "-"
	}
	return
}

// RegisterFile is the capability set over the machine's register slots.
// The concrete Registers satisfies it; tests may substitute a double.
type RegisterFile interface {
	// Get returns the value of a register.
	Get(register Register) Word
	// Set stores a value into a register.
	Set(register Register, value Word)
	// Advance returns the current program counter and moves it past the
	// fetched word.
	Advance() Word
	// UpdateFlags sets REG_COND from the named register's current value.
	UpdateFlags(register Register)
}

// Registers is the concrete register file: r0-r7, pc, cond.
type Registers [10]Word

var _ RegisterFile = (*Registers)(nil)

// NewRegisters returns a zeroed register file with the program counter at
// the program load origin.
func NewRegisters() (regs *Registers) {
	regs = &Registers{}
	regs.Set(REG_PC, PROGRAM_START)
	return
}

// Get returns the value of a register.
func (regs *Registers) Get(register Register) Word {
	return regs[register]
}

// Set stores a value into a register.
func (regs *Registers) Set(register Register, value Word) {
	regs[register] = value
}

// Advance returns the current program counter and advances it by one word.
func (regs *Registers) Advance() (address Word) {
	address = regs.Get(REG_PC)
	regs.Set(REG_PC, address+1)
	return
}

// UpdateFlags sets the condition register to exactly one of negative,
// zero, or positive based on the named register's value. The three-way
// branch makes the flags mutually exclusive by construction.
func (regs *Registers) UpdateFlags(register Register) {
	value := regs.Get(register)
	switch {
	case value == 0:
		regs.Set(REG_COND, Word(FLAG_ZRO))
	case value>>15 != 0:
		regs.Set(REG_COND, Word(FLAG_NEG))
	default:
		regs.Set(REG_COND, Word(FLAG_POS))
	}
}

// String returns the register file as one snapshot line for the trace.
func (regs *Registers) String() (text string) {
	for reg := REG_R0; reg <= REG_COND; reg++ {
		if reg != REG_R0 {
			text += " "
		}
		if reg == REG_COND {
			text += fmt.Sprintf("%v:%v", reg, CondFlag(regs.Get(reg)))
		} else {
			text += fmt.Sprintf("%v:%04x", reg, uint16(regs.Get(reg)))
		}
	}
	return
}
