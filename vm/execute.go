package vm

import (
	"fmt"
	"io"
)

// Output is the byte sink the trap routines write through. Flush makes
// buffered writes observable, used to guarantee prompt-before-block
// ordering ahead of blocking reads. A *bufio.Writer satisfies it.
type Output interface {
	io.Writer
	Flush() error
}

// Execute applies the instruction's semantics to the register file and
// memory, performing stream I/O through input and output. All address and
// arithmetic computation wraps at 16 bits. The HALT trap routine returns
// ErrHalted; any other error is fatal to the run.
func (inst Instruction) Execute(regs RegisterFile, mem Memory, input io.Reader, output Output) (err error) {
	switch inst.Op {
	case OP_ADD, OP_AND:
		operand := inst.Operand
		if !inst.Imm {
			operand = regs.Get(inst.SR2)
		}
		if inst.Op == OP_ADD {
			regs.Set(inst.DR, regs.Get(inst.SR1)+operand)
		} else {
			regs.Set(inst.DR, regs.Get(inst.SR1)&operand)
		}
		regs.UpdateFlags(inst.DR)

	case OP_NOT:
		regs.Set(inst.DR, ^regs.Get(inst.SR1))
		regs.UpdateFlags(inst.DR)

	case OP_BR:
		if Word(inst.Flags)&regs.Get(REG_COND) != 0 {
			regs.Set(REG_PC, regs.Get(REG_PC)+inst.Offset)
		}

	case OP_JMP:
		regs.Set(REG_PC, regs.Get(inst.SR1))

	case OP_JSR:
		regs.Set(REG_R7, regs.Get(REG_PC))
		if inst.Long {
			regs.Set(REG_PC, regs.Get(REG_PC)+inst.Offset)
		} else {
			regs.Set(REG_PC, regs.Get(inst.SR1))
		}

	case OP_LD:
		var value Word
		value, err = mem.Read(regs.Get(REG_PC) + inst.Offset)
		if err != nil {
			return
		}
		regs.Set(inst.DR, value)
		regs.UpdateFlags(inst.DR)

	case OP_LDI:
		var address, value Word
		address, err = mem.Read(regs.Get(REG_PC) + inst.Offset)
		if err != nil {
			return
		}
		value, err = mem.Read(address)
		if err != nil {
			return
		}
		regs.Set(inst.DR, value)
		regs.UpdateFlags(inst.DR)

	case OP_LDR:
		var value Word
		value, err = mem.Read(regs.Get(inst.SR1) + inst.Offset)
		if err != nil {
			return
		}
		regs.Set(inst.DR, value)
		regs.UpdateFlags(inst.DR)

	case OP_LEA:
		regs.Set(inst.DR, regs.Get(REG_PC)+inst.Offset)
		regs.UpdateFlags(inst.DR)

	case OP_ST:
		mem.Write(regs.Get(REG_PC)+inst.Offset, regs.Get(inst.SR1))

	case OP_STI:
		var address Word
		address, err = mem.Read(regs.Get(REG_PC) + inst.Offset)
		if err != nil {
			return
		}
		mem.Write(address, regs.Get(inst.SR1))

	case OP_STR:
		mem.Write(regs.Get(inst.SR2)+inst.Offset, regs.Get(inst.SR1))

	case OP_TRAP:
		err = inst.Trap.run(regs, mem, input, output)

	case OP_RTI, OP_RES:
		// These never occur in valid programs and the run loop never
		// dispatches them.
		panic(fmt.Sprintf("vm: %v does not occur in valid programs", inst.Op))
	}

	return
}

// run dispatches a trap service routine.
func (routine TrapRoutine) run(regs RegisterFile, mem Memory, input io.Reader, output Output) (err error) {
	switch routine {
	case TRAP_GETC:
		err = readCharacter(regs, input)

	case TRAP_OUT:
		_, err = output.Write([]byte{byte(regs.Get(REG_R0))})

	case TRAP_PUTS:
		err = putString(regs, mem, output, false)

	case TRAP_IN:
		err = output.Flush()
		if err != nil {
			return
		}
		err = readCharacter(regs, input)

	case TRAP_PUTSP:
		err = putString(regs, mem, output, true)

	case TRAP_HALT:
		err = output.Flush()
		if err != nil {
			return
		}
		err = ErrHalted
	}

	return
}

// readCharacter blocks for exactly one input byte and stores it, widened
// to a word, into r0. End of stream before the byte arrives is an I/O
// error.
func readCharacter(regs RegisterFile, input io.Reader) (err error) {
	var one [1]byte
	_, err = io.ReadFull(input, one[:])
	if err != nil {
		return
	}

	regs.Set(REG_R0, Word(one[0]))
	return
}

// putString writes the zero-terminated string starting at the address in
// r0, then flushes. Each word holds one character's low byte; in packed
// mode each word holds two characters, low byte first.
func putString(regs RegisterFile, mem Memory, output Output, packed bool) (err error) {
	address := regs.Get(REG_R0)
	for {
		var word Word
		word, err = mem.Read(address)
		if err != nil {
			return
		}
		if word == 0 {
			break
		}

		if packed {
			_, err = output.Write([]byte{byte(word & 0xFF), byte(word >> 8)})
		} else {
			_, err = output.Write([]byte{byte(word & 0xFF)})
		}
		if err != nil {
			return
		}

		address++
	}

	err = output.Flush()
	return
}
