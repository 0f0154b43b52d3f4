package vm

import (
	"fmt"
)

// Opcode is the top 4 bits of an instruction word, selecting its family.
type Opcode int

//go:generate go tool stringer -linecomment -type=Opcode
const (
	OP_BR   = Opcode(0)  // br
	OP_ADD  = Opcode(1)  // add
	OP_LD   = Opcode(2)  // ld
	OP_ST   = Opcode(3)  // st
	OP_JSR  = Opcode(4)  // jsr
	OP_AND  = Opcode(5)  // and
	OP_LDR  = Opcode(6)  // ldr
	OP_STR  = Opcode(7)  // str
	OP_RTI  = Opcode(8)  // rti
	OP_NOT  = Opcode(9)  // not
	OP_LDI  = Opcode(10) // ldi
	OP_STI  = Opcode(11) // sti
	OP_JMP  = Opcode(12) // jmp
	OP_RES  = Opcode(13) // res
	OP_LEA  = Opcode(14) // lea
	OP_TRAP = Opcode(15) // trap
)

// TrapRoutine is an 8-bit trap vector selecting a built-in I/O service
// routine. Only the six vectors below are defined.
type TrapRoutine int

//go:generate go tool stringer -linecomment -type=TrapRoutine
const (
	TRAP_GETC  = TrapRoutine(0x20) // getc
	TRAP_OUT   = TrapRoutine(0x21) // out
	TRAP_PUTS  = TrapRoutine(0x22) // puts
	TRAP_IN    = TrapRoutine(0x23) // in
	TRAP_PUTSP = TrapRoutine(0x24) // putsp
	TRAP_HALT  = TrapRoutine(0x25) // halt
)

// TrapOf validates a raw trap vector.
func TrapOf(raw Word) (routine TrapRoutine, err error) {
	if raw < Word(TRAP_GETC) || raw > Word(TRAP_HALT) {
		err = ErrTrap(raw)
		return
	}

	routine = TrapRoutine(raw)
	return
}

// Instruction is a decoded instruction word. It is produced once per fetch
// and never outlives a single execute step; which fields are meaningful
// depends on Op.
type Instruction struct {
	Op Opcode

	DR  Register // Destination register.
	SR1 Register // First source, base, or jump register.
	SR2 Register // Second source register (register operand mode).

	Imm     bool // ADD/AND immediate operand mode (bit 5).
	Operand Word // Sign-extended 5-bit immediate, when Imm is set.
	Offset  Word // Sign-extended offset: 6-bit (LDR/STR), 9-bit (PC-relative), 11-bit (JSR).

	Flags CondFlag // Branch condition mask.
	Long  bool     // JSR long form (bit 11); otherwise register form.

	Trap TrapRoutine
}

// signExtend replicates an n-bit field's most-significant bit into all
// higher bits of the word.
func signExtend(x Word, bits uint) Word {
	if (x>>(bits-1))&1 != 0 {
		x |= 0xFFFF << bits
	}
	return x
}

// Decode decodes a raw instruction word, validating register and trap
// fields. RTI and the reserved opcode decode successfully; executing them
// is a contract violation, since they do not occur in valid programs.
func Decode(word Word) (inst Instruction, err error) {
	inst.Op = Opcode(word >> 12)

	switch inst.Op {
	case OP_BR:
		inst.Flags = CondFlag((word >> 9) & 0x7)
		inst.Offset = signExtend(word&0x1FF, 9)

	case OP_ADD, OP_AND:
		inst.DR, err = RegisterOf((word >> 9) & 0x7)
		if err != nil {
			return
		}
		inst.SR1, err = RegisterOf((word >> 6) & 0x7)
		if err != nil {
			return
		}
		if (word>>5)&0x1 != 0 {
			inst.Imm = true
			inst.Operand = signExtend(word&0x1F, 5)
		} else {
			inst.SR2, err = RegisterOf(word & 0x7)
			if err != nil {
				return
			}
		}

	case OP_LD, OP_LDI, OP_LEA:
		inst.DR, err = RegisterOf((word >> 9) & 0x7)
		if err != nil {
			return
		}
		inst.Offset = signExtend(word&0x1FF, 9)

	case OP_ST, OP_STI:
		inst.SR1, err = RegisterOf((word >> 9) & 0x7)
		if err != nil {
			return
		}
		inst.Offset = signExtend(word&0x1FF, 9)

	case OP_JSR:
		if (word>>11)&0x1 != 0 {
			inst.Long = true
			inst.Offset = signExtend(word&0x7FF, 11)
		} else {
			inst.SR1, err = RegisterOf((word >> 6) & 0x7)
			if err != nil {
				return
			}
		}

	case OP_LDR:
		inst.DR, err = RegisterOf((word >> 9) & 0x7)
		if err != nil {
			return
		}
		inst.SR1, err = RegisterOf((word >> 6) & 0x7)
		if err != nil {
			return
		}
		inst.Offset = signExtend(word&0x3F, 6)

	case OP_STR:
		inst.SR1, err = RegisterOf((word >> 9) & 0x7)
		if err != nil {
			return
		}
		inst.SR2, err = RegisterOf((word >> 6) & 0x7)
		if err != nil {
			return
		}
		inst.Offset = signExtend(word&0x3F, 6)

	case OP_NOT:
		inst.DR, err = RegisterOf((word >> 9) & 0x7)
		if err != nil {
			return
		}
		inst.SR1, err = RegisterOf((word >> 6) & 0x7)
		if err != nil {
			return
		}

	case OP_JMP:
		inst.SR1, err = RegisterOf((word >> 6) & 0x7)
		if err != nil {
			return
		}

	case OP_TRAP:
		inst.Trap, err = TrapOf(word & 0xFF)
		if err != nil {
			return
		}

	case OP_RTI, OP_RES:
		// Decoded as placeholder variants.

	default:
		err = ErrInstruction(word)
	}

	return
}

// Encode re-encodes the instruction to its wire word. Sign-extended
// offsets and immediates are truncated back to their field widths.
func (inst Instruction) Encode() (word Word) {
	word = Word(inst.Op) << 12

	switch inst.Op {
	case OP_BR:
		word |= Word(inst.Flags)<<9 | inst.Offset&0x1FF

	case OP_ADD, OP_AND:
		word |= Word(inst.DR)<<9 | Word(inst.SR1)<<6
		if inst.Imm {
			word |= 1<<5 | inst.Operand&0x1F
		} else {
			word |= Word(inst.SR2)
		}

	case OP_LD, OP_LDI, OP_LEA:
		word |= Word(inst.DR)<<9 | inst.Offset&0x1FF

	case OP_ST, OP_STI:
		word |= Word(inst.SR1)<<9 | inst.Offset&0x1FF

	case OP_JSR:
		if inst.Long {
			word |= 1<<11 | inst.Offset&0x7FF
		} else {
			word |= Word(inst.SR1) << 6
		}

	case OP_LDR:
		word |= Word(inst.DR)<<9 | Word(inst.SR1)<<6 | inst.Offset&0x3F

	case OP_STR:
		word |= Word(inst.SR1)<<9 | Word(inst.SR2)<<6 | inst.Offset&0x3F

	case OP_NOT:
		word |= Word(inst.DR)<<9 | Word(inst.SR1)<<6 | 0x3F

	case OP_JMP:
		word |= Word(inst.SR1) << 6

	case OP_TRAP:
		word |= Word(inst.Trap) & 0xFF
	}

	return
}

// String returns the assembly language representation of the instruction.
func (inst Instruction) String() (out string) {
	switch inst.Op {
	case OP_BR:
		out = fmt.Sprintf("br%v #%d", inst.Flags, int16(inst.Offset))
	case OP_ADD, OP_AND:
		if inst.Imm {
			out = fmt.Sprintf("%v %v, %v, #%d", inst.Op, inst.DR, inst.SR1, int16(inst.Operand))
		} else {
			out = fmt.Sprintf("%v %v, %v, %v", inst.Op, inst.DR, inst.SR1, inst.SR2)
		}
	case OP_LD, OP_LDI, OP_LEA:
		out = fmt.Sprintf("%v %v, #%d", inst.Op, inst.DR, int16(inst.Offset))
	case OP_ST, OP_STI:
		out = fmt.Sprintf("%v %v, #%d", inst.Op, inst.SR1, int16(inst.Offset))
	case OP_JSR:
		if inst.Long {
			out = fmt.Sprintf("jsr #%d", int16(inst.Offset))
		} else {
			out = fmt.Sprintf("jsrr %v", inst.SR1)
		}
	case OP_LDR:
		out = fmt.Sprintf("ldr %v, %v, #%d", inst.DR, inst.SR1, int16(inst.Offset))
	case OP_STR:
		out = fmt.Sprintf("str %v, %v, #%d", inst.SR1, inst.SR2, int16(inst.Offset))
	case OP_NOT:
		out = fmt.Sprintf("not %v, %v", inst.DR, inst.SR1)
	case OP_JMP:
		if inst.SR1 == REG_R7 {
			out = "ret"
		} else {
			out = fmt.Sprintf("jmp %v", inst.SR1)
		}
	case OP_TRAP:
		out = fmt.Sprintf("trap %v", inst.Trap)
	default:
		out = inst.Op.String()
	}

	return
}
