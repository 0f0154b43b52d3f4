package vm

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// testMachine returns a fresh register file, memory, and buffered output
// for executing single instructions.
func testMachine() (regs *Registers, ram *RAM, buffer *bytes.Buffer, output *bufio.Writer) {
	regs = NewRegisters()
	ram = &RAM{}
	buffer = &bytes.Buffer{}
	output = bufio.NewWriter(buffer)
	return
}

func TestExecuteAddImmediate(t *testing.T) {
	assert := assert.New(t)
	regs, ram, _, output := testMachine()

	regs.Set(REG_R1, 5)
	inst := Instruction{Op: OP_ADD, DR: REG_R0, SR1: REG_R1, Imm: true, Operand: 10}

	assert.NoError(inst.Execute(regs, ram, strings.NewReader(""), output))
	assert.Equal(Word(15), regs.Get(REG_R0))
	assert.Equal(Word(FLAG_POS), regs.Get(REG_COND))
}

func TestExecuteAddRegister(t *testing.T) {
	assert := assert.New(t)
	regs, ram, _, output := testMachine()

	regs.Set(REG_R1, 5)
	regs.Set(REG_R2, 7)
	inst := Instruction{Op: OP_ADD, DR: REG_R0, SR1: REG_R1, SR2: REG_R2}

	assert.NoError(inst.Execute(regs, ram, strings.NewReader(""), output))
	assert.Equal(Word(12), regs.Get(REG_R0))
}

func TestExecuteAddWraps(t *testing.T) {
	assert := assert.New(t)
	regs, ram, _, output := testMachine()

	regs.Set(REG_R1, 0xFFFF)
	inst := Instruction{Op: OP_ADD, DR: REG_R1, SR1: REG_R1, Imm: true, Operand: 1}

	assert.NoError(inst.Execute(regs, ram, strings.NewReader(""), output))
	assert.Equal(Word(0), regs.Get(REG_R1))
	assert.Equal(Word(FLAG_ZRO), regs.Get(REG_COND))
}

func TestExecuteAnd(t *testing.T) {
	assert := assert.New(t)
	regs, ram, _, output := testMachine()

	regs.Set(REG_R1, 5)
	inst := Instruction{Op: OP_AND, DR: REG_R0, SR1: REG_R1, Imm: true, Operand: 10}

	assert.NoError(inst.Execute(regs, ram, strings.NewReader(""), output))
	assert.Equal(Word(0), regs.Get(REG_R0))
	assert.Equal(Word(FLAG_ZRO), regs.Get(REG_COND))

	regs.Set(REG_R2, 7)
	inst = Instruction{Op: OP_AND, DR: REG_R0, SR1: REG_R1, SR2: REG_R2}

	assert.NoError(inst.Execute(regs, ram, strings.NewReader(""), output))
	assert.Equal(Word(5), regs.Get(REG_R0))
}

func TestExecuteNot(t *testing.T) {
	assert := assert.New(t)
	regs, ram, _, output := testMachine()

	regs.Set(REG_R1, 0xFF00)
	inst := Instruction{Op: OP_NOT, DR: REG_R0, SR1: REG_R1}

	assert.NoError(inst.Execute(regs, ram, strings.NewReader(""), output))
	assert.Equal(Word(0x00FF), regs.Get(REG_R0))
	assert.Equal(Word(FLAG_POS), regs.Get(REG_COND))
}

func TestExecuteBranch(t *testing.T) {
	assert := assert.New(t)
	regs, ram, _, output := testMachine()

	inst := Instruction{Op: OP_BR, Flags: FLAG_POS, Offset: 10}

	// Condition clear: the program counter is unchanged.
	regs.Set(REG_COND, 0)
	assert.NoError(inst.Execute(regs, ram, strings.NewReader(""), output))
	assert.Equal(PROGRAM_START, regs.Get(REG_PC))

	// Condition matches the mask: the offset is applied.
	regs.Set(REG_COND, Word(FLAG_POS))
	assert.NoError(inst.Execute(regs, ram, strings.NewReader(""), output))
	assert.Equal(Word(0x300A), regs.Get(REG_PC))
}

func TestExecuteJump(t *testing.T) {
	assert := assert.New(t)
	regs, ram, _, output := testMachine()

	regs.Set(REG_R0, PROGRAM_START+5)
	inst := Instruction{Op: OP_JMP, SR1: REG_R0}

	assert.NoError(inst.Execute(regs, ram, strings.NewReader(""), output))
	assert.Equal(PROGRAM_START+5, regs.Get(REG_PC))
}

func TestExecuteJumpSubroutineLong(t *testing.T) {
	assert := assert.New(t)
	regs, ram, _, output := testMachine()

	inst := Instruction{Op: OP_JSR, Long: true, Offset: 5}

	assert.NoError(inst.Execute(regs, ram, strings.NewReader(""), output))
	assert.Equal(PROGRAM_START+5, regs.Get(REG_PC))
	assert.Equal(PROGRAM_START, regs.Get(REG_R7))
}

func TestExecuteJumpSubroutineRegister(t *testing.T) {
	assert := assert.New(t)
	regs, ram, _, output := testMachine()

	regs.Set(REG_R0, PROGRAM_START+5)
	inst := Instruction{Op: OP_JSR, SR1: REG_R0}

	assert.NoError(inst.Execute(regs, ram, strings.NewReader(""), output))
	assert.Equal(PROGRAM_START+5, regs.Get(REG_PC))
	assert.Equal(PROGRAM_START, regs.Get(REG_R7))
}

func TestExecuteLoad(t *testing.T) {
	assert := assert.New(t)
	regs, ram, _, output := testMachine()

	ram.Write(PROGRAM_START+5, 10)
	inst := Instruction{Op: OP_LD, DR: REG_R0, Offset: 5}

	assert.NoError(inst.Execute(regs, ram, strings.NewReader(""), output))
	assert.Equal(Word(10), regs.Get(REG_R0))
	assert.Equal(Word(FLAG_POS), regs.Get(REG_COND))
}

func TestExecuteLoadIndirect(t *testing.T) {
	assert := assert.New(t)
	regs, ram, _, output := testMachine()

	ram.Write(PROGRAM_START+5, 1)
	ram.Write(1, 23)
	inst := Instruction{Op: OP_LDI, DR: REG_R0, Offset: 5}

	assert.NoError(inst.Execute(regs, ram, strings.NewReader(""), output))
	assert.Equal(Word(23), regs.Get(REG_R0))
}

func TestExecuteLoadRegister(t *testing.T) {
	assert := assert.New(t)
	regs, ram, _, output := testMachine()

	ram.Write(30, 10)
	regs.Set(REG_R1, 25)
	inst := Instruction{Op: OP_LDR, DR: REG_R0, SR1: REG_R1, Offset: 5}

	assert.NoError(inst.Execute(regs, ram, strings.NewReader(""), output))
	assert.Equal(Word(10), regs.Get(REG_R0))
}

func TestExecuteLoadEffectiveAddress(t *testing.T) {
	assert := assert.New(t)
	regs, ram, _, output := testMachine()

	inst := Instruction{Op: OP_LEA, DR: REG_R0, Offset: 5}

	assert.NoError(inst.Execute(regs, ram, strings.NewReader(""), output))
	assert.Equal(PROGRAM_START+5, regs.Get(REG_R0))
}

func TestExecuteStore(t *testing.T) {
	assert := assert.New(t)
	regs, ram, _, output := testMachine()

	regs.Set(REG_R0, 15)
	inst := Instruction{Op: OP_ST, SR1: REG_R0, Offset: 5}

	assert.NoError(inst.Execute(regs, ram, strings.NewReader(""), output))
	value, err := ram.Read(PROGRAM_START + 5)
	assert.NoError(err)
	assert.Equal(Word(15), value)
}

func TestExecuteStoreIndirect(t *testing.T) {
	assert := assert.New(t)
	regs, ram, _, output := testMachine()

	ram.Write(PROGRAM_START+5, 25)
	regs.Set(REG_R0, 15)
	inst := Instruction{Op: OP_STI, SR1: REG_R0, Offset: 5}

	assert.NoError(inst.Execute(regs, ram, strings.NewReader(""), output))
	value, err := ram.Read(25)
	assert.NoError(err)
	assert.Equal(Word(15), value)
}

func TestExecuteStoreRegister(t *testing.T) {
	assert := assert.New(t)
	regs, ram, _, output := testMachine()

	regs.Set(REG_R0, 15)
	regs.Set(REG_R1, 25)
	inst := Instruction{Op: OP_STR, SR1: REG_R0, SR2: REG_R1, Offset: 5}

	assert.NoError(inst.Execute(regs, ram, strings.NewReader(""), output))
	value, err := ram.Read(30)
	assert.NoError(err)
	assert.Equal(Word(15), value)
}

func TestTrapGetc(t *testing.T) {
	assert := assert.New(t)
	regs, ram, _, output := testMachine()

	inst := Instruction{Op: OP_TRAP, Trap: TRAP_GETC}

	assert.NoError(inst.Execute(regs, ram, strings.NewReader("A"), output))
	assert.Equal(Word('A'), regs.Get(REG_R0))

	// End of stream before the byte arrives is an I/O error.
	err := inst.Execute(regs, ram, strings.NewReader(""), output)
	assert.Error(err)
}

func TestTrapOut(t *testing.T) {
	assert := assert.New(t)
	regs, ram, buffer, output := testMachine()

	regs.Set(REG_R0, 'A')
	inst := Instruction{Op: OP_TRAP, Trap: TRAP_OUT}

	assert.NoError(inst.Execute(regs, ram, strings.NewReader(""), output))
	assert.NoError(output.Flush())
	assert.Equal("A", buffer.String())
}

func TestTrapPuts(t *testing.T) {
	assert := assert.New(t)
	regs, ram, buffer, output := testMachine()

	address := Word(20)
	for index, character := range "Hello" {
		ram.Write(address+Word(index), Word(character))
	}
	regs.Set(REG_R0, address)
	inst := Instruction{Op: OP_TRAP, Trap: TRAP_PUTS}

	assert.NoError(inst.Execute(regs, ram, strings.NewReader(""), output))
	assert.Equal("Hello", buffer.String())
}

func TestTrapIn(t *testing.T) {
	assert := assert.New(t)
	regs, ram, _, output := testMachine()

	inst := Instruction{Op: OP_TRAP, Trap: TRAP_IN}

	assert.NoError(inst.Execute(regs, ram, strings.NewReader("A"), output))
	assert.Equal(Word('A'), regs.Get(REG_R0))
}

func TestTrapPutsp(t *testing.T) {
	assert := assert.New(t)
	regs, ram, buffer, output := testMachine()

	address := Word(20)
	ram.Write(address, Word('V')|Word('M')<<8)
	regs.Set(REG_R0, address)
	inst := Instruction{Op: OP_TRAP, Trap: TRAP_PUTSP}

	assert.NoError(inst.Execute(regs, ram, strings.NewReader(""), output))
	assert.Equal("VM", buffer.String())
}

func TestTrapHalt(t *testing.T) {
	assert := assert.New(t)
	regs, ram, _, output := testMachine()

	inst := Instruction{Op: OP_TRAP, Trap: TRAP_HALT}

	err := inst.Execute(regs, ram, strings.NewReader(""), output)
	assert.ErrorIs(err, ErrHalted)
}

func TestExecuteReservedPanics(t *testing.T) {
	assert := assert.New(t)
	regs, ram, _, output := testMachine()

	for _, op := range []Opcode{OP_RTI, OP_RES} {
		inst := Instruction{Op: op}
		assert.Panics(func() {
			inst.Execute(regs, ram, strings.NewReader(""), output)
		})
	}
}
