package vm

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// image builds a program image from an origin and instruction words.
func image(origin Word, words ...Word) (out []byte) {
	out = binary.BigEndian.AppendUint16(out, uint16(origin))
	for _, word := range words {
		out = binary.BigEndian.AppendUint16(out, uint16(word))
	}
	return
}

func newTestMachine(input string) (m *Machine, buffer *bytes.Buffer) {
	buffer = &bytes.Buffer{}
	m = NewMachine(strings.NewReader(input), bufio.NewWriter(buffer))
	return
}

func TestLoadProgram(t *testing.T) {
	assert := assert.New(t)
	m, _ := newTestMachine("")

	err := m.LoadProgram(bytes.NewReader([]byte{0x30, 0x00, 0x10, 0x01}))
	assert.NoError(err)

	value, err := m.Memory.Read(0x3000)
	assert.NoError(err)
	assert.Equal(Word(0x1001), value)
}

func TestLoadProgramOriginOnly(t *testing.T) {
	assert := assert.New(t)
	m, _ := newTestMachine("")

	// A clean end of stream right after the origin is an empty program.
	err := m.LoadProgram(bytes.NewReader([]byte{0x30, 0x00}))
	assert.NoError(err)
}

func TestLoadProgramOddTrailingByte(t *testing.T) {
	assert := assert.New(t)
	m, _ := newTestMachine("")

	err := m.LoadProgram(bytes.NewReader([]byte{0x30, 0x00, 0x10}))
	assert.ErrorIs(err, io.ErrUnexpectedEOF)
}

func TestLoadProgramShortOrigin(t *testing.T) {
	assert := assert.New(t)
	m, _ := newTestMachine("")

	assert.Error(m.LoadProgram(bytes.NewReader([]byte{0x30})))
	assert.Error(m.LoadProgram(bytes.NewReader(nil)))
}

func TestRunHalt(t *testing.T) {
	assert := assert.New(t)
	m, _ := newTestMachine("")

	// A one-instruction program holding only the HALT trap.
	err := m.LoadProgram(bytes.NewReader(image(PROGRAM_START, 0xF025)))
	assert.NoError(err)

	done, err := m.Step()
	assert.NoError(err)
	assert.True(done)

	// The halt happened before any further fetch.
	assert.Equal(PROGRAM_START+1, m.Registers.Get(REG_PC))
}

func TestRunProgram(t *testing.T) {
	assert := assert.New(t)
	m, buffer := newTestMachine("")

	// lea r0, #2; puts; halt; "Hi"
	err := m.LoadProgram(bytes.NewReader(image(PROGRAM_START,
		0xE002,       // lea r0, #2
		0xF022,       // puts
		0xF025,       // halt
		Word('H'),
		Word('i'),
		0x0000,
	)))
	assert.NoError(err)

	assert.NoError(m.Run())
	assert.Equal("Hi", buffer.String())
}

func TestRunDecodeErrorAborts(t *testing.T) {
	assert := assert.New(t)
	m, _ := newTestMachine("")

	// An undefined trap vector is fatal to the run.
	err := m.LoadProgram(bytes.NewReader(image(PROGRAM_START, 0xF000)))
	assert.NoError(err)

	err = m.Run()
	assert.ErrorIs(err, ErrTrap(0))
}

func TestRunInputErrorAborts(t *testing.T) {
	assert := assert.New(t)
	m, _ := newTestMachine("")

	// getc with no input is an I/O error, not a halt.
	err := m.LoadProgram(bytes.NewReader(image(PROGRAM_START, 0xF020)))
	assert.NoError(err)

	err = m.Run()
	assert.Error(err)
	assert.NotErrorIs(err, ErrHalted)
}

func TestRunStopsAtMaxAddress(t *testing.T) {
	assert := assert.New(t)
	m, _ := newTestMachine("")

	// A runaway image with no halt: the run loop ends normally when the
	// program counter reaches the maximum address.
	m.Registers.Set(REG_PC, m.Memory.Max()-1)

	done, err := m.Step()
	assert.NoError(err)
	assert.False(done)

	done, err = m.Step()
	assert.NoError(err)
	assert.True(done)
	assert.Equal(m.Memory.Max(), m.Registers.Get(REG_PC))
}

func TestRunTrace(t *testing.T) {
	assert := assert.New(t)
	m, _ := newTestMachine("")

	trace := &bytes.Buffer{}
	m.Trace = trace

	err := m.LoadProgram(bytes.NewReader(image(PROGRAM_START,
		0x102A, // add r0, r0, #10
		0xF025, // halt
	)))
	assert.NoError(err)

	assert.NoError(m.Run())
	assert.Contains(trace.String(), "add r0, r0, #10")
	assert.Contains(trace.String(), "pc:3001")
	assert.Contains(trace.String(), "trap halt")
}

func TestMachineKeyboardPolling(t *testing.T) {
	assert := assert.New(t)
	m, _ := newTestMachine("G")

	// Load the keyboard status register, then the data register, through
	// the memory-mapped addresses; the first load polls the input stream.
	err := m.LoadProgram(bytes.NewReader(image(PROGRAM_START,
		0xA003, // ldi r0, #3 ; r0 <- [KBSR]
		0xA203, // ldi r1, #3 ; r1 <- [KBDR]
		0xF025, // halt
		0x0000,
		ADDR_KBSR,
		ADDR_KBDR,
	)))
	assert.NoError(err)

	assert.NoError(m.Run())
	assert.Equal(KBSR_READY, m.Registers.Get(REG_R0))
	assert.Equal(Word('G'), m.Registers.Get(REG_R1))
}
