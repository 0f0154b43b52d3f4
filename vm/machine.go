// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

package vm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Machine is a single LC-3 instance: register file, memory, and the
// injected I/O streams. One run loop owns exclusive mutable access to the
// whole machine; instances are independent and single-owner.
type Machine struct {
	Registers RegisterFile
	Memory    Memory

	Input  io.Reader
	Output Output

	// Trace, when set, receives each decoded instruction and a register
	// snapshot before it executes.
	Trace io.Writer
}

// NewMachine creates a machine wired to the given keyboard input stream
// and output sink. The same input stream feeds both the memory-mapped
// keyboard registers and the character input trap routines.
func NewMachine(input io.Reader, output Output) *Machine {
	return &Machine{
		Registers: NewRegisters(),
		Memory:    &RAM{Input: input},
		Input:     input,
		Output:    output,
	}
}

// LoadProgram parses a program image and populates memory. The first two
// bytes are the big-endian load origin; every following two-byte
// big-endian group is one word loaded at consecutive addresses. A clean
// end of stream on a word boundary is success; an odd trailing byte is an
// error.
func (m *Machine) LoadProgram(source io.Reader) (err error) {
	var buffer [2]byte

	_, err = io.ReadFull(source, buffer[:])
	if err != nil {
		return fmt.Errorf("%v: %w", f("program origin"), err)
	}
	address := Word(binary.BigEndian.Uint16(buffer[:]))

	for {
		_, err = io.ReadFull(source, buffer[:])
		if err == io.EOF {
			return nil
		}
		if err != nil {
			// io.ErrUnexpectedEOF for a stream ending mid-word.
			return err
		}

		m.Memory.Write(address, Word(binary.BigEndian.Uint16(buffer[:])))
		address++
	}
}

// Step performs a single fetch-decode-execute cycle. done reports that the
// machine halted, either through the HALT trap routine or by the program
// counter reaching the maximum address, the defensive terminal condition
// for runaway images. Decode and I/O errors are fatal, never retried.
func (m *Machine) Step() (done bool, err error) {
	if m.Registers.Get(REG_PC) == m.Memory.Max() {
		done = true
		return
	}

	word, err := m.Memory.Read(m.Registers.Advance())
	if err != nil {
		return
	}

	inst, err := Decode(word)
	if err != nil {
		return
	}

	if m.Trace != nil {
		fmt.Fprintf(m.Trace, " => %v\n => %v\n", inst, m.Registers)
	}

	err = inst.Execute(m.Registers, m.Memory, m.Input, m.Output)
	if errors.Is(err, ErrHalted) {
		done = true
		err = nil
	}

	return
}

// Run drives Step until the machine halts or an error surfaces.
func (m *Machine) Run() (err error) {
	for done := false; !done; {
		done, err = m.Step()
		if err != nil {
			return
		}
	}

	return
}
