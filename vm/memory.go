package vm

import (
	"io"
)

// MemorySize is the number of addressable words.
const MemorySize = 1 << 16

// Memory-mapped keyboard registers. Reading ADDR_KBSR polls the keyboard
// input stream before returning the stored status word.
const (
	ADDR_KBSR = Word(0xFE00) // keyboard status register
	ADDR_KBDR = Word(0xFE02) // keyboard data register
)

// KBSR_READY is the status bit indicating a character is waiting in the
// keyboard data register.
const KBSR_READY = Word(1 << 15)

// Memory is the capability set over the machine's address space. The
// concrete RAM satisfies it; tests may substitute a double.
type Memory interface {
	// Read returns the word at an address. Reading ADDR_KBSR has the
	// side effect of polling the keyboard input stream.
	Read(address Word) (Word, error)
	// Write stores a word at an address.
	Write(address, value Word)
	// Max returns the maximum valid address.
	Max() Word
}

// RAM is the flat 65536-word store, one contiguous arena indexed directly
// by address. Input is the keyboard byte source polled through ADDR_KBSR.
type RAM struct {
	Input io.Reader

	cells [MemorySize]Word
}

var _ Memory = (*RAM)(nil)

// Read returns the word at an address, polling the keyboard first when
// the address is the keyboard status register.
func (ram *RAM) Read(address Word) (value Word, err error) {
	if address == ADDR_KBSR {
		err = ram.pollKeyboard()
		if err != nil {
			return
		}
	}

	value = ram.cells[address]
	return
}

// Write stores a word at an address.
func (ram *RAM) Write(address, value Word) {
	ram.cells[address] = value
}

// Max returns the maximum valid address.
func (ram *RAM) Max() Word {
	return MemorySize - 1
}

// pollKeyboard reads one byte from the input stream. A nonzero byte sets
// the ready bit and latches the byte into the data register; a zero byte
// or end of stream clears the status register.
func (ram *RAM) pollKeyboard() (err error) {
	var one [1]byte

	if ram.Input != nil {
		var n int
		n, err = ram.Input.Read(one[:])
		if err != nil && err != io.EOF {
			return
		}
		err = nil
		if n == 0 {
			one[0] = 0
		}
	}

	if one[0] != 0 {
		ram.cells[ADDR_KBSR] = KBSR_READY
		ram.cells[ADDR_KBDR] = Word(one[0])
	} else {
		ram.cells[ADDR_KBSR] = 0
	}

	return
}
