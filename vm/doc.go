// Package vm implements the LC-3 virtual machine.
//
// The machine is a 16-bit von Neumann architecture with eight general
// purpose registers (r0-r7), a program counter, a condition code register,
// and a flat 64K-word address space. Sixteen opcode families cover
// arithmetic, logic, loads, stores, branches, and trap service routines.
// Two memory addresses are intercepted as the memory-mapped keyboard
// status and data registers.
//
// A Machine loads a big-endian program image, then repeatedly fetches,
// decodes, and executes instruction words until the HALT trap routine
// fires. Keyboard input and terminal output are injected byte streams,
// so the machine can be embedded and tested without touching the host
// terminal.
package vm
