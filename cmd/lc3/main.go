// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

// Command lc3 assembles and runs LC-3 programs.
//
//	lc3 image.obj           run a binary program image
//	lc3 -c source.asm       assemble and run a source file
//	lc3 -c source.asm -s -o image.obj
//	                        assemble and save the image, do not execute
package main

import (
	"bufio"
	"bytes"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/pkg/term/termios"
	"golang.org/x/sys/unix"

	"github.com/ezrec/lc3/asm"
	"github.com/ezrec/lc3/vm"
)

func main() {
	var compile string
	var output string
	var save bool
	var trace bool
	var verbose bool

	flag.StringVar(&compile, "c", "", ".asm file to assemble")
	flag.StringVar(&output, "o", "", "Image file to save")
	flag.BoolVar(&save, "s", false, "Save the image, do not execute")
	flag.BoolVar(&trace, "t", false, "Trace execution to stderr")
	flag.BoolVar(&verbose, "v", false, "Verbose mode")

	flag.Parse()

	err := run(compile, output, save, trace, verbose)
	if err != nil {
		log.Fatalf("%v: %v", os.Args[0], err)
	}
}

func run(compile, output string, save, trace, verbose bool) (err error) {
	var image io.Reader

	switch {
	case len(compile) != 0:
		if flag.NArg() != 0 {
			return fmt.Errorf("unknown arguments: %v", flag.Args())
		}

		var inf *os.File
		inf, err = os.Open(compile)
		if err != nil {
			return err
		}

		assembler := &asm.Assembler{Verbose: verbose}
		var prog *asm.Program
		prog, err = assembler.Parse(inf)
		inf.Close()
		if err != nil {
			return fmt.Errorf("%v: %w", compile, err)
		}

		if len(output) != 0 {
			err = os.WriteFile(output, prog.Image(), 0o644)
			if err != nil {
				return err
			}
		}
		if save {
			if len(output) == 0 {
				return fmt.Errorf("-s requires an -o image file")
			}
			return nil
		}

		image = bytes.NewReader(prog.Image())

	case flag.NArg() == 1:
		var inf *os.File
		inf, err = os.Open(flag.Arg(0))
		if err != nil {
			return err
		}
		defer inf.Close()

		image = inf

	default:
		return fmt.Errorf("an image file or a -c source file is required")
	}

	restore, err := rawMode(os.Stdin)
	if err != nil {
		return err
	}
	defer restore()

	writer := bufio.NewWriter(os.Stdout)
	defer writer.Flush()

	machine := vm.NewMachine(os.Stdin, writer)
	if trace {
		machine.Trace = os.Stderr
	}

	err = machine.LoadProgram(image)
	if err != nil {
		return err
	}

	return machine.Run()
}

// rawMode turns off canonical input and echo, so single keystrokes reach
// the memory-mapped keyboard registers without a newline. The returned
// function restores the previous terminal settings.
func rawMode(tty *os.File) (restore func(), err error) {
	var saved unix.Termios
	err = termios.Tcgetattr(tty.Fd(), &saved)
	if err != nil {
		// Not a terminal; piped input needs no setup.
		return func() {}, nil
	}

	attr := saved
	attr.Lflag &^= unix.ICANON | unix.ECHO
	err = termios.Tcsetattr(tty.Fd(), termios.TCSANOW, &attr)
	if err != nil {
		return nil, err
	}

	restore = func() {
		_ = termios.Tcsetattr(tty.Fd(), termios.TCSANOW, &saved)
	}
	return restore, nil
}
