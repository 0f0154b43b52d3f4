// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

// Package asm implements a two-pass assembler for the LC-3 assembly
// language: the fifteen usable opcodes with branch condition suffixes,
// the trap routine aliases, and the .ORIG, .FILL, .BLKW, .STRINGZ, and
// .END directives. Beyond the classic syntax it supports .equ constants
// and $( ... ) compile-time expressions evaluated with Starlark.
package asm

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"iter"
	"log"
	"maps"
	"regexp"
	"strconv"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/ezrec/lc3/internal"
	"github.com/ezrec/lc3/vm"
)

// Statement is one source line that assembles to words.
type Statement struct {
	LineNo  int      // Source line number.
	Address vm.Word  // Load address of the first word.
	Label   string   // Label defined on this line, if any.
	Words   []string // Mnemonic and operand tokens.
	Codes   []vm.Word
}

// Program is an assembled program listing.
type Program struct {
	Origin     vm.Word
	Statements []Statement
}

// Words returns the program's contiguous words, in load order.
func (prog *Program) Words() (words []vm.Word) {
	for _, st := range prog.Statements {
		words = append(words, st.Codes...)
	}
	return
}

// codes iterates one statement's words by load address.
func (st Statement) codes() iter.Seq2[vm.Word, vm.Word] {
	return func(yield func(address, word vm.Word) bool) {
		for n, code := range st.Codes {
			if !yield(st.Address+vm.Word(n), code) {
				return
			}
		}
	}
}

// Codes iterates the program as address/word pairs.
func (prog *Program) Codes() iter.Seq2[vm.Word, vm.Word] {
	seqs := make([]iter.Seq2[vm.Word, vm.Word], 0, len(prog.Statements))
	for _, st := range prog.Statements {
		seqs = append(seqs, st.codes())
	}
	return internal.IterSeq2Concat(seqs...)
}

// Image emits the binary program image: the big-endian origin word
// followed by the program words.
func (prog *Program) Image() (image []byte) {
	image = binary.BigEndian.AppendUint16(image, uint16(prog.Origin))
	for _, word := range prog.Words() {
		image = binary.BigEndian.AppendUint16(image, uint16(word))
	}
	return
}

// Assembler is a two-pass assembler. The first pass lays out addresses
// and collects labels and equates; the second encodes instruction words.
type Assembler struct {
	Verbose bool // If set, verbosely logs the assembler actions.

	Label  map[string]vm.Word // Map of labels to load addresses.
	Equate map[string]string  // Map of equates.

	predefine map[string]string
}

// Predefine defines a new equate or redefines an existing equate.
func (asm *Assembler) Predefine(equ string, value string) {
	if asm.predefine == nil {
		asm.predefine = map[string]string{equ: value}
	} else {
		asm.predefine[equ] = value
	}
}

// trapAlias maps the service routine mnemonics to their trap vectors.
var trapAlias = map[string]vm.TrapRoutine{
	"GETC":  vm.TRAP_GETC,
	"OUT":   vm.TRAP_OUT,
	"PUTS":  vm.TRAP_PUTS,
	"IN":    vm.TRAP_IN,
	"PUTSP": vm.TRAP_PUTSP,
	"HALT":  vm.TRAP_HALT,
}

// Parse assembles a complete source stream into a Program.
func (asm *Assembler) Parse(source io.Reader) (prog *Program, err error) {
	asm.Label = map[string]vm.Word{}
	asm.Equate = map[string]string{"LINENO": "0"}
	maps.Copy(asm.Equate, asm.predefine)

	prog = &Program{}

	// Pass 1: tokenize, collect labels and equates, lay out addresses.
	scanner := bufio.NewScanner(source)
	var lineno int
	var address vm.Word
	var origin, ended bool
	for scanner.Scan() {
		lineno++
		line := scanner.Text()
		if ended {
			continue
		}

		var words []string
		words, err = asm.parseLine(line, lineno)
		if err != nil {
			return nil, ErrSyntax{LineNo: lineno, Line: line, Err: err}
		}
		if len(words) == 0 {
			continue
		}

		st := Statement{LineNo: lineno, Words: words}

		if !isMnemonic(words[0]) {
			if !labelRe.MatchString(words[0]) {
				return nil, ErrSyntax{LineNo: lineno, Line: line, Err: ErrOpcodeInvalid(words[0])}
			}
			st.Label = words[0]
			st.Words = words[1:]
		}

		err = func() (err error) {
			if len(st.Words) != 0 {
				mnemonic := strings.ToUpper(st.Words[0])
				switch mnemonic {
				case ".ORIG":
					if origin {
						return ErrOrigDuplicate
					}
					if len(st.Words) != 2 {
						return ErrOperandCount
					}
					var value int64
					value, err = asm.valueOf(st.Words[1])
					if err != nil {
						return
					}
					origin = true
					address = vm.Word(value)
					prog.Origin = address
					return
				case ".END":
					ended = true
					return
				}
			}

			if !origin {
				return ErrOrigMissing
			}

			st.Address = address
			if st.Label != "" {
				if _, ok := asm.Label[st.Label]; ok {
					return ErrLabelDuplicate
				}
				asm.Label[st.Label] = address
			}
			if len(st.Words) == 0 {
				return
			}

			var size vm.Word
			size, err = asm.sizeOf(&st)
			if err != nil {
				return
			}

			prog.Statements = append(prog.Statements, st)
			address += size
			return
		}()
		if err != nil {
			return nil, ErrSyntax{LineNo: lineno, Line: line, Err: err}
		}
	}
	if err = scanner.Err(); err != nil {
		return nil, err
	}
	if !origin {
		return nil, ErrOrigMissing
	}
	if !ended {
		return nil, ErrEndMissing
	}

	// Pass 2: encode, with all labels known.
	for n := range prog.Statements {
		st := &prog.Statements[n]
		st.Codes, err = asm.encode(st)
		if err != nil {
			return nil, ErrSyntax{LineNo: st.LineNo, Line: strings.Join(st.Words, " "), Err: err}
		}
		if asm.Verbose {
			log.Printf("asm: %04x: % 04x %v", uint16(st.Address), st.Codes, st.Words)
		}
	}

	return
}

var labelRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// sizeOf returns the number of words a statement assembles to.
func (asm *Assembler) sizeOf(st *Statement) (size vm.Word, err error) {
	switch strings.ToUpper(st.Words[0]) {
	case ".BLKW":
		if len(st.Words) != 2 {
			return 0, ErrOperandCount
		}
		var count int64
		count, err = asm.valueOf(st.Words[1])
		if err != nil {
			return
		}
		size = vm.Word(count)
	case ".STRINGZ":
		var str string
		str, err = stringOperand(st.Words)
		if err != nil {
			return
		}
		size = vm.Word(len(str)) + 1
	default:
		size = 1
	}
	return
}

// encode assembles one statement into its words.
func (asm *Assembler) encode(st *Statement) (codes []vm.Word, err error) {
	switch strings.ToUpper(st.Words[0]) {
	case ".FILL":
		if len(st.Words) != 2 {
			return nil, ErrOperandCount
		}
		var value vm.Word
		value, err = asm.wordOf(st.Words[1])
		if err != nil {
			return
		}
		codes = []vm.Word{value}

	case ".BLKW":
		var size vm.Word
		size, err = asm.sizeOf(st)
		if err != nil {
			return
		}
		codes = make([]vm.Word, size)

	case ".STRINGZ":
		var str string
		str, err = stringOperand(st.Words)
		if err != nil {
			return
		}
		for _, character := range []byte(str) {
			codes = append(codes, vm.Word(character))
		}
		codes = append(codes, 0)

	default:
		var inst vm.Instruction
		inst, err = asm.instruction(st)
		if err != nil {
			return
		}
		codes = []vm.Word{inst.Encode()}
	}

	return
}

// instruction assembles one opcode statement.
func (asm *Assembler) instruction(st *Statement) (inst vm.Instruction, err error) {
	mnemonic := strings.ToUpper(st.Words[0])
	operands := st.Words[1:]

	if routine, ok := trapAlias[mnemonic]; ok {
		if len(operands) != 0 {
			err = ErrOperandCount
			return
		}
		inst = vm.Instruction{Op: vm.OP_TRAP, Trap: routine}
		return
	}

	if flags, ok := branchFlags(mnemonic); ok {
		if len(operands) != 1 {
			err = ErrOperandCount
			return
		}
		inst = vm.Instruction{Op: vm.OP_BR, Flags: flags}
		inst.Offset, err = asm.offsetOf(operands[0], st.Address, 9)
		return
	}

	switch mnemonic {
	case "ADD", "AND":
		if len(operands) != 3 {
			err = ErrOperandCount
			return
		}
		inst.Op = vm.OP_ADD
		if mnemonic == "AND" {
			inst.Op = vm.OP_AND
		}
		inst.DR, err = registerOf(operands[0])
		if err != nil {
			return
		}
		inst.SR1, err = registerOf(operands[1])
		if err != nil {
			return
		}
		if sr2, rerr := registerOf(operands[2]); rerr == nil {
			inst.SR2 = sr2
		} else {
			inst.Imm = true
			inst.Operand, err = asm.fieldOf(operands[2], 5)
		}

	case "NOT":
		if len(operands) != 2 {
			err = ErrOperandCount
			return
		}
		inst.Op = vm.OP_NOT
		inst.DR, err = registerOf(operands[0])
		if err != nil {
			return
		}
		inst.SR1, err = registerOf(operands[1])

	case "JMP":
		if len(operands) != 1 {
			err = ErrOperandCount
			return
		}
		inst.Op = vm.OP_JMP
		inst.SR1, err = registerOf(operands[0])

	case "RET":
		if len(operands) != 0 {
			err = ErrOperandCount
			return
		}
		inst = vm.Instruction{Op: vm.OP_JMP, SR1: vm.REG_R7}

	case "RTI":
		inst.Op = vm.OP_RTI

	case "JSR":
		if len(operands) != 1 {
			err = ErrOperandCount
			return
		}
		inst = vm.Instruction{Op: vm.OP_JSR, Long: true}
		inst.Offset, err = asm.offsetOf(operands[0], st.Address, 11)

	case "JSRR":
		if len(operands) != 1 {
			err = ErrOperandCount
			return
		}
		inst.Op = vm.OP_JSR
		inst.SR1, err = registerOf(operands[0])

	case "LD", "LDI", "LEA":
		if len(operands) != 2 {
			err = ErrOperandCount
			return
		}
		switch mnemonic {
		case "LD":
			inst.Op = vm.OP_LD
		case "LDI":
			inst.Op = vm.OP_LDI
		default:
			inst.Op = vm.OP_LEA
		}
		inst.DR, err = registerOf(operands[0])
		if err != nil {
			return
		}
		inst.Offset, err = asm.offsetOf(operands[1], st.Address, 9)

	case "ST", "STI":
		if len(operands) != 2 {
			err = ErrOperandCount
			return
		}
		inst.Op = vm.OP_ST
		if mnemonic == "STI" {
			inst.Op = vm.OP_STI
		}
		inst.SR1, err = registerOf(operands[0])
		if err != nil {
			return
		}
		inst.Offset, err = asm.offsetOf(operands[1], st.Address, 9)

	case "LDR", "STR":
		if len(operands) != 3 {
			err = ErrOperandCount
			return
		}
		var regA, regB vm.Register
		regA, err = registerOf(operands[0])
		if err != nil {
			return
		}
		regB, err = registerOf(operands[1])
		if err != nil {
			return
		}
		if mnemonic == "LDR" {
			inst.Op = vm.OP_LDR
			inst.DR = regA
			inst.SR1 = regB
		} else {
			inst.Op = vm.OP_STR
			inst.SR1 = regA
			inst.SR2 = regB
		}
		inst.Offset, err = asm.fieldOf(operands[2], 6)

	case "TRAP":
		if len(operands) != 1 {
			err = ErrOperandCount
			return
		}
		var value int64
		value, err = asm.valueOf(operands[0])
		if err != nil {
			return
		}
		inst.Op = vm.OP_TRAP
		inst.Trap, err = vm.TrapOf(vm.Word(value))

	default:
		err = ErrOpcodeInvalid(st.Words[0])
	}

	return
}

// isMnemonic reports whether a token starts a statement rather than
// labeling one.
func isMnemonic(word string) (ok bool) {
	up := strings.ToUpper(word)
	if strings.HasPrefix(up, ".") {
		return true
	}
	if _, ok = trapAlias[up]; ok {
		return
	}
	if _, ok = branchFlags(up); ok {
		return
	}
	switch up {
	case "ADD", "AND", "NOT", "JMP", "RET", "RTI", "JSR", "JSRR",
		"LD", "LDI", "LDR", "LEA", "ST", "STI", "STR", "TRAP":
		ok = true
	}
	return
}

// branchFlags parses a BR mnemonic's condition suffix. A bare BR
// branches unconditionally.
func branchFlags(mnemonic string) (flags vm.CondFlag, ok bool) {
	up := strings.ToUpper(mnemonic)
	if !strings.HasPrefix(up, "BR") {
		return
	}

	suffix := up[2:]
	if suffix == "" {
		return vm.FLAG_NEG | vm.FLAG_ZRO | vm.FLAG_POS, true
	}
	for _, c := range suffix {
		switch c {
		case 'N':
			flags |= vm.FLAG_NEG
		case 'Z':
			flags |= vm.FLAG_ZRO
		case 'P':
			flags |= vm.FLAG_POS
		default:
			return 0, false
		}
	}
	return flags, true
}

// registerOf parses a general register operand.
func registerOf(word string) (register vm.Register, err error) {
	up := strings.ToUpper(word)
	if len(up) == 2 && up[0] == 'R' && up[1] >= '0' && up[1] <= '7' {
		register = vm.Register(up[1] - '0')
		return
	}

	err = ErrRegisterInvalid(word)
	return
}

// valueOf returns the numeric value of a token, after equate
// substitution. Accepts #n decimal, xNNNN hex, and Go literal forms.
func (asm *Assembler) valueOf(word string) (value int64, err error) {
	if subst, ok := asm.Equate[word]; ok {
		word = subst
	}

	switch {
	case strings.HasPrefix(word, "#"):
		value, err = strconv.ParseInt(word[1:], 10, 32)
	case strings.HasPrefix(word, "x"), strings.HasPrefix(word, "X"):
		value, err = strconv.ParseInt(word[1:], 16, 32)
	default:
		value, err = strconv.ParseInt(word, 0, 32)
	}
	if err != nil {
		err = ErrParseNumber(word)
	}
	return
}

// wordOf returns a token's value as one memory word: a label's address,
// or a literal in the 16-bit range.
func (asm *Assembler) wordOf(word string) (value vm.Word, err error) {
	if target, ok := asm.Label[word]; ok {
		value = target
		return
	}

	v, err := asm.valueOf(word)
	if err != nil {
		if labelRe.MatchString(word) {
			err = ErrLabelMissing(word)
		}
		return
	}
	if v < -(1<<15) || v > (1<<16)-1 {
		err = ErrOffsetRange{Value: int(v), Bits: 16}
		return
	}

	value = vm.Word(v)
	return
}

// offsetOf resolves a PC-relative operand: a label becomes the offset
// from the incremented program counter; a literal is the offset itself.
func (asm *Assembler) offsetOf(word string, address vm.Word, bits uint) (offset vm.Word, err error) {
	if target, ok := asm.Label[word]; ok {
		return fieldValue(int(target)-int(address)-1, bits)
	}

	value, err := asm.valueOf(word)
	if err != nil {
		if labelRe.MatchString(word) {
			err = ErrLabelMissing(word)
		}
		return
	}
	return fieldValue(int(value), bits)
}

// fieldOf parses a literal operand constrained to a signed bit field.
func (asm *Assembler) fieldOf(word string, bits uint) (value vm.Word, err error) {
	v, err := asm.valueOf(word)
	if err != nil {
		return
	}
	return fieldValue(int(v), bits)
}

// fieldValue range-checks a signed field value and returns it
// sign-extended to a full word.
func fieldValue(value int, bits uint) (field vm.Word, err error) {
	if value < -(1<<(bits-1)) || value > (1<<(bits-1))-1 {
		err = ErrOffsetRange{Value: value, Bits: bits}
		return
	}

	field = vm.Word(int16(value))
	return
}

// stringOperand extracts a .STRINGZ quoted string operand.
func stringOperand(words []string) (str string, err error) {
	if len(words) != 2 || len(words[1]) < 2 || words[1][0] != '"' {
		err = ErrStringSyntax
		return
	}

	str, err = strconv.Unquote(words[1])
	if err != nil {
		err = ErrStringSyntax
	}
	return
}

// parenEval does compile-time $(...) evaluations.
func (asm *Assembler) parenEval(expr string) (value int64, err error) {
	thread := starlark.Thread{}
	opts := syntax.FileOptions{}
	pred := starlark.StringDict{}
	for key, str := range asm.Equate {
		value64, verr := asm.valueOf(str)
		if verr != nil {
			// Ignore non-integer equates.
			continue
		}
		pred[key] = starlark.MakeInt64(value64)
	}
	prog := "rc=" + expr + "\n"
	dict, err := starlark.ExecFileOptions(&opts, &thread, "expr", prog, pred)
	if err != nil {
		return
	}
	st_rc, ok := dict["rc"]
	if !ok {
		err = ErrParseExpression(expr)
		return
	}
	st_int, ok := st_rc.(starlark.Int)
	if !ok {
		err = ErrParseExpression(expr)
		return
	}
	st_int64, ok := st_int.Int64()
	if !ok {
		err = ErrParseExpression(expr)
		return
	}
	value = st_int64
	return
}

// parseLine strips comments, expands $() expressions, and tokenizes one
// source line. Equate definitions are consumed here and yield no words.
func (asm *Assembler) parseLine(line string, lineno int) (words []string, err error) {
	// Set line number.
	asm.Equate["LINENO"] = fmt.Sprintf("%v", lineno)

	line = stripComment(line)

	// Do $() evaluations
	re := regexp.MustCompile(`\$\([^\$]*\)`)
	line = re.ReplaceAllStringFunc(line, func(str string) string {
		value, _err := asm.parenEval(str[2 : len(str)-1])
		if _err != nil {
			err = _err
		}
		return fmt.Sprintf("%v", value)
	})
	if err != nil {
		return
	}

	words = splitWords(line)
	if len(words) == 0 {
		return
	}

	// .equ CONST VALUE
	if words[0] == ".equ" {
		if len(words) != 3 {
			err = ErrEquateSyntax
			return
		}
		if _, ok := asm.Equate[words[1]]; ok {
			err = ErrEquateDuplicate
			return
		}
		asm.Equate[words[1]] = words[2]
		words = nil
	}

	return
}

// stripComment removes a trailing ; comment, ignoring quoted strings.
func stripComment(line string) string {
	var quoted bool
	for n := 0; n < len(line); n++ {
		switch line[n] {
		case '\\':
			if quoted {
				n++
			}
		case '"':
			quoted = !quoted
		case ';':
			if !quoted {
				return line[:n]
			}
		}
	}
	return line
}

// splitWords splits a line on spaces, tabs, and commas, keeping quoted
// strings as single words.
func splitWords(line string) (words []string) {
	var word strings.Builder
	var quoted bool

	flush := func() {
		if word.Len() > 0 {
			words = append(words, word.String())
			word.Reset()
		}
	}

	for n := 0; n < len(line); n++ {
		c := line[n]
		switch {
		case quoted:
			word.WriteByte(c)
			if c == '\\' && n+1 < len(line) {
				n++
				word.WriteByte(line[n])
			} else if c == '"' {
				quoted = false
			}
		case c == '"':
			quoted = true
			word.WriteByte(c)
		case c == ' ' || c == '\t' || c == ',':
			flush()
		default:
			word.WriteByte(c)
		}
	}
	flush()
	return
}
