// Package asm is a two-pass assembler for the MIPS32 subset understood
// by the sbmips virtual machine.
//
// The source language is conventional MIPS assembly: labels, `#`
// comments, `$`-prefixed registers by number or O32 name, a small set
// of directives, and constant operands written as expressions over
// labels and equates, evaluated at assembly time with hi()/lo() helpers
// for address halves.
package asm

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"maps"
	"regexp"
	"strconv"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/sbvm/sbmips/host"
	"github.com/sbvm/sbmips/isa"
)

// Directives emitted by compiler back ends that carry no meaning here.
var directiveIgnore = map[string]bool{
	"text": true, "data": true, "globl": true, "global": true,
	"file": true, "size": true, "type": true, "ident": true,
	"section": true, "set": true, "ent": true, "end": true,
	"frame": true, "mask": true, "fmask": true,
	"cpload": true, "cprestore": true, "nan": true, "module": true,
	"abicalls": true,
}

// regNums maps O32 register names (without the $ prefix) to numbers.
var regNums = map[string]uint8{
	"zero": 0, "at": 1, "v0": 2, "v1": 3,
	"a0": 4, "a1": 5, "a2": 6, "a3": 7,
	"t0": 8, "t1": 9, "t2": 10, "t3": 11,
	"t4": 12, "t5": 13, "t6": 14, "t7": 15,
	"s0": 16, "s1": 17, "s2": 18, "s3": 19,
	"s4": 20, "s5": 21, "s6": 22, "s7": 23,
	"t8": 24, "t9": 25, "k0": 26, "k1": 27,
	"gp": 28, "sp": 29, "fp": 30, "ra": 31,
}

// parseReg resolves a $-prefixed register operand.
func parseReg(word string) (reg uint8, err error) {
	if len(word) < 2 || word[0] != '$' {
		err = ErrRegisterInvalid
		return
	}
	name := word[1:]

	reg, ok := regNums[name]
	if ok {
		return
	}

	number, nerr := strconv.ParseUint(name, 10, 8)
	if nerr != nil || number > 31 {
		err = ErrRegisterInvalid
		return
	}
	reg = uint8(number)
	return
}

var (
	identRe = regexp.MustCompile(`\b[A-Za-z_]\w*`)
	baseRe  = regexp.MustCompile(`^(.*)\((\$\w+)\)$`)
)

// Assembler assembles MIPS source into a Program. The zero value is
// ready to use; Parse may be called once per source file.
type Assembler struct {
	Verbose bool // If set, verbosely logs the assembler actions.

	Label    map[string]uint32 // Map of labels to byte addresses.
	Equate   map[string]string // Map of equates.
	Warnings []string          // Non-fatal diagnostics from the last Parse.

	predefine map[string]string

	code    []byte
	lines   []Line
	lineno  int
	srcLine string
	current *Line
}

// Predefine defines an equate before parsing, or redefines an existing
// predefine.
func (as *Assembler) Predefine(equ string, value string) {
	if as.predefine == nil {
		as.predefine = map[string]string{equ: value}
	} else {
		as.predefine[equ] = value
	}
}

func (as *Assembler) currentAddr() uint32 {
	return uint32(len(as.code))
}

// Parse assembles an input stream into a Program. Two passes: the first
// collects label addresses, the second emits fully linked code.
func (as *Assembler) Parse(input io.Reader) (prog *Program, err error) {
	scanner := bufio.NewScanner(input)

	var source []string
	for scanner.Scan() {
		source = append(source, scanner.Text())
	}
	err = scanner.Err()
	if err != nil {
		return
	}

	as.Label = make(map[string]uint32, 16)
	as.Warnings = nil

	err = as.runPass(source, true)
	if err != nil {
		return
	}
	err = as.runPass(source, false)
	if err != nil {
		return
	}

	entry, ok := as.Label["main"]
	if !ok {
		// No main label: enter at the first emitted word.
		if len(as.lines) == 0 {
			err = ErrEntryMissing
			return
		}
		entry = as.lines[0].Addr
	}

	prog = &Program{
		Entry: entry,
		Data:  append([]byte{}, as.code...),
		Lines: append([]Line{}, as.lines...),
	}

	return
}

// runPass assembles every source line once. The first pass tolerates
// unresolved symbols and out-of-range values so that addresses come out
// identical on both passes.
func (as *Assembler) runPass(source []string, firstPass bool) (err error) {
	as.code = as.code[:0]
	as.lines = as.lines[:0]
	as.Equate = maps.Clone(as.predefine)
	if as.Equate == nil {
		as.Equate = map[string]string{}
	}

	// Guest memory starts with the reserved I/O window.
	as.code = append(as.code, make([]byte, host.IoSpaceSize)...)

	for n, text := range source {
		as.lineno = n + 1
		as.srcLine = text
		as.current = nil

		if as.Verbose && !firstPass {
			log.Printf("%v: %v", as.lineno, text)
		}

		err = as.assembleLine(text, firstPass)
		if err != nil {
			err = ErrSyntax{LineNo: as.lineno, Line: text, Err: err}
			return
		}
	}

	return
}

// cutComment drops a # comment, leaving # characters enclosed in a
// double-quoted string alone.
func cutComment(text string) string {
	inQuote := false
	escaped := false
	for n, c := range text {
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inQuote:
			escaped = true
		case c == '"':
			inQuote = !inQuote
		case c == '#' && !inQuote:
			return text[:n]
		}
	}
	return text
}

func (as *Assembler) assembleLine(text string, firstPass bool) (err error) {
	line := strings.TrimSpace(cutComment(text))
	if line == "" {
		return
	}

	fields := strings.Fields(line)

	// Leading labels, possibly several on one line.
	for strings.HasSuffix(fields[0], ":") {
		label := strings.TrimSuffix(fields[0], ":")
		if firstPass {
			_, ok := as.Label[label]
			if ok {
				return ErrLabelDuplicate
			}
		}
		as.Label[label] = as.currentAddr()
		line = strings.TrimSpace(line[len(fields[0]):])
		if line == "" {
			return
		}
		fields = strings.Fields(line)
	}

	if strings.HasPrefix(fields[0], ".") {
		// Directives receive their argument text unsplit so quoted
		// strings keep their spacing and punctuation.
		args := strings.TrimSpace(line[len(fields[0]):])
		return as.assembleDirective(fields[0], args, firstPass)
	}

	mnemonic := fields[0]
	var operands []string
	if len(fields) > 1 {
		joined := strings.Join(fields[1:], "")
		operands = strings.Split(joined, ",")
	}

	return as.assembleInstruction(mnemonic, operands, firstPass)
}

func (as *Assembler) assembleDirective(name string, args string, firstPass bool) (err error) {
	directive := strings.TrimPrefix(name, ".")

	switch directive {
	case "equ":
		fields := strings.Fields(args)
		if len(fields) < 2 {
			return ErrEquateSyntax
		}
		equ := fields[0]
		_, ok := as.Equate[equ]
		if ok {
			return ErrEquateDuplicate
		}
		var value int64
		value, err = as.evalExpr(strings.Join(fields[1:], ""), firstPass)
		if err != nil {
			return
		}
		as.Equate[equ] = strconv.FormatInt(value, 10)

	case "word":
		if args == "" {
			return ErrDirectiveSyntax
		}
		for _, expr := range strings.Split(strings.Join(strings.Fields(args), ""), ",") {
			var value int64
			value, err = as.evalExpr(expr, firstPass)
			if err != nil {
				return
			}
			as.emitWord(uint32(value))
		}

	case "asciiz":
		str, uerr := strconv.Unquote(args)
		if uerr != nil {
			return ErrDirectiveSyntax
		}
		as.emitBytes(append([]byte(str), 0))

	case "align":
		var power int64
		power, err = as.evalExpr(strings.Join(strings.Fields(args), ""), firstPass)
		if err != nil || power < 0 || power > 12 {
			return ErrDirectiveSyntax
		}
		span := uint32(1) << power
		for as.currentAddr()%span != 0 {
			as.emitBytes([]byte{0})
		}

	default:
		if directiveIgnore[directive] {
			return
		}
		if firstPass {
			warning := fmt.Sprintf("line %d: unknown directive .%s ignored", as.lineno, directive)
			as.Warnings = append(as.Warnings, warning)
			if as.Verbose {
				log.Print(warning)
			}
		}
	}

	return
}

func (as *Assembler) assembleInstruction(mnemonic string, operands []string, firstPass bool) (err error) {
	// Pseudo-instruction expansions. Each expands to a fixed number of
	// words so that both passes agree on addresses.
	switch mnemonic {
	case "nop":
		as.emitWord(isa.MakeR(isa.FnSll, 0, 0, 0, 0))
		return
	case "move":
		if len(operands) != 2 {
			return ErrOperandCount
		}
		return as.emitFields("addu", []string{operands[0], operands[1], "$zero"}, firstPass)
	case "li", "la":
		if len(operands) != 2 {
			return ErrOperandCount
		}
		var rt uint8
		rt, err = parseReg(operands[0])
		if err != nil {
			return
		}
		var value int64
		value, err = as.evalExpr(operands[1], firstPass)
		if err != nil {
			return
		}
		as.emitWord(isa.MakeI(isa.OpLui, 0, rt, uint16(value>>16)))
		as.emitWord(isa.MakeI(isa.OpOri, rt, rt, uint16(value)))
		return
	case "b":
		if len(operands) != 1 {
			return ErrOperandCount
		}
		return as.emitFields("beq", []string{"$zero", "$zero", operands[0]}, firstPass)
	case "beqz":
		if len(operands) != 2 {
			return ErrOperandCount
		}
		return as.emitFields("beq", []string{operands[0], "$zero", operands[1]}, firstPass)
	case "bnez":
		if len(operands) != 2 {
			return ErrOperandCount
		}
		return as.emitFields("bne", []string{operands[0], "$zero", operands[1]}, firstPass)
	}

	return as.emitFields(mnemonic, operands, firstPass)
}

// emitFields encodes one catalog instruction from its operand strings.
func (as *Assembler) emitFields(mnemonic string, operands []string, firstPass bool) (err error) {
	desc, ok := isa.Lookup(mnemonic)
	if !ok {
		return isa.ErrUnknownMnemonic
	}

	// jalr with one operand links into $ra.
	if mnemonic == "jalr" && len(operands) == 1 {
		operands = []string{"$ra", operands[0]}
	}

	var tokens []string
	if desc.Format != "" {
		tokens = strings.Split(desc.Format, ",")
	}
	if len(operands) != len(tokens) {
		return ErrOperandCount
	}

	var rs, rt, rd, shamt uint8
	var imm uint16

	for n, token := range tokens {
		operand := operands[n]
		switch token {
		case "rs":
			rs, err = parseReg(operand)
		case "rt":
			rt, err = parseReg(operand)
		case "rd":
			rd, err = parseReg(operand)
		case "shamt":
			var value int64
			value, err = as.evalExpr(operand, firstPass)
			if err == nil && !firstPass && (value < 0 || value > 31) {
				err = ErrShiftRange
			}
			shamt = uint8(value & 0x1f)
		case "imm":
			imm, err = as.immediate(operand, firstPass)
		case "off":
			imm, err = as.branchOffset(operand, firstPass)
		case "imm(rs)":
			expr := operand
			match := baseRe.FindStringSubmatch(operand)
			if match != nil {
				expr = match[1]
				rs, err = parseReg(match[2])
				if err != nil {
					return
				}
			}
			if expr == "" {
				expr = "0"
			}
			imm, err = as.immediate(expr, firstPass)
		}
		if err != nil {
			return
		}
	}

	if desc.Shape == isa.ShapeR {
		as.emitWord(isa.MakeR(desc.Funct, rs, rt, rd, shamt))
	} else {
		as.emitWord(isa.MakeI(desc.Opcode, rs, rt, imm))
	}

	return
}

// immediate evaluates a 16-bit immediate operand. Signed and unsigned
// ranges are both accepted; extension behavior is per mnemonic at
// execution time.
func (as *Assembler) immediate(expr string, firstPass bool) (imm uint16, err error) {
	value, err := as.evalExpr(expr, firstPass)
	if err != nil {
		return
	}
	if !firstPass && (value < -0x8000 || value > 0xffff) {
		err = ErrOperandRange
		return
	}
	imm = uint16(value & 0xffff)
	return
}

// branchOffset encodes a branch target as a signed word offset relative
// to the instruction after the branch.
func (as *Assembler) branchOffset(expr string, firstPass bool) (imm uint16, err error) {
	target, err := as.evalExpr(expr, firstPass)
	if err != nil {
		return
	}
	if firstPass {
		return
	}

	diff := target - int64(as.currentAddr()) - 4
	if diff%4 != 0 {
		err = ErrBranchAlignment
		return
	}
	off := diff / 4
	if off < -0x8000 || off > 0x7fff {
		err = ErrBranchRange
		return
	}
	imm = uint16(off & 0xffff)
	return
}

// evalExpr does assembly-time expression evaluation with labels and
// equates predeclared. On the first pass, symbols not yet known
// evaluate to zero.
func (as *Assembler) evalExpr(expr string, firstPass bool) (value int64, err error) {
	// Compiler spellings for address halves.
	expr = strings.ReplaceAll(expr, "%hi", "hi")
	expr = strings.ReplaceAll(expr, "%lo", "lo")

	pred := starlark.StringDict{
		"hi": starlark.NewBuiltin("hi", starlarkHalf(16)),
		"lo": starlark.NewBuiltin("lo", starlarkHalf(0)),
	}
	for key, str := range as.Equate {
		number, nerr := strconv.ParseInt(str, 0, 64)
		if nerr != nil {
			// Non-integer equates may be registers or other text.
			continue
		}
		pred[key] = starlark.MakeInt64(number)
	}
	for key, addr := range as.Label {
		pred[key] = starlark.MakeInt64(int64(addr))
	}

	for _, ident := range identRe.FindAllString(expr, -1) {
		_, ok := pred[ident]
		if ok {
			continue
		}
		if !firstPass {
			err = ErrLabelMissing(ident)
			return
		}
		pred[ident] = starlark.MakeInt(0)
	}

	thread := starlark.Thread{}
	opts := syntax.FileOptions{}
	prog := "rc=" + expr + "\n"
	dict, err := starlark.ExecFileOptions(&opts, &thread, "expr", prog, pred)
	if err != nil {
		err = ErrParseExpression(expr)
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
	value, ok = st_int.Int64()
	if !ok {
		err = ErrParseExpression(expr)
	}
	return
}

// starlarkHalf builds the hi()/lo() address-half builtins.
func starlarkHalf(shift uint) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var n int64
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &n); err != nil {
			return nil, err
		}
		return starlark.MakeInt64((n >> shift) & 0xffff), nil
	}
}

func (as *Assembler) emitWord(word uint32) {
	if as.current == nil {
		as.lines = append(as.lines, Line{LineNo: as.lineno, Addr: as.currentAddr(), Text: as.srcLine})
		as.current = &as.lines[len(as.lines)-1]
	}
	as.current.Words = append(as.current.Words, word)

	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], word)
	as.code = append(as.code, buf[:]...)
}

func (as *Assembler) emitBytes(data []byte) {
	as.code = append(as.code, data...)
}
