package asm

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"layoutc/pkg/vm"
)

// Instructions whose operands are Go values and have no text form.
var hostOperandOps = map[vm.Opcode]bool{
	vm.OpFunction:             true,
	vm.OpHelper:               true,
	vm.OpPushArgs:             true,
	vm.OpPushComponentManager: true,
	vm.OpInvokeStatic:         true,
}

type parsedLine struct {
	lineNo   int
	labels   []string
	mnemonic string
	operands []string
}

// AssembleText assembles listing-style source, one instruction per line:
//
//	        FETCH s1
//	        PRIMITIVE "section"
//	        JUMP_UNLESS body   ; comment
//	body:   TEXT "hello"
//
// Jump targets must be labels. Labels are case-insensitive.
func AssembleText(env *Environment, code string, meta Meta) (Program, error) {
	b := New(env, meta)
	b.StartLabels()

	for i, raw := range strings.Split(code, "\n") {
		lineNo := i + 1
		p, err := parseLine(raw, lineNo)
		if err != nil {
			return Program{}, err
		}

		for _, lbl := range p.labels {
			b.Label(normalizeLabel(lbl))
		}

		if p.mnemonic != "" {
			if err := assembleLine(b, p); err != nil {
				return Program{}, err
			}
		}

		if err := b.Err(); err != nil {
			return Program{}, fmt.Errorf("%w on line %d", err, lineNo)
		}
	}

	b.StopLabels()
	return b.Program()
}

func assembleLine(b *Assembler, p parsedLine) error {
	op, ok := byMnemonic[p.mnemonic]
	if !ok {
		return fmt.Errorf("unknown instruction on line %d: %s", p.lineNo, p.mnemonic)
	}
	if hostOperandOps[op] {
		return fmt.Errorf("%s cannot be written as text on line %d", p.mnemonic, p.lineNo)
	}
	ops := p.operands

	switch opTable[op].operand {
	case noOperand:
		if err := expectOperands(p, 0, 0); err != nil {
			return err
		}
		b.emit(op, 0, 0)

	case registerOperand:
		if err := expectOperands(p, 1, 1); err != nil {
			return err
		}
		r, err := parseRegister(ops[0], p.lineNo)
		if err != nil {
			return err
		}
		if b.valueRegister(r) {
			b.emit(op, int32(r), 0)
		}

	case addressOperand:
		if err := expectOperands(p, 1, 1); err != nil {
			return err
		}
		if !isIdentifier(ops[0]) {
			return fmt.Errorf("jump target must be a label on line %d: %s", p.lineNo, ops[0])
		}
		b.reference(op, normalizeLabel(ops[0]))

	case countOperand:
		if err := expectOperands(p, 1, 1); err != nil {
			return err
		}
		n, err := strconv.ParseUint(ops[0], 0, 31)
		if err != nil {
			return fmt.Errorf("invalid count on line %d: %s", p.lineNo, ops[0])
		}
		b.emit(op, int32(n), 0)

	case testOperand:
		if err := expectOperands(p, 1, 1); err != nil {
			return err
		}
		if !strings.EqualFold(ops[0], vm.TestSimple.String()) {
			return fmt.Errorf("unknown test %q on line %d", ops[0], p.lineNo)
		}
		b.Test(vm.TestSimple)

	case nameOperand:
		if err := expectOperands(p, 0, 1); err != nil {
			return err
		}
		name := ""
		if len(ops) == 1 {
			s, err := parseString(ops[0], p.lineNo)
			if err != nil {
				return err
			}
			name = s
		}
		b.InvokeComponent(name)

	case constantOperand:
		return assembleConstant(b, op, p)
	}
	return nil
}

func assembleConstant(b *Assembler, op vm.Opcode, p parsedLine) error {
	ops := p.operands
	switch op {
	case vm.OpStaticAttr:
		if err := expectOperands(p, 2, 3); err != nil {
			return err
		}
		value, err := parseString(ops[1], p.lineNo)
		if err != nil {
			return err
		}
		ns := ""
		if len(ops) == 3 {
			ns = parseName(ops[2])
		}
		b.StaticAttr(parseName(ops[0]), value, ns)

	case vm.OpDynamicAttr:
		if err := expectOperands(p, 1, 2); err != nil {
			return err
		}
		ns := ""
		if len(ops) == 2 {
			ns = parseName(ops[1])
		}
		b.DynamicAttr(parseName(ops[0]), ns)

	case vm.OpPrimitive:
		if err := expectOperands(p, 1, 1); err != nil {
			return err
		}
		v, err := parseValue(ops[0], p.lineNo)
		if err != nil {
			return err
		}
		b.Primitive(v)

	default:
		if err := expectOperands(p, 1, 1); err != nil {
			return err
		}
		s, err := parseString(ops[0], p.lineNo)
		if err != nil {
			return err
		}
		b.emit(op, b.constant(s), 0)
	}
	return nil
}

func expectOperands(p parsedLine, min, max int) error {
	if n := len(p.operands); n < min || n > max {
		if min == max {
			return fmt.Errorf("%s expects %d operands on line %d", p.mnemonic, min, p.lineNo)
		}
		return fmt.Errorf("%s expects %d to %d operands on line %d", p.mnemonic, min, max, p.lineNo)
	}
	return nil
}

func parseLine(raw string, lineNo int) (parsedLine, error) {
	p := parsedLine{lineNo: lineNo}

	line := strings.TrimSpace(stripComments(raw))
	if line == "" {
		return p, nil
	}

	for {
		colon := strings.IndexByte(line, ':')
		if colon <= 0 {
			break
		}

		beforeColon := strings.TrimSpace(line[:colon])
		if strings.ContainsAny(beforeColon, " \t\"") {
			break
		}

		if !isIdentifier(beforeColon) {
			return p, fmt.Errorf("invalid label '%s' on line %d", beforeColon, lineNo)
		}

		p.labels = append(p.labels, beforeColon)
		line = strings.TrimSpace(line[colon+1:])
		if line == "" {
			return p, nil
		}
	}

	fields, err := splitOperands(line, lineNo)
	if err != nil {
		return p, err
	}
	if len(fields) == 0 {
		return p, nil
	}

	p.mnemonic = strings.ToUpper(fields[0])
	if len(fields) > 1 {
		p.operands = fields[1:]
	}
	return p, nil
}

// stripComments cuts the line at the first ';' or '//' outside a string literal.
func stripComments(line string) string {
	inString := false
	for i := 0; i < len(line); i++ {
		switch c := line[i]; {
		case c == '\\' && inString:
			i++
		case c == '"':
			inString = !inString
		case inString:
		case c == ';':
			return line[:i]
		case c == '/' && i+1 < len(line) && line[i+1] == '/':
			return line[:i]
		}
	}
	return line
}

// splitOperands splits on whitespace and commas, keeping string literals
// (with their quotes) as single fields.
func splitOperands(line string, lineNo int) ([]string, error) {
	var fields []string
	for {
		line = strings.TrimLeft(line, " \t,")
		if line == "" {
			return fields, nil
		}
		if line[0] == '"' {
			lit, err := strconv.QuotedPrefix(line)
			if err != nil {
				return nil, fmt.Errorf("invalid string literal on line %d", lineNo)
			}
			fields = append(fields, lit)
			line = line[len(lit):]
			continue
		}
		end := strings.IndexAny(line, " \t,")
		if end < 0 {
			end = len(line)
		}
		fields = append(fields, line[:end])
		line = line[end:]
	}
}

func parseRegister(token string, lineNo int) (vm.Register, error) {
	for r := vm.PC; r <= vm.T1; r++ {
		if strings.EqualFold(token, r.String()) {
			return r, nil
		}
	}
	return 0, fmt.Errorf("invalid register '%s' on line %d", token, lineNo)
}

func parseString(token string, lineNo int) (string, error) {
	if !strings.HasPrefix(token, `"`) {
		return "", fmt.Errorf("expected string literal on line %d: %s", lineNo, token)
	}
	s, err := strconv.Unquote(token)
	if err != nil {
		return "", fmt.Errorf("invalid string literal on line %d", lineNo)
	}
	return s, nil
}

func parseName(token string) string {
	if s, err := strconv.Unquote(token); err == nil {
		return s
	}
	return token
}

func parseValue(token string, lineNo int) (any, error) {
	switch token {
	case "null":
		return nil, nil
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	if strings.HasPrefix(token, `"`) {
		return parseString(token, lineNo)
	}
	if n, err := strconv.ParseInt(token, 0, 64); err == nil {
		return int(n), nil
	}
	if f, err := strconv.ParseFloat(token, 64); err == nil {
		return f, nil
	}
	return nil, fmt.Errorf("invalid value on line %d: %s", lineNo, token)
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}

	for i, r := range s {
		if i == 0 {
			if !unicode.IsLetter(r) && r != '_' {
				return false
			}
			continue
		}

		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return false
		}
	}

	return true
}

func normalizeLabel(label string) string {
	return strings.ToUpper(label)
}
