// Package asm implements the MCL assembly loader: a two-pass text
// parser that turns assembly source into a decoded instruction stream,
// a label table, and a source-line map, per spec §4.3.
package asm

import (
	"fmt"
	"strconv"
	"strings"

	"mcl/pkg/cpu"
)

// LoadError reports a line-numbered assembly validation failure, per
// spec §7's "Load error" policy.
type LoadError struct {
	Line    int
	Message string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Message)
}

func errf(line int, format string, args ...any) error {
	return &LoadError{Line: line, Message: fmt.Sprintf(format, args...)}
}

// arity fixes how many operands each opcode takes, and which slots are
// register-only (spec §6.1). Grounded structurally on the teacher's
// arity-map-per-opcode style (pkg/asm/asm.go's zero/one/two/threeRegisterOps).
type arity struct {
	count      int
	regOnly    map[int]bool // operand index -> register-only
	gpuAllowed map[int]bool // operand index -> symbolic GPU accepted (MVR src/dst only)
}

var opcodes = map[string]arity{
	"LOAD":    {count: 2},
	"READ":    {count: 2, regOnly: map[int]bool{1: true}},
	"MVR":     {count: 2, regOnly: map[int]bool{1: true}, gpuAllowed: map[int]bool{0: true, 1: true}},
	"MVM":     {count: 2},
	"ADD":     {count: 2},
	"SUB":     {count: 2},
	"MULT":    {count: 2},
	"DIV":     {count: 2},
	"SHL":     {count: 2},
	"SHR":     {count: 2},
	"SHLR":    {count: 2},
	"AND":     {count: 2},
	"OR":      {count: 2},
	"XOR":     {count: 2},
	"NOT":     {count: 1, regOnly: map[int]bool{0: true}},
	"JMP":     {count: 1},
	"JAL":     {count: 1},
	"JZ":      {count: 2},
	"JNZ":     {count: 2},
	"JBT":     {count: 3},
	"KEYIN":   {count: 1},
	"HALT":    {count: 0},
	"DRLINE":  {count: 4},
	"DRGRD":   {count: 4},
	"CLRGRID": {count: 4},
	"LDSPR":   {count: 2},
	"DRSPR":   {count: 3},
	"LDTXT":   {count: 2},
	"DRTXT":   {count: 3},
	"SCRLBFR": {count: 2},
}

type parsedLine struct {
	lineNo   int
	label    string // "" if no label
	mnemonic string // "" if label-only line
	operands []string
}

// Assembler holds the label table built across both passes.
type Assembler struct {
	labels map[string]uint16
}

// NewAssembler returns an empty Assembler.
func NewAssembler() *Assembler { return &Assembler{labels: make(map[string]uint16)} }

// Assemble is the package-level convenience entry point.
func Assemble(source string) ([]cpu.Instr, map[string]uint16, []int, error) {
	return NewAssembler().Assemble(source)
}

// Assemble runs both passes over source and returns the decoded
// instruction stream, the label table, and SourceLineOf (spec §4.3's
// output contract: instructions, labels, source_line_of).
func (a *Assembler) Assemble(source string) ([]cpu.Instr, map[string]uint16, []int, error) {
	lines := strings.Split(source, "\n")

	parsed, err := parseLines(lines)
	if err != nil {
		return nil, nil, nil, err
	}

	if err := a.pass1(parsed); err != nil {
		return nil, nil, nil, err
	}

	program, sourceLineOf, err := a.pass2(parsed)
	if err != nil {
		return nil, nil, nil, err
	}

	return program, a.labels, sourceLineOf, nil
}

// parseLines tokenizes every non-blank source line into an optional
// label, an optional mnemonic, and its raw operand strings, stripping
// "//" and ";" comments (spec §4.3 step 1).
func parseLines(lines []string) ([]parsedLine, error) {
	var out []parsedLine
	for i, raw := range lines {
		lineNo := i + 1
		line := stripComment(raw)
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		label := ""
		if idx := strings.Index(line, ":"); idx >= 0 {
			candidate := strings.TrimSpace(line[:idx])
			if isIdentifier(candidate) {
				label = candidate
				line = strings.TrimSpace(line[idx+1:])
			}
		}

		if line == "" {
			out = append(out, parsedLine{lineNo: lineNo, label: label})
			continue
		}

		fields := strings.Fields(line)
		mnemonic := strings.ToUpper(fields[0])
		rest := strings.TrimSpace(strings.TrimPrefix(line, fields[0]))

		var operands []string
		if rest != "" {
			for _, op := range strings.Split(rest, ",") {
				op = strings.TrimSpace(op)
				if op != "" {
					operands = append(operands, op)
				}
			}
		}

		out = append(out, parsedLine{lineNo: lineNo, label: label, mnemonic: mnemonic, operands: operands})
	}
	return out, nil
}

func stripComment(line string) string {
	if idx := strings.Index(line, "//"); idx >= 0 {
		line = line[:idx]
	}
	if idx := strings.Index(line, ";"); idx >= 0 {
		line = line[:idx]
	}
	return line
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			continue
		}
		if i > 0 && r >= '0' && r <= '9' {
			continue
		}
		return false
	}
	return true
}

// pass1 assigns every label the instruction index of the next
// instruction emitted — a label on a line with no trailing instruction
// binds to the index of whatever follows it (spec §4.3 step 1).
func (a *Assembler) pass1(lines []parsedLine) error {
	index := uint16(0)
	for _, p := range lines {
		if p.label != "" {
			if _, exists := a.labels[p.label]; exists {
				return errf(p.lineNo, "duplicate label %q", p.label)
			}
			a.labels[p.label] = index
		}
		if p.mnemonic != "" {
			index++
		}
	}
	return nil
}

// pass2 parses each line's operands into resolved cpu.Instr values.
func (a *Assembler) pass2(lines []parsedLine) ([]cpu.Instr, []int, error) {
	var program []cpu.Instr
	var sourceLineOf []int

	for _, p := range lines {
		if p.mnemonic == "" {
			continue
		}
		ar, ok := opcodes[p.mnemonic]
		if !ok {
			return nil, nil, errf(p.lineNo, "unknown opcode %q", p.mnemonic)
		}
		if len(p.operands) != ar.count {
			return nil, nil, errf(p.lineNo, "%s expects %d operand(s), got %d", p.mnemonic, ar.count, len(p.operands))
		}

		ops := make([]cpu.Operand, len(p.operands))
		for idx, raw := range p.operands {
			op, err := a.parseOperand(raw, p.lineNo)
			if err != nil {
				return nil, nil, err
			}
			if op.Kind == cpu.OperandGPU && !ar.gpuAllowed[idx] {
				return nil, nil, errf(p.lineNo, "%s does not accept GPU as operand %d; only MVR ..., GPU is supported", p.mnemonic, idx+1)
			}
			if ar.regOnly[idx] {
				if op.Kind == cpu.OperandImmediate {
					return nil, nil, errf(p.lineNo, "%s operand %d must be a register, not an immediate", p.mnemonic, idx+1)
				}
				if op.Kind == cpu.OperandGPU && !ar.gpuAllowed[idx] {
					return nil, nil, errf(p.lineNo, "%s operand %d must be a register", p.mnemonic, idx+1)
				}
			}
			ops[idx] = op
		}

		instr, err := build(p.mnemonic, ops, p.lineNo)
		if err != nil {
			return nil, nil, err
		}
		program = append(program, instr)
		sourceLineOf = append(sourceLineOf, p.lineNo)
	}

	// Resolve label operands now that the full program length is known
	// for BadPC-style bounds checks to be meaningful at runtime; label
	// text was already converted to instruction-index immediates during
	// operand parsing via a.labels, so nothing further to do here.
	return program, sourceLineOf, nil
}

// parseOperand classifies one operand per spec §6.1's grammar: register
// (bare decimal 0..31), immediate (i: prefix), hex immediate (0x...),
// the symbolic GPU selector, or a label reference resolved against the
// label table built in pass1.
func (a *Assembler) parseOperand(raw string, lineNo int) (cpu.Operand, error) {
	if raw == "GPU" {
		return cpu.GPUOperand(), nil
	}

	if strings.HasPrefix(raw, "i:") {
		valStr := raw[2:]
		v, err := parseNumber(valStr)
		if err != nil {
			// Not a number - could be a label used as an explicit immediate.
			if addr, ok := a.labels[valStr]; ok {
				return cpu.Imm(uint32(addr)), nil
			}
			return cpu.Operand{}, errf(lineNo, "invalid immediate %q", raw)
		}
		if v > 0xFFFFFFFF {
			return cpu.Operand{}, errf(lineNo, "immediate %q does not fit in 32 bits", raw)
		}
		return cpu.Imm(uint32(v)), nil
	}

	if strings.HasPrefix(raw, "0x") || strings.HasPrefix(raw, "0X") {
		v, err := strconv.ParseUint(raw[2:], 16, 32)
		if err != nil {
			return cpu.Operand{}, errf(lineNo, "invalid hex immediate %q", raw)
		}
		return cpu.Imm(uint32(v)), nil
	}

	if isAllDigits(raw) {
		v, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return cpu.Operand{}, errf(lineNo, "invalid register index %q", raw)
		}
		if v > 31 {
			return cpu.Operand{}, errf(lineNo, "register index %d out of range 0..31", v)
		}
		return cpu.Reg(uint16(v)), nil
	}

	if isIdentifier(raw) {
		addr, ok := a.labels[raw]
		if !ok {
			return cpu.Operand{}, errf(lineNo, "undefined label %q", raw)
		}
		return cpu.Imm(uint32(addr)), nil
	}

	return cpu.Operand{}, errf(lineNo, "invalid operand %q", raw)
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func parseNumber(s string) (uint64, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return strconv.ParseUint(s[2:], 16, 64)
	}
	return strconv.ParseUint(s, 10, 64)
}

// build constructs the cpu.Instr for one parsed line. Operand widths
// are enforced here: every immediate must fit 16 bits except when it is
// the source of an MVR whose destination is GPU, which may be up to
// 32 bits wide (spec §8 end-to-end scenario 5).
func build(mnemonic string, ops []cpu.Operand, lineNo int) (cpu.Instr, error) {
	checkWidth := func(idx int, bits int) error {
		op := ops[idx]
		if op.Kind != cpu.OperandImmediate {
			return nil
		}
		limit := uint64(1) << uint(bits)
		if uint64(op.Value) >= limit {
			return errf(lineNo, "immediate operand %d (0x%X) does not fit in %d bits", idx+1, op.Value, bits)
		}
		return nil
	}
	for idx := range ops {
		if mnemonic == "MVR" && idx == 0 {
			continue
		}
		if err := checkWidth(idx, 16); err != nil {
			return nil, err
		}
	}

	switch mnemonic {
	case "LOAD":
		if ops[0].Kind == cpu.OperandGPU || ops[1].Kind == cpu.OperandGPU {
			return nil, errf(lineNo, "LOAD does not support the GPU operand; use MVR src, GPU to write the selector")
		}
		if err := checkWidth(0, 16); err != nil {
			return nil, err
		}
		if err := checkWidth(1, 16); err != nil {
			return nil, err
		}
		return cpu.Load{Src: ops[0], DstAddr: ops[1]}, nil
	case "READ":
		if err := checkWidth(0, 16); err != nil {
			return nil, err
		}
		return cpu.Read{SrcAddr: ops[0], DstReg: uint16(ops[1].Value)}, nil
	case "MVR":
		dstIsGPU := ops[1].Kind == cpu.OperandGPU
		bits := 16
		if dstIsGPU {
			bits = 32
		}
		if err := checkWidth(0, bits); err != nil {
			return nil, err
		}
		dst := uint16(0)
		if !dstIsGPU {
			dst = uint16(ops[1].Value)
		}
		return cpu.Mvr{Src: ops[0], Dst: dst, DstIsGPU: dstIsGPU}, nil
	case "MVM":
		if ops[0].Kind == cpu.OperandGPU || ops[1].Kind == cpu.OperandGPU {
			return nil, errf(lineNo, "MVM does not support the GPU operand")
		}
		return cpu.Mvm{SrcAddr: ops[0], DstAddr: ops[1]}, nil
	case "ADD":
		return cpu.Add{A: ops[0], B: ops[1]}, nil
	case "SUB":
		return cpu.Sub{A: ops[0], B: ops[1]}, nil
	case "MULT":
		return cpu.Mult{A: ops[0], B: ops[1]}, nil
	case "DIV":
		return cpu.Div{A: ops[0], B: ops[1]}, nil
	case "SHL":
		return cpu.Shl{A: ops[0], B: ops[1]}, nil
	case "SHR":
		return cpu.Shr{A: ops[0], B: ops[1]}, nil
	case "SHLR":
		return cpu.Shlr{A: ops[0], B: ops[1]}, nil
	case "AND":
		return cpu.And{A: ops[0], B: ops[1]}, nil
	case "OR":
		return cpu.Or{A: ops[0], B: ops[1]}, nil
	case "XOR":
		return cpu.Xor{A: ops[0], B: ops[1]}, nil
	case "NOT":
		return cpu.Not{A: uint16(ops[0].Value)}, nil
	case "JMP":
		return cpu.Jmp{Target: ops[0]}, nil
	case "JAL":
		return cpu.Jal{Target: ops[0]}, nil
	case "JZ":
		return cpu.Jz{Target: ops[0], Cond: ops[1]}, nil
	case "JNZ":
		return cpu.Jnz{Target: ops[0], Cond: ops[1]}, nil
	case "JBT":
		return cpu.Jbt{Target: ops[0], X: ops[1], Y: ops[2]}, nil
	case "KEYIN":
		return cpu.Keyin{Addr: ops[0]}, nil
	case "HALT":
		return cpu.Halt{}, nil
	case "DRLINE":
		return cpu.Drline{X1: ops[0], Y1: ops[1], X2: ops[2], Y2: ops[3]}, nil
	case "DRGRD":
		return cpu.Drgrd{X: ops[0], Y: ops[1], W: ops[2], H: ops[3]}, nil
	case "CLRGRID":
		return cpu.Clrgrid{X: ops[0], Y: ops[1], W: ops[2], H: ops[3]}, nil
	case "LDSPR":
		return cpu.Ldspr{ID: ops[0], Data: ops[1]}, nil
	case "DRSPR":
		return cpu.Drspr{ID: ops[0], X: ops[1], Y: ops[2]}, nil
	case "LDTXT":
		return cpu.Ldtxt{ID: ops[0], Code: ops[1]}, nil
	case "DRTXT":
		return cpu.Drtxt{ID: ops[0], X: ops[1], Y: ops[2]}, nil
	case "SCRLBFR":
		return cpu.Scrlbfr{OffX: ops[0], OffY: ops[1]}, nil
	default:
		return nil, errf(lineNo, "unknown opcode %q", mnemonic)
	}
}
