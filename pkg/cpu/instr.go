package cpu

import "fmt"

// OperandKind tags how an Operand's Value is interpreted. Splitting this
// from a loose "could be anything" operand is the encoding spec §9 asks
// for: register-only slots (Read.DstReg, Mvr.Dst, Not.A) are plain
// uint16 register indices and simply don't carry this type at all,
// making the invalid-operand case unrepresentable wherever the grammar
// forbids it.
type OperandKind int

const (
	OperandRegister OperandKind = iota
	OperandImmediate
	OperandGPU
)

// Operand is a resolved, loaded-time-validated operand: a register
// index, an immediate word, or the symbolic GPU selector. Label
// references are lowered to Immediate instruction-index operands by the
// loader (spec §4.3) and never reach the CPU as a distinct kind.
type Operand struct {
	Kind  OperandKind
	Value uint32 // register index, or immediate/selector value
}

// Reg constructs a register operand.
func Reg(index uint16) Operand { return Operand{Kind: OperandRegister, Value: uint32(index)} }

// Imm constructs an immediate operand.
func Imm(v uint32) Operand { return Operand{Kind: OperandImmediate, Value: v} }

// GPUOperand is the symbolic GPU selector operand.
func GPUOperand() Operand { return Operand{Kind: OperandGPU} }

// resolve returns the operand's value. Register reads are widened to
// uint32 so that arithmetic helpers share one numeric type regardless of
// whether GPU (32-bit) participated; results are masked back down to
// 16 bits by the instruction that writes a general register.
func (o Operand) resolve(c *CPU) uint32 {
	switch o.Kind {
	case OperandRegister:
		return uint32(c.Regs[o.Value])
	case OperandGPU:
		return c.GPU.ReadSelector()
	default: // OperandImmediate
		return o.Value
	}
}

func (o Operand) String() string {
	switch o.Kind {
	case OperandRegister:
		return fmt.Sprintf("%d", o.Value)
	case OperandGPU:
		return "GPU"
	default:
		return fmt.Sprintf("i:0x%X", o.Value)
	}
}

// Instr is the tagged-variant instruction interface, one small struct
// per opcode, mirroring the teacher's AST-node idiom (ast.go) applied to
// the ISA instead of the grammar.
type Instr interface {
	exec(c *CPU) Outcome
	String() string
}

func setR0(c *CPU, v uint32) { c.Regs[RegR0] = uint16(v) }
func setR1(c *CPU, v uint32) { c.Regs[RegR1] = uint16(v) }

func (c *CPU) advance() Outcome {
	c.PC++
	return running()
}

// --- Memory group ---

// Load implements LOAD src, dst_addr: RAM[dst_addr] = src.
type Load struct {
	Src     Operand
	DstAddr Operand
}

func (i Load) exec(c *CPU) Outcome {
	c.RAM[uint16(i.DstAddr.resolve(c))] = uint16(i.Src.resolve(c))
	return c.advance()
}
func (i Load) String() string { return fmt.Sprintf("LOAD %s, %s", i.Src, i.DstAddr) }

// Read implements READ src_addr, dst_reg: R[dst_reg] = RAM[src_addr].
type Read struct {
	SrcAddr Operand
	DstReg  uint16
}

func (i Read) exec(c *CPU) Outcome {
	c.Regs[i.DstReg] = c.RAM[uint16(i.SrcAddr.resolve(c))]
	return c.advance()
}
func (i Read) String() string { return fmt.Sprintf("READ %s, %d", i.SrcAddr, i.DstReg) }

// Mvr implements MVR src, dst: R[dst] = src. dst may be a plain register
// or the symbolic GPU selector (up to 32 bits wide). Unlike the ALU ops,
// MVR writes only its destination: R0 changes only when it is dst.
type Mvr struct {
	Src   Operand
	Dst   uint16
	DstIsGPU bool
}

func (i Mvr) exec(c *CPU) Outcome {
	v := i.Src.resolve(c)
	if i.DstIsGPU {
		c.GPU.SetSelector(v)
	} else {
		c.Regs[i.Dst] = uint16(v)
	}
	return c.advance()
}
func (i Mvr) String() string {
	if i.DstIsGPU {
		return fmt.Sprintf("MVR %s, GPU", i.Src)
	}
	return fmt.Sprintf("MVR %s, %d", i.Src, i.Dst)
}

// Mvm implements MVM src_addr, dst_addr: RAM[dst_addr] = RAM[src_addr].
type Mvm struct {
	SrcAddr Operand
	DstAddr Operand
}

func (i Mvm) exec(c *CPU) Outcome {
	c.RAM[uint16(i.DstAddr.resolve(c))] = c.RAM[uint16(i.SrcAddr.resolve(c))]
	return c.advance()
}
func (i Mvm) String() string { return fmt.Sprintf("MVM %s, %s", i.SrcAddr, i.DstAddr) }

// --- ALU group ---

// Add implements ADD A,B: R0 = (A+B) mod 2^16.
type Add struct{ A, B Operand }

func (i Add) exec(c *CPU) Outcome {
	setR0(c, i.A.resolve(c)+i.B.resolve(c))
	return c.advance()
}
func (i Add) String() string { return fmt.Sprintf("ADD %s, %s", i.A, i.B) }

// Sub implements SUB A,B: R0 = (A-B) mod 2^16.
type Sub struct{ A, B Operand }

func (i Sub) exec(c *CPU) Outcome {
	setR0(c, i.A.resolve(c)-i.B.resolve(c))
	return c.advance()
}
func (i Sub) String() string { return fmt.Sprintf("SUB %s, %s", i.A, i.B) }

// Mult implements MULT A,B: R0 = low16(A*B), R1 = high16(A*B).
type Mult struct{ A, B Operand }

func (i Mult) exec(c *CPU) Outcome {
	a := uint16(i.A.resolve(c))
	b := uint16(i.B.resolve(c))
	product := uint32(a) * uint32(b)
	setR0(c, product&0xFFFF)
	setR1(c, (product>>16)&0xFFFF)
	return c.advance()
}
func (i Mult) String() string { return fmt.Sprintf("MULT %s, %s", i.A, i.B) }

// Div implements DIV A,B: DivByZero if B==0, else R0 = A/B truncated
// toward zero, R1 = A mod B with the sign of A (spec §3, resolving the
// Open Question in spec §9 as signed truncation).
type Div struct{ A, B Operand }

func (i Div) exec(c *CPU) Outcome {
	a := int16(uint16(i.A.resolve(c)))
	b := int16(uint16(i.B.resolve(c)))
	if b == 0 {
		return faulted(DivByZero, c.PC, i.String())
	}
	quotient := a / b // Go's integer division already truncates toward zero
	remainder := a % b
	setR0(c, uint32(uint16(quotient)))
	setR1(c, uint32(uint16(remainder)))
	return c.advance()
}
func (i Div) String() string { return fmt.Sprintf("DIV %s, %s", i.A, i.B) }

// --- Shift/rotate group ---

// Shl implements SHL A,B: logical left shift, 16-bit, amount mod 16.
type Shl struct{ A, B Operand }

func (i Shl) exec(c *CPU) Outcome {
	a := uint16(i.A.resolve(c))
	b := uint16(i.B.resolve(c)) % 16
	setR0(c, uint32(a<<b))
	return c.advance()
}
func (i Shl) String() string { return fmt.Sprintf("SHL %s, %s", i.A, i.B) }

// Shr implements SHR A,B: logical right shift, 16-bit, amount mod 16.
type Shr struct{ A, B Operand }

func (i Shr) exec(c *CPU) Outcome {
	a := uint16(i.A.resolve(c))
	b := uint16(i.B.resolve(c)) % 16
	setR0(c, uint32(a>>b))
	return c.advance()
}
func (i Shr) String() string { return fmt.Sprintf("SHR %s, %s", i.A, i.B) }

// Shlr implements SHLR A,B: 16-bit left rotation by B mod 16 bits.
type Shlr struct{ A, B Operand }

func (i Shlr) exec(c *CPU) Outcome {
	a := uint16(i.A.resolve(c))
	b := uint16(i.B.resolve(c)) % 16
	if b == 0 {
		setR0(c, uint32(a))
	} else {
		setR0(c, uint32((a<<b)|(a>>(16-b))))
	}
	return c.advance()
}
func (i Shlr) String() string { return fmt.Sprintf("SHLR %s, %s", i.A, i.B) }

// --- Bitwise group ---

// And implements AND A,B: R0 = A & B.
type And struct{ A, B Operand }

func (i And) exec(c *CPU) Outcome {
	setR0(c, uint32(uint16(i.A.resolve(c)))&uint32(uint16(i.B.resolve(c))))
	return c.advance()
}
func (i And) String() string { return fmt.Sprintf("AND %s, %s", i.A, i.B) }

// Or implements OR A,B: R0 = A | B.
type Or struct{ A, B Operand }

func (i Or) exec(c *CPU) Outcome {
	setR0(c, uint32(uint16(i.A.resolve(c)))|uint32(uint16(i.B.resolve(c))))
	return c.advance()
}
func (i Or) String() string { return fmt.Sprintf("OR %s, %s", i.A, i.B) }

// Xor implements XOR A,B: R0 = A ^ B.
type Xor struct{ A, B Operand }

func (i Xor) exec(c *CPU) Outcome {
	setR0(c, uint32(uint16(i.A.resolve(c)))^uint32(uint16(i.B.resolve(c))))
	return c.advance()
}
func (i Xor) String() string { return fmt.Sprintf("XOR %s, %s", i.A, i.B) }

// Not implements NOT A: R[A] = ~R[A] in place; R0 is not touched.
// A is register-only per spec §6.1.
type Not struct{ A uint16 }

func (i Not) exec(c *CPU) Outcome {
	c.Regs[i.A] = ^c.Regs[i.A]
	return c.advance()
}
func (i Not) String() string { return fmt.Sprintf("NOT %d", i.A) }

// --- Control group ---

// Jmp implements JMP t: PC = t.
type Jmp struct{ Target Operand }

func (i Jmp) exec(c *CPU) Outcome {
	c.PC = uint16(i.Target.resolve(c))
	return running()
}
func (i Jmp) String() string { return fmt.Sprintf("JMP %s", i.Target) }

// Jal implements JAL t: R2 = PC+1; PC = t.
type Jal struct{ Target Operand }

func (i Jal) exec(c *CPU) Outcome {
	c.Regs[RegR2] = c.PC + 1
	c.PC = uint16(i.Target.resolve(c))
	return running()
}
func (i Jal) String() string { return fmt.Sprintf("JAL %s", i.Target) }

// Jz implements JZ t,c: if c==0 PC=t else PC++.
type Jz struct {
	Target Operand
	Cond   Operand
}

func (i Jz) exec(c *CPU) Outcome {
	if uint16(i.Cond.resolve(c)) == 0 {
		c.PC = uint16(i.Target.resolve(c))
		return running()
	}
	return c.advance()
}
func (i Jz) String() string { return fmt.Sprintf("JZ %s, %s", i.Target, i.Cond) }

// Jnz implements JNZ t,c: if c!=0 PC=t else PC++.
type Jnz struct {
	Target Operand
	Cond   Operand
}

func (i Jnz) exec(c *CPU) Outcome {
	if uint16(i.Cond.resolve(c)) != 0 {
		c.PC = uint16(i.Target.resolve(c))
		return running()
	}
	return c.advance()
}
func (i Jnz) String() string { return fmt.Sprintf("JNZ %s, %s", i.Target, i.Cond) }

// Jbt implements JBT t,x,y: if x>y (unsigned) PC=t else PC++.
type Jbt struct {
	Target Operand
	X, Y   Operand
}

func (i Jbt) exec(c *CPU) Outcome {
	if uint16(i.X.resolve(c)) > uint16(i.Y.resolve(c)) {
		c.PC = uint16(i.Target.resolve(c))
		return running()
	}
	return c.advance()
}
func (i Jbt) String() string { return fmt.Sprintf("JBT %s, %s, %s", i.Target, i.X, i.Y) }

// --- System group ---

// Keyin implements KEYIN addr: blocks until the host yields a 6-bit key
// code, then RAM[addr] = code. A cancelled/exhausted key source surfaces
// Halted and leaves RAM unchanged, per spec §5.
type Keyin struct{ Addr Operand }

func (i Keyin) exec(c *CPU) Outcome {
	if c.Keys == nil {
		return faulted(InvalidOperand, c.PC, i.String()+" (no key source attached)")
	}
	code, ok := c.Keys.NextKey()
	if !ok {
		return halted()
	}
	c.RAM[uint16(i.Addr.resolve(c))] = code
	return c.advance()
}
func (i Keyin) String() string { return fmt.Sprintf("KEYIN %s", i.Addr) }

// Halt implements HALT: terminate with Halted.
type Halt struct{}

func (i Halt) exec(c *CPU) Outcome { return halted() }
func (i Halt) String() string      { return "HALT" }
