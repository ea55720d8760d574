// Package cpu implements the MCL CPU core and GPU unit: the register
// file, RAM, the tagged-variant instruction set, and the fetch/execute
// loop that steps one instruction per tick.
package cpu

import "fmt"

// Special register indices with hardware-honored conventions. R0 and R1
// are scratch output registers for arithmetic/shift/bitwise ops; R2 is
// the link register written by JAL; R3/R4 are software-convention stack
// and frame pointers with no hardware enforcement.
const (
	RegR0 = 0
	RegR1 = 1
	RegR2 = 2
	RegR3 = 3
	RegR4 = 4

	NumRegisters = 32
	RAMSize      = 1 << 16
)

// FaultKind names why the CPU halted abnormally.
type FaultKind int

const (
	DivByZero FaultKind = iota
	InvalidOperand
	OutOfRange
	BadPC
)

func (k FaultKind) String() string {
	switch k {
	case DivByZero:
		return "DivByZero"
	case InvalidOperand:
		return "InvalidOperand"
	case OutOfRange:
		return "OutOfRange"
	case BadPC:
		return "BadPC"
	default:
		return "UnknownFault"
	}
}

// Fault carries the information spec §7 requires every fault report to
// include: the PC at fault, the offending instruction's text, and a
// stable fault-kind code.
type Fault struct {
	Kind        FaultKind
	PC          uint16
	Instruction string
}

func (f Fault) Error() string {
	return fmt.Sprintf("%s at PC=0x%04X: %s", f.Kind, f.PC, f.Instruction)
}

// Status is the sum-type-like result of one Step call, replacing the
// exception flow of the reference implementation per spec §9.
type Status int

const (
	Running Status = iota
	Halted
	Faulted
)

// Outcome is returned by Step and by the VM host's run loop.
type Outcome struct {
	Status Status
	Fault  Fault // valid only when Status == Faulted
}

func running() Outcome { return Outcome{Status: Running} }
func halted() Outcome  { return Outcome{Status: Halted} }
func faulted(kind FaultKind, pc uint16, instr string) Outcome {
	return Outcome{Status: Faulted, Fault: Fault{Kind: kind, PC: pc, Instruction: instr}}
}

// KeySource supplies 6-bit key codes to KEYIN. NextKey blocks until a
// code is available or the source is cancelled/exhausted, in which case
// ok is false and the CPU surfaces Halted rather than touching RAM.
type KeySource interface {
	NextKey() (code uint16, ok bool)
}

// CPU is the MCL register machine: 32 general registers, a flat word-
// addressable RAM, a decoded instruction stream, and an attached GPU
// unit. PC indexes Program directly (see DESIGN.md decision 5) rather
// than a byte-addressable memory image.
type CPU struct {
	Regs [NumRegisters]uint16
	RAM  [RAMSize]uint16
	PC   uint16

	Program []Instr
	Labels  map[string]uint16

	GPU *GPU

	Keys KeySource

	halted bool
}

// NewCPU returns a CPU with zeroed registers/RAM and an attached GPU,
// ready to receive a loaded program via LoadProgram.
func NewCPU() *CPU {
	return &CPU{GPU: NewGPU()}
}

// LoadProgram installs the loader's output (spec §4.3's contract) and
// resets runtime state, mirroring "runtime state is created at VM start"
// in spec §3.
func (c *CPU) LoadProgram(program []Instr, labels map[string]uint16) {
	c.Program = program
	c.Labels = labels
	c.Regs = [NumRegisters]uint16{}
	c.RAM = [RAMSize]uint16{}
	c.PC = 0
	c.halted = false
	c.GPU = NewGPU()
}

// Halted reports whether the CPU has already stopped.
func (c *CPU) Halted() bool { return c.halted }

// Step executes exactly one instruction and returns its Outcome. Once
// halted or faulted, Step is a no-op returning Halted again.
func (c *CPU) Step() Outcome {
	if c.halted {
		return halted()
	}
	if int(c.PC) >= len(c.Program) {
		c.halted = true
		return faulted(BadPC, c.PC, "program counter past end of program")
	}

	instr := c.Program[c.PC]
	out := instr.exec(c)
	if out.Status != Running {
		c.halted = true
	}
	return out
}

// Run steps the CPU until it halts or faults, without any host-imposed
// rate limiting. The VM host (pkg/vm) layers tick scheduling and
// cancellation on top of Step; Run is a convenience for headless/test
// use where no pacing is required.
func (c *CPU) Run() Outcome {
	for {
		out := c.Step()
		if out.Status != Running {
			return out
		}
	}
}
