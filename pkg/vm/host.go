// Package vm is the VM host: the single place that owns a CPU's run
// loop, the cancellable key-source driver, breakpoints, and the
// debugger-facing accessors spec §4.5/§6.5 describe. CPU/GPU state is
// touched only from the goroutine driving StepOne/RunUntilBreak, so no
// locks are required (spec §5) — a display collaborator (pkg/display)
// steps the host and reads the GPU snapshot from the same game loop.
package vm

import (
	"context"

	"mcl/pkg/cpu"
)

// KeySource supplies 6-bit MCL key codes to the host, the same role
// cpu.KeySource plays at the CPU level but cancellable via context —
// a headless stdin reader or a display collaborator's input queue can
// unblock a pending NextKey when the run is cancelled, rather than
// leaving KEYIN stuck forever. ok is false when the source is
// cancelled or exhausted, mirroring cpu.KeySource's contract.
type KeySource interface {
	NextKey(ctx context.Context) (code uint16, ok bool)
}

// Host runs a cpu.CPU, translating a cancellable KeySource into the
// CPU's plain KeySource, tracking breakpoints by source line, and
// signalling Dirty whenever GPU.Dirty is set by a draw instruction so
// a display collaborator knows a new frame is ready to blit.
type Host struct {
	cpu          *cpu.CPU
	sourceLineOf []int
	breakpoints  map[int]bool

	keys KeySource
	ctx  context.Context // valid only during StepOne/RunUntilBreak

	// Dirty receives a value every time a Step executes a draw
	// instruction. It is buffered so a host that outruns its display
	// collaborator drops duplicate signals rather than blocking.
	Dirty chan struct{}
}

// NewHost attaches a host to c. sourceLineOf is asm.Assemble's third
// return value — the source line each Program index was assembled
// from — and is what SetBreakpoint resolves against.
func NewHost(c *cpu.CPU, sourceLineOf []int) *Host {
	h := &Host{
		cpu:          c,
		sourceLineOf: sourceLineOf,
		breakpoints:  make(map[int]bool),
		Dirty:        make(chan struct{}, 1),
	}
	c.Keys = hostKeys{h}
	return h
}

// SetKeySource attaches the cancellable key source KEYIN blocks on.
// A Host with no key source attached halts on KEYIN, since hostKeys
// then reports no key; only a bare cpu.CPU with no Keys faults.
func (h *Host) SetKeySource(k KeySource) { h.keys = k }

// hostKeys adapts Host's cancellable KeySource to cpu.KeySource, the
// interface CPU.Step's KEYIN handler actually calls. The CPU never
// sees a context; Host's current one (set for the duration of whatever
// StepOne/RunUntilBreak call is executing) stands in for it.
type hostKeys struct{ h *Host }

func (k hostKeys) NextKey() (uint16, bool) {
	if k.h.keys == nil {
		return 0, false
	}
	ctx := k.h.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	return k.h.keys.NextKey(ctx)
}

// SetBreakpoint arms a breakpoint at the given source line.
func (h *Host) SetBreakpoint(line int) { h.breakpoints[line] = true }

// ClearBreakpoint disarms a previously set breakpoint.
func (h *Host) ClearBreakpoint(line int) { delete(h.breakpoints, line) }

// lineAt returns the source line of the instruction at pc, or -1 if pc
// is out of range (e.g. the program has already halted).
func (h *Host) lineAt(pc uint16) int {
	if int(pc) < 0 || int(pc) >= len(h.sourceLineOf) {
		return -1
	}
	return h.sourceLineOf[pc]
}

// atBreakpoint reports whether the instruction about to execute sits
// on an armed breakpoint line.
func (h *Host) atBreakpoint() bool {
	line := h.lineAt(h.cpu.PC)
	return line >= 0 && h.breakpoints[line]
}

// StepOne executes exactly one instruction and signals Dirty if that
// instruction was a draw. ctx is consulted
// before stepping; a cancelled context halts without faulting.
func (h *Host) StepOne(ctx context.Context) cpu.Outcome {
	if err := ctx.Err(); err != nil {
		return cpu.Outcome{Status: cpu.Halted}
	}
	h.ctx = ctx
	defer func() { h.ctx = nil }()

	out := h.cpu.Step()
	if h.cpu.GPU.Dirty {
		h.cpu.GPU.Dirty = false
		select {
		case h.Dirty <- struct{}{}:
		default:
		}
	}
	return out
}

// RunUntilBreak steps until the program halts, faults, the context is
// cancelled, or the next instruction to execute sits on an armed
// breakpoint. It always executes at least one instruction, so resuming
// from a line that is itself a breakpoint makes forward progress
// instead of stalling immediately.
func (h *Host) RunUntilBreak(ctx context.Context) cpu.Outcome {
	out := h.StepOne(ctx)
	for out.Status == cpu.Running {
		if err := ctx.Err(); err != nil {
			return cpu.Outcome{Status: cpu.Halted}
		}
		if h.atBreakpoint() {
			return out
		}
		out = h.StepOne(ctx)
	}
	return out
}

// ReadRegister returns register i's current value, for a debugger or
// the CLI's --debug dump. Out-of-range indices return 0.
func (h *Host) ReadRegister(i int) uint16 {
	if i < 0 || i >= cpu.NumRegisters {
		return 0
	}
	return h.cpu.Regs[i]
}

// ReadRAM returns RAM[addr], for the same debugger-facing use.
func (h *Host) ReadRAM(addr uint16) uint16 { return h.cpu.RAM[addr] }

// CPU exposes the underlying CPU for callers that need lower-level
// access (e.g. a display collaborator reading GPU.DisplaySnapshot()).
func (h *Host) CPU() *cpu.CPU { return h.cpu }
