package vm

import (
	"context"
	"testing"

	"mcl/pkg/asm"
	"mcl/pkg/cpu"
)

func mustAssemble(t *testing.T, src string) (*cpu.CPU, []int) {
	t.Helper()
	program, labels, sourceLineOf, err := asm.Assemble(src)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	c := cpu.NewCPU()
	c.LoadProgram(program, labels)
	return c, sourceLineOf
}

func TestHostStepOneAdvancesAndHalts(t *testing.T) {
	c, lines := mustAssemble(t, "MVR i:5, 0\nHALT\n")
	h := NewHost(c, lines)
	ctx := context.Background()

	out := h.StepOne(ctx)
	if out.Status != cpu.Running {
		t.Fatalf("expected Running after first instruction, got %v", out.Status)
	}
	if got := h.ReadRegister(0); got != 5 {
		t.Fatalf("R0 = %d, want 5", got)
	}

	out = h.StepOne(ctx)
	if out.Status != cpu.Halted {
		t.Fatalf("expected Halted after HALT, got %v", out.Status)
	}
}

func TestHostRunUntilBreakStopsAtBreakpoint(t *testing.T) {
	c, lines := mustAssemble(t, "MVR i:1, 0\nMVR i:2, 0\nMVR i:3, 0\nHALT\n")
	h := NewHost(c, lines)
	h.SetBreakpoint(3) // the third MVR, 1-indexed source line

	out := h.RunUntilBreak(context.Background())
	if out.Status != cpu.Running {
		t.Fatalf("expected to stop Running at the breakpoint, got %v", out.Status)
	}
	if got := h.ReadRegister(0); got != 2 {
		t.Fatalf("R0 = %d, want 2 (stopped before the third MVR executed)", got)
	}

	out = h.RunUntilBreak(context.Background())
	if out.Status != cpu.Halted {
		t.Fatalf("expected Halted after resuming past the breakpoint, got %v", out.Status)
	}
	if got := h.ReadRegister(0); got != 3 {
		t.Fatalf("R0 = %d, want 3", got)
	}
}

func TestHostRunUntilBreakRespectsCancellation(t *testing.T) {
	// An infinite loop: JMP 0. Without cancellation this never halts.
	c, lines := mustAssemble(t, "loop: JMP loop\n")
	h := NewHost(c, lines)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := h.RunUntilBreak(ctx)
	if out.Status != cpu.Halted {
		t.Fatalf("expected a cancelled context to stop the run, got %v", out.Status)
	}
}

func TestHostKeyinReadsFromKeySource(t *testing.T) {
	c, lines := mustAssemble(t, "KEYIN i:0x2000\nHALT\n")
	h := NewHost(c, lines)
	keys := NewQueueKeySource(1)
	h.SetKeySource(keys)
	keys.Push(7)

	out := h.StepOne(context.Background())
	if out.Status != cpu.Running {
		t.Fatalf("expected Running after KEYIN, got %v", out.Status)
	}
	if got := h.ReadRAM(0x2000); got != 7 {
		t.Fatalf("RAM[0x2000] = %d, want 7", got)
	}
}

func TestHostKeyinHaltsOnCancelledWait(t *testing.T) {
	c, lines := mustAssemble(t, "KEYIN i:0x2000\nHALT\n")
	h := NewHost(c, lines)
	h.SetKeySource(NewQueueKeySource(1)) // empty, and never pushed to

	ctx, cancel := context.WithCancel(context.Background())
	go cancel() // unblock the pending KEYIN from another goroutine

	out := h.StepOne(ctx)
	if out.Status != cpu.Halted {
		t.Fatalf("expected Halted when KEYIN's wait is cancelled, got %v", out.Status)
	}
}

func TestHostGPUDirtySignalsOnDraw(t *testing.T) {
	c, lines := mustAssemble(t, "DRGRD i:0, i:0, i:4, i:4\nHALT\n")
	h := NewHost(c, lines)

	h.StepOne(context.Background())
	select {
	case <-h.Dirty:
	default:
		t.Fatal("expected a Dirty signal after a draw instruction")
	}
}
