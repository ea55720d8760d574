package main

import (
	"errors"
	"testing"
)

func TestExitCodeForWrapsExitedErr(t *testing.T) {
	err := fail(exitRuntimeFault, "boom")
	if got := exitCodeFor(err); got != exitRuntimeFault {
		t.Errorf("exitCodeFor(fail(3,...)) = %d, want %d", got, exitRuntimeFault)
	}
}

func TestExitCodeForDefaultsToCompileError(t *testing.T) {
	if got := exitCodeFor(errors.New("plain error")); got != exitCompileError {
		t.Errorf("exitCodeFor(plain error) = %d, want %d", got, exitCompileError)
	}
}

func TestRunCompileRejectsMissingFile(t *testing.T) {
	err := runCompile([]string{"/nonexistent/path/does/not/exist.mcl"})
	if err == nil {
		t.Fatal("expected an error for a missing input file")
	}
	if exitCodeFor(err) != exitCompileError {
		t.Errorf("exit code = %d, want %d", exitCodeFor(err), exitCompileError)
	}
}

func TestRunRunRejectsMissingFile(t *testing.T) {
	err := runRun([]string{"/nonexistent/path/does/not/exist.asm"})
	if err == nil {
		t.Fatal("expected an error for a missing input file")
	}
	if exitCodeFor(err) != exitLoadError {
		t.Errorf("exit code = %d, want %d", exitCodeFor(err), exitLoadError)
	}
}
