// Command mcl is the MCL toolchain CLI: compile MCL source to
// assembly, or assemble-and-run a program on the VM host, per spec
// §6.5. Flag handling follows the teacher's root main.go idiom (the
// standard flag package, fmt.Fprintf(os.Stderr, ...) + os.Exit on
// error) with subcommands instead of a flat flag set.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"mcl/pkg/asm"
	"mcl/pkg/compiler"
	"mcl/pkg/cpu"
	"mcl/pkg/display"
	"mcl/pkg/vm"
)

func flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.Usage = usage
	return fs
}

// Exit codes per spec §6.5.
const (
	exitOK           = 0
	exitCompileError = 1
	exitLoadError    = 2
	exitRuntimeFault = 3
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(exitCompileError)
	}

	var err error
	switch os.Args[1] {
	case "compile":
		err = runCompile(os.Args[2:])
	case "run":
		err = runRun(os.Args[2:])
	default:
		usage()
		os.Exit(exitCompileError)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage:")
	fmt.Fprintln(os.Stderr, "  mcl compile <in.mcl> [-o out.asm] [--debug] [--validate-only]")
	fmt.Fprintln(os.Stderr, "  mcl run <in.asm> [--headless] [--scale N] [--debug]")
}

// exitedErr carries the exit code a failure should produce, so main's
// single error-handling path can report a fault distinctly from a
// compile or load error.
type exitedErr struct {
	code int
	err  error
}

func (e *exitedErr) Error() string { return e.err.Error() }

func exitCodeFor(err error) int {
	if e, ok := err.(*exitedErr); ok {
		return e.code
	}
	return exitCompileError
}

func fail(code int, format string, args ...any) error {
	return &exitedErr{code: code, err: fmt.Errorf(format, args...)}
}

func runCompile(args []string) error {
	fs := flagSet("compile")
	out := fs.String("o", "", "output assembly file path (default: stdout)")
	debug := fs.Bool("debug", false, "print the generated instruction count to stderr")
	validateOnly := fs.Bool("validate-only", false, "only check for compile errors, write nothing")
	if err := fs.Parse(args); err != nil {
		return fail(exitCompileError, "%v", err)
	}
	if fs.NArg() < 1 {
		usage()
		return fail(exitCompileError, "compile: missing input file")
	}
	inPath := fs.Arg(0)

	source, err := os.ReadFile(inPath)
	if err != nil {
		return fail(exitCompileError, "failed to read %q: %v", inPath, err)
	}

	assembly, program, err := compiler.Compile(string(source))
	if err != nil {
		return fail(exitCompileError, "%v", err)
	}
	if *debug {
		fmt.Fprintf(os.Stderr, "generated %d instructions\n", len(program))
	}
	if *validateOnly {
		return nil
	}

	outPath := *out
	if outPath == "" {
		fmt.Print(assembly)
		return nil
	}
	if err := os.WriteFile(outPath, []byte(assembly), 0644); err != nil {
		return fail(exitCompileError, "failed to write %q: %v", outPath, err)
	}
	fmt.Printf("compiled %s -> %s\n", inPath, outPath)
	return nil
}

func runRun(args []string) error {
	fs := flagSet("run")
	headless := fs.Bool("headless", false, "run without opening a display window, reading KEYIN from stdin")
	scale := fs.Int("scale", 1, "display window scale factor")
	debug := fs.Bool("debug", false, "dump registers and the fault (if any) after the run ends")
	if err := fs.Parse(args); err != nil {
		return fail(exitCompileError, "%v", err)
	}
	if fs.NArg() < 1 {
		usage()
		return fail(exitCompileError, "run: missing input file")
	}
	inPath := fs.Arg(0)

	source, err := os.ReadFile(inPath)
	if err != nil {
		return fail(exitLoadError, "failed to read %q: %v", inPath, err)
	}

	var program []cpu.Instr
	var labels map[string]uint16
	var sourceLineOf []int
	if strings.HasSuffix(inPath, ".mcl") {
		assembly, _, cerr := compiler.Compile(string(source))
		if cerr != nil {
			return fail(exitCompileError, "%v", cerr)
		}
		// Re-assemble the generated text rather than reusing Compile's own
		// decoded instructions: only asm.Assemble's third return value
		// (sourceLineOf) carries what SetBreakpoint/RunUntilBreak need,
		// and compiler.Compile doesn't surface it.
		program, labels, sourceLineOf, err = asm.Assemble(assembly)
	} else {
		program, labels, sourceLineOf, err = asm.Assemble(string(source))
	}
	if err != nil {
		return fail(exitLoadError, "%v", err)
	}

	c := cpu.NewCPU()
	c.LoadProgram(program, labels)
	host := vm.NewHost(c, sourceLineOf)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var out cpu.Outcome
	if *headless {
		host.SetKeySource(vm.NewStdinKeySource(os.Stdin))
		out = host.RunUntilBreak(ctx)
	} else {
		if err := display.Run(ctx, host, filepath.Base(inPath), *scale); err != nil {
			return fail(exitRuntimeFault, "display error: %v", err)
		}
		out = cpu.Outcome{Status: cpu.Halted}
	}

	if *debug {
		dumpRegisters(host)
	}

	if out.Status == cpu.Faulted {
		return fail(exitRuntimeFault, "%s", out.Fault.Error())
	}
	return nil
}

func dumpRegisters(h *vm.Host) {
	for i := 0; i < cpu.NumRegisters; i++ {
		fmt.Fprintf(os.Stderr, "R%-2d = 0x%04X\n", i, h.ReadRegister(i))
	}
}
