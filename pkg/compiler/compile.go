package compiler

import (
	"fmt"

	"mcl/pkg/asm"
	"mcl/pkg/cpu"
)

// Compile runs the full pipeline: lex, parse, generate assembly, then
// assemble. It returns the generated assembly text alongside the decoded
// program so callers (the --debug CLI flag) can inspect either stage.
func Compile(src string) (assembly string, program []cpu.Instr, err error) {
	tokens, err := Lex(src)
	if err != nil {
		return "", nil, fmt.Errorf("lex error: %w", err)
	}

	prog, err := Parse(tokens, src)
	if err != nil {
		return "", nil, fmt.Errorf("parse error: %w", err)
	}

	syms := NewSymbolTable()
	assembly, err = Generate(prog, syms)
	if err != nil {
		return "", nil, fmt.Errorf("codegen error: %w", err)
	}

	instrs, _, _, err := asm.Assemble(assembly)
	if err != nil {
		return assembly, nil, fmt.Errorf("assembly error: %w", err)
	}

	return assembly, instrs, nil
}
