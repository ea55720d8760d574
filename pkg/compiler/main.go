// Package compiler provides a lexer, parser, and code generator for
// MCL, a small C-like language, targeting the MCL 16-bit assembly
// language implemented by pkg/asm and pkg/cpu.
//
// Pipeline: MCL source → Lex → Parse → Generate → assembly text → Assemble
package compiler
