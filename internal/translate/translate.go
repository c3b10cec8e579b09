// Package translate chains the lexer, Forth lowering, and assembler stages
// into the single entry point the translator CLI calls, and writes the
// four output artifacts: both binary images and their hex dumps.
package translate

import (
	"bytes"
	"fmt"
	"os"

	"stackvm32/internal/assembler"
	"stackvm32/internal/forth"
	"stackvm32/internal/hexdump"
	"stackvm32/internal/isa"
	"stackvm32/internal/lexer"
)

// Translate runs lex -> lower -> assemble over source, returning the
// lowered assembly tokens (for inspection) alongside the assembled
// program and data image.
func Translate(source string) (asm []string, prog isa.Program, data []int32, err error) {
	tokens, strs, err := lexer.Lex(source)
	if err != nil {
		return nil, isa.Program{}, nil, fmt.Errorf("lex: %w", err)
	}

	asm, err = forth.Lower(tokens, strs)
	if err != nil {
		return nil, isa.Program{}, nil, fmt.Errorf("lower: %w", err)
	}

	prog, data, err = assembler.Assemble(asm, strs)
	if err != nil {
		return asm, isa.Program{}, nil, fmt.Errorf("assemble: %w", err)
	}

	return asm, prog, data, nil
}

// WriteArtifacts writes the four output files:
// <codePath>, <dataPath>, <codePath>.hex, <dataPath>.hex.
func WriteArtifacts(prog isa.Program, data []int32, codePath, dataPath string) error {
	codeBytes, err := isa.EncodeProgram(prog)
	if err != nil {
		return fmt.Errorf("encode code image: %w", err)
	}
	if err := os.WriteFile(codePath, codeBytes, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", codePath, err)
	}

	dataBytes := isa.EncodeData(data)
	if err := os.WriteFile(dataPath, dataBytes, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", dataPath, err)
	}

	var codeHex bytes.Buffer
	if err := hexdump.WriteInstructions(&codeHex, prog.Instructions); err != nil {
		return fmt.Errorf("format code hex dump: %w", err)
	}
	if err := os.WriteFile(codePath+".hex", codeHex.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s.hex: %w", codePath, err)
	}

	var dataHex bytes.Buffer
	if err := hexdump.WriteData(&dataHex, data); err != nil {
		return fmt.Errorf("format data hex dump: %w", err)
	}
	if err := os.WriteFile(dataPath+".hex", dataHex.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s.hex: %w", dataPath, err)
	}

	return nil
}

// ReadAndDump re-decodes the binaries just written and renders them back
// as hex dump text, the translator's --dump round-trip sanity display.
func ReadAndDump(codePath, dataPath string) (string, error) {
	codeBytes, err := os.ReadFile(codePath)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", codePath, err)
	}
	prog, err := isa.DecodeProgram(codeBytes)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", codePath, err)
	}

	dataBytes, err := os.ReadFile(dataPath)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", dataPath, err)
	}
	data, err := isa.DecodeData(dataBytes)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", dataPath, err)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "interrupts enabled: %v, handler: %d\n", prog.IntrEnabled, prog.HandlerAddr)
	fmt.Fprintln(&buf, "-- code --")
	if err := hexdump.WriteInstructions(&buf, prog.Instructions); err != nil {
		return "", err
	}
	fmt.Fprintln(&buf, "-- data --")
	if err := hexdump.WriteData(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
