// Package hexdump formats already-assembled programs and data images into
// line-oriented hex dump files. Every value it prints was computed by the
// assembler.
package hexdump

import (
	"fmt"
	"io"

	"stackvm32/internal/isa"
)

// WriteInstructions writes one line per instruction to w:
// "<addr> - <8-hex-digits> - <mnemonic> [arg]".
func WriteInstructions(w io.Writer, instrs []isa.Instruction) error {
	for addr, instr := range instrs {
		word, err := isa.Encode(instr)
		if err != nil {
			return fmt.Errorf("instruction %d: %w", addr, err)
		}
		if _, err := fmt.Fprintf(w, "%d - %08X - %s\n", addr, word, instr); err != nil {
			return err
		}
	}
	return nil
}

// WriteData writes one line per data word to w: "<addr> - <8-hex-digits>".
func WriteData(w io.Writer, data []int32) error {
	for addr, v := range data {
		if _, err := fmt.Fprintf(w, "%d - %08X\n", addr, uint32(v)); err != nil {
			return err
		}
	}
	return nil
}
