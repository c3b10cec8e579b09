package isa

import (
	"encoding/binary"
	"fmt"
)

// Program is the fully assembled code image: the decoded instruction
// stream plus whether interrupts are used and, if so, the handler's
// instruction address.
type Program struct {
	Instructions []Instruction
	IntrEnabled  bool
	HandlerAddr  uint32
}

// EncodeProgram serializes a Program into the on-disk code format: a
// leading 32-bit big-endian interrupt-vector word (the handler's
// instruction index, or NoHandler), followed by one 32-bit big-endian word
// per instruction.
func EncodeProgram(p Program) ([]byte, error) {
	out := make([]byte, 4+4*len(p.Instructions))
	vector := NoHandler
	if p.IntrEnabled {
		vector = p.HandlerAddr
	}
	binary.BigEndian.PutUint32(out[0:4], vector)
	for i, instr := range p.Instructions {
		word, err := Encode(instr)
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w", i, err)
		}
		binary.BigEndian.PutUint32(out[4+4*i:8+4*i], word)
	}
	return out, nil
}

// DecodeProgram parses the on-disk code format back into a Program.
func DecodeProgram(raw []byte) (Program, error) {
	if len(raw) < 4 {
		return Program{}, fmt.Errorf("code image too short: %d bytes", len(raw))
	}
	if (len(raw)-4)%4 != 0 {
		return Program{}, fmt.Errorf("code image length %d is not a whole number of words after the vector", len(raw))
	}
	vector := binary.BigEndian.Uint32(raw[0:4])
	p := Program{}
	if vector != NoHandler {
		p.IntrEnabled = true
		p.HandlerAddr = vector
	}
	n := (len(raw) - 4) / 4
	p.Instructions = make([]Instruction, n)
	for i := 0; i < n; i++ {
		word := binary.BigEndian.Uint32(raw[4+4*i : 8+4*i])
		instr, err := Decode(word)
		if err != nil {
			return Program{}, fmt.Errorf("instruction %d: %w", i, err)
		}
		p.Instructions[i] = instr
	}
	return p, nil
}

// EncodeData serializes a flat signed 32-bit data image, one big-endian
// word per value.
func EncodeData(data []int32) []byte {
	out := make([]byte, 4*len(data))
	for i, v := range data {
		binary.BigEndian.PutUint32(out[4*i:4*i+4], uint32(v))
	}
	return out
}

// DecodeData parses the on-disk data format back into a slice of signed
// 32-bit words.
func DecodeData(raw []byte) ([]int32, error) {
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("data image length %d is not a multiple of 4", len(raw))
	}
	data := make([]int32, len(raw)/4)
	for i := range data {
		data[i] = int32(binary.BigEndian.Uint32(raw[4*i : 4*i+4]))
	}
	return data, nil
}
