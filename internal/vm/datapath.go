package vm

import "stackvm32/internal/isa"

// flags holds the three condition flags the ALU and TOS latches set.
type flags struct {
	Z, N, C bool
}

// dataPath holds the operand stack, the TOS cache register, the address
// and ALU result registers, the condition flags, the CU argument latch,
// data memory, and the I/O controller. Every named control signal is a
// method here, so the control unit's microcode reads as plain call
// sequences.
type dataPath struct {
	stack []int32
	sp    int // -1 means empty

	tos       int32
	addr      int32
	aluResult int32
	cuArg     int32
	flags     flags

	mem []int32
	io  *ioController
}

func newDataPath(stackCapacity int, mem []int32, io *ioController) *dataPath {
	return &dataPath{
		stack: make([]int32, stackCapacity),
		sp:    -1,
		mem:   mem,
		io:    io,
	}
}

// latchSPNext implements SP_NEXT: pre-increment, failing on overflow.
func (dp *dataPath) latchSPNext() error {
	if dp.sp+1 >= len(dp.stack) {
		return errStackOverflow
	}
	dp.sp++
	return nil
}

// latchSPPrev implements SP_PREV: clear the current cell, post-decrement,
// failing on underflow.
func (dp *dataPath) latchSPPrev() error {
	if dp.sp < 0 {
		return errStackUnderflow
	}
	dp.stack[dp.sp] = 0
	dp.sp--
	return nil
}

// writeStack writes TOS into stack[SP].
func (dp *dataPath) writeStack() error {
	if dp.sp < 0 || dp.sp >= len(dp.stack) {
		return errStackOverflow
	}
	dp.stack[dp.sp] = dp.tos
	return nil
}

// latchTOSStack implements TOS_STACK: read the top of stack at SP.
func (dp *dataPath) latchTOSStack() error {
	if dp.sp < 0 || dp.sp >= len(dp.stack) {
		return errStackUnderflow
	}
	dp.tos = dp.stack[dp.sp]
	return nil
}

// latchTOSCUArg implements TOS_CU_ARG.
func (dp *dataPath) latchTOSCUArg() {
	dp.tos = dp.cuArg
}

// latchTOSALU implements TOS_ALU.
func (dp *dataPath) latchTOSALU() {
	dp.tos = dp.aluResult
}

// latchTOSMem implements TOS_MEM: read memory at the address register.
func (dp *dataPath) latchTOSMem() error {
	if dp.addr < 0 || int(dp.addr) >= len(dp.mem) {
		return errMemOutOfRange
	}
	dp.tos = dp.mem[dp.addr]
	return nil
}

// latchTOSIn implements TOS_IN: read one byte from the port named by the CU
// argument latch.
func (dp *dataPath) latchTOSIn() error {
	b, err := dp.io.Input(int(dp.cuArg))
	if err != nil {
		return err
	}
	dp.tos = int32(b)
	return nil
}

// latchAddr copies TOS into the address register.
func (dp *dataPath) latchAddr() {
	dp.addr = dp.tos
}

// storeMem writes TOS into memory at the address register.
func (dp *dataPath) storeMem() error {
	if dp.addr < 0 || int(dp.addr) >= len(dp.mem) {
		return errMemOutOfRange
	}
	dp.mem[dp.addr] = dp.tos
	return nil
}

// writePort pushes chr(TOS mod 256) into the output port named by the CU
// argument latch. Port range [1,7] is validated by the caller.
func (dp *dataPath) writePort() {
	dp.io.Output(int(dp.cuArg), byte(uint32(dp.tos)&0xFF))
}

// latchZ and latchN implement the Z and N flag latches.
func (dp *dataPath) latchZ() { dp.flags.Z = dp.tos == 0 }
func (dp *dataPath) latchN() { dp.flags.N = dp.tos < 0 }

// swap exchanges TOS and stack[SP].
func (dp *dataPath) swap() error {
	if dp.sp < 0 || dp.sp >= len(dp.stack) {
		return errStackUnderflow
	}
	dp.tos, dp.stack[dp.sp] = dp.stack[dp.sp], dp.tos
	return nil
}

// aluBinary computes a two-operand ALU result from TOS (a) and stack[SP]
// (b), leaving the result in aluResult. ADD carries into the C flag and
// keeps the low 32 bits; MUL keeps the low 32 bits of the product and MULH
// the high 32 of the unsigned widening product; the rest wrap natively at
// 32 bits.
func (dp *dataPath) aluBinary(op isa.Opcode) error {
	if dp.sp < 1 {
		return errStackUnderflow
	}
	a, b := dp.tos, dp.stack[dp.sp]
	switch op {
	case isa.ADD:
		sum := uint64(uint32(a)) + uint64(uint32(b))
		dp.flags.C = sum > 0xFFFFFFFF
		dp.aluResult = int32(uint32(sum))
	case isa.SUB:
		dp.aluResult = a - b
	case isa.AND:
		dp.aluResult = a & b
	case isa.OR:
		dp.aluResult = a | b
	case isa.XOR:
		dp.aluResult = a ^ b
	case isa.MUL:
		dp.aluResult = int32(uint32(int64(a) * int64(b)))
	case isa.MULH:
		wide := uint64(uint32(a)) * uint64(uint32(b))
		dp.aluResult = int32(uint32(wide >> 32))
	case isa.DIV:
		if b == 0 {
			return errDivideByZero
		}
		dp.aluResult = floorDiv(a, b)
	}
	return nil
}

// aluUnary computes a single-operand ALU result from TOS.
func (dp *dataPath) aluUnary(op isa.Opcode) error {
	if dp.sp < 0 {
		return errStackUnderflow
	}
	switch op {
	case isa.INC:
		dp.aluResult = dp.tos + 1
	case isa.DEC:
		dp.aluResult = dp.tos - 1
	case isa.NOT:
		dp.aluResult = ^dp.tos
	}
	return nil
}

func floorDiv(a, b int32) int32 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
