package vm

import "stackvm32/internal/isa"

// procState is the processor's interrupt state: Normal or mid-handler.
// Nested interrupts are disallowed by never vectoring to the handler while in
// Interruption state; a request raised then stays pending until after IRET.
type procState uint8

const (
	Normal procState = iota
	Interruption
)

// controlUnit owns the program, the call stack, and the interrupt flags,
// and holds an exclusive pointer to its data path; it fetches, decodes,
// and microsteps one instruction at a time. Multi-step opcodes carry a
// step index across invocations; interrupt admission runs before fetch.
type controlUnit struct {
	program     []isa.Instruction
	pc          uint32
	callStack   []uint32
	scp         int // -1 means empty
	tick        uint64
	step        int
	ifEnabled   bool
	intr        bool
	state       procState
	retAddr     uint32
	handlerAddr uint32
	schedule    Schedule

	dp *dataPath
}

func newControlUnit(program []isa.Instruction, callStackCapacity int, handlerAddr uint32, schedule Schedule, dp *dataPath) *controlUnit {
	return &controlUnit{
		program:     program,
		callStack:   make([]uint32, callStackCapacity),
		scp:         -1,
		handlerAddr: handlerAddr,
		schedule:    schedule,
		dp:          dp,
	}
}

// latchSCPNext implements SCP_NEXT: push PC+1.
func (cu *controlUnit) latchSCPNext() error {
	if cu.scp+1 >= len(cu.callStack) {
		return errCallStackOverflow
	}
	cu.scp++
	cu.callStack[cu.scp] = cu.pc + 1
	return nil
}

// latchSCPPrev implements SCP_PREV: pop and clear.
func (cu *controlUnit) latchSCPPrev() error {
	if cu.scp < 0 {
		return errCallStackUnderflow
	}
	cu.callStack[cu.scp] = 0
	cu.scp--
	return nil
}

// checkInterruptRequest implements the admission check at the start of a
// tick: on a schedule hit while interrupts are enabled, push the scheduled
// byte into its input port and assert INTR. The request line stays asserted
// until the control unit vectors; an event arriving mid-handler is serviced
// right after IRET rather than dropped.
func (cu *controlUnit) checkInterruptRequest() {
	event, ok := cu.schedule[cu.tick]
	if !ok || !cu.ifEnabled {
		return
	}
	cu.dp.io.PushSchedule(event.Port, event.Value)
	cu.intr = true
}

// Step executes one micro-step and advances the tick counter by exactly
// one, whether that step admits an interrupt, runs a regular instruction,
// or the program halts.
func (cu *controlUnit) Step() (halted bool, err error) {
	defer func() { cu.tick++ }()

	cu.checkInterruptRequest()
	if cu.intr && cu.step == 0 && cu.state == Normal {
		cu.retAddr = cu.pc
		cu.pc = cu.handlerAddr
		cu.state = Interruption
		cu.intr = false
		cu.step = 0
		return false, nil
	}

	if cu.pc >= uint32(len(cu.program)) {
		return false, errPCOutOfRange
	}
	instr := cu.program[cu.pc]

	switch instr.Op {
	case isa.HALT:
		return true, nil

	case isa.IRET:
		cu.pc = cu.retAddr
		cu.state = Normal
		cu.step = 0

	case isa.EINT:
		cu.ifEnabled = true
		cu.pc++
		cu.step = 0

	case isa.DINT:
		cu.ifEnabled = false
		cu.pc++
		cu.step = 0

	case isa.NOP:
		cu.pc++
		cu.step = 0

	case isa.LIT:
		cu.dp.cuArg = instr.Arg
		if err := cu.dp.latchSPNext(); err != nil {
			return false, err
		}
		if err := cu.dp.writeStack(); err != nil {
			return false, err
		}
		cu.dp.latchTOSCUArg()
		cu.pc++
		cu.step = 0

	case isa.IN:
		cu.dp.cuArg = instr.Arg
		if cu.dp.cuArg != 0 {
			return false, errPortViolation
		}
		if err := cu.dp.latchSPNext(); err != nil {
			return false, err
		}
		if err := cu.dp.writeStack(); err != nil {
			return false, err
		}
		if err := cu.dp.latchTOSIn(); err != nil {
			return false, err
		}
		cu.pc++
		cu.step = 0

	case isa.OUT:
		cu.dp.cuArg = instr.Arg
		if cu.dp.cuArg < 1 || cu.dp.cuArg > 7 {
			return false, errPortViolation
		}
		cu.dp.writePort()
		if err := cu.dp.latchTOSStack(); err != nil {
			return false, err
		}
		if err := cu.dp.latchSPPrev(); err != nil {
			return false, err
		}
		cu.pc++
		cu.step = 0

	case isa.DUP:
		if err := cu.dp.latchSPNext(); err != nil {
			return false, err
		}
		if err := cu.dp.writeStack(); err != nil {
			return false, err
		}
		cu.pc++
		cu.step = 0

	case isa.DROP:
		if err := cu.dp.latchTOSStack(); err != nil {
			return false, err
		}
		if err := cu.dp.latchSPPrev(); err != nil {
			return false, err
		}
		cu.pc++
		cu.step = 0

	case isa.SWAP:
		if err := cu.dp.swap(); err != nil {
			return false, err
		}
		cu.pc++
		cu.step = 0

	case isa.JUMP:
		target := cu.dp.tos
		if target < 0 || target >= int32(len(cu.program)) {
			return false, errPCOutOfRange
		}
		cu.pc = uint32(target)
		if err := cu.dp.latchTOSStack(); err != nil {
			return false, err
		}
		if err := cu.dp.latchSPPrev(); err != nil {
			return false, err
		}
		cu.step = 0

	case isa.CALL:
		if err := cu.latchSCPNext(); err != nil {
			return false, err
		}
		target := cu.dp.tos
		if target < 0 || target >= int32(len(cu.program)) {
			return false, errPCOutOfRange
		}
		cu.pc = uint32(target)
		if err := cu.dp.latchTOSStack(); err != nil {
			return false, err
		}
		if err := cu.dp.latchSPPrev(); err != nil {
			return false, err
		}
		cu.step = 0

	case isa.RET:
		if cu.scp < 0 {
			return false, errCallStackUnderflow
		}
		cu.pc = cu.callStack[cu.scp]
		if err := cu.latchSCPPrev(); err != nil {
			return false, err
		}
		cu.step = 0

	case isa.LOAD:
		switch cu.step {
		case 0:
			cu.dp.latchAddr()
			cu.step = 1
		case 1:
			if err := cu.dp.latchTOSMem(); err != nil {
				return false, err
			}
			cu.pc++
			cu.step = 0
		}

	case isa.STORE:
		switch cu.step {
		case 0:
			cu.dp.latchAddr()
			if err := cu.dp.latchTOSStack(); err != nil {
				return false, err
			}
			if err := cu.dp.latchSPPrev(); err != nil {
				return false, err
			}
			cu.step = 1
		case 1:
			if err := cu.dp.storeMem(); err != nil {
				return false, err
			}
			if err := cu.dp.latchTOSStack(); err != nil {
				return false, err
			}
			if err := cu.dp.latchSPPrev(); err != nil {
				return false, err
			}
			cu.pc++
			cu.step = 0
		}

	case isa.JZ:
		if err := cu.stepConditionalJump(&cu.dp.flags.Z, true); err != nil {
			return false, err
		}

	case isa.JN:
		if err := cu.stepConditionalJump(&cu.dp.flags.N, false); err != nil {
			return false, err
		}

	case isa.ADD, isa.SUB, isa.AND, isa.OR, isa.XOR, isa.MUL, isa.MULH, isa.DIV:
		if err := cu.dp.aluBinary(instr.Op); err != nil {
			return false, err
		}
		if err := cu.dp.latchSPPrev(); err != nil {
			return false, err
		}
		cu.dp.latchTOSALU()
		cu.pc++
		cu.step = 0

	case isa.INC, isa.DEC, isa.NOT:
		if err := cu.dp.aluUnary(instr.Op); err != nil {
			return false, err
		}
		cu.dp.latchTOSALU()
		cu.pc++
		cu.step = 0
	}

	return false, nil
}

// stepConditionalJump implements the shared two-step JZ/JN shape: step 0
// latches the named flag from TOS and pops the condition; step 1 branches
// on that flag and pops the jump target.
func (cu *controlUnit) stepConditionalJump(flag *bool, zero bool) error {
	switch cu.step {
	case 0:
		if zero {
			cu.dp.latchZ()
		} else {
			cu.dp.latchN()
		}
		if err := cu.dp.latchTOSStack(); err != nil {
			return err
		}
		if err := cu.dp.latchSPPrev(); err != nil {
			return err
		}
		cu.step = 1
	case 1:
		if *flag {
			target := cu.dp.tos
			if target < 0 || target >= int32(len(cu.program)) {
				return errPCOutOfRange
			}
			cu.pc = uint32(target)
		} else {
			cu.pc++
		}
		if err := cu.dp.latchTOSStack(); err != nil {
			return err
		}
		if err := cu.dp.latchSPPrev(); err != nil {
			return err
		}
		cu.step = 0
	}
	return nil
}
