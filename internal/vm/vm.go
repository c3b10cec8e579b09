package vm

import "stackvm32/internal/isa"

// Default capacities for general programs; Machine always uses the
// capacities the caller passes in.
const (
	DefaultStackCapacity     = 256
	DefaultCallStackCapacity = 64
)

// Machine is one fully wired simulator instance: a data path, an I/O
// controller, and a control unit sharing it exclusively. Construct one with
// New per simulation run; it is not safe to reuse across runs.
type Machine struct {
	cu *controlUnit
	dp *dataPath
}

// New builds a Machine ready to run program against data memory, honoring
// the program's interrupt vector and the supplied input schedule.
func New(program isa.Program, data []int32, schedule Schedule, stackCapacity, callStackCapacity int) *Machine {
	mem := make([]int32, len(data))
	copy(mem, data)

	io := newIOController()
	dp := newDataPath(stackCapacity, mem, io)
	cu := newControlUnit(program.Instructions, callStackCapacity, program.HandlerAddr, schedule, dp)
	return &Machine{cu: cu, dp: dp}
}

// Step executes one micro-step, returning true once HALT is reached.
func (m *Machine) Step() (halted bool, err error) {
	return m.cu.Step()
}

// Tick returns the total number of ticks executed so far.
func (m *Machine) Tick() uint64 { return m.cu.tick }

// PC returns the current program counter.
func (m *Machine) PC() uint32 { return m.cu.pc }

// StackSnapshot returns the logical operand stack, bottom to top, including
// the live TOS register, for debug printing. Cell 0 only ever holds the
// value spilled by the first push and is not part of the logical stack.
func (m *Machine) StackSnapshot() []int32 {
	if m.dp.sp < 0 {
		return nil
	}
	out := make([]int32, m.dp.sp+1)
	copy(out, m.dp.stack[1:m.dp.sp+1])
	out[len(out)-1] = m.dp.tos
	return out
}

// Instruction returns the instruction at the current PC, if any.
func (m *Machine) Instruction() (isa.Instruction, bool) {
	if int(m.cu.pc) >= len(m.cu.program) {
		return isa.Instruction{}, false
	}
	return m.cu.program[m.cu.pc], true
}

// PortOutput returns the accumulated byte stream written to port.
func (m *Machine) PortOutput(port int) []byte {
	return m.dp.io.Port(port)
}
