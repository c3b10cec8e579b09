package vm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"stackvm32/internal/isa"
)

func runToHalt(t *testing.T, m *Machine) {
	t.Helper()
	for tick := 0; tick < 10_000; tick++ {
		halted, err := m.Step()
		require.NoError(t, err)
		if halted {
			return
		}
	}
	t.Fatal("program did not halt")
}

func newMachine(instrs []isa.Instruction, data []int32, schedule Schedule) *Machine {
	prog := isa.Program{Instructions: instrs}
	return New(prog, data, schedule, DefaultStackCapacity, DefaultCallStackCapacity)
}

func TestTickIncrementsByExactlyOnePerStep(t *testing.T) {
	m := newMachine([]isa.Instruction{
		{Op: isa.NOP}, {Op: isa.NOP}, {Op: isa.HALT},
	}, nil, nil)
	for i := uint64(0); i < 3; i++ {
		require.Equal(t, i, m.Tick())
		_, err := m.Step()
		require.NoError(t, err)
		require.Equal(t, i+1, m.Tick())
	}
}

func TestStackDisciplineLitDupDropSwap(t *testing.T) {
	m := newMachine([]isa.Instruction{
		{Op: isa.LIT, Arg: 5},
		{Op: isa.DUP},
		{Op: isa.DROP},
		{Op: isa.LIT, Arg: 3},
		{Op: isa.SWAP},
		{Op: isa.HALT},
	}, nil, nil)
	runToHalt(t, m)
	require.Equal(t, []int32{3, 5}, m.StackSnapshot())
}

func TestALUBinaryOps(t *testing.T) {
	cases := []struct {
		name string
		op   isa.Opcode
		x, y int32 // pushed in this order; TOS is y
		want int32
	}{
		{"add", isa.ADD, 3, 4, 7},
		{"sub is tos minus next", isa.SUB, 7, 5, -2},
		{"and", isa.AND, 0b1100, 0b1010, 0b1000},
		{"or", isa.OR, 0b1100, 0b1010, 0b1110},
		{"xor", isa.XOR, 0b1100, 0b1010, 0b0110},
		{"mul", isa.MUL, 6, 7, 42},
		{"div floors toward negative infinity", isa.DIV, 2, -7, -4},
		{"mulh high word", isa.MULH, 1 << 24, 1 << 24, 1 << 16},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := newMachine([]isa.Instruction{
				{Op: isa.LIT, Arg: tc.x},
				{Op: isa.LIT, Arg: tc.y},
				{Op: tc.op},
				{Op: isa.HALT},
			}, nil, nil)
			runToHalt(t, m)
			require.Equal(t, []int32{tc.want}, m.StackSnapshot())
		})
	}
}

func TestALUUnaryOps(t *testing.T) {
	m := newMachine([]isa.Instruction{
		{Op: isa.LIT, Arg: 5},
		{Op: isa.INC},
		{Op: isa.INC},
		{Op: isa.DEC},
		{Op: isa.NOT},
		{Op: isa.HALT},
	}, nil, nil)
	runToHalt(t, m)
	require.Equal(t, []int32{^int32(6)}, m.StackSnapshot())
}

func TestAddSetsCarryFlag(t *testing.T) {
	m := newMachine([]isa.Instruction{
		{Op: isa.LIT, Arg: -1}, // 0xFFFFFFFF unsigned
		{Op: isa.LIT, Arg: 1},
		{Op: isa.ADD},
		{Op: isa.HALT},
	}, nil, nil)
	runToHalt(t, m)
	require.Equal(t, []int32{0}, m.StackSnapshot())
	require.True(t, m.dp.flags.C)
}

func TestLoadStoreRoundTrip(t *testing.T) {
	m := newMachine([]isa.Instruction{
		{Op: isa.LIT, Arg: 42},
		{Op: isa.LIT, Arg: 1},
		{Op: isa.STORE},
		{Op: isa.LIT, Arg: 1},
		{Op: isa.LOAD},
		{Op: isa.HALT},
	}, []int32{0, 0}, nil)
	runToHalt(t, m)
	require.Equal(t, []int32{42}, m.StackSnapshot())
	require.Equal(t, int32(42), m.dp.mem[1])
}

func TestCallRetUseCallStack(t *testing.T) {
	// 0: lit 3; 1: call; 2: halt; 3: lit 9; 4: ret
	m := newMachine([]isa.Instruction{
		{Op: isa.LIT, Arg: 3},
		{Op: isa.CALL},
		{Op: isa.HALT},
		{Op: isa.LIT, Arg: 9},
		{Op: isa.RET},
	}, nil, nil)
	runToHalt(t, m)
	require.Equal(t, []int32{9}, m.StackSnapshot())
	require.Equal(t, -1, m.cu.scp)
}

func TestJZBranches(t *testing.T) {
	// 0: lit 6 (target); 1: lit cond; 2: jz; 3: lit 65; 4: out 1;
	// 5: halt; 6: halt
	build := func(cond int32) *Machine {
		return newMachine([]isa.Instruction{
			{Op: isa.LIT, Arg: 6},
			{Op: isa.LIT, Arg: cond},
			{Op: isa.JZ},
			{Op: isa.LIT, Arg: 65},
			{Op: isa.OUT, Arg: 1},
			{Op: isa.HALT},
			{Op: isa.HALT},
		}, nil, nil)
	}

	taken := build(0)
	runToHalt(t, taken)
	require.Empty(t, taken.PortOutput(1))
	require.Empty(t, taken.StackSnapshot())

	fallThrough := build(1)
	runToHalt(t, fallThrough)
	require.Equal(t, []byte("A"), fallThrough.PortOutput(1))
}

func TestJNBranchesOnNegative(t *testing.T) {
	build := func(cond int32) *Machine {
		return newMachine([]isa.Instruction{
			{Op: isa.LIT, Arg: 6},
			{Op: isa.LIT, Arg: cond},
			{Op: isa.JN},
			{Op: isa.LIT, Arg: 65},
			{Op: isa.OUT, Arg: 1},
			{Op: isa.HALT},
			{Op: isa.HALT},
		}, nil, nil)
	}

	taken := build(-1)
	runToHalt(t, taken)
	require.Empty(t, taken.PortOutput(1))

	fallThrough := build(1)
	runToHalt(t, fallThrough)
	require.Equal(t, []byte("A"), fallThrough.PortOutput(1))
}

func TestOutWritesLowByte(t *testing.T) {
	m := newMachine([]isa.Instruction{
		{Op: isa.LIT, Arg: 0x141}, // 321: low byte 0x41 = 'A'
		{Op: isa.OUT, Arg: 1},
		{Op: isa.HALT},
	}, nil, nil)
	runToHalt(t, m)
	require.Equal(t, []byte("A"), m.PortOutput(1))
	require.Empty(t, m.StackSnapshot())
}

func TestStackUnderflowIsFatal(t *testing.T) {
	m := newMachine([]isa.Instruction{
		{Op: isa.LIT, Arg: 1},
		{Op: isa.ADD},
	}, nil, nil)
	_, err := m.Step()
	require.NoError(t, err)
	_, err = m.Step()
	require.ErrorIs(t, err, errStackUnderflow)
}

func TestStackOverflowIsFatal(t *testing.T) {
	prog := isa.Program{Instructions: []isa.Instruction{
		{Op: isa.LIT, Arg: 1},
		{Op: isa.LIT, Arg: 2},
		{Op: isa.LIT, Arg: 3},
	}}
	m := New(prog, nil, nil, 2, DefaultCallStackCapacity)
	_, err := m.Step()
	require.NoError(t, err)
	_, err = m.Step()
	require.NoError(t, err)
	_, err = m.Step()
	require.ErrorIs(t, err, errStackOverflow)
}

func TestDivideByZeroIsFatal(t *testing.T) {
	m := newMachine([]isa.Instruction{
		{Op: isa.LIT, Arg: 0},
		{Op: isa.LIT, Arg: 5},
		{Op: isa.DIV},
	}, nil, nil)
	_, err := m.Step()
	require.NoError(t, err)
	_, err = m.Step()
	require.NoError(t, err)
	_, err = m.Step()
	require.ErrorIs(t, err, errDivideByZero)
}

func TestPCOutOfRangeIsFatal(t *testing.T) {
	m := newMachine([]isa.Instruction{{Op: isa.NOP}}, nil, nil)
	_, err := m.Step()
	require.NoError(t, err)
	_, err = m.Step()
	require.ErrorIs(t, err, errPCOutOfRange)
}

func TestPortViolationIsFatal(t *testing.T) {
	out0 := newMachine([]isa.Instruction{
		{Op: isa.LIT, Arg: 65},
		{Op: isa.OUT, Arg: 0},
	}, nil, nil)
	_, err := out0.Step()
	require.NoError(t, err)
	_, err = out0.Step()
	require.ErrorIs(t, err, errPortViolation)

	in3 := newMachine([]isa.Instruction{{Op: isa.IN, Arg: 3}}, nil, nil)
	_, err = in3.Step()
	require.ErrorIs(t, err, errPortViolation)
}

func TestIOControllerFIFOOrder(t *testing.T) {
	io := newIOController()
	io.PushSchedule(0, 'a')
	io.PushSchedule(0, 'b')

	b, err := io.Input(0)
	require.NoError(t, err)
	require.Equal(t, byte('a'), b)
	b, err = io.Input(0)
	require.NoError(t, err)
	require.Equal(t, byte('b'), b)

	_, err = io.Input(0)
	require.ErrorIs(t, err, errPortUnderflow)
}

func TestInterruptAdmissionAndReturn(t *testing.T) {
	// 0: eint; 1: nop; 2: nop; 3: nop; 4: lit 9; 5: halt
	// handler 6: lit 1; 7: drop; 8: iret
	prog := isa.Program{
		Instructions: []isa.Instruction{
			{Op: isa.EINT},
			{Op: isa.NOP},
			{Op: isa.NOP},
			{Op: isa.NOP},
			{Op: isa.LIT, Arg: 9},
			{Op: isa.HALT},
			{Op: isa.LIT, Arg: 1},
			{Op: isa.DROP},
			{Op: isa.IRET},
		},
		IntrEnabled: true,
		HandlerAddr: 6,
	}
	m := New(prog, nil, Schedule{2: {Port: 0, Value: 'x'}}, DefaultStackCapacity, DefaultCallStackCapacity)
	runToHalt(t, m)
	// The balanced handler left no trace on the operand stack and the main
	// program resumed at the interrupted PC.
	require.Equal(t, []int32{9}, m.StackSnapshot())
	// The scheduled byte went into port 0 and was never consumed.
	require.Equal(t, []byte{'x'}, m.PortOutput(0))
}

func TestInterruptDeferredWhileServicingOne(t *testing.T) {
	prog := isa.Program{
		Instructions: []isa.Instruction{
			{Op: isa.EINT},
			{Op: isa.NOP},
			{Op: isa.NOP},
			{Op: isa.NOP},
			{Op: isa.NOP},
			{Op: isa.NOP},
			{Op: isa.HALT},
			{Op: isa.IN, Arg: 0}, // handler: 7
			{Op: isa.OUT, Arg: 1},
			{Op: isa.IRET},
		},
		IntrEnabled: true,
		HandlerAddr: 7,
	}
	// Second event fires while the first is being serviced: its byte is
	// queued and the request line stays pending until after IRET.
	sched := Schedule{
		1: {Port: 0, Value: 'a'},
		2: {Port: 0, Value: 'b'},
	}
	m := New(prog, nil, sched, DefaultStackCapacity, DefaultCallStackCapacity)
	runToHalt(t, m)
	require.Equal(t, []byte("ab"), m.PortOutput(1))
}

func TestInterruptNotAdmittedWithoutEINT(t *testing.T) {
	prog := isa.Program{
		Instructions: []isa.Instruction{
			{Op: isa.NOP},
			{Op: isa.NOP},
			{Op: isa.HALT},
			{Op: isa.IRET},
		},
		IntrEnabled: true,
		HandlerAddr: 3,
	}
	m := New(prog, nil, Schedule{1: {Port: 0, Value: 'x'}}, DefaultStackCapacity, DefaultCallStackCapacity)
	runToHalt(t, m)
	// IF was never set: the event is ignored entirely.
	require.Empty(t, m.PortOutput(0))
}
