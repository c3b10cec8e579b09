// Package simulate wires an internal/vm Machine from an assembled program,
// data image, and interrupt schedule, runs it to HALT or the tick limit,
// and reports port 1's accumulated output.
package simulate

import (
	"fmt"

	"stackvm32/internal/isa"
	"stackvm32/internal/vm"
)

// Result is what a completed (or tick-limited) run produced.
type Result struct {
	Output       string // port 1's accumulated bytes
	Ticks        uint64
	Halted       bool // true if HALT was reached
	LimitReached bool // true if the tick limit was hit instead
}

// Options bounds and configures a run.
type Options struct {
	StackCapacity     int
	CallStackCapacity int
	TickLimit         int
}

// DefaultOptions sizes the machine for general-purpose programs.
func DefaultOptions() Options {
	return Options{
		StackCapacity:     vm.DefaultStackCapacity,
		CallStackCapacity: vm.DefaultCallStackCapacity,
		TickLimit:         1_000_000,
	}
}

// Run steps a fresh Machine until HALT, the tick limit, or a fatal
// micro-step error. A tick-limit stop is not an error: Result is still
// returned with the partial port-1 output.
func Run(program isa.Program, data []int32, schedule vm.Schedule, opts Options) (Result, error) {
	m := vm.New(program, data, schedule, opts.StackCapacity, opts.CallStackCapacity)

	for {
		if opts.TickLimit > 0 && m.Tick() >= uint64(opts.TickLimit) {
			return Result{
				Output:       string(m.PortOutput(1)),
				Ticks:        m.Tick(),
				LimitReached: true,
			}, nil
		}
		halted, err := m.Step()
		if err != nil {
			return Result{Output: string(m.PortOutput(1)), Ticks: m.Tick()}, err
		}
		if halted {
			return Result{
				Output: string(m.PortOutput(1)),
				Ticks:  m.Tick(),
				Halted: true,
			}, nil
		}
	}
}

// StepEvent is what the Debugger reports after every micro-step, enough to
// drive a breakpoint REPL.
type StepEvent struct {
	Tick   uint64
	PC     uint32
	Instr  isa.Instruction
	Stack  []int32
	Halted bool
}

func (e StepEvent) String() string {
	return fmt.Sprintf("tick=%-5d pc=%-4d instr=%-14s stack=%v", e.Tick, e.PC, e.Instr, e.Stack)
}

// Debugger wraps a Machine for single-stepping and inspection.
type Debugger struct {
	m    *vm.Machine
	opts Options
}

// NewDebugger builds a fresh Machine wrapped for step-by-step inspection.
func NewDebugger(program isa.Program, data []int32, schedule vm.Schedule, opts Options) *Debugger {
	return &Debugger{m: vm.New(program, data, schedule, opts.StackCapacity, opts.CallStackCapacity), opts: opts}
}

// Next executes exactly one micro-step and reports the resulting state.
func (d *Debugger) Next() (StepEvent, error) {
	instr, _ := d.m.Instruction()
	halted, err := d.m.Step()
	ev := StepEvent{
		Tick:   d.m.Tick(),
		PC:     d.m.PC(),
		Instr:  instr,
		Stack:  d.m.StackSnapshot(),
		Halted: halted,
	}
	return ev, err
}

// Output returns port 1's accumulated bytes so far.
func (d *Debugger) Output() string { return string(d.m.PortOutput(1)) }

// TickLimitReached reports whether the configured tick limit has been hit.
func (d *Debugger) TickLimitReached() bool {
	return d.opts.TickLimit > 0 && d.m.Tick() >= uint64(d.opts.TickLimit)
}
