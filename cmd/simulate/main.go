// Command simulate is the toolchain's back end: it loads an assembled code
// and data image, optionally an input schedule, and runs the machine to
// completion, printing port 1's output stream to stdout.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"stackvm32/internal/isa"
	"stackvm32/internal/simulate"
	"stackvm32/internal/vm"
)

func main() {
	app := &cli.App{
		Name:      "simulate",
		Usage:     "run an assembled code and data image",
		ArgsUsage: "<code.bin> <data.bin> [<input-schedule>]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "single-step and print register/stack state every tick",
			},
			&cli.BoolFlag{
				Name:  "trace",
				Usage: "write a tick-by-tick control-unit trace to stderr",
			},
			&cli.IntFlag{
				Name:  "tick-limit",
				Usage: "maximum ticks before aborting the run",
				Value: simulate.DefaultOptions().TickLimit,
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if c.NArg() != 2 && c.NArg() != 3 {
		return cli.Exit("usage: simulate <code.bin> <data.bin> [<input-schedule>]", 1)
	}
	codePath := c.Args().Get(0)
	dataPath := c.Args().Get(1)

	codeBytes, err := os.ReadFile(codePath)
	if err != nil {
		return cli.Exit(fmt.Errorf("read %s: %w", codePath, err), 1)
	}
	prog, err := isa.DecodeProgram(codeBytes)
	if err != nil {
		return cli.Exit(fmt.Errorf("decode %s: %w", codePath, err), 1)
	}

	dataBytes, err := os.ReadFile(dataPath)
	if err != nil {
		return cli.Exit(fmt.Errorf("read %s: %w", dataPath, err), 1)
	}
	data, err := isa.DecodeData(dataBytes)
	if err != nil {
		return cli.Exit(fmt.Errorf("decode %s: %w", dataPath, err), 1)
	}

	schedule := vm.Schedule{}
	if c.NArg() == 3 {
		schedule, err = parseSchedule(c.Args().Get(2))
		if err != nil {
			return cli.Exit(err, 1)
		}
	}

	opts := simulate.DefaultOptions()
	opts.TickLimit = c.Int("tick-limit")

	var out string
	var ticks uint64
	var limitReached bool

	if c.Bool("debug") || c.Bool("trace") {
		dbg := simulate.NewDebugger(prog, data, schedule, opts)
		for {
			ev, err := dbg.Next()
			fmt.Fprintln(os.Stderr, ev.String())
			if err != nil {
				return cli.Exit(err, 1)
			}
			if ev.Halted {
				out, ticks = dbg.Output(), ev.Tick
				break
			}
			if dbg.TickLimitReached() {
				out, ticks, limitReached = dbg.Output(), ev.Tick, true
				break
			}
		}
	} else {
		result, err := simulate.Run(prog, data, schedule, opts)
		if err != nil {
			return cli.Exit(err, 1)
		}
		out, ticks, limitReached = result.Output, result.Ticks, result.LimitReached
	}

	fmt.Print(out)
	if limitReached {
		fmt.Fprintf(os.Stderr, "tick limit reached after %d ticks\n", ticks)
	}
	return nil
}

// parseSchedule reads the line-oriented input-schedule format:
// "<tick> <port> <char>" per line, with the literal token "\0" denoting a
// zero byte and any other token taken as a single character whose code
// point, truncated to its low byte, is the event's value.
func parseSchedule(path string) (vm.Schedule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	defer f.Close()

	schedule := vm.Schedule{}
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 {
			return nil, fmt.Errorf("%s:%d: expected \"<tick> <port> <char>\", got %q", path, lineNo, line)
		}

		tick, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: invalid tick %q: %w", path, lineNo, fields[0], err)
		}
		port, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, fmt.Errorf("%s:%d: invalid port %q: %w", path, lineNo, fields[1], err)
		}

		var value byte
		if fields[2] == `\0` {
			value = 0
		} else {
			r := []rune(fields[2])
			if len(r) != 1 {
				return nil, fmt.Errorf("%s:%d: expected a single character, got %q", path, lineNo, fields[2])
			}
			value = byte(r[0])
		}

		schedule[tick] = vm.ScheduleEvent{Port: port, Value: value}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return schedule, nil
}
