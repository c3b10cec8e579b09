// Package forth lowers the Forth-flavored source language into the flat
// assembly token stream the assembler consumes: it hoists var/str/array
// data declarations, turns `: NAME ... ;` blocks into call/return
// procedures, expands the `!=`/`>`/`else`/`then` branch macros and the
// `begin`/`again`/`exit` loop macros, and expands the `*2` widening-multiply
// macro.
package forth

import (
	"fmt"
	"strconv"

	"stackvm32/internal/isa"
)

// tmpOverVar is the name of the internal scratch variable the `*2` macro
// uses to stash one operand across the two multiplies it needs.
const tmpOverVar = "_tmp_over"

const interruptHandlerName = "interrupt_handler"

// loopCtx tracks one active begin/again nesting level.
type loopCtx struct {
	start, end string
}

// ifCtx tracks one active !=/>  ... then nesting level.
type ifCtx struct {
	elseLabel, endLabel string
	hasElse             bool
}

// lowerer carries the monotonically increasing per-construct label counters
// and nesting stacks for a single translation unit. It is not reused across
// calls to Lower.
type lowerer struct {
	strs []string

	dataNames map[string]bool
	procNames map[string]bool

	condCounter int
	loopCounter int

	ifStack     []ifCtx
	loopStack   []loopCtx
	procStarted []string

	dataBuf []string
	mainBuf []string
	procBuf []string

	cur *[]string
}

// Lower consumes the token stream and sidecar string list produced by
// internal/lexer and returns the flat, one-token-per-line assembly stream
// the assembler understands: data declarations first, then top-level code,
// then procedure bodies.
func Lower(tokens []string, strs []string) ([]string, error) {
	l := &lowerer{strs: strs}
	dataNames, procNames, needTmpOver, err := prescan(tokens)
	if err != nil {
		return nil, err
	}
	l.dataNames, l.procNames = dataNames, procNames
	l.cur = &l.mainBuf

	if needTmpOver {
		l.dataBuf = append(l.dataBuf, "var", tmpOverVar, "0")
	}

	stringIdx := 0
	i := 0
	for i < len(tokens) {
		tok := tokens[i]
		switch tok {
		case "var":
			if i+1 >= len(tokens) {
				return nil, fmt.Errorf("var: missing name at token %d", i)
			}
			l.dataBuf = append(l.dataBuf, "var", tokens[i+1], "0")
			i += 2

		case "str":
			if i+2 >= len(tokens) || tokens[i+2] != "*" {
				return nil, fmt.Errorf("str: expected name and string literal at token %d", i)
			}
			if stringIdx >= len(strs) {
				return nil, fmt.Errorf("str: string literal index out of range at token %d", i)
			}
			l.dataBuf = append(l.dataBuf, "var", tokens[i+1], "*")
			stringIdx++
			i += 3

		case "array":
			if i+2 >= len(tokens) {
				return nil, fmt.Errorf("array: missing name or count at token %d", i)
			}
			count, err := strconv.Atoi(tokens[i+2])
			if err != nil || count < 0 {
				return nil, fmt.Errorf("array: invalid count %q at token %d", tokens[i+2], i)
			}
			l.dataBuf = append(l.dataBuf, "var", tokens[i+1])
			for k := 0; k < count; k++ {
				l.dataBuf = append(l.dataBuf, "0")
			}
			i += 3

		case ":":
			if i+1 >= len(tokens) {
				return nil, fmt.Errorf("': ' missing procedure name at token %d", i)
			}
			name := tokens[i+1]
			l.procBuf = append(l.procBuf, name+":")
			l.cur = &l.procBuf
			l.procStarted = append(l.procStarted, name)
			i += 2

		case ";":
			if len(l.procStarted) == 0 {
				return nil, fmt.Errorf("';' with no open procedure at token %d", i)
			}
			name := l.procStarted[len(l.procStarted)-1]
			l.procStarted = l.procStarted[:len(l.procStarted)-1]
			if name == interruptHandlerName {
				l.emit("iret")
			} else {
				l.emit(name+"_end:", "ret")
			}
			l.cur = &l.mainBuf
			i++

		case "!=":
			lbl := l.newCond()
			l.emit("sub", "lit", lbl.elseLabel, "swap", "jz")
			l.ifStack = append(l.ifStack, lbl)
			i++

		case ">":
			lbl := l.newCond()
			l.emit("swap", "sub", "lit", lbl.elseLabel, "swap", "jn")
			l.ifStack = append(l.ifStack, lbl)
			i++

		case "else":
			if len(l.ifStack) == 0 {
				return nil, fmt.Errorf("'else' with no open if at token %d", i)
			}
			top := &l.ifStack[len(l.ifStack)-1]
			l.emit("lit", top.endLabel, "jump", top.elseLabel+":")
			top.hasElse = true
			i++

		case "then":
			if len(l.ifStack) == 0 {
				return nil, fmt.Errorf("'then' with no open if at token %d", i)
			}
			top := l.ifStack[len(l.ifStack)-1]
			l.ifStack = l.ifStack[:len(l.ifStack)-1]
			if !top.hasElse {
				l.emit(top.elseLabel+":", "nop")
			}
			l.emit(top.endLabel+":", "nop")
			i++

		case "begin":
			lc := l.newLoop()
			l.emit(lc.start + ":")
			l.loopStack = append(l.loopStack, lc)
			i++

		case "again":
			if len(l.loopStack) == 0 {
				return nil, fmt.Errorf("'again' with no open begin at token %d", i)
			}
			lc := l.loopStack[len(l.loopStack)-1]
			l.loopStack = l.loopStack[:len(l.loopStack)-1]
			l.emit(lc.end+":", "lit", lc.start, "jump")
			i++

		case "exit":
			if len(l.loopStack) == 0 {
				return nil, fmt.Errorf("'exit' outside begin/again at token %d", i)
			}
			lc := l.loopStack[len(l.loopStack)-1]
			l.emit("lit", lc.end, "inc", "inc", "jump")
			i++

		case "*2":
			l.emitWideningMul()
			i++

		case "in", "out":
			if i+1 >= len(tokens) {
				return nil, fmt.Errorf("%s: missing port argument at token %d", tok, i)
			}
			l.emit(tok, tokens[i+1])
			i += 2

		default:
			if n, ok := parseIntLiteral(tok); ok {
				l.emit("lit", strconv.FormatInt(n, 10))
				i++
				continue
			}
			if op, ok := isa.Lookup(tok); ok {
				if op.HasImmediate() {
					if i+1 >= len(tokens) {
						return nil, fmt.Errorf("%s: missing argument at token %d", tok, i)
					}
					l.emit(tok, tokens[i+1])
					i += 2
				} else {
					l.emit(tok)
					i++
				}
				continue
			}
			if l.dataNames[tok] {
				l.emit("lit", tok)
				i++
				continue
			}
			if l.procNames[tok] {
				l.emit("lit", tok, "call")
				i++
				continue
			}
			return nil, fmt.Errorf("unknown token %q at position %d", tok, i)
		}
	}

	if len(l.ifStack) != 0 {
		return nil, fmt.Errorf("unterminated if construct (missing 'then')")
	}
	if len(l.loopStack) != 0 {
		return nil, fmt.Errorf("unterminated begin/again loop")
	}
	if len(l.procStarted) != 0 {
		return nil, fmt.Errorf("unterminated procedure %q (missing ';')", l.procStarted[len(l.procStarted)-1])
	}

	out := make([]string, 0, len(l.dataBuf)+len(l.mainBuf)+len(l.procBuf))
	out = append(out, l.dataBuf...)
	out = append(out, l.mainBuf...)
	out = append(out, l.procBuf...)
	return out, nil
}

func (l *lowerer) emit(toks ...string) {
	*l.cur = append(*l.cur, toks...)
}

func (l *lowerer) newCond() ifCtx {
	n := l.condCounter
	l.condCounter++
	return ifCtx{
		elseLabel: fmt.Sprintf("else_%d", n),
		endLabel:  fmt.Sprintf("end_%d", n),
	}
}

func (l *lowerer) newLoop() loopCtx {
	n := l.loopCounter
	l.loopCounter++
	return loopCtx{
		start: fmt.Sprintf("loop_%d_start", n),
		end:   fmt.Sprintf("loop_%d_end", n),
	}
}

// emitWideningMul expands `*2`: given [a, b] on the stack (b on top), it
// stashes b in _tmp_over, duplicates a, and loads b back once for the mulh
// pass and once for the mul pass, leaving [lo, hi] with hi on top.
func (l *lowerer) emitWideningMul() {
	l.emit("lit", tmpOverVar, "store")
	l.emit("dup", "lit", tmpOverVar, "load", "mulh")
	l.emit("swap", "lit", tmpOverVar, "load", "mul")
	l.emit("swap")
}

func parseIntLiteral(tok string) (int64, bool) {
	n, err := strconv.ParseInt(tok, 0, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
