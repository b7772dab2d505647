package runtime

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

// Disassemble writes a human-readable listing of every instruction in
// chunk to w, labelled name, decoding the byte-oriented, WIDE-prefixed
// encoding this VM uses.
func Disassemble(w io.Writer, chunk *Chunk, name string) {
	fmt.Fprintf(w, "== %s ==\n", name)
	offset := 0
	wide := false
	for offset < len(chunk.Code) {
		offset, wide = disassembleInstruction(w, chunk, offset, wide)
	}
}

var opColor = color.New(color.FgCyan)
var lineColor = color.New(color.FgHiBlack)

func disassembleInstruction(w io.Writer, chunk *Chunk, offset int, wide bool) (int, bool) {
	fmt.Fprintf(w, "%04d ", offset)
	line := chunk.GetLine(offset)
	if offset > 0 && line == chunk.GetLine(offset-1) {
		lineColor.Fprint(w, "   | ")
	} else {
		lineColor.Fprintf(w, "%4d ", line)
	}

	op := OpCode(chunk.Code[offset])
	opColor.Fprintf(w, "%-14s", op)

	switch op {
	case OpWide:
		fmt.Fprintln(w)
		return offset + 1, true

	case OpConstant, OpGetGlobal, OpDefineGlobal, OpSetGlobal, OpGetLocal, OpSetLocal,
		OpGetUpvalue, OpSetUpvalue, OpBuildList, OpBuildMap, OpClosure:
		return operandInstruction(w, chunk, op, offset, wide)

	case OpPopN:
		n := chunk.Code[offset+1]
		fmt.Fprintf(w, "%d\n", n)
		return offset + 2, false

	case OpCall:
		n := chunk.Code[offset+1]
		fmt.Fprintf(w, "%d\n", n)
		return offset + 2, false

	case OpJump, OpJumpIfFalse, OpLoop:
		jump := int(chunk.Code[offset+1])<<8 | int(chunk.Code[offset+2])
		sign := 1
		if op == OpLoop {
			sign = -1
		}
		fmt.Fprintf(w, "%d -> %d\n", offset, offset+3+sign*jump)
		return offset + 3, false

	default:
		fmt.Fprintln(w)
		return offset + 1, false
	}
}

// operandInstruction prints a single index/count operand and, for
// constant-table opcodes, the constant's value alongside it. width bytes
// are consumed depending on whether a WIDE prefix preceded this
// instruction. OP_CLOSURE additionally prints its trailing
// (isLocal,index) upvalue pairs, which this helper cannot know the count
// of without the constant's UpvalueCount, so it special-cases that one.
func operandInstruction(w io.Writer, chunk *Chunk, op OpCode, offset int, wide bool) (int, bool) {
	width := 1
	if wide {
		width = 2
	}
	var idx int
	if width == 1 {
		idx = int(chunk.Code[offset+1])
	} else {
		idx = int(chunk.Code[offset+1])<<8 | int(chunk.Code[offset+2])
	}
	next := offset + 1 + width

	switch op {
	case OpConstant, OpGetGlobal, OpDefineGlobal, OpSetGlobal, OpClosure:
		fmt.Fprintf(w, "%d '%s'\n", idx, chunk.Constants[idx].String())
	default:
		fmt.Fprintf(w, "%d\n", idx)
	}

	if op == OpClosure {
		fn, ok := chunk.Constants[idx].AsObj().(*FunctionObj)
		if ok {
			for i := 0; i < fn.UpvalueCount; i++ {
				isLocal := chunk.Code[next]
				index := chunk.Code[next+1]
				kind := "upvalue"
				if isLocal != 0 {
					kind = "local"
				}
				fmt.Fprintf(w, "%04d      |                     %s %d\n", next, kind, index)
				next += 2
			}
		}
	}

	return next, false
}

// traceInstruction prints the stack and the next instruction before it
// executes, the same execution trace DYMS's VM prints when TraceExecution
// is set.
func (vm *VM) traceInstruction(f *callFrame) {
	fmt.Fprint(vm.traceWriter(), "          ")
	for i := 0; i < vm.stackTop; i++ {
		fmt.Fprintf(vm.traceWriter(), "[ %s ]", vm.stack[i].String())
	}
	fmt.Fprintln(vm.traceWriter())
	disassembleInstruction(vm.traceWriter(), f.closure.Function.Chunk, f.ip, vm.wide)
}

func (vm *VM) traceWriter() io.Writer {
	if vm.Stdout != nil {
		return vm.Stdout
	}
	return io.Discard
}
