package runtime

import (
	"fmt"
	"io"
	"math"
	"unsafe"
)

// addrOf gives stack-slot pointers a total order so the open-upvalue chain
// can be kept sorted without exposing pointer arithmetic elsewhere.
func addrOf(v *Value) uintptr { return uintptr(unsafe.Pointer(v)) }

const framesMax = 64
const stackMax = framesMax * 256

// callFrame is one activation record: the running closure, its own
// instruction pointer into that closure's chunk, and the base stack slot
// its locals start at (slot 0 is always the callee itself, per
// funcCompiler's reserved slot).
type callFrame struct {
	closure *ClosureObj
	ip      int
	slots   int
}

// VM is the stack machine that executes compiled chunks. A VM may run
// several compiled functions in turn, keeping its globals between
// Interpret calls; it owns the value stack, the call-frame stack,
// the global table, and the open-upvalue chain, and acts as the Heap's
// RootProvider while running (compilation's RootProvider is the Parser).
type VM struct {
	heap    *Heap
	frames  [framesMax]callFrame
	frameCt int

	stack    [stackMax]Value
	stackTop int

	globals      *Table
	openUpvalues *UpvalueObj // descending stack-slot order

	wide bool // set by a decoded OP_WIDE, consumed by the very next instruction

	Stdout          io.Writer
	Stdin           io.Reader
	TraceExecution  bool
}

// NewVM creates a VM sharing heap with whatever compiled the program, and
// points heap's roots at the VM so allocations during execution trace the
// VM's live stack instead of a stale compiler frame.
func NewVM(heap *Heap) *VM {
	vm := &VM{heap: heap, globals: NewTable()}
	heap.SetRoots(vm)
	return vm
}

// MarkRoots implements RootProvider: the value stack, every active frame's
// closure, the globals table, and the open-upvalue chain are all roots
// so a collection mid-call still sees every live frame.
func (vm *VM) MarkRoots(h *Heap) {
	for i := 0; i < vm.stackTop; i++ {
		h.MarkValue(vm.stack[i])
	}
	for i := 0; i < vm.frameCt; i++ {
		h.MarkObject(vm.frames[i].closure)
	}
	vm.globals.Each(func(k, v Value) {
		h.MarkValue(k)
		h.MarkValue(v)
	})
	for up := vm.openUpvalues; up != nil; up = up.Next {
		h.MarkObject(up)
	}
}

func (vm *VM) push(v Value) {
	vm.stack[vm.stackTop] = v
	vm.stackTop++
}

func (vm *VM) pop() Value {
	vm.stackTop--
	return vm.stack[vm.stackTop]
}

func (vm *VM) peek(distance int) Value { return vm.stack[vm.stackTop-1-distance] }

// DefineNative installs a native function into the global table, the same
// late-bound table user-level `fun` declarations go through.
func (vm *VM) DefineNative(name string, fn NativeFn) {
	nameObj := vm.heap.InternString(name)
	vm.push(FromObj(nameObj)) // keep it reachable across the NewNative allocation
	native := vm.heap.NewNative(name, fn)
	vm.globals.Set(FromObj(nameObj), FromObj(native))
	vm.pop()
}

// Interpret wraps fn in a closure and runs it to completion. It reclaims
// the heap's RootProvider for itself first: Compile leaves it pointed at
// the (now finished) Parser, and a GC cycle mid-execution must trace the
// VM's live stack, not a stale compiler frame.
func (vm *VM) Interpret(fn *FunctionObj) *RuntimeError {
	vm.heap.SetRoots(vm)
	closure := vm.heap.NewClosure(fn)
	vm.push(FromObj(closure))
	if err := vm.call(closure, 0); err != nil {
		return err
	}
	return vm.run()
}

func (vm *VM) currentFrame() *callFrame { return &vm.frames[vm.frameCt-1] }

func (vm *VM) readByte(f *callFrame) byte {
	b := f.closure.Function.Chunk.Code[f.ip]
	f.ip++
	return b
}

func (vm *VM) readShort(f *callFrame) int {
	hi := vm.readByte(f)
	lo := vm.readByte(f)
	return int(hi)<<8 | int(lo)
}

// readOperand reads an index/count operand, honoring a pending WIDE
// prefix: one byte normally, two big-endian bytes once OP_WIDE
// has been seen for this instruction.
func (vm *VM) readOperand(f *callFrame) int {
	if vm.wide {
		vm.wide = false
		return vm.readShort(f)
	}
	return int(vm.readByte(f))
}

func (vm *VM) readConstant(f *callFrame, idx int) Value {
	return f.closure.Function.Chunk.Constants[idx]
}

func (vm *VM) run() *RuntimeError {
	f := vm.currentFrame()
	for {
		if vm.TraceExecution {
			vm.traceInstruction(f)
		}
		op := OpCode(vm.readByte(f))
		if vm.wide {
			switch op {
			case OpConstant, OpGetLocal, OpSetLocal, OpGetGlobal, OpDefineGlobal, OpSetGlobal,
				OpGetUpvalue, OpSetUpvalue, OpClosure, OpBuildList, OpBuildMap:
			default:
				vm.wide = false
				return vm.runtimeError("invalid WIDE prefix before %s", op)
			}
		}

		switch op {
		case OpWide:
			vm.wide = true
			continue

		case OpConstant:
			idx := vm.readOperand(f)
			vm.push(vm.readConstant(f, idx))

		case OpNil:
			vm.push(Nil)
		case OpTrue:
			vm.push(Bool(true))
		case OpFalse:
			vm.push(Bool(false))
		case OpPop:
			vm.pop()
		case OpPopN:
			n := int(vm.readByte(f))
			vm.stackTop -= n

		case OpGetLocal:
			slot := vm.readOperand(f)
			vm.push(vm.stack[f.slots+slot])
		case OpSetLocal:
			slot := vm.readOperand(f)
			vm.stack[f.slots+slot] = vm.peek(0)

		case OpGetGlobal:
			idx := vm.readOperand(f)
			name := vm.readConstant(f, idx)
			v, ok := vm.globals.Get(name)
			if !ok {
				return vm.runtimeError("undefined variable '%s'", name.String())
			}
			vm.push(v)
		case OpDefineGlobal:
			idx := vm.readOperand(f)
			name := vm.readConstant(f, idx)
			vm.globals.Set(name, vm.peek(0))
			vm.pop()
		case OpSetGlobal:
			idx := vm.readOperand(f)
			name := vm.readConstant(f, idx)
			if vm.globals.Set(name, vm.peek(0)) {
				// Set returns true on insert of a NEW key; a brand new global
				// being implicitly created by assignment is an error.
				vm.globals.Delete(name)
				return vm.runtimeError("undefined variable '%s'", name.String())
			}

		case OpGetUpvalue:
			idx := vm.readOperand(f)
			vm.push(*f.closure.Upvalues[idx].Location)
		case OpSetUpvalue:
			idx := vm.readOperand(f)
			*f.closure.Upvalues[idx].Location = vm.peek(0)

		case OpEqual:
			b := vm.pop()
			a := vm.pop()
			vm.push(Bool(a.Equal(b)))
		case OpGreater:
			if err := vm.numericCompare(func(a, b float64) bool { return a > b }); err != nil {
				return err
			}
		case OpLess:
			if err := vm.numericCompare(func(a, b float64) bool { return a < b }); err != nil {
				return err
			}

		case OpAdd:
			if err := vm.add(); err != nil {
				return err
			}
		case OpSubtract:
			if err := vm.arith(func(a, b float64) float64 { return a - b }); err != nil {
				return err
			}
		case OpMultiply:
			if err := vm.arith(func(a, b float64) float64 { return a * b }); err != nil {
				return err
			}
		case OpDivide:
			// IEEE division, no integer trap: 1/0 is +Inf, 0/0 is NaN.
			if err := vm.arith(func(a, b float64) float64 { return a / b }); err != nil {
				return err
			}
		case OpModulo:
			if err := vm.arith(math.Mod); err != nil {
				return err
			}
		case OpPower:
			if err := vm.arith(math.Pow); err != nil {
				return err
			}
		case OpNot:
			vm.push(Bool(!vm.pop().Truthy()))
		case OpNegate:
			if !vm.peek(0).IsNumber() {
				return vm.runtimeError("operand must be a number")
			}
			vm.push(Number(-vm.pop().AsNumber()))

		case OpJump:
			offset := vm.readShort(f)
			f.ip += offset
		case OpJumpIfFalse:
			offset := vm.readShort(f)
			if !vm.peek(0).Truthy() {
				f.ip += offset
			}
		case OpLoop:
			offset := vm.readShort(f)
			f.ip -= offset

		case OpCall:
			argCount := int(vm.readByte(f))
			if err := vm.callValue(vm.peek(argCount), argCount); err != nil {
				return err
			}
			f = vm.currentFrame()

		case OpClosure:
			idx := vm.readOperand(f)
			fnVal := vm.readConstant(f, idx)
			fn := fnVal.AsObj().(*FunctionObj)
			closure := vm.heap.NewClosure(fn)
			vm.push(FromObj(closure))
			for i := 0; i < fn.UpvalueCount; i++ {
				isLocal := vm.readByte(f) != 0
				index := int(vm.readByte(f))
				if isLocal {
					closure.Upvalues[i] = vm.captureUpvalue(f.slots + index)
				} else {
					closure.Upvalues[i] = f.closure.Upvalues[index]
				}
			}

		case OpCloseUpvalue:
			vm.closeUpvalues(vm.stackTop - 1)
			vm.pop()

		case OpReturn:
			result := vm.pop()
			vm.closeUpvalues(f.slots)
			vm.frameCt--
			if vm.frameCt == 0 {
				vm.pop() // the implicit top-level closure
				return nil
			}
			vm.stackTop = f.slots
			vm.push(result)
			f = vm.currentFrame()

		case OpBuildList:
			n := vm.readOperand(f)
			items := make([]Value, n)
			copy(items, vm.stack[vm.stackTop-n:vm.stackTop])
			// NewList is called before the stack shrinks: a GC triggered by
			// this allocation still sees the source slots as live roots,
			// even though items already holds an independent copy of them.
			list := vm.heap.NewList(items)
			vm.stackTop -= n
			vm.push(FromObj(list))

		case OpBuildMap:
			n := vm.readOperand(f)
			base := vm.stackTop - 2*n
			m := vm.heap.NewMap()
			for i := 0; i < n; i++ {
				key := vm.stack[base+2*i]
				val := vm.stack[base+2*i+1]
				if !isHashable(key) {
					return vm.runtimeError("unhashable type: %s", key.TypeName())
				}
				m.Table.Set(key, val)
			}
			vm.stackTop = base
			vm.push(FromObj(m))

		case OpIndexSubscr:
			index := vm.pop()
			obj := vm.pop()
			v, err := vm.indexSubscr(obj, index)
			if err != nil {
				return err
			}
			vm.push(v)

		case OpStoreSubscr:
			value := vm.pop()
			index := vm.pop()
			obj := vm.pop()
			if err := vm.storeSubscr(obj, index, value); err != nil {
				return err
			}
			vm.push(value)

		default:
			return vm.runtimeError("unknown opcode %d", op)
		}
	}
}

func (vm *VM) numericCompare(cmp func(a, b float64) bool) *RuntimeError {
	if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
		return vm.runtimeError("operands must be numbers")
	}
	b := vm.pop().AsNumber()
	a := vm.pop().AsNumber()
	vm.push(Bool(cmp(a, b)))
	return nil
}

func (vm *VM) arith(op func(a, b float64) float64) *RuntimeError {
	if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
		return vm.runtimeError("operands must be numbers")
	}
	b := vm.pop().AsNumber()
	a := vm.pop().AsNumber()
	vm.push(Number(op(a, b)))
	return nil
}

func (vm *VM) add() *RuntimeError {
	if vm.peek(0).IsNumber() && vm.peek(1).IsNumber() {
		b := vm.pop().AsNumber()
		a := vm.pop().AsNumber()
		vm.push(Number(a + b))
		return nil
	}
	if vm.peek(0).IsString() && vm.peek(1).IsString() {
		b := vm.pop().AsString()
		a := vm.pop().AsString()
		vm.push(FromObj(vm.heap.InternString(a.Chars + b.Chars)))
		return nil
	}
	return vm.runtimeError("operands must be two numbers or two strings")
}

func isHashable(v Value) bool {
	k, ok := v.ObjKind()
	if !ok {
		return true
	}
	return k != ObjList && k != ObjMap && k != ObjUpvalue
}

func (vm *VM) indexSubscr(obj, index Value) (Value, *RuntimeError) {
	switch {
	case obj.IsList():
		if !index.IsNumber() {
			return Nil, vm.runtimeError("list index must be a number")
		}
		list := obj.AsList()
		i := int(index.AsNumber())
		if i < 0 || i >= len(list.Items) {
			return Nil, vm.runtimeError("list index out of range")
		}
		return list.Items[i], nil
	case obj.IsMap():
		if !isHashable(index) {
			return Nil, vm.runtimeError("unhashable type: %s", index.TypeName())
		}
		v, ok := obj.AsMap().Table.Get(index)
		if !ok {
			return Nil, vm.runtimeError("key not found: %s", index.String())
		}
		return v, nil
	case obj.IsString():
		if !index.IsNumber() {
			return Nil, vm.runtimeError("string index must be a number")
		}
		s := obj.AsString().Chars
		i := int(index.AsNumber())
		if i < 0 || i >= len(s) {
			return Nil, vm.runtimeError("string index out of range")
		}
		return FromObj(vm.heap.InternString(string(s[i]))), nil
	default:
		return Nil, vm.runtimeError("'%s' is not subscriptable", obj.TypeName())
	}
}

func (vm *VM) storeSubscr(obj, index, value Value) *RuntimeError {
	switch {
	case obj.IsList():
		if !index.IsNumber() {
			return vm.runtimeError("list index must be a number")
		}
		list := obj.AsList()
		i := int(index.AsNumber())
		if i < 0 || i >= len(list.Items) {
			return vm.runtimeError("list index out of range")
		}
		list.Items[i] = value
		return nil
	case obj.IsMap():
		if !isHashable(index) {
			return vm.runtimeError("unhashable type: %s", index.TypeName())
		}
		obj.AsMap().Table.Set(index, value)
		return nil
	case obj.IsString():
		return vm.runtimeError("strings are immutable")
	default:
		return vm.runtimeError("'%s' does not support item assignment", obj.TypeName())
	}
}

func (vm *VM) callValue(callee Value, argCount int) *RuntimeError {
	k, ok := callee.ObjKind()
	if !ok {
		return vm.runtimeError("'%s' is not callable", callee.TypeName())
	}
	switch k {
	case ObjClosure:
		return vm.call(callee.AsObj().(*ClosureObj), argCount)
	case ObjNative:
		native := callee.AsObj().(*NativeObj)
		args := vm.stack[vm.stackTop-argCount : vm.stackTop]
		result, err := native.Fn(vm, args)
		if err != nil {
			return err
		}
		vm.stackTop -= argCount + 1
		vm.push(result)
		return nil
	default:
		return vm.runtimeError("'%s' is not callable", callee.TypeName())
	}
}

func (vm *VM) call(closure *ClosureObj, argCount int) *RuntimeError {
	if argCount != closure.Function.Arity {
		return vm.runtimeError("expected %d arguments but got %d", closure.Function.Arity, argCount)
	}
	if vm.frameCt == framesMax {
		return vm.runtimeError("stack overflow")
	}
	frame := &vm.frames[vm.frameCt]
	frame.closure = closure
	frame.ip = 0
	frame.slots = vm.stackTop - argCount - 1
	vm.frameCt++
	return nil
}

// captureUpvalue returns the existing open upvalue for stack slot absIndex
// if one exists, otherwise creates and links a new one. openUpvalues is
// kept in strictly descending slot order: walking it
// front-to-back visits higher stack addresses first, so the scan can stop
// the moment it passes the target slot.
func (vm *VM) captureUpvalue(absIndex int) *UpvalueObj {
	target := &vm.stack[absIndex]
	var prev *UpvalueObj
	up := vm.openUpvalues
	for up != nil && addrOf(up.Location) > addrOf(target) {
		prev = up
		up = up.Next
	}
	if up != nil && up.Location == target {
		return up
	}
	created := vm.heap.NewUpvalue(target)
	created.Next = up
	if prev == nil {
		vm.openUpvalues = created
	} else {
		prev.Next = created
	}
	return created
}

func (vm *VM) closeUpvalues(fromSlot int) {
	threshold := addrOf(&vm.stack[fromSlot])
	for vm.openUpvalues != nil && addrOf(vm.openUpvalues.Location) >= threshold {
		up := vm.openUpvalues
		up.Closed = *up.Location
		up.Location = &up.Closed
		vm.openUpvalues = up.Next
	}
}

func (vm *VM) runtimeError(format string, args ...interface{}) *RuntimeError {
	err := &RuntimeError{Message: fmt.Sprintf(format, args...)}
	for i := vm.frameCt - 1; i >= 0; i-- {
		fr := &vm.frames[i]
		fn := fr.closure.Function
		line := fn.Chunk.GetLine(fr.ip - 1)
		name := "<script>"
		if fn.Name != nil {
			name = fn.Name.Chars + "()"
		}
		err.Trace = append(err.Trace, fmt.Sprintf("[line %d] in %s", line, name))
	}
	vm.stackTop = 0
	vm.frameCt = 0
	vm.openUpvalues = nil
	return err
}
