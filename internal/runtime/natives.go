package runtime

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// RegisterNatives installs the builtin library into vm's global table.
// Grounded on original_source/src/native.c: each
// of clockNative/printNative/etc. below is a direct port of one C native
// from that file, rebuilt on the Go native-function signature in
// object.go instead of the C `(argCount, args, result) -> bool` ABI.
func RegisterNatives(vm *VM) {
	vm.DefineNative("clock", nativeClock)
	vm.DefineNative("print", nativePrint)
	vm.DefineNative("write", nativeWrite)
	vm.DefineNative("len", nativeLen)
	vm.DefineNative("append", nativeAppend)
	vm.DefineNative("delete", nativeDelete)
	vm.DefineNative("has", nativeHas)
	vm.DefineNative("keys", nativeKeys)
	vm.DefineNative("values", nativeValues)
	vm.DefineNative("items", nativeItems)
	vm.DefineNative("num", nativeNum)
	vm.DefineNative("input", nativeInput)
	vm.DefineNative("assert", nativeAssert)
}

func arityError(name string, want, got int) *RuntimeError {
	return NewRuntimeError("%s() expects %d argument(s) but got %d", name, want, got)
}

func nativeClock(vm *VM, args []Value) (Value, *RuntimeError) {
	if len(args) != 0 {
		return Nil, arityError("clock", 0, len(args))
	}
	return Number(float64(time.Now().UnixNano()) / 1e9), nil
}

func (vm *VM) out() io.Writer {
	if vm.Stdout != nil {
		return vm.Stdout
	}
	return io.Discard
}

func nativePrint(vm *VM, args []Value) (Value, *RuntimeError) {
	for i, a := range args {
		if i > 0 {
			fmt.Fprint(vm.out(), " ")
		}
		fmt.Fprint(vm.out(), a.String())
	}
	fmt.Fprintln(vm.out())
	return Nil, nil
}

// write is print without the trailing newline or inter-argument spacing,
// matching native.c's write() used for building output incrementally.
func nativeWrite(vm *VM, args []Value) (Value, *RuntimeError) {
	for _, a := range args {
		fmt.Fprint(vm.out(), a.String())
	}
	return Nil, nil
}

func nativeLen(vm *VM, args []Value) (Value, *RuntimeError) {
	if len(args) != 1 {
		return Nil, arityError("len", 1, len(args))
	}
	v := args[0]
	switch {
	case v.IsString():
		return Number(float64(len(v.AsString().Chars))), nil
	case v.IsList():
		return Number(float64(len(v.AsList().Items))), nil
	case v.IsMap():
		// Table.Count also counts tombstones, so count live entries instead.
		n := 0
		v.AsMap().Table.Each(func(_, _ Value) { n++ })
		return Number(float64(n)), nil
	default:
		return Nil, NewRuntimeError("len() unsupported for type %s", v.TypeName())
	}
}

// append(list, value) grows a list in place and returns the list, mirroring
// native.c's appendNative which mutates the passed ObjList directly.
func nativeAppend(vm *VM, args []Value) (Value, *RuntimeError) {
	if len(args) != 2 {
		return Nil, arityError("append", 2, len(args))
	}
	if !args[0].IsList() {
		return Nil, NewRuntimeError("append() expects a list as its first argument")
	}
	list := args[0].AsList()
	list.Items = append(list.Items, args[1])
	return args[0], nil
}

// delete(container, key) removes key from a map, or an index from a list
// (an enrichment of native.c's map-only deleteNative to cover lists
// too, per the Open Question resolution recorded in DESIGN.md).
func nativeDelete(vm *VM, args []Value) (Value, *RuntimeError) {
	if len(args) != 2 {
		return Nil, arityError("delete", 2, len(args))
	}
	switch {
	case args[0].IsMap():
		ok := args[0].AsMap().Table.Delete(args[1])
		return Bool(ok), nil
	case args[0].IsList():
		if !args[1].IsNumber() {
			return Nil, NewRuntimeError("delete() list index must be a number")
		}
		list := args[0].AsList()
		i := int(args[1].AsNumber())
		if i < 0 || i >= len(list.Items) {
			return Bool(false), nil
		}
		list.Items = append(list.Items[:i], list.Items[i+1:]...)
		return Bool(true), nil
	default:
		return Nil, NewRuntimeError("delete() expects a map or list")
	}
}

func nativeHas(vm *VM, args []Value) (Value, *RuntimeError) {
	if len(args) != 2 {
		return Nil, arityError("has", 2, len(args))
	}
	switch {
	case args[0].IsMap():
		_, ok := args[0].AsMap().Table.Get(args[1])
		return Bool(ok), nil
	case args[0].IsList():
		for _, item := range args[0].AsList().Items {
			if item.Equal(args[1]) {
				return Bool(true), nil
			}
		}
		return Bool(false), nil
	default:
		return Nil, NewRuntimeError("has() expects a map or list")
	}
}

func nativeKeys(vm *VM, args []Value) (Value, *RuntimeError) {
	if len(args) != 1 || !args[0].IsMap() {
		return Nil, NewRuntimeError("keys() expects a map")
	}
	var keys []Value
	args[0].AsMap().Table.Each(func(k, _ Value) { keys = append(keys, k) })
	return FromObj(vm.heap.NewList(keys)), nil
}

func nativeValues(vm *VM, args []Value) (Value, *RuntimeError) {
	if len(args) != 1 || !args[0].IsMap() {
		return Nil, NewRuntimeError("values() expects a map")
	}
	var values []Value
	args[0].AsMap().Table.Each(func(_, v Value) { values = append(values, v) })
	return FromObj(vm.heap.NewList(values)), nil
}

// items(map) returns a list of [key, value] 2-element lists.
func nativeItems(vm *VM, args []Value) (Value, *RuntimeError) {
	if len(args) != 1 || !args[0].IsMap() {
		return Nil, NewRuntimeError("items() expects a map")
	}
	var pairs []Value
	args[0].AsMap().Table.Each(func(k, v Value) {
		pairs = append(pairs, FromObj(vm.heap.NewList([]Value{k, v})))
	})
	return FromObj(vm.heap.NewList(pairs)), nil
}

// num(value) coerces a bool or string to a number, or passes a number
// through unchanged; nqq has no implicit coercion elsewhere.
func nativeNum(vm *VM, args []Value) (Value, *RuntimeError) {
	if len(args) != 1 {
		return Nil, arityError("num", 1, len(args))
	}
	switch {
	case args[0].IsBool():
		if args[0].AsBool() {
			return Number(1), nil
		}
		return Number(0), nil
	case args[0].IsNumber():
		return args[0], nil
	case args[0].IsString():
		f, err := strconv.ParseFloat(args[0].AsString().Chars, 64)
		if err != nil {
			return Nil, NewRuntimeError("num() could not parse '%s'", args[0].AsString().Chars)
		}
		return Number(f), nil
	default:
		return Nil, NewRuntimeError("num() unsupported for type %s", args[0].TypeName())
	}
}

// input() reads a single line from stdin, stripping the trailing newline.
func nativeInput(vm *VM, args []Value) (Value, *RuntimeError) {
	if len(args) != 0 {
		return Nil, arityError("input", 0, len(args))
	}
	var r io.Reader = vm.Stdin
	if r == nil {
		r = strings.NewReader("")
	}
	reader := bufio.NewReader(r)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return Nil, nil
	}
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return FromObj(vm.heap.InternString(line)), nil
}

// assert(cond) raises a catchable RuntimeError when cond is falsey, the
// nqq-level equivalent of native.c's assertNative.
func nativeAssert(vm *VM, args []Value) (Value, *RuntimeError) {
	if len(args) != 1 {
		return Nil, arityError("assert", 1, len(args))
	}
	if args[0].Truthy() {
		return Nil, nil
	}
	return Nil, NewRuntimeError("assertion failed")
}
