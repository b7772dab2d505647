package runtime

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runProgram compiles and executes src against a fresh heap/VM, returning
// everything written via print()/write() and any runtime error.
func runProgram(t *testing.T, src string) (string, *RuntimeError) {
	t.Helper()
	heap := NewHeap()
	fn, cerr := Compile([]byte(src), heap)
	require.Nil(t, cerr, "compile error: %v", cerr)

	vm := NewVM(heap)
	var out bytes.Buffer
	vm.Stdout = &out
	RegisterNatives(vm)

	rerr := vm.Interpret(fn)
	return out.String(), rerr
}

func TestArithmeticAndPrecedence(t *testing.T) {
	out, err := runProgram(t, `print(1 + 2 * 3 - 4 / 2);`)
	require.Nil(t, err)
	assert.Equal(t, "5\n", out)
}

func TestPowerIsRightAssociative(t *testing.T) {
	// 2 ** 3 ** 2 == 2 ** (3 ** 2) == 2 ** 9 == 512, not (2**3)**2 == 64.
	out, err := runProgram(t, `print(2 ** 3 ** 2);`)
	require.Nil(t, err)
	assert.Equal(t, "512\n", out)
}

func TestStringConcatenation(t *testing.T) {
	out, err := runProgram(t, `print('foo' + 'bar');`)
	require.Nil(t, err)
	assert.Equal(t, "foobar\n", out)
}

func TestVariablesAndAssignment(t *testing.T) {
	out, err := runProgram(t, `
		let x = 1;
		x += 2;
		x *= 3;
		print(x);
	`)
	require.Nil(t, err)
	assert.Equal(t, "9\n", out)
}

func TestIfElse(t *testing.T) {
	out, err := runProgram(t, `
		let x = 10;
		if (x > 5) { print('big'); } else { print('small'); }
	`)
	require.Nil(t, err)
	assert.Equal(t, "big\n", out)
}

func TestWhileLoop(t *testing.T) {
	out, err := runProgram(t, `
		let i = 0;
		while (i < 3) {
			print(i);
			i += 1;
		}
	`)
	require.Nil(t, err)
	assert.Equal(t, "0\n1\n2\n", out)
}

func TestForLoopWithBreakAndContinue(t *testing.T) {
	out, err := runProgram(t, `
		for (let i = 0; i < 10; i += 1) {
			if (i == 2) { continue; }
			if (i == 5) { break; }
			print(i);
		}
	`)
	require.Nil(t, err)
	assert.Equal(t, "0\n1\n3\n4\n", out)
}

func TestFunctionCallAndReturn(t *testing.T) {
	out, err := runProgram(t, `
		fun add(a, b) {
			return a + b;
		}
		print(add(3, 4));
	`)
	require.Nil(t, err)
	assert.Equal(t, "7\n", out)
}

func TestClosureCapturesUpvalue(t *testing.T) {
	out, err := runProgram(t, `
		fun makeCounter() {
			let count = 0;
			fun increment() {
				count += 1;
				return count;
			}
			return increment;
		}
		let counter = makeCounter();
		print(counter());
		print(counter());
		print(counter());
	`)
	require.Nil(t, err)
	assert.Equal(t, "1\n2\n3\n", out)
}

func TestRecursion(t *testing.T) {
	out, err := runProgram(t, `
		fun fib(n) {
			if (n < 2) { return n; }
			return fib(n - 1) + fib(n - 2);
		}
		print(fib(10));
	`)
	require.Nil(t, err)
	assert.Equal(t, "55\n", out)
}

func TestListLiteralAndSubscript(t *testing.T) {
	out, err := runProgram(t, `
		let xs = [1, 2, 3];
		xs[1] = 20;
		print(xs[0] + xs[1] + xs[2]);
	`)
	require.Nil(t, err)
	assert.Equal(t, "24\n", out)
}

func TestMapLiteralAndDotSugar(t *testing.T) {
	out, err := runProgram(t, `
		let m = {'a': 1, 'b': 2};
		m.c = 3;
		print(m.a + m['b'] + m.c);
	`)
	require.Nil(t, err)
	assert.Equal(t, "6\n", out)
}

func TestAndOrShortCircuit(t *testing.T) {
	out, err := runProgram(t, `
		fun boom() { assert(false); return true; }
		print(false and boom());
		print(true or boom());
	`)
	require.Nil(t, err)
	assert.Equal(t, "false\ntrue\n", out)
}

func TestRuntimeErrorUndefinedVariable(t *testing.T) {
	_, err := runProgram(t, `print(undefinedThing);`)
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "undefined variable")
}

func TestRuntimeErrorTypeMismatch(t *testing.T) {
	_, err := runProgram(t, `print(1 + 'a');`)
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "operands must be")
}

func TestStackOverflowIsCatchableNotAPanic(t *testing.T) {
	out, err := runProgram(t, `
		fun loop() { return loop(); }
		loop();
		print('unreachable');
	`)
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "stack overflow")
	assert.Empty(t, out)
}

func TestNativeLenAppendAndDelete(t *testing.T) {
	out, err := runProgram(t, `
		let xs = [1, 2];
		append(xs, 3);
		print(len(xs));
		delete(xs, 0);
		print(xs[0]);
	`)
	require.Nil(t, err)
	assert.Equal(t, "3\n2\n", out)
}

func TestBuildMapRejectsUnhashableKey(t *testing.T) {
	_, err := runProgram(t, `
		let key = [1];
		let m = {key: 1};
	`)
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "unhashable")
}

// TestStressGCDuringRealExecution runs a program that allocates strings,
// lists, maps, closures and upvalues with StressGC on, so every single
// allocation triggers a full collection. This is the end-to-end guard for
// the heap's allocate-before-collect ordering: if a constructor ever
// linked+accounted an object before it could be rooted, this test would
// see a corrupted result (or a crash) instead of the expected output.
func TestStressGCDuringRealExecution(t *testing.T) {
	heap := NewHeap()
	heap.StressGC = true
	fn, cerr := Compile([]byte(`
		fun makeCounter() {
			let count = 0;
			fun increment() {
				count += 1;
				return count;
			}
			return increment;
		}
		let counter = makeCounter();
		let total = 0;
		let i = 0;
		while (i < 20) {
			let xs = [i, i + 1, 'n' + 'x'];
			let m = {'v': i};
			total = total + counter() + len(xs) + m['v'];
			i += 1;
		}
		print(total);
	`), heap)
	require.Nil(t, cerr)

	vm := NewVM(heap)
	var out bytes.Buffer
	vm.Stdout = &out
	RegisterNatives(vm)

	rerr := vm.Interpret(fn)
	require.Nil(t, rerr)

	// counter() yields 1..20 (sum 210), len(xs) is always 3 (sum 60), and
	// m['v'] replays i itself (sum 190): 210 + 60 + 190 == 460.
	assert.Equal(t, "460\n", out.String())
}

func TestWideConstantOperand(t *testing.T) {
	var b bytes.Buffer
	b.WriteString("let total = 0;\n")
	// Force the constant pool past 256 entries so OP_CONSTANT must emit a
	// WIDE-prefixed 16-bit index for at least one of these literals.
	for i := 0; i < 300; i++ {
		b.WriteString("total = total + ")
		b.WriteString("1")
		b.WriteString(";\n")
	}
	b.WriteString("print(total);\n")

	out, err := runProgram(t, b.String())
	require.Nil(t, err)
	assert.Equal(t, "300\n", out)
}
