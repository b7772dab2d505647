package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNativeHasOnListAndMap(t *testing.T) {
	out, err := runProgram(t, `
		let xs = [1, 2, 3];
		print(has(xs, 2));
		print(has(xs, 9));
		let m = {'a': 1};
		print(has(m, 'a'));
		print(has(m, 'z'));
	`)
	require.Nil(t, err)
	assert.Equal(t, "true\nfalse\ntrue\nfalse\n", out)
}

func TestNativeKeysValuesItems(t *testing.T) {
	out, err := runProgram(t, `
		let m = {'a': 1};
		print(len(keys(m)));
		print(len(values(m)));
		let pairs = items(m);
		print(pairs[0][0]);
		print(pairs[0][1]);
	`)
	require.Nil(t, err)
	assert.Equal(t, "1\n1\na\n1\n", out)
}

func TestNativeNumParsesStrings(t *testing.T) {
	out, err := runProgram(t, `print(num('42') + 1);`)
	require.Nil(t, err)
	assert.Equal(t, "43\n", out)
}

func TestNativeNumCoercesBooleans(t *testing.T) {
	out, err := runProgram(t, `
		print(num(true));
		print(num(false));
	`)
	require.Nil(t, err)
	assert.Equal(t, "1\n0\n", out)
}

func TestNativeNumRejectsTrailingGarbage(t *testing.T) {
	_, err := runProgram(t, `num('3abc');`)
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "could not parse")
}

func TestNativeAssertRaisesRuntimeError(t *testing.T) {
	_, err := runProgram(t, `assert(1 == 2);`)
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "assertion failed")
}

func TestNativeClockReturnsANumber(t *testing.T) {
	out, err := runProgram(t, `print(clock() >= 0);`)
	require.Nil(t, err)
	assert.Equal(t, "true\n", out)
}

func TestNativeArityErrors(t *testing.T) {
	_, err := runProgram(t, `len(1, 2);`)
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "len()")
}
