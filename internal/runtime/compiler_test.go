package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileSyntaxErrorIsReported(t *testing.T) {
	heap := NewHeap()
	_, cerr := Compile([]byte(`let x = ;`), heap)
	require.NotNil(t, cerr)
	assert.Equal(t, 1, cerr.Line)
}

func TestCompileRedeclaredLocalIsAnError(t *testing.T) {
	heap := NewHeap()
	_, cerr := Compile([]byte(`
		{
			let x = 1;
			let x = 2;
		}
	`), heap)
	require.NotNil(t, cerr)
}

func TestCompileBreakOutsideLoopIsAnError(t *testing.T) {
	heap := NewHeap()
	_, cerr := Compile([]byte(`break;`), heap)
	require.NotNil(t, cerr)
}

func TestCompileReturnFromScriptIsAnError(t *testing.T) {
	heap := NewHeap()
	_, cerr := Compile([]byte(`return 1;`), heap)
	require.NotNil(t, cerr)
}

func TestCompileInvalidAssignmentTargetIsAnError(t *testing.T) {
	heap := NewHeap()
	_, cerr := Compile([]byte(`1 + 2 = 3;`), heap)
	require.NotNil(t, cerr)
}

func TestCompileValidProgramProducesAFunction(t *testing.T) {
	heap := NewHeap()
	fn, cerr := Compile([]byte(`let x = 1 + 2;`), heap)
	require.Nil(t, cerr)
	require.NotNil(t, fn)
	assert.Nil(t, fn.Name)
	assert.Greater(t, len(fn.Chunk.Code), 0)
}
