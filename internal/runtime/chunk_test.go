package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChunkWriteAndConstants(t *testing.T) {
	c := NewChunk()
	idx := c.AddConstant(Number(3.14))
	c.Write(byte(OpConstant), 1)
	c.Write(byte(idx), 1)
	c.Write(byte(OpReturn), 1)

	assert.Equal(t, 3, len(c.Code))
	assert.Equal(t, 3.14, c.Constants[idx].AsNumber())
}

func TestChunkLineTableCumulativeLookup(t *testing.T) {
	c := NewChunk()
	// Two single-byte instructions on line 1, one on line 2, two on line 4
	// (line 3 has no instructions at all).
	c.Write(0x00, 1)
	c.Write(0x01, 1)
	c.Write(0x02, 2)
	c.Write(0x03, 4)
	c.Write(0x04, 4)

	assert.Equal(t, 1, c.GetLine(0))
	assert.Equal(t, 1, c.GetLine(1))
	assert.Equal(t, 2, c.GetLine(2))
	assert.Equal(t, 4, c.GetLine(3))
	assert.Equal(t, 4, c.GetLine(4))
}

func TestOpCodeString(t *testing.T) {
	assert.Equal(t, "ADD", OpAdd.String())
	assert.Equal(t, "UNKNOWN", OpCode(255).String())
}
