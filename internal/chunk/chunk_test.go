package chunk

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"loxvm/internal/value"
)

func TestLineAtMatchesWriteSequence(t *testing.T) {
	c := New()
	writes := []int{1, 1, 1, 2, 2, 3, 3, 3, 3}
	for _, line := range writes {
		c.Write(0x00, line)
	}
	for offset, wantLine := range writes {
		require.Equal(t, wantLine, c.LineAt(offset), "offset %d", offset)
	}
}

func TestAddConstantRoundTrips(t *testing.T) {
	c := New()
	v := value.NumberValue(3.25)
	idx := c.AddConstant(v)
	require.True(t, value.Equal(v, c.Constants[idx]))
}

func TestWriteConstantChoosesShortFormBelowThreshold(t *testing.T) {
	c := New()
	idx := c.WriteConstant(value.NumberValue(1), 1)
	require.Equal(t, 0, idx)
	require.Equal(t, OpConstant, OpCode(c.Code[0]))
	require.Equal(t, byte(0), c.Code[1])
}

func TestWriteConstantChoosesLongFormAboveThreshold(t *testing.T) {
	c := New()
	for i := 0; i <= MaxShortIndex; i++ {
		c.AddConstant(value.NumberValue(float64(i)))
	}
	idx := c.WriteConstant(value.NumberValue(999), 1)
	require.Equal(t, MaxShortIndex+1, idx)
	require.Equal(t, OpConstantLong, OpCode(c.Code[0]))
	require.Equal(t, uint32(idx), ReadLongIndex(c.Code, 1))
}

func TestPatchShortRoundTrips(t *testing.T) {
	c := New()
	at := c.WriteShort(0xffff, 1)
	c.PatchShort(at, 0x1234)
	require.Equal(t, uint16(0x1234), ReadShort(c.Code, at))
}

func TestDisassembleRendersConstantsAndTrailer(t *testing.T) {
	c := New()
	c.WriteConstant(value.NumberValue(1), 1)
	c.Write(byte(OpReturn), 1)

	var buf bytes.Buffer
	c.Disassemble(&buf, "test")
	require.Contains(t, buf.String(), "== test ==")
	require.Contains(t, buf.String(), "OP_RETURN")
	require.Contains(t, buf.String(), "constants")
}
