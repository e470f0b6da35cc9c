package peripherals

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScbVtorIsSharedWithCaller(t *testing.T) {
	vtor := new(uint32)
	*vtor = 0x0800_0000
	s := NewScb("scb", vtor)

	require.EqualValues(t, 0x00, s.ReadByte(0x08))
	require.EqualValues(t, 0x00, s.ReadByte(0x09))
	require.EqualValues(t, 0x00, s.ReadByte(0x0A))
	require.EqualValues(t, 0x08, s.ReadByte(0x0B))

	s.WriteByte(0x08, 0x00)
	s.WriteByte(0x09, 0x10)
	s.WriteByte(0x0A, 0x00)
	s.WriteByte(0x0B, 0x20)
	require.EqualValues(t, 0x2000_1000, *vtor)
}

func TestScbCpuidReportsFixedPart(t *testing.T) {
	vtor := new(uint32)
	s := NewScb("scb", vtor)
	require.EqualValues(t, 0x41, s.ReadByte(0x03))
}
