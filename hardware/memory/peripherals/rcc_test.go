package peripherals

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRccF1Offsets(t *testing.T) {
	r := NewRcc("rcc", RccStm32F1)
	r.WriteByte(0x18, 0xAA)
	r.WriteByte(0x1C, 0x55)
	require.EqualValues(t, 0xAA, r.ReadByte(0x18))
	require.EqualValues(t, 0x55, r.ReadByte(0x1C))
}

func TestRccV2Offsets(t *testing.T) {
	r := NewRcc("rcc", RccStm32V2)
	r.WriteByte(0xA4, 0xCC)
	r.WriteByte(0x9C, 0x33)
	require.EqualValues(t, 0xCC, r.ReadByte(0xA4))
	require.EqualValues(t, 0x33, r.ReadByte(0x9C))
	require.EqualValues(t, 0x00, r.ReadByte(0x18))
}

func TestParseRccLayout(t *testing.T) {
	for _, s := range []string{"stm32f1", "F1", "legacy"} {
		layout, err := ParseRccLayout(s)
		require.NoError(t, err)
		require.Equal(t, RccStm32F1, layout)
	}
	for _, s := range []string{"stm32v2", "h5", "modern"} {
		layout, err := ParseRccLayout(s)
		require.NoError(t, err)
		require.Equal(t, RccStm32V2, layout)
	}
	_, err := ParseRccLayout("bogus")
	require.Error(t, err)
}
