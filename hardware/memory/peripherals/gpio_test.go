package peripherals

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGpioBsrrSetsAndResetsWithoutReadModifyWrite(t *testing.T) {
	g := NewGpio("gpioa")
	g.WriteByte(0x10, 0x01) // BSRR bit 0 -> set pin 0
	require.EqualValues(t, 0x01, g.odr&0x01)

	g.WriteByte(0x14, 0x01) // BRR bit 0 -> reset pin 0
	require.Zero(t, g.odr&0x01)
}

func TestGpioIdrMirrorsOdrUntilDriven(t *testing.T) {
	g := NewGpio("gpioa")
	g.WriteByte(0x0C, 0x05) // ODR = 0x05
	require.EqualValues(t, 0x05, g.ReadByte(0x08))

	g.DriveInput(0xAA)
	require.EqualValues(t, 0xAA, g.ReadByte(0x08))
}
