package peripherals

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestI2cResetValues(t *testing.T) {
	i := NewI2c("i2c1")
	require.EqualValues(t, 0, i.cr1)
	require.EqualValues(t, 0, i.cr2)
}

func TestI2cStartBit(t *testing.T) {
	i := NewI2c("i2c1")
	// CR1 bit 8 (START) lives in byte lane 1 of the CR1 word.
	i.WriteByte(0x01, 0x01)
	require.NotZero(t, i.sr1&0x01)
}

func TestI2cDataWrite(t *testing.T) {
	i := NewI2c("i2c1")
	i.sr1 = 0x02

	i.WriteByte(0x10, 0xAA)

	require.EqualValues(t, 0xAA, i.dr)
	require.Zero(t, i.sr1&0x02)
	require.NotZero(t, i.sr1&0x80)
}
