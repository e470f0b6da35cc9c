package peripherals

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUartCapturesWritesToDataRegister(t *testing.T) {
	u := NewUart("uart1", nil)
	u.EchoStdout = false

	for _, b := range []byte("hi") {
		u.WriteByte(0x04, b)
	}

	require.Equal(t, []byte("hi"), u.Captured())
}

func TestUartStatusRegisterAlwaysReportsReady(t *testing.T) {
	u := NewUart("uart1", nil)
	require.EqualValues(t, 0xC0, u.ReadByte(0x00))
}

func TestUartIgnoresWritesOutsideDataRegister(t *testing.T) {
	u := NewUart("uart1", nil)
	u.EchoStdout = false
	u.WriteByte(0x08, 0x41)
	require.Empty(t, u.Captured())
}
