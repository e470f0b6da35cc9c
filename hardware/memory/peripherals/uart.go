package peripherals

import (
	"os"

	"github.com/opsilicon/firmsim/hardware/memory/peripheral"
	"github.com/opsilicon/firmsim/logger"
)

// Uart is a minimal UART mock: a byte written to its data register (offset
// 0x04, with 0x00 accepted as an alias some firmware uses for a combined
// SR/DR access) is appended to an in-memory capture buffer and, if
// EchoStdout is set, written straight through to the process's stdout.
// Reads always report the status register as ready (TXE and TC set) and
// the data register as zero; this simulator never drives UART RX.
type Uart struct {
	name string
	log  *logger.Logger

	capture     []byte
	EchoStdout  bool
}

// NewUart returns a Uart that echoes to stdout by default. log may be nil.
func NewUart(name string, log *logger.Logger) *Uart {
	return &Uart{name: name, log: log, EchoStdout: true}
}

func (u *Uart) Name() string { return u.name }

// Captured returns every byte written to the data register so far, in
// write order.
func (u *Uart) Captured() []byte {
	out := make([]byte, len(u.capture))
	copy(out, u.capture)
	return out
}

func (u *Uart) ReadByte(offset uint32) uint8 {
	switch offset {
	case 0x00:
		return 0xC0 // SR: TXE | TC
	default:
		return 0x00 // DR and anything else
	}
}

func (u *Uart) WriteByte(offset uint32, value uint8) {
	if offset != 0x00 && offset != 0x04 {
		return
	}
	u.capture = append(u.capture, value)
	if u.log != nil {
		u.log.Logf(logger.Allow, u.name, "write %#02x", value)
	}
	if u.EchoStdout {
		os.Stdout.Write([]byte{value})
	}
}

func (u *Uart) Tick() peripheral.TickResult {
	return peripheral.TickResult{}
}
