package peripherals

import (
	"encoding/json"

	"github.com/opsilicon/firmsim/hardware/memory/peripheral"
)

// Gpio is an STM32F1-style GPIO port: CRL/CRH hold the per-pin mode bits
// (accepted but not interpreted -- this simulator does not model analog or
// open-drain electrical behaviour), ODR is the output data firmware
// drives, IDR is the input data the core reads back, and BSRR/BRR give
// firmware the atomic set/reset-by-bit write it relies on to avoid a
// read-modify-write race on ODR.
//
// IDR defaults to mirroring ODR (a loopback convenient for firmware that
// reads back what it just wrote) until DriveInput is used to inject an
// external value, at which point that value sticks until the next
// DriveInput call.
type Gpio struct {
	name string

	crl, crh   uint32
	odr        uint32
	idr        uint32
	lckr       uint32
	idrDriven  bool
}

func NewGpio(name string) *Gpio {
	return &Gpio{name: name}
}

func (g *Gpio) Name() string { return g.name }

// DriveInput sets the port's external input value, overriding the ODR
// loopback default. Used by test harnesses and peripherals that model a
// signal feeding into this port (a button, an EXTI line's source).
func (g *Gpio) DriveInput(value uint32) {
	g.idr = value
	g.idrDriven = true
}

func (g *Gpio) readReg(reg uint32) uint32 {
	switch reg {
	case 0x00:
		return g.crl
	case 0x04:
		return g.crh
	case 0x08:
		if g.idrDriven {
			return g.idr
		}
		return g.odr
	case 0x0C:
		return g.odr
	case 0x18:
		return g.lckr
	default:
		return 0
	}
}

func (g *Gpio) writeReg(reg, value uint32) {
	switch reg {
	case 0x00:
		g.crl = value
	case 0x04:
		g.crh = value
	case 0x0C:
		g.odr = value
	case 0x10:
		// BSRR: low 16 bits set, high 16 bits reset.
		g.odr |= value & 0xFFFF
		g.odr &^= value >> 16
	case 0x14:
		// BRR: reset only.
		g.odr &^= value & 0xFFFF
	case 0x18:
		g.lckr = value
	}
}

func (g *Gpio) ReadByte(offset uint32) uint8 {
	reg := offset &^ 3
	return byteLane(g.readReg(reg), offset&3)
}

func (g *Gpio) WriteByte(offset uint32, value uint8) {
	reg := offset &^ 3
	g.writeReg(reg, setByteLane(g.readReg(reg), offset&3, value))
}

func (g *Gpio) Tick() peripheral.TickResult {
	return peripheral.TickResult{}
}

type gpioSnapshot struct {
	CRL, CRH, ODR, IDR, LCKR uint32
	IDRDriven                bool
}

func (g *Gpio) Snapshot() json.RawMessage {
	b, _ := json.Marshal(gpioSnapshot{g.crl, g.crh, g.odr, g.idr, g.lckr, g.idrDriven})
	return b
}

func (g *Gpio) Restore(data json.RawMessage) error {
	var snap gpioSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	g.crl, g.crh, g.odr, g.idr, g.lckr, g.idrDriven = snap.CRL, snap.CRH, snap.ODR, snap.IDR, snap.LCKR, snap.IDRDriven
	return nil
}
