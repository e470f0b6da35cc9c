package peripherals

import (
	"encoding/json"

	"github.com/opsilicon/firmsim/hardware/memory/peripheral"
)

// Scb is the System Control Block. VTOR is a shared pointer rather than a
// plain field: the Machine constructs it once and hands the same address
// to both the Scb and the CPU core, so a firmware write to VTOR is visible
// to the core's exception-entry logic on its very next vector fetch
// without the core and the peripheral needing to poll each other (the same
// shared-reference pattern used for the interrupt.Controller).
type Scb struct {
	name string

	cpuid uint32
	icsr  uint32
	vtor  *uint32
	aircr uint32
	scr   uint32
	ccr   uint32
	shpr1 uint32
	shpr2 uint32
	shpr3 uint32
}

// NewScb returns an Scb sharing vtor with the CPU core that owns it.
// cpuid reports a Cortex-M4 r0p1 part number, matching the reference
// implementation's fixed identity register.
func NewScb(name string, vtor *uint32) *Scb {
	return &Scb{name: name, cpuid: 0x410F_C241, vtor: vtor}
}

func (s *Scb) Name() string { return s.name }

func (s *Scb) readReg(reg uint32) uint32 {
	switch reg {
	case 0x00:
		return s.cpuid
	case 0x04:
		return s.icsr
	case 0x08:
		return *s.vtor
	case 0x0C:
		return s.aircr
	case 0x10:
		return s.scr
	case 0x14:
		return s.ccr
	case 0x18:
		return s.shpr1
	case 0x1C:
		return s.shpr2
	case 0x20:
		return s.shpr3
	default:
		return 0
	}
}

func (s *Scb) writeReg(reg, value uint32) {
	switch reg {
	case 0x04:
		s.icsr = value
	case 0x08:
		*s.vtor = value
	case 0x0C:
		s.aircr = value
	case 0x10:
		s.scr = value
	case 0x14:
		s.ccr = value
	case 0x18:
		s.shpr1 = value
	case 0x1C:
		s.shpr2 = value
	case 0x20:
		s.shpr3 = value
	}
}

func (s *Scb) ReadByte(offset uint32) uint8 {
	reg := offset &^ 3
	return byteLane(s.readReg(reg), offset&3)
}

func (s *Scb) WriteByte(offset uint32, value uint8) {
	reg := offset &^ 3
	s.writeReg(reg, setByteLane(s.readReg(reg), offset&3, value))
}

func (s *Scb) Tick() peripheral.TickResult {
	return peripheral.TickResult{}
}

type scbSnapshot struct {
	CPUID, ICSR, VTOR, AIRCR, SCR, CCR, SHPR1, SHPR2, SHPR3 uint32
}

func (s *Scb) Snapshot() json.RawMessage {
	b, _ := json.Marshal(scbSnapshot{s.cpuid, s.icsr, *s.vtor, s.aircr, s.scr, s.ccr, s.shpr1, s.shpr2, s.shpr3})
	return b
}

func (s *Scb) Restore(data json.RawMessage) error {
	var snap scbSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	s.cpuid, s.icsr, *s.vtor, s.aircr = snap.CPUID, snap.ICSR, snap.VTOR, snap.AIRCR
	s.scr, s.ccr, s.shpr1, s.shpr2, s.shpr3 = snap.SCR, snap.CCR, snap.SHPR1, snap.SHPR2, snap.SHPR3
	return nil
}
