package peripherals

import (
	"encoding/json"

	"github.com/opsilicon/firmsim/hardware/memory/peripheral"
)

// Systick is the Cortex-M SysTick timer, conventionally mapped at
// 0xE000E010: CSR enables counting and its interrupt, RVR holds the
// 24-bit reload value, CVR the live countdown, and CALIB reads a fixed
// 0x40000000 (SKEW set, NOREF clear, TENMS zero).
type Systick struct {
	name string

	csr   uint32
	rvr   uint32
	cvr   uint32
	calib uint32
}

func NewSystick(name string) *Systick {
	return &Systick{name: name, calib: 0x4000_0000}
}

func (s *Systick) Name() string { return s.name }

func (s *Systick) readReg(reg uint32) uint32 {
	switch reg {
	case 0x00:
		return s.csr
	case 0x04:
		return s.rvr
	case 0x08:
		return s.cvr
	case 0x0C:
		return s.calib
	default:
		return 0
	}
}

func (s *Systick) writeReg(reg, value uint32) {
	switch reg {
	case 0x00:
		s.csr = value & 0x7
	case 0x04:
		s.rvr = value & 0x00FF_FFFF
	case 0x08:
		// Any write to CVR clears it and the COUNTFLAG bit.
		s.cvr = 0
		s.csr &^= 0x10000
	}
}

func (s *Systick) ReadByte(offset uint32) uint8 {
	reg := offset &^ 3
	return byteLane(s.readReg(reg), offset&3)
}

func (s *Systick) WriteByte(offset uint32, value uint8) {
	reg := offset &^ 3
	s.writeReg(reg, setByteLane(s.readReg(reg), offset&3, value))
}

func (s *Systick) Tick() peripheral.TickResult {
	if s.csr&0x1 == 0 {
		return peripheral.TickResult{}
	}
	if s.cvr == 0 {
		s.cvr = s.rvr
		s.csr |= 0x10000
		return peripheral.TickResult{Cycles: 1, ImplicitIRQ: s.csr&0x2 != 0}
	}
	s.cvr--
	return peripheral.TickResult{Cycles: 1}
}

type systickSnapshot struct {
	CSR, RVR, CVR, CALIB uint32
}

func (s *Systick) Snapshot() json.RawMessage {
	b, _ := json.Marshal(systickSnapshot{s.csr, s.rvr, s.cvr, s.calib})
	return b
}

func (s *Systick) Restore(data json.RawMessage) error {
	var snap systickSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	s.csr, s.rvr, s.cvr, s.calib = snap.CSR, snap.RVR, snap.CVR, snap.CALIB
	return nil
}
