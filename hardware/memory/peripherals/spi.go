package peripherals

import (
	"encoding/json"

	"github.com/opsilicon/firmsim/hardware/memory/peripheral"
)

// Spi is an STM32F1-compatible SPI peripheral. Like I2c its registers are
// 16-bit on 32-bit-aligned offsets. A write to DR is acknowledged
// immediately: RXNE and TXE both set, BSY cleared, modelling an
// instantaneous shift rather than a clocked transfer.
type Spi struct {
	name string

	cr1, cr2           uint16
	sr, dr             uint16
	crcpr              uint16
	rxcrcr, txcrcr     uint16
	i2scfgr, i2spr     uint16
}

func NewSpi(name string) *Spi {
	return &Spi{name: name, sr: 0x0002}
}

func (s *Spi) Name() string { return s.name }

func (s *Spi) readReg(reg uint32) uint16 {
	switch reg {
	case 0x00:
		return s.cr1
	case 0x04:
		return s.cr2
	case 0x08:
		return s.sr
	case 0x0C:
		return s.dr
	case 0x10:
		return s.crcpr
	case 0x14:
		return s.rxcrcr
	case 0x18:
		return s.txcrcr
	case 0x1C:
		return s.i2scfgr
	case 0x20:
		return s.i2spr
	default:
		return 0
	}
}

func (s *Spi) writeReg(reg uint32, value uint16) {
	switch reg {
	case 0x00:
		s.cr1 = value
	case 0x04:
		s.cr2 = value
	case 0x08:
		s.sr = value
	case 0x0C:
		s.dr = value
		s.sr |= 0x0001 // RXNE
		s.sr |= 0x0002 // TXE
		s.sr &^= 0x0080
	}
}

func (s *Spi) ReadByte(offset uint32) uint8 {
	reg := offset &^ 3
	return uint8(s.readReg(reg) >> (8 * (offset & 3)))
}

func (s *Spi) WriteByte(offset uint32, value uint8) {
	reg := offset &^ 3
	shift := 8 * (offset & 3)
	cur := s.readReg(reg)
	cur &^= 0xFF << shift
	cur |= uint16(value) << shift
	s.writeReg(reg, cur)
}

func (s *Spi) Tick() peripheral.TickResult {
	return peripheral.TickResult{}
}

type spiSnapshot struct {
	CR1, CR2, SR, DR, CRCPR, RXCRCR, TXCRCR, I2SCFGR, I2SPR uint16
}

func (s *Spi) Snapshot() json.RawMessage {
	b, _ := json.Marshal(spiSnapshot{s.cr1, s.cr2, s.sr, s.dr, s.crcpr, s.rxcrcr, s.txcrcr, s.i2scfgr, s.i2spr})
	return b
}

func (s *Spi) Restore(data json.RawMessage) error {
	var snap spiSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	s.cr1, s.cr2, s.sr, s.dr = snap.CR1, snap.CR2, snap.SR, snap.DR
	s.crcpr, s.rxcrcr, s.txcrcr = snap.CRCPR, snap.RXCRCR, snap.TXCRCR
	s.i2scfgr, s.i2spr = snap.I2SCFGR, snap.I2SPR
	return nil
}
