package peripherals

import (
	"encoding/json"

	"github.com/opsilicon/firmsim/hardware/memory/peripheral"
)

// Afio is the STM32F1 Alternate Function I/O block. Its only behaviour
// beyond a plain register bank is EXTICR, which routes each of the 16
// EXTI lines to one of the GPIO ports (A, B, C, ...).
type Afio struct {
	name string

	evcr   uint32
	mapr   uint32
	exticr [4]uint32
	mapr2  uint32
}

func NewAfio(name string) *Afio {
	return &Afio{name: name}
}

func (a *Afio) Name() string { return a.name }

// ExtiMapping returns the GPIO port index (0=A, 1=B, ...) currently routed
// to EXTI line (0-15).
func (a *Afio) ExtiMapping(line uint8) uint8 {
	if line >= 16 {
		return 0
	}
	reg := line / 4
	shift := (line % 4) * 4
	return uint8((a.exticr[reg] >> shift) & 0xF)
}

func (a *Afio) readReg(reg uint32) uint32 {
	switch reg {
	case 0x00:
		return a.evcr
	case 0x04:
		return a.mapr
	case 0x08:
		return a.exticr[0]
	case 0x0C:
		return a.exticr[1]
	case 0x10:
		return a.exticr[2]
	case 0x14:
		return a.exticr[3]
	case 0x1C:
		return a.mapr2
	default:
		return 0
	}
}

func (a *Afio) writeReg(reg, value uint32) {
	switch reg {
	case 0x00:
		a.evcr = value
	case 0x04:
		a.mapr = value
	case 0x08:
		a.exticr[0] = value
	case 0x0C:
		a.exticr[1] = value
	case 0x10:
		a.exticr[2] = value
	case 0x14:
		a.exticr[3] = value
	case 0x1C:
		a.mapr2 = value
	}
}

func (a *Afio) ReadByte(offset uint32) uint8 {
	reg := offset &^ 3
	return byteLane(a.readReg(reg), offset&3)
}

func (a *Afio) WriteByte(offset uint32, value uint8) {
	reg := offset &^ 3
	a.writeReg(reg, setByteLane(a.readReg(reg), offset&3, value))
}

func (a *Afio) Tick() peripheral.TickResult {
	return peripheral.TickResult{}
}

type afioSnapshot struct {
	EVCR, MAPR, MAPR2 uint32
	EXTICR            [4]uint32
}

func (a *Afio) Snapshot() json.RawMessage {
	b, _ := json.Marshal(afioSnapshot{a.evcr, a.mapr, a.mapr2, a.exticr})
	return b
}

func (a *Afio) Restore(data json.RawMessage) error {
	var snap afioSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	a.evcr, a.mapr, a.mapr2, a.exticr = snap.EVCR, snap.MAPR, snap.MAPR2, snap.EXTICR
	return nil
}
