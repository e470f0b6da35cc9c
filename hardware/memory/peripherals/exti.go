package peripherals

import (
	"encoding/json"

	"github.com/opsilicon/firmsim/hardware/memory/peripheral"
)

// Exti is the STM32F1-style External Interrupt/Event Controller. Lines are
// masked through IMR/EMR, edge-selected through RTSR/FTSR, and latched into
// PR -- firmware clears a pending line by writing a 1 back to its PR bit
// (rc_w1). SWIER lets firmware trigger a line in software.
type Exti struct {
	name string

	imr   uint32
	emr   uint32
	rtsr  uint32
	ftsr  uint32
	swier uint32
	pr    uint32
}

func NewExti(name string) *Exti {
	return &Exti{name: name}
}

func (e *Exti) Name() string { return e.name }

// TriggerLine latches line (0-19) into PR, as if the external signal it
// watches had fired. Used by test harnesses and peripherals that model a
// GPIO edge feeding into EXTI.
func (e *Exti) TriggerLine(line uint8) {
	if line < 20 {
		e.pr |= 1 << line
	}
}

func (e *Exti) readReg(reg uint32) uint32 {
	switch reg {
	case 0x00:
		return e.imr
	case 0x04:
		return e.emr
	case 0x08:
		return e.rtsr
	case 0x0C:
		return e.ftsr
	case 0x10:
		return e.swier
	case 0x14:
		return e.pr
	default:
		return 0
	}
}

func (e *Exti) writeReg(reg, value uint32) {
	switch reg {
	case 0x00:
		e.imr = value & 0x7FFFF
	case 0x04:
		e.emr = value & 0x7FFFF
	case 0x08:
		e.rtsr = value & 0x7FFFF
	case 0x0C:
		e.ftsr = value & 0x7FFFF
	case 0x10:
		diff := (e.swier ^ value) & value
		e.swier = value & 0x7FFFF
		e.pr |= diff
	case 0x14:
		e.pr &^= value
	}
}

func (e *Exti) ReadByte(offset uint32) uint8 {
	reg := offset &^ 3
	return byteLane(e.readReg(reg), offset&3)
}

func (e *Exti) WriteByte(offset uint32, value uint8) {
	reg := offset &^ 3
	if reg == 0x14 {
		// rc_w1: clear only the bits written in this lane
		e.writeReg(reg, uint32(value)<<(8*(offset&3)))
		return
	}
	e.writeReg(reg, setByteLane(e.readReg(reg), offset&3, value))
}

// Tick maps the set of active (pending AND unmasked) lines onto the
// STM32F1 EXTI IRQ layout: lines 0-4 each own a dedicated IRQ, lines 5-9
// share EXTI9_5, lines 10-15 share EXTI15_10.
func (e *Exti) Tick() peripheral.TickResult {
	active := e.pr & e.imr
	if active == 0 {
		return peripheral.TickResult{}
	}

	var irqs []uint32
	for i := uint32(0); i < 5; i++ {
		if active&(1<<i) != 0 {
			irqs = append(irqs, 6+i)
		}
	}
	if active&0x03E0 != 0 {
		irqs = append(irqs, 23)
	}
	if active&0xFC00 != 0 {
		irqs = append(irqs, 40)
	}
	return peripheral.TickResult{ExplicitIRQs: irqs}
}

type extiSnapshot struct {
	IMR, EMR, RTSR, FTSR, SWIER, PR uint32
}

func (e *Exti) Snapshot() json.RawMessage {
	b, _ := json.Marshal(extiSnapshot{e.imr, e.emr, e.rtsr, e.ftsr, e.swier, e.pr})
	return b
}

func (e *Exti) Restore(data json.RawMessage) error {
	var snap extiSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	e.imr, e.emr, e.rtsr, e.ftsr, e.swier, e.pr = snap.IMR, snap.EMR, snap.RTSR, snap.FTSR, snap.SWIER, snap.PR
	return nil
}
