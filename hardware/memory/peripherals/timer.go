package peripherals

import (
	"encoding/json"

	"github.com/opsilicon/firmsim/hardware/memory/peripheral"
)

// Timer is a general-purpose STM32 TIM2-TIM5 compatible counter: CR1/DIER
// control the run and interrupt-enable bits, PSC/ARR set the prescaler and
// auto-reload value, and SR.UIF latches on overflow until cleared by a
// write-zero.
type Timer struct {
	name string

	cr1  uint32
	dier uint32
	sr   uint32
	egr  uint32
	cnt  uint32
	psc  uint32
	arr  uint32

	pscCnt uint32
}

// NewTimer returns a Timer reset to its silicon defaults (ARR at its
// maximum, everything else zeroed).
func NewTimer(name string) *Timer {
	return &Timer{name: name, arr: 0xFFFF}
}

func (t *Timer) Name() string { return t.name }

func (t *Timer) readReg(reg uint32) uint32 {
	switch reg {
	case 0x00:
		return t.cr1
	case 0x0C:
		return t.dier
	case 0x10:
		return t.sr
	case 0x14:
		return t.egr
	case 0x24:
		return t.cnt
	case 0x28:
		return t.psc
	case 0x2C:
		return t.arr
	default:
		return 0
	}
}

func (t *Timer) writeReg(reg, value uint32) {
	switch reg {
	case 0x00:
		t.cr1 = value & 0x3FF
	case 0x0C:
		t.dier = value & 0x5F
	case 0x10:
		// SR is rc_w0 for status flags: writing 0 to a bit clears it, a
		// written 1 leaves the current value alone.
		t.sr &= value & 0x1FFFF
	case 0x14:
		t.egr = value & 0xFF
		if t.egr&0x1 != 0 {
			t.cnt = 0
			t.pscCnt = 0
			t.sr |= 1
		}
	case 0x24:
		t.cnt = value & 0xFFFF
	case 0x28:
		t.psc = value & 0xFFFF
	case 0x2C:
		t.arr = value & 0xFFFF
	}
}

func (t *Timer) ReadByte(offset uint32) uint8 {
	reg := offset &^ 3
	return byteLane(t.readReg(reg), offset&3)
}

func (t *Timer) WriteByte(offset uint32, value uint8) {
	reg := offset &^ 3
	t.writeReg(reg, setByteLane(t.readReg(reg), offset&3, value))
}

func (t *Timer) Tick() peripheral.TickResult {
	if t.sr&1 != 0 && t.dier&1 != 0 {
		return peripheral.TickResult{Cycles: 1, ImplicitIRQ: true}
	}
	if t.cr1&0x1 == 0 {
		return peripheral.TickResult{}
	}

	t.pscCnt++
	if t.pscCnt > t.psc {
		t.pscCnt = 0
		t.cnt++
		if t.cnt > t.arr {
			t.cnt = 0
			t.sr |= 1
			return peripheral.TickResult{Cycles: 1, ImplicitIRQ: t.dier&1 != 0}
		}
	}
	return peripheral.TickResult{Cycles: 1}
}

type timerSnapshot struct {
	CR1, DIER, SR, EGR, CNT, PSC, ARR uint32
}

func (t *Timer) Snapshot() json.RawMessage {
	b, _ := json.Marshal(timerSnapshot{t.cr1, t.dier, t.sr, t.egr, t.cnt, t.psc, t.arr})
	return b
}

func (t *Timer) Restore(data json.RawMessage) error {
	var s timerSnapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	t.cr1, t.dier, t.sr, t.egr, t.cnt, t.psc, t.arr = s.CR1, s.DIER, s.SR, s.EGR, s.CNT, s.PSC, s.ARR
	return nil
}
