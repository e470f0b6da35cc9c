package peripherals

import (
	"encoding/json"

	"github.com/opsilicon/firmsim/hardware/memory/peripheral"
)

// Dwt is the Data Watchpoint and Trace unit, reduced to its free-running
// cycle counter: CTRL.CYCCNTENA (bit 0) gates counting, and CYCCNT
// increments by one per tick while it is set.
type Dwt struct {
	name string

	ctrl   uint32
	cyccnt uint32
}

func NewDwt(name string) *Dwt {
	return &Dwt{name: name}
}

func (d *Dwt) Name() string { return d.name }

func (d *Dwt) readReg(reg uint32) uint32 {
	switch reg {
	case 0x00:
		return d.ctrl
	case 0x04:
		return d.cyccnt
	default:
		return 0
	}
}

func (d *Dwt) writeReg(reg, value uint32) {
	switch reg {
	case 0x00:
		d.ctrl = value
	case 0x04:
		d.cyccnt = value
	}
}

func (d *Dwt) ReadByte(offset uint32) uint8 {
	reg := offset &^ 3
	return byteLane(d.readReg(reg), offset&3)
}

func (d *Dwt) WriteByte(offset uint32, value uint8) {
	reg := offset &^ 3
	d.writeReg(reg, setByteLane(d.readReg(reg), offset&3, value))
}

// PeekByte reads without side effects -- identical to ReadByte here since
// the register bank has none, but implemented explicitly so debug tooling
// never needs to guess.
func (d *Dwt) PeekByte(offset uint32) uint8 {
	return d.ReadByte(offset)
}

func (d *Dwt) Tick() peripheral.TickResult {
	if d.ctrl&1 != 0 {
		d.cyccnt++
	}
	return peripheral.TickResult{}
}

type dwtSnapshot struct {
	Ctrl, Cyccnt uint32
}

func (d *Dwt) Snapshot() json.RawMessage {
	b, _ := json.Marshal(dwtSnapshot{d.ctrl, d.cyccnt})
	return b
}

func (d *Dwt) Restore(data json.RawMessage) error {
	var snap dwtSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	d.ctrl, d.cyccnt = snap.Ctrl, snap.Cyccnt
	return nil
}
