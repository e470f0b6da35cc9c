package peripherals

import (
	"encoding/json"

	"github.com/opsilicon/firmsim/hardware/interrupt"
	"github.com/opsilicon/firmsim/hardware/memory/peripheral"
)

// Nvic is the memory-mapped face of the Nested Vectored Interrupt
// Controller. It owns no state of its own: every register read or write
// is forwarded to the shared *interrupt.Controller that machine.Machine
// also polls once per step (via Controller.Acknowledge) to feed the CPU
// core, so the controller's pending/enable words are the single source of
// truth (spec Design Note 9).
//
// Register layout matches the real NVIC: ISER0-7 at 0x000-0x01F, ICER0-7
// at 0x080-0x09F, ISPR0-7 at 0x100-0x11F, ICPR0-7 at 0x180-0x19F. Writing 1
// to an ISER/ISPR bit sets it; writing 1 to an ICER/ICPR bit clears it --
// writing 0 anywhere is a no-op, matching the silicon's write-one
// semantics.
type Nvic struct {
	name       string
	controller *interrupt.Controller
}

func NewNvic(name string, controller *interrupt.Controller) *Nvic {
	return &Nvic{name: name, controller: controller}
}

func (n *Nvic) Name() string { return n.name }

func (n *Nvic) readReg(reg uint32) uint32 {
	switch {
	case reg < 0x20:
		return n.controller.EnableWord(int(reg / 4))
	case reg >= 0x80 && reg < 0xA0:
		return n.controller.EnableWord(int((reg - 0x80) / 4))
	case reg >= 0x100 && reg < 0x120:
		return n.controller.PendingWord(int((reg - 0x100) / 4))
	case reg >= 0x180 && reg < 0x1A0:
		return n.controller.PendingWord(int((reg - 0x180) / 4))
	default:
		return 0
	}
}

func (n *Nvic) ReadByte(offset uint32) uint8 {
	reg := offset &^ 3
	return byteLane(n.readReg(reg), offset&3)
}

func (n *Nvic) WriteByte(offset uint32, value uint8) {
	reg := offset &^ 3
	lane := offset & 3
	mask := uint32(value) << (8 * lane)

	switch {
	case reg < 0x20:
		n.controller.SetEnableWord(int(reg/4), true, mask)
	case reg >= 0x80 && reg < 0xA0:
		n.controller.SetEnableWord(int((reg-0x80)/4), false, mask)
	case reg >= 0x100 && reg < 0x120:
		n.controller.SetPendingWord(int((reg-0x100)/4), true, mask)
	case reg >= 0x180 && reg < 0x1A0:
		n.controller.SetPendingWord(int((reg-0x180)/4), false, mask)
	}
}

func (n *Nvic) Tick() peripheral.TickResult {
	return peripheral.TickResult{}
}

// nvicSnapshot mirrors the shared Controller's pending/enable words --
// Nvic has no state of its own to serialise, only this borrowed copy.
type nvicSnapshot struct {
	Pending [8]uint32
	Enable  [8]uint32
}

// Snapshot captures the shared controller's pending/enable words. Since
// Machine.Step polls the same controller to feed the CPU core, restoring
// this peripheral is what makes a pending-but-not-yet-delivered IRQ
// survive a snapshot round-trip.
func (n *Nvic) Snapshot() json.RawMessage {
	pending, enable := n.controller.Snapshot()
	b, _ := json.Marshal(nvicSnapshot{Pending: pending, Enable: enable})
	return b
}

func (n *Nvic) Restore(data json.RawMessage) error {
	var s nvicSnapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	n.controller.Restore(s.Pending, s.Enable)
	return nil
}
