package peripherals

import (
	"encoding/json"

	"github.com/opsilicon/firmsim/hardware/memory/peripheral"
)

// copier is the one method Dma needs from the bus: a byte-range copy that
// goes through the same address resolution and peripheral side effects a
// CPU-driven access would. Expressed as a narrow interface, following the
// teacher's micro-interface style, rather than importing the bus package
// wholesale -- bus.Bus satisfies it without either package needing to know
// about the other's full surface.
type copier interface {
	CopyBytes(src, dst, length uint32) error
}

// Dma drains the DMARequest values other peripherals queue on their Tick
// (a UART wanting its receive buffer moved into RAM, a timer driving a
// memory-to-peripheral transfer) and performs each as a single
// instantaneous bus copy, setting the channel's ISR bit and raising the
// peripheral's implicit IRQ after each completed transfer. Requests are
// not supplied through ReadByte/WriteByte;
// Machine.Step feeds them in via Enqueue after collecting the bus's
// per-round TickSummary.
type Dma struct {
	name string
	bus  copier

	cr      uint32
	isr     uint32
	pending []peripheral.DMARequest
}

// NewDma returns a Dma engine that performs its copies against bus.
func NewDma(name string, bus copier) *Dma {
	return &Dma{name: name, bus: bus}
}

func (d *Dma) Name() string { return d.name }

// Enqueue adds requests queued by other peripherals' Tick this round. It is
// called by the Machine after draining the bus's TickSummary, not by the
// bus itself, keeping the bus free of any dependency on this package.
func (d *Dma) Enqueue(reqs []peripheral.DMARequest) {
	d.pending = append(d.pending, reqs...)
}

func (d *Dma) readReg(reg uint32) uint32 {
	switch reg {
	case 0x00:
		return d.cr
	case 0x04:
		return d.isr
	default:
		return 0
	}
}

func (d *Dma) writeReg(reg, value uint32) {
	switch reg {
	case 0x00:
		d.cr = value
	case 0x04:
		// ISR is rc_w1: writing 1 to a bit clears it.
		d.isr &^= value
	}
}

func (d *Dma) ReadByte(offset uint32) uint8 {
	reg := offset &^ 3
	return byteLane(d.readReg(reg), offset&3)
}

func (d *Dma) WriteByte(offset uint32, value uint8) {
	reg := offset &^ 3
	if reg == 0x04 {
		// rc_w1: clear only the bits written in this lane
		d.writeReg(reg, uint32(value)<<(8*(offset&3)))
		return
	}
	d.writeReg(reg, setByteLane(d.readReg(reg), offset&3, value))
}

// Tick performs one queued transfer per call (the engine is modelled as
// completing a whole channel transfer within a single tick, rather than
// streaming it byte-by-byte across many ticks) and raises an implicit IRQ
// on completion if the enable bit is set.
func (d *Dma) Tick() peripheral.TickResult {
	if d.cr&0x1 == 0 || len(d.pending) == 0 {
		return peripheral.TickResult{}
	}

	req := d.pending[0]
	d.pending = d.pending[1:]

	if err := d.bus.CopyBytes(req.SrcAddr, req.DstAddr, req.Length); err != nil {
		return peripheral.TickResult{Cycles: req.Length}
	}

	d.isr |= 1 << (req.Channel & 0x1F)
	return peripheral.TickResult{Cycles: req.Length, ImplicitIRQ: true}
}

type dmaSnapshot struct {
	CR, ISR uint32
	Pending []peripheral.DMARequest
}

func (d *Dma) Snapshot() json.RawMessage {
	b, _ := json.Marshal(dmaSnapshot{d.cr, d.isr, d.pending})
	return b
}

func (d *Dma) Restore(data json.RawMessage) error {
	var snap dmaSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	d.cr, d.isr, d.pending = snap.CR, snap.ISR, snap.Pending
	return nil
}
