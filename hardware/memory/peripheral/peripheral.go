// Package peripheral defines the uniform contract that every memory-mapped
// device on the Bus implements. A peripheral is a behaviour, not a concrete
// entity: byte-granular read/write, a tick that advances internal state, and
// optional peek/snapshot/restore hooks for tooling.
//
// Concrete devices live in the sibling peripherals package; this package
// only names the shape they share, following the teacher's micro-interface
// split (peripheral / peripheralMemory / timer in
// hardware/memory/cartridge/arm/peripherals.go) generalised to a single
// Device interface plus two optional capability interfaces.
package peripheral

import "encoding/json"

// Device is the contract every memory-mapped peripheral implements.
type Device interface {
	// ReadByte returns the byte at offset relative to the peripheral's base
	// address.
	ReadByte(offset uint32) uint8

	// WriteByte writes the byte at offset relative to the peripheral's base
	// address. Side effects (clearing a status bit, starting a
	// transaction) happen synchronously within this call.
	WriteByte(offset uint32, value uint8)

	// Tick advances the peripheral's internal state by one simulated step.
	// This is the only place a peripheral may update timers, shift FIFO
	// contents, or latch interrupt flags.
	Tick() TickResult

	// Name identifies the peripheral for snapshot keys and diagnostics.
	Name() string
}

// Peeker is implemented by peripherals that support a non-mutating,
// side-effect-free read for test and debug tooling.
type Peeker interface {
	PeekByte(offset uint32) uint8
}

// Snapshotter is implemented by peripherals with persistent internal state.
// A peripheral with no meaningful state (the stub peripheral, for example)
// need not implement it.
type Snapshotter interface {
	Snapshot() json.RawMessage
	Restore(json.RawMessage) error
}

// DMARequest describes a single DMA transfer queued by a peripheral's Tick.
// The DMA controller peripheral (not the bus) drains these on its own tick
// and performs the byte copy through the bus, so that the copy is subject
// to the same address resolution and side effects a firmware-initiated
// access would be.
type DMARequest struct {
	Peripheral string
	Channel    uint8
	SrcAddr    uint32
	DstAddr    uint32
	Length     uint32
}

// TickResult is returned by Device.Tick and aggregated by the bus into the
// interrupt controller and the pending DMA queue.
type TickResult struct {
	// Cycles is the number of simulated cycles this tick consumed.
	Cycles uint32

	// ImplicitIRQ, when true, asserts the peripheral's single configured
	// IRQ line (set by the bus at peripheral-entry construction time).
	ImplicitIRQ bool

	// ExplicitIRQs lists additional IRQ numbers raised directly by this
	// tick, used by multi-source peripherals such as EXTI.
	ExplicitIRQs []uint32

	// DMA lists DMA transfers requested by this tick, if any.
	DMA []DMARequest
}
