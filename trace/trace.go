// Package trace shapes the four named waveform-trace signals of spec.md
// §6 (pc, mem_addr, mem_data, mem_we) into a stream of signal-change
// events through the machine.Observer hooks, grounded on
// `original_source/crates/cli/src/vcd_trace.rs`'s `VcdObserver` --
// SPEC_FULL.md §6 keeps the actual VCD file encoding (there, the `vcd`
// crate; here, any equivalent Go library) an external collaborator's job,
// so this package stops at producing Change values rather than writing a
// `.vcd` file itself.
package trace

import (
	"github.com/opsilicon/firmsim/hardware/cpu"
	"github.com/opsilicon/firmsim/hardware/memory/bus"
)

// Signal names one of the four wires spec.md §6 fixes for the waveform
// trace.
type Signal string

const (
	SignalPC      Signal = "pc"
	SignalMemAddr Signal = "mem_addr"
	SignalMemData Signal = "mem_data"
	SignalMemWE   Signal = "mem_we"
)

// Width returns the wire width spec.md §6 assigns to signal, in bits.
func (s Signal) Width() int {
	switch s {
	case SignalPC, SignalMemAddr:
		return 32
	case SignalMemData:
		return 8
	case SignalMemWE:
		return 1
	default:
		return 0
	}
}

// Change is one value change on one signal at one point on the trace's
// cycle-counted timeline (spec.md §6: "timescale is one unit per cycle").
type Change struct {
	Time   uint64
	Signal Signal
	Value  uint64
}

// Emitter implements machine.Observer, advancing an internal cycle-counted
// clock and pushing a Change to Sink for every pc update and every
// observed memory write. Sink is called synchronously on the stepping
// goroutine; a sink that blocks stalls the step loop.
type Emitter struct {
	Sink func(Change)

	time uint64
}

// NewEmitter constructs an Emitter that calls sink for every signal
// change.
func NewEmitter(sink func(Change)) *Emitter {
	return &Emitter{Sink: sink}
}

func (e *Emitter) emit(signal Signal, value uint64) {
	if e.Sink != nil {
		e.Sink(Change{Time: e.time, Signal: signal, Value: value})
	}
}

// OnStepStart emits the new pc value and drops mem_we low, matching
// vcd_trace.rs's on_step_start.
func (e *Emitter) OnStepStart(pc uint32) {
	e.emit(SignalPC, uint64(pc))
	e.emit(SignalMemWE, 0)
}

// OnMemoryWrite emits the written address and value and raises mem_we.
func (e *Emitter) OnMemoryWrite(addr uint32, value uint8) {
	e.emit(SignalMemAddr, uint64(addr))
	e.emit(SignalMemData, uint64(value))
	e.emit(SignalMemWE, 1)
}

// OnStepEnd advances the trace clock by the step's retired cycle count.
func (e *Emitter) OnStepEnd(pc uint32, outcome cpu.StepOutcome) {
	e.time += uint64(outcome.Cycles)
}

// OnPeripheralTick advances the trace clock by any cycles the tick round
// consumed.
func (e *Emitter) OnPeripheralTick(summary bus.TickSummary) {
	e.time += uint64(summary.CyclesConsumed)
}
