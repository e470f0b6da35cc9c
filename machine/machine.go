// Package machine binds one CPU core to one Bus and drives the
// fetch-decode-execute-tick loop: spec.md §4.6 generalised from the
// teacher's top-level emulation root (hardware/doc.go's description of a
// single CPU wired to a single memory bus, extended here with the
// peripheral tick and interrupt-delivery steps the 6502/TIA pairing never
// needed) to an architecture-selectable core over an MMIO address space.
package machine

import (
	"encoding/json"
	"time"

	"github.com/opsilicon/firmsim/config"
	"github.com/opsilicon/firmsim/errors"
	"github.com/opsilicon/firmsim/hardware/cpu"
	"github.com/opsilicon/firmsim/hardware/cpu/armthumb"
	"github.com/opsilicon/firmsim/hardware/cpu/riscv32"
	"github.com/opsilicon/firmsim/hardware/image"
	"github.com/opsilicon/firmsim/hardware/interrupt"
	"github.com/opsilicon/firmsim/hardware/memory/bus"
	"github.com/opsilicon/firmsim/hardware/memory/peripheral"
	"github.com/opsilicon/firmsim/hardware/memory/peripherals"
	"github.com/opsilicon/firmsim/logger"
	"github.com/opsilicon/firmsim/snapshot"
)

// SimulationConfig is an alias for config.SimulationConfig, kept here so
// existing callers can keep writing machine.SimulationConfig{...}. The
// underlying type lives in config so the snapshot codec can embed it
// without machine importing snapshot and snapshot importing machine.
type SimulationConfig = config.SimulationConfig

// RunResult is the in-process result of a Run call -- the counterpart of
// the external test-script result artifact described by spec.md §6. The
// CLI driver (out of scope here) serialises this to JSON and maps it to an
// exit code.
type RunResult struct {
	StopReason    cpu.StopReason
	StepsExecuted uint64
	TotalCycles   uint64
	UARTCapture   []byte
	Err           error
	// ErrCategory classifies Err by the curated-error taxonomy
	// errors/messages.go defines, errors.CategoryOther when Err is nil or
	// not one of this package's curated errors.
	ErrCategory errors.Category
}

// Observer receives callbacks in the order fixed by spec.md §5: on step
// start, any memory writes produced during that step's execution, on step
// end, then on peripheral tick once per tick round (between steps, before
// the next step start). Implementations must be cheap -- they run on the
// hot path -- and, for World's StepAllParallel, safe to call from one
// goroutine per machine concurrently with other machines' observers (never
// the same machine's observer from two goroutines at once).
//
// OnMemoryWrite is forwarded from the core's cpu.Observer, which neither
// core calls, so no memory-write callbacks are delivered. A panic in an
// observer callback is not recovered; it propagates out of Step.
type Observer interface {
	OnStepStart(pc uint32)
	OnMemoryWrite(addr uint32, value uint8)
	OnStepEnd(pc uint32, outcome cpu.StepOutcome)
	OnPeripheralTick(summary bus.TickSummary)
}

// observerAdapter lets Machine itself satisfy cpu.Observer without exposing
// the narrower two-method interface to callers; OnStep here always means
// "step just finished" since Machine calls OnStepStart itself immediately
// before invoking core.Step. Decode-cache invalidation on code-region
// writes is NOT driven through OnMemoryWrite -- that would miss DMA copies
// and firmware loads, which never run through a CPU store instruction.
// Machine instead installs a Bus.SetWriteHook covering every write path
// uniformly; see invalidateIfCode.
type observerAdapter struct {
	m *Machine
}

func (a observerAdapter) OnStep(pc uint32, outcome cpu.StepOutcome) {
	if a.m.observer != nil {
		a.m.observer.OnStepEnd(pc, outcome)
	}
}

func (a observerAdapter) OnMemoryWrite(addr uint32, value uint8) {
	if a.m.observer != nil {
		a.m.observer.OnMemoryWrite(addr, value)
	}
}

// invalidateIfCode is installed as the Bus's write hook: it flushes the
// CPU's decode cache wholesale whenever a write lands inside a ROM-flagged
// region, per spec's conservative "any code-region write" invalidation
// rule, regardless of whether the write came from a CPU store, a DMA
// transfer, or firmware loading.
func (m *Machine) invalidateIfCode(addr uint32, _ uint8) {
	if m.isCodeAddress(addr) {
		m.core.InvalidateDecodeCache()
	}
}

// Machine owns a CPU core, a bus, a cycle counter, the simulation config,
// the interrupt controller and VTOR word shared with the core (Design
// Note 9), and a single observer.
type Machine struct {
	Name string

	core       cpu.Core
	bus        *bus.Bus
	controller *interrupt.Controller
	vtor       *uint32
	arch       config.Arch

	Config SimulationConfig

	cycles           uint64
	breakpoint       *uint32
	SuspendRequested bool
	WallTimeBudget   time.Duration

	observer Observer

	stepsSinceTick    uint32
	noProgressStreak  uint32
	noProgressLimit   uint32
}

// defaultNoProgressLimit is how many consecutive steps the PC may stand
// still before Run reports StopNoProgress. A WFI-style spin with nothing
// to wake it looks identical to a runaway halt from the run loop's point of
// view -- spec §9 resolves this by detecting it as no-progress rather than
// a dedicated sleep model.
const defaultNoProgressLimit = 1000

// New constructs a Machine from a parsed chip descriptor and optional
// system manifest, picking the CPU core that matches the descriptor's
// architecture and wiring the shared interrupt controller and VTOR word
// through to both the core and the bus's peripherals.
func New(name string, chip *config.ChipDescriptor, manifest *config.SystemManifest, cfg SimulationConfig, log *logger.Logger) (*Machine, error) {
	controller := interrupt.New()
	vtor := new(uint32)

	b, err := bus.FromConfig(chip, manifest, controller, vtor, log)
	if err != nil {
		return nil, err
	}
	b.SetOptimizedAccess(cfg.OptimizedBusAccess)

	var core cpu.Core
	if chip.Arch.IsCortexM() {
		core = armthumb.NewCore(vtor, cfg.DecodeCacheEnabled)
	} else {
		core = riscv32.NewCore(cfg.DecodeCacheEnabled)
	}

	m := &Machine{
		Name:            name,
		core:            core,
		bus:             b,
		controller:      controller,
		vtor:            vtor,
		arch:            chip.Arch,
		Config:          cfg,
		noProgressLimit: defaultNoProgressLimit,
	}
	core.SetObserver(observerAdapter{m: m})
	b.SetWriteHook(m.invalidateIfCode)
	return m, nil
}

// Bus returns the underlying Bus, for callers that need direct peripheral
// access (test harnesses, the busgraph and metrics tools).
func (m *Machine) Bus() *bus.Bus { return m.bus }

// Controller returns the shared interrupt controller.
func (m *Machine) Controller() *interrupt.Controller { return m.controller }

// Core returns the bound CPU core.
func (m *Machine) Core() cpu.Core { return m.core }

// Cycles returns the running cycle counter.
func (m *Machine) Cycles() uint64 { return m.cycles }

// SetObserver installs obs as the single observer; nil clears it.
func (m *Machine) SetObserver(obs Observer) { m.observer = obs }

// SetNoProgressLimit overrides the number of stalled steps Run tolerates
// before reporting StopNoProgress. Exposed for tests that want a tight
// budget rather than the default.
func (m *Machine) SetNoProgressLimit(n uint32) { m.noProgressLimit = n }

// Breakpoint arms a breakpoint at pc; Run stops as soon as the program
// counter reaches it.
func (m *Machine) Breakpoint(pc uint32) {
	v := pc
	m.breakpoint = &v
}

// ClearBreakpoint disarms any configured breakpoint.
func (m *Machine) ClearBreakpoint() { m.breakpoint = nil }

// isCodeAddress reports whether addr falls inside a ROM-flagged region --
// the bus's notion of "code memory" for decode-cache invalidation
// purposes.
func (m *Machine) isCodeAddress(addr uint32) bool {
	for _, r := range m.bus.Regions() {
		if r.ROM && addr >= r.Base && addr < r.Base+r.Size {
			return true
		}
	}
	return false
}

// deliverInterrupt polls the shared interrupt controller for the
// lowest-numbered active (pending and enabled) IRQ and, if one exists,
// feeds it to the core in the core's own numbering before the next fetch
// -- spec.md §8's "the CPU observes the interrupt at the next step
// boundary". Cortex-M's sixteen architecture-private exceptions sit below
// the controller's external-IRQ numbering, so external IRQ n becomes
// exception 16+n; a bare RV32I core has no per-source external-IRQ bit
// without a PLIC, so every acknowledged IRQ collapses onto mip's standard
// machine-external-interrupt bit (11) instead.
func (m *Machine) deliverInterrupt() {
	irq, ok := m.controller.Acknowledge()
	if !ok {
		return
	}
	if m.arch.IsCortexM() {
		m.core.SetExceptionPending(irq+16, true)
	} else {
		m.core.SetExceptionPending(11, true)
	}
}

// Step fetches, decodes and executes exactly one instruction, polls
// pending peripheral ticks at the configured interval, and returns the
// outcome. Observer callbacks fire in on_step_start -> on_step_end ->
// (on_peripheral_tick, if this step's tick interval elapsed) order; no
// on_memory_write callbacks are produced (see Observer). DMA requests in
// the tick round's summary are handed to the first mounted Dma peripheral.
// The interrupt controller is polled once per step,
// between on_step_start and the core's own fetch, so an IRQ raised by the
// previous tick round is taken before this step's instruction executes.
func (m *Machine) Step() (cpu.StepOutcome, error) {
	pc := m.core.GetPC()
	if m.observer != nil {
		m.observer.OnStepStart(pc)
	}

	m.deliverInterrupt()

	outcome, err := m.core.Step(m.bus)
	if err != nil {
		return outcome, err
	}
	m.cycles += uint64(outcome.Cycles)

	if m.core.GetPC() == pc {
		m.noProgressStreak++
	} else {
		m.noProgressStreak = 0
	}

	m.stepsSinceTick++
	interval := m.Config.PeripheralTickInterval
	if interval == 0 {
		interval = 1
	}
	if m.stepsSinceTick >= interval {
		m.stepsSinceTick = 0
		summary := m.bus.TickPeripherals()
		m.cycles += uint64(summary.CyclesConsumed)
		if len(summary.DMA) > 0 {
			for _, entry := range m.bus.Peripherals() {
				if d, ok := entry.Device.(*peripherals.Dma); ok {
					d.Enqueue(summary.DMA)
					break
				}
			}
		}
		if m.observer != nil {
			m.observer.OnPeripheralTick(summary)
		}
	}

	return outcome, nil
}

// Reset zeroes the cycle counter and no-progress streak and resets the
// CPU core; peripheral state is left untouched (peripherals reset only
// when the Machine itself is reconstructed).
func (m *Machine) Reset(entry uint32) {
	m.cycles = 0
	m.stepsSinceTick = 0
	m.noProgressStreak = 0
	m.core.Reset(m.bus, entry, *m.vtor)
}

// LoadFirmware writes every segment of img across the bus and resets the
// core so the freshly written vector table (ARM) or reset vector (both
// architectures route through Machine.Reset's entry argument) takes
// effect.
func (m *Machine) LoadFirmware(img image.ProgramImage) error {
	for _, seg := range img.Segments {
		for i, b := range seg.Bytes {
			if err := m.bus.WriteU8(seg.Start+uint32(i), b); err != nil {
				return errors.Errorf(errors.LoaderError, err)
			}
		}
	}
	m.Reset(img.Entry)
	return nil
}

// Run loops Step until a stop condition is produced: StopMaxSteps,
// StopWallTime, StopSuspended, StopBreakpoint, StopHalt, StopNoProgress, or StopError (a
// memory violation or decode error surfaces through Step's error return).
// If the program counter already equals the configured breakpoint on
// entry, Run returns StopHalt immediately with zero steps executed --
// distinct from StopBreakpoint, which requires at least one step to have
// run.
func (m *Machine) Run(maxSteps uint64) RunResult {
	start := time.Now()

	if m.breakpoint != nil && m.core.GetPC() == *m.breakpoint {
		return m.result(cpu.StopHalt, 0, nil)
	}

	var steps uint64
	for {
		if maxSteps > 0 && steps >= maxSteps {
			return m.result(cpu.StopMaxSteps, steps, nil)
		}
		if m.WallTimeBudget > 0 && time.Since(start) >= m.WallTimeBudget {
			return m.result(cpu.StopWallTime, steps, nil)
		}
		if m.SuspendRequested {
			return m.result(cpu.StopSuspended, steps, nil)
		}

		_, err := m.Step()
		steps++
		if err != nil {
			return m.result(cpu.StopError, steps, err)
		}

		if m.noProgressStreak >= m.noProgressLimit {
			return m.result(cpu.StopNoProgress, steps, nil)
		}
		if m.breakpoint != nil && m.core.GetPC() == *m.breakpoint {
			return m.result(cpu.StopBreakpoint, steps, nil)
		}
	}
}

func (m *Machine) result(reason cpu.StopReason, steps uint64, err error) RunResult {
	var uart []byte
	if dev, ok := m.bus.Peripheral("uart"); ok {
		if u, ok := dev.(*peripherals.Uart); ok {
			uart = u.Captured()
		}
	}
	// a manifest may mount the UART under a different id; fall back to
	// scanning every mounted peripheral for the first one that is a Uart.
	if uart == nil {
		for _, entry := range m.bus.Peripherals() {
			if u, ok := entry.Device.(*peripherals.Uart); ok {
				uart = u.Captured()
				break
			}
		}
	}

	return RunResult{
		StopReason:    reason,
		StepsExecuted: steps,
		TotalCycles:   m.cycles,
		UARTCapture:   uart,
		Err:           err,
		ErrCategory:   errors.CategoryOf(err),
	}
}

// Snapshot captures the CPU core's state, every snapshot-capable
// peripheral's state by name, and the running cycle count, delegating the
// wire encoding to the snapshot package.
func (m *Machine) Snapshot() json.RawMessage {
	snap := snapshot.MachineSnapshot{
		Arch:        m.arch,
		CPU:         m.core.Snapshot(),
		Peripherals: make(map[string]json.RawMessage),
		Cycles:      m.cycles,
		Config:      m.Config,
	}
	for _, name := range m.bus.PeripheralNames() {
		if raw, ok := m.bus.PeekPeripheral(name); ok {
			snap.Peripherals[name] = raw
		}
	}
	return snapshot.Encode(snap)
}

// Restore applies a snapshot previously produced by Snapshot: the CPU
// state first, then per-peripheral state by name. A peripheral present in
// the snapshot but missing on this machine is a restore error; a
// peripheral present on this machine but absent from the snapshot is left
// at its current (construction-default) state.
func (m *Machine) Restore(data json.RawMessage) error {
	snap, err := snapshot.Decode(data)
	if err != nil {
		return err
	}
	if snap.Arch != m.arch {
		return errors.Errorf(errors.SnapshotArchMismatch, snap.Arch, m.arch)
	}

	if err := m.core.ApplyState(snap.CPU); err != nil {
		return errors.Errorf(errors.SnapshotError, err)
	}

	for name, raw := range snap.Peripherals {
		dev, ok := m.bus.Peripheral(name)
		if !ok {
			return errors.Errorf(errors.SnapshotMissingPeripheral, name)
		}
		restorer, ok := dev.(peripheral.Snapshotter)
		if !ok {
			continue
		}
		if err := restorer.Restore(raw); err != nil {
			return errors.Errorf(errors.SnapshotError, err)
		}
	}

	m.cycles = snap.Cycles
	return nil
}
