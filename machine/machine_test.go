package machine

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opsilicon/firmsim/config"
	"github.com/opsilicon/firmsim/errors"
	"github.com/opsilicon/firmsim/hardware/cpu"
	"github.com/opsilicon/firmsim/hardware/image"
)

const armChipYAML = `
name: test-chip
arch: cortex-m3
flash: {base: 0x00000000, size: 0x1000}
ram: {base: 0x20000000, size: 0x1000}
peripherals:
  - id: uart
    type: uart
    base_address: 0x40000000
    size: 0x400
`

func newArmMachine(t *testing.T) *Machine {
	t.Helper()
	chip, err := config.LoadChip([]byte(armChipYAML))
	require.NoError(t, err)

	m, err := New("test", chip, nil, SimulationConfig{DecodeCacheEnabled: true, PeripheralTickInterval: 1}, nil)
	require.NoError(t, err)
	return m
}

func put16(b []byte, off int, v uint16) {
	b[off] = uint8(v)
	b[off+1] = uint8(v >> 8)
}

func put32(b []byte, off int, v uint32) {
	b[off] = uint8(v)
	b[off+1] = uint8(v >> 8)
	b[off+2] = uint8(v >> 16)
	b[off+3] = uint8(v >> 24)
}

// vectoredIRQFirmware loops at its entry point and places a second loop at
// 0x100 wired as the handler for exception 16 (IRQ0) through the vector
// table at VTOR+16*4 -- VTOR is 0 unless an SCB write has moved it.
func vectoredIRQFirmware() image.ProgramImage {
	code := make([]byte, 0x104)
	put16(code, 0, 0xE7FE)     // entry: B .
	put32(code, 16*4, 0x100)   // vector[16] (IRQ0) -> handler
	put16(code, 0x100, 0xE7FE) // handler: B .
	img, _ := image.New(0, image.ArchCortexM, []image.Segment{{Start: 0, Bytes: code}})
	return img
}

// loopFirmware is a single infinite "B ." (branch to self, the canonical
// 0xE7FE Thumb encoding) at the flash base.
func loopFirmware() image.ProgramImage {
	code := make([]byte, 2)
	put16(code, 0, 0xE7FE)
	img, _ := image.New(0, image.ArchCortexM, []image.Segment{{Start: 0, Bytes: code}})
	return img
}

// nopThenLoopFirmware is a hi-register MOV r0,r0 (a no-op that still
// retires normally) followed by the infinite loop, so a breakpoint set on
// the second instruction is reached after exactly one step.
func nopThenLoopFirmware() image.ProgramImage {
	code := make([]byte, 4)
	put16(code, 0, 0x4600) // MOV r0, r0
	put16(code, 2, 0xE7FE) // B .
	img, _ := image.New(0, image.ArchCortexM, []image.Segment{{Start: 0, Bytes: code}})
	return img
}

func TestLoadFirmwareWritesSegmentsAndResetsCore(t *testing.T) {
	m := newArmMachine(t)
	require.NoError(t, m.LoadFirmware(loopFirmware()))

	require.EqualValues(t, 0, m.Core().GetPC())
	v, err := m.Bus().ReadU16(0)
	require.NoError(t, err)
	require.EqualValues(t, 0xE7FE, v)
}

func TestRunStopsOnInitialBreakpointWithZeroSteps(t *testing.T) {
	m := newArmMachine(t)
	require.NoError(t, m.LoadFirmware(loopFirmware()))

	m.Breakpoint(0)
	result := m.Run(1_000_000)

	require.Equal(t, cpu.StopHalt, result.StopReason)
	require.EqualValues(t, 0, result.StepsExecuted)
}

func TestRunStopsOnBreakpointAfterOneStep(t *testing.T) {
	m := newArmMachine(t)
	require.NoError(t, m.LoadFirmware(nopThenLoopFirmware()))

	m.Breakpoint(2)
	result := m.Run(1_000_000)

	require.Equal(t, cpu.StopBreakpoint, result.StopReason)
	require.EqualValues(t, 1, result.StepsExecuted)
	require.EqualValues(t, 2, m.Core().GetPC())
}

func TestRunStopsOnNoProgress(t *testing.T) {
	m := newArmMachine(t)
	require.NoError(t, m.LoadFirmware(loopFirmware()))
	m.SetNoProgressLimit(5)

	result := m.Run(1_000_000)

	require.Equal(t, cpu.StopNoProgress, result.StopReason)
	require.EqualValues(t, 5, result.StepsExecuted)
}

func TestRunStopsOnErrorWithCategorizedErr(t *testing.T) {
	m := newArmMachine(t)
	require.NoError(t, m.LoadFirmware(loopFirmware()))
	m.Core().SetPC(0x9000_0000) // well outside any mapped region

	result := m.Run(10)

	require.Equal(t, cpu.StopError, result.StopReason)
	require.Error(t, result.Err)
	require.Equal(t, errors.CategoryMemory, result.ErrCategory)
}

func TestRunStopsOnMaxSteps(t *testing.T) {
	m := newArmMachine(t)
	require.NoError(t, m.LoadFirmware(loopFirmware()))
	m.SetNoProgressLimit(1_000_000) // disable no-progress so max-steps wins

	result := m.Run(10)

	require.Equal(t, cpu.StopMaxSteps, result.StopReason)
	require.EqualValues(t, 10, result.StepsExecuted)
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	m := newArmMachine(t)
	require.NoError(t, m.LoadFirmware(nopThenLoopFirmware()))

	require.NoError(t, m.Bus().WriteU32(0x2000_0000, 0xCAFEBABE))
	_, err := m.Step()
	require.NoError(t, err)
	require.EqualValues(t, 2, m.Core().GetPC())

	snap := m.Snapshot()

	_, err = m.Step()
	require.NoError(t, err)

	require.NoError(t, m.Restore(snap))
	require.EqualValues(t, 2, m.Core().GetPC())
	require.EqualValues(t, 1, m.Cycles())
}

func TestRestoreRejectsArchMismatch(t *testing.T) {
	armMachine := newArmMachine(t)
	require.NoError(t, armMachine.LoadFirmware(loopFirmware()))
	armSnapshot := armMachine.Snapshot()

	riscChip, err := config.LoadChip([]byte(`
name: rv
arch: riscv-rv32
flash: {base: 0, size: 0x1000}
ram: {base: 0x10000000, size: 0x1000}
`))
	require.NoError(t, err)
	riscMachine, err := New("rv", riscChip, nil, SimulationConfig{DecodeCacheEnabled: true}, nil)
	require.NoError(t, err)

	err = riscMachine.Restore(armSnapshot)
	require.Error(t, err)
}

func TestResultCapturesUARTOutput(t *testing.T) {
	m := newArmMachine(t)
	if u, ok := m.Bus().Peripheral("uart"); ok {
		u.WriteByte(0x04, 'O')
		u.WriteByte(0x04, 'K')
	}
	require.NoError(t, m.LoadFirmware(loopFirmware()))
	m.SetNoProgressLimit(2)

	result := m.Run(100)
	require.Equal(t, []byte("OK"), result.UARTCapture)
}

func TestCodeRegionWriteInvalidatesDecodeCache(t *testing.T) {
	m := newArmMachine(t)
	require.NoError(t, m.LoadFirmware(nopThenLoopFirmware()))

	_, err := m.Step() // PC 0 -> 2, caches the MOV at PC=0
	require.NoError(t, err)
	_, err = m.Step() // executes and caches the looping B . at PC=2
	require.NoError(t, err)
	require.EqualValues(t, 2, m.Core().GetPC())

	// overwrite the still-looping instruction at offset 2 with a no-op,
	// then reset PC back to 2 and confirm the freshly written instruction
	// runs rather than the stale cached decode of the infinite loop.
	require.NoError(t, m.Bus().WriteU16(2, 0x4600))
	m.Core().SetPC(2)
	_, err = m.Step()
	require.NoError(t, err)
	require.EqualValues(t, 4, m.Core().GetPC())
}

// TestStepDeliversEnabledPendingIRQToArmCore exercises the full
// peripheral-to-CPU interrupt path through the Controller rather than
// poking the core's pending-exception map directly: enabling and pending
// an IRQ on the shared Controller (what Bus.TickPeripherals would do on a
// real NVIC/timer/EXTI tick) must, by the next Step, vector the core
// through the handler its own vector table names.
func TestStepDeliversEnabledPendingIRQToArmCore(t *testing.T) {
	m := newArmMachine(t)
	require.NoError(t, m.LoadFirmware(vectoredIRQFirmware()))
	m.Core().SetSP(0x2000_0100) // valid RAM address for the exception frame push

	m.Controller().SetEnabled(0, true)
	m.Controller().SetPending(0, true)

	_, err := m.Step()
	require.NoError(t, err)

	require.EqualValues(t, 0x100, m.Core().GetPC())
	require.False(t, m.Controller().IsPending(0))
}

// TestStepDeliversEnabledPendingIRQToRiscvCoreAsExternalBit confirms the
// RV32I side of the same bridge: since a bare RV32I core has no per-source
// external-IRQ bit without a PLIC, any Controller-acknowledged IRQ must
// collapse onto mip's standard machine-external-interrupt bit (11),
// regardless of which external IRQ number raised it.
func TestStepDeliversEnabledPendingIRQToRiscvCoreAsExternalBit(t *testing.T) {
	chip, err := config.LoadChip([]byte(`
name: rv-irq
arch: riscv-rv32
flash: {base: 0, size: 0x1000}
ram: {base: 0x10000000, size: 0x1000}
`))
	require.NoError(t, err)
	m, err := New("rv-irq", chip, nil, SimulationConfig{DecodeCacheEnabled: true, PeripheralTickInterval: 1}, nil)
	require.NoError(t, err)

	// seed mstatus.MIE and mie bit 11 (machine-external-interrupt enable)
	// through ApplyState -- the only exported way to reach riscv32.Core's
	// CSRs from outside its package.
	type riscvCoreState struct {
		Registers                                                  []uint32
		PC, Mstatus, Mie, Mip, Mtvec, Mscratch, Mepc, Mcause, Mtval uint32
		Mtime, Mtimecmp                                             uint64
	}
	seed, err := json.Marshal(riscvCoreState{
		Registers: make([]uint32, 32),
		Mstatus:   1 << 3, // MIE
		Mie:       1 << 11,
	})
	require.NoError(t, err)
	require.NoError(t, m.Core().ApplyState(seed))

	m.Controller().SetEnabled(7, true)
	m.Controller().SetPending(7, true)

	_, err = m.Step()
	require.NoError(t, err)

	require.False(t, m.Controller().IsPending(7))
	require.EqualValues(t, 0, m.Core().GetPC()) // trapped to mtvec base, 0

	var fields map[string]any
	require.NoError(t, json.Unmarshal(m.Core().Snapshot(), &fields))
	require.EqualValues(t, 0x8000_000B, fields["Mcause"]) // interrupt bit set, cause 11
}
