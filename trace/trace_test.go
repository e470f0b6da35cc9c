package trace

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opsilicon/firmsim/hardware/cpu"
	"github.com/opsilicon/firmsim/hardware/memory/bus"
)

func TestEmitterShapesStepStartAndMemoryWrite(t *testing.T) {
	var changes []Change
	e := NewEmitter(func(c Change) { changes = append(changes, c) })

	e.OnStepStart(0x1000)
	e.OnMemoryWrite(0x2000_0000, 0xAB)
	e.OnStepEnd(0x1002, cpu.StepOutcome{Cycles: 3})

	require.Equal(t, []Change{
		{Time: 0, Signal: SignalPC, Value: 0x1000},
		{Time: 0, Signal: SignalMemWE, Value: 0},
		{Time: 0, Signal: SignalMemAddr, Value: 0x2000_0000},
		{Time: 0, Signal: SignalMemData, Value: 0xAB},
		{Time: 0, Signal: SignalMemWE, Value: 1},
	}, changes)
}

func TestEmitterAdvancesClockAcrossSteps(t *testing.T) {
	var changes []Change
	e := NewEmitter(func(c Change) { changes = append(changes, c) })

	e.OnStepStart(0)
	e.OnStepEnd(2, cpu.StepOutcome{Cycles: 4})
	e.OnPeripheralTick(bus.TickSummary{CyclesConsumed: 2})
	e.OnStepStart(2)

	require.Equal(t, Change{Time: 6, Signal: SignalPC, Value: 2}, changes[len(changes)-2])
}

func TestSignalWidthsMatchSpec(t *testing.T) {
	require.Equal(t, 32, SignalPC.Width())
	require.Equal(t, 32, SignalMemAddr.Width())
	require.Equal(t, 8, SignalMemData.Width())
	require.Equal(t, 1, SignalMemWE.Width())
}

func TestEmitterWithNilSinkDoesNotPanic(t *testing.T) {
	e := NewEmitter(nil)
	require.NotPanics(t, func() {
		e.OnStepStart(0)
		e.OnMemoryWrite(0, 0)
		e.OnStepEnd(0, cpu.StepOutcome{})
		e.OnPeripheralTick(bus.TickSummary{})
	})
}
