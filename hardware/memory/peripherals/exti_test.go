package peripherals

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtiSoftwareTriggerSetsPendingAndFiresIrq(t *testing.T) {
	e := NewExti("exti")
	e.WriteByte(0x00, 0x04) // IMR: unmask line 2
	e.WriteByte(0x10, 0x04) // SWIER: trigger line 2

	result := e.Tick()
	require.Contains(t, result.ExplicitIRQs, uint32(8)) // line 2 -> IRQ 6+2
}

func TestExtiMaskedLineDoesNotFire(t *testing.T) {
	e := NewExti("exti")
	e.TriggerLine(3) // PR set but IMR is still zero
	result := e.Tick()
	require.Empty(t, result.ExplicitIRQs)
}

func TestExtiPendingClearedByWriteOne(t *testing.T) {
	e := NewExti("exti")
	e.TriggerLine(0)
	e.WriteByte(0x14, 0x01) // PR: clear line 0
	require.Zero(t, e.ReadByte(0x14)&0x1)
}
