package bus

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opsilicon/firmsim/hardware/interrupt"
	"github.com/opsilicon/firmsim/hardware/memory/peripherals"
)

func newTestBus() *Bus {
	return New(interrupt.New(), nil)
}

func TestAddRegionAndReadWriteU8(t *testing.T) {
	b := newTestBus()
	require.NoError(t, b.AddRegion("ram", 0x2000_0000, 1024, false))

	require.NoError(t, b.WriteU8(0x2000_0010, 0x42))
	v, err := b.ReadU8(0x2000_0010)
	require.NoError(t, err)
	require.EqualValues(t, 0x42, v)
}

func TestReadUnmappedAddressIsMemoryViolation(t *testing.T) {
	b := newTestBus()
	_, err := b.ReadU8(0xDEAD_0000)
	require.Error(t, err)
}

func TestAddRegionRejectsOverlap(t *testing.T) {
	b := newTestBus()
	require.NoError(t, b.AddRegion("ram", 0x1000, 0x100, false))
	err := b.AddRegion("ram2", 0x1080, 0x100, false)
	require.Error(t, err)
}

func TestWideAccessLittleEndian(t *testing.T) {
	b := newTestBus()
	require.NoError(t, b.AddRegion("ram", 0, 16, false))
	require.NoError(t, b.WriteU32(0, 0xAABBCCDD))

	lo, _ := b.ReadU8(0)
	hi, _ := b.ReadU8(3)
	require.EqualValues(t, 0xDD, lo)
	require.EqualValues(t, 0xAA, hi)

	v, err := b.ReadU32(0)
	require.NoError(t, err)
	require.EqualValues(t, 0xAABBCCDD, v)
}

func TestCopyBytesMovesThroughReadWritePath(t *testing.T) {
	b := newTestBus()
	require.NoError(t, b.AddRegion("ram", 0, 64, false))
	require.NoError(t, b.WriteU32(0, 0xCAFEBABE))

	require.NoError(t, b.CopyBytes(0, 32, 4))
	v, err := b.ReadU32(32)
	require.NoError(t, err)
	require.EqualValues(t, 0xCAFEBABE, v)
}

func TestTickPeripheralsPromotesImplicitIRQ(t *testing.T) {
	b := newTestBus()
	tim := peripherals.NewTimer("tim1")
	require.NoError(t, b.AddPeripheral("tim1", 0x4000_0000, 0x400, 5, tim))

	// ARR=0, CNT will overflow on the very first tick once enabled with
	// UIE set (CR1 bit0=1 at offset 0x00, DIER bit0=1 at offset 0x0C).
	tim.WriteByte(0x2C, 0x00)
	tim.WriteByte(0x2D, 0x00)
	tim.WriteByte(0x00, 0x01)
	tim.WriteByte(0x0C, 0x01)

	summary := b.TickPeripherals()
	require.Greater(t, summary.CyclesConsumed, uint32(0))
	require.True(t, b.Controller().IsPending(5))
}

func TestWriteHookFiresForByteAndWideWrites(t *testing.T) {
	b := newTestBus()
	require.NoError(t, b.AddRegion("ram", 0, 64, false))

	var seen []uint32
	b.SetWriteHook(func(addr uint32, _ uint8) { seen = append(seen, addr) })

	require.NoError(t, b.WriteU8(4, 0x11))
	require.Equal(t, []uint32{4}, seen)

	seen = nil
	b.SetOptimizedAccess(true)
	require.NoError(t, b.WriteU32(8, 0xAABBCCDD))
	require.Equal(t, []uint32{8, 9, 10, 11}, seen)
}

func TestPeripheralLookupByName(t *testing.T) {
	b := newTestBus()
	tim := peripherals.NewTimer("tim1")
	require.NoError(t, b.AddPeripheral("tim1", 0x4000_0000, 0x400, -1, tim))

	dev, ok := b.Peripheral("tim1")
	require.True(t, ok)
	require.Same(t, tim, dev)

	_, ok = b.Peripheral("missing")
	require.False(t, ok)
}
