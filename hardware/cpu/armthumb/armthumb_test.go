package armthumb

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

// flatBus is a 64 KiB byte-addressable memory without any region checking,
// just enough of cpu.Bus to drive the core through its instruction set.
// Addresses wrap modulo its size, so tests can use Cortex-M RAM and flash
// addresses directly.
type flatBus struct {
	mem [1 << 16]byte
}

func (b *flatBus) ReadU8(addr uint32) (uint8, error) { return b.mem[addr&0xFFFF], nil }
func (b *flatBus) WriteU8(addr uint32, v uint8) error {
	b.mem[addr&0xFFFF] = v
	return nil
}
func (b *flatBus) ReadU16(addr uint32) (uint16, error) {
	return binary.LittleEndian.Uint16(b.mem[addr&0xFFFF:]), nil
}
func (b *flatBus) WriteU16(addr uint32, v uint16) error {
	binary.LittleEndian.PutUint16(b.mem[addr&0xFFFF:], v)
	return nil
}
func (b *flatBus) ReadU32(addr uint32) (uint32, error) {
	return binary.LittleEndian.Uint32(b.mem[addr&0xFFFF:]), nil
}
func (b *flatBus) WriteU32(addr uint32, v uint32) error {
	binary.LittleEndian.PutUint32(b.mem[addr&0xFFFF:], v)
	return nil
}

func (b *flatBus) put16(addr uint32, word uint16) {
	binary.LittleEndian.PutUint16(b.mem[addr:], word)
}

func newTestCore() (*Core, *flatBus, *uint32) {
	vtor := new(uint32)
	c := NewCore(vtor, true)
	bus := &flatBus{}
	return c, bus, vtor
}

func TestResetClearsRegistersAndSetsPC(t *testing.T) {
	c, bus, vtor := newTestCore()
	c.SetRegister(3, 0xDEAD)
	c.Reset(bus, 0x0800_0201, 0x0800_0000)

	require.EqualValues(t, 0x0800_0200, c.GetPC())
	require.EqualValues(t, 0, c.GetRegister(3))
	require.EqualValues(t, 0x0800_0000, *vtor)
}

func TestMovsSetsFlags(t *testing.T) {
	c, bus, _ := newTestCore()
	c.Reset(bus, 0, 0)

	// MOVS r0, #5
	bus.put16(0, 0x2005)
	_, err := c.Step(bus)
	require.NoError(t, err)
	require.EqualValues(t, 5, c.GetRegister(0))
	require.False(t, c.flag(flagZ))

	// MOVS r1, #0
	bus.put16(2, 0x2100)
	_, err = c.Step(bus)
	require.NoError(t, err)
	require.True(t, c.flag(flagZ))
}

func TestAddRegistersAndSubtract(t *testing.T) {
	c, bus, _ := newTestCore()
	c.Reset(bus, 0, 0)
	c.SetRegister(0, 10)
	c.SetRegister(1, 3)

	// ADDS r2, r0, r1  (0001100 rm rn rd -> opcode 000110 0 001 000 010)
	bus.put16(0, 0b0001_1000_0100_0010)
	_, err := c.Step(bus)
	require.NoError(t, err)
	require.EqualValues(t, 13, c.GetRegister(2))

	// SUBS r3, r0, r1
	bus.put16(2, 0b0001_1010_0100_0011)
	_, err = c.Step(bus)
	require.NoError(t, err)
	require.EqualValues(t, 7, c.GetRegister(3))
}

func TestBranchUnconditional(t *testing.T) {
	c, bus, _ := newTestCore()
	c.Reset(bus, 0, 0)

	// B #4 forward: encoding 11100 imm11; PC after fetch is base+4, +offset 4 => base+8
	bus.put16(0, 0b11100_00000000010) // imm11=2 -> offset = 4
	_, err := c.Step(bus)
	require.NoError(t, err)
	require.EqualValues(t, 4+4, c.GetPC())
}

func TestPushPopRoundTrip(t *testing.T) {
	c, bus, _ := newTestCore()
	c.Reset(bus, 0, 0)
	c.SetRegister(13, 0x2000_0100)
	c.SetRegister(0, 0x1111)
	c.SetRegister(1, 0x2222)

	// PUSH {r0,r1}: 1011 0100 rlist -> 10110100 00000011
	bus.put16(0, 0b1011_0100_0000_0011)
	_, err := c.Step(bus)
	require.NoError(t, err)
	require.EqualValues(t, 0x2000_00F8, c.GetRegister(13))

	c.SetRegister(0, 0)
	c.SetRegister(1, 0)

	// POP {r0,r1}: 1011 1100 rlist
	bus.put16(2, 0b1011_1100_0000_0011)
	_, err = c.Step(bus)
	require.NoError(t, err)
	require.EqualValues(t, 0x1111, c.GetRegister(0))
	require.EqualValues(t, 0x2222, c.GetRegister(1))
	require.EqualValues(t, 0x2000_0100, c.GetRegister(13))
}

func TestBLSetsLinkRegisterAndJumps(t *testing.T) {
	c, bus, _ := newTestCore()
	c.Reset(bus, 0, 0)

	// BL #0x10 forward: S=0, imm10=0, J1=J2=1 (so I1=I2=0 via the
	// NOT(J xor S) rule), imm11=8 so imm11<<1 = 0x10, added to the PC of
	// base+4 => base+0x14.
	bus.put16(0, 0b11110_0_0000000000)
	bus.put16(2, 0b11_1_1_1_00000001000)
	_, err := c.Step(bus)
	require.NoError(t, err)
	require.EqualValues(t, 4|1, c.GetRegister(RegLR))
	require.EqualValues(t, 4+0x10, c.GetPC())
}

func TestExceptionEntryVectorsThroughVTOR(t *testing.T) {
	c, bus, vtor := newTestCore()
	c.Reset(bus, 0x100, 0x0800_0000)
	*vtor = 0x0800_0000
	c.SetRegister(RegSP, 0x2000_0100)
	bus.WriteU32(*vtor+11*4, 0x0800_0500) // SVCall vector (exception 11)

	c.SetExceptionPending(11, true)
	_, err := c.Step(bus)
	require.NoError(t, err)

	require.EqualValues(t, 0x0800_0500, c.GetPC())
	require.EqualValues(t, 0x2000_00E0, c.GetRegister(RegSP))
	require.EqualValues(t, 0xFFFF_FFF9, c.GetRegister(RegLR))
}

func TestSnapshotRoundTrip(t *testing.T) {
	c, bus, vtor := newTestCore()
	c.Reset(bus, 0x50, 0x0800_0000)
	*vtor = 0x0800_0000
	c.SetRegister(4, 0xCAFEBABE)
	c.SetExceptionPending(5, true)

	snap := c.Snapshot()

	c2, _, vtor2 := newTestCore()
	require.NoError(t, c2.ApplyState(snap))
	require.EqualValues(t, 0xCAFEBABE, c2.GetRegister(4))
	require.EqualValues(t, c.GetPC(), c2.GetPC())
	require.EqualValues(t, *vtor, *vtor2)
}

func TestDecodeCacheHitReusesStoredInstruction(t *testing.T) {
	c, bus, _ := newTestCore()
	c.Reset(bus, 0, 0)
	bus.put16(0, 0x2005) // MOVS r0, #5

	_, err := c.Step(bus)
	require.NoError(t, err)
	require.Equal(t, 1, c.cache.Len())

	c.SetPC(0)
	_, err = c.Step(bus)
	require.NoError(t, err)
	require.EqualValues(t, 5, c.GetRegister(0))
}
