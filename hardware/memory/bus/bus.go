// Package bus implements the address-space dispatcher: an ordered list of
// flat memory regions and memory-mapped peripheral entries, a lookup index
// for O(1)-ish address resolution, and the little-endian wide-access
// helpers the CPU cores use for fetch and load/store.
package bus

import (
	"encoding/json"
	"sort"

	"github.com/opsilicon/firmsim/errors"
	"github.com/opsilicon/firmsim/hardware/interrupt"
	"github.com/opsilicon/firmsim/hardware/memory/memorymap"
	"github.com/opsilicon/firmsim/hardware/memory/peripheral"
	"github.com/opsilicon/firmsim/logger"
)

// Region is a flat, byte-array-backed span of memory (flash, RAM).
type Region struct {
	Name  string
	Base  uint32
	Size  uint32
	Data  []byte
	ROM   bool
}

// PeripheralEntry binds a named peripheral.Device into the address space.
// The bus exclusively owns the entry; the entry exclusively owns its
// device.
type PeripheralEntry struct {
	Name   string
	Base   uint32
	Size   uint32
	IRQ    int // -1 if this peripheral has no configured IRQ line
	Device peripheral.Device
}

// TickSummary aggregates the per-peripheral TickResult values produced by
// one round of TickPeripherals.
type TickSummary struct {
	CyclesConsumed uint32
	DMA            []peripheral.DMARequest
}

// Bus is the address-space dispatcher. The zero value is not usable;
// construct one with New.
type Bus struct {
	regions     []Region
	peripherals []PeripheralEntry
	index       memorymap.Index
	controller  *interrupt.Controller
	log         *logger.Logger
	optimized   bool
	writeHook   func(addr uint32, value uint8)
}

// New returns an empty Bus wired to the given interrupt controller. Pass a
// *logger.Logger to record ignored accesses and stub fallthrough; nil
// disables that logging.
func New(controller *interrupt.Controller, log *logger.Logger) *Bus {
	return &Bus{controller: controller, log: log}
}

// SetOptimizedAccess toggles the fast path for wide accesses to flat
// regions (spec's optimized_bus_access bit). Peripherals are always
// byte-driven regardless of this setting, preserving their side effects --
// see spec Design Note 9.
func (b *Bus) SetOptimizedAccess(on bool) {
	b.optimized = on
}

// SetWriteHook installs a callback invoked once per byte after every
// successful write through WriteU8, WriteU16/32/64 and CopyBytes,
// regardless of whether the fast or byte-at-a-time path served it. Machine
// uses this single choke point to flush the CPU's decode cache on writes
// into a code region -- covering CPU stores, DMA copies and firmware
// loading uniformly, rather than only the subset of writes a CPU store
// instruction itself performs.
func (b *Bus) SetWriteHook(hook func(addr uint32, value uint8)) {
	b.writeHook = hook
}

// Controller returns the shared interrupt controller.
func (b *Bus) Controller() *interrupt.Controller {
	return b.controller
}

func overlaps(base, size, otherBase, otherSize uint32) bool {
	return base < otherBase+otherSize && otherBase < base+size
}

func (b *Bus) overlapsAny(base, size uint32) bool {
	for _, r := range b.regions {
		if overlaps(base, size, r.Base, r.Size) {
			return true
		}
	}
	for _, p := range b.peripherals {
		if overlaps(base, size, p.Base, p.Size) {
			return true
		}
	}
	return false
}

// AddRegion appends a flat memory region, sized to `size` bytes of
// backing storage. It fails if the region overlaps an existing region or
// peripheral.
func (b *Bus) AddRegion(name string, base, size uint32, rom bool) error {
	if b.overlapsAny(base, size) {
		return errors.Errorf(errors.OverlappingRegion, name)
	}
	b.regions = append(b.regions, Region{Name: name, Base: base, Size: size, Data: make([]byte, size), ROM: rom})
	b.RefreshPeripheralIndex()
	return nil
}

// AddPeripheral mounts a peripheral.Device at base..base+size. irq is -1 if
// the peripheral has no configured IRQ line.
func (b *Bus) AddPeripheral(name string, base, size uint32, irq int, dev peripheral.Device) error {
	if b.overlapsAny(base, size) {
		return errors.Errorf(errors.OverlappingRegion, name)
	}
	b.peripherals = append(b.peripherals, PeripheralEntry{Name: name, Base: base, Size: size, IRQ: irq, Device: dev})
	b.RefreshPeripheralIndex()
	return nil
}

// RefreshPeripheralIndex rebuilds the sorted lookup index. Called
// automatically by AddRegion/AddPeripheral; exposed for callers (config
// loading) that batch several additions and want a single explicit
// refresh.
func (b *Bus) RefreshPeripheralIndex() {
	entries := make([]memorymap.Entry, 0, len(b.regions)+len(b.peripherals))
	for i, r := range b.regions {
		entries = append(entries, memorymap.Entry{Base: r.Base, Size: r.Size, Kind: memorymap.KindRegion, Index: i})
	}
	for i, p := range b.peripherals {
		entries = append(entries, memorymap.Entry{Base: p.Base, Size: p.Size, Kind: memorymap.KindPeripheral, Index: i})
	}
	b.index.RefreshFrom(entries)
}

// ReadU8 resolves addr against a region or peripheral and returns the byte
// there, or MemoryViolation if nothing covers it.
func (b *Bus) ReadU8(addr uint32) (uint8, error) {
	entry, ok := b.index.Resolve(addr)
	if !ok {
		return 0, errors.Errorf(errors.MemoryViolation, addr)
	}
	switch entry.Kind {
	case memorymap.KindRegion:
		r := &b.regions[entry.Index]
		return r.Data[addr-r.Base], nil
	default:
		p := &b.peripherals[entry.Index]
		return p.Device.ReadByte(addr - p.Base), nil
	}
}

// WriteU8 resolves addr and writes the byte there. The ROM flag on a
// region is purely advisory at this layer -- it does not reject the
// write -- because the firmware loader writes through this same path to
// lay the program image down into flash before the first instruction
// fetch.
func (b *Bus) WriteU8(addr uint32, val uint8) error {
	entry, ok := b.index.Resolve(addr)
	if !ok {
		return errors.Errorf(errors.MemoryViolation, addr)
	}
	switch entry.Kind {
	case memorymap.KindRegion:
		r := &b.regions[entry.Index]
		r.Data[addr-r.Base] = val
	default:
		p := &b.peripherals[entry.Index]
		p.Device.WriteByte(addr-p.Base, val)
	}
	if b.writeHook != nil {
		b.writeHook(addr, val)
	}
	return nil
}

// PeekU8 is a non-mutating read for debug tooling: it resolves addr the
// same way ReadU8 does, but calls PeekByte on peripherals that implement
// peripheral.Peeker and falls back to ReadByte only as a last resort (a
// peripheral that cannot guarantee a side-effect-free read should implement
// Peeker explicitly if that matters to it).
func (b *Bus) PeekU8(addr uint32) (uint8, error) {
	entry, ok := b.index.Resolve(addr)
	if !ok {
		return 0, errors.Errorf(errors.MemoryViolation, addr)
	}
	switch entry.Kind {
	case memorymap.KindRegion:
		r := &b.regions[entry.Index]
		return r.Data[addr-r.Base], nil
	default:
		p := &b.peripherals[entry.Index]
		if peeker, ok := p.Device.(peripheral.Peeker); ok {
			return peeker.PeekByte(addr - p.Base), nil
		}
		return p.Device.ReadByte(addr - p.Base), nil
	}
}

// readWide and writeWide implement the little-endian wide accessors shared
// by ReadU16/U32/U64 and WriteU16/U32/U64. A wide access that straddles a
// boundary where any individual byte fails to resolve returns
// MemoryViolation for the first such byte.
func (b *Bus) readWide(addr uint32, n int) (uint64, error) {
	if b.optimized {
		if entry, ok := b.index.Resolve(addr); ok && entry.Kind == memorymap.KindRegion {
			r := &b.regions[entry.Index]
			off := addr - r.Base
			if uint32(n) <= r.Size-off {
				var v uint64
				for i := 0; i < n; i++ {
					v |= uint64(r.Data[off+uint32(i)]) << (8 * i)
				}
				return v, nil
			}
		}
	}

	var v uint64
	for i := 0; i < n; i++ {
		byt, err := b.ReadU8(addr + uint32(i))
		if err != nil {
			return 0, err
		}
		v |= uint64(byt) << (8 * i)
	}
	return v, nil
}

func (b *Bus) writeWide(addr uint32, val uint64, n int) error {
	if b.optimized {
		if entry, ok := b.index.Resolve(addr); ok && entry.Kind == memorymap.KindRegion {
			r := &b.regions[entry.Index]
			off := addr - r.Base
			if uint32(n) <= r.Size-off {
				for i := 0; i < n; i++ {
					r.Data[off+uint32(i)] = uint8(val >> (8 * i))
				}
				if b.writeHook != nil {
					for i := 0; i < n; i++ {
						b.writeHook(addr+uint32(i), uint8(val>>(8*i)))
					}
				}
				return nil
			}
		}
	}

	for i := 0; i < n; i++ {
		if err := b.WriteU8(addr+uint32(i), uint8(val>>(8*i))); err != nil {
			return err
		}
	}
	return nil
}

// ReadU16 reads a little-endian halfword.
func (b *Bus) ReadU16(addr uint32) (uint16, error) {
	v, err := b.readWide(addr, 2)
	return uint16(v), err
}

// WriteU16 writes a little-endian halfword.
func (b *Bus) WriteU16(addr uint32, val uint16) error {
	return b.writeWide(addr, uint64(val), 2)
}

// ReadU32 reads a little-endian word.
func (b *Bus) ReadU32(addr uint32) (uint32, error) {
	v, err := b.readWide(addr, 4)
	return uint32(v), err
}

// WriteU32 writes a little-endian word.
func (b *Bus) WriteU32(addr uint32, val uint32) error {
	return b.writeWide(addr, uint64(val), 4)
}

// ReadU64 reads a little-endian doubleword (RISC-V mtime/mtimecmp access).
func (b *Bus) ReadU64(addr uint32) (uint64, error) {
	return b.readWide(addr, 8)
}

// WriteU64 writes a little-endian doubleword.
func (b *Bus) WriteU64(addr uint32, val uint64) error {
	return b.writeWide(addr, val, 8)
}

// CopyBytes performs a byte-by-byte copy from src to dst through the same
// ReadU8/WriteU8 path firmware uses, so a DMA transfer is subject to the
// same address resolution and peripheral side effects a CPU-driven memcpy
// would be. It stops at the first address that fails to resolve.
func (b *Bus) CopyBytes(src, dst, length uint32) error {
	for i := uint32(0); i < length; i++ {
		v, err := b.ReadU8(src + i)
		if err != nil {
			return err
		}
		if err := b.WriteU8(dst+i, v); err != nil {
			return err
		}
	}
	return nil
}

// TickPeripherals invokes Tick on every peripheral in bus order, promotes
// implicit/explicit IRQs into the interrupt controller's pending words, and
// returns the aggregated cycle count and any queued DMA requests.
func (b *Bus) TickPeripherals() TickSummary {
	var summary TickSummary
	for _, p := range b.peripherals {
		result := p.Device.Tick()
		summary.CyclesConsumed += result.Cycles

		if result.ImplicitIRQ && p.IRQ >= 0 {
			b.controller.SetPending(uint32(p.IRQ), true)
		}
		for _, irq := range result.ExplicitIRQs {
			b.controller.SetPending(irq, true)
		}
		if len(result.DMA) > 0 {
			summary.DMA = append(summary.DMA, result.DMA...)
		}
	}
	return summary
}

// PeekPeripheral returns the named peripheral's snapshot value, if it
// implements peripheral.Snapshotter, for test and debug observation without
// mutating state.
func (b *Bus) PeekPeripheral(name string) (json.RawMessage, bool) {
	for _, p := range b.peripherals {
		if p.Name != name {
			continue
		}
		if snap, ok := p.Device.(peripheral.Snapshotter); ok {
			return snap.Snapshot(), true
		}
		return nil, false
	}
	return nil, false
}

// Peripheral returns the named peripheral's device for callers that need a
// typed downcast (the explicit, named-accessor pattern of spec Design
// Note 9, preferred over runtime reflection).
func (b *Bus) Peripheral(name string) (peripheral.Device, bool) {
	for _, p := range b.peripherals {
		if p.Name == name {
			return p.Device, true
		}
	}
	return nil, false
}

// Peripherals returns the peripheral entries in bus (mount) order, for
// snapshot codecs and the busgraph tool.
func (b *Bus) Peripherals() []PeripheralEntry {
	out := make([]PeripheralEntry, len(b.peripherals))
	copy(out, b.peripherals)
	return out
}

// Regions returns the flat regions in mount order.
func (b *Bus) Regions() []Region {
	out := make([]Region, len(b.regions))
	copy(out, b.regions)
	return out
}

// PeripheralNames returns the mounted peripheral names, sorted, for
// deterministic snapshot iteration.
func (b *Bus) PeripheralNames() []string {
	names := make([]string, len(b.peripherals))
	for i, p := range b.peripherals {
		names[i] = p.Name
	}
	sort.Strings(names)
	return names
}
