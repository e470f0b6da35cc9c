// Package memorymap implements the sorted lookup index the Bus refreshes
// after every mutation of its regions and peripherals, giving O(log n)
// address resolution (effectively O(1) for the handful of entries a chip
// descriptor declares).
package memorymap

import "sort"

// Kind distinguishes a flat memory region from a peripheral entry so the Bus
// knows which backing store to forward an access to.
type Kind int

const (
	// KindRegion is a flat, byte-array-backed memory region.
	KindRegion Kind = iota
	// KindPeripheral is a device behind the peripheral.Device contract.
	KindPeripheral
)

// Entry is one row of the lookup index: an address range and the identity
// of whatever backs it.
type Entry struct {
	Base  uint32
	Size  uint32
	Kind  Kind
	Index int // index into Bus.regions or Bus.peripherals, per Kind
}

// End returns the address one past the last byte covered by the entry.
func (e Entry) End() uint32 {
	return e.Base + e.Size
}

// Contains reports whether addr falls within [Base, Base+Size).
func (e Entry) Contains(addr uint32) bool {
	return addr >= e.Base && addr < e.End()
}

// Index is the sorted-by-base list of entries rebuilt by RefreshFrom after
// any mutation of the owning Bus's regions or peripherals.
type Index struct {
	entries []Entry
}

// RefreshFrom rebuilds the index from the given entries, sorted by base
// address. It does not itself check for overlaps -- that validation happens
// where entries are first admitted (Bus.AddRegion / Bus.AddPeripheral),
// since a conflict there is a construction-time ConfigError rather than a
// runtime condition the index needs to re-derive on every refresh.
func (idx *Index) RefreshFrom(entries []Entry) {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Base < sorted[j].Base })
	idx.entries = sorted
}

// Resolve returns the entry covering addr, if any. Lookup is a binary
// search over the sorted entries.
func (idx *Index) Resolve(addr uint32) (Entry, bool) {
	entries := idx.entries
	lo, hi := 0, len(entries)
	for lo < hi {
		mid := (lo + hi) / 2
		if entries[mid].End() <= addr {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(entries) && entries[lo].Contains(addr) {
		return entries[lo], true
	}
	return Entry{}, false
}

// Entries returns the current sorted entry list, for tooling (busgraph) and
// tests. The returned slice must not be mutated by the caller.
func (idx *Index) Entries() []Entry {
	return idx.entries
}
