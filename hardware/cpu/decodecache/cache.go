// Package decodecache implements the PC-keyed instruction decode cache
// shared by both CPU cores. It generalises the teacher's fixed
// per-opcode instruction table (hardware/cpu/instructions' tagged 6502
// opcode definitions) from a static array indexed by a one-byte opcode
// into a map keyed by fetch address, since neither Thumb nor RV32I have a
// small fixed-width opcode space to index directly.
package decodecache

// Entry is the architecture-specific decoded form a core's decoder
// produces. Cores store whatever shape suits their own execution loop
// (a closure, a struct of operand fields) behind this empty interface;
// the cache itself never interprets it.
type Entry interface{}

// Cache maps a fetch address to its previously decoded instruction.
// It is not safe for concurrent use -- each Machine (and, inside World,
// each goroutine stepping a distinct machine) owns its own Bus and its
// own core, so a Cache is never shared across goroutines.
type Cache struct {
	enabled bool
	entries map[uint32]Entry
}

// New returns a Cache. enabled mirrors SimulationConfig.DecodeCacheEnabled
// -- when false, Lookup always misses and Store is a no-op, so a core can
// unconditionally consult the cache without a separate enabled check at
// every call site.
func New(enabled bool) *Cache {
	return &Cache{enabled: enabled, entries: make(map[uint32]Entry)}
}

// SetEnabled toggles caching at runtime (a manifest or test harness may
// flip SimulationConfig.DecodeCacheEnabled between runs). Disabling also
// drops any entries already cached, so re-enabling starts cold rather
// than serving stale decodes from before the toggle.
func (c *Cache) SetEnabled(enabled bool) {
	c.enabled = enabled
	if !enabled {
		c.entries = make(map[uint32]Entry)
	}
}

// Lookup returns the cached decode for pc, if caching is enabled and a
// decode has been stored for that address.
func (c *Cache) Lookup(pc uint32) (Entry, bool) {
	if !c.enabled {
		return nil, false
	}
	e, ok := c.entries[pc]
	return e, ok
}

// Store records the decode for pc. A no-op when caching is disabled.
func (c *Cache) Store(pc uint32, entry Entry) {
	if !c.enabled {
		return
	}
	c.entries[pc] = entry
}

// Invalidate drops every cached entry. Called on snapshot restore (the
// restored registers may point execution anywhere) and whenever a bus
// write lands inside a code region -- self-modifying or freshly linked
// code must never execute a stale decode.
func (c *Cache) Invalidate() {
	c.entries = make(map[uint32]Entry)
}

// InvalidateRange drops cached entries whose address falls within
// [start, end). Nothing in this module calls it: Machine flushes the whole
// cache through Invalidate on any code-region write.
func (c *Cache) InvalidateRange(start, end uint32) {
	for pc := range c.entries {
		if pc >= start && pc < end {
			delete(c.entries, pc)
		}
	}
}

// Len reports the number of cached entries, for tests and metrics.
func (c *Cache) Len() int {
	return len(c.entries)
}
