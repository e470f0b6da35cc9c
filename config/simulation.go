package config

// SimulationConfig carries the knobs a Machine consults on construction and
// on every step: whether the decode cache is active, how many steps elapse
// between peripheral ticks, and whether the bus takes its flat-region fast
// path for wide accesses. Lives in config (rather than machine) so the
// snapshot codec can embed it without importing machine, avoiding a
// machine<->snapshot import cycle.
type SimulationConfig struct {
	DecodeCacheEnabled     bool   `json:"decode_cache_enabled" yaml:"decode_cache_enabled,omitempty"`
	PeripheralTickInterval uint32 `json:"peripheral_tick_interval" yaml:"peripheral_tick_interval,omitempty"`
	OptimizedBusAccess     bool   `json:"optimized_bus_access" yaml:"optimized_bus_access,omitempty"`
}
