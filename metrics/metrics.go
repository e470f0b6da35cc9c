// Package metrics implements the optional live counters observer named by
// SPEC_FULL.md §2's "Metrics dashboard" component: a machine.Observer that
// tallies steps, cycles, memory writes and peripheral ticks with atomics
// (so it is safe under World.StepAllParallel's one-goroutine-per-machine
// fan-out, per spec.md §5's thread-safe-observer precondition), plus a thin
// wrapper around the teacher's go-echarts/statsview dependency for the live
// HTTP dashboard itself -- grounded on the teacher's own statsview package,
// which wraps the same library behind a one-call Launch function rather
// than exposing its option surface directly.
package metrics

import (
	"encoding/json"
	"net/http"
	"sync/atomic"

	"github.com/go-echarts/statsview"
	"github.com/go-echarts/statsview/viewer"

	"github.com/opsilicon/firmsim/hardware/cpu"
	"github.com/opsilicon/firmsim/hardware/memory/bus"
)

// Collector accumulates simulation counters across one or more machines. Its
// methods satisfy machine.Observer; every field is updated with atomic
// operations so a single Collector can be shared across every machine in a
// World stepped via StepAllParallel.
type Collector struct {
	steps           uint64
	cycles          uint64
	memoryWrites    uint64
	peripheralTicks uint64
	dmaRequests     uint64
}

// NewCollector returns a zeroed Collector.
func NewCollector() *Collector {
	return &Collector{}
}

// OnStepStart is a no-op; Collector only tallies completed work.
func (c *Collector) OnStepStart(pc uint32) {}

// OnMemoryWrite counts one observed bus write.
func (c *Collector) OnMemoryWrite(addr uint32, value uint8) {
	atomic.AddUint64(&c.memoryWrites, 1)
}

// OnStepEnd counts one completed step and its retired cycle count.
func (c *Collector) OnStepEnd(pc uint32, outcome cpu.StepOutcome) {
	atomic.AddUint64(&c.steps, 1)
	atomic.AddUint64(&c.cycles, uint64(outcome.Cycles))
}

// OnPeripheralTick counts one peripheral tick round, folds in any cycles it
// consumed, and counts any DMA requests the round queued.
func (c *Collector) OnPeripheralTick(summary bus.TickSummary) {
	atomic.AddUint64(&c.peripheralTicks, 1)
	atomic.AddUint64(&c.cycles, uint64(summary.CyclesConsumed))
	atomic.AddUint64(&c.dmaRequests, uint64(len(summary.DMA)))
}

// Snapshot is a point-in-time, non-atomic copy of a Collector's counters,
// safe to marshal or compare.
type Snapshot struct {
	Steps           uint64 `json:"steps"`
	Cycles          uint64 `json:"cycles"`
	MemoryWrites    uint64 `json:"memory_writes"`
	PeripheralTicks uint64 `json:"peripheral_ticks"`
	DMARequests     uint64 `json:"dma_requests"`
}

// Snapshot reads every counter.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		Steps:           atomic.LoadUint64(&c.steps),
		Cycles:          atomic.LoadUint64(&c.cycles),
		MemoryWrites:    atomic.LoadUint64(&c.memoryWrites),
		PeripheralTicks: atomic.LoadUint64(&c.peripheralTicks),
		DMARequests:     atomic.LoadUint64(&c.dmaRequests),
	}
}

// ServeHTTP serves the current Snapshot as JSON, letting a caller mount the
// Collector directly on an http.ServeMux alongside the statsview Dashboard.
func (c *Collector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(c.Snapshot())
}

// Dashboard is a thin wrapper around go-echarts/statsview's runtime viewer,
// in the manner of the teacher's own statsview.Launch -- a single call that
// starts a background HTTP server plotting goroutine count, heap size and
// GC pause over time, independent of whether any Collector is in use.
type Dashboard struct {
	viewer *viewer.Viewer
}

// NewDashboard constructs a Dashboard bound to addr (e.g. "0.0.0.0:18066").
func NewDashboard(addr string) *Dashboard {
	return &Dashboard{viewer: statsview.New(viewer.WithAddr(addr))}
}

// Start launches the dashboard's HTTP server in the background. Mirrors the
// teacher's statsview.Launch, which likewise never blocks the caller.
func (d *Dashboard) Start() {
	go d.viewer.Start()
}

// Stop shuts the dashboard's HTTP server down.
func (d *Dashboard) Stop() {
	d.viewer.Stop()
}
