// Package world implements the multi-machine orchestrator: spec.md §4.7's
// `World{name, machines}`, generalising the teacher's single always-one-CPU
// emulation root into a named collection of independently stepped Machines,
// grounded on `original_source/crates/core/src/world.rs`'s `World`/
// `MachineTrait` pairing (the Rust original type-erases heterogeneous
// `Machine<C>` instances behind a trait object; Go needs no such erasure
// since `machine.Machine` is already a single concrete type covering both
// architectures).
package world

import (
	"sync"

	"github.com/opsilicon/firmsim/machine"
)

// World owns a named collection of machines, stepped together by id. Go
// maps do not preserve insertion order, so order is tracked separately --
// spec.md §4.7 requires step_all/reset_all to visit machines in insertion
// order.
type World struct {
	Name string

	// Parallel gates StepAll between the sequential baseline (always used
	// by ResetAll) and StepAllParallel's one-goroutine-per-machine
	// fan-out, per spec.md §5's MAY-parallelize clause.
	Parallel bool

	machines map[string]*machine.Machine
	order    []string
}

// New constructs an empty World.
func New(name string) *World {
	return &World{
		Name:     name,
		machines: make(map[string]*machine.Machine),
	}
}

// AddMachine inserts m under id, appending id to the insertion order unless
// it already names a machine in this World (a re-add replaces the machine
// in place without changing its position).
func (w *World) AddMachine(id string, m *machine.Machine) {
	if _, exists := w.machines[id]; !exists {
		w.order = append(w.order, id)
	}
	w.machines[id] = m
}

// Machine returns the machine registered under id, if any.
func (w *World) Machine(id string) (*machine.Machine, bool) {
	m, ok := w.machines[id]
	return m, ok
}

// Machines returns the ids of every registered machine in insertion order.
func (w *World) Machines() []string {
	ids := make([]string, len(w.order))
	copy(ids, w.order)
	return ids
}

// Len reports how many machines are registered.
func (w *World) Len() int { return len(w.order) }

// StepAll steps every machine once, in insertion order if Parallel is
// false, or via StepAllParallel if it is true, and returns one error per
// machine id (nil for machines that stepped without error).
func (w *World) StepAll() map[string]error {
	if w.Parallel {
		return w.StepAllParallel()
	}
	results := make(map[string]error, len(w.order))
	for _, id := range w.order {
		_, err := w.machines[id].Step()
		results[id] = err
	}
	return results
}

// StepAllParallel steps every machine once concurrently, one goroutine per
// machine, with a barrier after the round so the caller never observes a
// partially-stepped world. Safe only under spec.md §5's three
// preconditions: machines share no peripherals, every observer is
// individually thread-safe, and the caller treats the round as atomic.
func (w *World) StepAllParallel() map[string]error {
	results := make(map[string]error, len(w.order))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, id := range w.order {
		id := id
		m := w.machines[id]
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Step()
			mu.Lock()
			results[id] = err
			mu.Unlock()
		}()
	}
	wg.Wait()
	return results
}

// ResetAll resets every machine to entry, in insertion order, always
// sequentially -- a reset is rare enough (scenario setup, not the hot
// per-step path) that there is no parallel variant.
func (w *World) ResetAll(entry uint32) map[string]error {
	results := make(map[string]error, len(w.order))
	for _, id := range w.order {
		w.machines[id].Reset(entry)
		results[id] = nil
	}
	return results
}

// TotalCycles sums the running cycle counter across every registered
// machine.
func (w *World) TotalCycles() uint64 {
	var total uint64
	for _, id := range w.order {
		total += w.machines[id].Cycles()
	}
	return total
}
