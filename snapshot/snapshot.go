// Package snapshot implements the canonical JSON codec for a Machine's
// serialized state: spec.md §4.6's `MachineSnapshot { cpu, peripherals,
// cycles, config }`, grounded on `original_source/crates/core/src/
// snapshot.rs`'s tagged `CpuSnapshot` shape (an `Arm`/`RiscV` union,
// expressed here as an architecture tag alongside an opaque
// `json.RawMessage` rather than Rust's enum, since Go has no tagged-union
// type and each architecture package already produces its own
// self-describing JSON via Core.Snapshot).
//
// Determinism relies on Go's encoding/json already sorting map keys
// alphabetically when marshaling -- the same property the teacher's JSON
// output (and gopher2600's own save-state format) depends on, rather than
// hand-rolling canonical key ordering.
package snapshot

import (
	"encoding/json"

	"github.com/opsilicon/firmsim/config"
	"github.com/opsilicon/firmsim/errors"
)

// MachineSnapshot is the wire shape of one machine's serialized state.
type MachineSnapshot struct {
	Arch        config.Arch                `json:"arch"`
	CPU         json.RawMessage            `json:"cpu"`
	Peripherals map[string]json.RawMessage `json:"peripherals"`
	Cycles      uint64                     `json:"cycles"`
	Config      config.SimulationConfig    `json:"config"`
}

// Encode marshals a MachineSnapshot to its canonical JSON form.
func Encode(s MachineSnapshot) json.RawMessage {
	data, _ := json.Marshal(s)
	return data
}

// Decode parses a MachineSnapshot previously produced by Encode.
func Decode(data json.RawMessage) (MachineSnapshot, error) {
	var s MachineSnapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return MachineSnapshot{}, errors.Errorf(errors.SnapshotError, err)
	}
	return s, nil
}
