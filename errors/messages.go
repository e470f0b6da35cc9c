// This file is part of firmsim.
//
// firmsim is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// firmsim is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with firmsim.  If not, see <https://www.gnu.org/licenses/>.

package errors

// error messages, one curated head per failure mode named by the core's
// error taxonomy. each is used with Errorf() so that callers never need to
// construct ad-hoc format strings for the same failure.
const (
	// bus / memory
	MemoryViolation   = "memory violation: unmapped address (%#08x)"
	StraddledAccess   = "memory violation: wide access straddles an unmapped byte (%#08x)"
	OverlappingRegion = "bus error: region overlaps an existing region or peripheral (%v)"

	// decoder
	DecodeError           = "decode error: unrecognised opcode (%#08x) at (%#08x)"
	UnsupportedInstruction = "unsupported instruction at (%#08x)"

	// cpu / run loop
	NoProgress = "no progress: program counter did not advance for %d steps"

	// loader
	LoaderError = "loader error: %v"

	// configuration
	ConfigError           = "config error: %v"
	ConfigOverlap         = "config error: peripheral %q overlaps an existing region (%v)"
	ConfigUnknownArch     = "config error: unrecognised architecture (%q)"
	ConfigBadSize         = "config error: cannot parse size value (%q)"

	// snapshot
	SnapshotError       = "snapshot error: %v"
	SnapshotArchMismatch = "snapshot error: snapshot architecture (%v) does not match machine architecture (%v)"
	SnapshotMissingPeripheral = "snapshot error: peripheral %q present in snapshot but missing from machine"
)
