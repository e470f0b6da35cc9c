// Package image defines the immutable program image consumed by a Machine
// at load time. An image is produced by an external loader (an ELF reader,
// in the reference implementation) and is never mutated once constructed.
package image

import "fmt"

// Arch tags the instruction set a ProgramImage targets. The machine package
// uses this to pick the matching CPU core.
type Arch int

const (
	// ArchCortexM is the ARM Cortex-M Thumb/Thumb-2 subset.
	ArchCortexM Arch = iota
	// ArchRV32 is RISC-V RV32I, M-mode.
	ArchRV32
)

// String implements fmt.Stringer.
func (a Arch) String() string {
	switch a {
	case ArchCortexM:
		return "cortex-m"
	case ArchRV32:
		return "riscv-rv32"
	default:
		return fmt.Sprintf("arch(%d)", int(a))
	}
}

// ParseArch converts the lower-case spelling used in chip descriptors and
// snapshot files into an Arch value.
func ParseArch(s string) (Arch, error) {
	switch s {
	case "cortex-m", "cortex-m3", "cortex-m4", "arm":
		return ArchCortexM, nil
	case "riscv-rv32", "riscv", "risc_v":
		return ArchRV32, nil
	default:
		return 0, fmt.Errorf("unrecognised architecture %q", s)
	}
}

// Segment is a contiguous run of bytes destined for a fixed load address.
// Segments belonging to the same image must not overlap.
type Segment struct {
	Start uint32
	Bytes []byte
}

// End returns the address one past the last byte of the segment.
func (s Segment) End() uint32 {
	return s.Start + uint32(len(s.Bytes))
}

// Overlaps reports whether s and other cover any address in common.
func (s Segment) Overlaps(other Segment) bool {
	return s.Start < other.End() && other.Start < s.End()
}

// ProgramImage is the linked-binary shape the core consumes: an entry
// address, an architecture tag, and an ordered list of segments. It is
// produced once by the external loader and is immutable thereafter.
type ProgramImage struct {
	Entry    uint32
	Arch     Arch
	Segments []Segment
}

// New constructs a ProgramImage and validates that its segments do not
// overlap one another.
func New(entry uint32, arch Arch, segments []Segment) (ProgramImage, error) {
	img := ProgramImage{Entry: entry, Arch: arch, Segments: segments}
	for i := range segments {
		for j := i + 1; j < len(segments); j++ {
			if segments[i].Overlaps(segments[j]) {
				return ProgramImage{}, fmt.Errorf("overlapping segments at %#08x and %#08x", segments[i].Start, segments[j].Start)
			}
		}
	}
	return img, nil
}
