// Package config implements YAML-encoded chip descriptors and system
// manifests (gopkg.in/yaml.v3, the configuration format shared by several
// pack repos' own board/device descriptors). It only parses and validates;
// turning a parsed descriptor into a live Bus is bus.FromConfig, kept in
// the bus package to avoid a config<->bus import cycle.
package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/opsilicon/firmsim/errors"
)

// Arch names a supported CPU architecture in a chip descriptor.
type Arch string

const (
	ArchCortexM3 Arch = "cortex-m3"
	ArchCortexM4 Arch = "cortex-m4"
	ArchRV32     Arch = "riscv-rv32"
)

// IsCortexM reports whether the architecture selects the ARM Thumb core.
func (a Arch) IsCortexM() bool {
	return a == ArchCortexM3 || a == ArchCortexM4
}

// MemoryRegion describes a flat, contiguous span of address space (flash
// or RAM) in a chip descriptor.
type MemoryRegion struct {
	Base uint32   `yaml:"base"`
	Size ByteSize `yaml:"size"`
}

// PeripheralSpec describes one memory-mapped device mounted by a chip
// descriptor. IRQ is a pointer so an absent `irq:` key is distinguishable
// from an explicit `irq: 0`.
type PeripheralSpec struct {
	ID      string  `yaml:"id"`
	Type    string  `yaml:"type"`
	Base    uint32  `yaml:"base_address"`
	Size    uint32  `yaml:"size,omitempty"`
	IRQ     *int    `yaml:"irq,omitempty"`
	Variant string  `yaml:"variant,omitempty"`
}

// ChipDescriptor is the YAML shape of a single MCU's memory map: name,
// architecture, flash/RAM regions, and the peripheral list.
type ChipDescriptor struct {
	Name        string           `yaml:"name"`
	Arch        Arch             `yaml:"arch"`
	Flash       MemoryRegion     `yaml:"flash"`
	RAM         MemoryRegion     `yaml:"ram"`
	Peripherals []PeripheralSpec `yaml:"peripherals"`
}

// LoadChip parses a chip descriptor from YAML bytes.
func LoadChip(data []byte) (*ChipDescriptor, error) {
	var chip ChipDescriptor
	if err := yaml.Unmarshal(data, &chip); err != nil {
		return nil, errors.Errorf(errors.ConfigError, err)
	}
	if err := chip.Validate(); err != nil {
		return nil, err
	}
	return &chip, nil
}

// LoadChipFile reads and parses a chip descriptor from path.
func LoadChipFile(path string) (*ChipDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Errorf(errors.ConfigError, err)
	}
	return LoadChip(data)
}

// Validate checks that the architecture is recognised and that flash/RAM
// and every peripheral occupy disjoint address ranges.
func (c *ChipDescriptor) Validate() error {
	switch c.Arch {
	case ArchCortexM3, ArchCortexM4, ArchRV32:
	default:
		return errors.Errorf(errors.ConfigUnknownArch, string(c.Arch))
	}

	type span struct {
		name        string
		base, size  uint32
	}
	spans := []span{
		{"flash", c.Flash.Base, uint32(c.Flash.Size)},
		{"ram", c.RAM.Base, uint32(c.RAM.Size)},
	}
	for _, p := range c.Peripherals {
		spans = append(spans, span{p.ID, p.Base, p.Size})
	}

	for i := 0; i < len(spans); i++ {
		for j := i + 1; j < len(spans); j++ {
			a, b := spans[i], spans[j]
			if a.base < b.base+b.size && b.base < a.base+a.size {
				return errors.Errorf(errors.ConfigOverlap, a.name, b.name)
			}
		}
	}
	return nil
}
