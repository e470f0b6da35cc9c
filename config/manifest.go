package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/opsilicon/firmsim/errors"
)

// ExternalDevice describes an auxiliary device mounted alongside the chip
// descriptor's own peripherals -- the temperature sensor hanging off an
// I2C bus, for example. Attach names the peripheral it logically belongs
// to (informational only in this simulator, which models the sensor as
// its own directly-addressed register block rather than an I2C slave
// transaction); Base/IRQ mount it the same way a chip peripheral mounts.
type ExternalDevice struct {
	Attach string `yaml:"attach"`
	Type   string `yaml:"type"`
	Base   uint32 `yaml:"base_address"`
	IRQ    *int   `yaml:"irq,omitempty"`
}

// MemoryOverride replaces one field of a chip descriptor's region or
// peripheral without editing the shared descriptor file -- a manifest's
// board-specific RAM resize or relocated peripheral base.
type MemoryOverride struct {
	Target string `yaml:"target"`
	Base   *uint32 `yaml:"base,omitempty"`
	Size   *ByteSize `yaml:"size,omitempty"`
}

// SystemManifest is the top-level YAML document a board/system build binds
// together: a reference to a chip descriptor, any external devices, board
// I/O wiring, and memory overrides.
type SystemManifest struct {
	SchemaVersion   int              `yaml:"schema_version"`
	Name            string           `yaml:"name"`
	Chip            string           `yaml:"chip"`
	ExternalDevices []ExternalDevice `yaml:"external_devices,omitempty"`
	BoardIO         map[string]string `yaml:"board_io,omitempty"`
	MemoryOverrides []MemoryOverride `yaml:"memory_overrides,omitempty"`
}

// LoadManifest parses a system manifest from YAML bytes.
func LoadManifest(data []byte) (*SystemManifest, error) {
	var m SystemManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.Errorf(errors.ConfigError, err)
	}
	return &m, nil
}

// LoadManifestFile reads and parses a system manifest from path.
func LoadManifestFile(path string) (*SystemManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Errorf(errors.ConfigError, err)
	}
	return LoadManifest(data)
}

// Apply rewrites chip's flash/RAM regions and peripheral bases/sizes named
// by the manifest's overrides, in place.
func (m *SystemManifest) Apply(chip *ChipDescriptor) error {
	for _, o := range m.MemoryOverrides {
		switch o.Target {
		case "flash":
			if o.Base != nil {
				chip.Flash.Base = *o.Base
			}
			if o.Size != nil {
				chip.Flash.Size = *o.Size
			}
		case "ram":
			if o.Base != nil {
				chip.RAM.Base = *o.Base
			}
			if o.Size != nil {
				chip.RAM.Size = *o.Size
			}
		default:
			found := false
			for i := range chip.Peripherals {
				if chip.Peripherals[i].ID != o.Target {
					continue
				}
				found = true
				if o.Base != nil {
					chip.Peripherals[i].Base = *o.Base
				}
				if o.Size != nil {
					chip.Peripherals[i].Size = uint32(*o.Size)
				}
			}
			if !found {
				return errors.Errorf(errors.ConfigError, "unknown override target "+o.Target)
			}
		}
	}
	return chip.Validate()
}
