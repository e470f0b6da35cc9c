package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseByteSize(t *testing.T) {
	cases := map[string]ByteSize{
		"128KB": 128 * 1024,
		"1MB":   1024 * 1024,
		"512":   512,
		"64B":   64,
		"2mb":   2 * 1024 * 1024,
	}
	for input, want := range cases {
		got, err := ParseByteSize(input)
		require.NoError(t, err, input)
		require.Equal(t, want, got, input)
	}
}

func TestParseByteSizeRejectsGarbage(t *testing.T) {
	_, err := ParseByteSize("not-a-size")
	require.Error(t, err)
}

func TestLoadChipParsesAndValidates(t *testing.T) {
	yamlDoc := []byte(`
name: stm32f103
arch: cortex-m3
flash:
  base: 0x08000000
  size: "128KB"
ram:
  base: 0x20000000
  size: "20KB"
peripherals:
  - id: uart1
    type: uart
    base_address: 0x40013800
    size: 0x400
    irq: 37
`)
	chip, err := LoadChip(yamlDoc)
	require.NoError(t, err)
	require.Equal(t, "stm32f103", chip.Name)
	require.Equal(t, ArchCortexM3, chip.Arch)
	require.EqualValues(t, 128*1024, chip.Flash.Size)
	require.Len(t, chip.Peripherals, 1)
	require.NotNil(t, chip.Peripherals[0].IRQ)
	require.Equal(t, 37, *chip.Peripherals[0].IRQ)
}

func TestLoadChipRejectsUnknownArch(t *testing.T) {
	_, err := LoadChip([]byte("name: x\narch: z80\n"))
	require.Error(t, err)
}

func TestLoadChipRejectsOverlappingPeripherals(t *testing.T) {
	yamlDoc := []byte(`
name: x
arch: riscv-rv32
flash: {base: 0, size: 1024}
ram: {base: 0x10000000, size: 1024}
peripherals:
  - id: a
    type: uart
    base_address: 0x40000000
    size: 0x100
  - id: b
    type: timer
    base_address: 0x40000080
    size: 0x100
`)
	_, err := LoadChip(yamlDoc)
	require.Error(t, err)
}

func TestManifestApplyOverridesRam(t *testing.T) {
	chip := &ChipDescriptor{
		Name:  "x",
		Arch:  ArchRV32,
		Flash: MemoryRegion{Base: 0, Size: 1024},
		RAM:   MemoryRegion{Base: 0x1000_0000, Size: 1024},
	}
	newSize := ByteSize(4096)
	m := &SystemManifest{
		MemoryOverrides: []MemoryOverride{
			{Target: "ram", Size: &newSize},
		},
	}
	require.NoError(t, m.Apply(chip))
	require.EqualValues(t, 4096, chip.RAM.Size)
}
