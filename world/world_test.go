package world

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opsilicon/firmsim/config"
	"github.com/opsilicon/firmsim/hardware/image"
	"github.com/opsilicon/firmsim/machine"
)

const worldChipYAML = `
name: test-chip
arch: cortex-m3
flash: {base: 0x00000000, size: 0x1000}
ram: {base: 0x20000000, size: 0x1000}
`

func put16(b []byte, off int, v uint16) {
	b[off] = uint8(v)
	b[off+1] = uint8(v >> 8)
}

func newWorldMachine(t *testing.T, name string) *machine.Machine {
	t.Helper()
	chip, err := config.LoadChip([]byte(worldChipYAML))
	require.NoError(t, err)
	m, err := machine.New(name, chip, nil, machine.SimulationConfig{DecodeCacheEnabled: true, PeripheralTickInterval: 1}, nil)
	require.NoError(t, err)

	code := make([]byte, 2)
	put16(code, 0, 0xE7FE) // B .
	img, err := image.New(0, image.ArchCortexM, []image.Segment{{Start: 0, Bytes: code}})
	require.NoError(t, err)
	require.NoError(t, m.LoadFirmware(img))
	return m
}

func TestAddMachinePreservesInsertionOrder(t *testing.T) {
	w := New("test-world")
	w.AddMachine("node-b", newWorldMachine(t, "node-b"))
	w.AddMachine("node-a", newWorldMachine(t, "node-a"))
	w.AddMachine("node-c", newWorldMachine(t, "node-c"))

	require.Equal(t, []string{"node-b", "node-a", "node-c"}, w.Machines())
	require.Equal(t, 3, w.Len())
}

func TestAddMachineReplaceKeepsPosition(t *testing.T) {
	w := New("test-world")
	w.AddMachine("node-a", newWorldMachine(t, "node-a"))
	w.AddMachine("node-b", newWorldMachine(t, "node-b"))
	w.AddMachine("node-a", newWorldMachine(t, "node-a-v2"))

	require.Equal(t, []string{"node-a", "node-b"}, w.Machines())
}

func TestStepAllStepsEveryMachineOnce(t *testing.T) {
	w := New("test-world")
	w.AddMachine("node1", newWorldMachine(t, "node1"))
	w.AddMachine("node2", newWorldMachine(t, "node2"))

	results := w.StepAll()
	require.Len(t, results, 2)
	require.NoError(t, results["node1"])
	require.NoError(t, results["node2"])

	m1, _ := w.Machine("node1")
	m2, _ := w.Machine("node2")
	require.EqualValues(t, 1, m1.Cycles())
	require.EqualValues(t, 1, m2.Cycles())
}

func TestStepAllParallelStepsEveryMachine(t *testing.T) {
	w := New("test-world")
	w.Parallel = true
	for i := 0; i < 8; i++ {
		w.AddMachine(string(rune('a'+i)), newWorldMachine(t, string(rune('a'+i))))
	}

	results := w.StepAll()
	require.Len(t, results, 8)
	for id, err := range results {
		require.NoErrorf(t, err, "machine %s", id)
	}
	require.EqualValues(t, 8, w.TotalCycles())
}

func TestResetAllResetsEveryMachine(t *testing.T) {
	w := New("test-world")
	w.AddMachine("node1", newWorldMachine(t, "node1"))
	w.AddMachine("node2", newWorldMachine(t, "node2"))

	w.StepAll()
	results := w.ResetAll(0)
	require.Len(t, results, 2)
	for _, err := range results {
		require.NoError(t, err)
	}

	m1, _ := w.Machine("node1")
	require.EqualValues(t, 0, m1.Cycles())
	require.EqualValues(t, 0, m1.Core().GetPC())
}

func TestMachineLookupMissingReturnsFalse(t *testing.T) {
	w := New("test-world")
	_, ok := w.Machine("nope")
	require.False(t, ok)
}
