package snapshot

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opsilicon/firmsim/config"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	s := MachineSnapshot{
		Arch: config.ArchCortexM3,
		CPU:  json.RawMessage(`{"pc":4}`),
		Peripherals: map[string]json.RawMessage{
			"uart": json.RawMessage(`{"tx":1}`),
			"tim2": json.RawMessage(`{"cnt":7}`),
		},
		Cycles: 42,
		Config: config.SimulationConfig{DecodeCacheEnabled: true, PeripheralTickInterval: 1},
	}

	data := Encode(s)
	got, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, s.Arch, got.Arch)
	require.JSONEq(t, string(s.CPU), string(got.CPU))
	require.Equal(t, s.Cycles, got.Cycles)
	require.Equal(t, s.Config, got.Config)
	require.Len(t, got.Peripherals, 2)
}

func TestEncodeProducesDeterministicKeyOrder(t *testing.T) {
	s := MachineSnapshot{
		Arch: config.ArchRV32,
		Peripherals: map[string]json.RawMessage{
			"zzz": json.RawMessage(`1`),
			"aaa": json.RawMessage(`2`),
			"mmm": json.RawMessage(`3`),
		},
	}

	first := string(Encode(s))
	for i := 0; i < 5; i++ {
		require.Equal(t, first, string(Encode(s)))
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode(json.RawMessage(`not json`))
	require.Error(t, err)
}
