package metrics

import (
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opsilicon/firmsim/hardware/cpu"
	"github.com/opsilicon/firmsim/hardware/memory/bus"
	"github.com/opsilicon/firmsim/hardware/memory/peripheral"
)

func TestCollectorTalliesSteps(t *testing.T) {
	c := NewCollector()
	c.OnStepStart(0)
	c.OnStepEnd(4, cpu.StepOutcome{PCBefore: 0, Cycles: 3})
	c.OnStepStart(4)
	c.OnStepEnd(8, cpu.StepOutcome{PCBefore: 4, Cycles: 2})

	snap := c.Snapshot()
	require.EqualValues(t, 2, snap.Steps)
	require.EqualValues(t, 5, snap.Cycles)
}

func TestCollectorTalliesMemoryWritesAndTicks(t *testing.T) {
	c := NewCollector()
	c.OnMemoryWrite(0x2000_0000, 0xFF)
	c.OnMemoryWrite(0x2000_0001, 0x00)
	c.OnPeripheralTick(bus.TickSummary{CyclesConsumed: 4, DMA: []peripheral.DMARequest{{}}})

	snap := c.Snapshot()
	require.EqualValues(t, 2, snap.MemoryWrites)
	require.EqualValues(t, 1, snap.PeripheralTicks)
	require.EqualValues(t, 4, snap.Cycles)
	require.EqualValues(t, 1, snap.DMARequests)
}

func TestCollectorIsSafeForConcurrentObservers(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.OnStepEnd(0, cpu.StepOutcome{Cycles: 1})
		}()
	}
	wg.Wait()

	require.EqualValues(t, 50, c.Snapshot().Steps)
}

func TestServeHTTPReportsCurrentSnapshot(t *testing.T) {
	c := NewCollector()
	c.OnStepEnd(0, cpu.StepOutcome{Cycles: 7})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	c.ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	require.Contains(t, rec.Body.String(), `"cycles":7`)
}
