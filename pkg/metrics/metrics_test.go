package metrics

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCountersSnapshot(t *testing.T) {
	var c Counters
	c.IncSpill()
	c.IncSpill()
	c.AddNodesVisited(5)
	c.AddLeavesTouched(2)
	c.AddHashComparisons(9)
	c.AddBytesOnWire(1024)
	c.IncReconnect()

	got := c.Snapshot()
	require.Equal(t, Stats{
		SpillCount:      2,
		NodesVisited:    5,
		LeavesTouched:   2,
		HashComparisons: 9,
		BytesOnWire:     1024,
		Reconnects:      1,
	}, got)
}

func TestCountersConcurrentIncrement(t *testing.T) {
	var c Counters
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.IncSpill()
			c.AddBytesOnWire(10)
		}()
	}
	wg.Wait()

	got := c.Snapshot()
	require.EqualValues(t, 100, got.SpillCount)
	require.EqualValues(t, 1000, got.BytesOnWire)
}

func TestStatsString(t *testing.T) {
	s := Stats{SpillCount: 1, NodesVisited: 2, LeavesTouched: 3, HashComparisons: 4, BytesOnWire: 5, Reconnects: 6}
	require.Contains(t, s.String(), "spill=1")
	require.Contains(t, s.String(), "reconnects=6")
}
