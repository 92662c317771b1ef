package telemetry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeltaSnapshot_ComputesDifference(t *testing.T) {
	prev := snapshot{hits: 10, misses: 2}
	cur := snapshot{hits: 15, misses: 2}

	d := deltaSnapshot(prev, cur)
	require.Equal(t, uint64(5), d.hits)
	require.Equal(t, uint64(0), d.misses)
}

func TestDeltaSnapshot_HandlesCounterReset(t *testing.T) {
	prev := snapshot{hits: 100}
	cur := snapshot{hits: 3} // counters don't actually reset in this engine, but guard anyway

	d := deltaSnapshot(prev, cur)
	require.Equal(t, uint64(3), d.hits)
}

func TestSampler_Snapshot_ReadsAllSources(t *testing.T) {
	engineMetrics := func() EngineMetrics {
		return EngineMetrics{Hits: 1, Misses: 2, SourceCalls: 3}
	}
	refresher := fakeRefreshSource{dispatched: 4, dropped: 1}
	admitter := fakeAdmissionSource{allowed: 5, rejected: 6}

	s := newSampler(engineMetrics, refresher, admitter)
	snap := s.snapshot()

	require.Equal(t, uint64(1), snap.hits)
	require.Equal(t, uint64(2), snap.misses)
	require.Equal(t, uint64(3), snap.sourceCalls)
	require.Equal(t, uint64(4), snap.refreshDispatched)
	require.Equal(t, uint64(1), snap.refreshDropped)
	require.Equal(t, uint64(5), snap.admissionAllowed)
	require.Equal(t, uint64(6), snap.admissionNotAllowed)
}

func TestSampler_Snapshot_NilOptionalSources(t *testing.T) {
	engineMetrics := func() EngineMetrics { return EngineMetrics{Hits: 1} }
	s := newSampler(engineMetrics, nil, nil)
	snap := s.snapshot()
	require.Equal(t, uint64(1), snap.hits)
	require.Equal(t, uint64(0), snap.refreshDispatched)
}

type fakeRefreshSource struct{ dispatched, dropped int64 }

func (f fakeRefreshSource) Metrics() (int64, int64) { return f.dispatched, f.dropped }

type fakeAdmissionSource struct{ allowed, rejected int64 }

func (f fakeAdmissionSource) Metrics() (int64, int64) { return f.allowed, f.rejected }
