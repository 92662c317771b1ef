package telemetry

// EngineMetricsFunc adapts engine.Engine.Metrics (which returns a type
// telemetry cannot name without an import cycle) into a callback the
// composition root supplies when constructing the logger.
type EngineMetricsFunc func() EngineMetrics

// EngineMetrics mirrors engine.Metrics' fields; kept as a separate type so
// this package has no import-time dependency on internal/engine.
type EngineMetrics struct {
	Hits                int64
	Misses              int64
	SourceCalls         int64
	SourceFailures      int64
	LockAcquired        int64
	LockContended       int64
	SingleFlightJoined  int64
	SingleFlightBypass  int64
	RefreshDispatched   int64
	RefreshStaleServed  int64
}

// RefreshMetricsSource is satisfied by *refresh.Executor.
type RefreshMetricsSource interface {
	Metrics() (dispatched, dropped int64)
}

// AdmissionMetricsSource is satisfied by *admission.Counting.
type AdmissionMetricsSource interface {
	Metrics() (allowed, rejected int64)
}

type sampler struct {
	engine    EngineMetricsFunc
	refresher RefreshMetricsSource
	admission AdmissionMetricsSource
}

func newSampler(engine EngineMetricsFunc, refresher RefreshMetricsSource, admission AdmissionMetricsSource) sampler {
	return sampler{engine: engine, refresher: refresher, admission: admission}
}

// snapshot holds cumulative counters (monotonic), matching the reference
// telemetry sampler's cumulative-then-delta shape.
type snapshot struct {
	hits               uint64
	misses             uint64
	sourceCalls        uint64
	sourceFailures     uint64
	lockAcquired       uint64
	lockContended      uint64
	singleFlightJoined uint64
	singleFlightBypass uint64
	refreshStaleServed uint64

	refreshDispatched uint64
	refreshDropped    uint64

	admissionAllowed    uint64
	admissionNotAllowed uint64
}

func (s sampler) snapshot() snapshot {
	m := s.engine()

	var dispatched, dropped int64
	if s.refresher != nil {
		dispatched, dropped = s.refresher.Metrics()
	}

	var allowed, notAllowed int64
	if s.admission != nil {
		allowed, notAllowed = s.admission.Metrics()
	}

	return snapshot{
		hits:               uint64(max(m.Hits, 0)),
		misses:             uint64(max(m.Misses, 0)),
		sourceCalls:        uint64(max(m.SourceCalls, 0)),
		sourceFailures:     uint64(max(m.SourceFailures, 0)),
		lockAcquired:       uint64(max(m.LockAcquired, 0)),
		lockContended:      uint64(max(m.LockContended, 0)),
		singleFlightJoined: uint64(max(m.SingleFlightJoined, 0)),
		singleFlightBypass: uint64(max(m.SingleFlightBypass, 0)),
		refreshStaleServed: uint64(max(m.RefreshStaleServed, 0)),

		refreshDispatched: uint64(max(dispatched, 0)),
		refreshDropped:    uint64(max(dropped, 0)),

		admissionAllowed:    uint64(max(allowed, 0)),
		admissionNotAllowed: uint64(max(notAllowed, 0)),
	}
}

// deltaSnapshot converts cumulative snapshots to per-interval deltas. If a
// counter appears to have reset (cur < prev), the current value is taken
// as the delta rather than going negative.
func deltaSnapshot(prev, cur snapshot) snapshot {
	return snapshot{
		hits:               delta(prev.hits, cur.hits),
		misses:             delta(prev.misses, cur.misses),
		sourceCalls:        delta(prev.sourceCalls, cur.sourceCalls),
		sourceFailures:     delta(prev.sourceFailures, cur.sourceFailures),
		lockAcquired:       delta(prev.lockAcquired, cur.lockAcquired),
		lockContended:      delta(prev.lockContended, cur.lockContended),
		singleFlightJoined: delta(prev.singleFlightJoined, cur.singleFlightJoined),
		singleFlightBypass: delta(prev.singleFlightBypass, cur.singleFlightBypass),
		refreshStaleServed: delta(prev.refreshStaleServed, cur.refreshStaleServed),

		refreshDispatched: delta(prev.refreshDispatched, cur.refreshDispatched),
		refreshDropped:    delta(prev.refreshDropped, cur.refreshDropped),

		admissionAllowed:    delta(prev.admissionAllowed, cur.admissionAllowed),
		admissionNotAllowed: delta(prev.admissionNotAllowed, cur.admissionNotAllowed),
	}
}

func delta(prev, cur uint64) uint64 {
	if cur >= prev {
		return cur - prev
	}
	return cur
}
