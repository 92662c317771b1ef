package engine

import "sync/atomic"

// counters mirrors the reference cache library's atomic counter style
// (internal/cache/counters.go): atomic.Int64 fields, no locking on the hot path.
type counters struct {
	hits               atomic.Int64
	misses             atomic.Int64
	sourceCalls        atomic.Int64
	sourceFailures     atomic.Int64
	lockAcquired       atomic.Int64
	lockContended      atomic.Int64
	singleFlightJoined atomic.Int64
	singleFlightBypass atomic.Int64
	refreshDispatched  atomic.Int64
	refreshStale       atomic.Int64
}

func (c *counters) snapshot() Metrics {
	return Metrics{
		Hits:               c.hits.Load(),
		Misses:             c.misses.Load(),
		SourceCalls:        c.sourceCalls.Load(),
		SourceFailures:     c.sourceFailures.Load(),
		LockAcquired:       c.lockAcquired.Load(),
		LockContended:      c.lockContended.Load(),
		SingleFlightJoined: c.singleFlightJoined.Load(),
		SingleFlightBypass: c.singleFlightBypass.Load(),
		RefreshDispatched:  c.refreshDispatched.Load(),
		RefreshStaleServed: c.refreshStale.Load(),
	}
}

// Metrics is the engine's point-in-time counter snapshot, consumed by
// internal/telemetry's periodic logger.
type Metrics struct {
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
