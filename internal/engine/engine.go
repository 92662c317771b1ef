// Package engine implements the caching strategy orchestrator (spec §2
// component J, §4.6): the five read paths, the five put-variants, and the
// admin operations, built on top of StoreClient, SingleFlight,
// DistributedLock, RefreshExecutor and the admission predicate. The
// orchestration shape (probe cache -> on miss coordinate -> load source ->
// populate cache) is grounded on the reference cache library's
// internal/cache/cache.go Get/set flow, generalized from an in-process
// sharded map to a remote Redis-compatible store.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/arslanovdev/quotecache/config"
	"github.com/arslanovdev/quotecache/internal/admission"
	"github.com/arslanovdev/quotecache/internal/clock"
	"github.com/arslanovdev/quotecache/internal/hashutil"
	"github.com/arslanovdev/quotecache/internal/lock"
	"github.com/arslanovdev/quotecache/internal/random"
	"github.com/arslanovdev/quotecache/internal/refresh"
	"github.com/arslanovdev/quotecache/internal/singleflight"
	"github.com/arslanovdev/quotecache/internal/store"
	"github.com/arslanovdev/quotecache/model"
)

// sentinel as bytes, for cheap comparisons against raw store values.
var nullSentinelBytes = []byte(model.NullSentinel)

// Engine is the CacheEngine orchestrator.
type Engine struct {
	cfg       *config.Config
	store     store.Client
	source    SourceRepository
	clock     clock.Clock
	admission admission.Predicate
	locker    *lock.Locker
	sf        *singleflight.Group
	refresher *refresh.Executor
	logger    *slog.Logger
	counters  counters
}

// New wires the orchestrator from its collaborators. admit is the
// engine-wide pre-admission predicate applied to get/getWithLock/
// getWithSingleFlight/getWithLogicalExpire; getWithSymbolFilter takes its
// own predicate per call and falls back to this one only when that
// argument is nil.
func New(
	cfg *config.Config,
	storeClient store.Client,
	source SourceRepository,
	clk clock.Clock,
	admit admission.Predicate,
	locker *lock.Locker,
	refresher *refresh.Executor,
	logger *slog.Logger,
) *Engine {
	if admit == nil {
		admit = admission.Always{}
	}
	return &Engine{
		cfg:       cfg,
		store:     storeClient,
		source:    source,
		clock:     clk,
		admission: admit,
		locker:    locker,
		sf:        singleflight.New(time.Duration(cfg.SingleFlightWaitMs) * time.Millisecond),
		refresher: refresher,
		logger:    logger,
	}
}

func (e *Engine) Metrics() Metrics { return e.counters.snapshot() }

// Close releases the refresh executor's workers.
func (e *Engine) Close() error {
	return e.refresher.Close()
}

/*
 * Read paths.
 */

// Get is Path 1, plain cache-aside.
func (e *Engine) Get(ctx context.Context, symbol string) ([]byte, bool, error) {
	if !e.admission.Allow(symbol) {
		return nil, false, nil
	}
	return e.getViaLock(ctx, symbol)
}

// GetWithLock is Path 2. Per spec §4.6, it is identical to Get: both miss
// paths are protected by the same distributed lock.
func (e *Engine) GetWithLock(ctx context.Context, symbol string) ([]byte, bool, error) {
	if !e.admission.Allow(symbol) {
		return nil, false, nil
	}
	return e.getViaLock(ctx, symbol)
}

// GetWithSingleFlight is Path 3: cache probe, then in-process deduplicated load.
func (e *Engine) GetWithSingleFlight(ctx context.Context, symbol string) ([]byte, bool, error) {
	if !e.admission.Allow(symbol) {
		return nil, false, nil
	}

	if value, hit, found := e.probePlain(ctx, symbol); hit {
		return value, found, nil
	}

	key := model.PlainKey(symbol)
	var sourceErr error
	ranLoader := false
	res := e.sf.Do(key, func() ([]byte, error) {
		ranLoader = true
		value, found, err := e.loadFromSourceAndCache(ctx, symbol)
		sourceErr = err
		if err != nil || !found {
			return nil, err
		}
		return value, nil
	})
	if res.Bypassed {
		e.counters.singleFlightBypass.Add(1)
	} else if !ranLoader {
		// Only a caller that received another caller's result counts as a
		// join; the leader that ran the loader itself does not.
		e.counters.singleFlightJoined.Add(1)
	}
	if sourceErr != nil && !res.Bypassed {
		return nil, false, sourceErr
	}
	if res.Err != nil {
		return nil, false, res.Err
	}
	if res.Value == nil {
		e.counters.misses.Add(1)
		return nil, false, nil
	}
	e.counters.hits.Add(1)
	return res.Value, true, nil
}

// GetWithLogicalExpire is Path 4, stale-while-revalidate.
func (e *Engine) GetWithLogicalExpire(ctx context.Context, symbol string) ([]byte, bool, error) {
	if !e.admission.Allow(symbol) {
		return nil, false, nil
	}

	key := model.LogicalKey(symbol)
	raw, ok, err := e.store.Get(ctx, key)
	if err != nil || !ok {
		return e.populateLogical(ctx, symbol)
	}

	env, decodeErr := decodeEnvelope(raw)
	if decodeErr != nil {
		_ = e.store.Delete(ctx, key)
		return e.populateLogical(ctx, symbol)
	}

	if !env.IsExpired(e.clock.NowMs()) {
		if env.IsNegative() {
			e.counters.misses.Add(1)
			return nil, false, nil
		}
		e.counters.hits.Add(1)
		return env.Value, true, nil
	}

	e.dispatchLogicalRefresh(symbol)
	e.counters.refreshStale.Add(1)

	if env.IsNegative() {
		return nil, false, nil
	}
	return env.Value, true, nil
}

// GetWithSymbolFilter is Path 5: identical to Get, but with a caller-supplied
// admission predicate instead of the engine's default. A nil predicate
// falls back to the engine's default.
func (e *Engine) GetWithSymbolFilter(ctx context.Context, symbol string, predicate admission.Predicate) ([]byte, bool, error) {
	if predicate == nil {
		predicate = e.admission
	}
	if !predicate.Allow(symbol) {
		return nil, false, nil
	}
	return e.getViaLock(ctx, symbol)
}

/*
 * Write / admin operations.
 */

// PutWithFixedTTL stores value with an exact TTL, no jitter.
func (e *Engine) PutWithFixedTTL(ctx context.Context, symbol string, value []byte, ttl time.Duration) error {
	return e.store.SetTTL(ctx, model.PlainKey(symbol), value, ttl)
}

// PutWithRandomJitter stores value with TTL = base + U{0, jitter} seconds.
func (e *Engine) PutWithRandomJitter(ctx context.Context, symbol string, value []byte) error {
	return e.store.SetTTL(ctx, model.PlainKey(symbol), value, e.randomJitterTTL())
}

// PutWithHashJitter stores value with a TTL offset derived deterministically
// from a stable hash of the cache key, so repeated runs against the same
// key always pick the same jitter (useful for debugging, at the cost of
// potential clustering if the hash distribution skews for a given keyset).
func (e *Engine) PutWithHashJitter(ctx context.Context, symbol string, value []byte) error {
	return e.store.SetTTL(ctx, model.PlainKey(symbol), value, e.hashJitterTTL(symbol))
}

// PutWithoutTTL stores value with no expiry, for push-refresh deployments
// that keep the cache current via explicit writes instead of TTL-driven reloads.
func (e *Engine) PutWithoutTTL(ctx context.Context, symbol string, value []byte) error {
	return e.store.Set(ctx, model.PlainKey(symbol), value)
}

// PutLogical writes a fresh logical-expire envelope, as in Path 4 step 2.
func (e *Engine) PutLogical(ctx context.Context, symbol string, value []byte) error {
	return e.writeLogicalEnvelope(ctx, symbol, value)
}

// ForceRefresh unconditionally overwrites the plain cache entry, bypassing
// any lock or single-flight coordination — intended for explicit,
// operator-triggered refreshes.
func (e *Engine) ForceRefresh(ctx context.Context, symbol string, value []byte) error {
	return e.PutWithRandomJitter(ctx, symbol, value)
}

// Evict removes both the plain and logical entries for symbol.
func (e *Engine) Evict(ctx context.Context, symbol string) error {
	err1 := e.store.Delete(ctx, model.PlainKey(symbol))
	err2 := e.store.Delete(ctx, model.LogicalKey(symbol))
	return errors.Join(err1, err2)
}

/*
 * Internal helpers.
 */

// probePlain reads the plain entry. hit=true means the probe resolved the
// call completely (either a positive value or a negative-sentinel miss);
// hit=false means the caller still needs to go load the value.
func (e *Engine) probePlain(ctx context.Context, symbol string) (value []byte, hit bool, found bool) {
	raw, ok, err := e.store.Get(ctx, model.PlainKey(symbol))
	if err != nil || !ok {
		return nil, false, false
	}
	if isNullSentinel(raw) {
		e.counters.misses.Add(1)
		return nil, true, false
	}
	e.counters.hits.Add(1)
	return raw, true, true
}

// getViaLock implements the shared Get/GetWithLock/GetWithSymbolFilter body:
// probe, then loadWithLock on miss.
func (e *Engine) getViaLock(ctx context.Context, symbol string) ([]byte, bool, error) {
	if value, hit, found := e.probePlain(ctx, symbol); hit {
		return value, found, nil
	}
	return e.loadWithLock(ctx, symbol)
}

// loadWithLock is spec §4.6's loadWithLock: acquire the distributed lock to
// protect the miss path; on contention, back off half the lock TTL, reprobe,
// and if still empty fall back to a direct (but cache-repopulating) source
// read so a crashed holder cannot wedge every caller (§9 open question: the
// fallback repopulates the cache to restore invariant #1 on the next read).
func (e *Engine) loadWithLock(ctx context.Context, symbol string) ([]byte, bool, error) {
	lockTTL := time.Duration(e.cfg.LockTimeoutMs) * time.Millisecond
	lease, err := e.locker.TryAcquire(ctx, model.PlainLockKey(symbol), lockTTL)
	if err != nil {
		lease = nil
	}

	if lease != nil {
		e.counters.lockAcquired.Add(1)
		defer e.locker.Release(ctx, lease)
		return e.loadFromSourceAndCache(ctx, symbol)
	}

	e.counters.lockContended.Add(1)
	e.clock.Sleep(lockTTL / 2)

	if value, hit, found := e.probePlain(ctx, symbol); hit {
		return value, found, nil
	}

	return e.loadFromSourceAndCache(ctx, symbol)
}

// loadFromSourceAndCache calls the source and populates the plain entry per
// invariant #1: a value becomes a jittered-TTL positive entry, a miss
// becomes a null-sentinel negative entry with nullCacheTtlSeconds. A source
// failure propagates untouched and writes nothing (§7).
func (e *Engine) loadFromSourceAndCache(ctx context.Context, symbol string) ([]byte, bool, error) {
	e.counters.sourceCalls.Add(1)
	value, found, err := e.source.FindBySymbol(ctx, symbol)
	if err != nil {
		e.counters.sourceFailures.Add(1)
		return nil, false, err
	}

	if !found {
		e.counters.misses.Add(1)
		_ = e.store.SetTTL(ctx, model.PlainKey(symbol), nullSentinelBytes,
			time.Duration(e.cfg.NullCacheTTLSeconds)*time.Second)
		return nil, false, nil
	}

	e.counters.hits.Add(1)
	_ = e.store.SetTTL(ctx, model.PlainKey(symbol), value, e.randomJitterTTL())
	return value, true, nil
}

// populateLogical is Path 4 step 2: synchronous source load on a cold
// logical-expire entry.
func (e *Engine) populateLogical(ctx context.Context, symbol string) ([]byte, bool, error) {
	e.counters.sourceCalls.Add(1)
	value, found, err := e.source.FindBySymbol(ctx, symbol)
	if err != nil {
		e.counters.sourceFailures.Add(1)
		return nil, false, err
	}

	if !found {
		e.counters.misses.Add(1)
		_ = e.writeLogicalEnvelope(ctx, symbol, nil)
		return nil, false, nil
	}

	e.counters.hits.Add(1)
	_ = e.writeLogicalEnvelope(ctx, symbol, value)
	return value, true, nil
}

// dispatchLogicalRefresh gates a background refresh behind the logical
// lock so at most one refresher runs per (key, lease window); the caller
// always gets the stale value back immediately regardless of who wins.
func (e *Engine) dispatchLogicalRefresh(symbol string) {
	accepted := e.refresher.Submit(func() {
		ctx := context.Background()
		lockTTL := time.Duration(e.cfg.LockTimeoutMs) * time.Millisecond
		lease, err := e.locker.TryAcquire(ctx, model.LogicalLockKey(symbol), lockTTL)
		if err != nil || lease == nil {
			return
		}
		defer e.locker.Release(ctx, lease)

		// Re-check freshness now that the lock is held: another dispatch
		// may have already refreshed this key between the caller's read
		// and this goroutine winning the lease (bounds source calls per
		// stale window to one).
		if raw, ok, err := e.store.Get(ctx, model.LogicalKey(symbol)); err == nil && ok {
			if env, decodeErr := decodeEnvelope(raw); decodeErr == nil && !env.IsExpired(e.clock.NowMs()) {
				return
			}
		}

		e.counters.refreshDispatched.Add(1)
		e.counters.sourceCalls.Add(1)
		value, found, err := e.source.FindBySymbol(ctx, symbol)
		if err != nil {
			e.counters.sourceFailures.Add(1)
			return
		}
		if !found {
			_ = e.writeLogicalEnvelope(ctx, symbol, nil)
			return
		}
		_ = e.writeLogicalEnvelope(ctx, symbol, value)
	})
	_ = accepted // drop is safe and silent per spec §4.5
}

func (e *Engine) writeLogicalEnvelope(ctx context.Context, symbol string, value []byte) error {
	env := model.Envelope{
		Value:             value,
		LogicalExpireAtMs: e.clock.NowMs() + int64(e.cfg.LogicalExpireSeconds)*1000,
	}
	wire, err := encodeEnvelope(&env)
	if err != nil {
		return err
	}
	return e.store.SetTTL(ctx, model.LogicalKey(symbol), wire, e.cfg.LogicalPhysicalTTL())
}

func (e *Engine) randomJitterTTL() time.Duration {
	base := e.cfg.BaseTTLSeconds
	if e.cfg.TTLJitterSeconds <= 0 {
		return time.Duration(base) * time.Second
	}
	offset := random.IntN(e.cfg.TTLJitterSeconds + 1)
	return time.Duration(base+offset) * time.Second
}

func (e *Engine) hashJitterTTL(symbol string) time.Duration {
	base := e.cfg.BaseTTLSeconds
	if e.cfg.TTLJitterSeconds <= 0 {
		return time.Duration(base) * time.Second
	}
	h := hashutil.Stable64(model.PlainKey(symbol))
	offset := int(h % uint64(e.cfg.TTLJitterSeconds+1))
	return time.Duration(base+offset) * time.Second
}

func isNullSentinel(raw []byte) bool {
	return string(raw) == model.NullSentinel
}
