// Package quotecache is the public entry point: a read-through caching
// layer in front of a symbol-keyed quote source, backed by Redis, with
// stampede protection (distributed lock + in-process single-flight),
// avalanche protection (TTL jitter), penetration protection (null-caching +
// symbol admission) and stale-while-revalidate logical expiry. The
// composition-root shape — New wires every collaborator and returns one
// struct embedding each capability's interface — is grounded on the
// reference cache library's root ashcache.Cache/New (cache.go).
package quotecache

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arslanovdev/quotecache/config"
	"github.com/arslanovdev/quotecache/internal/admission"
	"github.com/arslanovdev/quotecache/internal/bloom"
	"github.com/arslanovdev/quotecache/internal/clock"
	"github.com/arslanovdev/quotecache/internal/engine"
	"github.com/arslanovdev/quotecache/internal/lock"
	"github.com/arslanovdev/quotecache/internal/refresh"
	"github.com/arslanovdev/quotecache/internal/store"
	"github.com/arslanovdev/quotecache/internal/telemetry"
)

// SourceRepository is the authoritative data source behind the cache;
// callers implement this against their own quote storage.
type SourceRepository = engine.SourceRepository

// Metrics is the engine's point-in-time counter snapshot.
type Metrics = engine.Metrics

// QuoteCache is the full exposed capability: every read/write/admin
// operation the engine defines, plus the telemetry logger and io.Closer.
type QuoteCache interface {
	Get(ctx context.Context, symbol string) (value []byte, found bool, err error)
	GetWithLock(ctx context.Context, symbol string) (value []byte, found bool, err error)
	GetWithSingleFlight(ctx context.Context, symbol string) (value []byte, found bool, err error)
	GetWithLogicalExpire(ctx context.Context, symbol string) (value []byte, found bool, err error)
	GetWithSymbolFilter(ctx context.Context, symbol string, predicate admission.Predicate) (value []byte, found bool, err error)

	PutWithFixedTTL(ctx context.Context, symbol string, value []byte, ttl time.Duration) error
	PutWithRandomJitter(ctx context.Context, symbol string, value []byte) error
	PutWithHashJitter(ctx context.Context, symbol string, value []byte) error
	PutWithoutTTL(ctx context.Context, symbol string, value []byte) error
	PutLogical(ctx context.Context, symbol string, value []byte) error

	ForceRefresh(ctx context.Context, symbol string, value []byte) error
	Evict(ctx context.Context, symbol string) error

	Metrics() Metrics
	telemetry.Logger
	io.Closer
}

// Cache is the concrete QuoteCache, a thin composition of the engine with
// its own lifecycle (owns the Redis connection and refresh executor it
// opened, so Close tears all of it down in one call).
type Cache struct {
	*engine.Engine
	telemetry.Logger

	rdb redis.UniversalClient
}

// Option customizes New's wiring before the engine is constructed.
type Option func(*options)

type options struct {
	admission        admission.Predicate
	telemetryPeriod  time.Duration
	store            store.Client
}

// WithAdmissionPredicate overrides the default (admission.Always) predicate
// applied by Get/GetWithLock/GetWithSingleFlight/GetWithLogicalExpire.
// GetWithSymbolFilter uses the predicate passed to it and falls back to
// this one only when that predicate is nil.
func WithAdmissionPredicate(p admission.Predicate) Option {
	return func(o *options) { o.admission = p }
}

// WithTelemetryInterval sets the metrics-logging period (SPEC_FULL §12.3);
// zero disables the background logger. Defaults to 30s.
func WithTelemetryInterval(d time.Duration) Option {
	return func(o *options) { o.telemetryPeriod = d }
}

// WithStoreClient injects a pre-built store.Client (e.g. one backed by
// miniredis in tests) instead of letting New dial cfg.Redis itself.
func WithStoreClient(c store.Client) Option {
	return func(o *options) { o.store = c }
}

// NewWhitelistFromSource builds an admission.Predicate that admits a symbol
// only if source.ExistsSymbol reports it present, wired as SPEC_FULL §4.7's
// penetration-protection predicate.
func NewWhitelistFromSource(ctx context.Context, source SourceRepository) admission.Predicate {
	return admission.NewWhitelist(func(symbol string) bool {
		return source.ExistsSymbol(ctx, symbol)
	})
}

// NewBloomFromSymbols builds a bloom-backed admission.Predicate from a fixed
// symbol universe, wired behind a bloom.SwapGuard so the caller can rebuild
// and hot-swap the filter later via guard.Swap (§4.7's rebuild hook) without
// tearing down the predicate the engine already holds.
func NewBloomFromSymbols(symbols []string, falsePositiveProbability float64) (admission.Predicate, *bloom.SwapGuard) {
	guard := bloom.NewSwapGuard(bloom.Build(symbols, falsePositiveProbability))
	return admission.NewBloom(guard.MightContain), guard
}

// New wires the full caching layer: dials Redis (unless WithStoreClient
// overrides it), builds the distributed lock and refresh executor, the
// counting admission wrapper, and starts the telemetry logger.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, source SourceRepository, opts ...Option) (*Cache, error) {
	o := &options{telemetryPeriod: 30 * time.Second}
	for _, opt := range opts {
		opt(o)
	}

	var rdb redis.UniversalClient
	storeClient := o.store
	if storeClient == nil {
		var err error
		storeClient, rdb, err = store.Open(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}

	clk := clock.NewSystem(ctx)
	locker := lock.New(storeClient, clk)
	refresher := refresh.New(ctx, cfg.RefreshThreads, cfg.RefreshThreads*4, cfg.RefreshRatePerSec)

	admit := o.admission
	if admit == nil {
		admit = admission.Always{}
	}
	counting := admission.NewCounting(admit)

	eng := engine.New(cfg, storeClient, source, clk, counting, locker, refresher, logger)

	telemeter := telemetry.New(ctx, logger,
		func() telemetry.EngineMetrics {
			m := eng.Metrics()
			return telemetry.EngineMetrics{
				Hits:               m.Hits,
				Misses:             m.Misses,
				SourceCalls:        m.SourceCalls,
				SourceFailures:     m.SourceFailures,
				LockAcquired:       m.LockAcquired,
				LockContended:      m.LockContended,
				SingleFlightJoined: m.SingleFlightJoined,
				SingleFlightBypass: m.SingleFlightBypass,
				RefreshDispatched:  m.RefreshDispatched,
				RefreshStaleServed: m.RefreshStaleServed,
			}
		},
		refresher,
		counting,
		o.telemetryPeriod,
	)

	return &Cache{Engine: eng, Logger: telemeter, rdb: rdb}, nil
}

// Close stops the telemetry logger, the refresh executor's workers, and (if
// New dialed its own connection) the underlying Redis client.
func (c *Cache) Close() error {
	_ = c.Logger.Close()
	_ = c.Engine.Close()
	if c.rdb != nil {
		return c.rdb.Close()
	}
	return nil
}
