package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arslanovdev/quotecache/config"
	"github.com/arslanovdev/quotecache/internal/admission"
	"github.com/arslanovdev/quotecache/internal/clock"
	"github.com/arslanovdev/quotecache/internal/lock"
	"github.com/arslanovdev/quotecache/internal/refresh"
	"github.com/arslanovdev/quotecache/model"
	"github.com/arslanovdev/quotecache/tests/help"
)

func newTestEngine(t *testing.T, cfg *config.Config) (*Engine, *help.FakeSource, *help.MemStore, func()) {
	t.Helper()
	if cfg == nil {
		cfg = config.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	storeClient := help.NewMemStore()
	source := help.NewFakeSource()
	clk := clock.NewSystem(ctx)
	locker := lock.New(storeClient, clk)
	refresher := refresh.New(ctx, cfg.RefreshThreads, cfg.RefreshThreads*4, 0)

	e := New(cfg, storeClient, source, clk, nil, locker, refresher, help.Logger())
	return e, source, storeClient, func() {
		_ = e.Close()
		cancel()
	}
}

// TestGet_PutThenGet_ReturnsValue is P1: put then get returns the value.
func TestGet_PutThenGet_ReturnsValue(t *testing.T) {
	e, _, _, done := newTestEngine(t, nil)
	defer done()
	ctx := context.Background()

	require.NoError(t, e.PutWithFixedTTL(ctx, "AAPL", []byte("v"), time.Minute))

	v, found, err := e.Get(ctx, "AAPL")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("v"), v)
}

// TestGet_S1_SingleSourceCallThenCached is scenario S1.
func TestGet_S1_SingleSourceCallThenCached(t *testing.T) {
	e, source, _, done := newTestEngine(t, nil)
	defer done()
	ctx := context.Background()
	source.SetValue("BTC", []byte(`{"price":67500}`))

	v1, found1, err := e.Get(ctx, "BTC")
	require.NoError(t, err)
	require.True(t, found1)

	v2, found2, err := e.Get(ctx, "BTC")
	require.NoError(t, err)
	require.True(t, found2)

	require.Equal(t, v1, v2)
	require.Equal(t, int64(1), source.Calls())
}

// TestEvict_ThenGet_CausesExactlyOneSourceCall is P2.
func TestEvict_ThenGet_CausesExactlyOneSourceCall(t *testing.T) {
	e, source, _, done := newTestEngine(t, nil)
	defer done()
	ctx := context.Background()
	source.SetValue("AAPL", []byte("v"))

	_, _, err := e.Get(ctx, "AAPL")
	require.NoError(t, err)
	require.NoError(t, e.Evict(ctx, "AAPL"))

	_, found, err := e.Get(ctx, "AAPL")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, int64(2), source.Calls())
}

// TestGetWithLock_S2_ConcurrentColdReadsBoundSourceCalls is scenario S2 / P3.
func TestGetWithLock_S2_ConcurrentColdReadsBoundSourceCalls(t *testing.T) {
	e, source, _, done := newTestEngine(t, nil)
	defer done()
	ctx := context.Background()
	source.SetValue("SOL", []byte(`{"price":145}`))

	const n = 50
	results := make([][]byte, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			v, found, err := e.GetWithLock(ctx, "SOL")
			require.NoError(t, err)
			require.True(t, found)
			results[i] = v
		}(i)
	}
	wg.Wait()

	for _, v := range results {
		require.Equal(t, []byte(`{"price":145}`), v)
	}
	require.LessOrEqual(t, source.Calls(), int64(3))
}

// TestGetWithSingleFlight_S3_DedupsConcurrentMisses is scenario S3 / P3.
func TestGetWithSingleFlight_S3_DedupsConcurrentMisses(t *testing.T) {
	e, source, _, done := newTestEngine(t, nil)
	defer done()
	ctx := context.Background()
	source.SetValue("HOT_SF", []byte("v"))

	const n = 200
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			v, found, err := e.GetWithSingleFlight(ctx, "HOT_SF")
			require.NoError(t, err)
			require.True(t, found)
			require.Equal(t, []byte("v"), v)
		}()
	}
	wg.Wait()

	require.LessOrEqual(t, source.Calls(), int64(1))
}

// TestGetWithSingleFlight_PropagatesSourceError verifies a source failure
// during the single-flight load is returned to the caller as an error, not
// turned into a miss.
func TestGetWithSingleFlight_PropagatesSourceError(t *testing.T) {
	e, source, _, done := newTestEngine(t, nil)
	defer done()
	ctx := context.Background()
	source.SetErr("BAD", assertErr)

	_, found, err := e.GetWithSingleFlight(ctx, "BAD")
	require.Error(t, err)
	require.False(t, found)
}

var assertErr = fmt.Errorf("source unavailable")

// TestGetWithLogicalExpire_S4_StaleServedAndRefreshBounded is scenario S4.
func TestGetWithLogicalExpire_S4_StaleServedAndRefreshBounded(t *testing.T) {
	cfg := config.Default()
	cfg.LogicalExpireSeconds = 2
	cfg.RefreshThreads = 4

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	storeClient := help.NewMemStore()
	source := help.NewFakeSource()
	source.SetValue("HOT_LOGICAL", []byte("v1"))
	mockClock, mock := clock.NewMock()
	locker := lock.New(storeClient, mockClock)
	refresher := refresh.New(ctx, cfg.RefreshThreads, cfg.RefreshThreads*8, 0)
	defer refresher.Close()

	e := New(cfg, storeClient, source, mockClock, nil, locker, refresher, help.Logger())

	_, found, err := e.GetWithLogicalExpire(ctx, "HOT_LOGICAL")
	require.NoError(t, err)
	require.True(t, found)

	mock.Add(2500 * time.Millisecond)

	const n = 500
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			v, found, err := e.GetWithLogicalExpire(ctx, "HOT_LOGICAL")
			require.NoError(t, err)
			require.True(t, found)
			require.Equal(t, []byte("v1"), v)
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		return source.Calls() <= 2
	}, time.Second, time.Millisecond)
}

// TestGet_S5_WhitelistRejectsUnknownSymbol_NoSourceCalls is scenario S5 / P5.
func TestGet_S5_WhitelistRejectsUnknownSymbol_NoSourceCalls(t *testing.T) {
	source := help.NewFakeSource()
	source.SetValue("BTC", []byte("v"))
	source.SetValue("ETH", []byte("v"))

	whitelist := admission.NewWhitelist(func(symbol string) bool {
		return symbol == "BTC" || symbol == "ETH"
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	storeClient := help.NewMemStore()
	clk := clock.NewSystem(ctx)
	locker := lock.New(storeClient, clk)
	refresher := refresh.New(ctx, 2, 8, 0)
	defer refresher.Close()
	e := New(config.Default(), storeClient, source, clk, whitelist, locker, refresher, help.Logger())

	for i := 0; i < 10_000; i++ {
		_, found, err := e.Get(ctx, "BAD####")
		require.NoError(t, err)
		require.False(t, found)
	}
	require.Equal(t, int64(0), source.Calls())
}

// TestGet_S6_WhitelistedButAbsent_SingleSourceCallThenNullCached is
// scenario S6 / P6.
func TestGet_S6_WhitelistedButAbsent_SingleSourceCallThenNullCached(t *testing.T) {
	source := help.NewFakeSource()
	source.SetMiss("MISS001")
	whitelist := admission.NewWhitelist(func(symbol string) bool { return symbol == "MISS001" })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	storeClient := help.NewMemStore()
	clk := clock.NewSystem(ctx)
	locker := lock.New(storeClient, clk)
	refresher := refresh.New(ctx, 2, 8, 0)
	defer refresher.Close()
	e := New(config.Default(), storeClient, source, clk, whitelist, locker, refresher, help.Logger())

	for i := 0; i < 5_000; i++ {
		_, found, err := e.Get(ctx, "MISS001")
		require.NoError(t, err)
		require.False(t, found)
	}
	require.Equal(t, int64(1), source.Calls())
}

// TestGetWithSymbolFilter_S7_BloomBoundedFalsePositiveSourceCalls is
// scenario S7, using a FuncPredicate instead of a real Bloom filter
// (internal/bloom is exercised directly in its own package tests) so this
// test controls the exact false-positive symbol set.
func TestGetWithSymbolFilter_S7_BloomBoundedFalsePositiveSourceCalls(t *testing.T) {
	e, source, _, done := newTestEngine(t, nil)
	defer done()
	ctx := context.Background()

	// Simulate a bloom filter with a fixed false-positive count: every
	// "BAD#####" symbol is rejected except a deliberately-admitted handful,
	// mirroring the ≤0.03·N+5 bound from a p=0.01 filter over N=10000 probes.
	falsePositives := map[string]bool{"BAD00007": true, "BAD00042": true}
	predicate := admission.FuncPredicate(func(symbol string) bool { return falsePositives[symbol] })
	for sym := range falsePositives {
		source.SetMiss(sym)
	}

	for i := 0; i < 10_000; i++ {
		sym := fmt.Sprintf("BAD%05d", i)
		_, found, err := e.GetWithSymbolFilter(ctx, sym, predicate)
		require.NoError(t, err)
		require.False(t, found)
	}
	require.LessOrEqual(t, source.Calls(), int64(0.03*10_000+5))
}

// TestPutWithFixedTTL_P8_GetTtlMatches is P8.
func TestPutWithFixedTTL_P8_GetTtlMatches(t *testing.T) {
	e, _, storeClient, done := newTestEngine(t, nil)
	defer done()
	ctx := context.Background()

	require.NoError(t, e.PutWithFixedTTL(ctx, "AAPL", []byte("v"), 42*time.Second))
	ttl, err := storeClient.GetTTL(ctx, model.PlainKey("AAPL"))
	require.NoError(t, err)
	require.Contains(t, []int64{41, 42}, ttl)
}

// TestPutWithRandomJitter_P9_ProducesMultipleDistinctTTLs is P9.
func TestPutWithRandomJitter_P9_ProducesMultipleDistinctTTLs(t *testing.T) {
	e, _, storeClient, done := newTestEngine(t, nil)
	defer done()
	ctx := context.Background()

	seen := map[int64]bool{}
	for i := 0; i < 200; i++ {
		symbol := fmt.Sprintf("SYM%d", i)
		require.NoError(t, e.PutWithRandomJitter(ctx, symbol, []byte("v")))
		ttl, err := storeClient.GetTTL(ctx, model.PlainKey(symbol))
		require.NoError(t, err)
		seen[ttl] = true
	}
	require.Greater(t, len(seen), 1)
}

// TestPutWithHashJitter_P9_ProducesMultipleDistinctTTLs is P9's hash-jitter half.
func TestPutWithHashJitter_P9_ProducesMultipleDistinctTTLs(t *testing.T) {
	e, _, storeClient, done := newTestEngine(t, nil)
	defer done()
	ctx := context.Background()

	seen := map[int64]bool{}
	for i := 0; i < 200; i++ {
		symbol := fmt.Sprintf("SYM%d", i)
		require.NoError(t, e.PutWithHashJitter(ctx, symbol, []byte("v")))
		ttl, err := storeClient.GetTTL(ctx, model.PlainKey(symbol))
		require.NoError(t, err)
		seen[ttl] = true
	}
	require.Greater(t, len(seen), 1)
}

// TestPutWithHashJitter_DeterministicPerKey verifies repeated writes for
// the same key always pick the same jitter offset.
func TestPutWithHashJitter_DeterministicPerKey(t *testing.T) {
	e, _, storeClient, done := newTestEngine(t, nil)
	defer done()
	ctx := context.Background()

	require.NoError(t, e.PutWithHashJitter(ctx, "AAPL", []byte("v1")))
	ttl1, err := storeClient.GetTTL(ctx, model.PlainKey("AAPL"))
	require.NoError(t, err)

	require.NoError(t, e.PutWithHashJitter(ctx, "AAPL", []byte("v2")))
	ttl2, err := storeClient.GetTTL(ctx, model.PlainKey("AAPL"))
	require.NoError(t, err)

	require.Equal(t, ttl1, ttl2)
}

// TestPutWithoutTTL_P10_GetTtlIsMinusOne is P10.
func TestPutWithoutTTL_P10_GetTtlIsMinusOne(t *testing.T) {
	e, _, storeClient, done := newTestEngine(t, nil)
	defer done()
	ctx := context.Background()

	require.NoError(t, e.PutWithoutTTL(ctx, "AAPL", []byte("v")))
	ttl, err := storeClient.GetTTL(ctx, model.PlainKey("AAPL"))
	require.NoError(t, err)
	require.Equal(t, int64(-1), ttl)
}

func TestGetWithLogicalExpire_FreshEntry_NoSourceCall(t *testing.T) {
	e, source, _, done := newTestEngine(t, nil)
	defer done()
	ctx := context.Background()
	source.SetValue("AAPL", []byte("v"))

	_, _, err := e.GetWithLogicalExpire(ctx, "AAPL")
	require.NoError(t, err)
	require.Equal(t, int64(1), source.Calls())

	_, found, err := e.GetWithLogicalExpire(ctx, "AAPL")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, int64(1), source.Calls())
}

func TestGetWithLogicalExpire_NegativeEntry_ReturnsMiss(t *testing.T) {
	e, source, _, done := newTestEngine(t, nil)
	defer done()
	ctx := context.Background()
	source.SetMiss("GONE")

	_, found, err := e.GetWithLogicalExpire(ctx, "GONE")
	require.NoError(t, err)
	require.False(t, found)
}

func TestPutLogical_ThenGetWithLogicalExpire_ReturnsValueWithoutSourceCall(t *testing.T) {
	e, source, _, done := newTestEngine(t, nil)
	defer done()
	ctx := context.Background()

	require.NoError(t, e.PutLogical(ctx, "AAPL", []byte("preloaded")))
	v, found, err := e.GetWithLogicalExpire(ctx, "AAPL")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("preloaded"), v)
	require.Equal(t, int64(0), source.Calls())
}

func TestForceRefresh_OverwritesCachedValue(t *testing.T) {
	e, source, _, done := newTestEngine(t, nil)
	defer done()
	ctx := context.Background()
	source.SetValue("AAPL", []byte("old"))

	_, _, err := e.Get(ctx, "AAPL")
	require.NoError(t, err)

	require.NoError(t, e.ForceRefresh(ctx, "AAPL", []byte("new")))
	v, found, err := e.Get(ctx, "AAPL")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("new"), v)
}

func TestEvict_RemovesBothPlainAndLogicalEntries(t *testing.T) {
	e, _, storeClient, done := newTestEngine(t, nil)
	defer done()
	ctx := context.Background()

	require.NoError(t, e.PutWithFixedTTL(ctx, "AAPL", []byte("v"), time.Minute))
	require.NoError(t, e.PutLogical(ctx, "AAPL", []byte("v")))

	require.NoError(t, e.Evict(ctx, "AAPL"))

	_, ok, err := storeClient.Get(ctx, model.PlainKey("AAPL"))
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = storeClient.Get(ctx, model.LogicalKey("AAPL"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMetrics_ReflectsHitsAndMisses(t *testing.T) {
	e, source, _, done := newTestEngine(t, nil)
	defer done()
	ctx := context.Background()
	source.SetValue("AAPL", []byte("v"))
	source.SetMiss("GONE")

	_, _, _ = e.Get(ctx, "AAPL")
	_, _, _ = e.Get(ctx, "AAPL")
	_, _, _ = e.Get(ctx, "GONE")

	m := e.Metrics()
	require.Equal(t, int64(2), m.Hits)
	require.Equal(t, int64(1), m.Misses)
	require.Equal(t, int64(2), m.SourceCalls)
}
