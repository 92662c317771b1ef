// Package admission implements the SymbolAdmission predicate abstraction
// (spec §2 component F): a pre-admission check evaluated before the cache or
// source is ever touched. The shape mirrors the reference cache library's
// bloom.AdmissionControl interface (Record/Allow), simplified to the
// spec's three concrete predicates: whitelist, bloom, always-true.
package admission

import "sync/atomic"

// Predicate decides whether a symbol is allowed to proceed past
// pre-admission. false means "return miss without touching cache or source".
type Predicate interface {
	Allow(symbol string) bool
}

// Counting wraps a Predicate with allowed/rejected counters for telemetry,
// grounded on the reference library's atomic counters.Allowed/NotAllowed
// style (internal/cache/counters.go).
type Counting struct {
	inner    Predicate
	allowed  atomic.Int64
	rejected atomic.Int64
}

func NewCounting(inner Predicate) *Counting {
	return &Counting{inner: inner}
}

func (c *Counting) Allow(symbol string) bool {
	ok := c.inner.Allow(symbol)
	if ok {
		c.allowed.Add(1)
	} else {
		c.rejected.Add(1)
	}
	return ok
}

func (c *Counting) Metrics() (allowed, rejected int64) {
	return c.allowed.Load(), c.rejected.Load()
}

// Always admits every symbol unconditionally.
type Always struct{}

func (Always) Allow(string) bool { return true }

// Whitelist admits a symbol only if existsSymbol reports it as present in
// the source. existsSymbol must be a fast admission check that performs no
// source IO (spec §6's SourceRepository.existsSymbol contract).
type Whitelist struct {
	existsSymbol func(symbol string) bool
}

func NewWhitelist(existsSymbol func(symbol string) bool) *Whitelist {
	return &Whitelist{existsSymbol: existsSymbol}
}

func (w *Whitelist) Allow(symbol string) bool {
	return w.existsSymbol(symbol)
}

// Bloom admits a symbol only if mightContain reports a probable match. A
// stale filter built before a symbol was added will reject it until the
// filter is rebuilt and swapped in (§4.7's documented caveat — this is not
// a bug, it is the contract).
type Bloom struct {
	mightContain func(symbol string) bool
}

func NewBloom(mightContain func(symbol string) bool) *Bloom {
	return &Bloom{mightContain: mightContain}
}

func (b *Bloom) Allow(symbol string) bool {
	return b.mightContain(symbol)
}

// FuncPredicate adapts any func(string) bool to Predicate, so callers of
// getWithSymbolFilter can pass an arbitrary predicate (e.g. bloom.MightContain)
// without wrapping it themselves.
type FuncPredicate func(symbol string) bool

func (f FuncPredicate) Allow(symbol string) bool { return f(symbol) }
