// Package bloom implements a fixed-size, build-once-read-many Bloom filter
// with double hashing, the shape of the reference cache library's
// doorkeeper bitset (internal/cache/db/bloom/door_keeper.go) generalized to
// an explicit (n, p)-sized filter instead of a fixed admission doorkeeper.
package bloom

import (
	"math"
	"sync"

	"github.com/arslanovdev/quotecache/internal/hashutil"
)

const (
	minFPP = 1e-4
	maxFPP = 0.5
)

// Filter is an immutable-after-construction Bloom filter. Put is serialized
// during construction (via Build); MightContain is lock-free for
// concurrent readers against the frozen bitset, matching invariant #4
// (membership of any inserted element returns true with probability 1).
type Filter struct {
	bits []uint64
	m    uint64 // number of bits
	k    int    // number of hash probes
}

// New sizes a filter for expectedInsertions elements at falsePositiveProbability,
// per the standard formulas:
//
//	m = ceil(-n * ln(p) / (ln 2)^2)
//	k = max(1, round(m/n * ln 2))
//
// m is raised to at least 64 before k is derived, and the bitset then
// rounds m up to a whole number of 64-bit words, so Bits() can exceed the
// formula's m.
func New(expectedInsertions int, falsePositiveProbability float64) *Filter {
	n := expectedInsertions
	if n < 1 {
		n = 1
	}
	p := falsePositiveProbability
	if p < minFPP {
		p = minFPP
	}
	if p > maxFPP {
		p = maxFPP
	}

	ln2 := math.Log(2)
	m := math.Ceil(-float64(n) * math.Log(p) / (ln2 * ln2))
	if m < 64 {
		m = 64
	}
	k := int(math.Round(m / float64(n) * ln2))
	if k < 1 {
		k = 1
	}

	words := (uint64(m) + 63) / 64
	return &Filter{
		bits: make([]uint64, words),
		m:    words * 64,
		k:    k,
	}
}

// Build constructs a filter from a fixed snapshot of elements in one pass.
// Build is not safe to call concurrently with itself or with Put; it is
// meant to be used once before the filter is handed to concurrent readers.
func Build(elements []string, falsePositiveProbability float64) *Filter {
	f := New(len(elements), falsePositiveProbability)
	for _, e := range elements {
		f.Put(e)
	}
	return f
}

// Put inserts an element. Callers must serialize Put calls during
// construction; once construction is finished, treat the filter as
// read-only.
func (f *Filter) Put(element string) {
	h1, h2 := hashutil.Split128(element)
	for i := 0; i < f.k; i++ {
		idx := f.bitIndex(h1, h2, i)
		f.bits[idx>>6] |= 1 << (idx & 63)
	}
}

// MightContain returns true if element was (probably) inserted. False
// positives are possible (bounded by the configured p); false negatives are
// not (invariant #4).
func (f *Filter) MightContain(element string) bool {
	h1, h2 := hashutil.Split128(element)
	for i := 0; i < f.k; i++ {
		idx := f.bitIndex(h1, h2, i)
		if f.bits[idx>>6]&(1<<(idx&63)) == 0 {
			return false
		}
	}
	return true
}

func (f *Filter) bitIndex(h1, h2 uint64, i int) uint64 {
	combined := h1 + uint64(i)*h2
	return (combined & 0x7fffffffffffffff) % f.m
}

// Bits and K expose the derived sizing for diagnostics/tests.
func (f *Filter) Bits() uint64 { return f.m }
func (f *Filter) K() int       { return f.k }

// SwapGuard wraps a *Filter behind a mutex so a deployment can atomically
// install a freshly-rebuilt filter (per §4.7's stale-filter caveat) without
// the engine needing to know about rebuild scheduling.
type SwapGuard struct {
	mu sync.RWMutex
	f  *Filter
}

func NewSwapGuard(f *Filter) *SwapGuard {
	return &SwapGuard{f: f}
}

func (g *SwapGuard) MightContain(element string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.f.MightContain(element)
}

func (g *SwapGuard) Swap(f *Filter) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.f = f
}
