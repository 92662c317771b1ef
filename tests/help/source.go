package help

import (
	"context"
	"sync"
	"sync/atomic"
)

// FakeSource is a scriptable engine.SourceRepository: it returns whatever
// was registered via SetValue/SetMiss/SetErr, and counts how many times
// FindBySymbol was actually invoked (useful for asserting single-flight /
// lock dedup behavior).
type FakeSource struct {
	mu     sync.Mutex
	values map[string][]byte
	misses map[string]bool
	errs   map[string]error
	calls  atomic.Int64

	// Delay, if set, is observed (as a channel receive) before FindBySymbol
	// returns, letting tests hold a load open to force contention.
	Delay <-chan struct{}
}

func NewFakeSource() *FakeSource {
	return &FakeSource{
		values: make(map[string][]byte),
		misses: make(map[string]bool),
		errs:   make(map[string]error),
	}
}

func (f *FakeSource) SetValue(symbol string, value []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[symbol] = value
}

func (f *FakeSource) SetMiss(symbol string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.misses[symbol] = true
}

func (f *FakeSource) SetErr(symbol string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[symbol] = err
}

func (f *FakeSource) Calls() int64 { return f.calls.Load() }

func (f *FakeSource) FindBySymbol(ctx context.Context, symbol string) ([]byte, bool, error) {
	f.calls.Add(1)
	if f.Delay != nil {
		select {
		case <-f.Delay:
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[symbol]; ok {
		return nil, false, err
	}
	if f.misses[symbol] {
		return nil, false, nil
	}
	v, ok := f.values[symbol]
	return v, ok, nil
}

func (f *FakeSource) ExistsSymbol(_ context.Context, symbol string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.values[symbol]
	return ok
}
