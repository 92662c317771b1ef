// Package singleflight implements in-process deduplication of concurrent
// identical lookups (spec §2 component G). It is a purpose-built variant of
// the golang.org/x/sync/singleflight idea the pack already leans on
// (dmitrymomot-forge/pkg/cache/cache.go's GetOrSet uses
// golang.org/x/sync/singleflight directly): the spec additionally requires a
// bounded join wait with a direct-call fallback on timeout, which the
// stdlib-adjacent Group type does not expose, so this is a small hand-rolled
// group instead.
package singleflight

import (
	"sync"
	"time"
)

// Result is what a joining caller receives: either the loader's outcome, or
// an indication that it fell back to calling the loader itself.
type Result struct {
	Value      []byte
	Err        error
	Bypassed   bool // true if this caller's own direct call produced Value/Err
}

type call struct {
	done  chan struct{}
	value []byte
	err   error
}

// Group deduplicates concurrent Do calls sharing the same key. At most one
// in-flight call exists per key at a time (invariant #5); the entry is
// removed before the result is observable to late joiners, so a later burst
// starts a fresh call rather than replaying a stale promise.
type Group struct {
	waitTimeout time.Duration

	mu    sync.Mutex
	calls map[string]*call
}

func New(waitTimeout time.Duration) *Group {
	return &Group{
		waitTimeout: waitTimeout,
		calls:       make(map[string]*call),
	}
}

// Do executes loader for the first caller on key in the current burst; late
// joiners await that caller's result up to waitTimeout. On timeout they
// bypass the group and call loader directly instead of blocking longer,
// trading perfect deduplication for bounded tail latency (spec §9).
func (g *Group) Do(key string, loader func() ([]byte, error)) Result {
	g.mu.Lock()
	if c, ok := g.calls[key]; ok {
		g.mu.Unlock()
		return g.join(c, loader)
	}

	c := &call{done: make(chan struct{})}
	g.calls[key] = c
	g.mu.Unlock()

	c.value, c.err = loader()

	g.mu.Lock()
	delete(g.calls, key)
	g.mu.Unlock()

	close(c.done)

	return Result{Value: c.value, Err: c.err}
}

func (g *Group) join(c *call, loader func() ([]byte, error)) Result {
	timer := time.NewTimer(g.waitTimeout)
	defer timer.Stop()

	select {
	case <-c.done:
		return Result{Value: c.value, Err: c.err}
	case <-timer.C:
		v, err := loader()
		return Result{Value: v, Err: err, Bypassed: true}
	}
}
