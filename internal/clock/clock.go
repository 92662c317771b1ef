// Package clock provides the engine's "now in milliseconds" abstraction.
// Production code reads a cached, periodically-refreshed timestamp (the
// same trick the reference cache library's internal/shared/cachedtime uses
// to avoid a syscall on every hot-path read); tests swap in a
// github.com/benbjohnson/clock mock for deterministic control over logical
// expiry.
package clock

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
)

// Clock is the abstraction the engine and its collaborators depend on.
type Clock interface {
	NowMs() int64
	Now() time.Time
	Sleep(d time.Duration)
	After(d time.Duration) <-chan time.Time
}

const refreshEvery = 10 * time.Millisecond

// cached is the production Clock: a background ticker keeps an atomic
// millisecond timestamp warm so hot paths (envelope expiry checks) never
// pay for a time.Now() syscall.
type cached struct {
	nowMs  atomic.Int64
	closed atomic.Bool
}

// NewSystem starts a cached real-time clock. It stops its background ticker
// when ctx is done.
func NewSystem(ctx context.Context) Clock {
	c := &cached{}
	c.nowMs.Store(time.Now().UnixMilli())

	ticker := time.NewTicker(refreshEvery)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				c.closed.Store(true)
				return
			case t := <-ticker.C:
				c.nowMs.Store(t.UnixMilli())
			}
		}
	}()

	return c
}

func (c *cached) NowMs() int64 {
	if c.closed.Load() {
		return time.Now().UnixMilli()
	}
	return c.nowMs.Load()
}

func (c *cached) Now() time.Time {
	return time.UnixMilli(c.NowMs())
}

func (c *cached) Sleep(d time.Duration) { time.Sleep(d) }

func (c *cached) After(d time.Duration) <-chan time.Time { return time.After(d) }

// mocked adapts a github.com/benbjohnson/clock.Mock to the Clock interface,
// for deterministic logical-expiry tests (advance the mock instead of
// sleeping real time).
type mocked struct {
	m *clock.Mock
}

// NewMock returns a Clock backed by a benbjohnson/clock.Mock, plus the mock
// itself so tests can call mock.Add/mock.Set to advance time deterministically.
func NewMock() (Clock, *clock.Mock) {
	m := clock.NewMock()
	return &mocked{m: m}, m
}

func (c *mocked) NowMs() int64                         { return c.m.Now().UnixMilli() }
func (c *mocked) Now() time.Time                       { return c.m.Now() }
func (c *mocked) Sleep(d time.Duration)                { c.m.Sleep(d) }
func (c *mocked) After(d time.Duration) <-chan time.Time { return c.m.After(d) }
