// Package rate provides an optional token-bucket governor for refresh
// dispatch, grounded on the reference library's internal/shared/rate/jitter.go
// (a buffered channel fed by a go.uber.org/ratelimit limiter on a background
// goroutine, so the hot path only ever does a channel receive).
package rate

import (
	"context"

	"go.uber.org/ratelimit"
)

// Limiter hands out permits at a bounded rate. A nil *Limiter (what New
// returns for perSecond <= 0) allows every call.
type Limiter struct {
	ctx context.Context
	ch  chan struct{}
}

// New starts a limiter allowing up to perSecond permits/second. If
// perSecond <= 0, the limiter is a no-op (Allow always succeeds immediately).
func New(ctx context.Context, perSecond int) *Limiter {
	if perSecond <= 0 {
		return nil
	}

	burst := perSecond / 10
	if burst < 1 {
		burst = 1
	}

	l := &Limiter{ctx: ctx, ch: make(chan struct{}, burst)}
	rl := ratelimit.New(perSecond)

	go func() {
		for {
			rl.Take()
			select {
			case <-ctx.Done():
				return
			case l.ch <- struct{}{}:
			}
		}
	}()

	return l
}

// Allow reports whether a permit is immediately available, without
// blocking. A nil Limiter always allows. Once ctx is done the feeder
// goroutine above has stopped topping up l.ch, so Allow refuses outright
// instead of draining whatever permits happened to be buffered — the
// channel is never closed, which would otherwise make a receive succeed
// unconditionally and flip a cancelled limiter from "rate limited" to
// "unlimited".
func (l *Limiter) Allow() bool {
	if l == nil {
		return true
	}
	if l.ctx.Err() != nil {
		return false
	}
	select {
	case <-l.ch:
		return true
	default:
		return false
	}
}
