// Package lock implements the token-based distributed lease (spec §2
// component H): setIfAbsent to acquire, compare-and-delete to release.
// Grounded on the pack's Redis-backed document locking
// (smartramana-developer-mesh/pkg/services/document_lock_service.go), which
// uses SetNX to acquire and a Lua script to release — the same pattern,
// scoped down to the spec's single-key lease (no refresh, no section locks).
package lock

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/arslanovdev/quotecache/internal/clock"
	"github.com/arslanovdev/quotecache/internal/store"
	"github.com/arslanovdev/quotecache/model"
)

// Locker is the DistributedLock capability.
type Locker struct {
	store store.Client
	clock clock.Clock
}

func New(s store.Client, clk clock.Clock) *Locker {
	return &Locker{store: s, clock: clk}
}

// TryAcquire attempts to take the lease at key for ttl. A fresh 128-bit
// random token (via google/uuid) is stored as the lease value so Release
// can verify ownership before deleting (invariant #3). Returns (nil, nil)
// if another holder already owns the lease; store faults degrade to a
// failed acquisition rather than propagating (spec §7: StoreUnavailable is
// never surfaced to the caller).
func (l *Locker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (*model.Lease, error) {
	token := uuid.NewString()
	acquired, err := l.store.SetIfAbsent(ctx, key, []byte(token), ttl)
	if err != nil {
		return nil, nil
	}
	if !acquired {
		return nil, nil
	}
	return &model.Lease{Key: key, Token: token, ExpiresAt: l.clock.Now().Add(ttl)}, nil
}

// Release deletes the lease only if it still holds the releaser's token
// (no blind deletes). Idempotent; best-effort on store errors, so a crashed
// holder's lease simply rides out its TTL instead of blocking forever.
func (l *Locker) Release(ctx context.Context, lease *model.Lease) {
	if lease == nil {
		return
	}
	_, _ = l.store.CompareAndDelete(ctx, lease.Key, []byte(lease.Token))
}
