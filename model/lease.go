package model

import "time"

// Lease represents an acquired DistributedLock lease. Token is a fresh
// per-acquisition random value; release must compare-and-delete against it
// so a holder never deletes a lease it does not own (invariant #3).
type Lease struct {
	Key       string
	Token     string
	ExpiresAt time.Time
}
