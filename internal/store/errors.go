package store

import "errors"

// ErrUnavailable is the umbrella error for a shared-store RPC that failed or
// timed out (spec §7's StoreUnavailable taxonomy entry). Callers in
// internal/engine treat it as a cache miss on reads and swallow it on
// writes/lock releases; it is never surfaced to the caller of the engine.
var ErrUnavailable = errors.New("store: unavailable")

// ErrCorrupted marks a stored raw value that failed to deserialize as either
// a Value or the null sentinel (§7's Corruption entry). The engine treats it
// as a miss and evicts the offending entry.
var ErrCorrupted = errors.New("store: corrupted entry")
