package engine

import "context"

// SourceRepository is the authoritative data source behind the cache
// (spec §6, consumed interface). FindBySymbol may block and may fail; a
// failure must propagate to the engine's caller untouched (§7
// SourceFailure) — the engine never converts it into a silent miss.
// ExistsSymbol is a fast admission check and must not perform source IO.
type SourceRepository interface {
	FindBySymbol(ctx context.Context, symbol string) (value []byte, found bool, err error)
	ExistsSymbol(ctx context.Context, symbol string) bool
}
