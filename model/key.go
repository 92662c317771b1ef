package model

// Key layout is bit-exact per the namespace contract: plain entries live
// under "quotes:" and their locks under "lock:quotes:"; logical-expire (SWR)
// entries live under "quotes:logical:" and their locks under
// "lock:quotes:logical:". Symbols are assumed already case-canonicalized by
// the caller.
const (
	plainPrefix   = "quotes:"
	logicalPrefix = "quotes:logical:"
	lockPrefix    = "lock:"
)

// PlainKey builds the store key for a plain cache-aside entry.
func PlainKey(symbol string) string {
	return plainPrefix + symbol
}

// LogicalKey builds the store key for a logical-expire (SWR) entry.
func LogicalKey(symbol string) string {
	return logicalPrefix + symbol
}

// PlainLockKey builds the lock key guarding the plain-entry miss path.
func PlainLockKey(symbol string) string {
	return lockPrefix + PlainKey(symbol)
}

// LogicalLockKey builds the lock key guarding a logical-expire refresh.
func LogicalLockKey(symbol string) string {
	return lockPrefix + LogicalKey(symbol)
}
