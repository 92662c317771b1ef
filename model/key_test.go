package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestKeys_Namespacing verifies the namespace contract: plain and logical
// entries never collide, and a lock key always wraps its guarded key.
func TestKeys_Namespacing(t *testing.T) {
	const symbol = "AAPL"

	require.Equal(t, "quotes:AAPL", PlainKey(symbol))
	require.Equal(t, "quotes:logical:AAPL", LogicalKey(symbol))
	require.NotEqual(t, PlainKey(symbol), LogicalKey(symbol))

	require.Equal(t, "lock:quotes:AAPL", PlainLockKey(symbol))
	require.Equal(t, "lock:quotes:logical:AAPL", LogicalLockKey(symbol))
	require.NotEqual(t, PlainLockKey(symbol), LogicalLockKey(symbol))
}

func TestKeys_DistinctSymbols(t *testing.T) {
	require.NotEqual(t, PlainKey("AAPL"), PlainKey("MSFT"))
}
