// Package hashutil centralizes the stable 64-bit hashing used for
// putWithHashJitter's deterministic TTL offset and for BloomFilter's
// double hashing. github.com/zeebo/xxh3 is the reference cache library's
// own choice for fast, stable hashing (internal/shared/bytes/bytes.go).
package hashutil

import "github.com/zeebo/xxh3"

// Stable64 returns a deterministic 64-bit hash of key. It is stable across
// runs and processes for the same input, which putWithHashJitter's contract
// requires.
func Stable64(key string) uint64 {
	return xxh3.HashString(key)
}

// Split128 splits the 128-bit xxh3 digest of key into its low and high
// 64-bit halves, for BloomFilter's double-hashing scheme (h1, h2).
func Split128(key string) (h1, h2 uint64) {
	h := xxh3.HashString128(key)
	h1, h2 = h.Lo, h.Hi
	if h2 == 0 {
		h2 = 1
	}
	return h1, h2
}
