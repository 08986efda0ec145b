package partition

import "github.com/zeebo/xxh3"

// DefaultShards is used when a caller asks for a non-positive shard count.
const DefaultShards = 1

// For returns the shard in [0, n) that owns key.
// Stable and deterministic: the same key always maps to the same shard for a given n.
func For(key []byte, n int) int {
	if n <= DefaultShards {
		return 0
	}
	return int(xxh3.Hash(key) % uint64(n))
}

// ForString is For over a string key without copying it.
func ForString(key string, n int) int {
	if n <= DefaultShards {
		return 0
	}
	return int(xxh3.HashString(key) % uint64(n))
}
