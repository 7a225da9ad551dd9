package util

// IsPowerOfTwo reports whether x is a power of two (> 0).
func IsPowerOfTwo(x uint64) bool {
	return x != 0 && (x&(x-1)) == 0
}

// ShardIndex maps a 64-bit hash to a shard index.
// Power-of-two shard counts take the mask path; anything else uses modulo.
func ShardIndex(hash uint64, shards int) int {
	if shards <= 1 {
		return 0
	}
	if IsPowerOfTwo(uint64(shards)) {
		return int(hash & uint64(shards-1))
	}
	return int(hash % uint64(shards))
}

// BucketCapacity splits total entries across shards with truncating division.
// Every shard gets at least one slot, so tiny totals still cache something.
func BucketCapacity(total, shards int) int {
	if shards < 1 {
		shards = 1
	}
	c := total / shards
	if c < 1 {
		c = 1
	}
	return c
}
