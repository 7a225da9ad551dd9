// Package util contains internal helpers (hashing, sharding, padding).
//revive:disable:var-naming  // allow 'util' as an internal helpers package name
package util

// MaxHashedBytes bounds how much of a key DJB2 reads. Keys that differ only
// past this prefix hash to the same value.
const MaxHashedBytes = 64

const djb2Seed = 5381

// DJB2 hashes at most the first MaxHashedBytes bytes of s with the classic
// h = h*33 + c rolling hash. Bytes are added as signed chars, so bytes at or
// above 0x80 subtract from the running value.
func DJB2(s string) uint64 {
	n := len(s)
	if n > MaxHashedBytes {
		n = MaxHashedBytes
	}
	h := uint64(djb2Seed)
	for i := 0; i < n; i++ {
		h = (h << 5) + h + uint64(int64(int8(s[i])))
	}
	return h
}
